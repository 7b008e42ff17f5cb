// Package schema infers the effective attribute schema of a set of documents.
package schema

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/starford/folio/internal/models"
)

// MaxSamples caps the sample values kept per field.
const MaxSamples = 10

var preferred = []string{
	models.KeyTitle,
	models.KeyDate,
	models.KeyAuthor,
	models.KeyDescription,
	models.KeyCategories,
	models.KeyTags,
}

var datePattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})([T ]\d{1,2}:\d{2}(:\d{2}(\.\d+)?)?(Z|[+-]\d{2}:?\d{2})?)?$`)

var dateLayouts = []struct {
	layout  string
	hasTime bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02T15:04", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02 15:04", true},
	{"2006-01-02 15:04:05 -0700", true},
	{time.RFC1123Z, true},
	{time.RFC1123, true},
	{"2006-01-02", false},
	{"2006/01/02", false},
	{"01/02/2006", false},
	{"Jan 2, 2006", false},
	{"January 2, 2006", false},
	{"2 Jan 2006", false},
	{"2 January 2006", false},
}

type accumulator struct {
	typ     models.FieldType
	typed   bool
	samples []string
	seen    map[string]struct{}
}

func (a *accumulator) sample(s string) {
	if s == "" || len(a.samples) >= MaxSamples {
		return
	}
	if _, ok := a.seen[s]; ok {
		return
	}
	a.seen[s] = struct{}{}
	a.samples = append(a.samples, s)
}

// Analyze returns one Field per key observed across docs. The first
// non-empty value seen for a key decides its type; keys with only empty
// values are strings. Output order is stable for identical input.
func Analyze(docs []models.Document) []models.Field {
	acc := make(map[string]*accumulator)
	for _, d := range docs {
		if d.Attributes == nil {
			continue
		}
		for _, k := range d.Attributes.Keys() {
			a, ok := acc[k]
			if !ok {
				a = &accumulator{typ: models.FieldString, seen: map[string]struct{}{}}
				acc[k] = a
			}
			v, _ := d.Attributes.Get(k)
			if v.IsEmpty() {
				continue
			}
			if !a.typed {
				a.typ = InferType(v)
				a.typed = true
			}
			if v.Kind() == models.KindList {
				for _, it := range v.Items() {
					a.sample(it.Text())
				}
			} else {
				a.sample(v.Text())
			}
		}
	}

	keys := make([]string, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})

	out := make([]models.Field, 0, len(keys))
	for _, k := range keys {
		a := acc[k]
		samples := a.samples
		if samples == nil {
			samples = []string{}
		}
		out = append(out, models.Field{Key: k, Type: a.typ, SampleValues: samples})
	}
	return out
}

func rank(key string) int {
	for i, p := range preferred {
		if p == key {
			return i
		}
	}
	return len(preferred)
}

// InferType classifies a single non-empty value.
func InferType(v models.Value) models.FieldType {
	switch v.Kind() {
	case models.KindList:
		return models.FieldArray
	case models.KindBool:
		return models.FieldBoolean
	case models.KindNumber:
		return models.FieldNumber
	case models.KindMap:
		return models.FieldObject
	case models.KindString:
		if ok, withTime := ParseDate(v.Str()); ok {
			if withTime {
				return models.FieldDateTime
			}
			return models.FieldDate
		}
	}
	return models.FieldString
}

// ParseDate reports whether s reads as a calendar date with a year strictly
// between 1970 and 2100, and whether it carries a time of day.
func ParseDate(s string) (ok, withTime bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, false
	}
	if m := datePattern.FindStringSubmatch(s); m != nil {
		for _, l := range dateLayouts {
			if t, err := time.Parse(l.layout, s); err == nil {
				return plausible(t), m[4] != ""
			}
		}
		// Matches the shape but not a known layout, e.g. single digit month.
		t, err := time.Parse("2006-1-2", s[:len(m[1])+len(m[2])+len(m[3])+2])
		if err != nil {
			return false, false
		}
		return plausible(t), m[4] != ""
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return plausible(t), l.hasTime
		}
	}
	return false, false
}

func plausible(t time.Time) bool {
	return t.Year() > 1970 && t.Year() < 2100
}
