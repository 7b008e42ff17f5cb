package schema

import (
	"strings"
	"testing"

	"github.com/starford/folio/internal/models"
)

func doc(kv ...any) models.Document {
	attrs := models.NewAttributes()
	for i := 0; i < len(kv); i += 2 {
		attrs.Set(kv[i].(string), kv[i+1].(models.Value))
	}
	return models.Document{Attributes: attrs}
}

func keys(fields []models.Field) string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Key
	}
	return strings.Join(out, ",")
}

func TestAnalyzeOrdering(t *testing.T) {
	docs := []models.Document{
		doc("zeta", models.String("z"), "tags", models.Strings("a"), "title", models.String("A")),
		doc("alpha", models.Number(1), "date", models.String("2024-01-02"), "author", models.String("me")),
		doc("description", models.String(""), "categories", models.Strings(), "mid", models.Bool(true)),
	}
	got := keys(Analyze(docs))
	want := "title,date,author,description,categories,tags,alpha,mid,zeta"
	if got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestAnalyzeTypes(t *testing.T) {
	nested := models.NewAttributes()
	nested.Set("k", models.String("v"))
	docs := []models.Document{
		doc("empty", models.String(""), "weight", models.String("")),
		doc(
			"weight", models.Number(3),
			"draft", models.Bool(false),
			"tags", models.Strings("go"),
			"seo", models.MapValue(nested),
			"date", models.String("2023-05-06"),
			"updated", models.String("2023-05-06T10:00:00Z"),
			"label", models.String("hello"),
			"ancient", models.String("1901-01-01"),
		),
		doc("weight", models.String("heavy")),
	}
	want := map[string]models.FieldType{
		"empty":   models.FieldString,
		"weight":  models.FieldNumber,
		"draft":   models.FieldBoolean,
		"tags":    models.FieldArray,
		"seo":     models.FieldObject,
		"date":    models.FieldDate,
		"updated": models.FieldDateTime,
		"label":   models.FieldString,
		"ancient": models.FieldString,
	}
	for _, f := range Analyze(docs) {
		if want[f.Key] != f.Type {
			t.Errorf("%s: type = %s, want %s", f.Key, f.Type, want[f.Key])
		}
	}
}

func TestAnalyzeSamplesCappedAndDistinct(t *testing.T) {
	var docs []models.Document
	for i := 0; i < 15; i++ {
		docs = append(docs, doc("n", models.Number(float64(i%12))))
	}
	docs = append(docs, doc("tags", models.Strings("a", "b", "a")))
	fields := Analyze(docs)
	for _, f := range fields {
		switch f.Key {
		case "n":
			if len(f.SampleValues) != MaxSamples {
				t.Errorf("n samples = %v", f.SampleValues)
			}
			if f.SampleValues[0] != "0" || f.SampleValues[9] != "9" {
				t.Errorf("n samples order = %v", f.SampleValues)
			}
		case "tags":
			if strings.Join(f.SampleValues, ",") != "a,b" {
				t.Errorf("tags samples = %v", f.SampleValues)
			}
		}
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	docs := []models.Document{
		doc("b", models.String("1"), "a", models.String("2"), "c", models.String("3")),
		doc("d", models.String("4"), "title", models.String("t")),
	}
	first := keys(Analyze(docs))
	for i := 0; i < 10; i++ {
		if got := keys(Analyze(docs)); got != first {
			t.Fatalf("run %d: %s != %s", i, got, first)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in       string
		ok, time bool
	}{
		{"2024-01-15", true, false},
		{"2024-1-5", true, false},
		{"2024-01-15T10:30:00Z", true, true},
		{"2024-01-15 10:30", true, true},
		{"Jan 2, 2021", true, false},
		{"1970-01-01", false, false},
		{"2100-01-01", false, false},
		{"2024-13-40", false, false},
		{"not a date", false, false},
		{"2024", false, false},
	}
	for _, tt := range tests {
		ok, withTime := ParseDate(tt.in)
		if ok != tt.ok || (ok && withTime != tt.time) {
			t.Errorf("ParseDate(%q) = %v,%v want %v,%v", tt.in, ok, withTime, tt.ok, tt.time)
		}
	}
}
