package parser

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/starford/folio/internal/models"
)

// Multiplicity forces the shape of a field on output.
type Multiplicity int

const (
	// MultiplicityAuto keeps whatever shape the value has.
	MultiplicityAuto Multiplicity = iota
	// MultiplicitySingle collapses lists to their first element.
	MultiplicitySingle
	// MultiplicityMulti promotes scalars to one-element lists.
	MultiplicityMulti
)

// ParseMultiplicity maps a config string ("single", "multi", "") to a Multiplicity.
func ParseMultiplicity(s string) (Multiplicity, error) {
	switch s {
	case "", "auto":
		return MultiplicityAuto, nil
	case "single":
		return MultiplicitySingle, nil
	case "multi", "multiple":
		return MultiplicityMulti, nil
	}
	return MultiplicityAuto, fmt.Errorf("parser: unknown multiplicity %q", s)
}

// Serialize renders doc as a fenced front matter block followed by the body.
// Null fields are omitted; empty strings and empty lists are kept.
func Serialize(doc models.Document, overrides map[string]Multiplicity) (string, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	if doc.Attributes != nil {
		for _, k := range doc.Attributes.Keys() {
			v, _ := doc.Attributes.Get(k)
			if m, ok := overrides[k]; ok {
				v = applyMultiplicity(v, m)
			}
			if v.IsNull() {
				continue
			}
			mapping.Content = append(mapping.Content, strNode(k), valueNode(v))
		}
	}

	var buf bytes.Buffer
	buf.WriteString(fence + "\n")
	if len(mapping.Content) > 0 {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(mapping); err != nil {
			return "", fmt.Errorf("parser: encode front matter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return "", fmt.Errorf("parser: encode front matter: %w", err)
		}
	}
	buf.WriteString(fence + "\n")
	buf.WriteString(doc.Body)
	return buf.String(), nil
}

func applyMultiplicity(v models.Value, m Multiplicity) models.Value {
	switch m {
	case MultiplicitySingle:
		if v.Kind() != models.KindList {
			return v
		}
		if items := v.Items(); len(items) > 0 {
			return items[0]
		}
		return models.String("")
	case MultiplicityMulti:
		switch {
		case v.IsNull(), v.Kind() == models.KindList:
			return v
		case v.IsEmpty():
			return models.List()
		default:
			return models.List(v)
		}
	}
	return v
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func valueNode(v models.Value) *yaml.Node {
	switch v.Kind() {
	case models.KindString:
		s := v.Str()
		if isPlainTimestamp(s) {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!timestamp", Value: s}
		}
		return strNode(s)
	case models.KindNumber:
		tag := "!!float"
		if v.Num() == float64(int64(v.Num())) {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: models.FormatNumber(v.Num())}
	case models.KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.Boolean())}
	case models.KindList:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		if len(v.Items()) == 0 {
			seq.Style = yaml.FlowStyle
		}
		for _, it := range v.Items() {
			seq.Content = append(seq.Content, valueNode(it))
		}
		return seq
	case models.KindMap:
		m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		if v.Map().Len() == 0 {
			m.Style = yaml.FlowStyle
		}
		for _, k := range v.Map().Keys() {
			child, _ := v.Map().Get(k)
			m.Content = append(m.Content, strNode(k), valueNode(child))
		}
		return m
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

// isPlainTimestamp reports whether s, written unquoted, reads back as a YAML
// timestamp with the same text. Such strings are emitted plain so dates are
// not wrapped in quotes on every save.
func isPlainTimestamp(s string) bool {
	if len(s) < 8 || s[0] < '0' || s[0] > '9' {
		return false
	}
	var n yaml.Node
	if err := yaml.Unmarshal([]byte(s), &n); err != nil || len(n.Content) == 0 {
		return false
	}
	c := n.Content[0]
	return c.Kind == yaml.ScalarNode && c.ShortTag() == "!!timestamp" && c.Value == s
}
