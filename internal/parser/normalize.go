// Package parser turns raw Markdown files into normalized documents and back.
package parser

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/folio/internal/models"
)

const fence = "---"

var errMalformed = errors.New("parser: malformed front matter")

// Normalize parses raw into a Document. It never fails: a malformed front
// matter block yields a document carrying only the filename-derived title.
func Normalize(raw, filePath, filename string) models.Document {
	if filename == "" {
		filename = path.Base(filePath)
	}
	doc := models.Document{
		Name:    filename,
		Path:    filePath,
		RawText: raw,
	}

	text := strings.TrimSpace(raw)
	attrs, body, err := parse(text)
	if err != nil {
		fallback := models.NewAttributes()
		fallback.Set(models.KeyTitle, models.String(FileTitle(filename)))
		doc.Attributes = fallback
		doc.Body = stripSections(text)
		return doc
	}

	applyDefaults(attrs, filename)
	doc.Attributes = attrs
	doc.Body = body
	return doc
}

// FileTitle returns filename without its extension.
func FileTitle(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// SplitFrontMatter separates the fenced block from the body. hasBlock is
// false when text does not open with a fence line; closed is false when the
// opening fence is never matched.
func SplitFrontMatter(text string) (block, body string, hasBlock, closed bool) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || !isFence(lines[0]) {
		return "", text, false, false
	}
	for i := 1; i < len(lines); i++ {
		if isFence(lines[i]) {
			block = strings.Join(lines[1:i], "\n")
			body = strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\r\n")
			return block, body, true, true
		}
	}
	return "", text, true, false
}

func isFence(line string) bool {
	return strings.TrimRight(line, " \t\r") == fence
}

func parse(text string) (*models.Attributes, string, error) {
	block, body, hasBlock, closed := SplitFrontMatter(text)
	if !hasBlock {
		return models.NewAttributes(), text, nil
	}
	if !closed {
		return nil, "", errMalformed
	}
	if strings.TrimSpace(block) == "" {
		return models.NewAttributes(), body, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(block), &root); err != nil {
		return nil, "", fmt.Errorf("%w: %v", errMalformed, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, "", errMalformed
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, "", errMalformed
	}
	attrs, err := convertMapping(top, true)
	if err != nil {
		return nil, "", err
	}
	return attrs, body, nil
}

func convertMapping(n *yaml.Node, strictKeys bool) (*models.Attributes, error) {
	out := models.NewAttributes()
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: non-scalar key at line %d", errMalformed, k.Line)
		}
		if strictKeys && (k.ShortTag() == "!!null" || strings.TrimSpace(k.Value) == "") {
			return nil, fmt.Errorf("%w: empty key at line %d", errMalformed, k.Line)
		}
		val, err := convertNode(v)
		if err != nil {
			return nil, err
		}
		out.Set(k.Value, val)
	}
	return out, nil
}

func convertNode(n *yaml.Node) (models.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		if n.Alias == nil {
			return models.Null(), nil
		}
		return convertNode(n.Alias)
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return models.Null(), nil
		}
		return convertNode(n.Content[0])
	case yaml.SequenceNode:
		items := make([]models.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := convertNode(c)
			if err != nil {
				return models.Value{}, err
			}
			items = append(items, v)
		}
		return models.List(items...), nil
	case yaml.MappingNode:
		m, err := convertMapping(n, false)
		if err != nil {
			return models.Value{}, err
		}
		return models.MapValue(m), nil
	case yaml.ScalarNode:
		return convertScalar(n)
	}
	return models.Null(), nil
}

func convertScalar(n *yaml.Node) (models.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return models.Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return models.String(n.Value), nil
		}
		return models.Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return models.String(n.Value), nil
		}
		return models.Number(f), nil
	default:
		// Timestamps stay in their ISO text form.
		return models.String(n.Value), nil
	}
}

// applyDefaults fills the standard keys. Declared keys keep their position;
// missing standard keys are appended in a fixed order.
func applyDefaults(a *models.Attributes, filename string) {
	for _, k := range a.Keys() {
		if v, _ := a.Get(k); v.IsNull() {
			a.Set(k, models.String(""))
		}
	}

	if v, ok := a.Get(models.KeyTitle); !ok || v.IsEmpty() {
		a.Set(models.KeyTitle, models.String(FileTitle(filename)))
	}
	for _, k := range []string{models.KeyAuthor, models.KeyDate, models.KeyDescription} {
		if !a.Has(k) {
			a.Set(k, models.String(""))
		}
	}

	if !a.Has(models.KeyCategories) {
		if cat, ok := a.Get(models.KeyCategory); ok {
			a.Set(models.KeyCategories, asList(cat))
		}
	}
	for _, k := range []string{models.KeyCategories, models.KeyTags} {
		v, _ := a.Get(k)
		a.Set(k, asList(v))
	}
}

func asList(v models.Value) models.Value {
	switch {
	case v.Kind() == models.KindList:
		return v
	case v.IsEmpty():
		return models.List()
	default:
		return models.List(v)
	}
}

// stripSections drops everything up to the second fence marker.
func stripSections(text string) string {
	parts := strings.Split(text, fence)
	if len(parts) < 3 {
		return text
	}
	return strings.TrimSpace(strings.Join(parts[2:], fence))
}
