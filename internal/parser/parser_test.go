package parser

import (
	"strings"
	"testing"

	"github.com/starford/folio/internal/models"
)

func strs(t *testing.T, a *models.Attributes, key string) []string {
	t.Helper()
	v, ok := a.Get(key)
	if !ok {
		t.Fatalf("%s missing", key)
	}
	if v.Kind() != models.KindList {
		t.Fatalf("%s kind = %v, want list", key, v.Kind())
	}
	return v.Strings()
}

func TestNormalize_NullsListsAndBody(t *testing.T) {
	raw := "---\ntitle: My Post\nauthor: null\ncategories: tech\ntags:\n  - a\n  - b\n---\nHello world"
	doc := Normalize(raw, "/posts/my-post.md", "my-post.md")

	if got := doc.Attributes.GetString("author"); got != "" {
		t.Errorf("author = %q, want empty", got)
	}
	if v, _ := doc.Attributes.Get("author"); v.Kind() != models.KindString {
		t.Errorf("author kind = %v, want string", v.Kind())
	}
	if got := strs(t, doc.Attributes, "categories"); len(got) != 1 || got[0] != "tech" {
		t.Errorf("categories = %v, want [tech]", got)
	}
	if got := strs(t, doc.Attributes, "tags"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("tags = %v, want [a b]", got)
	}
	if doc.Body != "Hello world" {
		t.Errorf("body = %q", doc.Body)
	}
	if doc.Title() != "My Post" {
		t.Errorf("title = %q", doc.Title())
	}
	if doc.RawText != raw {
		t.Error("raw text must be the untouched input")
	}
}

func TestNormalize_MalformedFallsBack(t *testing.T) {
	raw := "---\n: :\n---\nBody"
	doc := Normalize(raw, "invalid.md", "invalid.md")

	if doc.Title() != "invalid" {
		t.Errorf("title = %q, want invalid", doc.Title())
	}
	if doc.Attributes.Has("author") {
		t.Error("fallback must not invent author")
	}
	if doc.Body != "Body" {
		t.Errorf("body = %q, want Body", doc.Body)
	}
	if doc.RawText != raw {
		t.Error("raw text must be the untouched input")
	}
}

func TestNormalize_MalformedCases(t *testing.T) {
	cases := map[string]string{
		"bad yaml":     "---\ntitle: [unclosed\n---\nx",
		"unclosed":     "---\ntitle: x\nno closing fence",
		"scalar block": "---\njust a sentence\n---\nx",
		"list block":   "---\n- a\n- b\n---\nx",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			doc := Normalize(raw, "dir/broken.md", "broken.md")
			if doc.Title() != "broken" {
				t.Errorf("title = %q", doc.Title())
			}
			if doc.Attributes.Len() != 1 {
				t.Errorf("attributes = %v, want title only", doc.Attributes.Keys())
			}
		})
	}
}

func TestNormalize_NoFrontMatterGetsDefaults(t *testing.T) {
	doc := Normalize("# Heading\n\ntext\n", "notes/plain.md", "")
	if doc.Name != "plain.md" {
		t.Errorf("name = %q", doc.Name)
	}
	want := []string{"title", "author", "date", "description", "categories", "tags"}
	if got := doc.Attributes.Keys(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if doc.Title() != "plain" {
		t.Errorf("title = %q", doc.Title())
	}
	if doc.Body != "# Heading\n\ntext" {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestNormalize_CategoryFolding(t *testing.T) {
	doc := Normalize("---\ncategory: go\n---\n", "a.md", "a.md")
	if got := strs(t, doc.Attributes, "categories"); len(got) != 1 || got[0] != "go" {
		t.Errorf("categories = %v, want [go]", got)
	}
	if !doc.Attributes.Has("category") {
		t.Error("category must be preserved")
	}

	doc = Normalize("---\ncategory: go\ncategories: [rust]\n---\n", "a.md", "a.md")
	if got := strs(t, doc.Attributes, "categories"); len(got) != 1 || got[0] != "rust" {
		t.Errorf("explicit categories must win, got %v", got)
	}
}

func TestNormalize_PreservesCustomFieldsInOrder(t *testing.T) {
	raw := "---\nweight: 3\ndraft: true\ntitle: T\nseo:\n  slug: t\n  index: false\nupdated: 2024-03-01\n---\nb"
	doc := Normalize(raw, "t.md", "t.md")

	keys := doc.Attributes.Keys()
	if keys[0] != "weight" || keys[1] != "draft" || keys[2] != "title" || keys[3] != "seo" || keys[4] != "updated" {
		t.Errorf("declared order lost: %v", keys)
	}
	if v, _ := doc.Attributes.Get("weight"); v.Kind() != models.KindNumber || v.Num() != 3 {
		t.Errorf("weight = %+v", v)
	}
	if v, _ := doc.Attributes.Get("draft"); v.Kind() != models.KindBool || !v.Boolean() {
		t.Errorf("draft = %+v", v)
	}
	if v, _ := doc.Attributes.Get("seo"); v.Kind() != models.KindMap || v.Map().GetString("slug") != "t" {
		t.Errorf("seo = %+v", v)
	}
	if got := doc.Attributes.GetString("updated"); got != "2024-03-01" {
		t.Errorf("updated = %q, want ISO text", got)
	}
}

func TestNormalize_EmptyTitleFallsBackToFilename(t *testing.T) {
	doc := Normalize("---\ntitle:\n---\n", "x/hello.world.md", "hello.world.md")
	if doc.Title() != "hello.world" {
		t.Errorf("title = %q", doc.Title())
	}
}

func TestSerialize_OmitsOnlyNull(t *testing.T) {
	a := models.NewAttributes()
	a.Set("title", models.String("X"))
	a.Set("description", models.String(""))
	a.Set("tags", models.List())
	a.Set("author", models.Null())

	out, err := Serialize(models.Document{Attributes: a, Body: "body\n"}, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if strings.Contains(out, "author") {
		t.Errorf("author must be omitted:\n%s", out)
	}
	for _, want := range []string{"title: X\n", "description: \"\"\n", "tags: []\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if !strings.HasPrefix(out, "---\n") || !strings.HasSuffix(out, "---\nbody\n") {
		t.Errorf("bad framing:\n%s", out)
	}
}

func TestSerialize_RoundTrip(t *testing.T) {
	raw := "---\ntitle: Round\nauthor: Ann\ndate: 2024-01-15\ndescription: \"\"\ncategories:\n  - a\ntags: []\nweight: 2.5\nflag: false\nextra:\n  nested: yes please\n---\nText body"
	first := Normalize(raw, "r.md", "r.md")

	out, err := Serialize(first, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if !strings.Contains(out, "date: 2024-01-15\n") {
		t.Errorf("date should stay unquoted:\n%s", out)
	}
	second := Normalize(out, "r.md", "r.md")
	if !first.Attributes.Equal(second.Attributes) {
		t.Errorf("attributes changed across round trip:\n%s", out)
	}
	if second.Body != first.Body {
		t.Errorf("body = %q, want %q", second.Body, first.Body)
	}
}

func TestSerialize_StringsThatLookTyped(t *testing.T) {
	a := models.NewAttributes()
	a.Set("title", models.String("true"))
	a.Set("code", models.String("007"))
	out, err := Serialize(models.Document{Attributes: a}, nil)
	if err != nil {
		t.Fatal(err)
	}
	back := Normalize(out, "s.md", "s.md")
	if v, _ := back.Attributes.Get("title"); v.Kind() != models.KindString || v.Str() != "true" {
		t.Errorf("title = %+v", v)
	}
	if v, _ := back.Attributes.Get("code"); v.Kind() != models.KindString || v.Str() != "007" {
		t.Errorf("code = %+v", v)
	}
}

func TestSerialize_MultiplicityOverrides(t *testing.T) {
	a := models.NewAttributes()
	a.Set("author", models.Strings("ann", "bob"))
	a.Set("series", models.String("go"))
	a.Set("empty", models.Strings())
	a.Set("blank", models.String(""))
	overrides := map[string]Multiplicity{
		"author": MultiplicitySingle,
		"series": MultiplicityMulti,
		"empty":  MultiplicitySingle,
		"blank":  MultiplicityMulti,
	}
	out, err := Serialize(models.Document{Attributes: a}, overrides)
	if err != nil {
		t.Fatal(err)
	}
	back := Normalize(out, "m.md", "m.md")
	if got := back.Attributes.GetString("author"); got != "ann" {
		t.Errorf("author = %q, want ann", got)
	}
	if got := strs(t, back.Attributes, "series"); len(got) != 1 || got[0] != "go" {
		t.Errorf("series = %v", got)
	}
	if got := back.Attributes.GetString("empty"); got != "" {
		t.Errorf("empty = %q", got)
	}
	if got := strs(t, back.Attributes, "blank"); len(got) != 0 {
		t.Errorf("blank = %v", got)
	}
}

func TestMerge_KeepsUntouchedKeys(t *testing.T) {
	doc := Normalize("---\ntitle: A\ncustom: keep\n---\nbody", "a.md", "a.md")
	updates := models.NewAttributes()
	updates.Set("title", models.String("B"))
	updates.Set("fresh", models.Bool(true))

	merged := Merge(doc, updates)
	if merged.Title() != "B" {
		t.Errorf("title = %q", merged.Title())
	}
	if merged.Attributes.GetString("custom") != "keep" {
		t.Error("custom field dropped")
	}
	if !merged.Attributes.Has("fresh") {
		t.Error("new key missing")
	}
	if doc.Title() != "A" {
		t.Error("merge must not mutate the input document")
	}
	if merged.Attributes.Keys()[0] != "title" {
		t.Errorf("order changed: %v", merged.Attributes.Keys())
	}
}

func TestParseMultiplicity(t *testing.T) {
	if m, err := ParseMultiplicity("single"); err != nil || m != MultiplicitySingle {
		t.Errorf("single = %v, %v", m, err)
	}
	if _, err := ParseMultiplicity("triple"); err == nil {
		t.Error("expected error for unknown value")
	}
}
