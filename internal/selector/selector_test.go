package selector

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMap_Empty(t *testing.T) {
	m := ToMap(nil)
	require.NotNil(t, m)
	assert.Empty(t, m)

	m = ToMap([]Result{})
	assert.Empty(t, m)
}

func TestToMap_IndexesBySelector(t *testing.T) {
	m := ToMap([]Result{
		{Selector: "title", Items: []Item{{Text: "A"}}},
		{Selector: "h1", Items: []Item{{Text: "B"}, {Text: "C"}}},
		{Selector: "title", Items: []Item{{Text: "D"}}},
	})
	assert.Len(t, m, 2)
	assert.Len(t, m["h1"], 2)
	assert.Equal(t, []Item{{Text: "A"}, {Text: "D"}}, m["title"])
}

func TestFindAttributeValue(t *testing.T) {
	item := Item{Attributes: []Attribute{
		{Name: "Content", Value: "  Hello  "},
		{Name: "property", Value: "   "},
	}}

	tests := []struct {
		name   string
		attr   string
		want   string
		wantOK bool
	}{
		{"case insensitive and trimmed", "content", "Hello", true},
		{"name trimmed", " CONTENT ", "Hello", true},
		{"empty after trim", "property", "", false},
		{"missing", "href", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindAttributeValue(item, tt.attr)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapValue(t *testing.T) {
	m := ToMap([]Result{
		{Selector: "h1", Items: []Item{{Text: "  "}, {Text: " Second heading "}}},
		{Selector: "h2", Items: []Item{{Text: ""}, {Text: "\n"}}},
		{Selector: "meta", Items: []Item{
			{Attributes: []Attribute{{Name: "content", Value: "first"}}},
			{Attributes: []Attribute{{Name: "content", Value: "second"}}},
		}},
		{Selector: "empty", Items: nil},
	})

	v, ok := m.Value(Source{Selector: "h1", Attribute: AttributeText})
	assert.True(t, ok)
	assert.Equal(t, "Second heading", v)

	_, ok = m.Value(Source{Selector: "h2", Attribute: AttributeText})
	assert.False(t, ok, "all-empty text is undefined")

	v, ok = m.Value(Source{Selector: "meta", Attribute: "content"})
	assert.True(t, ok)
	assert.Equal(t, "first", v, "attributes come from the first matched item")

	_, ok = m.Value(Source{Selector: "empty", Attribute: AttributeText})
	assert.False(t, ok)

	_, ok = m.Value(Source{Selector: "missing", Attribute: "content"})
	assert.False(t, ok)
}

func TestFirstFromSources_PriorityOrder(t *testing.T) {
	m := ToMap([]Result{
		{Selector: `meta[property="og:title"]`, Items: []Item{{Attributes: []Attribute{{Name: "content", Value: " "}}}}},
		{Selector: `meta[name="twitter:title"]`, Items: []Item{{Attributes: []Attribute{{Name: "content", Value: "Twitter Title"}}}}},
		{Selector: "title", Items: []Item{{Text: "Doc Title"}}},
	})

	v, ok := m.FirstFromSources(TitleSources)
	require.True(t, ok)
	assert.Equal(t, "Twitter Title", v, "blank og:title falls through to twitter:title")

	delete(m, `meta[name="twitter:title"]`)
	v, ok = m.FirstFromSources(TitleSources)
	require.True(t, ok)
	assert.Equal(t, "Doc Title", v)

	_, ok = ToMap(nil).FirstFromSources(TitleSources)
	assert.False(t, ok)
}

const samplePage = `<!doctype html>
<html><head>
<title> Fallback Title </title>
<meta property="og:title" content="OG Title">
<meta property="og:image" content="/img/cover.png">
<meta name="description" content="Plain description">
<link rel="icon" href="/favicon.ico">
</head><body><h1>Heading</h1><h1>Second</h1></body></html>`

func TestFromDocument(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(samplePage))
	require.NoError(t, err)

	results := FromDocument(doc, []string{"title", `meta[property="og:title"]`, "h1", `meta[name="twitter:title"]`})
	require.Len(t, results, 4)

	m := ToMap(results)
	assert.Len(t, m["h1"], 2)
	assert.Empty(t, m[`meta[name="twitter:title"]`])

	title, ok := m.FirstFromSources(TitleSources)
	require.True(t, ok)
	assert.Equal(t, "OG Title", title)

	text, ok := m.Value(Source{Selector: "title", Attribute: AttributeText})
	require.True(t, ok)
	assert.Equal(t, "Fallback Title", text)
}

func TestPreviewSelectors_Deduplicated(t *testing.T) {
	sels := PreviewSelectors()
	seen := make(map[string]bool)
	for _, s := range sels {
		assert.False(t, seen[s], "duplicate selector %q", s)
		seen[s] = true
	}
	assert.Contains(t, sels, `meta[property="og:image"]`)
	assert.Contains(t, sels, "title")
}
