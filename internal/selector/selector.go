// Package selector resolves logical page fields from raw per-selector scrape
// results, trying an ordered list of selector/attribute sources.
package selector

import "strings"

// AttributeText selects an item's text rather than an HTML attribute.
const AttributeText = "text"

// Attribute is a single name/value pair on a matched element.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Item is one element matched by a selector.
type Item struct {
	Text       string      `json:"text,omitempty"`
	HTML       string      `json:"html,omitempty"`
	Attributes []Attribute `json:"attributes,omitempty"`
}

// Result is the scrape output for one selector.
type Result struct {
	Selector string `json:"selector"`
	Items    []Item `json:"items"`
}

// Source names where to look for a value: a selector and either
// AttributeText or an attribute name.
type Source struct {
	Selector  string
	Attribute string
}

// Map indexes scrape results by selector.
type Map map[string][]Item

// ToMap indexes results by selector. Nil or empty input gives an empty map.
// If a selector appears twice, its items are concatenated in order.
func ToMap(results []Result) Map {
	m := make(Map, len(results))
	for _, r := range results {
		m[r.Selector] = append(m[r.Selector], r.Items...)
	}
	return m
}

// FindAttributeValue looks up an attribute by case-insensitive name.
// A missing attribute or one that is empty after trimming is not found.
func FindAttributeValue(item Item, name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, attr := range item.Attributes {
		if !strings.EqualFold(strings.TrimSpace(attr.Name), name) {
			continue
		}
		v := strings.TrimSpace(attr.Value)
		if v == "" {
			return "", false
		}
		return v, true
	}
	return "", false
}

// Value resolves one source. For AttributeText it returns the first
// non-empty trimmed text among the matched items; for any other attribute it
// reads that attribute from the first matched item.
func (m Map) Value(src Source) (string, bool) {
	items := m[src.Selector]
	if len(items) == 0 {
		return "", false
	}
	if src.Attribute == AttributeText {
		for _, item := range items {
			if t := strings.TrimSpace(item.Text); t != "" {
				return t, true
			}
		}
		return "", false
	}
	return FindAttributeValue(items[0], src.Attribute)
}

// FirstFromSources returns the first defined, trimmed, non-empty value
// among sources, in order.
func (m Map) FirstFromSources(sources []Source) (string, bool) {
	for _, src := range sources {
		if v, ok := m.Value(src); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}
