package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Source lists for link preview fields, highest priority first.
var (
	TitleSources = []Source{
		{Selector: `meta[property="og:title"]`, Attribute: "content"},
		{Selector: `meta[name="twitter:title"]`, Attribute: "content"},
		{Selector: "title", Attribute: AttributeText},
		{Selector: "h1", Attribute: AttributeText},
	}

	DescriptionSources = []Source{
		{Selector: `meta[property="og:description"]`, Attribute: "content"},
		{Selector: `meta[name="twitter:description"]`, Attribute: "content"},
		{Selector: `meta[name="description"]`, Attribute: "content"},
	}

	ImageSources = []Source{
		{Selector: `meta[property="og:image:secure_url"]`, Attribute: "content"},
		{Selector: `meta[property="og:image"]`, Attribute: "content"},
		{Selector: `meta[name="twitter:image"]`, Attribute: "content"},
		{Selector: `meta[name="twitter:image:src"]`, Attribute: "content"},
		{Selector: `link[rel="image_src"]`, Attribute: "href"},
	}

	SiteNameSources = []Source{
		{Selector: `meta[property="og:site_name"]`, Attribute: "content"},
		{Selector: `meta[name="application-name"]`, Attribute: "content"},
	}

	CanonicalSources = []Source{
		{Selector: `meta[property="og:url"]`, Attribute: "content"},
		{Selector: `link[rel="canonical"]`, Attribute: "href"},
	}

	FaviconSources = []Source{
		{Selector: `link[rel="icon"]`, Attribute: "href"},
		{Selector: `link[rel="shortcut icon"]`, Attribute: "href"},
		{Selector: `link[rel="apple-touch-icon"]`, Attribute: "href"},
	}
)

// PreviewSelectors returns every selector referenced by the preview source lists.
func PreviewSelectors() []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]Source{
		TitleSources, DescriptionSources, ImageSources,
		SiteNameSources, CanonicalSources, FaviconSources,
	} {
		for _, src := range list {
			if !seen[src.Selector] {
				seen[src.Selector] = true
				out = append(out, src.Selector)
			}
		}
	}
	return out
}

// FromDocument runs each selector against doc and returns the raw results in
// the shape a scraper hands to ToMap. Selectors with no matches are included
// with an empty item list.
func FromDocument(doc *goquery.Document, selectors []string) []Result {
	results := make([]Result, 0, len(selectors))
	for _, sel := range selectors {
		r := Result{Selector: sel, Items: []Item{}}
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			item := Item{Text: strings.TrimSpace(s.Text())}
			if html, err := s.Html(); err == nil {
				item.HTML = html
			}
			if node := s.Get(0); node != nil {
				for _, a := range node.Attr {
					item.Attributes = append(item.Attributes, Attribute{Name: a.Key, Value: a.Val})
				}
			}
			r.Items = append(r.Items, item)
		})
		results = append(results, r)
	}
	return results
}
