package card

import "encoding/json"

// LinkPreviewStatus is the outcome of the last scrape of a link.
type LinkPreviewStatus string

const (
	PreviewSuccess LinkPreviewStatus = "success"
	PreviewError   LinkPreviewStatus = "error"
)

// LinkPreview is scraped title/description/image/screenshot data for a linked page.
type LinkPreview struct {
	Status      LinkPreviewStatus `json:"status,omitempty"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	URL         string            `json:"url,omitempty"`
	SiteName    string            `json:"site_name,omitempty"`
	FaviconURL  string            `json:"favicon_url,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Error       string            `json:"error,omitempty"`
	FetchedAt   int64             `json:"fetched_at,omitempty"`

	ImageStorageID string `json:"image_storage_id,omitempty"`
	ImageWidth     int    `json:"image_width,omitempty"`
	ImageHeight    int    `json:"image_height,omitempty"`
	ImageUpdatedAt int64  `json:"image_updated_at,omitempty"`

	ScreenshotStorageID string `json:"screenshot_storage_id,omitempty"`
	ScreenshotWidth     int    `json:"screenshot_width,omitempty"`
	ScreenshotHeight    int    `json:"screenshot_height,omitempty"`
	ScreenshotUpdatedAt int64  `json:"screenshot_updated_at,omitempty"`

	// Extra holds keys other writers put under link_preview.
	Extra map[string]json.RawMessage `json:"-"`
}

// linkPreviewFields are the keys LinkPreview owns.
var linkPreviewFields = map[string]bool{
	"status": true, "title": true, "description": true, "url": true,
	"site_name": true, "favicon_url": true, "image_url": true, "error": true,
	"fetched_at": true,
	"image_storage_id": true, "image_width": true, "image_height": true, "image_updated_at": true,
	"screenshot_storage_id": true, "screenshot_width": true, "screenshot_height": true,
	"screenshot_updated_at": true,
}

type linkPreviewJSON LinkPreview

// MarshalJSON writes the known fields over the preserved extras.
func (p LinkPreview) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(linkPreviewJSON(p))
	if err != nil || len(p.Extra) == 0 {
		return known, err
	}
	out := make(map[string]json.RawMessage, len(p.Extra))
	for k, v := range p.Extra {
		out[k] = v
	}
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON fills the known fields and keeps the rest in Extra.
func (p *LinkPreview) UnmarshalJSON(data []byte) error {
	var known linkPreviewJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = LinkPreview(known)
	for k, v := range raw {
		if linkPreviewFields[k] {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
	return nil
}

const (
	linkPreviewKey  = "link_preview"
	linkCategoryKey = "link_category"
)

// Metadata is the structured bag attached to a card. Fields written by other
// workers live in Extra and are preserved byte-for-byte.
type Metadata struct {
	LinkPreview  *LinkPreview
	LinkCategory *string

	Extra map[string]json.RawMessage
}

// PreviewStatus returns the link preview status, or "" when there is no preview.
func (m *Metadata) PreviewStatus() LinkPreviewStatus {
	if m.LinkPreview == nil {
		return ""
	}
	return m.LinkPreview.Status
}

// MarshalJSON writes known fields alongside the preserved bag.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.Extra)+2)
	for k, v := range m.Extra {
		out[k] = v
	}
	if m.LinkPreview != nil {
		b, err := json.Marshal(m.LinkPreview)
		if err != nil {
			return nil, err
		}
		out[linkPreviewKey] = b
	}
	if m.LinkCategory != nil {
		b, err := json.Marshal(*m.LinkCategory)
		if err != nil {
			return nil, err
		}
		out[linkCategoryKey] = b
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits known fields out of the bag and keeps the rest raw.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		switch k {
		case linkPreviewKey:
			if string(v) == "null" {
				continue
			}
			var lp LinkPreview
			if err := json.Unmarshal(v, &lp); err != nil {
				return err
			}
			m.LinkPreview = &lp
		case linkCategoryKey:
			if string(v) == "null" {
				continue
			}
			var cat string
			if err := json.Unmarshal(v, &cat); err != nil {
				return err
			}
			m.LinkCategory = &cat
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]json.RawMessage)
			}
			m.Extra[k] = v
		}
	}
	return nil
}
