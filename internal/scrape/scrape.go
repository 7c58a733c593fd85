// Package scrape fetches web pages and builds link preview candidates.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	_ "golang.org/x/image/webp" // register decoder

	"github.com/hpungsan/trove/internal/blob"
	"github.com/hpungsan/trove/internal/card"
	"github.com/hpungsan/trove/internal/logger"
	"github.com/hpungsan/trove/internal/sanitize"
	"github.com/hpungsan/trove/internal/selector"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxPageBytes = 2 << 20
	defaultMaxImageSize = 5 << 20
	defaultUserAgent    = "trove-preview/1.0"
)

// Config controls fetch limits.
type Config struct {
	Timeout       time.Duration
	MaxPageBytes  int64
	MaxImageBytes int64
	UserAgent     string
}

// DefaultConfig returns the default scraper configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       defaultTimeout,
		MaxPageBytes:  defaultMaxPageBytes,
		MaxImageBytes: defaultMaxImageSize,
		UserAgent:     defaultUserAgent,
	}
}

// Scraper fetches a page, resolves its preview fields and stores the
// preview image. It satisfies ops.Scraper.
type Scraper struct {
	cfg    Config
	client *http.Client
	blobs  blob.Store
	logger logger.Logger
}

// New creates a Scraper. A nil blobs store disables image downloads; the
// preview then carries only the image URL.
func New(cfg Config, blobs blob.Store, log logger.Logger) *Scraper {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxPageBytes <= 0 {
		cfg.MaxPageBytes = def.MaxPageBytes
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = def.MaxImageBytes
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = def.UserAgent
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Scraper{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		blobs:  blobs,
		logger: log,
	}
}

// Scrape fetches pageURL and returns a preview candidate. Image download
// problems are logged and leave the candidate without a stored image;
// only page fetch and parse failures are errors.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (*card.LinkPreview, error) {
	target, ok := sanitize.URL("", pageURL, sanitize.Options{})
	if !ok {
		return nil, fmt.Errorf("invalid URL: %q", pageURL)
	}

	resp, err := s.get(ctx, target, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := mediaType(resp.Header.Get("Content-Type")); ct != "" && ct != "text/html" && ct != "application/xhtml+xml" {
		return nil, fmt.Errorf("unsupported content type: %s", ct)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.cfg.MaxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	base := target
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL.String()
	}
	preview := Build(doc, base)
	preview.FetchedAt = time.Now().UnixMilli()

	if preview.ImageURL != "" && s.blobs != nil && !strings.HasPrefix(preview.ImageURL, "data:") {
		if err := s.storeImage(ctx, preview); err != nil {
			s.logger.Warn("preview image skipped",
				logger.String("url", target),
				logger.String("image_url", preview.ImageURL),
				logger.Error(err),
			)
		}
	}
	return preview, nil
}

// Build resolves preview fields from a parsed page. Relative references
// resolve against base, the final URL after redirects.
func Build(doc *goquery.Document, base string) *card.LinkPreview {
	m := selector.ToMap(selector.FromDocument(doc, selector.PreviewSelectors()))

	preview := &card.LinkPreview{Status: card.PreviewSuccess, URL: base}
	if v, ok := m.FirstFromSources(selector.CanonicalSources); ok {
		if u, ok := sanitize.URL(base, v, sanitize.Options{}); ok {
			preview.URL = u
		}
	}
	if v, ok := m.FirstFromSources(selector.TitleSources); ok {
		preview.Title, _ = sanitize.Text(v, 0)
	}
	if v, ok := m.FirstFromSources(selector.DescriptionSources); ok {
		preview.Description, _ = sanitize.Text(v, 0)
	}
	if v, ok := m.FirstFromSources(selector.SiteNameSources); ok {
		preview.SiteName, _ = sanitize.Text(v, 0)
	}
	if preview.SiteName == "" {
		preview.SiteName = hostName(base)
	}
	if v, ok := m.FirstFromSources(selector.ImageSources); ok {
		preview.ImageURL, _ = sanitize.ImageURL(base, v)
	}
	if v, ok := m.FirstFromSources(selector.FaviconSources); ok {
		preview.FaviconURL, _ = sanitize.ImageURL(base, v)
	}
	if preview.FaviconURL == "" {
		preview.FaviconURL, _ = sanitize.ImageURL(base, "/favicon.ico")
	}
	return preview
}

// storeImage downloads the preview image, reads its dimensions and puts it
// in the blob store.
func (s *Scraper) storeImage(ctx context.Context, preview *card.LinkPreview) error {
	data, err := s.download(ctx, preview.ImageURL)
	if err != nil {
		return err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	id, err := s.blobs.Put(ctx, data, "image/"+format)
	if err != nil {
		return fmt.Errorf("failed to store image: %w", err)
	}
	preview.ImageStorageID = id
	preview.ImageWidth = cfg.Width
	preview.ImageHeight = cfg.Height
	preview.ImageUpdatedAt = time.Now().UnixMilli()
	return nil
}

// download fetches imageURL with the configured size limit.
func (s *Scraper) download(ctx context.Context, imageURL string) ([]byte, error) {
	resp, err := s.get(ctx, imageURL, "image/*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if resp.ContentLength > s.cfg.MaxImageBytes {
		return nil, fmt.Errorf("image too large: %d bytes (max: %d)", resp.ContentLength, s.cfg.MaxImageBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		return nil, fmt.Errorf("image too large: exceeds %d bytes", s.cfg.MaxImageBytes)
	}
	return data, nil
}

func (s *Scraper) get(ctx context.Context, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}
	return resp, nil
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mt)
}

func hostName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
