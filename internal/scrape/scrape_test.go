package scrape

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/trove/internal/blob"
	"github.com/hpungsan/trove/internal/card"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

const articlePage = `<!doctype html>
<html><head>
<title>Doc Title</title>
<meta property="og:title" content="  Open   Graph Title ">
<meta name="description" content="A page about things">
<meta property="og:image" content="/img/cover.png">
<link rel="canonical" href="/articles/1">
<link rel="icon" href="/static/icon.png">
<meta property="og:site_name" content="Example">
</head><body><h1>Heading</h1></body></html>`

func newSite(t *testing.T, cover []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/post", http.StatusFound)
	})
	mux.HandleFunc("/img/cover.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(cover)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/file.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScrape_BuildsPreviewAndStoresImage(t *testing.T) {
	srv := newSite(t, pngBytes(t, 3, 2))
	blobs := blob.NewMemoryStore()
	s := New(Config{UserAgent: "test-agent"}, blobs, nil)

	p, err := s.Scrape(context.Background(), srv.URL+"/post")
	require.NoError(t, err)

	assert.Equal(t, card.PreviewSuccess, p.Status)
	assert.Equal(t, "Open Graph Title", p.Title)
	assert.Equal(t, "A page about things", p.Description)
	assert.Equal(t, "Example", p.SiteName)
	assert.Equal(t, srv.URL+"/articles/1", p.URL)
	assert.Equal(t, srv.URL+"/img/cover.png", p.ImageURL)
	assert.Equal(t, srv.URL+"/static/icon.png", p.FaviconURL)
	assert.NotZero(t, p.FetchedAt)

	require.NotEmpty(t, p.ImageStorageID)
	assert.True(t, strings.HasSuffix(p.ImageStorageID, ".png"))
	assert.True(t, blobs.Has(p.ImageStorageID))
	assert.Equal(t, 3, p.ImageWidth)
	assert.Equal(t, 2, p.ImageHeight)
}

func TestScrape_ResolvesAgainstFinalURL(t *testing.T) {
	srv := newSite(t, pngBytes(t, 1, 1))
	s := New(Config{UserAgent: "test-agent"}, nil, nil)

	p, err := s.Scrape(context.Background(), srv.URL+"/redirect")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/img/cover.png", p.ImageURL)
	assert.Empty(t, p.ImageStorageID, "no blob store, no download")
}

func TestScrape_OversizedImageKeepsURLOnly(t *testing.T) {
	srv := newSite(t, pngBytes(t, 64, 64))
	blobs := blob.NewMemoryStore()
	s := New(Config{UserAgent: "test-agent", MaxImageBytes: 10}, blobs, nil)

	p, err := s.Scrape(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/img/cover.png", p.ImageURL)
	assert.Empty(t, p.ImageStorageID)
	assert.Zero(t, p.ImageWidth)
}

func TestScrape_UndecodableImageIsSkipped(t *testing.T) {
	srv := newSite(t, []byte("not an image"))
	blobs := blob.NewMemoryStore()
	s := New(Config{UserAgent: "test-agent"}, blobs, nil)

	p, err := s.Scrape(context.Background(), srv.URL+"/post")
	require.NoError(t, err)
	assert.Empty(t, p.ImageStorageID)
}

func TestScrape_Errors(t *testing.T) {
	srv := newSite(t, nil)
	s := New(Config{UserAgent: "test-agent"}, nil, nil)
	ctx := context.Background()

	_, err := s.Scrape(ctx, srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = s.Scrape(ctx, srv.URL+"/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "application/pdf")

	_, err = s.Scrape(ctx, "javascript:alert(1)")
	assert.Error(t, err)

	_, err = s.Scrape(ctx, "/relative")
	assert.Error(t, err)
}

func TestBuild_Fallbacks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><head><title> Plain </title></head><body></body></html>`))
	require.NoError(t, err)

	p := Build(doc, "https://www.example.org/a/b")
	assert.Equal(t, "Plain", p.Title)
	assert.Equal(t, "example.org", p.SiteName)
	assert.Equal(t, "https://www.example.org/a/b", p.URL)
	assert.Equal(t, "https://www.example.org/favicon.ico", p.FaviconURL)
	assert.Empty(t, p.ImageURL)
	assert.Empty(t, p.Description)
}

func TestBuild_RejectsUnsafeURLs(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><head>
<link rel="canonical" href="javascript:void(0)">
<meta property="og:image" content="data:image/png;base64,AAAA">
</head></html>`))
	require.NoError(t, err)

	p := Build(doc, "https://example.com/x")
	assert.Equal(t, "https://example.com/x", p.URL)
	assert.Equal(t, "data:image/png;base64,AAAA", p.ImageURL)
}
