package firecrawl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrape_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scrape", r.URL.Path)
		assert.Equal(t, "Bearer fc-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body ScrapeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://portal.example/listing/9", body.URL)
		assert.Equal(t, []string{FormatRawHTML, FormatMarkdown, FormatScreenshot}, body.Formats)
		assert.False(t, body.OnlyMainContent)
		assert.Equal(t, 1500, body.WaitFor)

		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {
				"markdown": "# Villa",
				"rawHtml": "<html><h1>Villa</h1></html>",
				"screenshot": "https://cdn.firecrawl.dev/shot.png",
				"metadata": {"title": "Villa", "sourceURL": "https://portal.example/listing/9", "statusCode": 200}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient("fc-key", WithBaseURL(srv.URL))
	resp, err := c.Scrape(context.Background(), ScrapeRequest{
		URL:     "https://portal.example/listing/9",
		Formats: []string{FormatRawHTML, FormatMarkdown, FormatScreenshot},
		WaitFor: 1500,
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "# Villa", resp.Data.Markdown)
	assert.Equal(t, "<html><h1>Villa</h1></html>", resp.Data.RawHTML)
	assert.Equal(t, "https://cdn.firecrawl.dev/shot.png", resp.Data.Screenshot)
	assert.Equal(t, "Villa", resp.Data.Metadata.Title)
	assert.Equal(t, 200, resp.Data.Metadata.StatusCode)
}

func TestScrape_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"success":false,"error":"insufficient credits"}`))
	}))
	defer srv.Close()

	c := NewClient("fc-key", WithBaseURL(srv.URL))
	_, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://portal.example/x"})

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusPaymentRequired, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "insufficient credits")
	assert.Contains(t, err.Error(), "HTTP 402")
}

func TestScrape_DecodeError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{broken`))
	}))
	defer srv.Close()

	c := NewClient("fc-key", WithBaseURL(srv.URL))
	_, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://portal.example/x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "firecrawl: decode response")
}

func TestScrape_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("fc-key", WithBaseURL(srv.URL))
	_, err := c.Scrape(ctx, ScrapeRequest{URL: "https://portal.example/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
