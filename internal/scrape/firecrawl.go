package scrape

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/model"
	"github.com/sells-group/listing-intel/internal/resilience"
	"github.com/sells-group/listing-intel/pkg/firecrawl"
)

const maxScreenshotBytes = 8 * 1024 * 1024

// FirecrawlAdapter wraps a Firecrawl client as a Scraper for single-page scrapes.
type FirecrawlAdapter struct {
	client     firecrawl.Client
	breaker    *resilience.Breaker
	screenshot bool
	waitFor    time.Duration
	http       *http.Client
}

// FirecrawlOption configures a FirecrawlAdapter.
type FirecrawlOption func(*FirecrawlAdapter)

// WithFirecrawlScreenshot requests a screenshot with every scrape.
func WithFirecrawlScreenshot(on bool) FirecrawlOption {
	return func(f *FirecrawlAdapter) { f.screenshot = on }
}

// WithFirecrawlWait asks Firecrawl to wait before capturing the page.
func WithFirecrawlWait(d time.Duration) FirecrawlOption {
	return func(f *FirecrawlAdapter) { f.waitFor = d }
}

// NewFirecrawlAdapter creates a FirecrawlAdapter from a Firecrawl client.
func NewFirecrawlAdapter(client firecrawl.Client, cfg resilience.BreakerConfig, opts ...FirecrawlOption) *FirecrawlAdapter {
	f := &FirecrawlAdapter{
		client:  client,
		breaker: newProviderBreaker("firecrawl", cfg),
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports returns true unless the circuit breaker is open.
func (f *FirecrawlAdapter) Supports(_ string) bool {
	return f.breaker.State() != resilience.CircuitOpen
}

// Scrape fetches a single URL via Firecrawl's scrape API.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*model.ScrapedPage, error) {
	if err := f.breaker.Allow(); err != nil {
		return nil, circuitOpenError(f.Name(), targetURL)
	}

	page, err := f.scrape(ctx, targetURL)
	f.breaker.Record(err)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *FirecrawlAdapter) scrape(ctx context.Context, targetURL string) (*model.ScrapedPage, error) {
	formats := []string{firecrawl.FormatRawHTML, firecrawl.FormatMarkdown}
	if f.screenshot {
		formats = append(formats, firecrawl.FormatScreenshot)
	}

	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     targetURL,
		Formats: formats,
		WaitFor: int(f.waitFor / time.Millisecond),
	})
	if err != nil {
		var apiErr *firecrawl.APIError
		if errors.As(err, &apiErr) {
			kind := kindForStatus(apiErr.StatusCode)
			if kind == "" || kind == KindNotFound {
				kind = KindRenderFailure
			}
			return nil, &Error{Kind: kind, Provider: f.Name(), URL: targetURL, StatusCode: apiErr.StatusCode, Err: err}
		}
		return nil, classify(ctx, f.Name(), targetURL, err)
	}
	if !resp.Success {
		return nil, &Error{Kind: KindRenderFailure, Provider: f.Name(), URL: targetURL,
			Err: eris.Errorf("firecrawl: scrape not successful: %s", resp.Error)}
	}

	// Firecrawl reports the target's own status in metadata.
	status := resp.Data.Metadata.StatusCode
	if kind := kindForStatus(status); kind != "" {
		return nil, &Error{Kind: kind, Provider: f.Name(), URL: targetURL, StatusCode: status}
	}
	if strings.TrimSpace(resp.Data.RawHTML) == "" && strings.TrimSpace(resp.Data.HTML) == "" &&
		strings.TrimSpace(resp.Data.Markdown) == "" {
		return nil, &Error{Kind: KindRenderFailure, Provider: f.Name(), URL: targetURL, StatusCode: status,
			Err: eris.New("firecrawl: empty page")}
	}

	html := resp.Data.RawHTML
	if html == "" {
		html = resp.Data.HTML
	}
	if status == 0 {
		status = http.StatusOK
	}

	return &model.ScrapedPage{
		URL:        targetURL,
		Title:      resp.Data.Metadata.Title,
		HTML:       html,
		Text:       resp.Data.Markdown,
		Screenshot: f.fetchScreenshot(ctx, resp.Data.Screenshot),
		StatusCode: status,
		Source:     f.Name(),
		Timestamp:  time.Now().UTC(),
	}, nil
}

// fetchScreenshot resolves Firecrawl's screenshot reference, either a data
// URI or a hosted URL. Failures drop the screenshot, not the page.
func (f *FirecrawlAdapter) fetchScreenshot(ctx context.Context, ref string) []byte {
	if ref == "" {
		return nil
	}

	if strings.HasPrefix(ref, "data:") {
		if i := strings.Index(ref, ";base64,"); i >= 0 {
			b, err := base64.StdEncoding.DecodeString(ref[i+len(";base64,"):])
			if err == nil {
				return b
			}
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil
	}
	resp, err := f.http.Do(req)
	if err != nil {
		zap.L().Debug("firecrawl: screenshot download failed", zap.String("ref", ref), zap.Error(err))
		return nil
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxScreenshotBytes))
	if err != nil {
		return nil
	}
	return b
}
