package scrape

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-intel/internal/model"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; ListingIntel/1.0)"

// LocalScraper fetches HTML via net/http and detects blocks. Free, no API
// calls; portals that need JavaScript fall through to the browser.
type LocalScraper struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// LocalOption configures a LocalScraper.
type LocalOption func(*LocalScraper)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) LocalOption {
	return func(l *LocalScraper) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps how much of the response body is read.
func WithMaxBodyBytes(n int64) LocalOption {
	return func(l *LocalScraper) {
		if n > 0 {
			l.maxBody = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) LocalOption {
	return func(l *LocalScraper) {
		l.client = c
	}
}

// NewLocalScraper creates a LocalScraper with sensible defaults.
func NewLocalScraper(opts ...LocalOption) *LocalScraper {
	l := &LocalScraper{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: defaultUserAgent,
		maxBody:   4 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL and classifies the response.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*model.ScrapedPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, Provider: l.Name(), URL: targetURL, Err: err}
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,pt;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, classify(ctx, l.Name(), targetURL, eris.Wrap(err, "local_http: fetch"))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody))
	if err != nil {
		return nil, classify(ctx, l.Name(), targetURL, eris.Wrap(err, "local_http: read body"))
	}

	if blocked, bt := DetectBlock(resp.StatusCode, resp.Header, body); blocked {
		return nil, &Error{
			Kind:       KindBlocked,
			Provider:   l.Name(),
			URL:        targetURL,
			StatusCode: resp.StatusCode,
			Err:        eris.Errorf("local_http: blocked (%s)", bt),
		}
	}

	if kind := kindForStatus(resp.StatusCode); kind != "" {
		return nil, &Error{Kind: kind, Provider: l.Name(), URL: targetURL, StatusCode: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindRenderFailure, Provider: l.Name(), URL: targetURL, Err: eris.Wrap(err, "local_http: parse html")}
	}
	if strings.TrimSpace(doc.Find("body").Text()) == "" {
		return nil, &Error{
			Kind:       KindRenderFailure,
			Provider:   l.Name(),
			URL:        targetURL,
			StatusCode: resp.StatusCode,
			Err:        eris.New("local_http: empty page"),
		}
	}

	return &model.ScrapedPage{
		URL:        resp.Request.URL.String(),
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		Source:     l.Name(),
		Timestamp:  time.Now().UTC(),
	}, nil
}
