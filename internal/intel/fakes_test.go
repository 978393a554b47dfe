package intel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sells-group/listing-intel/internal/model"
	"github.com/sells-group/listing-intel/internal/parser"
	"github.com/sells-group/listing-intel/internal/resilience"
	"github.com/sells-group/listing-intel/internal/scrape"
)

const listingURL = "https://portal.example/listing/42"

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// stubScraper returns results from fn, counting calls. If gate is set every
// call blocks on it first.
type stubScraper struct {
	calls   atomic.Int32
	lastURL atomic.Value
	gate    chan struct{}
	fn      func(ctx context.Context, attempt int32) (*model.ScrapedPage, error)
}

func (s *stubScraper) Name() string           { return "stub" }
func (s *stubScraper) Supports(_ string) bool { return true }

func (s *stubScraper) Scrape(ctx context.Context, url string) (*model.ScrapedPage, error) {
	n := s.calls.Add(1)
	s.lastURL.Store(url)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, &scrape.Error{Kind: scrape.KindTimeout, Provider: "stub", URL: url, Err: ctx.Err()}
		}
	}
	if s.fn != nil {
		return s.fn(ctx, n)
	}
	return lisbonPage(url), nil
}

func lisbonPage(url string) *model.ScrapedPage {
	return &model.ScrapedPage{
		URL:        url,
		HTML:       "<html><body><h1>2BR Apartment</h1></body></html>",
		StatusCode: 200,
		Source:     "stub",
		Timestamp:  fixedNow,
	}
}

type stubParser struct {
	calls atomic.Int32
	fn    func(attempt int32) (*model.ExtractedLead, error)
}

func (p *stubParser) Name() string { return "stub" }

func (p *stubParser) Parse(_ context.Context, page *model.ScrapedPage) (*model.ExtractedLead, error) {
	n := p.calls.Add(1)
	if p.fn != nil {
		return p.fn(n)
	}
	return lisbonLead(page.URL), nil
}

func lisbonLead(url string) *model.ExtractedLead {
	beds, baths, area := 2, 1.0, 70.0
	phone := "+351912345678"
	return &model.ExtractedLead{
		SourceURL:   url,
		Title:       "2BR Apartment",
		Price:       250000,
		Currency:    "EUR",
		Location:    "Lisbon",
		Type:        "apartment",
		Bedrooms:    &beds,
		Bathrooms:   &baths,
		Area:        &area,
		ContactInfo: &model.ContactInfo{Phone: &phone},
		PortalName:  "example",
	}
}

// stubComparables serves a fixed median, or err.
type stubComparables struct {
	median float64
	err    error
	calls  atomic.Int32
}

func (c *stubComparables) GetComparables(_ context.Context, location, propertyType string) (*model.ComparableContext, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	out := &model.ComparableContext{Location: location, Type: propertyType}
	if c.median > 0 {
		m := c.median
		out.Median = &m
		out.SampleSize = 12
	}
	return out, nil
}

func fastPolicy(stage string, attempts int) resilience.Policy {
	p := resilience.DefaultPolicy(stage)
	p.MaxAttempts = attempts
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 2 * time.Millisecond
	p.JitterFraction = 0
	return p
}

func testOptions() Options {
	return Options{
		Timeout:      5 * time.Second,
		ScrapePolicy: fastPolicy("scraping", 3),
		ParsePolicy:  fastPolicy("parsing", 3),
		Now:          func() time.Time { return fixedNow },
	}
}

func scrapeErr(kind scrape.Kind) error {
	return &scrape.Error{Kind: kind, Provider: "stub", URL: listingURL}
}

func parseErr(kind parser.Kind) error {
	return &parser.Error{Kind: kind, URL: listingURL}
}
