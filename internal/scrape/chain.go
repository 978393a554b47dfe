package scrape

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/model"
)

// Chain tries scrapers in priority order, returning the first success. It
// satisfies Scraper so the orchestrator treats the whole chain as one
// provider.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in order.
func NewChain(scrapers ...Scraper) *Chain {
	return &Chain{scrapers: scrapers}
}

// Name implements Scraper.
func (c *Chain) Name() string { return "chain" }

// Supports reports whether any member can take url.
func (c *Chain) Supports(url string) bool {
	for _, s := range c.scrapers {
		if s.Supports(url) {
			return true
		}
	}
	return false
}

// Providers lists member names in order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.scrapers))
	for i, s := range c.scrapers {
		names[i] = s.Name()
	}
	return names
}

// Scrape tries each scraper in order for a single URL. A not_found answer is
// final: the listing is gone and no other provider will find it. Other
// failures fall through; the returned error carries the last provider's kind.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*model.ScrapedPage, error) {
	if _, err := ValidateURL(targetURL); err != nil {
		return nil, err
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		page, err := s.Scrape(ctx, targetURL)
		if err == nil && page != nil {
			if page.Source == "" {
				page.Source = s.Name()
			}
			return page, nil
		}
		if err == nil {
			err = &Error{Kind: KindRenderFailure, Provider: s.Name(), URL: targetURL, Err: eris.New("no page returned")}
		}

		zap.L().Debug("scrape: provider failed, trying next",
			zap.String("provider", s.Name()),
			zap.String("url", targetURL),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		lastErr = err

		if KindOf(err) == KindNotFound {
			return nil, err
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, c.Name(), targetURL, err)
	}
	return nil, &Error{
		Kind:     KindRenderFailure,
		Provider: c.Name(),
		URL:      targetURL,
		Err:      eris.New("no provider available"),
	}
}
