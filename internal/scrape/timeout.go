package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-intel/internal/model"
)

// DefaultTimeout bounds a single scrape attempt.
const DefaultTimeout = 30 * time.Second

type timeoutScraper struct {
	inner   Scraper
	timeout time.Duration
}

// WithTimeout enforces a wall-clock limit on every Scrape call of s. An
// attempt that runs past d fails with KindTimeout even if the provider
// ignores cancellation.
func WithTimeout(s Scraper, d time.Duration) Scraper {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutScraper{inner: s, timeout: d}
}

func (t *timeoutScraper) Name() string             { return t.inner.Name() }
func (t *timeoutScraper) Supports(url string) bool { return t.inner.Supports(url) }

func (t *timeoutScraper) Scrape(ctx context.Context, url string) (*model.ScrapedPage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		page *model.ScrapedPage
		err  error
	}
	done := make(chan result, 1)
	go func() {
		page, err := t.inner.Scrape(ctx, url)
		done <- result{page, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && KindOf(r.err) != KindTimeout {
			return nil, t.timeoutError(url)
		}
		return r.page, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, t.timeoutError(url)
		}
		return nil, classify(ctx, t.inner.Name(), url, ctx.Err())
	}
}

func (t *timeoutScraper) timeoutError(url string) *Error {
	return &Error{
		Kind:     KindTimeout,
		Provider: t.inner.Name(),
		URL:      url,
		Err:      eris.Errorf("no response within %s", t.timeout),
	}
}
