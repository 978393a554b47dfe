// Package scrape retrieves rendered listing pages through a chain of
// providers: a plain HTTP fetch, a headless browser, and hosted readers.
package scrape

import (
	"context"

	"github.com/sells-group/listing-intel/internal/model"
)

// Scraper fetches a single URL and returns its content. Failures are always
// *Error so callers can classify them with KindOf.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*model.ScrapedPage, error)
	Name() string
	Supports(url string) bool
}
