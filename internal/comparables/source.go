// Package comparables looks up market reference prices for a location and
// property type. Lookups never fail the pipeline; callers score with an
// empty context when a source errors.
package comparables

import (
	"context"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/listing-intel/internal/model"
)

// Source is a read-only comparable-market lookup. It may return an empty
// context when no data exists for the key.
type Source interface {
	GetComparables(ctx context.Context, location, propertyType string) (*model.ComparableContext, error)
}

// Store is a Source that can also be seeded.
type Store interface {
	Source
	Migrate(ctx context.Context) error
	Upsert(ctx context.Context, records []Record) (int64, error)
	Close() error
}

// Record is one observed market price.
type Record struct {
	Location   string    `yaml:"location"`
	Type       string    `yaml:"type"`
	Price      float64   `yaml:"price"`
	Ref        string    `yaml:"ref"`
	ObservedAt time.Time `yaml:"observed_at"`
}

// maxSample caps how many recent observations feed one median.
const maxSample = 500

// NormalizeKey folds s for matching: accents are stripped, case is folded
// and whitespace is collapsed, so "São Paulo " and "sao paulo" match.
func NormalizeKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(folded)), " ")
}

// candidateKeys returns the lookup keys for a location, most specific first:
// the whole string, then each comma-separated part.
// "Alfama, Lisboa" yields "alfama, lisboa", "alfama", "lisboa".
func candidateKeys(location string) []string {
	full := NormalizeKey(location)
	if full == "" {
		return nil
	}
	keys := []string{full}
	parts := strings.Split(full, ",")
	if len(parts) < 2 {
		return keys
	}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" && !contains(keys, p) {
			keys = append(keys, p)
		}
	}
	return keys
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// fetchFunc returns the observed prices stored under one normalized key.
type fetchFunc func(ctx context.Context, locationKey, typeKey string) ([]float64, error)

// lookup tries each candidate key until one has prices.
func lookup(ctx context.Context, location, propertyType string, fetch fetchFunc) (*model.ComparableContext, error) {
	out := &model.ComparableContext{Location: location, Type: propertyType}
	typeKey := NormalizeKey(propertyType)
	for _, key := range candidateKeys(location) {
		prices, err := fetch(ctx, key, typeKey)
		if err != nil {
			return nil, err
		}
		if len(prices) == 0 {
			continue
		}
		out.Location = key
		out.Prices = prices
		out.SampleSize = len(prices)
		if m := model.Median(prices); m > 0 {
			out.Median = &m
		}
		return out, nil
	}
	return out, nil
}

// None is the source used when no market data is configured.
type None struct{}

// GetComparables always returns an empty context.
func (None) GetComparables(_ context.Context, location, propertyType string) (*model.ComparableContext, error) {
	return &model.ComparableContext{Location: location, Type: propertyType}, nil
}
