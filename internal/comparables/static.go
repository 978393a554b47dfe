package comparables

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/listing-intel/internal/model"
)

// StaticSource serves comparables from records held in memory, typically a
// YAML seed file.
type StaticSource struct {
	// prices[typeKey][locationKey], newest observation first.
	prices map[string]map[string][]float64
}

// NewStatic builds a StaticSource from records.
func NewStatic(records []Record) (*StaticSource, error) {
	keyed, err := prepare(records, time.Now())
	if err != nil {
		return nil, err
	}
	sort.SliceStable(keyed, func(i, j int) bool {
		return keyed[i].ObservedAt.After(keyed[j].ObservedAt)
	})

	s := &StaticSource{prices: make(map[string]map[string][]float64)}
	for _, r := range keyed {
		byLoc, ok := s.prices[r.TypeKey]
		if !ok {
			byLoc = make(map[string][]float64)
			s.prices[r.TypeKey] = byLoc
		}
		if len(byLoc[r.LocationKey]) < maxSample {
			byLoc[r.LocationKey] = append(byLoc[r.LocationKey], r.Price)
		}
	}
	return s, nil
}

// LoadStatic reads a seed file into a StaticSource.
func LoadStatic(path string) (*StaticSource, error) {
	records, err := LoadSeedFile(path)
	if err != nil {
		return nil, err
	}
	return NewStatic(records)
}

// GetComparables implements Source.
func (s *StaticSource) GetComparables(ctx context.Context, location, propertyType string) (*model.ComparableContext, error) {
	return lookup(ctx, location, propertyType, func(_ context.Context, locationKey, typeKey string) ([]float64, error) {
		prices := s.prices[typeKey][locationKey]
		if len(prices) == 0 {
			return nil, nil
		}
		return append([]float64(nil), prices...), nil
	})
}
