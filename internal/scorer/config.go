// Package scorer computes the market score and recommendation for an
// extracted listing. Scoring is pure: no I/O and no shared state.
package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-intel/internal/config"
)

// DefaultHighPriorityThreshold is the market score at or above which a lead
// is flagged high priority.
const DefaultHighPriorityThreshold = 75.0

// DefaultScorerConfig returns a config.ScorerConfig with sensible defaults.
// Weights sum to 100.
func DefaultScorerConfig() config.ScorerConfig {
	return config.ScorerConfig{
		// Weights (sum = 100).
		PriceDeviationWeight: 30,
		CompletenessWeight:   25,
		ContactWeight:        25,
		FreshnessWeight:      20,

		// A listing this far below the median (as a fraction) scores 100.
		PriceDeviationSpan:    0.5,
		FreshnessHorizonHours: 72,

		// Bands.
		HighPriorityThreshold: DefaultHighPriorityThreshold,
		QualifiedThreshold:    50,
		MonitorThreshold:      25,
	}
}

// WeightSum returns the sum of all dimension weights.
func WeightSum(c config.ScorerConfig) float64 {
	return c.PriceDeviationWeight + c.CompletenessWeight + c.ContactWeight + c.FreshnessWeight
}

// ValidateConfig checks that a ScorerConfig is internally consistent.
func ValidateConfig(c config.ScorerConfig) error {
	var errs []string

	// All weights must be non-negative.
	weights := []struct {
		name string
		w    float64
	}{
		{"price_deviation_weight", c.PriceDeviationWeight},
		{"completeness_weight", c.CompletenessWeight},
		{"contact_weight", c.ContactWeight},
		{"freshness_weight", c.FreshnessWeight},
	}
	for _, w := range weights {
		if w.w < 0 || math.IsNaN(w.w) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", w.name))
		}
	}

	if WeightSum(c) <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	if c.PriceDeviationSpan <= 0 {
		errs = append(errs, "price_deviation_span must be > 0")
	}
	if c.FreshnessHorizonHours <= 0 {
		errs = append(errs, "freshness_horizon_hours must be > 0")
	}

	// Thresholds.
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"high_priority_threshold", c.HighPriorityThreshold},
		{"qualified_threshold", c.QualifiedThreshold},
		{"monitor_threshold", c.MonitorThreshold},
	} {
		if th.v < 0 || th.v > 100 {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 100", th.name))
		}
	}
	if c.QualifiedThreshold > c.HighPriorityThreshold {
		errs = append(errs, "qualified_threshold must be <= high_priority_threshold")
	}
	if c.MonitorThreshold > c.QualifiedThreshold {
		errs = append(errs, "monitor_threshold must be <= qualified_threshold")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
