package scorer

import (
	"math"
	"time"

	"github.com/sells-group/listing-intel/internal/config"
	"github.com/sells-group/listing-intel/internal/model"
)

// neutralScore is used for a dimension with no usable input.
const neutralScore = 50.0

// Band is a score band.
type Band string

const (
	BandHighPriority Band = "high_priority"
	BandQualified    Band = "qualified"
	BandMonitor      Band = "monitor"
	BandLow          Band = "low"
)

var recommendations = map[Band]string{
	BandHighPriority: "High-potential opportunity: contact the seller immediately.",
	BandQualified:    "Qualified lead: schedule a follow-up within the week.",
	BandMonitor:      "Monitor: track the listing for price changes before reaching out.",
	BandLow:          "Low priority: no action recommended at current terms.",
}

// Result is the outcome of scoring one lead.
type Result struct {
	MarketScore    float64
	Recommendation string
	Band           Band
	IsHighPriority bool
	Breakdown      model.ScoreBreakdown
}

// Scorer scores leads with a fixed, validated configuration.
type Scorer struct {
	cfg config.ScorerConfig
}

// New validates cfg and returns a Scorer.
func New(cfg config.ScorerConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() config.ScorerConfig { return s.cfg }

// Score computes the market score for lead. comparables may be nil or empty.
// scrapedAt is when the page was fetched; now is the scoring time.
func (s *Scorer) Score(lead *model.ExtractedLead, comparables *model.ComparableContext, scrapedAt, now time.Time) Result {
	b := model.ScoreBreakdown{
		PriceDeviation: round2(scorePriceDeviation(lead, comparables, s.cfg.PriceDeviationSpan)),
		Completeness:   round2(scoreCompleteness(lead)),
		Contact:        round2(scoreContact(lead)),
		Freshness:      round2(scoreFreshness(scrapedAt, now, s.cfg.FreshnessHorizonHours)),
	}

	weighted := b.PriceDeviation*s.cfg.PriceDeviationWeight +
		b.Completeness*s.cfg.CompletenessWeight +
		b.Contact*s.cfg.ContactWeight +
		b.Freshness*s.cfg.FreshnessWeight
	score := round2(clamp(weighted / WeightSum(s.cfg)))

	band := s.band(score)
	return Result{
		MarketScore:    score,
		Recommendation: recommendations[band],
		Band:           band,
		IsHighPriority: score >= s.cfg.HighPriorityThreshold,
		Breakdown:      b,
	}
}

func (s *Scorer) band(score float64) Band {
	switch {
	case score >= s.cfg.HighPriorityThreshold:
		return BandHighPriority
	case score >= s.cfg.QualifiedThreshold:
		return BandQualified
	case score >= s.cfg.MonitorThreshold:
		return BandMonitor
	default:
		return BandLow
	}
}

// scorePriceDeviation rewards listings priced below the comparable median.
// At the median it returns 50; span below the median (as a fraction) maps
// to 100 and span above it to 0.
func scorePriceDeviation(lead *model.ExtractedLead, comparables *model.ComparableContext, span float64) float64 {
	median := comparables.MedianPrice()
	if lead == nil || lead.Price <= 0 || median <= 0 || span <= 0 {
		return neutralScore
	}
	d := (median - lead.Price) / median
	return clamp(neutralScore + neutralScore*d/span)
}

func scoreCompleteness(lead *model.ExtractedLead) float64 {
	return 100 * float64(lead.PresentOptionalFields()) / model.OptionalFieldCount
}

// scoreContact is 100 when the listing exposes a phone or email.
func scoreContact(lead *model.ExtractedLead) float64 {
	if lead == nil || lead.ContactInfo.IsEmpty() {
		return 0
	}
	c := lead.ContactInfo
	switch {
	case c.Phone != nil || c.Email != nil:
		return 100
	case c.Name != nil:
		return 20
	default:
		return 0
	}
}

// scoreFreshness decays linearly from 100 at scrape time to 0 at horizon.
// An unknown scrape time is treated as fresh.
func scoreFreshness(scrapedAt, now time.Time, horizonHours float64) float64 {
	if scrapedAt.IsZero() || horizonHours <= 0 {
		return 100
	}
	age := now.Sub(scrapedAt).Hours()
	if age <= 0 {
		return 100
	}
	return clamp(100 * (1 - age/horizonHours))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
