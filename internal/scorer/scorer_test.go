package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-intel/internal/model"
)

func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := New(DefaultScorerConfig())
	require.NoError(t, err)
	return s
}

// lisbonLead is a fully populated two-bedroom listing with a phone contact.
func lisbonLead() *model.ExtractedLead {
	return &model.ExtractedLead{
		SourceURL:   "https://portal.example/listing/42",
		Title:       "2BR Apartment",
		Price:       250000,
		Currency:    "EUR",
		Location:    "Lisbon",
		Type:        "apartment",
		Bedrooms:    ptrInt(2),
		Bathrooms:   ptrFloat64(1),
		Area:        ptrFloat64(70),
		ContactInfo: &model.ContactInfo{Phone: ptrString("+351912345678")},
		PortalName:  "example",
	}
}

func TestScore_LisbonApartmentIsHighPriority(t *testing.T) {
	s := newTestScorer(t)
	comps := &model.ComparableContext{Location: "lisbon", Type: "apartment", Median: ptrFloat64(240000), SampleSize: 12}

	r := s.Score(lisbonLead(), comps, now, now)

	assert.InDelta(t, 45.83, r.Breakdown.PriceDeviation, 0.001)
	assert.InDelta(t, 80, r.Breakdown.Completeness, 0.001)
	assert.InDelta(t, 100, r.Breakdown.Contact, 0.001)
	assert.InDelta(t, 100, r.Breakdown.Freshness, 0.001)
	assert.InDelta(t, 78.75, r.MarketScore, 0.001)
	assert.True(t, r.IsHighPriority)
	assert.Equal(t, BandHighPriority, r.Band)
	assert.NotEmpty(t, r.Recommendation)
}

func TestScore_EmptyComparablesIsNeutral(t *testing.T) {
	s := newTestScorer(t)

	for name, comps := range map[string]*model.ComparableContext{
		"nil":         nil,
		"no prices":   {Location: "lisbon"},
		"zero median": {Median: ptrFloat64(0)},
	} {
		t.Run(name, func(t *testing.T) {
			r := s.Score(lisbonLead(), comps, now, now)
			assert.InDelta(t, 50, r.Breakdown.PriceDeviation, 0.001)
			assert.InDelta(t, 80, r.MarketScore, 0.001)
		})
	}
}

func TestScore_Deterministic(t *testing.T) {
	s := newTestScorer(t)
	comps := &model.ComparableContext{Prices: []float64{200000, 240000, 260000}}
	scrapedAt := now.Add(-6 * time.Hour)

	first := s.Score(lisbonLead(), comps, scrapedAt, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Score(lisbonLead(), comps, scrapedAt, now))
	}
}

func TestScore_BoundsAndHighPriorityRule(t *testing.T) {
	s := newTestScorer(t)
	leads := []*model.ExtractedLead{
		lisbonLead(),
		{Title: "bare", Price: 1, Location: "x"},
		{Title: "cheap", Price: 1000, Location: "x", ContactInfo: &model.ContactInfo{Email: ptrString("a@b.pt")}},
		{Title: "pricey", Price: 9_000_000, Location: "x"},
	}
	comps := &model.ComparableContext{Median: ptrFloat64(300000)}

	for _, lead := range leads {
		for _, age := range []time.Duration{0, 12 * time.Hour, 200 * time.Hour} {
			r := s.Score(lead, comps, now.Add(-age), now)
			assert.GreaterOrEqual(t, r.MarketScore, 0.0)
			assert.LessOrEqual(t, r.MarketScore, 100.0)
			assert.Equal(t, r.MarketScore >= DefaultHighPriorityThreshold, r.IsHighPriority)
			assert.NotEmpty(t, r.Recommendation)
		}
	}
}

func TestScore_ThresholdIsConfigurable(t *testing.T) {
	cfg := DefaultScorerConfig()
	cfg.HighPriorityThreshold = 90
	s, err := New(cfg)
	require.NoError(t, err)

	r := s.Score(lisbonLead(), &model.ComparableContext{Median: ptrFloat64(240000)}, now, now)
	assert.False(t, r.IsHighPriority)
	assert.Equal(t, BandQualified, r.Band)
}

func TestScorePriceDeviation(t *testing.T) {
	median := &model.ComparableContext{Median: ptrFloat64(200000)}
	tests := []struct {
		name  string
		price float64
		want  float64
	}{
		{"at median", 200000, 50},
		{"10% below", 180000, 60},
		{"half below", 100000, 100},
		{"far below", 10000, 100},
		{"25% above", 250000, 25},
		{"double", 400000, 0},
		{"unknown price", 0, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorePriceDeviation(&model.ExtractedLead{Price: tt.price}, median, 0.5)
			assert.InDelta(t, tt.want, got, 0.01)
		})
	}
}

func TestScoreContact(t *testing.T) {
	tests := []struct {
		name    string
		contact *model.ContactInfo
		want    float64
	}{
		{"none", nil, 0},
		{"empty", &model.ContactInfo{}, 0},
		{"name only", &model.ContactInfo{Name: ptrString("Ana")}, 20},
		{"phone", &model.ContactInfo{Phone: ptrString("+351912345678")}, 100},
		{"email", &model.ContactInfo{Email: ptrString("ana@imo.pt")}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreContact(&model.ExtractedLead{ContactInfo: tt.contact}), 0.01)
		})
	}
}

func TestScoreFreshness(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"just scraped", 0, 100},
		{"half horizon", 36 * time.Hour, 50},
		{"at horizon", 72 * time.Hour, 0},
		{"stale", 300 * time.Hour, 0},
		{"clock skew", -time.Hour, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreFreshness(now.Add(-tt.age), now, 72), 0.01)
		})
	}
	assert.InDelta(t, 100, scoreFreshness(time.Time{}, now, 72), 0.01)
}

func TestScoreCompleteness(t *testing.T) {
	assert.InDelta(t, 0, scoreCompleteness(&model.ExtractedLead{Description: "text only"}), 0.01)
	assert.InDelta(t, 80, scoreCompleteness(lisbonLead()), 0.01)

	full := lisbonLead()
	full.ExternalID = ptrString("42")
	assert.InDelta(t, 100, scoreCompleteness(full), 0.01)
}

func TestBands(t *testing.T) {
	s := newTestScorer(t)
	assert.Equal(t, BandHighPriority, s.band(75))
	assert.Equal(t, BandQualified, s.band(74.99))
	assert.Equal(t, BandQualified, s.band(50))
	assert.Equal(t, BandMonitor, s.band(25))
	assert.Equal(t, BandLow, s.band(24.99))
}
