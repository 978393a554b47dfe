// Package model defines the listing, opportunity, and market types shared by
// the scrape, parse, and score stages.
package model

import (
	"sort"
	"time"
)

// ContactInfo holds the direct contact details published on a listing.
// Fields are nil when the listing did not expose them.
type ContactInfo struct {
	Phone *string `json:"phone"`
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

// IsEmpty reports whether no contact field was recovered.
func (c *ContactInfo) IsEmpty() bool {
	return c == nil || (c.Phone == nil && c.Email == nil && c.Name == nil)
}

// ExtractedLead is a normalized real-estate listing. Optional fields are
// serialized as null rather than omitted so consumers can tell "not scraped"
// apart from zero.
type ExtractedLead struct {
	SourceURL   string       `json:"sourceUrl"`
	Title       string       `json:"title"`
	Price       float64      `json:"price"`
	Currency    string       `json:"currency"`
	Location    string       `json:"location"`
	Type        string       `json:"type"`
	Description string       `json:"description"`
	Bedrooms    *int         `json:"bedrooms"`
	Bathrooms   *float64     `json:"bathrooms"`
	Area        *float64     `json:"area"`
	ContactInfo *ContactInfo `json:"contactInfo"`
	PortalName  string       `json:"portalName"`
	ExternalID  *string      `json:"externalId"`
}

// OptionalFieldCount is the number of nullable fields considered when
// measuring lead completeness.
const OptionalFieldCount = 5

// PresentOptionalFields counts the nullable fields that carry a value.
func (l *ExtractedLead) PresentOptionalFields() int {
	if l == nil {
		return 0
	}
	n := 0
	if l.Bedrooms != nil {
		n++
	}
	if l.Bathrooms != nil {
		n++
	}
	if l.Area != nil {
		n++
	}
	if !l.ContactInfo.IsEmpty() {
		n++
	}
	if l.ExternalID != nil {
		n++
	}
	return n
}

// ScoreBreakdown records the per-dimension sub-scores behind a market score.
type ScoreBreakdown struct {
	PriceDeviation float64 `json:"priceDeviation"`
	Completeness   float64 `json:"completeness"`
	Contact        float64 `json:"contact"`
	Freshness      float64 `json:"freshness"`
}

// LeadOpportunity is the final output of an analysis.
type LeadOpportunity struct {
	ExtractedLead  ExtractedLead  `json:"extractedLead"`
	MarketScore    float64        `json:"marketScore"`
	Recommendation string         `json:"recommendation"`
	IsHighPriority bool           `json:"isHighPriority"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	AnalyzedAt     time.Time      `json:"analyzedAt"`
}

// ComparableContext is market reference data for a location and property type.
type ComparableContext struct {
	Location   string    `json:"location"`
	Type       string    `json:"type"`
	Prices     []float64 `json:"prices,omitempty"`
	Median     *float64  `json:"medianPrice"`
	SampleSize int       `json:"sampleSize"`
}

// Empty reports whether no usable market data is available.
func (c *ComparableContext) Empty() bool {
	if c == nil {
		return true
	}
	return c.MedianPrice() <= 0
}

// MedianPrice returns the explicit median if set, otherwise the median of
// Prices. Zero means unknown.
func (c *ComparableContext) MedianPrice() float64 {
	if c == nil {
		return 0
	}
	if c.Median != nil {
		return *c.Median
	}
	return Median(c.Prices)
}

// Median returns the median of the positive values in prices, or 0.
func Median(prices []float64) float64 {
	vals := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p > 0 {
			vals = append(vals, p)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}
