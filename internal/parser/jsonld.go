package parser

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/listing-intel/internal/model"
)

// hints are listing values recovered from structured markup. Zero values
// mean "not present".
type hints struct {
	Title       string
	Description string
	Location    string
	Type        string
	Currency    string
	ExternalID  string
	Phone       string
	Email       string
	Name        string
	Price       float64
	Bedrooms    *int
	Bathrooms   *float64
	Area        *float64
}

// listingTypes are schema.org types that describe a listing or its offer.
var listingTypes = map[string]string{
	"offer":                 "",
	"product":               "",
	"realestatelisting":     "",
	"residence":             "other",
	"accommodation":         "other",
	"apartment":             "apartment",
	"apartmentcomplex":      "apartment",
	"house":                 "house",
	"singlefamilyresidence": "house",
	"room":                  "room",
	"hotelroom":             "room",
}

const maxLDDepth = 6

// extractHints walks the JSON-LD blocks and og:/product: meta tags of in.
// The first value found for a field wins.
func extractHints(in *Input) hints {
	var h hints
	for _, block := range in.JSONLD {
		var v any
		if err := json.Unmarshal([]byte(block), &v); err != nil {
			continue
		}
		walkLD(v, &h, 0)
	}

	for _, line := range in.Meta {
		key, val, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		switch key {
		case "og:title":
			setStr(&h.Title, val)
		case "og:description":
			setStr(&h.Description, val)
		case "og:price:amount", "product:price:amount":
			if h.Price <= 0 {
				if p, ok := parseNumber(val); ok && p > 0 {
					h.Price = p
				}
			}
		case "og:price:currency", "product:price:currency":
			setStr(&h.Currency, strings.ToUpper(val))
		case "og:locality":
			setStr(&h.Location, val)
		}
	}
	return h
}

func walkLD(v any, h *hints, depth int) {
	if depth > maxLDDepth {
		return
	}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			walkLD(item, h, depth+1)
		}
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			walkLD(graph, h, depth+1)
		}
		if kind, ok := ldListingType(t["@type"]); ok {
			applyLD(t, kind, h, depth)
		}
		if main, ok := t["mainEntity"]; ok {
			walkLD(main, h, depth+1)
		}
	}
}

// ldListingType reports whether typ names a listing type and the property
// type it implies.
func ldListingType(typ any) (string, bool) {
	var names []string
	switch t := typ.(type) {
	case string:
		names = []string{t}
	case []any:
		for _, n := range t {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
	}
	found := false
	kind := ""
	for _, n := range names {
		if k, ok := listingTypes[strings.ToLower(n)]; ok {
			found = true
			if kind == "" {
				kind = k
			}
		}
	}
	return kind, found
}

func applyLD(m map[string]any, kind string, h *hints, depth int) {
	setStr(&h.Type, kind)
	setStr(&h.Title, ldString(m["name"]))
	setStr(&h.Description, ldString(m["description"]))
	setStr(&h.ExternalID, firstNonEmpty(ldString(m["sku"]), ldString(m["productID"]), ldString(m["identifier"])))
	setStr(&h.Phone, ldString(m["telephone"]))
	setStr(&h.Email, strings.TrimPrefix(ldString(m["email"]), "mailto:"))

	if h.Price <= 0 {
		if p, ok := ldNumber(m["price"]); ok && p > 0 {
			h.Price = p
			setStr(&h.Currency, ldString(m["priceCurrency"]))
		}
	}
	applyOffers(m["offers"], h, depth)

	applyAddress(m["address"], h)
	if loc, ok := m["contentLocation"].(map[string]any); ok {
		applyAddress(loc["address"], h)
		setStr(&h.Location, ldString(loc["name"]))
	}

	if h.Bedrooms == nil {
		for _, key := range []string{"numberOfBedrooms", "numberOfRooms"} {
			if n, ok := ldNumber(m[key]); ok && n >= 0 {
				i := int(n)
				h.Bedrooms = &i
				break
			}
		}
	}
	if h.Bathrooms == nil {
		for _, key := range []string{"numberOfBathroomsTotal", "numberOfFullBathrooms"} {
			if n, ok := ldNumber(m[key]); ok && n >= 0 {
				h.Bathrooms = &n
				break
			}
		}
	}
	if h.Area == nil {
		if n, ok := ldNumber(m["floorSize"]); ok && n > 0 {
			h.Area = &n
		}
	}

	applyParties(m, h)

	if item, ok := m["itemOffered"]; ok {
		walkLD(item, h, depth+1)
		if im, ok := item.(map[string]any); ok {
			if _, typed := ldListingType(im["@type"]); !typed {
				applyLD(im, "", h, depth+1)
			}
		}
	}
}

func applyOffers(v any, h *hints, depth int) {
	switch o := v.(type) {
	case []any:
		for _, item := range o {
			applyOffers(item, h, depth)
		}
	case map[string]any:
		if h.Price <= 0 {
			price, ok := ldNumber(o["price"])
			if !ok {
				price, ok = ldNumber(o["lowPrice"])
			}
			if !ok {
				if spec, isMap := o["priceSpecification"].(map[string]any); isMap {
					price, ok = ldNumber(spec["price"])
					setStr(&h.Currency, ldString(spec["priceCurrency"]))
				}
			}
			if ok && price > 0 {
				h.Price = price
			}
		}
		setStr(&h.Currency, ldString(o["priceCurrency"]))
		applyParties(o, h)
		if item, ok := o["itemOffered"]; ok && depth < maxLDDepth {
			walkLD(item, h, depth+1)
		}
	}
}

// applyParties reads the selling agent's contact details.
func applyParties(m map[string]any, h *hints) {
	for _, key := range []string{"seller", "offeredBy", "broker", "agent"} {
		if party, ok := m[key].(map[string]any); ok {
			setStr(&h.Name, ldString(party["name"]))
			setStr(&h.Phone, ldString(party["telephone"]))
			setStr(&h.Email, strings.TrimPrefix(ldString(party["email"]), "mailto:"))
		}
	}
}

func applyAddress(v any, h *hints) {
	switch a := v.(type) {
	case string:
		setStr(&h.Location, a)
	case map[string]any:
		parts := make([]string, 0, 2)
		for _, key := range []string{"addressLocality", "addressRegion"} {
			if s := ldString(a[key]); s != "" && !containsFold(parts, s) {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			if s := ldString(a["streetAddress"]); s != "" {
				parts = append(parts, s)
			}
		}
		setStr(&h.Location, strings.Join(parts, ", "))
	}
}

func ldString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if s := ldString(t["value"]); s != "" {
			return s
		}
		return ldString(t["@value"])
	case []any:
		if len(t) > 0 {
			return ldString(t[0])
		}
	}
	return ""
}

func ldNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		return parseNumber(t)
	case map[string]any:
		if n, ok := ldNumber(t["value"]); ok {
			return n, true
		}
		return ldNumber(t["@value"])
	}
	return 0, false
}

func setStr(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// StaticParser reads listings from JSON-LD and og: meta tags only. It never
// calls a model, so it works offline and costs nothing.
type StaticParser struct {
	limits   Limits
	coercion coercer
}

// NewStaticParser creates a StaticParser. region is the default phone region.
func NewStaticParser(limits Limits, region string) *StaticParser {
	return &StaticParser{limits: limits, coercion: newCoercer(region)}
}

// Name implements Parser.
func (p *StaticParser) Name() string { return "jsonld" }

// Parse implements Parser.
func (p *StaticParser) Parse(_ context.Context, page *model.ScrapedPage) (*model.ExtractedLead, error) {
	in, err := Prepare(page, p.limits)
	if err != nil {
		return nil, &Error{Kind: KindMalformedResponse, URL: pageURL(page), Err: err}
	}
	h := extractHints(in)
	if h.Title == "" {
		h.Title = in.Title
	}
	return p.coercion.fromHints(h, in.URL)
}

func pageURL(page *model.ScrapedPage) string {
	if page == nil {
		return ""
	}
	return page.URL
}
