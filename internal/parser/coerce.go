package parser

import (
	"bytes"
	"encoding/json"
	"math"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-intel/internal/model"
)

const (
	defaultPhoneRegion = "PT"
	maxDescription     = 2000
)

// rawLead mirrors the model's JSON with every field left undecoded, so one
// badly typed field is dropped without losing the rest.
type rawLead struct {
	Title       json.RawMessage `json:"title"`
	Price       json.RawMessage `json:"price"`
	Currency    json.RawMessage `json:"currency"`
	Location    json.RawMessage `json:"location"`
	Type        json.RawMessage `json:"type"`
	Description json.RawMessage `json:"description"`
	Bedrooms    json.RawMessage `json:"bedrooms"`
	Bathrooms   json.RawMessage `json:"bathrooms"`
	Area        json.RawMessage `json:"area"`
	ContactInfo json.RawMessage `json:"contactInfo"`
	PortalName  json.RawMessage `json:"portalName"`
	ExternalID  json.RawMessage `json:"externalId"`
}

type rawContact struct {
	Phone json.RawMessage `json:"phone"`
	Email json.RawMessage `json:"email"`
	Name  json.RawMessage `json:"name"`
}

// propertyTypes maps words found in a type label to a canonical type, in
// match order.
var propertyTypes = []struct{ word, kind string }{
	{"apartment", "apartment"},
	{"apartamento", "apartment"},
	{"flat", "apartment"},
	{"condo", "apartment"},
	{"studio", "apartment"},
	{"penthouse", "apartment"},
	{"townhouse", "house"},
	{"house", "house"},
	{"moradia", "house"},
	{"villa", "house"},
	{"casa", "house"},
	{"land", "land"},
	{"plot", "land"},
	{"terreno", "land"},
	{"commercial", "commercial"},
	{"office", "commercial"},
	{"shop", "commercial"},
	{"warehouse", "commercial"},
	{"room", "room"},
	{"quarto", "room"},
}

// coercer validates and normalizes extracted values.
type coercer struct {
	region string
}

func newCoercer(region string) coercer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = defaultPhoneRegion
	}
	return coercer{region: region}
}

// fromModel decodes the model's answer. Values that fail type or range checks
// fall back to structured hints, then to null.
func (c coercer) fromModel(text string, h hints, sourceURL string) (*model.ExtractedLead, error) {
	cleaned := cleanJSON(text)
	var raw rawLead
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&raw); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, URL: sourceURL, Err: eris.Wrap(err, "decode model output")}
	}

	merged := hints{
		Title:       firstNonEmpty(rawString(raw.Title), h.Title),
		Description: firstNonEmpty(rawString(raw.Description), h.Description),
		Location:    firstNonEmpty(rawString(raw.Location), h.Location),
		Type:        firstNonEmpty(rawString(raw.Type), h.Type),
		Currency:    firstNonEmpty(rawString(raw.Currency), h.Currency),
		ExternalID:  firstNonEmpty(rawString(raw.ExternalID), h.ExternalID),
		Phone:       h.Phone,
		Email:       h.Email,
		Name:        h.Name,
		Price:       h.Price,
		Bedrooms:    h.Bedrooms,
		Bathrooms:   h.Bathrooms,
		Area:        h.Area,
	}
	if p, ok := rawNumber(raw.Price); ok && p > 0 {
		merged.Price = p
	}
	if n, ok := rawNumber(raw.Bedrooms); ok {
		merged.Bedrooms = nonNegativeInt(n)
	}
	if n, ok := rawNumber(raw.Bathrooms); ok {
		merged.Bathrooms = nonNegative(n, false)
	}
	if n, ok := rawNumber(raw.Area); ok {
		merged.Area = nonNegative(n, true)
	}

	var contact rawContact
	if len(raw.ContactInfo) > 0 && json.Unmarshal(raw.ContactInfo, &contact) == nil {
		// A model value only replaces a hint when it survives validation.
		if phone := rawString(contact.Phone); c.phone(phone) != nil {
			merged.Phone = phone
		}
		if email := rawString(contact.Email); c.email(email) != nil {
			merged.Email = email
		}
		merged.Name = firstNonEmpty(rawString(contact.Name), merged.Name)
	}

	lead, err := c.fromHints(merged, sourceURL)
	if err != nil {
		return nil, err
	}
	if portal := rawString(raw.PortalName); portal != "" {
		lead.PortalName = portal
	}
	return lead, nil
}

// fromHints builds and validates a lead. title, price and location are
// mandatory; the rest become null when absent or invalid.
func (c coercer) fromHints(h hints, sourceURL string) (*model.ExtractedLead, error) {
	lead := &model.ExtractedLead{
		SourceURL:   sourceURL,
		Title:       strings.TrimSpace(h.Title),
		Currency:    normalizeCurrency(h.Currency),
		Location:    strings.TrimSpace(h.Location),
		Type:        normalizeType(h.Type),
		Description: clip(strings.TrimSpace(h.Description), maxDescription),
		PortalName:  model.PortalFromHost(sourceURL),
	}
	if h.Price > 0 && !math.IsInf(h.Price, 0) && !math.IsNaN(h.Price) {
		lead.Price = h.Price
	}
	if h.Bedrooms != nil && *h.Bedrooms >= 0 {
		lead.Bedrooms = h.Bedrooms
	}
	if h.Bathrooms != nil {
		lead.Bathrooms = nonNegative(*h.Bathrooms, false)
	}
	if h.Area != nil {
		lead.Area = nonNegative(*h.Area, true)
	}
	if id := strings.TrimSpace(h.ExternalID); id != "" {
		lead.ExternalID = &id
	}

	contact := &model.ContactInfo{
		Phone: c.phone(h.Phone),
		Email: c.email(h.Email),
	}
	if name := strings.TrimSpace(h.Name); name != "" {
		contact.Name = &name
	}
	if !contact.IsEmpty() {
		lead.ContactInfo = contact
	}

	var missing []string
	if lead.Title == "" {
		missing = append(missing, "title")
	}
	if lead.Price <= 0 {
		missing = append(missing, "price")
	}
	if lead.Location == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return nil, &Error{
			Kind: KindLowConfidence,
			URL:  sourceURL,
			Err:  eris.Errorf("unrecoverable fields: %s", strings.Join(missing, ", ")),
		}
	}
	return lead, nil
}

// phone returns raw in E.164 form, or nil when it is not a valid number.
func (c coercer) phone(raw string) *string {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "tel:"))
	if raw == "" {
		return nil
	}
	number, err := phonenumbers.Parse(raw, c.region)
	if err != nil {
		return nil
	}
	if !phonenumbers.IsPossibleNumber(number) || !phonenumbers.IsValidNumber(number) {
		return nil
	}
	e164 := phonenumbers.Format(number, phonenumbers.E164)
	return &e164
}

// email returns the bare lowercased address, or nil when raw does not parse.
func (c coercer) email(raw string) *string {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "mailto:"))
	if raw == "" {
		return nil
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return nil
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || !strings.Contains(addr.Address[at:], ".") {
		return nil
	}
	out := strings.ToLower(addr.Address)
	return &out
}

// rawString decodes a JSON string or number. null and other types yield "".
func rawString(m json.RawMessage) string {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return ""
	}
	var s string
	if json.Unmarshal(m, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(m, &n) == nil {
		return n.String()
	}
	return ""
}

// rawNumber decodes a JSON number or a numeric string such as "250.000 €".
func rawNumber(m json.RawMessage) (float64, bool) {
	m = bytes.TrimSpace(m)
	if len(m) == 0 || bytes.Equal(m, []byte("null")) {
		return 0, false
	}
	var f float64
	if json.Unmarshal(m, &f) == nil {
		return f, true
	}
	var s string
	if json.Unmarshal(m, &s) == nil {
		return parseNumber(s)
	}
	return 0, false
}

func nonNegativeInt(n float64) *int {
	if n < 0 || math.IsNaN(n) || n > math.MaxInt32 {
		return nil
	}
	i := int(math.Round(n))
	return &i
}

// nonNegative returns &n when n is in range; strict also rejects zero.
func nonNegative(n float64, strict bool) *float64 {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 || (strict && n == 0) {
		return nil
	}
	return &n
}

func normalizeType(t string) string {
	key := strings.ToLower(strings.TrimSpace(t))
	for _, pt := range propertyTypes {
		if key == pt.word {
			return pt.kind
		}
	}
	for _, pt := range propertyTypes {
		if strings.Contains(key, pt.word) {
			return pt.kind
		}
	}
	return "other"
}

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	switch c {
	case "€":
		return "EUR"
	case "$":
		return "USD"
	case "£":
		return "GBP"
	case "R$":
		return "BRL"
	}
	if len(c) == 3 && strings.IndexFunc(c, func(r rune) bool { return r < 'A' || r > 'Z' }) < 0 {
		return c
	}
	return ""
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	out, _ := truncateRunes(s, n)
	return out
}
