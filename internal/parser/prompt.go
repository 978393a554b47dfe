package parser

import (
	"strings"
)

const systemPrompt = `You extract real-estate listing data from web pages.

Return ONLY a JSON object with exactly these keys:
- "title": string, the listing headline
- "price": number, the asking price as a plain number without currency symbols or separators
- "currency": string, ISO 4217 code such as "EUR" or "USD"
- "location": string, the most specific locality shown (neighbourhood, city)
- "type": string, one of "apartment", "house", "land", "commercial", "room", "other"
- "description": string, at most 500 characters
- "bedrooms": integer or null
- "bathrooms": number or null
- "area": number in square meters or null
- "contactInfo": {"phone": string or null, "email": string or null, "name": string or null} or null
- "portalName": string, the website publishing the listing
- "externalId": string or null, the portal's own listing reference

Rules:
- Use null for anything the page does not state. Never guess.
- If the price is "on request" or missing, use null for price.
- Prefer values from structured data (JSON-LD, og: tags) over free text when both exist.
- Do not wrap the JSON in markdown.`

// buildUserPrompt renders the per-page message. Sections appear in a fixed
// order so identical input yields an identical prompt.
func buildUserPrompt(in *Input) string {
	var b strings.Builder
	b.WriteString("URL: ")
	b.WriteString(in.URL)
	b.WriteString("\n")
	if in.Title != "" {
		b.WriteString("Page title: ")
		b.WriteString(in.Title)
		b.WriteString("\n")
	}
	if in.Structured != "" {
		b.WriteString("\nStructured data:\n")
		b.WriteString(in.Structured)
		b.WriteString("\n")
	}
	b.WriteString("\nVisible text:\n")
	b.WriteString(in.Text)
	if in.Truncated {
		b.WriteString("\n[content truncated]")
	}
	return b.String()
}

// cleanJSON strips markdown fences and surrounding prose, leaving the
// outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
