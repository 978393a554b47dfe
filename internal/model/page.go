package model

import "time"

// ScrapedPage is the raw output of a scrape provider. It is owned by the call
// that produced it and discarded once the parser has consumed it.
type ScrapedPage struct {
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	HTML       string    `json:"html"`
	Text       string    `json:"text,omitempty"`
	Screenshot []byte    `json:"screenshot,omitempty"`
	StatusCode int       `json:"status_code"`
	Source     string    `json:"source"` // e.g. "local_http", "browser", "jina"
	Timestamp  time.Time `json:"timestamp"`
}

// HasScreenshot reports whether a visual capture was taken.
func (p *ScrapedPage) HasScreenshot() bool {
	return p != nil && len(p.Screenshot) > 0
}

// Content returns the HTML when present, falling back to extracted text.
// Reader-style providers (Jina) only return text.
func (p *ScrapedPage) Content() string {
	if p == nil {
		return ""
	}
	if p.HTML != "" {
		return p.HTML
	}
	return p.Text
}
