package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-intel/internal/model"
)

// Limits bounds how much of a page reaches the model.
type Limits struct {
	MaxTextChars       int
	MaxStructuredChars int
}

// DefaultLimits returns the default truncation limits.
func DefaultLimits() Limits {
	return Limits{MaxTextChars: 24000, MaxStructuredChars: 8000}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxTextChars <= 0 {
		l.MaxTextChars = d.MaxTextChars
	}
	if l.MaxStructuredChars <= 0 {
		l.MaxStructuredChars = d.MaxStructuredChars
	}
	return l
}

// Input is the deterministic, size-bounded view of a page given to a parser.
type Input struct {
	URL   string
	Title string
	// JSONLD holds raw application/ld+json blocks in document order.
	JSONLD []string
	// Meta holds og:* and product:* meta tags as "property: content" lines.
	Meta []string
	// Structured is JSONLD and Meta joined and capped at MaxStructuredChars.
	Structured string
	// Text is the visible page text, whitespace-collapsed and capped at
	// MaxTextChars runes.
	Text      string
	Truncated bool
}

// noiseSelector lists elements whose text never describes the listing.
const noiseSelector = "script, style, nav, footer, noscript, svg, iframe, template"

// Prepare builds the parser input for page. The same page and limits always
// produce the same Input.
func Prepare(page *model.ScrapedPage, lim Limits) (*Input, error) {
	if page == nil {
		return nil, eris.New("parser: nil page")
	}
	lim = lim.withDefaults()
	in := &Input{URL: page.URL, Title: strings.TrimSpace(page.Title)}

	if strings.TrimSpace(page.HTML) == "" {
		in.Text, in.Truncated = truncateRunes(collapseSpace(page.Text), lim.MaxTextChars)
		return in, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, eris.Wrap(err, "parser: parse html")
	}

	if in.Title == "" {
		in.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if block := strings.TrimSpace(s.Text()); block != "" {
			in.JSONLD = append(in.JSONLD, block)
		}
	})
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := s.AttrOr("property", "")
		if key == "" {
			key = s.AttrOr("name", "")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if !strings.HasPrefix(key, "og:") && !strings.HasPrefix(key, "product:") {
			return
		}
		if content := strings.TrimSpace(s.AttrOr("content", "")); content != "" {
			in.Meta = append(in.Meta, key+": "+content)
		}
	})

	structured := strings.Join(append(append([]string{}, in.JSONLD...), in.Meta...), "\n")
	var cut bool
	in.Structured, cut = truncateRunes(structured, lim.MaxStructuredChars)
	in.Truncated = in.Truncated || cut

	doc.Find(noiseSelector).Remove()
	body := doc.Find("body")
	text := body.Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}
	if strings.TrimSpace(text) == "" {
		text = page.Text
	}
	in.Text, cut = truncateRunes(collapseSpace(text), lim.MaxTextChars)
	in.Truncated = in.Truncated || cut

	return in, nil
}

// Empty reports whether the input carries nothing to extract from.
func (in *Input) Empty() bool {
	return in == nil || (in.Text == "" && in.Structured == "" && in.Title == "")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes keeps the first n runes of s.
func truncateRunes(s string, n int) (string, bool) {
	if n <= 0 || len(s) <= n {
		return s, false
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], true
		}
		count++
	}
	return s, false
}
