package scrape

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-intel/internal/model"
	"github.com/sells-group/listing-intel/internal/resilience"
	"github.com/sells-group/listing-intel/pkg/jina"
)

// JinaAdapter wraps a Jina Reader client as a Scraper with a circuit breaker.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.Breaker
}

// NewJinaAdapter creates a JinaAdapter from a Jina client. Once the breaker
// opens, Supports reports false and the chain skips Jina until it resets.
func NewJinaAdapter(client jina.Client, cfg resilience.BreakerConfig) *JinaAdapter {
	return &JinaAdapter{
		client:  client,
		breaker: newProviderBreaker("jina", cfg),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns true unless the circuit breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*model.ScrapedPage, error) {
	if err := j.breaker.Allow(); err != nil {
		return nil, circuitOpenError(j.Name(), targetURL)
	}

	page, err := j.scrape(ctx, targetURL)
	j.breaker.Record(err)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (j *JinaAdapter) scrape(ctx context.Context, targetURL string) (*model.ScrapedPage, error) {
	resp, err := j.client.Read(ctx, targetURL, jina.WithFormat("markdown"))
	if err != nil {
		var se *jina.StatusError
		if errors.As(err, &se) {
			kind := kindForStatus(se.StatusCode)
			if kind == "" || kind == KindNotFound {
				// Jina's own 404/422 means it could not render, not that the listing is gone.
				kind = KindRenderFailure
			}
			return nil, &Error{Kind: kind, Provider: j.Name(), URL: targetURL, StatusCode: se.StatusCode, Err: err}
		}
		return nil, classify(ctx, j.Name(), targetURL, err)
	}

	if reason := needsFallback(resp); reason != "" {
		kind := KindRenderFailure
		if reason == "challenge" {
			kind = KindBlocked
		}
		return nil, &Error{Kind: kind, Provider: j.Name(), URL: targetURL, StatusCode: resp.Code,
			Err: eris.Errorf("jina: response needs fallback (%s)", reason)}
	}

	pageURL := resp.Data.URL
	if pageURL == "" {
		pageURL = targetURL
	}
	return &model.ScrapedPage{
		URL:        pageURL,
		Title:      resp.Data.Title,
		HTML:       resp.Data.HTML,
		Text:       resp.Data.Content,
		StatusCode: 200,
		Source:     j.Name(),
		Timestamp:  time.Now().UTC(),
	}, nil
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// needsFallback returns "" when a Jina response has usable content, or a
// short reason when another provider should try.
func needsFallback(resp *jina.ReadResponse) string {
	if resp == nil {
		return "empty"
	}
	if resp.Code != 0 && resp.Code != 200 {
		return "status"
	}

	content := strings.TrimSpace(resp.Data.Content)
	if content == "" {
		content = strings.TrimSpace(resp.Data.HTML)
	}
	if len(content) < 100 {
		return "empty"
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return "challenge"
		}
	}
	return ""
}
