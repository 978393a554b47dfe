package parser

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/model"
	"github.com/sells-group/listing-intel/pkg/anthropic"
)

// AIOptions configures an AIParser.
type AIOptions struct {
	Model       string
	MaxTokens   int64
	Limits      Limits
	PhoneRegion string
	// RequestsPerSecond and Burst bound calls to the model across all
	// concurrent analyses. A non-positive rate disables limiting.
	RequestsPerSecond float64
	Burst             int
	// OnCost receives the estimated USD cost of each model call.
	OnCost func(usd float64)
}

// AIParser extracts leads with the Anthropic Messages API.
type AIParser struct {
	client   anthropic.Client
	opts     AIOptions
	limiter  *AdaptiveLimiter
	coercion coercer
	system   []anthropic.SystemBlock
}

// NewAIParser creates an AIParser.
func NewAIParser(client anthropic.Client, opts AIOptions) *AIParser {
	if opts.Model == "" {
		opts.Model = "claude-haiku-4-5-20251001"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	opts.Limits = opts.Limits.withDefaults()
	return &AIParser{
		client:   client,
		opts:     opts,
		limiter:  NewAdaptiveLimiter(opts.RequestsPerSecond, opts.Burst),
		coercion: newCoercer(opts.PhoneRegion),
		system:   anthropic.BuildCachedSystemBlocks(systemPrompt),
	}
}

// Name implements Parser.
func (p *AIParser) Name() string { return "anthropic" }

// Parse implements Parser.
func (p *AIParser) Parse(ctx context.Context, page *model.ScrapedPage) (*model.ExtractedLead, error) {
	in, err := Prepare(page, p.opts.Limits)
	if err != nil {
		return nil, &Error{Kind: KindMalformedResponse, URL: pageURL(page), Err: err}
	}
	if in.Empty() {
		return nil, &Error{Kind: KindLowConfidence, URL: in.URL, Err: eris.New("page has no content")}
	}

	h := extractHints(in)
	if h.Title == "" {
		h.Title = in.Title
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindModelUnavailable, URL: in.URL, Err: eris.Wrap(err, "wait for rate limiter")}
	}

	temp := 0.0
	resp, err := p.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		System:      p.system,
		Messages:    []anthropic.Message{{Role: "user", Content: buildUserPrompt(in)}},
		Temperature: &temp,
	})
	if err != nil {
		status := anthropic.StatusCode(err)
		if status == http.StatusTooManyRequests || status == 529 {
			p.limiter.OnRateLimit()
		}
		return nil, &Error{Kind: kindForModelStatus(status), URL: in.URL, Err: err}
	}
	p.limiter.OnSuccess()
	resp.Usage.LogCost(p.opts.Model, in.URL)
	if p.opts.OnCost != nil {
		p.opts.OnCost(resp.Usage.EstimateCost(p.opts.Model))
	}

	if resp.StopReason == "max_tokens" {
		zap.L().Warn("parser: model output hit max_tokens",
			zap.String("url", in.URL),
			zap.Int64("max_tokens", p.opts.MaxTokens),
		)
	}

	return p.coercion.fromModel(resp.Text(), h, in.URL)
}

// kindForModelStatus maps an API status to a parse failure kind. Requests the
// API rejects as invalid fail the same way on retry; everything else,
// including transport errors (status 0), is treated as unavailability.
func kindForModelStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return KindMalformedResponse
	default:
		return KindModelUnavailable
	}
}
