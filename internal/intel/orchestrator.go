// Package intel runs the scrape, parse and score pipeline for listing URLs.
// Concurrent requests for the same normalized URL share one pipeline run.
package intel

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/comparables"
	"github.com/sells-group/listing-intel/internal/model"
	"github.com/sells-group/listing-intel/internal/monitoring"
	"github.com/sells-group/listing-intel/internal/parser"
	"github.com/sells-group/listing-intel/internal/resilience"
	"github.com/sells-group/listing-intel/internal/scorer"
	"github.com/sells-group/listing-intel/internal/scrape"
)

// DefaultTimeout bounds one whole pipeline run.
const DefaultTimeout = 180 * time.Second

// Options configures an Orchestrator. Zero values take defaults.
type Options struct {
	// Timeout is the overall deadline for scrape, parse and score.
	Timeout time.Duration
	// ComparablesTimeout bounds the market data lookup. Default: 5s.
	ComparablesTimeout time.Duration

	ScrapePolicy resilience.Policy
	ParsePolicy  resilience.Policy

	// Scorer defaults to one built from scorer.DefaultScorerConfig.
	Scorer *scorer.Scorer
	// Stats defaults to a fresh collector.
	Stats *monitoring.Stats

	Now func() time.Time
}

// Orchestrator coordinates the pipeline stages and owns the in-flight map.
type Orchestrator struct {
	scraper     scrape.Scraper
	parser      parser.Parser
	comparables comparables.Source
	scorer      *scorer.Scorer
	stats       *monitoring.Stats
	opts        Options

	mu       sync.Mutex
	inflight map[string]*call
}

// call is one shared pipeline run.
type call struct {
	key       string
	url       string // first caller's URL as given; this is what is fetched
	startedAt time.Time
	done      chan struct{}
	cancel    context.CancelFunc

	// guarded by Orchestrator.mu
	waiters int
	stage   model.Stage

	// written once before done is closed
	res *model.LeadOpportunity
	err error
}

// InFlightInfo describes one running analysis.
type InFlightInfo struct {
	URL       string      `json:"url"`
	Stage     model.Stage `json:"stage"`
	Waiters   int         `json:"waiters"`
	StartedAt time.Time   `json:"startedAt"`
}

// New creates an Orchestrator. comps may be nil, in which case every lead is
// scored without market data.
func New(s scrape.Scraper, p parser.Parser, comps comparables.Source, opts Options) (*Orchestrator, error) {
	if s == nil || p == nil {
		return nil, eris.New("intel: scraper and parser are required")
	}
	if comps == nil {
		comps = comparables.None{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ComparablesTimeout <= 0 {
		opts.ComparablesTimeout = 5 * time.Second
	}
	if opts.ScrapePolicy.Stage == "" {
		opts.ScrapePolicy.Stage = string(model.StageScraping)
	}
	if opts.ParsePolicy.Stage == "" {
		opts.ParsePolicy.Stage = string(model.StageParsing)
	}
	opts.ScrapePolicy.Retryable = scrape.IsTransient
	opts.ParsePolicy.Retryable = parser.IsTransient
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Stats == nil {
		opts.Stats = monitoring.NewStats()
	}
	if opts.Scorer == nil {
		sc, err := scorer.New(scorer.DefaultScorerConfig())
		if err != nil {
			return nil, err
		}
		opts.Scorer = sc
	}

	return &Orchestrator{
		scraper:     s,
		parser:      p,
		comparables: comps,
		scorer:      opts.Scorer,
		stats:       opts.Stats,
		opts:        opts,
		inflight:    make(map[string]*call),
	}, nil
}

// Stats returns the orchestrator's collector.
func (o *Orchestrator) Stats() *monitoring.Stats { return o.stats }

// AnalyzeLeadFromURL scrapes, parses and scores the listing at rawURL.
// Callers racing on the same normalized URL receive the same result pointer
// or the same error. If ctx ends first the caller gets a timeout error; the
// shared run is cancelled only once every caller has left.
func (o *Orchestrator) AnalyzeLeadFromURL(ctx context.Context, rawURL string) (*model.LeadOpportunity, error) {
	key, err := model.NormalizeURL(rawURL)
	if err != nil {
		return nil, &Error{Kind: KindInvalidURL, Stage: model.StageIdle, Cause: err}
	}

	c := o.join(ctx, key, strings.TrimSpace(rawURL))

	select {
	case <-c.done:
		return c.res, c.err
	case <-ctx.Done():
		o.leave(c)
		return nil, &Error{Kind: KindTimeout, Stage: o.stageOf(c), Cause: ctx.Err()}
	}
}

// join returns the in-flight call for key, starting one if none exists.
func (o *Orchestrator) join(ctx context.Context, key, rawURL string) *call {
	o.mu.Lock()
	defer o.mu.Unlock()

	if c, ok := o.inflight[key]; ok {
		c.waiters++
		o.stats.DedupJoined()
		zap.L().Debug("intel: joined in-flight analysis",
			zap.String("url", key),
			zap.Int("waiters", c.waiters),
		)
		return c
	}

	// The run outlives any single caller; it keeps ctx values only.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.Timeout)
	c := &call{
		key:       key,
		url:       rawURL,
		startedAt: o.opts.Now(),
		done:      make(chan struct{}),
		cancel:    cancel,
		waiters:   1,
		stage:     model.StageIdle,
	}
	o.inflight[key] = c
	o.stats.AnalysisStarted()
	go o.run(runCtx, c)
	return c
}

// leave drops one waiter and cancels the run when none remain.
func (o *Orchestrator) leave(c *call) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c.waiters--
	if c.waiters > 0 {
		return
	}
	if o.inflight[c.key] == c {
		delete(o.inflight, c.key)
	}
	zap.L().Info("intel: all waiters left, cancelling analysis", zap.String("url", c.key))
	c.cancel()
}

func (o *Orchestrator) run(ctx context.Context, c *call) {
	defer c.cancel()

	res, err := o.pipeline(ctx, c)
	o.record(c, res, err)

	o.mu.Lock()
	if o.inflight[c.key] == c {
		delete(o.inflight, c.key)
	}
	c.res, c.err = res, err
	o.mu.Unlock()

	close(c.done)
}

func (o *Orchestrator) pipeline(ctx context.Context, c *call) (*model.LeadOpportunity, error) {
	log := zap.L().With(zap.String("url", c.key))
	log.Info("intel: starting analysis")

	o.setStage(c, model.StageScraping)
	scrapePolicy := o.opts.ScrapePolicy
	scrapePolicy.OnRetry = o.onRetry(scrapePolicy.Stage, c.key)
	page, err := resilience.Retry(ctx, scrapePolicy, func(ctx context.Context) (*model.ScrapedPage, error) {
		return o.scraper.Scrape(ctx, c.url)
	})
	if err != nil {
		return nil, o.fail(ctx, c, model.StageScraping, err)
	}

	o.setStage(c, model.StageParsing)
	parsePolicy := o.opts.ParsePolicy
	parsePolicy.OnRetry = o.onRetry(parsePolicy.Stage, c.key)
	lead, err := resilience.Retry(ctx, parsePolicy, func(ctx context.Context) (*model.ExtractedLead, error) {
		return o.parser.Parse(ctx, page)
	})
	if err != nil {
		return nil, o.fail(ctx, c, model.StageParsing, err)
	}
	lead.SourceURL = c.url

	o.setStage(c, model.StageScoring)
	if err := ctx.Err(); err != nil {
		return nil, o.fail(ctx, c, model.StageScoring, err)
	}
	comps := o.lookupComparables(ctx, lead)
	now := o.opts.Now()
	result := o.scorer.Score(lead, comps, page.Timestamp, now)

	o.setStage(c, model.StageDone)
	log.Info("intel: analysis complete",
		zap.Float64("market_score", result.MarketScore),
		zap.Bool("high_priority", result.IsHighPriority),
		zap.String("scraped_by", page.Source),
		zap.Duration("elapsed", now.Sub(c.startedAt)),
	)

	return &model.LeadOpportunity{
		ExtractedLead:  *lead,
		MarketScore:    result.MarketScore,
		Recommendation: result.Recommendation,
		IsHighPriority: result.IsHighPriority,
		Breakdown:      result.Breakdown,
		AnalyzedAt:     now.UTC(),
	}, nil
}

// fail converts a stage error into the caller-facing error.
func (o *Orchestrator) fail(ctx context.Context, c *call, stage model.Stage, err error) error {
	o.setStage(c, model.StageFailed)

	kind := KindUpstreamFailure
	switch {
	case ctx.Err() != nil:
		kind = KindTimeout
	case scrape.KindOf(err) == scrape.KindInvalidURL:
		kind = KindInvalidURL
	}

	zap.L().Warn("intel: analysis failed",
		zap.String("url", c.key),
		zap.String("stage", string(stage)),
		zap.String("kind", string(kind)),
		zap.Error(err),
	)
	return &Error{Kind: kind, Stage: stage, Cause: err}
}

// lookupComparables never fails: errors and slow sources yield an empty
// context, which scores price deviation as neutral.
func (o *Orchestrator) lookupComparables(ctx context.Context, lead *model.ExtractedLead) *model.ComparableContext {
	lctx, cancel := context.WithTimeout(ctx, o.opts.ComparablesTimeout)
	defer cancel()

	comps, err := o.comparables.GetComparables(lctx, lead.Location, lead.Type)
	if err != nil {
		zap.L().Warn("intel: comparables lookup failed, scoring without market data",
			zap.String("url", lead.SourceURL),
			zap.String("location", lead.Location),
			zap.Error(err),
		)
		return &model.ComparableContext{Location: lead.Location, Type: lead.Type}
	}
	return comps
}

func (o *Orchestrator) onRetry(stage, url string) func(int, error, time.Duration) {
	logRetry := resilience.LogRetries(stage, url)
	return func(attempt int, err error, delay time.Duration) {
		o.stats.Retried(stage)
		logRetry(attempt, err, delay)
	}
}

func (o *Orchestrator) record(c *call, res *model.LeadOpportunity, err error) {
	if err == nil {
		o.stats.Completed(res.MarketScore, res.IsHighPriority)
		return
	}
	var ie *Error
	if errors.As(err, &ie) {
		o.stats.Failed(string(ie.Kind), ie.CauseKind())
		return
	}
	o.stats.Failed(string(KindUpstreamFailure), "")
}

func (o *Orchestrator) setStage(c *call, next model.Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !c.stage.CanTransition(next) {
		zap.L().Debug("intel: ignoring stage transition",
			zap.String("url", c.key),
			zap.String("from", string(c.stage)),
			zap.String("to", string(next)),
		)
		return
	}
	c.stage = next
}

func (o *Orchestrator) stageOf(c *call) model.Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return c.stage
}

// State returns the stage of the in-flight analysis for rawURL.
func (o *Orchestrator) State(rawURL string) (model.Stage, bool) {
	key, err := model.NormalizeURL(rawURL)
	if err != nil {
		return "", false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.inflight[key]
	if !ok {
		return "", false
	}
	return c.stage, true
}

// InFlight lists running analyses sorted by URL.
func (o *Orchestrator) InFlight() []InFlightInfo {
	o.mu.Lock()
	out := make([]InFlightInfo, 0, len(o.inflight))
	for _, c := range o.inflight {
		out = append(out, InFlightInfo{URL: c.key, Stage: c.stage, Waiters: c.waiters, StartedAt: c.startedAt})
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}
