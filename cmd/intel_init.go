package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/comparables"
	"github.com/sells-group/listing-intel/internal/config"
	"github.com/sells-group/listing-intel/internal/intel"
	"github.com/sells-group/listing-intel/internal/monitoring"
	"github.com/sells-group/listing-intel/internal/parser"
	"github.com/sells-group/listing-intel/internal/resilience"
	"github.com/sells-group/listing-intel/internal/scorer"
	"github.com/sells-group/listing-intel/internal/scrape"
	anthropicpkg "github.com/sells-group/listing-intel/pkg/anthropic"
	"github.com/sells-group/listing-intel/pkg/firecrawl"
	"github.com/sells-group/listing-intel/pkg/jina"
)

// intelEnv holds the orchestrator and the resources it needs released.
type intelEnv struct {
	Orchestrator *intel.Orchestrator
	Stats        *monitoring.Stats
	closers      []func()
}

// Close releases resources held by the environment in reverse order.
func (e *intelEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initIntel builds the scraper chain, parser, comparables source and
// orchestrator from cfg. Callers should defer env.Close().
func initIntel(ctx context.Context, cfg *config.Config) (*intelEnv, error) {
	if err := checkTimeBudget(cfg); err != nil {
		return nil, err
	}

	env := &intelEnv{Stats: monitoring.NewStats()}

	sc, err := scorer.New(cfg.Scorer)
	if err != nil {
		return nil, eris.Wrap(err, "scorer config")
	}

	s, closeScraper, err := buildScraper(cfg)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closeScraper)

	p, err := buildParser(cfg, env.Stats)
	if err != nil {
		env.Close()
		return nil, err
	}

	comps, closeComps, err := comparables.Open(ctx, cfg.Comparables)
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "open comparables")
	}
	env.closers = append(env.closers, closeComps)

	o, err := intel.New(s, p, comps, intel.Options{
		Timeout:            pipelineTimeout(cfg),
		ComparablesTimeout: time.Duration(cfg.Comparables.TimeoutSecs) * time.Second,
		ScrapePolicy:       scrapePolicy(cfg),
		ParsePolicy: resilience.FromStageConfig("parsing",
			cfg.Parser.MaxAttempts, cfg.Parser.InitialBackoffMs, cfg.Parser.MaxBackoffMs),
		Scorer: sc,
		Stats:  env.Stats,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Orchestrator = o

	zap.L().Info("intel pipeline ready",
		zap.String("scraper", s.Name()),
		zap.String("parser", p.Name()),
		zap.String("comparables", cfg.Comparables.Driver),
	)
	return env, nil
}

// buildScraper assembles the configured providers into a chain wrapped in
// the hard scrape timeout.
func buildScraper(cfg *config.Config) (scrape.Scraper, func(), error) {
	breaker := resilience.FromBreakerConfig(cfg.Scrape.BreakerThreshold, cfg.Scrape.BreakerResetSecs)

	var providers []scrape.Scraper
	closeAll := func() {}
	for _, name := range cfg.Scrape.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "local_http":
			providers = append(providers, scrape.NewLocalScraper(
				scrape.WithUserAgent(cfg.Scrape.UserAgent),
				scrape.WithMaxBodyBytes(cfg.Scrape.MaxBodyBytes),
			))
		case "browser":
			b := scrape.NewBrowserScraper(scrape.BrowserOptions{
				ExecPath:          cfg.Browser.ExecPath,
				Screenshot:        cfg.Browser.Screenshot,
				ScreenshotQuality: cfg.Browser.ScreenshotQual,
				Settle:            time.Duration(cfg.Browser.SettleMs) * time.Millisecond,
			})
			prev := closeAll
			closeAll = func() { b.Close(); prev() }
			providers = append(providers, b)
		case "jina":
			if cfg.Jina.Key == "" {
				closeAll()
				return nil, nil, eris.New("scrape provider jina requires jina.key")
			}
			client := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
			providers = append(providers, scrape.NewJinaAdapter(client, breaker))
		case "firecrawl":
			if cfg.Firecrawl.Key == "" {
				closeAll()
				return nil, nil, eris.New("scrape provider firecrawl requires firecrawl.key")
			}
			client := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
			providers = append(providers, scrape.NewFirecrawlAdapter(client, breaker,
				scrape.WithFirecrawlScreenshot(cfg.Firecrawl.Screenshot)))
		default:
			closeAll()
			return nil, nil, eris.Errorf("unknown scrape provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, nil, eris.New("no scrape providers configured")
	}

	return scrape.WithTimeout(scrape.NewChain(providers...), scrapeTimeout(cfg)), closeAll, nil
}

func scrapeTimeout(cfg *config.Config) time.Duration {
	if cfg.Scrape.TimeoutSecs <= 0 {
		return scrape.DefaultTimeout
	}
	return time.Duration(cfg.Scrape.TimeoutSecs) * time.Second
}

func pipelineTimeout(cfg *config.Config) time.Duration {
	if cfg.Pipeline.TimeoutSecs <= 0 {
		return intel.DefaultTimeout
	}
	return time.Duration(cfg.Pipeline.TimeoutSecs) * time.Second
}

func scrapePolicy(cfg *config.Config) resilience.Policy {
	return resilience.FromStageConfig("scraping",
		cfg.Scrape.MaxAttempts, cfg.Scrape.InitialBackoffMs, cfg.Scrape.MaxBackoffMs)
}

// checkTimeBudget rejects configs where scrape retries alone can outlast the
// pipeline deadline. Exhausted retries must surface as upstream failures,
// not be cut off into timeouts.
func checkTimeBudget(cfg *config.Config) error {
	p := scrapePolicy(cfg)
	budget := p.MaxElapsed(scrapeTimeout(cfg))
	if deadline := pipelineTimeout(cfg); budget >= deadline {
		return eris.Errorf("pipeline timeout %s must exceed the scrape retry budget %s (%d attempts of %s plus backoff)",
			deadline, budget, p.MaxAttempts, scrapeTimeout(cfg))
	}
	return nil
}

// buildParser selects the parser backend. Model spend is recorded on stats.
func buildParser(cfg *config.Config, stats *monitoring.Stats) (parser.Parser, error) {
	limits := parser.Limits{
		MaxTextChars:       cfg.Parser.MaxTextChars,
		MaxStructuredChars: cfg.Parser.MaxStructuredChars,
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Parser.Provider)) {
	case "anthropic", "":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("parser provider anthropic requires anthropic.key")
		}
		client := anthropicpkg.NewClient(cfg.Anthropic.Key)
		return parser.NewAIParser(client, parser.AIOptions{
			Model:             cfg.Anthropic.Model,
			MaxTokens:         cfg.Anthropic.MaxTokens,
			Limits:            limits,
			PhoneRegion:       cfg.Parser.PhoneRegion,
			RequestsPerSecond: cfg.Parser.RequestsPerSecond,
			Burst:             cfg.Parser.Burst,
			OnCost:            stats.AddCost,
		}), nil
	case "jsonld":
		return parser.NewStaticParser(limits, cfg.Parser.PhoneRegion), nil
	default:
		return nil, eris.Errorf("unknown parser provider %q", cfg.Parser.Provider)
	}
}
