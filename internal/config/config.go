package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Scrape      ScrapeConfig      `yaml:"scrape" mapstructure:"scrape"`
	Browser     BrowserConfig     `yaml:"browser" mapstructure:"browser"`
	Parser      ParserConfig      `yaml:"parser" mapstructure:"parser"`
	Scorer      ScorerConfig      `yaml:"scorer" mapstructure:"scorer"`
	Pipeline    PipelineConfig    `yaml:"pipeline" mapstructure:"pipeline"`
	Comparables ComparablesConfig `yaml:"comparables" mapstructure:"comparables"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Jina        JinaConfig        `yaml:"jina" mapstructure:"jina"`
	Firecrawl   FirecrawlConfig   `yaml:"firecrawl" mapstructure:"firecrawl"`
	RateLimit   RateLimitConfig   `yaml:"ratelimit" mapstructure:"ratelimit"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Host             string   `yaml:"host" mapstructure:"host"`
	Port             int      `yaml:"port" mapstructure:"port"`
	BatchConcurrency int      `yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
	MaxBatchSize     int      `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScrapeConfig configures the scrape stage.
type ScrapeConfig struct {
	// Providers lists scrape backends in fallback order.
	Providers        []string `yaml:"providers" mapstructure:"providers"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int      `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	UserAgent        string   `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	BreakerThreshold int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// BrowserConfig configures the headless Chrome renderer.
type BrowserConfig struct {
	ExecPath       string `yaml:"exec_path" mapstructure:"exec_path"`
	Screenshot     bool   `yaml:"screenshot" mapstructure:"screenshot"`
	ScreenshotQual int    `yaml:"screenshot_quality" mapstructure:"screenshot_quality"`
	SettleMs       int    `yaml:"settle_ms" mapstructure:"settle_ms"`
}

// ParserConfig configures the parse stage.
type ParserConfig struct {
	// Provider selects the parser backend: "anthropic" or "jsonld".
	Provider           string  `yaml:"provider" mapstructure:"provider"`
	MaxTextChars       int     `yaml:"max_text_chars" mapstructure:"max_text_chars"`
	MaxStructuredChars int     `yaml:"max_structured_chars" mapstructure:"max_structured_chars"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs   int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs       int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	RequestsPerSecond  float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst              int     `yaml:"burst" mapstructure:"burst"`
	PhoneRegion        string  `yaml:"phone_region" mapstructure:"phone_region"`
}

// ScorerConfig holds market scoring weights and thresholds.
type ScorerConfig struct {
	PriceDeviationWeight  float64 `yaml:"price_deviation_weight" mapstructure:"price_deviation_weight"`
	CompletenessWeight    float64 `yaml:"completeness_weight" mapstructure:"completeness_weight"`
	ContactWeight         float64 `yaml:"contact_weight" mapstructure:"contact_weight"`
	FreshnessWeight       float64 `yaml:"freshness_weight" mapstructure:"freshness_weight"`
	PriceDeviationSpan    float64 `yaml:"price_deviation_span" mapstructure:"price_deviation_span"`
	FreshnessHorizonHours float64 `yaml:"freshness_horizon_hours" mapstructure:"freshness_horizon_hours"`
	HighPriorityThreshold float64 `yaml:"high_priority_threshold" mapstructure:"high_priority_threshold"`
	QualifiedThreshold    float64 `yaml:"qualified_threshold" mapstructure:"qualified_threshold"`
	MonitorThreshold      float64 `yaml:"monitor_threshold" mapstructure:"monitor_threshold"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ComparablesConfig selects the comparable-market data source.
type ComparablesConfig struct {
	// Driver is one of "postgres", "sqlite", "static", "none".
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SeedFile    string `yaml:"seed_file" mapstructure:"seed_file"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Screenshot bool   `yaml:"screenshot" mapstructure:"screenshot"`
}

// RateLimitConfig configures the inbound analyze limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// MonitoringConfig configures the background alert checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	BlockedThreshold     int     `yaml:"blocked_threshold" mapstructure:"blocked_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// Load reads configuration from an optional .env file, an optional
// config.yaml, and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LISTINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare PORT/HOST as exposed by most container platforms.
	_ = v.BindEnv("server.port", "LISTINTEL_SERVER_PORT", "PORT")
	_ = v.BindEnv("server.host", "LISTINTEL_SERVER_HOST", "HOST")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.batch_concurrency", 4)
	v.SetDefault("server.max_batch_size", 25)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("scrape.providers", []string{"local_http", "browser"})
	v.SetDefault("scrape.timeout_secs", 30)
	v.SetDefault("scrape.max_attempts", 3)
	v.SetDefault("scrape.initial_backoff_ms", 500)
	v.SetDefault("scrape.max_backoff_ms", 8000)
	v.SetDefault("scrape.user_agent", "Mozilla/5.0 (compatible; ListingIntel/1.0)")
	v.SetDefault("scrape.max_body_bytes", 4*1024*1024)
	v.SetDefault("scrape.breaker_threshold", 3)
	v.SetDefault("scrape.breaker_reset_secs", 60)

	v.SetDefault("browser.screenshot", true)
	v.SetDefault("browser.screenshot_quality", 80)
	v.SetDefault("browser.settle_ms", 1500)

	v.SetDefault("parser.provider", "anthropic")
	v.SetDefault("parser.max_text_chars", 24000)
	v.SetDefault("parser.max_structured_chars", 8000)
	v.SetDefault("parser.max_attempts", 3)
	v.SetDefault("parser.initial_backoff_ms", 1000)
	v.SetDefault("parser.max_backoff_ms", 15000)
	v.SetDefault("parser.requests_per_second", 2.0)
	v.SetDefault("parser.burst", 4)
	v.SetDefault("parser.phone_region", "PT")

	v.SetDefault("scorer.price_deviation_weight", 30)
	v.SetDefault("scorer.completeness_weight", 25)
	v.SetDefault("scorer.contact_weight", 25)
	v.SetDefault("scorer.freshness_weight", 20)
	v.SetDefault("scorer.price_deviation_span", 0.5)
	v.SetDefault("scorer.freshness_horizon_hours", 72)
	v.SetDefault("scorer.high_priority_threshold", 75)
	v.SetDefault("scorer.qualified_threshold", 50)
	v.SetDefault("scorer.monitor_threshold", 25)

	v.SetDefault("pipeline.timeout_secs", 180)

	v.SetDefault("comparables.driver", "none")
	v.SetDefault("comparables.timeout_secs", 5)

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")

	v.SetDefault("ratelimit.requests_per_second", 5.0)
	v.SetDefault("ratelimit.burst", 10)

	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.blocked_threshold", 10)
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
