package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Workbook   WorkbookConfig   `yaml:"workbook" mapstructure:"workbook"`
	Journal    JournalConfig    `yaml:"journal" mapstructure:"journal"`
	Tavily     TavilyConfig     `yaml:"tavily" mapstructure:"tavily"`
	Brave      BraveConfig      `yaml:"brave" mapstructure:"brave"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// WorkbookConfig locates the institutions workbook.
type WorkbookConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	Sheet       string `yaml:"sheet" mapstructure:"sheet"`
	SkipRows    int    `yaml:"skip_rows" mapstructure:"skip_rows"`
	BackupDir   string `yaml:"backup_dir" mapstructure:"backup_dir"`
	BackupEvery int    `yaml:"backup_every" mapstructure:"backup_every"`
}

// JournalConfig configures the run journal backend.
type JournalConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TavilyConfig holds Tavily Search API settings.
type TavilyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BraveConfig holds Brave Web Search API settings.
type BraveConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GoogleConfig holds Google Custom Search settings.
type GoogleConfig struct {
	Key      string `yaml:"key" mapstructure:"key"`
	EngineID string `yaml:"engine_id" mapstructure:"engine_id"`
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds Anthropic API settings for consolidation.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotionConfig holds Notion API credentials for the review export.
type NotionConfig struct {
	Token    string `yaml:"token" mapstructure:"token"`
	ReviewDB string `yaml:"review_db" mapstructure:"review_db"`
}

// EnrichConfig configures pipeline behavior.
type EnrichConfig struct {
	Concurrency         int    `yaml:"concurrency" mapstructure:"concurrency"`
	ProviderTimeoutSecs int    `yaml:"provider_timeout_secs" mapstructure:"provider_timeout_secs"`
	ConfirmOnTie        bool   `yaml:"confirm_on_tie" mapstructure:"confirm_on_tie"`
	DisagreementPolicy  string `yaml:"disagreement_policy" mapstructure:"disagreement_policy"`
	PolicyPath          string `yaml:"policy_path" mapstructure:"policy_path"`
	FlushRetries        int    `yaml:"flush_retries" mapstructure:"flush_retries"`
}

// RetryConfig configures retry behavior for provider and model calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// RateLimitConfig sets per-provider request-per-second ceilings. Quotas are
// account-wide, so one limiter per provider is shared across all workers.
type RateLimitConfig struct {
	DefaultRPS float64            `yaml:"default_rps" mapstructure:"default_rps"`
	Burst      int                `yaml:"burst" mapstructure:"burst"`
	Providers  map[string]float64 `yaml:"providers" mapstructure:"providers"`
}

// ServerConfig configures the status API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("enrich")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("workbook.path", "instituicoes.xlsx")
	v.SetDefault("workbook.sheet", "Instituições")
	v.SetDefault("workbook.skip_rows", 0)
	v.SetDefault("workbook.backup_dir", ".")
	v.SetDefault("workbook.backup_every", 5)
	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.path", "enrich-runs.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("enrich.provider_timeout_secs", 30)
	v.SetDefault("enrich.confirm_on_tie", false)
	v.SetDefault("enrich.disagreement_policy", "keep")
	v.SetDefault("enrich.flush_retries", 3)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("rate_limit.default_rps", 1.0)
	v.SetDefault("rate_limit.burst", 2)
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("brave.base_url", "https://api.search.brave.com/res/v1")
	v.SetDefault("google.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)

	// Read config file (optional)
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

// Validate checks that the configuration can support the given mode.
// Modes: "enrich" (full pipeline), "review" (Notion export), "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Enrich.Concurrency < 1 || c.Enrich.Concurrency > 50 {
		problems = append(problems, "enrich.concurrency must be between 1 and 50")
	}

	switch mode {
	case "enrich":
		if c.Workbook.Path == "" {
			problems = append(problems, "workbook.path is required")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if !c.AnyProviderConfigured() {
			problems = append(problems, "at least one provider key is required")
		}
		switch c.Enrich.DisagreementPolicy {
		case "keep", "prefer-majority":
		default:
			problems = append(problems, "enrich.disagreement_policy must be keep or prefer-majority")
		}
	case "review":
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.ReviewDB == "" {
			problems = append(problems, "notion.review_db is required")
		}
		if c.Workbook.Path == "" {
			problems = append(problems, "workbook.path is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// AnyProviderConfigured reports whether at least one search provider has a
// credential. Providers without credentials are disabled, not errors.
func (c *Config) AnyProviderConfigured() bool {
	return c.Tavily.Key != "" || c.Brave.Key != "" || c.Google.Key != "" ||
		c.Perplexity.Key != "" || c.Jina.Key != "" || c.Firecrawl.Key != ""
}

// ProviderRPS returns the rate limit for the named provider, falling back to
// the default ceiling.
func (c *Config) ProviderRPS(name string) float64 {
	if rps, ok := c.RateLimit.Providers[name]; ok && rps > 0 {
		return rps
	}
	if c.RateLimit.DefaultRPS > 0 {
		return c.RateLimit.DefaultRPS
	}
	return 1.0
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
