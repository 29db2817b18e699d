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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Escalation EscalationConfig `yaml:"escalation" mapstructure:"escalation"`
	Overlays   OverlayConfig    `yaml:"overlays" mapstructure:"overlays"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Failures   FailureConfig    `yaml:"failures" mapstructure:"failures"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the result sink and failure log backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, or xlsx
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	XLSXPath    string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the secondary scorer.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ExtractConfig tunes the pattern extractor and candidate filter.
type ExtractConfig struct {
	LowTierGate     int      `yaml:"low_tier_gate" mapstructure:"low_tier_gate"`
	MinCodeLength   int      `yaml:"min_code_length" mapstructure:"min_code_length"`
	MaxCodeLength   int      `yaml:"max_code_length" mapstructure:"max_code_length"`
	MaxFlatDiscount float64  `yaml:"max_flat_discount" mapstructure:"max_flat_discount"`
	ExtraBlacklist  []string `yaml:"extra_blacklist" mapstructure:"extra_blacklist"`
}

// ScoringConfig holds the confidence scorer weights, bonuses and penalties.
type ScoringConfig struct {
	CodeWeight    float64 `yaml:"code_weight" mapstructure:"code_weight"`
	ContextWeight float64 `yaml:"context_weight" mapstructure:"context_weight"`
	LinkWeight    float64 `yaml:"link_weight" mapstructure:"link_weight"`
	BestTierBlend float64 `yaml:"best_tier_blend" mapstructure:"best_tier_blend"`

	HighTierBonus float64 `yaml:"high_tier_bonus" mapstructure:"high_tier_bonus"`
	SponsorBonus  float64 `yaml:"sponsor_bonus" mapstructure:"sponsor_bonus"`
	CoherenceCap  float64 `yaml:"coherence_cap" mapstructure:"coherence_cap"`

	MaxCodes             int     `yaml:"max_codes" mapstructure:"max_codes"`
	SpamPenaltyBase      float64 `yaml:"spam_penalty_base" mapstructure:"spam_penalty_base"`
	SpamPenaltyStep      float64 `yaml:"spam_penalty_step" mapstructure:"spam_penalty_step"`
	SpamPenaltyCap       float64 `yaml:"spam_penalty_cap" mapstructure:"spam_penalty_cap"`
	SuspiciousPenalty    float64 `yaml:"suspicious_penalty" mapstructure:"suspicious_penalty"`
	SuspiciousPenaltyCap float64 `yaml:"suspicious_penalty_cap" mapstructure:"suspicious_penalty_cap"`
	EchoPenalty          float64 `yaml:"echo_penalty" mapstructure:"echo_penalty"`
	EchoPenaltyCap       float64 `yaml:"echo_penalty_cap" mapstructure:"echo_penalty_cap"`
}

// EscalationConfig configures thresholds and the secondary scorer call path.
type EscalationConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	AcceptThreshold   float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	ReviewThreshold   float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	AIThreshold       float64 `yaml:"ai_threshold" mapstructure:"ai_threshold"`
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ExcerptChars      int     `yaml:"excerpt_chars" mapstructure:"excerpt_chars"`
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerFailures   int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// OverlayConfig points at the per-source rule overlay file.
type OverlayConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentItems int `yaml:"max_concurrent_items" mapstructure:"max_concurrent_items"`
}

// FailureConfig configures escalation failure retry bookkeeping.
type FailureConfig struct {
	MaxRetries       int `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffMins int `yaml:"retry_backoff_mins" mapstructure:"retry_backoff_mins"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures health alerts raised by the API server.
type MonitoringConfig struct {
	Enabled                 bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	ReviewRateThreshold     float64 `yaml:"review_rate_threshold" mapstructure:"review_rate_threshold"`
	FailureBacklogThreshold int     `yaml:"failure_backlog_threshold" mapstructure:"failure_backlog_threshold"`
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
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "promo.db")
	v.SetDefault("store.xlsx_path", "promos.xlsx")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("extract.low_tier_gate", 2)
	v.SetDefault("extract.min_code_length", 3)
	v.SetDefault("extract.max_code_length", 15)
	v.SetDefault("extract.max_flat_discount", 10000)
	v.SetDefault("scoring.code_weight", 0.65)
	v.SetDefault("scoring.context_weight", 0.20)
	v.SetDefault("scoring.link_weight", 0.15)
	v.SetDefault("scoring.best_tier_blend", 0.7)
	v.SetDefault("scoring.high_tier_bonus", 0.05)
	v.SetDefault("scoring.sponsor_bonus", 0.05)
	v.SetDefault("scoring.coherence_cap", 0.12)
	v.SetDefault("scoring.max_codes", 5)
	v.SetDefault("scoring.spam_penalty_base", 0.15)
	v.SetDefault("scoring.spam_penalty_step", 0.03)
	v.SetDefault("scoring.spam_penalty_cap", 0.25)
	v.SetDefault("scoring.suspicious_penalty", 0.10)
	v.SetDefault("scoring.suspicious_penalty_cap", 0.20)
	v.SetDefault("scoring.echo_penalty", 0.15)
	v.SetDefault("scoring.echo_penalty_cap", 0.30)
	v.SetDefault("escalation.enabled", true)
	v.SetDefault("escalation.accept_threshold", 0.6)
	v.SetDefault("escalation.review_threshold", 0.3)
	v.SetDefault("escalation.ai_threshold", 0.4)
	v.SetDefault("escalation.concurrency", 4)
	v.SetDefault("escalation.requests_per_minute", 50)
	v.SetDefault("escalation.burst", 1)
	v.SetDefault("escalation.timeout_secs", 30)
	v.SetDefault("escalation.excerpt_chars", 800)
	v.SetDefault("escalation.max_attempts", 2)
	v.SetDefault("escalation.breaker_failures", 5)
	v.SetDefault("escalation.breaker_reset_secs", 60)
	v.SetDefault("overlays.path", "overlays.yaml")
	v.SetDefault("batch.max_concurrent_items", 8)
	v.SetDefault("failures.max_retries", 3)
	v.SetDefault("failures.retry_backoff_mins", 15)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.review_rate_threshold", 0.5)
	v.SetDefault("monitoring.failure_backlog_threshold", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the fields a command mode needs are present and
// consistent. Modes: "extract" (single item, no store), "batch", "retry",
// "results" and "serve". Scoring weights are validated by the confidence
// package.
func (c *Config) Validate(mode string) error {
	var errs []string

	e := c.Escalation
	for _, th := range []struct {
		name string
		v    float64
	}{
		{"accept_threshold", e.AcceptThreshold},
		{"review_threshold", e.ReviewThreshold},
		{"ai_threshold", e.AIThreshold},
	} {
		if th.v < 0 || th.v > 1 {
			errs = append(errs, "escalation."+th.name+" must be between 0 and 1")
		}
	}
	if e.ReviewThreshold > e.AcceptThreshold {
		errs = append(errs, "escalation.review_threshold must be <= accept_threshold")
	}
	if e.Concurrency <= 0 {
		errs = append(errs, "escalation.concurrency must be > 0")
	}
	if e.RequestsPerMinute <= 0 {
		errs = append(errs, "escalation.requests_per_minute must be > 0")
	}

	switch mode {
	case "extract":
	case "batch", "retry", "results", "serve":
		errs = append(errs, c.validateStore()...)
	default:
		errs = append(errs, "unknown validation mode "+mode)
	}

	if mode == "batch" && c.Batch.MaxConcurrentItems <= 0 {
		errs = append(errs, "batch.max_concurrent_items must be > 0")
	}
	if mode == "retry" && c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for " + c.Store.Driver}
		}
	case "xlsx":
		var errs []string
		if c.Store.XLSXPath == "" {
			errs = append(errs, "store.xlsx_path is required for xlsx")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the xlsx failure log")
		}
		return errs
	default:
		return []string{"store.driver must be sqlite, postgres, or xlsx"}
	}
	return nil
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
