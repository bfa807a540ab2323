package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Experiment ExperimentConfig `yaml:"experiment" mapstructure:"experiment"`
	Dispatch   DispatchConfig   `yaml:"dispatch" mapstructure:"dispatch"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// ProvidersConfig holds LLM provider credentials and endpoints. A provider
// without a key is served by the offline stub.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     ProviderConfig `yaml:"openai" mapstructure:"openai"`
	Perplexity ProviderConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     ProviderConfig `yaml:"gemini" mapstructure:"gemini"`
	Ollama     ProviderConfig `yaml:"ollama" mapstructure:"ollama"`
	// StubMode selects the stub behaviour: echo, edges, fixed or fail.
	StubMode string `yaml:"stub_mode" mapstructure:"stub_mode"`
	// StubText is returned by the stub in fixed mode.
	StubText       string  `yaml:"stub_text" mapstructure:"stub_text"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// ProviderConfig holds one provider's settings.
type ProviderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Enabled forces registration of keyless providers such as ollama.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// PricingConfig overrides the built-in cost table (USD per 1K tokens).
type PricingConfig struct {
	Providers map[string][]ModelPrice `yaml:"providers" mapstructure:"providers"`
	Local     []string                `yaml:"local" mapstructure:"local"`
	Fallback  ModelPrice              `yaml:"fallback" mapstructure:"fallback"`
}

// ModelPrice prices models whose id contains Match.
type ModelPrice struct {
	Match  string  `yaml:"match" mapstructure:"match"`
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ExperimentConfig configures individual capability calls.
type ExperimentConfig struct {
	CallTimeoutSecs int    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	MaxTokens       int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	PromptVersion   string `yaml:"prompt_version" mapstructure:"prompt_version"`
}

// DispatchConfig configures batch fan-out.
type DispatchConfig struct {
	MaxInFlight           int `yaml:"max_in_flight" mapstructure:"max_in_flight"`
	RetryMaxAttempts      int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs int `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	// StreamGraceSecs is how long a finished progress stream stays
	// replayable after its last subscriber leaves.
	StreamGraceSecs int `yaml:"stream_grace_secs" mapstructure:"stream_grace_secs"`
}

// CircuitConfig configures per-provider circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// MonitoringConfig configures the background health checker started by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("HARNESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "harness.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434/v1")
	v.SetDefault("providers.stub_mode", "echo")
	v.SetDefault("providers.rate_limit_rps", 2.0)
	v.SetDefault("providers.rate_limit_burst", 4)
	v.SetDefault("experiment.call_timeout_secs", 120)
	v.SetDefault("experiment.max_tokens", 1024)
	v.SetDefault("dispatch.max_in_flight", 4)
	v.SetDefault("dispatch.retry_max_attempts", 3)
	v.SetDefault("dispatch.retry_initial_backoff_ms", 1000)
	v.SetDefault("dispatch.retry_max_backoff_ms", 20000)
	v.SetDefault("dispatch.stream_grace_secs", 60)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)

	// AutomaticEnv only sees keys viper already knows about.
	for _, key := range []string{
		"providers.anthropic.key", "providers.openai.key", "providers.perplexity.key",
		"providers.gemini.key", "providers.ollama.enabled", "providers.stub_text",
		"experiment.prompt_version", "monitoring.webhook_url",
	} {
		_ = v.BindEnv(key)
	}

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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "experiment", "migrate", "read":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres (got %q)", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if mode == "serve" || mode == "experiment" {
		if c.Dispatch.MaxInFlight < 1 || c.Dispatch.MaxInFlight > 64 {
			errs = append(errs, "dispatch.max_in_flight must be between 1 and 64")
		}
		if c.Experiment.CallTimeoutSecs <= 0 {
			errs = append(errs, "experiment.call_timeout_secs must be > 0")
		}
		switch c.Providers.StubMode {
		case "", "echo", "edges", "fixed", "fail":
		default:
			errs = append(errs, fmt.Sprintf("providers.stub_mode %q is not one of echo, edges, fixed, fail", c.Providers.StubMode))
		}
	}

	if mode == "serve" && c.Monitoring.Enabled {
		if c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
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
