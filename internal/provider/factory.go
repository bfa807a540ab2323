package provider

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/journal-harness/internal/config"
	"github.com/sells-group/journal-harness/internal/resilience"
	"github.com/sells-group/journal-harness/pkg/anthropic"
	"github.com/sells-group/journal-harness/pkg/openai"
)

// Provider names known to the factory.
const (
	Anthropic  = "anthropic"
	OpenAI     = "openai"
	Perplexity = "perplexity"
	Gemini     = "gemini"
	Ollama     = "ollama"
	StubName   = "stub"
)

// FromConfig builds the registry once at startup. A provider without
// credentials is registered as the stub, so callers never branch on key
// presence. Real providers are guarded by a per-provider rate limiter and
// circuit breaker.
func FromConfig(ctx context.Context, cfg config.ProvidersConfig, breakers *resilience.Breakers) (*Registry, error) {
	mode, err := ParseStubMode(cfg.StubMode)
	if err != nil {
		return nil, err
	}
	stub := NewStub(mode, cfg.StubText)

	reg := NewRegistry()
	reg.RegisterStub(StubName, stub)

	guard := func(name string, c Client) Client {
		var limiter *rate.Limiter
		if cfg.RateLimitRPS > 0 {
			burst := max(cfg.RateLimitBurst, 1)
			limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
		}
		var breaker *resilience.Breaker
		if breakers != nil {
			breaker = breakers.Get(name)
		}
		return NewGuard(name, c, limiter, breaker)
	}

	register := func(name string, enabled bool, build func() (Client, error)) error {
		if !enabled {
			zap.L().Info("provider has no credentials, using stub", zap.String("provider", name))
			reg.RegisterStub(name, stub)
			return nil
		}
		c, err := build()
		if err != nil {
			return err
		}
		reg.Register(name, guard(name, c))
		return nil
	}

	if err := register(Anthropic, cfg.Anthropic.Key != "", func() (Client, error) {
		var opts []anthropic.Option
		if cfg.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key, opts...)), nil
	}); err != nil {
		return nil, err
	}

	for _, compat := range []struct {
		name string
		pc   config.ProviderConfig
	}{
		{OpenAI, cfg.OpenAI},
		{Perplexity, cfg.Perplexity},
	} {
		if err := register(compat.name, compat.pc.Key != "", func() (Client, error) {
			return NewOpenAICompatible(compat.name, openai.NewClient(compat.pc.Key, compatOptions(compat.name, compat.pc)...)), nil
		}); err != nil {
			return nil, err
		}
	}

	if err := register(Gemini, cfg.Gemini.Key != "", func() (Client, error) {
		return NewGemini(ctx, cfg.Gemini.Key, cfg.Gemini.BaseURL)
	}); err != nil {
		return nil, err
	}

	// Ollama needs no key; it is registered when explicitly enabled.
	if err := register(Ollama, cfg.Ollama.Enabled, func() (Client, error) {
		return NewOpenAICompatible(Ollama, openai.NewClient(cfg.Ollama.Key, compatOptions(Ollama, cfg.Ollama)...)), nil
	}); err != nil {
		return nil, err
	}

	return reg, nil
}

func compatOptions(name string, pc config.ProviderConfig) []openai.Option {
	opts := []openai.Option{openai.WithService(name)}
	if pc.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(pc.BaseURL))
	}
	return opts
}
