package resilience

import (
	"time"

	"github.com/sells-group/journal-harness/internal/config"
)

// RetryPolicyFrom builds the dispatcher retry policy from configuration.
// Zero values keep the defaults.
func RetryPolicyFrom(cfg config.DispatchConfig) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg.RetryMaxAttempts > 0 {
		p.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialBackoffMs > 0 {
		p.InitialBackoff = time.Duration(cfg.RetryInitialBackoffMs) * time.Millisecond
	}
	if cfg.RetryMaxBackoffMs > 0 {
		p.MaxBackoff = time.Duration(cfg.RetryMaxBackoffMs) * time.Millisecond
	}
	return p
}

// BreakerConfigFrom builds provider breaker settings from configuration.
func BreakerConfigFrom(cfg config.CircuitConfig) BreakerConfig {
	b := DefaultBreakerConfig()
	if cfg.FailureThreshold > 0 {
		b.FailureThreshold = cfg.FailureThreshold
	}
	if cfg.ResetTimeoutSecs > 0 {
		b.ResetTimeout = time.Duration(cfg.ResetTimeoutSecs) * time.Second
	}
	return b
}
