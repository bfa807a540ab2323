package provider

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/journal-harness/internal/resilience"
)

// Guard rate-limits calls to one provider and routes them through its
// circuit breaker.
type Guard struct {
	name    string
	next    Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// NewGuard wraps next. A nil limiter disables rate limiting and a nil
// breaker disables circuit breaking.
func NewGuard(name string, next Client, limiter *rate.Limiter, breaker *resilience.Breaker) *Guard {
	return &Guard{name: name, next: next, limiter: limiter, breaker: breaker}
}

// Chat waits for a rate-limit token, then calls the wrapped provider.
func (g *Guard) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "%s: rate limit wait", g.name)
		}
	}
	if g.breaker == nil {
		return g.next.Chat(ctx, req)
	}
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) (*ChatResponse, error) {
		return g.next.Chat(ctx, req)
	})
}

// Retrying retries transient failures of a provider with a backoff policy.
type Retrying struct {
	next   Client
	policy resilience.RetryPolicy
}

// WithRetry wraps next with policy.
func WithRetry(next Client, policy resilience.RetryPolicy) *Retrying {
	return &Retrying{next: next, policy: policy}
}

// Chat calls the wrapped provider until it succeeds or the policy gives up.
func (r *Retrying) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	return resilience.Retry(ctx, r.policy, func(ctx context.Context) (*ChatResponse, error) {
		return r.next.Chat(ctx, req)
	})
}
