package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/config"
	"github.com/sells-group/journal-harness/internal/cost"
	"github.com/sells-group/journal-harness/internal/dispatch"
	"github.com/sells-group/journal-harness/internal/experiment"
	"github.com/sells-group/journal-harness/internal/progress"
	"github.com/sells-group/journal-harness/internal/provider"
	"github.com/sells-group/journal-harness/internal/resilience"
	"github.com/sells-group/journal-harness/internal/store"
)

// shutdownTimeout bounds how long in-flight calls may take to finish once
// the process is asked to stop.
const shutdownTimeout = 30 * time.Second

// harnessEnv holds everything needed to run experiments.
type harnessEnv struct {
	Store      store.Store
	Providers  *provider.Registry
	Breakers   *resilience.Breakers
	Runner     *experiment.Runner
	Hub        *progress.Hub
	Dispatcher *dispatch.Dispatcher
}

// Close stops the dispatcher, waiting for in-flight runs to settle, then
// releases the store.
func (he *harnessEnv) Close() {
	if he.Dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := he.Dispatcher.Shutdown(ctx); err != nil {
			zap.L().Warn("dispatcher did not drain", zap.Error(err))
		}
		cancel()
	}
	if he.Hub != nil {
		he.Hub.Close()
	}
	if he.Store != nil {
		_ = he.Store.Close()
	}
}

// initHarness validates cfg for mode, opens and migrates the store, builds
// the provider registry and wires the runner and dispatcher. Callers should
// defer env.Close().
func initHarness(ctx context.Context, mode string) (*harnessEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	breakers := resilience.NewBreakers(resilience.BreakerConfigFrom(cfg.Circuit))
	reg, err := provider.FromConfig(ctx, cfg.Providers, breakers)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init providers")
	}

	calc := cost.NewCalculator(cost.Merge(cost.DefaultRates(), pricingRates(cfg.Pricing)))
	runner := experiment.NewRunner(st, experiment.StoreJournal{Store: st}, reg, calc, experiment.Options{
		CallTimeout:   time.Duration(cfg.Experiment.CallTimeoutSecs) * time.Second,
		MaxTokens:     cfg.Experiment.MaxTokens,
		PromptVersion: cfg.Experiment.PromptVersion,
	})

	hub := progress.NewHub(time.Duration(cfg.Dispatch.StreamGraceSecs)*time.Second, 0)
	d := dispatch.New(runner, hub, st, dispatch.Options{
		MaxInFlight: cfg.Dispatch.MaxInFlight,
		Retry:       resilience.RetryPolicyFrom(cfg.Dispatch),
	})

	zap.L().Debug("harness ready",
		zap.String("store", cfg.Store.Driver),
		zap.Strings("providers", reg.Names()),
		zap.Int("max_in_flight", cfg.Dispatch.MaxInFlight),
	)

	return &harnessEnv{
		Store:      st,
		Providers:  reg,
		Breakers:   breakers,
		Runner:     runner,
		Hub:        hub,
		Dispatcher: d,
	}, nil
}

// initStore opens the configured store backend without migrating it.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "harness.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the store for read and maintenance commands.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("read"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// pricingRates converts the configured pricing overrides into cost rates.
func pricingRates(p config.PricingConfig) cost.Rates {
	rates := cost.Rates{
		Providers: make(map[string][]cost.ModelRate, len(p.Providers)),
		Local:     p.Local,
		Fallback:  cost.ModelRate(p.Fallback),
	}
	for name, models := range p.Providers {
		converted := make([]cost.ModelRate, 0, len(models))
		for _, m := range models {
			converted = append(converted, cost.ModelRate(m))
		}
		rates.Providers[name] = converted
	}
	return rates
}
