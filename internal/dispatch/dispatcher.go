// Package dispatch fans experiment runs out across providers with a bounded
// number of runs in flight and publishes their progress to the hub.
package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/journal-harness/internal/experiment"
	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/progress"
	"github.com/sells-group/journal-harness/internal/provider"
	"github.com/sells-group/journal-harness/internal/report"
	"github.com/sells-group/journal-harness/internal/resilience"
)

// DefaultMaxInFlight caps concurrent runs when Options leaves it unset.
const DefaultMaxInFlight = 4

// ErrShutdown is returned when work is submitted after Shutdown.
var ErrShutdown = eris.New("dispatcher is shut down")

// Options tunes a Dispatcher.
type Options struct {
	// MaxInFlight caps runs executing at once across all batches. A run's
	// calls are sequential, so this is also the cap on in-flight provider
	// calls. Excess runs wait in submission order.
	MaxInFlight int
	// Retry is applied per capability call to transient provider errors.
	Retry resilience.RetryPolicy
}

// BatchStarted is returned by StartBatch and carried by batch_started.
type BatchStarted struct {
	BatchID string            `json:"batch_id"`
	RunIDs  []string          `json:"run_ids"`
	Status  model.BatchStatus `json:"status"`
}

// RunStarted is returned by StartRun.
type RunStarted struct {
	RunID  string                 `json:"run_id"`
	Status model.ExperimentStatus `json:"status"`
}

// Dispatcher schedules runs created through the experiment runner.
type Dispatcher struct {
	runner *experiment.Runner
	hub    *progress.Hub
	reader report.Reader
	sem    *semaphore.Weighted
	retry  resilience.RetryPolicy

	mu     sync.Mutex
	active map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// New creates a Dispatcher. reader is used to build the batch comparison.
func New(runner *experiment.Runner, hub *progress.Hub, reader report.Reader, opts Options) *Dispatcher {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = DefaultMaxInFlight
	}
	return &Dispatcher{
		runner: runner,
		hub:    hub,
		reader: reader,
		sem:    semaphore.NewWeighted(int64(opts.MaxInFlight)),
		retry:  opts.Retry,
		active: make(map[string]context.CancelFunc),
	}
}

// StartBatch creates one pending run per provider pair and schedules them.
// Every pair is validated before any run is created, so a configuration
// error leaves nothing behind.
func (d *Dispatcher) StartBatch(ctx context.Context, req model.BatchRequest) (*BatchStarted, error) {
	if d.isClosed() {
		return nil, ErrShutdown
	}
	batchID := uuid.NewString()
	configs, err := req.Configs(batchID)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if _, err := d.runner.Providers().Get(cfg.Provider); err != nil {
			return nil, err
		}
	}

	pendings := make([]*experiment.Pending, 0, len(configs))
	for _, cfg := range configs {
		p, err := d.runner.Create(ctx, cfg)
		if err != nil {
			d.abortPending(ctx, pendings, "batch creation failed")
			return nil, eris.Wrap(err, "dispatch: create batch runs")
		}
		pendings = append(pendings, p)
	}

	runCtx, cancel, err := d.track(ctx, batchID)
	if err != nil {
		d.abortPending(ctx, pendings, "dispatcher shut down")
		return nil, err
	}

	started := &BatchStarted{BatchID: batchID, RunIDs: make([]string, 0, len(pendings)), Status: model.BatchRunning}
	d.hub.Open(batchID)
	for _, p := range pendings {
		started.RunIDs = append(started.RunIDs, p.Run.ID)
		d.hub.Open(p.Run.ID)
	}
	d.hub.Publish(batchID, model.ProgressEvent{
		Type:    model.EventBatchStarted,
		Message: "batch started",
		Data:    started,
	})

	zap.L().Info("dispatch: batch started",
		zap.String("batch_id", batchID),
		zap.Int("runs", len(pendings)),
		zap.String("experiment_type", string(configs[0].Type)),
	)

	go func() {
		defer d.wg.Done()
		defer cancel()
		d.runBatch(runCtx, batchID, pendings)
	}()
	return started, nil
}

// StartRun creates and schedules a single run outside any batch.
func (d *Dispatcher) StartRun(ctx context.Context, cfg model.ExperimentConfig) (*RunStarted, error) {
	if d.isClosed() {
		return nil, ErrShutdown
	}
	cfg.BatchID = ""
	p, err := d.runner.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runCtx, cancel, err := d.track(ctx, p.Run.ID)
	if err != nil {
		d.abortPending(ctx, []*experiment.Pending{p}, "dispatcher shut down")
		return nil, err
	}
	d.hub.Open(p.Run.ID)

	go func() {
		defer d.wg.Done()
		defer cancel()
		defer d.untrack(p.Run.ID)
		if err := d.sem.Acquire(runCtx, 1); err != nil {
			d.abort(runCtx, "", p, "run cancelled")
			return
		}
		defer d.sem.Release(1)
		d.execute(runCtx, "", p)
	}()
	return &RunStarted{RunID: p.Run.ID, Status: model.StatusRunning}, nil
}

// abortPending fails runs that were created but never scheduled. Abort
// errors are logged so a run left pending is traceable.
func (d *Dispatcher) abortPending(ctx context.Context, pendings []*experiment.Pending, reason string) {
	for _, p := range pendings {
		if err := d.runner.Abort(ctx, p.Run.ID, reason); err != nil {
			zap.L().Warn("dispatch: abort unscheduled run",
				zap.String("run_id", p.Run.ID),
				zap.String("reason", reason),
				zap.Error(err),
			)
		}
	}
}

// runBatch acquires a slot per run in submission order. Once the batch is
// cancelled, runs that never got a slot are failed with a cancellation
// reason.
func (d *Dispatcher) runBatch(ctx context.Context, batchID string, pendings []*experiment.Pending) {
	var g errgroup.Group
	for i, p := range pendings {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			for _, rest := range pendings[i:] {
				d.abort(ctx, batchID, rest, "batch cancelled")
			}
			break
		}
		if ctx.Err() != nil {
			d.sem.Release(1)
			for _, rest := range pendings[i:] {
				d.abort(ctx, batchID, rest, "batch cancelled")
			}
			break
		}
		g.Go(func() error {
			defer d.sem.Release(1)
			d.execute(ctx, batchID, p)
			return nil
		})
	}
	_ = g.Wait()

	cmp := d.compare(ctx, batchID)
	d.untrack(batchID)
	d.hub.Publish(batchID, model.ProgressEvent{
		Type:    model.EventBatchComplete,
		Message: "batch " + string(cmp.Status),
		Data:    cmp,
	})
	zap.L().Info("dispatch: batch complete",
		zap.String("batch_id", batchID),
		zap.String("status", string(cmp.Status)),
		zap.Int("failed", len(cmp.Failed)),
	)
}

// execute runs one member through a retrying client and reports it on the
// run stream and, for batch members, the batch stream.
func (d *Dispatcher) execute(ctx context.Context, batchID string, p *experiment.Pending) {
	run := p.Run
	emit := d.emitter(batchID, run.ID)
	emit(model.ProgressEvent{
		Type:     model.EventProviderStarted,
		Message:  run.Label() + " started",
		Provider: run.Label(),
	})

	client, err := d.runner.Providers().Get(p.Config.Provider)
	if err != nil {
		d.abort(ctx, batchID, p, err.Error())
		return
	}
	policy := d.retry
	policy.OnRetry = resilience.LogRetries(p.Config.Provider, p.Config.Model)

	res, err := d.runner.Execute(ctx, p, provider.WithRetry(client, policy), experiment.Emitter(emit))
	if err != nil {
		msg := err.Error()
		if res != nil && res.Run.Error != "" {
			msg = res.Run.Error
		}
		emit(model.ProgressEvent{
			Type:     model.EventProviderError,
			Message:  run.Label() + ": " + msg,
			Provider: run.Label(),
			Data:     res,
		})
	} else {
		emit(model.ProgressEvent{
			Type:     model.EventProviderComplete,
			Message:  run.Label() + " completed",
			Provider: run.Label(),
			Data:     res,
		})
	}
	d.hub.Publish(run.ID, model.ProgressEvent{
		Type:     model.EventRunComplete,
		Message:  "run " + string(res.Run.Status),
		RunID:    run.ID,
		Provider: run.Label(),
		Data:     res,
	})
}

// abort fails a run that never started and closes its stream.
func (d *Dispatcher) abort(ctx context.Context, batchID string, p *experiment.Pending, reason string) {
	run := p.Run
	if err := d.runner.Abort(ctx, run.ID, reason); err != nil {
		zap.L().Error("dispatch: abort run", zap.String("run_id", run.ID), zap.Error(err))
	} else {
		run.Status = model.StatusFailed
		run.Error = reason
	}
	res := &experiment.RunResult{Run: run}
	if fresh, err := d.reader.GetRun(context.WithoutCancel(ctx), run.ID); err == nil {
		res.Run = fresh
	}
	d.emitter(batchID, run.ID)(model.ProgressEvent{
		Type:     model.EventProviderError,
		Message:  run.Label() + ": " + reason,
		Provider: run.Label(),
		Data:     res,
	})
	d.hub.Publish(run.ID, model.ProgressEvent{
		Type:     model.EventRunComplete,
		Message:  "run " + string(res.Run.Status),
		RunID:    run.ID,
		Provider: run.Label(),
		Data:     res,
	})
}

func (d *Dispatcher) emitter(batchID, runID string) func(model.ProgressEvent) {
	return func(ev model.ProgressEvent) {
		ev.RunID = runID
		d.hub.Publish(runID, ev)
		if batchID != "" {
			d.hub.Publish(batchID, ev)
		}
	}
}

// compare builds the batch comparison from the store.
func (d *Dispatcher) compare(ctx context.Context, batchID string) model.BatchComparison {
	b, err := report.LoadBatch(context.WithoutCancel(ctx), d.reader, batchID)
	if err != nil {
		zap.L().Error("dispatch: load batch for comparison", zap.String("batch_id", batchID), zap.Error(err))
		return model.BatchComparison{BatchID: batchID, Status: model.BatchFailed}
	}
	return b.Comparison
}

// Cancel stops a batch or single run from issuing new provider calls. Calls
// already in flight finish or time out; runs that never started are failed.
// It reports whether id was running.
func (d *Dispatcher) Cancel(id string) bool {
	d.mu.Lock()
	cancel, ok := d.active[id]
	d.mu.Unlock()
	if ok {
		zap.L().Info("dispatch: cancelling", zap.String("id", id))
		cancel()
	}
	return ok
}

// IsBatchRunning reports whether the batch has not yet completed.
func (d *Dispatcher) IsBatchRunning(batchID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[batchID]
	return ok
}

// Subscribe returns a cursor over the progress stream of a batch or run.
func (d *Dispatcher) Subscribe(id string) (*progress.Subscription, error) {
	return d.hub.Subscribe(id)
}

// Shutdown cancels all work and waits for it to reach terminal states or
// for ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	for _, cancel := range d.active {
		cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "dispatch: shutdown")
	}
}

// track registers id as active and returns its cancellable context. The
// context is detached from ctx so a finished HTTP request does not cancel
// the work it started.
func (d *Dispatcher) track(ctx context.Context, id string) (context.Context, context.CancelFunc, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, nil, ErrShutdown
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.active[id] = cancel
	d.wg.Add(1)
	return runCtx, cancel, nil
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dispatcher) untrack(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, id)
}
