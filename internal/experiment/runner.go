// Package experiment executes one experiment run against one provider and
// model: entry selection, capability calls, grounding and persistence.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/cost"
	"github.com/sells-group/journal-harness/internal/evidence"
	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/prompt"
	"github.com/sells-group/journal-harness/internal/provider"
	"github.com/sells-group/journal-harness/internal/store"
)

// DefaultCallTimeout bounds one capability call when Options leaves it unset.
const DefaultCallTimeout = 2 * time.Minute

// Options tunes capability calls.
type Options struct {
	CallTimeout   time.Duration
	MaxTokens     int
	PromptVersion string
}

// Emitter receives progress events of a run. It must not block.
type Emitter func(model.ProgressEvent)

// CallProgress is the payload of a progress event: the call just finished
// and the run's running totals.
type CallProgress struct {
	Call          string  `json:"call"`
	Calls         int     `json:"calls"`
	TotalCalls    int     `json:"total_calls"`
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
}

// Pending is a created run waiting to execute, with the configuration that
// produced it.
type Pending struct {
	Run    *model.ExperimentRun
	Config model.ExperimentConfig
}

// RunResult is everything one run produced.
type RunResult struct {
	Run           *model.ExperimentRun      `json:"run"`
	Claims        []model.ClaimWithReceipts `json:"claims,omitempty"`
	PositionTests []model.PositionTest      `json:"position_tests,omitempty"`
}

// Runner owns the runs it creates: no other component writes to a pending
// or running run.
type Runner struct {
	store     store.Store
	journal   JournalSource
	providers *provider.Registry
	costs     *cost.Calculator
	opts      Options
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, journal JournalSource, providers *provider.Registry, costs *cost.Calculator, opts Options) *Runner {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.PromptVersion == "" {
		opts.PromptVersion = prompt.Version
	}
	return &Runner{store: st, journal: journal, providers: providers, costs: costs, opts: opts}
}

// Providers returns the registry the runner resolves clients from.
func (r *Runner) Providers() *provider.Registry {
	return r.providers
}

// Create validates cfg and persists a pending run. Configuration errors are
// returned before anything is written.
func (r *Runner) Create(ctx context.Context, cfg model.ExperimentConfig) (*Pending, error) {
	if cfg.PromptVersion == "" {
		cfg.PromptVersion = r.opts.PromptVersion
	}
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	if _, err := r.providers.Get(cfg.Provider); err != nil {
		return nil, err
	}

	run := &model.ExperimentRun{
		BatchID:       cfg.BatchID,
		Provider:      cfg.Provider,
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		PromptVersion: cfg.PromptVersion,
		AthleteID:     cfg.AthleteID,
		Persona:       cfg.Persona,
		Type:          cfg.Type,
		EntryOrder:    cfg.EntryOrder,
		NeedleFact:    cfg.NeedleFact,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "runner: create run")
	}
	return &Pending{Run: run, Config: cfg}, nil
}

// RunExperiment creates and executes a run in one step, calling the
// registered provider directly.
func (r *Runner) RunExperiment(ctx context.Context, cfg model.ExperimentConfig, emit Emitter) (*RunResult, error) {
	p, err := r.Create(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client, err := r.providers.Get(p.Config.Provider)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, p, client, emit)
}

// Abort fails a run that never started, e.g. when its batch is cancelled.
func (r *Runner) Abort(ctx context.Context, runID, reason string) error {
	if err := r.store.FinishRun(context.WithoutCancel(ctx), runID, model.StatusFailed, reason); err != nil {
		return eris.Wrapf(err, "runner: abort run %s", runID)
	}
	return nil
}

// call is one capability call of a run.
type call struct {
	label   string
	persona model.Persona
	variant string
	system  string
	user    string
	// grounding is what claims are checked against: the entries the model saw.
	grounding []model.JournalEntry
	position  model.NeedlePosition
}

// Execute runs p to a terminal status using client. A capability failure
// fails the run and keeps results already persisted; the returned error is
// then the capability error. Execute never retries.
//
// Cancelling ctx stops further calls. A call already in flight runs to
// completion or to its timeout, and store writes are not cancelled, so the
// run always reaches a terminal status.
func (r *Runner) Execute(ctx context.Context, p *Pending, client provider.Client, emit Emitter) (*RunResult, error) {
	run, cfg := p.Run, p.Config
	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("provider", run.Provider),
		zap.String("model", run.Model),
		zap.String("experiment_type", string(run.Type)),
	)
	if emit == nil {
		emit = func(model.ProgressEvent) {}
	}
	result := &RunResult{Run: run}
	wctx := context.WithoutCancel(ctx)

	fail := func(cause error, msg string) (*RunResult, error) {
		log.Warn("runner: run failed", zap.String("reason", msg), zap.Error(cause))
		if err := r.store.FinishRun(wctx, run.ID, model.StatusFailed, msg); err != nil {
			log.Error("runner: failed to record failure", zap.Error(err))
		}
		r.reload(ctx, result)
		return result, cause
	}

	entries, err := r.journal.Entries(ctx, run.AthleteID)
	if err != nil {
		return fail(err, "fetch journal entries: "+err.Error())
	}
	selected := prompt.SelectEntries(entries, cfg.EntryOrder, cfg.MaxEntries)

	if err := ctx.Err(); err != nil {
		return fail(err, "cancelled before start")
	}
	if err := r.store.StartRun(wctx, run.ID, len(selected)); err != nil {
		return fail(err, "start run: "+err.Error())
	}
	log.Info("runner: started", zap.Int("entries", len(selected)))

	calls := plan(cfg, selected)
	var usage store.RunUsage
	ordinal := 0

	for i, c := range calls {
		if err := ctx.Err(); err != nil {
			return fail(err, "cancelled before "+c.label+" call")
		}
		resp, err := r.chat(ctx, client, cfg, c)
		if err != nil {
			return fail(err, fmt.Sprintf("%s call failed: %v", c.label, err))
		}

		usage.InputTokens += resp.InputTokens
		usage.OutputTokens += resp.OutputTokens
		usage.EstimatedCost = r.estimate(run.Provider, run.Model, usage.InputTokens, usage.OutputTokens)
		if err := r.store.UpdateRunUsage(wctx, run.ID, usage); err != nil {
			return fail(err, "record usage: "+err.Error())
		}

		if c.position != "" {
			outcome := evidence.Evaluate(c.position, cfg.NeedleFact, resp.Text)
			pt := model.PositionTest{
				RunID:      run.ID,
				Position:   outcome.Position,
				NeedleFact: cfg.NeedleFact,
				Found:      outcome.Found,
				Confidence: outcome.Confidence,
				Snippet:    outcome.Snippet,
			}
			if err := r.store.SavePositionTest(wctx, &pt); err != nil {
				return fail(err, "save position test: "+err.Error())
			}
			result.PositionTests = append(result.PositionTests, pt)
		} else {
			claims := toClaims(evidence.ExtractClaims(resp.Text, c.grounding), c.persona, c.variant, &ordinal)
			if err := r.store.SaveClaims(wctx, run.ID, claims); err != nil {
				return fail(err, "save claims: "+err.Error())
			}
			result.Claims = append(result.Claims, claims...)
		}

		emit(model.ProgressEvent{
			Type:     model.EventProgress,
			Message:  fmt.Sprintf("%s call complete (%d/%d)", c.label, i+1, len(calls)),
			RunID:    run.ID,
			Provider: run.Label(),
			Data: CallProgress{
				Call:          c.label,
				Calls:         i + 1,
				TotalCalls:    len(calls),
				InputTokens:   usage.InputTokens,
				OutputTokens:  usage.OutputTokens,
				EstimatedCost: usage.EstimatedCost,
			},
			Timestamp: time.Now().UTC(),
		})
	}

	if err := r.store.FinishRun(wctx, run.ID, model.StatusCompleted, ""); err != nil {
		return fail(err, "complete run: "+err.Error())
	}
	r.reload(ctx, result)
	log.Info("runner: completed",
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Float64("estimated_cost", usage.EstimatedCost),
	)
	return result, nil
}

func (r *Runner) chat(ctx context.Context, client provider.Client, cfg model.ExperimentConfig, c call) (*provider.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.CallTimeout)
	defer cancel()

	resp, err := client.Chat(callCtx, provider.ChatRequest{
		Model:       cfg.Model,
		System:      c.system,
		Messages:    provider.UserMessage(c.user),
		Temperature: cfg.Temperature,
		MaxTokens:   r.opts.MaxTokens,
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, eris.Wrapf(err, "timed out after %s", r.opts.CallTimeout)
		}
		return nil, err
	}
	return resp, nil
}

// estimate prices the running totals. Stub-served providers are free.
func (r *Runner) estimate(providerName, modelID string, in, out int) float64 {
	if r.providers.IsStub(providerName) || r.costs == nil {
		return 0
	}
	return r.costs.Estimate(providerName, modelID, in, out)
}

// reload refreshes the run record; the in-memory copy is kept when the
// store cannot be read.
func (r *Runner) reload(ctx context.Context, result *RunResult) {
	fresh, err := r.store.GetRun(context.WithoutCancel(ctx), result.Run.ID)
	if err != nil {
		zap.L().Warn("runner: reload run", zap.String("run_id", result.Run.ID), zap.Error(err))
		return
	}
	result.Run = fresh
}

// plan lists the capability calls of one run in execution order.
func plan(cfg model.ExperimentConfig, selected []model.JournalEntry) []call {
	switch cfg.Type {
	case model.ExperimentPosition:
		blocks := prompt.Blocks(selected)
		calls := make([]call, 0, len(model.NeedlePositions))
		for _, pos := range model.NeedlePositions {
			calls = append(calls, call{
				label:    "position " + string(pos),
				system:   prompt.PositionSystem,
				user:     prompt.PositionMessage(prompt.InsertNeedle(blocks, cfg.NeedleFact, pos), cfg.EntryOrder),
				position: pos,
			})
		}
		return calls

	case model.ExperimentCompression:
		variants := []struct {
			name    string
			entries []model.JournalEntry
		}{
			{model.VariantFull, selected},
			{model.VariantTruncated, prompt.Truncate(selected)},
			{model.VariantCompressed, prompt.Compress(selected)},
		}
		calls := make([]call, 0, len(variants))
		for _, v := range variants {
			calls = append(calls, summaryCall("compression "+v.name, cfg.Persona, v.name, v.entries, cfg.EntryOrder))
		}
		return calls

	default:
		calls := make([]call, 0, len(model.Personas))
		for _, p := range personaOrder(cfg.Persona) {
			calls = append(calls, summaryCall("persona "+string(p), p, model.VariantFull, selected, cfg.EntryOrder))
		}
		return calls
	}
}

func summaryCall(label string, persona model.Persona, variant string, entries []model.JournalEntry, order model.EntryOrder) call {
	return call{
		label:     label,
		persona:   persona,
		variant:   variant,
		system:    prompt.System(persona),
		user:      prompt.SummaryMessage(prompt.Blocks(entries), order),
		grounding: entries,
	}
}

// personaOrder puts the configured persona first, then the rest of the set.
func personaOrder(first model.Persona) []model.Persona {
	out := []model.Persona{first}
	for _, p := range model.Personas {
		if p != first {
			out = append(out, p)
		}
	}
	return out
}

func toClaims(extracted []evidence.ExtractedClaim, persona model.Persona, variant string, ordinal *int) []model.ClaimWithReceipts {
	out := make([]model.ClaimWithReceipts, 0, len(extracted))
	for _, e := range extracted {
		c := model.ClaimWithReceipts{
			Claim: model.ExperimentClaim{
				Text:           e.Text,
				Supported:      e.Supported,
				Persona:        persona,
				Variant:        variant,
				ClaimType:      e.ClaimType,
				Confidence:     e.Confidence,
				ReferencedDate: e.ReferencedDate,
				Ordinal:        *ordinal,
			},
			Receipts: make([]model.ClaimReceipt, 0, len(e.Receipts)),
		}
		*ordinal++
		for _, rc := range e.Receipts {
			c.Receipts = append(c.Receipts, model.ClaimReceipt{
				EntryID:    rc.EntryID,
				Field:      rc.Field,
				Snippet:    rc.Snippet,
				EntryDate:  rc.EntryDate,
				Confidence: rc.Confidence,
			})
		}
		out = append(out, c)
	}
	return out
}
