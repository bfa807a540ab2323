package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/report"
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Run experiments against LLM providers",
	Long:  "Runs a single experiment or fans one out across several provider:model pairs, streaming progress and printing the report.",
}

// -- experiment run --

var experimentRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one experiment against one provider:model pair",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pair, _ := cmd.Flags().GetString("provider")
		pm, err := model.ParseProviderModel(pair)
		if err != nil {
			return err
		}
		req, err := batchRequestFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		req.Providers = []model.ProviderModel{pm}
		configs, err := req.Configs("")
		if err != nil {
			return err
		}

		env, err := initHarness(ctx, "experiment")
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.Dispatcher.StartRun(ctx, configs[0])
		if err != nil {
			return eris.Wrap(err, "experiment run")
		}
		fmt.Fprintf(os.Stderr, "Run %s started.\n", started.RunID)

		if err := follow(ctx, env, started.RunID, os.Stderr); err != nil {
			return err
		}

		m, err := report.LoadRun(context.WithoutCancel(ctx), env.Store, started.RunID)
		if err != nil {
			return eris.Wrap(err, "experiment run: load report")
		}
		pretty, _ := cmd.Flags().GetBool("pretty")
		return printMarkdown(os.Stdout, report.RunMarkdown(*m), pretty)
	},
}

// -- experiment batch --

var experimentBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Fan one experiment out across several provider:model pairs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pairs, _ := cmd.Flags().GetStringSlice("providers")
		providers, err := parseProviderPairs(pairs)
		if err != nil {
			return err
		}
		req, err := batchRequestFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		req.Providers = providers
		if _, err := req.Configs(""); err != nil {
			return err
		}

		env, err := initHarness(ctx, "experiment")
		if err != nil {
			return err
		}
		defer env.Close()

		started, err := env.Dispatcher.StartBatch(ctx, req)
		if err != nil {
			return eris.Wrap(err, "experiment batch")
		}
		fmt.Fprintf(os.Stderr, "Batch %s started with %d runs.\n", started.BatchID, len(started.RunIDs))

		if err := follow(ctx, env, started.BatchID, os.Stderr); err != nil {
			return err
		}

		b, err := report.LoadBatch(context.WithoutCancel(ctx), env.Store, started.BatchID)
		if err != nil {
			return eris.Wrap(err, "experiment batch: load report")
		}
		pretty, _ := cmd.Flags().GetBool("pretty")
		return printMarkdown(os.Stdout, report.BatchMarkdown(*b), pretty)
	},
}

func init() {
	for _, c := range []*cobra.Command{experimentRunCmd, experimentBatchCmd} {
		addExperimentFlags(c.Flags())
		c.Flags().Bool("pretty", false, "render the report for the terminal")
	}

	experimentRunCmd.Flags().String("provider", "", "provider:model pair, e.g. anthropic:claude-3-5-haiku-latest (required)")
	_ = experimentRunCmd.MarkFlagRequired("provider")

	experimentBatchCmd.Flags().StringSlice("providers", nil, "comma-separated provider:model pairs (required)")
	_ = experimentBatchCmd.MarkFlagRequired("providers")

	experimentCmd.AddCommand(experimentRunCmd)
	experimentCmd.AddCommand(experimentBatchCmd)
	rootCmd.AddCommand(experimentCmd)
}

// addExperimentFlags registers the flags shared by single runs and batches.
func addExperimentFlags(fs *pflag.FlagSet) {
	fs.String("athlete", "", "athlete id whose journal is used (required)")
	fs.String("type", string(model.ExperimentPersona), "experiment type (position, persona, compression)")
	fs.String("persona", string(model.PersonaSupportive), "coaching persona (intense, supportive)")
	fs.Float64("temperature", 0.7, "sampling temperature in [0,2]")
	fs.Int("max-entries", 0, "max journal entries to use (0 means all)")
	fs.String("order", string(model.OrderReverse), "entry order before truncation (reverse, chronological)")
	fs.String("needle", "", "needle fact for position experiments")
	fs.String("prompt-version", "", "prompt version label (default from config)")
}

// batchRequestFromFlags builds a request without providers from the shared
// experiment flags.
func batchRequestFromFlags(fs *pflag.FlagSet) (model.BatchRequest, error) {
	athlete, _ := fs.GetString("athlete")
	typ, _ := fs.GetString("type")
	persona, _ := fs.GetString("persona")
	temperature, _ := fs.GetFloat64("temperature")
	maxEntries, _ := fs.GetInt("max-entries")
	order, _ := fs.GetString("order")
	needle, _ := fs.GetString("needle")
	promptVersion, _ := fs.GetString("prompt-version")

	t, err := model.ParseExperimentType(typ)
	if err != nil {
		return model.BatchRequest{}, err
	}
	p, err := model.ParsePersona(persona)
	if err != nil {
		return model.BatchRequest{}, err
	}
	o, err := model.ParseEntryOrder(order)
	if err != nil {
		return model.BatchRequest{}, err
	}

	return model.BatchRequest{
		AthleteID:     athlete,
		Type:          t,
		Persona:       p,
		Temperature:   temperature,
		MaxEntries:    maxEntries,
		EntryOrder:    o,
		NeedleFact:    needle,
		PromptVersion: promptVersion,
	}, nil
}

// parseProviderPairs parses "provider:model" flag values.
func parseProviderPairs(pairs []string) ([]model.ProviderModel, error) {
	out := make([]model.ProviderModel, 0, len(pairs))
	for _, s := range pairs {
		pm, err := model.ParseProviderModel(s)
		if err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	if len(out) == 0 {
		return nil, eris.Wrap(model.ErrInvalidConfig, "provider list is empty")
	}
	return out, nil
}

// follow prints the progress stream of a batch or run until its terminal
// event. On interrupt the work is cancelled and the stream is drained so
// the report reflects the settled outcome.
func follow(ctx context.Context, env *harnessEnv, id string, out io.Writer) error {
	sub, err := env.Dispatcher.Subscribe(id)
	if err != nil {
		return eris.Wrapf(err, "subscribe %s", id)
	}
	defer sub.Close()

	waitCtx := ctx
	for {
		ev, ok, err := sub.Next(waitCtx)
		if err != nil {
			if waitCtx == ctx && ctx.Err() != nil {
				fmt.Fprintln(out, "Interrupted, cancelling.")
				env.Dispatcher.Cancel(id)
				waitCtx = context.WithoutCancel(ctx)
				continue
			}
			return eris.Wrapf(err, "follow %s", id)
		}
		if !ok {
			return nil
		}
		_, _ = fmt.Fprintln(out, formatEvent(ev))
	}
}

// formatEvent renders one progress event as a log line.
func formatEvent(ev model.ProgressEvent) string {
	line := fmt.Sprintf("%s  %-17s", ev.Timestamp.Format("15:04:05"), ev.Type)
	if ev.RunID != "" {
		line += "  " + truncateID(ev.RunID)
	}
	return line + "  " + ev.Message
}
