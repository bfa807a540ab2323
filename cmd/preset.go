package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/preset"
	"github.com/sells-group/journal-harness/internal/report"
)

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Manage named experiment presets",
}

// -- preset list --

var presetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List presets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		presets, err := st.ListPresets(ctx)
		if err != nil {
			return eris.Wrap(err, "preset list")
		}
		if len(presets) == 0 {
			fmt.Fprintln(os.Stderr, "No presets found.")
			return nil
		}

		formatPresetList(os.Stdout, presets)
		return nil
	},
}

// -- preset create --

var presetCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create or replace a preset from a JSON config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		name := strings.TrimSpace(args[0])
		if name == "" {
			return eris.Wrap(model.ErrInvalidConfig, "preset name is required")
		}
		raw, _ := cmd.Flags().GetString("config")
		description, _ := cmd.Flags().GetString("description")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p := &model.ExperimentPreset{
			Name:        name,
			Description: description,
			Config:      preset.Decode([]byte(raw)),
		}
		if err := st.SavePreset(ctx, p); err != nil {
			return eris.Wrap(err, "preset create")
		}

		fmt.Fprintf(os.Stderr, "Saved preset %s (%s).\n", p.Name, p.ID)
		return nil
	},
}

// -- preset import --

var presetImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import presets from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "preset import: read file")
		}
		presets, err := preset.ParseYAML(data)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for i := range presets {
			if err := st.SavePreset(ctx, &presets[i]); err != nil {
				return eris.Wrapf(err, "preset import: save %q", presets[i].Name)
			}
		}

		zap.L().Info("preset import complete",
			zap.Int("presets", len(presets)),
			zap.String("file", args[0]),
		)
		return nil
	},
}

// -- preset export --

var presetExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all presets as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		presets, err := st.ListPresets(ctx)
		if err != nil {
			return eris.Wrap(err, "preset export")
		}
		data, err := preset.MarshalYAML(presets)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			_, err = os.Stdout.Write(data)
			return err
		}
		return os.WriteFile(out, data, 0o644)
	},
}

// -- preset apply --

var presetApplyCmd = &cobra.Command{
	Use:   "apply <id-or-name>",
	Short: "Start the experiment a preset describes",
	Long:  "Applies a preset with the given overrides. Sweep presets start a batch, others a single run. Progress is streamed and the report printed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		o, err := overridesFromFlags(cmd.Flags())
		if err != nil {
			return err
		}

		env, err := initHarness(ctx, "experiment")
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := env.Store.GetPreset(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "preset apply")
		}
		plan, err := preset.Apply(p.Config, o)
		if err != nil {
			return err
		}
		pretty, _ := cmd.Flags().GetBool("pretty")

		if plan.Batch != nil {
			started, err := env.Dispatcher.StartBatch(ctx, *plan.Batch)
			if err != nil {
				return eris.Wrap(err, "preset apply")
			}
			fmt.Fprintf(os.Stderr, "Batch %s started from preset %s with %d runs.\n", started.BatchID, p.Name, len(started.RunIDs))
			if err := follow(ctx, env, started.BatchID, os.Stderr); err != nil {
				return err
			}
			b, err := report.LoadBatch(context.WithoutCancel(ctx), env.Store, started.BatchID)
			if err != nil {
				return eris.Wrap(err, "preset apply: load report")
			}
			return printMarkdown(os.Stdout, report.BatchMarkdown(*b), pretty)
		}

		started, err := env.Dispatcher.StartRun(ctx, *plan.Single)
		if err != nil {
			return eris.Wrap(err, "preset apply")
		}
		fmt.Fprintf(os.Stderr, "Run %s started from preset %s.\n", started.RunID, p.Name)
		if err := follow(ctx, env, started.RunID, os.Stderr); err != nil {
			return err
		}
		m, err := report.LoadRun(context.WithoutCancel(ctx), env.Store, started.RunID)
		if err != nil {
			return eris.Wrap(err, "preset apply: load report")
		}
		return printMarkdown(os.Stdout, report.RunMarkdown(*m), pretty)
	},
}

// -- preset delete --

var presetDeleteCmd = &cobra.Command{
	Use:   "delete <id-or-name>",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetPreset(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "preset delete")
		}
		if err := st.DeletePreset(ctx, p.ID); err != nil {
			return eris.Wrap(err, "preset delete")
		}

		fmt.Fprintf(os.Stderr, "Deleted preset %s.\n", p.Name)
		return nil
	},
}

func init() {
	presetCreateCmd.Flags().String("config", "{}", "preset config as JSON")
	presetCreateCmd.Flags().String("description", "", "preset description")

	presetExportCmd.Flags().String("out", "", "write YAML to this file instead of stdout")

	addOverrideFlags(presetApplyCmd.Flags())
	presetApplyCmd.Flags().Bool("pretty", false, "render the report for the terminal")
	_ = presetApplyCmd.MarkFlagRequired("athlete")

	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetCreateCmd)
	presetCmd.AddCommand(presetImportCmd)
	presetCmd.AddCommand(presetExportCmd)
	presetCmd.AddCommand(presetApplyCmd)
	presetCmd.AddCommand(presetDeleteCmd)
	rootCmd.AddCommand(presetCmd)
}

func addOverrideFlags(fs *pflag.FlagSet) {
	fs.String("athlete", "", "athlete id whose journal is used (required)")
	fs.String("provider", "", "provider:model pair overriding the preset")
	fs.StringSlice("providers", nil, "provider:model pairs overriding the preset sweep")
	fs.String("persona", "", "persona override")
	fs.Float64("temperature", 0, "temperature override")
	fs.Int("max-entries", 0, "max entries override")
	fs.String("order", "", "entry order override")
	fs.String("needle", "", "needle fact override")
}

// overridesFromFlags collects the apply flags that were set explicitly.
func overridesFromFlags(fs *pflag.FlagSet) (preset.Overrides, error) {
	athlete, _ := fs.GetString("athlete")
	o := preset.Overrides{AthleteID: athlete}

	if pair, _ := fs.GetString("provider"); pair != "" {
		pm, err := model.ParseProviderModel(pair)
		if err != nil {
			return o, err
		}
		o.Provider, o.Model = pm.Provider, pm.Model
	}
	if pairs, _ := fs.GetStringSlice("providers"); len(pairs) > 0 {
		providers, err := parseProviderPairs(pairs)
		if err != nil {
			return o, err
		}
		o.Providers = providers
	}
	if v, _ := fs.GetString("persona"); v != "" {
		p, err := model.ParsePersona(v)
		if err != nil {
			return o, err
		}
		o.Persona = p
	}
	if fs.Changed("temperature") {
		t, _ := fs.GetFloat64("temperature")
		o.Temperature = &t
	}
	if fs.Changed("max-entries") {
		n, _ := fs.GetInt("max-entries")
		o.MaxEntries = &n
	}
	if v, _ := fs.GetString("order"); v != "" {
		ord, err := model.ParseEntryOrder(v)
		if err != nil {
			return o, err
		}
		o.EntryOrder = ord
	}
	o.NeedleFact, _ = fs.GetString("needle")
	return o, nil
}

// formatPresetList writes a tabular list of presets to w.
func formatPresetList(out io.Writer, presets []model.ExperimentPreset) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tPROVIDERS\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t----\t---------\t-------")

	for _, p := range presets {
		providers := p.Config.Provider + ":" + p.Config.Model
		if p.Config.IsSweep() {
			labels := make([]string, 0, len(p.Config.Providers))
			for _, pm := range p.Config.Providers {
				labels = append(labels, pm.String())
			}
			providers = strings.Join(labels, ",")
		}
		providers = truncateText(providers, 60)

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(p.ID),
			p.Name,
			p.Config.Type,
			providers,
			p.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
