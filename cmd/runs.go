package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/journal-harness/internal/model"
	"github.com/sells-group/journal-harness/internal/report"
	"github.com/sells-group/journal-harness/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect experiment run history",
	Long:  "Commands for listing, viewing, reporting on and deleting experiment runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiment runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := runFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run with its claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, err := report.LoadRun(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	},
}

// -- runs report --

var runsReportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print the Markdown report of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m, err := report.LoadRun(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "runs report")
		}

		pretty, _ := cmd.Flags().GetBool("pretty")
		return printMarkdown(os.Stdout, report.RunMarkdown(*m), pretty)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := runFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		filter.Limit = 10000 // high limit for stats

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		pretty, _ := cmd.Flags().GetBool("pretty")
		return printMarkdown(os.Stdout, report.StatsMarkdown(report.ComputeStats(runs)), pretty)
	},
}

// -- runs delete --

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a finished run",
	Long:  "Hides a completed or failed run from listings. With --hard the run and its claims, receipts and position tests are removed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs delete")
		}
		if !run.Status.Terminal() {
			return eris.Errorf("run %s is %s; only finished runs can be deleted", run.ID, run.Status)
		}

		hard, _ := cmd.Flags().GetBool("hard")
		if hard {
			err = st.DeleteRun(ctx, run.ID)
		} else {
			err = st.SoftDeleteRun(ctx, run.ID)
		}
		if err != nil {
			return eris.Wrap(err, "runs delete")
		}

		fmt.Fprintf(os.Stderr, "Deleted run %s.\n", run.ID)
		return nil
	},
}

func init() {
	addRunFilterFlags(runsListCmd.Flags())
	addRunFilterFlags(runsStatsCmd.Flags())
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsListCmd.Flags().Bool("deleted", false, "include soft-deleted runs")

	runsReportCmd.Flags().Bool("pretty", false, "render the report for the terminal")
	runsStatsCmd.Flags().Bool("pretty", false, "render the stats for the terminal")
	runsDeleteCmd.Flags().Bool("hard", false, "remove the run and everything it produced")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsReportCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	rootCmd.AddCommand(runsCmd)
}

func addRunFilterFlags(fs *pflag.FlagSet) {
	fs.String("status", "", "filter by run status (pending, running, completed, failed)")
	fs.String("type", "", "filter by experiment type (position, persona, compression)")
	fs.String("provider", "", "filter by provider")
	fs.String("athlete", "", "filter by athlete id")
	fs.String("batch", "", "filter by batch id")
}

// runFilterFromFlags reads the listing filters registered on cmd.
func runFilterFromFlags(cmd *cobra.Command) (store.RunFilter, error) {
	fs := cmd.Flags()
	status, _ := fs.GetString("status")
	typ, _ := fs.GetString("type")
	providerName, _ := fs.GetString("provider")
	athlete, _ := fs.GetString("athlete")
	batch, _ := fs.GetString("batch")
	limit, _ := fs.GetInt("limit")
	deleted, _ := fs.GetBool("deleted")

	filter := store.RunFilter{
		Provider:       providerName,
		AthleteID:      athlete,
		BatchID:        batch,
		IncludeDeleted: deleted,
		Limit:          limit,
	}
	if status != "" {
		s, err := model.ParseExperimentStatus(status)
		if err != nil {
			return filter, err
		}
		filter.Status = s
	}
	if typ != "" {
		t, err := model.ParseExperimentType(typ)
		if err != nil {
			return filter, err
		}
		filter.Type = t
	}
	return filter, nil
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.ExperimentRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tBATCH\tPROVIDER\tTYPE\tSTATUS\tTOKENS\tCOST\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t--------\t----\t------\t------\t----\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if d := r.Duration(); d > 0 {
			dur = d.Round(time.Second).String()
		}

		label := truncateText(r.Label(), 36)

		batch := "-"
		if r.BatchID != "" {
			batch = truncateID(r.BatchID)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t$%.4f\t%s\t%s\n",
			truncateID(r.ID),
			batch,
			label,
			r.Type,
			r.Status,
			r.TokensUsed,
			r.EstimatedCost,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// printMarkdown writes md as is, or rendered for the terminal when pretty.
func printMarkdown(out io.Writer, md string, pretty bool) error {
	if pretty {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return eris.Wrap(err, "init markdown renderer")
		}
		rendered, err := r.Render(md)
		if err != nil {
			return eris.Wrap(err, "render markdown")
		}
		md = rendered
	}
	_, err := io.WriteString(out, md)
	return err
}

// truncateText shortens s to at most n runes, marking the cut with "...".
func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
