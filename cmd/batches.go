package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/journal-harness/internal/report"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect provider comparison batches",
}

var batchesShowCmd = &cobra.Command{
	Use:   "show <batch-id>",
	Short: "Show a batch with its member runs and comparison",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, err := report.LoadBatch(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "batches show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(b)
	},
}

var batchesReportCmd = &cobra.Command{
	Use:   "report <batch-id>",
	Short: "Print the Markdown comparison report of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		b, err := report.LoadBatch(ctx, st, args[0])
		if err != nil {
			return eris.Wrap(err, "batches report")
		}

		pretty, _ := cmd.Flags().GetBool("pretty")
		return printMarkdown(os.Stdout, report.BatchMarkdown(*b), pretty)
	},
}

func init() {
	batchesReportCmd.Flags().Bool("pretty", false, "render the report for the terminal")

	batchesCmd.AddCommand(batchesShowCmd)
	batchesCmd.AddCommand(batchesReportCmd)
	rootCmd.AddCommand(batchesCmd)
}
