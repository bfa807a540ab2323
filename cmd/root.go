package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"github.com/sells-group/journal-harness/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "journal-harness",
	Short: "LLM experiment harness for athlete journals",
	Long:  "Runs summarisation, needle-position and compression experiments over athlete journal entries across LLM providers, grounds every claim in the journal and compares providers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
