package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	cfgFile  string
	dbPath   string
	model    string
	logLevel string
	noColor  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "evoc",
		Short: "Multi-agent generator for DEAP evolutionary algorithms",
		Long: `Evoc turns a natural-language optimization problem into a runnable DEAP
program. Seven agents each write one cell of the notebook in order, from
problem analysis to the final toolbox integration; cells can be regenerated
individually and every version is kept.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/evoc/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides storage.db_path)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model to use (overrides model.name)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable syntax highlighting")

	rootCmd.AddCommand(
		newProblemCmd(),
		newNotebooksCmd(),
		newRunCmd(),
		newResumeCmd(),
		newCancelCmd(),
		newStatusCmd(),
		newAgentsCmd(),
		newRegenerateCmd(),
		newCellsCmd(),
		newCodeCmd(),
		newDiffCmd(),
		newBatchCmd(),
	)

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("evoc version %s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
