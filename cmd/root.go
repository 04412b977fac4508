package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/llmbench/llmbench/internal/sweep"
)

var rootCmd = &cobra.Command{
	Use:   "llmbench",
	Short: "Latency and throughput benchmark for LLM serving backends",
	Long: `llmbench measures and compares the inference latency and token throughput of
two OpenAI-compatible LLM serving backends. It drives sequential request load
across every combination of engine, prompt type and max-token count, computes
per-batch statistics and appends one CSV record per batch to the result log.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))
		}
	},
}

var (
	buildCommit = "unknown"
	buildDate   = "unknown"
)

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// SetBuildInfo sets the commit and build date for the version command.
func SetBuildInfo(commit, date string) {
	buildCommit = commit
	buildDate = date
}

// Execute is the main entry point for the CLI application. An interrupted
// benchmark run exits with status 130; all other failures exit with 1.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "llmbench version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, sweep.ErrInterrupted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newProbeCmd())

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
}
