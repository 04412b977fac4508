package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/llmbench/llmbench/internal/config"
	"github.com/llmbench/llmbench/internal/llm"
	"github.com/llmbench/llmbench/internal/report"
	"github.com/llmbench/llmbench/internal/sweep"
)

func newRunCmd() *cobra.Command {
	var (
		engine         string
		maxTokens      []int
		temperature    float64
		repetitions    int
		timeout        time.Duration
		maxRetries     int
		backoff        time.Duration
		simplePrompt   string
		complexPrompt  string
		primaryURL     string
		primaryModel   string
		secondaryURL   string
		secondaryModel string
		apiKey         string
		output         string
		dryRun         bool
		failFast       bool
		parallel       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark sweep against the configured backends",
		Long: `Execute the full benchmark sweep: probe the selected endpoints, then for
every combination of max-token count, engine and prompt type run a batch of
repeated requests and append its aggregate statistics to the CSV result log.

Interrupting the run (Ctrl-C) stops it at the next request boundary; batches
recorded so far stay in the result log and the process exits with status 130.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			// Flag overrides beat the config file.
			flags := cmd.Flags()
			if flags.Changed("engine") {
				cfg.Engine = engine
			}
			if flags.Changed("max-tokens") {
				cfg.MaxTokens = maxTokens
			}
			if flags.Changed("temperature") {
				cfg.Temperature = temperature
			}
			if flags.Changed("repetitions") {
				cfg.Repetitions = repetitions
			}
			if flags.Changed("timeout") {
				cfg.Timeout = timeout
			}
			if flags.Changed("max-retries") {
				cfg.MaxRetries = maxRetries
			}
			if flags.Changed("backoff") {
				cfg.Backoff = backoff
			}
			if flags.Changed("simple-prompt") {
				cfg.SimplePrompt = simplePrompt
			}
			if flags.Changed("complex-prompt") {
				cfg.ComplexPrompt = complexPrompt
			}
			if flags.Changed("primary-url") {
				cfg.Primary.URL = primaryURL
			}
			if flags.Changed("primary-model") {
				cfg.Primary.Model = primaryModel
			}
			if flags.Changed("secondary-url") {
				cfg.Secondary.URL = secondaryURL
			}
			if flags.Changed("secondary-model") {
				cfg.Secondary.Model = secondaryModel
			}
			if flags.Changed("output") {
				cfg.Output = output
			}
			if flags.Changed("dry-run") {
				cfg.DryRun = dryRun
			}
			if flags.Changed("fail-fast") {
				cfg.FailFast = failFast
			}
			if flags.Changed("parallel") {
				cfg.Parallel = parallel
			}

			// Validation failures must prevent any network activity.
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			writer, err := report.NewCSVWriter(cfg.Output)
			if err != nil {
				return err
			}
			defer writer.Close()

			o := sweep.New(cfg, newClientFactory(cfg, apiKey), writer)
			verbose, _ := flags.GetBool("verbose")
			o.SetProgress(!verbose && !cfg.Parallel)

			fmt.Printf("Engines: %s\n", cfg.Engine)
			fmt.Printf("Token counts: %v\n", cfg.MaxTokens)
			fmt.Printf("Repetitions per case: %d\n", cfg.Repetitions)
			if cfg.DryRun {
				fmt.Println("Dry run: no requests will leave this process.")
			}
			fmt.Println()

			summary, runErr := o.Run(ctx)

			if summary != nil && len(summary.Results) > 0 {
				fmt.Println()
				report.WriteRunReport(os.Stdout, summary.Results, summary.FailedCases)
				fmt.Printf("Result log: %s\n", cfg.Output)
			}
			if runErr != nil {
				return runErr
			}

			slog.Info("benchmark complete",
				"cases", summary.TotalCases,
				"failed", summary.FailedCases,
				"output", cfg.Output,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&engine, "engine", config.EngineBoth, "Engines to benchmark: primary, secondary or both")
	cmd.Flags().IntSliceVar(&maxTokens, "max-tokens", []int{128, 256, 512}, "Max-token counts to sweep")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Sampling temperature for measured requests")
	cmd.Flags().IntVar(&repetitions, "repetitions", 5, "Repetitions per test case")
	cmd.Flags().DurationVar(&timeout, "timeout", 120*time.Second, "Per-attempt request timeout")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "Attempt budget per logical request")
	cmd.Flags().DurationVar(&backoff, "backoff", 2*time.Second, "Base backoff between attempts")
	cmd.Flags().StringVar(&simplePrompt, "simple-prompt", "", "Prompt used for the simple prompt type")
	cmd.Flags().StringVar(&complexPrompt, "complex-prompt", "", "Prompt used for the complex prompt type")
	cmd.Flags().StringVar(&primaryURL, "primary-url", "", "Base URL of the primary backend")
	cmd.Flags().StringVar(&primaryModel, "primary-model", "", "Model served by the primary backend")
	cmd.Flags().StringVar(&secondaryURL, "secondary-url", "", "Base URL of the secondary backend")
	cmd.Flags().StringVar(&secondaryModel, "secondary-model", "", "Model served by the secondary backend")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or set OPENAI_API_KEY)")
	cmd.Flags().StringVar(&output, "output", "", "Path of the CSV result log")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Use a synthetic transport; no network calls")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Abort the sweep after the first fully failed batch")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Sweep both endpoints concurrently (result log order becomes nondeterministic)")

	return cmd
}

// newClientFactory builds the per-endpoint transport. Dry runs share no
// state between endpoints, so each gets its own deterministic client.
func newClientFactory(cfg *config.Config, apiKey string) sweep.ClientFactory {
	if cfg.DryRun {
		return func(config.Endpoint) llm.Client {
			return llm.NewDryRunClient()
		}
	}
	return func(ep config.Endpoint) llm.Client {
		opts := []llm.Option{
			llm.WithBaseURL(ep.URL),
			llm.WithModel(ep.Model),
			llm.WithTimeout(cfg.Timeout),
		}
		if apiKey != "" {
			opts = append(opts, llm.WithAPIKey(apiKey))
		} else if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
			opts = append(opts, llm.WithAPIKey(envKey))
		}
		return llm.NewOpenAIClient(opts...)
	}
}
