package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llmbench/llmbench/internal/bench"
	"github.com/llmbench/llmbench/internal/config"
)

func newProbeCmd() *cobra.Command {
	var (
		engine string
		apiKey string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the configured backends are reachable",
		Long: `Send one lightweight completion request to each selected endpoint and
report whether it answered. No measurements are taken or recorded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("engine") {
				cfg.Engine = engine
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			clientFor := newClientFactory(cfg, apiKey)

			failed := 0
			for _, ep := range cfg.SelectedEndpoints() {
				ex := bench.NewExecutor(clientFor(ep), cfg.MaxRetries, cfg.Timeout, cfg.Backoff)
				if err := ex.Probe(cmd.Context(), ep.Model); err != nil {
					fmt.Printf("  %-10s %s  FAIL  (%v)\n", ep.Name, ep.URL, err)
					failed++
					continue
				}
				fmt.Printf("  %-10s %s  OK\n", ep.Name, ep.URL)
			}

			if failed > 0 {
				return fmt.Errorf("%d endpoint(s) unreachable", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&engine, "engine", config.EngineBoth, "Engines to probe: primary, secondary or both")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or set OPENAI_API_KEY)")

	return cmd
}
