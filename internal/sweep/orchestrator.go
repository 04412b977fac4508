// Package sweep sequences benchmark batches across engines, prompt types
// and token-count configurations.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/llmbench/llmbench/internal/bench"
	"github.com/llmbench/llmbench/internal/config"
	"github.com/llmbench/llmbench/internal/llm"
	"github.com/llmbench/llmbench/internal/report"
)

// ErrInterrupted reports that the sweep was stopped by cancellation at a
// between-request boundary. Completed batches are already flushed.
var ErrInterrupted = errors.New("benchmark interrupted")

// ErrEndpointUnreachable reports that probing left no endpoint to sweep.
var ErrEndpointUnreachable = errors.New("endpoint unreachable")

// ErrBatchFailed aborts a fail-fast run after the first fully failed batch.
var ErrBatchFailed = errors.New("batch fully failed")

// ClientFactory returns the transport client bound to an endpoint.
type ClientFactory func(config.Endpoint) llm.Client

// Summary accounts for one orchestrator invocation.
type Summary struct {
	TotalCases  int
	FailedCases int
	// Skipped lists engines excluded after a failed probe in a combined run.
	Skipped []string
	Results []bench.BatchResult
}

// Orchestrator runs the full sweep: probe the selected endpoints, then
// execute every (token count, engine, prompt type) combination in order.
type Orchestrator struct {
	cfg       *config.Config
	clientFor ClientFactory
	sink      report.Sink
	progress  bool
}

// New creates an orchestrator. The config must already be validated.
func New(cfg *config.Config, clientFor ClientFactory, sink report.Sink) *Orchestrator {
	return &Orchestrator{cfg: cfg, clientFor: clientFor, sink: sink}
}

// SetProgress toggles the terminal progress bar.
func (o *Orchestrator) SetProgress(on bool) {
	o.progress = on
}

// cases generates the test cases for the given endpoints in deterministic
// order: token counts outermost, then engines, then prompt types with
// simple before complex.
func (o *Orchestrator) cases(endpoints []config.Endpoint) []bench.Case {
	var out []bench.Case
	for _, maxTokens := range o.cfg.MaxTokens {
		for _, ep := range endpoints {
			for _, prompt := range o.cfg.PromptTypes() {
				out = append(out, bench.Case{
					Engine:      ep.Name,
					PromptType:  prompt.Label,
					Prompt:      prompt.Text,
					MaxTokens:   maxTokens,
					Temperature: o.cfg.Temperature,
				})
			}
		}
	}
	return out
}

// Run executes the sweep and returns its summary. On interruption the
// summary covers the batches that completed and the error is ErrInterrupted.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}
	single := o.cfg.Engine != config.EngineBoth

	// Probing. A failed probe is fatal for a single-engine run; in a
	// combined run the healthy endpoint carries on alone.
	var healthy []config.Endpoint
	executors := make(map[string]*bench.Executor)
	for _, ep := range o.cfg.SelectedEndpoints() {
		if err := ctx.Err(); err != nil {
			return summary, ErrInterrupted
		}

		ex := bench.NewExecutor(o.clientFor(ep), o.cfg.MaxRetries, o.cfg.Timeout, o.cfg.Backoff)
		slog.Info("probing endpoint", "engine", ep.Name, "url", ep.URL, "model", ep.Model)
		if err := ex.Probe(ctx, ep.Model); err != nil {
			if single {
				return summary, fmt.Errorf("engine %s at %s: %w: %v",
					ep.Name, ep.URL, ErrEndpointUnreachable, err)
			}
			slog.Error("endpoint excluded from sweep after failed probe",
				"engine", ep.Name, "url", ep.URL, "error", err)
			summary.Skipped = append(summary.Skipped, ep.Name)
			continue
		}
		healthy = append(healthy, ep)
		executors[ep.Name] = ex
	}
	if len(healthy) == 0 {
		return summary, fmt.Errorf("no endpoint survived probing: %w", ErrEndpointUnreachable)
	}

	// Sweeping.
	if o.cfg.Parallel && len(healthy) > 1 {
		return summary, o.runParallel(ctx, healthy, executors, summary)
	}

	cases := o.cases(healthy)
	bar := o.newBar(len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return summary, ErrInterrupted
		}
		if err := o.runCase(ctx, executors[c.Engine], c, summary, nil); err != nil {
			return summary, err
		}
		barAdd(bar)
	}
	barFinish(bar)

	slog.Info("sweep complete", "cases", summary.TotalCases, "failed", summary.FailedCases)
	return summary, nil
}

// runCase executes one batch, persists its record and updates the summary.
// mu guards the summary in parallel mode; it is nil in the serial path.
func (o *Orchestrator) runCase(ctx context.Context, ex *bench.Executor, c bench.Case, summary *Summary, mu *sync.Mutex) error {
	result := bench.RunBatch(ctx, ex, c, o.cfg.Repetitions, nil)
	if err := ctx.Err(); err != nil && result.Total < o.cfg.Repetitions {
		// Abandoned mid-batch: nothing durable to record for this case.
		return ErrInterrupted
	}

	if err := o.sink.Append(result); err != nil {
		return fmt.Errorf("failed to record batch result: %w", err)
	}

	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	summary.TotalCases++
	summary.Results = append(summary.Results, result)
	if result.FullyFailed() {
		summary.FailedCases++
		if o.cfg.FailFast {
			return fmt.Errorf("engine %s, prompt %s, max_tokens %d: %w",
				c.Engine, c.PromptType, c.MaxTokens, ErrBatchFailed)
		}
	}
	return nil
}

// runParallel sweeps each endpoint on its own goroutine. Requests to a
// single endpoint stay strictly serial; only distinct endpoints overlap.
// Record order in the result log is not deterministic in this mode.
func (o *Orchestrator) runParallel(ctx context.Context, endpoints []config.Endpoint, executors map[string]*bench.Executor, summary *Summary) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	errs := make([]error, len(endpoints))

	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep config.Endpoint) {
			defer wg.Done()
			for _, c := range o.cases([]config.Endpoint{ep}) {
				if ctx.Err() != nil {
					errs[i] = ErrInterrupted
					return
				}
				if err := o.runCase(ctx, executors[ep.Name], c, summary, &mu); err != nil {
					errs[i] = err
					cancel()
					return
				}
			}
		}(i, ep)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, ErrInterrupted) {
			return err
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	slog.Info("sweep complete", "cases", summary.TotalCases, "failed", summary.FailedCases)
	return nil
}

func (o *Orchestrator) newBar(total int) *progressbar.ProgressBar {
	if !o.progress {
		return nil
	}
	return progressbar.Default(int64(total), "benchmarking")
}

func barAdd(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Add(1)
	}
}

func barFinish(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}
