package bench

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/llmbench/llmbench/internal/llm"
)

// Executor produces exactly one Outcome per logical request, retrying
// failed attempts with a linearly increasing backoff.
type Executor struct {
	client      llm.Client
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration

	// allowEmpty disables the degenerate-completion check; probes only
	// care about reachability, not completion content.
	allowEmpty bool
}

// NewExecutor creates an executor. maxAttempts is the total attempt budget
// (not additional retries); timeout bounds each attempt; backoff is the base
// pause, multiplied by the number of attempts already failed.
func NewExecutor(client llm.Client, maxAttempts int, timeout, backoff time.Duration) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		client:      client,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		backoff:     backoff,
	}
}

// Do runs one logical request. A completion counts as success only when its
// text is non-empty after whitespace trimming; degenerate completions retry
// like transport failures. After the attempt budget is exhausted the outcome
// is failed, carrying the last attempt's elapsed time and failure reason.
func (e *Executor) Do(ctx context.Context, req llm.Request) Outcome {
	var lastElapsed time.Duration
	var lastReason llm.FailureReason

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastReason == "" {
				lastReason = llm.FailureCancelled
			}
			break
		}

		res, err := e.complete(ctx, req)
		if res != nil && res.Elapsed > 0 {
			lastElapsed = res.Elapsed
		}

		if err == nil && !e.allowEmpty && strings.TrimSpace(res.Content) == "" {
			err = &llm.RequestError{Reason: llm.FailureEmpty}
		}

		if err == nil {
			tokens := llm.TokenCount(res)
			elapsed := lastElapsed.Seconds()
			return Outcome{
				Elapsed:         elapsed,
				Tokens:          tokens,
				TokensPerSecond: Rate(tokens, elapsed),
				Success:         true,
			}
		}

		lastReason = llm.Classify(err).Reason

		if attempt == e.maxAttempts {
			slog.Warn("request attempt failed",
				"attempt", attempt,
				"max_attempts", e.maxAttempts,
				"reason", lastReason,
			)
			break
		}

		pause := time.Duration(attempt) * e.backoff
		slog.Warn("request attempt failed",
			"attempt", attempt,
			"max_attempts", e.maxAttempts,
			"reason", lastReason,
			"backoff", pause,
		)
		if !sleepCtx(ctx, pause) {
			break
		}
	}

	return Outcome{
		Elapsed: lastElapsed.Seconds(),
		Success: false,
		Reason:  lastReason,
	}
}

// complete invokes the adapter with the per-attempt timeout, measuring the
// attempt's wall time when the adapter reports none of its own.
func (e *Executor) complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := e.client.Complete(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		return &llm.Result{Elapsed: elapsed}, err
	}
	if res.Elapsed <= 0 {
		res.Elapsed = elapsed
	}
	return res, nil
}

// Probe issues a single lightweight request to confirm the backend is
// reachable. The completion content is never recorded as a measurement.
func (e *Executor) Probe(ctx context.Context, model string) error {
	p := *e
	p.allowEmpty = true
	outcome := p.Do(ctx, llm.Request{
		Model:       model,
		UserMessage: "Hello",
		MaxTokens:   5,
		Temperature: 0.0,
	})
	if !outcome.Success {
		return &llm.RequestError{Reason: outcome.Reason}
	}
	return nil
}

// sleepCtx sleeps for d unless the context is cancelled first; it reports
// whether the full pause elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
