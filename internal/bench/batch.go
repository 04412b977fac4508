package bench

import (
	"context"
	"log/slog"

	"github.com/llmbench/llmbench/internal/llm"
)

// benchSystemMessage frames every measured request identically across
// engines so completions stay comparable.
const benchSystemMessage = "You are a helpful assistant."

// ProgressFunc is called after each repetition of a batch completes.
type ProgressFunc func(done, total int)

// RunBatch executes reps sequential logical requests for one test case and
// aggregates them into a single BatchResult. Requests are never issued
// concurrently; overlapping requests would contend on the backend and
// corrupt the latency being measured. Cancellation is honored between
// repetitions, so an interrupted batch reports only the repetitions that
// actually ran.
func RunBatch(ctx context.Context, ex *Executor, c Case, reps int, progress ProgressFunc) BatchResult {
	slog.Info("running batch",
		"engine", c.Engine,
		"prompt_type", c.PromptType,
		"max_tokens", c.MaxTokens,
		"repetitions", reps,
	)

	stats := NewStats()
	req := llm.Request{
		SystemMessage: benchSystemMessage,
		UserMessage:   c.Prompt,
		MaxTokens:     c.MaxTokens,
		Temperature:   c.Temperature,
	}

	for i := 0; i < reps; i++ {
		if err := ctx.Err(); err != nil {
			slog.Warn("batch interrupted",
				"engine", c.Engine,
				"prompt_type", c.PromptType,
				"completed", i,
				"repetitions", reps,
			)
			break
		}

		stats.Add(ex.Do(ctx, req))
		if progress != nil {
			progress(i+1, reps)
		}
	}

	result := stats.Result(c)
	if result.FullyFailed() {
		slog.Error("batch fully failed",
			"engine", c.Engine,
			"prompt_type", c.PromptType,
			"max_tokens", c.MaxTokens,
			"total", result.Total,
		)
	} else {
		slog.Info("batch complete",
			"engine", c.Engine,
			"prompt_type", c.PromptType,
			"max_tokens", c.MaxTokens,
			"successful", result.Successful,
			"total", result.Total,
			"avg_response_time", result.AvgElapsed,
			"avg_tokens_per_second", result.AvgTokensPerSecond,
		)
	}
	return result
}
