// Package bench implements the measurement engine: per-request execution
// with retries, online statistics, and per-test-case batch aggregation.
package bench

import "github.com/llmbench/llmbench/internal/llm"

// Outcome is the normalized result of one logical request, after retries.
// A failed outcome carries the last attempt's measured elapsed time,
// Tokens = 0 and TokensPerSecond = 0.
type Outcome struct {
	Elapsed         float64 // seconds, never negative
	Tokens          int
	TokensPerSecond float64
	Success         bool
	Reason          llm.FailureReason // set when Success is false
}

// Rate computes tokens per second. It is 0 whenever elapsed is not positive
// or no tokens were generated, so it is never negative or infinite.
func Rate(tokens int, elapsedSeconds float64) float64 {
	if tokens <= 0 || elapsedSeconds <= 0 {
		return 0
	}
	return float64(tokens) / elapsedSeconds
}

// Case identifies one point in the benchmark sweep.
type Case struct {
	Engine      string
	PromptType  string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// BatchResult aggregates all repetitions of one Case. Aggregate fields are
// meaningful only when Successful > 0; a fully failed batch reports them
// as zero values.
type BatchResult struct {
	Engine             string
	PromptType         string
	MaxTokens          int
	Successful         int
	Total              int
	AvgElapsed         float64
	MinElapsed         float64
	MaxElapsed         float64
	AvgTokens          int
	AvgTokensPerSecond float64
	StdDevElapsed      float64
}

// FullyFailed reports whether no repetition of the batch succeeded.
func (b BatchResult) FullyFailed() bool {
	return b.Successful == 0
}
