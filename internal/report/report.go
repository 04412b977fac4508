package report

import (
	"fmt"
	"io"

	"github.com/llmbench/llmbench/internal/bench"
)

// WriteRunReport renders the per-case result table and the run totals.
func WriteRunReport(w io.Writer, results []bench.BatchResult, failedCases int) {
	fmt.Fprintln(w, "| Engine | Prompt | Max Tokens | OK | Avg (s) | Min (s) | Max (s) | Tokens/s | Std Dev (s) |")
	fmt.Fprintln(w, "|--------|--------|------------|----|---------|---------|---------|----------|-------------|")

	for _, r := range results {
		ok := fmt.Sprintf("%d/%d", r.Successful, r.Total)
		if r.FullyFailed() {
			fmt.Fprintf(w, "| %s | %s | %d | %s | - | - | - | - | - |\n",
				r.Engine, r.PromptType, r.MaxTokens, ok)
			continue
		}
		fmt.Fprintf(w, "| %s | %s | %d | %s | %.3f | %.3f | %.3f | %.2f | %.3f |\n",
			r.Engine, r.PromptType, r.MaxTokens, ok,
			r.AvgElapsed, r.MinElapsed, r.MaxElapsed,
			r.AvgTokensPerSecond, r.StdDevElapsed)
	}

	fmt.Fprintf(w, "\nTest cases: %d total, %d failed\n", len(results), failedCases)
}
