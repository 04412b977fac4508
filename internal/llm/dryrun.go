package llm

import (
	"context"
	"sync"
	"time"
)

const dryRunContent = "This is a synthetic dry-run completion used for harness self-checks."

// DryRunClient implements Client without any network activity. Every call
// succeeds with the same synthetic completion and a deterministic elapsed
// time that varies slightly per call, so aggregate statistics come out
// non-degenerate but reproducible.
type DryRunClient struct {
	mu    sync.Mutex
	calls int
}

// NewDryRunClient creates a dry-run client.
func NewDryRunClient() *DryRunClient {
	return &DryRunClient{}
}

// Complete returns a synthetic result. The context is only checked for
// cancellation; no request is made.
func (c *DryRunClient) Complete(ctx context.Context, _ Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	n := c.calls
	c.calls++
	c.mu.Unlock()

	// 50ms base with a repeating 0-40ms spread keeps min, max and stddev
	// distinct without making any call order-dependent across runs.
	elapsed := 50*time.Millisecond + time.Duration(n%5)*10*time.Millisecond

	return &Result{
		Content:          dryRunContent,
		CompletionTokens: 12,
		Elapsed:          elapsed,
	}, nil
}

// Calls reports how many completions have been served.
func (c *DryRunClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
