package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmbench/llmbench/internal/bench"
	"github.com/llmbench/llmbench/internal/config"
	"github.com/llmbench/llmbench/internal/llm"
	"github.com/llmbench/llmbench/internal/testutil"
)

// memSink collects appended batch results in memory.
type memSink struct {
	mu      sync.Mutex
	results []bench.BatchResult
}

func (s *memSink) Append(r bench.BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return nil
}

func (s *memSink) all() []bench.BatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bench.BatchResult(nil), s.results...)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Primary = config.Endpoint{Name: "vllm", URL: "http://localhost:8000", Model: "llama-3-8b"}
	cfg.Secondary = config.Endpoint{Name: "tgi", URL: "http://localhost:8001", Model: "mistral-7b"}
	cfg.MaxTokens = []int{128, 256}
	cfg.Repetitions = 2
	cfg.MaxRetries = 1
	cfg.Backoff = 0
	cfg.Timeout = time.Second
	return cfg
}

func factory(clients map[string]llm.Client) ClientFactory {
	return func(ep config.Endpoint) llm.Client {
		return clients[ep.Name]
	}
}

func TestCasesCartesianOrder(t *testing.T) {
	cfg := testConfig()
	o := New(cfg, nil, nil)

	cases := o.cases(cfg.SelectedEndpoints())
	require.Len(t, cases, 8) // 2 tokens x 2 engines x 2 prompts

	type key struct {
		tokens int
		engine string
		prompt string
	}
	var got []key
	for _, c := range cases {
		got = append(got, key{c.MaxTokens, c.Engine, c.PromptType})
	}
	want := []key{
		{128, "vllm", "simple"}, {128, "vllm", "complex"},
		{128, "tgi", "simple"}, {128, "tgi", "complex"},
		{256, "vllm", "simple"}, {256, "vllm", "complex"},
		{256, "tgi", "simple"}, {256, "tgi", "complex"},
	}
	assert.Equal(t, want, got)
}

func TestRunBothEnginesHealthy(t *testing.T) {
	cfg := testConfig()
	sink := &memSink{}
	o := New(cfg, factory(map[string]llm.Client{
		"vllm": testutil.Succeeding("a perfectly fine answer", 5),
		"tgi":  testutil.Succeeding("another fine answer", 5),
	}), sink)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.TotalCases)
	assert.Equal(t, 0, summary.FailedCases)
	assert.Empty(t, summary.Skipped)

	results := sink.all()
	require.Len(t, results, 8)
	// Serial mode preserves the sweep order in the result log.
	assert.Equal(t, "vllm", results[0].Engine)
	assert.Equal(t, "simple", results[0].PromptType)
	assert.Equal(t, 128, results[0].MaxTokens)
	assert.Equal(t, "tgi", results[7].Engine)
	assert.Equal(t, "complex", results[7].PromptType)
	assert.Equal(t, 256, results[7].MaxTokens)
	for _, r := range results {
		assert.Equal(t, 2, r.Successful)
		assert.Equal(t, 2, r.Total)
	}
}

func TestRunContinuesPastFullyFailedBatches(t *testing.T) {
	cfg := testConfig()
	sink := &memSink{}
	// tgi answers its probe, then fails every measured request.
	flaky := &testutil.MockClient{Script: []testutil.Step{
		{Result: &llm.Result{Content: "pong", Elapsed: time.Millisecond}},
		{Err: &openai.APIError{HTTPStatusCode: 500}},
	}}
	o := New(cfg, factory(map[string]llm.Client{
		"vllm": testutil.Succeeding("an answer of substance", 4),
		"tgi":  flaky,
	}), sink)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.TotalCases)
	assert.Equal(t, 4, summary.FailedCases)
	for _, r := range sink.all() {
		if r.Engine == "tgi" {
			assert.True(t, r.FullyFailed())
		} else {
			assert.Equal(t, 2, r.Successful)
		}
	}
}

func TestRunFailFastAbortsOnFirstFullyFailedBatch(t *testing.T) {
	cfg := testConfig()
	cfg.Engine = config.EnginePrimary
	cfg.FailFast = true
	sink := &memSink{}
	flaky := &testutil.MockClient{Script: []testutil.Step{
		{Result: &llm.Result{Content: "pong", Elapsed: time.Millisecond}},
		{Err: &openai.APIError{HTTPStatusCode: 500}},
	}}
	o := New(cfg, factory(map[string]llm.Client{"vllm": flaky}), sink)

	summary, err := o.Run(context.Background())
	require.ErrorIs(t, err, ErrBatchFailed)
	assert.Equal(t, 1, summary.TotalCases)
	assert.Equal(t, 1, summary.FailedCases)
	assert.Len(t, sink.all(), 1)
}

func TestRunSingleEngineProbeFailureIsFatal(t *testing.T) {
	cfg := testConfig()
	cfg.Engine = config.EnginePrimary
	sink := &memSink{}
	o := New(cfg, factory(map[string]llm.Client{
		"vllm": testutil.Failing(&openai.APIError{HTTPStatusCode: 502}),
	}), sink)

	_, err := o.Run(context.Background())
	require.ErrorIs(t, err, ErrEndpointUnreachable)
	assert.Empty(t, sink.all())
}

func TestRunCombinedDegradesToHealthyEndpoint(t *testing.T) {
	cfg := testConfig()
	sink := &memSink{}
	o := New(cfg, factory(map[string]llm.Client{
		"vllm": testutil.Succeeding("still here answering", 3),
		"tgi":  testutil.Failing(&openai.APIError{HTTPStatusCode: 502}),
	}), sink)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"tgi"}, summary.Skipped)
	assert.Equal(t, 4, summary.TotalCases) // 2 tokens x 1 engine x 2 prompts
	for _, r := range sink.all() {
		assert.Equal(t, "vllm", r.Engine)
	}
}

func TestRunCombinedAllProbesFailedIsFatal(t *testing.T) {
	cfg := testConfig()
	sink := &memSink{}
	o := New(cfg, factory(map[string]llm.Client{
		"vllm": testutil.Failing(&openai.APIError{HTTPStatusCode: 502}),
		"tgi":  testutil.Failing(&openai.APIError{HTTPStatusCode: 502}),
	}), sink)

	_, err := o.Run(context.Background())
	require.ErrorIs(t, err, ErrEndpointUnreachable)
}

func TestRunDryRunClientsProduceConsistentBatches(t *testing.T) {
	cfg := testConfig()
	sink := &memSink{}
	o := New(cfg, func(config.Endpoint) llm.Client {
		return llm.NewDryRunClient()
	}, sink)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.TotalCases)
	assert.Equal(t, 0, summary.FailedCases)
	for _, r := range sink.all() {
		assert.Equal(t, cfg.Repetitions, r.Successful)
		assert.Equal(t, cfg.Repetitions, r.Total)
		assert.Greater(t, r.AvgTokensPerSecond, 0.0)
	}
}

func TestRunInterruptedKeepsCompletedBatches(t *testing.T) {
	cfg := testConfig()
	sink := &memSink{}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	// Cancels during the third batch's requests; the first two batches are done.
	client := &cancellingClient{inner: testutil.Succeeding("ok answer", 2), cancel: func() {
		calls++
		if calls == 6 { // probe + 2 batches x 2 reps, then one more
			cancel()
		}
	}}
	cfg.Engine = config.EnginePrimary
	o := New(cfg, factory(map[string]llm.Client{"vllm": client}), sink)

	summary, err := o.Run(ctx)
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 2, summary.TotalCases)
	assert.Len(t, sink.all(), 2)
}

func TestRunParallelSweepsBothEndpoints(t *testing.T) {
	cfg := testConfig()
	cfg.Parallel = true
	sink := &memSink{}
	o := New(cfg, factory(map[string]llm.Client{
		"vllm": testutil.Succeeding("parallel answer one", 3),
		"tgi":  testutil.Succeeding("parallel answer two", 3),
	}), sink)

	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, summary.TotalCases)
	assert.Equal(t, 0, summary.FailedCases)

	// Per-endpoint order is still deterministic even though the two
	// endpoints' records interleave.
	var vllm, tgi []bench.BatchResult
	for _, r := range sink.all() {
		switch r.Engine {
		case "vllm":
			vllm = append(vllm, r)
		case "tgi":
			tgi = append(tgi, r)
		}
	}
	require.Len(t, vllm, 4)
	require.Len(t, tgi, 4)
	assert.Equal(t, 128, vllm[0].MaxTokens)
	assert.Equal(t, "simple", vllm[0].PromptType)
	assert.Equal(t, 256, vllm[3].MaxTokens)
	assert.Equal(t, "complex", vllm[3].PromptType)
}

// cancellingClient triggers a callback on every call before delegating.
type cancellingClient struct {
	inner  llm.Client
	cancel func()
}

func (c *cancellingClient) Complete(ctx context.Context, req llm.Request) (*llm.Result, error) {
	c.cancel()
	return c.inner.Complete(ctx, req)
}
