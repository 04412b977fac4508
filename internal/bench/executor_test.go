package bench

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llmbench/llmbench/internal/llm"
	"github.com/llmbench/llmbench/internal/testutil"
)

func TestExecutorSuccessFirstAttempt(t *testing.T) {
	client := testutil.Succeeding("Paris is the capital of France.", 7)
	ex := NewExecutor(client, 3, time.Second, time.Millisecond)

	outcome := ex.Do(context.Background(), llm.Request{UserMessage: "capital of France?"})

	assert.True(t, outcome.Success)
	assert.Equal(t, 7, outcome.Tokens)
	assert.Greater(t, outcome.Elapsed, 0.0)
	assert.Greater(t, outcome.TokensPerSecond, 0.0)
	assert.Equal(t, 1, client.CallCount())
}

func TestExecutorPermanentFailureExhaustsAttemptBudget(t *testing.T) {
	client := testutil.Failing(&openai.APIError{HTTPStatusCode: 500, Message: "boom"})
	backoff := 5 * time.Millisecond
	ex := NewExecutor(client, 3, time.Second, backoff)

	start := time.Now()
	outcome := ex.Do(context.Background(), llm.Request{UserMessage: "q"})
	wall := time.Since(start)

	assert.False(t, outcome.Success)
	assert.Equal(t, llm.FailureHTTPStatus, outcome.Reason)
	assert.Equal(t, 0, outcome.Tokens)
	assert.Equal(t, 0.0, outcome.TokensPerSecond)
	assert.Equal(t, 3, client.CallCount())
	// Backoffs of 1x and 2x the base separate the three attempts.
	assert.GreaterOrEqual(t, wall, 3*backoff)
}

func TestExecutorRecoversAfterTransientFailures(t *testing.T) {
	client := &testutil.MockClient{Script: []testutil.Step{
		{Err: &openai.APIError{HTTPStatusCode: 503}},
		{Err: context.DeadlineExceeded},
		{Result: &llm.Result{Content: "recovered answer", CompletionTokens: 2, Elapsed: 20 * time.Millisecond}},
	}}
	ex := NewExecutor(client, 3, time.Second, time.Millisecond)

	outcome := ex.Do(context.Background(), llm.Request{UserMessage: "q"})

	require.True(t, outcome.Success)
	assert.Equal(t, 2, outcome.Tokens)
	assert.Equal(t, 3, client.CallCount())
}

func TestExecutorRetriesDegenerateCompletion(t *testing.T) {
	client := &testutil.MockClient{Script: []testutil.Step{
		{Result: &llm.Result{Content: "   \n", Elapsed: time.Millisecond}},
		{Result: &llm.Result{Content: "real answer", Elapsed: time.Millisecond}},
	}}
	ex := NewExecutor(client, 2, time.Second, time.Millisecond)

	outcome := ex.Do(context.Background(), llm.Request{UserMessage: "q"})

	assert.True(t, outcome.Success)
	assert.Equal(t, 2, client.CallCount())
}

func TestExecutorPermanentlyEmptyCompletionFails(t *testing.T) {
	client := testutil.Succeeding("", 0)
	ex := NewExecutor(client, 2, time.Second, time.Millisecond)

	outcome := ex.Do(context.Background(), llm.Request{UserMessage: "q"})

	assert.False(t, outcome.Success)
	assert.Equal(t, llm.FailureEmpty, outcome.Reason)
	assert.Equal(t, 2, client.CallCount())
}

func TestExecutorFailedOutcomeKeepsLastElapsed(t *testing.T) {
	client := testutil.Failing(&openai.APIError{HTTPStatusCode: 500})
	ex := NewExecutor(client, 2, time.Second, time.Millisecond)

	outcome := ex.Do(context.Background(), llm.Request{UserMessage: "q"})

	assert.False(t, outcome.Success)
	// The last attempt's wall time is reported, never a negative value.
	assert.GreaterOrEqual(t, outcome.Elapsed, 0.0)
}

func TestExecutorCancelledContext(t *testing.T) {
	client := testutil.Succeeding("hello there", 2)
	ex := NewExecutor(client, 3, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := ex.Do(ctx, llm.Request{UserMessage: "q"})

	assert.False(t, outcome.Success)
	// Operator cancellation is not a backend timeout.
	assert.Equal(t, llm.FailureCancelled, outcome.Reason)
	assert.Equal(t, 0, client.CallCount())
}

func TestExecutorLogsEveryFailedAttempt(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	client := testutil.Failing(&openai.APIError{HTTPStatusCode: 500})
	ex := NewExecutor(client, 3, time.Second, time.Millisecond)

	outcome := ex.Do(context.Background(), llm.Request{UserMessage: "q"})
	require.False(t, outcome.Success)

	out := buf.String()
	// One line per failed attempt, the final one included.
	assert.Contains(t, out, "attempt=1")
	assert.Contains(t, out, "attempt=2")
	assert.Contains(t, out, "attempt=3")
	// Only retried attempts carry a backoff interval.
	assert.Equal(t, 2, strings.Count(out, "backoff="))
}

func TestExecutorMinimumOneAttempt(t *testing.T) {
	client := testutil.Succeeding("ok then", 2)
	ex := NewExecutor(client, 0, time.Second, time.Millisecond)

	outcome := ex.Do(context.Background(), llm.Request{UserMessage: "q"})
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, client.CallCount())
}

func TestProbeSucceeds(t *testing.T) {
	client := testutil.Succeeding("Hi", 1)
	ex := NewExecutor(client, 2, time.Second, time.Millisecond)

	require.NoError(t, ex.Probe(context.Background(), "llama-3-8b"))

	req := client.LastRequest()
	assert.Equal(t, 5, req.MaxTokens)
	assert.Equal(t, 0.0, req.Temperature)
	assert.Equal(t, "llama-3-8b", req.Model)
}

func TestProbeAcceptsEmptyCompletion(t *testing.T) {
	// Reachability is all a probe checks; an empty body is still a response.
	client := testutil.Succeeding("", 0)
	ex := NewExecutor(client, 1, time.Second, 0)

	assert.NoError(t, ex.Probe(context.Background(), "m"))
}

func TestProbeUnreachableEndpoint(t *testing.T) {
	client := testutil.Failing(&openai.APIError{HTTPStatusCode: 502})
	ex := NewExecutor(client, 2, time.Second, time.Millisecond)

	err := ex.Probe(context.Background(), "m")
	require.Error(t, err)
	assert.Equal(t, llm.FailureHTTPStatus, llm.Classify(err).Reason)
	assert.Equal(t, 2, client.CallCount())
}
