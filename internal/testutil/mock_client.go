// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/llmbench/llmbench/internal/llm"
)

// Step is one scripted response for MockClient.
type Step struct {
	Result *llm.Result
	Err    error
}

// MockClient is a configurable mock for llm.Client used across test packages.
// Calls consume Script in order; once the script is exhausted the last step
// repeats, which makes permanently failing backends easy to express.
type MockClient struct {
	mu sync.Mutex

	// Script is the ordered list of canned responses.
	Script []Step

	// Calls tracks the number of Complete invocations.
	Calls int

	// Requests stores every request for inspection.
	Requests []llm.Request
}

// Succeeding returns a mock whose every call succeeds with the given content
// and reported token count.
func Succeeding(content string, tokens int) *MockClient {
	return &MockClient{Script: []Step{{
		Result: &llm.Result{Content: content, CompletionTokens: tokens, Elapsed: 10 * time.Millisecond},
	}}}
}

// Failing returns a mock whose every call fails with err.
func Failing(err error) *MockClient {
	return &MockClient{Script: []Step{{Err: err}}}
}

func (m *MockClient) Complete(_ context.Context, req llm.Request) (*llm.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.Calls
	m.Calls++
	m.Requests = append(m.Requests, req)

	if len(m.Script) == 0 {
		return &llm.Result{Content: "mock response", Elapsed: time.Millisecond}, nil
	}
	if idx >= len(m.Script) {
		idx = len(m.Script) - 1
	}
	step := m.Script[idx]
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Result, nil
}

// CallCount returns the number of Complete invocations so far.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// LastRequest returns the most recent request, or the zero value when no
// call was made.
func (m *MockClient) LastRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return llm.Request{}
	}
	return m.Requests[len(m.Requests)-1]
}
