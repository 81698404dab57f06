package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an InferenceClient for testing. By default it answers
// "OK-<label>" for every request.
type MockClient struct {
	// Configurable behavior
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int          // Fail after N requests (0 = never)
	FailOn     map[int]bool // 1-based request numbers that fail
	FailKind   ErrorKind    // Kind of injected failures (default: transport)
	Respond    func(req *InferRequest) (string, error)

	// State
	mu           sync.Mutex
	requests     []InferRequest
	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{FailKind: KindTransport}
}

// Name returns the client identifier.
func (c *MockClient) Name() string { return MockClientName }

// Model returns a fixed model name.
func (c *MockClient) Model() string { return "mock-model" }

// Infer records the request and returns a canned response or failure.
func (c *MockClient) Infer(ctx context.Context, req *InferRequest) (*InferResult, error) {
	start := time.Now()
	count := int(c.requestCount.Add(1))

	c.mu.Lock()
	c.requests = append(c.requests, *req)
	c.mu.Unlock()

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			return nil, transportError(MockClientName, ctx.Err())
		}
	}

	if c.ShouldFail || c.FailOn[count] || (c.FailAfter > 0 && count > c.FailAfter) {
		kind := c.FailKind
		if kind == "" {
			kind = KindTransport
		}
		return nil, &InferenceError{
			Provider: MockClientName,
			Kind:     kind,
			Message:  fmt.Sprintf("mock failure on request %d", count),
		}
	}

	text := "OK-" + req.Label
	if c.Respond != nil {
		var err error
		text, err = c.Respond(req)
		if err != nil {
			return nil, err
		}
	}

	return &InferResult{
		Text:             text,
		PromptTokens:     len(req.Instruction) / 4,
		CompletionTokens: len(text) / 4,
		TotalTokens:      len(req.Instruction)/4 + len(text)/4,
		ExecutionTime:    time.Since(start),
		Provider:         MockClientName,
		ModelUsed:        c.Model(),
		RequestID:        fmt.Sprintf("mock-%d", count),
	}, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns a copy of every request received.
func (c *MockClient) Requests() []InferRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]InferRequest(nil), c.requests...)
}

// Labels returns the label of every request received, in order.
func (c *MockClient) Labels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	labels := make([]string, len(c.requests))
	for i, r := range c.requests {
		labels[i] = r.Label
	}
	return labels
}

// Reset clears recorded requests and the counter.
func (c *MockClient) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = nil
	c.requestCount.Store(0)
}
