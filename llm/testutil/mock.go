// Package testutil provides test utilities for the llm package.
// It includes mock implementations for testing model client interactions.
package testutil

import (
	"context"
	"sync"

	"github.com/platewise/platewise/llm"
)

// MockClient is a thread-safe mock model client for testing.
// It captures the context passed to Complete() and returns configured responses.
//
// Usage:
//
//	// Single response mock
//	mock := &MockClient{
//	    Responses: []*llm.Response{
//	        {Content: `{"name": "Tomato Soup"}`, Model: "test-model"},
//	    },
//	}
//
//	// Error response
//	mock := &MockClient{
//	    Err: errors.New("connection failed"),
//	}
type MockClient struct {
	mu              sync.Mutex
	capturedContext context.Context
	capturedPrompts []string
	Responses       []*llm.Response // Responses to return in sequence
	Err             error           // Error to return (takes precedence over Responses)
	Delay           func(ctx context.Context) error
	callCount       int
	responseIndex   int
}

// Complete returns the next response from Responses, or Err if set.
// If Delay is set it runs first, so tests can simulate slow providers
// that respect or ignore the caller's deadline.
func (m *MockClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.capturedContext = ctx
	m.callCount++
	for _, msg := range req.Messages {
		m.capturedPrompts = append(m.capturedPrompts, msg.Content)
	}
	delay := m.Delay
	m.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	// Default response if no responses configured
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// GetCapturedContext returns the last context passed to Complete().
func (m *MockClient) GetCapturedContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedContext
}

// GetCapturedPrompts returns every message content passed to Complete().
func (m *MockClient) GetCapturedPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.capturedPrompts...)
}

// GetCallCount returns the number of times Complete() was called.
func (m *MockClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset resets the mock's state (call count and response index).
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.responseIndex = 0
	m.capturedContext = nil
	m.capturedPrompts = nil
}
