package llm

import (
	"context"
	"sync"
)

const (
	mockModel    = "mock-model"
	mockEndpoint = "http://mock-endpoint"
)

// MockCall is one recorded GenerateResponse invocation.
type MockCall struct {
	Prompt        string
	SystemMessage string
	Temperature   float64
}

// MockLLMClient records requests and answers them from GenerateResponseFunc.
// With no func set it replies "{}".
type MockLLMClient struct {
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// Model and Endpoint override the mock-model / http://mock-endpoint defaults.
	Model    string
	Endpoint string

	mu    sync.Mutex
	calls []MockCall
}

// NewMockLLMClient creates a mock that replies with an empty JSON object.
func NewMockLLMClient() *MockLLMClient {
	return &MockLLMClient{}
}

// NewMockLLMClientWithReply returns a mock that always answers with content.
func NewMockLLMClientWithReply(content string) *MockLLMClient {
	return &MockLLMClient{
		GenerateResponseFunc: func(context.Context, string, string, float64) (*GenerateResponseResult, error) {
			return &GenerateResponseResult{Content: content}, nil
		},
	}
}

// GenerateResponse implements LLMClient.
func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, SystemMessage: systemMessage, Temperature: temperature})
	fn := m.GenerateResponseFunc
	m.mu.Unlock()

	if fn == nil {
		return &GenerateResponseResult{Content: "{}"}, nil
	}
	return fn(ctx, prompt, systemMessage, temperature)
}

// Calls returns a copy of the recorded requests, oldest first.
func (m *MockLLMClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// GenerateResponseCalls returns how many times GenerateResponse was called.
func (m *MockLLMClient) GenerateResponseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastPrompt returns the prompt of the most recent call, or "".
func (m *MockLLMClient) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	return m.calls[len(m.calls)-1].Prompt
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return mockModel
	}
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockLLMClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return mockEndpoint
	}
	return m.Endpoint
}

var _ LLMClient = (*MockLLMClient)(nil)
