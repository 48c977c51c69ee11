package llm

import (
	"context"
	"sync"
)

// MockClient is a scripted Client for tests. Responses are returned in
// order; the last entry repeats once the script runs out.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	calls     []MockCall
	model     string
}

// MockResponse is one scripted turn.
type MockResponse struct {
	Content string
	Tokens  int
	Err     error
}

// MockCall records the arguments of one Generate invocation.
type MockCall struct {
	Prompt string
	System string
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a mock returning the given responses in order.
func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses, model: "mock-model"}
}

// Model returns the mock model name.
func (m *MockClient) Model() string { return m.model }

// Generate returns the next scripted response.
func (m *MockClient) Generate(ctx context.Context, prompt, system string) (*GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Prompt: prompt, System: system})

	if len(m.responses) == 0 {
		return &GenerateResult{Content: "{}"}, nil
	}
	idx := len(m.calls) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	r := m.responses[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	tokens := r.Tokens
	if tokens == 0 {
		tokens = len(r.Content) / 4
	}
	return &GenerateResult{
		Content:          r.Content,
		PromptTokens:     tokens / 2,
		CompletionTokens: tokens - tokens/2,
		TotalTokens:      tokens,
	}, nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times Generate was invoked.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
