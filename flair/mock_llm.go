package flair

import (
	"context"
	"errors"
	"sync"
)

// MockLLM returns scripted replies in order without calling a model.
type MockLLM struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	Prompts []Prompt
}

func (m *MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) == 0 {
		return "", errors.New("mock llm: no reply scripted")
	}
	reply := m.Replies[0]
	m.Replies = m.Replies[1:]
	return reply, nil
}
