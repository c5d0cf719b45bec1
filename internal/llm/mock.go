package llm

import (
	"context"
	"sync"
)

// Script decides the mock's answer for one call. Returning an empty
// string with a nil error models a backend that produced no content.
type Script func(call int, prompt string, params Params) (string, error)

// Mock is a scripted Client for tests and dry runs. It counts calls so
// tests can assert exactly how many backend round-trips happened.
type Mock struct {
	mu     sync.Mutex
	calls  int
	script Script
}

// NewMock builds a mock driven by script. A nil script echoes prompts.
func NewMock(script Script) *Mock {
	if script == nil {
		script = func(_ int, prompt string, _ Params) (string, error) { return prompt, nil }
	}
	return &Mock{script: script}
}

func (m *Mock) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.script(call, prompt, params)
}

// Calls returns how many times Generate ran.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
