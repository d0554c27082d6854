package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrNoScript is returned by Mock when it runs out of scripted replies.
var ErrNoScript = errors.New("mock: no scripted reply left")

// Call records one Execute invocation seen by Mock.
type Call struct {
	Prompt  string
	Options Options
}

type reply struct {
	text string
	err  error
}

// Mock replays scripted replies in order and records every call. It never
// contacts a provider; Respond, when set, takes over once the script is empty.
type Mock struct {
	Respond func(prompt string, opts Options) (string, error)

	mu     sync.Mutex
	script []reply
	calls  []Call
}

// Push queues a successful completion.
func (m *Mock) Push(texts ...string) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.script = append(m.script, reply{text: t})
	}
	return m
}

// Fail queues a failing completion.
func (m *Mock) Fail(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, reply{err: err})
	return m
}

func (m *Mock) Execute(_ context.Context, prompt string, opts Options) (string, error) {
	m.mu.Lock()
	hist := make([]Message, len(opts.History))
	copy(hist, opts.History)
	opts.History = hist
	m.calls = append(m.calls, Call{Prompt: prompt, Options: opts})
	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		return r.text, r.err
	}
	respond := m.Respond
	m.mu.Unlock()

	if respond != nil {
		return respond(prompt, opts)
	}
	return "", ErrNoScript
}

// Calls returns a copy of the recorded calls.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
