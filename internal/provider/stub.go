package provider

import (
	"context"
	"sync"
)

// StubCall records a single Chat invocation.
type StubCall struct {
	Prompt string
	System string
	Params map[string]any
}

// Stub is a canned provider for tests and dry runs. It replays queued
// responses in order and falls back to Reply once the queue drains.
type Stub struct {
	mu     sync.Mutex
	Reply  string
	Err    error
	queue  []string
	calls  []StubCall
}

func NewStub() *Stub {
	return &Stub{Reply: "stub summary"}
}

// Enqueue adds responses returned before the default Reply.
func (s *Stub) Enqueue(replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, replies...)
}

func (s *Stub) Name() string {
	return "stub"
}

func (s *Stub) Chat(ctx context.Context, prompt, system string, params map[string]any) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, StubCall{Prompt: prompt, System: system, Params: params})

	if s.Err != nil {
		return nil, s.Err
	}

	reply := s.Reply
	if len(s.queue) > 0 {
		reply = s.queue[0]
		s.queue = s.queue[1:]
	}
	return &Response{Content: reply, Role: "assistant"}, nil
}

// Calls returns a copy of the recorded invocations.
func (s *Stub) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubCall, len(s.calls))
	copy(out, s.calls)
	return out
}
