// Package llmtest provides scripted ChatCompleter fakes for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/hugh/medpocket/internal/llm"
)

// Reply is one scripted response: either Text or Err.
type Reply struct {
	Text string
	Err  error
}

// Scripted returns its replies in order and records every request. Once the
// script runs out it keeps returning the last reply.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	Requests []llm.ChatRequest
}

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(s.replies) == 0 {
		return "", llm.ErrEmptyCompletion
	}

	idx := len(s.Requests) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	r := s.replies[idx]
	return r.Text, r.Err
}

// Calls reports how many requests were made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}

// Func adapts a function to llm.ChatCompleter.
type Func func(ctx context.Context, req llm.ChatRequest) (string, error)

func (f Func) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	return f(ctx, req)
}
