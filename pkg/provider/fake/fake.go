// Package fake provides a scripted provider.ChatModel for tests.
package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/rhuss/tabula/pkg/provider"
)

// ErrExhausted is returned once every scripted reply has been consumed.
var ErrExhausted = errors.New("fake: no more scripted replies")

// Model replays scripted replies in order and records every request.
type Model struct {
	mu       sync.Mutex
	replies  []string
	next     int
	requests []*provider.Request

	// Err, when set, is returned by every call.
	Err error

	// Func, when set, computes the reply instead of the script.
	Func func(ctx context.Context, req *provider.Request) (string, error)
}

var _ provider.ChatModel = (*Model)(nil)

// New returns a Model that answers with replies in order.
func New(replies ...string) *Model {
	return &Model{replies: replies}
}

// Name returns "fake".
func (m *Model) Name() string { return "fake" }

// Complete returns the next scripted reply.
func (m *Model) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	cp := *req
	cp.Messages = append([]provider.Message(nil), req.Messages...)
	m.requests = append(m.requests, &cp)
	fn, err := m.Func, m.Err
	var reply string
	if fn == nil && err == nil {
		if m.next >= len(m.replies) {
			err = ErrExhausted
		} else {
			reply = m.replies[m.next]
			m.next++
		}
	}
	m.mu.Unlock()

	if fn != nil {
		reply, err = fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return &provider.Response{Content: reply, Model: "fake", FinishReason: "stop"}, nil
}

// Stream emits the next scripted reply as a single delta.
func (m *Model) Stream(ctx context.Context, req *provider.Request) (<-chan provider.StreamEvent, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan provider.StreamEvent, 2)
	ch <- provider.StreamEvent{Type: provider.StreamEventTextDelta, Delta: resp.Content, Model: resp.Model}
	ch <- provider.StreamEvent{Type: provider.StreamEventDone, FinishReason: resp.FinishReason}
	close(ch)
	return ch, nil
}

// Close is a no-op.
func (m *Model) Close() error { return nil }

// Calls returns the number of requests received.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns copies of the requests received, in order.
func (m *Model) Requests() []*provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*provider.Request(nil), m.requests...)
}

// LastUserMessage returns the content of the final user message of the
// most recent request.
func (m *Model) LastUserMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ""
	}
	msgs := m.requests[len(m.requests)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == provider.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
