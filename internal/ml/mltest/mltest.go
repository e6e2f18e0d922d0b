// Package mltest provides a scripted in-memory ml.Model for tests.
package mltest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/franckalain/healthwise/internal/ml"
)

// ErrNoReply is returned when a call arrives with nothing scripted.
var ErrNoReply = errors.New("mltest: no scripted reply")

// Reply is one scripted model answer.
type Reply struct {
	Text string
	Err  error
	// Delay holds the reply back; a cancelled context wins over it.
	Delay time.Duration
}

// Model replays scripted replies in order and records every request.
type Model struct {
	mu      sync.Mutex
	replies []Reply
	calls   []*ml.Request
	loaded  bool
	closed  bool

	// Respond, when set, answers calls that have no scripted reply.
	Respond func(*ml.Request) (string, error)
}

var _ ml.Model = (*Model)(nil)

// New returns a model that answers with texts in order.
func New(texts ...string) *Model {
	m := &Model{}
	for _, t := range texts {
		m.replies = append(m.replies, Reply{Text: t})
	}
	return m
}

// Push scripts further replies.
func (m *Model) Push(replies ...Reply) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
	return m
}

// Load implements ml.Model.
func (m *Model) Load(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loaded = true
	return nil
}

// Generate implements ml.Model.
func (m *Model) Generate(ctx context.Context, req *ml.Request) (*ml.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	var (
		reply Reply
		ok    bool
	)
	if len(m.replies) > 0 {
		reply, m.replies, ok = m.replies[0], m.replies[1:], true
	}
	respond := m.Respond
	m.mu.Unlock()

	if !ok {
		if respond == nil {
			return nil, ErrNoReply
		}
		text, err := respond(req)
		reply = Reply{Text: text, Err: err}
	}

	if reply.Delay > 0 {
		timer := time.NewTimer(reply.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &ml.Response{Text: reply.Text, FinishReason: "STOP"}, nil
}

// Close implements ml.Model.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns the recorded requests.
func (m *Model) Calls() []*ml.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ml.Request(nil), m.calls...)
}

// CallCount returns how many Generate calls were made.
func (m *Model) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Closed reports whether Close was called.
func (m *Model) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
