package test

import (
	"context"
	"io"
	"sync"

	"github.com/mailmount/mailmount/pkg/dispatch"
)

// TransportStub records submitted messages instead of sending them.
type TransportStub struct {
	Err error

	mu     sync.Mutex
	from   string
	rcpts  []string
	data   []byte
	calls  int
	closed int
}

var _ dispatch.Transport = (*TransportStub)(nil)

// Send records the envelope and message, then returns Err.
func (t *TransportStub) Send(ctx context.Context, from string, rcpts []string, msg io.Reader) error {
	b, err := io.ReadAll(msg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.Err != nil {
		return t.Err
	}
	t.from, t.rcpts, t.data = from, rcpts, b
	return nil
}

// Close counts calls.
func (t *TransportStub) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

// Sent returns the last accepted envelope and message.
func (t *TransportStub) Sent() (from string, rcpts []string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.from, t.rcpts, t.data
}

// Calls returns how many times Send was called.
func (t *TransportStub) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Closed returns how many times Close was called.
func (t *TransportStub) Closed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
