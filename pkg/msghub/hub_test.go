package msghub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/extension/event"
)

// testListener implements the Listener interface, mock for unit tests
type testListener struct {
	mu         sync.Mutex
	messages   []event.MessageMetadata
	wantEvents int // how many events this listener wants to receive
	errorAfter int // when != 0, event count until Receive() begins returning error

	done     chan struct{} // closed once we have received wantEvents
	overflow chan struct{} // closed if we receive wantEvents+1
}

func newTestListener(want int) *testListener {
	l := &testListener{
		wantEvents: want,
		done:       make(chan struct{}),
		overflow:   make(chan struct{}),
	}
	if want == 0 {
		close(l.done)
	}
	return l
}

func (l *testListener) Receive(msg event.MessageMetadata) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
	n := len(l.messages)
	if n == l.wantEvents {
		close(l.done)
	}
	if n == l.wantEvents+1 {
		close(l.overflow)
	}
	if l.errorAfter > 0 && n > l.errorAfter {
		return errors.New("too many messages")
	}
	return nil
}

func (l *testListener) subjects() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := make([]string, len(l.messages))
	for i, m := range l.messages {
		s[i] = m.Subject
	}
	return s
}

func (l *testListener) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fmt.Sprintf("got %v messages, wanted %v", len(l.messages), l.wantEvents)
}

func (l *testListener) wait(t *testing.T) {
	t.Helper()
	select {
	case <-l.done:
	case <-time.After(time.Second):
		t.Fatal("Timeout:", l)
	}
}

func (l *testListener) assertNoOverflow(t *testing.T) {
	t.Helper()
	select {
	case <-l.overflow:
		t.Error(l)
	case <-time.After(50 * time.Millisecond):
	}
}

func startHub(t *testing.T, historyLen int, host *extension.Host) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := New(historyLen, host)
	go hub.Start(ctx)
	return hub
}

func stored(account, id, subject string) event.MessageMetadata {
	return event.MessageMetadata{AccountID: account, ID: id, Subject: subject}
}

func TestHubZeroLen(t *testing.T) {
	hub := startHub(t, 0, nil)
	l := newTestListener(0)
	hub.AddListener(l)
	for i := 0; i < 100; i++ {
		hub.Dispatch(event.MessageMetadata{})
	}
	hub.Sync()
	assert.Empty(t, l.subjects())
}

func TestHubZeroListeners(t *testing.T) {
	hub := startHub(t, 5, nil)
	for i := 0; i < 100; i++ {
		hub.Dispatch(stored("a", strconv.Itoa(i), "s"))
	}
	hub.Sync()
}

func TestHubOneListener(t *testing.T) {
	hub := startHub(t, 5, nil)
	l := newTestListener(1)
	hub.AddListener(l)
	hub.Dispatch(stored("a", "1", "hello"))
	l.wait(t)
	assert.Equal(t, []string{"hello"}, l.subjects())
}

func TestHubRemoveListener(t *testing.T) {
	hub := startHub(t, 5, nil)
	l := newTestListener(1)
	hub.AddListener(l)
	hub.Dispatch(stored("a", "1", "s"))
	hub.RemoveListener(l)
	hub.Dispatch(stored("a", "2", "s"))
	hub.Sync()
	l.assertNoOverflow(t)
}

func TestHubRemoveListenerOnError(t *testing.T) {
	hub := startHub(t, 5, nil)

	// error after 1 means listener should receive 2 messages before being removed
	l := newTestListener(2)
	l.errorAfter = 1
	hub.AddListener(l)
	for i := 0; i < 4; i++ {
		hub.Dispatch(stored("a", strconv.Itoa(i), "s"))
	}
	hub.Sync()
	l.assertNoOverflow(t)
}

func TestHubHistoryReplay(t *testing.T) {
	hub := startHub(t, 100, nil)
	l1 := newTestListener(3)
	hub.AddListener(l1)
	for i := 0; i < 3; i++ {
		hub.Dispatch(stored("a", strconv.Itoa(i), fmt.Sprintf("subj %v", i)))
	}
	l1.wait(t)

	l2 := newTestListener(3)
	hub.AddListener(l2)
	l2.wait(t)
	assert.Equal(t, []string{"subj 0", "subj 1", "subj 2"}, l2.subjects())
}

func TestHubHistoryReplayWrap(t *testing.T) {
	hub := startHub(t, 5, nil)
	for i := 0; i < 20; i++ {
		hub.Dispatch(stored("a", strconv.Itoa(i), fmt.Sprintf("subj %v", i)))
	}

	l := newTestListener(5)
	hub.AddListener(l)
	l.wait(t)
	assert.Equal(t, []string{"subj 15", "subj 16", "subj 17", "subj 18", "subj 19"}, l.subjects())
}

func TestHubRestoredMessageMovesToHead(t *testing.T) {
	hub := startHub(t, 5, nil)
	hub.Dispatch(stored("a", "1", "first"))
	hub.Dispatch(stored("a", "2", "second"))
	hub.Dispatch(stored("b", "1", "other account"))
	hub.Dispatch(stored("a", "1", "first again"))

	l := newTestListener(3)
	hub.AddListener(l)
	l.wait(t)
	assert.Equal(t, []string{"second", "other account", "first again"}, l.subjects())
	l.assertNoOverflow(t)
	require.Equal(t, 5, hub.history.Len(), "buffer must keep its configured size")
}

func TestHubSubscribesToExtensionHost(t *testing.T) {
	host := extension.NewHost()
	hub := startHub(t, 5, host)
	l := newTestListener(1)
	hub.AddListener(l)

	host.Events.AfterMessageStored.Emit(&event.MessageMetadata{AccountID: "a", ID: "1", Subject: "via host"})
	l.wait(t)
	assert.Equal(t, []string{"via host"}, l.subjects())
}

func TestHubContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := New(5, nil)
	go hub.Start(ctx)
	l := newTestListener(1)

	hub.AddListener(l)
	hub.Dispatch(stored("a", "1", "s"))
	hub.Sync()
	cancel()
	l.assertNoOverflow(t)
}
