// Package msghub relays newly stored messages to live monitor listeners.
package msghub

import (
	"container/ring"
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/extension/event"
)

// Length of msghub operation queue
const opChanLen = 100

// Listener receives the contents of the history buffer, followed by new messages
type Listener interface {
	Receive(msg event.MessageMetadata) error
}

// Hub relays messages on to its listeners
type Hub struct {
	// history buffer, points next Message to write.  Proceeding non-nil entry is oldest Message
	history   *ring.Ring
	listeners map[Listener]struct{} // listeners interested in new messages
	opChan    chan func(h *Hub)     // operations queued for this actor
}

// New constructs a new Hub which will cache historyLen messages in memory for playback to future
// listeners.  The hub subscribes to the AfterMessageStored event of extHost when it is not nil.
// Start must be called to process messages.
func New(historyLen int, extHost *extension.Host) *Hub {
	hub := &Hub{
		history:   ring.New(historyLen),
		listeners: make(map[Listener]struct{}),
		opChan:    make(chan func(h *Hub), opChanLen),
	}
	if extHost != nil {
		extHost.Events.AfterMessageStored.AddListener("msghub", hub.Dispatch)
	}
	return hub
}

// Start Hub processing loop; it runs until ctx is cancelled.
func (hub *Hub) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-hub.opChan:
			op(hub)
		}
	}
}

// Dispatch queues a message for broadcast by the hub.  The message will be placed into the
// history buffer and then relayed to all registered listeners.  A message already in the buffer,
// stored again by a later sync, is moved to the head rather than duplicated.
func (hub *Hub) Dispatch(msg event.MessageMetadata) {
	hub.opChan <- func(h *Hub) {
		if h.history == nil {
			return
		}
		h.forget(msg.AccountID, msg.ID)
		h.history.Value = msg
		h.history = h.history.Next()

		// Deliver message to all listeners, removing listeners if they return an error
		for l := range h.listeners {
			if err := l.Receive(msg); err != nil {
				log.Debug().Str("module", "msghub").Err(err).Msg("Dropping listener")
				delete(h.listeners, l)
			}
		}
	}
}

// forget blanks any history entry for the given message.
func (hub *Hub) forget(accountID, id string) {
	n := hub.history.Len()
	for i, r := 0, hub.history; i < n; i, r = i+1, r.Next() {
		if m, ok := r.Value.(event.MessageMetadata); ok && m.AccountID == accountID && m.ID == id {
			r.Value = nil
		}
	}
}

// AddListener registers a listener to receive broadcasted messages.
func (hub *Hub) AddListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		// Playback log
		if h.history != nil {
			h.history.Do(func(v any) {
				if v != nil {
					_ = l.Receive(v.(event.MessageMetadata))
				}
			})
		}
		h.listeners[l] = struct{}{}
	}
}

// RemoveListener deletes a listener registration, it will cease to receive messages.
func (hub *Hub) RemoveListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		delete(h.listeners, l)
	}
}

// Sync blocks until the msghub has processed its queue up to this point, useful
// for unit tests.
func (hub *Hub) Sync() {
	done := make(chan struct{})
	hub.opChan <- func(h *Hub) {
		close(done)
	}
	<-done
}
