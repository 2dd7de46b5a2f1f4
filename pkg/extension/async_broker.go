package extension

import (
	"errors"
	"time"
)

// AsyncEventBroker maintains a list of listeners interested in a specific type of event.  Events
// are sent in parallel to all listeners, and no result is returned.
type AsyncEventBroker[E any] struct {
	listeners listenerList[func(E)]
}

// Emit sends the provided event to each registered listener in its own goroutine.
func (eb *AsyncEventBroker[E]) Emit(event *E) {
	for _, l := range eb.listeners.snapshot() {
		// Events are copied to minimize the risk of mutation.
		go l(*event)
	}
}

// AddListener registers the named listener, replacing one with a duplicate name if present.
func (eb *AsyncEventBroker[E]) AddListener(name string, listener func(E)) {
	eb.listeners.add(name, listener)
}

// RemoveListener unregisters the named listener.
func (eb *AsyncEventBroker[E]) RemoveListener(name string) {
	eb.listeners.remove(name)
}

// Len returns the number of registered listeners.
func (eb *AsyncEventBroker[E]) Len() int {
	return eb.listeners.len()
}

// AsyncTestListener returns a func that will wait for an event and return it, or timeout with an
// error.  The listener removes itself after capacity events.
func (eb *AsyncEventBroker[E]) AsyncTestListener(name string, capacity int) func() (*E, error) {
	events := make(chan E, capacity)
	eb.AddListener(name, func(msg E) {
		events <- msg
	})

	count := 0
	return func() (*E, error) {
		count++
		defer func() {
			if count >= capacity {
				eb.RemoveListener(name)
			}
		}()

		select {
		case event := <-events:
			return &event, nil
		case <-time.After(time.Second * 2):
			return nil, errors.New("timeout waiting for event")
		}
	}
}
