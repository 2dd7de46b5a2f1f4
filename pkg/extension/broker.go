package extension

// EventBroker maintains a list of listeners interested in a specific type of event. Listeners run
// synchronously and may return a result.
type EventBroker[E any, R any] struct {
	listeners listenerList[func(E) *R]
}

// Emit sends the provided event to each registered listener in order, until one returns a non-nil
// result.  That result will be returned to the caller.
func (eb *EventBroker[E, R]) Emit(event *E) *R {
	for _, l := range eb.listeners.snapshot() {
		// Events are copied to minimize the risk of mutation.
		if result := l(*event); result != nil {
			return result
		}
	}
	return nil
}

// AddListener registers the named listener. A listener with a duplicate name is replaced and keeps
// its position. Listeners should be added in order of priority, most significant first.
func (eb *EventBroker[E, R]) AddListener(name string, listener func(E) *R) {
	eb.listeners.add(name, listener)
}

// RemoveListener unregisters the named listener.
func (eb *EventBroker[E, R]) RemoveListener(name string) {
	eb.listeners.remove(name)
}

// Len returns the number of registered listeners.
func (eb *EventBroker[E, R]) Len() int {
	return eb.listeners.len()
}
