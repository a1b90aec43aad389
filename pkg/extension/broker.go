package extension

import (
	"sync"
)

// EventBroker maintains a list of listeners interested in a specific type
// of event.
type EventBroker[E any, R interface{}] struct {
	sync.RWMutex
	listeners listenerList[func(E) *R]
}

// Emit sends the provided event to each registered listener in order, until
// one returns a non-nil result.  That result will be returned to the caller.
// A listener that panics is treated as having returned nil.
func (eb *EventBroker[E, R]) Emit(event *E) *R {
	eb.RLock()
	defer eb.RUnlock()

	for _, l := range eb.listeners {
		// Events are copied to minimize the risk of mutation.
		if result := eb.call(l, *event); result != nil {
			return result
		}
	}

	return nil
}

func (eb *EventBroker[E, R]) call(l named[func(E) *R], event E) *R {
	defer guard("sync", l.name)
	return l.fn(event)
}

// AddListener registers the named listener, replacing one with a duplicate
// name if present.  Listeners should be added in order of priority, most
// significant first.
func (eb *EventBroker[E, R]) AddListener(name string, listener func(E) *R) {
	eb.Lock()
	defer eb.Unlock()

	eb.listeners = eb.listeners.put(name, listener)
}

// RemoveListener unregisters the named listener.
func (eb *EventBroker[E, R]) RemoveListener(name string) {
	eb.Lock()
	defer eb.Unlock()

	eb.listeners = eb.listeners.remove(name)
}
