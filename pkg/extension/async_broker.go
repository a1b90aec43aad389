package extension

import (
	"errors"
	"sync"
	"time"
)

// AsyncEventBroker maintains a list of listeners interested in a specific type
// of event.  Events are sent in parallel to all listeners, and no result is
// returned.
type AsyncEventBroker[E any] struct {
	sync.RWMutex
	listeners listenerList[func(E)]
	inflight  sync.WaitGroup
}

// Emit sends the provided event to each registered listener in parallel.
func (eb *AsyncEventBroker[E]) Emit(event *E) {
	eb.RLock()
	defer eb.RUnlock()

	for _, l := range eb.listeners {
		eb.inflight.Add(1)
		// Events are copied to minimize the risk of mutation.
		go func(l named[func(E)], event E) {
			defer eb.inflight.Done()
			defer guard("async", l.name)
			l.fn(event)
		}(l, *event)
	}
}

// Wait blocks until every listener invocation started by Emit has returned.
func (eb *AsyncEventBroker[E]) Wait() {
	eb.inflight.Wait()
}

// AddListener registers the named listener, replacing one with a duplicate
// name if present.
func (eb *AsyncEventBroker[E]) AddListener(name string, listener func(E)) {
	eb.Lock()
	defer eb.Unlock()

	eb.listeners = eb.listeners.put(name, listener)
}

// RemoveListener unregisters the named listener.
func (eb *AsyncEventBroker[E]) RemoveListener(name string) {
	eb.Lock()
	defer eb.Unlock()

	eb.listeners = eb.listeners.remove(name)
}

// AsyncTestListener returns a func that will wait for an event and return it, or timeout
// with an error.
func (eb *AsyncEventBroker[E]) AsyncTestListener(name string, capacity int) func() (*E, error) {
	// Send event down channel.
	events := make(chan E, capacity)
	eb.AddListener(name,
		func(msg E) {
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
