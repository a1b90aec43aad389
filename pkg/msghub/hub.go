// Package msghub keeps a short history of pipeline dispositions and relays new ones to listeners.
package msghub

import (
	"container/ring"
	"context"

	"github.com/inbucket/aliasrelay/pkg/extension"
	"github.com/inbucket/aliasrelay/pkg/extension/event"
)

// Length of msghub operation queue
const opChanLen = 100

// Listener receives the contents of the history buffer, followed by new dispositions
type Listener interface {
	Receive(d event.Disposition) error
}

// Hub relays dispositions on to its listeners
type Hub struct {
	// history buffer, points to the next entry to write.  Proceeding non-nil entry is oldest.
	history   *ring.Ring
	listeners map[Listener]struct{} // listeners interested in new dispositions
	opChan    chan func(h *Hub)     // operations queued for this actor
}

// New constructs a new Hub which will cache historyLen dispositions in memory for playback to
// future listeners.  Nothing is processed until Start is called.
func New(historyLen int, extHost *extension.Host) *Hub {
	hub := &Hub{
		history:   ring.New(historyLen),
		listeners: make(map[Listener]struct{}),
		opChan:    make(chan func(h *Hub), opChanLen),
	}

	extHost.Events.AfterMessageDisposed.AddListener("msghub",
		func(d event.Disposition) {
			hub.Dispatch(d)
		})

	return hub
}

// Start Hub processing loop, runs until ctx is canceled.
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

// Dispatch queues a disposition for broadcast by the hub.  It will be placed into the history
// buffer and then relayed to all registered listeners.
func (hub *Hub) Dispatch(d event.Disposition) {
	hub.opChan <- func(h *Hub) {
		if h.history != nil {
			// Add to history buffer
			h.history.Value = d
			h.history = h.history.Next()

			// Deliver to all listeners, removing listeners if they return an error
			for l := range h.listeners {
				if err := l.Receive(d); err != nil {
					delete(h.listeners, l)
				}
			}
		}
	}
}

// AddListener registers a listener to receive broadcasted dispositions.
func (hub *Hub) AddListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		// Playback log
		h.history.Do(func(v interface{}) {
			if v != nil {
				_ = l.Receive(v.(event.Disposition))
			}
		})

		// Add to listeners
		h.listeners[l] = struct{}{}
	}
}

// RemoveListener deletes a listener registration, it will cease to receive dispositions.
func (hub *Hub) RemoveListener(l Listener) {
	hub.opChan <- func(h *Hub) {
		delete(h.listeners, l)
	}
}

// Recent returns the remembered dispositions, newest first.
func (hub *Hub) Recent() []event.Disposition {
	result := make(chan []event.Disposition, 1)
	hub.opChan <- func(h *Hub) {
		recent := make([]event.Disposition, 0)
		if h.history != nil {
			h.history.Do(func(v interface{}) {
				if v != nil {
					recent = append(recent, v.(event.Disposition))
				}
			})
		}
		// Do walks oldest to newest.
		for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
			recent[i], recent[j] = recent[j], recent[i]
		}
		result <- recent
	}
	return <-result
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
