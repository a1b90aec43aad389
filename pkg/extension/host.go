package extension

import (
	"github.com/inbucket/aliasrelay/pkg/extension/event"
)

// Host defines extension points for the relay pipeline.
type Host struct {
	Events *Events
}

// Events defines all the event types supported by the extension host.
//
// Before-events are processed synchronously inside the message pipeline.  The first listener to
// respond with a non-nil value determines the result, and the remaining listeners are skipped.
//
// After-events are processed asynchronously with respect to the pipeline that emitted them.
type Events struct {
	AfterMessageDisposed   AsyncEventBroker[event.Disposition]
	BeforeMessageForwarded EventBroker[event.OutboundMessage, event.OutboundMessage]
}

// NewHost creates a new extension host.
func NewHost() *Host {
	return &Host{Events: &Events{}}
}
