// Package transport defines the outbound message contract used to forward relayed mail.
package transport

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned by a Sender given an Outgoing without a To address.
var ErrNoRecipient = errors.New("outgoing message has no recipient")

// Outgoing is a message to be forwarded.  Every field is passed through unmodified from the
// parsed inbound message except To, which is the resolved forward address.
type Outgoing struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers Outgoing messages.
type Sender interface {
	// Send delivers msg, returning the message identifier assigned by the transport.
	Send(ctx context.Context, msg *Outgoing) (id string, err error)
	// Name identifies the transport in logs.
	Name() string
}
