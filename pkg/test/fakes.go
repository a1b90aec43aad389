package test

import (
	"context"
	"sync"

	"github.com/inbucket/aliasrelay/pkg/directory"
	"github.com/inbucket/aliasrelay/pkg/transport"
)

// Resolver is an in-memory directory.  Aliases missing from Aliases resolve as not found, unless
// Err is set, in which case every lookup fails with it.
type Resolver struct {
	sync.Mutex
	Aliases map[string]string
	Err     error
	Calls   []string
}

// Resolve looks up aliasID in r.Aliases.
func (r *Resolver) Resolve(_ context.Context, aliasID string) (*directory.Destination, error) {
	r.Lock()
	defer r.Unlock()
	r.Calls = append(r.Calls, aliasID)
	if r.Err != nil {
		return nil, &directory.ResolutionError{AliasID: aliasID, Err: r.Err}
	}
	addr, ok := r.Aliases[aliasID]
	if !ok {
		return nil, &directory.ResolutionError{
			AliasID:  aliasID,
			NotFound: true,
			Err:      directory.ErrAliasNotFound,
		}
	}
	return &directory.Destination{ForwardAddress: addr}, nil
}

// CallCount returns the number of Resolve calls.
func (r *Resolver) CallCount() int {
	r.Lock()
	defer r.Unlock()
	return len(r.Calls)
}

// Sender records outgoing messages, failing with Err when set.
type Sender struct {
	sync.Mutex
	Err  error
	ID   string
	Sent []transport.Outgoing
}

var _ transport.Sender = &Sender{}

// Send records msg.
func (s *Sender) Send(_ context.Context, msg *transport.Outgoing) (string, error) {
	s.Lock()
	defer s.Unlock()
	s.Sent = append(s.Sent, *msg)
	if s.Err != nil {
		return "", s.Err
	}
	if s.ID == "" {
		return "<test-id@relay.test>", nil
	}
	return s.ID, nil
}

// Name returns "test".
func (s *Sender) Name() string {
	return "test"
}

// Messages returns a copy of the recorded messages.
func (s *Sender) Messages() []transport.Outgoing {
	s.Lock()
	defer s.Unlock()
	return append([]transport.Outgoing(nil), s.Sent...)
}

// Acceptor records the HTML bodies it is asked to accept.
type Acceptor struct {
	sync.Mutex
	URL    string
	Err    error
	Bodies []string
}

// Accept records htmlBody.
func (a *Acceptor) Accept(_ context.Context, htmlBody string) (string, error) {
	a.Lock()
	defer a.Unlock()
	a.Bodies = append(a.Bodies, htmlBody)
	if a.Err != nil {
		return "", a.Err
	}
	return a.URL, nil
}

// CallCount returns the number of Accept calls.
func (a *Acceptor) CallCount() int {
	a.Lock()
	defer a.Unlock()
	return len(a.Bodies)
}
