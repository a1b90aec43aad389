// Package logsink is a development transport that writes forwarded messages to the log instead of
// delivering them.
package logsink

import (
	"context"

	"github.com/google/uuid"
	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sender logs each message and reports success.
type Sender struct {
	logger zerolog.Logger
}

var _ transport.Sender = &Sender{}

// New creates a Sender writing to the global logger.
func New() *Sender {
	return NewWithLogger(log.Logger)
}

// NewWithLogger creates a Sender writing to logger, useful for testing.
func NewWithLogger(logger zerolog.Logger) *Sender {
	return &Sender{logger: logger.With().Str("module", "transport").Logger()}
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return config.TransportLog
}

// Send logs msg and returns a generated ID.
func (s *Sender) Send(_ context.Context, msg *transport.Outgoing) (string, error) {
	if msg.To == "" {
		return "", transport.ErrNoRecipient
	}

	id := uuid.NewString()
	s.logger.Info().Str("messageid", id).Str("to", msg.To).Str("from", msg.From).
		Str("subject", msg.Subject).Int("textbytes", len(msg.Text)).Int("htmlbytes", len(msg.HTML)).
		Msg("Forwarded message to log sink")
	return id, nil
}
