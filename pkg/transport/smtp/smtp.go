// Package smtp forwards messages through an upstream SMTP relay.
package smtp

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/transport"
	"github.com/jhillyerd/enmime/v2"
	"github.com/rs/zerolog/log"
)

// Sender submits messages to a single upstream relay.
type Sender struct {
	addr         string
	helo         string
	envelopeFrom string
	timeout      time.Duration
	auth         sasl.Client
	now          func() time.Time
}

var _ transport.Sender = &Sender{}

// New creates a Sender from the transport config.  helo is the name announced to the relay.
func New(cfg config.Transport, helo string) (*Sender, error) {
	if cfg.SMTPAddr == "" {
		return nil, fmt.Errorf("smtp transport requires a relay address")
	}
	if _, err := mail.ParseAddress(cfg.EnvelopeFrom); err != nil {
		return nil, fmt.Errorf("smtp transport envelope from %q: %w", cfg.EnvelopeFrom, err)
	}

	s := &Sender{
		addr:         cfg.SMTPAddr,
		helo:         helo,
		envelopeFrom: cfg.EnvelopeFrom,
		timeout:      cfg.Timeout,
		now:          time.Now,
	}
	if cfg.SMTPUsername != "" {
		s.auth = sasl.NewPlainClient("", cfg.SMTPUsername, cfg.SMTPPassword)
	}

	return s, nil
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return config.TransportSMTP
}

// Send builds a MIME message from msg and submits it to the relay, returning its Message-ID.
func (s *Sender) Send(ctx context.Context, msg *transport.Outgoing) (string, error) {
	if msg.To == "" {
		return "", transport.ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := s.messageID()
	raw, err := s.build(msg, id)
	if err != nil {
		return "", err
	}

	c, err := gosmtp.Dial(s.addr)
	if err != nil {
		return "", fmt.Errorf("dialing relay %s: %w", s.addr, err)
	}
	defer func() {
		_ = c.Close()
	}()
	if s.timeout > 0 {
		c.CommandTimeout = s.timeout
		c.SubmissionTimeout = s.timeout
	}

	// Abandon the session if the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()

	if err := s.submit(c, msg.To, raw); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}

	log.Debug().Str("module", "transport").Str("relay", s.addr).Str("to", msg.To).
		Str("messageid", id).Msg("Submitted to relay")
	return id, nil
}

func (s *Sender) submit(c *gosmtp.Client, to string, raw []byte) error {
	if err := c.Hello(s.helo); err != nil {
		return fmt.Errorf("HELO: %w", err)
	}
	if s.auth != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return fmt.Errorf("relay %s does not support AUTH", s.addr)
		}
		if err := c.Auth(s.auth); err != nil {
			return fmt.Errorf("AUTH: %w", err)
		}
	}
	if err := c.Mail(s.envelopeFrom, nil); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("DATA: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("DATA: %w", err)
	}

	return c.Quit()
}

// build renders msg as multipart/alternative.  The From header carries the inbound address and
// display name, while the envelope sender is always the configured relay address.
func (s *Sender) build(msg *transport.Outgoing, id string) ([]byte, error) {
	fromName, fromAddr := "", s.envelopeFrom
	from, fromErr := mail.ParseAddress(msg.From)
	if fromErr == nil {
		fromName, fromAddr = from.Name, from.Address
	}

	root, err := enmime.Builder().
		From(fromName, fromAddr).
		To("", msg.To).
		Subject(msg.Subject).
		Date(s.now()).
		Text([]byte(msg.Text)).
		HTML([]byte(msg.HTML)).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building outgoing message: %w", err)
	}
	if fromErr == nil {
		// Display names are RFC 2047 encoded word by word, leaving the addr-spec readable.
		root.Header.Set("From", (&mail.Address{Name: from.Name, Address: from.Address}).String())
	} else {
		root.Header.Set("From", msg.From)
	}
	root.Header.Set("Message-ID", id)

	buf := &bytes.Buffer{}
	if err := root.Encode(buf); err != nil {
		return nil, fmt.Errorf("encoding outgoing message: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Sender) messageID() string {
	domain := "aliasrelay"
	if at := strings.LastIndexByte(s.envelopeFrom, '@'); at >= 0 {
		domain = strings.Trim(s.envelopeFrom[at+1:], "> ")
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}
