// Package message turns a staged message body into the fields the relay pipeline acts on.
package message

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jhillyerd/enmime/v2"
)

var (
	// ErrInvalid is matched by every parse failure that should quarantine the message.
	ErrInvalid = errors.New("invalid message")

	// ErrMalformed indicates the MIME structure could not be parsed at all.
	ErrMalformed = fmt.Errorf("%w: malformed MIME", ErrInvalid)

	// ErrIncomplete indicates one or more of the required fields is missing.
	ErrIncomplete = fmt.Errorf("%w: missing required fields", ErrInvalid)
)

// Parsed holds the fields extracted from a staged message.  A Parsed value returned without error
// always has all four fields populated.
type Parsed struct {
	From    string
	Subject string
	Text    string
	HTML    string
}

// Missing returns the names of the required fields that are empty.
func (p *Parsed) Missing() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"from", p.From},
		{"subject", p.Subject},
		{"text", p.Text},
		{"html", p.HTML},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Parse reads the entire message from r and extracts its sender, subject, text and HTML bodies.
// Read failures are returned as is; anything wrong with the message itself is reported as an
// error matching ErrInvalid.
func Parse(r io.Reader) (*Parsed, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}

	env, err := readEnvelope(raw)
	if err != nil {
		return nil, err
	}

	p := &Parsed{
		From:    env.GetHeader("From"),
		Subject: env.GetHeader("Subject"),
		HTML:    env.HTML,
	}
	if hasTextPart(env) {
		p.Text = env.Text
	}

	if missing := p.Missing(); len(missing) > 0 {
		return p, fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	return p, nil
}

// readEnvelope runs the MIME parser, converting both its errors and its panics into ErrMalformed.
func readEnvelope(raw []byte) (env *enmime.Envelope, err error) {
	defer func() {
		if r := recover(); r != nil {
			env = nil
			err = fmt.Errorf("%w: parser panic: %v", ErrMalformed, r)
		}
	}()

	env, err = enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env == nil {
		return nil, ErrMalformed
	}

	return env, nil
}

// hasTextPart reports whether env.Text came from a real text/plain part.  enmime fills Text from
// the HTML body when no plain part exists, and flags that with a warning.
func hasTextPart(env *enmime.Envelope) bool {
	if env.Text == "" {
		return false
	}
	for _, e := range env.Errors {
		if e != nil && e.Name == enmime.ErrorPlainTextFromHTML {
			return false
		}
	}
	return true
}
