package relay

import (
	"strings"

	"github.com/inbucket/aliasrelay/pkg/message"
)

// Kind is the disposition chosen for a parsed message.
type Kind int

// Disposition kinds.
const (
	KindInvalid Kind = iota
	KindForward
	KindAutoAccept
)

func (k Kind) String() string {
	switch k {
	case KindForward:
		return "forward"
	case KindAutoAccept:
		return "auto-accept"
	default:
		return "invalid"
	}
}

// Classifier picks the disposition of a parsed message by looking for the registration
// confirmation phrase in its subject.  The phrase belongs to a third party's email template, so a
// change in their wording silently turns confirmations into forwards.
type Classifier struct {
	phrase string
}

// NewClassifier creates a Classifier matching phrase case-insensitively.
func NewClassifier(phrase string) *Classifier {
	return &Classifier{phrase: strings.ToLower(phrase)}
}

// Classify returns the Kind for p.  Incomplete messages are always KindInvalid.
func (c *Classifier) Classify(p *message.Parsed) Kind {
	if p == nil || len(p.Missing()) > 0 {
		return KindInvalid
	}
	if c.phrase != "" && strings.Contains(strings.ToLower(p.Subject), c.phrase) {
		return KindAutoAccept
	}
	return KindForward
}
