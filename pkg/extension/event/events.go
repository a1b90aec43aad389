package event

import (
	"time"
)

// OutboundMessage contains the fields of a message about to be forwarded.
type OutboundMessage struct {
	To      string
	From    string
	Subject string
	Text    string
	HTML    string
}

// Disposition describes how a staged message left the pipeline.
type Disposition struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	AliasID        string    `json:"aliasId"`
	Outcome        string    `json:"outcome"`
	Stage          string    `json:"stage,omitempty"`
	From           string    `json:"from,omitempty"`
	Subject        string    `json:"subject,omitempty"`
	ForwardAddress string    `json:"forwardAddress,omitempty"`
	MessageID      string    `json:"messageId,omitempty"`
	ConfirmURL     string    `json:"confirmUrl,omitempty"`
	Error          string    `json:"error,omitempty"`
	Date           time.Time `json:"date"`
}
