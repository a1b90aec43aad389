// Package model holds the JSON documents served by the status API.
package model

import "time"

// JSONStatusV1 is the relay status document: the last backlog scan plus recent dispositions.
type JSONStatusV1 struct {
	Backlog JSONBacklogV1       `json:"backlog"`
	Recent  []JSONDispositionV1 `json:"recent"`
}

// JSONBacklogV1 counts the staging store contents as of the last scan.
type JSONBacklogV1 struct {
	Staged      int       `json:"staged"`
	Quarantined int       `json:"quarantined"`
	Orphaned    int       `json:"orphaned"`
	Completed   time.Time `json:"completed"`
}

// JSONDispositionV1 describes how the pipeline finished with a single message.
type JSONDispositionV1 struct {
	ID             string    `json:"id"`
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

// JSONEntryV1 is a staged message still present in the staging store.
type JSONEntryV1 struct {
	ID          string        `json:"id"`
	Size        int64         `json:"size"`
	Staged      time.Time     `json:"staged"`
	Quarantined bool          `json:"quarantined"`
	Marker      *JSONMarkerV1 `json:"marker,omitempty"`
}

// JSONMarkerV1 is the decoded quarantine marker of a staged message.
type JSONMarkerV1 struct {
	AliasID    string    `json:"aliasId"`
	RawAddress string    `json:"rawAddress"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
	Time       time.Time `json:"time"`
}
