package relay

import (
	"encoding/json"
	"time"
)

// Pipeline stages, recorded in quarantine markers and disposition events.
const (
	StageResolve = "resolve"
	StageLoad    = "load"
	StageParse   = "parse"
	StageAccept  = "accept"
	StageForward = "forward"
	StageCleanup = "cleanup"
)

// Envelope is the intake information handed to the Coordinator with each staged message.
type Envelope struct {
	AliasID    string `json:"aliasId"`
	RawAddress string `json:"rawAddress"`
}

// Marker is the content of a quarantine marker: the envelope plus why the message stopped.
type Marker struct {
	Envelope
	Stage  string    `json:"stage"`
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
}

// Encode renders the marker as indented JSON.
func (m *Marker) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// DecodeMarker parses marker content written by Encode.
func DecodeMarker(b []byte) (*Marker, error) {
	m := &Marker{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, err
	}
	return m, nil
}
