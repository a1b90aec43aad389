package relay

import (
	"testing"

	"github.com/inbucket/aliasrelay/pkg/message"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewClassifier("confirm your email address")
	complete := func(subject string) *message.Parsed {
		return &message.Parsed{From: "a@example.com", Subject: subject, Text: "t", HTML: "<p>h</p>"}
	}

	tests := []struct {
		name   string
		parsed *message.Parsed
		want   Kind
	}{
		{"phrase", complete("Please confirm your email address"), KindAutoAccept},
		{"upper case", complete("PLEASE CONFIRM YOUR EMAIL ADDRESS NOW"), KindAutoAccept},
		{"exact", complete("confirm your email address"), KindAutoAccept},
		{"receipt", complete("Your receipt"), KindForward},
		{"partial phrase", complete("Confirm your email"), KindForward},
		{"missing text", &message.Parsed{From: "a", Subject: "confirm your email address", HTML: "h"}, KindInvalid},
		{"nil", nil, KindInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.parsed))
		})
	}
}

func TestClassifyEmptyPhraseNeverAccepts(t *testing.T) {
	c := NewClassifier("")
	p := &message.Parsed{From: "a", Subject: "confirm your email address", Text: "t", HTML: "h"}
	assert.Equal(t, KindForward, c.Classify(p))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "forward", KindForward.String())
	assert.Equal(t, "auto-accept", KindAutoAccept.String())
	assert.Equal(t, "invalid", KindInvalid.String())
}
