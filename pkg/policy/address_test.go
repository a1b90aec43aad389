package policy_test

import (
	"strings"
	"testing"

	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/inbucket/aliasrelay/pkg/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldAcceptDomain(t *testing.T) {
	// No configured domains accepts everything.
	ap := &policy.Addressing{Config: &config.SMTP{}}
	assert.True(t, ap.ShouldAcceptDomain("anything.example"))

	ap = &policy.Addressing{
		Config: &config.SMTP{AcceptDomains: []string{"relay.example", "Alt.Example."}},
	}
	testCases := []struct {
		domain string
		want   bool
	}{
		{domain: "relay.example", want: true},
		{domain: "RELAY.example", want: true},
		{domain: "relay.example.", want: true},
		{domain: "alt.example", want: true},
		{domain: "sub.relay.example", want: false},
		{domain: "other.example", want: false},
	}
	for _, tc := range testCases {
		t.Run(tc.domain, func(t *testing.T) {
			got := ap.ShouldAcceptDomain(tc.domain)
			if got != tc.want {
				t.Errorf("Got %v for %q, want: %v", got, tc.domain, tc.want)
			}
		})
	}
}

func TestNewRecipientValid(t *testing.T) {
	ap := &policy.Addressing{Config: &config.SMTP{AcceptDomains: []string{"relay.example"}}}

	testTable := []struct {
		input  string
		alias  string
		domain string
		accept bool
	}{
		{"a1b2c3@relay.example", "a1b2c3", "relay.example", true},
		{"A1B2C3@Relay.Example", "A1B2C3", "relay.example", true},
		{"AbC-9+Tag@relay.example", "AbC-9", "relay.example", true},
		{"a1b2c3+newsletter@relay.example", "a1b2c3", "relay.example", true},
		{"0f8fad5b-d9cb-469f-a165-70867728950e@relay.example",
			"0f8fad5b-d9cb-469f-a165-70867728950e", "relay.example", true},
		{"first.last_1@elsewhere.example", "first.last_1", "elsewhere.example", false},
	}
	for _, tt := range testTable {
		t.Run(tt.input, func(t *testing.T) {
			r, err := ap.NewRecipient(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.input, r.Address)
			assert.Equal(t, tt.alias, r.Alias)
			assert.Equal(t, tt.domain, r.Domain)
			assert.Equal(t, tt.accept, r.ShouldAccept())
		})
	}
}

func TestNewRecipientInvalid(t *testing.T) {
	ap := &policy.Addressing{Config: &config.SMTP{}}

	testTable := []struct {
		input string
		msg   string
	}{
		{"", "Empty address not permitted"},
		{"a1b2c3", "Missing domain not permitted"},
		{"a1b2c3@", "Empty domain not permitted"},
		{"+tag@relay.example", "Alias cannot be only a tag"},
		{"a/b@relay.example", "Path separators are not alias characters"},
		{"a$b@relay.example", "Specials are not alias characters"},
		{"\"quoted space\"@relay.example", "Quoted local parts are not aliases"},
		{"first..last@relay.example", "Sequence of periods not permitted"},
		{"a1b2c3@relay..example", "Invalid domain"},
	}
	for _, tt := range testTable {
		if _, err := ap.NewRecipient(tt.input); err == nil {
			t.Errorf("Didn't get an error while parsing %q: %v", tt.input, tt.msg)
		}
	}
}

func TestValidateDomain(t *testing.T) {
	testTable := []struct {
		input  string
		expect bool
		msg    string
	}{
		{"", false, "Empty domain is not valid"},
		{"hostname", true, "Just a hostname is valid"},
		{"github.com", true, "Two labels should be just fine"},
		{"my-domain.com", true, "Hyphen is allowed mid-label"},
		{"_domainkey.foo.com", true, "Underscores are allowed"},
		{"bar.com.", true, "Must be able to end with a dot"},
		{"ABC.6DBS.com", true, "Mixed case is OK"},
		{"mail.123.com", true, "Number only label valid"},
		{"123.com", true, "Number only label valid"},
		{"google..com", false, "Double dot not valid"},
		{".foo.com", false, "Cannot start with a dot"},
		{"google\r.com", false, "Special chars not allowed"},
		{"foo.-bar.com", false, "Label cannot start with hyphen"},
		{"foo-.bar.com", false, "Label cannot end with hyphen"},
		{strings.Repeat("a", 256), false, "Max domain length is 255"},
		{strings.Repeat("a", 63) + ".com", true, "Should allow 63 char domain label"},
		{strings.Repeat("a", 64) + ".com", false, "Max domain label length is 63"},
	}
	for _, tt := range testTable {
		if policy.ValidateDomainPart(tt.input) != tt.expect {
			t.Errorf("Expected %v for %q: %s", tt.expect, tt.input, tt.msg)
		}
	}
}

func TestValidateLocal(t *testing.T) {
	testTable := []struct {
		input  string
		expect bool
		msg    string
	}{
		{"", false, "Empty local is not valid"},
		{"a", true, "Single letter should be fine"},
		{strings.Repeat("a", 128), true, "Valid up to 128 characters"},
		{strings.Repeat("a", 129), false, "Only valid up to 128 characters"},
		{"FirstLast", true, "Mixed case permitted"},
		{"user123", true, "Numbers permitted"},
		{"a!#$%&'*+-/=?^_`{|}~", true, "Any of !#$%&'*+-/=?^_`{|}~ are permitted"},
		{"first.last", true, "Embedded period is permitted"},
		{"first..last", false, "Sequence of periods is not allowed"},
		{".user", false, "Cannot lead with a period"},
		{"user.", false, "Cannot end with a period"},
		// {"james@mail", false, "Unquoted @ not permitted"},
		{"first last", false, "Unquoted space not permitted"},
		{"tricky\\. ", false, "Unquoted space not permitted"},
		{"no,commas", false, "Unquoted comma not allowed"},
		{"t[es]t", false, "Unquoted square brackets not allowed"},
		// {"james\\", false, "Cannot end with backslash quote"},
		{"james\\@mail", true, "Quoted @ permitted"},
		{"quoted\\ space", true, "Quoted space permitted"},
		{"no\\,commas", true, "Quoted comma is OK"},
		{"t\\[es\\]t", true, "Quoted brackets are OK"},
		{"user\\name", true, "Should be able to quote a-z"},
		{"USER\\NAME", true, "Should be able to quote A-Z"},
		{"user\\1", true, "Should be able to quote a digit"},
		{"one\\$\\|", true, "Should be able to quote plain specials"},
		{"return\\\r", true, "Should be able to quote ASCII control chars"},
		{"high\\\x80", false, "Should not accept > 7-bit quoted chars"},
		{"quote\\\"", true, "Quoted double quote is permitted"},
		{"\"james\"", true, "Quoted a-z is permitted"},
		{"\"first last\"", true, "Quoted space is permitted"},
		{"\"quoted@sign\"", true, "Quoted @ is allowed"},
		{"\"qp\\\"quote\"", true, "Quoted quote within quoted string is OK"},
		{"\"unterminated", false, "Quoted string must be terminated"},
		{"\"unterminated\\\"", false, "Quoted string must be terminated"},
		{"embed\"quote\"string", false, "Embedded quoted string is illegal"},
		{"user+mailbox", true, "RFC3696 test case should be valid"},
		{"customer/department=shipping", true, "RFC3696 test case should be valid"},
		{"$A12345", true, "RFC3696 test case should be valid"},
		{"!def!xyz%abc", true, "RFC3696 test case should be valid"},
		{"_somename", true, "RFC3696 test case should be valid"},
	}
	for _, tt := range testTable {
		_, _, err := policy.ParseEmailAddress(tt.input + "@domain.com")
		if (err != nil) == tt.expect {
			if err != nil {
				t.Logf("Got error: %s", err)
			}
			t.Errorf("Expected %v for %q: %s", tt.expect, tt.input, tt.msg)
		}
	}
}
