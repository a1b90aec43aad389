// Package policy decides which recipients the relay accepts and maps them to aliases.
package policy

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/inbucket/aliasrelay/pkg/config"
)

// ErrEmptyAlias is returned when a local part has nothing left once its +tag is removed.
var ErrEmptyAlias = errors.New("alias cannot be empty")

// Addressing handles recipient address policy.
type Addressing struct {
	Config *config.SMTP
}

// NewRecipient parses an envelope recipient into a Recipient.
func (a *Addressing) NewRecipient(address string) (*Recipient, error) {
	local, domain, err := ParseEmailAddress(address)
	if err != nil {
		return nil, err
	}
	alias, err := parseAlias(local)
	if err != nil {
		return nil, fmt.Errorf("recipient %q: %w", address, err)
	}
	return &Recipient{
		Address:    address,
		addrPolicy: a,
		LocalPart:  local,
		Domain:     strings.ToLower(domain),
		Alias:      alias,
	}, nil
}

// ShouldAcceptDomain indicates if the relay accepts mail destined for the specified domain.  With
// no AcceptDomains configured every domain is accepted.
func (a *Addressing) ShouldAcceptDomain(domain string) bool {
	if len(a.Config.AcceptDomains) == 0 {
		return true
	}
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	return slices.ContainsFunc(a.Config.AcceptDomains, func(d string) bool {
		return strings.TrimSuffix(strings.ToLower(d), ".") == domain
	})
}

// ParseEmailAddress unescapes an email address, and splits the local part from the domain part.
// An error is returned if the local or domain parts fail validation following the guidelines
// in RFC3696.
func ParseEmailAddress(address string) (local string, domain string, err error) {
	local, domain, err = parseEmailAddress(address)
	if err != nil {
		return "", "", err
	}
	if !ValidateDomainPart(domain) {
		return "", "", fmt.Errorf("Domain part validation failed")
	}
	return local, domain, nil
}

// ValidateDomainPart returns true if the domain part complies to RFC3696, RFC1035. Used by
// ParseEmailAddress().
func ValidateDomainPart(domain string) bool {
	if len(domain) == 0 {
		return false
	}
	if len(domain) > 255 {
		return false
	}
	if domain[len(domain)-1] != '.' {
		domain += "."
	}
	prev := '.'
	labelLen := 0
	hasAlphaNum := false
	for _, c := range domain {
		switch {
		case ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') ||
			('0' <= c && c <= '9') || c == '_':
			// Must contain some of these to be a valid label.
			hasAlphaNum = true
			labelLen++
		case c == '-':
			if prev == '.' {
				// Cannot lead with hyphen.
				return false
			}
		case c == '.':
			if prev == '.' || prev == '-' {
				// Cannot end with hyphen or double-dot.
				return false
			}
			if labelLen > 63 {
				return false
			}
			if !hasAlphaNum {
				return false
			}
			labelLen = 0
			hasAlphaNum = false
		default:
			// Unknown character.
			return false
		}
		prev = c
	}
	return true
}

// parseEmailAddress unescapes an email address, and splits the local part from the domain part.  An
// error is returned if the local part fails validation following the guidelines in RFC3696. The
// domain part is optional and not validated.
func parseEmailAddress(address string) (local string, domain string, err error) {
	switch {
	case address == "":
		return "", "", fmt.Errorf("empty address")
	case len(address) > 320:
		return "", "", fmt.Errorf("address exceeds 320 characters")
	case address[0] == '@':
		return "", "", fmt.Errorf("address cannot start with @ symbol")
	case address[0] == '.':
		return "", "", fmt.Errorf("address cannot start with a period")
	}

	var buf strings.Builder
	prev := byte('.')
	inCharQuote := false
	inStringQuote := false
LOOP:
	for i := 0; i < len(address); i++ {
		c := address[i]
		switch {
		case isAtext(c):
			buf.WriteByte(c)
			inCharQuote = false
		case c == '.':
			if prev == '.' {
				return "", "", fmt.Errorf("Sequence of periods is not permitted")
			}
			buf.WriteByte(c)
			inCharQuote = false
		case c == '\\':
			inCharQuote = true
		case c == '"':
			switch {
			case inCharQuote:
				buf.WriteByte(c)
				inCharQuote = false
			case inStringQuote:
				inStringQuote = false
			case i == 0:
				inStringQuote = true
			default:
				return "", "", fmt.Errorf("Quoted string can only begin at start of address")
			}
		case c == '@' && !inCharQuote && !inStringQuote:
			// End of local-part.
			if i > 128 {
				return "", "", fmt.Errorf("Local part must not exceed 128 characters")
			}
			if prev == '.' {
				return "", "", fmt.Errorf("Local part cannot end with a period")
			}
			domain = address[i+1:]
			break LOOP
		case c > 127:
			return "", "", fmt.Errorf("Characters outside of US-ASCII range not permitted")
		case inCharQuote || inStringQuote:
			buf.WriteByte(c)
			inCharQuote = false
		default:
			return "", "", fmt.Errorf("Character %q must be quoted", c)
		}
		prev = c
	}
	if inCharQuote {
		return "", "", fmt.Errorf("Cannot end address with unterminated quoted-pair")
	}
	if inStringQuote {
		return "", "", fmt.Errorf("Cannot end address with unterminated string quote")
	}
	return buf.String(), domain, nil
}

// isAtext reports whether c may appear unquoted in a local part.
func isAtext(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
		strings.IndexByte("!#$%&'*+-/=?^_`{|}~", c) >= 0
}

// parseAlias takes an unescaped local part (ex: "A1b2+news") and returns the alias it addresses
// (ex: "A1b2").  Aliases are opaque account identifiers, so case is kept and only letters, digits,
// '-', '_' and '.' are permitted.
func parseAlias(localPart string) (string, error) {
	alias := localPart
	if idx := strings.IndexByte(alias, '+'); idx > -1 {
		alias = alias[:idx]
	}
	if alias == "" {
		return "", ErrEmptyAlias
	}
	if strings.Contains(alias, "..") {
		return "", fmt.Errorf("alias %q contains a sequence of periods", alias)
	}
	for i := 0; i < len(alias); i++ {
		c := alias[i]
		switch {
		case 'a' <= c && c <= 'z':
		case 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return "", fmt.Errorf("alias %q contains invalid character %q", alias, c)
		}
	}
	return alias, nil
}
