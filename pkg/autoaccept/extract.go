package autoaccept

import (
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoConfirmationLink is returned when the HTML body has no link matching the pattern.
var ErrNoConfirmationLink = errors.New("no confirmation link found")

// ExtractConfirmationURL returns the first absolute http(s) anchor in body whose href or link
// text matches pattern.
func ExtractConfirmationURL(body string, pattern *regexp.Regexp) (string, error) {
	z := html.NewTokenizer(strings.NewReader(body))
	var (
		href   string
		inLink bool
		text   strings.Builder
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			if inLink && matches(href, text.String(), pattern) {
				// Unterminated anchor at end of document.
				return href, nil
			}
			return "", ErrNoConfirmationLink

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			if inLink && matches(href, text.String(), pattern) {
				return href, nil
			}
			href, inLink = "", true
			text.Reset()
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if strings.EqualFold(string(key), "href") {
					href = strings.TrimSpace(string(val))
				}
			}

		case html.TextToken:
			if inLink {
				text.Write(z.Text())
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) != "a" || !inLink {
				continue
			}
			inLink = false
			if matches(href, text.String(), pattern) {
				return href, nil
			}
		}
	}
}

func matches(href, text string, pattern *regexp.Regexp) bool {
	if !isWebURL(href) {
		return false
	}
	return pattern.MatchString(href) || pattern.MatchString(text)
}

func isWebURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
