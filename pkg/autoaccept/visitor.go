// Package autoaccept completes registration workflows by following the confirmation link found in
// a registration message.
package autoaccept

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"github.com/inbucket/aliasrelay/pkg/config"
	"github.com/rs/zerolog/log"
)

// Acceptor completes a registration given the HTML body of its confirmation message, returning
// the confirmation URL it followed.
type Acceptor interface {
	Accept(ctx context.Context, htmlBody string) (string, error)
}

// httpClient allows http.Client to be mocked for tests
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Visitor is an Acceptor that issues a GET to the confirmation link.
type Visitor struct {
	client  httpClient
	pattern *regexp.Regexp
}

var _ Acceptor = &Visitor{}

// New creates a Visitor from config.
func New(cfg config.AutoAccept) (*Visitor, error) {
	pattern, err := regexp.Compile(cfg.LinkPattern)
	if err != nil {
		return nil, fmt.Errorf("auto-accept link pattern: %w", err)
	}

	return &Visitor{
		client:  &http.Client{Timeout: cfg.Timeout},
		pattern: pattern,
	}, nil
}

// Accept extracts the confirmation link from htmlBody and visits it.  Any non-2xx response is a
// failure.
func (v *Visitor) Accept(ctx context.Context, htmlBody string) (string, error) {
	link, err := ExtractConfirmationURL(htmlBody, v.pattern)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return link, fmt.Errorf("GET for %q: %v", link, err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return link, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return link, fmt.Errorf("GET for %q, unexpected %v: %s", link, resp.StatusCode, resp.Status)
	}

	log.Debug().Str("module", "autoaccept").Str("url", link).Int("status", resp.StatusCode).
		Msg("Visited confirmation link")
	return link, nil
}
