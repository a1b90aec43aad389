// Package directory resolves relay aliases to destination mailboxes using the account directory
// REST service.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Destination is a successfully resolved alias.
type Destination struct {
	ForwardAddress string `json:"forwardAddress"`
}

// ErrAliasNotFound is matched by a ResolutionError the directory answered definitively.
var ErrAliasNotFound = errors.New("alias not found")

// ResolutionError reports a failed alias lookup.  NotFound is set when the directory says the
// alias does not exist or may not be used; otherwise the lookup itself failed.
type ResolutionError struct {
	AliasID  string
	NotFound bool
	Err      error
}

func (e *ResolutionError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("resolving alias %q: not found: %v", e.AliasID, e.Err)
	}
	return fmt.Sprintf("resolving alias %q: %v", e.AliasID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Is matches ErrAliasNotFound for definitive failures.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrAliasNotFound && e.NotFound
}

// ClientOptions holds the options for the Client.
type ClientOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
	token     string
}

// getDefaultClientOptions returns the default options for the client
func getDefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		timeout: 30 * time.Second,
	}
}

// WithTransport sets the HTTP transport, primarily for tests.
func WithTransport(transport http.RoundTripper) func(*ClientOptions) {
	return func(options *ClientOptions) {
		options.transport = transport
	}
}

// WithTimeout bounds every lookup request.
func WithTimeout(timeout time.Duration) func(*ClientOptions) {
	return func(options *ClientOptions) {
		options.timeout = timeout
	}
}

// WithToken sends a bearer token with every lookup.
func WithToken(token string) func(*ClientOptions) {
	return func(options *ClientOptions) {
		options.token = token
	}
}

// Client looks up aliases in the account directory.
type Client struct {
	restClient
}

// New creates a directory client given the base URL of the directory service, ex:
// "http://accounts.internal:8080/api"
func New(baseURL string, opts ...func(*ClientOptions)) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("directory URL %q must be http or https", baseURL)
	}

	options := getDefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Client{
		restClient{
			client: &http.Client{
				Transport: options.transport,
				Timeout:   options.timeout,
			},
			baseURL: parsedURL,
			token:   options.token,
		},
	}, nil
}

// Resolve returns the destination for aliasID.  It never returns a partial Destination: either
// the forward address is present or the error is a *ResolutionError.
func (c *Client) Resolve(ctx context.Context, aliasID string) (*Destination, error) {
	if aliasID == "" || strings.ContainsAny(aliasID, "/\\") || strings.Contains(aliasID, "..") {
		return nil, &ResolutionError{AliasID: aliasID, NotFound: true, Err: errors.New("malformed alias")}
	}

	dest := &Destination{}
	err := c.doJSON(ctx, http.MethodGet, "/aliases/"+aliasID, dest)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && isFinal(se.Code) {
			return nil, &ResolutionError{AliasID: aliasID, NotFound: true, Err: err}
		}
		log.Debug().Str("module", "directory").Str("alias", aliasID).Err(err).
			Msg("Directory lookup failed")
		return nil, &ResolutionError{AliasID: aliasID, Err: err}
	}
	if dest.ForwardAddress == "" {
		return nil, &ResolutionError{AliasID: aliasID, Err: errors.New("directory returned no forward address")}
	}

	return dest, nil
}

// isFinal reports whether a status means the alias will never resolve as requested.
func isFinal(code int) bool {
	return code == http.StatusNotFound || code == http.StatusForbidden ||
		code == http.StatusGone || code == http.StatusUnauthorized
}
