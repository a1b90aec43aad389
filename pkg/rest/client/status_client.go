// Package client provides a basic REST client for the relay status API.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/inbucket/aliasrelay/pkg/rest/model"
)

// Client accesses the relay status API.
type Client struct {
	restClient
}

// New creates a new status API client given the base URL of a running relay, ex:
// "http://localhost:9000"
func New(baseURL string, timeout time.Duration) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		restClient{
			client:  &http.Client{Timeout: timeout},
			baseURL: parsedURL,
		},
	}
	return c, nil
}

// Status returns the last backlog scan and recent dispositions.
func (c *Client) Status(ctx context.Context) (*model.JSONStatusV1, error) {
	status := &model.JSONStatusV1{}
	if err := c.getJSON(ctx, "/status", nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

// ListStaged returns the staged messages.  When quarantined is non-nil only entries with a
// matching quarantine state are returned.
func (c *Client) ListStaged(ctx context.Context, quarantined *bool) ([]*model.JSONEntryV1, error) {
	var query url.Values
	if quarantined != nil {
		query = url.Values{"quarantined": {strconv.FormatBool(*quarantined)}}
	}
	var entries []*model.JSONEntryV1
	if err := c.getJSON(ctx, "/status/staged", query, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetStaged returns a single staged message and its quarantine marker, if any.
func (c *Client) GetStaged(ctx context.Context, id string) (*model.JSONEntryV1, error) {
	entry := &model.JSONEntryV1{}
	if err := c.getJSON(ctx, "/status/staged/"+id, nil, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
