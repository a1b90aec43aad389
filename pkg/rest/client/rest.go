package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// ErrNotFound is returned when the status server has no such resource.
var ErrNotFound = errors.New("not found")

// httpClient allows http.Client to be mocked for tests
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Generic REST restClient
type restClient struct {
	client  httpClient
	baseURL *url.URL
}

// do performs a GET with this client and returns the response.
func (c *restClient) do(ctx context.Context, uri string, query url.Values) (*http.Response, error) {
	u := c.baseURL.JoinPath(uri)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("GET %q: %v", u, err)
	}
	req.Header.Set("Accept", "application/json")

	return c.client.Do(req)
}

// getJSON performs a GET with this client and unmarshalls the JSON response into v.
func (c *restClient) getJSON(ctx context.Context, uri string, query url.Values, v interface{}) error {
	resp, err := c.do(ctx, uri, query)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	switch resp.StatusCode {
	case http.StatusOK:
		// Decode response body
		return json.NewDecoder(resp.Body).Decode(v)
	case http.StatusNotFound:
		return fmt.Errorf("GET %q: %w", uri, ErrNotFound)
	}

	return fmt.Errorf("GET %q, unexpected %v: %s", uri, resp.StatusCode, resp.Status)
}
