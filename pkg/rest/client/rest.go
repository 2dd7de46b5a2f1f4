package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// httpClient allows http.Client to be mocked for tests
type httpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-200 response. Cause is the error text reported by the server, when present.
type APIError struct {
	Method     string
	URI        string
	StatusCode int
	Cause      string
}

func (e *APIError) Error() string {
	if e.Cause == "" {
		return fmt.Sprintf("%s for %q, unexpected %v", e.Method, e.URI, e.StatusCode)
	}
	return fmt.Sprintf("%s for %q, unexpected %v: %s", e.Method, e.URI, e.StatusCode, e.Cause)
}

// Generic REST restClient
type restClient struct {
	client  httpClient
	baseURL *url.URL
}

// do performs an HTTP request with this client and returns the response.  uri may carry a query
// string.
func (c *restClient) do(ctx context.Context, method, uri string, body []byte) (*http.Response, error) {
	p, query, _ := strings.Cut(uri, "?")
	url := c.baseURL.JoinPath(p)
	url.RawQuery = query
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url.String(), r)
	if err != nil {
		return nil, fmt.Errorf("%s for %q: %v", method, url, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.client.Do(req)
}

// doJSON performs an HTTP request with this client, sending in as the JSON body when it is not
// nil, and decodes the JSON response into out.
func (c *restClient) doJSON(ctx context.Context, method string, uri string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	resp, err := c.do(ctx, method, uri, body)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusOK {
		if out == nil {
			return nil
		}
		// Decode response body
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return responseError(method, uri, resp)
}

// responseError builds an APIError from a failed response, reading the server cause if the body
// holds one.
func responseError(method, uri string, resp *http.Response) error {
	apiErr := &APIError{Method: method, URI: uri, StatusCode: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Cause = body.Error
	}
	return apiErr
}
