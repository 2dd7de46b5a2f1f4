package client

import (
	"net/http"
	"time"
)

// ClientOptions is a struct that holds the options for the client
type ClientOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
}

// getDefaultClientOptions returns the default options for the client.  Sync requests wait on the
// remote mail server, so the timeout is generous.
func getDefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		timeout: 5 * time.Minute,
	}
}

// WithOptTransport returns a function that sets the transport object
func WithOptTransport(transport http.RoundTripper) func(*ClientOptions) {
	return func(options *ClientOptions) {
		options.transport = transport
	}
}

// WithOptTimeout returns a function that sets the request timeout
func WithOptTimeout(timeout time.Duration) func(*ClientOptions) {
	return func(options *ClientOptions) {
		options.timeout = timeout
	}
}
