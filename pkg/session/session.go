// Package session opens authenticated retrieval (IMAP) and submission (SMTP) sessions for an
// account. Sessions are owned by a single operation and must be closed by it.
package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/provider"
)

const (
	DefaultConnectTimeout = 60 * time.Second
	DefaultAuthTimeout    = 30 * time.Second
	DefaultReadTimeout    = 2 * time.Minute
	DefaultHelloName      = "localhost"
)

// DialFunc establishes the plain TCP connection to a server.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Option configures a Manager.
type Option func(*Manager)

// WithConnectTimeout bounds dialing and the implicit TLS handshake.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithAuthTimeout bounds the greeting, STARTTLS and credential exchange.
func WithAuthTimeout(d time.Duration) Option {
	return func(m *Manager) { m.authTimeout = d }
}

// WithReadTimeout bounds the wait for each fetched message.
func WithReadTimeout(d time.Duration) Option {
	return func(m *Manager) { m.readTimeout = d }
}

// WithTLSConfig sets the base TLS configuration. ServerName is filled in per endpoint.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(m *Manager) { m.tlsConfig = cfg }
}

// WithDialer replaces the TCP dialer.
func WithDialer(dial DialFunc) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithPlaintextAuth permits SMTP AUTH over a cleartext connection when the server does not offer
// STARTTLS.
func WithPlaintextAuth(allow bool) Option {
	return func(m *Manager) { m.plaintextAuth = allow }
}

// WithHelloName sets the EHLO name sent to submission servers.
func WithHelloName(name string) Option {
	return func(m *Manager) { m.helloName = name }
}

// Manager opens sessions. It holds no connection state and is safe for concurrent use.
type Manager struct {
	connectTimeout time.Duration
	authTimeout    time.Duration
	readTimeout    time.Duration
	tlsConfig      *tls.Config
	dial           DialFunc
	helloName      string
	plaintextAuth  bool
}

// NewManager creates a Manager with the default timeouts, modified by opts.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		connectTimeout: DefaultConnectTimeout,
		authTimeout:    DefaultAuthTimeout,
		readTimeout:    DefaultReadTimeout,
		helloName:      DefaultHelloName,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dial == nil {
		d := &net.Dialer{Timeout: m.connectTimeout}
		m.dial = d.DialContext
	}
	return m
}

// FromConfig creates a Manager from the session configuration.
func FromConfig(c config.Session) *Manager {
	opts := []Option{
		WithConnectTimeout(c.ConnectTimeout),
		WithAuthTimeout(c.AuthTimeout),
		WithReadTimeout(c.ReadTimeout),
		WithHelloName(c.HelloName),
		WithPlaintextAuth(c.PlaintextAuth),
	}
	if c.TLSInsecure {
		log.Warn().Str("module", "session").Msg("TLS certificate verification is disabled")
		opts = append(opts, WithTLSConfig(&tls.Config{InsecureSkipVerify: true})) // #nosec G402
	}
	return NewManager(opts...)
}

// Close closes each non-nil closer, returning the first error. Closing an already closed session
// is a no-op.
func Close(closers ...io.Closer) error {
	var first error
	for _, c := range closers {
		if c == nil || isNilSession(c) {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// isNilSession catches typed nil session pointers stored in an io.Closer.
func isNilSession(c io.Closer) bool {
	switch s := c.(type) {
	case *Retrieval:
		return s == nil
	case *Submission:
		return s == nil
	}
	return false
}

func validateAccount(op string, acct *account.Account, ep func(provider.Descriptor) provider.Endpoint) error {
	if acct == nil {
		return mailerr.Configf(op, "account is required")
	}
	if acct.Email == "" {
		return mailerr.Configf(op, "email is required")
	}
	if err := ep(acct.Provider).Validate(); err != nil {
		return mailerr.New(mailerr.Config, op, err)
	}
	return nil
}

func (m *Manager) tlsFor(host string) *tls.Config {
	var cfg *tls.Config
	if m.tlsConfig != nil {
		cfg = m.tlsConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

// connect dials the endpoint and performs the implicit TLS handshake when the endpoint asks for
// it. The returned raw conn is the TCP connection, closed by watchdogs.
func (m *Manager) connect(ctx context.Context, ep provider.Endpoint) (conn, raw net.Conn, err error) {
	dctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()
	raw, err = m.dial(dctx, "tcp", ep.Addr())
	if err != nil {
		return nil, nil, err
	}
	if !ep.Secure {
		return raw, raw, nil
	}
	tc := tls.Client(raw, m.tlsFor(ep.Host))
	if err := tc.HandshakeContext(dctx); err != nil {
		_ = raw.Close()
		return nil, nil, err
	}
	return tc, raw, nil
}

// watchdog closes a connection when ctx is done, or when its timeout elapses without a reset.
// The protocol clients manage socket deadlines themselves, so timeouts are enforced by closing.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	stopCtx func() bool
	fired   atomic.Bool
}

// newWatchdog starts watching c. A zero timeout only watches ctx.
func newWatchdog(ctx context.Context, timeout time.Duration, c io.Closer) *watchdog {
	w := &watchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() {
			w.fired.Store(true)
			_ = c.Close()
		})
	}
	w.stopCtx = context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	return w
}

// reset restarts the timeout.
func (w *watchdog) reset() {
	if w.timer != nil {
		w.timer.Reset(w.timeout)
	}
}

func (w *watchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.stopCtx()
}

// err marks err as a timeout when the watchdog closed the connection.
func (w *watchdog) err(err error) error {
	if err != nil && w.fired.Load() {
		return fmt.Errorf("%w after %v: %w", errTimeout, w.timeout, err)
	}
	return err
}

var errTimeout = errors.New("timed out")

// connectionError classifies err as a connection failure, preferring the context error when the
// operation was cancelled.
func connectionError(ctx context.Context, op string, err error) error {
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		err = errors.Join(cerr, err)
	}
	return mailerr.New(mailerr.Connection, op, err)
}
