package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/dispatch"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/provider"
)

// Submission is an authenticated SMTP session. It implements dispatch.Transport.
type Submission struct {
	client *smtp.Client
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ dispatch.Transport = (*Submission)(nil)

func submissionEndpoint(d provider.Descriptor) provider.Endpoint { return d.Submission }

// OpenSubmission connects to the account's SMTP server and authenticates with AUTH PLAIN. Without
// implicit TLS the connection is upgraded with STARTTLS. A server that does not offer STARTTLS is
// refused unless plaintext auth is permitted. A successful return means the credentials were
// accepted.
func (m *Manager) OpenSubmission(ctx context.Context, acct *account.Account) (*Submission, error) {
	const op = "open smtp session"
	if err := validateAccount(op, acct, submissionEndpoint); err != nil {
		return nil, err
	}
	ep := acct.Provider.Submission
	logger := log.With().Str("module", "session").Str("proto", "smtp").
		Str("account", acct.ID).Str("addr", ep.Addr()).Logger()

	client, wd, err := m.dialSubmission(ctx, ep, m.plaintextAuth, logger)
	if errors.Is(err, errRedialStartTLS) {
		client, wd, err = m.dialSubmission(ctx, ep, false, logger)
	}
	if err != nil {
		logger.Debug().Err(err).Msg("Handshake failed")
		return nil, classifySMTP(ctx, op, err, true)
	}
	defer wd.stop()

	if err := client.Auth(sasl.NewPlainClient("", acct.Email, acct.Secret)); err != nil {
		_ = client.Close()
		return nil, classifySMTP(ctx, op, wd.err(err), true)
	}
	logger.Debug().Msg("Authenticated")

	client.CommandTimeout = m.readTimeout
	client.SubmissionTimeout = m.readTimeout
	return &Submission{
		client: client,
		logger: logger,
	}, nil
}

var errRedialStartTLS = errors.New("server offers STARTTLS")

// dialSubmission connects and runs the handshake. The returned watchdog keeps bounding the
// connection by the auth timeout until stopped.
func (m *Manager) dialSubmission(
	ctx context.Context,
	ep provider.Endpoint,
	allowPlain bool,
	logger zerolog.Logger,
) (*smtp.Client, *watchdog, error) {
	conn, raw, err := m.connect(ctx, ep)
	if err != nil {
		return nil, nil, err
	}
	wd := newWatchdog(ctx, m.authTimeout, raw)
	client, err := m.handshake(conn, ep, allowPlain, logger)
	if err != nil {
		wd.stop()
		_ = raw.Close()
		return nil, nil, wd.err(err)
	}
	return client, wd, nil
}

// handshake reads the greeting and sends EHLO, upgrading with STARTTLS on a cleartext endpoint.
func (m *Manager) handshake(
	conn net.Conn,
	ep provider.Endpoint,
	allowPlain bool,
	logger zerolog.Logger,
) (*smtp.Client, error) {
	if ep.Secure {
		return m.hello(smtp.NewClient(conn))
	}
	if !allowPlain {
		client, err := smtp.NewClientStartTLS(conn, m.tlsFor(ep.Host))
		if err != nil {
			return nil, fmt.Errorf("starttls: %w", err)
		}
		return m.hello(client)
	}

	client, err := m.hello(smtp.NewClient(conn))
	if err != nil {
		return nil, err
	}
	if ok, _ := client.Extension("STARTTLS"); !ok {
		logger.Warn().Msg("Server does not offer STARTTLS, authenticating in plain text")
		return client, nil
	}
	// Upgrading needs a fresh connection owned by NewClientStartTLS.
	_ = client.Quit()
	return nil, errRedialStartTLS
}

// hello sends EHLO with the configured name and bounds each handshake command.
func (m *Manager) hello(client *smtp.Client) (*smtp.Client, error) {
	client.CommandTimeout = m.authTimeout
	if err := client.Hello(m.helloName); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ehlo: %w", err)
	}
	return client, nil
}

// Send transmits one message to the given envelope recipients.
func (s *Submission) Send(ctx context.Context, from string, rcpts []string, msg io.Reader) error {
	const op = "submit message"
	wd := newWatchdog(ctx, 0, s.client)
	defer wd.stop()

	if err := s.client.Mail(from, nil); err != nil {
		return classifySMTP(ctx, op, fmt.Errorf("mail from: %w", err), false)
	}
	for _, rcpt := range rcpts {
		if err := s.client.Rcpt(rcpt, nil); err != nil {
			return classifySMTP(ctx, op, fmt.Errorf("rcpt to %s: %w", rcpt, err), false)
		}
	}
	w, err := s.client.Data()
	if err != nil {
		return classifySMTP(ctx, op, fmt.Errorf("data: %w", err), false)
	}
	if _, err := io.Copy(w, msg); err != nil {
		_ = w.Close()
		return connectionError(ctx, op, err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP(ctx, op, fmt.Errorf("data: %w", err), false)
	}
	s.logger.Debug().Int("recipients", len(rcpts)).Msg("Message accepted")
	return nil
}

// Close quits and closes the connection. It is safe to call more than once.
func (s *Submission) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.client == nil {
			return
		}
		s.client.CommandTimeout = logoutTimeout
		// A successful QUIT closes the connection.
		if err := s.client.Quit(); err != nil {
			s.logger.Debug().Err(err).Msg("Quit failed")
			s.closeErr = s.client.Close()
			if errors.Is(s.closeErr, net.ErrClosed) {
				s.closeErr = nil
			}
		}
	})
	return s.closeErr
}

// classifySMTP maps a server reply to an error kind. During authentication a 535 family reply is
// an auth failure and other replies are connection failures; afterwards replies are send
// rejections.
func classifySMTP(ctx context.Context, op string, err error, authenticating bool) error {
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) {
		return connectionError(ctx, op, err)
	}
	switch {
	case authenticating && (smtpErr.Code == 535 || smtpErr.Code == 534 || smtpErr.Code == 530):
		return mailerr.New(mailerr.Auth, op, errors.New(smtpErr.Message))
	case authenticating:
		return mailerr.New(mailerr.Connection, op, err)
	}
	return mailerr.New(mailerr.Send, op, err)
}
