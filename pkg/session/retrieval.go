package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset" // Charsets for encoded words in server responses.
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/fetch"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/provider"
)

const logoutTimeout = 5 * time.Second

// Retrieval is an authenticated IMAP session. It implements fetch.Source.
type Retrieval struct {
	client      *imapclient.Client
	readTimeout time.Duration
	logger      zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ fetch.Source = (*Retrieval)(nil)

func retrievalEndpoint(d provider.Descriptor) provider.Endpoint { return d.Retrieval }

// OpenRetrieval connects to the account's IMAP server and logs in. Without implicit TLS the
// connection must be upgraded with STARTTLS before credentials are sent.
func (m *Manager) OpenRetrieval(ctx context.Context, acct *account.Account) (*Retrieval, error) {
	const op = "open imap session"
	if err := validateAccount(op, acct, retrievalEndpoint); err != nil {
		return nil, err
	}
	ep := acct.Provider.Retrieval
	logger := log.With().Str("module", "session").Str("proto", "imap").
		Str("account", acct.ID).Str("addr", ep.Addr()).Logger()

	conn, raw, err := m.connect(ctx, ep)
	if err != nil {
		logger.Debug().Err(err).Msg("Dial failed")
		return nil, connectionError(ctx, op, err)
	}
	// The watchdog covers greeting, STARTTLS and LOGIN.
	wd := newWatchdog(ctx, m.authTimeout, raw)
	defer wd.stop()

	opts := &imapclient.Options{TLSConfig: m.tlsFor(ep.Host)}
	var client *imapclient.Client
	if ep.Secure {
		client = imapclient.New(conn, opts)
		if err := client.WaitGreeting(); err != nil {
			_ = client.Close()
			return nil, connectionError(ctx, op, wd.err(fmt.Errorf("greeting: %w", err)))
		}
	} else {
		// Fails without sending credentials when the server refuses STARTTLS.
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			_ = raw.Close()
			return nil, connectionError(ctx, op, wd.err(fmt.Errorf("starttls: %w", err)))
		}
	}

	if err := client.Login(acct.Email, acct.Secret).Wait(); err != nil {
		_ = client.Close()
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			logger.Info().Str("response", imapErr.Text).Msg("Login rejected")
			return nil, mailerr.New(mailerr.Auth, op, errors.New(imapErr.Text))
		}
		return nil, connectionError(ctx, op, wd.err(err))
	}
	logger.Debug().Msg("Logged in")

	return &Retrieval{
		client:      client,
		readTimeout: m.readTimeout,
		logger:      logger,
	}, nil
}

// Select opens folder read-only so that fetching does not change message flags.
func (r *Retrieval) Select(ctx context.Context, folder string) (*fetch.Mailbox, error) {
	const op = "select folder"
	wd := newWatchdog(ctx, r.readTimeout, r.client)
	defer wd.stop()

	data, err := r.client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		var imapErr *imap.Error
		if errors.As(err, &imapErr) {
			return nil, mailerr.Configf(op, "folder %q: %s", folder, imapErr.Text)
		}
		return nil, connectionError(ctx, op, wd.err(err))
	}
	r.logger.Debug().Str("folder", folder).Uint32("total", data.NumMessages).Msg("Selected folder")
	return &fetch.Mailbox{Name: folder, Total: data.NumMessages, UIDValidity: data.UIDValidity}, nil
}

// FetchRange streams messages start through end by sequence number. The read timeout restarts with
// every message, a server that stalls longer than that fails the fetch.
func (r *Retrieval) FetchRange(
	ctx context.Context,
	start, end uint32,
	fn func(*fetch.RawMessage) error,
) error {
	const op = "fetch messages"
	var seqs imap.SeqSet
	seqs.AddRange(start, end)
	section := &imap.FetchItemBodySection{Peek: true}
	opts := &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	wd := newWatchdog(ctx, r.readTimeout, r.client)
	defer wd.stop()
	cmd := r.client.Fetch(seqs, opts)
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			_ = cmd.Close()
			return connectionError(ctx, op, wd.err(err))
		}
		wd.reset()
		raw := &fetch.RawMessage{
			SeqNum:  buf.SeqNum,
			UID:     uint32(buf.UID),
			Size:    buf.RFC822Size,
			Literal: buf.FindBodySection(section),
		}
		for _, f := range buf.Flags {
			raw.Flags = append(raw.Flags, string(f))
		}
		if err := fn(raw); err != nil {
			_ = cmd.Close()
			return err
		}
		wd.reset()
	}
	if err := cmd.Close(); err != nil {
		return connectionError(ctx, op, wd.err(err))
	}
	return nil
}

// Close logs out and closes the connection. It is safe to call more than once.
func (r *Retrieval) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		if r.client == nil {
			return
		}
		wd := newWatchdog(context.Background(), logoutTimeout, r.client)
		defer wd.stop()
		if err := r.client.Logout().Wait(); err != nil {
			r.logger.Debug().Err(err).Msg("Logout failed")
		}
		r.closeErr = r.client.Close()
		if errors.Is(r.closeErr, net.ErrClosed) {
			r.closeErr = nil
		}
	})
	return r.closeErr
}
