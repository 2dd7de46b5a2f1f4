package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/fetch"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/storage/mem"
)

// imapServer is an in-memory IMAP server holding one user with an INBOX.
type imapServer struct {
	ep        provider.Endpoint
	user      *imapmemserver.User
	clientTLS *tls.Config

	mu    sync.Mutex
	trace bytes.Buffer
}

func (s *imapServer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trace.Write(p)
}

// traffic returns everything exchanged so far, after any TLS upgrade in plain text.
func (s *imapServer) traffic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trace.String()
}

// newIMAPServer starts a server. Without startTLS the server does not offer STARTTLS.
func newIMAPServer(t *testing.T, startTLS bool) *imapServer {
	t.Helper()
	serverTLS, clientTLS := testTLS(t)
	memServer := imapmemserver.New()
	user := imapmemserver.NewUser("user@example.com", "secret")
	require.NoError(t, user.Create("INBOX", nil))
	memServer.AddUser(user)

	s := &imapServer{user: user, clientTLS: clientTLS}
	opts := &imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return memServer.NewSession(), nil, nil
		},
		Caps:         imap.CapSet{imap.CapIMAP4rev1: {}, imap.CapIMAP4rev2: {}},
		Logger:       log.New(io.Discard, "", 0),
		InsecureAuth: true,
		DebugWriter:  s,
	}
	if startTLS {
		opts.TLSConfig = serverTLS
	}
	srv := imapserver.New(opts)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	s.ep = endpointOf(t, ln.Addr().String())
	return s
}

// deliver appends n plain text messages, oldest first.
func (s *imapServer) deliver(t *testing.T, n int) {
	t.Helper()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		date := base.Add(time.Duration(i) * time.Hour)
		lit := fmt.Sprintf("From: Sender <sender@example.com>\r\n"+
			"To: user@example.com\r\n"+
			"Subject: Message %d\r\n"+
			"Date: %s\r\n"+
			"Content-Type: text/plain; charset=utf-8\r\n"+
			"\r\n"+
			"body %d\r\n", i, date.Format(time.RFC1123Z), i)
		_, err := s.user.Append("INBOX", strings.NewReader(lit), &imap.AppendOptions{Time: date})
		require.NoError(t, err)
	}
}

func (s *imapServer) manager() *Manager {
	return NewManager(WithTLSConfig(s.clientTLS), WithAuthTimeout(5*time.Second))
}

func (s *imapServer) account(secret string) *account.Account {
	desc := provider.NewCustom("test", s.ep.Host, s.ep.Port, false, s.ep.Host, s.ep.Port, false)
	return account.New("user@example.com", secret, "", desc)
}

func TestRetrievalRequiresStartTLS(t *testing.T) {
	srv := newIMAPServer(t, false)

	r, err := srv.manager().OpenRetrieval(context.Background(), srv.account("secret"))
	assert.Nil(t, r)
	assert.True(t, mailerr.Is(err, mailerr.Connection), "got %v", err)
	assert.NotContains(t, srv.traffic(), "LOGIN", "credentials sent in clear text")
}

func TestRetrievalRejectedCredentials(t *testing.T) {
	srv := newIMAPServer(t, true)

	r, err := srv.manager().OpenRetrieval(context.Background(), srv.account("wrong"))
	assert.Nil(t, r)
	assert.True(t, mailerr.Is(err, mailerr.Auth), "got %v", err)
	assert.Contains(t, srv.traffic(), "STARTTLS")
}

func TestRetrievalFetchNewestReadOnly(t *testing.T) {
	srv := newIMAPServer(t, true)
	srv.deliver(t, 3)
	store, err := mem.New(config.Storage{})
	require.NoError(t, err)
	acct := srv.account("secret")
	p := &fetch.Pipeline{Store: store}

	r, err := srv.manager().OpenRetrieval(context.Background(), acct)
	require.NoError(t, err)
	msgs, err := p.Fetch(context.Background(), r, acct, "INBOX", 2)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	require.Len(t, msgs, 2)
	assert.Equal(t, "Message 3", msgs[0].Subject)
	assert.Equal(t, "Message 2", msgs[1].Subject)
	assert.Greater(t, msgs[0].UID, msgs[1].UID)
	assert.Contains(t, msgs[0].Body.Text, "body 3")
	for _, m := range msgs {
		assert.False(t, m.Read)
	}
	assert.Contains(t, srv.traffic(), "EXAMINE")
	assert.NotContains(t, srv.traffic(), " SELECT INBOX")

	status, err := srv.user.Status("INBOX", &imap.StatusOptions{NumUnseen: true})
	require.NoError(t, err)
	require.NotNil(t, status.NumUnseen)
	assert.Equal(t, uint32(3), *status.NumUnseen, "fetching must not mark messages seen")
}

func TestRetrievalResyncDoesNotDuplicate(t *testing.T) {
	srv := newIMAPServer(t, true)
	srv.deliver(t, 3)
	store, err := mem.New(config.Storage{})
	require.NoError(t, err)
	acct := srv.account("secret")
	p := &fetch.Pipeline{Store: store}

	for _, limit := range []int{2, 3} {
		r, err := srv.manager().OpenRetrieval(context.Background(), acct)
		require.NoError(t, err)
		_, err = p.Fetch(context.Background(), r, acct, "INBOX", limit)
		require.NoError(t, err)
		require.NoError(t, r.Close())
	}

	listed, err := store.ListMessages(acct.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestRetrievalUnknownFolder(t *testing.T) {
	srv := newIMAPServer(t, true)

	r, err := srv.manager().OpenRetrieval(context.Background(), srv.account("secret"))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Select(context.Background(), "Nope")
	assert.True(t, mailerr.Is(err, mailerr.Config), "got %v", err)
	assert.Contains(t, err.Error(), `"Nope"`)
}
