// Package engine implements the account, sync and send operations exposed by the JSON API.
package engine

import (
	"context"
	"io"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/dispatch"
	"github.com/mailmount/mailmount/pkg/fetch"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/session"
)

// Manager is the set of operations offered to external callers. Accounts are only ever returned as
// views without their secret.
type Manager interface {
	Providers() map[string]provider.Descriptor
	DetectProvider(email string) (key string, desc *provider.Descriptor, err error)
	CustomProvider(
		name string,
		imapHost string, imapPort int, imapSecure bool,
		smtpHost string, smtpPort int, smtpSecure bool,
	) (provider.Descriptor, error)

	TestConnection(ctx context.Context, email, secret string, desc provider.Descriptor) error
	AddAccount(ctx context.Context, email, secret, displayName string, desc provider.Descriptor) (account.View, error)
	ListAccounts() ([]account.View, error)
	GetAccount(id string) (account.View, error)

	Sync(ctx context.Context, accountID, folder string, limit int) ([]*message.Message, error)
	ListMessages(accountID string) ([]*message.Message, error)
	GetMessage(accountID, messageID string) (*message.Message, error)
	GetSource(accountID, messageID string) ([]byte, error)
	Send(ctx context.Context, accountID string, out *message.Outbound) (string, error)
	ListAll(limit int) ([]*message.Message, error)
}

// Retrieval is an open retrieval session.
type Retrieval interface {
	fetch.Source
	io.Closer
}

// Submission is an open submission session.
type Submission interface {
	dispatch.Transport
	io.Closer
}

// Opener opens authenticated sessions for an account.
type Opener interface {
	OpenRetrieval(ctx context.Context, acct *account.Account) (Retrieval, error)
	OpenSubmission(ctx context.Context, acct *account.Account) (Submission, error)
}

// Sessions adapts a session.Manager to Opener.
func Sessions(m *session.Manager) Opener {
	return sessionOpener{m: m}
}

type sessionOpener struct {
	m *session.Manager
}

func (o sessionOpener) OpenRetrieval(ctx context.Context, acct *account.Account) (Retrieval, error) {
	r, err := o.m.OpenRetrieval(ctx, acct)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (o sessionOpener) OpenSubmission(ctx context.Context, acct *account.Account) (Submission, error) {
	s, err := o.m.OpenSubmission(ctx, acct)
	if err != nil {
		return nil, err
	}
	return s, nil
}
