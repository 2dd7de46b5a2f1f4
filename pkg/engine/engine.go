package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/dispatch"
	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/extension/event"
	"github.com/mailmount/mailmount/pkg/fetch"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/session"
	"github.com/mailmount/mailmount/pkg/storage"
)

// Defaults applied when a request leaves a field empty.
const (
	DefaultFolder    = "INBOX"
	DefaultLimit     = 50
	DefaultListLimit = 100
)

// Engine is the Manager backed by a store and live sessions.
type Engine struct {
	Store      storage.Store
	Sessions   Opener
	Extensions *extension.Host
	Defaults   config.Sync
	pipeline   *fetch.Pipeline
}

var _ Manager = (*Engine)(nil)

// New creates an Engine. extHost may be nil. Zero valued defaults fall back to the package
// defaults.
func New(store storage.Store, sessions Opener, extHost *extension.Host, defaults config.Sync) *Engine {
	if defaults.Folder == "" {
		defaults.Folder = DefaultFolder
	}
	if defaults.Limit <= 0 {
		defaults.Limit = DefaultLimit
	}
	if defaults.ListLimit <= 0 {
		defaults.ListLimit = DefaultListLimit
	}
	return &Engine{
		Store:      store,
		Sessions:   sessions,
		Extensions: extHost,
		Defaults:   defaults,
		pipeline:   &fetch.Pipeline{Store: store, Extensions: extHost},
	}
}

// Providers returns the predefined provider table.
func (e *Engine) Providers() map[string]provider.Descriptor {
	return provider.All()
}

// DetectProvider resolves the provider for an email address. desc is nil when the domain is not
// in the table.
func (e *Engine) DetectProvider(email string) (string, *provider.Descriptor, error) {
	if strings.TrimSpace(email) == "" {
		return "", nil, mailerr.Configf("detect provider", "email address is required")
	}
	key, d, ok := provider.Detect(email)
	if !ok {
		return "", nil, nil
	}
	return key, &d, nil
}

// CustomProvider builds and validates a user defined descriptor. Nothing is persisted.
func (e *Engine) CustomProvider(
	name string,
	imapHost string, imapPort int, imapSecure bool,
	smtpHost string, smtpPort int, smtpSecure bool,
) (provider.Descriptor, error) {
	const op = "create custom provider"
	if strings.TrimSpace(name) == "" {
		return provider.Descriptor{}, mailerr.Configf(op, "name is required")
	}
	d := provider.NewCustom(name, imapHost, imapPort, imapSecure, smtpHost, smtpPort, smtpSecure)
	if err := d.Validate(); err != nil {
		return provider.Descriptor{}, mailerr.New(mailerr.Config, op, err)
	}
	return d, nil
}

func checkCredentials(op, email, secret string, desc provider.Descriptor) error {
	if strings.TrimSpace(email) == "" || secret == "" {
		return mailerr.Configf(op, "email and password are required")
	}
	if err := desc.Validate(); err != nil {
		return mailerr.New(mailerr.Config, op, fmt.Errorf("provider: %w", err))
	}
	return nil
}

// TestConnection opens and closes both sessions with the given credentials. Nothing is persisted.
func (e *Engine) TestConnection(ctx context.Context, email, secret string, desc provider.Descriptor) error {
	if err := checkCredentials("test connection", email, secret, desc); err != nil {
		return err
	}
	return e.verify(ctx, account.New(email, secret, "", desc))
}

func (e *Engine) verify(ctx context.Context, acct *account.Account) error {
	r, err := e.Sessions.OpenRetrieval(ctx, acct)
	if err != nil {
		return err
	}
	if err := session.Close(r); err != nil {
		log.Debug().Str("module", "engine").Err(err).Msg("Closing imap session")
	}
	s, err := e.Sessions.OpenSubmission(ctx, acct)
	if err != nil {
		return err
	}
	if err := session.Close(s); err != nil {
		log.Debug().Str("module", "engine").Err(err).Msg("Closing smtp session")
	}
	return nil
}

// AddAccount verifies the credentials against both servers, then persists the account. A failed
// verification writes nothing.
func (e *Engine) AddAccount(
	ctx context.Context,
	email, secret, displayName string,
	desc provider.Descriptor,
) (account.View, error) {
	const op = "add account"
	if err := checkCredentials(op, email, secret, desc); err != nil {
		return account.View{}, err
	}
	acct := account.New(strings.TrimSpace(email), secret, displayName, desc)
	if err := e.verify(ctx, acct); err != nil {
		return account.View{}, err
	}
	if err := e.Store.SaveAccount(acct); err != nil {
		return account.View{}, mailerr.New(mailerr.Persistence, op, err)
	}
	log.Info().Str("module", "engine").Str("account", acct.ID).Str("email", acct.Email).
		Msg("Added account")
	return acct.View(), nil
}

// ListAccounts returns every stored account, oldest first.
func (e *Engine) ListAccounts() ([]account.View, error) {
	accts, err := e.Store.ListAccounts()
	if err != nil {
		return nil, mailerr.New(mailerr.Persistence, "list accounts", err)
	}
	views := make([]account.View, len(accts))
	for i, a := range accts {
		views[i] = a.View()
	}
	return views, nil
}

// GetAccount returns one account. A missing account yields storage.ErrNotExist.
func (e *Engine) GetAccount(id string) (account.View, error) {
	acct, err := e.loadAccount(id)
	if err != nil {
		return account.View{}, err
	}
	return acct.View(), nil
}

func (e *Engine) loadAccount(id string) (*account.Account, error) {
	const op = "load account"
	acct, err := e.Store.LoadAccount(id)
	switch {
	case err == nil:
		return acct, nil
	case errors.Is(err, storage.ErrNotExist):
		return nil, fmt.Errorf("account %s: %w", id, storage.ErrNotExist)
	case errors.Is(err, storage.ErrInvalidID):
		return nil, mailerr.New(mailerr.Config, op, err)
	}
	return nil, mailerr.New(mailerr.Persistence, op, err)
}

// Sync fetches the last limit messages of folder and records the sync time on the account.
func (e *Engine) Sync(ctx context.Context, accountID, folder string, limit int) ([]*message.Message, error) {
	msgs, err := e.sync(ctx, accountID, folder, limit)
	if err != nil {
		expSyncFailures.Add(1)
		return nil, err
	}
	expSyncs.Add(1)
	expFetched.Add(int64(len(msgs)))
	return msgs, nil
}

func (e *Engine) sync(ctx context.Context, accountID, folder string, limit int) ([]*message.Message, error) {
	if folder == "" {
		folder = e.Defaults.Folder
	}
	if limit <= 0 {
		limit = e.Defaults.Limit
	}
	acct, err := e.loadAccount(accountID)
	if err != nil {
		return nil, err
	}
	r, err := e.Sessions.OpenRetrieval(ctx, acct)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := session.Close(r); err != nil {
			log.Debug().Str("module", "engine").Err(err).Msg("Closing imap session")
		}
	}()

	msgs, err := e.pipeline.Fetch(ctx, r, acct, folder, limit)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	acct.Synced(now)
	if err := e.Store.SaveAccount(acct); err != nil {
		return nil, mailerr.New(mailerr.Persistence, "record sync", err)
	}
	if e.Extensions != nil {
		e.Extensions.Events.AfterAccountSynced.Emit(&event.SyncSummary{
			AccountID: acct.ID,
			Email:     acct.Email,
			Folder:    folder,
			Fetched:   len(msgs),
			Time:      now.UTC(),
		})
	}
	return msgs, nil
}

// ListMessages returns the stored messages of an account, newest first. No network access.
func (e *Engine) ListMessages(accountID string) ([]*message.Message, error) {
	if _, err := e.loadAccount(accountID); err != nil {
		return nil, err
	}
	msgs, err := e.Store.ListMessages(accountID)
	if err != nil {
		return nil, mailerr.New(mailerr.Persistence, "list messages", err)
	}
	return msgs, nil
}

// GetMessage returns one stored message. A missing message yields storage.ErrNotExist.
func (e *Engine) GetMessage(accountID, messageID string) (*message.Message, error) {
	m, err := e.Store.LoadMessage(accountID, messageID)
	if err != nil {
		return nil, messageError("load message", err)
	}
	return m, nil
}

// GetSource returns the raw source of a stored message.
func (e *Engine) GetSource(accountID, messageID string) ([]byte, error) {
	raw, err := e.Store.LoadRaw(accountID, messageID)
	if err != nil {
		return nil, messageError("load message source", err)
	}
	return raw, nil
}

func messageError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotExist):
		return err
	case errors.Is(err, storage.ErrInvalidID):
		return mailerr.New(mailerr.Config, op, err)
	}
	return mailerr.New(mailerr.Persistence, op, err)
}

// Send submits out from the account. The message is validated before any connection is made.
func (e *Engine) Send(ctx context.Context, accountID string, out *message.Outbound) (string, error) {
	id, err := e.send(ctx, accountID, out)
	if err != nil {
		expSendFailures.Add(1)
		return "", err
	}
	expSent.Add(1)
	return id, nil
}

func (e *Engine) send(ctx context.Context, accountID string, out *message.Outbound) (string, error) {
	if err := dispatch.Validate(out); err != nil {
		return "", err
	}
	acct, err := e.loadAccount(accountID)
	if err != nil {
		return "", err
	}
	s, err := e.Sessions.OpenSubmission(ctx, acct)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := session.Close(s); err != nil {
			log.Debug().Str("module", "engine").Err(err).Msg("Closing smtp session")
		}
	}()

	id, err := dispatch.Send(ctx, s, acct, out)
	if err != nil {
		return "", err
	}
	if e.Extensions != nil {
		e.Extensions.Events.AfterMessageSent.Emit(&event.SentMessage{
			AccountID: acct.ID,
			MessageID: id,
			From:      message.Address{Name: acct.DisplayName, Address: acct.Email}.Mail(),
			To:        message.MailList(out.To),
			Subject:   out.Subject,
		})
	}
	return id, nil
}

// ListAll returns the newest limit messages across every account.
func (e *Engine) ListAll(limit int) ([]*message.Message, error) {
	if limit <= 0 {
		limit = e.Defaults.ListLimit
	}
	accts, err := e.Store.ListAccounts()
	if err != nil {
		return nil, mailerr.New(mailerr.Persistence, "list accounts", err)
	}
	all := make([]*message.Message, 0)
	for _, a := range accts {
		msgs, err := e.Store.ListMessages(a.ID)
		if err != nil {
			log.Warn().Str("module", "engine").Str("account", a.ID).Err(err).
				Msg("Skipping unreadable account messages")
			continue
		}
		all = append(all, msgs...)
	}
	storage.SortByDate(all)
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
