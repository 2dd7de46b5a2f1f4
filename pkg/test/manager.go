package test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/dispatch"
	"github.com/mailmount/mailmount/pkg/engine"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/storage"
)

// ManagerStub is an in-memory engine.Manager. Any network operation fails with ConnectErr when it
// is set.
type ManagerStub struct {
	ConnectErr error

	mu       sync.Mutex
	accounts []*account.Account
	messages map[string][]*message.Message
	sources  map[string][]byte
	sent     []*message.Outbound
	syncs    []string
}

var _ engine.Manager = (*ManagerStub)(nil)

// NewManager creates an empty ManagerStub.
func NewManager() *ManagerStub {
	return &ManagerStub{
		messages: make(map[string][]*message.Message),
		sources:  make(map[string][]byte),
	}
}

// PutAccount stores acct without verification.
func (m *ManagerStub) PutAccount(acct *account.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts = append(m.accounts, acct)
}

// PutMessage stores msg and its raw source, keeping each account's list newest first.
func (m *ManagerStub) PutMessage(msg *message.Message, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := append(m.messages[msg.AccountID], msg)
	storage.SortByDate(msgs)
	m.messages[msg.AccountID] = msgs
	m.sources[msg.AccountID+"/"+msg.ID] = raw
}

// Sent returns the messages handed to Send.
func (m *ManagerStub) Sent() []*message.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*message.Outbound(nil), m.sent...)
}

// Syncs returns one "account/folder/limit" entry per Sync call.
func (m *ManagerStub) Syncs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.syncs...)
}

// Providers returns the predefined table.
func (m *ManagerStub) Providers() map[string]provider.Descriptor {
	return provider.All()
}

// DetectProvider looks the domain up in the predefined table.
func (m *ManagerStub) DetectProvider(email string) (string, *provider.Descriptor, error) {
	if strings.TrimSpace(email) == "" {
		return "", nil, mailerr.Configf("detect provider", "email address is required")
	}
	key, d, ok := provider.Detect(email)
	if !ok {
		return "", nil, nil
	}
	return key, &d, nil
}

// CustomProvider builds and validates a descriptor.
func (m *ManagerStub) CustomProvider(
	name string,
	imapHost string, imapPort int, imapSecure bool,
	smtpHost string, smtpPort int, smtpSecure bool,
) (provider.Descriptor, error) {
	d := provider.NewCustom(name, imapHost, imapPort, imapSecure, smtpHost, smtpPort, smtpSecure)
	if name == "" {
		return provider.Descriptor{}, mailerr.Configf("create custom provider", "name is required")
	}
	if err := d.Validate(); err != nil {
		return provider.Descriptor{}, mailerr.New(mailerr.Config, "create custom provider", err)
	}
	return d, nil
}

// TestConnection returns ConnectErr.
func (m *ManagerStub) TestConnection(ctx context.Context, email, secret string, desc provider.Descriptor) error {
	if email == "" || secret == "" {
		return mailerr.Configf("test connection", "email and password are required")
	}
	return m.ConnectErr
}

// AddAccount stores a new account unless ConnectErr is set.
func (m *ManagerStub) AddAccount(
	ctx context.Context,
	email, secret, displayName string,
	desc provider.Descriptor,
) (account.View, error) {
	if err := m.TestConnection(ctx, email, secret, desc); err != nil {
		return account.View{}, err
	}
	acct := account.New(email, secret, displayName, desc)
	m.PutAccount(acct)
	return acct.View(), nil
}

// ListAccounts returns views of the stored accounts in insertion order.
func (m *ManagerStub) ListAccounts() ([]account.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	views := make([]account.View, len(m.accounts))
	for i, a := range m.accounts {
		views[i] = a.View()
	}
	return views, nil
}

// GetAccount returns a stored account view.
func (m *ManagerStub) GetAccount(id string) (account.View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, err := m.find(id)
	if err != nil {
		return account.View{}, err
	}
	return acct.View(), nil
}

func (m *ManagerStub) find(id string) (*account.Account, error) {
	for _, a := range m.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, fmt.Errorf("account %s: %w", id, storage.ErrNotExist)
}

// Sync records the call and returns the newest limit stored messages of the account.
func (m *ManagerStub) Sync(ctx context.Context, accountID, folder string, limit int) ([]*message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, err := m.find(accountID)
	if err != nil {
		return nil, err
	}
	if m.ConnectErr != nil {
		return nil, m.ConnectErr
	}
	m.syncs = append(m.syncs, fmt.Sprintf("%s/%s/%d", accountID, folder, limit))
	acct.Synced(time.Now())
	msgs := m.messages[accountID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return append([]*message.Message{}, msgs...), nil
}

// ListMessages returns the stored messages of an account.
func (m *ManagerStub) ListMessages(accountID string) ([]*message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.find(accountID); err != nil {
		return nil, err
	}
	return append([]*message.Message{}, m.messages[accountID]...), nil
}

// GetMessage returns one stored message.
func (m *ManagerStub) GetMessage(accountID, messageID string) (*message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.messages[accountID] {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("message %s: %w", messageID, storage.ErrNotExist)
}

// GetSource returns the raw source of a stored message.
func (m *ManagerStub) GetSource(accountID, messageID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.sources[accountID+"/"+messageID]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", messageID, storage.ErrNotExist)
	}
	return raw, nil
}

// Send validates and records out.
func (m *ManagerStub) Send(ctx context.Context, accountID string, out *message.Outbound) (string, error) {
	if err := dispatch.Validate(out); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.find(accountID); err != nil {
		return "", err
	}
	if m.ConnectErr != nil {
		return "", m.ConnectErr
	}
	m.sent = append(m.sent, out)
	return fmt.Sprintf("<stub-%d@example.com>", len(m.sent)), nil
}

// ListAll merges every account's messages, newest first.
func (m *ManagerStub) ListAll(limit int) ([]*message.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*message.Message, 0)
	for _, msgs := range m.messages {
		all = append(all, msgs...)
	}
	storage.SortByDate(all)
	if limit <= 0 {
		limit = engine.DefaultListLimit
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
