// Package account defines the configured mailbox record. Account carries the credential secret and
// never leaves the engine; View is the form handed to every external boundary.
package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailmount/mailmount/pkg/policy"
	"github.com/mailmount/mailmount/pkg/provider"
)

// Account is a configured mailbox including its credential secret.
type Account struct {
	ID          string              `json:"id"`
	Email       string              `json:"email"`
	Secret      string              `json:"password"`
	Provider    provider.Descriptor `json:"provider"`
	DisplayName string              `json:"displayName"`
	CreatedAt   time.Time           `json:"createdAt"`
	LastSync    *time.Time          `json:"lastSync,omitempty"`
}

// View is an Account without its secret.
type View struct {
	ID          string              `json:"id"`
	Email       string              `json:"email"`
	Provider    provider.Descriptor `json:"provider"`
	DisplayName string              `json:"displayName"`
	CreatedAt   time.Time           `json:"createdAt"`
	LastSync    *time.Time          `json:"lastSync,omitempty"`
}

// New creates an account with a fresh identifier. An empty displayName defaults to the local part of
// the email address.
func New(email, secret, displayName string, desc provider.Descriptor) *Account {
	return &Account{
		ID:          uuid.NewString(),
		Email:       email,
		Secret:      secret,
		Provider:    desc,
		DisplayName: policy.DisplayName(displayName, email),
		CreatedAt:   time.Now().UTC(),
	}
}

// View strips the secret.
func (a *Account) View() View {
	v := View{
		ID:          a.ID,
		Email:       a.Email,
		Provider:    a.Provider,
		DisplayName: a.DisplayName,
		CreatedAt:   a.CreatedAt,
	}
	if a.LastSync != nil {
		t := *a.LastSync
		v.LastSync = &t
	}
	return v
}

// Synced records a successful sync at time t.
func (a *Account) Synced(t time.Time) {
	t = t.UTC()
	a.LastSync = &t
}

// Validate checks a record read back from storage.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("account id is empty")
	}
	if a.Email == "" {
		return fmt.Errorf("account %s: email is empty", a.ID)
	}
	if a.CreatedAt.IsZero() {
		return fmt.Errorf("account %s: creation time is missing", a.ID)
	}
	if err := a.Provider.Validate(); err != nil {
		return fmt.Errorf("account %s: provider: %w", a.ID, err)
	}
	return nil
}
