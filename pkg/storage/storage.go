// Package storage contains implementation independent datastore logic
package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/message"
)

var (
	// ErrNotExist indicates the requested account or message does not exist
	ErrNotExist = errors.New("does not exist")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key
	ErrInvalidID = errors.New("invalid identifier")

	// Constructors tracks registered storage constructors
	Constructors = make(map[string]func(config.Storage) (Store, error))
)

// AccountStore persists configured accounts, including their secrets.
type AccountStore interface {
	// SaveAccount writes or overwrites the account record.
	SaveAccount(a *account.Account) error
	LoadAccount(id string) (*account.Account, error)
	// ListAccounts returns every readable account ordered by creation time. Unreadable records are
	// skipped.
	ListAccounts() ([]*account.Account, error)
}

// MessageStore persists fetched messages in structured and raw form, along with attachment payloads.
type MessageStore interface {
	// SaveMessage writes or overwrites the structured record, returning its location.
	SaveMessage(m *message.Message) (string, error)
	// SaveRaw writes the original message bytes verbatim, returning their location.
	SaveRaw(accountID, messageID string, raw []byte) (string, error)
	// SaveAttachment writes an attachment payload under the message, returning its location.
	SaveAttachment(accountID, messageID, attachmentID, filename string, content []byte) (string, error)
	LoadMessage(accountID, messageID string) (*message.Message, error)
	LoadRaw(accountID, messageID string) ([]byte, error)
	// ListMessages returns the readable messages for an account, newest first. Unreadable records
	// are skipped.
	ListMessages(accountID string) ([]*message.Message, error)
}

// Store is the combined account and message store.
type Store interface {
	AccountStore
	MessageStore
}

// FromConfig creates an instance of the Store based on the provided configuration.
func FromConfig(c config.Storage) (store Store, err error) {
	if cf := Constructors[c.Type]; cf != nil {
		return cf(c)
	}
	return nil, fmt.Errorf("unknown storage type configured: %q", c.Type)
}

// ValidateID rejects identifiers that are empty or could escape a storage directory.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// SortByDate orders messages newest first. Messages with equal dates keep their relative order.
func SortByDate(msgs []*message.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Date.After(msgs[j].Date)
	})
}

// SortByCreation orders accounts oldest first.
func SortByCreation(accts []*account.Account) {
	sort.SliceStable(accts, func(i, j int) bool {
		return accts[i].CreatedAt.Before(accts[j].CreatedAt)
	})
}

// SafeFilename reduces an attachment filename to a single path element.
func SafeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if name == "" {
		return "attachment"
	}
	return name
}
