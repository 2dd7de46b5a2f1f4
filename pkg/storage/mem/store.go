// Package mem implements an in-memory store, used for tests and throwaway instances.
package mem

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/storage"
)

// Store implements an in-memory account and message store. Records are held in encoded form so
// callers never share memory with the store.
type Store struct {
	sync.RWMutex
	accounts    map[string][]byte
	boxes       map[string]*mbox
	attachments map[string][]byte
}

type mbox struct {
	records map[string][]byte
	raw     map[string][]byte
}

var _ storage.Store = &Store{}

// New returns an empty memory store.
func New(cfg config.Storage) (storage.Store, error) {
	return &Store{
		accounts:    make(map[string][]byte),
		boxes:       make(map[string]*mbox),
		attachments: make(map[string][]byte),
	}, nil
}

// SaveAccount stores a copy of the account.
func (s *Store) SaveAccount(a *account.Account) error {
	if err := storage.ValidateID(a.ID); err != nil {
		return err
	}
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	s.accounts[a.ID] = b
	return nil
}

// LoadAccount returns a copy of the account.
func (s *Store) LoadAccount(id string) (*account.Account, error) {
	s.RLock()
	b, ok := s.accounts[id]
	s.RUnlock()
	if !ok {
		return nil, storage.ErrNotExist
	}
	a := &account.Account{}
	if err := json.Unmarshal(b, a); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAccounts returns copies of all valid accounts, oldest first.
func (s *Store) ListAccounts() ([]*account.Account, error) {
	s.RLock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	s.RUnlock()
	accts := make([]*account.Account, 0, len(ids))
	for _, id := range ids {
		if a, err := s.LoadAccount(id); err == nil {
			accts = append(accts, a)
		}
	}
	storage.SortByCreation(accts)
	return accts, nil
}

// SaveMessage stores a copy of the message.
func (s *Store) SaveMessage(m *message.Message) (string, error) {
	if err := storage.ValidateID(m.AccountID); err != nil {
		return "", err
	}
	if err := storage.ValidateID(m.ID); err != nil {
		return "", err
	}
	m.JSONPath = fmt.Sprintf("mem:emails/%s/%s.json", m.AccountID, m.ID)
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	s.withMailbox(m.AccountID, true, func(mb *mbox) {
		mb.records[m.ID] = b
	})
	return m.JSONPath, nil
}

// SaveRaw stores a copy of the original bytes.
func (s *Store) SaveRaw(accountID, messageID string, raw []byte) (string, error) {
	if err := storage.ValidateID(accountID); err != nil {
		return "", err
	}
	if err := storage.ValidateID(messageID); err != nil {
		return "", err
	}
	s.withMailbox(accountID, true, func(mb *mbox) {
		mb.raw[messageID] = append([]byte(nil), raw...)
	})
	return fmt.Sprintf("mem:emails/%s/%s.eml", accountID, messageID), nil
}

// SaveAttachment stores a copy of the payload.
func (s *Store) SaveAttachment(
	accountID, messageID, attachmentID, filename string,
	content []byte,
) (string, error) {
	for _, id := range []string{accountID, messageID, attachmentID} {
		if err := storage.ValidateID(id); err != nil {
			return "", err
		}
	}
	key := fmt.Sprintf("mem:attachments/%s/%s/%s_%s",
		accountID, messageID, attachmentID, storage.SafeFilename(filename))
	s.Lock()
	s.attachments[key] = append([]byte(nil), content...)
	s.Unlock()
	return key, nil
}

// Attachment returns the payload stored under a path returned by SaveAttachment.
func (s *Store) Attachment(path string) ([]byte, bool) {
	s.RLock()
	defer s.RUnlock()
	b, ok := s.attachments[path]
	return b, ok
}

// LoadMessage returns a copy of the message.
func (s *Store) LoadMessage(accountID, messageID string) (*message.Message, error) {
	var b []byte
	s.withMailbox(accountID, false, func(mb *mbox) {
		b = mb.records[messageID]
	})
	if b == nil {
		return nil, storage.ErrNotExist
	}
	m := &message.Message{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadRaw returns a copy of the original bytes.
func (s *Store) LoadRaw(accountID, messageID string) ([]byte, error) {
	var b []byte
	s.withMailbox(accountID, false, func(mb *mbox) {
		if raw, ok := mb.raw[messageID]; ok {
			b = append([]byte{}, raw...)
		}
	})
	if b == nil {
		return nil, storage.ErrNotExist
	}
	return b, nil
}

// ListMessages returns copies of the account's messages, newest first.
func (s *Store) ListMessages(accountID string) ([]*message.Message, error) {
	var ids []string
	s.withMailbox(accountID, false, func(mb *mbox) {
		for id := range mb.records {
			ids = append(ids, id)
		}
	})
	msgs := make([]*message.Message, 0, len(ids))
	for _, id := range ids {
		if m, err := s.LoadMessage(accountID, id); err == nil {
			msgs = append(msgs, m)
		}
	}
	storage.SortByDate(msgs)
	return msgs, nil
}

// withMailbox gives the caller exclusive access to the account's mailbox, creating it if
// writeable is true.
func (s *Store) withMailbox(accountID string, writeable bool, f func(mb *mbox)) {
	s.Lock()
	defer s.Unlock()
	mb := s.boxes[accountID]
	if mb == nil && writeable {
		mb = &mbox{
			records: make(map[string][]byte),
			raw:     make(map[string][]byte),
		}
		s.boxes[accountID] = mb
	}
	if mb != nil {
		f(mb)
	}
}
