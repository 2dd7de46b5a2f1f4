package test

import (
	"errors"
	"sync"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/storage"
	"github.com/mailmount/mailmount/pkg/storage/mem"
)

// ErrStoreStub is returned by StoreStub operations configured to fail.
var ErrStoreStub = errors.New("store stub failure")

// StoreStub wraps a memory store, counting writes and failing the operations named in Fail.
type StoreStub struct {
	storage.Store
	mu     sync.Mutex
	Fail   map[string]bool
	writes map[string]int
}

// NewStore creates a new StoreStub backed by an empty memory store.
func NewStore() *StoreStub {
	s, _ := mem.New(config.Storage{})
	return &StoreStub{
		Store:  s,
		Fail:   make(map[string]bool),
		writes: make(map[string]int),
	}
}

// Writes returns how many times the named write operation succeeded.
func (s *StoreStub) Writes(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[op]
}

func (s *StoreStub) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail[op] {
		return ErrStoreStub
	}
	s.writes[op]++
	return nil
}

// SaveAccount records the write, then delegates.
func (s *StoreStub) SaveAccount(a *account.Account) error {
	if err := s.record("SaveAccount"); err != nil {
		return err
	}
	return s.Store.SaveAccount(a)
}

// SaveMessage records the write, then delegates.
func (s *StoreStub) SaveMessage(m *message.Message) (string, error) {
	if err := s.record("SaveMessage"); err != nil {
		return "", err
	}
	return s.Store.SaveMessage(m)
}

// SaveRaw records the write, then delegates.
func (s *StoreStub) SaveRaw(accountID, messageID string, raw []byte) (string, error) {
	if err := s.record("SaveRaw"); err != nil {
		return "", err
	}
	return s.Store.SaveRaw(accountID, messageID, raw)
}

// SaveAttachment records the write, then delegates.
func (s *StoreStub) SaveAttachment(
	accountID, messageID, attachmentID, filename string,
	content []byte,
) (string, error) {
	if err := s.record("SaveAttachment"); err != nil {
		return "", err
	}
	return s.Store.SaveAttachment(accountID, messageID, attachmentID, filename, content)
}
