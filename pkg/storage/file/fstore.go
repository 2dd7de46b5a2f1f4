// Package file implements a filesystem backed store. The layout under the configured path is:
//
//	accounts/<account>.json
//	emails/<account>/<message>.json
//	emails/<account>/<message>.eml
//	attachments/<account>/<message>/<attachment>_<filename>
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/storage"
)

const (
	accountsDir    = "accounts"
	emailsDir      = "emails"
	attachmentsDir = "attachments"
	recordExt      = ".json"
	rawExt         = ".eml"
)

// Store implements storage.Store on the local filesystem.
type Store struct {
	hashLock storage.HashLock
	path     string
}

var _ storage.Store = &Store{}

// New creates a file store rooted at the 'path' parameter, creating the directory tree if needed.
func New(cfg config.Storage) (storage.Store, error) {
	path := cfg.Params["path"]
	if path == "" {
		return nil, errors.New("'path' parameter not specified")
	}
	for _, dir := range []string{accountsDir, emailsDir, attachmentsDir} {
		p := filepath.Join(path, dir)
		if err := os.MkdirAll(p, 0770); err != nil {
			log.Error().Str("module", "storage").Str("path", p).Err(err).
				Msg("Error creating dir")
			return nil, err
		}
	}
	return &Store{path: path}, nil
}

// SaveAccount writes the account record.
func (fs *Store) SaveAccount(a *account.Account) error {
	if err := storage.ValidateID(a.ID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(fs.accountPath(a.ID), data)
}

// LoadAccount reads and validates the account record.
func (fs *Store) LoadAccount(id string) (*account.Account, error) {
	if err := storage.ValidateID(id); err != nil {
		return nil, err
	}
	a := &account.Account{}
	if err := readRecord(fs.accountPath(id), a); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if a.ID != id {
		return nil, fmt.Errorf("account record %s holds id %s", id, a.ID)
	}
	return a, nil
}

// ListAccounts reads every account record, skipping those that fail to load.
func (fs *Store) ListAccounts() ([]*account.Account, error) {
	ids, err := recordIDs(filepath.Join(fs.path, accountsDir), recordExt)
	if err != nil {
		return nil, err
	}
	accts := make([]*account.Account, 0, len(ids))
	for _, id := range ids {
		a, err := fs.LoadAccount(id)
		if err != nil {
			log.Warn().Str("module", "storage").Str("account", id).Err(err).
				Msg("Skipping unreadable account record")
			continue
		}
		accts = append(accts, a)
	}
	storage.SortByCreation(accts)
	return accts, nil
}

// SaveMessage writes the structured record and records its path in m.JSONPath.
func (fs *Store) SaveMessage(m *message.Message) (string, error) {
	if err := checkIDs(m.AccountID, m.ID); err != nil {
		return "", err
	}
	path := fs.messagePath(m.AccountID, m.ID, recordExt)
	m.JSONPath = path
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	l := fs.hashLock.For(m.AccountID)
	l.Lock()
	defer l.Unlock()
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveRaw writes the original message bytes.
func (fs *Store) SaveRaw(accountID, messageID string, raw []byte) (string, error) {
	if err := checkIDs(accountID, messageID); err != nil {
		return "", err
	}
	path := fs.messagePath(accountID, messageID, rawExt)
	if err := writeFile(path, raw); err != nil {
		return "", err
	}
	return path, nil
}

// SaveAttachment writes an attachment payload. The attachment id prefix keeps equal filenames
// within one message apart.
func (fs *Store) SaveAttachment(
	accountID, messageID, attachmentID, filename string,
	content []byte,
) (string, error) {
	if err := checkIDs(accountID, messageID, attachmentID); err != nil {
		return "", err
	}
	path := filepath.Join(fs.path, attachmentsDir, accountID, messageID,
		attachmentID+"_"+storage.SafeFilename(filename))
	if err := writeFile(path, content); err != nil {
		return "", err
	}
	return path, nil
}

// LoadMessage reads and validates a structured record.
func (fs *Store) LoadMessage(accountID, messageID string) (*message.Message, error) {
	if err := checkIDs(accountID, messageID); err != nil {
		return nil, err
	}
	l := fs.hashLock.For(accountID)
	l.RLock()
	defer l.RUnlock()
	return fs.loadMessage(accountID, messageID)
}

func (fs *Store) loadMessage(accountID, messageID string) (*message.Message, error) {
	m := &message.Message{}
	if err := readRecord(fs.messagePath(accountID, messageID, recordExt), m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.AccountID != accountID || m.ID != messageID {
		return nil, fmt.Errorf("message record %s/%s holds %s/%s",
			accountID, messageID, m.AccountID, m.ID)
	}
	return m, nil
}

// LoadRaw reads the original message bytes.
func (fs *Store) LoadRaw(accountID, messageID string) ([]byte, error) {
	if err := checkIDs(accountID, messageID); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(fs.messagePath(accountID, messageID, rawExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotExist
	}
	return b, err
}

// ListMessages reads every structured record for the account, newest first.
func (fs *Store) ListMessages(accountID string) ([]*message.Message, error) {
	if err := storage.ValidateID(accountID); err != nil {
		return nil, err
	}
	l := fs.hashLock.For(accountID)
	l.RLock()
	defer l.RUnlock()
	ids, err := recordIDs(filepath.Join(fs.path, emailsDir, accountID), recordExt)
	if err != nil {
		return nil, err
	}
	msgs := make([]*message.Message, 0, len(ids))
	for _, id := range ids {
		m, err := fs.loadMessage(accountID, id)
		if err != nil {
			log.Warn().Str("module", "storage").Str("account", accountID).Str("id", id).Err(err).
				Msg("Skipping unreadable message record")
			continue
		}
		msgs = append(msgs, m)
	}
	storage.SortByDate(msgs)
	return msgs, nil
}

func (fs *Store) accountPath(id string) string {
	return filepath.Join(fs.path, accountsDir, id+recordExt)
}

func (fs *Store) messagePath(accountID, messageID, ext string) string {
	return filepath.Join(fs.path, emailsDir, accountID, messageID+ext)
}

func checkIDs(ids ...string) error {
	for _, id := range ids {
		if err := storage.ValidateID(id); err != nil {
			return err
		}
	}
	return nil
}

// recordIDs lists the base names of files in dir with the given extension. A missing dir is empty.
func recordIDs(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	return ids, nil
}

// readRecord decodes the JSON file at path into v.
func readRecord(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return storage.ErrNotExist
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeFile replaces path with data by writing a temporary sibling and renaming it into place, so
// readers never observe a partial record.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0770); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
