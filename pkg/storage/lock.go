package storage

import (
	"strconv"
	"sync"

	"github.com/mailmount/mailmount/pkg/stringutil"
)

// HashLock holds a fixed table of locks indexed by the first three hex digits of a hash.
type HashLock [4096]sync.RWMutex

// Get returns the lock for a hex hash, or nil when the hash is too short or not hex.
func (h *HashLock) Get(hash string) *sync.RWMutex {
	if len(hash) < 3 {
		return nil
	}
	i, err := strconv.ParseInt(hash[0:3], 16, 0)
	if err != nil {
		return nil
	}
	return &h[i]
}

// For returns the lock guarding an account's records.
func (h *HashLock) For(accountID string) *sync.RWMutex {
	return h.Get(stringutil.HashID(accountID))
}
