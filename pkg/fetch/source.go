// Package fetch pulls a window of messages from a retrieval source, parses them, derives their
// metadata and persists them.
package fetch

import "context"

// Mailbox describes a selected folder.
type Mailbox struct {
	Name        string
	Total       uint32
	UIDValidity uint32
}

// RawMessage is one message as delivered by the server.
type RawMessage struct {
	SeqNum  uint32
	UID     uint32
	Flags   []string
	Size    int64
	Literal []byte
}

// Source is an open, authenticated retrieval session.
type Source interface {
	// Select opens folder without permitting changes to server state.
	Select(ctx context.Context, folder string) (*Mailbox, error)
	// FetchRange calls fn for each message with a sequence number in [start, end], oldest first.
	// An error returned by fn stops the fetch and is returned unchanged.
	FetchRange(ctx context.Context, start, end uint32, fn func(*RawMessage) error) error
}

// Window returns the sequence range holding the last limit messages of a folder with total
// messages. ok is false when the range is empty.
func Window(total uint32, limit int) (start, end uint32, ok bool) {
	if total == 0 || limit <= 0 {
		return 0, 0, false
	}
	start = 1
	if uint64(limit) < uint64(total) {
		start = total - uint32(limit) + 1
	}
	return start, total, true
}
