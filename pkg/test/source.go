package test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mailmount/mailmount/pkg/fetch"
)

// SourceStub is an in-memory fetch.Source. Messages[i] has sequence number i+1.
type SourceStub struct {
	UIDValidity uint32
	Messages    []*fetch.RawMessage
	SelectErr   error
	FetchErr    error

	mu       sync.Mutex
	selected []string
	ranges   [][2]uint32
	closed   int
}

var _ fetch.Source = (*SourceStub)(nil)

// Select returns a mailbox holding the stub messages.
func (s *SourceStub) Select(ctx context.Context, folder string) (*fetch.Mailbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = append(s.selected, folder)
	if s.SelectErr != nil {
		return nil, s.SelectErr
	}
	return &fetch.Mailbox{Name: folder, Total: uint32(len(s.Messages)), UIDValidity: s.UIDValidity}, nil
}

// FetchRange calls fn for each stub message in the range.
func (s *SourceStub) FetchRange(
	ctx context.Context,
	start, end uint32,
	fn func(*fetch.RawMessage) error,
) error {
	s.mu.Lock()
	s.ranges = append(s.ranges, [2]uint32{start, end})
	s.mu.Unlock()
	if s.FetchErr != nil {
		return s.FetchErr
	}
	for seq := start; seq <= end && int(seq) <= len(s.Messages); seq++ {
		raw := *s.Messages[seq-1]
		raw.SeqNum = seq
		if err := fn(&raw); err != nil {
			return err
		}
	}
	return nil
}

// Close counts calls.
func (s *SourceStub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

// Ranges returns the sequence ranges requested so far.
func (s *SourceStub) Ranges() [][2]uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]uint32(nil), s.ranges...)
}

// Selected returns the folders selected so far.
func (s *SourceStub) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selected...)
}

// Closed returns how many times Close was called.
func (s *SourceStub) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// RawMessage wraps a literal as a server message.
func RawMessage(uid uint32, literal string, flags ...string) *fetch.RawMessage {
	return &fetch.RawMessage{UID: uid, Flags: flags, Size: int64(len(literal)), Literal: []byte(literal)}
}

// MIMEMessage renders a minimal single part message. Empty header values are omitted.
func MIMEMessage(from, subject, date, body string) string {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	b.WriteString("To: me@example.com\r\n")
	if subject != "" {
		fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	}
	if date != "" {
		fmt.Fprintf(&b, "Date: %s\r\n", date)
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
