// Package event holds the payloads passed to extension listeners.
package event

import (
	"net/mail"
	"time"
)

// MessageMetadata describes a message that was just persisted.
type MessageMetadata struct {
	AccountID string
	ID        string
	Folder    string
	From      *mail.Address
	To        []*mail.Address
	Date      time.Time
	Subject   string
	Size      int64
	Category  string
	Read      bool
}

// CategoryRequest carries the inputs of the category heuristic and its verdict.
type CategoryRequest struct {
	AccountID string
	Folder    string
	From      *mail.Address
	Subject   string
	Category  string
}

// CategoryResult replaces the category computed by the heuristic.
type CategoryResult struct {
	Category string
}

// SyncSummary describes a completed sync of one folder.
type SyncSummary struct {
	AccountID string
	Email     string
	Folder    string
	Fetched   int
	Time      time.Time
}

// SentMessage describes a message handed to the submission server.
type SentMessage struct {
	AccountID string
	MessageID string
	From      *mail.Address
	To        []*mail.Address
	Subject   string
}
