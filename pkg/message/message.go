// Package message contains the structured form of fetched and outbound mail.
package message

import (
	"errors"
	"fmt"
	"net/mail"
	"time"
)

// Categories assigned during fetch.
const (
	CategoryPrimary    = "Primary"
	CategoryPromotions = "Promotions"
	CategoryWork       = "Work"
	CategoryFinance    = "Finance"
)

// Address is a named mailbox address.
type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Mail converts to a net/mail address.
func (a Address) Mail() *mail.Address {
	return &mail.Address{Name: a.Name, Address: a.Address}
}

// FromMail converts a net/mail address list, dropping nil entries. The result is never nil.
func FromMail(list []*mail.Address) []Address {
	out := make([]Address, 0, len(list))
	for _, a := range list {
		if a != nil {
			out = append(out, Address{Name: a.Name, Address: a.Address})
		}
	}
	return out
}

// MailList converts an address list into net/mail form.
func MailList(list []Address) []*mail.Address {
	out := make([]*mail.Address, len(list))
	for i, a := range list {
		out[i] = a.Mail()
	}
	return out
}

// Body holds the plain text and HTML variants, either of which may be empty.
type Body struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// Attachment describes one attachment or inline part. Path is empty when no payload was extracted.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	ContentID   string `json:"cid,omitempty"`
	Path        string `json:"path,omitempty"`
}

// Message is a fetched message as persisted in the store.
type Message struct {
	ID          string              `json:"id"`
	MessageID   string              `json:"messageId"`
	AccountID   string              `json:"accountId"`
	Subject     string              `json:"subject"`
	From        []Address           `json:"from"`
	To          []Address           `json:"to"`
	CC          []Address           `json:"cc"`
	BCC         []Address           `json:"bcc"`
	Date        time.Time           `json:"date"`
	Body        Body                `json:"body"`
	Attachments []Attachment        `json:"attachments"`
	Headers     map[string][]string `json:"headers"`
	Folder      string              `json:"folder"`
	Flags       []string            `json:"flags"`
	UID         uint32              `json:"uid"`
	Size        int64               `json:"size"`
	Read        bool                `json:"isRead"`
	Starred     bool                `json:"isStarred"`
	Important   bool                `json:"isImportant"`
	Category    string              `json:"category"`
	JSONPath    string              `json:"jsonPath"`
	EMLPath     string              `json:"emlPath"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// Validate checks a record read back from storage.
func (m *Message) Validate() error {
	if m.ID == "" {
		return errors.New("message id is empty")
	}
	if m.AccountID == "" {
		return fmt.Errorf("message %s: account id is empty", m.ID)
	}
	if m.Date.IsZero() {
		return fmt.Errorf("message %s: date is missing", m.ID)
	}
	for i, a := range m.Attachments {
		if a.ID == "" {
			return fmt.Errorf("message %s: attachment %d has no id", m.ID, i)
		}
	}
	return nil
}

// FromAddress returns the first sender address, or "" if there is none.
func (m *Message) FromAddress() string {
	if len(m.From) == 0 {
		return ""
	}
	return m.From[0].Address
}

// OutboundAttachment is an attachment payload to be sent.
type OutboundAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

// Outbound is a message to be submitted. It exists only for the duration of a send.
type Outbound struct {
	To          []Address            `json:"to"`
	CC          []Address            `json:"cc"`
	BCC         []Address            `json:"bcc"`
	Subject     string               `json:"subject"`
	Text        string               `json:"text"`
	HTML        string               `json:"html"`
	Attachments []OutboundAttachment `json:"attachments"`
	InReplyTo   string               `json:"inReplyTo"`
	References  []string             `json:"references"`
	ReplyTo     *Address             `json:"replyTo,omitempty"`
}

// Recipients returns the envelope recipient addresses: To, then Cc, then Bcc.
func (o *Outbound) Recipients() []string {
	rcpts := make([]string, 0, len(o.To)+len(o.CC)+len(o.BCC))
	for _, list := range [][]Address{o.To, o.CC, o.BCC} {
		for _, a := range list {
			rcpts = append(rcpts, a.Address)
		}
	}
	return rcpts
}
