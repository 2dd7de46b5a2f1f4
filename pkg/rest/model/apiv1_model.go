// Package model holds the JSON wire types of the mailmount API.
package model

import (
	"time"
)

// JSONEndpointV1 is the host and port of one protocol.
type JSONEndpointV1 struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Secure bool   `json:"secure"`
}

// JSONProviderV1 describes how to reach a mail provider.
type JSONProviderV1 struct {
	Name string         `json:"name"`
	Type string         `json:"type"`
	IMAP JSONEndpointV1 `json:"imap"`
	SMTP JSONEndpointV1 `json:"smtp"`
}

// JSONProvidersV1 is the predefined provider table.
type JSONProvidersV1 struct {
	Providers map[string]*JSONProviderV1 `json:"providers"`
	Success   bool                       `json:"success"`
}

// JSONDetectRequestV1 asks for the provider of an email address.
type JSONDetectRequestV1 struct {
	Email string `json:"email"`
}

// JSONDetectV1 is the detected provider; Provider is null when the domain is unknown.
type JSONDetectV1 struct {
	Key      string          `json:"key,omitempty"`
	Provider *JSONProviderV1 `json:"provider"`
	Success  bool            `json:"success"`
}

// JSONCustomProviderRequestV1 carries user supplied endpoints.
type JSONCustomProviderRequestV1 struct {
	Name       string `json:"name"`
	IMAPHost   string `json:"imapHost"`
	IMAPPort   int    `json:"imapPort"`
	IMAPSecure bool   `json:"imapSecure"`
	SMTPHost   string `json:"smtpHost"`
	SMTPPort   int    `json:"smtpPort"`
	SMTPSecure bool   `json:"smtpSecure"`
}

// JSONProviderResultV1 wraps a single provider.
type JSONProviderResultV1 struct {
	Provider *JSONProviderV1 `json:"provider"`
	Success  bool            `json:"success"`
}

// JSONCredentialsV1 is used to test or add an account. The provider is given either in full or by
// the key of a predefined entry.
type JSONCredentialsV1 struct {
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	DisplayName string          `json:"displayName,omitempty"`
	Provider    *JSONProviderV1 `json:"provider,omitempty"`
	ProviderKey string          `json:"providerKey,omitempty"`
}

// JSONAccountV1 is an account as exposed over the API. It never carries the password.
type JSONAccountV1 struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"displayName"`
	Provider    JSONProviderV1 `json:"provider"`
	CreatedAt   time.Time      `json:"createdAt"`
	LastSync    *time.Time     `json:"lastSync,omitempty"`
}

// JSONAccountResultV1 wraps a single account.
type JSONAccountResultV1 struct {
	Account *JSONAccountV1 `json:"account"`
	Success bool           `json:"success"`
}

// JSONAccountsV1 lists accounts.
type JSONAccountsV1 struct {
	Accounts []*JSONAccountV1 `json:"accounts"`
	Success  bool             `json:"success"`
}

// JSONStatusV1 reports success of an operation without a payload.
type JSONStatusV1 struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// JSONSyncRequestV1 selects what to sync. Zero values take the server defaults.
type JSONSyncRequestV1 struct {
	Folder string `json:"folder,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// JSONAddressV1 is a named mailbox address.
type JSONAddressV1 struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// JSONAttachmentV1 describes an attachment. Its payload is not inlined.
type JSONAttachmentV1 struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	ContentID   string `json:"cid,omitempty"`
}

// JSONMessageBodyV1 contains the Text and HTML versions of the message body
type JSONMessageBodyV1 struct {
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

// JSONMessageV1 is a stored message.
type JSONMessageV1 struct {
	ID          string              `json:"id"`
	MessageID   string              `json:"messageId"`
	AccountID   string              `json:"accountId"`
	Subject     string              `json:"subject"`
	From        []JSONAddressV1     `json:"from"`
	To          []JSONAddressV1     `json:"to"`
	CC          []JSONAddressV1     `json:"cc"`
	BCC         []JSONAddressV1     `json:"bcc"`
	Date        time.Time           `json:"date"`
	Body        JSONMessageBodyV1   `json:"body"`
	Attachments []*JSONAttachmentV1 `json:"attachments"`
	Headers     map[string][]string `json:"headers"`
	Folder      string              `json:"folder"`
	Flags       []string            `json:"flags"`
	UID         uint32              `json:"uid"`
	Size        int64               `json:"size"`
	Read        bool                `json:"read"`
	Starred     bool                `json:"starred"`
	Important   bool                `json:"important"`
	Category    string              `json:"category"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// JSONMessagesV1 lists messages.
type JSONMessagesV1 struct {
	Emails  []*JSONMessageV1 `json:"emails"`
	Total   int              `json:"total"`
	Success bool             `json:"success"`
}

// JSONSyncResultV1 holds the messages fetched by a sync, newest first.
type JSONSyncResultV1 struct {
	Emails  []*JSONMessageV1 `json:"emails"`
	Synced  int              `json:"synced"`
	Success bool             `json:"success"`
}

// JSONMessageResultV1 wraps a single message.
type JSONMessageResultV1 struct {
	Email   *JSONMessageV1 `json:"email"`
	Success bool           `json:"success"`
}

// JSONOutboundAttachmentV1 is an attachment to send. Content is base64 in JSON.
type JSONOutboundAttachmentV1 struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

// JSONSendRequestV1 is a message to submit.
type JSONSendRequestV1 struct {
	To          []JSONAddressV1             `json:"to"`
	CC          []JSONAddressV1             `json:"cc,omitempty"`
	BCC         []JSONAddressV1             `json:"bcc,omitempty"`
	Subject     string                      `json:"subject"`
	Body        JSONMessageBodyV1           `json:"body"`
	Attachments []*JSONOutboundAttachmentV1 `json:"attachments,omitempty"`
	ReplyTo     string                      `json:"replyTo,omitempty"`
	InReplyTo   string                      `json:"inReplyTo,omitempty"`
	References  []string                    `json:"references,omitempty"`
}

// JSONSendResultV1 carries the Message-ID of a submitted message.
type JSONSendResultV1 struct {
	MessageID string `json:"messageId"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
}

// JSONMessageHeaderV1 contains the basic header data for a message
type JSONMessageHeaderV1 struct {
	AccountID   string    `json:"accountId"`
	ID          string    `json:"id"`
	Folder      string    `json:"folder"`
	From        string    `json:"from"`
	To          []string  `json:"to"`
	Subject     string    `json:"subject"`
	Date        time.Time `json:"date"`
	PosixMillis int64     `json:"posix-millis"`
	Size        int64     `json:"size"`
	Category    string    `json:"category"`
	Read        bool      `json:"read"`
}

// JSONMonitorEventV1 is a monitor socket event.
type JSONMonitorEventV1 struct {
	// Event variant: `message-stored`.
	Variant string               `json:"variant"`
	Header  *JSONMessageHeaderV1 `json:"header"`
}
