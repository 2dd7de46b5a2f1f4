// Package dispatch renders outbound messages to MIME and hands them to a submission transport.
package dispatch

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime/v2"
	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/policy"
	"github.com/mailmount/mailmount/pkg/stringutil"
)

// Transport is an authenticated submission session.
type Transport interface {
	Send(ctx context.Context, from string, rcpts []string, msg io.Reader) error
}

// Validate rejects an outbound message that cannot be sent. It never touches the network.
func Validate(out *message.Outbound) error {
	const op = "validate message"
	if out == nil {
		return mailerr.Configf(op, "message is required")
	}
	if strings.TrimSpace(out.Subject) == "" {
		return mailerr.Configf(op, "subject is required")
	}
	err := policy.CheckRecipients(message.MailList(out.To), message.MailList(out.CC), message.MailList(out.BCC))
	return mailerr.New(mailerr.Config, op, err)
}

// Send builds the message for acct and submits it over t. It returns the Message-ID header of the
// submitted message.
func Send(ctx context.Context, t Transport, acct *account.Account, out *message.Outbound) (string, error) {
	if err := Validate(out); err != nil {
		return "", err
	}
	msgID, raw, err := Build(acct, out, time.Now())
	if err != nil {
		return "", err
	}
	logger := log.With().Str("module", "dispatch").Str("account", acct.ID).Str("id", msgID).Logger()
	logger.Debug().Str("to", stringutil.JoinAddresses(message.MailList(out.To))).Msg("Submitting message")

	if err := t.Send(ctx, acct.Email, out.Recipients(), bytes.NewReader(raw)); err != nil {
		if mailerr.KindOf(err) == mailerr.Unknown {
			err = mailerr.New(mailerr.Send, "submit message", err)
		}
		logger.Warn().Err(err).Msg("Submission failed")
		return "", err
	}
	logger.Info().Int("recipients", len(out.Recipients())).Msg("Message sent")
	return msgID, nil
}

// Build renders out as an RFC 5322 message from acct. Bcc recipients are left out of the headers.
func Build(acct *account.Account, out *message.Outbound, date time.Time) (msgID string, raw []byte, err error) {
	const op = "build message"
	msgID = "<" + uuid.NewString() + "@" + messageIDDomain(acct.Email) + ">"

	b := enmime.Builder().
		From(acct.DisplayName, acct.Email).
		Subject(out.Subject).
		Date(date).
		Header("Message-ID", msgID)
	for _, a := range out.To {
		b = b.To(a.Name, a.Address)
	}
	for _, a := range out.CC {
		b = b.CC(a.Name, a.Address)
	}
	for _, a := range out.BCC {
		b = b.BCC(a.Name, a.Address)
	}
	if out.ReplyTo != nil && out.ReplyTo.Address != "" {
		b = b.ReplyTo(out.ReplyTo.Name, out.ReplyTo.Address)
	}
	if out.InReplyTo != "" {
		b = b.Header("In-Reply-To", out.InReplyTo)
	}
	if len(out.References) > 0 {
		b = b.Header("References", strings.Join(out.References, " "))
	}
	if out.Text != "" || out.HTML == "" {
		b = b.Text([]byte(out.Text))
	}
	if out.HTML != "" {
		b = b.HTML([]byte(out.HTML))
	}
	for _, att := range out.Attachments {
		ctype := att.ContentType
		if ctype == "" {
			ctype = "application/octet-stream"
		}
		name := att.Filename
		if name == "" {
			name = "attachment"
		}
		b = b.AddAttachment(att.Content, ctype, name)
	}

	root, err := b.Build()
	if err != nil {
		return "", nil, mailerr.New(mailerr.Config, op, err)
	}
	var buf bytes.Buffer
	if err := root.Encode(&buf); err != nil {
		return "", nil, mailerr.New(mailerr.Send, op, err)
	}
	return msgID, buf.Bytes(), nil
}

func messageIDDomain(email string) string {
	if i := strings.LastIndexByte(email, '@'); i >= 0 && i < len(email)-1 {
		return email[i+1:]
	}
	return "mailmount.local"
}
