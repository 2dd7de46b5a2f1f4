package fetch

import (
	"bytes"
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/extension/event"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/storage"
	"github.com/mailmount/mailmount/pkg/stringutil"
)

// Placeholders for fields the source message lacks.
const (
	NoSubject          = "(No Subject)"
	DefaultFilename    = "attachment"
	DefaultContentType = "application/octet-stream"
	LocalDomain        = "mailmount.local"
)

const (
	flagSeen    = `\Seen`
	flagFlagged = `\Flagged`
)

// Pipeline fetches, parses and persists messages. Extensions may be nil.
type Pipeline struct {
	Store      storage.MessageStore
	Extensions *extension.Host
}

// Fetch stores the last limit messages of folder and returns them newest first. A message that
// fails to parse is logged and dropped; a storage failure aborts the fetch.
func (p *Pipeline) Fetch(
	ctx context.Context,
	src Source,
	acct *account.Account,
	folder string,
	limit int,
) ([]*message.Message, error) {
	logger := log.With().Str("module", "fetch").Str("account", acct.ID).Str("folder", folder).Logger()
	mbox, err := src.Select(ctx, folder)
	if err != nil {
		return nil, err
	}
	msgs := make([]*message.Message, 0)
	start, end, ok := Window(mbox.Total, limit)
	if !ok {
		logger.Debug().Uint32("total", mbox.Total).Msg("Nothing to fetch")
		return msgs, nil
	}
	logger.Debug().Uint32("start", start).Uint32("end", end).Msg("Fetching window")

	err = src.FetchRange(ctx, start, end, func(raw *RawMessage) error {
		m, parts, err := p.parse(acct, mbox, raw)
		if err != nil {
			logger.Warn().Err(err).Uint32("seq", raw.SeqNum).Uint32("uid", raw.UID).
				Msg("Dropping unparsable message")
			return nil
		}
		if err := p.persist(m, parts, raw.Literal, logger); err != nil {
			return err
		}
		msgs = append(msgs, m)
		p.emitStored(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	logger.Info().Int("count", len(msgs)).Msg("Fetched messages")
	return msgs, nil
}

// MessageID derives the local identifier of a server message. It is stable for as long as the
// folder keeps its UIDVALIDITY.
func MessageID(accountID, folder string, uidValidity, uid uint32) string {
	return stringutil.HashID(accountID, folder,
		strconv.FormatUint(uint64(uidValidity), 10), strconv.FormatUint(uint64(uid), 10))
}

// AttachmentID derives the identifier of the index'th attachment of a message.
func AttachmentID(messageID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(messageID+"/"+strconv.Itoa(index))).String()
}

// parse builds the message record. The returned parts hold the attachment payloads, index aligned
// with m.Attachments.
func (p *Pipeline) parse(
	acct *account.Account,
	mbox *Mailbox,
	raw *RawMessage,
) (m *message.Message, parts []*enmime.Part, err error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw.Literal))
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	m = &message.Message{
		ID:        MessageID(acct.ID, mbox.Name, mbox.UIDValidity, raw.UID),
		MessageID: env.GetHeader("Message-ID"),
		AccountID: acct.ID,
		Subject:   env.GetHeader("Subject"),
		From:      addressList(env, "From"),
		To:        addressList(env, "To"),
		CC:        addressList(env, "Cc"),
		BCC:       addressList(env, "Bcc"),
		Body:      message.Body{Text: env.Text, HTML: env.HTML},
		Headers:   make(map[string][]string),
		Folder:    mbox.Name,
		Flags:     append([]string{}, raw.Flags...),
		UID:       raw.UID,
		Size:      int64(len(raw.Literal)),
		Read:      slices.Contains(raw.Flags, flagSeen),
		Starred:   slices.Contains(raw.Flags, flagFlagged),
		CreatedAt: now,
	}
	if m.MessageID == "" {
		m.MessageID = "<" + uuid.NewString() + "@" + LocalDomain + ">"
	}
	if date, err := env.Date(); err == nil {
		m.Date = date.UTC()
	} else {
		m.Date = now
	}
	if env.Root != nil {
		for k, v := range env.Root.Header {
			m.Headers[k] = append([]string{}, v...)
		}
	}
	m.Category = p.categorize(acct.ID, mbox.Name, m, env.GetHeader("Subject"))
	m.Subject = subjectOrPlaceholder(m.Subject)

	parts = append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	m.Attachments = make([]message.Attachment, 0, len(parts))
	for i, part := range parts {
		att := message.Attachment{
			ID:          AttachmentID(m.ID, i),
			Filename:    part.FileName,
			ContentType: part.ContentType,
			Size:        int64(len(part.Content)),
			ContentID:   part.ContentID,
		}
		if att.Filename == "" {
			att.Filename = DefaultFilename
		}
		if att.ContentType == "" {
			att.ContentType = DefaultContentType
		}
		m.Attachments = append(m.Attachments, att)
	}
	return m, parts, nil
}

func subjectOrPlaceholder(s string) string {
	if s == "" {
		return NoSubject
	}
	return s
}

func addressList(env *enmime.Envelope, header string) []message.Address {
	list, err := env.AddressList(header)
	if err != nil {
		return []message.Address{}
	}
	return message.FromMail(list)
}

// categorize applies the keyword heuristic, then lets extensions override the verdict.
func (p *Pipeline) categorize(accountID, folder string, m *message.Message, subject string) string {
	category := Categorize(subject, m.FromAddress())
	if p.Extensions == nil {
		return category
	}
	req := &event.CategoryRequest{
		AccountID: accountID,
		Folder:    folder,
		Subject:   subject,
		Category:  category,
	}
	if len(m.From) > 0 {
		req.From = m.From[0].Mail()
	}
	if res := p.Extensions.Events.BeforeMessageCategorized.Emit(req); res != nil && res.Category != "" {
		return res.Category
	}
	return category
}

// persist writes attachments, then the raw source, then the structured record.
func (p *Pipeline) persist(m *message.Message, parts []*enmime.Part, raw []byte, logger zerolog.Logger) error {
	const op = "store message"
	for i := range m.Attachments {
		content := parts[i].Content
		if len(content) == 0 {
			continue
		}
		att := &m.Attachments[i]
		path, err := p.Store.SaveAttachment(m.AccountID, m.ID, att.ID, att.Filename, content)
		if err != nil {
			return mailerr.New(mailerr.Persistence, op, err)
		}
		att.Path = path
	}
	path, err := p.Store.SaveRaw(m.AccountID, m.ID, raw)
	if err != nil {
		return mailerr.New(mailerr.Persistence, op, err)
	}
	m.EMLPath = path
	if _, err := p.Store.SaveMessage(m); err != nil {
		return mailerr.New(mailerr.Persistence, op, err)
	}
	logger.Debug().Str("id", m.ID).Int("attachments", len(m.Attachments)).Msg("Stored message")
	return nil
}

func (p *Pipeline) emitStored(m *message.Message) {
	if p.Extensions == nil {
		return
	}
	meta := &event.MessageMetadata{
		AccountID: m.AccountID,
		ID:        m.ID,
		Folder:    m.Folder,
		To:        message.MailList(m.To),
		Date:      m.Date,
		Subject:   m.Subject,
		Size:      m.Size,
		Category:  m.Category,
		Read:      m.Read,
	}
	if len(m.From) > 0 {
		meta.From = m.From[0].Mail()
	}
	p.Extensions.Events.AfterMessageStored.Emit(meta)
}
