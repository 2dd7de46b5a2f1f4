package fetch_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/extension/event"
	"github.com/mailmount/mailmount/pkg/fetch"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/storage/mem"
	"github.com/mailmount/mailmount/pkg/test"
)

func TestWindow(t *testing.T) {
	testCases := []struct {
		total      uint32
		limit      int
		start, end uint32
		ok         bool
	}{
		{total: 0, limit: 50},
		{total: 10, limit: 0},
		{total: 10, limit: -1},
		{total: 10, limit: 50, start: 1, end: 10, ok: true},
		{total: 100, limit: 50, start: 51, end: 100, ok: true},
		{total: 100, limit: 1, start: 100, end: 100, ok: true},
		{total: 5, limit: 5, start: 1, end: 5, ok: true},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d/%d", tc.total, tc.limit), func(t *testing.T) {
			start, end, ok := fetch.Window(tc.total, tc.limit)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.start, start)
			assert.Equal(t, tc.end, end)
		})
	}
}

func TestCategorize(t *testing.T) {
	testCases := []struct {
		subject, from, want string
	}{
		{"50% off SALE", "offers@shop.com", message.CategoryPromotions},
		{"Q3 project meeting", "bob@corp.com", message.CategoryWork},
		{"Your invoice #1029", "billing@corp.com", message.CategoryFinance},
		{"hi", "no-reply@service.com", message.CategoryPromotions},
		{"hi", "NoReply@service.com", message.CategoryPromotions},
		{"Weekly Newsletter", "friend@example.com", message.CategoryPromotions},
		{"hi", "friend@example.com", message.CategoryPrimary},
		{"", "", message.CategoryPrimary},
		{"Payment for the project", "bob@corp.com", message.CategoryWork},
		{"Bank offer", "bank@example.com", message.CategoryPromotions},
	}
	for _, tc := range testCases {
		t.Run(tc.subject+"/"+tc.from, func(t *testing.T) {
			assert.Equal(t, tc.want, fetch.Categorize(tc.subject, tc.from))
		})
	}
}

func newSource(n int) *test.SourceStub {
	src := &test.SourceStub{UIDValidity: 7}
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= n; i++ {
		date := base.Add(time.Duration(i) * time.Hour).Format(time.RFC1123Z)
		lit := test.MIMEMessage("Sender <sender@example.com>", fmt.Sprintf("Message %d", i), date,
			fmt.Sprintf("body %d", i))
		src.Messages = append(src.Messages, test.RawMessage(uint32(100+i), lit))
	}
	return src
}

func TestFetchWindowNewestFirst(t *testing.T) {
	store := test.NewStore()
	acct := test.NewAccount("me@gmail.com")
	src := newSource(5)
	p := &fetch.Pipeline{Store: store}

	msgs, err := p.Fetch(context.Background(), src, acct, "INBOX", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, [][2]uint32{{3, 5}}, src.Ranges())
	assert.Equal(t, []string{"INBOX"}, src.Selected())

	assert.Equal(t, uint32(105), msgs[0].UID)
	assert.Equal(t, uint32(104), msgs[1].UID)
	assert.Equal(t, uint32(103), msgs[2].UID)
	assert.Equal(t, "Message 5", msgs[0].Subject)

	for _, m := range msgs {
		assert.Equal(t, acct.ID, m.AccountID)
		assert.Equal(t, "INBOX", m.Folder)
		assert.NotEmpty(t, m.JSONPath)
		assert.NotEmpty(t, m.EMLPath)
		stored, err := store.LoadMessage(acct.ID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.Subject, stored.Subject)
	}
	raw, err := store.LoadRaw(acct.ID, msgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, src.Messages[4].Literal, raw)
	assert.Equal(t, 3, store.Writes("SaveMessage"))
}

func TestFetchLimitCoversFolder(t *testing.T) {
	src := newSource(2)
	p := &fetch.Pipeline{Store: test.NewStore()}
	msgs, err := p.Fetch(context.Background(), src, test.NewAccount("me@gmail.com"), "INBOX", 50)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Equal(t, [][2]uint32{{1, 2}}, src.Ranges())
}

func TestFetchEmptyFolder(t *testing.T) {
	src := newSource(0)
	p := &fetch.Pipeline{Store: test.NewStore()}
	msgs, err := p.Fetch(context.Background(), src, test.NewAccount("me@gmail.com"), "INBOX", 50)
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
	assert.Empty(t, src.Ranges(), "empty folder must not issue a fetch")
}

func TestFetchSelectError(t *testing.T) {
	src := newSource(1)
	src.SelectErr = mailerr.Configf("select folder", "no such folder")
	p := &fetch.Pipeline{Store: test.NewStore()}
	_, err := p.Fetch(context.Background(), src, test.NewAccount("me@gmail.com"), "Nope", 50)
	assert.True(t, mailerr.Is(err, mailerr.Config))
}

func TestFetchPlaceholders(t *testing.T) {
	src := &test.SourceStub{}
	src.Messages = append(src.Messages, test.RawMessage(1, test.MIMEMessage("", "", "", "bare")))
	p := &fetch.Pipeline{Store: test.NewStore()}

	before := time.Now().Add(-time.Second)
	msgs, err := p.Fetch(context.Background(), src, test.NewAccount("me@gmail.com"), "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, fetch.NoSubject, m.Subject)
	assert.True(t, strings.HasSuffix(m.MessageID, "@mailmount.local>"), m.MessageID)
	assert.True(t, m.Date.After(before), "date should default to now")
	assert.NotNil(t, m.From)
	assert.Empty(t, m.From)
	assert.NotNil(t, m.CC)
	assert.Equal(t, message.CategoryPrimary, m.Category)
	assert.Contains(t, m.Body.Text, "bare")
}

func TestFetchFlags(t *testing.T) {
	src := &test.SourceStub{}
	lit := test.MIMEMessage("a@example.com", "hi", "", "x")
	src.Messages = append(src.Messages,
		test.RawMessage(1, lit),
		test.RawMessage(2, lit, `\Seen`),
		test.RawMessage(3, lit, `\Seen`, `\Flagged`),
	)
	p := &fetch.Pipeline{Store: test.NewStore()}
	msgs, err := p.Fetch(context.Background(), src, test.NewAccount("me@gmail.com"), "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.True(t, msgs[0].Read)
	assert.True(t, msgs[0].Starred)
	assert.True(t, msgs[1].Read)
	assert.False(t, msgs[1].Starred)
	assert.False(t, msgs[2].Read)
	assert.Equal(t, []string{}, msgs[2].Flags)
	for _, m := range msgs {
		assert.False(t, m.Important)
	}
}

const multipart = "From: Shop <offers@shop.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Big SALE\r\n" +
	"Message-ID: <abc@shop.com>\r\n" +
	"Date: Fri, 01 Mar 2024 12:00:00 +0100\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"See attached.\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; name=\"notes.txt\"\r\n" +
	"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
	"\r\n" +
	"attached notes\r\n" +
	"--b1--\r\n"

func TestFetchAttachments(t *testing.T) {
	store := test.NewStore()
	src := &test.SourceStub{UIDValidity: 1}
	src.Messages = append(src.Messages, test.RawMessage(9, multipart))
	acct := test.NewAccount("me@gmail.com")
	p := &fetch.Pipeline{Store: store}

	msgs, err := p.Fetch(context.Background(), src, acct, "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, "<abc@shop.com>", m.MessageID)
	assert.Equal(t, message.CategoryPromotions, m.Category)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), m.Date)
	assert.Equal(t, []message.Address{{Name: "Shop", Address: "offers@shop.com"}}, m.From)
	assert.Contains(t, m.Body.Text, "See attached.")

	require.Len(t, m.Attachments, 1)
	att := m.Attachments[0]
	assert.Equal(t, "notes.txt", att.Filename)
	assert.Equal(t, "text/plain", att.ContentType)
	assert.Equal(t, fetch.AttachmentID(m.ID, 0), att.ID)
	require.NotEmpty(t, att.Path)
	content, ok := store.Store.(*mem.Store).Attachment(att.Path)
	require.True(t, ok)
	assert.Contains(t, string(content), "attached notes")
	assert.Equal(t, int64(len(content)), att.Size)

	stored, err := store.LoadMessage(acct.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, att.Path, stored.Attachments[0].Path)
}

func TestFetchStableIDs(t *testing.T) {
	store := test.NewStore()
	acct := test.NewAccount("me@gmail.com")
	src := newSource(3)
	p := &fetch.Pipeline{Store: store}

	first, err := p.Fetch(context.Background(), src, acct, "INBOX", 10)
	require.NoError(t, err)
	second, err := p.Fetch(context.Background(), src, acct, "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	listed, err := store.ListMessages(acct.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 3, "re-sync must not duplicate records")

	assert.Equal(t, fetch.MessageID(acct.ID, "INBOX", 7, 101), first[2].ID)
	assert.NotEqual(t, fetch.MessageID(acct.ID, "INBOX", 8, 101), first[2].ID)
	assert.NotEqual(t, fetch.MessageID(acct.ID, "Archive", 7, 101), first[2].ID)
}

// noBoundary declares a multipart body without a boundary, which the MIME parser rejects.
const noBoundary = "From: Mailer-Daemon@example.com\r\n" +
	"Subject: Delivery Status Notification\r\n" +
	"Content-Type: multipart/report;\r\n" +
	"\r\n" +
	"multipart message without boundary\r\n"

func TestFetchDropsUnparsableMessage(t *testing.T) {
	store := test.NewStore()
	acct := test.NewAccount("me@gmail.com")
	src := newSource(3)
	src.Messages[1] = test.RawMessage(102, noBoundary)
	p := &fetch.Pipeline{Store: store}

	msgs, err := p.Fetch(context.Background(), src, acct, "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint32(103), msgs[0].UID)
	assert.Equal(t, uint32(101), msgs[1].UID)

	listed, err := store.ListMessages(acct.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Equal(t, 2, store.Writes("SaveMessage"))
	_, err = store.LoadMessage(acct.ID, fetch.MessageID(acct.ID, "INBOX", 7, 102))
	assert.Error(t, err, "unparsable message must not be stored")
}

func TestFetchPersistenceFailureAborts(t *testing.T) {
	store := test.NewStore()
	store.Fail["SaveRaw"] = true
	p := &fetch.Pipeline{Store: store}

	msgs, err := p.Fetch(context.Background(), newSource(3), test.NewAccount("me@gmail.com"), "INBOX", 10)
	assert.Nil(t, msgs)
	require.Error(t, err)
	assert.True(t, mailerr.Is(err, mailerr.Persistence))
	assert.True(t, errors.Is(err, test.ErrStoreStub))
	assert.Equal(t, 0, store.Writes("SaveMessage"))
}

func TestFetchSourceErrorPropagates(t *testing.T) {
	src := newSource(2)
	src.FetchErr = mailerr.New(mailerr.Connection, "fetch messages", errors.New("reset"))
	p := &fetch.Pipeline{Store: test.NewStore()}
	_, err := p.Fetch(context.Background(), src, test.NewAccount("me@gmail.com"), "INBOX", 10)
	assert.True(t, mailerr.Is(err, mailerr.Connection))
}

func TestFetchCategoryExtension(t *testing.T) {
	host := extension.NewHost()
	var seen []event.CategoryRequest
	host.Events.BeforeMessageCategorized.AddListener("test",
		func(req event.CategoryRequest) *event.CategoryResult {
			seen = append(seen, req)
			if strings.Contains(req.Subject, "2") {
				return &event.CategoryResult{Category: "Custom"}
			}
			return nil
		})
	p := &fetch.Pipeline{Store: test.NewStore(), Extensions: host}

	msgs, err := p.Fetch(context.Background(), newSource(2), test.NewAccount("me@gmail.com"), "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Custom", msgs[0].Category)
	assert.Equal(t, message.CategoryPrimary, msgs[1].Category)

	require.Len(t, seen, 2)
	assert.Equal(t, "Message 1", seen[0].Subject)
	assert.Equal(t, message.CategoryPrimary, seen[0].Category)
	require.NotNil(t, seen[0].From)
	assert.Equal(t, "sender@example.com", seen[0].From.Address)
}

func TestFetchEmitsStored(t *testing.T) {
	host := extension.NewHost()
	listener := host.Events.AfterMessageStored.AsyncTestListener("test", 2)
	p := &fetch.Pipeline{Store: test.NewStore(), Extensions: host}
	acct := test.NewAccount("me@gmail.com")

	msgs, err := p.Fetch(context.Background(), newSource(1), acct, "INBOX", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	got, err := listener()
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.AccountID)
	assert.Equal(t, msgs[0].ID, got.ID)
	assert.Equal(t, "Message 1", got.Subject)
	assert.Equal(t, "INBOX", got.Folder)
}
