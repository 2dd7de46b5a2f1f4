package test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/storage"
)

// StoreFactory returns a new store for the test suite.
type StoreFactory func() (store storage.Store, destroy func(), err error)

// StoreSuite runs a set of general tests on the provided Store.
func StoreSuite(t *testing.T, factory StoreFactory) {
	testCases := []struct {
		name string
		test func(*testing.T, storage.Store)
	}{
		{"account round trip", testAccountRoundTrip},
		{"account missing", testAccountMissing},
		{"account list order", testAccountListOrder},
		{"message round trip", testMessageRoundTrip},
		{"message save idempotent", testMessageIdempotent},
		{"message missing", testMessageMissing},
		{"message list order", testMessageListOrder},
		{"message list isolation", testMessageListIsolation},
		{"raw content", testRawContent},
		{"attachment paths", testAttachmentPaths},
		{"invalid ids", testInvalidIDs},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			store, destroy, err := factory()
			if err != nil {
				t.Fatal(err)
			}
			tc.test(t, store)
			destroy()
		})
	}
}

// NewAccount returns a valid account for the gmail provider.
func NewAccount(email string) *account.Account {
	d, _ := provider.Get("gmail")
	return account.New(email, "secret-"+email, "", d)
}

// NewMessage returns a fully populated message for the account.
func NewMessage(accountID, id, subject string, date time.Time) *message.Message {
	return &message.Message{
		ID:        id,
		MessageID: "<" + id + "@example.com>",
		AccountID: accountID,
		Subject:   subject,
		From:      []message.Address{{Name: "Some Body", Address: "somebody@example.com"}},
		To:        []message.Address{{Address: "me@example.com"}},
		CC:        []message.Address{},
		BCC:       []message.Address{},
		Date:      date.UTC(),
		Body:      message.Body{Text: "Test Body\r\n", HTML: "<p>Test Body</p>"},
		Attachments: []message.Attachment{
			{ID: "att-1", Filename: "a.txt", ContentType: "text/plain", Size: 3},
		},
		Headers:   map[string][]string{"Subject": {subject}, "X-Tag": {"a", "b"}},
		Folder:    "INBOX",
		Flags:     []string{`\Seen`},
		UID:       42,
		Size:      128,
		Read:      true,
		Category:  message.CategoryPrimary,
		CreatedAt: date.UTC(),
	}
}

func testAccountRoundTrip(t *testing.T, store storage.Store) {
	a := NewAccount("jane@gmail.com")
	a.Synced(time.Date(2024, 3, 1, 10, 0, 0, 5, time.UTC))
	require.NoError(t, store.SaveAccount(a))

	got, err := store.LoadAccount(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.Equal(t, "secret-jane@gmail.com", got.Secret, "store must keep the secret")

	// Last write wins.
	a.DisplayName = "Jane"
	require.NoError(t, store.SaveAccount(a))
	got, err = store.LoadAccount(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.DisplayName)
}

func testAccountMissing(t *testing.T, store storage.Store) {
	_, err := store.LoadAccount("ffffffff-no-such-account")
	assert.ErrorIs(t, err, storage.ErrNotExist)

	accts, err := store.ListAccounts()
	require.NoError(t, err)
	assert.Empty(t, accts)
}

func testAccountListOrder(t *testing.T, store storage.Store) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	emails := []string{"c@gmail.com", "a@gmail.com", "b@gmail.com"}
	for i, email := range emails {
		a := NewAccount(email)
		a.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveAccount(a))
	}
	accts, err := store.ListAccounts()
	require.NoError(t, err)
	require.Len(t, accts, 3)
	for i, a := range accts {
		assert.Equal(t, emails[i], a.Email)
	}
}

func testMessageRoundTrip(t *testing.T, store storage.Store) {
	m := NewMessage("acct1", "msg1", "round trip", time.Date(2024, 2, 3, 4, 5, 6, 7, time.UTC))
	m.BCC = nil
	path, err := store.SaveMessage(m)
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	assert.Equal(t, path, m.JSONPath)

	got, err := store.LoadMessage("acct1", "msg1")
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func testMessageIdempotent(t *testing.T, store storage.Store) {
	m := NewMessage("acct1", "msg1", "twice", time.Now())
	_, err := store.SaveMessage(m)
	require.NoError(t, err)
	once, err := store.ListMessages("acct1")
	require.NoError(t, err)

	_, err = store.SaveMessage(m)
	require.NoError(t, err)
	twice, err := store.ListMessages("acct1")
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Len(t, twice, 1)
}

func testMessageMissing(t *testing.T, store storage.Store) {
	_, err := store.LoadMessage("acct1", "nope")
	assert.ErrorIs(t, err, storage.ErrNotExist)
	_, err = store.LoadRaw("acct1", "nope")
	assert.ErrorIs(t, err, storage.ErrNotExist)

	msgs, err := store.ListMessages("acct-without-mail")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testMessageListOrder(t *testing.T, store storage.Store) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	subjects := []string{"one", "two", "three", "four"}
	// Save out of date order.
	for _, i := range []int{2, 0, 3, 1} {
		m := NewMessage("acct1", subjects[i], subjects[i], base.Add(time.Duration(i)*time.Hour))
		_, err := store.SaveMessage(m)
		require.NoError(t, err)
	}
	msgs, err := store.ListMessages("acct1")
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	for i, m := range msgs {
		assert.Equal(t, subjects[3-i], m.Subject)
	}
}

func testMessageListIsolation(t *testing.T, store storage.Store) {
	now := time.Now()
	for _, acct := range []string{"acct1", "acct2"} {
		_, err := store.SaveMessage(NewMessage(acct, "m-"+acct, acct, now))
		require.NoError(t, err)
	}
	msgs, err := store.ListMessages("acct2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "acct2", msgs[0].AccountID)
}

func testRawContent(t *testing.T, store storage.Store) {
	raw := make([]byte, 5000)
	for i := range raw {
		raw[i] = byte(i % 256)
	}
	path, err := store.SaveRaw("acct1", "msg1", raw)
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	got, err := store.LoadRaw("acct1", "msg1")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	// Mutating the returned slice must not change stored content.
	got[0] = 0xff
	again, err := store.LoadRaw("acct1", "msg1")
	require.NoError(t, err)
	assert.Equal(t, byte(0), again[0])
}

func testAttachmentPaths(t *testing.T, store storage.Store) {
	p1, err := store.SaveAttachment("acct1", "msg1", "att1", "report.pdf", []byte("one"))
	require.NoError(t, err)
	p2, err := store.SaveAttachment("acct1", "msg1", "att2", "report.pdf", []byte("two"))
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2, "same filename must not collide")
	assert.Contains(t, p1, "att1_report.pdf")

	p3, err := store.SaveAttachment("acct1", "msg1", "att3", "../../escape", []byte("x"))
	require.NoError(t, err)
	assert.NotContains(t, p3, "../")
}

func testInvalidIDs(t *testing.T, store storage.Store) {
	m := NewMessage("..", "msg1", "bad", time.Now())
	_, err := store.SaveMessage(m)
	assert.ErrorIs(t, err, storage.ErrInvalidID)

	_, err = store.SaveRaw("acct1", "a/b", nil)
	assert.ErrorIs(t, err, storage.ErrInvalidID)

	a := NewAccount("x@gmail.com")
	a.ID = "../x"
	assert.ErrorIs(t, store.SaveAccount(a), storage.ErrInvalidID)
}
