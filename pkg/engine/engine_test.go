package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/engine"
	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/storage"
	"github.com/mailmount/mailmount/pkg/test"
)

func setup(t *testing.T) (*engine.Engine, *test.StoreStub, *test.OpenerStub) {
	t.Helper()
	store := test.NewStore()
	opener := test.NewOpener()
	return engine.New(store, opener, nil, config.Sync{}), store, opener
}

func gmail(t *testing.T) provider.Descriptor {
	t.Helper()
	d, ok := provider.Get("gmail")
	require.True(t, ok)
	return d
}

func addSource(src *test.SourceStub, n int, base time.Time) {
	for i := 1; i <= n; i++ {
		date := base.Add(time.Duration(i) * time.Minute).Format(time.RFC1123Z)
		lit := test.MIMEMessage("friend@example.com", fmt.Sprintf("note %d", i), date, "hello")
		src.Messages = append(src.Messages, test.RawMessage(uint32(i), lit))
	}
}

func TestProviders(t *testing.T) {
	e, _, _ := setup(t)
	all := e.Providers()
	assert.Contains(t, all, "gmail")
	assert.Contains(t, all, "protonmail")

	key, d, err := e.DetectProvider("user@googlemail.com")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "gmail", key)
	assert.Equal(t, gmail(t), *d)

	_, d, err = e.DetectProvider("user@unknown.tld")
	require.NoError(t, err)
	assert.Nil(t, d)

	_, _, err = e.DetectProvider("")
	assert.True(t, mailerr.Is(err, mailerr.Config))
}

func TestCustomProvider(t *testing.T) {
	e, _, _ := setup(t)
	d, err := e.CustomProvider("Work", "imap.corp", 993, true, "smtp.corp", 465, true)
	require.NoError(t, err)
	assert.Equal(t, provider.Custom, d.Type)
	assert.Equal(t, "imap.corp:993", d.Retrieval.Addr())

	_, err = e.CustomProvider("", "imap.corp", 993, true, "smtp.corp", 465, true)
	assert.True(t, mailerr.Is(err, mailerr.Config))
	_, err = e.CustomProvider("Work", "imap.corp", 0, true, "smtp.corp", 465, true)
	assert.True(t, mailerr.Is(err, mailerr.Config))
}

func TestTestConnection(t *testing.T) {
	e, store, opener := setup(t)
	require.NoError(t, e.TestConnection(context.Background(), "me@gmail.com", "pw", gmail(t)))
	r, s := opener.Opened()
	assert.Equal(t, 1, r)
	assert.Equal(t, 1, s)
	assert.Equal(t, 1, opener.Source.Closed())
	assert.Equal(t, 1, opener.Transport.Closed())
	assert.Equal(t, 0, store.Writes("SaveAccount"), "test connection must persist nothing")

	err := e.TestConnection(context.Background(), "", "pw", gmail(t))
	assert.True(t, mailerr.Is(err, mailerr.Config))
	err = e.TestConnection(context.Background(), "me@gmail.com", "pw", provider.Descriptor{})
	assert.True(t, mailerr.Is(err, mailerr.Config))
}

func TestAddAccount(t *testing.T) {
	e, store, _ := setup(t)
	view, err := e.AddAccount(context.Background(), "jane.doe@gmail.com", "pw", "", gmail(t))
	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "jane.doe", view.DisplayName)
	assert.Nil(t, view.LastSync)

	stored, err := store.LoadAccount(view.ID)
	require.NoError(t, err)
	assert.Equal(t, "pw", stored.Secret)

	got, err := e.GetAccount(view.ID)
	require.NoError(t, err)
	assert.Equal(t, view, got)
}

func TestAddAccountUnreachableWritesNothing(t *testing.T) {
	for name, fail := range map[string]func(*test.OpenerStub){
		"imap": func(o *test.OpenerStub) {
			o.RetrievalErr = mailerr.New(mailerr.Connection, "open imap session", errors.New("refused"))
		},
		"smtp": func(o *test.OpenerStub) {
			o.SubmissionErr = mailerr.New(mailerr.Auth, "open smtp session", errors.New("535"))
		},
	} {
		t.Run(name, func(t *testing.T) {
			e, store, opener := setup(t)
			fail(opener)
			_, err := e.AddAccount(context.Background(), "me@gmail.com", "pw", "", gmail(t))
			require.Error(t, err)
			assert.Equal(t, 0, store.Writes("SaveAccount"))
			accts, err := e.ListAccounts()
			require.NoError(t, err)
			assert.Empty(t, accts)
		})
	}
}

func TestSecretNeverReturned(t *testing.T) {
	e, _, _ := setup(t)
	view, err := e.AddAccount(context.Background(), "me@gmail.com", "hunter2", "Me", gmail(t))
	require.NoError(t, err)

	views, err := e.ListAccounts()
	require.NoError(t, err)
	got, err := e.GetAccount(view.ID)
	require.NoError(t, err)

	for _, v := range []any{view, views, got} {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		assert.NotContains(t, string(b), "hunter2")
		assert.NotContains(t, string(b), "password")
	}
}

func TestGetAccountMissing(t *testing.T) {
	e, _, _ := setup(t)
	_, err := e.GetAccount("nope")
	assert.True(t, errors.Is(err, storage.ErrNotExist))
	_, err = e.ListMessages("nope")
	assert.True(t, errors.Is(err, storage.ErrNotExist))
	_, err = e.Sync(context.Background(), "nope", "", 0)
	assert.True(t, errors.Is(err, storage.ErrNotExist))
}

func TestSync(t *testing.T) {
	host := extension.NewHost()
	synced := host.Events.AfterAccountSynced.AsyncTestListener("test", 1)
	store := test.NewStore()
	opener := test.NewOpener()
	e := engine.New(store, opener, host, config.Sync{})

	view, err := e.AddAccount(context.Background(), "me@gmail.com", "pw", "", gmail(t))
	require.NoError(t, err)
	addSource(opener.Source, 60, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	msgs, err := e.Sync(context.Background(), view.ID, "", 0)
	require.NoError(t, err)
	assert.Len(t, msgs, engine.DefaultLimit)
	assert.Equal(t, []string{engine.DefaultFolder}, opener.Source.Selected())
	assert.Equal(t, [][2]uint32{{11, 60}}, opener.Source.Ranges())
	assert.Equal(t, "note 60", msgs[0].Subject)
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i-1].Date.After(msgs[i].Date), "results must be newest first")
	}
	assert.Equal(t, 2, opener.Source.Closed(), "session closed after verify and after sync")

	got, err := e.GetAccount(view.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSync)
	assert.WithinDuration(t, time.Now(), *got.LastSync, 5*time.Second)

	summary, err := synced()
	require.NoError(t, err)
	assert.Equal(t, view.ID, summary.AccountID)
	assert.Equal(t, engine.DefaultLimit, summary.Fetched)

	listed, err := e.ListMessages(view.ID)
	require.NoError(t, err)
	assert.Len(t, listed, engine.DefaultLimit)

	m, err := e.GetMessage(view.ID, msgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, msgs[0].Subject, m.Subject)
	raw, err := e.GetSource(view.ID, msgs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: note 60")

	_, err = e.GetMessage(view.ID, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotExist))
	_, err = e.GetSource(view.ID, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotExist))
}

func TestSyncConnectionFailure(t *testing.T) {
	e, store, opener := setup(t)
	view, err := e.AddAccount(context.Background(), "me@gmail.com", "pw", "", gmail(t))
	require.NoError(t, err)

	opener.RetrievalErr = mailerr.New(mailerr.Connection, "open imap session", errors.New("timeout"))
	_, err = e.Sync(context.Background(), view.ID, "INBOX", 10)
	assert.True(t, mailerr.Is(err, mailerr.Connection))
	got, err := e.GetAccount(view.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastSync, "failed sync must not update the account")
	assert.Equal(t, 1, store.Writes("SaveAccount"))
}

func TestSendRejectedBeforeNetwork(t *testing.T) {
	e, _, opener := setup(t)
	view, err := e.AddAccount(context.Background(), "me@gmail.com", "pw", "", gmail(t))
	require.NoError(t, err)
	_, before := opener.Opened()

	for name, out := range map[string]*message.Outbound{
		"no recipients": {Subject: "hi"},
		"no subject":    {To: []message.Address{{Address: "a@example.com"}}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := e.Send(context.Background(), view.ID, out)
			assert.True(t, mailerr.Is(err, mailerr.Config))
			_, after := opener.Opened()
			assert.Equal(t, before, after)
		})
	}
}

func TestSend(t *testing.T) {
	host := extension.NewHost()
	sent := host.Events.AfterMessageSent.AsyncTestListener("test", 1)
	opener := test.NewOpener()
	e := engine.New(test.NewStore(), opener, host, config.Sync{})
	view, err := e.AddAccount(context.Background(), "me@gmail.com", "pw", "Me", gmail(t))
	require.NoError(t, err)

	out := &message.Outbound{
		To:      []message.Address{{Name: "A", Address: "a@example.com"}},
		BCC:     []message.Address{{Address: "b@example.com"}},
		Subject: "hello",
		Text:    "body",
	}
	id, err := e.Send(context.Background(), view.ID, out)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	from, rcpts, data := opener.Transport.Sent()
	assert.Equal(t, "me@gmail.com", from)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, rcpts)
	assert.Contains(t, string(data), "Subject: hello")
	assert.Equal(t, 2, opener.Transport.Closed())

	ev, err := sent()
	require.NoError(t, err)
	assert.Equal(t, id, ev.MessageID)
	assert.Equal(t, "hello", ev.Subject)

	_, err = e.Send(context.Background(), "nope", out)
	assert.True(t, errors.Is(err, storage.ErrNotExist))
}

func TestListAll(t *testing.T) {
	e, store, _ := setup(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a1, err := e.AddAccount(context.Background(), "one@gmail.com", "pw", "", gmail(t))
	require.NoError(t, err)
	a2, err := e.AddAccount(context.Background(), "two@gmail.com", "pw", "", gmail(t))
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := store.SaveMessage(test.NewMessage(a1.ID, fmt.Sprintf("a%d", i), "one", base.Add(time.Duration(2*i)*time.Hour)))
		require.NoError(t, err)
		_, err = store.SaveMessage(test.NewMessage(a2.ID, fmt.Sprintf("b%d", i), "two", base.Add(time.Duration(2*i+1)*time.Hour)))
		require.NoError(t, err)
	}

	all, err := e.ListAll(0)
	require.NoError(t, err)
	require.Len(t, all, 8)
	ids := make([]string, len(all))
	for i, m := range all {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"b3", "a3", "b2", "a2", "b1", "a1", "b0", "a0"}, ids)

	top, err := e.ListAll(3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "b3", top[0].ID)
	assert.Equal(t, "b2", top[2].ID)
}

func engineCounter(t *testing.T, name string) int64 {
	t.Helper()
	m, ok := expvar.Get("engine").(*expvar.Map)
	require.True(t, ok, "engine expvar map must be published")
	v, ok := m.Get(name).(*expvar.Int)
	require.True(t, ok, "missing counter %s", name)
	return v.Value()
}

func TestSyncCounters(t *testing.T) {
	e, _, opener := setup(t)
	view, err := e.AddAccount(context.Background(), "me@gmail.com", "pw", "", gmail(t))
	require.NoError(t, err)
	addSource(opener.Source, 3, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	syncs, fetched := engineCounter(t, "SyncsTotal"), engineCounter(t, "MessagesFetched")
	_, err = e.Sync(context.Background(), view.ID, "INBOX", 10)
	require.NoError(t, err)
	assert.Equal(t, syncs+1, engineCounter(t, "SyncsTotal"))
	assert.Equal(t, fetched+3, engineCounter(t, "MessagesFetched"))

	failures := engineCounter(t, "SyncFailures")
	_, err = e.Sync(context.Background(), "no-such-account", "INBOX", 10)
	require.Error(t, err)
	assert.Equal(t, failures+1, engineCounter(t, "SyncFailures"))
}
