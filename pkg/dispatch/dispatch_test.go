package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jhillyerd/enmime/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmount/mailmount/pkg/dispatch"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/policy"
	"github.com/mailmount/mailmount/pkg/test"
)

func outbound() *message.Outbound {
	return &message.Outbound{
		To:      []message.Address{{Name: "Alice", Address: "alice@example.com"}},
		CC:      []message.Address{{Address: "carol@example.com"}},
		BCC:     []message.Address{{Name: "Hidden", Address: "hidden@example.com"}},
		Subject: "Status report",
		Text:    "All good.",
		HTML:    "<p>All good.</p>",
		Attachments: []message.OutboundAttachment{
			{Filename: "report.csv", ContentType: "text/csv", Content: []byte("a,b\n1,2\n")},
		},
		InReplyTo:  "<orig@example.com>",
		References: []string{"<root@example.com>", "<orig@example.com>"},
		ReplyTo:    &message.Address{Name: "Team", Address: "team@example.com"},
	}
}

func TestValidateRejects(t *testing.T) {
	testCases := map[string]func(*message.Outbound){
		"no recipients": func(o *message.Outbound) { o.To = nil },
		"empty subject": func(o *message.Outbound) { o.Subject = "" },
		"blank subject": func(o *message.Outbound) { o.Subject = "  " },
		"bad to":        func(o *message.Outbound) { o.To[0].Address = "nobody" },
		"bad bcc":       func(o *message.Outbound) { o.BCC[0].Address = "x@" },
	}
	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			out := outbound()
			mutate(out)
			tr := &test.TransportStub{}
			_, err := dispatch.Send(context.Background(), tr, test.NewAccount("me@gmail.com"), out)
			assert.True(t, mailerr.Is(err, mailerr.Config), "got %v", err)
			assert.Equal(t, 0, tr.Calls(), "transport must not be used")
		})
	}

	err := dispatch.Validate(&message.Outbound{Subject: "x"})
	assert.True(t, errors.Is(err, policy.ErrNoRecipients))
	assert.True(t, mailerr.Is(dispatch.Validate(nil), mailerr.Config))
}

func TestSendBuildsMessage(t *testing.T) {
	acct := test.NewAccount("me@gmail.com")
	acct.DisplayName = "Me Myself"
	tr := &test.TransportStub{}

	msgID, err := dispatch.Send(context.Background(), tr, acct, outbound())
	require.NoError(t, err)
	assert.Regexp(t, `^<[0-9a-f-]{36}@gmail\.com>$`, msgID)

	from, rcpts, data := tr.Sent()
	assert.Equal(t, "me@gmail.com", from)
	assert.Equal(t, []string{"alice@example.com", "carol@example.com", "hidden@example.com"}, rcpts)

	env, err := enmime.ReadEnvelope(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, msgID, env.GetHeader("Message-ID"))
	assert.Equal(t, "Status report", env.GetHeader("Subject"))
	assert.Equal(t, "<orig@example.com>", env.GetHeader("In-Reply-To"))
	assert.Equal(t, "<root@example.com> <orig@example.com>", env.GetHeader("References"))
	assert.Empty(t, env.GetHeader("Bcc"), "bcc must stay out of headers")

	fromList, err := env.AddressList("From")
	require.NoError(t, err)
	require.Len(t, fromList, 1)
	assert.Equal(t, "Me Myself", fromList[0].Name)
	assert.Equal(t, "me@gmail.com", fromList[0].Address)

	toList, err := env.AddressList("To")
	require.NoError(t, err)
	require.Len(t, toList, 1)
	assert.Equal(t, "alice@example.com", toList[0].Address)

	replyTo, err := env.AddressList("Reply-To")
	require.NoError(t, err)
	require.Len(t, replyTo, 1)
	assert.Equal(t, "team@example.com", replyTo[0].Address)

	assert.Contains(t, env.Text, "All good.")
	assert.Contains(t, env.HTML, "<p>All good.</p>")
	require.Len(t, env.Attachments, 1)
	assert.Equal(t, "report.csv", env.Attachments[0].FileName)
	assert.Equal(t, "a,b\n1,2\n", string(env.Attachments[0].Content))
}

func TestSendTextOnly(t *testing.T) {
	out := &message.Outbound{
		To:      []message.Address{{Address: "alice@example.com"}},
		Subject: "plain",
		Text:    "just text",
	}
	_, raw, err := dispatch.Build(test.NewAccount("me@gmail.com"), out, time.Now())
	require.NoError(t, err)
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Contains(t, env.Text, "just text")
	assert.Empty(t, env.HTML)
	assert.Empty(t, env.Attachments)
}

func TestSendTransportErrors(t *testing.T) {
	acct := test.NewAccount("me@gmail.com")

	tr := &test.TransportStub{Err: errors.New("550 mailbox unavailable")}
	_, err := dispatch.Send(context.Background(), tr, acct, outbound())
	assert.True(t, mailerr.Is(err, mailerr.Send), "unclassified errors are send failures")

	tr = &test.TransportStub{Err: mailerr.New(mailerr.Connection, "submit message", errors.New("reset"))}
	_, err = dispatch.Send(context.Background(), tr, acct, outbound())
	assert.True(t, mailerr.Is(err, mailerr.Connection))
	assert.Equal(t, 1, tr.Calls())
}
