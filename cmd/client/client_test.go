package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmount/mailmount/pkg/rest/model"
)

func TestMatch(t *testing.T) {
	msg := &model.JSONMessageV1{
		Subject:  "Invoice 42",
		From:     []model.JSONAddressV1{{Name: "Billing", Address: "billing@acme.example"}},
		To:       []model.JSONAddressV1{{Address: "me@example.com"}, {Address: "you@example.com"}},
		Date:     time.Now().Add(-time.Hour),
		Category: "Work",
	}

	newMatch := func(f func(m *matchCmd)) *matchCmd {
		m := &matchCmd{}
		f(m)
		return m
	}
	testCases := []struct {
		name string
		cmd  *matchCmd
		want bool
	}{
		{"no criteria", &matchCmd{}, true},
		{"subject", newMatch(func(m *matchCmd) { require.NoError(t, m.subject.Set("^Invoice")) }), true},
		{"subject miss", newMatch(func(m *matchCmd) { require.NoError(t, m.subject.Set("^Receipt")) }), false},
		{"from address", newMatch(func(m *matchCmd) { require.NoError(t, m.from.Set("@acme")) }), true},
		{"from ignores name", newMatch(func(m *matchCmd) { require.NoError(t, m.from.Set("Billing")) }), false},
		{"any to", newMatch(func(m *matchCmd) { require.NoError(t, m.to.Set("^you@")) }), true},
		{"category", newMatch(func(m *matchCmd) { m.category = "Work" }), true},
		{"category miss", newMatch(func(m *matchCmd) { m.category = "Social" }), false},
		{"max age", newMatch(func(m *matchCmd) { m.maxAge = 2 * time.Hour }), true},
		{"too old", newMatch(func(m *matchCmd) { m.maxAge = time.Minute }), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.cmd.match(msg))
		})
	}
}

func TestWriteMboxBody(t *testing.T) {
	src := bytes.NewBufferString("Subject: x\r\n\r\nFrom here on\r\nbody\r\n")
	var out strings.Builder
	require.NoError(t, writeMboxBody(&out, src))
	assert.Equal(t, "Subject: x\n\n>From here on\nbody\n", out.String())
}

func TestSendRequest(t *testing.T) {
	s := &sendCmd{subject: "hi"}
	require.NoError(t, s.to.Set("Jane <jane@example.com>, bob@example.com"))
	require.NoError(t, s.bcc.Set("audit@example.com"))

	req, err := s.request(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, []model.JSONAddressV1{
		{Name: "Jane", Address: "jane@example.com"},
		{Address: "bob@example.com"},
	}, req.To)
	assert.Nil(t, req.CC)
	assert.Equal(t, []model.JSONAddressV1{{Address: "audit@example.com"}}, req.BCC)
	assert.Equal(t, "hello", req.Body.Text)
	assert.Empty(t, req.Body.HTML)

	s = &sendCmd{}
	require.NoError(t, s.to.Set("not an address"))
	_, err = s.request(strings.NewReader(""))
	assert.Error(t, err)
}
