package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/mailmount/mailmount/pkg/rest/model"
)

type matchCmd struct {
	output  string
	outFunc func(ctx context.Context, account string, msgs []*model.JSONMessageV1) error
	// match criteria
	from     regexFlag
	subject  regexFlag
	to       regexFlag
	category string
	unread   bool
	maxAge   time.Duration
}

func (*matchCmd) Name() string {
	return "match"
}

func (*matchCmd) Synopsis() string {
	return "output stored messages matching criteria"
}

func (*matchCmd) Usage() string {
	return `match [flags] <account>:
	output messages matching all specified criteria
	exit status will be 1 if no matches were found, otherwise 0
`
}

func (m *matchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.output, "output", "id", "output format: id, json, or mbox")
	f.Var(&m.from, "from", "From header matching regexp (address, not name)")
	f.Var(&m.subject, "subject", "Subject header matching regexp")
	f.Var(&m.to, "to", "To header matching regexp (must match 1+ to address)")
	f.StringVar(&m.category, "category", "", "category name, ex: Work")
	f.BoolVar(&m.unread, "unread", false, "only match unread messages")
	f.DurationVar(
		&m.maxAge, "maxage", 0,
		"Matches must have been sent in this time frame (ex: \"10s\", \"5m\")")
}

func (m *matchCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	account := f.Arg(0)
	if account == "" {
		return usage("account required")
	}
	switch m.output {
	case "id":
		m.outFunc = outputID
	case "json":
		m.outFunc = outputJSON
	case "mbox":
		m.outFunc = outputMbox
	default:
		return usage("unknown output type: " + m.output)
	}
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	msgs, err := c.ListMessages(ctx, account)
	if err != nil {
		return fatal("List REST call failed", err)
	}
	matches := make([]*model.JSONMessageV1, 0, len(msgs))
	for _, msg := range msgs {
		if m.match(msg) {
			matches = append(matches, msg)
		}
	}
	if len(matches) == 0 {
		return subcommands.ExitFailure
	}
	if err := m.outFunc(ctx, account, matches); err != nil {
		return fatal("Error", err)
	}
	return subcommands.ExitSuccess
}

// match returns true if msg matches all defined criteria
func (m *matchCmd) match(msg *model.JSONMessageV1) bool {
	if m.maxAge > 0 && time.Since(msg.Date) > m.maxAge {
		return false
	}
	if m.unread && msg.Read {
		return false
	}
	if m.category != "" && msg.Category != m.category {
		return false
	}
	if m.subject.Defined() && !m.subject.MatchString(msg.Subject) {
		return false
	}
	if m.from.Defined() && !anyAddress(m.from, msg.From) {
		return false
	}
	if m.to.Defined() && !anyAddress(m.to, msg.To) {
		return false
	}
	return true
}

func anyAddress(re regexFlag, addrs []model.JSONAddressV1) bool {
	for _, a := range addrs {
		if re.MatchString(a.Address) {
			return true
		}
	}
	return false
}

func outputID(_ context.Context, _ string, msgs []*model.JSONMessageV1) error {
	for _, m := range msgs {
		fmt.Println(m.ID)
	}
	return nil
}

func outputJSON(_ context.Context, _ string, msgs []*model.JSONMessageV1) error {
	jsonEncoder := json.NewEncoder(os.Stdout)
	jsonEncoder.SetEscapeHTML(false)
	jsonEncoder.SetIndent("", "  ")
	return jsonEncoder.Encode(msgs)
}
