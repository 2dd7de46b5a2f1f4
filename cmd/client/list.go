package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/mailmount/mailmount/pkg/rest/model"
)

type listCmd struct {
	all   bool
	limit int
}

func (*listCmd) Name() string {
	return "list"
}

func (*listCmd) Synopsis() string {
	return "list stored messages of an account"
}

func (*listCmd) Usage() string {
	return `list [-all] <account>:
	list message IDs and subjects stored for account, or across all accounts
`
}

func (l *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&l.all, "all", false, "list the newest messages across every account")
	f.IntVar(&l.limit, "limit", 0, "maximum messages for -all, 0 uses the server default")
}

func (l *listCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	account := f.Arg(0)
	if account == "" && !l.all {
		return usage("account required")
	}

	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}

	var msgs []*model.JSONMessageV1
	if l.all {
		msgs, err = c.ListAll(ctx, l.limit)
	} else {
		msgs, err = c.ListMessages(ctx, account)
	}
	if err != nil {
		return fatal("REST call failed", err)
	}
	printMessages(msgs)
	return subcommands.ExitSuccess
}

type syncCmd struct {
	folder string
	limit  int
}

func (*syncCmd) Name() string {
	return "sync"
}

func (*syncCmd) Synopsis() string {
	return "fetch new messages for an account"
}

func (*syncCmd) Usage() string {
	return `sync [flags] <account>:
	fetch the newest messages of a folder from the account's IMAP server
`
}

func (s *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.folder, "folder", "", "folder to sync, empty uses the server default")
	f.IntVar(&s.limit, "limit", 0, "messages to fetch, 0 uses the server default")
}

func (s *syncCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	account := f.Arg(0)
	if account == "" {
		return usage("account required")
	}
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	msgs, err := c.Sync(ctx, account, s.folder, s.limit)
	if err != nil {
		return fatal("Sync failed", err)
	}
	printMessages(msgs)
	return subcommands.ExitSuccess
}

func printMessages(msgs []*model.JSONMessageV1) {
	for _, m := range msgs {
		fmt.Printf("%s  %-8s  %s\n", m.ID, m.Category, m.Subject)
	}
}
