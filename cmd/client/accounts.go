package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/google/subcommands"
)

type providersCmd struct{}

func (*providersCmd) Name() string {
	return "providers"
}

func (*providersCmd) Synopsis() string {
	return "list predefined mail providers"
}

func (*providersCmd) Usage() string {
	return `providers:
	list the provider keys and their IMAP and SMTP endpoints
`
}

func (*providersCmd) SetFlags(f *flag.FlagSet) {}

func (*providersCmd) Execute(
	ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	providers, err := c.Providers(ctx)
	if err != nil {
		return fatal("REST call failed", err)
	}
	keys := make([]string, 0, len(providers))
	for k := range providers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	for _, k := range keys {
		p := providers[k]
		fmt.Fprintf(tw, "%s\t%s\t%s:%d\t%s:%d\n", k, p.Name,
			p.IMAP.Host, p.IMAP.Port, p.SMTP.Host, p.SMTP.Port)
	}
	if err := tw.Flush(); err != nil {
		return fatal("Error", err)
	}
	return subcommands.ExitSuccess
}

type accountsCmd struct{}

func (*accountsCmd) Name() string {
	return "accounts"
}

func (*accountsCmd) Synopsis() string {
	return "list configured accounts"
}

func (*accountsCmd) Usage() string {
	return `accounts:
	list account IDs, addresses and last sync times
`
}

func (*accountsCmd) SetFlags(f *flag.FlagSet) {}

func (*accountsCmd) Execute(
	ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	accounts, err := c.ListAccounts(ctx)
	if err != nil {
		return fatal("REST call failed", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	for _, a := range accounts {
		synced := "never"
		if a.LastSync != nil {
			synced = a.LastSync.Local().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.ID, a.Email, a.Provider.Name, synced)
	}
	if err := tw.Flush(); err != nil {
		return fatal("Error", err)
	}
	return subcommands.ExitSuccess
}
