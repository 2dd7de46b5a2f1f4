package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/mailmount/mailmount/pkg/rest/model"
)

type mboxCmd struct{}

func (*mboxCmd) Name() string {
	return "mbox"
}

func (*mboxCmd) Synopsis() string {
	return "output stored messages in mbox format"
}

func (*mboxCmd) Usage() string {
	return `mbox <account>:
	output the raw source of every stored message of account in mbox format
`
}

func (*mboxCmd) SetFlags(f *flag.FlagSet) {}

func (*mboxCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	account := f.Arg(0)
	if account == "" {
		return usage("account required")
	}
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	msgs, err := c.ListMessages(ctx, account)
	if err != nil {
		return fatal("List REST call failed", err)
	}
	if err := outputMbox(ctx, account, msgs); err != nil {
		return fatal("Error", err)
	}
	return subcommands.ExitSuccess
}

// outputMbox renders messages in mbox format.
// It is also used by match subcommand.
func outputMbox(ctx context.Context, account string, msgs []*model.JSONMessageV1) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	out := bufio.NewWriter(os.Stdout)
	for _, m := range msgs {
		source, err := c.GetMessageSource(ctx, account, m.ID)
		if err != nil {
			return fmt.Errorf("get source REST failed: %w", err)
		}
		from := "MAILER-DAEMON"
		if len(m.From) > 0 {
			from = m.From[0].Address
		}
		fmt.Fprintf(out, "From %s %s\n", from, m.Date.UTC().Format("Mon Jan _2 15:04:05 2006"))
		if err := writeMboxBody(out, source); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	return out.Flush()
}

// writeMboxBody copies source, quoting lines that begin with "From ".
func writeMboxBody(w io.Writer, source *bytes.Buffer) error {
	sc := bufio.NewScanner(source)
	sc.Buffer(make([]byte, 64*1024), 8<<20)
	for sc.Scan() {
		line := bytes.TrimSuffix(sc.Bytes(), []byte("\r"))
		if bytes.HasPrefix(line, []byte("From ")) {
			if _, err := io.WriteString(w, ">"); err != nil {
				return err
			}
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return sc.Err()
}
