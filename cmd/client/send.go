package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"github.com/mailmount/mailmount/pkg/rest/model"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type sendCmd struct {
	to         listFlag
	cc         listFlag
	bcc        listFlag
	attachment listFlag
	subject    string
	html       bool
}

func (*sendCmd) Name() string {
	return "send"
}

func (*sendCmd) Synopsis() string {
	return "send a message from an account"
}

func (*sendCmd) Usage() string {
	return `send [flags] <account>:
	send a message, reading the body from stdin
`
}

func (s *sendCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&s.to, "to", "recipient address, may be repeated")
	f.Var(&s.cc, "cc", "carbon copy address, may be repeated")
	f.Var(&s.bcc, "bcc", "blind carbon copy address, may be repeated")
	f.Var(&s.attachment, "attach", "file to attach, may be repeated")
	f.StringVar(&s.subject, "subject", "", "message subject")
	f.BoolVar(&s.html, "html", false, "body read from stdin is HTML")
}

func (s *sendCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	account := f.Arg(0)
	if account == "" {
		return usage("account required")
	}
	req, err := s.request(os.Stdin)
	if err != nil {
		return usage(err.Error())
	}
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	id, err := c.Send(ctx, account, req)
	if err != nil {
		return fatal("Send failed", err)
	}
	fmt.Println(id)
	return subcommands.ExitSuccess
}

func (s *sendCmd) request(body io.Reader) (*model.JSONSendRequestV1, error) {
	req := &model.JSONSendRequestV1{Subject: s.subject}
	var err error
	if req.To, err = parseAddresses(s.to); err != nil {
		return nil, err
	}
	if req.CC, err = parseAddresses(s.cc); err != nil {
		return nil, err
	}
	if req.BCC, err = parseAddresses(s.bcc); err != nil {
		return nil, err
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if s.html {
		req.Body.HTML = string(b)
	} else {
		req.Body.Text = string(b)
	}
	for _, path := range s.attachment {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		req.Attachments = append(req.Attachments, &model.JSONOutboundAttachmentV1{
			Filename: filepath.Base(path),
			Content:  content,
		})
	}
	return req, nil
}

func parseAddresses(list []string) ([]model.JSONAddressV1, error) {
	var addrs []model.JSONAddressV1
	for _, s := range list {
		parsed, err := mail.ParseAddressList(s)
		if err != nil {
			return nil, fmt.Errorf("address %q: %w", s, err)
		}
		for _, a := range parsed {
			addrs = append(addrs, model.JSONAddressV1{Name: a.Name, Address: a.Address})
		}
	}
	return addrs, nil
}
