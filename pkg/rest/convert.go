package rest

import (
	"net/mail"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/extension/event"
	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/message"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/rest/model"
	"github.com/mailmount/mailmount/pkg/stringutil"
)

func endpointToJSON(e provider.Endpoint) model.JSONEndpointV1 {
	return model.JSONEndpointV1{Host: e.Host, Port: e.Port, Secure: e.Secure}
}

func endpointFromJSON(e model.JSONEndpointV1) provider.Endpoint {
	return provider.Endpoint{Host: e.Host, Port: e.Port, Secure: e.Secure}
}

func providerToJSON(d provider.Descriptor) *model.JSONProviderV1 {
	return &model.JSONProviderV1{
		Name: d.Name,
		Type: string(d.Type),
		IMAP: endpointToJSON(d.Retrieval),
		SMTP: endpointToJSON(d.Submission),
	}
}

// providerFromJSON converts a client supplied descriptor. An untyped descriptor is custom.
func providerFromJSON(p *model.JSONProviderV1) provider.Descriptor {
	t := provider.Type(p.Type)
	if t == "" {
		t = provider.Custom
	}
	return provider.Descriptor{
		Name:       p.Name,
		Type:       t,
		Retrieval:  endpointFromJSON(p.IMAP),
		Submission: endpointFromJSON(p.SMTP),
	}
}

func accountToJSON(v account.View) *model.JSONAccountV1 {
	return &model.JSONAccountV1{
		ID:          v.ID,
		Email:       v.Email,
		DisplayName: v.DisplayName,
		Provider:    *providerToJSON(v.Provider),
		CreatedAt:   v.CreatedAt,
		LastSync:    v.LastSync,
	}
}

func addressesToJSON(list []message.Address) []model.JSONAddressV1 {
	out := make([]model.JSONAddressV1, len(list))
	for i, a := range list {
		out[i] = model.JSONAddressV1{Name: a.Name, Address: a.Address}
	}
	return out
}

func addressesFromJSON(list []model.JSONAddressV1) []message.Address {
	out := make([]message.Address, len(list))
	for i, a := range list {
		out[i] = message.Address{Name: a.Name, Address: a.Address}
	}
	return out
}

func messageToJSON(m *message.Message) *model.JSONMessageV1 {
	atts := make([]*model.JSONAttachmentV1, len(m.Attachments))
	for i, a := range m.Attachments {
		atts[i] = &model.JSONAttachmentV1{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			ContentID:   a.ContentID,
		}
	}
	flags := m.Flags
	if flags == nil {
		flags = []string{}
	}
	return &model.JSONMessageV1{
		ID:          m.ID,
		MessageID:   m.MessageID,
		AccountID:   m.AccountID,
		Subject:     m.Subject,
		From:        addressesToJSON(m.From),
		To:          addressesToJSON(m.To),
		CC:          addressesToJSON(m.CC),
		BCC:         addressesToJSON(m.BCC),
		Date:        m.Date,
		Body:        model.JSONMessageBodyV1{Text: m.Body.Text, HTML: m.Body.HTML},
		Attachments: atts,
		Headers:     m.Headers,
		Folder:      m.Folder,
		Flags:       flags,
		UID:         m.UID,
		Size:        m.Size,
		Read:        m.Read,
		Starred:     m.Starred,
		Important:   m.Important,
		Category:    m.Category,
		CreatedAt:   m.CreatedAt,
	}
}

func messagesToJSON(msgs []*message.Message) []*model.JSONMessageV1 {
	out := make([]*model.JSONMessageV1, len(msgs))
	for i, m := range msgs {
		out[i] = messageToJSON(m)
	}
	return out
}

func outboundFromJSON(req *model.JSONSendRequestV1) (*message.Outbound, error) {
	out := &message.Outbound{
		To:         addressesFromJSON(req.To),
		CC:         addressesFromJSON(req.CC),
		BCC:        addressesFromJSON(req.BCC),
		Subject:    req.Subject,
		Text:       req.Body.Text,
		HTML:       req.Body.HTML,
		InReplyTo:  req.InReplyTo,
		References: req.References,
	}
	for _, a := range req.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, message.OutboundAttachment{
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Content:     a.Content,
		})
	}
	if req.ReplyTo != "" {
		addr, err := mail.ParseAddress(req.ReplyTo)
		if err != nil {
			return nil, mailerr.Configf("send", "reply-to %q: %v", req.ReplyTo, err)
		}
		out.ReplyTo = &message.Address{Name: addr.Name, Address: addr.Address}
	}
	return out, nil
}

func headerToJSON(msg event.MessageMetadata) *model.JSONMessageHeaderV1 {
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		if a != nil {
			to = append(to, stringutil.FormatAddress(a))
		}
	}
	return &model.JSONMessageHeaderV1{
		AccountID:   msg.AccountID,
		ID:          msg.ID,
		Folder:      msg.Folder,
		From:        stringutil.FormatAddress(msg.From),
		To:          to,
		Subject:     msg.Subject,
		Date:        msg.Date,
		PosixMillis: msg.Date.UnixMilli(),
		Size:        msg.Size,
		Category:    msg.Category,
		Read:        msg.Read,
	}
}
