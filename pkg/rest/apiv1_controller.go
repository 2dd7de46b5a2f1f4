package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/rest/model"
	"github.com/mailmount/mailmount/pkg/sanitize"
	"github.com/mailmount/mailmount/pkg/server/web"
)

// Request bodies may carry base64 attachments.
const maxRequestBody = 32 << 20

// decodeJSON reads the request body into v. An empty body leaves v untouched when optional is set.
func decodeJSON(w http.ResponseWriter, req *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return mailerr.Configf("decode request", "invalid JSON body: %v", err)
	}
	return nil
}

// descriptorOf resolves the provider of a credentials request.
func descriptorOf(ctx *web.Context, cred *model.JSONCredentialsV1) (provider.Descriptor, error) {
	switch {
	case cred.Provider != nil:
		return providerFromJSON(cred.Provider), nil
	case cred.ProviderKey != "":
		d, ok := ctx.Manager.Providers()[cred.ProviderKey]
		if !ok {
			return provider.Descriptor{}, mailerr.Configf("resolve provider", "unknown provider %q",
				cred.ProviderKey)
		}
		return d, nil
	}
	return provider.Descriptor{}, mailerr.Configf("resolve provider", "provider is required")
}

// ProvidersListV1 renders the predefined provider table.
func ProvidersListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	table := ctx.Manager.Providers()
	providers := make(map[string]*model.JSONProviderV1, len(table))
	for key, d := range table {
		providers[key] = providerToJSON(d)
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONProvidersV1{Providers: providers, Success: true})
	return nil
}

// ProviderDetectV1 resolves the provider of an email address; the provider is null when unknown.
func ProviderDetectV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var body model.JSONDetectRequestV1
	if err := decodeJSON(w, req, &body, false); err != nil {
		return err
	}
	key, d, err := ctx.Manager.DetectProvider(body.Email)
	if err != nil {
		return err
	}
	res := &model.JSONDetectV1{Key: key, Success: true}
	if d != nil {
		res.Provider = providerToJSON(*d)
	}
	web.RenderJSON(w, http.StatusOK, res)
	return nil
}

// ProviderCustomV1 builds a descriptor from user supplied endpoints.
func ProviderCustomV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var body model.JSONCustomProviderRequestV1
	if err := decodeJSON(w, req, &body, false); err != nil {
		return err
	}
	d, err := ctx.Manager.CustomProvider(body.Name,
		body.IMAPHost, body.IMAPPort, body.IMAPSecure,
		body.SMTPHost, body.SMTPPort, body.SMTPSecure)
	if err != nil {
		return err
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONProviderResultV1{Provider: providerToJSON(d), Success: true})
	return nil
}

// AccountTestV1 verifies credentials against both servers without storing anything.
func AccountTestV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var cred model.JSONCredentialsV1
	if err := decodeJSON(w, req, &cred, false); err != nil {
		return err
	}
	d, err := descriptorOf(ctx, &cred)
	if err != nil {
		return err
	}
	if err := ctx.Manager.TestConnection(req.Context(), cred.Email, cred.Password, d); err != nil {
		return err
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONStatusV1{Success: true, Message: "Connection successful"})
	return nil
}

// AccountAddV1 verifies and stores a new account.
func AccountAddV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var cred model.JSONCredentialsV1
	if err := decodeJSON(w, req, &cred, false); err != nil {
		return err
	}
	d, err := descriptorOf(ctx, &cred)
	if err != nil {
		return err
	}
	v, err := ctx.Manager.AddAccount(req.Context(), cred.Email, cred.Password, cred.DisplayName, d)
	if err != nil {
		return err
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONAccountResultV1{Account: accountToJSON(v), Success: true})
	return nil
}

// AccountListV1 renders every stored account.
func AccountListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	views, err := ctx.Manager.ListAccounts()
	if err != nil {
		return err
	}
	accounts := make([]*model.JSONAccountV1, len(views))
	for i, v := range views {
		accounts[i] = accountToJSON(v)
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONAccountsV1{Accounts: accounts, Success: true})
	return nil
}

// AccountShowV1 renders one account.
func AccountShowV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	v, err := ctx.Manager.GetAccount(ctx.Vars["account"])
	if err != nil {
		return err
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONAccountResultV1{Account: accountToJSON(v), Success: true})
	return nil
}

// AccountSyncV1 fetches the newest messages of a folder. The body is optional.
func AccountSyncV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var body model.JSONSyncRequestV1
	if err := decodeJSON(w, req, &body, true); err != nil {
		return err
	}
	if body.Limit < 0 {
		return mailerr.Configf("sync", "limit must not be negative")
	}
	id := ctx.Vars["account"]
	msgs, err := ctx.Manager.Sync(req.Context(), id, body.Folder, body.Limit)
	if err != nil {
		return err
	}
	log.Debug().Str("module", "rest").Str("account", id).Int("synced", len(msgs)).Msg("Synced account")
	web.RenderJSON(w, http.StatusOK, &model.JSONSyncResultV1{
		Emails:  messagesToJSON(msgs),
		Synced:  len(msgs),
		Success: true,
	})
	return nil
}

// MessageListV1 renders the stored messages of an account.
func MessageListV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	msgs, err := ctx.Manager.ListMessages(ctx.Vars["account"])
	if err != nil {
		return err
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONMessagesV1{
		Emails:  messagesToJSON(msgs),
		Total:   len(msgs),
		Success: true,
	})
	return nil
}

// MessageShowV1 renders one stored message.
func MessageShowV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	msg, err := ctx.Manager.GetMessage(ctx.Vars["account"], ctx.Vars["id"])
	if err != nil {
		return err
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONMessageResultV1{Email: messageToJSON(msg), Success: true})
	return nil
}

// MessageSourceV1 displays the raw source of a message, including headers. Renders text/plain
func MessageSourceV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	raw, err := ctx.Manager.GetSource(ctx.Vars["account"], ctx.Vars["id"])
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = w.Write(raw)
	return err
}

// MessageHTMLV1 renders the sanitized HTML body of a message, converting a plain text body when
// there is no HTML part.  Remote images are dropped unless images=remote is requested.
func MessageHTMLV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	msg, err := ctx.Manager.GetMessage(ctx.Vars["account"], ctx.Vars["id"])
	if err != nil {
		return err
	}
	body := msg.Body.HTML
	if strings.TrimSpace(body) == "" {
		body = string(web.TextToHTML(msg.Body.Text))
	}
	safe, err := sanitize.HTML(body, sanitize.Options{
		BlockRemoteImages: req.URL.Query().Get("images") != "remote",
	})
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Frame-Options", "SameOrigin")
	_, err = io.WriteString(w, safe)
	return err
}

// MessageSendV1 submits a message from an account.
func MessageSendV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	var body model.JSONSendRequestV1
	if err := decodeJSON(w, req, &body, false); err != nil {
		return err
	}
	out, err := outboundFromJSON(&body)
	if err != nil {
		return err
	}
	id, err := ctx.Manager.Send(req.Context(), ctx.Vars["account"], out)
	if err != nil {
		return err
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONSendResultV1{
		MessageID: id,
		Success:   true,
		Message:   "Email sent successfully",
	})
	return nil
}

// MessageListAllV1 renders the newest messages across all accounts.
func MessageListAllV1(w http.ResponseWriter, req *http.Request, ctx *web.Context) error {
	limit := 0
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return mailerr.Configf("list messages", "invalid limit %q", s)
		}
		limit = n
	}
	msgs, err := ctx.Manager.ListAll(limit)
	if err != nil {
		return err
	}
	web.RenderJSON(w, http.StatusOK, &model.JSONMessagesV1{
		Emails:  messagesToJSON(msgs),
		Total:   len(msgs),
		Success: true,
	})
	return nil
}
