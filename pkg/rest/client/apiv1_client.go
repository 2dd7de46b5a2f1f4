// Package client provides a basic REST client for mailmount
package client

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mailmount/mailmount/pkg/rest/model"
)

// Client accesses the mailmount REST API v1
type Client struct {
	restClient
}

// New creates a new v1 REST API client given the base URL of a mailmount server, ex:
// "http://localhost:3001"
func New(baseURL string, opts ...func(*ClientOptions)) (*Client, error) {
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	options := getDefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}
	c := &Client{
		restClient{
			client: &http.Client{
				Transport: options.transport,
				Timeout:   options.timeout,
			},
			baseURL: parsedURL,
		},
	}
	return c, nil
}

func accountURI(id string, parts ...string) string {
	uri := "/api/v1/accounts/" + url.PathEscape(id)
	for _, p := range parts {
		uri += "/" + url.PathEscape(p)
	}
	return uri
}

// Providers returns the predefined provider table.
func (c *Client) Providers(ctx context.Context) (map[string]*model.JSONProviderV1, error) {
	var res model.JSONProvidersV1
	if err := c.doJSON(ctx, "GET", "/api/v1/providers", nil, &res); err != nil {
		return nil, err
	}
	return res.Providers, nil
}

// DetectProvider returns the provider serving an email address. Provider is nil when the domain is
// unknown.
func (c *Client) DetectProvider(ctx context.Context, email string) (*model.JSONDetectV1, error) {
	var res model.JSONDetectV1
	err := c.doJSON(ctx, "POST", "/api/v1/providers/detect", &model.JSONDetectRequestV1{Email: email}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// CustomProvider validates user supplied endpoints and returns the resulting provider.
func (c *Client) CustomProvider(
	ctx context.Context,
	req *model.JSONCustomProviderRequestV1,
) (*model.JSONProviderV1, error) {
	var res model.JSONProviderResultV1
	if err := c.doJSON(ctx, "POST", "/api/v1/providers/custom", req, &res); err != nil {
		return nil, err
	}
	return res.Provider, nil
}

// TestConnection verifies credentials against both servers without storing an account.
func (c *Client) TestConnection(ctx context.Context, cred *model.JSONCredentialsV1) error {
	return c.doJSON(ctx, "POST", "/api/v1/accounts/test", cred, nil)
}

// AddAccount verifies and stores an account.
func (c *Client) AddAccount(ctx context.Context, cred *model.JSONCredentialsV1) (*model.JSONAccountV1, error) {
	var res model.JSONAccountResultV1
	if err := c.doJSON(ctx, "POST", "/api/v1/accounts", cred, &res); err != nil {
		return nil, err
	}
	return res.Account, nil
}

// ListAccounts returns every stored account.
func (c *Client) ListAccounts(ctx context.Context) ([]*model.JSONAccountV1, error) {
	var res model.JSONAccountsV1
	if err := c.doJSON(ctx, "GET", "/api/v1/accounts", nil, &res); err != nil {
		return nil, err
	}
	return res.Accounts, nil
}

// GetAccount returns one account.
func (c *Client) GetAccount(ctx context.Context, id string) (*model.JSONAccountV1, error) {
	var res model.JSONAccountResultV1
	if err := c.doJSON(ctx, "GET", accountURI(id), nil, &res); err != nil {
		return nil, err
	}
	return res.Account, nil
}

// Sync fetches up to limit of the newest messages in folder. Empty folder and zero limit take the
// server defaults.
func (c *Client) Sync(ctx context.Context, id, folder string, limit int) ([]*model.JSONMessageV1, error) {
	var res model.JSONSyncResultV1
	req := &model.JSONSyncRequestV1{Folder: folder, Limit: limit}
	if err := c.doJSON(ctx, "POST", accountURI(id, "sync"), req, &res); err != nil {
		return nil, err
	}
	return res.Emails, nil
}

// ListMessages returns the stored messages of an account, newest first.
func (c *Client) ListMessages(ctx context.Context, id string) ([]*model.JSONMessageV1, error) {
	var res model.JSONMessagesV1
	if err := c.doJSON(ctx, "GET", accountURI(id, "messages"), nil, &res); err != nil {
		return nil, err
	}
	return res.Emails, nil
}

// GetMessage returns one stored message.
func (c *Client) GetMessage(ctx context.Context, id, msgID string) (*model.JSONMessageV1, error) {
	var res model.JSONMessageResultV1
	if err := c.doJSON(ctx, "GET", accountURI(id, "messages", msgID), nil, &res); err != nil {
		return nil, err
	}
	return res.Email, nil
}

// GetMessageSource returns the raw source of a stored message.
func (c *Client) GetMessageSource(ctx context.Context, id, msgID string) (*bytes.Buffer, error) {
	return c.getBody(ctx, accountURI(id, "messages", msgID, "source"))
}

// GetMessageHTML returns the sanitized HTML body of a stored message.
func (c *Client) GetMessageHTML(ctx context.Context, id, msgID string, remoteImages bool) (string, error) {
	uri := accountURI(id, "messages", msgID, "html")
	if remoteImages {
		uri += "?images=remote"
	}
	buf, err := c.getBody(ctx, uri)
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (c *Client) getBody(ctx context.Context, uri string) (*bytes.Buffer, error) {
	resp, err := c.do(ctx, "GET", uri, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError("GET", uri, resp)
	}
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	return buf, err
}

// Send submits a message from an account and returns its Message-ID.
func (c *Client) Send(ctx context.Context, id string, req *model.JSONSendRequestV1) (string, error) {
	var res model.JSONSendResultV1
	if err := c.doJSON(ctx, "POST", accountURI(id, "send"), req, &res); err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// ListAll returns the newest messages across every account. A zero limit takes the server default.
func (c *Client) ListAll(ctx context.Context, limit int) ([]*model.JSONMessageV1, error) {
	uri := "/api/v1/messages"
	if limit > 0 {
		uri += "?limit=" + strconv.Itoa(limit)
	}
	var res model.JSONMessagesV1
	if err := c.doJSON(ctx, "GET", uri, nil, &res); err != nil {
		return nil, err
	}
	return res.Emails, nil
}
