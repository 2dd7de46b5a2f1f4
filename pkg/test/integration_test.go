package test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jhillyerd/goldiff"
	"github.com/stretchr/testify/suite"

	"github.com/mailmount/mailmount/pkg/account"
	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/engine"
	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/fetch"
	"github.com/mailmount/mailmount/pkg/msghub"
	"github.com/mailmount/mailmount/pkg/provider"
	"github.com/mailmount/mailmount/pkg/rest"
	"github.com/mailmount/mailmount/pkg/server/web"
	"github.com/mailmount/mailmount/pkg/storage/mem"
)

// maskedFields vary between runs and are replaced before comparing to golden files.
var maskedFields = map[string]string{
	"id":        "<id>",
	"accountId": "<account>",
	"createdAt": "<createdAt>",
}

type IntegrationSuite struct {
	suite.Suite
	acct    *account.Account
	handler http.Handler
	stopHub context.CancelFunc
}

func (s *IntegrationSuite) SetupTest() {
	store, err := mem.New(config.Storage{})
	s.Require().NoError(err)
	desc := provider.NewCustom("test", "imap.example.com", 993, true, "smtp.example.com", 465, true)
	s.acct = account.New("bob@example.com", "secret", "", desc)
	s.Require().NoError(store.SaveAccount(s.acct))

	opener := NewOpener()
	opener.Source = &SourceStub{
		UIDValidity: 1,
		Messages: []*fetch.RawMessage{
			RawMessage(11, string(readTestData("lunch.txt")), `\Seen`),
			RawMessage(12, string(readTestData("sale.txt"))),
		},
	}
	extHost := extension.NewHost()
	eng := engine.New(store, opener, extHost, config.Sync{})

	hub := msghub.New(10, extHost)
	var hubCtx context.Context
	hubCtx, s.stopHub = context.WithCancel(context.Background())
	go hub.Start(hubCtx)

	webServer := web.NewServer(config.Web{}, eng, hub)
	rest.SetupRoutes(webServer)
	s.handler = webServer
}

func (s *IntegrationSuite) TearDownTest() {
	s.stopHub()
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) TestSync() {
	w := s.request("POST", "/api/v1/accounts/"+s.acct.ID+"/sync", `{"folder":"INBOX","limit":10}`)
	s.Require().Equal(http.StatusOK, w.Code, "body: %s", w.Body.String())

	// Compare to golden.
	got := maskJSON(s.T(), w.Body.Bytes())
	goldiff.File(s.T(), got, "testdata", "sync.golden")
}

func (s *IntegrationSuite) TestSanitizedHTML() {
	w := s.request("POST", "/api/v1/accounts/"+s.acct.ID+"/sync", "")
	s.Require().Equal(http.StatusOK, w.Code, "body: %s", w.Body.String())
	var synced struct {
		Emails []struct {
			ID      string `json:"id"`
			Subject string `json:"subject"`
		} `json:"emails"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &synced))
	s.Require().Len(synced.Emails, 2)
	s.Require().Equal("Spring SALE", synced.Emails[0].Subject)

	w = s.request("GET", "/api/v1/accounts/"+s.acct.ID+"/messages/"+synced.Emails[0].ID+"/html", "")
	s.Require().Equal(http.StatusOK, w.Code, "body: %s", w.Body.String())
	s.Equal("text/html; charset=utf-8", w.Header().Get("Content-Type"))

	// Compare to golden.
	got := append(w.Body.Bytes(), '\n')
	goldiff.File(s.T(), got, "testdata", "sale-html.golden")
}

func (s *IntegrationSuite) TestListMatchesSync() {
	w := s.request("POST", "/api/v1/accounts/"+s.acct.ID+"/sync", "")
	s.Require().Equal(http.StatusOK, w.Code, "body: %s", w.Body.String())

	w = s.request("GET", "/api/v1/accounts/"+s.acct.ID+"/messages", "")
	s.Require().Equal(http.StatusOK, w.Code, "body: %s", w.Body.String())
	var listed struct {
		Emails []map[string]any `json:"emails"`
		Total  int              `json:"total"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &listed))
	s.Equal(2, listed.Total)
	s.Require().Len(listed.Emails, 2)
	s.Equal("Spring SALE", listed.Emails[0]["subject"])
	s.Equal("Lunch tomorrow", listed.Emails[1]["subject"])
	s.Equal(s.acct.ID, listed.Emails[0]["accountId"])
}

func (s *IntegrationSuite) request(method, url, body string) *httptest.ResponseRecorder {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "http://localhost"+url, r)
	req.Header.Add("Accept", "application/json")
	if body != "" {
		req.Header.Add("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

// maskJSON replaces the run dependent fields and re-encodes with sorted keys.
func maskJSON(t *testing.T, body []byte) []byte {
	t.Helper()
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", body, err)
	}
	mask(v)
	b := &bytes.Buffer{}
	enc := json.NewEncoder(b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func mask(v any) {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			if repl, ok := maskedFields[k]; ok {
				if _, isString := val.(string); isString {
					x[k] = repl
					continue
				}
			}
			mask(val)
		}
	case []any:
		for _, e := range x {
			mask(e)
		}
	}
}

func readTestData(path ...string) []byte {
	// Prefix path with testdata.
	p := append([]string{"testdata"}, path...)
	data, err := os.ReadFile(filepath.Join(p...))
	if err != nil {
		panic(err)
	}
	return data
}
