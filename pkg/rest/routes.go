package rest

import (
	"github.com/mailmount/mailmount/pkg/server/web"
)

// SetupRoutes populates the routes for the REST interface
func SetupRoutes(s *web.Server) {
	r := s.API()

	// Providers
	r.Path("/v1/providers").Handler(
		s.Handle(ProvidersListV1)).Name("ProvidersListV1").Methods("GET")
	r.Path("/v1/providers/detect").Handler(
		s.Handle(ProviderDetectV1)).Name("ProviderDetectV1").Methods("POST")
	r.Path("/v1/providers/custom").Handler(
		s.Handle(ProviderCustomV1)).Name("ProviderCustomV1").Methods("POST")

	// Accounts
	r.Path("/v1/accounts/test").Handler(
		s.Handle(AccountTestV1)).Name("AccountTestV1").Methods("POST")
	r.Path("/v1/accounts").Handler(
		s.Handle(AccountListV1)).Name("AccountListV1").Methods("GET")
	r.Path("/v1/accounts").Handler(
		s.Handle(AccountAddV1)).Name("AccountAddV1").Methods("POST")
	r.Path("/v1/accounts/{account}").Handler(
		s.Handle(AccountShowV1)).Name("AccountShowV1").Methods("GET")
	r.Path("/v1/accounts/{account}/sync").Handler(
		s.Handle(AccountSyncV1)).Name("AccountSyncV1").Methods("POST")
	r.Path("/v1/accounts/{account}/send").Handler(
		s.Handle(MessageSendV1)).Name("MessageSendV1").Methods("POST")

	// Messages
	r.Path("/v1/accounts/{account}/messages").Handler(
		s.Handle(MessageListV1)).Name("MessageListV1").Methods("GET")
	r.Path("/v1/accounts/{account}/messages/{id}").Handler(
		s.Handle(MessageShowV1)).Name("MessageShowV1").Methods("GET")
	r.Path("/v1/accounts/{account}/messages/{id}/source").Handler(
		s.Handle(MessageSourceV1)).Name("MessageSourceV1").Methods("GET")
	r.Path("/v1/accounts/{account}/messages/{id}/html").Handler(
		s.Handle(MessageHTMLV1)).Name("MessageHTMLV1").Methods("GET")
	r.Path("/v1/messages").Handler(
		s.Handle(MessageListAllV1)).Name("MessageListAllV1").Methods("GET")

	// Monitor
	r.Path("/v1/monitor/messages").Handler(
		s.Handle(MonitorAllMessagesV1)).Name("MonitorAllMessagesV1").Methods("GET")
	r.Path("/v1/monitor/messages/{account}").Handler(
		s.Handle(MonitorAccountMessagesV1)).Name("MonitorAccountMessagesV1").Methods("GET")
}
