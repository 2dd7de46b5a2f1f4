package web

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/engine"
	"github.com/mailmount/mailmount/pkg/msghub"
)

// Context is passed into every request handler function.
type Context struct {
	Vars    map[string]string
	Manager engine.Manager
	MsgHub  *msghub.Hub
	Config  config.Web
	IsJSON  bool
}

// headerMatch returns true if the request header specified by name contains
// the specified value.  Case is ignored.
func headerMatch(req *http.Request, name string, value string) bool {
	value = strings.ToLower(value)
	for _, hv := range req.Header.Values(name) {
		for _, part := range strings.Split(hv, ",") {
			part, _, _ = strings.Cut(part, ";")
			if strings.ToLower(strings.TrimSpace(part)) == value {
				return true
			}
		}
	}
	return false
}

func (s *Server) newContext(req *http.Request) *Context {
	return &Context{
		Vars:    mux.Vars(req),
		Manager: s.manager,
		MsgHub:  s.hub,
		Config:  s.config,
		IsJSON:  headerMatch(req, "Accept", "application/json"),
	}
}
