// Package server wires the mailmount services together.
package server

import (
	"context"
	"fmt"

	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/engine"
	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/extension/luahost"
	"github.com/mailmount/mailmount/pkg/msghub"
	"github.com/mailmount/mailmount/pkg/rest"
	"github.com/mailmount/mailmount/pkg/server/web"
	"github.com/mailmount/mailmount/pkg/session"
	"github.com/mailmount/mailmount/pkg/storage"
)

// Services holds the configured services.
type Services struct {
	MsgHub    *msghub.Hub
	Engine    *engine.Engine
	WebServer *web.Server
	LuaHost   *luahost.Host
	done      chan struct{}
}

// FullAssembly wires up the production mailmount environment. Nothing is started until Start is
// called.
func FullAssembly(conf *config.Root) (*Services, error) {
	extHost := extension.NewHost()
	luaHost, err := luahost.New(conf.Lua, extHost)
	if err != nil {
		return nil, fmt.Errorf("lua extensions: %w", err)
	}

	store, err := storage.FromConfig(conf.Storage)
	if err != nil {
		return nil, err
	}

	msgHub := msghub.New(conf.Web.MonitorHistory, extHost)
	sessions := engine.Sessions(session.FromConfig(conf.Session))
	eng := engine.New(store, sessions, extHost, conf.Sync)

	webServer := web.NewServer(conf.Web, eng, msgHub)
	rest.SetupRoutes(webServer)

	return &Services{
		MsgHub:    msgHub,
		Engine:    eng,
		WebServer: webServer,
		LuaHost:   luaHost,
		done:      make(chan struct{}),
	}, nil
}

// Start all services, returns immediately. readyFunc is called once the HTTP listener is open.
func (s *Services) Start(ctx context.Context, readyFunc func()) {
	go s.MsgHub.Start(ctx)
	go func() {
		s.WebServer.Start(ctx, readyFunc)
		close(s.done)
	}()
}

// Done is closed once the web server has stopped serving.
func (s *Services) Done() <-chan struct{} {
	return s.done
}

// Notify merges the fatal error channels of the running services.
func (s *Services) Notify() <-chan error {
	return s.WebServer.Notify()
}
