// Package web provides the plumbing for the mailmount JSON API.
package web

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"
	"path"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/engine"
	"github.com/mailmount/mailmount/pkg/metric"
	"github.com/mailmount/mailmount/pkg/msghub"
)

const shutdownTimeout = 5 * time.Second

var (
	// ExpWebSocketConnectsCurrent tracks the number of open WebSockets
	ExpWebSocketConnectsCurrent = new(expvar.Int)

	wsConnectsHist = metric.NewHistory(metric.HourOfSamples)
)

func init() {
	m := expvar.NewMap("http")
	m.Set("WebSocketConnectsCurrent", ExpWebSocketConnectsCurrent)
	m.Set("WebSocketConnectsHist", expvar.Func(func() any { return wsConnectsHist.String() }))
	metric.AddTickerFunc(func() { wsConnectsHist.Push(ExpWebSocketConnectsCurrent) })
}

// Server serves the JSON API over HTTP.
type Server struct {
	config     config.Web
	manager    engine.Manager
	hub        *msghub.Hub
	Router     *mux.Router
	httpServer *http.Server
	notify     chan error
}

// NewServer sets up the router. Routes are added to API() before Start is called.
func NewServer(cfg config.Web, mm engine.Manager, mh *msghub.Hub) *Server {
	router := mux.NewRouter()
	router.NotFoundHandler = noMatchHandler(http.StatusNotFound, "No route matches URI path")
	router.MethodNotAllowedHandler = noMatchHandler(http.StatusMethodNotAllowed,
		"No handler for request method")
	router.Handle(path.Join("/", cfg.BasePath, "debug/vars"), expvar.Handler())

	return &Server{
		config:  cfg,
		manager: mm,
		hub:     mh,
		Router:  router,
		notify:  make(chan error, 1),
	}
}

// API returns the subrouter rooted at the API prefix, honoring the configured base path.
func (s *Server) API() *mux.Router {
	return s.Router.PathPrefix(path.Join("/", s.config.BasePath, "api")).Subrouter()
}

// ServeHTTP routes a request, logging it first.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestLoggingWrapper(s.Router).ServeHTTP(w, req)
}

// Start begins listening for HTTP requests, and blocks until ctx is cancelled.  readyFunc is
// called once the listener is open.
func (s *Server) Start(ctx context.Context, readyFunc func()) {
	slog := log.With().Str("module", "web").Str("phase", "startup").Logger()
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s,
		ReadHeaderTimeout: 30 * time.Second,
	}

	// We don't use ListenAndServe because it lacks a way to close the listener
	slog.Info().Str("addr", s.config.Addr).Msg("HTTP listening on tcp")
	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		slog.Error().Err(err).Msg("HTTP failed to start TCP listener")
		s.notify <- err
		return
	}
	if readyFunc != nil {
		readyFunc()
	}

	go s.serve(listener)

	<-ctx.Done()
	log.Debug().Str("module", "web").Str("phase", "shutdown").Msg("HTTP server shutting down on request")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(sctx); err != nil {
		log.Error().Str("module", "web").Str("phase", "shutdown").Err(err).
			Msg("Failed to shut down HTTP server")
	}
}

func (s *Server) serve(l net.Listener) {
	// Serve blocks until the server is shut down
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return
	}
	log.Error().Str("module", "web").Err(err).Msg("HTTP server failed")
	select {
	case s.notify <- err:
	default:
	}
}

// Notify receives a fatal server error.
func (s *Server) Notify() <-chan error {
	return s.notify
}
