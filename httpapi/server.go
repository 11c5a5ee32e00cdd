// Package httpapi implements the agent's HTTP+WebSocket request pipeline
// (spec.md §4.4): peer-address capture, IP-blacklist filtering, route
// dispatch, the authentication gate, and JSON error-envelope shaping.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/lanreach/lanreach/agentconfig"
	"github.com/lanreach/lanreach/auth"
	"github.com/lanreach/lanreach/command_run"
	"github.com/lanreach/lanreach/configstore"
	"github.com/lanreach/lanreach/identity"
	"github.com/lanreach/lanreach/logbuf"
)

const (
	healthAlivenessReady = iota
	healthAlivenessUnavailable
)

// Deps are the collaborators a Server dispatches requests to.
type Deps struct {
	Identity *identity.DeviceIdentity
	CfgStore *configstore.Store[agentconfig.Config]
	Auth     *auth.Engine
	Logs     *logbuf.Store
	Executor *command_run.Executor
	Log      hclog.Logger
}

// Server is the agent's HTTP+WebSocket listener.
type Server struct {
	log hclog.Logger
	mux *http.ServeMux
	srv *http.Server
	ln  net.Listener

	identity *identity.DeviceIdentity
	cfgStore *configstore.Store[agentconfig.Config]
	auth     *auth.Engine
	logs     *logbuf.Store
	executor *command_run.Executor

	aliveness int32
}

// New constructs a Server bound to bindAddr:bindPort. The caller must still
// call Start to begin serving.
func New(bindAddr string, bindPort int, deps Deps) (*Server, error) {
	s := &Server{
		log:      deps.Log.Named("http_server"),
		mux:      http.NewServeMux(),
		identity: deps.Identity,
		cfgStore: deps.CfgStore,
		auth:     deps.Auth,
		logs:     deps.Logs,
		executor: deps.Executor,
	}

	s.registerRoutes()

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", bindAddr, bindPort),
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("httpapi: could not bind listener: %w", err)
	}
	s.ln = ln

	return s, nil
}

// Addr returns the address the server is actually bound to (useful when
// bindPort is 0).
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Start serves until Stop is called or the listener errors. It blocks and
// is meant to be run from its own goroutine.
func (s *Server) Start() {
	s.log.Info("http server listening", "address", s.srv.Addr)
	atomic.StoreInt32(&s.aliveness, healthAlivenessReady)

	if err := s.srv.Serve(s.ln); err != nil && err != http.ErrServerClosed {
		atomic.StoreInt32(&s.aliveness, healthAlivenessUnavailable)
		s.log.Error("http server stopped unexpectedly", "error", err)
	}
}

// Stop gracefully shuts the server down, letting in-flight handlers finish
// within the grace period (spec.md §4.4 "Graceful shutdown").
func (s *Server) Stop() {
	atomic.StoreInt32(&s.aliveness, healthAlivenessUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.srv.SetKeepAlivesEnabled(false)
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error("http server did not shut down cleanly", "error", err)
	}
}

// wrap composes the common per-request pipeline: peer-address capture,
// IP-blacklist filtering, the authentication gate, JSON response shaping,
// and error translation (spec.md §4.4).
func (s *Server) wrap(path string, handler func(w http.ResponseWriter, r *http.Request) (interface{}, error)) http.HandlerFunc {
	gated := s.authMiddleware(path, handler)

	f := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			s.log.Trace("request complete", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}()

		obj, err := gated(w, r)
		if err != nil {
			s.handleHTTPError(w, r, err)
			return
		}

		if obj != nil {
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(obj); err != nil {
				s.log.Error("failed to encode response", "error", err)
			}
		}
	}

	return withPeerAddr(s.blacklistMiddleware(f))
}

// handleHTTPError writes the {"error","message"} envelope with the status
// prescribed by the error's tag (spec.md §7).
func (s *Server) handleHTTPError(w http.ResponseWriter, r *http.Request, err error) {
	ce, ok := err.(codedError)
	if !ok {
		ce = errInternal("internal error")
		s.log.Error("unclassified handler error", "path", r.URL.Path, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ce.Code())
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   ce.Tag(),
		"message": ce.Error(),
	})
}
