// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/session"
)

// Deps holds the collaborators the API server dispatches to.
type Deps struct {
	Auth     *auth.Service
	Reset    *auth.PasswordResetService
	Sessions *session.Manager

	// Metrics is optional. When nil, no metrics are recorded.
	Metrics *observability.Metrics

	// Logger is optional and defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the Gatehouse HTTP JSON API.
type Server struct {
	addr       string
	deps       Deps
	router     *httprouter.Router
	listener   net.Listener
	httpServer *http.Server
	logger     *slog.Logger
	running    atomic.Bool
}

// NewServer creates an API server listening on addr.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if deps.Reset == nil {
		return nil, oops.Errorf("password reset service is required")
	}
	if deps.Sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:   addr,
		deps:   deps,
		logger: logger,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *httprouter.Router {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/v1/hello", s.instrument("hello", s.requireAuth(s.handleHello)))
	router.HandlerFunc(http.MethodGet, "/v1/users", s.instrument("users", s.handleUsers))
	router.HandlerFunc(http.MethodGet, "/v1/me", s.instrument("me", s.handleMe))
	router.HandlerFunc(http.MethodPost, "/v1/register", s.instrument("register", s.handleRegister))
	router.HandlerFunc(http.MethodPost, "/v1/login", s.instrument("login", s.handleLogin))
	router.HandlerFunc(http.MethodPost, "/v1/logout", s.instrument("logout", s.handleLogout))
	router.HandlerFunc(http.MethodPost, "/v1/confirm", s.instrument("confirm", s.handleConfirm))
	router.HandlerFunc(http.MethodPost, "/v1/forgot-password", s.instrument("forgotPassword", s.handleForgotPassword))
	router.HandlerFunc(http.MethodPost, "/v1/change-password", s.instrument("changePassword", s.handleChangePassword))

	return router
}

// Handler returns the router as an http.Handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving the API. It returns an error channel that
// receives any error from the HTTP server after startup; the channel
// is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown api server").Wrap(err)
		}
	}

	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}
