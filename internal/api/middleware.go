// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

type contextKey string

const userIDKey contextKey = "gatehouse.userID"

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument records a request counter per operation and status code.
func (s *Server) instrument(operation string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Metrics == nil {
			next(w, r)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.deps.Metrics.RequestsTotal.WithLabelValues(operation, strconv.Itoa(rec.status)).Inc()
	}
}

// requireAuth rejects requests that do not carry a valid session.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.sessionUser(w, r)
		if !ok {
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

// sessionUser resolves the session cookie to a user id, writing the
// 401 response itself when the request is unauthenticated. The second
// return value reports whether the handler should proceed.
func (s *Server) sessionUser(w http.ResponseWriter, r *http.Request) (ulid.ULID, bool) {
	sid := session.ReadCookie(r)
	if sid == "" {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return ulid.ULID{}, false
	}

	userID, ok, err := s.deps.Sessions.UserID(r.Context(), sid)
	if err != nil {
		errutil.LogError(s.logger, "resolve session", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return ulid.ULID{}, false
	}
	if !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return ulid.ULID{}, false
	}

	// Sliding expiration, best effort.
	if err := s.deps.Sessions.Touch(r.Context(), sid); err != nil {
		errutil.LogError(s.logger, "touch session", err)
	}

	return userID, true
}

func userIDFrom(ctx context.Context) (ulid.ULID, bool) {
	id, ok := ctx.Value(userIDKey).(ulid.ULID)
	return id, ok
}
