// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package api

import (
	"errors"
	"net/http"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/session"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDFrom(r.Context()); !ok {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
		return
	}
	s.writeJSON(w, http.StatusOK, messageResponse{Message: "hello user"})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Auth.Users(r.Context())
	if err != nil {
		errutil.LogError(s.logger, "list users", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	payload := make([]*userPayload, 0, len(users))
	for _, u := range users {
		payload = append(payload, toUserPayload(u))
	}
	s.writeJSON(w, http.StatusOK, usersResponse{Users: payload})
}

// handleMe resolves the current user from the session cookie. Unlike
// guarded operations it answers an unauthenticated request with a null
// user rather than a 401.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sid := session.ReadCookie(r)
	if sid == "" {
		s.writeJSON(w, http.StatusOK, userResponse{User: nil})
		return
	}

	userID, ok, err := s.deps.Sessions.UserID(r.Context(), sid)
	if err != nil {
		errutil.LogError(s.logger, "resolve session", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if !ok {
		s.writeJSON(w, http.StatusOK, userResponse{User: nil})
		return
	}

	user, err := s.deps.Auth.Me(r.Context(), userID)
	if err != nil {
		errutil.LogError(s.logger, "load current user", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	s.writeJSON(w, http.StatusOK, userResponse{User: toUserPayload(user)})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	user, err := s.deps.Auth.Register(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		var fieldErrs auth.FieldErrors
		if errors.As(err, &fieldErrs) {
			s.recordRegistration("invalid")
			s.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: fieldErrs})
			return
		}
		s.recordRegistration("error")
		errutil.LogError(s.logger, "register user", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	s.recordRegistration("created")
	s.writeJSON(w, http.StatusCreated, userResponse{User: toUserPayload(user)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	user, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.recordLogin("error")
		errutil.LogError(s.logger, "login", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if user == nil {
		// Unknown email, wrong password, and unconfirmed accounts all
		// land here without distinction.
		s.recordLogin("denied")
		s.writeJSON(w, http.StatusOK, userResponse{User: nil})
		return
	}

	sid, err := s.deps.Sessions.Create(r.Context(), user.ID)
	if err != nil {
		s.recordLogin("error")
		errutil.LogError(s.logger, "create session", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	s.deps.Sessions.SetCookie(w, sid)

	s.recordLogin("success")
	s.writeJSON(w, http.StatusOK, userResponse{User: toUserPayload(user)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ok := true
	if sid := session.ReadCookie(r); sid != "" {
		if err := s.deps.Sessions.Destroy(r.Context(), sid); err != nil {
			errutil.LogError(s.logger, "destroy session", err)
			ok = false
		}
	}

	// The cookie is cleared even when the store refuses to drop the
	// session, so the browser forgets it either way.
	s.deps.Sessions.ClearCookie(w)
	s.writeJSON(w, http.StatusOK, okResponse{OK: ok})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	confirmed, err := s.deps.Auth.ConfirmEmail(r.Context(), req.Token)
	if err != nil {
		errutil.LogError(s.logger, "confirm email", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	if confirmed {
		s.recordRedemption("confirm", "redeemed")
	} else {
		s.recordRedemption("confirm", "rejected")
	}
	s.writeJSON(w, http.StatusOK, okResponse{OK: confirmed})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	if err := s.deps.Reset.RequestReset(r.Context(), req.Email); err != nil {
		errutil.LogError(s.logger, "request password reset", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	// Always true so callers cannot probe which emails exist.
	s.writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	user, err := s.deps.Reset.ChangePassword(r.Context(), req.Token, req.Password)
	if err != nil {
		var fieldErrs auth.FieldErrors
		switch {
		case errors.As(err, &fieldErrs):
			s.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: fieldErrs})
		case errors.Is(err, auth.ErrInvalidToken):
			s.recordRedemption("reset", "rejected")
			s.writeJSON(w, http.StatusOK, userResponse{User: nil})
		default:
			errutil.LogError(s.logger, "change password", err)
			s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		}
		return
	}

	s.recordRedemption("reset", "redeemed")

	sid, err := s.deps.Sessions.Create(r.Context(), user.ID)
	if err != nil {
		errutil.LogError(s.logger, "create session", err)
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	s.deps.Sessions.SetCookie(w, sid)

	s.writeJSON(w, http.StatusOK, userResponse{User: toUserPayload(user)})
}

func (s *Server) recordRegistration(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RegistrationsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) recordLogin(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) recordRedemption(flow, outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.TokensRedeemedTotal.WithLabelValues(flow, outcome).Inc()
	}
}
