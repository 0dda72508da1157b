package http

import (
	"errors"
	"net/http"

	"blackout/internal/auth"
	"blackout/internal/core"
	"blackout/internal/log"
)

// handleRegister serves POST /api/auth/register.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError("invalid request body: " + err.Error()).Write(w)
		return
	}

	user, err := s.auth.Register(r.Context(), auth.Registration{
		Name:        sanitizeInput(req.Name),
		DateOfBirth: req.DateOfBirth,
		PhoneNumber: sanitizeInput(req.PhoneNumber),
		Email:       req.Email,
		Password:    req.Password,
	})
	switch {
	case err == nil:
	case errors.Is(err, core.ErrValidation):
		BadRequestError(err.Error()).Write(w)
		return
	default:
		log.FromContext(r.Context()).WithComponent(log.ComponentAuth).ErrorContext(r.Context(),
			"Registration failed", log.FieldError, err)
		InternalServerError("could not register user").Write(w)
		return
	}

	NewResponse().Status(http.StatusCreated).JSON(userView{
		ID:    int64(user.ID),
		Name:  user.Name,
		Email: user.Email,
	}).Write(w)
}

// handleLogin serves POST /api/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequestError("invalid request body: " + err.Error()).Write(w)
		return
	}

	token, expires, err := s.auth.Login(r.Context(), req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		UnauthorizedError(err.Error()).Write(w)
		return
	default:
		log.FromContext(r.Context()).WithComponent(log.ComponentAuth).ErrorContext(r.Context(),
			"Login failed", log.FieldError, err)
		InternalServerError("could not log in").Write(w)
		return
	}

	NewResponse().JSON(tokenView{Token: token, ExpiresAt: expires.UTC()}).Write(w)
}
