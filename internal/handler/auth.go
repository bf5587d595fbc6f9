package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/research-gate/internal/model"
	"github.com/sakif/research-gate/internal/service"
)

// AccountService is the part of service.AuthService the account routes use.
type AccountService interface {
	Register(ctx context.Context, name, email, password string) (*service.RegisterResult, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
}

// AuthHandler serves the four public account routes under /api/auth.
//
// All of them answer domain failures with 400, whatever the kind: the client
// only needs to show the message, and the "error" code says which failure
// it was.
type AuthHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

func NewAuthHandler(accounts AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

// Codes and passwords carry no validate tags. A code of any length is a
// wrong code and a password of any length is a wrong password, and the
// service has to see them to report that with the right error kind.

type RegisterRequest struct {
	Name     string `json:"name"  validate:"max=100"`
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Success           bool   `json:"success"`
	NeedsVerification bool   `json:"needsVerification"`
	Email             string `json:"email"`
	Message           string `json:"message"`
}

type VerifyEmailRequest struct {
	Email string `json:"email" validate:"required,max=254"`
	Code  string `json:"code"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,max=254"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Token   string           `json:"token"`
	User    model.PublicUser `json:"user"`
}

// HandleRegister creates an unverified account and sends a code.
//
// HTTP: POST /api/auth/register
// REQUEST BODY: {"name": "...", "email": "...@mbstu.ac.bd", "password": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}

	res, err := h.accounts.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Success:           true,
		NeedsVerification: res.NeedsVerification,
		Email:             res.Email,
		Message:           "Registration successful! Verification code sent to your email.",
	})
}

// HandleVerifyEmail activates an account with the emailed code.
//
// HTTP: POST /api/auth/verify-email
// REQUEST BODY: {"email": "...", "code": "123456"}
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.accounts.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "Email verified successfully! Your account is now active.",
	})
}

// HandleResendVerification issues a new code.
//
// HTTP: POST /api/auth/resend-verification
// REQUEST BODY: {"email": "..."}
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}

	if err := h.accounts.ResendVerification(r.Context(), req.Email); err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: "New verification code sent to your email!",
	})
}

// HandleLogin exchanges credentials for a bearer token.
//
// HTTP: POST /api/auth/login
// REQUEST BODY: {"email": "...", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAuthError(w, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		Message: "Login successful!",
		Token:   res.Token,
		User:    res.User,
	})
}
