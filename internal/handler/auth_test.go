package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/handler"
	"github.com/sakif/research-gate/internal/model"
	"github.com/sakif/research-gate/internal/service"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAccounts implements handler.AccountService with canned results.
type MockAccounts struct {
	Err error

	GotName, GotEmail, GotPassword, GotCode string
}

func (m *MockAccounts) Register(_ context.Context, name, email, password string) (*service.RegisterResult, error) {
	m.GotName, m.GotEmail, m.GotPassword = name, email, password
	if m.Err != nil {
		return nil, m.Err
	}
	return &service.RegisterResult{Email: email, NeedsVerification: true}, nil
}

func (m *MockAccounts) VerifyEmail(_ context.Context, email, code string) error {
	m.GotEmail, m.GotCode = email, code
	return m.Err
}

func (m *MockAccounts) ResendVerification(_ context.Context, email string) error {
	m.GotEmail = email
	return m.Err
}

func (m *MockAccounts) Login(_ context.Context, email, password string) (*service.LoginResult, error) {
	m.GotEmail, m.GotPassword = email, password
	if m.Err != nil {
		return nil, m.Err
	}
	return &service.LoginResult{Token: "jwt", User: model.PublicUser{ID: "u1", Name: "A", Email: email}}, nil
}

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.False(t, body.Success)
	return body
}

func TestAuthHandler_Register(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		m := &MockAccounts{}
		h := handler.NewAuthHandler(m, discard())

		rr := post(t, h.HandleRegister, `{"name":"A","email":"a@mbstu.ac.bd","password":"pw"}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		var body handler.RegisterResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		assert.True(t, body.Success)
		assert.True(t, body.NeedsVerification)
		assert.Equal(t, "a@mbstu.ac.bd", body.Email)
		assert.Equal(t, "pw", m.GotPassword)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		h := handler.NewAuthHandler(&MockAccounts{}, discard())
		rr := post(t, h.HandleRegister, `{"name":`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
	})
}

// Every domain failure on the account routes is a 400, even kinds that are
// 404 or 401 elsewhere.
func TestAuthHandler_DomainErrorsAre400(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"duplicate", apperror.DuplicateEmail(), "duplicate_email"},
		{"unknown email", apperror.UserNotFound(), "user_not_found"},
		{"mismatch", apperror.CodeMismatch(), "code_mismatch"},
		{"expired", apperror.CodeExpired(), "code_expired"},
		{"bad credentials", apperror.InvalidCredentials(), "invalid_credentials"},
		{"not verified", apperror.NotVerified(), "not_verified"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewAuthHandler(&MockAccounts{Err: tt.err}, discard())

			for _, fn := range []http.HandlerFunc{h.HandleRegister, h.HandleLogin} {
				rr := post(t, fn, `{"name":"A","email":"a@mbstu.ac.bd","password":"pw"}`)
				assert.Equal(t, http.StatusBadRequest, rr.Code)
				assert.Equal(t, tt.code, decodeError(t, rr).Error)
			}
			rr := post(t, h.HandleVerifyEmail, `{"email":"a@mbstu.ac.bd","code":"123456"}`)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestAuthHandler_UnexpectedErrorIs500(t *testing.T) {
	h := handler.NewAuthHandler(&MockAccounts{Err: errors.New("disk on fire")}, discard())

	rr := post(t, h.HandleLogin, `{"email":"a@mbstu.ac.bd","password":"pw"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	assert.Equal(t, "internal_error", body.Error)
	assert.NotContains(t, body.Message, "disk")
}

func TestAuthHandler_VerifyEmail(t *testing.T) {
	m := &MockAccounts{}
	h := handler.NewAuthHandler(m, discard())

	rr := post(t, h.HandleVerifyEmail, `{"email":"a@mbstu.ac.bd","code":"123456"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "123456", m.GotCode)

	var body handler.MessageResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.True(t, body.Success)

	rr = post(t, h.HandleVerifyEmail, `{"code":"123456"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := decodeError(t, rr)
	assert.Equal(t, "validation_error", errBody.Error)
	assert.Equal(t, "email is required", errBody.Message)
}

// Odd codes and passwords reach the service, which decides the error kind.
func TestAuthHandler_ServiceDecidesCodeAndPasswordErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		call func(t *testing.T, h *handler.AuthHandler) *httptest.ResponseRecorder
		code string
		got  func(m *MockAccounts) string
		want string
	}{
		{
			name: "unknown email with a seven digit code",
			err:  apperror.UserNotFound(),
			call: func(t *testing.T, h *handler.AuthHandler) *httptest.ResponseRecorder {
				return post(t, h.HandleVerifyEmail, `{"email":"x@mbstu.ac.bd","code":"1234567"}`)
			},
			code: "user_not_found",
			got:  func(m *MockAccounts) string { return m.GotCode },
			want: "1234567",
		},
		{
			name: "empty code",
			err:  apperror.CodeMismatch(),
			call: func(t *testing.T, h *handler.AuthHandler) *httptest.ResponseRecorder {
				return post(t, h.HandleVerifyEmail, `{"email":"a@mbstu.ac.bd","code":""}`)
			},
			code: "code_mismatch",
			got:  func(m *MockAccounts) string { return m.GotEmail },
			want: "a@mbstu.ac.bd",
		},
		{
			name: "unverified login with an overlong password",
			err:  apperror.NotVerified(),
			call: func(t *testing.T, h *handler.AuthHandler) *httptest.ResponseRecorder {
				return post(t, h.HandleLogin, `{"email":"a@mbstu.ac.bd","password":"`+strings.Repeat("p", 73)+`"}`)
			},
			code: "not_verified",
			got:  func(m *MockAccounts) string { return m.GotPassword },
			want: strings.Repeat("p", 73),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockAccounts{Err: tt.err}
			rr := tt.call(t, handler.NewAuthHandler(m, discard()))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.code, decodeError(t, rr).Error)
			assert.Equal(t, tt.want, tt.got(m))
		})
	}
}

func TestAuthHandler_ResendVerification(t *testing.T) {
	m := &MockAccounts{}
	h := handler.NewAuthHandler(m, discard())

	rr := post(t, h.HandleResendVerification, `{"email":"a@mbstu.ac.bd"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "a@mbstu.ac.bd", m.GotEmail)
}

func TestAuthHandler_LoginReturnsTokenAndPublicUser(t *testing.T) {
	h := handler.NewAuthHandler(&MockAccounts{}, discard())

	rr := post(t, h.HandleLogin, `{"email":"a@mbstu.ac.bd","password":"pw"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	raw := rr.Body.String()
	assert.NotContains(t, strings.ToLower(raw), "password")

	var body handler.LoginResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	assert.Equal(t, "jwt", body.Token)
	assert.Equal(t, "u1", body.User.ID)
}
