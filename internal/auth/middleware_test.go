package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/auth"
	"github.com/sakif/research-gate/internal/model"
)

type stubAuthenticator struct {
	user      *model.User
	err       error
	lastToken string
}

func (s *stubAuthenticator) Authenticate(ctx context.Context, token string) (*model.User, error) {
	s.lastToken = token
	return s.user, s.err
}

// recordError writes the error kind into the body so tests can assert on it.
func recordError(w http.ResponseWriter, err error) {
	kind := "other"
	switch {
	case errors.Is(err, apperror.ErrTokenExpired):
		kind = "token_expired"
	case errors.Is(err, apperror.ErrInvalidToken):
		kind = "invalid_token"
	case errors.Is(err, apperror.ErrUnauthorized):
		kind = "unauthorized"
	case errors.Is(err, apperror.ErrUserNotFound):
		kind = "user_not_found"
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		w.Header().Set("X-Message", appErr.Message)
	}
	w.WriteHeader(http.StatusTeapot)
	_ = json.NewEncoder(w).Encode(map[string]string{"kind": kind})
}

func protected(authn auth.Authenticator) http.Handler {
	return auth.RequireAuth(authn, recordError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.UserIDFromContext(r.Context())
		_, _ = w.Write([]byte(id))
	}))
}

func errorKind(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return body["kind"]
}

func TestRequireAuth(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		stub := &stubAuthenticator{}
		rr := httptest.NewRecorder()
		protected(stub).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, "unauthorized", errorKind(t, rr))
		assert.Empty(t, stub.lastToken, "authenticator must not be called")
		assert.Equal(t, "authentication required", rr.Header().Get("X-Message"))
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rr := httptest.NewRecorder()
		protected(&stubAuthenticator{}).ServeHTTP(rr, req)

		assert.Equal(t, "unauthorized", errorKind(t, rr))
	})

	t.Run("empty bearer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer   ")
		rr := httptest.NewRecorder()
		protected(&stubAuthenticator{}).ServeHTTP(rr, req)

		assert.Equal(t, "unauthorized", errorKind(t, rr))
	})

	t.Run("authenticator errors pass through", func(t *testing.T) {
		cases := map[string]error{
			"token_expired":  apperror.TokenExpired(),
			"invalid_token":  apperror.InvalidToken(),
			"user_not_found": apperror.UserNotFound(),
		}
		for want, err := range cases {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer abc.def.ghi")
			rr := httptest.NewRecorder()
			protected(&stubAuthenticator{err: err}).ServeHTTP(rr, req)

			assert.Equal(t, want, errorKind(t, rr))
		}
	})

	t.Run("valid token sets user", func(t *testing.T) {
		stub := &stubAuthenticator{user: &model.User{ID: "u1", Name: "Rafi"}}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer abc.def.ghi")
		rr := httptest.NewRecorder()
		protected(stub).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "u1", rr.Body.String())
		assert.Equal(t, "abc.def.ghi", stub.lastToken)
	})
}

func TestRequireAuth_ContextHoldsPublicUserOnly(t *testing.T) {
	stub := &stubAuthenticator{user: &model.User{
		ID:               "u1",
		Name:             "Rafi",
		Email:            "rafi@mbstu.ac.bd",
		PasswordHash:     "$2a$10$hash",
		VerificationCode: "123456",
	}}

	var got model.PublicUser
	h := auth.RequireAuth(stub, recordError)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, model.PublicUser{ID: "u1", Name: "Rafi", Email: "rafi@mbstu.ac.bd"}, got)
}

func TestUserFromContext_Anonymous(t *testing.T) {
	_, ok := auth.UserFromContext(context.Background())
	assert.False(t, ok)

	_, ok = auth.UserIDFromContext(context.Background())
	assert.False(t, ok)
}
