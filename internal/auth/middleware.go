package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or shadow the values stored under it.
type contextKey string

const userKey contextKey = "user"

const bearerPrefix = "Bearer "

// Authenticator resolves a bearer token to the user it belongs to.
// service.AuthService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// ErrorWriter renders an error response. The handler package supplies one so
// that auth failures use the same JSON envelope as every other error.
type ErrorWriter func(w http.ResponseWriter, err error)

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads "Authorization: Bearer <token>", hands the token to the
// Authenticator, and stores the public view of the resolved user in the
// request context. The password hash and pending code never get that far.
// Any failure stops the chain:
//
//	missing/malformed header → apperror.AuthenticationRequired (401)
//	bad signature/payload    → apperror.ErrInvalidToken (401)
//	past expiry              → apperror.ErrTokenExpired (401)
//	user no longer exists    → apperror.ErrUserNotFound (404)
func RequireAuth(authn Authenticator, writeErr ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeErr(w, apperror.AuthenticationRequired())
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				writeErr(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user.Public())))
		})
	}
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user model.PublicUser) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the authenticated user, or false if the request
// did not pass through RequireAuth.
func UserFromContext(ctx context.Context) (model.PublicUser, bool) {
	u, ok := ctx.Value(userKey).(model.PublicUser)
	return u, ok
}

// UserIDFromContext retrieves the authenticated user's ID from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	u, ok := UserFromContext(ctx)
	if !ok || u.ID == "" {
		return "", false
	}
	return u.ID, true
}

// bearerToken extracts the token from the Authorization header. An absent
// header, a different scheme, or an empty token all count as malformed.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
