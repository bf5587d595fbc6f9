// AUTHENTICATION:
//
// AuthService owns the account lifecycle:
//
//	Register ──▶ UNVERIFIED + code ──VerifyEmail──▶ VERIFIED ──Login──▶ token
//	                  ▲        │
//	                  └────────┘ ResendVerification (new code, new expiry)
//
// and resolves bearer tokens back to users for every protected route:
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt)
//	                               ↘ Notifier (code delivery, best effort)

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/auth"
	"github.com/sakif/research-gate/internal/metrics"
	"github.com/sakif/research-gate/internal/model"
	"github.com/sakif/research-gate/internal/notify"
	"github.com/sakif/research-gate/internal/repository"
	"github.com/sakif/research-gate/internal/verification"
)

// DefaultEmailDomain is the only address suffix allowed to register.
const DefaultEmailDomain = "@mbstu.ac.bd"

// AuthOptions carries the tunables and test seams of an AuthService. Zero
// values fall back to production defaults.
type AuthOptions struct {
	EmailDomain string                 // default DefaultEmailDomain
	CodeTTL     time.Duration          // default verification.DefaultTTL
	Codes       verification.Generator // default verification.RandomGenerator
	Metrics     *metrics.Metrics       // nil disables counting
	Now         func() time.Time       // default time.Now
}

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users      repository.UserRepository  → read/write user records
//   - tokens     *auth.TokenService         → sign/validate JWTs
//   - passwords  *auth.PasswordService      → bcrypt hashing
//   - notifier   notify.Notifier            → deliver verification codes
//   - logger     *slog.Logger               → structured logging
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	notifier  notify.Notifier
	logger    *slog.Logger

	emailDomain string
	codeTTL     time.Duration
	codes       verification.Generator
	metrics     *metrics.Metrics
	now         func() time.Time
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	notifier notify.Notifier,
	logger *slog.Logger,
	opts AuthOptions,
) *AuthService {
	s := &AuthService{
		users:       users,
		tokens:      tokens,
		passwords:   passwords,
		notifier:    notifier,
		logger:      logger,
		emailDomain: strings.ToLower(opts.EmailDomain),
		codeTTL:     opts.CodeTTL,
		codes:       opts.Codes,
		metrics:     opts.Metrics,
		now:         opts.Now,
	}
	if s.emailDomain == "" {
		s.emailDomain = DefaultEmailDomain
	}
	if s.codeTTL <= 0 {
		s.codeTTL = verification.DefaultTTL
	}
	if s.codes == nil {
		s.codes = verification.RandomGenerator{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RegisterResult tells the client which address is awaiting verification.
type RegisterResult struct {
	Email             string
	NeedsVerification bool
}

// LoginResult bundles the issued JWT and the public view of the user.
type LoginResult struct {
	Token string
	User  model.PublicUser
}

// normalizeEmail trims and lowercases an address so " A@MBSTU.ac.bd" and
// "a@mbstu.ac.bd" are the same account.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// emailNotFound is ErrUserNotFound with the wording the verification routes
// show to a user who mistyped their address.
func emailNotFound() *apperror.AppError {
	return &apperror.AppError{
		Err:     apperror.ErrUserNotFound,
		Message: "Email not found. Please register again.",
		Field:   "email",
	}
}

// Register creates an unverified account and sends it a verification code.
//
// The order of checks is: required fields, email domain, duplicate email.
// Code delivery is best effort. If the notifier fails the account still
// exists with a valid pending code, and the code is logged at Warn so an
// operator can hand it over.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*RegisterResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" || email == "" || password == "" {
		return nil, apperror.ValidationFailed("", "All fields are required")
	}
	if !strings.HasSuffix(email, s.emailDomain) || len(email) == len(s.emailDomain) {
		return nil, apperror.ValidationFailed("email",
			fmt.Sprintf("Only MBSTU email (%s) is allowed!", s.emailDomain))
	}

	// The store enforces uniqueness too; this lookup just avoids hashing a
	// password for an address we already know is taken.
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, apperror.DuplicateEmail()
	} else if !errors.Is(err, apperror.ErrUserNotFound) {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, apperror.ValidationFailed("password",
				fmt.Sprintf("Password must be at most %d characters", auth.MaxPasswordBytes))
		}
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	code, err := s.codes.Generate()
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	verification.Issue(user, code, s.now(), s.codeTTL)

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateEmail) {
			return nil, err
		}
		s.logger.Error("failed to create user",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", email),
	)
	s.metrics.RegistrationSucceeded()

	s.deliver(ctx, email, code)

	return &RegisterResult{Email: email, NeedsVerification: true}, nil
}

// VerifyEmail checks a submitted code and, on success, activates the account.
//
// CHECK ORDER: the user must exist, then the code must match, then it must
// not be expired. A wrong code is ErrCodeMismatch even when the pending code
// has also expired.
func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrUserNotFound) {
			s.metrics.VerificationAttempt(metrics.ResultFailure)
			return emailNotFound()
		}
		return fmt.Errorf("loading user: %w", err)
	}

	if err := verification.Check(user, code, s.now()); err != nil {
		switch {
		case errors.Is(err, apperror.ErrCodeExpired):
			s.metrics.VerificationAttempt(metrics.ResultExpired)
		default:
			s.metrics.VerificationAttempt(metrics.ResultMismatch)
		}
		s.logger.Info("verification rejected",
			slog.String("email", email),
			slog.String("reason", err.Error()),
		)
		return err
	}

	verification.MarkVerified(user)
	if err := s.users.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("saving verified user: %w", err)
	}

	s.metrics.VerificationAttempt(metrics.ResultSuccess)
	s.logger.Info("email verified", slog.String("user_id", user.ID), slog.String("email", email))
	return nil
}

// ResendVerification issues a fresh code, replacing any pending one.
//
// It does not check IsVerified. Resending to a verified account stores a
// code that can never be used for anything; that is logged so it shows up
// if someone is hammering the endpoint.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrUserNotFound) {
			return emailNotFound()
		}
		return fmt.Errorf("loading user: %w", err)
	}

	if user.IsVerified {
		s.logger.Warn("resending verification code to an already verified user",
			slog.String("user_id", user.ID),
			slog.String("email", email),
		)
	}

	code, err := s.codes.Generate()
	if err != nil {
		return err
	}
	verification.Issue(user, code, s.now(), s.codeTTL)

	if err := s.users.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("saving new verification code: %w", err)
	}

	s.deliver(ctx, email, code)
	return nil
}

// deliver hands the code to the notifier and absorbs any failure.
func (s *AuthService) deliver(ctx context.Context, email, code string) {
	if err := s.notifier.SendVerificationCode(ctx, email, code); err != nil {
		s.logger.Warn("verification code not delivered; use the logged code",
			slog.String("email", email),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Debug("verification code sent", slog.String("email", email))
}

// Login checks credentials and issues a token.
//
// An unknown email and a wrong password are the same error kind so a caller
// cannot learn which accounts exist. The verification check comes before the
// password check: an unverified account is refused whatever password is sent.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrUserNotFound) {
			s.metrics.LoginAttempt(metrics.ResultFailure)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !user.IsVerified {
		s.metrics.LoginAttempt(metrics.ResultFailure)
		return nil, apperror.NotVerified()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.metrics.LoginAttempt(metrics.ResultFailure)
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.InvalidCredentials()
		}
		s.logger.Error("stored password hash is unusable",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.InvalidCredentials()
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.metrics.LoginAttempt(metrics.ResultSuccess)
	s.logger.Info("user logged in", slog.String("user_id", user.ID))

	return &LoginResult{Token: token, User: user.Public()}, nil
}

// Authenticate resolves a bearer token to the user it was issued for. It
// satisfies auth.Authenticator so RequireAuth can call it directly.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrUserNotFound) {
			return nil, apperror.UserNotFound()
		}
		return nil, fmt.Errorf("loading token subject: %w", err)
	}
	return user, nil
}

var _ auth.Authenticator = (*AuthService)(nil)
