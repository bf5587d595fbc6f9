// Package apperror defines the error kinds shared by every layer.
//
// Errors come in two tiers. The CLASS sentinels (ErrNotFound, ErrValidation,
// ...) are what HTTP handlers switch on to pick a status code. The KIND
// sentinels (ErrCodeMismatch, ErrPostNotFound, ...) name the exact failure
// and wrap their class, so both checks work on the same error:
//
//	errors.Is(err, apperror.ErrPostNotFound) // exact kind
//	errors.Is(err, apperror.ErrNotFound)     // class → 404
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

var (
	ErrDuplicateEmail     = fmt.Errorf("duplicate email: %w", ErrConflict)
	ErrUserNotFound       = fmt.Errorf("user not found: %w", ErrNotFound)
	ErrPostNotFound       = fmt.Errorf("post not found: %w", ErrNotFound)
	ErrInvalidToken       = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrTokenExpired       = fmt.Errorf("token expired: %w", ErrUnauthorized)
	ErrEmptyComment       = fmt.Errorf("empty comment: %w", ErrValidation)
	ErrInvalidPostType    = fmt.Errorf("invalid post type: %w", ErrValidation)
	ErrCodeMismatch       = errors.New("verification code mismatch")
	ErrCodeExpired        = errors.New("verification code expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// AuthenticationRequired is returned when a request carries no bearer token.
func AuthenticationRequired() *AppError {
	return Unauthorized("authentication required")
}

// Unauthorized is returned when a request carries no usable credentials at all.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func DuplicateEmail() *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: "User already exists! Please login.",
		Field:   "email",
	}
}

func UserNotFound() *AppError {
	return &AppError{
		Err:     ErrUserNotFound,
		Message: "User not found",
	}
}

func PostNotFound() *AppError {
	return &AppError{
		Err:     ErrPostNotFound,
		Message: "Post not found",
	}
}

func InvalidToken() *AppError {
	return &AppError{
		Err:     ErrInvalidToken,
		Message: "invalid token",
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:     ErrTokenExpired,
		Message: "token expired",
	}
}

func EmptyComment() *AppError {
	return &AppError{
		Err:     ErrEmptyComment,
		Message: "Comment text is required",
		Field:   "text",
	}
}

func InvalidPostType(postType string) *AppError {
	return &AppError{
		Err:     ErrInvalidPostType,
		Message: fmt.Sprintf("post type %q must be one of text, image, file", postType),
		Field:   "postType",
	}
}

func CodeMismatch() *AppError {
	return &AppError{
		Err:     ErrCodeMismatch,
		Message: "Invalid verification code",
		Field:   "code",
	}
}

func CodeExpired() *AppError {
	return &AppError{
		Err:     ErrCodeExpired,
		Message: "Verification code expired. Please request a new one.",
		Field:   "code",
	}
}

// InvalidCredentials is shared by the "no such account" and "wrong password"
// login branches so callers cannot tell which one happened.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "Invalid email or password",
	}
}

func NotVerified() *AppError {
	return &AppError{
		Err:     ErrNotVerified,
		Message: "Please verify your email first. Check your inbox for verification code.",
	}
}
