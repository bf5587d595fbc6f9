package handler

// RESPONSE HELPERS:
// Every JSON response from the API carries a "success" flag and a
// human-readable "message". Error responses add a machine-readable "error":
//
//	{"success": false, "error": "code_expired", "message": "Verification code expired. Please request a new one."}
//
// so a client can branch on "error" and show "message" as-is.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/research-gate/internal/apperror"
)

// maxJSONBody caps request bodies on the JSON routes.
const maxJSONBody = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`   // Machine-readable error type (e.g., "post_not_found")
	Message string `json:"message"` // Human-readable description
}

// MessageResponse is the body of a success that carries nothing but a message.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names, so a failure on
// VerifyEmailRequest.Code says "code", the key the client actually sent.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS: headers and status must be set before the body is
// written; once Encode writes, later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorCode names the most specific kind in err's chain.
func errorCode(err error) string {
	kinds := []struct {
		target error
		code   string
	}{
		{apperror.ErrDuplicateEmail, "duplicate_email"},
		{apperror.ErrUserNotFound, "user_not_found"},
		{apperror.ErrPostNotFound, "post_not_found"},
		{apperror.ErrInvalidToken, "invalid_token"},
		{apperror.ErrTokenExpired, "token_expired"},
		{apperror.ErrEmptyComment, "empty_comment"},
		{apperror.ErrInvalidPostType, "invalid_post_type"},
		{apperror.ErrCodeMismatch, "code_mismatch"},
		{apperror.ErrCodeExpired, "code_expired"},
		{apperror.ErrInvalidCredentials, "invalid_credentials"},
		{apperror.ErrNotVerified, "not_verified"},
		{apperror.ErrValidation, "validation_error"},
		{apperror.ErrNotFound, "not_found"},
		{apperror.ErrConflict, "conflict"},
		{apperror.ErrForbidden, "forbidden"},
		{apperror.ErrUnauthorized, "unauthorized"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.code
		}
	}
	return "bad_request"
}

// statusFor maps an error class to an HTTP status.
//
//	ErrValidation, ErrConflict → 400
//	ErrUnauthorized            → 401
//	ErrForbidden               → 403
//	ErrNotFound                → 404
//
// Domain errors without a class (a wrong verification code, bad
// credentials) are client mistakes and also get 400.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

// WriteError maps a domain error to the appropriate HTTP status code and
// sends it. Anything that is not an *apperror.AppError is an internal
// failure: it becomes a generic 500 and the details are only logged, since
// a raw error can contain SQL or file paths.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeInternal(w, err)
		return
	}

	writeJSON(w, statusFor(err), ErrorResponse{
		Error:   errorCode(err),
		Message: appErr.Message,
	})
}

// writeAuthError is WriteError for the public account routes, where every
// domain failure (unknown email, duplicate, wrong code) is a 400.
func writeAuthError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeInternal(w, err)
		return
	}

	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   errorCode(err),
		Message: appErr.Message,
	})
}

func writeInternal(w http.ResponseWriter, err error) {
	slog.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst and runs its validate tags. Both
// malformed JSON and failed validation come back as apperror validation
// errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("", "Request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.ValidationFailed("", "Request body too large")
		}
		return apperror.ValidationFailed("", "Invalid JSON body")
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return validationMessage(verrs[0])
		}
		return apperror.ValidationFailed("", err.Error())
	}
	return nil
}

func validationMessage(fe validator.FieldError) *apperror.AppError {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s is required", field))
	case "max":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
	default:
		return apperror.ValidationFailed(field, fmt.Sprintf("%s is invalid", field))
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
