// Package notify delivers verification codes to users.
//
// Delivery is best effort. Registration and resend succeed even when the
// code never leaves the process, so every implementation here returns its
// error to the caller, which logs it together with the code. That log line
// is the last-resort channel an operator can read the code from.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Notifier sends a verification code to an email address.
type Notifier interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

// Job is the unit of work a QueueNotifier publishes and a Consumer delivers.
type Job struct {
	Email    string    `json:"email"`
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issuedAt"`
}

// LogNotifier writes the code to the log instead of sending it anywhere.
// Use it in development, or when no mail transport is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	n.logger.Info("verification code issued",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}

type fallbackNotifier struct {
	primary  Notifier
	fallback Notifier
}

// WithFallback returns a Notifier that tries primary first. When primary
// fails the code goes out through fallback, and the primary error is still
// returned so the caller can see that the preferred channel is broken.
func WithFallback(primary, fallback Notifier) Notifier {
	return &fallbackNotifier{primary: primary, fallback: fallback}
}

func (n *fallbackNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	err := n.primary.SendVerificationCode(ctx, email, code)
	if err == nil {
		return nil
	}
	if ferr := n.fallback.SendVerificationCode(ctx, email, code); ferr != nil {
		return errors.Join(err, ferr)
	}
	return err
}
