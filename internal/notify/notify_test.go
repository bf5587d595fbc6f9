package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
	"golang.org/x/oauth2"

	"github.com/sakif/research-gate/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	err   error
	calls []Job
}

func (r *recordingNotifier) SendVerificationCode(_ context.Context, email, code string) error {
	r.calls = append(r.calls, Job{Email: email, Code: code})
	return r.err
}

func TestLogNotifier_LogsCode(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, n.SendVerificationCode(context.Background(), "a@mbstu.ac.bd", "123456"))
	assert.Contains(t, buf.String(), "a@mbstu.ac.bd")
	assert.Contains(t, buf.String(), "123456")
}

func TestWithFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("primary succeeds", func(t *testing.T) {
		primary, fallback := &recordingNotifier{}, &recordingNotifier{}
		err := WithFallback(primary, fallback).SendVerificationCode(ctx, "a@mbstu.ac.bd", "111111")
		require.NoError(t, err)
		assert.Len(t, primary.calls, 1)
		assert.Empty(t, fallback.calls)
	})

	t.Run("primary fails", func(t *testing.T) {
		boom := errors.New("smtp down")
		primary, fallback := &recordingNotifier{err: boom}, &recordingNotifier{}
		err := WithFallback(primary, fallback).SendVerificationCode(ctx, "a@mbstu.ac.bd", "111111")
		assert.ErrorIs(t, err, boom)
		require.Len(t, fallback.calls, 1)
		assert.Equal(t, "111111", fallback.calls[0].Code)
	})
}

func TestNewSMTPNotifier_Validation(t *testing.T) {
	_, err := NewSMTPNotifier(config.SMTPConfig{From: "x@y.z"})
	assert.Error(t, err)

	_, err = NewSMTPNotifier(config.SMTPConfig{Host: "smtp.example.com"})
	assert.Error(t, err)
}

// capture records what SendVerificationCode hands to the transport.
type capture struct {
	creds       credentials
	raw         string
	hasDeadline bool
}

func capturing(n *SMTPNotifier, err error) *capture {
	c := &capture{}
	n.send = func(ctx context.Context, creds credentials, msg *mail.Msg) error {
		var buf bytes.Buffer
		if _, werr := msg.WriteTo(&buf); werr != nil {
			return werr
		}
		_, c.hasDeadline = ctx.Deadline()
		c.creds, c.raw = creds, buf.String()
		return err
	}
	return c
}

func TestSMTPNotifier_SendsHTMLMail(t *testing.T) {
	n, err := NewSMTPNotifier(config.SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "bot@example.com",
		Password: "secret",
		From:     "bot@example.com",
	})
	require.NoError(t, err)
	got := capturing(n, nil)

	require.NoError(t, n.SendVerificationCode(context.Background(), "student@mbstu.ac.bd", "042517"))

	assert.Equal(t, credentials{mechanism: mail.SMTPAuthPlain, username: "bot@example.com", secret: "secret"}, got.creds)
	assert.Contains(t, got.raw, "Subject: Your Verification Code - MBSTU Research Gate")
	assert.Contains(t, got.raw, "<student@mbstu.ac.bd>")
	assert.Contains(t, got.raw, "text/html")
	assert.Contains(t, got.raw, "042517")
	assert.Contains(t, got.raw, "expire in 10 minutes")
}

func TestSMTPNotifier_XOAuth2(t *testing.T) {
	n, err := NewSMTPNotifier(config.SMTPConfig{Host: "smtp.gmail.com", Port: 587, Username: "bot@gmail.com", From: "bot@gmail.com"})
	require.NoError(t, err)
	n.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ya29.token"})
	got := capturing(n, nil)

	require.NoError(t, n.SendVerificationCode(context.Background(), "s@mbstu.ac.bd", "000001"))
	assert.Equal(t, credentials{mechanism: mail.SMTPAuthXOAUTH2, username: "bot@gmail.com", secret: "ya29.token"}, got.creds)
}

func TestSMTPNotifier_NoUsernameMeansNoAuth(t *testing.T) {
	n, err := NewSMTPNotifier(config.SMTPConfig{Host: "relay.internal", Port: 25, From: "bot@example.com"})
	require.NoError(t, err)
	got := capturing(n, nil)

	require.NoError(t, n.SendVerificationCode(context.Background(), "s@mbstu.ac.bd", "000001"))
	assert.Equal(t, credentials{}, got.creds)
}

func TestSMTPNotifier_DeliveryIsBounded(t *testing.T) {
	n, err := NewSMTPNotifier(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "bot@example.com"})
	require.NoError(t, err)

	t.Run("deadline applied without one from the caller", func(t *testing.T) {
		got := capturing(n, nil)
		require.NoError(t, n.SendVerificationCode(context.Background(), "s@mbstu.ac.bd", "000001"))
		assert.True(t, got.hasDeadline)
	})

	t.Run("cancelled caller never reaches the relay", func(t *testing.T) {
		called := false
		n.send = func(context.Context, credentials, *mail.Msg) error {
			called = true
			return nil
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := n.SendVerificationCode(ctx, "s@mbstu.ac.bd", "000001")
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})

	t.Run("unreachable relay gives up at the deadline", func(t *testing.T) {
		n.send = func(ctx context.Context, _ credentials, _ *mail.Msg) error {
			<-ctx.Done()
			return ctx.Err()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		err := n.SendVerificationCode(ctx, "s@mbstu.ac.bd", "000001")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 5*time.Second)
	})
}

func TestSMTPNotifier_SendError(t *testing.T) {
	n, err := NewSMTPNotifier(config.SMTPConfig{Host: "smtp.example.com", Port: 25, From: "bot@example.com"})
	require.NoError(t, err)
	boom := errors.New("connection refused")
	capturing(n, boom)

	err = n.SendVerificationCode(context.Background(), "s@mbstu.ac.bd", "000001")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, strings.Contains(err.Error(), "s@mbstu.ac.bd"))
}
