package verification

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/model"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestRandomGenerator_Format(t *testing.T) {
	var g RandomGenerator
	for i := 0; i < 500; i++ {
		code, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if !sixDigits.MatchString(code) {
			t.Fatalf("Generate() = %q, want 6 digits", code)
		}
	}
}

func TestIssue_SetsCodeAndExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	u := &model.User{}

	Issue(u, "123456", now, DefaultTTL)

	if u.VerificationCode != "123456" {
		t.Errorf("VerificationCode = %q, want 123456", u.VerificationCode)
	}
	if u.CodeExpires == nil || !u.CodeExpires.Equal(now.Add(10*time.Minute)) {
		t.Errorf("CodeExpires = %v, want now+10m", u.CodeExpires)
	}
	if u.IsVerified {
		t.Error("Issue() must not verify the user")
	}
}

func TestIssue_OverwritesPreviousCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	u := &model.User{}

	Issue(u, "111111", now, DefaultTTL)
	Issue(u, "222222", now.Add(5*time.Minute), DefaultTTL)

	if err := Check(u, "111111", now.Add(6*time.Minute)); !errors.Is(err, apperror.ErrCodeMismatch) {
		t.Errorf("old code: Check() = %v, want ErrCodeMismatch", err)
	}
	if err := Check(u, "222222", now.Add(14*time.Minute)); err != nil {
		t.Errorf("new code: Check() = %v, want nil", err)
	}
}

func TestCheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	issued := func() *model.User {
		u := &model.User{}
		Issue(u, "123456", now, DefaultTTL)
		return u
	}

	tests := []struct {
		name    string
		user    *model.User
		code    string
		at      time.Time
		wantErr error
	}{
		{name: "correct and fresh", user: issued(), code: "123456", at: now.Add(time.Minute)},
		{name: "exactly at expiry is still valid", user: issued(), code: "123456", at: now.Add(DefaultTTL)},
		{name: "wrong code", user: issued(), code: "654321", at: now.Add(time.Minute), wantErr: apperror.ErrCodeMismatch},
		{name: "wrong code after expiry is still a mismatch", user: issued(), code: "654321", at: now.Add(time.Hour), wantErr: apperror.ErrCodeMismatch},
		{name: "correct code after expiry", user: issued(), code: "123456", at: now.Add(DefaultTTL + time.Second), wantErr: apperror.ErrCodeExpired},
		{name: "no normalisation", user: issued(), code: " 123456", at: now, wantErr: apperror.ErrCodeMismatch},
		{name: "no pending code", user: &model.User{}, code: "", at: now, wantErr: apperror.ErrCodeMismatch},
		{name: "code without expiry", user: &model.User{VerificationCode: "123456"}, code: "123456", at: now, wantErr: apperror.ErrCodeExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.user, tt.code, tt.at)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Check() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Check() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestMarkVerified_ClearsCode(t *testing.T) {
	u := &model.User{}
	Issue(u, "123456", time.Now(), DefaultTTL)

	MarkVerified(u)

	if !u.IsVerified {
		t.Error("IsVerified = false, want true")
	}
	if u.VerificationCode != "" || u.CodeExpires != nil {
		t.Errorf("code not cleared: %q %v", u.VerificationCode, u.CodeExpires)
	}
}
