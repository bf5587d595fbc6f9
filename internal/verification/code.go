// Package verification implements the one-time email code rules.
//
// STATE MACHINE (per user):
//
//	UNVERIFIED ──Issue──▶ CODE_ISSUED ──Check ok + MarkVerified──▶ VERIFIED
//	                         │  ▲
//	                         └──┘ Issue again (resend overwrites code + expiry)
//
// The functions here only mutate a *model.User in memory. Persisting the
// result and delivering the code are the caller's job (service.AuthService).
package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/model"
)

const (
	// CodeLength is the number of decimal digits in a code.
	CodeLength = 6

	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 10 * time.Minute
)

var codeSpace = big.NewInt(1_000_000)

// Generator produces verification codes.
type Generator interface {
	Generate() (string, error)
}

// RandomGenerator draws codes uniformly from 000000-999999 using crypto/rand.
type RandomGenerator struct{}

// Generate returns a zero-padded 6-digit code.
func (RandomGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("verification: generating code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// FixedGenerator always returns the same code. Useful in tests and local demos.
type FixedGenerator string

func (g FixedGenerator) Generate() (string, error) {
	return string(g), nil
}

// Issue stores code on the user with an expiry of now+ttl, replacing any
// pending code. It does not touch IsVerified.
func Issue(u *model.User, code string, now time.Time, ttl time.Duration) {
	expires := now.Add(ttl)
	u.VerificationCode = code
	u.CodeExpires = &expires
}

// Check validates a submitted code against the user's pending one.
//
// ORDER MATTERS: the match is checked before the expiry, so a wrong code is
// always ErrCodeMismatch whether or not the pending code has expired. Only a
// correct code can learn that it is stale.
//
// The comparison is an exact string match; " 123456" does not match "123456".
// A user without a pending code never matches. A pending code without an
// expiry is treated as expired.
func Check(u *model.User, submitted string, now time.Time) error {
	if u.VerificationCode == "" || u.VerificationCode != submitted {
		return apperror.CodeMismatch()
	}
	if u.CodeExpires == nil || now.After(*u.CodeExpires) {
		return apperror.CodeExpired()
	}
	return nil
}

// MarkVerified moves the user to the terminal VERIFIED state and clears the
// pending code.
func MarkVerified(u *model.User) {
	u.IsVerified = true
	u.VerificationCode = ""
	u.CodeExpires = nil
}
