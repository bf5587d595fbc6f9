// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. Go favours composition over
// inheritance, so a Post simply holds slices of Like and Comment values.
package model

import "time"

// User represents a registered account.
//
// A user starts unverified. Registration stores a pending verification code
// and its expiry; presenting the matching code before the expiry flips
// IsVerified and clears both fields. Only verified users can log in.
//
// WHY *time.Time FOR CodeExpires?
// A verified user has no pending code, so "no expiry" must be representable.
// A nil pointer maps cleanly to SQL NULL and to an absent BSON field, where
// the zero time.Time would be a real (very old) instant.
//
// Secrets carry `json:"-"` so a User can never leak its hash or pending code
// through an accidental writeJSON(w, 200, user).
type User struct {
	ID               string     `json:"id"                    db:"id"`
	Name             string     `json:"name"                  db:"name"`
	Email            string     `json:"email"                 db:"email"`
	PasswordHash     string     `json:"-"                     db:"password_hash"`
	IsVerified       bool       `json:"isVerified"            db:"is_verified"`
	VerificationCode string     `json:"-"                     db:"verification_code"`
	CodeExpires      *time.Time `json:"-"                     db:"code_expires"`
	Bio              string     `json:"bio"                   db:"bio"`
	ProfilePic       string     `json:"profilePic"            db:"profile_pic"`
	CoverPhoto       string     `json:"coverPhoto"            db:"cover_photo"`
	DateOfBirth      *time.Time `json:"dateOfBirth,omitempty" db:"date_of_birth"`
	Gender           string     `json:"gender"                db:"gender"`
	CreatedAt        time.Time  `json:"createdAt"             db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt"             db:"updated_at"`
}

// PublicUser is the projection of a User that is safe to hand to other
// clients: it never includes the password hash or verification state.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Public returns the public projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}
