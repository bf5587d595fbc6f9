package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/research-gate/internal/apperror"
	"github.com/sakif/research-gate/internal/model"
)

const userColumns = `id, name, email, password_hash, is_verified, verification_code, code_expires,
	bio, profile_pic, cover_photo, date_of_birth, gender, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u           model.User
		code        sql.NullString
		codeExpires sql.NullTime
		dob         sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsVerified, &code, &codeExpires,
		&u.Bio, &u.ProfilePic, &u.CoverPhoto, &dob, &u.Gender, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.VerificationCode = code.String
	u.CodeExpires = timePtr(codeExpires)
	u.DateOfBirth = timePtr(dob)
	return &u, nil
}

// CreateUser inserts a new user and fills in its ID and timestamps.
//
// Uniqueness of email is enforced by the UNIQUE constraint, not by a
// SELECT-then-INSERT, so two concurrent registrations for the same address
// cannot both succeed. The loser gets apperror.ErrDuplicateEmail.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	now := utc(time.Now())
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.IsVerified,
		sql.NullString{String: user.VerificationCode, Valid: user.VerificationCode != ""},
		nullTime(user.CodeExpires),
		user.Bio,
		user.ProfilePic,
		user.CoverPhoto,
		nullTime(user.DateOfBirth),
		user.Gender,
		utc(user.CreatedAt),
		utc(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.DuplicateEmail()
		}
		return fmt.Errorf("sqlite: creating user %s: %w", user.Email, err)
	}

	return nil
}

// GetUserByEmail looks a user up by email. Returns apperror.ErrUserNotFound
// if there is none.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.UserNotFound()
		}
		return nil, fmt.Errorf("sqlite: getting user by email %s: %w", email, err)
	}
	return u, nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrUserNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.UserNotFound()
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// SaveUser persists the full mutable state of user and refreshes UpdatedAt.
// The email is not part of the update: it is the account's identity.
func (db *DB) SaveUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = utc(time.Now())

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, password_hash = ?, is_verified = ?, verification_code = ?, code_expires = ?,
		     bio = ?, profile_pic = ?, cover_photo = ?, date_of_birth = ?, gender = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.PasswordHash,
		user.IsVerified,
		sql.NullString{String: user.VerificationCode, Valid: user.VerificationCode != ""},
		nullTime(user.CodeExpires),
		user.Bio,
		user.ProfilePic,
		user.CoverPhoto,
		nullTime(user.DateOfBirth),
		user.Gender,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving user %s: %w", user.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.UserNotFound()
	}

	return nil
}

// GetUsersByIDs returns the public projection of every user in ids that
// exists. Unknown IDs are simply absent from the map.
func (db *DB) GetUsersByIDs(ctx context.Context, ids []string) (map[string]model.PublicUser, error) {
	users := make(map[string]model.PublicUser, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, email FROM users WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u model.PublicUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}
