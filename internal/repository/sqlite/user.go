package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/example-author/internal/apperror"
	"github.com/sakif/example-author/internal/model"
	"github.com/sakif/example-author/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, github_id, login, email, avatar_url, password_hash, created_at, updated_at`

// Upsert inserts or updates a GitHub user, keyed on GitHub ID.
//
// A returning user keeps their internal ID and CreatedAt; only the profile
// fields are refreshed. If a password account already owns the email, the
// GitHub id is attached to that account instead of creating a second one.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("github_id", "required for upsert")
	}

	existing, err := db.findUser(ctx, `github_id = ?`, *user.GitHubID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	if existing == nil && user.Email != "" {
		existing, err = db.findUser(ctx, `email = ?`, user.Email)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return err
		}
	}

	if existing == nil {
		return db.CreateUser(ctx, user)
	}

	user.ID = existing.ID
	user.CreatedAt = existing.CreatedAt
	user.PasswordHash = existing.PasswordHash
	user.UpdatedAt = time.Now()
	_, err = db.conn.ExecContext(ctx,
		`UPDATE users SET github_id = ?, login = ?, email = ?, avatar_url = ?, updated_at = ?
		 WHERE id = ?`,
		user.GitHubID,
		user.Login,
		user.Email,
		user.AvatarURL,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return nil
}

// CreateUser inserts a new account. A duplicate email or GitHub id is a
// conflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GitHubID,
		user.Login,
		user.Email,
		user.AvatarURL,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Email, err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.findUser(ctx, `id = ?`, id)
}

// GetUserByEmail retrieves a user by the identity they act under.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.findUser(ctx, `email = ?`, email)
}

func (db *DB) findUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User
	var githubID sql.NullInt64

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(
		&u.ID,
		&githubID,
		&u.Login,
		&u.Email,
		&u.AvatarURL,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user (%s): %w", where, err)
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return &u, nil
}
