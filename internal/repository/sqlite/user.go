package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/cupcakes/internal/apperror"
	"github.com/sakif/cupcakes/internal/model"
	"github.com/sakif/cupcakes/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

// UserDB is the users table.
type UserDB struct {
	conn *sql.DB
}

const selectUser = `SELECT id, username, name, email, created_at, updated_at FROM users`

// Upsert finds or creates the user with user.Username.
//
// ONE STATEMENT, NOT "SELECT THEN INSERT":
// Two requests from the same person can arrive at once (two tabs, a page
// and its XHR). With SELECT-then-INSERT both may see "no row" and both
// insert. INSERT ... ON CONFLICT lets the UNIQUE index on username decide:
// the first request inserts, every later one turns into an UPDATE of the
// profile columns and keeps the existing id and created_at.
//
// The read-back runs in the same transaction, so the caller gets the row
// exactly as this call left it.
func (u *UserDB) Upsert(ctx context.Context, user *model.User) error {
	if user.Username == "" {
		return apperror.ValidationFailed("username", "is required")
	}

	now := time.Now().UTC()

	tx, err := u.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning user upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, name, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO UPDATE SET
		     name       = excluded.name,
		     email      = excluded.email,
		     updated_at = excluded.updated_at`,
		xid.New().String(),
		user.Username,
		user.Name,
		user.Email,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user %q: %w", user.Username, err)
	}

	stored, err := scanUser(tx.QueryRowContext(ctx, selectUser+` WHERE username = ?`, user.Username))
	if err != nil {
		return fmt.Errorf("sqlite: reading back user %q: %w", user.Username, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing user upsert: %w", err)
	}

	*user = *stored
	return nil
}

// GetByUsername returns apperror.ErrNotFound if nobody has that username.
func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx, selectUser+` WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return user, nil
}

// GetUserByID returns apperror.ErrNotFound if no user has that ID.
func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(u.conn.QueryRowContext(ctx, selectUser+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Name,
		&user.Email,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
