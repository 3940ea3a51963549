package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"taskdeck/internal/auth"
)

// UserDirectory is the sqlite-backed implementation of
// auth.UserDirectory used by the packaged desktop build. Account
// records belong to the wider task manager; the gating subsystem only
// reads them through Authenticate.
type UserDirectory struct {
	store *Store
}

// Users returns the user directory view of the store
func (s *Store) Users() *UserDirectory {
	return &UserDirectory{store: s}
}

// Authenticate checks username/password against the users table.
// Returns auth.ErrBadCredentials for an unknown username or a wrong
// password without distinguishing the two.
func (d *UserDirectory) Authenticate(ctx context.Context, username, password string) (auth.Identity, error) {
	conn, err := d.store.pool.Take(ctx)
	if err != nil {
		return auth.Identity{}, fmt.Errorf("store: authenticate: %w", err)
	}
	defer d.store.pool.Put(conn)

	var id, hash string
	err = sqlitex.Execute(conn,
		"SELECT id, password_hash FROM users WHERE username = ?",
		&sqlitex.ExecOptions{
			Args: []any{username},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id = stmt.ColumnText(0)
				hash = stmt.ColumnText(1)
				return nil
			},
		})
	if err != nil {
		return auth.Identity{}, fmt.Errorf("store: authenticate: %w", err)
	}
	if id == "" {
		return auth.Identity{}, auth.ErrBadCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return auth.Identity{}, auth.ErrBadCredentials
	}

	return auth.Identity{UserID: id, Username: username}, nil
}

// EnsureUser creates an account with a bcrypt-hashed password if the
// username is not yet taken. Existing accounts are left untouched.
// Used for seeding the packaged build's initial account and by tests.
func (d *UserDirectory) EnsureUser(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("store: hashing password: %w", err)
	}

	conn, err := d.store.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: ensure user: %w", err)
	}
	defer d.store.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO users (id, username, password_hash) VALUES (?, ?, ?)",
		&sqlitex.ExecOptions{Args: []any{uuid.New().String(), username, string(hash)}})
	if err != nil {
		return fmt.Errorf("store: ensure user: %w", err)
	}
	return nil
}
