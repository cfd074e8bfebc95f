// internal/storage/metadata_storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Annany2002/sqlitecult/internal/domain"
)

// DBTX is satisfied by *sql.DB and *sql.Tx so metadata functions can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction, committing on success.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			customLog.Warnf("Storage: Rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullIfEmpty stores an empty optional reference as NULL.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// --- User Operations ---

const userColumns = `user_id, username, email, password_hash, is_superuser, is_staff, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(&user.UserID, &user.Username, &user.Email, &user.PasswordHash,
		&user.IsSuperuser, &user.IsStaff, &user.CreatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a new user into the metadata database.
func CreateUser(ctx context.Context, db DBTX, user *domain.User) error {
	sqlStatement := `INSERT INTO users (user_id, username, email, password_hash, is_superuser, is_staff) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, sqlStatement, user.UserID, user.Username, user.Email, user.PasswordHash, user.IsSuperuser, user.IsStaff)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users.email"):
			return ErrEmailExists
		case isUniqueViolation(err, "users.username"):
			return ErrUsernameExists
		}
		customLog.Warnf("Storage: Failed to insert user %s: %v", user.Email, err)
		return fmt.Errorf("database error during user creation: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by their email address.
func FindUserByEmail(ctx context.Context, db DBTX, email string) (*domain.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? LIMIT 1`, email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		customLog.Warnf("Storage: Failed to find user by email %s: %v", email, err)
		return nil, fmt.Errorf("database error finding user: %w", err)
	}
	return user, nil
}

// FindUserByUserId finds a user with user_id
func FindUserByUserId(ctx context.Context, db DBTX, userID string) (*domain.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ? LIMIT 1`, userID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		customLog.Warnf("Storage: Failed to find user by user_id %s: %v", userID, err)
		return nil, fmt.Errorf("database error finding user: %w", err)
	}
	return user, nil
}

// FindUserByUsername looks a user up by username.
func FindUserByUsername(ctx context.Context, db DBTX, username string) (*domain.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? LIMIT 1`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error finding user: %w", err)
	}
	return user, nil
}

// SetUserPrivileges updates the superuser and staff flags.
func SetUserPrivileges(ctx context.Context, db DBTX, userID string, superuser, staff bool) error {
	result, err := db.ExecContext(ctx, `UPDATE users SET is_superuser = ?, is_staff = ? WHERE user_id = ?`, superuser, staff, userID)
	if err != nil {
		return fmt.Errorf("database error updating user privileges: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers returns every user except excludeID, ordered by username.
func ListUsers(ctx context.Context, db DBTX, excludeID string) ([]domain.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id != ? ORDER BY username`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("database error listing users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed processing user list: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}
