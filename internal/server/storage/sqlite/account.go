package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/server/storage"
)

// CreateAccount creates a new account. Zero UserID is assigned by the database.
func (s *Storage) CreateAccount(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts (user_id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`

	var userID any
	if account.UserID > 0 {
		userID = account.UserID
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx, query,
		userID,
		account.Username,
		account.PasswordHash,
		account.CreatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: accounts.username") {
			return storage.ErrAccountAlreadyExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get account id: %w", err)
	}
	account.UserID = int(id)
	return nil
}

// GetAccountByUsername retrieves account by username
func (s *Storage) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	query := `
		SELECT user_id, username, password_hash, created_at
		FROM accounts
		WHERE username = ?
	`

	account := &models.Account{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&account.UserID,
		&account.Username,
		&account.PasswordHash,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	account.CreatedAt = time.Unix(createdAt, 0)
	return account, nil
}

// CountAccounts returns number of accounts
func (s *Storage) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, userID int, lastLogin time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET last_login = ? WHERE user_id = ?`, lastLogin.Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrAccountNotFound
	}
	return nil
}
