// Package storage описывает хранилище dev-сервера
package storage

import (
	"context"
	"time"

	"github.com/iudanet/meetsync/internal/models"
)

// AccountStorage defines interface for server accounts persistence
type AccountStorage interface {
	// CreateAccount creates a new account
	// Returns ErrAccountAlreadyExists if username is taken
	CreateAccount(ctx context.Context, account *models.Account) error

	// GetAccountByUsername retrieves account by username
	// Returns ErrAccountNotFound if account doesn't exist
	GetAccountByUsername(ctx context.Context, username string) (*models.Account, error)

	// CountAccounts returns number of accounts
	CountAccounts(ctx context.Context) (int, error)

	// UpdateLastLogin updates the last login timestamp
	UpdateLastLogin(ctx context.Context, userID int, lastLogin time.Time) error
}

// SessionStorage defines interface for login sessions persistence
type SessionStorage interface {
	// CreateSession stores a new session
	CreateSession(ctx context.Context, session *models.Session) error

	// GetSession retrieves an active session by ID
	// Returns ErrSessionNotFound if session doesn't exist, expired or revoked
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// RevokeSession revokes session by ID
	// Returns ErrSessionNotFound if session doesn't exist or already revoked
	RevokeSession(ctx context.Context, id string) error

	// DeleteExpiredSessions removes expired and revoked sessions
	// Returns number of deleted sessions
	DeleteExpiredSessions(ctx context.Context) (int, error)
}

// Change одна запись в хранилище элементов
type Change struct {
	UserID      *int             // автор изменения, nil для системных изменений
	Information []string         // описание для журнала истории
	Changed     []models.Element // новые и измененные элементы
	Deleted     []models.ElementID
	Timestamp   int64 // unix время изменения
}

// Delta изменения начиная с FromChangeID включительно
type Delta struct {
	Changed      []models.Element
	Deleted      map[string][]int
	FromChangeID int64
	ToChangeID   int64
}

// ElementStorage defines interface for synchronized elements persistence
type ElementStorage interface {
	// WriteChange applies change atomically and returns assigned change id
	// Returns ErrEmptyChange if change has nothing to write
	WriteChange(ctx context.Context, change *Change) (int64, error)

	// GetElement retrieves current element
	// Returns ErrElementNotFound if element doesn't exist
	GetElement(ctx context.Context, collection string, id int) (models.Element, error)

	// GetElements retrieves current elements of collection with given ids, missing ids are skipped
	GetElements(ctx context.Context, collection string, ids []int) ([]models.Element, error)

	// AllElements returns all current elements and the max change id
	AllElements(ctx context.Context) ([]models.Element, int64, error)

	// ChangesSince returns elements changed or deleted in changes >= changeID
	ChangesSince(ctx context.Context, changeID int64) (*Delta, error)

	// MaxChangeID returns the id of the last change, 0 if there are none
	MaxChangeID(ctx context.Context) (int64, error)

	// HistoryData returns history records with timestamp <= ts in write order
	HistoryData(ctx context.Context, ts int64) ([]models.HistoryRecord, error)

	// HistoryInformation returns one history point per change, newest first
	HistoryInformation(ctx context.Context) ([]models.History, error)
}
