package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/meetsync/internal/models"
	"github.com/iudanet/meetsync/internal/server/storage"
)

// WriteChange applies change atomically and returns assigned change id
func (s *Storage) WriteChange(ctx context.Context, change *storage.Change) (int64, error) {
	if len(change.Changed) == 0 && len(change.Deleted) == 0 {
		return 0, storage.ErrEmptyChange
	}

	information := change.Information
	if information == nil {
		information = []string{}
	}
	infoJSON, err := json.Marshal(information)
	if err != nil {
		return 0, fmt.Errorf("failed to encode information: %w", err)
	}
	timestamp := change.Timestamp
	if timestamp == 0 {
		timestamp = s.now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO changes (user_id, information, timestamp) VALUES (?, ?, ?)`,
		change.UserID, string(infoJSON), timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert change: %w", err)
	}
	changeID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get change id: %w", err)
	}

	for _, e := range change.Changed {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO elements (collection, id, data, change_id) VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, change_id = excluded.change_id
		`, e.Collection, e.ID, string(e.Data), changeID)
		if err != nil {
			return 0, fmt.Errorf("failed to write %s: %w", e.Key(), err)
		}
		if err := insertHistory(ctx, tx, changeID, e.Key(), e.Data); err != nil {
			return 0, err
		}
	}

	for _, key := range change.Deleted {
		collection, id, err := models.ParseElementID(string(key))
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM elements WHERE collection = ? AND id = ?`, collection, id); err != nil {
			return 0, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		if err := insertHistory(ctx, tx, changeID, key, nil); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit change: %w", err)
	}
	return changeID, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, changeID int64, key models.ElementID, data json.RawMessage) error {
	var fullData any
	if data != nil {
		fullData = string(data)
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO history (change_id, element_id, full_data) VALUES (?, ?, ?)`,
		changeID, string(key), fullData,
	)
	if err != nil {
		return fmt.Errorf("failed to write history of %s: %w", key, err)
	}
	return nil
}

// GetElement retrieves current element
func (s *Storage) GetElement(ctx context.Context, collection string, id int) (models.Element, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM elements WHERE collection = ? AND id = ?`, collection, id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Element{}, storage.ErrElementNotFound
		}
		return models.Element{}, fmt.Errorf("failed to get element: %w", err)
	}
	return models.Element{Collection: collection, ID: id, Data: json.RawMessage(data)}, nil
}

// GetElements retrieves current elements of collection with given ids
func (s *Storage) GetElements(ctx context.Context, collection string, ids []int) ([]models.Element, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, collection)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT collection, id, data FROM elements WHERE collection = ? AND id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `) ORDER BY id`

	return s.queryElements(ctx, query, args...)
}

// AllElements returns all current elements and the max change id
func (s *Storage) AllElements(ctx context.Context) ([]models.Element, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	changeID, err := maxChangeID(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	elements, err := scanElements(tx.QueryContext(ctx, `SELECT collection, id, data FROM elements ORDER BY collection, id`))
	if err != nil {
		return nil, 0, err
	}
	return elements, changeID, nil
}

// ChangesSince returns elements changed or deleted in changes >= changeID.
// Changed elements carry their current data.
func (s *Storage) ChangesSince(ctx context.Context, changeID int64) (*storage.Delta, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	toChangeID, err := maxChangeID(ctx, tx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT h.element_id, e.data
		FROM (SELECT DISTINCT element_id FROM history WHERE change_id >= ?) h
		LEFT JOIN elements e ON e.collection || ':' || e.id = h.element_id
		ORDER BY h.element_id
	`, changeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	delta := &storage.Delta{
		Deleted:      make(map[string][]int),
		FromChangeID: changeID,
		ToChangeID:   toChangeID,
	}
	for rows.Next() {
		var key string
		var data sql.NullString
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		collection, id, err := models.ParseElementID(key)
		if err != nil {
			return nil, err
		}
		if !data.Valid {
			delta.Deleted[collection] = append(delta.Deleted[collection], id)
			continue
		}
		delta.Changed = append(delta.Changed, models.Element{
			Collection: collection,
			ID:         id,
			Data:       json.RawMessage(data.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read changes: %w", err)
	}
	return delta, nil
}

// MaxChangeID returns the id of the last change
func (s *Storage) MaxChangeID(ctx context.Context) (int64, error) {
	return maxChangeID(ctx, s.db)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func maxChangeID(ctx context.Context, q queryRower) (int64, error) {
	var changeID int64
	if err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(change_id), 0) FROM changes`).Scan(&changeID); err != nil {
		return 0, fmt.Errorf("failed to get max change id: %w", err)
	}
	return changeID, nil
}

func (s *Storage) queryElements(ctx context.Context, query string, args ...any) ([]models.Element, error) {
	return scanElements(s.db.QueryContext(ctx, query, args...))
}

func scanElements(rows *sql.Rows, err error) ([]models.Element, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query elements: %w", err)
	}
	defer rows.Close()

	var elements []models.Element
	for rows.Next() {
		var e models.Element
		var data string
		if err := rows.Scan(&e.Collection, &e.ID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan element: %w", err)
		}
		e.Data = json.RawMessage(data)
		elements = append(elements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read elements: %w", err)
	}
	return elements, nil
}
