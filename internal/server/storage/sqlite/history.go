package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iudanet/meetsync/internal/models"
)

// HistoryData returns history records with timestamp <= ts in write order
func (s *Storage) HistoryData(ctx context.Context, ts int64) ([]models.HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.user_id, h.element_id, h.full_data, c.information, c.timestamp
		FROM history h
		JOIN changes c ON c.change_id = h.change_id
		WHERE c.timestamp <= ?
		ORDER BY h.seq
	`, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := []models.HistoryRecord{}
	for rows.Next() {
		var (
			record      models.HistoryRecord
			userID      sql.NullInt64
			fullData    sql.NullString
			information string
		)
		if err := rows.Scan(&userID, &record.ElementID, &fullData, &information, &record.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if userID.Valid {
			id := int(userID.Int64)
			record.UserID = &id
		}
		if fullData.Valid {
			record.FullData = json.RawMessage(fullData.String)
		}
		if record.Information, err = decodeInformation(information); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return records, nil
}

// HistoryInformation returns one history point per change, newest first
func (s *Storage) HistoryInformation(ctx context.Context) ([]models.History, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT information, timestamp FROM changes ORDER BY change_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history information: %w", err)
	}
	defer rows.Close()

	points := []models.History{}
	for rows.Next() {
		var raw string
		var point models.History
		if err := rows.Scan(&raw, &point.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history information: %w", err)
		}
		information, err := decodeInformation(raw)
		if err != nil {
			return nil, err
		}
		point.Information = strings.Join(information, ", ")
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history information: %w", err)
	}
	return points, nil
}

func decodeInformation(raw string) ([]string, error) {
	information := []string{}
	if err := json.Unmarshal([]byte(raw), &information); err != nil {
		return nil, fmt.Errorf("failed to decode history information: %w", err)
	}
	return information, nil
}
