package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-melcloud/internal/infrastructure/database"
)

// Query limits for GetHistory.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// Sources recorded with a state change.
const (
	SourcePoll    = "poll"
	SourceCommand = "command"
)

// Entry is one recorded state snapshot.
type Entry struct {
	ID         int64
	DeviceID   int
	DeviceType string
	State      map[string]any
	Source     string
	RecordedAt time.Time
}

// Repository stores and queries device state history.
type Repository struct {
	db *database.DB
}

// NewRepository creates a history repository on an open database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// RecordStateChange persists a state snapshot for a device.
//
// Parameters:
//   - ctx: Context for the insert
//   - deviceID: MELCloud device identifier
//   - deviceType: Device kind label ("ata", "atw", "erv")
//   - state: Normalized state snapshot, stored as JSON
//   - source: What produced the snapshot ("poll" or "command")
//
// Returns:
//   - error: If encoding or the insert fails
func (r *Repository) RecordStateChange(ctx context.Context, deviceID int, deviceType string, state map[string]any, source string) error {
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO state_history (device_id, device_type, state, source) VALUES (?, ?, ?, ?)`,
		deviceID, deviceType, string(encoded), source,
	)
	if err != nil {
		return fmt.Errorf("recording state change: %w", err)
	}
	return nil
}

// GetHistory returns the most recent snapshots for a device, newest
// first. A limit of 0 uses the default of 50; limits above 200 are
// clamped.
func (r *Repository) GetHistory(ctx context.Context, deviceID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, device_type, state, source, recorded_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read side only

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var encoded string
		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.DeviceType, &encoded, &entry.Source, &entry.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		if err := json.Unmarshal([]byte(encoded), &entry.State); err != nil {
			return nil, fmt.Errorf("decoding state snapshot %d: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}
	return entries, nil
}

// PruneHistory deletes snapshots older than the retention window and
// returns the number of rows removed.
func (r *Repository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM state_history WHERE recorded_at < ?`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return removed, nil
}
