package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stillhere/presence-core/internal/presence"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Entry is one recorded presence transition.
type Entry struct {
	ID         int64                 `json:"id"`
	DeviceKey  string                `json:"device_key"`
	Status     presence.OnlineStatus `json:"status"`
	AppName    string                `json:"app_name,omitempty"`
	RecordedAt int64                 `json:"recorded_at"`
}

// Recorder persists and retrieves presence transitions.
type Recorder interface {
	// Record appends a transition.
	Record(ctx context.Context, e Entry) error

	// Recent returns transitions for a device, newest first.
	// limit defaults to 50 and is capped at 200.
	Recent(ctx context.Context, deviceKey string, limit int) ([]Entry, error)

	// Prune deletes entries older than the given duration, returning the
	// number of rows removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// SQLiteRecorder implements Recorder on the presence_history table.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewSQLiteRecorder creates a Recorder backed by an open SQLite connection.
func NewSQLiteRecorder(db *sql.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: db}
}

// Record appends a transition row.
func (r *SQLiteRecorder) Record(ctx context.Context, e Entry) error {
	if e.DeviceKey == "" {
		return fmt.Errorf("device key is required")
	}
	if e.RecordedAt == 0 {
		e.RecordedAt = time.Now().UnixMilli()
	}

	var appName any
	if e.AppName != "" {
		appName = e.AppName
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO presence_history (device_key, status, app_name, recorded_at) VALUES (?, ?, ?, ?)",
		e.DeviceKey,
		string(e.Status),
		appName,
		e.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting presence history: %w", err)
	}
	return nil
}

// Recent returns transitions for a device, newest first.
func (r *SQLiteRecorder) Recent(ctx context.Context, deviceKey string, limit int) ([]Entry, error) {
	if deviceKey == "" {
		return nil, fmt.Errorf("device key is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_key, status, app_name, recorded_at
		 FROM presence_history
		 WHERE device_key = ?
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		deviceKey,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying presence history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var status string
		var appName sql.NullString

		if err := rows.Scan(&e.ID, &e.DeviceKey, &status, &appName, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning presence history: %w", err)
		}

		e.Status = presence.OnlineStatus(status)
		if appName.Valid {
			e.AppName = appName.String
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presence history: %w", err)
	}
	return entries, nil
}

// Prune deletes entries older than the given duration.
func (r *SQLiteRecorder) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().Add(-olderThan).UnixMilli()
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM presence_history WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting presence history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}
