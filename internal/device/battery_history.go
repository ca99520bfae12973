package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// BatteryReading is one row of the battery log.
type BatteryReading struct {
	ID         int64     `json:"id"`
	Identity   string    `json:"identity"`
	Battery    Battery   `json:"battery"`
	Connected  bool      `json:"connected"`
	RecordedAt time.Time `json:"recorded_at"`
}

// BatteryHistory is an append-only log of battery readings.
type BatteryHistory interface {
	// Record appends a reading. Unknown levels are skipped without error.
	Record(ctx context.Context, reading BatteryReading) error

	// History returns up to limit readings for identity, newest first.
	History(ctx context.Context, identity string, limit int) ([]BatteryReading, error)

	// Prune deletes readings recorded before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteBatteryHistory implements BatteryHistory on the battery_history table.
type SQLiteBatteryHistory struct {
	db *sql.DB
}

func NewSQLiteBatteryHistory(db *sql.DB) *SQLiteBatteryHistory {
	return &SQLiteBatteryHistory{db: db}
}

func (h *SQLiteBatteryHistory) Record(ctx context.Context, reading BatteryReading) error {
	if reading.Identity == "" {
		return fmt.Errorf("identity is required")
	}
	level, ok := reading.Battery.Level()
	if !ok {
		return nil
	}
	at := reading.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}

	_, err := h.db.ExecContext(ctx,
		"INSERT INTO battery_history (identity, battery, connected, recorded_at) VALUES (?, ?, ?, ?)",
		reading.Identity, level, boolToInt(reading.Connected), at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting battery reading: %w", err)
	}
	return nil
}

func (h *SQLiteBatteryHistory) History(ctx context.Context, identity string, limit int) ([]BatteryReading, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, identity, battery, connected, recorded_at
		FROM battery_history
		WHERE identity = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`,
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying battery history: %w", err)
	}
	defer rows.Close()

	readings := make([]BatteryReading, 0, limit)
	for rows.Next() {
		var (
			r         BatteryReading
			level     int
			connected int64
			atMillis  int64
		)
		if err := rows.Scan(&r.ID, &r.Identity, &level, &connected, &atMillis); err != nil {
			return nil, fmt.Errorf("scanning battery reading: %w", err)
		}
		r.Battery = BatteryPercent(level)
		r.Connected = connected != 0
		r.RecordedAt = time.UnixMilli(atMillis).UTC()
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating battery history: %w", err)
	}
	return readings, nil
}

func (h *SQLiteBatteryHistory) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, "DELETE FROM battery_history WHERE recorded_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning battery history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned rows: %w", err)
	}
	return n, nil
}
