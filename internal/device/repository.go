package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Repository persists the registry between runs.
type Repository interface {
	// Load returns every stored device.
	Load(ctx context.Context) ([]Device, error)

	// Save replaces the stored set with devices in a single transaction.
	Save(ctx context.Context, devices []Device) error
}

// SQLiteRepository stores devices in the devices table.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Load(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT identity, display_name, battery, connection_state, backend_kinds,
		       source_ids, last_battery_change_at, first_seen_at, last_seen_at, low_battery_ack
		FROM devices
		ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, devices []Device) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM devices"); err != nil {
		return fmt.Errorf("clearing devices: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (
			identity, display_name, battery, connection_state, backend_kinds,
			source_ids, last_battery_change_at, first_seen_at, last_seen_at,
			low_battery_ack, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	updatedAt := formatTime(time.Now())
	for _, d := range devices {
		sources, err := json.Marshal(d.SourceIDs)
		if err != nil {
			return fmt.Errorf("marshalling source ids for %s: %w", d.Identity, err)
		}

		var battery sql.NullInt64
		if level, ok := d.Battery.Level(); ok {
			battery = sql.NullInt64{Int64: int64(level), Valid: true}
		}
		var changedAt sql.NullString
		if !d.LastBatteryChangeAt.IsZero() {
			changedAt = sql.NullString{String: formatTime(d.LastBatteryChangeAt), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			d.Identity,
			d.DisplayName,
			battery,
			d.State.String(),
			int64(d.Backends),
			string(sources),
			changedAt,
			formatTime(d.FirstSeenAt),
			formatTime(d.LastSeenAt),
			boolToInt(d.LowBatteryAcknowledged),
			updatedAt,
		); err != nil {
			return fmt.Errorf("inserting device %s: %w", d.Identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing devices: %w", err)
	}
	return nil
}

func scanDevice(rows *sql.Rows) (Device, error) {
	var (
		d                   Device
		battery             sql.NullInt64
		state, sources      string
		backends            int64
		changedAt           sql.NullString
		firstSeen, lastSeen string
		ack                 int64
	)
	if err := rows.Scan(&d.Identity, &d.DisplayName, &battery, &state, &backends,
		&sources, &changedAt, &firstSeen, &lastSeen, &ack); err != nil {
		return Device{}, fmt.Errorf("scanning device: %w", err)
	}

	var err error
	if d.State, err = ParseConnectionState(state); err != nil {
		return Device{}, fmt.Errorf("device %s: %w", d.Identity, err)
	}
	if err := json.Unmarshal([]byte(sources), &d.SourceIDs); err != nil {
		return Device{}, fmt.Errorf("%w: device %s source ids: %v", ErrInvalidDevice, d.Identity, err)
	}
	if battery.Valid {
		d.Battery = BatteryPercent(int(battery.Int64))
	}
	d.Backends = BackendSet(backends) & AllBackends
	d.LowBatteryAcknowledged = ack != 0

	if changedAt.Valid {
		d.LastBatteryChangeAt = parseTime(changedAt.String)
	}
	d.FirstSeenAt = parseTime(firstSeen)
	d.LastSeenAt = parseTime(lastSeen)
	return d, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime returns the zero time for malformed values; only this package
// writes the column.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
