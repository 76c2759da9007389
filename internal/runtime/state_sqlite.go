package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStateRepository implements StateRepository using SQLite.
type SQLiteStateRepository struct {
	db *sql.DB
}

// NewSQLiteStateRepository creates a new SQLite-backed state repository.
func NewSQLiteStateRepository(db *sql.DB) *SQLiteStateRepository {
	return &SQLiteStateRepository{db: db}
}

// LoadState returns the state row for a device.
func (r *SQLiteStateRepository) LoadState(ctx context.Context, deviceID string) (*DeviceRuntimeState, error) {
	query := `
		SELECT device_id, is_running, session_started_at, last_tick_at,
			session_seconds, last_mode, last_equipment_state,
			is_reachable, last_seen_at, last_revision,
			temp_sum, humidity_sum, sample_count, updated_at
		FROM runtime_state
		WHERE device_id = ?`

	row := r.db.QueryRowContext(ctx, query, deviceID)

	var st DeviceRuntimeState
	var isRunning, isReachable int
	var sessionStartedAt, lastTickAt, lastSeenAt sql.NullString
	var lastMode, lastEquipmentState, lastRevision sql.NullString
	var updatedAt string

	err := row.Scan(
		&st.DeviceID,
		&isRunning,
		&sessionStartedAt,
		&lastTickAt,
		&st.SessionSeconds,
		&lastMode,
		&lastEquipmentState,
		&isReachable,
		&lastSeenAt,
		&lastRevision,
		&st.TempSum,
		&st.HumiditySum,
		&st.SampleCount,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("querying runtime state: %w", err)
	}

	st.IsRunning = isRunning != 0
	st.IsReachable = isReachable != 0
	st.LastMode = Mode(lastMode.String)
	st.LastEquipmentState = lastEquipmentState.String
	st.LastRevision = lastRevision.String

	if st.SessionStartedAt, err = parseNullTime(sessionStartedAt); err != nil {
		return nil, fmt.Errorf("parsing session_started_at: %w", err)
	}
	if st.LastTickAt, err = parseNullTime(lastTickAt); err != nil {
		return nil, fmt.Errorf("parsing last_tick_at: %w", err)
	}
	if st.LastSeenAt, err = parseNullTime(lastSeenAt); err != nil {
		return nil, fmt.Errorf("parsing last_seen_at: %w", err)
	}
	if st.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &st, nil
}

// SaveState applies a partial-field update and bumps updated_at.
func (r *SQLiteStateRepository) SaveState(ctx context.Context, deviceID string, update StateUpdate) error {
	sets := make([]string, 0, 12)
	args := make([]any, 0, 12)

	add := func(clause string, value any) {
		sets = append(sets, clause)
		args = append(args, value)
	}

	if update.IsRunning != nil {
		add("is_running = ?", boolToInt(*update.IsRunning))
	}
	switch {
	case update.ClearSessionStarted:
		sets = append(sets, "session_started_at = NULL")
	case update.SessionStartedAt != nil:
		add("session_started_at = ?", formatTime(*update.SessionStartedAt))
	}
	switch {
	case update.ClearLastTick:
		sets = append(sets, "last_tick_at = NULL")
	case update.LastTickAt != nil:
		add("last_tick_at = ?", formatTime(*update.LastTickAt))
	}
	if update.SessionSeconds != nil {
		add("session_seconds = ?", *update.SessionSeconds)
	}
	if update.LastMode != nil {
		add("last_mode = ?", string(*update.LastMode))
	}
	if update.LastEquipmentState != nil {
		add("last_equipment_state = ?", *update.LastEquipmentState)
	}
	if update.LastSeenAt != nil {
		add("last_seen_at = ?", formatTime(*update.LastSeenAt))
	}
	if update.LastRevision != nil {
		add("last_revision = ?", *update.LastRevision)
	}
	if update.TempSum != nil {
		add("temp_sum = ?", *update.TempSum)
	}
	if update.HumiditySum != nil {
		add("humidity_sum = ?", *update.HumiditySum)
	}
	if update.SampleCount != nil {
		add("sample_count = ?", *update.SampleCount)
	}

	// Implicit last-modified bump on every save
	add("updated_at = ?", formatTime(time.Now().UTC()))

	query := "UPDATE runtime_state SET " + strings.Join(sets, ", ") + " WHERE device_id = ?"
	args = append(args, deviceID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("saving runtime state: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStateNotFound
	}

	return nil
}

// SetReachable atomically flips is_reachable and reports whether this
// caller performed the flip. The WHERE clause only matches a row
// currently holding the opposite value, so under the poll/sweep race
// exactly one caller observes rows-affected == 1.
func (r *SQLiteStateRepository) SetReachable(ctx context.Context, deviceID string, reachable bool) (bool, error) {
	query := `
		UPDATE runtime_state
		SET is_reachable = ?, updated_at = ?
		WHERE device_id = ? AND is_reachable = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(reachable),
		formatTime(time.Now().UTC()),
		deviceID,
		boolToInt(!reachable),
	)
	if err != nil {
		return false, fmt.Errorf("setting reachability: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// EnsureState creates the default state row if none exists.
func (r *SQLiteStateRepository) EnsureState(ctx context.Context, deviceID string) error {
	query := `
		INSERT INTO runtime_state (device_id, is_running, session_seconds, is_reachable, updated_at)
		VALUES (?, 0, 0, 1, ?)
		ON CONFLICT (device_id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query, deviceID, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("ensuring runtime state: %w", err)
	}
	return nil
}

// ListStaleDevices returns devices still marked reachable whose
// last_seen_at is older than the cutoff.
func (r *SQLiteStateRepository) ListStaleDevices(ctx context.Context, olderThan time.Time) ([]string, error) {
	query := `
		SELECT device_id
		FROM runtime_state
		WHERE is_reachable = 1
		  AND last_seen_at IS NOT NULL
		  AND last_seen_at < ?`

	rows, err := r.db.QueryContext(ctx, query, formatTime(olderThan))
	if err != nil {
		return nil, fmt.Errorf("querying stale devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stale device: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale devices: %w", err)
	}

	return ids, nil
}

// parseNullTime parses an RFC3339 string column that may be NULL.
func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// formatTime renders a timestamp for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
