package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSQLiteSessionRepository creates a new SQLite-backed session repository.
func NewSQLiteSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

// InsertSession writes one completed session. The UNIQUE constraint on
// (device_id, started_at) turns duplicate inserts into
// ErrDuplicateSession instead of silent duplication.
func (r *SQLiteSessionRepository) InsertSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (
			device_id, user_id, started_at, ended_at, runtime_seconds,
			mode, equipment_type, avg_temperature, avg_humidity, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		session.DeviceID,
		session.UserID,
		formatTime(session.StartedAt),
		formatTime(session.EndedAt),
		session.RuntimeSeconds,
		string(session.Mode),
		session.EquipmentType,
		nullableFloat(session.AvgTemperature),
		nullableFloat(session.AvgHumidity),
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	return nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ListSessions returns completed sessions for a device, newest first,
// capped at limit. Read path for the API.
func (r *SQLiteSessionRepository) ListSessions(ctx context.Context, deviceID string, limit int) ([]Session, error) {
	query := `
		SELECT device_id, user_id, started_at, ended_at, runtime_seconds,
			mode, equipment_type, avg_temperature, avg_humidity
		FROM sessions
		WHERE device_id = ?
		ORDER BY started_at DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var startedAt, endedAt, mode string
		var avgTemp, avgHumidity sql.NullFloat64

		err := rows.Scan(
			&s.DeviceID,
			&s.UserID,
			&startedAt,
			&endedAt,
			&s.RuntimeSeconds,
			&mode,
			&s.EquipmentType,
			&avgTemp,
			&avgHumidity,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}

		s.Mode = Mode(mode)
		if s.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		if s.EndedAt, err = time.Parse(time.RFC3339, endedAt); err != nil {
			return nil, fmt.Errorf("parsing ended_at: %w", err)
		}
		if avgTemp.Valid {
			s.AvgTemperature = &avgTemp.Float64
		}
		if avgHumidity.Valid {
			s.AvgHumidity = &avgHumidity.Float64
		}

		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	return sessions, nil
}

// nullableFloat returns a sql.NullFloat64 for optional float pointers.
func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
