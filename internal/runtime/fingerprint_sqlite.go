package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteFingerprintRepository implements FingerprintRepository using SQLite.
type SQLiteFingerprintRepository struct {
	db *sql.DB
}

// NewSQLiteFingerprintRepository creates a new SQLite-backed fingerprint repository.
func NewSQLiteFingerprintRepository(db *sql.DB) *SQLiteFingerprintRepository {
	return &SQLiteFingerprintRepository{db: db}
}

// LoadFingerprint returns the stored fingerprint for a device, or nil
// when none has been recorded yet.
func (r *SQLiteFingerprintRepository) LoadFingerprint(ctx context.Context, deviceID string) (*EmittedFingerprint, error) {
	query := `
		SELECT device_id, fingerprint, emitted_at, last_temperature
		FROM emitted_fingerprints
		WHERE device_id = ?`

	row := r.db.QueryRowContext(ctx, query, deviceID)

	var fp EmittedFingerprint
	var emittedAt string
	var lastTemp sql.NullFloat64

	err := row.Scan(&fp.DeviceID, &fp.Fingerprint, &emittedAt, &lastTemp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying fingerprint: %w", err)
	}

	if fp.EmittedAt, err = time.Parse(time.RFC3339, emittedAt); err != nil {
		return nil, fmt.Errorf("parsing emitted_at: %w", err)
	}
	if lastTemp.Valid {
		fp.LastTemperature = &lastTemp.Float64
	}

	return &fp, nil
}

// SaveFingerprint upserts the fingerprint row for a device.
func (r *SQLiteFingerprintRepository) SaveFingerprint(ctx context.Context, fp *EmittedFingerprint) error {
	query := `
		INSERT INTO emitted_fingerprints (device_id, fingerprint, emitted_at, last_temperature)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			emitted_at = excluded.emitted_at,
			last_temperature = excluded.last_temperature`

	_, err := r.db.ExecContext(ctx, query,
		fp.DeviceID,
		fp.Fingerprint,
		formatTime(fp.EmittedAt),
		nullableFloat(fp.LastTemperature),
	)
	if err != nil {
		return fmt.Errorf("saving fingerprint: %w", err)
	}

	return nil
}
