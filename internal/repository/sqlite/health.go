package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/garmin-mcp/internal/apperror"
	"github.com/sakif/garmin-mcp/internal/model"
	"github.com/sakif/garmin-mcp/internal/repository"
)

var (
	_ repository.HealthRecordRepository = (*DB)(nil)
	_ repository.Pinger                 = (*DB)(nil)
)

const healthColumns = `user_id, day, steps, resting_hr, calories, sleep_seconds,
	body_battery_min, body_battery_max, payload, created_at, updated_at`

// Upsert inserts or updates the record for (user_id, day) in one statement.
//
// INSERT ... ON CONFLICT DO UPDATE:
// On conflict, the DO UPDATE branch overwrites every measurement, the
// payload and updated_at. created_at is not in the SET list, so the first
// write's value survives. RETURNING reads back the
// stored timestamps without a second query.
//
// INSERT OR REPLACE is not an option here: it deletes and re-inserts the
// row, which resets created_at.
func (db *DB) Upsert(ctx context.Context, rec *model.HealthRecord) error {
	now := formatTime(time.Now())

	payload := string(rec.Payload)
	if len(rec.Payload) == 0 {
		payload = "null"
	}

	var createdAt, updatedAt string
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO health_data (`+healthColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			steps            = excluded.steps,
			resting_hr       = excluded.resting_hr,
			calories         = excluded.calories,
			sleep_seconds    = excluded.sleep_seconds,
			body_battery_min = excluded.body_battery_min,
			body_battery_max = excluded.body_battery_max,
			payload          = excluded.payload,
			updated_at       = excluded.updated_at
		 RETURNING created_at, updated_at`,
		rec.UserID,
		rec.Day,
		repository.NullInt(rec.Steps),
		repository.NullInt(rec.RestingHR),
		repository.NullInt(rec.Calories),
		repository.NullInt(rec.SleepSeconds),
		repository.NullInt(rec.BodyBatteryMin),
		repository.NullInt(rec.BodyBatteryMax),
		payload,
		now,
		now,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: upserting health record %s: %w", rec.Key(), err)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return fmt.Errorf("sqlite: parsing created_at for %s: %w", rec.Key(), err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return fmt.Errorf("sqlite: parsing updated_at for %s: %w", rec.Key(), err)
	}
	return nil
}

// Get retrieves the record for one (user_id, day) key.
// sql.ErrNoRows is translated to apperror.NotFound.
func (db *DB) Get(ctx context.Context, userID, day string) (*model.HealthRecord, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+healthColumns+`
		 FROM health_data
		 WHERE user_id = ? AND day = ?`,
		userID, day,
	)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("health record", userID+"/"+day)
		}
		return nil, fmt.Errorf("sqlite: getting health record %s/%s: %w", userID, day, err)
	}
	return rec, nil
}

// GetRecent returns up to limit records for the user, newest day first.
// day is unique per user, so the order is total.
func (db *DB) GetRecent(ctx context.Context, userID string, limit int) ([]model.HealthRecord, error) {
	if limit <= 0 {
		return []model.HealthRecord{}, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+healthColumns+`
		 FROM health_data
		 WHERE user_id = ?
		 ORDER BY day DESC
		 LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing health records for %s: %w", userID, err)
	}
	defer rows.Close()

	records := make([]model.HealthRecord, 0, min(limit, 64))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning health record row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating health records: %w", err)
	}

	return records, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.HealthRecord, error) {
	var (
		rec                                  model.HealthRecord
		steps, restingHR, calories, sleepSec sql.NullInt64
		bbMin, bbMax                         sql.NullInt64
		payload                              sql.NullString
		createdAt, updatedAt                 string
	)
	if err := s.Scan(
		&rec.UserID, &rec.Day,
		&steps, &restingHR, &calories, &sleepSec, &bbMin, &bbMax,
		&payload, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	rec.Steps = repository.IntPtr(steps)
	rec.RestingHR = repository.IntPtr(restingHR)
	rec.Calories = repository.IntPtr(calories)
	rec.SleepSeconds = repository.IntPtr(sleepSec)
	rec.BodyBatteryMin = repository.IntPtr(bbMin)
	rec.BodyBatteryMax = repository.IntPtr(bbMax)

	if payload.Valid && payload.String != "" {
		rec.Payload = json.RawMessage(payload.String)
	} else {
		rec.Payload = json.RawMessage("null")
	}

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime accepts RFC 3339 with or without fractional seconds.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
