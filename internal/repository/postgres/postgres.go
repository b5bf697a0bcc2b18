// Package postgres is the Postgres-backed aggregation store. It runs the same
// conflict upsert as the SQLite store, with JSONB payloads and timestamptz
// columns, through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Registers the "pgx" driver with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sakif/garmin-mcp/internal/apperror"
	"github.com/sakif/garmin-mcp/internal/model"
	"github.com/sakif/garmin-mcp/internal/repository"
)

var (
	_ repository.HealthRecordRepository = (*Repository)(nil)
	_ repository.Pinger                 = (*Repository)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS health_data (
	user_id          TEXT        NOT NULL,
	day              TEXT        NOT NULL,
	steps            BIGINT,
	resting_hr       BIGINT,
	calories         BIGINT,
	sleep_seconds    BIGINT,
	body_battery_min BIGINT,
	body_battery_max BIGINT,
	payload          JSONB,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, day)
)`

const healthColumns = `user_id, day, steps, resting_hr, calories, sleep_seconds,
	body_battery_min, body_battery_max, payload, created_at, updated_at`

// Repository provides Postgres-backed persistence for health records.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open pool. Callers own the pool's lifetime.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	repo := NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate creates the health_data table if it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: creating health_data table: %w", err)
	}
	return nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Upsert writes the record with INSERT ... ON CONFLICT DO UPDATE. created_at
// is not in the update list, so it keeps the first write's value.
func (r *Repository) Upsert(ctx context.Context, rec *model.HealthRecord) error {
	now := time.Now().UTC()

	payload := rec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO health_data (`+healthColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $10)
		 ON CONFLICT (user_id, day) DO UPDATE SET
			steps            = EXCLUDED.steps,
			resting_hr       = EXCLUDED.resting_hr,
			calories         = EXCLUDED.calories,
			sleep_seconds    = EXCLUDED.sleep_seconds,
			body_battery_min = EXCLUDED.body_battery_min,
			body_battery_max = EXCLUDED.body_battery_max,
			payload          = EXCLUDED.payload,
			updated_at       = EXCLUDED.updated_at
		 RETURNING created_at, updated_at`,
		rec.UserID,
		rec.Day,
		repository.NullInt(rec.Steps),
		repository.NullInt(rec.RestingHR),
		repository.NullInt(rec.Calories),
		repository.NullInt(rec.SleepSeconds),
		repository.NullInt(rec.BodyBatteryMin),
		repository.NullInt(rec.BodyBatteryMax),
		string(payload),
		now,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting health record %s: %w", rec.Key(), err)
	}
	return nil
}

// Get returns apperror.NotFound when the key is absent.
func (r *Repository) Get(ctx context.Context, userID, day string) (*model.HealthRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+healthColumns+` FROM health_data WHERE user_id = $1 AND day = $2`,
		userID, day,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("health record", userID+"/"+day)
		}
		return nil, fmt.Errorf("postgres: getting health record %s/%s: %w", userID, day, err)
	}
	return rec, nil
}

// GetRecent returns up to limit records for the user, newest day first.
func (r *Repository) GetRecent(ctx context.Context, userID string, limit int) ([]model.HealthRecord, error) {
	if limit <= 0 {
		return []model.HealthRecord{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+healthColumns+` FROM health_data
		 WHERE user_id = $1
		 ORDER BY day DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing health records for %s: %w", userID, err)
	}
	defer rows.Close()

	records := make([]model.HealthRecord, 0, min(limit, 64))
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning health record row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating health records: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*model.HealthRecord, error) {
	var (
		rec                                  model.HealthRecord
		steps, restingHR, calories, sleepSec sql.NullInt64
		bbMin, bbMax                         sql.NullInt64
		payload                              []byte
	)
	if err := s.Scan(
		&rec.UserID, &rec.Day,
		&steps, &restingHR, &calories, &sleepSec, &bbMin, &bbMax,
		&payload, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rec.Steps = repository.IntPtr(steps)
	rec.RestingHR = repository.IntPtr(restingHR)
	rec.Calories = repository.IntPtr(calories)
	rec.SleepSeconds = repository.IntPtr(sleepSec)
	rec.BodyBatteryMin = repository.IntPtr(bbMin)
	rec.BodyBatteryMax = repository.IntPtr(bbMax)

	if len(payload) == 0 {
		payload = []byte("null")
	}
	rec.Payload = json.RawMessage(payload)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
