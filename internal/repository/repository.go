package repository

import (
	"context"

	"github.com/sakif/garmin-mcp/internal/model"
)

// HealthRecordRepository is the aggregation store: at most one record per
// (user_id, day).
type HealthRecordRepository interface {
	// Upsert inserts the record or, when the key exists, replaces its
	// measurements and payload. CreatedAt survives; UpdatedAt is refreshed.
	// Implementations must do this as one atomic conditional write. On
	// success rec.CreatedAt and rec.UpdatedAt hold the stored values.
	Upsert(ctx context.Context, rec *model.HealthRecord) error

	// Get returns apperror.ErrNotFound when no record exists for the key.
	Get(ctx context.Context, userID, day string) (*model.HealthRecord, error)

	// GetRecent returns min(limit, count) records, most recent day first.
	// A limit of zero or less, or an unknown user, yields an empty non-nil
	// slice. Defaults belong to the caller.
	GetRecent(ctx context.Context, userID string, limit int) ([]model.HealthRecord, error)
}

// Pinger is implemented by stores that can report liveness for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}
