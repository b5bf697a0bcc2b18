package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/sakif/garmin-mcp/internal/metrics"
	"github.com/sakif/garmin-mcp/internal/model"
	"github.com/sakif/garmin-mcp/internal/repository"
)

var _ repository.HealthRecordRepository = (*Repository)(nil)

const DefaultTTL = 5 * time.Minute

// Repository decorates a store with a read-through cache for single-day
// lookups. The store stays authoritative: cache failures are logged and the
// call falls through to the store.
//
// A fill never outlives a concurrent Upsert of the same key in this process:
// each in-flight fill holds a generation that Upsert bumps, and a fill whose
// generation moved is skipped or deleted again after the write.
type Repository struct {
	next   repository.HealthRecordRepository
	kv     KV
	ttl    time.Duration
	logger *slog.Logger

	mu    sync.Mutex
	fills map[string]*fill
}

// fill tracks the readers currently refilling one key.
type fill struct {
	gen     uint64
	readers int
}

func NewRepository(next repository.HealthRecordRepository, kv KV, ttl time.Duration, logger *slog.Logger) *Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Repository{next: next, kv: kv, ttl: ttl, logger: logger, fills: map[string]*fill{}}
}

// Key is the cache key for one (user, day) record. The user part is length
// prefixed, so a ':' inside either part cannot make two keys collide.
func Key(userID, day string) string {
	return "health:" + strconv.Itoa(len(userID)) + ":" + userID + ":" + day
}

// Upsert writes through to the store and then drops the cached copy.
func (r *Repository) Upsert(ctx context.Context, rec *model.HealthRecord) error {
	if err := r.next.Upsert(ctx, rec); err != nil {
		return err
	}
	key := Key(rec.UserID, rec.Day)
	r.invalidate(key)
	if err := r.kv.Del(ctx, key); err != nil {
		r.logger.Warn("cache invalidate failed", "key", rec.Key(), "error", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, userID, day string) (*model.HealthRecord, error) {
	key := Key(userID, day)

	raw, err := r.kv.Get(ctx, key)
	switch {
	case err == nil:
		var rec model.HealthRecord
		jsonErr := json.Unmarshal([]byte(raw), &rec)
		switch {
		case jsonErr != nil:
			r.logger.Warn("cache entry undecodable", "key", key, "error", jsonErr)
			metrics.CacheLookups.WithLabelValues("error").Inc()
		case rec.UserID != userID || rec.Day != day:
			r.logger.Warn("cache entry belongs to another record", "key", key, "record", rec.Key())
			metrics.CacheLookups.WithLabelValues("error").Inc()
		default:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &rec, nil
		}
	case errors.Is(err, ErrMiss):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	default:
		r.logger.Warn("cache lookup failed", "key", key, "error", err)
		metrics.CacheLookups.WithLabelValues("error").Inc()
	}

	f, gen := r.beginFill(key)
	defer r.endFill(key, f)

	rec, err := r.next.Get(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(rec)
	if err != nil || r.moved(f, gen) {
		return rec, nil
	}
	if err := r.kv.Set(ctx, key, string(data), r.ttl); err != nil {
		r.logger.Warn("cache fill failed", "key", key, "error", err)
		return rec, nil
	}
	// An Upsert that landed between the check above and Set has already
	// issued its Del, so the entry just written may be stale.
	if r.moved(f, gen) {
		if err := r.kv.Del(ctx, key); err != nil {
			r.logger.Warn("cache invalidate failed", "key", key, "error", err)
		}
	}
	return rec, nil
}

// === FILL GENERATIONS ===

func (r *Repository) beginFill(key string) (*fill, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fills[key]
	if !ok {
		f = &fill{}
		r.fills[key] = f
	}
	f.readers++
	return f, f.gen
}

func (r *Repository) endFill(key string, f *fill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f.readers--
	if f.readers == 0 {
		delete(r.fills, key)
	}
}

func (r *Repository) moved(f *fill, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return f.gen != gen
}

// invalidate bumps the generation of any fill in flight for key.
func (r *Repository) invalidate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.fills[key]; ok {
		f.gen++
	}
}

func (r *Repository) GetRecent(ctx context.Context, userID string, limit int) ([]model.HealthRecord, error) {
	return r.next.GetRecent(ctx, userID, limit)
}

// Ping forwards to the wrapped store when it supports liveness checks.
func (r *Repository) Ping(ctx context.Context) error {
	if p, ok := r.next.(repository.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
