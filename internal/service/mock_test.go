package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/garmin-mcp/internal/apperror"
	"github.com/sakif/garmin-mcp/internal/model"
)

// =========================================================================
// MOCK REPOSITORY
// =========================================================================
//
// mockHealthRepo is an in-memory HealthRecordRepository.
// failKeys makes Upsert fail for specific "<user>/<day>" keys so tests can
// drive the partial-failure path; err makes every call fail.

type mockHealthRepo struct {
	mu       sync.Mutex
	records  map[string]model.HealthRecord
	failKeys map[string]error
	err      error
	upserts  []string
	lastN    int
}

func newMockRepo() *mockHealthRepo {
	return &mockHealthRepo{
		records:  make(map[string]model.HealthRecord),
		failKeys: make(map[string]error),
	}
}

func (m *mockHealthRepo) Upsert(_ context.Context, rec *model.HealthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err, ok := m.failKeys[rec.Key()]; ok {
		return err
	}

	now := time.Now().UTC()
	rec.CreatedAt = now
	if prev, ok := m.records[rec.Key()]; ok {
		rec.CreatedAt = prev.CreatedAt
	}
	rec.UpdatedAt = now
	m.records[rec.Key()] = *rec
	m.upserts = append(m.upserts, rec.Key())
	return nil
}

func (m *mockHealthRepo) Get(_ context.Context, userID, day string) (*model.HealthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.records[userID+"/"+day]
	if !ok {
		return nil, apperror.NotFound("health record", userID+"/"+day)
	}
	return &rec, nil
}

func (m *mockHealthRepo) GetRecent(_ context.Context, userID string, limit int) ([]model.HealthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.lastN = limit

	out := make([]model.HealthRecord, 0)
	if limit <= 0 {
		return out, nil
	}
	for _, rec := range m.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
