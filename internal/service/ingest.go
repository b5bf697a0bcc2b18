// Package service contains the business logic layer of the application.
//
// THE LAYERS:
//
//	Handler / MQTT subscriber → parse transport framing, write responses
//	Service                   → decode, normalize, validate tool arguments
//	Repository                → atomic upserts and lookups
//
// Services take repository interfaces, never concrete stores, so the same
// code runs against SQLite, Postgres, the Redis read-through decorator or
// a test fake.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/garmin-mcp/internal/metrics"
	"github.com/sakif/garmin-mcp/internal/normalize"
	"github.com/sakif/garmin-mcp/internal/publish"
	"github.com/sakif/garmin-mcp/internal/repository"
)

// Ingest sources, used as the metrics label.
const (
	SourceWebhook = "webhook"
	SourceMQTT    = "mqtt"
)

// IngestResult reports what happened to one delivery.
type IngestResult struct {
	DeliveryID string
	Total      int
	Stored     int
	Failed     int
}

// Summary is the caller-facing description of a partially failed delivery.
func (r *IngestResult) Summary() string {
	return fmt.Sprintf("failed to persist %d of %d events", r.Failed, r.Total)
}

// IngestService turns raw deliveries into stored health records.
type IngestService struct {
	repo      repository.HealthRecordRepository
	publisher publish.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewIngestService(repo repository.HealthRecordRepository, publisher publish.Publisher, logger *slog.Logger) *IngestService {
	if publisher == nil {
		publisher = publish.Noop{}
	}
	return &IngestService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Ingest decodes body (one event object or an array of them), normalizes
// each event and upserts it.
//
// PARTIAL FAILURE:
// Events are stored independently and in input order. A failed upsert is
// logged and counted and the remaining events still run. When anything
// failed, the result is returned together with a non-nil error so the
// transport can report it; the stored events stay stored.
//
// A body that is not valid JSON, or whose elements are not objects, is
// rejected with apperror.ErrValidation before anything is written.
func (s *IngestService) Ingest(ctx context.Context, source string, body []byte) (*IngestResult, error) {
	events, err := normalize.DecodeEvents(body)
	if err != nil {
		return nil, err
	}
	metrics.EventsReceived.WithLabelValues(source).Add(float64(len(events)))

	result := &IngestResult{
		DeliveryID: xid.New().String(),
		Total:      len(events),
	}
	log := s.logger.With(
		slog.String("delivery_id", result.DeliveryID),
		slog.String("source", source),
	)

	now := s.now()
	for i, ev := range events {
		rec := normalize.Normalize(ev, now)

		if err := s.repo.Upsert(ctx, &rec); err != nil {
			result.Failed++
			metrics.UpsertFailures.Inc()
			log.Error("failed to persist event",
				slog.Int("index", i),
				slog.String("key", rec.Key()),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.Stored++
		metrics.RecordsUpserted.Inc()

		if err := s.publisher.RecordUpserted(ctx, &rec, result.DeliveryID); err != nil {
			metrics.PublishFailures.Inc()
			log.Warn("failed to publish upsert notification",
				slog.String("key", rec.Key()),
				slog.String("error", err.Error()),
			)
		}
	}

	log.Info("delivery ingested",
		slog.Int("events", result.Total),
		slog.Int("stored", result.Stored),
		slog.Int("failed", result.Failed),
	)

	if result.Failed > 0 {
		return result, fmt.Errorf("ingesting delivery %s: %s", result.DeliveryID, result.Summary())
	}
	return result, nil
}
