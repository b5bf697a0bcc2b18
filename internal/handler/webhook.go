package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/garmin-mcp/internal/apperror"
	"github.com/sakif/garmin-mcp/internal/auth"
	"github.com/sakif/garmin-mcp/internal/service"
)

// DefaultMaxBodyBytes caps webhook bodies at 2 MiB.
const DefaultMaxBodyBytes = 2 << 20

// Ingester is implemented by service.IngestService.
type Ingester interface {
	Ingest(ctx context.Context, source string, body []byte) (*service.IngestResult, error)
}

// WebhookHandler receives pushed device events.
type WebhookHandler struct {
	ingest   Ingester
	verifier *auth.SignatureVerifier
	maxBytes int64
	logger   *slog.Logger
}

func NewWebhookHandler(ingest Ingester, verifier *auth.SignatureVerifier, maxBytes int64, logger *slog.Logger) *WebhookHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	if verifier == nil {
		verifier = auth.NewSignatureVerifier("")
	}
	return &WebhookHandler{ingest: ingest, verifier: verifier, maxBytes: maxBytes, logger: logger}
}

// HandleWebhook ingests one event object or an array of them.
//
// HTTP: POST /garmin/webhook
//
//	200 "ok"                     every event stored
//	400 {"error": ...}           body is not JSON, or not object(s)
//	401 "bad signature"          X-Garmin-Signature mismatch (secret configured)
//	413 {"error": ...}           body over the size cap
//	500 {"error": "failed to persist N of M events"}
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		writeError(w, apperror.ValidationFailed("body", "could not read request body"))
		return
	}

	if !h.verifier.Verify(body, r.Header.Get(auth.SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch", slog.String("remote", r.RemoteAddr))
		writeText(w, http.StatusUnauthorized, "bad signature")
		return
	}

	res, err := h.ingest.Ingest(r.Context(), service.SourceWebhook, body)
	if err != nil {
		if res != nil && res.Failed > 0 {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: res.Summary()})
			return
		}
		if !errors.Is(err, apperror.ErrValidation) {
			h.logger.Error("webhook ingest failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	writeText(w, http.StatusOK, "ok")
}
