package handler

// RESPONSE HELPERS:
// Every JSON error from the API has the same shape:
//   {"error": "Missing required argument: user_id"}
//
// Caller errors carry their message through verbatim. Anything the caller
// could not have caused becomes a generic 500 and the details go to the log.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/garmin-mcp/internal/apperror"
)

// InternalErrorMessage is the body of every 500 from the MCP endpoints.
const InternalErrorMessage = "Internal server error"

type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON sends a JSON response with the given status code. Headers and
// status go out before the body; anything set after Encode is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeText sends a plain-text body such as "ok".
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// writeError maps a domain error to a status code.
//
//	ErrValidation, ErrUnknownTool → 400 with the error's message
//	ErrUnauthorized               → 401
//	anything else                 → 500 "Internal server error"
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation), errors.Is(err, apperror.ErrUnknownTool):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: appErr.Message})
			return
		case errors.Is(err, apperror.ErrUnauthorized):
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: appErr.Message})
			return
		}
	}
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: InternalErrorMessage})
}
