package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/garmin-mcp/internal/apperror"
	"github.com/sakif/garmin-mcp/internal/auth"
	"github.com/sakif/garmin-mcp/internal/service"
)

// DefaultPingInterval is the SSE keep-alive period.
const DefaultPingInterval = 30 * time.Second

// ToolCaller is implemented by service.ToolService.
type ToolCaller interface {
	Catalog() []service.Tool
	Call(ctx context.Context, name string, args map[string]any) (*service.CallResult, error)
}

// MCPHandler serves the tool catalog, tool invocations and the SSE channel.
type MCPHandler struct {
	tools        ToolCaller
	pingInterval time.Duration
	logger       *slog.Logger
}

func NewMCPHandler(tools ToolCaller, pingInterval time.Duration, logger *slog.Logger) *MCPHandler {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &MCPHandler{tools: tools, pingInterval: pingInterval, logger: logger}
}

type listToolsResponse struct {
	Tools []service.Tool `json:"tools"`
}

// CallRequest is the body of POST /mcp/tools/call.
type CallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// HandleListTools returns the fixed catalog.
//
// HTTP: GET /mcp/tools
func (h *MCPHandler) HandleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listToolsResponse{Tools: h.tools.Catalog()})
}

// HandleCall invokes one tool.
//
// HTTP: POST /mcp/tools/call
// REQUEST BODY: {"name": "garmin.getDailySummary", "arguments": {"user_id": "u1"}}
//
// A missing daily summary is a 200 with a text item, not an error.
func (h *MCPHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	res, err := h.tools.Call(r.Context(), req.Name, req.Arguments)
	if err != nil {
		writeError(w, err)
		return
	}

	subject, _ := auth.SubjectFromContext(r.Context())
	h.logger.Debug("tool called",
		slog.String("tool", req.Name),
		slog.String("subject", subject),
	)
	writeJSON(w, http.StatusOK, res)
}

// HandleSSE opens an event stream: one connection event, then a ping every
// pingInterval until the client goes away.
//
// HTTP: GET /mcp/sse
func (h *MCPHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, rc, sseEvent{Type: "connection", Status: "connected"}); err != nil {
		h.logger.Warn("sse write failed", slog.String("error", err.Error()))
		return
	}

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := writeEvent(w, rc, sseEvent{Type: "ping"}); err != nil {
				return
			}
		}
	}
}

type sseEvent struct {
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, v sseEvent) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
