package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/garmin-mcp/internal/apperror"
	"github.com/sakif/garmin-mcp/internal/metrics"
	"github.com/sakif/garmin-mcp/internal/model"
	"github.com/sakif/garmin-mcp/internal/repository"
)

const (
	ToolDailySummary = "garmin.getDailySummary"
	ToolRecentDays   = "garmin.getRecentDays"

	// NoDataText is returned as a text item when a daily summary is absent.
	NoDataText = "no data available"

	// DefaultRecentDays applies when "days" is absent, zero or negative.
	DefaultRecentDays = 7
	// MaxRecentDays caps "days" for garmin.getRecentDays.
	MaxRecentDays = 366
)

// Tool is one catalog entry as served on GET /mcp/tools.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is the JSON-Schema-shaped argument descriptor of a Tool.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// catalog is fixed. Tools are not registered at runtime.
var catalog = []Tool{
	{
		Name:        ToolDailySummary,
		Description: "Get daily summary for a user and date",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"user_id": {Type: "string"},
				"date":    {Type: "string", Description: "YYYY-MM-DD; defaults to today"},
			},
			Required: []string{"user_id"},
		},
	},
	{
		Name:        ToolRecentDays,
		Description: "Get last N days of summaries for a user",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"user_id": {Type: "string"},
				"days":    {Type: "number", Default: DefaultRecentDays},
			},
			Required: []string{"user_id"},
		},
	},
}

// Content is one item of a tool result: either a "json" item carrying a
// value or a "text" item carrying a message.
type Content struct {
	Type string `json:"type"`
	JSON any    `json:"json,omitempty"`
	Text string `json:"text,omitempty"`
}

// CallResult is the envelope returned by a successful tool call.
type CallResult struct {
	Content []Content `json:"content"`
}

func jsonResult(v any) *CallResult {
	return &CallResult{Content: []Content{{Type: "json", JSON: v}}}
}

func textResult(s string) *CallResult {
	return &CallResult{Content: []Content{{Type: "text", Text: s}}}
}

// ToolService validates tool invocations and routes them to the store.
type ToolService struct {
	repo   repository.HealthRecordRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewToolService(repo repository.HealthRecordRepository, logger *slog.Logger) *ToolService {
	return &ToolService{repo: repo, logger: logger, now: time.Now}
}

// Catalog returns a copy of the tool descriptors.
func (s *ToolService) Catalog() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}

// Call runs the named tool.
//
// ERRORS:
//   - unknown name           → apperror.ErrUnknownTool (checked before arguments)
//   - missing/bad arguments  → apperror.ErrValidation
//   - store failure          → wrapped, unclassified (500 at the boundary)
//
// A daily summary that does not exist is NOT an error: it comes back as a
// text item saying "no data available".
func (s *ToolService) Call(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	var (
		res *CallResult
		err error
	)
	switch name {
	case ToolDailySummary:
		res, err = s.dailySummary(ctx, args)
	case ToolRecentDays:
		res, err = s.recentDays(ctx, args)
	default:
		metrics.ToolCalls.WithLabelValues("unknown", "invalid").Inc()
		return nil, apperror.UnknownTool(name)
	}

	metrics.ToolCalls.WithLabelValues(name, outcome(res, err)).Inc()
	if err != nil && !isCallerError(err) {
		s.logger.Error("tool call failed",
			slog.String("tool", name),
			slog.String("error", err.Error()),
		)
	}
	return res, err
}

func (s *ToolService) dailySummary(ctx context.Context, args map[string]any) (*CallResult, error) {
	userID, err := requiredString(args, "user_id")
	if err != nil {
		return nil, err
	}
	day, err := optionalString(args, "date")
	if err != nil {
		return nil, err
	}
	if day == "" {
		day = model.Today(s.now())
	}

	rec, err := s.repo.Get(ctx, userID, day)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return textResult(NoDataText), nil
		}
		return nil, fmt.Errorf("getting daily summary for %s/%s: %w", userID, day, err)
	}
	return jsonResult(rec), nil
}

func (s *ToolService) recentDays(ctx context.Context, args map[string]any) (*CallResult, error) {
	userID, err := requiredString(args, "user_id")
	if err != nil {
		return nil, err
	}
	days, err := optionalInt(args, "days", DefaultRecentDays)
	if err != nil {
		return nil, err
	}
	days = recentDaysLimit(days)

	records, err := s.repo.GetRecent(ctx, userID, days)
	if err != nil {
		return nil, fmt.Errorf("getting recent days for %s: %w", userID, err)
	}
	if records == nil {
		records = []model.HealthRecord{}
	}
	return jsonResult(records), nil
}

// =========================================================================
// ARGUMENT HELPERS
// =========================================================================
//
// Arguments arrive as decoded JSON, so numbers may be float64 or
// json.Number depending on the decoder. Identifiers given as numbers are
// accepted and stringified; a zero number counts as absent, as it does in
// the normalizer.

func requiredString(args map[string]any, name string) (string, error) {
	s, err := optionalString(args, name)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", apperror.MissingArgument(name)
	}
	return s, nil
}

func optionalString(args map[string]any, name string) (string, error) {
	switch v := args[name].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		if f, err := v.Float64(); err == nil && f == 0 {
			return "", nil
		}
		return v.String(), nil
	case float64:
		if v == 0 {
			return "", nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		if v == 0 {
			return "", nil
		}
		return strconv.Itoa(v), nil
	case int64:
		if v == 0 {
			return "", nil
		}
		return strconv.FormatInt(v, 10), nil
	default:
		return "", apperror.InvalidArgument(name)
	}
}

func optionalInt(args map[string]any, name string, def int) (int, error) {
	var f float64
	switch v := args[name].(type) {
	case nil:
		return def, nil
	case float64:
		f = v
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, apperror.InvalidArgument(name)
		}
		f = n
	case string:
		if strings.TrimSpace(v) == "" {
			return def, nil
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, apperror.InvalidArgument(name)
		}
		f = n
	default:
		return 0, apperror.InvalidArgument(name)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperror.InvalidArgument(name)
	}
	// Keeps the conversion in range; callers apply their own bounds.
	switch {
	case f > math.MaxInt32:
		return math.MaxInt32, nil
	case f < math.MinInt32:
		return math.MinInt32, nil
	}
	return int(f), nil
}

// recentDaysLimit turns the "days" argument into a store limit: zero or
// negative means the default, and the result never exceeds MaxRecentDays.
func recentDaysLimit(days int) int {
	switch {
	case days <= 0:
		return DefaultRecentDays
	case days > MaxRecentDays:
		return MaxRecentDays
	}
	return days
}

func isCallerError(err error) bool {
	return errors.Is(err, apperror.ErrValidation) || errors.Is(err, apperror.ErrUnknownTool)
}

func outcome(res *CallResult, err error) string {
	switch {
	case err != nil && isCallerError(err):
		return "invalid"
	case err != nil:
		return "error"
	case len(res.Content) > 0 && res.Content[0].Type == "text":
		return "no_data"
	default:
		return "ok"
	}
}
