// Package client is a small HTTP client for the server's webhook and tool
// endpoints, used by healthctl.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sakif/garmin-mcp/internal/auth"
	"github.com/sakif/garmin-mcp/internal/model"
	"github.com/sakif/garmin-mcp/internal/service"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Content mirrors service.Content with the JSON value left undecoded.
type Content struct {
	Type string          `json:"type"`
	JSON json.RawMessage `json:"json,omitempty"`
	Text string          `json:"text,omitempty"`
}

type Result struct {
	Content []Content `json:"content"`
}

type errorBody struct {
	Error string `json:"error"`
}

type Client struct {
	http *resty.Client
}

// New returns a client for the server at baseURL. An empty token sends no
// Authorization header.
func New(baseURL, token string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c}
}

// ListTools fetches the tool catalog.
func (c *Client) ListTools(ctx context.Context) ([]service.Tool, error) {
	var out struct {
		Tools []service.Tool `json:"tools"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/mcp/tools")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// Call invokes one tool.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	if args == nil {
		args = map[string]any{}
	}
	var out Result
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{"name": name, "arguments": args}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/mcp/tools/call")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecentDays calls garmin.getRecentDays and decodes the records.
func (c *Client) RecentDays(ctx context.Context, userID string, days int) ([]model.HealthRecord, error) {
	res, err := c.Call(ctx, service.ToolRecentDays, map[string]any{"user_id": userID, "days": days})
	if err != nil {
		return nil, err
	}
	if len(res.Content) == 0 || res.Content[0].Type != "json" {
		return nil, fmt.Errorf("client: unexpected %s result", service.ToolRecentDays)
	}
	var recs []model.HealthRecord
	if err := json.Unmarshal(res.Content[0].JSON, &recs); err != nil {
		return nil, fmt.Errorf("client: decoding records: %w", err)
	}
	return recs, nil
}

// Ingest posts a raw webhook body. When secret is set the body is signed the
// way the server verifies it.
func (c *Client) Ingest(ctx context.Context, body []byte, secret string) error {
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetError(&errorBody{})
	if secret != "" {
		req.SetHeader(auth.SignatureHeader, auth.NewSignatureVerifier(secret).Sign(body))
	}
	resp, err := req.Post("/garmin/webhook")
	return check(resp, err)
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	msg := strings.TrimSpace(resp.String())
	if eb, ok := resp.Error().(*errorBody); ok && eb.Error != "" {
		msg = eb.Error
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}
