package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/garmin-mcp/internal/auth"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", "tok", 5*time.Second)
}

func TestListTools(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mcp/tools", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"tools":[{"name":"garmin.getDailySummary","description":"d","inputSchema":{"type":"object"}}]}`)
	})

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "garmin.getDailySummary", tools[0].Name)
}

func TestCall_SendsNameAndArguments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "garmin.getDailySummary", body.Name)
		assert.Equal(t, "u1", body.Arguments["user_id"])

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content":[{"type":"text","text":"no data available"}]}`)
	})

	res, err := c.Call(context.Background(), "garmin.getDailySummary", map[string]any{"user_id": "u1"})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "no data available", res.Content[0].Text)
}

func TestCall_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"Unknown tool: nope"}`)
	})

	_, err := c.Call(context.Background(), "nope", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Unknown tool: nope", apiErr.Message)
}

func TestCall_PlainTextError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	_, err := c.Call(context.Background(), "garmin.getDailySummary", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Message)
}

func TestRecentDays(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content":[{"type":"json","json":[
			{"user_id":"u1","day":"2024-03-02","steps":20,"payload":{}},
			{"user_id":"u1","day":"2024-03-01","steps":null,"payload":{}}
		]}]}`)
	})

	recs, err := c.RecentDays(context.Background(), "u1", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "2024-03-02", recs[0].Day)
	require.NotNil(t, recs[0].Steps)
	assert.Equal(t, int64(20), *recs[0].Steps)
	assert.Nil(t, recs[1].Steps)
}

func TestRecentDays_UnexpectedShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content":[{"type":"text","text":"no data available"}]}`)
	})

	_, err := c.RecentDays(context.Background(), "u1", 2)
	assert.Error(t, err)
}

func TestIngest_Signs(t *testing.T) {
	body := []byte(`{"userId":"u1"}`)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, body, got)
		assert.True(t, auth.NewSignatureVerifier("whsec").Verify(got, r.Header.Get(auth.SignatureHeader)))
		io.WriteString(w, "ok")
	})

	require.NoError(t, c.Ingest(context.Background(), body, "whsec"))
}
