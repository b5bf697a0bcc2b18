package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/garmin-mcp/internal/export"
)

func TestParseArgs(t *testing.T) {
	got, err := parseArgs([]string{"user_id=u1", "days=3", "ratio=0.5", "verbose=true", "date=2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"user_id": "u1",
		"days":    int64(3),
		"ratio":   0.5,
		"verbose": true,
		"date":    "2024-03-01",
	}, got)

	got, err = parseArgs([]string{"user_id=007", "date=20240301", "days=14", "code=0042"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"user_id": "007",
		"date":    "20240301",
		"days":    int64(14),
		"code":    "0042",
	}, got)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := parseArgs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, errors.Is(run(context.Background(), nil, nil, &out), errUsage))
	assert.True(t, errors.Is(run(context.Background(), []string{"frobnicate"}, nil, &out), errUsage))
	assert.True(t, errors.Is(run(context.Background(), []string{"call"}, nil, &out), errUsage))
	assert.True(t, errors.Is(run(context.Background(), []string{"export"}, nil, &out), errUsage))

	require.NoError(t, run(context.Background(), []string{"help"}, nil, &out))
	assert.Contains(t, out.String(), "hash-token")
}

func TestRun_HashToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"hash-token", "--cost", "4", "s3cret"}, nil, &out))

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestRun_CallAndIngest(t *testing.T) {
	var lastBody map[string]any
	var ingested []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mcp/tools/call":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&lastBody))
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"content":[{"type":"text","text":"no data available"}]}`)
		case "/garmin/webhook":
			ingested, _ = io.ReadAll(r.Body)
			io.WriteString(w, "ok")
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"call", "garmin.getDailySummary", "--server", ts.URL, "--arg", "user_id=u1", "--arg", "date=2024-03-01",
	}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "garmin.getDailySummary", lastBody["name"])
	assert.Equal(t, map[string]any{"user_id": "u1", "date": "2024-03-01"}, lastBody["arguments"])
	assert.Contains(t, out.String(), "no data available")

	out.Reset()
	stdin := strings.NewReader(`{"userId":"u1","steps":5}`)
	require.NoError(t, run(context.Background(), []string{"ingest", "-", "--server", ts.URL}, stdin, &out))
	assert.JSONEq(t, `{"userId":"u1","steps":5}`, string(ingested))
	assert.Equal(t, "ok\n", out.String())
}

func TestRun_Export(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"content":[{"type":"json","json":[{"user_id":"u1","day":"2024-03-02","steps":42,"payload":{}}]}]}`)
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "out.xlsx")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"export", "--server", ts.URL, "--user", "u1", "-o", path}, nil, &out))
	assert.Contains(t, out.String(), "wrote 1 days")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"2024-03-02", "u1", "42"}, rows[1])
}
