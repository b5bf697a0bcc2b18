package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sakif/garmin-mcp/internal/model"
)

func ptr(v int64) *int64 { return &v }

func TestWriteXLSX(t *testing.T) {
	updated := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)
	recs := []model.HealthRecord{
		{
			UserID:         "u1",
			Day:            "2024-03-02",
			Steps:          ptr(8000),
			RestingHR:      ptr(55),
			Calories:       ptr(2100),
			SleepSeconds:   ptr(27000),
			BodyBatteryMin: ptr(20),
			BodyBatteryMax: ptr(90),
			UpdatedAt:      updated,
		},
		{
			UserID: "u1",
			Day:    "2024-03-01",
			Steps:  ptr(1200),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, recs))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"2024-03-02", "u1", "8000", "55", "2100", "27000", "20", "90", "2024-03-02T08:30:00Z"}, rows[1])
	// GetRows drops trailing empty cells.
	assert.Equal(t, []string{"2024-03-01", "u1", "1200"}, rows[2])
}

func TestWriteXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Header, rows[0])
}
