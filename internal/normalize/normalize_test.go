package normalize

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/garmin-mcp/internal/apperror"
	"github.com/sakif/garmin-mcp/internal/model"
)

var fixedNow = time.Date(2025, time.March, 14, 23, 30, 0, 0, time.UTC)

// decodeOne is a test helper: it decodes a single JSON object the same way
// the webhook does and fails the test on error.
func decodeOne(t *testing.T, body string) Event {
	t.Helper()
	events, err := DecodeEvents([]byte(body))
	require.NoError(t, err)
	require.Len(t, events, 1)
	return events[0]
}

func TestNormalize_TopLevelFields(t *testing.T) {
	ev := decodeOne(t, `{
		"userId": "test-user",
		"calendarDate": "2025-01-01",
		"steps": 10000,
		"restingHeartRate": 60,
		"activeKilocalories": 500,
		"sleepDurationInSeconds": 28800,
		"bodyBatteryMin": 20,
		"bodyBatteryMax": 95
	}`)

	rec := Normalize(ev, fixedNow)

	assert.Equal(t, "test-user", rec.UserID)
	assert.Equal(t, "2025-01-01", rec.Day)
	assert.Equal(t, model.Int(10000), rec.Steps)
	assert.Equal(t, model.Int(60), rec.RestingHR)
	assert.Equal(t, model.Int(500), rec.Calories)
	assert.Equal(t, model.Int(28800), rec.SleepSeconds)
	assert.Equal(t, model.Int(20), rec.BodyBatteryMin)
	assert.Equal(t, model.Int(95), rec.BodyBatteryMax)
	assert.True(t, rec.CreatedAt.IsZero(), "normalizer must not set timestamps")
	assert.True(t, rec.UpdatedAt.IsZero(), "normalizer must not set timestamps")
}

func TestNormalize_AliasVariants(t *testing.T) {
	ev := decodeOne(t, `{
		"user_id": "test",
		"date": "2025-01-01",
		"summary": {
			"steps": 5000,
			"restingHeartRate": 65,
			"calories": 300,
			"sleepSeconds": 25200
		},
		"bodyBattery": {"max": 90}
	}`)

	rec := Normalize(ev, fixedNow)

	assert.Equal(t, "test", rec.UserID)
	assert.Equal(t, "2025-01-01", rec.Day)
	assert.Equal(t, model.Int(5000), rec.Steps)
	assert.Equal(t, model.Int(65), rec.RestingHR)
	assert.Equal(t, model.Int(300), rec.Calories)
	assert.Equal(t, model.Int(25200), rec.SleepSeconds)
	assert.Nil(t, rec.BodyBatteryMin)
	assert.Equal(t, model.Int(90), rec.BodyBatteryMax)
}

func TestNormalize_FirstMatchWins(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(t *testing.T, rec model.HealthRecord)
	}{
		{
			name: "userId beats user_id",
			body: `{"userId":"primary","user_id":"secondary"}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, "primary", rec.UserID)
			},
		},
		{
			name: "empty userId falls through to user_id",
			body: `{"userId":"","user_id":"secondary"}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, "secondary", rec.UserID)
			},
		},
		{
			name: "calendarDate beats date",
			body: `{"calendarDate":"2025-02-02","date":"2024-01-01"}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, "2025-02-02", rec.Day)
			},
		},
		{
			name: "top-level steps beat summary.steps",
			body: `{"steps":1,"summary":{"steps":2}}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, model.Int(1), rec.Steps)
			},
		},
		{
			name: "null top-level steps falls through to summary.steps",
			body: `{"steps":null,"summary":{"steps":2}}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, model.Int(2), rec.Steps)
			},
		},
		{
			name: "explicit zero is kept and not replaced by the alias",
			body: `{"steps":0,"summary":{"steps":2}}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, model.Int(0), rec.Steps)
			},
		},
		{
			name: "non-numeric value falls through",
			body: `{"restingHeartRate":"fast","summary":{"restingHeartRate":58}}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, model.Int(58), rec.RestingHR)
			},
		},
		{
			name: "numeric strings are measurements",
			body: `{"steps":"10000","restingHeartRate":"abc","summary":{"restingHeartRate":60},"sleepDurationInSeconds":" 28800 ","activeKilocalories":"512.9"}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, model.Int(10000), rec.Steps)
				assert.Equal(t, model.Int(60), rec.RestingHR)
				assert.Equal(t, model.Int(28800), rec.SleepSeconds)
				assert.Equal(t, model.Int(512), rec.Calories)
			},
		},
		{
			name: "empty or non-numeric strings fall through",
			body: `{"steps":"","summary":{"steps":"7"},"bodyBatteryMin":"NaN","bodyBatteryMax":"1e400"}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, model.Int(7), rec.Steps)
				assert.Nil(t, rec.BodyBatteryMin)
				assert.Nil(t, rec.BodyBatteryMax)
			},
		},
		{
			name: "bodyBatteryMax beats bodyBattery.max",
			body: `{"bodyBatteryMax":80,"bodyBattery":{"max":90}}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, model.Int(80), rec.BodyBatteryMax)
			},
		},
		{
			name: "summary that is not an object is ignored",
			body: `{"summary":"n/a"}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Nil(t, rec.Steps)
			},
		},
		{
			name: "numeric user id is rendered in decimal",
			body: `{"userId":123456789}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, "123456789", rec.UserID)
			},
		},
		{
			name: "fractional measurements truncate",
			body: `{"activeKilocalories":512.9}`,
			check: func(t *testing.T, rec model.HealthRecord) {
				assert.Equal(t, model.Int(512), rec.Calories)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Normalize(decodeOne(t, tt.body), fixedNow))
		})
	}
}

func TestNormalize_RestingHeartRateFromSummary(t *testing.T) {
	rec := Normalize(decodeOne(t, `{"summary":{"restingHeartRate":65}}`), fixedNow)
	require.NotNil(t, rec.RestingHR)
	assert.Equal(t, int64(65), *rec.RestingHR)
}

func TestNormalize_Defaults(t *testing.T) {
	rec := Normalize(decodeOne(t, `{}`), fixedNow)

	assert.Equal(t, model.UnknownUser, rec.UserID)
	assert.Equal(t, "2025-03-14", rec.Day)
	assert.Nil(t, rec.Steps)
	assert.Nil(t, rec.RestingHR)
	assert.Nil(t, rec.Calories)
	assert.Nil(t, rec.SleepSeconds)
	assert.Nil(t, rec.BodyBatteryMin)
	assert.Nil(t, rec.BodyBatteryMax)
	assert.JSONEq(t, `{}`, string(rec.Payload))
}

func TestNormalize_DefaultDayUsesUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	local := time.Date(2025, time.March, 14, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	rec := Normalize(decodeOne(t, `{"userId":"u"}`), local)
	assert.Equal(t, "2025-03-15", rec.Day)
}

func TestNormalize_TruncatesTimestampDay(t *testing.T) {
	rec := Normalize(decodeOne(t, `{"calendarDate":"2025-01-01T08:15:00.000Z"}`), fixedNow)
	assert.Equal(t, "2025-01-01", rec.Day)
}

func TestNormalize_PayloadIsFullEvent(t *testing.T) {
	body := `{"userId":"u1","steps":5,"extra":{"nested":[1,2,3]},"vendor":"garmin"}`
	rec := Normalize(decodeOne(t, body), fixedNow)
	assert.JSONEq(t, body, string(rec.Payload))
}

func TestNormalize_NewEventReencodesFields(t *testing.T) {
	rec := Normalize(NewEvent(map[string]any{"userId": "u2", "steps": 42}), fixedNow)

	assert.Equal(t, "u2", rec.UserID)
	assert.Equal(t, model.Int(42), rec.Steps)
	assert.JSONEq(t, `{"userId":"u2","steps":42}`, string(rec.Payload))
}

func TestField_NestedLookup(t *testing.T) {
	event := map[string]any{"a": map[string]any{"b": map[string]any{"c": "deep"}}}

	v, ok := Field("a", "b", "c")(event)
	assert.True(t, ok)
	assert.Equal(t, "deep", v)

	_, ok = Field("a", "x", "c")(event)
	assert.False(t, ok)

	_, ok = Field("a", "b", "c", "d")(event)
	assert.False(t, ok, "walking into a string must report absent")
}

func TestDecodeEvents(t *testing.T) {
	t.Run("single object", func(t *testing.T) {
		events, err := DecodeEvents([]byte(`{"userId":"u1"}`))
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "u1", events[0].Fields["userId"])
	})

	t.Run("array keeps input order", func(t *testing.T) {
		events, err := DecodeEvents([]byte(`[{"userId":"a"},{"userId":"b"},{"userId":"c"}]`))
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i, want := range []string{"a", "b", "c"} {
			assert.Equal(t, want, events[i].Fields["userId"])
		}
	})

	t.Run("empty array is an empty batch", func(t *testing.T) {
		events, err := DecodeEvents([]byte(`[]`))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("raw bytes are preserved per element", func(t *testing.T) {
		events, err := DecodeEvents([]byte(`[ {"b":1, "a":2} ]`))
		require.NoError(t, err)
		assert.Equal(t, json.RawMessage(`{"b":1, "a":2}`), events[0].Raw)
	})

	t.Run("numbers decode without float rounding", func(t *testing.T) {
		events, err := DecodeEvents([]byte(`{"steps":9007199254740993}`))
		require.NoError(t, err)
		rec := Normalize(events[0], fixedNow)
		assert.Equal(t, model.Int(9007199254740993), rec.Steps)
	})

	rejects := map[string]string{
		"malformed":       `invalid json`,
		"empty body":      ``,
		"scalar":          `42`,
		"string":          `"hello"`,
		"null":            `null`,
		"array of scalar": `[{"userId":"a"}, 7]`,
		"trailing data":   `{"userId":"a"} {"userId":"b"}`,
	}
	for name, body := range rejects {
		t.Run("rejects "+name, func(t *testing.T) {
			_, err := DecodeEvents([]byte(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation), "want ErrValidation, got %v", err)
		})
	}
}
