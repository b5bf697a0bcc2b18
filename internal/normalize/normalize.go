// Package normalize maps raw device events of any historical shape onto the
// canonical model.HealthRecord.
//
// ACCESSOR RULES:
// Each canonical field owns an ordered list of Rules. A Rule looks up one
// location in the raw event (top-level "steps", nested "summary.steps", ...)
// and reports whether a usable value was there. The first Rule that reports
// a value wins; when none do the field falls back to its default (nil for
// measurements, "unknown" for the user, today for the day).
//
// The rule table is plain data, so supporting a new field-naming convention
// is a one-line change to the table below.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/garmin-mcp/internal/model"
)

// Rule extracts one candidate value from a raw event.
// It returns ok=false when the location is absent or holds JSON null.
type Rule func(event map[string]any) (value any, ok bool)

// Field returns a Rule that walks nested objects along path.
// Field("summary", "steps") reads event["summary"]["steps"].
func Field(path ...string) Rule {
	return func(event map[string]any) (any, bool) {
		var cur any = event
		for _, key := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[key]
			if !ok {
				return nil, false
			}
		}
		if cur == nil {
			return nil, false
		}
		return cur, true
	}
}

// measurement binds a nullable integer column to its alias rules.
type measurement struct {
	name  string
	rules []Rule
	set   func(rec *model.HealthRecord, v *int64)
}

var (
	userIDRules = []Rule{Field("userId"), Field("user_id")}
	dayRules    = []Rule{Field("calendarDate"), Field("date")}

	measurements = []measurement{
		{
			name:  "steps",
			rules: []Rule{Field("steps"), Field("summary", "steps")},
			set:   func(r *model.HealthRecord, v *int64) { r.Steps = v },
		},
		{
			name:  "resting_hr",
			rules: []Rule{Field("restingHeartRate"), Field("summary", "restingHeartRate")},
			set:   func(r *model.HealthRecord, v *int64) { r.RestingHR = v },
		},
		{
			name:  "calories",
			rules: []Rule{Field("activeKilocalories"), Field("summary", "calories")},
			set:   func(r *model.HealthRecord, v *int64) { r.Calories = v },
		},
		{
			name:  "sleep_seconds",
			rules: []Rule{Field("sleepDurationInSeconds"), Field("summary", "sleepSeconds")},
			set:   func(r *model.HealthRecord, v *int64) { r.SleepSeconds = v },
		},
		{
			name:  "body_battery_min",
			rules: []Rule{Field("bodyBatteryMin")},
			set:   func(r *model.HealthRecord, v *int64) { r.BodyBatteryMin = v },
		},
		{
			name:  "body_battery_max",
			rules: []Rule{Field("bodyBatteryMax"), Field("bodyBattery", "max")},
			set:   func(r *model.HealthRecord, v *int64) { r.BodyBatteryMax = v },
		},
	}
)

// Normalize builds the canonical record candidate for one event.
// now supplies the day when the event carries none. CreatedAt and UpdatedAt
// are left zero; the store owns them.
func Normalize(ev Event, now time.Time) model.HealthRecord {
	rec := model.HealthRecord{
		UserID:  model.UnknownUser,
		Day:     model.Today(now),
		Payload: ev.raw(),
	}

	if id, ok := firstString(ev.Fields, userIDRules); ok {
		rec.UserID = id
	}
	if day, ok := firstString(ev.Fields, dayRules); ok {
		rec.Day = truncateDay(day)
	}

	for _, m := range measurements {
		m.set(&rec, firstInt(ev.Fields, m.rules))
	}
	return rec
}

// firstString returns the first rule value usable as an identifier.
// Empty strings and zero numbers count as absent.
func firstString(event map[string]any, rules []Rule) (string, bool) {
	for _, rule := range rules {
		v, ok := rule(event)
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			if s != "" {
				return s, true
			}
		case json.Number:
			if s.String() != "0" {
				return s.String(), true
			}
		case float64:
			if s != 0 {
				return strconv.FormatFloat(s, 'f', -1, 64), true
			}
		}
	}
	return "", false
}

// firstInt returns the first rule value that is a number or a numeric
// string, or nil. Anything else is skipped so the next alias gets a chance.
func firstInt(event map[string]any, rules []Rule) *int64 {
	for _, rule := range rules {
		v, ok := rule(event)
		if !ok {
			continue
		}
		if n, ok := toInt64(v); ok {
			return &n
		}
	}
	return nil
}

// toInt64 converts the numeric types produced by encoding/json (json.Number
// with UseNumber, float64 otherwise), plain Go integers and strings holding a
// decimal number such as "10000". Fractions are truncated toward zero.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float64:
		return floatToInt64(n)
	case float32:
		return floatToInt64(float64(n))
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// truncateDay keeps the date portion of a longer timestamp such as
// "2025-01-01T08:00:00Z".
func truncateDay(day string) string {
	if utf8.RuneCountInString(day) <= len(model.DayLayout) {
		return day
	}
	return string([]rune(day)[:len(model.DayLayout)])
}
