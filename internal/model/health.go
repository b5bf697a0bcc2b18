// Package model defines the data structures used throughout the application.
package model

import (
	"encoding/json"
	"time"
)

const (
	// UnknownUser is the identifier assigned to events that carry no user field.
	UnknownUser = "unknown"

	// DayLayout is the calendar-day format used for the Day key (YYYY-MM-DD).
	DayLayout = "2006-01-02"
)

// HealthRecord is the canonical per-user per-day summary.
//
// (UserID, Day) is the identity: the store keeps at most one row per pair.
//
// NULLABLE MEASUREMENTS:
// Every measurement is a *int64 so that "absent" (nil, JSON null) stays
// distinct from an explicit zero. Steps == nil means the device never
// reported steps; *Steps == 0 means it reported zero steps.
//
// Payload holds the raw source event exactly as delivered. CreatedAt and
// UpdatedAt are set by the store; values supplied by callers are ignored.
type HealthRecord struct {
	UserID         string          `json:"user_id"`
	Day            string          `json:"day"`
	Steps          *int64          `json:"steps"`
	RestingHR      *int64          `json:"resting_hr"`
	Calories       *int64          `json:"calories"`
	SleepSeconds   *int64          `json:"sleep_seconds"`
	BodyBatteryMin *int64          `json:"body_battery_min"`
	BodyBatteryMax *int64          `json:"body_battery_max"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Key returns the "<user>/<day>" form of the record identity, used in logs
// and not-found messages.
func (r *HealthRecord) Key() string {
	return r.UserID + "/" + r.Day
}

// Int returns a pointer to v. Handy for building records with present values.
func Int(v int64) *int64 {
	return &v
}

// Today returns the calendar day of t in UTC, formatted with DayLayout.
func Today(t time.Time) string {
	return t.UTC().Format(DayLayout)
}
