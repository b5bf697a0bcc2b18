package repository

import "database/sql"

// NullInt converts a nullable measurement for a database/sql argument.
// nil becomes SQL NULL; a pointer to zero stays 0.
func NullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// IntPtr converts a scanned column back into a nullable measurement.
func IntPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
