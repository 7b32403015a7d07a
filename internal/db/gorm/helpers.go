package gorm

import (
	"database/sql"
	"time"
)

// nullString converts a string to sql.NullString.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseRFC3339 converts a stored timestamp back to time.Time. Zero value
// on parse failure; stored rows are always written by our hooks.
func parseRFC3339(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// formatTime renders a domain timestamp for storage.
func formatTime(t time.Time) (string, int64) {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format(time.RFC3339), t.UnixMilli()
}
