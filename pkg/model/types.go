package model

import (
	"fmt"
	"time"
)

// HashValue is a SHA-256 or HMAC-SHA256 digest stored as hex string.
type HashValue string

// UpdateID identifies one install: its backups and its persisted state.
// Format: YYYYMMDD-HHMMSS (UTC).
type UpdateID string

// UpdateIDLayout is the time layout used to derive update identifiers.
const UpdateIDLayout = "20060102-150405"

// NewUpdateID derives an update identifier from t at second resolution.
func NewUpdateID(t time.Time) UpdateID {
	return UpdateID(t.UTC().Format(UpdateIDLayout))
}

// Time parses the timestamp encoded in the identifier.
func (id UpdateID) Time() (time.Time, error) {
	t, err := time.Parse(UpdateIDLayout, string(id))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse update id %q: %w", id, err)
	}
	return t, nil
}

// String returns the identifier as string.
func (id UpdateID) String() string {
	return string(id)
}
