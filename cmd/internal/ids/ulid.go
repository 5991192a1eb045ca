// Package ids provides the portal's identifier primitives.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a new ULID string (26 chars).
// ULIDs sort by creation time, which keeps renewal attempts and audit rows ordered in logs.
func New(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewOrEmpty is New for call sites that only use the id for correlation.
func NewOrEmpty(now time.Time) string {
	id, err := New(now)
	if err != nil {
		return ""
	}
	return id
}

// Valid reports whether s parses as a ULID.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
