package syncx

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// Position is a keyset boundary in the pull stream.
// Rows are ordered by (ServerUpdatedAt, RecordID); the record id breaks ties
// so pagination stays deterministic when timestamps collide.
type Position struct {
	ServerUpdatedAt time.Time
	RecordID        string
}

// Before reports whether p sorts strictly before other in pull order
func (p Position) Before(other Position) bool {
	if p.ServerUpdatedAt.Equal(other.ServerUpdatedAt) {
		return p.RecordID < other.RecordID
	}
	return p.ServerUpdatedAt.Before(other.ServerUpdatedAt)
}

// EncodeCursor packs p into an opaque pull cursor.
// Format: base64url("<server_updated_at unix nanos>|<recordId>")
// The cursor pins the boundary as it was when the page was served, so a
// later rewrite of that record cannot move it.
func EncodeCursor(p Position) string {
	raw := strconv.FormatInt(p.ServerUpdatedAt.UnixNano(), 10) + "|" + p.RecordID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor made by EncodeCursor.
// Returns false for anything else, including a bare recordId.
func DecodeCursor(s string) (Position, bool) {
	if s == "" {
		return Position{}, false
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Position{}, false
	}
	ns, id, ok := strings.Cut(string(b), "|")
	if !ok || id == "" {
		return Position{}, false
	}
	n, err := strconv.ParseInt(ns, 10, 64)
	if err != nil {
		return Position{}, false
	}
	return Position{ServerUpdatedAt: time.Unix(0, n).UTC(), RecordID: id}, true
}

// ParseLimit parses a limit query param with default and max
func ParseLimit(q string, def, max int) int {
	if q == "" {
		return def
	}
	n, err := strconv.Atoi(q)
	if err != nil || n <= 0 {
		return def
	}
	return ClampLimit(n, max)
}

// ClampLimit bounds n to [1, max]
func ClampLimit(n, max int) int {
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// RFC3339 formats t as a UTC RFC3339Nano timestamp
func RFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp accepts ISO-8601 timestamps as produced by clients
// (RFC3339 with or without fractional seconds)
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
