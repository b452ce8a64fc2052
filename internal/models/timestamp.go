// Package models defines the record types shared by the local store, the
// remote gateway and the sync engine.
package models

import (
	"strings"
	"time"
)

// ServerTimeLayout is the only timestamp format the server emits. Values
// carry no offset and are always UTC.
const ServerTimeLayout = "2006-01-02 15:04:05"

// ParseServerTime parses a server timestamp with an explicit UTC
// assumption. ok is false for empty or malformed input.
func ParseServerTime(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(ServerTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// FormatServerTime renders t in the server format. The zero time
// renders as the empty string.
func FormatServerTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(ServerTimeLayout)
}
