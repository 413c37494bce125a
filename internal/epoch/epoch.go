// Package epoch implements the interval and datetime parsing utilities
// that translate partition-column values into unix epoch seconds and
// partition-bucket boundaries. It has no dependency on the host database
// or on database/sql; it operates purely on Go values.
package epoch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nuuskamummu/Sqlite3-partitioner/internal/perr"
)

// ParseInterval parses a "<integer> <unit>" fragment (e.g. "1 hour",
// "7 day") into a duration expressed in seconds. Supported units are
// "hour" (3600s) and "day" (86400s); anything else, or a malformed
// integer, is a *perr.Error of Kind ParseInterval.
func ParseInterval(s string) (int64, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, perr.ParseIntervalf("expected \"<N> <unit>\", got %q", s)
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, perr.ParseIntervalf("invalid integer %q in %q", fields[0], s)
	}
	if n <= 0 {
		return 0, perr.ParseIntervalf("interval must be positive, got %d", n)
	}

	var unitSeconds int64
	switch strings.ToLower(fields[1]) {
	case "hour", "hours":
		unitSeconds = 3600
	case "day", "days":
		unitSeconds = 86400
	default:
		return 0, perr.ParseIntervalf("unsupported interval unit %q", fields[1])
	}

	seconds := n * unitSeconds
	if seconds/unitSeconds != n { // overflow guard
		return 0, perr.ParseIntervalf("interval %q overflows seconds", s)
	}
	return seconds, nil
}

// dateLayouts is the fixed, ordered list of textual datetime formats that
// ParseToUnixEpoch tries. The first layout that parses successfully wins;
// callers relying on ambiguous input (a string matching more than one
// layout) get whichever is listed first here.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00", // ISO 8601 full, offset or Z
	"2006-01-02T15:04:05",       // ISO 8601 full, no offset
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",          // ISO 8601 date-only
	"02-01-2006 15:04:05", // European dd-mm-YYYY with time
	"02-01-2006",          // European dd-mm-YYYY date-only
	"01/02/2006 15:04:05", // US mm/dd/YYYY with time
	"01/02/2006",          // US mm/dd/YYYY date-only
	"20060102150405",      // compact YYYYMMDDHHMMSS
	"20060102",            // compact YYYYMMDD
	"2006-01-02 03:04:05 PM",
	"01/02/2006 03:04 PM",
	"Jan 2, 2006 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseToUnixEpoch converts a value drawn from a SQLite row into a signed
// 64-bit unix epoch in seconds (UTC). Accepted dynamic types are int64,
// int, float64, and string; float64 is truncated toward zero. Any other type,
// or a string matching none of dateLayouts, is a *perr.Error of Kind
// ParseValueType.
func ParseToUnixEpoch(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		return int64(math.Trunc(t)), nil
	case string:
		// A run of digits that isn't exactly 8 (YYYYMMDD) or 14
		// (YYYYMMDDHHMMSS) characters long can't be one of the compact
		// date layouts below, so treat it as a raw epoch integer. This
		// lets FormatEpoch's output round-trip through ParseToUnixEpoch,
		// except for epochs of exactly 8 or 14 digits, which are read as
		// compact dates instead.
		if isDigits(t) && len(t) != 8 && len(t) != 14 {
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				return n, nil
			}
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC().Unix(), nil
			}
		}
		return 0, perr.ParseValueTypef(nil, "value %q matches no known datetime format", t)
	default:
		return 0, perr.ParseValueTypef(nil, "cannot parse epoch from %T", v)
	}
}

// ParsePartitionValue buckets v (a raw column value) into the start of
// its interval-second window: parse_to_unix_epoch(v) - (epoch mod
// interval). Negative epochs are rejected as out of domain, matching the
// reference implementation's documented behavior for the undefined case.
func ParsePartitionValue(v any, interval int64) (int64, error) {
	if interval <= 0 {
		return 0, perr.ParseIntervalf("interval must be positive, got %d", interval)
	}
	ep, err := ParseToUnixEpoch(v)
	if err != nil {
		return 0, err
	}
	if ep < 0 {
		return 0, perr.ParseValueTypef(nil, "epoch %d is out of domain (negative)", ep)
	}
	return ep - (ep % interval), nil
}

// FormatEpoch renders an epoch as the canonical partition-name suffix,
// e.g. "1700000000". It exists to keep the round-trip property
// (ParsePartitionValue(FormatEpoch(v), interval) == v - v%interval)
// expressible without hand-formatting integers at call sites. The
// property does not hold when FormatEpoch(v) is exactly 8 or 14 digits
// long: ParseToUnixEpoch reads such strings as compact dates.
func FormatEpoch(epoch int64) string {
	return fmt.Sprintf("%d", epoch)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
