package util

import (
    "strconv"
    "strings"
    "time"
)

// dateLayouts are tried in order after RFC3339 variants. Panel files mix
// full timestamps, ISO dates and month-only stamps.
var dateLayouts = []string{
    "2006-01-02 15:04:05",
    "2006-01-02",
    "2006-01",
    "01/02/2006",
    "2006/01/02",
}

// ParseTime tries RFC3339, RFC3339Nano, the common date layouts and unix
// seconds. Returns (t, true) if any worked. Date-only values are UTC.
func ParseTime(s string) (time.Time, bool) {
    s = strings.TrimSpace(s)
    if s == "" {
        return time.Time{}, false
    }
    if t, err := time.Parse(time.RFC3339, s); err == nil {
        return t, true
    }
    if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
        return t, true
    }
    for _, layout := range dateLayouts {
        if t, err := time.Parse(layout, s); err == nil {
            return t, true
        }
    }
    if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
        return time.Unix(ts, 0).UTC(), true
    }
    return time.Time{}, false
}

// MonthStart truncates t to the first instant of its month in UTC.
func MonthStart(t time.Time) time.Time {
    t = t.UTC()
    return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
