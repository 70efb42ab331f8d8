package util

import (
    "math"
    "strconv"
    "strings"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int {
    if s == "" {
        return def
    }
    v, err := strconv.Atoi(s)
    if err != nil {
        return def
    }
    return v
}

// missingTokens are cell values treated as an absent observation.
var missingTokens = map[string]struct{}{
    "": {}, "nan": {}, "na": {}, "n/a": {}, "null": {}, "none": {}, "-": {},
}

// ParseFloatMissing parses a numeric cell. Missing markers yield NaN with ok=true;
// anything else unparseable yields ok=false.
func ParseFloatMissing(s string) (float64, bool) {
    s = strings.TrimSpace(s)
    if _, missing := missingTokens[strings.ToLower(s)]; missing {
        return math.NaN(), true
    }
    v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
    if err != nil {
        return math.NaN(), false
    }
    return v, true
}
