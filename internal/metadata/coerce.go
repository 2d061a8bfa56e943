package metadata

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	intPattern   = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
)

// CoerceScalar interprets a string as a bool, int64, or float64 when it reads
// as one, and returns the string unchanged otherwise. Matching is exact: no
// whitespace trimming, so "42 " stays a string. Integers too large for int64
// also stay strings.
func CoerceScalar(s string) any {
	if s == "" {
		return s
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if intPattern.MatchString(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		return s
	}
	if strings.ContainsAny(s, ".eE") && floatPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
