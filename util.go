package commsdsl

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func Pretty(obj interface{}) string {
	j, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return fmt.Sprint(obj)
	}
	return string(j)
}

func strToBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	}
	return false, false
}

func strToInt(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 0, 64)
}

// strToValue parses a numeric literal. Big unsigned values are kept in their
// two's complement int64 form and must be compared with cmpValues.
func strToValue(s string, bigUnsigned bool) (int64, error) {
	s = strings.TrimSpace(s)
	if bigUnsigned && !strings.HasPrefix(s, "-") {
		u, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return 0, err
		}
		return int64(u), nil
	}
	return strToInt(s)
}

func cmpValues(a, b int64, bigUnsigned bool) int {
	if bigUnsigned {
		ua, ub := uint64(a), uint64(b)
		switch {
		case ua < ub:
			return -1
		case ua > ub:
			return 1
		}
		return 0
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func valueString(v int64, bigUnsigned bool) string {
	if bigUnsigned {
		return strconv.FormatUint(uint64(v), 10)
	}
	return strconv.FormatInt(v, 10)
}

func strToFloat(s string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nan":
		return math.NaN(), nil
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func IsValidName(s string) bool {
	if s == "" {
		return false
	}
	for i, ch := range s {
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case i > 0 && ch >= '0' && ch <= '9':
		default:
			return false
		}
	}
	return true
}

// IsValidRefName accepts a dotted external reference, optionally prefixed with
// "@Schema.".
func IsValidRefName(s string) bool {
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if !IsValidName(part) {
			return false
		}
	}
	return true
}

func joinPath(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

// parseRangeStr parses "[min, max]".
func parseRangeStr(s string) (string, string, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return "", "", false
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 2 {
		return "", "", false
	}
	lo := strings.TrimSpace(parts[0])
	hi := strings.TrimSpace(parts[1])
	if lo == "" || hi == "" {
		return "", "", false
	}
	return lo, hi, true
}
