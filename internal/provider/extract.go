package provider

import (
	"strconv"
	"strings"
)

// ExtractValue normalizes a stat value from the shapes the stats API uses.
//
// Most fields are flat numbers, some arrive as numeric strings, and a few
// aggregate fields are objects like {"total": 15, "made": 12}.
//
// Returns the scalar float64 value, and ok=false if not extractable.
func ExtractValue(val interface{}) (float64, bool) {
	if val == nil {
		return 0, false
	}

	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
		return 0, false
	case map[string]interface{}:
		// Nested aggregates: try "total", "all", "count", "average"
		for _, key := range []string{"total", "all", "count", "average"} {
			if inner, exists := v[key]; exists && inner != nil {
				return ExtractValue(inner)
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// ParseMinutes converts a minutes value to decimal minutes. It accepts
// "MM:SS", "MM", plain numbers and the PT-style "PT34M12.00S" duration.
func ParseMinutes(val interface{}) (float64, bool) {
	s, isString := val.(string)
	if !isString {
		return ExtractValue(val)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.HasPrefix(s, "PT") && strings.HasSuffix(s, "S") {
		body := strings.TrimSuffix(strings.TrimPrefix(s, "PT"), "S")
		mins, secs, found := strings.Cut(body, "M")
		if !found {
			return 0, false
		}
		m, err1 := strconv.ParseFloat(mins, 64)
		sec, err2 := strconv.ParseFloat(secs, 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return m + sec/60, true
	}

	mins, secs, found := strings.Cut(s, ":")
	if !found {
		return ExtractValue(s)
	}
	m, err1 := strconv.Atoi(mins)
	sec, err2 := strconv.Atoi(secs)
	if err1 != nil || err2 != nil || m < 0 || sec < 0 || sec >= 60 {
		return 0, false
	}
	return float64(m) + float64(sec)/60, true
}
