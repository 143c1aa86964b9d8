// Package finance holds the yield arithmetic and the number handling shared by
// the parsers and the edit path.
package finance

import (
	"math"
	"strconv"
	"strings"
)

// Profitability returns rentIncome*12/value*100, or 0 when value is not positive.
func Profitability(value, rentIncome float64) float64 {
	if value <= 0 {
		return 0
	}
	return rentIncome * 12 / value * 100
}

// ParseAmount parses a user- or file-supplied number. Thousands separators
// (spaces, non-breaking spaces, underscores) are dropped and a lone decimal
// comma is accepted. Anything unparseable yields 0.
func ParseAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '_':
			return -1
		}
		return r
	}, s)
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		s = strings.Replace(s, ",", ".", 1)
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// AnyAmount coerces a decoded JSON/DBF value to a number, defaulting to 0.
func AnyAmount(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		return ParseAmount(x)
	default:
		return 0
	}
}
