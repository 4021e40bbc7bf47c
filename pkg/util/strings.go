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

// ParseNumber coerces a value to float64, returning NaN for anything that is
// not a number (FRED uses "." for missing observations).
func ParseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// StripNumber keeps only digits, '.' and '-' before parsing, so "4.52%" and
// "1,234.5" parse as numbers.
func StripNumber(s string) float64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return ParseNumber(b.String())
}
