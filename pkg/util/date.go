package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IntToDate formats an int date YYYYMMDD as "YYYY-MM-DD".
func IntToDate(d int) string {
	s := fmt.Sprintf("%08d", d)
	return s[0:4] + "-" + s[4:6] + "-" + s[6:8]
}

// DateToInt keeps the digits of the first ten characters of s, so both
// "2024-01-31" and "2024-01-31T00:00:00Z" give 20240131.
func DateToInt(s string) (int, error) {
	if len(s) > 10 {
		s = s[:10]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("no digits in date %q", s)
	}
	return strconv.Atoi(b.String())
}

// IntToTime converts YYYYMMDD to a UTC time.
func IntToTime(d int) time.Time {
	return time.Date(d/10000, time.Month(d/100%100), d%100, 0, 0, 0, 0, time.UTC)
}

// TimeToInt converts t to YYYYMMDD.
func TimeToInt(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// ParseDate accepts "2006-01-02", "01/02/2006", RFC3339 or unix seconds.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "1/2/2006", "Jan 2, 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return ParseTime(s)
}

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0).UTC(), true
	}
	return time.Time{}, false
}

// MonthEnd rolls t forward to the last day of its month.
func MonthEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}

// QuarterEnd rolls t forward to the end of its calendar quarter. With
// strict set, a date already on a quarter end advances one quarter.
func QuarterEnd(t time.Time, strict bool) time.Time {
	q := (int(t.Month())-1)/3 + 1
	end := time.Date(t.Year(), time.Month(q*3)+1, 0, 0, 0, 0, 0, time.UTC)
	if strict && sameDay(end, t) {
		end = time.Date(t.Year(), time.Month(q*3)+4, 0, 0, 0, 0, 0, time.UTC)
	}
	return end
}

// YearEnd rolls t forward to December 31.
func YearEnd(t time.Time) time.Time {
	return time.Date(t.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
