package util

import (
	"strconv"
	"testing"
	"time"
)

func TestIntDates(t *testing.T) {
	if got := IntToDate(20240131); got != "2024-01-31" {
		t.Fatalf("unexpected date %q", got)
	}
	for _, s := range []string{"2024-01-31", "2024-01-31T12:00:00Z"} {
		got, err := DateToInt(s)
		if err != nil {
			t.Fatalf("DateToInt(%q): %v", s, err)
		}
		if got != 20240131 {
			t.Fatalf("DateToInt(%q) = %d", s, got)
		}
	}
	if _, err := DateToInt("n/a"); err == nil {
		t.Fatalf("expected error")
	}
	if got := TimeToInt(IntToTime(19590101)); got != 19590101 {
		t.Fatalf("round trip gave %d", got)
	}
}

func TestPeriodEnds(t *testing.T) {
	tests := []struct {
		name string
		got  time.Time
		want int
	}{
		{"month end", MonthEnd(IntToTime(20240210)), 20240229},
		{"month end stays", MonthEnd(IntToTime(20240229)), 20240229},
		{"quarter end", QuarterEnd(IntToTime(20240401), false), 20240630},
		{"quarter end stays", QuarterEnd(IntToTime(20240630), false), 20240630},
		{"strict quarter end advances", QuarterEnd(IntToTime(20240630), true), 20240930},
		{"strict quarter end rolls", QuarterEnd(IntToTime(20240101), true), 20240331},
		{"year end", YearEnd(IntToTime(20240101)), 20241231},
	}
	for _, tt := range tests {
		if got := TimeToInt(tt.got); got != tt.want {
			t.Fatalf("%s: got %d want %d", tt.name, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-01", "3/1/2024", "Mar 1, 2024"} {
		got, ok := ParseDate(s)
		if !ok {
			t.Fatalf("expected ok for %q", s)
		}
		if TimeToInt(got) != 20240301 {
			t.Fatalf("unexpected date %v for %q", got, s)
		}
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}
