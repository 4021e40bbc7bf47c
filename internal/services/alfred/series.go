// Package alfred constructs point-in-time economic series from revision
// vintages and loads the McCracken FRED-MD/FRED-QD datasets.
package alfred

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"FinDS/internal/domain/models"
	"FinDS/pkg/util"
)

// MaxDate stands in for an open-ended date bound.
const MaxDate = 99991231

var (
	ErrFrequency = errors.New("unknown frequency")
	ErrRelease   = errors.New("release must not be negative")
)

// Offset is a calendar offset. Adding months clips to the end of the target
// month, so Jan 31 plus one month is the last day of February.
type Offset struct {
	Months int `json:"months"`
	Days   int `json:"days"`
}

// Add applies the offset to t.
func (o Offset) Add(t time.Time) time.Time {
	if o.Months != 0 {
		first := time.Date(t.Year(), t.Month()+time.Month(o.Months), 1, 0, 0, 0, 0, time.UTC)
		last := util.MonthEnd(first).Day()
		day := t.Day()
		if day > last {
			day = last
		}
		t = time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
	}
	return t.AddDate(0, 0, o.Days)
}

// Options selects which release of each period ConstructSeries keeps.
type Options struct {
	// Vintage is the latest realtime_start (inclusive) allowed, YYYYMMDD.
	Vintage int `json:"vintage"`
	// Release picks the n-th release of each date; 0 keeps the latest.
	Release int `json:"release"`
	// ReleaseOffset, when set, keeps the latest release published no later
	// than the period date plus the offset. It overrides Release.
	ReleaseOffset *Offset `json:"release_offset,omitempty"`
	Start         int     `json:"start"`
	End           int     `json:"end"`
	// Freq aligns dates to the end of their period: A, S, Q, M, B or W.
	Freq string `json:"freq"`
}

type row struct {
	date  time.Time
	value float64
	start string
	end   string
}

// BackfillRealtime converts a FRED response into ALFRED form: rows whose
// realtime window equals the request window get realtime_start = date.
func BackfillRealtime(obs []models.Observation, start, end string) []models.Observation {
	out := make([]models.Observation, len(obs))
	copy(out, obs)
	for i := range out {
		if out[i].RealtimeStart == start && out[i].RealtimeEnd == end {
			out[i].RealtimeStart = out[i].Date
		}
	}
	return out
}

// AlignDate moves t to the end of its period for the given frequency code.
// Only the first letter of freq matters; an empty freq leaves t unchanged.
func AlignDate(t time.Time, freq string) (time.Time, error) {
	if freq == "" {
		return t, nil
	}
	switch strings.ToUpper(freq)[0] {
	case 'A':
		return util.YearEnd(t), nil
	case 'S':
		return util.QuarterEnd(t, true), nil
	case 'Q':
		return util.QuarterEnd(t, false), nil
	case 'M':
		return util.MonthEnd(t), nil
	case 'B':
		return t.AddDate(0, 0, 13), nil
	case 'W':
		return t.AddDate(0, 0, 6), nil
	case 'D':
		return t, nil
	}
	return t, fmt.Errorf("%w: %q", ErrFrequency, freq)
}

// ConstructSeries builds one value per period date from full vintage
// observations. Non-numeric values are dropped. When any row was released on
// or before the vintage, later releases are discarded. The result is sorted by
// date and limited to Start <= date <= min(End, Vintage).
func ConstructSeries(obs []models.Observation, opts Options) ([]models.Point, error) {
	if opts.Release < 0 {
		return nil, ErrRelease
	}
	vintage := opts.Vintage
	if vintage <= 0 {
		vintage = MaxDate
	}
	end := opts.End
	if end <= 0 {
		end = MaxDate
	}
	if vintage < end {
		end = vintage
	}

	rows := make([]row, 0, len(obs))
	for _, o := range obs {
		v := util.ParseNumber(o.Value)
		if math.IsNaN(v) {
			continue
		}
		d, err := time.Parse("2006-01-02", o.Date)
		if err != nil {
			continue
		}
		if d, err = AlignDate(d, opts.Freq); err != nil {
			return nil, err
		}
		rows = append(rows, row{date: d, value: v, start: o.RealtimeStart, end: o.RealtimeEnd})
	}

	cutoff := util.IntToDate(vintage)
	released := rows[:0:0]
	for _, r := range rows {
		if r.start <= cutoff {
			released = append(released, r)
		}
	}
	if len(released) > 0 {
		rows = released
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].date.Equal(rows[j].date) {
			return rows[i].date.Before(rows[j].date)
		}
		return rows[i].start < rows[j].start
	})

	var out []models.Point
	for i := 0; i < len(rows); {
		j := i
		for j < len(rows) && rows[j].date.Equal(rows[i].date) {
			j++
		}
		if r, ok := pickRelease(rows[i:j], opts); ok {
			p, err := toPoint(r)
			if err != nil {
				return nil, err
			}
			if p.Date >= opts.Start && p.Date <= end {
				out = append(out, p)
			}
		}
		i = j
	}
	return out, nil
}

// pickRelease selects from the releases of a single date, oldest first.
func pickRelease(group []row, opts Options) (row, bool) {
	switch {
	case opts.ReleaseOffset != nil:
		limit := opts.ReleaseOffset.Add(group[0].date).Format("2006-01-02")
		for k := len(group) - 1; k >= 0; k-- {
			if group[k].start <= limit {
				return group[k], true
			}
		}
		return row{}, false
	case opts.Release == 0:
		return group[len(group)-1], true
	case opts.Release <= len(group):
		return group[opts.Release-1], true
	}
	return row{}, false
}

func toPoint(r row) (models.Point, error) {
	rs, err := util.DateToInt(r.start)
	if err != nil {
		return models.Point{}, fmt.Errorf("realtime_start: %w", err)
	}
	re, err := util.DateToInt(r.end)
	if err != nil {
		return models.Point{}, fmt.Errorf("realtime_end: %w", err)
	}
	return models.Point{
		Date:          util.TimeToInt(r.date),
		Value:         r.value,
		RealtimeStart: rs,
		RealtimeEnd:   re,
	}, nil
}

// Dates returns the date column of points.
func Dates(points []models.Point) []int {
	out := make([]int, len(points))
	for i, p := range points {
		out[i] = p.Date
	}
	return out
}

// Values returns the value column of points.
func Values(points []models.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
