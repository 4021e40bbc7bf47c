package models

import "time"

// Observation is one row of an ALFRED series/observations response. Dates are
// "YYYY-MM-DD" strings and Value is kept raw: "." marks a missing value.
type Observation struct {
	Date          string `json:"date" validate:"required" ch:"date"`
	RealtimeStart string `json:"realtime_start" validate:"required" ch:"realtime_start"`
	RealtimeEnd   string `json:"realtime_end" validate:"required" ch:"realtime_end"`
	Value         string `json:"value" ch:"value"`
}

// Point is a constructed observation: one numeric value per period date,
// with the realtime window of the release it was taken from. Dates are
// YYYYMMDD integers.
type Point struct {
	Date          int     `json:"date"`
	Value         float64 `json:"value"`
	RealtimeStart int     `json:"realtime_start"`
	RealtimeEnd   int     `json:"realtime_end"`
}

// Span is a contiguous period, both ends inclusive.
type Span struct {
	First int `json:"first"`
	Last  int `json:"last"`
}

// SeriesInfo summarises a stored series.
type SeriesInfo struct {
	SeriesID     string    `json:"series_id"`
	Observations int       `json:"observations"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Dataset is a FRED-MD or FRED-QD vintage: a month-end indexed panel and its
// metadata rows (transformation codes, factor flags) keyed by row label.
type Dataset struct {
	Name  string                    `json:"name"`
	Path  string                    `json:"path"`
	Panel *Panel                    `json:"panel"`
	Meta  map[string]map[string]int `json:"meta"`
}

// TransformCodes returns the "transform" metadata row, if present.
func (d *Dataset) TransformCodes() map[string]int {
	if d == nil || d.Meta == nil {
		return nil
	}
	return d.Meta["transform"]
}
