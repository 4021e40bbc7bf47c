package models

import (
	"encoding/json"
	"math"
)

// Float is a float64 whose JSON form encodes NaN and infinities as null.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	var p *float64
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p == nil {
		*f = Float(math.NaN())
		return nil
	}
	*f = Float(*p)
	return nil
}

type pointJSON struct {
	Date          int   `json:"date"`
	Value         Float `json:"value"`
	RealtimeStart int   `json:"realtime_start,omitempty"`
	RealtimeEnd   int   `json:"realtime_end,omitempty"`
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{
		Date:          p.Date,
		Value:         Float(p.Value),
		RealtimeStart: p.RealtimeStart,
		RealtimeEnd:   p.RealtimeEnd,
	})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var raw pointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Point{
		Date:          raw.Date,
		Value:         float64(raw.Value),
		RealtimeStart: raw.RealtimeStart,
		RealtimeEnd:   raw.RealtimeEnd,
	}
	return nil
}
