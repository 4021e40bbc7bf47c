package risk

import (
	"math"
)

// Drawdown is the largest peak-to-trough decline of a cumulative series.
type Drawdown struct {
	PeakIndex   int     `json:"peak_index"`
	TroughIndex int     `json:"trough_index"`
	PeakDate    int     `json:"peak_date,omitempty"`
	TroughDate  int     `json:"trough_date,omitempty"`
	PeakLevel   float64 `json:"peak_level"`
	TroughLevel float64 `json:"trough_level"`
}

// Loss is the fractional decline (trough - peak) / peak.
func (d Drawdown) Loss() float64 {
	return (d.TroughLevel - d.PeakLevel) / d.PeakLevel
}

// MaximumDrawdown finds the maximum drawdown of a return series, or of a
// price level series when isPriceLevel is set. Returns compound as
// log(1+r). dates, when given, label the peak and trough.
func MaximumDrawdown(x []float64, dates []int, isPriceLevel bool) (Drawdown, error) {
	if len(x) == 0 {
		return Drawdown{}, ErrEmpty
	}
	if dates != nil && len(dates) != len(x) {
		return Drawdown{}, ErrLength
	}
	cum := make([]float64, len(x))
	var run float64
	for i, v := range x {
		if isPriceLevel {
			cum[i] = math.Log(v)
			continue
		}
		run += math.Log1p(v)
		cum[i] = run
	}

	end, worst := 0, 0.0
	high := math.Inf(-1)
	for i, v := range cum {
		high = math.Max(high, v)
		if dd := high - v; dd > worst {
			worst, end = dd, i
		}
	}
	beg := 0
	for i := 0; i <= end; i++ {
		if cum[i] > cum[beg] {
			beg = i
		}
	}
	d := Drawdown{
		PeakIndex:   beg,
		TroughIndex: end,
		PeakLevel:   math.Exp(cum[beg]),
		TroughLevel: math.Exp(cum[end]),
	}
	if dates != nil {
		d.PeakDate, d.TroughDate = dates[beg], dates[end]
	}
	return d, nil
}
