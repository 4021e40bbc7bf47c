package risk

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// OHLC holds open, high, low and close prices (observations x assets).
// Open and Close may be nil for range-only estimators.
type OHLC struct {
	Open, High, Low, Close *mat.Dense
}

func sameShape(ms ...*mat.Dense) error {
	var r, c int
	for i, m := range ms {
		if m == nil {
			continue
		}
		mr, mc := m.Dims()
		if i == 0 || r == 0 {
			r, c = mr, mc
			continue
		}
		if mr != r || mc != c {
			return ErrLength
		}
	}
	return nil
}

// fillFromPrevClose replaces NaN cells of m with the previous row of closes.
func fillFromPrevClose(m, closes *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	r, c := out.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !math.IsNaN(out.At(i, j)) {
				continue
			}
			if i == 0 {
				continue
			}
			out.Set(i, j, closes.At(i-1, j))
		}
	}
	return out
}

// forwardFill carries the last finite value of each column forward.
func forwardFill(m *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(m)
	r, c := out.Dims()
	for j := 0; j < c; j++ {
		last := math.NaN()
		for i := 0; i < r; i++ {
			if v := out.At(i, j); math.IsNaN(v) {
				out.Set(i, j, last)
			} else {
				last = v
			}
		}
	}
	return out
}

// columnMeans averages fn over rows for each column, skipping NaN results.
func columnMeans(r, c int, fn func(i, j int) float64) []float64 {
	out := make([]float64, c)
	for j := 0; j < c; j++ {
		var sum float64
		var n int
		for i := 0; i < r; i++ {
			if v := fn(i, j); !math.IsNaN(v) && !math.IsInf(v, 0) {
				sum += v
				n++
			}
		}
		if n == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = sum / float64(n)
	}
	return out
}

// Parkinson estimates volatility from the high-low range,
// sqrt(mean(ln(H/L)^2) / (4 ln 2)). When closes are given, missing highs
// and lows are filled with the previous close.
func Parkinson(p OHLC) ([]float64, error) {
	if p.High == nil || p.Low == nil {
		return nil, ErrEmpty
	}
	if err := sameShape(p.High, p.Low, p.Close); err != nil {
		return nil, err
	}
	high, low := p.High, p.Low
	if p.Close != nil {
		high = fillFromPrevClose(high, p.Close)
		low = fillFromPrevClose(low, p.Close)
	}
	r, c := high.Dims()
	v := columnMeans(r, c, func(i, j int) float64 {
		l := math.Log(high.At(i, j) / low.At(i, j))
		return l * l
	})
	for j := range v {
		v[j] = math.Sqrt(v[j] / (4 * math.Ln2))
	}
	return v, nil
}

func prepareOHLC(p OHLC, ffill bool) (OHLC, error) {
	if p.Open == nil || p.High == nil || p.Low == nil || p.Close == nil {
		return OHLC{}, ErrEmpty
	}
	if err := sameShape(p.Open, p.High, p.Low, p.Close); err != nil {
		return OHLC{}, err
	}
	if !ffill {
		return p, nil
	}
	closes := forwardFill(p.Close)
	return OHLC{
		Open:  fillFromPrevClose(p.Open, closes),
		High:  fillFromPrevClose(p.High, closes),
		Low:   fillFromPrevClose(p.Low, closes),
		Close: closes,
	}, nil
}

// GarmanKlass estimates zero-drift volatility,
// sqrt(mean(0.5 ln(H/L)^2 - (2 ln 2 - 1) ln(C/O)^2)).
func GarmanKlass(p OHLC, ffill bool) ([]float64, error) {
	q, err := prepareOHLC(p, ffill)
	if err != nil {
		return nil, err
	}
	r, c := q.High.Dims()
	v := columnMeans(r, c, func(i, j int) float64 {
		hl := math.Log(q.High.At(i, j) / q.Low.At(i, j))
		co := math.Log(q.Close.At(i, j) / q.Open.At(i, j))
		return 0.5*hl*hl - (2*math.Ln2-1)*co*co
	})
	for j := range v {
		v[j] = math.Sqrt(v[j])
	}
	return v, nil
}

// RogersSatchell estimates volatility allowing for drift,
// sqrt(mean(ln(H/C) ln(H/O) + ln(L/C) ln(L/O))).
func RogersSatchell(p OHLC, ffill bool) ([]float64, error) {
	q, err := prepareOHLC(p, ffill)
	if err != nil {
		return nil, err
	}
	r, c := q.High.Dims()
	v := columnMeans(r, c, func(i, j int) float64 {
		h, l := q.High.At(i, j), q.Low.At(i, j)
		o, cl := q.Open.At(i, j), q.Close.At(i, j)
		return math.Log(h/cl)*math.Log(h/o) + math.Log(l/cl)*math.Log(l/o)
	})
	for j := range v {
		v[j] = math.Sqrt(v[j])
	}
	return v, nil
}
