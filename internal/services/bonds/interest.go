// Package bonds implements present value, duration and yield-curve
// bootstrapping for fixed income instruments.
package bonds

import (
	"errors"
	"math"
)

var (
	ErrEmpty  = errors.New("bonds: no cash flows")
	ErrLength = errors.New("bonds: flows and spot rates must have equal length, or one of them length 1")
	ErrPrice  = errors.New("bonds: discounted coupons exceed par")
)

// PresentValue discounts flow over n periods at the per-period spot rate.
func PresentValue(flow, n, spot float64) float64 {
	return flow / math.Pow(1+spot, n)
}

// broadcast aligns flows and spot rates: a single value of either is
// repeated to the length of the other.
func broadcast(flows, spot []float64) ([]float64, []float64, error) {
	switch {
	case len(flows) == 0 && len(spot) == 0:
		return nil, nil, ErrEmpty
	case len(flows) == len(spot):
		return flows, spot, nil
	case len(flows) == 1:
		return repeat(flows[0], len(spot)), spot, nil
	case len(spot) == 1:
		return flows, repeat(spot[0], len(flows)), nil
	}
	return nil, nil, ErrLength
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// DiscountedCashFlow is the present value of flows received at periods
// first, first+1, ... discounted at the matching spot rates.
func DiscountedCashFlow(flows, spot []float64, first float64) (float64, error) {
	f, s, err := broadcast(flows, spot)
	if err != nil {
		return 0, err
	}
	var pv float64
	for i := range f {
		pv += PresentValue(f[i], first+float64(i), s[i])
	}
	return pv, nil
}

// WeightedMaturity is the average of periods first, first+1, ... weighted by
// the present value of each flow. It also returns the sum of the weights.
func WeightedMaturity(flows, spot []float64, first float64) (float64, float64, error) {
	f, s, err := broadcast(flows, spot)
	if err != nil {
		return 0, 0, err
	}
	var num, total float64
	for i := range f {
		n := first + float64(i)
		v := PresentValue(f[i], n, s[i])
		num += n * v
		total += v
	}
	return num / total, total, nil
}

// ParDuration is the Macaulay duration in years of a bond priced at par
// with nominal annual coupon rate, n years to maturity, m coupons per year
// and the first flow at year first.
func ParDuration(nominal float64, n int, face float64, m int, first float64) (float64, error) {
	if n <= 0 || m <= 0 {
		return 0, ErrEmpty
	}
	if face == 0 {
		face = 1
	}
	coupon := nominal * face
	periods := n * m
	flows := repeat(coupon/float64(m), periods)
	flows[periods-1] += face
	d, _, err := WeightedMaturity(flows, []float64{nominal / float64(m)}, first*float64(m))
	if err != nil {
		return 0, err
	}
	return d / float64(m), nil
}

// ForwardRates returns the one-period forward rates implied by annual spot
// rates, where the first spot rate starts after base periods.
func ForwardRates(spot []float64, base int) []float64 {
	out := make([]float64, len(spot))
	prev := 0.0
	for n, s := range spot {
		num := math.Pow(1+s, float64(n+1+base))
		den := math.Pow(1+prev, float64(n+base))
		out[n] = num/den - 1
		prev = s
	}
	return out
}

// BootstrapRates returns the annualized spot rate to maturity of a par bond
// with yield ytm, given the annualized spot rates of all earlier coupon
// dates and m periods per year.
func BootstrapRates(ytm float64, nominal []float64, m int) (float64, error) {
	if m <= 0 {
		m = 1
	}
	fm := float64(m)
	n := float64(len(nominal) + 1)
	coupon := ytm / fm
	pv := 1.0
	for i, r := range nominal {
		pv -= PresentValue(coupon, float64(i+1), r/fm)
	}
	if pv <= 0 {
		return 0, ErrPrice
	}
	return (math.Pow((1+coupon)/pv, 1/n) - 1) * fm, nil
}

// BootstrapCurve bootstraps the spot curve from a sequence of par yields,
// one per coupon period.
func BootstrapCurve(ytm []float64, m int) ([]float64, error) {
	spot := make([]float64, 0, len(ytm))
	for _, y := range ytm {
		s, err := BootstrapRates(y, spot, m)
		if err != nil {
			return nil, err
		}
		spot = append(spot, s)
	}
	return spot, nil
}
