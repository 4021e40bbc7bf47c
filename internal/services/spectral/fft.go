// Package spectral computes cross-correlations of series through the
// convolution theorem.
package spectral

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrLength  = errors.New("spectral: series must have equal length of at least 2")
	ErrColumns = errors.New("spectral: need at least 2 columns")
	ErrFlat    = errors.New("spectral: series has zero variance")
)

// Correlogram holds cross-correlations indexed by displacement lag.
type Correlogram struct {
	Lags   []int     `json:"lags"`
	Values []float64 `json:"values"`
}

// At returns the correlation at lag, or NaN outside the window.
func (c Correlogram) At(lag int) float64 {
	i := lag + len(c.Lags)/2
	if i < 0 || i >= len(c.Values) {
		return math.NaN()
	}
	return c.Values[i]
}

// Pair is the result for columns I < J of a panel.
type Pair struct {
	I     int     `json:"i"`
	J     int     `json:"j"`
	Value float64 `json:"value"`
	Lag   int     `json:"lag"`
}

// normalize demeans x, scales it to unit norm and zero pads it to 2N.
func normalize(x []float64) ([]float64, error) {
	n := len(x)
	out := make([]float64, 2*n)
	mean := floats.Sum(x) / float64(n)
	for i, v := range x {
		out[i] = v - mean
	}
	norm := floats.Norm(out[:n], 2)
	if norm == 0 {
		return nil, ErrFlat
	}
	floats.Scale(1/norm, out[:n])
	return out, nil
}

func flip(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[len(x)-1-i] = v
	}
	return out
}

// transformer wraps a real FFT of length 2N.
type transformer struct {
	n      int
	fft    *fourier.FFT
	shift  int
	window int
}

func newTransformer(n int) *transformer {
	return &transformer{
		n:      n,
		fft:    fourier.NewFFT(2 * n),
		shift:  n/2 + 1,
		window: 2*(n/2) + 1,
	}
}

func (t *transformer) spectrum(x []float64) []complex128 {
	return t.fft.Coefficients(nil, x)
}

// convolve returns the circular convolution of two transformed series,
// rolled so that lag 0 sits at the center of the returned window.
func (t *transformer) convolve(a, b []complex128) []float64 {
	prod := make([]complex128, len(a))
	for i := range a {
		prod[i] = a[i] * b[i]
	}
	conv := t.fft.Sequence(nil, prod)
	// gonum's inverse transform is unnormalized
	floats.Scale(1/float64(len(conv)), conv)

	size := len(conv)
	out := make([]float64, t.window)
	for i := range out {
		out[i] = conv[((i-t.shift)%size+size)%size]
	}
	return out
}

func (t *transformer) lags() []int {
	half := t.window / 2
	lags := make([]int, t.window)
	for i := range lags {
		lags[i] = i - half
	}
	return lags
}

// Correlation returns the cross-correlations of x and y at lags
// -N/2..N/2. The value at lag d is sum_t x[t] y[t-d] of the normalized
// series. A nil y computes the autocorrelation of x.
func Correlation(x, y []float64) (Correlogram, error) {
	if y == nil {
		y = x
	}
	if len(x) < 2 || len(x) != len(y) {
		return Correlogram{}, ErrLength
	}
	xn, err := normalize(x)
	if err != nil {
		return Correlogram{}, err
	}
	yn, err := normalize(y)
	if err != nil {
		return Correlogram{}, err
	}
	t := newTransformer(len(x))
	values := t.convolve(t.spectrum(xn), t.spectrum(flip(yn)))
	return Correlogram{Lags: t.lags(), Values: values}, nil
}

// pairwise transforms every column of x and calls fn with the windowed
// correlations of each pair (i < j).
func pairwise(x mat.Matrix, fn func(i, j int, corrs []float64)) error {
	n, m := x.Dims()
	if m < 2 {
		return ErrColumns
	}
	if n < 2 {
		return ErrLength
	}
	t := newTransformer(n)
	fwd := make([][]complex128, m)
	rev := make([][]complex128, m)
	for j := 0; j < m; j++ {
		col, err := normalize(mat.Col(nil, j, x))
		if err != nil {
			return err
		}
		fwd[j] = t.spectrum(col)
		rev[j] = t.spectrum(flip(col))
	}
	for i := 0; i < m-1; i++ {
		for j := i + 1; j < m; j++ {
			fn(i, j, t.convolve(fwd[i], rev[j]))
		}
	}
	return nil
}

// Align finds, for every pair of columns, the largest cross-correlation
// within the lag window and the lag at which it occurs.
func Align(x mat.Matrix) ([]Pair, error) {
	var out []Pair
	err := pairwise(x, func(i, j int, corrs []float64) {
		best := floats.MaxIdx(corrs)
		out = append(out, Pair{I: i, J: j, Value: corrs[best], Lag: best - len(corrs)/2})
	})
	return out, err
}

// NeweyWest returns, for every pair of columns, the cross-correlations over
// the lag window weighted by Bartlett weights 1 - |l|/(L+1).
func NeweyWest(x mat.Matrix) ([]Pair, error) {
	var out []Pair
	err := pairwise(x, func(i, j int, corrs []float64) {
		half := len(corrs) / 2
		var sum float64
		for k, c := range corrs {
			l := math.Abs(float64(k - half))
			sum += (1 - l/float64(half+1)) * c
		}
		out = append(out, Pair{I: i, J: j, Value: sum})
	})
	return out, err
}
