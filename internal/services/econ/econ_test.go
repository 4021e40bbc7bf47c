package econ

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func noise(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		v := math.Sin(float64(i)*12.9898+4.1414) * 43758.5453
		out[i] = v - math.Floor(v) - 0.5
	}
	return out
}

func randomWalk(n int) []float64 {
	out := noise(n)
	floats.CumSum(out, out)
	return out
}

func TestLMExactLine(t *testing.T) {
	x := mat.NewDense(5, 1, []float64{1, 2, 3, 4, 5})
	y := mat.NewDense(5, 1, []float64{3, 5, 7, 9, 11})
	m, err := LM(x, y, true)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.Coefficients.At(0, 0), 1e-9)
	assert.InDelta(t, 2.0, m.Coefficients.At(1, 0), 1e-9)
	assert.InDelta(t, 1.0, m.RSquared[0], 1e-9)
	assert.InDelta(t, 1.0, m.RValue[0], 1e-9)
	assert.InDelta(t, 0.0, m.StdErr[0], 1e-9)
	assert.InDelta(t, 0.0, m.Residuals.At(2, 0), 1e-9)
}

func TestLMRowMismatch(t *testing.T) {
	_, err := LM(mat.NewDense(3, 1, nil), mat.NewDense(2, 1, nil), true)
	assert.ErrorIs(t, err, ErrRows)
}

func TestLeastSquaresTable(t *testing.T) {
	x := mat.NewDense(6, 2, []float64{
		1, 0,
		2, 1,
		3, 0,
		4, 1,
		5, 0,
		6, 1,
	})
	y := mat.NewDense(6, 2, nil)
	for i := 0; i < 6; i++ {
		y.Set(i, 0, 0.5+2*x.At(i, 0)-x.At(i, 1))
		y.Set(i, 1, 3*x.At(i, 1))
	}
	tab, err := LeastSquares(x, y, []string{"mkt", "smb"}, []string{"a", "b"}, true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{InterceptName, "mkt", "smb", "stdres"}, tab.Columns)

	a, ok := tab.Row("a")
	require.True(t, ok)
	assert.InDelta(t, 0.5, a[InterceptName], 1e-9)
	assert.InDelta(t, 2.0, a["mkt"], 1e-9)
	assert.InDelta(t, -1.0, a["smb"], 1e-9)
	assert.InDelta(t, 0.0, a["stdres"], 1e-9)

	b, ok := tab.Row("b")
	require.True(t, ok)
	assert.InDelta(t, 3.0, b["smb"], 1e-9)

	_, err = LeastSquares(x, y, []string{"mkt"}, []string{"a", "b"}, true, false)
	assert.Error(t, err)
}

func TestFStatsPeaksAtBreak(t *testing.T) {
	x := make([]float64, 100)
	for i := 50; i < 100; i++ {
		x[i] = 1
	}
	f := FStats(x, 0.15)
	require.Len(t, f, 100)
	assert.Equal(t, 50, floats.MaxIdx(f))
	assert.InDelta(t, 49.0, f[50], 1e-9)
	assert.Equal(t, 0.0, f[10], "tails are skipped")
	assert.Equal(t, 0.0, f[90])
}

func TestMacKinnon(t *testing.T) {
	assert.InDelta(t, 0.05, MacKinnonP(-2.86154), 1e-4)
	assert.Equal(t, 1.0, MacKinnonP(3))
	assert.Equal(t, 0.0, MacKinnonP(-20))
	assert.Greater(t, MacKinnonP(-1), MacKinnonP(-2))

	crit := MacKinnonCritical(1_000_000)
	assert.InDelta(t, -3.43035, crit["1%"], 1e-4)
	assert.InDelta(t, -2.86154, crit["5%"], 1e-4)
	assert.InDelta(t, -2.56677, crit["10%"], 1e-4)
}

func TestADF(t *testing.T) {
	white, err := ADF(noise(200), ADFOptions{AutoLag: "AIC"})
	require.NoError(t, err)
	assert.InDelta(t, -14.211131974868408, white.Stat, 1e-6)
	assert.Equal(t, 0, white.UsedLag)
	assert.Equal(t, 199, white.NObs)
	assert.Less(t, white.PValue, 0.01)

	walk, err := ADF(randomWalk(200), ADFOptions{AutoLag: "AIC"})
	require.NoError(t, err)
	assert.InDelta(t, -1.8662227050463256, walk.Stat, 1e-6)
	assert.InDelta(t, 0.3481139691841501, walk.PValue, 1e-6)

	tstat, err := ADF(noise(200), ADFOptions{AutoLag: "t-stat"})
	require.NoError(t, err)
	assert.Equal(t, 5, tstat.UsedLag)
	assert.InDelta(t, -6.203271209932426, tstat.Stat, 1e-6)

	fixed, err := ADF(noise(200), ADFOptions{})
	require.NoError(t, err)
	assert.Equal(t, 15, fixed.UsedLag)
	assert.Equal(t, 184, fixed.NObs)
	assert.InDelta(t, -2.569578442140169, fixed.Stat, 1e-6)

	_, err = ADF(noise(200), ADFOptions{AutoLag: "hqic"})
	assert.ErrorIs(t, err, ErrAutoLag)
	_, err = ADF(noise(200), ADFOptions{MaxLag: 150})
	assert.ErrorIs(t, err, ErrShort)
}

func TestIntegrationOrder(t *testing.T) {
	order, err := IntegrationOrder(noise(200), 5, 0.05, ADFOptions{AutoLag: "AIC"})
	require.NoError(t, err)
	assert.Equal(t, 0, order)

	order, err = IntegrationOrder(randomWalk(200), 5, 0.05, ADFOptions{AutoLag: "AIC"})
	require.NoError(t, err)
	assert.Equal(t, 1, order)

	order, err = IntegrationOrder(randomWalk(200), 1, 0.05, ADFOptions{AutoLag: "AIC"})
	require.NoError(t, err)
	assert.Equal(t, -1, order)
}
