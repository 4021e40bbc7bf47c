package alfred

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"FinDS/internal/domain/models"
)

var ErrTransformCode = errors.New("unknown transformation code")

// TransformSpec is a sequence of operators applied in order: pct_change
// (compounded by Annualize), Log times log, Diff times diff (each scaled by
// Annualize), then a shift.
type TransformSpec struct {
	Log       int     `json:"log"`
	Diff      int     `json:"diff"`
	PctChange bool    `json:"pct_change"`
	Periods   int     `json:"periods" default:"1"`
	Annualize float64 `json:"annualize" default:"1"`
	Shift     int     `json:"shift"`
}

var transformCodes = map[string]TransformSpec{
	"1":   {},
	"2":   {Diff: 1},
	"3":   {Diff: 2},
	"4":   {Log: 1},
	"5":   {Diff: 1, Log: 1},
	"6":   {Diff: 2, Log: 1},
	"7":   {Diff: 1, PctChange: true},
	"lin": {},
	"chg": {Diff: 1},
	"ch1": {PctChange: true, Periods: 12},
	"pch": {PctChange: true},
	"pc1": {PctChange: true, Periods: 12},
	"pca": {Diff: 1, Log: 1, Annualize: 12},
	"cch": {Diff: 1, Log: 1},
	"cca": {Diff: 1, Log: 1, Annualize: 12},
	"log": {Log: 1},
}

// TransformCode looks up a McCracken transformation code (1..7) or a FRED
// units code (lin, chg, ch1, pch, pc1, pca, cch, cca, log).
func TransformCode(code string) (TransformSpec, error) {
	t, ok := transformCodes[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return TransformSpec{}, fmt.Errorf("%w: %q", ErrTransformCode, code)
	}
	return t.normalized(), nil
}

func (t TransformSpec) normalized() TransformSpec {
	if t.Periods <= 0 {
		t.Periods = 1
	}
	if t.Annualize == 0 {
		t.Annualize = 1
	}
	return t
}

// TransformValues applies t to an ordered series. The result has the same
// length; positions without enough history are NaN, and NaN inputs propagate.
func TransformValues(x []float64, t TransformSpec) []float64 {
	t = t.normalized()
	out := make([]float64, len(x))
	copy(out, x)
	if t.PctChange {
		out = lagged(out, t.Periods, func(cur, lag float64) float64 {
			return math.Pow(cur/lag, t.Annualize) - 1
		})
	}
	for i := 0; i < t.Log; i++ {
		for k, v := range out {
			out[k] = math.Log(v)
		}
	}
	for i := 0; i < t.Diff; i++ {
		out = lagged(out, t.Periods, func(cur, lag float64) float64 {
			return (cur - lag) * t.Annualize
		})
	}
	return shift(out, t.Shift)
}

func lagged(x []float64, periods int, op func(cur, lag float64) float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i < periods {
			out[i] = math.NaN()
			continue
		}
		out[i] = op(x[i], x[i-periods])
	}
	return out
}

// shift moves values forward by n positions (backward when negative).
func shift(x []float64, n int) []float64 {
	if n == 0 {
		return x
	}
	out := make([]float64, len(x))
	for i := range out {
		j := i - n
		if j < 0 || j >= len(x) {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[j]
	}
	return out
}

// Transform sorts points by date and replaces their values with the
// transformed series. Realtime windows are carried through unchanged.
func Transform(points []models.Point, t TransformSpec) []models.Point {
	out := make([]models.Point, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	values := TransformValues(Values(out), t)
	for i := range out {
		out[i].Value = values[i]
	}
	return out
}

// TransformWarmup is the number of leading rows a transformed FRED-MD panel
// loses to second differences.
const TransformWarmup = 2

// TransformPanel applies per-column transformation codes to a FRED-MD style
// panel in place. Columns without a code are left as they are.
func TransformPanel(p *models.Panel, codes map[string]int) error {
	if err := p.Validate(); err != nil {
		return err
	}
	rows, _ := p.Dims()
	col := make([]float64, rows)
	for j, name := range p.Columns {
		code, ok := codes[name]
		if !ok {
			continue
		}
		spec, err := TransformCode(fmt.Sprint(code))
		if err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		for i := range col {
			col[i] = p.Data[i][j]
		}
		for i, v := range TransformValues(col, spec) {
			p.Data[i][j] = v
		}
	}
	return nil
}
