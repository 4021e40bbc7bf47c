package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Values is a float slice whose JSON form encodes NaN as null.
type Values []float64

func (v Values) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			buf.WriteString("null")
			continue
		}
		b, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (v *Values) UnmarshalJSON(data []byte) error {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Values, len(raw))
	for i, p := range raw {
		if p == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *p
	}
	*v = out
	return nil
}

// Panel is a T x N table: rows are dated observations, columns variables.
// Missing cells are NaN.
type Panel struct {
	Index   []int    `json:"index,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Data    []Values `json:"data" validate:"required,min=1"`
}

var ErrRagged = errors.New("panel rows must all have the same length")

// Dims returns rows and columns.
func (p *Panel) Dims() (int, int) {
	if len(p.Data) == 0 {
		return 0, 0
	}
	return len(p.Data), len(p.Data[0])
}

// Validate checks that the panel is rectangular and labels match its shape.
func (p *Panel) Validate() error {
	r, c := p.Dims()
	if r == 0 || c == 0 {
		return errors.New("panel is empty")
	}
	for _, row := range p.Data {
		if len(row) != c {
			return ErrRagged
		}
	}
	if len(p.Index) > 0 && len(p.Index) != r {
		return fmt.Errorf("panel has %d rows but %d index labels", r, len(p.Index))
	}
	if len(p.Columns) > 0 && len(p.Columns) != c {
		return fmt.Errorf("panel has %d columns but %d column labels", c, len(p.Columns))
	}
	return nil
}

// Matrix copies the panel into a dense matrix.
func (p *Panel) Matrix() (*mat.Dense, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r, c := p.Dims()
	m := mat.NewDense(r, c, nil)
	for i, row := range p.Data {
		m.SetRow(i, row)
	}
	return m, nil
}

// ColumnIndex finds a column by name.
func (p *Panel) ColumnIndex(name string) (int, bool) {
	for j, c := range p.Columns {
		if c == name {
			return j, true
		}
	}
	return -1, false
}

// Select copies the named columns into a dense matrix.
func (p *Panel) Select(names []string) (*mat.Dense, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r, _ := p.Dims()
	m := mat.NewDense(r, len(names), nil)
	for k, name := range names {
		j, ok := p.ColumnIndex(name)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		for i := 0; i < r; i++ {
			m.Set(i, k, p.Data[i][j])
		}
	}
	return m, nil
}

// PanelFromMatrix builds a panel with the given labels from m.
func PanelFromMatrix(m mat.Matrix, index []int, columns []string) *Panel {
	r, _ := m.Dims()
	p := &Panel{Index: index, Columns: columns, Data: make([]Values, r)}
	for i := 0; i < r; i++ {
		p.Data[i] = mat.Row(nil, i, m)
	}
	return p
}

// Clone returns a deep copy of the panel.
func (p *Panel) Clone() *Panel {
	out := &Panel{
		Index:   append([]int(nil), p.Index...),
		Columns: append([]string(nil), p.Columns...),
		Data:    make([]Values, len(p.Data)),
	}
	for i, row := range p.Data {
		out.Data[i] = append(Values(nil), row...)
	}
	return out
}

// DropLeading returns the panel without its first n rows. Rows are shared
// with p, not copied.
func (p *Panel) DropLeading(n int) *Panel {
	if n <= 0 {
		return p
	}
	if n > len(p.Data) {
		n = len(p.Data)
	}
	out := &Panel{Columns: p.Columns, Data: p.Data[n:]}
	if len(p.Index) == len(p.Data) {
		out.Index = p.Index[n:]
	}
	return out
}
