// Package dataset provides a small column-oriented table for tabular
// training data read from CSV.
package dataset

import (
	"math"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Kind is the inferred type of a column.
type Kind int

const (
	// Numeric columns hold float64 values. Missing cells are NaN.
	Numeric Kind = iota
	// Categorical columns hold strings.
	Categorical
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

// Column is a named, typed column. Exactly one of Floats or Strings is set.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Strings []string
}

// Len returns the number of rows.
func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Floats)
	}
	return len(c.Strings)
}

// NumMissing counts NaN cells of a numeric column.
func (c *Column) NumMissing() int {
	n := 0
	for _, v := range c.Floats {
		if math.IsNaN(v) {
			n++
		}
	}
	return n
}

// Frame is an ordered set of equal-length columns.
type Frame struct {
	columns []*Column
	index   map[string]int
	nRows   int
}

// NewFrame builds a frame from columns. Names must be unique and all
// columns must have the same length.
func NewFrame(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if _, dup := f.index[c.Name]; dup {
			return nil, errors.NewValueError("NewFrame", "duplicate column name "+c.Name)
		}
		if i == 0 {
			f.nRows = c.Len()
		} else if c.Len() != f.nRows {
			return nil, errors.NewDimensionError("NewFrame", f.nRows, c.Len(), 0)
		}
		f.index[c.Name] = i
		f.columns = append(f.columns, c)
	}
	return f, nil
}

// Dims returns the number of rows and columns.
func (f *Frame) Dims() (rows, cols int) {
	return f.nRows, len(f.columns)
}

// Names returns the column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.columns))
	for i, c := range f.columns {
		out[i] = c.Name
	}
	return out
}

// Column returns the named column.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, errors.NewValueError("Frame.Column", "column '"+name+"' not found")
	}
	return f.columns[i], nil
}

// Drop returns a frame without the named column. Columns are shared.
func (f *Frame) Drop(name string) (*Frame, error) {
	if _, err := f.Column(name); err != nil {
		return nil, err
	}
	kept := make([]*Column, 0, len(f.columns)-1)
	for _, c := range f.columns {
		if c.Name != name {
			kept = append(kept, c)
		}
	}
	out, err := NewFrame(kept...)
	if err != nil {
		return nil, err
	}
	out.nRows = f.nRows
	return out, nil
}

// Take returns a new frame holding the given rows in the given order.
func (f *Frame) Take(rows []int) *Frame {
	cols := make([]*Column, len(f.columns))
	for j, c := range f.columns {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == Numeric {
			nc.Floats = make([]float64, len(rows))
			for i, r := range rows {
				nc.Floats[i] = c.Floats[r]
			}
		} else {
			nc.Strings = make([]string, len(rows))
			for i, r := range rows {
				nc.Strings[i] = c.Strings[r]
			}
		}
		cols[j] = nc
	}
	out, _ := NewFrame(cols...)
	out.nRows = len(rows)
	return out
}

func (f *Frame) namesOf(kind Kind) []string {
	var out []string
	for _, c := range f.columns {
		if c.Kind == kind {
			out = append(out, c.Name)
		}
	}
	return out
}

// NumericColumns returns the names of numeric columns in frame order.
func (f *Frame) NumericColumns() []string { return f.namesOf(Numeric) }

// CategoricalColumns returns the names of categorical columns in frame order.
func (f *Frame) CategoricalColumns() []string { return f.namesOf(Categorical) }

// Matrix returns the named numeric columns as an n×len(names) matrix.
func (f *Frame) Matrix(names []string) (*mat.Dense, error) {
	if f.nRows == 0 || len(names) == 0 {
		return nil, errors.NewModelError("Frame.Matrix", "empty selection", errors.ErrEmptyData)
	}
	m := mat.NewDense(f.nRows, len(names), nil)
	for j, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Kind != Numeric {
			return nil, errors.NewValueError("Frame.Matrix", "column '"+name+"' is not numeric")
		}
		m.SetCol(j, c.Floats)
	}
	return m, nil
}

// Strings returns the named categorical columns, one slice per column.
func (f *Frame) Strings(names []string) ([][]string, error) {
	out := make([][]string, len(names))
	for j, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return nil, err
		}
		if c.Kind != Categorical {
			return nil, errors.NewValueError("Frame.Strings", "column '"+name+"' is not categorical")
		}
		out[j] = c.Strings
	}
	return out, nil
}
