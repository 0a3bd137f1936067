package dataset

import (
	"sort"
	"strconv"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
)

// SplitXY separates the target column from the features. Numeric target
// values are formatted back to their shortest string form.
func SplitXY(f *Frame, target string) (*Frame, []string, error) {
	col, err := f.Column(target)
	if err != nil {
		return nil, nil, errors.NewValidationError("target", "column not found in data", target)
	}
	X, err := f.Drop(target)
	if err != nil {
		return nil, nil, err
	}

	y := make([]string, col.Len())
	if col.Kind == Numeric {
		for i, v := range col.Floats {
			y[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	} else {
		copy(y, col.Strings)
	}
	return X, y, nil
}

// LabelCount is the number of rows carrying one target label.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Summary describes a loaded dataset.
type Summary struct {
	Rows        int            `json:"rows"`
	Columns     int            `json:"columns"`
	Numeric     []string       `json:"numeric_columns"`
	Categorical []string       `json:"categorical_columns"`
	Missing     map[string]int `json:"missing,omitempty"`
	Labels      []LabelCount   `json:"labels"`
}

// Summarize reports the shape, column kinds, missing numeric cells and
// the label distribution of target.
func Summarize(f *Frame, target string) (*Summary, error) {
	X, y, err := SplitXY(f, target)
	if err != nil {
		return nil, err
	}
	rows, cols := f.Dims()
	s := &Summary{
		Rows:        rows,
		Columns:     cols,
		Numeric:     X.NumericColumns(),
		Categorical: X.CategoricalColumns(),
	}
	for _, name := range s.Numeric {
		c, _ := X.Column(name)
		if n := c.NumMissing(); n > 0 {
			if s.Missing == nil {
				s.Missing = make(map[string]int)
			}
			s.Missing[name] = n
		}
	}

	counts := make(map[string]int)
	for _, label := range y {
		counts[label]++
	}
	for label, n := range counts {
		s.Labels = append(s.Labels, LabelCount{Label: label, Count: n})
	}
	sort.Slice(s.Labels, func(i, j int) bool { return s.Labels[i].Label < s.Labels[j].Label })
	return s, nil
}
