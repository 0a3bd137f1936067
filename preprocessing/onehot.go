package preprocessing

import (
	"fmt"
	"sort"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// OneHotEncoder expands each categorical column into one indicator column
// per category seen during Fit.
type OneHotEncoder struct {
	// HandleUnknown is "error" (default) or "ignore". Ignored categories
	// encode as an all-zero row for that column.
	HandleUnknown string

	categories [][]string
	index      []map[string]int
	offsets    []int
	nOut       int
	fitted     bool
}

// NewOneHotEncoder returns an encoder that rejects unknown categories.
func NewOneHotEncoder() *OneHotEncoder {
	return &OneHotEncoder{HandleUnknown: "error"}
}

// Fit records the sorted set of categories of every column.
func (e *OneHotEncoder) Fit(cols [][]string) error {
	if e.HandleUnknown != "error" && e.HandleUnknown != "ignore" {
		return errors.NewValidationError("handle_unknown", "must be 'error' or 'ignore'", e.HandleUnknown)
	}
	if len(cols) == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "no columns", errors.ErrEmptyData)
	}
	n := len(cols[0])
	if n == 0 {
		return errors.NewModelError("OneHotEncoder.Fit", "no rows", errors.ErrEmptyData)
	}

	e.categories = make([][]string, len(cols))
	e.index = make([]map[string]int, len(cols))
	e.offsets = make([]int, len(cols))
	e.nOut = 0
	for j, col := range cols {
		if len(col) != n {
			return errors.NewDimensionError("OneHotEncoder.Fit", n, len(col), 0)
		}
		seen := make(map[string]struct{})
		for _, v := range col {
			seen[v] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for v := range seen {
			cats = append(cats, v)
		}
		sort.Strings(cats)

		idx := make(map[string]int, len(cats))
		for k, c := range cats {
			idx[c] = k
		}
		e.categories[j] = cats
		e.index[j] = idx
		e.offsets[j] = e.nOut
		e.nOut += len(cats)
	}
	e.fitted = true

	log.GetLoggerWithName("preprocessing.onehot").Debug("OneHotEncoder fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, n,
		log.FeaturesKey, e.nOut,
	)
	return nil
}

// Transform encodes cols with the categories learned in Fit.
func (e *OneHotEncoder) Transform(cols [][]string) (*mat.Dense, error) {
	if !e.fitted {
		return nil, errors.NewNotFittedError("OneHotEncoder", "Transform")
	}
	if len(cols) != len(e.categories) {
		return nil, errors.NewDimensionError("OneHotEncoder.Transform", len(e.categories), len(cols), 1)
	}
	n := 0
	if len(cols) > 0 {
		n = len(cols[0])
	}
	if n == 0 {
		return nil, errors.NewModelError("OneHotEncoder.Transform", "no rows", errors.ErrEmptyData)
	}

	out := mat.NewDense(n, e.nOut, nil)
	for j, col := range cols {
		if len(col) != n {
			return nil, errors.NewDimensionError("OneHotEncoder.Transform", n, len(col), 0)
		}
		for i, v := range col {
			k, ok := e.index[j][v]
			if !ok {
				if e.HandleUnknown == "ignore" {
					continue
				}
				return nil, errors.NewValueError("OneHotEncoder.Transform",
					fmt.Sprintf("found unknown category %q in column %d during transform", v, j))
			}
			out.Set(i, e.offsets[j]+k, 1)
		}
	}
	return out, nil
}

// FitTransform fits the encoder and encodes cols.
func (e *OneHotEncoder) FitTransform(cols [][]string) (*mat.Dense, error) {
	if err := e.Fit(cols); err != nil {
		return nil, err
	}
	return e.Transform(cols)
}

// Categories returns the learned categories per column.
func (e *OneHotEncoder) Categories() [][]string {
	out := make([][]string, len(e.categories))
	for j, c := range e.categories {
		out[j] = append([]string(nil), c...)
	}
	return out
}

// GetFeatureNamesOut returns "<input>_<category>" for every output column.
// Missing input names fall back to x0, x1, ...
func (e *OneHotEncoder) GetFeatureNamesOut(input []string) []string {
	names := make([]string, 0, e.nOut)
	for j, cats := range e.categories {
		prefix := fmt.Sprintf("x%d", j)
		if j < len(input) {
			prefix = input[j]
		}
		for _, c := range cats {
			names = append(names, prefix+"_"+c)
		}
	}
	return names
}

// Clone returns an unfitted encoder with the same HandleUnknown setting.
func (e *OneHotEncoder) Clone() CategoricalTransformer {
	return &OneHotEncoder{HandleUnknown: e.HandleUnknown}
}

// IsFitted reports whether Fit has completed.
func (e *OneHotEncoder) IsFitted() bool { return e.fitted }
