// Package compose applies different transformers to different column
// subsets of a dataset.Frame and stacks the results side by side.
package compose

import (
	"fmt"

	"github.com/YuminosukeSato/churnlab/dataset"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"github.com/YuminosukeSato/churnlab/preprocessing"
	"gonum.org/v1/gonum/mat"
)

// Step binds one transformer to a list of columns. Exactly one of
// Numeric and Categorical must be set.
type Step struct {
	Name        string
	Columns     []string
	Numeric     preprocessing.NumericTransformer
	Categorical preprocessing.CategoricalTransformer
}

func (s Step) inputNames() []string {
	return append([]string(nil), s.Columns...)
}

// ColumnTransformer fits each step on its own columns and concatenates
// the outputs in step order. Columns not named by any step are dropped.
type ColumnTransformer struct {
	steps  []Step
	widths []int
	fitted bool
}

// NewColumnTransformer validates the steps and returns an unfitted
// transformer.
func NewColumnTransformer(steps ...Step) (*ColumnTransformer, error) {
	if len(steps) == 0 {
		return nil, errors.NewValidationError("transformers", "at least one transformer is required", 0)
	}
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.Name == "" {
			return nil, errors.NewValidationError("transformers", "transformer name must not be empty", s.Name)
		}
		if seen[s.Name] {
			return nil, errors.NewValidationError("transformers", "duplicate transformer name", s.Name)
		}
		seen[s.Name] = true
		if (s.Numeric == nil) == (s.Categorical == nil) {
			return nil, errors.NewValidationError(s.Name, "exactly one of Numeric or Categorical must be set", nil)
		}
	}
	return &ColumnTransformer{steps: steps}, nil
}

// PreprocessorOption configures NewChurnPreprocessor.
type PreprocessorOption func(*preprocessing.OneHotEncoder)

// WithHandleUnknown sets how the categorical encoder treats categories
// that were not seen during Fit ("error" or "ignore").
func WithHandleUnknown(mode string) PreprocessorOption {
	return func(e *preprocessing.OneHotEncoder) { e.HandleUnknown = mode }
}

// NewChurnPreprocessor builds the "num" and "cat" pair: the named scaler on
// the numeric columns and a OneHotEncoder on the categorical ones.
func NewChurnPreprocessor(numeric, categorical []string, scaler string, opts ...PreprocessorOption) (*ColumnTransformer, error) {
	num, err := preprocessing.NewScaler(scaler)
	if err != nil {
		return nil, err
	}
	enc := preprocessing.NewOneHotEncoder()
	for _, opt := range opts {
		opt(enc)
	}
	return NewColumnTransformer(
		Step{Name: "num", Columns: numeric, Numeric: num},
		Step{Name: "cat", Columns: categorical, Categorical: enc},
	)
}

// Fit fits every step on its columns of X.
func (ct *ColumnTransformer) Fit(X *dataset.Frame) error {
	_, err := ct.fit(X, false)
	return err
}

// FitTransform fits every step and returns the stacked output.
func (ct *ColumnTransformer) FitTransform(X *dataset.Frame) (*mat.Dense, error) {
	return ct.fit(X, true)
}

func (ct *ColumnTransformer) fit(X *dataset.Frame, transform bool) (*mat.Dense, error) {
	rows, _ := X.Dims()
	if rows == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Fit", "no rows", errors.ErrEmptyData)
	}

	ct.fitted = false
	ct.widths = make([]int, len(ct.steps))
	blocks := make([]mat.Matrix, len(ct.steps))
	for k, s := range ct.steps {
		if len(s.Columns) == 0 {
			continue
		}
		var block mat.Matrix
		switch {
		case s.Numeric != nil:
			m, err := X.Matrix(s.Columns)
			if err != nil {
				return nil, errors.Wrapf(err, "transformer %q", s.Name)
			}
			block, err = s.Numeric.FitTransform(m)
			if err != nil {
				return nil, errors.Wrapf(err, "transformer %q", s.Name)
			}
		default:
			cols, err := X.Strings(s.Columns)
			if err != nil {
				return nil, errors.Wrapf(err, "transformer %q", s.Name)
			}
			if err := s.Categorical.Fit(cols); err != nil {
				return nil, errors.Wrapf(err, "transformer %q", s.Name)
			}
			block, err = s.Categorical.Transform(cols)
			if err != nil {
				return nil, errors.Wrapf(err, "transformer %q", s.Name)
			}
		}
		_, ct.widths[k] = block.Dims()
		blocks[k] = block
	}
	ct.fitted = true

	log.GetLoggerWithName("compose").Debug("ColumnTransformer fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, ct.nOut(),
	)
	if !transform {
		return nil, nil
	}
	return ct.stack(rows, blocks)
}

// Transform applies the fitted steps to X.
func (ct *ColumnTransformer) Transform(X *dataset.Frame) (*mat.Dense, error) {
	if !ct.fitted {
		return nil, errors.NewNotFittedError("ColumnTransformer", "Transform")
	}
	rows, _ := X.Dims()
	if rows == 0 {
		return nil, errors.NewModelError("ColumnTransformer.Transform", "no rows", errors.ErrEmptyData)
	}

	blocks := make([]mat.Matrix, len(ct.steps))
	for k, s := range ct.steps {
		if len(s.Columns) == 0 {
			continue
		}
		var err error
		switch {
		case s.Numeric != nil:
			var m *mat.Dense
			if m, err = X.Matrix(s.Columns); err == nil {
				blocks[k], err = s.Numeric.Transform(m)
			}
		default:
			var cols [][]string
			if cols, err = X.Strings(s.Columns); err == nil {
				blocks[k], err = s.Categorical.Transform(cols)
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "transformer %q", s.Name)
		}
	}
	return ct.stack(rows, blocks)
}

func (ct *ColumnTransformer) nOut() int {
	total := 0
	for _, w := range ct.widths {
		total += w
	}
	return total
}

func (ct *ColumnTransformer) stack(rows int, blocks []mat.Matrix) (*mat.Dense, error) {
	total := ct.nOut()
	if total == 0 {
		return nil, errors.NewValueError("ColumnTransformer", "no output features: every transformer selected zero columns")
	}
	out := mat.NewDense(rows, total, nil)
	off := 0
	for k, b := range blocks {
		if b == nil {
			continue
		}
		r, c := b.Dims()
		if r != rows || c != ct.widths[k] {
			return nil, errors.NewDimensionError(fmt.Sprintf("ColumnTransformer[%s]", ct.steps[k].Name), ct.widths[k], c, 1)
		}
		out.Slice(0, rows, off, off+c).(*mat.Dense).Copy(b)
		off += c
	}
	return out, nil
}

// GetFeatureNamesOut returns "<step>__<feature>" for every output column.
func (ct *ColumnTransformer) GetFeatureNamesOut() ([]string, error) {
	if !ct.fitted {
		return nil, errors.NewNotFittedError("ColumnTransformer", "GetFeatureNamesOut")
	}
	names := make([]string, 0, ct.nOut())
	for _, s := range ct.steps {
		if len(s.Columns) == 0 {
			continue
		}
		var inner []string
		if s.Numeric != nil {
			inner = s.Numeric.GetFeatureNamesOut(s.inputNames())
		} else {
			inner = s.Categorical.GetFeatureNamesOut(s.inputNames())
		}
		for _, n := range inner {
			names = append(names, s.Name+"__"+n)
		}
	}
	return names, nil
}

// Clone returns an unfitted copy whose transformers share no state with ct.
func (ct *ColumnTransformer) Clone() *ColumnTransformer {
	steps := make([]Step, len(ct.steps))
	for k, s := range ct.steps {
		steps[k] = Step{Name: s.Name, Columns: s.inputNames()}
		if s.Numeric != nil {
			steps[k].Numeric = s.Numeric.Clone()
		} else {
			steps[k].Categorical = s.Categorical.Clone()
		}
	}
	return &ColumnTransformer{steps: steps}
}

// IsFitted reports whether Fit has completed.
func (ct *ColumnTransformer) IsFitted() bool { return ct.fitted }

// Steps returns the configured steps.
func (ct *ColumnTransformer) Steps() []Step {
	return append([]Step(nil), ct.steps...)
}
