// Package preprocessing provides scalers and encoders that turn raw
// columns into model-ready numeric features.
package preprocessing

import (
	"github.com/YuminosukeSato/churnlab/core/model"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// NumericTransformer transforms a dense block of numeric columns.
type NumericTransformer interface {
	model.Transformer
	GetFeatureNamesOut(input []string) []string
	// Clone returns an unfitted copy with the same parameters.
	Clone() NumericTransformer
}

// CategoricalTransformer encodes string columns into a dense block.
// Input is column-major: cols[j][i] is row i of column j.
type CategoricalTransformer interface {
	Fit(cols [][]string) error
	Transform(cols [][]string) (*mat.Dense, error)
	GetFeatureNamesOut(input []string) []string
	Clone() CategoricalTransformer
}

// NewScaler returns the numeric scaler registered under name
// ("standard" or "minmax").
func NewScaler(name string) (NumericTransformer, error) {
	switch name {
	case "standard", "":
		return NewStandardScalerDefault(), nil
	case "minmax":
		return NewMinMaxScalerDefault(), nil
	default:
		return nil, errors.NewValidationError("numeric_scaler", "must be 'standard' or 'minmax'", name)
	}
}

var (
	_ NumericTransformer     = (*StandardScaler)(nil)
	_ NumericTransformer     = (*MinMaxScaler)(nil)
	_ CategoricalTransformer = (*OneHotEncoder)(nil)
)
