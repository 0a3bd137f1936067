package tree

import (
	"github.com/YuminosukeSato/churnlab/core/model"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// LeafValueFunc computes the output of a leaf from the training rows that
// reached it.
type LeafValueFunc func(samples []int) float64

// DecisionTreeRegressor is a CART regressor using the squared error criterion.
type DecisionTreeRegressor struct {
	treeParams
	state *model.StateManager

	leafValue           LeafValueFunc
	tree_               *treeStructure
	featureImportances_ []float64
}

// NewDecisionTreeRegressor creates a regressor with the same defaults as
// the classifier and criterion "squared_error".
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	dt := &DecisionTreeRegressor{
		treeParams: defaultParams("squared_error"),
		state:      model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(&dt.treeParams)
	}
	return dt
}

// SetLeafValueFunc replaces the leaf mean with fn. Splits are still chosen
// by squared error on y.
func (dt *DecisionTreeRegressor) SetLeafValueFunc(fn LeafValueFunc) {
	dt.leafValue = fn
}

// Fit builds the tree from X (n×p) and y (n×1).
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	r, _ := X.Dims()
	samples := make([]int, r)
	for i := range samples {
		samples[i] = i
	}
	return dt.FitSamples(X, y, samples)
}

// FitSamples builds the tree on the rows listed in samples.
func (dt *DecisionTreeRegressor) FitSamples(X, y mat.Matrix, samples []int) error {
	if err := dt.validate("squared_error"); err != nil {
		return err
	}
	r, c := X.Dims()
	if r == 0 || c == 0 || len(samples) == 0 {
		return errors.NewModelError("DecisionTreeRegressor.Fit", "empty data", errors.ErrEmptyData)
	}
	yr, _ := y.Dims()
	if yr != r {
		return errors.NewDimensionError("DecisionTreeRegressor.Fit", r, yr, 0)
	}

	dt.state.Reset()
	crit := newSquaredErrorCriterion(mat.Col(nil, 0, y))
	b := newBuilder(&dt.treeParams, columns(X), crit, dt.newRand())
	if dt.leafValue != nil {
		fn := dt.leafValue
		b.leafValue = func(s []int) []float64 { return []float64{fn(s)} }
	}
	dt.tree_ = b.build(samples)
	dt.featureImportances_ = normalizedImportances(b.importances)

	dt.state.SetDimensions(c, len(samples))
	dt.state.SetFitted()
	return nil
}

// Predict returns the leaf value per row as an n×1 matrix.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeRegressor", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.tree_.Nodes[dt.tree_.apply(row)].Value[0])
	}
	return out, nil
}

// Score returns the R² of the prediction.
func (dt *DecisionTreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	return metrics.R2Score(
		mat.NewVecDense(r, mat.Col(nil, 0, y)),
		mat.NewVecDense(r, mat.Col(nil, 0, pred)),
	)
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeRegressor) IsFitted() bool { return dt.state.IsFitted() }

// GetFeatureImportances returns the normalized variance reduction per feature.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeRegressor) GetDepth() int {
	if dt.tree_ == nil {
		return 0
	}
	return dt.tree_.depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	if dt.tree_ == nil {
		return 0
	}
	return dt.tree_.nLeaves()
}

// GetParams returns the hyperparameters in scikit-learn naming.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} {
	return dt.getParams()
}

// SetParams updates hyperparameters.
func (dt *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	if err := dt.setParams(params); err != nil {
		return err
	}
	dt.state.Reset()
	return nil
}
