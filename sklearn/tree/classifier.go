package tree

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/churnlab/core/model"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// DecisionTreeClassifier is a CART classifier compatible with
// scikit-learn's DecisionTreeClassifier.
type DecisionTreeClassifier struct {
	treeParams
	state *model.StateManager

	classes_            []int
	nClasses_           int
	tree_               *treeStructure
	featureImportances_ []float64
}

// NewDecisionTreeClassifier creates a classifier. Defaults: gini,
// unlimited depth, min_samples_split=2, min_samples_leaf=1.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		treeParams: defaultParams("gini"),
		state:      model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(&dt.treeParams)
	}
	return dt
}

// columns copies X into column-major slices for sorted sweeps.
func columns(X mat.Matrix) [][]float64 {
	_, c := X.Dims()
	cols := make([][]float64, c)
	for j := 0; j < c; j++ {
		cols[j] = mat.Col(nil, j, X)
	}
	return cols
}

// encodeClasses maps integral labels in the first column of y to 0..k-1.
func encodeClasses(y mat.Matrix) ([]int, []int, error) {
	r, _ := y.Dims()
	seen := make(map[int]struct{})
	raw := make([]int, r)
	for i := 0; i < r; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) || math.IsNaN(v) {
			return nil, nil, errors.NewValueError("DecisionTreeClassifier.Fit", "class labels must be integers")
		}
		raw[i] = int(v)
		seen[raw[i]] = struct{}{}
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	enc := make([]int, r)
	for i, v := range raw {
		enc[i] = index[v]
	}
	return classes, enc, nil
}

// Fit builds the tree from X (n×p) and y (n×1 integer labels).
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	r, _ := X.Dims()
	samples := make([]int, r)
	for i := range samples {
		samples[i] = i
	}
	return dt.FitSamples(X, y, samples)
}

// FitSamples builds the tree on the rows listed in samples, which may
// repeat for bootstrap draws. Classes are taken from all of y so that
// trees fitted on different draws share one class order.
func (dt *DecisionTreeClassifier) FitSamples(X, y mat.Matrix, samples []int) error {
	if err := dt.validate("gini", "entropy"); err != nil {
		return err
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	yr, _ := y.Dims()
	if yr != r {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", r, yr, 0)
	}
	if len(samples) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "no samples", errors.ErrEmptyData)
	}

	classes, enc, err := encodeClasses(y)
	if err != nil {
		return err
	}

	dt.state.Reset()
	dt.classes_ = classes
	dt.nClasses_ = len(classes)

	crit := newClassificationCriterion(enc, dt.nClasses_, dt.criterion == "entropy")
	b := newBuilder(&dt.treeParams, columns(X), crit, dt.newRand())
	dt.tree_ = b.build(samples)
	dt.featureImportances_ = normalizedImportances(b.importances)

	dt.state.SetDimensions(c, len(samples))
	dt.state.SetFitted()
	return nil
}

// PredictProba returns class probabilities (n×n_classes) in Classes() order.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeClassifier.PredictProba", c); err != nil {
		return nil, err
	}

	out := mat.NewDense(r, dt.nClasses_, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.tree_.Nodes[dt.tree_.apply(row)].Value)
	}
	return out, nil
}

// Predict returns the most probable class per row as an n×1 matrix.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "Predict"); err != nil {
		return nil, err
	}
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmaxClasses(proba, dt.classes_), nil
}

// argmaxClasses picks the class with the highest probability in each row.
// Ties resolve to the lowest class.
func argmaxClasses(proba mat.Matrix, classes []int) *mat.Dense {
	r, c := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < c; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, float64(classes[best]))
	}
	return out
}

// Score returns the mean accuracy on X and y.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	return metrics.Accuracy(
		mat.NewVecDense(r, mat.Col(nil, 0, y)),
		mat.NewVecDense(r, mat.Col(nil, 0, pred)),
	)
}

// IsFitted reports whether Fit has completed.
func (dt *DecisionTreeClassifier) IsFitted() bool { return dt.state.IsFitted() }

// Classes returns the sorted class labels seen during fitting.
func (dt *DecisionTreeClassifier) Classes() []int { return append([]int(nil), dt.classes_...) }

// GetFeatureImportances returns the normalized impurity decrease per feature.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), dt.featureImportances_...)
}

// GetDepth returns the depth of the fitted tree. The root has depth 0.
func (dt *DecisionTreeClassifier) GetDepth() int {
	if dt.tree_ == nil {
		return 0
	}
	return dt.tree_.depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	if dt.tree_ == nil {
		return 0
	}
	return dt.tree_.nLeaves()
}

// GetParams returns the hyperparameters in scikit-learn naming.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return dt.getParams()
}

// SetParams updates hyperparameters. The model must be refitted afterwards.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	if err := dt.setParams(params); err != nil {
		return err
	}
	dt.state.Reset()
	return nil
}
