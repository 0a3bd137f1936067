// Package ensemble provides tree ensembles: a bagged random forest and
// binary gradient boosting on regression trees.
package ensemble

import (
	"math"
	"math/rand"
	"strconv"

	"github.com/YuminosukeSato/churnlab/core/model"
	"github.com/YuminosukeSato/churnlab/core/parallel"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"github.com/YuminosukeSato/churnlab/sklearn/tree"
	"gonum.org/v1/gonum/mat"
)

// RandomForestClassifier averages the class probabilities of decision
// trees fitted on bootstrap samples with per-split feature sampling.
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	criterion       string
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	randomState     int64
	nJobs           int

	estimators_         []*tree.DecisionTreeClassifier
	classes_            []int
	featureImportances_ []float64
}

// RandomForestOption configures a RandomForestClassifier.
type RandomForestOption func(*RandomForestClassifier)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithForestCriterion sets the split criterion of every tree.
func WithForestCriterion(c string) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.criterion = c }
}

// WithForestMaxDepth limits tree depth. 0 grows trees until leaves are pure.
func WithForestMaxDepth(d int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithForestMinSamplesLeaf sets min_samples_leaf of every tree.
func WithForestMinSamplesLeaf(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures sets the per-split feature budget: "sqrt", "log2",
// "all" or a positive integer.
func WithMaxFeatures(mf string) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = mf }
}

// WithBootstrap toggles bootstrap sampling.
func WithBootstrap(b bool) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithForestRandomState seeds the forest. A negative seed uses the clock.
func WithForestRandomState(seed int64) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs sets the number of trees fitted concurrently. 0 uses all CPUs.
func WithNJobs(n int) RandomForestOption {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier creates a forest with scikit-learn's defaults:
// 100 trees, gini, bootstrap and max_features="sqrt".
func NewRandomForestClassifier(opts ...RandomForestOption) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

// resolveMaxFeatures turns the max_features setting into a feature count.
func resolveMaxFeatures(mf string, nFeatures int) (int, error) {
	var k int
	switch mf {
	case "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	case "all", "":
		return nFeatures, nil
	default:
		n, err := strconv.Atoi(mf)
		if err != nil || n <= 0 {
			return 0, errors.NewValidationError("max_features", "must be sqrt, log2, all or a positive integer", mf)
		}
		k = n
	}
	if k < 1 {
		k = 1
	}
	if k > nFeatures {
		k = nFeatures
	}
	return k, nil
}

// seeds draws one seed per tree from the forest seed.
func seeds(randomState int64, n int) []int64 {
	if randomState < 0 {
		randomState = rand.Int63()
	}
	rng := rand.New(rand.NewSource(randomState))
	out := make([]int64, n)
	for i := range out {
		out[i] = rng.Int63()
	}
	return out
}

// Fit fits nEstimators trees concurrently. Each tree owns its RNG, so the
// result only depends on the random state.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	maxFeatures, err := resolveMaxFeatures(rf.maxFeatures, c)
	if err != nil {
		return err
	}

	logger := log.GetLoggerWithName("ensemble.forest")
	logger.Debug("Fitting random forest",
		log.OperationKey, log.OperationFit,
		log.EstimatorsKey, rf.nEstimators,
		log.SamplesKey, r,
		log.FeaturesKey, c,
	)

	rf.state.Reset()
	treeSeeds := seeds(rf.randomState, rf.nEstimators)
	trees := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	errs := make([]error, rf.nEstimators)

	// a single tree is fitted inline
	parallel.ParallelizeWithThreshold(rf.nEstimators, 1, rf.nJobs, func(start, end int) {
		for i := start; i < end; i++ {
			rng := rand.New(rand.NewSource(treeSeeds[i]))
			samples := make([]int, r)
			for j := range samples {
				if rf.bootstrap {
					samples[j] = rng.Intn(r)
				} else {
					samples[j] = j
				}
			}
			t := tree.NewDecisionTreeClassifier(
				tree.WithCriterion(rf.criterion),
				tree.WithMaxDepth(rf.maxDepth),
				tree.WithMinSamplesSplit(rf.minSamplesSplit),
				tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
				tree.WithMaxFeatures(maxFeatures),
				tree.WithRandomState(rng.Int63()),
			)
			errs[i] = t.FitSamples(X, y, samples)
			trees[i] = t
		}
	})
	for i, e := range errs {
		if e != nil {
			return errors.Wrapf(e, "RandomForestClassifier.Fit: tree %d", i)
		}
	}

	rf.estimators_ = trees
	rf.classes_ = trees[0].Classes()
	rf.featureImportances_ = meanImportances(c, len(trees), func(i int) []float64 {
		return trees[i].GetFeatureImportances()
	})

	rf.state.SetDimensions(c, r)
	rf.state.SetFitted()
	return nil
}

// meanImportances averages per-estimator importances and renormalizes
// them to sum to 1.
func meanImportances(nFeatures, n int, get func(i int) []float64) []float64 {
	out := make([]float64, nFeatures)
	for i := 0; i < n; i++ {
		for j, v := range get(i) {
			out[j] += v / float64(n)
		}
	}
	var sum float64
	for _, v := range out {
		sum += v
	}
	if sum > 0 {
		for j := range out {
			out[j] /= sum
		}
	}
	return out
}

// PredictProba returns the mean class probabilities of all trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.state.CheckFeatures("RandomForestClassifier.PredictProba", c); err != nil {
		return nil, err
	}

	sum := mat.NewDense(r, len(rf.classes_), nil)
	for _, t := range rf.estimators_ {
		p, err := t.PredictProba(X)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, p)
	}
	sum.Scale(1/float64(len(rf.estimators_)), sum)
	return sum, nil
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return argmax(proba, rf.classes_), nil
}

// Score returns the mean accuracy on X and y.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	return accuracy(rf, X, y)
}

// IsFitted reports whether Fit has completed.
func (rf *RandomForestClassifier) IsFitted() bool { return rf.state.IsFitted() }

// Classes returns the sorted class labels.
func (rf *RandomForestClassifier) Classes() []int { return append([]int(nil), rf.classes_...) }

// GetFeatureImportances returns the mean impurity decrease per feature.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	return append([]float64(nil), rf.featureImportances_...)
}

// Estimators returns the fitted trees.
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return rf.estimators_
}

// GetParams returns the hyperparameters in scikit-learn naming.
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

func argmax(proba mat.Matrix, classes []int) *mat.Dense {
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

func accuracy(p model.Predictor, X, y mat.Matrix) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	return metrics.Accuracy(
		mat.NewVecDense(r, mat.Col(nil, 0, y)),
		mat.NewVecDense(r, mat.Col(nil, 0, pred)),
	)
}
