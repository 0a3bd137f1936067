// Package linear_model provides linear classifiers.
package linear_model

import (
	"math"
	"math/rand"
	"sort"

	"github.com/YuminosukeSato/churnlab/core/model"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// LogisticRegression implements L2-regularized logistic regression fitted
// by gradient descent. Multiclass targets use one-vs-rest.
// Compatible with scikit-learn's LogisticRegression objective:
// 0.5*||w||² + C * Σ log-loss.
type LogisticRegression struct {
	state *model.StateManager

	// Hyperparameters
	penalty      string  // "l2" or "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool
	maxIter      int
	tol          float64 // Stop when the largest gradient component is below tol
	randomState  int64
	warmStart    bool

	// Model parameters
	coef_      [][]float64 // 1 x n_features for binary, n_classes x n_features otherwise
	intercept_ []float64
	classes_   []int
	nClasses_  int
	nFeatures_ int
	nIter_     []int

	rand *rand.Rand
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier.
// Defaults follow scikit-learn: C=1.0, max_iter=100, tol=1e-4.
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		maxIter:      100,
		tol:          1e-4,
		randomState:  -1,
	}
	for _, opt := range opts {
		opt(lr)
	}
	lr.resetRand()
	return lr
}

func (lr *LogisticRegression) resetRand() {
	seed := lr.randomState
	if seed < 0 {
		seed = rand.Int63()
	}
	lr.rand = rand.New(rand.NewSource(seed))
}

// WithLRPenalty sets the regularization type ("l2" or "none")
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.penalty = penalty }
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.C = c }
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.fitIntercept = fit }
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.maxIter = maxIter }
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.tol = tol }
}

// WithLRRandomState sets the seed of the weight initialization
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.randomState = seed }
}

// WithLRWarmStart reuses the previous solution as initialization
func WithLRWarmStart(warm bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) { lr.warmStart = warm }
}

func (lr *LogisticRegression) validate() error {
	if lr.penalty != "l2" && lr.penalty != "none" {
		return errors.NewValidationError("penalty", "only 'l2' and 'none' are supported", lr.penalty)
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be positive", lr.C)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be >= 1", lr.maxIter)
	}
	return nil
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return errors.NewModelError("LogisticRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}
	if err := errors.CheckMatrix("LogisticRegression.Fit", X); err != nil {
		return err
	}

	lr.extractClasses(y)
	if lr.nClasses_ < 2 {
		return errors.Wrap(errors.ErrSingleClass, "LogisticRegression.Fit")
	}

	nRows := lr.nClasses_
	if nRows == 2 {
		nRows = 1
	}
	warm := lr.warmStart && len(lr.coef_) == nRows && lr.nFeatures_ == nFeatures
	lr.nFeatures_ = nFeatures
	if !warm {
		lr.initializeWeights(nFeatures)
	}
	lr.nIter_ = make([]int, len(lr.coef_))

	// One binary problem for two classes, one per class otherwise
	for k := range lr.coef_ {
		positive := lr.classes_[len(lr.classes_)-1]
		if lr.nClasses_ > 2 {
			positive = lr.classes_[k]
		}
		yBinary := mat.NewVecDense(nSamples, nil)
		for i := 0; i < nSamples; i++ {
			if int(y.At(i, 0)) == positive {
				yBinary.SetVec(i, 1)
			}
		}
		if err := lr.descend(X, yBinary, k); err != nil {
			return err
		}
	}

	log.GetLoggerWithName("linear_model.logistic").Debug("Logistic regression fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, lr.nClasses_,
		log.IterationKey, lr.nIter_,
	)

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

// extractClasses identifies sorted unique class labels
func (lr *LogisticRegression) extractClasses(y mat.Matrix) {
	rows, _ := y.Dims()
	seen := make(map[int]bool)
	lr.classes_ = lr.classes_[:0]
	for i := 0; i < rows; i++ {
		label := int(y.At(i, 0))
		if !seen[label] {
			seen[label] = true
			lr.classes_ = append(lr.classes_, label)
		}
	}
	sort.Ints(lr.classes_)
	lr.nClasses_ = len(lr.classes_)
}

// initializeWeights draws small random initial weights
func (lr *LogisticRegression) initializeWeights(nFeatures int) {
	nRows := 1
	if lr.nClasses_ > 2 {
		nRows = lr.nClasses_
	}
	lr.coef_ = make([][]float64, nRows)
	lr.intercept_ = make([]float64, nRows)
	for k := range lr.coef_ {
		lr.coef_[k] = make([]float64, nFeatures)
		for j := range lr.coef_[k] {
			lr.coef_[k][j] = lr.rand.NormFloat64() * 0.01
		}
	}
}

// descend runs gradient descent on one binary problem (row k of coef_).
// The step size decays as 1/(1+0.1*iter).
func (lr *LogisticRegression) descend(X mat.Matrix, yBinary *mat.VecDense, k int) error {
	nSamples, nFeatures := X.Dims()
	n := float64(nSamples)
	w := mat.NewVecDense(nFeatures, lr.coef_[k])
	intercept := &lr.intercept_[k]

	var lambda float64
	if lr.penalty == "l2" {
		lambda = 1.0 / (lr.C * n)
	}

	z := mat.NewVecDense(nSamples, nil)
	resid := mat.NewVecDense(nSamples, nil)
	grad := mat.NewVecDense(nFeatures, nil)

	converged := false
	for iter := 0; iter < lr.maxIter; iter++ {
		z.MulVec(X, w)
		gradIntercept := 0.0
		for i := 0; i < nSamples; i++ {
			e := errors.Sigmoid(z.AtVec(i)+*intercept) - yBinary.AtVec(i)
			resid.SetVec(i, e)
			gradIntercept += e
		}
		gradIntercept /= n

		grad.MulVec(X.T(), resid)
		grad.ScaleVec(1/n, grad)
		if lambda > 0 {
			grad.AddScaledVec(grad, lambda, w)
		}

		step := 1.0 / (1.0 + 0.1*float64(iter))
		w.AddScaledVec(w, -step, grad)
		if lr.fitIntercept {
			*intercept -= step * gradIntercept
		}
		lr.nIter_[k] = iter + 1

		maxGrad := math.Abs(gradIntercept)
		for j := 0; j < nFeatures; j++ {
			maxGrad = math.Max(maxGrad, math.Abs(grad.AtVec(j)))
		}
		if err := errors.CheckScalar("LogisticRegression.Fit", maxGrad, iter); err != nil {
			return err
		}
		if maxGrad < lr.tol {
			converged = true
			break
		}
	}

	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter,
			"gradient norm did not fall below tol. Increase max_iter or scale the data."))
	}
	return nil
}

// DecisionFunction returns raw scores: n×1 for binary, n×n_classes otherwise
func (lr *LogisticRegression) DecisionFunction(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "DecisionFunction"); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := lr.state.CheckFeatures("LogisticRegression.DecisionFunction", nFeatures); err != nil {
		return nil, err
	}

	coef := mat.NewDense(len(lr.coef_), nFeatures, nil)
	for k, row := range lr.coef_ {
		coef.SetRow(k, row)
	}
	scores := mat.NewDense(nSamples, len(lr.coef_), nil)
	scores.Mul(X, coef.T())
	scores.Apply(func(_, j int, v float64) float64 { return v + lr.intercept_[j] }, scores)
	return scores, nil
}

// PredictProba returns probability estimates for each class.
// Multiclass scores are normalized with softmax.
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	nSamples, _ := scores.Dims()
	probas := mat.NewDense(nSamples, lr.nClasses_, nil)

	if lr.nClasses_ == 2 {
		for i := 0; i < nSamples; i++ {
			p := errors.Sigmoid(scores.At(i, 0))
			probas.Set(i, 0, 1-p)
			probas.Set(i, 1, p)
		}
		return probas, nil
	}

	row := make([]float64, lr.nClasses_)
	for i := 0; i < nSamples; i++ {
		mat.Row(row, i, scores)
		maxScore := row[0]
		for _, s := range row[1:] {
			maxScore = math.Max(maxScore, s)
		}
		sum := 0.0
		for k := range row {
			row[k] = math.Exp(row[k] - maxScore)
			sum += row[k]
		}
		for k := range row {
			probas.Set(i, k, row[k]/sum)
		}
	}
	return probas, nil
}

// Predict returns the class with the highest score for each row
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	scores, err := lr.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	nSamples, nCols := scores.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		if lr.nClasses_ == 2 {
			label := lr.classes_[0]
			if scores.At(i, 0) >= 0 {
				label = lr.classes_[1]
			}
			predictions.Set(i, 0, float64(label))
			continue
		}
		best := 0
		for k := 1; k < nCols; k++ {
			if scores.At(i, k) > scores.At(i, best) {
				best = k
			}
		}
		predictions.Set(i, 0, float64(lr.classes_[best]))
	}
	return predictions, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	n, _ := y.Dims()
	return metrics.Accuracy(
		mat.NewVecDense(n, mat.Col(nil, 0, y)),
		mat.NewVecDense(n, mat.Col(nil, 0, predictions)),
	)
}

// IsFitted reports whether Fit has completed
func (lr *LogisticRegression) IsFitted() bool { return lr.state.IsFitted() }

// Classes returns the sorted class labels
func (lr *LogisticRegression) Classes() []int { return append([]int(nil), lr.classes_...) }

// Coef returns a copy of the coefficients
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for k, row := range lr.coef_ {
		out[k] = append([]float64(nil), row...)
	}
	return out
}

// Intercept returns a copy of the intercepts
func (lr *LogisticRegression) Intercept() []float64 {
	return append([]float64(nil), lr.intercept_...)
}

// NIter returns the iterations run per binary problem
func (lr *LogisticRegression) NIter() []int { return append([]int(nil), lr.nIter_...) }

// ExportWeights exports the fitted parameters for serialization
func (lr *LogisticRegression) ExportWeights(features []string) (*model.ModelWeights, error) {
	if err := lr.state.RequireFitted("LogisticRegression", "ExportWeights"); err != nil {
		return nil, err
	}
	w := &model.ModelWeights{
		ModelType:       "LogisticRegression",
		Version:         "1.0",
		Coefficients:    lr.Coef(),
		Intercepts:      lr.Intercept(),
		Classes:         lr.Classes(),
		Features:        features,
		Hyperparameters: lr.GetParams(),
		IsFitted:        true,
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
		"random_state":  lr.randomState,
		"warm_start":    lr.warmStart,
	}
}

// SetParams sets the model hyperparameters. Values are validated at Fit.
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			var v string
			if v, ok = value.(string); ok {
				lr.penalty = v
			}
		case "C":
			var v float64
			if v, ok = value.(float64); ok {
				lr.C = v
			}
		case "fit_intercept":
			var v bool
			if v, ok = value.(bool); ok {
				lr.fitIntercept = v
			}
		case "max_iter":
			var v int
			if v, ok = value.(int); ok {
				lr.maxIter = v
			}
		case "tol":
			var v float64
			if v, ok = value.(float64); ok {
				lr.tol = v
			}
		case "warm_start":
			var v bool
			if v, ok = value.(bool); ok {
				lr.warmStart = v
			}
		case "random_state":
			var v int64
			if v, ok = value.(int64); ok {
				lr.randomState = v
				lr.resetRand()
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
		if !ok {
			return errors.NewValidationError(key, "unexpected type", value)
		}
	}
	return nil
}
