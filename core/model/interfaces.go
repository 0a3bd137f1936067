package model

import (
	"gonum.org/v1/gonum/mat"
)

// Scorer is the interface for models that can compute a score.
// Classifiers return mean accuracy, regressors return R^2.
type Scorer interface {
	Score(X, y mat.Matrix) (float64, error)
}

// Classifier combines interfaces for classification models.
type Classifier interface {
	Estimator
	Predictor
	Scorer

	// PredictProba returns probability estimates, one column per class in
	// the order of Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the sorted class labels seen during fitting.
	Classes() []int
}

// FeatureImporter is implemented by tree-based models that expose
// impurity-based feature importances (sklearn's feature_importances_).
type FeatureImporter interface {
	// GetFeatureImportances returns one non-negative score per input
	// feature. Scores sum to 1 unless the model made no split.
	GetFeatureImportances() []float64
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter is the interface for models that allow parameter modification.
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}
