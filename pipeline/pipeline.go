// Package pipeline chains a column preprocessor and a classifier so that
// raw frames go in and class predictions come out.
package pipeline

import (
	"context"
	"time"

	"github.com/YuminosukeSato/churnlab/compose"
	"github.com/YuminosukeSato/churnlab/core/model"
	"github.com/YuminosukeSato/churnlab/dataset"
	"github.com/YuminosukeSato/churnlab/metrics"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/pkg/log"
	"gonum.org/v1/gonum/mat"
)

// Pipeline is a fitted-together preprocessor and classifier.
type Pipeline struct {
	name         string
	preprocessor *compose.ColumnTransformer
	classifier   model.Classifier
	featureNames []string
	logger       log.Logger
}

// New returns a pipeline that owns an unfitted clone of preprocessor, so
// pipelines built from the same preprocessor never share fitted state.
func New(name string, preprocessor *compose.ColumnTransformer, classifier model.Classifier) *Pipeline {
	return &Pipeline{
		name:         name,
		preprocessor: preprocessor.Clone(),
		classifier:   classifier,
		logger:       log.GetLoggerWithName("pipeline").With(log.ModelNameKey, name),
	}
}

// Name returns the display name given to New.
func (p *Pipeline) Name() string { return p.name }

// Fit fits the preprocessor on X and the classifier on the transformed X.
// y holds integer class codes.
func (p *Pipeline) Fit(ctx context.Context, X *dataset.Frame, y []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows, _ := X.Dims()
	if rows != len(y) {
		return errors.NewDimensionError("Pipeline.Fit", rows, len(y), 0)
	}

	start := time.Now()
	Xt, err := p.preprocessor.FitTransform(X)
	if err != nil {
		return errors.Wrap(err, "preprocessing failed")
	}
	names, err := p.preprocessor.GetFeatureNamesOut()
	if err != nil {
		return err
	}
	p.featureNames = names

	if err := ctx.Err(); err != nil {
		return err
	}
	yv := mat.NewDense(len(y), 1, append([]float64(nil), y...))
	if err := p.classifier.Fit(Xt, yv); err != nil {
		return errors.Wrapf(err, "fitting %s", p.name)
	}

	p.logger.Info("Pipeline fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, len(names),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Pipeline) transform(X *dataset.Frame) (*mat.Dense, error) {
	if !p.classifier.IsFitted() {
		return nil, errors.NewNotFittedError(p.name, "Predict")
	}
	return p.preprocessor.Transform(X)
}

// Predict returns the predicted class code of every row of X.
func (p *Pipeline) Predict(X *dataset.Frame) ([]float64, error) {
	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	pred, err := p.classifier.Predict(Xt)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, 0, pred), nil
}

// PredictProba returns class probabilities, one column per Classes() entry.
func (p *Pipeline) PredictProba(X *dataset.Frame) (mat.Matrix, error) {
	Xt, err := p.transform(X)
	if err != nil {
		return nil, err
	}
	return p.classifier.PredictProba(Xt)
}

// Score returns the mean accuracy on X against y.
func (p *Pipeline) Score(X *dataset.Frame, y []float64) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	if len(pred) != len(y) {
		return 0, errors.NewDimensionError("Pipeline.Score", len(pred), len(y), 0)
	}
	return metrics.Accuracy(mat.NewVecDense(len(y), append([]float64(nil), y...)), mat.NewVecDense(len(pred), pred))
}

// Classifier returns the final estimator.
func (p *Pipeline) Classifier() model.Classifier { return p.classifier }

// Preprocessor returns the pipeline's own preprocessor.
func (p *Pipeline) Preprocessor() *compose.ColumnTransformer { return p.preprocessor }

// FeatureNames returns the transformed feature names seen by the
// classifier. Empty before Fit.
func (p *Pipeline) FeatureNames() []string {
	return append([]string(nil), p.featureNames...)
}

// FeatureImportances returns the classifier's importances and true when
// the classifier exposes them.
func (p *Pipeline) FeatureImportances() ([]float64, bool) {
	fi, ok := p.classifier.(model.FeatureImporter)
	if !ok || !p.classifier.IsFitted() {
		return nil, false
	}
	return fi.GetFeatureImportances(), true
}
