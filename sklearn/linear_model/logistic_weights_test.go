package linear_model

import (
	"testing"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func separableBinary() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 2, []float64{
		0.5, 0.5,
		1.0, 1.5,
		1.5, 1.0,
		3.0, 2.5,
		2.5, 3.0,
		3.5, 3.5,
	})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})
	return X, y
}

func TestLogisticRegression_ExportWeights(t *testing.T) {
	X, y := separableBinary()
	lr := NewLogisticRegression(WithLRMaxIter(1000), WithLRRandomState(42))
	require.NoError(t, lr.Fit(X, y))

	w, err := lr.ExportWeights([]string{"num__a", "num__b"})
	require.NoError(t, err)
	assert.Equal(t, "LogisticRegression", w.ModelType)
	assert.Equal(t, []int{0, 1}, w.Classes)
	require.Len(t, w.Coefficients, 1)
	assert.Len(t, w.Coefficients[0], 2)
	assert.Equal(t, lr.Intercept(), w.Intercepts)
	assert.Greater(t, w.Coefficients[0][0], 0.0)

	data, err := w.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "num__a")
}

func TestLogisticRegression_DecisionFunctionMatchesProba(t *testing.T) {
	X, y := separableBinary()
	lr := NewLogisticRegression(WithLRMaxIter(1000))
	require.NoError(t, lr.Fit(X, y))

	scores, err := lr.DecisionFunction(X)
	require.NoError(t, err)
	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		assert.InDelta(t, errors.Sigmoid(scores.At(i, 0)), proba.At(i, 1), 1e-12)
	}
}

func TestLogisticRegression_ConvergenceWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	X, y := separableBinary()
	lr := NewLogisticRegression(WithLRMaxIter(2), WithLRTol(1e-12))
	require.NoError(t, lr.Fit(X, y))

	require.NotEmpty(t, warnings)
	var cw *errors.ConvergenceWarning
	require.True(t, errors.As(warnings[0], &cw))
	assert.Equal(t, "LogisticRegression", cw.Algorithm)
	assert.Equal(t, []int{2}, lr.NIter())
}

func TestLogisticRegression_FitErrors(t *testing.T) {
	X, y := separableBinary()

	l1 := NewLogisticRegression(WithLRPenalty("l1"))
	var ve *errors.ValidationError
	assert.True(t, errors.As(l1.Fit(X, y), &ve))

	single := mat.NewDense(6, 1, []float64{1, 1, 1, 1, 1, 1})
	assert.True(t, errors.Is(NewLogisticRegression().Fit(X, single), errors.ErrSingleClass))

	var de *errors.DimensionError
	short := mat.NewDense(5, 1, nil)
	assert.True(t, errors.As(NewLogisticRegression().Fit(X, short), &de))

	lr := NewLogisticRegression()
	require.NoError(t, lr.Fit(X, y))
	_, err := lr.Predict(mat.NewDense(1, 3, nil))
	assert.True(t, errors.As(err, &de))
}

func TestLogisticRegression_WarmStart(t *testing.T) {
	X, y := separableBinary()
	lr := NewLogisticRegression(WithLRMaxIter(50), WithLRWarmStart(true), WithLRRandomState(1))
	require.NoError(t, lr.Fit(X, y))
	first := lr.Coef()[0][0]
	require.NoError(t, lr.Fit(X, y))
	assert.Greater(t, lr.Coef()[0][0], first)
}

func TestLogisticRegression_WarmStartClassCountChange(t *testing.T) {
	X3 := mat.NewDense(9, 2, []float64{
		0, 0, 0, 1, 1, 0,
		2, 2, 2, 3, 3, 2,
		4, 4, 4, 5, 5, 4,
	})
	y3 := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	lr := NewLogisticRegression(WithLRMaxIter(200), WithLRWarmStart(true), WithLRRandomState(3))
	require.NoError(t, lr.Fit(X3, y3))
	require.Len(t, lr.Coef(), 3)

	X, y := separableBinary()
	require.NoError(t, lr.Fit(X, y))
	assert.Len(t, lr.Coef(), 1)
	assert.Len(t, lr.Intercept(), 1)

	scores, err := lr.DecisionFunction(X)
	require.NoError(t, err)
	_, c := scores.Dims()
	assert.Equal(t, 1, c)
}

func TestLogisticRegression_SetParamsRejectsWithoutOverwriting(t *testing.T) {
	lr := NewLogisticRegression(WithLRC(0.5), WithLRMaxIter(300))

	var ve *errors.ValidationError
	require.True(t, errors.As(lr.SetParams(map[string]interface{}{"C": 1}), &ve))
	assert.Equal(t, "C", ve.ParamName)
	assert.Equal(t, 0.5, lr.C)

	require.Error(t, lr.SetParams(map[string]interface{}{"max_iter": 10.0}))
	assert.Equal(t, 300, lr.maxIter)
	require.Error(t, lr.SetParams(map[string]interface{}{"random_state": 5}))
	assert.Equal(t, int64(-1), lr.randomState)
}
