package linear_model

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLogisticRegression_Binary(t *testing.T) {
	X, y := separableBinary()
	lr := NewLogisticRegression(WithLRMaxIter(1000), WithLRRandomState(42))
	require.NoError(t, lr.Fit(X, y))
	assert.True(t, lr.IsFitted())
	assert.Equal(t, []int{0, 1}, lr.Classes())

	score, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, score)

	pred, err := lr.Predict(mat.NewDense(2, 2, []float64{1, 1, 3, 3}))
	require.NoError(t, err)
	assert.Equal(t, 0.0, pred.At(0, 0))
	assert.Equal(t, 1.0, pred.At(1, 0))

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	r, c := proba.Dims()
	require.Equal(t, 6, r)
	require.Equal(t, 2, c)
	for i := 0; i < r; i++ {
		assert.InDelta(t, 1.0, proba.At(i, 0)+proba.At(i, 1), 1e-9)
		if y.At(i, 0) == 1 {
			assert.Greater(t, proba.At(i, 1), 0.5, "row %d", i)
		} else {
			assert.Less(t, proba.At(i, 1), 0.5, "row %d", i)
		}
	}
}

func TestLogisticRegression_SmallerCShrinksWeights(t *testing.T) {
	// Five one-hot style indicator columns; more features than signal.
	X := mat.NewDense(10, 5, []float64{
		1, 0, 0, 0, 0,
		0, 1, 0, 0, 0,
		0, 0, 1, 0, 0,
		0, 0, 0, 1, 0,
		0, 0, 0, 0, 1,
		1, 1, 0, 0, 0,
		0, 1, 1, 0, 0,
		0, 0, 1, 1, 0,
		0, 0, 0, 1, 1,
		1, 0, 0, 0, 1,
	})
	y := mat.NewDense(10, 1, []float64{0, 0, 0, 1, 1, 0, 0, 1, 1, 1})

	norm := func(c float64) float64 {
		lr := NewLogisticRegression(WithLRC(c), WithLRMaxIter(1000), WithLRRandomState(0))
		require.NoError(t, lr.Fit(X, y))
		var s float64
		for _, w := range lr.Coef()[0] {
			s += w * w
		}
		return math.Sqrt(s)
	}
	assert.Less(t, norm(0.01), norm(100))
}

func TestLogisticRegression_OneVsRest(t *testing.T) {
	X := mat.NewDense(9, 2, []float64{
		0, 0, 0, 1, 1, 0,
		2, 2, 2, 3, 3, 2,
		4, 4, 4, 5, 5, 4,
	})
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})

	lr := NewLogisticRegression(WithLRMaxIter(1000), WithLRC(10))
	require.NoError(t, lr.Fit(X, y))
	assert.Equal(t, []int{0, 1, 2}, lr.Classes())
	assert.Len(t, lr.Coef(), 3)
	assert.Len(t, lr.Intercept(), 3)

	score, err := lr.Score(X, y)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 8.0/9)

	proba, err := lr.PredictProba(X)
	require.NoError(t, err)
	_, c := proba.Dims()
	require.Equal(t, 3, c)
	for i := 0; i < 9; i++ {
		row := mat.Row(nil, i, proba)
		assert.InDelta(t, 1.0, row[0]+row[1]+row[2], 1e-9)
	}
}

func TestLogisticRegression_Params(t *testing.T) {
	lr := NewLogisticRegression()
	params := lr.GetParams()
	assert.Equal(t, 1.0, params["C"])
	assert.Equal(t, 100, params["max_iter"])
	assert.Equal(t, "l2", params["penalty"])

	require.NoError(t, lr.SetParams(map[string]interface{}{
		"C":        0.5,
		"max_iter": 1000,
		"tol":      1e-6,
	}))
	assert.Equal(t, 0.5, lr.C)
	assert.Equal(t, 1000, lr.maxIter)
	assert.Equal(t, 1e-6, lr.tol)

	var ve *errors.ValidationError
	assert.True(t, errors.As(lr.SetParams(map[string]interface{}{"C": "big"}), &ve))
	assert.True(t, errors.As(lr.SetParams(map[string]interface{}{"solver": "lbfgs"}), &ve))
}

func TestLogisticRegression_NotFitted(t *testing.T) {
	lr := NewLogisticRegression()
	X := mat.NewDense(1, 2, []float64{1, 2})

	var nf *errors.NotFittedError
	_, err := lr.Predict(X)
	assert.True(t, errors.As(err, &nf))
	_, err = lr.PredictProba(X)
	assert.True(t, errors.As(err, &nf))
	_, err = lr.DecisionFunction(X)
	assert.True(t, errors.As(err, &nf))
}
