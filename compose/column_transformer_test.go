package compose

import (
	"math"
	"testing"

	"github.com/YuminosukeSato/churnlab/dataset"
	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/YuminosukeSato/churnlab/preprocessing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func churnFrame(t *testing.T, tenure []float64, contract []string) *dataset.Frame {
	t.Helper()
	charges := make([]float64, len(tenure))
	ids := make([]string, len(tenure))
	for i, v := range tenure {
		charges[i] = v * 10
		ids[i] = string(rune('a' + i))
	}
	f, err := dataset.NewFrame(
		&dataset.Column{Name: "customerID", Kind: dataset.Categorical, Strings: ids},
		&dataset.Column{Name: "tenure", Kind: dataset.Numeric, Floats: tenure},
		&dataset.Column{Name: "Contract", Kind: dataset.Categorical, Strings: contract},
		&dataset.Column{Name: "MonthlyCharges", Kind: dataset.Numeric, Floats: charges},
	)
	require.NoError(t, err)
	return f
}

func TestChurnPreprocessorFitTransform(t *testing.T) {
	f := churnFrame(t, []float64{1, 2, 3, 4}, []string{"Two year", "Month-to-month", "Two year", "One year"})
	ct, err := NewChurnPreprocessor([]string{"tenure", "MonthlyCharges"}, []string{"Contract"}, "standard")
	require.NoError(t, err)

	out, err := ct.FitTransform(f)
	require.NoError(t, err)
	r, c := out.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 5, c)

	names, err := ct.GetFeatureNamesOut()
	require.NoError(t, err)
	assert.Equal(t, []string{
		"num__tenure", "num__MonthlyCharges",
		"cat__Contract_Month-to-month", "cat__Contract_One year", "cat__Contract_Two year",
	}, names)

	// numeric block is standardized, categorical block is one-hot
	assert.InDelta(t, 0, mat.Sum(out.Slice(0, 4, 0, 1)), 1e-12)
	assert.Equal(t, []float64{0, 0, 1}, mat.Row(nil, 0, out)[2:])
	assert.Equal(t, 4.0, mat.Sum(out.Slice(0, 4, 2, 5)))

	again, err := ct.Transform(f)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(out, again, 1e-12))
}

func TestColumnTransformerRejectsNaN(t *testing.T) {
	f := churnFrame(t, []float64{1, math.NaN(), 3}, []string{"a", "b", "a"})
	ct, err := NewChurnPreprocessor([]string{"tenure"}, []string{"Contract"}, "standard")
	require.NoError(t, err)

	_, err = ct.FitTransform(f)
	require.Error(t, err)
	var ve *errors.ValueError
	assert.True(t, errors.As(err, &ve))
}

func TestColumnTransformerCloneIsIndependent(t *testing.T) {
	f := churnFrame(t, []float64{1, 2, 3}, []string{"a", "b", "a"})
	ct, err := NewChurnPreprocessor([]string{"tenure"}, []string{"Contract"}, "minmax")
	require.NoError(t, err)
	require.NoError(t, ct.Fit(f))

	clone := ct.Clone()
	assert.False(t, clone.IsFitted())
	_, err = clone.Transform(f)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	small := churnFrame(t, []float64{10, 20}, []string{"c", "c"})
	require.NoError(t, clone.Fit(small))

	out, err := ct.Transform(f)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, mat.Col(nil, 0, out))
}

func TestColumnTransformerEmptyStepIsSkipped(t *testing.T) {
	f := churnFrame(t, []float64{1, 2}, []string{"a", "b"})
	ct, err := NewChurnPreprocessor([]string{"tenure"}, nil, "standard")
	require.NoError(t, err)

	out, err := ct.FitTransform(f)
	require.NoError(t, err)
	_, c := out.Dims()
	assert.Equal(t, 1, c)
	names, err := ct.GetFeatureNamesOut()
	require.NoError(t, err)
	assert.Equal(t, []string{"num__tenure"}, names)
}

func TestNewColumnTransformerValidation(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{"no steps", nil},
		{"empty name", []Step{{Numeric: preprocessing.NewStandardScalerDefault()}}},
		{"duplicate", []Step{
			{Name: "x", Numeric: preprocessing.NewStandardScalerDefault()},
			{Name: "x", Categorical: preprocessing.NewOneHotEncoder()},
		}},
		{"both set", []Step{{
			Name:        "x",
			Numeric:     preprocessing.NewStandardScalerDefault(),
			Categorical: preprocessing.NewOneHotEncoder(),
		}}},
		{"none set", []Step{{Name: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewColumnTransformer(tt.steps...)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}

	_, err := NewChurnPreprocessor(nil, nil, "robust")
	assert.Error(t, err)
}

func TestColumnTransformerWrongKind(t *testing.T) {
	f := churnFrame(t, []float64{1, 2}, []string{"a", "b"})
	ct, err := NewColumnTransformer(Step{Name: "num", Columns: []string{"Contract"}, Numeric: preprocessing.NewStandardScalerDefault()})
	require.NoError(t, err)
	assert.Error(t, ct.Fit(f))
}

func TestChurnPreprocessorHandleUnknown(t *testing.T) {
	train := churnFrame(t, []float64{1, 2}, []string{"a", "b"})
	test := churnFrame(t, []float64{3}, []string{"z"})

	ct, err := NewChurnPreprocessor([]string{"tenure"}, []string{"Contract"}, "standard", WithHandleUnknown("ignore"))
	require.NoError(t, err)
	require.NoError(t, ct.Fit(train))
	out, err := ct.Transform(test)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, mat.Row(nil, 0, out)[1:])

	strict, err := NewChurnPreprocessor([]string{"tenure"}, []string{"Contract"}, "standard")
	require.NoError(t, err)
	require.NoError(t, strict.Fit(train))
	_, err = strict.Transform(test)
	assert.Error(t, err)
}
