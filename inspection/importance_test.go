package inspection

import (
	"testing"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankFeatureImportances(t *testing.T) {
	names := []string{"num__tenure", "cat__Contract_Two year", "num__MonthlyCharges", "cat__Partner_No"}
	imp := []float64{0.4, 0.1, 0.4, 0.1}

	ranked, err := RankFeatureImportances(names, imp, 3)
	require.NoError(t, err)
	assert.Equal(t, []FeatureImportance{
		{"num__MonthlyCharges", 0.4},
		{"num__tenure", 0.4},
		{"cat__Contract_Two year", 0.1},
	}, ranked)

	all, err := RankFeatureImportances(names, imp, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	all, err = RankFeatureImportances(names, imp, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	// input is left untouched
	assert.Equal(t, "num__tenure", names[0])
}

func TestRankFeatureImportancesMismatch(t *testing.T) {
	_, err := RankFeatureImportances([]string{"a"}, []float64{1, 2}, 1)
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}
