package model_selection

import (
	"sort"
	"testing"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPartition(t *testing.T, n int, train, test []int) {
	t.Helper()
	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	require.Len(t, all, n)
	for i, v := range all {
		require.Equal(t, i, v)
	}
}

func TestTrainTestSplitSizes(t *testing.T) {
	tests := []struct {
		n        int
		testSize float64
		nTest    int
	}{
		{100, 0.2, 20},
		{10, 0.25, 3},
		{7043, 0.2, 1409},
		{2, 0.5, 1},
	}
	for _, tt := range tests {
		train, test, err := TrainTestSplit(tt.n, WithTestSize(tt.testSize), WithRandomState(42))
		require.NoError(t, err)
		assert.Len(t, test, tt.nTest)
		assertPartition(t, tt.n, train, test)
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	tr1, te1, err := TrainTestSplit(50, WithTestSize(0.2), WithRandomState(42))
	require.NoError(t, err)
	tr2, te2, err := TrainTestSplit(50, WithTestSize(0.2), WithRandomState(42))
	require.NoError(t, err)
	assert.Equal(t, tr1, tr2)
	assert.Equal(t, te1, te2)

	_, te3, err := TrainTestSplit(50, WithTestSize(0.2), WithRandomState(7))
	require.NoError(t, err)
	assert.NotEqual(t, te1, te3)
}

func TestTrainTestSplitNoShuffle(t *testing.T) {
	train, test, err := TrainTestSplit(5, WithTestSize(0.4), WithShuffle(false))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, train)
	assert.Equal(t, []int{3, 4}, test)
}

func TestTrainTestSplitStratified(t *testing.T) {
	labels := make([]float64, 100)
	for i := 0; i < 30; i++ {
		labels[i] = 1
	}
	train, test, err := TrainTestSplit(100, WithTestSize(0.2), WithRandomState(42), WithStratify(labels))
	require.NoError(t, err)
	assertPartition(t, 100, train, test)
	require.Len(t, test, 20)

	pos := 0
	for _, i := range test {
		if labels[i] == 1 {
			pos++
		}
	}
	assert.Equal(t, 6, pos)
}

func TestTrainTestSplitErrors(t *testing.T) {
	tests := []struct {
		name string
		n    int
		opts []SplitOption
	}{
		{"one sample", 1, nil},
		{"zero test size", 10, []SplitOption{WithTestSize(0)}},
		{"full test size", 10, []SplitOption{WithTestSize(1)}},
		{"empty train", 2, []SplitOption{WithTestSize(0.9)}},
		{"stratify without shuffle", 4, []SplitOption{WithShuffle(false), WithStratify([]float64{0, 0, 1, 1})}},
		{"singleton class", 4, []SplitOption{WithStratify([]float64{0, 0, 0, 1})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := TrainTestSplit(tt.n, tt.opts...)
			var ve *errors.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}

	_, _, err := TrainTestSplit(4, WithStratify([]float64{0, 1}))
	var de *errors.DimensionError
	assert.True(t, errors.As(err, &de))
}
