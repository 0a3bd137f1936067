// Package model_selection splits sample indices into train and test sets.
package model_selection

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
)

type splitConfig struct {
	testSize    float64
	randomState int64
	shuffle     bool
	stratify    []float64
}

// SplitOption configures TrainTestSplit.
type SplitOption func(*splitConfig)

// WithTestSize sets the fraction of samples put in the test set.
func WithTestSize(f float64) SplitOption {
	return func(c *splitConfig) { c.testSize = f }
}

// WithRandomState fixes the shuffle seed. Negative seeds use the clock.
func WithRandomState(seed int64) SplitOption {
	return func(c *splitConfig) { c.randomState = seed }
}

// WithShuffle toggles shuffling. Without it the last rows form the test set.
func WithShuffle(shuffle bool) SplitOption {
	return func(c *splitConfig) { c.shuffle = shuffle }
}

// WithStratify keeps the class proportions of labels in both sets.
func WithStratify(labels []float64) SplitOption {
	return func(c *splitConfig) { c.stratify = labels }
}

// TrainTestSplit returns disjoint train and test row indices covering
// 0..nSamples-1. The test set holds ceil(nSamples*testSize) rows.
//
// Defaults: test size 0.25, shuffle on, random state -1.
func TrainTestSplit(nSamples int, opts ...SplitOption) (train, test []int, err error) {
	cfg := splitConfig{testSize: 0.25, randomState: -1, shuffle: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if nSamples < 2 {
		return nil, nil, errors.NewValidationError("n_samples", "need at least 2 samples to split", nSamples)
	}
	if !(cfg.testSize > 0 && cfg.testSize < 1) {
		return nil, nil, errors.NewValidationError("test_size", "must be in the open interval (0, 1)", cfg.testSize)
	}
	nTest := int(math.Ceil(float64(nSamples) * cfg.testSize))
	nTrain := nSamples - nTest
	if nTrain == 0 {
		return nil, nil, errors.NewValidationError("test_size",
			"resulting train set is empty; lower test_size", cfg.testSize)
	}

	if cfg.stratify != nil {
		if !cfg.shuffle {
			return nil, nil, errors.NewValidationError("shuffle", "stratified split requires shuffle=true", cfg.shuffle)
		}
		if len(cfg.stratify) != nSamples {
			return nil, nil, errors.NewDimensionError("TrainTestSplit", nSamples, len(cfg.stratify), 0)
		}
		return stratifiedSplit(cfg.stratify, nTest, newRand(cfg.randomState))
	}

	if !cfg.shuffle {
		idx := make([]int, nSamples)
		for i := range idx {
			idx[i] = i
		}
		return idx[:nTrain], idx[nTrain:], nil
	}

	perm := newRand(cfg.randomState).Perm(nSamples)
	return perm[nTest:], perm[:nTest], nil
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// stratifiedSplit draws from every class its share of nTest rows. Shares
// are floored and the remainder goes to the classes with the largest
// fractional part.
func stratifiedSplit(labels []float64, nTest int, rng *rand.Rand) ([]int, []int, error) {
	byClass := make(map[float64][]int)
	var classes []float64
	for i, v := range labels {
		if _, ok := byClass[v]; !ok {
			classes = append(classes, v)
		}
		byClass[v] = append(byClass[v], i)
	}
	sort.Float64s(classes)
	if len(classes) < 2 {
		return nil, nil, errors.NewValidationError("stratify", "needs at least 2 classes", len(classes))
	}
	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return nil, nil, errors.NewValidationError("stratify",
				"the least populated class has only 1 member", c)
		}
	}

	n := float64(len(labels))
	take := make([]int, len(classes))
	frac := make([]float64, len(classes))
	assigned := 0
	for k, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / n
		take[k] = int(math.Floor(exact))
		frac[k] = exact - float64(take[k])
		assigned += take[k]
	}
	order := make([]int, len(classes))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return frac[order[a]] > frac[order[b]] })
	for i := 0; assigned < nTest; i = (i + 1) % len(order) {
		k := order[i]
		if take[k] < len(byClass[classes[k]]) {
			take[k]++
			assigned++
		}
	}

	var train, test []int
	for k, c := range classes {
		rows := byClass[c]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
		test = append(test, rows[:take[k]]...)
		train = append(train, rows[take[k]:]...)
	}
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}
