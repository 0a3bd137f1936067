// Package tree implements CART decision trees for classification and
// regression. They are the base learners of the ensemble package.
package tree

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/YuminosukeSato/churnlab/pkg/errors"
)

// treeParams holds the hyperparameters shared by both tree estimators.
type treeParams struct {
	criterion       string
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means all features
	randomState     int64
}

// Option configures a decision tree.
type Option func(*treeParams)

// WithCriterion sets the split quality measure ("gini", "entropy" or "squared_error").
func WithCriterion(c string) Option { return func(p *treeParams) { p.criterion = c } }

// WithMaxDepth limits the depth of the tree. 0 means unlimited.
func WithMaxDepth(d int) Option { return func(p *treeParams) { p.maxDepth = d } }

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option { return func(p *treeParams) { p.minSamplesSplit = n } }

// WithMinSamplesLeaf sets the minimum number of samples in each leaf.
func WithMinSamplesLeaf(n int) Option { return func(p *treeParams) { p.minSamplesLeaf = n } }

// WithMaxFeatures sets the number of features drawn at each split. 0 uses all.
func WithMaxFeatures(k int) Option { return func(p *treeParams) { p.maxFeatures = k } }

// WithRandomState seeds feature sampling. A negative seed uses the clock.
func WithRandomState(seed int64) Option { return func(p *treeParams) { p.randomState = seed } }

func defaultParams(criterion string) treeParams {
	return treeParams{
		criterion:       criterion,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		randomState:     -1,
	}
}

func (p *treeParams) validate(allowed ...string) error {
	ok := false
	for _, c := range allowed {
		if p.criterion == c {
			ok = true
		}
	}
	if !ok {
		return errors.NewValidationError("criterion", fmt.Sprintf("must be one of %v", allowed), p.criterion)
	}
	if p.maxDepth < 0 {
		return errors.NewValidationError("max_depth", "must be >= 0", p.maxDepth)
	}
	if p.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", p.minSamplesSplit)
	}
	if p.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", p.minSamplesLeaf)
	}
	if p.maxFeatures < 0 {
		return errors.NewValidationError("max_features", "must be >= 0", p.maxFeatures)
	}
	return nil
}

func (p *treeParams) newRand() *rand.Rand {
	seed := p.randomState
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func (p *treeParams) getParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         p.criterion,
		"max_depth":         p.maxDepth,
		"min_samples_split": p.minSamplesSplit,
		"min_samples_leaf":  p.minSamplesLeaf,
		"max_features":      p.maxFeatures,
		"random_state":      p.randomState,
	}
}

func (p *treeParams) setParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			p.criterion = v
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "max_depth":
				p.maxDepth = v
			case "min_samples_split":
				p.minSamplesSplit = v
			case "min_samples_leaf":
				p.minSamplesLeaf = v
			default:
				p.maxFeatures = v
			}
		case "random_state":
			switch v := value.(type) {
			case int:
				p.randomState = int64(v)
			case int64:
				p.randomState = v
			default:
				return errors.NewValidationError(key, "must be an integer", value)
			}
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return nil
}
