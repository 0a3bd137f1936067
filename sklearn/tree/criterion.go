package tree

import "math"

// criterion accumulates split statistics for one node. reset moves every
// sample of the node to the right child and update moves one sample from
// right to left, so a sorted sweep evaluates every threshold in O(n).
type criterion interface {
	init(samples []int)
	reset()
	update(sample int)
	impurity() float64
	childrenImpurity() (left, right float64)
	nodeValue() []float64
}

// classificationCriterion handles gini and entropy over encoded labels.
type classificationCriterion struct {
	y        []int
	nClasses int
	entropy  bool

	total []float64
	left  []float64
	n     float64
	nLeft float64
}

func newClassificationCriterion(y []int, nClasses int, entropy bool) *classificationCriterion {
	return &classificationCriterion{
		y:        y,
		nClasses: nClasses,
		entropy:  entropy,
		total:    make([]float64, nClasses),
		left:     make([]float64, nClasses),
	}
}

func (c *classificationCriterion) init(samples []int) {
	for k := range c.total {
		c.total[k] = 0
	}
	for _, s := range samples {
		c.total[c.y[s]]++
	}
	c.n = float64(len(samples))
	c.reset()
}

func (c *classificationCriterion) reset() {
	for k := range c.left {
		c.left[k] = 0
	}
	c.nLeft = 0
}

func (c *classificationCriterion) update(sample int) {
	c.left[c.y[sample]]++
	c.nLeft++
}

func (c *classificationCriterion) score(counts func(k int) float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	var v float64
	for k := 0; k < c.nClasses; k++ {
		p := counts(k) / n
		if c.entropy {
			if p > 0 {
				v -= p * math.Log2(p)
			}
		} else {
			v += p * p
		}
	}
	if c.entropy {
		return v
	}
	return 1 - v
}

func (c *classificationCriterion) impurity() float64 {
	return c.score(func(k int) float64 { return c.total[k] }, c.n)
}

func (c *classificationCriterion) childrenImpurity() (float64, float64) {
	left := c.score(func(k int) float64 { return c.left[k] }, c.nLeft)
	right := c.score(func(k int) float64 { return c.total[k] - c.left[k] }, c.n-c.nLeft)
	return left, right
}

// nodeValue returns class fractions.
func (c *classificationCriterion) nodeValue() []float64 {
	v := make([]float64, c.nClasses)
	if c.n == 0 {
		return v
	}
	for k := range v {
		v[k] = c.total[k] / c.n
	}
	return v
}

// squaredErrorCriterion is the variance reduction criterion for regression.
type squaredErrorCriterion struct {
	y []float64

	sum, sumSq         float64
	n                  float64
	sumLeft, sumSqLeft float64
	nLeft              float64
}

func newSquaredErrorCriterion(y []float64) *squaredErrorCriterion {
	return &squaredErrorCriterion{y: y}
}

func (c *squaredErrorCriterion) init(samples []int) {
	c.sum, c.sumSq = 0, 0
	for _, s := range samples {
		c.sum += c.y[s]
		c.sumSq += c.y[s] * c.y[s]
	}
	c.n = float64(len(samples))
	c.reset()
}

func (c *squaredErrorCriterion) reset() {
	c.sumLeft, c.sumSqLeft, c.nLeft = 0, 0, 0
}

func (c *squaredErrorCriterion) update(sample int) {
	v := c.y[sample]
	c.sumLeft += v
	c.sumSqLeft += v * v
	c.nLeft++
}

func variance(sum, sumSq, n float64) float64 {
	if n == 0 {
		return 0
	}
	mean := sum / n
	v := sumSq/n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

func (c *squaredErrorCriterion) impurity() float64 {
	return variance(c.sum, c.sumSq, c.n)
}

func (c *squaredErrorCriterion) childrenImpurity() (float64, float64) {
	return variance(c.sumLeft, c.sumSqLeft, c.nLeft),
		variance(c.sum-c.sumLeft, c.sumSq-c.sumSqLeft, c.n-c.nLeft)
}

// nodeValue returns the node mean.
func (c *squaredErrorCriterion) nodeValue() []float64 {
	if c.n == 0 {
		return []float64{0}
	}
	return []float64{c.sum / c.n}
}
