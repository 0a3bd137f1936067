package tree

import (
	"math"
	"math/rand"
	"sort"
)

const leafFeature = -1

// node is one entry of the flat node array. Leaves have Feature == -1.
type node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Impurity  float64   `json:"impurity"`
	NSamples  int       `json:"n_samples"`
	Depth     int       `json:"depth"`
	Value     []float64 `json:"value"`
}

// treeStructure is a fitted tree stored as a node array rooted at index 0.
type treeStructure struct {
	Nodes     []node `json:"nodes"`
	NFeatures int    `json:"n_features"`
}

// apply returns the index of the leaf that row falls into.
// Samples go left when x <= threshold.
func (t *treeStructure) apply(row []float64) int {
	i := 0
	for t.Nodes[i].Feature != leafFeature {
		n := &t.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

func (t *treeStructure) depth() int {
	d := 0
	for _, n := range t.Nodes {
		if n.Depth > d {
			d = n.Depth
		}
	}
	return d
}

func (t *treeStructure) nLeaves() int {
	c := 0
	for _, n := range t.Nodes {
		if n.Feature == leafFeature {
			c++
		}
	}
	return c
}

// builder grows a tree depth-first.
type builder struct {
	params *treeParams
	cols   [][]float64
	crit   criterion
	rng    *rand.Rand

	// leafValue overrides the criterion's node value at leaves.
	leafValue func(samples []int) []float64

	nodes       []node
	importances []float64
}

type split struct {
	feature   int
	threshold float64
	pos       int // number of samples going left in the sorted order
	proxy     float64
	impLeft   float64
	impRight  float64
	order     []int
}

func newBuilder(p *treeParams, cols [][]float64, crit criterion, rng *rand.Rand) *builder {
	return &builder{
		params:      p,
		cols:        cols,
		crit:        crit,
		rng:         rng,
		importances: make([]float64, len(cols)),
	}
}

func (b *builder) build(samples []int) *treeStructure {
	b.grow(samples, 0)
	return &treeStructure{Nodes: b.nodes, NFeatures: len(b.cols)}
}

func (b *builder) grow(samples []int, depth int) int {
	b.crit.init(samples)
	imp := b.crit.impurity()
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{
		Feature:  leafFeature,
		Impurity: imp,
		NSamples: len(samples),
		Depth:    depth,
		Value:    b.crit.nodeValue(),
	})

	n := len(samples)
	if n < b.params.minSamplesSplit ||
		n < 2*b.params.minSamplesLeaf ||
		(b.params.maxDepth > 0 && depth >= b.params.maxDepth) ||
		imp <= 1e-12 {
		b.makeLeaf(idx, samples)
		return idx
	}

	best, ok := b.bestSplit(samples)
	if !ok {
		b.makeLeaf(idx, samples)
		return idx
	}

	left := append([]int(nil), best.order[:best.pos]...)
	right := append([]int(nil), best.order[best.pos:]...)
	nL, nR := float64(len(left)), float64(len(right))
	b.importances[best.feature] += float64(n)*imp - nL*best.impLeft - nR*best.impRight

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)

	nd := &b.nodes[idx]
	nd.Feature = best.feature
	nd.Threshold = best.threshold
	nd.Left = l
	nd.Right = r
	return idx
}

func (b *builder) makeLeaf(idx int, samples []int) {
	if b.leafValue != nil {
		b.nodes[idx].Value = b.leafValue(samples)
	}
}

// candidateFeatures returns the feature visiting order. With max_features
// set the order is a random permutation and the search keeps drawing past
// max_features until one valid split is found.
func (b *builder) candidateFeatures() []int {
	p := len(b.cols)
	if b.params.maxFeatures <= 0 || b.params.maxFeatures >= p {
		all := make([]int, p)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return b.rng.Perm(p)
}

func (b *builder) bestSplit(samples []int) (split, bool) {
	n := len(samples)
	minLeaf := b.params.minSamplesLeaf
	best := split{proxy: math.Inf(1)}
	found := false

	order := make([]int, n)
	for visited, f := range b.candidateFeatures() {
		if b.params.maxFeatures > 0 && visited >= b.params.maxFeatures && found {
			break
		}

		col := b.cols[f]
		copy(order, samples)
		sort.SliceStable(order, func(i, j int) bool { return col[order[i]] < col[order[j]] })
		if col[order[0]] == col[order[n-1]] {
			continue
		}

		b.crit.reset()
		for i := 0; i < n-1; i++ {
			b.crit.update(order[i])
			nL := i + 1
			if nL < minLeaf {
				continue
			}
			if n-nL < minLeaf {
				break
			}
			if col[order[i]] == col[order[i+1]] {
				continue
			}
			impL, impR := b.crit.childrenImpurity()
			proxy := float64(nL)*impL + float64(n-nL)*impR
			if proxy < best.proxy {
				best = split{
					feature:   f,
					threshold: (col[order[i]] + col[order[i+1]]) / 2,
					pos:       nL,
					proxy:     proxy,
					impLeft:   impL,
					impRight:  impR,
					order:     append(best.order[:0], order...),
				}
				found = true
			}
		}
	}
	return best, found
}

// normalizedImportances scales importances to sum to 1, or returns zeros
// when the tree made no split.
func normalizedImportances(raw []float64) []float64 {
	out := make([]float64, len(raw))
	var sum float64
	for _, v := range raw {
		sum += v
	}
	if sum <= 0 {
		return out
	}
	for i, v := range raw {
		out[i] = v / sum
	}
	return out
}
