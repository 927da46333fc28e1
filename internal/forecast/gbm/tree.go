package gbm

import (
	"sort"
)

// minGain is the smallest squared-error reduction that justifies a split.
const minGain = 1e-12

// pureTolerance is the relative within-node variance treated as zero.
const pureTolerance = 1e-10

type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      int
	right     int
}

// tree is a regression tree stored as a flat node slice; node 0 is the root.
type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		if x[n.feature] <= n.threshold {
			i = n.left
		} else {
			i = n.right
		}
	}
}

type treeBuilder struct {
	X               [][]float64
	target          []float64
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	// gains accumulates the split gain per feature.
	gains []float64
	nodes []node
	order []int
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	pos       int
	order     []int
}

// build grows a tree on the sample indices idx and returns it.
func (b *treeBuilder) build(idx []int) *tree {
	b.nodes = b.nodes[:0]
	b.grow(idx, 0)
	return &tree{nodes: append([]node(nil), b.nodes...)}
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	pos := len(b.nodes)
	b.nodes = append(b.nodes, node{leaf: true, value: b.mean(idx)})

	if depth >= b.maxDepth || len(idx) < b.minSamplesSplit || len(idx) < 2*b.minSamplesLeaf {
		return pos
	}

	best, ok := b.bestSplit(idx)
	if !ok {
		return pos
	}
	b.gains[best.feature] += best.gain

	left := append([]int(nil), best.order[:best.pos]...)
	right := append([]int(nil), best.order[best.pos:]...)

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[pos] = node{
		feature:   best.feature,
		threshold: best.threshold,
		left:      l,
		right:     r,
	}
	return pos
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	s := 0.0
	for _, i := range idx {
		s += b.target[i]
	}
	return s / float64(len(idx))
}

// bestSplit scans every feature for the threshold with the largest
// squared-error reduction. Ties keep the earliest feature and threshold.
func (b *treeBuilder) bestSplit(idx []int) (split, bool) {
	n := len(idx)
	total, sumSq := 0.0, 0.0
	for _, i := range idx {
		total += b.target[i]
		sumSq += b.target[i] * b.target[i]
	}
	parentScore := total * total / float64(n)

	// A pure node only shows rounding noise as gain.
	if sumSq-parentScore <= pureTolerance*sumSq {
		return split{}, false
	}

	best := split{gain: minGain}
	found := false

	if cap(b.order) < n {
		b.order = make([]int, n)
	}
	order := b.order[:n]

	for f := range b.gains {
		copy(order, idx)
		sort.SliceStable(order, func(a, c int) bool {
			return b.X[order[a]][f] < b.X[order[c]][f]
		})

		leftSum := 0.0
		for k := 0; k < n-1; k++ {
			leftSum += b.target[order[k]]
			nl := k + 1
			nr := n - nl
			if nl < b.minSamplesLeaf || nr < b.minSamplesLeaf {
				continue
			}
			lo, hi := b.X[order[k]][f], b.X[order[k+1]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - parentScore
			if gain > best.gain {
				best = split{
					feature:   f,
					threshold: lo + (hi-lo)/2,
					gain:      gain,
					pos:       nl,
					order:     append(best.order[:0:0], order...),
				}
				found = true
			}
		}
	}

	return best, found
}
