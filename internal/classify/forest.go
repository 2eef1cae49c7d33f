package classify

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"floodmap/internal/sampling"
)

// ForestTrainer fits an ensemble of CART decision trees, each grown on a
// bootstrap resample of the training data with per-split feature
// subsampling. Prediction is a majority vote.
type ForestTrainer struct{}

// NewForestTrainer creates the default trainer.
func NewForestTrainer() *ForestTrainer {
	return &ForestTrainer{}
}

// Train fits opts.Trees trees. Tree i derives its randomness from
// opts.Seed+i, so a fixed seed reproduces the model exactly.
func (t *ForestTrainer) Train(ds sampling.Dataset, opts TrainOptions) (Model, error) {
	if opts.Trees < 1 {
		return nil, fmt.Errorf("tree count must be a positive integer, got %d", opts.Trees)
	}
	if len(ds.Samples) == 0 {
		return nil, fmt.Errorf("cannot train on an empty sample set")
	}
	dims := len(ds.Bands)
	if dims == 0 {
		return nil, fmt.Errorf("dataset has no feature bands")
	}

	n := len(ds.Samples)
	features := mat.NewDense(n, dims, nil)
	labels := make([]int, n)
	for i, s := range ds.Samples {
		if len(s.Features) != dims {
			return nil, fmt.Errorf("sample %d has %d features, expected %d", i, len(s.Features), dims)
		}
		features.SetRow(i, s.Features)
		labels[i] = s.Label
	}

	// Per-split feature subsample size, the usual sqrt heuristic.
	mtry := int(math.Sqrt(float64(dims)))
	if mtry < 1 {
		mtry = 1
	}

	f := &forest{trees: make([]*treeNode, opts.Trees)}
	for i := range f.trees {
		rng := rand.New(rand.NewSource(opts.Seed + int64(i)))

		boot := make([]int, n)
		for j := range boot {
			boot[j] = rng.Intn(n)
		}
		f.trees[i] = growTree(features, labels, boot, mtry, 0, rng)
	}
	return f, nil
}

// forest is the trained ensemble.
type forest struct {
	trees []*treeNode
}

// Predict returns the majority class over all trees; ties go to class 1.
func (f *forest) Predict(features []float64) int {
	votes := 0
	for _, t := range f.trees {
		votes += t.predict(features)
	}
	if 2*votes >= len(f.trees) {
		return 1
	}
	return 0
}

// treeNode is one node of a binary CART tree. Leaves have left==nil.
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	class     int
}

func (n *treeNode) predict(features []float64) int {
	for n.left != nil {
		if features[n.feature] < n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.class
}

const maxTreeDepth = 24

// growTree recursively grows a tree over the given sample indices, choosing
// at each node the Gini-optimal threshold among mtry randomly drawn
// features.
func growTree(features *mat.Dense, labels []int, indices []int, mtry, depth int, rng *rand.Rand) *treeNode {
	ones := 0
	for _, i := range indices {
		ones += labels[i]
	}
	if ones == 0 || ones == len(indices) || depth >= maxTreeDepth || len(indices) < 2 {
		return &treeNode{class: majority(ones, len(indices))}
	}

	_, dims := features.Dims()
	bestGini := math.Inf(1)
	bestFeature := -1
	var bestThreshold float64

	for _, fi := range rng.Perm(dims)[:mtry] {
		threshold, gini, ok := bestSplit(features, labels, indices, fi)
		if ok && gini < bestGini {
			bestGini = gini
			bestFeature = fi
			bestThreshold = threshold
		}
	}
	if bestFeature < 0 {
		return &treeNode{class: majority(ones, len(indices))}
	}

	var left, right []int
	for _, i := range indices {
		if features.At(i, bestFeature) < bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &treeNode{class: majority(ones, len(indices))}
	}

	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      growTree(features, labels, left, mtry, depth+1, rng),
		right:     growTree(features, labels, right, mtry, depth+1, rng),
	}
}

// bestSplit finds the threshold on one feature minimizing the weighted Gini
// impurity of the two children. Candidate thresholds are midpoints between
// consecutive distinct sorted values.
func bestSplit(features *mat.Dense, labels []int, indices []int, feature int) (float64, float64, bool) {
	type pair struct {
		value float64
		label int
	}
	pairs := make([]pair, len(indices))
	for i, idx := range indices {
		pairs[i] = pair{value: features.At(idx, feature), label: labels[idx]}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].value < pairs[j].value })

	total := len(pairs)
	totalOnes := 0
	for _, p := range pairs {
		totalOnes += p.label
	}

	bestGini := math.Inf(1)
	var bestThreshold float64
	found := false

	leftOnes := 0
	for i := 1; i < total; i++ {
		leftOnes += pairs[i-1].label
		if pairs[i].value == pairs[i-1].value {
			continue
		}

		nl, nr := i, total-i
		pl := float64(leftOnes) / float64(nl)
		pr := float64(totalOnes-leftOnes) / float64(nr)
		gini := float64(nl)*2*pl*(1-pl) + float64(nr)*2*pr*(1-pr)

		if gini < bestGini {
			bestGini = gini
			bestThreshold = (pairs[i-1].value + pairs[i].value) / 2
			found = true
		}
	}
	return bestThreshold, bestGini, found
}

// majority returns the majority class given the count of ones; ties go to 1.
func majority(ones, total int) int {
	if 2*ones >= total {
		return 1
	}
	return 0
}
