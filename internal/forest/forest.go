// Package forest implements a random-forest regressor: bootstrap-sampled
// CART trees with variance-reduction splits. Individual tree predictions
// are exposed so callers can build prediction intervals from the spread
// of the ensemble.
package forest

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Config holds the forest hyperparameters. A zero MaxFeatures means every
// feature is considered at each split.
type Config struct {
	Trees           int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	Seed            int64
}

// DefaultConfig returns the hyperparameters used by the rental models.
func DefaultConfig() Config {
	return Config{
		Trees:           100,
		MaxDepth:        15,
		MinSamplesSplit: 5,
		MinSamplesLeaf:  2,
		MaxFeatures:     0,
		Seed:            42,
	}
}

// Node is a single decision-tree node. Leaf nodes have Feature == -1.
// Fields are exported for gob serialisation.
type Node struct {
	Feature   int
	Threshold float64
	Left      *Node
	Right     *Node
	Value     float64
}

// Forest is a fitted ensemble of regression trees. Fields are exported for
// gob serialisation. A Forest is immutable after Fit and safe for
// concurrent prediction.
type Forest struct {
	Cfg         Config
	Trees       []*Node
	NumFeatures int
	Importance  []float64
}

// New returns an unfitted forest with the given hyperparameters.
func New(cfg Config) *Forest {
	if cfg.Trees <= 0 {
		cfg.Trees = 1
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}
	return &Forest{Cfg: cfg}
}

// Fit trains the forest. Results are deterministic for a fixed seed: trees
// are built sequentially from a single seeded source.
func (f *Forest) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(y) == 0 {
		return fmt.Errorf("forest: empty training set")
	}
	if len(X) != len(y) {
		return fmt.Errorf("forest: %d rows but %d targets", len(X), len(y))
	}
	f.NumFeatures = len(X[0])
	for i, row := range X {
		if len(row) != f.NumFeatures {
			return fmt.Errorf("forest: row %d has %d features, want %d", i, len(row), f.NumFeatures)
		}
	}

	rnd := rand.New(rand.NewSource(f.Cfg.Seed))
	f.Trees = make([]*Node, f.Cfg.Trees)
	f.Importance = make([]float64, f.NumFeatures)

	n := len(y)
	for t := 0; t < f.Cfg.Trees; t++ {
		// Bootstrap sample with replacement.
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rnd.Intn(n)
		}
		Xs, ys := subset(X, y, idx)
		f.Trees[t] = f.buildTree(Xs, ys, f.Cfg.MaxDepth, rnd)
	}

	// Normalise accumulated variance reductions into importances.
	var total float64
	for _, v := range f.Importance {
		total += v
	}
	if total > 0 {
		for i := range f.Importance {
			f.Importance[i] /= total
		}
	}
	return nil
}

// Predict returns the mean prediction over all trees.
func (f *Forest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += predictNode(t, x)
	}
	return sum / float64(len(f.Trees))
}

// PredictPerTree returns the individual prediction of every tree for one
// input row, in tree order.
func (f *Forest) PredictPerTree(x []float64) []float64 {
	out := make([]float64, len(f.Trees))
	for i, t := range f.Trees {
		out[i] = predictNode(t, x)
	}
	return out
}

// FeatureImportances returns a copy of the normalised importances. The
// values sum to 1 for any forest that found at least one split.
func (f *Forest) FeatureImportances() []float64 {
	out := make([]float64, len(f.Importance))
	copy(out, f.Importance)
	return out
}

// Fitted reports whether the forest has been trained.
func (f *Forest) Fitted() bool {
	return len(f.Trees) > 0
}

func (f *Forest) buildTree(X [][]float64, y []float64, depth int, rnd *rand.Rand) *Node {
	if len(y) < f.Cfg.MinSamplesSplit || depth == 0 {
		return &Node{Feature: -1, Value: mean(y)}
	}

	nSamples := len(y)
	feats := f.candidateFeatures(rnd)

	bestFeat := -1
	bestThresh := 0.0
	bestScore := math.Inf(1)
	var leftIdx, rightIdx []int

	parentImpurity := float64(nSamples) * variance(y)

	for _, fi := range feats {
		vals := make([]float64, nSamples)
		for i := range vals {
			vals[i] = X[i][fi]
		}
		unique := uniqueSorted(vals)
		if len(unique) < 2 {
			continue
		}
		for i := 0; i < len(unique)-1; i++ {
			thr := (unique[i] + unique[i+1]) / 2
			lIdx := make([]int, 0, nSamples/2)
			rIdx := make([]int, 0, nSamples/2)
			for j := 0; j < nSamples; j++ {
				if X[j][fi] <= thr {
					lIdx = append(lIdx, j)
				} else {
					rIdx = append(rIdx, j)
				}
			}
			if len(lIdx) < f.Cfg.MinSamplesLeaf || len(rIdx) < f.Cfg.MinSamplesLeaf {
				continue
			}
			lY := gather(y, lIdx)
			rY := gather(y, rIdx)
			score := float64(len(lY))*variance(lY) + float64(len(rY))*variance(rY)
			if score < bestScore {
				bestScore = score
				bestFeat = fi
				bestThresh = thr
				leftIdx = lIdx
				rightIdx = rIdx
			}
		}
	}

	if bestFeat == -1 {
		return &Node{Feature: -1, Value: mean(y)}
	}

	if gain := parentImpurity - bestScore; gain > 0 {
		f.Importance[bestFeat] += gain
	}

	Xl, yl := subset(X, y, leftIdx)
	Xr, yr := subset(X, y, rightIdx)
	return &Node{
		Feature:   bestFeat,
		Threshold: bestThresh,
		Left:      f.buildTree(Xl, yl, depth-1, rnd),
		Right:     f.buildTree(Xr, yr, depth-1, rnd),
	}
}

func (f *Forest) candidateFeatures(rnd *rand.Rand) []int {
	k := f.Cfg.MaxFeatures
	if k <= 0 || k >= f.NumFeatures {
		out := make([]int, f.NumFeatures)
		for i := range out {
			out[i] = i
		}
		return out
	}
	return rnd.Perm(f.NumFeatures)[:k]
}

func predictNode(n *Node, x []float64) float64 {
	for n.Feature != -1 && n.Left != nil && n.Right != nil {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

func mean(a []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range a {
		sum += v
	}
	return sum / float64(len(a))
}

func variance(a []float64) float64 {
	if len(a) <= 1 {
		return 0
	}
	m := mean(a)
	s := 0.0
	for _, v := range a {
		d := v - m
		s += d * d
	}
	return s / float64(len(a))
}

func gather(a []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = a[j]
	}
	return out
}

func subset(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	Xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		Xs[i] = X[j]
		ys[i] = y[j]
	}
	return Xs, ys
}

func uniqueSorted(a []float64) []float64 {
	seen := make(map[float64]struct{}, len(a))
	out := make([]float64, 0, len(a))
	for _, v := range a {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
