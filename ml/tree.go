package ml

import (
	"sort"
)

// node is one entry of a flattened regression tree. Leaves have Feature -1.
type node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// regressionTree is a CART tree grown on squared error. Samples with
// x[Feature] <= Threshold go left.
type regressionTree struct {
	Nodes []node `json:"nodes"`

	// importance is the per-feature impurity decrease of the last fit.
	importance []float64
}

const minImpurityDecrease = 1e-12

func fitTree(x [][]float64, y []float64, maxDepth int) *regressionTree {
	t := &regressionTree{}
	if len(x) > 0 {
		t.importance = make([]float64, len(x[0]))
	}
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	t.grow(x, y, idx, maxDepth)
	return t
}

// grow appends the subtree for idx and returns its node index.
func (t *regressionTree) grow(x [][]float64, y []float64, idx []int, depth int) int {
	mean, sse := meanSSE(y, idx)
	self := len(t.Nodes)
	t.Nodes = append(t.Nodes, node{Feature: -1, Value: mean})

	if depth <= 0 || len(idx) < 2 || sse <= minImpurityDecrease {
		return self
	}

	feature, threshold, gain, ok := bestSplit(x, y, idx, sse)
	if !ok || gain <= minImpurityDecrease {
		return self
	}

	var left, right []int
	for _, i := range idx {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	t.importance[feature] += gain

	l := t.grow(x, y, left, depth-1)
	r := t.grow(x, y, right, depth-1)
	t.Nodes[self] = node{Feature: feature, Threshold: threshold, Left: l, Right: r, Value: mean}
	return self
}

// bestSplit scans every feature for the threshold with the lowest summed
// child SSE. Ties keep the lowest feature index.
func bestSplit(x [][]float64, y []float64, idx []int, parentSSE float64) (feature int, threshold, gain float64, ok bool) {
	n := len(idx)
	sorted := make([]int, n)
	best := parentSSE

	var total, totalSq float64
	for _, i := range idx {
		total += y[i]
		totalSq += y[i] * y[i]
	}

	for f := range x[idx[0]] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })

		var leftSum, leftSq float64
		for k := 0; k < n-1; k++ {
			v := y[sorted[k]]
			leftSum += v
			leftSq += v * v

			cur, next := x[sorted[k]][f], x[sorted[k+1]][f]
			if cur == next {
				continue
			}
			nl, nr := float64(k+1), float64(n-k-1)
			rightSum, rightSq := total-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < best-minImpurityDecrease {
				best = sse
				feature = f
				threshold = cur + (next-cur)/2
				ok = true
			}
		}
	}
	return feature, threshold, parentSSE - best, ok
}

func meanSSE(y []float64, idx []int) (mean, sse float64) {
	if len(idx) == 0 {
		return 0, 0
	}
	for _, i := range idx {
		mean += y[i]
	}
	mean /= float64(len(idx))
	for _, i := range idx {
		d := y[i] - mean
		sse += d * d
	}
	return mean, sse
}

func (t *regressionTree) predict(row []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	n := t.Nodes[0]
	for n.Feature >= 0 {
		if row[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n.Value
}
