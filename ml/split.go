package ml

import (
	"math"
	"math/rand"
)

// trainTestSplit shuffles row indices with seed and holds out
// ceil(n*testFraction) of them.
func trainTestSplit(n int, testFraction float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	nTest := int(math.Ceil(float64(n)*testFraction - 1e-9))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

// kFold splits [0,n) into k contiguous folds, the first n%k folds one row
// larger. Each element is the held-out fold.
func kFold(n, k int) [][]int {
	if k > n {
		k = n
	}
	folds := make([][]int, 0, k)
	start := 0
	for f := 0; f < k; f++ {
		size := n / k
		if f < n%k {
			size++
		}
		fold := make([]int, size)
		for i := range fold {
			fold[i] = start + i
		}
		folds = append(folds, fold)
		start += size
	}
	return folds
}

func pickRows(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

func pickValues(y []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}

// complement returns the indices of [0,n) not in held.
func complement(n int, held []int) []int {
	skip := make(map[int]struct{}, len(held))
	for _, i := range held {
		skip[i] = struct{}{}
	}
	out := make([]int, 0, n-len(held))
	for i := 0; i < n; i++ {
		if _, ok := skip[i]; !ok {
			out = append(out, i)
		}
	}
	return out
}
