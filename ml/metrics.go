package ml

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Importance is one feature's share of the model's total split gain.
type Importance struct {
	Feature string
	Value   float64
}

// Metrics summarizes a training run.
type Metrics struct {
	TrainRows int
	TestRows  int
	MSE       float64
	MAE       float64
	R2        float64
	CVR2Mean  float64
	CVR2Std   float64
	// Importances are sorted by value, highest first.
	Importances []Importance
	// SyntheticData is set when the generated training set replaced the
	// given rows.
	SyntheticData bool
	// SyntheticLabels is set when labels were derived heuristically.
	SyntheticLabels bool
}

func meanSquaredError(want, got []float64) float64 {
	if len(want) == 0 {
		return 0
	}
	var sum float64
	for i := range want {
		d := want[i] - got[i]
		sum += d * d
	}
	return sum / float64(len(want))
}

func meanAbsoluteError(want, got []float64) float64 {
	if len(want) == 0 {
		return 0
	}
	var sum float64
	for i := range want {
		sum += math.Abs(want[i] - got[i])
	}
	return sum / float64(len(want))
}

// rSquared returns the coefficient of determination, or 0 when the targets
// have no variance.
func rSquared(want, got []float64) float64 {
	if len(want) < 2 {
		return 0
	}
	r2 := stat.RSquaredFrom(got, want, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0
	}
	return r2
}

func rankImportances(columns []string, values []float64) []Importance {
	out := make([]Importance, 0, len(columns))
	for i, c := range columns {
		var v float64
		if i < len(values) {
			v = values[i]
		}
		out = append(out, Importance{Feature: c, Value: v})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Value > out[b].Value })
	return out
}
