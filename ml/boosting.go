package ml

import (
	"fmt"
)

// ModelKind is recorded in the artifact metadata.
const ModelKind = "GradientBoostingRegressor"

// Params are the boosting hyperparameters and training-procedure settings.
type Params struct {
	NumEstimators int
	LearningRate  float64
	MaxDepth      int
	Seed          int64
	TestFraction  float64
	CVFolds       int
	// MinUsableRows is the floor below which the synthetic training set is
	// used instead of the given rows.
	MinUsableRows int
	SyntheticRows int
}

func DefaultParams() Params {
	return Params{
		NumEstimators: 100,
		LearningRate:  0.1,
		MaxDepth:      6,
		Seed:          42,
		TestFraction:  0.2,
		CVFolds:       5,
		MinUsableRows: 10,
		SyntheticRows: 1000,
	}
}

// GradientBoosting is a least-squares gradient-boosted ensemble of
// regression trees.
type GradientBoosting struct {
	Kind         string            `json:"kind"`
	NumFeatures  int               `json:"num_features"`
	Init         float64           `json:"init"`
	LearningRate float64           `json:"learning_rate"`
	Trees        []*regressionTree `json:"trees"`

	importances []float64
}

func fitBoosting(x [][]float64, y []float64, p Params) (*GradientBoosting, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, fmt.Errorf("ml: fit needs matching non-empty x and y, got %d and %d", len(x), len(y))
	}
	nf := len(x[0])
	m := &GradientBoosting{
		Kind:         ModelKind,
		NumFeatures:  nf,
		LearningRate: p.LearningRate,
		importances:  make([]float64, nf),
	}

	for _, v := range y {
		m.Init += v
	}
	m.Init /= float64(len(y))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = m.Init
	}
	residual := make([]float64, len(y))

	for e := 0; e < p.NumEstimators; e++ {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		tree := fitTree(x, residual, p.MaxDepth)
		m.Trees = append(m.Trees, tree)
		for i, row := range x {
			pred[i] += m.LearningRate * tree.predict(row)
		}

		var total float64
		for _, v := range tree.importance {
			total += v
		}
		if total > 0 {
			for f, v := range tree.importance {
				m.importances[f] += v / total
			}
		}
	}

	var sum float64
	for _, v := range m.importances {
		sum += v
	}
	if sum > 0 {
		for f := range m.importances {
			m.importances[f] /= sum
		}
	}
	return m, nil
}

// Predict returns the raw ensemble output for each row.
func (m *GradientBoosting) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		v := m.Init
		for _, t := range m.Trees {
			v += m.LearningRate * t.predict(row)
		}
		out[i] = v
	}
	return out
}

// FeatureImportances returns normalized impurity-based importances. Models
// restored from disk report nil.
func (m *GradientBoosting) FeatureImportances() []float64 {
	return m.importances
}
