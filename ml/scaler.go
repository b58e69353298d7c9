package ml

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centres each column on its mean and divides by its
// population standard deviation. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func fitScaler(x [][]float64) *StandardScaler {
	if len(x) == 0 {
		return &StandardScaler{}
	}
	nf := len(x[0])
	s := &StandardScaler{Mean: make([]float64, nf), Scale: make([]float64, nf)}
	col := make([]float64, len(x))
	for f := 0; f < nf; f++ {
		for i, row := range x {
			col[i] = row[f]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[f] = mean
		if std == 0 {
			std = 1
		}
		s.Scale[f] = std
	}
	return s
}

// Transform returns a scaled copy of x.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("%w: scaler expects %d columns, row has %d", ErrFeatureMismatch, len(s.Mean), len(row))
		}
		scaled := make([]float64, len(row))
		for f, v := range row {
			scaled[f] = (v - s.Mean[f]) / s.Scale[f]
		}
		out[i] = scaled
	}
	return out, nil
}
