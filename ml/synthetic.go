package ml

import (
	"math"
	"math/rand"
	"sort"

	"engine-deals/features"
	"engine-deals/models"
)

// LabelWeights is the heuristic used to label listings before any human
// ratings exist. The weights are a placeholder policy that keeps the
// pipeline usable, not a validated scoring function.
type LabelWeights struct {
	Base               float64
	PricePercentile    float64
	Condition          float64
	Priority           float64
	MaxDistancePenalty float64
	// DistanceScale converts miles into penalty before capping.
	DistanceScale float64
	Reliability   float64
}

func DefaultLabelWeights() LabelWeights {
	return LabelWeights{
		Base:               0.5,
		PricePercentile:    0.3,
		Condition:          0.2,
		Priority:           0.3,
		MaxDistancePenalty: 0.2,
		DistanceScale:      1000,
		Reliability:        0.1,
	}
}

const epsilon = 1e-8

// SyntheticLabels derives a label in [0,1] for each row of tbl, which must
// be the features of listings in the same order.
func SyntheticLabels(listings []*models.Listing, tbl *features.Table, w LabelWeights) []float64 {
	n := len(listings)
	labels := make([]float64, n)
	for i := range labels {
		labels[i] = w.Base
	}
	if n == 0 {
		return labels
	}

	byPlatform := make(map[string][]int)
	for i, l := range listings {
		if l.HasPrice() {
			byPlatform[l.Platform] = append(byPlatform[l.Platform], i)
		}
	}
	for _, idx := range byPlatform {
		prices := make([]float64, len(idx))
		for k, i := range idx {
			prices[k] = listings[i].PriceOrZero()
		}
		if len(prices) < 2 || spread(prices) == 0 {
			continue
		}
		for k, pct := range percentileRanks(prices) {
			labels[idx[k]] += w.PricePercentile * (1 - pct)
		}
	}

	if cond := tbl.Column(features.ColCondition); cond != nil {
		lo, hi := minMax(cond)
		for i, v := range cond {
			labels[i] += w.Condition * (v - lo) / (hi - lo + epsilon)
		}
	}
	if prio := tbl.Column(features.ColPriority); prio != nil {
		_, hi := minMax(prio)
		for i, v := range prio {
			labels[i] += w.Priority * v / (hi + epsilon)
		}
	}
	if dist := tbl.Column(features.ColDistance); dist != nil {
		for i, v := range dist {
			labels[i] -= clip(v/w.DistanceScale, 0, w.MaxDistancePenalty)
		}
	}
	if rel := tbl.Column(features.ColReliability); rel != nil {
		for i, v := range rel {
			labels[i] += w.Reliability * v
		}
	}

	for i := range labels {
		labels[i] = clip(labels[i], 0, 1)
	}
	return labels
}

// percentileRanks returns rank/n for each value, ties sharing their
// average rank.
func percentileRanks(values []float64) []float64 {
	n := len(values)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] < values[order[b]] })

	out := make([]float64, n)
	for start := 0; start < n; {
		end := start + 1
		for end < n && values[order[end]] == values[order[start]] {
			end++
		}
		// ranks start..end-1 are 1-based start+1..end
		avg := float64(start+1+end) / 2
		for k := start; k < end; k++ {
			out[order[k]] = avg / float64(n)
		}
		start = end
	}
	return out
}

func spread(values []float64) float64 {
	lo, hi := minMax(values)
	return hi - lo
}

func minMax(values []float64) (lo, hi float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// syntheticColumns is the feature set of the generated training data.
var syntheticColumns = []string{
	features.ColPrice, features.ColLogPrice,
	"title_length", "title_word_count", "description_length", "has_description",
	"good_condition_count", "bad_condition_count", features.ColCondition,
	"is_rebuilt", "is_new", "needs_work",
	features.ColDistance, "is_local", features.ColReliability,
	"is_lq4", "is_ls_engine", "is_chevy", "is_v8",
	features.ColPriority, "is_complete_engine",
}

// SyntheticTrainingSet generates n rows of plausible listing features and a
// formula-derived label for each, so a model can exist before any data does.
func SyntheticTrainingSet(n int, seed int64) (columns []string, x [][]float64, y []float64) {
	rng := rand.New(rand.NewSource(seed))
	bern := func(p float64) float64 {
		if rng.Float64() < p {
			return 1
		}
		return 0
	}
	intn := func(lo, hi int) float64 { return float64(lo + rng.Intn(hi-lo)) }

	x = make([][]float64, n)
	for i := range x {
		x[i] = []float64{
			math.Exp(7 + rng.NormFloat64()),
			7 + rng.NormFloat64(),
			intn(20, 100),
			intn(3, 15),
			intn(0, 500),
			bern(0.7),
			poisson(rng, 1),
			poisson(rng, 0.3),
			2 * rng.NormFloat64(),
			bern(0.2),
			bern(0.1),
			bern(0.15),
			200 * rng.ExpFloat64(),
			bern(0.3),
			0.5 + 0.4*rng.Float64(),
			bern(0.3),
			bern(0.5),
			bern(0.6),
			bern(0.7),
			intn(0, 8),
			bern(0.4),
		}
	}

	prices := make([]float64, n)
	for i, row := range x {
		prices[i] = row[0]
	}
	lo, hi := minMax(prices)

	y = make([]float64, n)
	for i, row := range x {
		score := 0.3*(1-(row[0]-lo)/(hi-lo+epsilon)) +
			0.2*clip(row[8]/5, 0, 1) +
			0.2*row[19]/8 +
			0.1*row[9] +
			0.1*row[14] +
			0.1*(1-clip(row[12]/1000, 0, 1))
		score += 0.1 * rng.NormFloat64()
		y[i] = clip(score, 0, 1)
	}

	columns = make([]string, len(syntheticColumns))
	copy(columns, syntheticColumns)
	return columns, x, y
}

// poisson draws from a Poisson distribution using Knuth's method, which is
// fine for the small rates used here.
func poisson(rng *rand.Rand, lambda float64) float64 {
	limit := math.Exp(-lambda)
	k := 0
	p := rng.Float64()
	for p > limit {
		k++
		p *= rng.Float64()
	}
	return float64(k)
}
