// Package ml trains and serves the deal-scoring model.
package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"engine-deals/features"
	"engine-deals/models"
	"engine-deals/utils"
)

var (
	// ErrUntrained is returned by Predict and Save before a model exists.
	ErrUntrained = errors.New("ml: model not trained")

	// ErrFeatureMismatch means feature rows do not have the width the
	// fitted scaler or model expects.
	ErrFeatureMismatch = errors.New("ml: feature columns do not match model")

	// ErrArtifactMismatch means the model, scaler and metadata files on
	// disk do not describe the same model.
	ErrArtifactMismatch = errors.New("ml: model artifacts are inconsistent")
)

// ScorerConfig locates the artifacts and tunes training.
type ScorerConfig struct {
	ModelPath  string
	ScalerPath string
	Params     Params
	Labels     LabelWeights
}

type modelInfo struct {
	FeatureColumns []string `json:"feature_columns"`
	ModelType      string   `json:"model_type"`
}

// DealScorer owns the fitted model, its scaler, and the ordered feature
// columns it was fitted on.
type DealScorer struct {
	engineer *features.Engineer
	cfg      ScorerConfig
	logger   *utils.Logger

	mu      sync.RWMutex
	model   *GradientBoosting
	scaler  *StandardScaler
	columns []string
}

func NewDealScorer(engineer *features.Engineer, cfg ScorerConfig, logger *utils.Logger) *DealScorer {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &DealScorer{engineer: engineer, cfg: cfg, logger: logger}
}

// Ready reports whether a model is loaded or trained.
func (s *DealScorer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model != nil && s.scaler != nil
}

// Train fits a new model on rows. When no row carries a label every row is
// labeled with SyntheticLabels. Rows count as usable when their label is in
// [0,1] and their price is positive; with fewer than Params.MinUsableRows
// usable rows the synthetic training set is used instead.
func (s *DealScorer) Train(rows []*models.TrainingRow) (*Metrics, error) {
	p := s.cfg.Params
	metrics := &Metrics{}

	listings := make([]*models.Listing, len(rows))
	labeled := false
	for i, r := range rows {
		listings[i] = r.Listing
		if r.Label != nil {
			labeled = true
		}
	}

	tbl := s.engineer.Transform(listings)
	labels := make([]*float64, len(rows))
	if labeled {
		for i, r := range rows {
			labels[i] = r.Label
		}
	} else if len(rows) > 0 {
		metrics.SyntheticLabels = true
		for i, v := range SyntheticLabels(listings, tbl, s.cfg.Labels) {
			labels[i] = models.Float(v)
		}
	}

	columns := tbl.Columns
	var x [][]float64
	var y []float64
	for i, l := range listings {
		lbl := labels[i]
		if lbl == nil || *lbl < 0 || *lbl > 1 || math.IsNaN(*lbl) || !l.HasPrice() {
			continue
		}
		x = append(x, tbl.Rows[i])
		y = append(y, *lbl)
	}

	if len(x) < p.MinUsableRows {
		s.logger.Warn("[ml] Only %d usable training rows, using synthetic training data", len(x))
		columns, x, y = SyntheticTrainingSet(p.SyntheticRows, p.Seed)
		metrics.SyntheticData = true
	}

	trainIdx, testIdx := trainTestSplit(len(x), p.TestFraction, p.Seed)
	xTrain, yTrain := pickRows(x, trainIdx), pickValues(y, trainIdx)
	xTest, yTest := pickRows(x, testIdx), pickValues(y, testIdx)

	scaler := fitScaler(xTrain)
	xTrainScaled, err := scaler.Transform(xTrain)
	if err != nil {
		return nil, err
	}
	xTestScaled, err := scaler.Transform(xTest)
	if err != nil {
		return nil, err
	}

	s.logger.Info("[ml] Training on %d rows, %d features", len(xTrain), len(columns))
	model, err := fitBoosting(xTrainScaled, yTrain, p)
	if err != nil {
		return nil, err
	}

	pred := model.Predict(xTestScaled)
	metrics.TrainRows = len(xTrain)
	metrics.TestRows = len(xTest)
	metrics.MSE = meanSquaredError(yTest, pred)
	metrics.MAE = meanAbsoluteError(yTest, pred)
	metrics.R2 = rSquared(yTest, pred)
	metrics.CVR2Mean, metrics.CVR2Std = crossValidate(xTrainScaled, yTrain, p)
	metrics.Importances = rankImportances(columns, model.FeatureImportances())

	s.mu.Lock()
	s.model = model
	s.scaler = scaler
	s.columns = append([]string(nil), columns...)
	s.mu.Unlock()

	s.logger.Info("[ml] Model trained. R2 %.3f, CV R2 %.3f (+/- %.3f)", metrics.R2, metrics.CVR2Mean, metrics.CVR2Std)
	for i, imp := range metrics.Importances {
		if i == 10 {
			break
		}
		s.logger.Debug("[ml]   %s: %.3f", imp.Feature, imp.Value)
	}
	return metrics, nil
}

// crossValidate returns the mean and population std of R2 over k folds.
func crossValidate(x [][]float64, y []float64, p Params) (mean, std float64) {
	if p.CVFolds < 2 || len(x) < p.CVFolds {
		return 0, 0
	}
	var scores []float64
	for _, held := range kFold(len(x), p.CVFolds) {
		keep := complement(len(x), held)
		m, err := fitBoosting(pickRows(x, keep), pickValues(y, keep), p)
		if err != nil {
			continue
		}
		scores = append(scores, rSquared(pickValues(y, held), m.Predict(pickRows(x, held))))
	}
	if len(scores) == 0 {
		return 0, 0
	}
	for _, v := range scores {
		mean += v
	}
	mean /= float64(len(scores))
	for _, v := range scores {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(scores)))
}

// Predict scores listings in [0,1], one per listing in order.
func (s *DealScorer) Predict(listings []*models.Listing) ([]float64, error) {
	s.mu.RLock()
	model, scaler, columns := s.model, s.scaler, s.columns
	s.mu.RUnlock()

	if model == nil || scaler == nil {
		return nil, ErrUntrained
	}
	if len(columns) != len(scaler.Mean) || len(columns) != model.NumFeatures {
		return nil, fmt.Errorf("%w: %d columns, scaler %d, model %d",
			ErrFeatureMismatch, len(columns), len(scaler.Mean), model.NumFeatures)
	}
	if len(listings) == 0 {
		return []float64{}, nil
	}

	tbl := s.engineer.Transform(listings)
	x, err := scaler.Transform(tbl.Select(columns))
	if err != nil {
		return nil, err
	}
	scores := model.Predict(x)
	for i, v := range scores {
		scores[i] = clip(v, 0, 1)
	}
	return scores, nil
}

// Columns returns the feature columns of the current model.
func (s *DealScorer) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.columns...)
}

// InfoPath is the metadata file that travels with the model file.
func (s *DealScorer) InfoPath() string {
	ext := filepath.Ext(s.cfg.ModelPath)
	return strings.TrimSuffix(s.cfg.ModelPath, ext) + "_info.json"
}

// Save writes the model, scaler and metadata artifacts.
func (s *DealScorer) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil || s.scaler == nil {
		return ErrUntrained
	}

	info := modelInfo{FeatureColumns: s.columns, ModelType: s.model.Kind}
	for path, v := range map[string]any{
		s.cfg.ModelPath:  s.model,
		s.cfg.ScalerPath: s.scaler,
		s.InfoPath():     info,
	} {
		if err := writeJSON(path, v); err != nil {
			return err
		}
	}
	s.logger.Info("[ml] Model saved to %s", s.cfg.ModelPath)
	return nil
}

// Load restores the three artifacts. A missing artifact yields (false, nil)
// and leaves the scorer untouched.
func (s *DealScorer) Load() (bool, error) {
	var (
		model  GradientBoosting
		scaler StandardScaler
		info   modelInfo
	)
	for path, v := range map[string]any{
		s.cfg.ModelPath:  &model,
		s.cfg.ScalerPath: &scaler,
		s.InfoPath():     &info,
	} {
		if err := readJSON(path, v); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("[ml] No saved model found (%s)", path)
				return false, nil
			}
			return false, err
		}
	}

	if info.ModelType != ModelKind || model.Kind != ModelKind {
		return false, fmt.Errorf("%w: model type %q", ErrArtifactMismatch, info.ModelType)
	}
	n := len(info.FeatureColumns)
	if n == 0 || n != model.NumFeatures || n != len(scaler.Mean) || n != len(scaler.Scale) {
		return false, fmt.Errorf("%w: %d columns, model %d, scaler %d",
			ErrArtifactMismatch, n, model.NumFeatures, len(scaler.Mean))
	}

	s.mu.Lock()
	s.model = &model
	s.scaler = &scaler
	s.columns = info.FeatureColumns
	s.mu.Unlock()

	s.logger.Info("[ml] Model loaded from %s", s.cfg.ModelPath)
	return true, nil
}

func writeJSON(path string, v any) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ml: create %s: %w", dir, err)
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ml: encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("ml: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("ml: write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ml: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ml: decode %s: %w", path, err)
	}
	return nil
}
