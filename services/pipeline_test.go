package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"engine-deals/features"
	"engine-deals/ml"
	"engine-deals/models"
)

type fakeSource struct {
	listings []*models.Listing
	calls    int
}

func (f *fakeSource) ScrapeAll(context.Context, []string) []*models.Listing {
	f.calls++
	out := make([]*models.Listing, len(f.listings))
	for i, l := range f.listings {
		cp := *l
		out[i] = &cp
	}
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	byURL    map[string]int64
	scores   map[int64]float64
	hot      map[int64]bool
	training []*models.TrainingRow
	recent   []*models.Listing
	hotDeals []*models.Listing
}

func newFakeStore(knownURLs ...string) *fakeStore {
	s := &fakeStore{byURL: map[string]int64{}, scores: map[int64]float64{}, hot: map[int64]bool{}}
	for _, u := range knownURLs {
		s.byURL[u] = int64(len(s.byURL) + 1)
	}
	return s
}

func (s *fakeStore) Insert(_ context.Context, l *models.Listing) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byURL[l.URL]; ok {
		return 0, false, nil
	}
	id := int64(len(s.byURL) + 1)
	s.byURL[l.URL] = id
	return id, true, nil
}

func (s *fakeStore) UpdateScore(_ context.Context, id int64, score float64, isHot bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[id] = score
	s.hot[id] = isHot
	return nil
}

func (s *fakeStore) GetForTraining(context.Context) ([]*models.TrainingRow, error) {
	return s.training, nil
}

func (s *fakeStore) GetRecent(context.Context, int) ([]*models.Listing, error) {
	return s.recent, nil
}

func (s *fakeStore) GetHotDeals(context.Context, int) ([]*models.Listing, error) {
	return s.hotDeals, nil
}

type fakeScorer struct {
	ready     bool
	loadOK    bool
	loadErr   error
	scores    map[string]float64
	loads     int
	predicted int
	trained   int
}

func (f *fakeScorer) Ready() bool { return f.ready }

func (f *fakeScorer) Load() (bool, error) {
	f.loads++
	if f.loadErr != nil {
		return false, f.loadErr
	}
	f.ready = f.loadOK
	return f.loadOK, nil
}

func (f *fakeScorer) Predict(listings []*models.Listing) ([]float64, error) {
	if !f.ready {
		return nil, ml.ErrUntrained
	}
	f.predicted += len(listings)
	out := make([]float64, len(listings))
	for i, l := range listings {
		out[i] = f.scores[l.URL]
	}
	return out, nil
}

func (f *fakeScorer) Train([]*models.TrainingRow) (*ml.Metrics, error) {
	f.trained++
	return &ml.Metrics{}, nil
}

func (f *fakeScorer) Save() error { return nil }

type fakeAlerter struct {
	alerted  []string
	summary  int
	totalNew int
	hotCount int
}

func (f *fakeAlerter) HotDeal(_ context.Context, l *models.Listing) int {
	f.alerted = append(f.alerted, l.URL)
	return 1
}

func (f *fakeAlerter) DailySummary(_ context.Context, hot []*models.Listing, totalNew int) map[string]bool {
	f.summary++
	f.hotCount = len(hot)
	f.totalNew = totalNew
	return map[string]bool{"fake": true}
}

func cycleListings() []*models.Listing {
	return []*models.Listing{
		{Platform: "ebay", Title: "LS engine", Price: models.Float(900), URL: "https://e/known"},
		{Platform: "ebay", Title: "LQ4 long block", Price: models.Float(1100), URL: "https://e/hot"},
		{Platform: "craigslist", Title: "5.3 heads", Price: models.Float(250), URL: "https://c/meh"},
	}
}

func testPipelineConfig() PipelineConfig {
	return PipelineConfig{SearchTerms: []string{"LS engine"}, HotDealThreshold: 0.8, HotDealsLimit: 20, MinRetrainRows: 50}
}

func TestScrapeCycleScoresOnlyNewListings(t *testing.T) {
	source := &fakeSource{listings: cycleListings()}
	store := newFakeStore("https://e/known")
	scorer := &fakeScorer{ready: true, scores: map[string]float64{"https://e/hot": 0.9, "https://c/meh": 0.3, "https://e/known": 1}}
	alerts := &fakeAlerter{}

	p := NewPipeline(source, store, scorer, alerts, testPipelineConfig(), newTestLogger())
	res, err := p.RunScrapeCycle(context.Background())
	if err != nil {
		t.Fatalf("RunScrapeCycle: %v", err)
	}
	if res.ID == "" {
		t.Error("cycle has no id")
	}
	if res.Scraped != 3 || res.New != 2 || res.Scored != 2 || res.HotDeals != 1 {
		t.Errorf("result = %+v; want scraped 3, new 2, scored 2, hot 1", res)
	}
	if scorer.predicted != 2 {
		t.Errorf("predicted %d listings; want 2", scorer.predicted)
	}
	if len(alerts.alerted) != 1 || alerts.alerted[0] != "https://e/hot" {
		t.Errorf("alerted %v; want only https://e/hot", alerts.alerted)
	}
	hotID := store.byURL["https://e/hot"]
	if store.scores[hotID] != 0.9 || !store.hot[hotID] {
		t.Errorf("stored score for hot listing = %v (hot %v); want 0.9 hot", store.scores[hotID], store.hot[hotID])
	}
	if store.hot[store.byURL["https://c/meh"]] {
		t.Error("listing scored 0.3 flagged as hot")
	}
}

func TestScrapeCycleThresholdIsInclusive(t *testing.T) {
	source := &fakeSource{listings: cycleListings()[1:2]}
	scorer := &fakeScorer{ready: true, scores: map[string]float64{"https://e/hot": 0.8}}
	alerts := &fakeAlerter{}

	p := NewPipeline(source, newFakeStore(), scorer, alerts, testPipelineConfig(), newTestLogger())
	res, err := p.RunScrapeCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.HotDeals != 1 {
		t.Errorf("score equal to threshold gave %d hot deals; want 1", res.HotDeals)
	}
}

func TestScrapeCycleSkipsScoringWithoutModel(t *testing.T) {
	tests := []struct {
		name   string
		scorer *fakeScorer
	}{
		{"no artifacts", &fakeScorer{}},
		{"broken artifacts", &fakeScorer{loadErr: ml.ErrArtifactMismatch}},
	}
	for _, tt := range tests {
		alerts := &fakeAlerter{}
		p := NewPipeline(&fakeSource{listings: cycleListings()}, newFakeStore(), tt.scorer, alerts, testPipelineConfig(), newTestLogger())
		res, err := p.RunScrapeCycle(context.Background())
		if err != nil {
			t.Errorf("%s: RunScrapeCycle error = %v; want nil", tt.name, err)
			continue
		}
		if res.New != 3 || res.Scored != 0 {
			t.Errorf("%s: result = %+v; want 3 new, 0 scored", tt.name, res)
		}
		if tt.scorer.loads != 1 || tt.scorer.predicted != 0 {
			t.Errorf("%s: loads %d, predicted %d; want 1, 0", tt.name, tt.scorer.loads, tt.scorer.predicted)
		}
		if len(alerts.alerted) != 0 {
			t.Errorf("%s: alerts sent without a model", tt.name)
		}
	}
}

func TestScrapeCycleLoadsModelOnDemand(t *testing.T) {
	scorer := &fakeScorer{loadOK: true, scores: map[string]float64{"https://e/hot": 0.95}}
	source := &fakeSource{listings: cycleListings()}
	p := NewPipeline(source, newFakeStore(), scorer, &fakeAlerter{}, testPipelineConfig(), newTestLogger())

	res, err := p.RunScrapeCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if scorer.loads != 1 || res.Scored != 3 {
		t.Errorf("loads %d, scored %d; want 1, 3", scorer.loads, res.Scored)
	}

	// A second cycle reuses the loaded model.
	source.listings = append(source.listings, &models.Listing{Platform: "ebay", Title: "LS block", URL: "https://e/next"})
	res, err = p.RunScrapeCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if scorer.loads != 1 || res.Scored != 1 {
		t.Errorf("loads %d, scored %d; want 1, 1", scorer.loads, res.Scored)
	}
}

func TestScrapeCycleWithNothingNewDoesNotTouchModel(t *testing.T) {
	source := &fakeSource{listings: cycleListings()[:1]}
	scorer := &fakeScorer{}
	p := NewPipeline(source, newFakeStore("https://e/known"), scorer, &fakeAlerter{}, testPipelineConfig(), newTestLogger())

	res, err := p.RunScrapeCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.New != 0 || scorer.loads != 0 {
		t.Errorf("new %d, loads %d; want 0, 0", res.New, scorer.loads)
	}
}

type failingExporter struct{ calls int }

func (f *failingExporter) WriteListings([]*models.Listing) error {
	f.calls++
	return errors.New("disk full")
}

func (f *failingExporter) Close() error { return nil }

func TestScrapeCycleExportFailureIsNotFatal(t *testing.T) {
	exp := &failingExporter{}
	scorer := &fakeScorer{ready: true, scores: map[string]float64{}}
	p := NewPipeline(&fakeSource{listings: cycleListings()}, newFakeStore(), scorer, &fakeAlerter{}, testPipelineConfig(), newTestLogger()).
		WithExporter(exp)

	res, err := p.RunScrapeCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if exp.calls != 1 || res.New != 3 {
		t.Errorf("export calls %d, new %d; want 1, 3", exp.calls, res.New)
	}
}

func TestDailySummary(t *testing.T) {
	store := newFakeStore()
	store.recent = cycleListings()
	store.hotDeals = []*models.Listing{{Title: "LQ4", DealScore: models.Float(0.9), IsHotDeal: true}}
	alerts := &fakeAlerter{}

	p := NewPipeline(&fakeSource{}, store, &fakeScorer{}, alerts, testPipelineConfig(), newTestLogger())
	if err := p.RunDailySummary(context.Background()); err != nil {
		t.Fatalf("RunDailySummary: %v", err)
	}
	if alerts.summary != 1 || alerts.totalNew != 3 || alerts.hotCount != 1 {
		t.Errorf("summary calls %d, totalNew %d, hot %d; want 1, 3, 1", alerts.summary, alerts.totalNew, alerts.hotCount)
	}
}

func trainingRows(n int) []*models.TrainingRow {
	rows := make([]*models.TrainingRow, n)
	titles := []string{"LQ4 6.0 long block", "LS engine 5.3", "Vortec cylinder heads", "Chevy V8 intake manifold"}
	for i := range rows {
		rows[i] = &models.TrainingRow{Listing: &models.Listing{
			ID:        int64(i + 1),
			Platform:  []string{"ebay", "craigslist", "offerup"}[i%3],
			Title:     titles[i%len(titles)],
			Price:     models.Float(float64(200 + 37*i)),
			Location:  []string{"Newark, NJ", "Houston, TX", ""}[i%3],
			URL:       fmt.Sprintf("https://example.com/%d", i),
			ScrapedAt: time.Date(2024, 5, 1, i%24, 0, 0, 0, time.UTC),
		}}
	}
	return rows
}

func TestRetrainingBelowFloorIsNoop(t *testing.T) {
	store := newFakeStore()
	store.training = trainingRows(40)
	scorer := &fakeScorer{}

	p := NewPipeline(&fakeSource{}, store, scorer, nil, testPipelineConfig(), newTestLogger())
	retrained, err := p.RunRetraining(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if retrained || scorer.trained != 0 {
		t.Errorf("retrained = %v, Train calls %d; want false, 0", retrained, scorer.trained)
	}
}

func TestRetrainingOverwritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := ml.ScorerConfig{
		ModelPath:  filepath.Join(dir, "model.json"),
		ScalerPath: filepath.Join(dir, "scaler.json"),
		Params:     ml.DefaultParams(),
		Labels:     ml.DefaultLabelWeights(),
	}
	cfg.Params.NumEstimators = 10
	cfg.Params.MaxDepth = 3
	cfg.Params.CVFolds = 3

	for _, path := range []string{cfg.ModelPath, cfg.ScalerPath} {
		if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	engineer := features.NewEngineer(features.DefaultLookups())
	scorer := ml.NewDealScorer(engineer, cfg, newTestLogger())
	store := newFakeStore()
	store.training = trainingRows(60)

	p := NewPipeline(&fakeSource{}, store, scorer, nil, testPipelineConfig(), newTestLogger())
	retrained, err := p.RunRetraining(context.Background())
	if err != nil {
		t.Fatalf("RunRetraining: %v", err)
	}
	if !retrained {
		t.Fatal("RunRetraining with 60 rows did not retrain")
	}

	for _, path := range []string{cfg.ModelPath, cfg.ScalerPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) == "stale" {
			t.Errorf("%s was not overwritten", filepath.Base(path))
		}
	}

	fresh := ml.NewDealScorer(engineer, cfg, newTestLogger())
	if ok, err := fresh.Load(); !ok || err != nil {
		t.Errorf("Load after retraining = %v, %v; want true, nil", ok, err)
	}
}
