package services

import (
	"context"
	"fmt"

	"engine-deals/ml"
	"engine-deals/models"
	"engine-deals/storage"
	"engine-deals/utils"

	"github.com/google/uuid"
)

// ListingSource fetches raw listings from every registered marketplace.
type ListingSource interface {
	ScrapeAll(ctx context.Context, searchTerms []string) []*models.Listing
}

// Store is the subset of storage.Gateway the jobs use.
type Store interface {
	Insert(ctx context.Context, l *models.Listing) (id int64, inserted bool, err error)
	UpdateScore(ctx context.Context, id int64, score float64, isHotDeal bool) error
	GetForTraining(ctx context.Context) ([]*models.TrainingRow, error)
	GetRecent(ctx context.Context, hours int) ([]*models.Listing, error)
	GetHotDeals(ctx context.Context, limit int) ([]*models.Listing, error)
}

// Scorer is the deal-scoring model.
type Scorer interface {
	Ready() bool
	Load() (bool, error)
	Predict(listings []*models.Listing) ([]float64, error)
	Train(rows []*models.TrainingRow) (*ml.Metrics, error)
	Save() error
}

// Alerter dispatches hot deal alerts and daily summaries.
type Alerter interface {
	HotDeal(ctx context.Context, listing *models.Listing) int
	DailySummary(ctx context.Context, hotDeals []*models.Listing, totalNew int) map[string]bool
}

// PipelineConfig holds the knobs of the recurring jobs.
type PipelineConfig struct {
	SearchTerms       []string
	HotDealThreshold  float64
	GoodDealThreshold float64
	HotDealsLimit     int
	MinRetrainRows    int
	SummaryWindow     int // hours
}

// CycleResult counts what one scrape cycle did.
type CycleResult struct {
	ID       string
	Scraped  int
	Cleaned  int
	New      int
	Scored   int
	HotDeals int
	Alerts   int
}

// Pipeline runs the scrape, summary and retraining jobs.
type Pipeline struct {
	source   ListingSource
	store    Store
	scorer   Scorer
	alerts   Alerter
	cleaner  *Cleaner
	insights *InsightService
	exporter storage.ListingExporter
	cfg      PipelineConfig
	logger   *utils.Logger
}

// NewPipeline wires the jobs. alerts may be nil.
func NewPipeline(source ListingSource, store Store, scorer Scorer, alerts Alerter, cfg PipelineConfig, logger *utils.Logger) *Pipeline {
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = 24
	}
	if cfg.HotDealsLimit <= 0 {
		cfg.HotDealsLimit = 20
	}
	return &Pipeline{
		source:   source,
		store:    store,
		scorer:   scorer,
		alerts:   alerts,
		cleaner:  NewCleaner(logger),
		insights: NewInsightService(logger).WithGoodDealThreshold(cfg.GoodDealThreshold),
		cfg:      cfg,
		logger:   logger,
	}
}

// WithExporter makes every scrape cycle also write its cleaned batch to e.
func (p *Pipeline) WithExporter(e storage.ListingExporter) *Pipeline {
	p.exporter = e
	return p
}

// RunScrapeCycle scrapes every platform, stores new listings, scores them
// and alerts on hot deals. A missing model skips scoring without error.
func (p *Pipeline) RunScrapeCycle(ctx context.Context) (*CycleResult, error) {
	res := &CycleResult{ID: uuid.NewString()}
	p.logger.Info("[pipeline] Scrape cycle %s starting", res.ID)

	raw := p.source.ScrapeAll(ctx, p.cfg.SearchTerms)
	res.Scraped = len(raw)
	cleaned := p.cleaner.Clean(raw)
	res.Cleaned = len(cleaned)

	if p.exporter != nil && len(cleaned) > 0 {
		if err := p.exporter.WriteListings(cleaned); err != nil {
			p.logger.Error("[pipeline] CSV export failed: %v", err)
		}
	}

	var fresh []*models.Listing
	for _, l := range cleaned {
		id, inserted, err := p.store.Insert(ctx, l)
		if err != nil {
			p.logger.Error("[pipeline] Insert %s failed: %v", l.URL, err)
			continue
		}
		if !inserted {
			continue
		}
		l.ID = id
		fresh = append(fresh, l)
	}
	res.New = len(fresh)
	p.logger.Info("[pipeline] Cycle %s: %d scraped, %d new", res.ID, res.Scraped, res.New)

	if len(fresh) == 0 {
		return res, nil
	}

	if !p.ensureModel() {
		p.logger.Info("[pipeline] No trained model available; skipping scoring for cycle %s", res.ID)
		return res, nil
	}

	scores, err := p.scorer.Predict(fresh)
	if err != nil {
		return res, fmt.Errorf("pipeline: score cycle %s: %w", res.ID, err)
	}

	for i, l := range fresh {
		score := scores[i]
		hot := score >= p.cfg.HotDealThreshold
		if err := p.store.UpdateScore(ctx, l.ID, score, hot); err != nil {
			p.logger.Error("[pipeline] Update score for listing %d failed: %v", l.ID, err)
			continue
		}
		l.DealScore = models.Float(score)
		l.IsHotDeal = hot
		res.Scored++

		if !hot {
			continue
		}
		res.HotDeals++
		p.logger.Info("[pipeline] Hot deal %.2f: %s (%s)", score, l.Title, l.URL)
		if p.alerts != nil {
			res.Alerts += p.alerts.HotDeal(ctx, l)
		}
	}

	p.logger.Info("[pipeline] Cycle %s done: %d scored, %d hot deals, %d alerts sent",
		res.ID, res.Scored, res.HotDeals, res.Alerts)
	return res, nil
}

// ensureModel loads the persisted model on first use.
func (p *Pipeline) ensureModel() bool {
	if p.scorer.Ready() {
		return true
	}
	ok, err := p.scorer.Load()
	if err != nil {
		p.logger.Warn("[pipeline] Could not load model: %v", err)
		return false
	}
	return ok
}

// RunDailySummary sends the last day's totals and the current hot deals to
// every channel.
func (p *Pipeline) RunDailySummary(ctx context.Context) error {
	recent, err := p.store.GetRecent(ctx, p.cfg.SummaryWindow)
	if err != nil {
		return fmt.Errorf("pipeline: daily summary: %w", err)
	}
	hot, err := p.store.GetHotDeals(ctx, p.cfg.HotDealsLimit)
	if err != nil {
		return fmt.Errorf("pipeline: daily summary: %w", err)
	}

	p.insights.Log(p.insights.Generate(recent))
	if p.alerts == nil {
		return nil
	}
	results := p.alerts.DailySummary(ctx, hot, len(recent))
	p.logger.Info("[pipeline] Daily summary sent: %d new, %d hot, channels %v", len(recent), len(hot), results)
	return nil
}

// RunRetraining retrains on stored listings and overwrites the artifacts.
// It reports false when there were too few rows to retrain.
func (p *Pipeline) RunRetraining(ctx context.Context) (bool, error) {
	rows, err := p.store.GetForTraining(ctx)
	if err != nil {
		return false, fmt.Errorf("pipeline: retrain: %w", err)
	}
	if len(rows) < p.cfg.MinRetrainRows {
		p.logger.Info("[pipeline] Only %d training rows (need %d); skipping retraining", len(rows), p.cfg.MinRetrainRows)
		return false, nil
	}

	metrics, err := p.scorer.Train(rows)
	if err != nil {
		return false, fmt.Errorf("pipeline: retrain: %w", err)
	}
	if err := p.scorer.Save(); err != nil {
		return false, fmt.Errorf("pipeline: retrain: %w", err)
	}
	p.logger.Info("[pipeline] Retrained on %d rows: test R² %.3f, MAE %.3f", len(rows), metrics.R2, metrics.MAE)
	return true, nil
}
