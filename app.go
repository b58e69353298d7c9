package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"engine-deals/config"
	"engine-deals/features"
	"engine-deals/ml"
	"engine-deals/notify"
	"engine-deals/scheduler"
	"engine-deals/scraper"
	"engine-deals/scraper/craigslist"
	"engine-deals/scraper/ebay"
	"engine-deals/scraper/facebook"
	"engine-deals/scraper/offerup"
	"engine-deals/services"
	"engine-deals/storage"
	"engine-deals/utils"
)

// app holds the wired components shared by every CLI mode.
type app struct {
	cfg        *config.Config
	logger     *utils.Logger
	store      *storage.SQLStore
	manager    *scraper.Manager
	engineer   *features.Engineer
	scorer     *ml.DealScorer
	dispatcher *notify.Dispatcher
	pipeline   *services.Pipeline
}

func newApp(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*app, error) {
	store, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	lookups := features.DefaultLookups()
	if cfg.DistanceTablePath != "" {
		table, err := features.LoadDistanceTable(cfg.DistanceTablePath)
		if err != nil {
			store.Close()
			return nil, err
		}
		lookups.Distances = table
		logger.Info("[main] Distance table loaded from %s", cfg.DistanceTablePath)
	}
	engineer := features.NewEngineer(lookups)

	opts := scraper.OptionsFromConfig(cfg, logger)
	manager := scraper.NewManager(logger, cfg.MaxPagesPerSite, cfg.MaxConcurrency,
		craigslist.New(opts),
		ebay.New(opts),
		facebook.New(opts, cfg.ChromeBin),
		offerup.New(opts),
	)

	scorer := ml.NewDealScorer(engineer, ml.ScorerConfig{
		ModelPath:  cfg.ModelPath,
		ScalerPath: cfg.ScalerPath,
		Params:     ml.DefaultParams(),
		Labels:     ml.DefaultLabelWeights(),
	}, logger)

	dispatcher := notify.FromConfig(cfg, store, logger)
	logger.Info("[main] Notification channels: %v", dispatcher.Channels())

	pipeline := services.NewPipeline(manager, store, scorer, dispatcher, services.PipelineConfig{
		SearchTerms:       cfg.SearchTerms,
		HotDealThreshold:  cfg.HotDealThreshold,
		GoodDealThreshold: cfg.GoodDealThreshold,
		HotDealsLimit:     cfg.HotDealsLimit,
		MinRetrainRows:    cfg.MinRetrainRows,
	}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		manager:    manager,
		engineer:   engineer,
		scorer:     scorer,
		dispatcher: dispatcher,
		pipeline:   pipeline,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("[main] Closing database: %v", err)
	}
}

// runScrape runs one full cycle and exports the cleaned batch to CSV.
func (a *app) runScrape(ctx context.Context) error {
	csvWriter, err := storage.NewCSVWriter(a.cfg.CSVOutputPath)
	if err != nil {
		return err
	}
	defer csvWriter.Close()

	res, err := a.pipeline.WithExporter(csvWriter).RunScrapeCycle(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Cycle %s: %d scraped, %d new, %d scored, %d hot deals, %d alerts sent\n",
		res.ID, res.Scraped, res.New, res.Scored, res.HotDeals, res.Alerts)
	fmt.Printf("Raw listings saved to %s\n", a.cfg.CSVOutputPath)
	return nil
}

// runPlatform scrapes a single platform without storing anything.
func (a *app) runPlatform(ctx context.Context, platform string) error {
	listings, err := a.manager.ScrapeOne(ctx, platform, a.cfg.SearchTerms)
	if err != nil {
		return err
	}
	listings = services.NewCleaner(a.logger).Clean(listings)

	csvWriter, err := storage.NewCSVWriter(a.cfg.CSVOutputPath)
	if err != nil {
		return err
	}
	defer csvWriter.Close()
	if err := csvWriter.WriteListings(listings); err != nil {
		return err
	}

	fmt.Printf("%s: %d listings (saved to %s)\n", platform, len(listings), a.cfg.CSVOutputPath)
	for i, l := range listings {
		if i == 10 {
			fmt.Printf("  ... and %d more\n", len(listings)-10)
			break
		}
		price := "n/a"
		if l.HasPrice() {
			price = fmt.Sprintf("$%.2f", *l.Price)
		}
		fmt.Printf("  %-60.60s %10s  %s\n", l.Title, price, l.URL)
	}
	return nil
}

func (a *app) runTrain(ctx context.Context) error {
	rows, err := a.store.GetForTraining(ctx)
	if err != nil {
		return err
	}
	metrics, err := a.scorer.Train(rows)
	if err != nil {
		return err
	}
	if err := a.scorer.Save(); err != nil {
		return err
	}

	fmt.Printf("Trained on %d rows, tested on %d", metrics.TrainRows, metrics.TestRows)
	if metrics.SyntheticData {
		fmt.Print(" (synthetic training set)")
	} else if metrics.SyntheticLabels {
		fmt.Print(" (heuristic labels)")
	}
	fmt.Printf("\nMSE %.4f  MAE %.4f  R² %.3f  CV R² %.3f ± %.3f\n",
		metrics.MSE, metrics.MAE, metrics.R2, metrics.CVR2Mean, metrics.CVR2Std)
	fmt.Println("Top features:")
	for i, imp := range metrics.Importances {
		if i == 10 {
			break
		}
		fmt.Printf("  %-28s %.4f\n", imp.Feature, imp.Value)
	}
	return nil
}

func (a *app) runSummary(ctx context.Context) error {
	recent, err := a.store.GetRecent(ctx, 24)
	if err != nil {
		return err
	}
	hot, err := a.store.GetHotDeals(ctx, a.cfg.HotDealsLimit)
	if err != nil {
		return err
	}
	insights := services.NewInsightService(a.logger).WithGoodDealThreshold(a.cfg.GoodDealThreshold)
	report := insights.Generate(recent)
	// The report's hot deals come from the whole store, not just the last day.
	if len(hot) > 5 {
		hot = hot[:5]
	}
	report.HotDeals = hot
	insights.Print(report)
	return nil
}

func (a *app) runLabel(ctx context.Context, id int64, good bool, rating int, notes string) error {
	var r *int
	if rating != 0 {
		r = &rating
	}
	if err := a.store.AddTrainingLabel(ctx, id, good, r, notes); err != nil {
		return err
	}
	fmt.Printf("Labeled listing %d (good=%v, rating=%d)\n", id, good, rating)
	return nil
}

// runHealthCheck exercises every component once and reports pass/fail.
func (a *app) runHealthCheck(ctx context.Context) bool {
	healthy := true
	report := func(name string, ok bool) {
		status := "\033[1;32mOK\033[0m"
		if !ok {
			status = "\033[1;31mFAIL\033[0m"
			healthy = false
		}
		fmt.Printf("  %-24s %s\n", name, status)
	}

	fmt.Println("Database:")
	err := a.store.Ping(ctx)
	if err == nil {
		_, err = a.store.GetRecent(ctx, 1)
	}
	report("round trip", err == nil)

	fmt.Println("Scrapers:")
	scrapers := a.manager.TestAll(ctx)
	for _, name := range sortedKeys(scrapers) {
		report(name, scrapers[name])
	}

	fmt.Println("Model:")
	report("training smoke", a.modelSmokeTest())

	fmt.Println("Notifications:")
	channels := a.dispatcher.TestAll(ctx)
	if len(channels) == 0 {
		fmt.Println("  no channels configured")
	}
	for _, name := range sortedKeys(channels) {
		report(name, channels[name])
	}
	return healthy
}

// modelSmokeTest trains a throwaway model on the synthetic training set and
// scores one listing with it. The configured artifacts are not touched.
func (a *app) modelSmokeTest() bool {
	dir, err := os.MkdirTemp("", "engine-deals-model")
	if err != nil {
		a.logger.Error("[main] Model smoke test: %v", err)
		return false
	}
	defer os.RemoveAll(dir)

	params := ml.DefaultParams()
	params.NumEstimators = 20
	params.SyntheticRows = 200
	scorer := ml.NewDealScorer(a.engineer, ml.ScorerConfig{
		ModelPath:  dir + "/model.json",
		ScalerPath: dir + "/scaler.json",
		Params:     params,
		Labels:     ml.DefaultLabelWeights(),
	}, utils.NewNopLogger())

	if _, err := scorer.Train(nil); err != nil {
		a.logger.Error("[main] Model smoke test: %v", err)
		return false
	}
	if err := scorer.Save(); err != nil {
		a.logger.Error("[main] Model smoke test: %v", err)
		return false
	}
	if ok, err := scorer.Load(); !ok || err != nil {
		a.logger.Error("[main] Model smoke test: reload failed: %v", err)
		return false
	}
	return true
}

// runMonitor starts the scheduler and blocks until ctx is cancelled.
func (a *app) runMonitor(ctx context.Context) error {
	sched := scheduler.New(a.pipeline, scheduler.Config{
		ScrapeInterval:  a.cfg.ScrapeInterval,
		SummarySchedule: a.cfg.DailySummarySchedule,
		RetrainSchedule: a.cfg.RetrainSchedule,
		Tick:            a.cfg.SchedulerTick,
		StopTimeout:     a.cfg.SchedulerStopTimeout,
	}, a.logger)

	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("[main] Monitoring; press Ctrl+C to stop")
	<-ctx.Done()
	sched.Stop()
	return nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
