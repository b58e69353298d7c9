package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"engine-deals/config"
	"engine-deals/utils"

	"github.com/spf13/pflag"
)

func main() {
	var (
		scrapeOnce = pflag.Bool("scrape", false, "run one scrape-and-score cycle")
		train      = pflag.Bool("train", false, "train the deal model on stored listings")
		monitor    = pflag.Bool("monitor", false, "run the scheduler until interrupted")
		test       = pflag.Bool("test", false, "check scrapers, database, model and notification channels")
		platform   = pflag.String("platform", "", "scrape a single platform (craigslist, ebay, facebook, offerup)")
		summary    = pflag.Bool("summary", false, "print insights for the last 24 hours")
		label      = pflag.Int64("label", 0, "listing id to label as training data")
		good       = pflag.Bool("good", false, "with --label: mark the listing as a good deal")
		bad        = pflag.Bool("bad", false, "with --label: mark the listing as a bad deal")
		rating     = pflag.Int("rating", 0, "with --label: deal rating from 1 to 5")
		notes      = pflag.String("notes", "", "with --label: free-text notes")
	)
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		utils.NewLogger().Error("[main] %v", err)
		os.Exit(1)
	}
	logger := utils.NewLoggerWith(cfg.LogLevel, cfg.LogEncoding)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *label != 0 && *good == *bad {
		logger.Error("[main] --label needs exactly one of --good or --bad")
		os.Exit(2)
	}
	if !*scrapeOnce && !*train && !*monitor && !*test && *platform == "" && !*summary && *label == 0 {
		fmt.Fprintln(os.Stderr, "Engine Deals: marketplace listing aggregation and deal scoring")
		fmt.Fprintln(os.Stderr)
		pflag.Usage()
		os.Exit(2)
	}

	logger.Info("=== Engine Deals starting ===")
	logger.Info("Config: %d search terms | pages: %d | concurrency: %d | delay: %v-%v | db: %s",
		len(cfg.SearchTerms), cfg.MaxPagesPerSite, cfg.MaxConcurrency, cfg.RequestDelayMin, cfg.RequestDelayMax, cfg.DatabaseDriver)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("[main] Startup failed: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := run(ctx, a, *scrapeOnce, *train, *monitor, *test, *platform, *summary, *label, *good, *rating, *notes); err != nil {
		logger.Error("[main] %v", err)
		a.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app, scrapeOnce, train, monitor, test bool, platform string,
	summary bool, label int64, good bool, rating int, notes string) error {
	switch {
	case label != 0:
		return a.runLabel(ctx, label, good, rating, notes)
	case test:
		if !a.runHealthCheck(ctx) {
			return fmt.Errorf("health check failed")
		}
		return nil
	case platform != "":
		return a.runPlatform(ctx, platform)
	case train:
		return a.runTrain(ctx)
	case summary:
		return a.runSummary(ctx)
	case scrapeOnce:
		return a.runScrape(ctx)
	case monitor:
		return a.runMonitor(ctx)
	}
	return nil
}
