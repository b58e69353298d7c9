package scraper

import (
	"context"
	"fmt"
	"sort"

	"engine-deals/models"
	"engine-deals/utils"
)

// healthCheckTerms are broad terms that normally return results on every site.
var healthCheckTerms = []string{"Chevy V8 engine", "LS engine", "engine block"}

// Manager is the adapter registry. It runs every adapter over the same search
// terms and keeps one adapter's failure from affecting the others.
type Manager struct {
	logger      *utils.Logger
	maxPages    int
	concurrency int

	adapters map[string]Adapter
	order    []string
}

// NewManager creates a Manager. Adapters run concurrently up to concurrency;
// each adapter stays sequential internally.
func NewManager(logger *utils.Logger, maxPages, concurrency int, adapters ...Adapter) *Manager {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	m := &Manager{
		logger:      logger,
		maxPages:    maxPages,
		concurrency: concurrency,
		adapters:    make(map[string]Adapter),
	}
	for _, a := range adapters {
		m.Register(a)
	}
	return m
}

// Register adds or replaces the adapter for its platform.
func (m *Manager) Register(a Adapter) {
	name := a.Platform()
	if _, exists := m.adapters[name]; !exists {
		m.order = append(m.order, name)
	}
	m.adapters[name] = a
}

// Platforms returns registered platform names in registration order.
func (m *Manager) Platforms() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// ScrapeAll runs every adapter and concatenates their results in
// registration order.
func (m *Manager) ScrapeAll(ctx context.Context, searchTerms []string) []*models.Listing {
	results := make([][]*models.Listing, len(m.order))

	pool := utils.NewWorkerPool(m.concurrency, 0).OnPanic(func(r any) {
		m.logger.Error("[manager] Adapter worker panicked: %v", r)
	})
	for i, name := range m.order {
		i, a := i, m.adapters[name]
		pool.Submit(func() {
			results[i] = m.run(ctx, a, searchTerms, m.maxPages)
		})
	}
	pool.Wait()

	var all []*models.Listing
	for i, name := range m.order {
		m.logger.Info("[manager] Found %d listings on %s", len(results[i]), name)
		all = append(all, results[i]...)
	}
	m.logger.Info("[manager] Total listings scraped: %d", len(all))
	return all
}

// ScrapeOne runs a single adapter. It fails with ErrUnknownPlatform when the
// name is not registered.
func (m *Manager) ScrapeOne(ctx context.Context, platform string, searchTerms []string) ([]*models.Listing, error) {
	a, ok := m.adapters[platform]
	if !ok {
		known := m.Platforms()
		sort.Strings(known)
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownPlatform, platform, known)
	}
	listings := m.run(ctx, a, searchTerms, m.maxPages)
	m.logger.Info("[manager] Found %d listings on %s", len(listings), platform)
	return listings, nil
}

// TestAll runs each adapter once over a small fixed term set with one page
// and reports whether it returned at least one listing.
func (m *Manager) TestAll(ctx context.Context) map[string]bool {
	counts := make([]int, len(m.order))

	pool := utils.NewWorkerPool(m.concurrency, 0)
	for i, name := range m.order {
		i, a := i, m.adapters[name]
		pool.Submit(func() {
			counts[i] = len(m.run(ctx, a, healthCheckTerms, 1))
		})
	}
	pool.Wait()

	out := make(map[string]bool, len(m.order))
	for i, name := range m.order {
		out[name] = counts[i] > 0
		status := "FAIL"
		if out[name] {
			status = "PASS"
		}
		m.logger.Info("[manager] %s test: %s (%d listings)", name, status, counts[i])
	}
	return out
}

// run calls one adapter, keeping partial results on error and converting a
// panic into an empty result.
func (m *Manager) run(ctx context.Context, a Adapter, terms []string, maxPages int) (listings []*models.Listing) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("[manager] %s adapter panicked: %v", a.Platform(), r)
			listings = nil
		}
	}()

	m.logger.Info("[manager] Scraping %s...", a.Platform())
	listings, err := a.Scrape(ctx, terms, maxPages)
	if err != nil {
		m.logger.Error("[manager] Error scraping %s: %v (keeping %d listings)", a.Platform(), err, len(listings))
	}
	return listings
}
