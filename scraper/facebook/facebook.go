// Package facebook scrapes Facebook Marketplace with a headless browser.
// Marketplace renders results client-side, so plain HTTP fetches return an
// empty shell.
package facebook

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"engine-deals/models"
	"engine-deals/scraper"
	"engine-deals/utils"
)

const (
	platform      = models.PlatformFacebook
	defaultSeller = "Facebook User"
)

// Config holds the Marketplace-specific knobs.
type Config struct {
	BaseURL   string
	ChromeBin string
	Relevance scraper.Relevance
	// PageLoadWait is how long to let the result grid render after
	// navigation and after each scroll.
	PageLoadWait time.Duration
	PageTimeout  time.Duration
	MaxAttempts  int
}

func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://www.facebook.com",
		Relevance:    scraper.DefaultRelevance(),
		PageLoadWait: 4 * time.Second,
		PageTimeout:  90 * time.Second,
		MaxAttempts:  2,
	}
}

// Card is the raw data pulled out of one result tile.
type Card struct {
	Title    string `json:"title"`
	Price    string `json:"price"`
	Location string `json:"location"`
	Image    string `json:"image"`
	URL      string `json:"url"`
}

// Scraper drives a headless Chrome through Marketplace searches.
type Scraper struct {
	cfg      Config
	opts     scraper.Options
	keywords scraper.Keywords
	logger   *utils.Logger
	pacer    *scraper.Pacer
	retry    *utils.RetryConfig
}

func New(opts scraper.Options, chromeBin string) *Scraper {
	cfg := DefaultConfig()
	cfg.ChromeBin = chromeBin
	return NewWithConfig(opts, cfg)
}

func NewWithConfig(opts scraper.Options, cfg Config) *Scraper {
	opts = opts.WithDefaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Scraper{
		cfg:      cfg,
		opts:     opts,
		keywords: opts.Keywords,
		logger:   opts.Logger,
		pacer:    scraper.NewPacer(opts.DelayMin, opts.DelayMax),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   2 * time.Second,
			Logger:      opts.Logger,
		},
	}
}

func (s *Scraper) Platform() string { return platform }

// Scrape opens one browser for the whole run. maxPages is the number of
// scroll rounds per term. A missing Chrome binary is the only error return.
func (s *Scraper) Scrape(ctx context.Context, searchTerms []string, maxPages int) ([]*models.Listing, error) {
	chromeBin := findChromeBinary(s.cfg.ChromeBin)
	if chromeBin == "" {
		return nil, fmt.Errorf("facebook: no chrome binary found")
	}
	s.logger.Info("[facebook] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(s.opts.UserAgent),
		chromedp.ExecPath(chromeBin),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	seen := utils.NewURLSet()
	var all []*models.Listing

	for _, term := range searchTerms {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		cards, err := s.searchTerm(browserCtx, term, maxPages)
		if err != nil {
			s.logger.Warn("[facebook] Stopped %q: %v", term, err)
			continue
		}
		listings := s.cardsToListings(cards, seen)
		s.logger.Debug("[facebook] %d cards, %d listings for %q", len(cards), len(listings), term)
		all = append(all, listings...)
	}

	s.logger.Info("[facebook] Scrape complete, %d listings", len(all))
	return all, nil
}

func (s *Scraper) searchTerm(browserCtx context.Context, term string, rounds int) ([]Card, error) {
	if rounds < 1 {
		rounds = 1
	}
	if err := s.pacer.Wait(browserCtx); err != nil {
		return nil, err
	}

	searchURL := s.cfg.BaseURL + "/marketplace/search/?query=" + url.QueryEscape(term)
	var cards []Card

	err := s.retry.Do(browserCtx, "facebook-search", func() error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()
		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, s.cfg.PageTimeout)
		defer cancelTimeout()

		var location string
		if err := chromedp.Run(tabCtx,
			chromedp.Navigate(searchURL),
			chromedp.Sleep(s.cfg.PageLoadWait),
			chromedp.Location(&location),
		); err != nil {
			return fmt.Errorf("chromedp navigate: %w", err)
		}
		if isLoginWall(location) {
			return fmt.Errorf("%w: redirected to %s", scraper.ErrBlocked, location)
		}

		prev := -1
		for round := 0; round < rounds; round++ {
			var batch []Card
			if err := chromedp.Run(tabCtx,
				chromedp.Evaluate(extractCardsJS, &batch),
			); err != nil {
				return fmt.Errorf("chromedp extract: %w", err)
			}
			cards = batch
			if len(batch) == prev {
				break
			}
			prev = len(batch)
			if round == rounds-1 {
				break
			}
			if err := chromedp.Run(tabCtx,
				chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
				chromedp.Sleep(s.cfg.PageLoadWait),
			); err != nil {
				return fmt.Errorf("chromedp scroll: %w", err)
			}
		}
		return nil
	})
	return cards, err
}

// cardsToListings converts raw cards, dropping tiles without a Marketplace
// item link, duplicates, and off-topic titles.
func (s *Scraper) cardsToListings(cards []Card, seen *utils.URLSet) []*models.Listing {
	var out []*models.Listing
	for _, c := range cards {
		itemURL := scraper.AbsoluteURL(s.cfg.BaseURL, c.URL)
		if !strings.Contains(itemURL, "/marketplace/item/") {
			continue
		}
		if i := strings.Index(itemURL, "?"); i >= 0 {
			itemURL = itemURL[:i]
		}
		title := scraper.CleanText(c.Title)
		if title == "" || !s.cfg.Relevance.Match(title, "") {
			continue
		}
		if !seen.Add(itemURL) {
			continue
		}

		var images []string
		if c.Image != "" {
			images = append(images, c.Image)
		}
		out = append(out, &models.Listing{
			Platform:          platform,
			Title:             title,
			Price:             scraper.ParsePrice(c.Price),
			Location:          scraper.CleanText(c.Location),
			SellerName:        defaultSeller,
			URL:               itemURL,
			ImageURLs:         images,
			ConditionKeywords: s.keywords.Extract(title),
			IsActive:          true,
		})
	}
	return out
}

func isLoginWall(location string) bool {
	return strings.Contains(location, "/login") || strings.Contains(location, "/checkpoint")
}

// findChromeBinary locates Chrome/Chromium, preferring the configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

const extractCardsJS = `
(function() {
	var results = [];
	var seen = {};
	var cards = document.querySelectorAll('[data-testid="marketplace-item"]');
	if (cards.length === 0) {
		cards = document.querySelectorAll('a[href*="/marketplace/item/"]');
	}
	for (var i = 0; i < cards.length; i++) {
		var card = cards[i];
		var link = card.tagName === 'A' ? card : card.querySelector('a[href*="/marketplace/item/"]');
		if (!link || !link.href || seen[link.href]) continue;
		seen[link.href] = true;

		var lines = (card.innerText || '').split('\n')
			.map(function(l) { return l.trim(); })
			.filter(Boolean);
		var price = lines.find(function(l) { return l.indexOf('$') >= 0 || l === 'Free'; }) || '';
		var rest = lines.filter(function(l) { return l !== price; });
		var img = card.querySelector('img');

		results.push({
			title:    rest[0] || '',
			price:    price,
			location: rest[1] || '',
			image:    img ? img.src : '',
			url:      link.href
		});
	}
	return results;
})()
`
