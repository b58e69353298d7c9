package ebay

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"engine-deals/models"
	"engine-deals/scraper"
	"engine-deals/utils"
)

const platform = models.PlatformEbay

// Config holds the eBay-specific knobs. The promo markers follow eBay's
// current result markup and need tuning when it changes.
type Config struct {
	BaseURL           string
	Relevance         scraper.Relevance
	PromoTitleMarkers []string
	PromoURLMarkers   []string
	BlockMarkers      []string
	SearchParams      url.Values
}

// DefaultConfig returns settings for www.ebay.com.
func DefaultConfig() Config {
	return Config{
		BaseURL:           "https://www.ebay.com",
		Relevance:         scraper.DefaultRelevance(),
		PromoTitleMarkers: []string{"SPONSORED", "SHOP ON EBAY", "OPENS IN A NEW WINDOW"},
		PromoURLMarkers:   []string{"itmmeta="},
		BlockMarkers:      []string{"pardon our interruption", "captcha"},
		SearchParams: url.Values{
			"_sop":             {"10"},
			"LH_ItemCondition": {"3000|1500|2500"},
			"_udlo":            {"50"},
			"_udhi":            {"10000"},
		},
	}
}

// Scraper scrapes eBay search result pages.
type Scraper struct {
	cfg      Config
	keywords scraper.Keywords
	logger   *utils.Logger
	session  *scraper.Session
}

// New creates an eBay Scraper with the default config.
func New(opts scraper.Options) *Scraper {
	return NewWithConfig(opts, DefaultConfig())
}

// NewWithConfig creates an eBay Scraper.
func NewWithConfig(opts scraper.Options, cfg Config) *Scraper {
	opts = opts.WithDefaults()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Scraper{
		cfg:      cfg,
		keywords: opts.Keywords,
		logger:   opts.Logger,
		session:  scraper.NewSession(opts, cfg.BlockMarkers),
	}
}

func (s *Scraper) Platform() string { return platform }

// Scrape walks up to maxPages result pages per term.
func (s *Scraper) Scrape(ctx context.Context, searchTerms []string, maxPages int) ([]*models.Listing, error) {
	seen := utils.NewURLSet()
	var all []*models.Listing

	for _, term := range searchTerms {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		listings, err := s.scrapeTerm(ctx, term, maxPages, seen)
		all = append(all, listings...)
		if err != nil {
			s.logger.Warn("[ebay] Stopped %q after %d listings: %v", term, len(listings), err)
		}
	}

	s.logger.Info("[ebay] Scrape complete, %d listings", len(all))
	return all, nil
}

func (s *Scraper) scrapeTerm(ctx context.Context, term string, maxPages int, seen *utils.URLSet) ([]*models.Listing, error) {
	var listings []*models.Listing
	searchURL := s.cfg.BaseURL + "/sch/i.html"

	for page := 1; page <= maxPages; page++ {
		params := url.Values{}
		for k, v := range s.cfg.SearchParams {
			params[k] = v
		}
		params.Set("_nkw", term)
		params.Set("_pgn", strconv.Itoa(page))

		doc, err := s.session.Document(ctx, searchURL, params)
		if err != nil {
			return listings, err
		}

		items := doc.Find("li.s-item")
		s.logger.Debug("[ebay] Found %d items on page %d for %q", items.Length(), page, term)
		if items.Length() == 0 {
			break
		}

		items.Each(func(_ int, item *goquery.Selection) {
			l, err := s.parseItem(item)
			if err != nil {
				s.logger.Debug("[ebay] Skipping item: %v", err)
				return
			}
			if l == nil {
				return
			}
			if !s.cfg.Relevance.Match(l.Title, l.Description) {
				s.logger.Debug("[ebay] Listing not relevant: %s", l.Title)
				return
			}
			if !seen.Add(l.URL) {
				return
			}
			listings = append(listings, l)
		})
	}
	return listings, nil
}

var errNoLink = errors.New("ebay: item has no link")

// parseItem converts one result row. A nil listing with nil error means the
// row is promotional.
func (s *Scraper) parseItem(item *goquery.Selection) (*models.Listing, error) {
	link := item.Find("a.s-item__link").First()
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, errNoLink
	}

	title := scraper.CleanText(item.Find(".s-item__title").First().Text())
	if title == "" {
		title = scraper.CleanText(link.Text())
	}
	if s.isPromotional(title, href) {
		s.logger.Debug("[ebay] Skipping promotional item: %s", title)
		return nil, nil
	}

	condition := scraper.CleanText(item.Find(".SECONDARY_INFO").First().Text())

	seller := scraper.CleanText(item.Find(".s-item__seller-info-text").First().Text())
	if seller == "" {
		seller = "Unknown"
	}

	var images []string
	img := item.Find("img.s-item__image, .s-item__image img").First()
	if src, ok := img.Attr("src"); ok && src != "" {
		images = append(images, src)
	}

	return &models.Listing{
		Platform:          platform,
		Title:             title,
		Description:       condition,
		Price:             scraper.ParsePrice(item.Find(".s-item__price").First().Text()),
		Location:          scraper.CleanText(item.Find(".s-item__location").First().Text()),
		SellerName:        seller,
		URL:               strings.TrimSpace(href),
		ImageURLs:         images,
		ConditionKeywords: s.keywords.Extract(title + " " + condition),
		IsActive:          true,
	}, nil
}

func (s *Scraper) isPromotional(title, href string) bool {
	upper := strings.ToUpper(title)
	if scraper.ContainsAny(upper, s.cfg.PromoTitleMarkers) {
		return true
	}
	if !strings.HasPrefix(href, s.cfg.BaseURL+"/itm/") {
		return true
	}
	return scraper.ContainsAny(href, s.cfg.PromoURLMarkers)
}
