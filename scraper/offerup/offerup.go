package offerup

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"engine-deals/models"
	"engine-deals/scraper"
	"engine-deals/utils"
)

const (
	platform      = models.PlatformOfferUp
	defaultSeller = "OfferUp User"
)

// Config holds the OfferUp-specific knobs.
type Config struct {
	BaseURL      string
	Relevance    scraper.Relevance
	BlockMarkers []string
	// PromoURLMarkers drop promoted cards that link outside item pages.
	PromoURLMarkers []string
	FetchDetails    bool
}

func DefaultConfig() Config {
	return Config{
		BaseURL:         "https://offerup.com",
		Relevance:       scraper.DefaultRelevance(),
		BlockMarkers:    []string{"captcha", "access denied"},
		PromoURLMarkers: []string{"/promoted/", "utm_source=ad"},
		FetchDetails:    true,
	}
}

// Scraper scrapes OfferUp search pages.
type Scraper struct {
	cfg      Config
	keywords scraper.Keywords
	logger   *utils.Logger
	session  *scraper.Session
}

func New(opts scraper.Options) *Scraper {
	return NewWithConfig(opts, DefaultConfig())
}

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
			s.logger.Warn("[offerup] Stopped %q after %d listings: %v", term, len(listings), err)
		}
	}

	s.logger.Info("[offerup] Scrape complete, %d listings", len(all))
	return all, nil
}

func (s *Scraper) scrapeTerm(ctx context.Context, term string, maxPages int, seen *utils.URLSet) ([]*models.Listing, error) {
	var listings []*models.Listing

	for page := 1; page <= maxPages; page++ {
		params := url.Values{
			"q":    {term},
			"page": {strconv.Itoa(page)},
			"sort": {"date"},
		}
		doc, err := s.session.Document(ctx, s.cfg.BaseURL+"/search/", params)
		if err != nil {
			return listings, err
		}

		cards := doc.Find(`div[data-testid="item-card"]`)
		if cards.Length() == 0 {
			cards = doc.Find(`a[href*="/item/"]`)
		}
		if cards.Length() == 0 {
			break
		}

		var pageListings []*models.Listing
		cards.Each(func(_ int, card *goquery.Selection) {
			l := s.parseCard(card)
			if l == nil || !seen.Add(l.URL) {
				return
			}
			pageListings = append(pageListings, l)
		})

		for _, l := range pageListings {
			if s.cfg.FetchDetails {
				s.enrich(ctx, l)
			}
			if s.cfg.Relevance.Match(l.Title, l.Description) {
				listings = append(listings, l)
			}
		}
	}
	return listings, nil
}

func (s *Scraper) parseCard(card *goquery.Selection) *models.Listing {
	link := card
	if goquery.NodeName(card) != "a" {
		link = card.Find("a[href]").First()
	}
	href, _ := link.Attr("href")
	if strings.TrimSpace(href) == "" {
		return nil
	}
	itemURL := scraper.AbsoluteURL(s.cfg.BaseURL, href)
	if !strings.Contains(itemURL, "/item/") || scraper.ContainsAny(itemURL, s.cfg.PromoURLMarkers) {
		return nil
	}

	title := scraper.CleanText(card.Find(`h2, span[class*="title"]`).First().Text())
	if title == "" {
		title, _ = link.Attr("title")
		title = scraper.CleanText(title)
	}
	if title == "" {
		title = scraper.CleanText(link.Text())
	}
	if title == "" {
		return nil
	}

	priceText := card.Find(`span[class*="price"]`).First().Text()
	if priceText == "" {
		card.Find("span").EachWithBreak(func(_ int, sp *goquery.Selection) bool {
			if t := sp.Text(); strings.Contains(t, "$") {
				priceText = t
				return false
			}
			return true
		})
	}

	var images []string
	if src, ok := card.Find("img").First().Attr("src"); ok && src != "" {
		images = append(images, src)
	}

	return &models.Listing{
		Platform:          platform,
		Title:             title,
		Price:             scraper.ParsePrice(priceText),
		Location:          scraper.CleanText(card.Find(`span[class*="location"]`).First().Text()),
		SellerName:        defaultSeller,
		URL:               itemURL,
		ImageURLs:         images,
		ConditionKeywords: s.keywords.Extract(title),
		IsActive:          true,
	}
}

func (s *Scraper) enrich(ctx context.Context, l *models.Listing) {
	doc, err := s.session.Document(ctx, l.URL, nil)
	if err != nil {
		s.logger.Debug("[offerup] Detail page failed for %s: %v", l.URL, err)
		return
	}

	l.Description = scraper.CleanText(doc.Find(`div[class*="description"], p[class*="description"]`).First().Text())
	if seller := scraper.CleanText(doc.Find(`span[class*="seller"], div[class*="seller"]`).First().Text()); seller != "" {
		l.SellerName = seller
	}
	l.ConditionKeywords = s.keywords.Extract(l.Title + " " + l.Description)
}
