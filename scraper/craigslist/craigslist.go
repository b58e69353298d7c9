package craigslist

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"engine-deals/models"
	"engine-deals/scraper"
	"engine-deals/utils"
)

const (
	platform = models.PlatformCraigslist

	// Craigslist pagination past the second page is unreliable.
	pageCap     = 2
	resultsPage = 120
)

// Config holds the Craigslist-specific knobs.
type Config struct {
	BaseURLs     []string
	Relevance    scraper.Relevance
	BlockMarkers []string
	// FetchDetails visits each posting for its body text and images.
	FetchDetails bool
}

// DefaultConfig searches the parts category of five large metro sites.
func DefaultConfig() Config {
	return Config{
		BaseURLs: []string{
			"https://newyork.craigslist.org",
			"https://losangeles.craigslist.org",
			"https://chicago.craigslist.org",
			"https://houston.craigslist.org",
			"https://phoenix.craigslist.org",
		},
		Relevance:    scraper.DefaultRelevance(),
		BlockMarkers: []string{"this ip has been automatically blocked"},
		FetchDetails: true,
	}
}

// Scraper scrapes Craigslist auto parts searches.
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
	return &Scraper{
		cfg:      cfg,
		keywords: opts.Keywords,
		logger:   opts.Logger,
		session:  scraper.NewSession(opts, cfg.BlockMarkers),
	}
}

func (s *Scraper) Platform() string { return platform }

// Scrape searches every configured site for every term. maxPages is capped at 2.
func (s *Scraper) Scrape(ctx context.Context, searchTerms []string, maxPages int) ([]*models.Listing, error) {
	if maxPages > pageCap {
		maxPages = pageCap
	}
	seen := utils.NewURLSet()
	var all []*models.Listing

	for _, base := range s.cfg.BaseURLs {
		base = strings.TrimRight(base, "/")
		for _, term := range searchTerms {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			listings, err := s.scrapeTerm(ctx, base, term, maxPages, seen)
			all = append(all, listings...)
			if err != nil {
				s.logger.Warn("[craigslist] Stopped %q on %s after %d listings: %v", term, base, len(listings), err)
			}
		}
	}

	s.logger.Info("[craigslist] Scrape complete, %d listings", len(all))
	return all, nil
}

func (s *Scraper) scrapeTerm(ctx context.Context, base, term string, maxPages int, seen *utils.URLSet) ([]*models.Listing, error) {
	var listings []*models.Listing

	for page := 0; page < maxPages; page++ {
		params := url.Values{"query": {term}, "sort": {"date"}}
		if page > 0 {
			params.Set("s", strconv.Itoa(page*resultsPage))
		}

		doc, err := s.session.Document(ctx, base+"/search/pts", params)
		if err != nil {
			return listings, err
		}

		rows := doc.Find("li.cl-static-search-result")
		if rows.Length() == 0 {
			s.logger.Debug("[craigslist] No results on page %d for %q", page, term)
			break
		}

		var pageListings []*models.Listing
		rows.Each(func(_ int, row *goquery.Selection) {
			l := s.parseRow(row, base)
			if l == nil || !seen.Add(l.URL) {
				return
			}
			pageListings = append(pageListings, l)
		})

		for _, l := range pageListings {
			if s.cfg.FetchDetails {
				s.enrich(ctx, l)
			}
			if !s.cfg.Relevance.Match(l.Title, l.Description) {
				continue
			}
			listings = append(listings, l)
		}
	}
	return listings, nil
}

var trailingPlace = regexp.MustCompile(`([A-Za-z\s]+)$`)

func (s *Scraper) parseRow(row *goquery.Selection, base string) *models.Listing {
	link := row.Find("a[href]").First()
	href, _ := link.Attr("href")
	if strings.TrimSpace(href) == "" {
		return nil
	}
	postURL := scraper.AbsoluteURL(base, href)

	// Results from "nearby areas" point at other sites; those are scraped
	// from their own base URL.
	if !strings.HasPrefix(postURL, base+"/") {
		return nil
	}

	title := scraper.CleanText(row.Find(".title").First().Text())
	if title == "" {
		title = scraper.CleanText(link.Text())
	}
	if title == "" {
		return nil
	}

	priceText := row.Find(".price").First().Text()
	if strings.TrimSpace(priceText) == "" {
		if i := strings.Index(title, "$"); i >= 0 {
			priceText = title[i:]
		}
	}

	location := scraper.CleanText(row.Find(".location").First().Text())
	if location == "" {
		if parts := strings.Split(title, "$"); len(parts) > 1 {
			if m := trailingPlace.FindStringSubmatch(parts[len(parts)-1]); m != nil {
				location = strings.TrimSpace(m[1])
			}
		}
	}

	return &models.Listing{
		Platform:          platform,
		Title:             title,
		Price:             scraper.ParsePrice(priceText),
		Location:          location,
		SellerName:        "Anonymous",
		URL:               postURL,
		ImageURLs:         []string{},
		ConditionKeywords: s.keywords.Extract(title),
		IsActive:          true,
	}
}

// enrich loads the posting page. On failure the listing keeps placeholder
// details.
func (s *Scraper) enrich(ctx context.Context, l *models.Listing) {
	doc, err := s.session.Document(ctx, l.URL, nil)
	if err != nil {
		s.logger.Debug("[craigslist] Detail page failed for %s: %v", l.URL, err)
		l.SellerName = "Unknown"
		return
	}

	body := doc.Find("section#postingbody").First()
	body.Find(".print-information").Remove()
	l.Description = scraper.CleanText(body.Text())

	var images []string
	doc.Find("div.gallery img, #thumbs a").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok {
			src, ok = sel.Attr("href")
		}
		if ok && src != "" {
			images = append(images, src)
		}
	})
	if images != nil {
		l.ImageURLs = images
	}

	l.ConditionKeywords = s.keywords.Extract(l.Title + " " + l.Description)
}
