package models

import "time"

// Supported marketplaces.
const (
	PlatformCraigslist = "craigslist"
	PlatformEbay       = "ebay"
	PlatformFacebook   = "facebook"
	PlatformOfferUp    = "offerup"
)

// Listing is one observed marketplace posting for an engine part.
//
// URL is the dedup key: two fetches of the same posting resolve to the same
// stored row. ScrapedAt is assigned by storage on insert and never changes.
type Listing struct {
	ID                int64
	Platform          string
	Title             string
	Description       string
	Price             *float64
	Location          string
	SellerName        string
	URL               string
	ImageURLs         []string
	ConditionKeywords []string
	ScrapedAt         time.Time
	IsActive          bool
	DealScore         *float64
	IsHotDeal         bool
}

// HasPrice reports whether the listing carries a positive price.
func (l *Listing) HasPrice() bool {
	return l.Price != nil && *l.Price > 0
}

// PriceOrZero returns the price, or 0 when it is missing.
func (l *Listing) PriceOrZero() float64 {
	if l.Price == nil {
		return 0
	}
	return *l.Price
}

// TrainingRow is a stored listing joined with its optional human label.
type TrainingRow struct {
	Listing *Listing
	// Label is a deal-quality value in [0,1], nil when unlabeled.
	Label *float64
}

// Notification is an append-only record of one alert attempt on one channel.
type Notification struct {
	ID        int64     `db:"id"`
	ListingID int64     `db:"listing_id"`
	Channel   string    `db:"channel"`
	Success   bool      `db:"success"`
	SentAt    time.Time `db:"sent_at"`
}

// InsightReport holds summary analytics over a window of listings.
type InsightReport struct {
	TotalListings      int
	ListingsByPlatform map[string]int
	PricedListings     int
	AveragePrice       float64
	MinPrice           float64
	MaxPrice           float64
	Cheapest           *Listing
	ScoredListings     int
	GoodDeals          int
	HotDeals           []*Listing
	ListingsByLocation map[string]int
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
