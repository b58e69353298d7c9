package services

import (
	"math"
	"strings"
	"unicode"

	"engine-deals/models"
	"engine-deals/utils"
)

// sellerPlaceholders is the seller name used when an adapter could not find one.
var sellerPlaceholders = map[string]string{
	models.PlatformCraigslist: "Unknown",
	models.PlatformEbay:       "Unknown",
	models.PlatformFacebook:   "Facebook User",
	models.PlatformOfferUp:    "OfferUp User",
}

// Cleaner normalises a scraped batch before it is persisted.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean normalises text fields, drops rows with no URL or title and keeps the
// first occurrence of each URL. Input listings are modified in place.
func (c *Cleaner) Clean(raw []*models.Listing) []*models.Listing {
	seen := make(map[string]struct{})
	result := make([]*models.Listing, 0, len(raw))

	for _, l := range raw {
		if l == nil {
			continue
		}
		l.URL = strings.TrimSpace(l.URL)
		if l.URL == "" {
			c.logger.Warn("[cleaner] Dropping listing with empty URL: %s", l.Title)
			continue
		}
		l.Title = normaliseText(l.Title)
		if l.Title == "" {
			c.logger.Warn("[cleaner] Dropping listing with empty title: %s", l.URL)
			continue
		}

		if _, dup := seen[l.URL]; dup {
			c.logger.Debug("[cleaner] Duplicate URL skipped: %s", l.URL)
			continue
		}
		seen[l.URL] = struct{}{}

		l.Platform = normalisePlatform(l.Platform)
		l.Description = normaliseText(l.Description)
		l.Location = normaliseText(l.Location)
		l.SellerName = normaliseText(l.SellerName)
		if l.SellerName == "" {
			l.SellerName = sellerPlaceholder(l.Platform)
		}
		if l.Price != nil && (*l.Price < 0 || math.IsNaN(*l.Price) || math.IsInf(*l.Price, 0)) {
			l.Price = nil
		}
		l.ImageURLs = compact(l.ImageURLs)
		l.ConditionKeywords = compact(l.ConditionKeywords)

		result = append(result, l)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(raw), len(result), len(raw)-len(result))
	return result
}

func sellerPlaceholder(platform string) string {
	if p, ok := sellerPlaceholders[platform]; ok {
		return p
	}
	return "Unknown"
}

// compact trims entries and drops blanks and repeats, keeping order.
func compact(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

func normalisePlatform(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
