// Package scraper defines the contract every marketplace adapter satisfies,
// the helpers they share, and the Manager that runs them together.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"engine-deals/config"
	"engine-deals/models"
	"engine-deals/utils"
)

var (
	// ErrBlocked marks a response that looks like an anti-bot wall (403, 429,
	// captcha page). It aborts the current term on the current platform.
	ErrBlocked = errors.New("scraper: request blocked")

	// ErrUnknownPlatform is returned when a platform name is not registered.
	ErrUnknownPlatform = errors.New("scraper: unknown platform")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scraper: http status %d for %s", e.Code, e.URL)
}

// Adapter scrapes one marketplace.
//
// Scrape never fails because of a single item or a single search term: parse
// failures skip the item and fetch failures end the term, keeping whatever
// was collected. A returned error means the adapter could not run at all,
// and any listings returned alongside it are still valid.
type Adapter interface {
	Platform() string
	Scrape(ctx context.Context, searchTerms []string, maxPages int) ([]*models.Listing, error)
}

// Options carries the settings shared by every adapter.
type Options struct {
	Keywords  Keywords
	DelayMin  time.Duration
	DelayMax  time.Duration
	Timeout   time.Duration
	UserAgent string
	Logger    *utils.Logger
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// OptionsFromConfig builds adapter options from the application config.
func OptionsFromConfig(cfg *config.Config, logger *utils.Logger) Options {
	return Options{
		Keywords: Keywords{
			Good: cfg.GoodConditionKeywords,
			Bad:  cfg.BadConditionKeywords,
		},
		DelayMin:  cfg.RequestDelayMin,
		DelayMax:  cfg.RequestDelayMax,
		Timeout:   cfg.RequestTimeout,
		UserAgent: defaultUserAgent,
		Logger:    logger,
	}
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.Logger == nil {
		o.Logger = utils.NewNopLogger()
	}
	return o
}
