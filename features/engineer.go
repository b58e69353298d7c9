// Package features turns listings into the numeric table the deal scorer
// trains and predicts on.
package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"engine-deals/models"
)

// Column names read outside this package.
const (
	ColPrice       = "price"
	ColLogPrice    = "log_price"
	ColCondition   = "condition_score"
	ColDistance    = "estimated_distance"
	ColReliability = "platform_reliability"
	ColPriority    = "lq4_priority_score"
)

// record is one listing with the derived text every extractor shares.
type record struct {
	listing   *models.Listing
	title     string
	desc      string
	combined  string
	scrapedAt time.Time
}

// batch holds values derived from the whole input.
type batch struct {
	now       time.Time
	platforms []string
}

type emitFunc func(name string, value float64)

// extractor adds one group of columns for a record. Extractors are
// independent of each other.
type extractor func(b *batch, r *record, emit emitFunc)

// Engineer is the feature transform. It is safe for concurrent use.
type Engineer struct {
	lookups    Lookups
	now        func() time.Time
	extractors []extractor
}

// NewEngineer creates an Engineer over the given lookups.
func NewEngineer(lookups Lookups) *Engineer {
	e := &Engineer{lookups: lookups, now: time.Now}
	e.extractors = []extractor{
		priceFeatures,
		textFeatures,
		conditionFeatures,
		e.locationFeatures,
		e.platformFeatures,
		temporalFeatures,
		domainFeatures,
	}
	return e
}

// WithClock replaces the wall clock used by temporal features.
func (e *Engineer) WithClock(now func() time.Time) *Engineer {
	e.now = now
	return e
}

// Lookups returns the reference data the Engineer was built with.
func (e *Engineer) Lookups() Lookups { return e.lookups }

// Transform builds one row per listing. The output depends only on the
// listings and the clock.
func (e *Engineer) Transform(listings []*models.Listing) *Table {
	b := &batch{now: e.now(), platforms: observedPlatforms(listings)}

	var columns []string
	rows := make([][]float64, 0, len(listings))

	for i, l := range listings {
		r := newRecord(l, b.now)
		row := make([]float64, 0, len(columns))
		emit := func(name string, v float64) {
			if i == 0 {
				columns = append(columns, name)
			}
			row = append(row, v)
		}
		for _, x := range e.extractors {
			x(b, r, emit)
		}
		rows = append(rows, row)
	}
	return newTable(columns, rows)
}

func newRecord(l *models.Listing, now time.Time) *record {
	scrapedAt := l.ScrapedAt
	if scrapedAt.IsZero() {
		scrapedAt = now
	}
	return &record{
		listing:   l,
		title:     l.Title,
		desc:      l.Description,
		combined:  strings.ToLower(l.Title + " " + l.Description),
		scrapedAt: scrapedAt,
	}
}

func observedPlatforms(listings []*models.Listing) []string {
	seen := make(map[string]struct{})
	for _, l := range listings {
		seen[l.Platform] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func priceFeatures(_ *batch, r *record, emit emitFunc) {
	price := r.listing.PriceOrZero()
	emit(ColPrice, price)
	emit(ColLogPrice, math.Log1p(price))
	emit("price_per_word", price/float64(len(strings.Fields(r.title))+1))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
