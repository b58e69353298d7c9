package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"engine-deals/models"
	"engine-deals/utils"
)

const topHotDeals = 5

type InsightService struct {
	logger        *utils.Logger
	goodThreshold float64
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// WithGoodDealThreshold sets the score at or above which a scored listing
// counts as a good deal. Zero disables the count.
func (s *InsightService) WithGoodDealThreshold(t float64) *InsightService {
	s.goodThreshold = t
	return s
}

func (s *InsightService) Generate(listings []*models.Listing) *models.InsightReport {
	report := &models.InsightReport{
		ListingsByPlatform: make(map[string]int),
		ListingsByLocation: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var priceListings []*models.Listing
	var hotDeals []*models.Listing

	for _, l := range listings {
		report.ListingsByPlatform[l.Platform]++
		if l.HasPrice() {
			priceListings = append(priceListings, l)
		}
		if l.DealScore != nil {
			report.ScoredListings++
			if s.goodThreshold > 0 && *l.DealScore >= s.goodThreshold {
				report.GoodDeals++
			}
			if l.IsHotDeal {
				hotDeals = append(hotDeals, l)
			}
		}
		if l.Location != "" {
			report.ListingsByLocation[l.Location]++
		}
	}

	// Price stats (only listings with price > 0)
	report.PricedListings = len(priceListings)
	if len(priceListings) > 0 {
		report.Cheapest = priceListings[0]
		report.MinPrice = *priceListings[0].Price
		report.MaxPrice = *priceListings[0].Price
		var total float64
		for _, l := range priceListings {
			p := *l.Price
			total += p
			if p < report.MinPrice {
				report.MinPrice = p
				report.Cheapest = l
			}
			if p > report.MaxPrice {
				report.MaxPrice = p
			}
		}
		report.AveragePrice = round2(total / float64(len(priceListings)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	sort.SliceStable(hotDeals, func(i, j int) bool {
		return *hotDeals[i].DealScore > *hotDeals[j].DealScore
	})
	if len(hotDeals) > topHotDeals {
		hotDeals = hotDeals[:topHotDeals]
	}
	report.HotDeals = hotDeals

	return report
}

// Log writes a one-line digest of the report.
func (s *InsightService) Log(r *models.InsightReport) {
	s.logger.Info("[insights] %d listings (%d priced, avg $%.2f) across %d platforms, %d good deals, %d hot deals",
		r.TotalListings, r.PricedListings, r.AveragePrice, len(r.ListingsByPlatform), r.GoodDeals, len(r.HotDeals))
}

func (s *InsightService) Print(r *models.InsightReport) {
	s.Fprint(os.Stdout, r)
}

func (s *InsightService) Fprint(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🔧 ENGINE DEALS INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	// Overview
	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings : \033[1m%d\033[0m\n", r.TotalListings)
	fmt.Fprintf(w, "  Scored         : \033[1m%d\033[0m (%d good deals)\n", r.ScoredListings, r.GoodDeals)
	for _, p := range sortedCounts(r.ListingsByPlatform) {
		fmt.Fprintf(w, "  %-15s: \033[1m%d\033[0m\n", p.key, p.count)
	}
	fmt.Fprintln(w)

	// Price Stats
	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m$%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m$%.2f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m$%.2f\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.Cheapest != nil {
		fmt.Fprintf(w, "\033[1;33m  Cheapest Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.Cheapest.Title, 50))
		fmt.Fprintf(w, "  Platform : %s\n", r.Cheapest.Platform)
		fmt.Fprintf(w, "  Price    : \033[1;32m$%.2f\033[0m\n", *r.Cheapest.Price)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Top Hot Deals\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.HotDeals) == 0 {
		fmt.Fprintf(w, "  No hot deals found\n")
	} else {
		for i, l := range r.HotDeals {
			title := truncate(l.Title, 38)
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%.2f\033[0m\n",
				i+1, title, *l.DealScore)
		}
	}
	fmt.Fprintln(w)

	// Listings by Location
	fmt.Fprintf(w, "\033[1;33m  Listings by Location\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ListingsByLocation) == 0 {
		fmt.Fprintf(w, "  No location data\n")
	} else {
		for _, lc := range sortedCounts(r.ListingsByLocation) {
			bar := strings.Repeat("█", min(lc.count, 40))
			fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(lc.key, 28), bar, lc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

type keyCount struct {
	key   string
	count int
}

// sortedCounts orders by count descending, then key.
func sortedCounts(m map[string]int) []keyCount {
	out := make([]keyCount, 0, len(m))
	for k, c := range m {
		if k != "" {
			out = append(out, keyCount{k, c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].key < out[j].key
	})
	return out
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
