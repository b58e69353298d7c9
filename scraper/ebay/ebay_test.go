package ebay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"engine-deals/scraper"
)

func item(base, id, title, price, location string) string {
	return fmt.Sprintf(`<li class="s-item">
  <a class="s-item__link" href="%s/itm/%s"><span class="s-item__title">%s</span></a>
  <span class="SECONDARY_INFO">Used</span>
  <span class="s-item__price">%s</span>
  <span class="s-item__location">%s</span>
  <span class="s-item__seller-info-text">gmparts (1,204)</span>
  <img class="s-item__image" src="https://i.ebayimg.com/%s.jpg">
</li>`, base, id, title, price, location, id)
}

func page(items ...string) string {
	return `<html><body><ul class="srp-results">` + strings.Join(items, "\n") + `</ul></body></html>`
}

func newTestScraper(base string) *Scraper {
	cfg := DefaultConfig()
	cfg.BaseURL = base
	return NewWithConfig(scraper.Options{
		Keywords: scraper.Keywords{Good: []string{"rebuilt"}, Bad: []string{"needs work"}},
	}, cfg)
}

func TestScrapeFiltersPromotionalAndIrrelevant(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_pgn") != "1" {
			w.Write([]byte(page()))
			return
		}
		base := srv.URL
		w.Write([]byte(page(
			item(base, "1", "Shop on eBay", "$20.00", ""),
			item(base, "2", "LS engine, needs work", "$850.00", "Newark, NJ"),
			item(base, "3", "Boat motor 350 marine", "$400.00", "Miami, FL"),
			`<li class="s-item"><a class="s-item__link" href="https://ads.example.com/x">
			   <span class="s-item__title">Rebuilt 5.3 engine</span></a></li>`,
			item(base, "4", "Rebuilt LQ4 6.0 long block", "$2,100.00", "Dallas, TX"),
			item(base, "2", "LS engine, needs work", "$850.00", "Newark, NJ"),
		)))
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)
	got, err := s.Scrape(context.Background(), []string{"LS engine"}, 3)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d listings; want 2: %+v", len(got), got)
	}

	first := got[0]
	if first.Title != "LS engine, needs work" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Price == nil || *first.Price != 850 {
		t.Errorf("price = %v; want 850", first.Price)
	}
	if first.SellerName != "gmparts (1,204)" {
		t.Errorf("seller = %q", first.SellerName)
	}
	if len(first.ConditionKeywords) != 1 || first.ConditionKeywords[0] != "bad_needs work" {
		t.Errorf("condition keywords = %v; want [bad_needs work]", first.ConditionKeywords)
	}
	if first.Platform != "ebay" || !first.IsActive {
		t.Errorf("platform=%q active=%v", first.Platform, first.IsActive)
	}
	if got[1].Price == nil || *got[1].Price != 2100 {
		t.Errorf("second price = %v; want 2100", got[1].Price)
	}
}

func TestScrapeBlockedTermKeepsEarlierResults(t *testing.T) {
	var calls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch {
		case r.URL.Query().Get("_nkw") == "LQ4" && r.URL.Query().Get("_pgn") == "1":
			w.Write([]byte(page(item(srv.URL, "10", "LQ4 engine 6.0", "$1,500", "Austin, TX"))))
		case r.URL.Query().Get("_nkw") == "LQ4":
			w.WriteHeader(http.StatusForbidden)
		default:
			w.Write([]byte(page(item(srv.URL, "20", "5.3 engine block", "$300", "Tulsa, OK"))))
		}
	}))
	defer srv.Close()

	s := newTestScraper(srv.URL)
	got, err := s.Scrape(context.Background(), []string{"LQ4", "5.3 block"}, 2)
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}

	urls := map[string]bool{}
	for _, l := range got {
		urls[l.URL] = true
	}
	if !urls[srv.URL+"/itm/10"] {
		t.Error("listing from page 1 before the block was dropped")
	}
	if !urls[srv.URL+"/itm/20"] {
		t.Error("later term did not run after the block")
	}
	if len(got) != 2 {
		t.Errorf("got %d listings; want 2", len(got))
	}
}

func TestIsPromotional(t *testing.T) {
	s := newTestScraper("https://www.ebay.com")

	tests := []struct {
		title, href string
		want        bool
	}{
		{"LS engine", "https://www.ebay.com/itm/123", false},
		{"Shop on eBay", "https://www.ebay.com/itm/123", true},
		{"LS engine", "https://www.ebay.com/itm/123?itmmeta=abc", true},
		{"LS engine", "https://pulsar.ebay.com/click", true},
	}
	for _, tt := range tests {
		if got := s.isPromotional(tt.title, tt.href); got != tt.want {
			t.Errorf("isPromotional(%q, %q) = %v; want %v", tt.title, tt.href, got, tt.want)
		}
	}
}
