package scraper

import (
	"context"
	"errors"
	"testing"

	"engine-deals/models"
	"engine-deals/utils"
)

type fakeAdapter struct {
	name     string
	listings []*models.Listing
	err      error
	panics   bool
	gotPages int
}

func (f *fakeAdapter) Platform() string { return f.name }

func (f *fakeAdapter) Scrape(_ context.Context, _ []string, maxPages int) ([]*models.Listing, error) {
	f.gotPages = maxPages
	if f.panics {
		panic("selector exploded")
	}
	return f.listings, f.err
}

func listing(platform, url string) *models.Listing {
	return &models.Listing{Platform: platform, Title: "LS engine", URL: url}
}

func TestManagerScrapeAllIsolatesFailures(t *testing.T) {
	ebay := &fakeAdapter{name: "ebay", listings: []*models.Listing{listing("ebay", "e1"), listing("ebay", "e2")}}
	cl := &fakeAdapter{name: "craigslist", panics: true}
	ou := &fakeAdapter{
		name:     "offerup",
		listings: []*models.Listing{listing("offerup", "o1")},
		err:      errors.New("connection reset"),
	}

	m := NewManager(utils.NewNopLogger(), 3, 2, ebay, cl, ou)
	got := m.ScrapeAll(context.Background(), []string{"LS engine"})

	if len(got) != 3 {
		t.Fatalf("ScrapeAll returned %d listings; want 3", len(got))
	}
	want := []string{"e1", "e2", "o1"}
	for i, l := range got {
		if l.URL != want[i] {
			t.Errorf("listing %d URL = %q; want %q", i, l.URL, want[i])
		}
	}
	if ebay.gotPages != 3 {
		t.Errorf("maxPages passed = %d; want 3", ebay.gotPages)
	}
}

func TestManagerScrapeOneUnknownPlatform(t *testing.T) {
	m := NewManager(utils.NewNopLogger(), 1, 1, &fakeAdapter{name: "ebay"})

	_, err := m.ScrapeOne(context.Background(), "myspace", []string{"engine"})
	if !errors.Is(err, ErrUnknownPlatform) {
		t.Errorf("ScrapeOne(myspace) error = %v; want ErrUnknownPlatform", err)
	}
}

func TestManagerScrapeOne(t *testing.T) {
	ebay := &fakeAdapter{name: "ebay", listings: []*models.Listing{listing("ebay", "e1")}}
	m := NewManager(utils.NewNopLogger(), 2, 1, ebay, &fakeAdapter{name: "offerup", panics: true})

	got, err := m.ScrapeOne(context.Background(), "ebay", []string{"engine"})
	if err != nil {
		t.Fatalf("ScrapeOne: %v", err)
	}
	if len(got) != 1 || got[0].URL != "e1" {
		t.Errorf("ScrapeOne = %v; want [e1]", got)
	}
}

func TestManagerTestAll(t *testing.T) {
	ok := &fakeAdapter{name: "ebay", listings: []*models.Listing{listing("ebay", "e1")}}
	empty := &fakeAdapter{name: "craigslist"}
	broken := &fakeAdapter{name: "facebook", panics: true}

	m := NewManager(utils.NewNopLogger(), 5, 3, ok, empty, broken)
	got := m.TestAll(context.Background())

	want := map[string]bool{"ebay": true, "craigslist": false, "facebook": false}
	for name, w := range want {
		if got[name] != w {
			t.Errorf("TestAll[%s] = %v; want %v", name, got[name], w)
		}
	}
	if ok.gotPages != 1 {
		t.Errorf("TestAll maxPages = %d; want 1", ok.gotPages)
	}
}

func TestManagerRegisterReplaces(t *testing.T) {
	m := NewManager(nil, 1, 1, &fakeAdapter{name: "ebay"})
	m.Register(&fakeAdapter{name: "ebay", listings: []*models.Listing{listing("ebay", "new")}})

	if p := m.Platforms(); len(p) != 1 {
		t.Errorf("Platforms = %v; want one entry", p)
	}
	got, _ := m.ScrapeOne(context.Background(), "ebay", nil)
	if len(got) != 1 || got[0].URL != "new" {
		t.Errorf("replacement adapter not used: %v", got)
	}
}
