package facebook

import (
	"testing"

	"engine-deals/scraper"
	"engine-deals/utils"
)

func TestCardsToListings(t *testing.T) {
	s := NewWithConfig(scraper.Options{
		Keywords: scraper.Keywords{Bad: []string{"needs work"}},
	}, DefaultConfig())

	cards := []Card{
		{Title: "LS engine needs work", Price: "$700", Location: "Yonkers, NY", URL: "/marketplace/item/1/?ref=search"},
		{Title: "LS engine needs work", Price: "$700", Location: "Yonkers, NY", URL: "https://www.facebook.com/marketplace/item/1/"},
		{Title: "Boat motor", Price: "$300", URL: "/marketplace/item/2/"},
		{Title: "LQ4 engine", Price: "$1,000", URL: "/groups/123"},
		{Title: "", Price: "$1", URL: "/marketplace/item/3/"},
		{Title: "5.3 block", Price: "Free", Image: "https://scontent/x.jpg", URL: "/marketplace/item/4/"},
	}

	got := s.cardsToListings(cards, utils.NewURLSet())
	if len(got) != 2 {
		t.Fatalf("got %d listings; want 2: %+v", len(got), got)
	}

	if got[0].URL != "https://www.facebook.com/marketplace/item/1/" {
		t.Errorf("url = %q", got[0].URL)
	}
	if got[0].Price == nil || *got[0].Price != 700 {
		t.Errorf("price = %v", got[0].Price)
	}
	if got[0].SellerName != "Facebook User" {
		t.Errorf("seller = %q", got[0].SellerName)
	}
	if len(got[0].ConditionKeywords) != 1 {
		t.Errorf("condition keywords = %v", got[0].ConditionKeywords)
	}
	if got[1].Price != nil {
		t.Errorf("free listing price = %v; want nil", *got[1].Price)
	}
	if len(got[1].ImageURLs) != 1 {
		t.Errorf("images = %v", got[1].ImageURLs)
	}
}

func TestIsLoginWall(t *testing.T) {
	tests := []struct {
		location string
		want     bool
	}{
		{"https://www.facebook.com/login/?next=%2Fmarketplace", true},
		{"https://www.facebook.com/checkpoint/block", true},
		{"https://www.facebook.com/marketplace/search/?query=ls", false},
	}
	for _, tt := range tests {
		if got := isLoginWall(tt.location); got != tt.want {
			t.Errorf("isLoginWall(%q) = %v; want %v", tt.location, got, tt.want)
		}
	}
}

func TestFindChromeBinaryPrefersConfigured(t *testing.T) {
	if got := findChromeBinary("/opt/chrome"); got != "/opt/chrome" {
		t.Errorf("findChromeBinary = %q", got)
	}
}
