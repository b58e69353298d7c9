package scraper

import (
	"reflect"
	"testing"
)

func TestRelevanceMatch(t *testing.T) {
	r := DefaultRelevance()

	tests := []struct {
		title, description string
		want               bool
	}{
		{"LS engine, needs work", "", true},
		{"5.3 LQ4 long block", "", true},
		{"Boat motor 350", "", false},
		{"Chevy truck tailgate", "", false},
		{"Vortec 5300", "pulled from a running engine", true},
		{"Engine stand", "holds a marine block", false},
	}

	for _, tt := range tests {
		got := r.Match(tt.title, tt.description)
		if got != tt.want {
			t.Errorf("Match(%q, %q) = %v; want %v", tt.title, tt.description, got, tt.want)
		}
	}
}

func TestKeywordsExtract(t *testing.T) {
	k := Keywords{
		Good: []string{"rebuilt", "low miles"},
		Bad:  []string{"needs work", "cracked"},
	}

	tests := []struct {
		text string
		want []string
	}{
		{"", []string{}},
		{"LS engine, needs work", []string{"bad_needs work"}},
		{"Rebuilt 5.3, LOW MILES", []string{"good_rebuilt", "good_low miles"}},
		{"rebuilt head, cracked block", []string{"good_rebuilt", "bad_cracked"}},
		{"plain engine", []string{}},
	}

	for _, tt := range tests {
		got := k.Extract(tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Extract(%q) = %v; want %v", tt.text, got, tt.want)
		}
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"$1,200", 1200, true},
		{"$850.50", 850.50, true},
		{"US $2,499.99 to $3,000", 2499.99, true},
		{"Free", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got := ParsePrice(tt.raw)
		if (got != nil) != tt.ok {
			t.Errorf("ParsePrice(%q) = %v; want ok=%v", tt.raw, got, tt.ok)
			continue
		}
		if got != nil && *got != tt.want {
			t.Errorf("ParsePrice(%q) = %.2f; want %.2f", tt.raw, *got, tt.want)
		}
	}
}

func TestCleanText(t *testing.T) {
	if got := CleanText("  LS   engine\n\t5.3 "); got != "LS engine 5.3" {
		t.Errorf("CleanText = %q", got)
	}
}

func TestAbsoluteURL(t *testing.T) {
	tests := []struct {
		base, href, want string
	}{
		{"https://offerup.com", "/item/detail/1", "https://offerup.com/item/detail/1"},
		{"https://offerup.com", "https://other.com/x", "https://other.com/x"},
		{"https://offerup.com", "  ", ""},
	}
	for _, tt := range tests {
		if got := AbsoluteURL(tt.base, tt.href); got != tt.want {
			t.Errorf("AbsoluteURL(%q, %q) = %q; want %q", tt.base, tt.href, got, tt.want)
		}
	}
}
