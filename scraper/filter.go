package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Relevance decides whether a posting is about an engine part. Each adapter
// owns its copy so the lists can be tuned per marketplace.
type Relevance struct {
	Include []string
	Exclude []string
}

// DefaultRelevance returns the engine-part include list and the
// non-automotive exclude list.
func DefaultRelevance() Relevance {
	return Relevance{
		Include: []string{"engine", "motor", "block", "head", "intake", "crank", "piston", "long block", "short block"},
		Exclude: []string{"boat", "marine", "motorcycle", "lawn", "generator", "pump", "compressor"},
	}
}

// Match reports whether the combined text has an include term and no
// exclude term. Matching is case-insensitive substring matching.
func (r Relevance) Match(title, description string) bool {
	text := strings.ToLower(title + " " + description)
	if !containsAny(text, r.Include) {
		return false
	}
	return !containsAny(text, r.Exclude)
}

// Keywords tags condition phrases found in listing text.
type Keywords struct {
	Good []string
	Bad  []string
}

// Extract returns "good_<kw>" and "bad_<kw>" tags for every keyword
// contained in text, good tags first, each in list order.
func (k Keywords) Extract(text string) []string {
	if text == "" {
		return []string{}
	}
	lower := strings.ToLower(text)
	found := make([]string, 0, 4)
	for _, kw := range k.Good {
		if strings.Contains(lower, strings.ToLower(kw)) {
			found = append(found, "good_"+kw)
		}
	}
	for _, kw := range k.Bad {
		if strings.Contains(lower, strings.ToLower(kw)) {
			found = append(found, "bad_"+kw)
		}
	}
	return found
}

var priceRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// ParsePrice extracts the first number in text as a price. It returns nil
// when there is no number.
func ParsePrice(text string) *float64 {
	match := priceRegexp.FindString(text)
	if match == "" {
		return nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil || d.IsNegative() {
		return nil
	}
	f := d.Round(2).InexactFloat64()
	return &f
}

// CleanText trims and collapses internal whitespace.
func CleanText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// ContainsAny reports whether s contains any of the patterns.
func ContainsAny(s string, patterns []string) bool {
	return containsAny(s, patterns)
}

// AbsoluteURL resolves href against base. Unparseable input is returned as is.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}
