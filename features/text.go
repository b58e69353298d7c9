package features

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	partNumberRe = regexp.MustCompile(`\b\d{4,}\b`)
	yearRe       = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	mileageRe    = regexp.MustCompile(`(?i)\b\d+k?\s*(?:miles?|mi)\b`)
)

func textFeatures(_ *batch, r *record, emit emitFunc) {
	descLen := utf8.RuneCountInString(r.desc)

	emit("title_length", float64(utf8.RuneCountInString(r.title)))
	emit("title_word_count", float64(len(strings.Fields(r.title))))
	emit("description_length", float64(descLen))
	emit("description_word_count", float64(len(strings.Fields(r.desc))))
	emit("has_description", boolValue(descLen > 0))
	emit("title_caps_ratio", capsRatio(r.title))
	emit("description_caps_ratio", capsRatio(r.desc))
	emit("has_part_number", boolValue(partNumberRe.MatchString(r.title)))
	emit("has_year", boolValue(yearRe.MatchString(r.title)))
	emit("has_mileage", boolValue(mileageRe.MatchString(r.title)))
}

func capsRatio(s string) float64 {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	upper := 0
	for _, c := range s {
		if unicode.IsUpper(c) {
			upper++
		}
	}
	return float64(upper) / float64(n)
}
