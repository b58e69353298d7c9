package features

import (
	"regexp"
	"strings"
)

var (
	rebuiltRe   = regexp.MustCompile(`rebuilt|remanufactured`)
	newRe       = regexp.MustCompile(`\bnew\b`)
	needsWorkRe = regexp.MustCompile(`needs work|for parts|repair`)
	lowMilesRe  = regexp.MustCompile(`low miles|zero miles`)
)

// conditionFeatures counts the good_/bad_ tags attached by the adapters and
// checks the lower-cased combined text for condition phrases.
func conditionFeatures(_ *batch, r *record, emit emitFunc) {
	var good, bad int
	for _, kw := range r.listing.ConditionKeywords {
		switch {
		case strings.HasPrefix(kw, "good_"):
			good++
		case strings.HasPrefix(kw, "bad_"):
			bad++
		}
	}

	emit("good_condition_count", float64(good))
	emit("bad_condition_count", float64(bad))
	emit(ColCondition, float64(good-bad))
	emit("is_rebuilt", boolValue(rebuiltRe.MatchString(r.combined)))
	emit("is_new", boolValue(newRe.MatchString(r.combined)))
	emit("needs_work", boolValue(needsWorkRe.MatchString(r.combined)))
	emit("low_miles", boolValue(lowMilesRe.MatchString(r.combined)))
}
