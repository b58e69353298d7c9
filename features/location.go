package features

import (
	"strings"
	"unicode/utf8"
)

const (
	localMiles    = 100
	regionalMiles = 300
)

func (e *Engineer) locationFeatures(_ *batch, r *record, emit emitFunc) {
	loc := r.listing.Location
	miles := e.lookups.Distances.Estimate(loc)

	emit(ColDistance, miles)
	emit("is_local", boolValue(miles < localMiles))
	emit("is_regional", boolValue(miles < regionalMiles))
	emit("has_specific_location", boolValue(utf8.RuneCountInString(loc) > 5))
	emit("location_word_count", float64(len(strings.Fields(loc))))
}
