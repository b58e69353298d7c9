package features

import "time"

// temporalFeatures reads the scrape time in its own location. Listings
// without a scrape time are treated as scraped now.
func temporalFeatures(b *batch, r *record, emit emitFunc) {
	t := r.scrapedAt
	dow := mondayFirst(t.Weekday())

	emit("hour_scraped", float64(t.Hour()))
	emit("day_of_week", float64(dow))
	emit("is_weekend", boolValue(dow >= 5))
	emit("hours_since_scraped", b.now.Sub(t).Hours())
}

// mondayFirst maps Monday to 0 and Sunday to 6.
func mondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}
