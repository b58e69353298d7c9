package features

// platformFeatures emits one indicator per platform seen in the batch,
// sorted by name, followed by the platform's reliability score.
func (e *Engineer) platformFeatures(b *batch, r *record, emit emitFunc) {
	for _, p := range b.platforms {
		emit("platform_"+p, boolValue(r.listing.Platform == p))
	}
	emit(ColReliability, e.lookups.Reliability.Score(r.listing.Platform))
}
