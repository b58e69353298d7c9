package features

import "regexp"

// Target-part weights for the priority score. The LQ4 is the 6.0L truck
// engine, so the 6.0 displacement counts toward it too.
const (
	weightLQ4      = 3
	weightLS       = 2
	weightChevy    = 1
	weightV8       = 1
	weight60Liters = 2
)

var (
	lq4Re        = regexp.MustCompile(`\blq4\b`)
	lsRe         = regexp.MustCompile(`\bls[0-9]?\b`)
	vortecRe     = regexp.MustCompile(`vortec`)
	chevyRe      = regexp.MustCompile(`chevy|chevrolet`)
	v8Re         = regexp.MustCompile(`\bv8\b`)
	liters53Re   = regexp.MustCompile(`5\.3|5300`)
	liters60Re   = regexp.MustCompile(`6\.0|6000`)
	liters48Re   = regexp.MustCompile(`4\.8|4800`)
	completeRe   = regexp.MustCompile(`complete engine|long block`)
	shortBlockRe = regexp.MustCompile(`short block`)
	headsRe      = regexp.MustCompile(`heads|cylinder head`)
	intakeRe     = regexp.MustCompile(`intake`)
	blockRe      = regexp.MustCompile(`\bblock\b`)
)

func domainFeatures(_ *batch, r *record, emit emitFunc) {
	hit := func(re *regexp.Regexp) float64 { return boolValue(re.MatchString(r.combined)) }

	lq4 := hit(lq4Re)
	ls := hit(lsRe)
	chevy := hit(chevyRe)
	v8 := hit(v8Re)
	l60 := hit(liters60Re)

	emit("is_lq4", lq4)
	emit("is_ls_engine", ls)
	emit("is_vortec", hit(vortecRe))
	emit("is_chevy", chevy)
	emit("is_v8", v8)
	emit("has_53_displacement", hit(liters53Re))
	emit("has_60_displacement", l60)
	emit("has_48_displacement", hit(liters48Re))
	emit("is_complete_engine", hit(completeRe))
	emit("is_short_block", hit(shortBlockRe))
	emit("is_heads", hit(headsRe))
	emit("is_intake", hit(intakeRe))
	emit("is_block", hit(blockRe))
	emit(ColPriority, lq4*weightLQ4+ls*weightLS+chevy*weightChevy+v8*weightV8+l60*weight60Liters)
}
