package media

// PTS values are 33-bit counts of a 90 kHz clock.
const (
	ClockRate = 90000
	ptsBits   = 33
	ptsModulo = int64(1) << ptsBits
	ptsHalf   = ptsModulo / 2
)

// Ticks converts a duration in seconds to 90 kHz ticks.
func Ticks(seconds float64) int64 {
	return int64(seconds * ClockRate)
}

// Seconds converts 90 kHz ticks to seconds.
func Seconds(ticks int64) float64 {
	return float64(ticks) / ClockRate
}

// PTSDiff returns a-b as a signed tick count, treating both values as points
// on the 33-bit wrapping timeline. The result lies in [-2^32, 2^32).
func PTSDiff(a, b int64) int64 {
	d := (a - b) % ptsModulo
	if d < 0 {
		d += ptsModulo
	}
	if d >= ptsHalf {
		d -= ptsModulo
	}
	return d
}

// PTSAfter reports whether a is strictly later than b.
func PTSAfter(a, b int64) bool {
	return PTSDiff(a, b) > 0
}

// PTSAdd adds a tick offset to a PTS and wraps the result into 33 bits.
func PTSAdd(pts, ticks int64) int64 {
	v := (pts + ticks) % ptsModulo
	if v < 0 {
		v += ptsModulo
	}
	return v
}
