// ABOUTME: A-weighting curve per the IEC 61672 approximation
// ABOUTME: Returns a dB offset to add to an unweighted magnitude
package spectrum

import "math"

// AWeight returns the A-weighting gain in dB for the given frequency.
// The +2.0 dB trim normalizes the curve to 0 dB at 1 kHz.
func AWeight(freqHz float64) float64 {
	if freqHz <= 0 {
		return dbFloor
	}

	f2 := freqHz * freqHz
	ra := (12200.0 * 12200.0 * f2 * f2) /
		((f2 + 20.6*20.6) *
			math.Sqrt((f2+107.7*107.7)*(f2+737.9*737.9)) *
			(f2 + 12200.0*12200.0))

	a := 20.0*math.Log10(ra) + 2.0
	if math.IsInf(a, -1) || math.IsNaN(a) {
		return dbFloor
	}
	return a
}
