package stats

import "math"

// MaxPrecision bounds the number of decimal digits a Bucket can keep;
// beyond it float64 has no digits left and the scaled fraction would
// overflow uint64.
const MaxPrecision = 15

// Bucket is an angle truncated to a fixed number of decimal digits. It is
// comparable and meant to be used as a map key.
//
// The sign lives only in Int, so at precision 0 the angles -0.4 and 0.4
// land in the same bucket, and Frac is either 0 or 1. That coarseness is
// intended: buckets group noisy readings, they do not resolve direction.
type Bucket struct {
	Int       int64
	Frac      uint64
	Precision uint32
}

// Quantize splits angle (radians) into integer part and a fractional part
// rounded half away from zero to precision digits. Non-finite angles map to
// the zero bucket of the given precision.
func Quantize(angle float64, precision uint32) Bucket {
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return Bucket{Precision: precision}
	}
	ip, frac := math.Modf(angle)
	factor := math.Pow10(int(precision))
	return Bucket{
		Int:       int64(ip),
		Frac:      uint64(math.Round(math.Abs(frac) * factor)),
		Precision: precision,
	}
}
