package stats

import "math"

// MaxRadius is the theoretical reach of a stick, in raw axis units.
const MaxRadius = 32767.0

// Angular keeps, per direction bucket, the largest stick radius seen in that
// direction. Radii only grow until Reset.
type Angular struct {
	precision uint32
	bins      map[Bucket]float32
}

// NewAngular creates an accumulator that buckets angles at precision
// decimal digits. The precision cannot be changed afterwards.
func NewAngular(precision uint32) *Angular {
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	return &Angular{
		precision: precision,
		bins:      make(map[Bucket]float32),
	}
}

// Precision returns the bucket precision fixed at creation.
func (a *Angular) Precision() uint32 { return a.precision }

// Len returns the number of distinct buckets observed.
func (a *Angular) Len() int { return len(a.bins) }

// Observe records radius for bucket b, keeping the larger of the stored and
// new values.
func (a *Angular) Observe(b Bucket, radius float32) {
	if r, ok := a.bins[b]; ok && r >= radius {
		return
	}
	a.bins[b] = radius
}

// ObserveAxes derives direction and radius from one stick's X/Y pair.
func (a *Angular) ObserveAxes(x, y int16) {
	fx, fy := float64(x), float64(y)
	a.Observe(Quantize(math.Atan2(fy, fx), a.precision), float32(math.Hypot(fx, fy)))
}

// Max returns the stored radius for b.
func (a *Angular) Max(b Bucket) (float32, bool) {
	r, ok := a.bins[b]
	return r, ok
}

// AverageError returns |1 - mean(radius) / ref|.
//
// An empty accumulator divides by 1 instead of 0 and therefore reports 1.0.
// That value only means "nothing observed yet", not a measured precision.
func (a *Angular) AverageError(ref float64) float64 {
	n := float64(len(a.bins))
	if n == 0 {
		n = 1
	}
	var sum float64
	for _, r := range a.bins {
		sum += float64(r)
	}
	return math.Abs(1 - (sum/n)/ref)
}

// Reset forgets every bucket. Precision is kept.
func (a *Angular) Reset() {
	clear(a.bins)
}

// Clone returns an independent copy.
func (a *Angular) Clone() *Angular {
	c := NewAngular(a.precision)
	for k, v := range a.bins {
		c.bins[k] = v
	}
	return c
}
