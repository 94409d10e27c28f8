package stats

import (
	"errors"
	"math"
	"sort"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
)

// ErrEmptyStatistics is returned while no valid sample pair has been folded.
var ErrEmptyStatistics = errors.New("stats: no valid sample pairs yet")

const (
	microsPerSecond = 1_000_000.0
	microsPerMilli  = 1_000.0

	// interval histogram range in microseconds
	histMin    = 1
	histMax    = 60_000_000
	histSigFig = 3
)

// Rates is the frequency summary derived from inter-sample intervals.
type Rates struct {
	AvgHz         float64 `json:"avg_hz"`
	MinHz         float64 `json:"min_hz"` // from the longest interval
	MaxHz         float64 `json:"max_hz"` // from the shortest interval
	AvgIntervalMs float64 `json:"avg_interval_ms"`
	JitterMs      float64 `json:"jitter_ms"` // longest minus shortest interval
	P50IntervalMs float64 `json:"p50_interval_ms"`
	P99IntervalMs float64 `json:"p99_interval_ms"`
	Pairs         int64   `json:"pairs"`
}

// Frequency folds a growing, timestamp-ordered sample log into running
// interval statistics. Each Update only consumes pairs whose later sample
// is newer than the watermark left by the previous call, so repeated calls
// over the same log never count a pair twice.
//
// Pairs with equal axes are repeats of the same device report and are
// ignored. Pairs whose timestamps collide at microsecond resolution are
// ignored as well, since they carry no interval.
//
// min and max only ever widen; they do not recover when an outlier ages out
// of the log. Reset starts over.
type Frequency struct {
	sum       float64
	count     int64
	min       float64
	max       float64
	watermark uint64
	hist      *hdrhistogram.Histogram
}

// NewFrequency creates an empty estimator.
func NewFrequency() *Frequency {
	return &Frequency{
		min:  math.MaxFloat64,
		hist: hdrhistogram.New(histMin, histMax, histSigFig),
	}
}

// Update folds every new pair of log and returns the current rates.
func (f *Frequency) Update(log []gamepad.Sample) (Rates, error) {
	start := sort.Search(len(log), func(i int) bool {
		return log[i].Timestamp > f.watermark
	})
	if start == 0 {
		start = 1
	}
	for i := start; i < len(log); i++ {
		prev, cur := log[i-1], log[i]
		if cur.Axes == prev.Axes || cur.Timestamp <= prev.Timestamp {
			continue
		}
		delta := float64(cur.Timestamp - prev.Timestamp)
		f.sum += delta
		f.count++
		if delta < f.min {
			f.min = delta
		}
		if delta > f.max {
			f.max = delta
		}
		// out-of-range values only lose percentile precision
		_ = f.hist.RecordValue(int64(delta))
	}
	if n := len(log); n > 0 && log[n-1].Timestamp > f.watermark {
		f.watermark = log[n-1].Timestamp
	}
	return f.Rates()
}

// Rates returns the statistics folded so far without consuming samples.
func (f *Frequency) Rates() (Rates, error) {
	if f.count == 0 {
		return Rates{}, ErrEmptyStatistics
	}
	avg := f.sum / float64(f.count)
	return Rates{
		AvgHz:         microsPerSecond / avg,
		MinHz:         microsPerSecond / f.max,
		MaxHz:         microsPerSecond / f.min,
		AvgIntervalMs: avg / microsPerMilli,
		JitterMs:      (f.max - f.min) / microsPerMilli,
		P50IntervalMs: float64(f.hist.ValueAtQuantile(50)) / microsPerMilli,
		P99IntervalMs: float64(f.hist.ValueAtQuantile(99)) / microsPerMilli,
		Pairs:         f.count,
	}, nil
}

// Watermark returns the newest timestamp already folded.
func (f *Frequency) Watermark() uint64 { return f.watermark }

// Reset clears all folded statistics and the watermark.
func (f *Frequency) Reset() {
	f.sum = 0
	f.count = 0
	f.min = math.MaxFloat64
	f.max = 0
	f.watermark = 0
	f.hist.Reset()
}
