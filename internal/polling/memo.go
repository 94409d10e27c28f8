package polling

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/metrics"
	"github.com/relabs-tech/gamepad_polling/internal/stats"
)

// Result is the last computed polling-rate summary of a controller. A
// Result is never modified after it is published.
type Result struct {
	AvgRateHz     float64 `json:"polling_rate_avg"`
	MinRateHz     float64 `json:"polling_rate_min"`
	MaxRateHz     float64 `json:"polling_rate_max"`
	AvgIntervalMs float64 `json:"avg_interval"`
	AvgErrorLeft  float64 `json:"avg_error_l"`
	AvgErrorRight float64 `json:"avg_error_r"`

	JitterMs      float64 `json:"jitter_ms"`
	P50IntervalMs float64 `json:"p50_interval_ms"`
	P99IntervalMs float64 `json:"p99_interval_ms"`
	Pairs         int64   `json:"pairs"` // 0 while the rates are not yet available
}

// Ready reports whether the rates are backed by at least one interval.
func (r Result) Ready() bool { return r.Pairs > 0 }

// MemoStats are running counters of one controller's log.
type MemoStats struct {
	Recorded    uint64 `json:"recorded"`
	Duplicates  uint64 `json:"duplicates"`
	Unavailable uint64 `json:"unavailable"`
	Evicted     uint64 `json:"evicted"`
	LogLen      int64  `json:"log_len"`
	LogSize     int64  `json:"log_size"`
}

// memo is the per-controller state: the bounded sample log, the frequency
// estimator, one angular accumulator per stick and the published result.
//
// mu guards everything except result and the counters. Only the sampler
// writes; readers either load result or try the lock and give up.
type memo struct {
	mu      sync.Mutex
	log     []gamepad.Sample
	logSize int
	freq    *stats.Frequency
	left    *stats.Angular
	right   *stats.Angular
	created time.Time

	calcInterval  int
	evictFraction int

	result atomic.Pointer[Result]

	recorded    atomic.Uint64
	duplicates  atomic.Uint64
	unavailable atomic.Uint64
	evicted     atomic.Uint64
	logLen      atomic.Int64
	logSizeNow  atomic.Int64

	mRecorded  prometheus.Counter
	mDuplicate prometheus.Counter
	mEvicted   prometheus.Counter
	mRate      [3]prometheus.Gauge
	mError     [2]prometheus.Gauge
}

func newMemo(id gamepad.ID, opts Options, logSize int, now time.Time) *memo {
	label := strconv.FormatUint(uint64(id), 10)
	m := &memo{
		log:           make([]gamepad.Sample, 0, logSize+1),
		logSize:       logSize,
		freq:          stats.NewFrequency(),
		left:          stats.NewAngular(opts.DirectionPrecision),
		right:         stats.NewAngular(opts.DirectionPrecision),
		created:       now,
		calcInterval:  opts.CalculateInterval,
		evictFraction: opts.EvictFraction,

		mRecorded:  metrics.SamplesRecorded.WithLabelValues(label),
		mDuplicate: metrics.SamplesDuplicate.WithLabelValues(label),
		mEvicted:   metrics.SamplesEvicted.WithLabelValues(label),
		mRate: [3]prometheus.Gauge{
			metrics.PollingRate.WithLabelValues(label, "avg"),
			metrics.PollingRate.WithLabelValues(label, "min"),
			metrics.PollingRate.WithLabelValues(label, "max"),
		},
		mError: [2]prometheus.Gauge{
			metrics.AngularError.WithLabelValues(label, "left"),
			metrics.AngularError.WithLabelValues(label, "right"),
		},
	}
	m.result.Store(&Result{})
	m.logSizeNow.Store(int64(logSize))
	return m
}

// record appends axes unless it repeats the last sample and filter is set.
// now is read under the lock so timestamps never go backwards.
func (m *memo) record(axes gamepad.Axes, filter bool, now func() time.Time) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.log)
	if filter && n > 0 && m.log[n-1].Axes == axes {
		m.duplicates.Add(1)
		m.mDuplicate.Inc()
		return OutcomeDuplicate
	}

	elapsed := now().Sub(m.created)
	if elapsed < 0 {
		elapsed = 0
	}
	ts := uint64(elapsed.Microseconds())
	if n > 0 && ts < m.log[n-1].Timestamp {
		ts = m.log[n-1].Timestamp
	}

	m.log = append(m.log, gamepad.Sample{Timestamp: ts, Axes: axes})
	lx, ly := axes.Left()
	rx, ry := axes.Right()
	m.left.ObserveAxes(lx, ly)
	m.right.ObserveAxes(rx, ry)
	m.recorded.Add(1)
	m.mRecorded.Inc()

	evicted := false
	if len(m.log) > m.logSize {
		m.evict()
		evicted = true
	}
	if evicted || len(m.log)%m.calcInterval == 0 {
		m.recompute()
	}
	m.logLen.Store(int64(len(m.log)))
	return OutcomeRecorded
}

// evict drops the oldest block of the log. Pending pairs are folded into
// the estimator first so that eviction never loses an interval.
func (m *memo) evict() {
	_, _ = m.freq.Update(m.log)

	block := m.logSize / m.evictFraction
	if over := len(m.log) - m.logSize; over > block {
		block = over
	}
	if block < 1 {
		block = 1
	}
	if block > len(m.log) {
		block = len(m.log)
	}
	m.log = append(m.log[:0], m.log[block:]...)
	m.evicted.Add(uint64(block))
	m.mEvicted.Add(float64(block))
}

// recompute folds the log and publishes a new Result.
func (m *memo) recompute() {
	// ErrEmptyStatistics leaves the rates at zero, which is what we publish
	rates, _ := m.freq.Update(m.log)
	res := &Result{
		AvgRateHz:     rates.AvgHz,
		MinRateHz:     rates.MinHz,
		MaxRateHz:     rates.MaxHz,
		AvgIntervalMs: rates.AvgIntervalMs,
		AvgErrorLeft:  m.left.AverageError(stats.MaxRadius),
		AvgErrorRight: m.right.AverageError(stats.MaxRadius),
		JitterMs:      rates.JitterMs,
		P50IntervalMs: rates.P50IntervalMs,
		P99IntervalMs: rates.P99IntervalMs,
		Pairs:         rates.Pairs,
	}
	m.result.Store(res)

	m.mRate[0].Set(res.AvgRateHz)
	m.mRate[1].Set(res.MinRateHz)
	m.mRate[2].Set(res.MaxRateHz)
	m.mError[0].Set(res.AvgErrorLeft)
	m.mError[1].Set(res.AvgErrorRight)
}

// trySeries copies the log without waiting for the sampler.
func (m *memo) trySeries() ([]gamepad.Sample, bool) {
	if !m.mu.TryLock() {
		return nil, false
	}
	defer m.mu.Unlock()
	return append([]gamepad.Sample(nil), m.log...), true
}

// setLogSize reconfigures retention and starts a new log. Pending pairs
// are folded and published first. The estimator keeps its watermark, so
// nothing already folded is counted again.
func (m *memo) setLogSize(size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recompute()
	m.logSize = size
	m.log = make([]gamepad.Sample, 0, size+1)
	m.logLen.Store(0)
	m.logSizeNow.Store(int64(size))
}

// reset returns the memo to the state of a freshly created one.
func (m *memo) reset(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = m.log[:0]
	m.freq.Reset()
	m.left.Reset()
	m.right.Reset()
	m.created = now
	m.result.Store(&Result{})
	m.logLen.Store(0)
}

func (m *memo) stats() MemoStats {
	return MemoStats{
		Recorded:    m.recorded.Load(),
		Duplicates:  m.duplicates.Load(),
		Unavailable: m.unavailable.Load(),
		Evicted:     m.evicted.Load(),
		LogLen:      m.logLen.Load(),
		LogSize:     m.logSizeNow.Load(),
	}
}
