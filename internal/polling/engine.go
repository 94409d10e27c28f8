package polling

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/input"
	"github.com/relabs-tech/gamepad_polling/internal/metrics"
	"github.com/relabs-tech/gamepad_polling/internal/monitoring"
)

const (
	DefaultLogSize           = 2000
	DefaultCalculateInterval = 100
	DefaultEvictFraction     = 20
)

var (
	// ErrDeviceUnavailable means the source could not produce a snapshot.
	// Record leaves all state untouched when it returns this error.
	ErrDeviceUnavailable = errors.New("polling: device unavailable")
	// ErrBusy means the controller state was locked by the sampler; the
	// reader should try again on its next tick.
	ErrBusy = errors.New("polling: state busy")
	// ErrUnknownDevice means no sample was ever recorded for the id.
	ErrUnknownDevice = errors.New("polling: unknown device")
	// ErrInvalidLogSize rejects non-positive retention sizes.
	ErrInvalidLogSize = errors.New("polling: log size must be positive")
)

// Outcome tells what Record did with a snapshot.
type Outcome int

const (
	OutcomeUnavailable Outcome = iota
	OutcomeDuplicate
	OutcomeRecorded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRecorded:
		return "recorded"
	default:
		return "unavailable"
	}
}

// Options configures an Engine. Zero fields take their defaults.
type Options struct {
	LogSize            int    // samples kept per controller
	CalculateInterval  int    // recompute the result every this many samples
	DirectionPrecision uint32 // decimal digits of the direction buckets
	EvictFraction      int    // a full log drops LogSize/EvictFraction samples at once

	// ResetOnDeviceChange resets every controller when the set of present
	// controllers changes.
	ResetOnDeviceChange bool

	// Clock returns the current time. It must be monotonic.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.LogSize <= 0 {
		o.LogSize = DefaultLogSize
	}
	if o.CalculateInterval <= 0 {
		o.CalculateInterval = DefaultCalculateInterval
	}
	if o.EvictFraction <= 0 {
		o.EvictFraction = DefaultEvictFraction
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Engine records controller snapshots into per-controller memos and serves
// their results. Each memo has its own lock; the registry lock only guards
// membership.
type Engine struct {
	src  input.Source
	opts Options

	mu      sync.RWMutex
	memos   map[gamepad.ID]*memo
	present []gamepad.ID
	logSize int
}

// NewEngine creates an engine reading from src.
func NewEngine(src input.Source, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		src:     src,
		opts:    opts,
		memos:   make(map[gamepad.ID]*memo),
		logSize: opts.LogSize,
	}
}

func (e *Engine) lookup(id gamepad.ID) *memo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.memos[id]
}

// memoFor returns the memo of id, creating it on first use.
func (e *Engine) memoFor(id gamepad.ID) *memo {
	if m := e.lookup(id); m != nil {
		return m
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if m, ok := e.memos[id]; ok {
		return m
	}
	m := newMemo(id, e.opts, e.logSize, e.opts.Clock())
	e.memos[id] = m
	monitoring.Logf("engine: tracking controller %d (log size %d)", id, e.logSize)
	return m
}

// Record captures the current state of id. With filterDuplicates a snapshot
// whose axes equal the previous sample is dropped without touching any
// statistics.
func (e *Engine) Record(id gamepad.ID, filterDuplicates bool) (Outcome, error) {
	st, err := e.src.Snapshot(id)
	if err != nil {
		metrics.DeviceUnavailable.WithLabelValues(strconv.FormatUint(uint64(id), 10)).Inc()
		if m := e.lookup(id); m != nil {
			m.unavailable.Add(1)
		}
		return OutcomeUnavailable, fmt.Errorf("%w: controller %d: %w", ErrDeviceUnavailable, id, err)
	}
	return e.memoFor(id).record(st.Axes, filterDuplicates, e.opts.Clock), nil
}

// Result returns the last published result of id. It never blocks on the
// sampler and never triggers a recomputation.
func (e *Engine) Result(id gamepad.ID) (Result, bool) {
	m := e.lookup(id)
	if m == nil {
		return Result{}, false
	}
	return *m.result.Load(), true
}

// Series returns a copy of the sample log of id together with its result.
// It returns ErrBusy instead of waiting when the sampler holds the log.
func (e *Engine) Series(id gamepad.ID) ([]gamepad.Sample, Result, error) {
	m := e.lookup(id)
	if m == nil {
		return nil, Result{}, fmt.Errorf("controller %d: %w", id, ErrUnknownDevice)
	}
	log, ok := m.trySeries()
	if !ok {
		return nil, Result{}, ErrBusy
	}
	return log, *m.result.Load(), nil
}

// Info reads the presentation view of id straight from the source.
func (e *Engine) Info(id gamepad.ID) (gamepad.Info, error) {
	st, err := e.src.Snapshot(id)
	if err != nil {
		return gamepad.Info{}, fmt.Errorf("%w: controller %d: %w", ErrDeviceUnavailable, id, err)
	}
	return st.Info(), nil
}

// Stats returns the counters of id.
func (e *Engine) Stats(id gamepad.ID) (MemoStats, bool) {
	m := e.lookup(id)
	if m == nil {
		return MemoStats{}, false
	}
	return m.stats(), true
}

// SetRetention changes the log size of every controller, including those
// tracked later. Each existing log starts over.
func (e *Engine) SetRetention(size int) error {
	if size <= 0 {
		return ErrInvalidLogSize
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logSize = size
	for _, m := range e.memos {
		m.setLogSize(size)
	}
	monitoring.Logf("engine: log size set to %d", size)
	return nil
}

// SetDeviceRetention changes the log size of one controller.
func (e *Engine) SetDeviceRetention(id gamepad.ID, size int) error {
	if size <= 0 {
		return ErrInvalidLogSize
	}
	m := e.lookup(id)
	if m == nil {
		return fmt.Errorf("controller %d: %w", id, ErrUnknownDevice)
	}
	m.setLogSize(size)
	return nil
}

// LogSize returns the retention applied to newly tracked controllers.
func (e *Engine) LogSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.logSize
}

// Reset clears every controller's log, statistics and result.
func (e *Engine) Reset() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	now := e.opts.Clock()
	for _, m := range e.memos {
		m.reset(now)
	}
}

// ResetDevice clears one controller.
func (e *Engine) ResetDevice(id gamepad.ID) error {
	m := e.lookup(id)
	if m == nil {
		return fmt.Errorf("controller %d: %w", id, ErrUnknownDevice)
	}
	m.reset(e.opts.Clock())
	return nil
}

// Remove stops tracking id and drops its memo.
func (e *Engine) Remove(id gamepad.ID) {
	e.mu.Lock()
	delete(e.memos, id)
	e.mu.Unlock()
}

// Devices lists the controllers that have a memo.
func (e *Engine) Devices() []gamepad.ID {
	e.mu.RLock()
	ids := make([]gamepad.ID, 0, len(e.memos))
	for id := range e.memos {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// PresentIDs refreshes the set of connected controllers from the source.
func (e *Engine) PresentIDs() ([]gamepad.ID, error) {
	ids, err := e.src.PresentIDs()
	if err != nil {
		return nil, err
	}
	slices.Sort(ids)

	e.mu.RLock()
	same := slices.Equal(e.present, ids)
	e.mu.RUnlock()
	if same {
		return ids, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if slices.Equal(e.present, ids) {
		return ids, nil
	}
	monitoring.Logf("engine: present controllers changed %v -> %v", e.present, ids)
	e.present = slices.Clone(ids)
	if e.opts.ResetOnDeviceChange {
		e.resetLocked()
	}
	return ids, nil
}
