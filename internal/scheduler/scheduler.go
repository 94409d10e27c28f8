// Package scheduler drives a polling engine with two activities: a sampler
// that records the tracked controller at a short fixed period, and a
// publisher that hands snapshots to a Consumer at the requested frame rate.
package scheduler

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/metrics"
	"github.com/relabs-tech/gamepad_polling/internal/monitoring"
	"github.com/relabs-tech/gamepad_polling/internal/polling"
)

const (
	DefaultSamplerPeriod = 250 * time.Microsecond
	DefaultStandbyPeriod = 10 * time.Millisecond

	maxFrameRate = 1_000_000
)

// ErrInvalidFrameRate rejects frame rates that do not give a positive
// microsecond period.
var ErrInvalidFrameRate = errors.New("scheduler: frame rate must be between 1 and 1000000")

// Engine is the part of polling.Engine the scheduler drives.
type Engine interface {
	PresentIDs() ([]gamepad.ID, error)
	Record(id gamepad.ID, filterDuplicates bool) (polling.Outcome, error)
	Info(id gamepad.ID) (gamepad.Info, error)
	Series(id gamepad.ID) ([]gamepad.Sample, polling.Result, error)
	SetRetention(size int) error
	Reset()
}

// Frame is what the publisher delivers on every tick.
type Frame struct {
	Session string          `json:"session"`
	ID      gamepad.ID      `json:"id"`
	Info    gamepad.Info    `json:"info"`
	Series  []gamepad.Point `json:"series"`
	Result  polling.Result  `json:"result"`
}

// Consumer receives frames from the publisher goroutine. OnSnapshot must
// not block for long; a slow consumer only delays the next frame.
type Consumer interface {
	OnSnapshot(f Frame)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(f Frame)

func (fn ConsumerFunc) OnSnapshot(f Frame) { fn(f) }

type Options struct {
	SamplerPeriod time.Duration
	StandbyPeriod time.Duration
}

func (o Options) withDefaults() Options {
	if o.SamplerPeriod <= 0 {
		o.SamplerPeriod = DefaultSamplerPeriod
	}
	if o.StandbyPeriod <= 0 {
		o.StandbyPeriod = DefaultStandbyPeriod
	}
	return o
}

// Scheduler runs at most one sampling session at a time.
type Scheduler struct {
	eng      Engine
	consumer Consumer
	opts     Options

	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	session string
	device  gamepad.ID
}

func New(eng Engine, consumer Consumer, opts Options) *Scheduler {
	done := make(chan struct{})
	close(done)
	return &Scheduler{
		eng:      eng,
		consumer: consumer,
		opts:     opts.withDefaults(),
		done:     done,
	}
}

// Start begins a session for controller id publishing fps frames per
// second. With record unset only the publisher runs. Starting while a
// session is running, or still shutting down, does nothing.
func (s *Scheduler) Start(ctx context.Context, id gamepad.ID, fps int, record bool) error {
	if fps <= 0 || fps > maxFrameRate {
		return ErrInvalidFrameRate
	}

	// Claiming the slot and publishing cancel and done share one critical
	// section so Stop and Wait never see a half-started session.
	s.mu.Lock()
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	session := uuid.NewString()
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.session = session
	s.device = id
	s.mu.Unlock()

	framePeriod := time.Duration(1_000_000/fps) * time.Microsecond
	monitoring.Logf("scheduler: session %s started for controller %d (%d fps, record=%v)", session, id, fps, record)

	var wg sync.WaitGroup
	if record {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.sample(ctx, id)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.publish(ctx, id, session, framePeriod)
	}()

	go func() {
		wg.Wait()
		cancel()
		monitoring.Logf("scheduler: session %s stopped", session)
		s.running.Store(false)
		close(done)
	}()
	return nil
}

// Stop signals both activities to end. It is safe to call from any
// goroutine, including a Consumer, and any number of times.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current session, if any, has fully stopped.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	<-done
}

func (s *Scheduler) Running() bool { return s.running.Load() }

// Session returns the id of the current or last session.
func (s *Scheduler) Session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Device returns the controller of the current or last session.
func (s *Scheduler) Device() gamepad.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

func (s *Scheduler) ListPresent() ([]gamepad.ID, error) { return s.eng.PresentIDs() }

func (s *Scheduler) SetRetention(size int) error { return s.eng.SetRetention(size) }

func (s *Scheduler) Reset() { s.eng.Reset() }

// sample records id every sampler period. While no controller is present
// it falls back to the standby period.
func (s *Scheduler) sample(ctx context.Context, id gamepad.ID) {
	// keep the sampler off the thread shared with consumers
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(s.opts.SamplerPeriod)
	defer ticker.Stop()

	standby := false
	unavailable := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids, err := s.eng.PresentIDs()
		if err != nil || len(ids) == 0 {
			if !standby {
				standby = true
				ticker.Reset(s.opts.StandbyPeriod)
				if err != nil {
					monitoring.Logf("scheduler: listing controllers failed, entering standby: %v", err)
				} else {
					monitoring.Logf("scheduler: no controller present, entering standby")
				}
			}
			metrics.StandbyTicks.Inc()
			continue
		}
		if standby {
			standby = false
			ticker.Reset(s.opts.SamplerPeriod)
			monitoring.Logf("scheduler: controllers %v present, leaving standby", ids)
		}

		_, err = s.eng.Record(id, true)
		switch {
		case err != nil && !unavailable:
			unavailable = true
			monitoring.Logf("scheduler: %v", err)
		case err == nil && unavailable:
			unavailable = false
			monitoring.Logf("scheduler: controller %d available again", id)
		}
	}
}

// publish delivers one frame per period. Ticks where the controller is
// gone or its log is busy are skipped. A controller with no log yet still
// gets a frame carrying its info, an empty series and a zero result.
func (s *Scheduler) publish(ctx context.Context, id gamepad.ID, session string, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		info, err := s.eng.Info(id)
		if err != nil {
			metrics.PublishSkipped.WithLabelValues("unavailable").Inc()
			continue
		}
		series, result, err := s.eng.Series(id)
		switch {
		case errors.Is(err, polling.ErrBusy):
			metrics.PublishSkipped.WithLabelValues("busy").Inc()
			continue
		case errors.Is(err, polling.ErrUnknownDevice):
			series, result = nil, polling.Result{}
		case err != nil:
			metrics.PublishSkipped.WithLabelValues("no_data").Inc()
			continue
		}

		points := make([]gamepad.Point, len(series))
		for i, smp := range series {
			points[i] = smp.Point()
		}
		if ctx.Err() != nil {
			return
		}
		s.consumer.OnSnapshot(Frame{
			Session: session,
			ID:      id,
			Info:    info,
			Series:  points,
			Result:  result,
		})
	}
}
