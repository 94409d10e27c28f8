package app

import (
	"context"
	"log"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/polling"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

// Status describes the current session.
type Status struct {
	Running bool       `json:"running"`
	Session string     `json:"session,omitempty"`
	Device  gamepad.ID `json:"device"`
	LogSize int        `json:"log_size"`
}

// DeviceReport is the latest result of one controller with its counters.
type DeviceReport struct {
	ID     gamepad.ID        `json:"id"`
	Result polling.Result    `json:"result"`
	Stats  polling.MemoStats `json:"stats"`
}

// Control is the administrative surface shared by the HTTP API and the
// WebSocket actions.
type Control struct {
	ctx   context.Context
	eng   *polling.Engine
	sched *scheduler.Scheduler
}

// NewControl binds sessions started through it to ctx.
func NewControl(ctx context.Context, eng *polling.Engine, sched *scheduler.Scheduler) *Control {
	return &Control{ctx: ctx, eng: eng, sched: sched}
}

// Start begins a session. It does nothing while one is running.
func (c *Control) Start(id gamepad.ID, fps int, record bool) (Status, error) {
	if err := c.sched.Start(c.ctx, id, fps, record); err != nil {
		return Status{}, err
	}
	return c.Status(), nil
}

// Stop ends the running session and waits for it. It must not be called
// from a frame consumer.
func (c *Control) Stop() Status {
	c.sched.Stop()
	c.sched.Wait()
	return c.Status()
}

func (c *Control) Reset() {
	c.sched.Reset()
	log.Println("control: all controllers reset")
}

func (c *Control) SetLogSize(size int) error {
	return c.sched.SetRetention(size)
}

func (c *Control) PresentIDs() ([]gamepad.ID, error) {
	return c.sched.ListPresent()
}

// Report returns the latest result of id without waiting for the sampler.
func (c *Control) Report(id gamepad.ID) (DeviceReport, bool) {
	res, ok := c.eng.Result(id)
	if !ok {
		return DeviceReport{}, false
	}
	st, _ := c.eng.Stats(id)
	return DeviceReport{ID: id, Result: res, Stats: st}, true
}

func (c *Control) Status() Status {
	st := Status{
		Running: c.sched.Running(),
		Device:  c.sched.Device(),
		LogSize: c.eng.LogSize(),
	}
	if st.Running {
		st.Session = c.sched.Session()
	}
	return st
}
