// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/relabs-tech/gamepad_polling/internal/config"
	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

// FormatFrame renders one frame as a single console line.
func FormatFrame(f scheduler.Frame) string {
	r := f.Result
	if !r.Ready() {
		return fmt.Sprintf("[PAD %d] waiting for samples (%d in log)  buttons=%s",
			f.ID, len(f.Series), pressedButtons(f.Info))
	}
	return fmt.Sprintf(
		"[PAD %d] AVG=%7.1fHz  MIN=%7.1fHz  MAX=%7.1fHz  INT=%6.3fms  P99=%6.3fms  ERR L=%.4f R=%.4f  N=%d  buttons=%s",
		f.ID, r.AvgRateHz, r.MinRateHz, r.MaxRateHz, r.AvgIntervalMs, r.P99IntervalMs,
		r.AvgErrorLeft, r.AvgErrorRight, len(f.Series), pressedButtons(f.Info),
	)
}

func pressedButtons(info gamepad.Info) string {
	var names []string
	for name, b := range info.Buttons {
		if b.Pressed {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	sort.Strings(names)
	return strings.Join(names, "+")
}

// ConsoleConsumer prints one line per frame.
type ConsoleConsumer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsoleConsumer(w io.Writer) *ConsoleConsumer {
	return &ConsoleConsumer{w: w}
}

func (c *ConsoleConsumer) OnSnapshot(f scheduler.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, FormatFrame(f))
}

// RunMockConsole samples the virtual controllers and prints their rates
// until interrupted.
func RunMockConsole() error {
	cfg := config.Default()
	if global := config.Get(); global != nil {
		c := *global
		cfg = &c
	}
	cfg.Source = config.SourceVirtual

	src, closer, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	eng := newEngine(cfg, src)
	sched := newScheduler(cfg, eng, NewConsoleConsumer(os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx, gamepad.ID(cfg.DeviceID), cfg.FrameRate, true); err != nil {
		return err
	}
	sched.Wait()
	return nil
}
