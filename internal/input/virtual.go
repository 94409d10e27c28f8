// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package input

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
)

// VirtualPeriod is the time the virtual left stick takes for one full turn.
const VirtualPeriod = 5 * time.Second

// Virtual is a software controller source. Its left stick sweeps the full
// circle once per VirtualPeriod, the right stick rests at the center and
// both triggers follow the sweep.
type Virtual struct {
	mu    sync.RWMutex
	ids   map[gamepad.ID]bool
	start time.Time
	now   func() time.Time
}

// NewVirtual creates a virtual source with the given controllers connected.
func NewVirtual(ids ...gamepad.ID) *Virtual {
	v := &Virtual{
		ids:   make(map[gamepad.ID]bool, len(ids)),
		start: time.Now(),
		now:   time.Now,
	}
	for _, id := range ids {
		v.ids[id] = true
	}
	return v
}

// SetClock replaces the time source. Used by tests to freeze the sweep.
func (v *Virtual) SetClock(now func() time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.now = now
	v.start = now()
}

// Connect plugs a virtual controller in.
func (v *Virtual) Connect(id gamepad.ID) {
	v.mu.Lock()
	v.ids[id] = true
	v.mu.Unlock()
}

// Disconnect unplugs a virtual controller.
func (v *Virtual) Disconnect(id gamepad.ID) {
	v.mu.Lock()
	delete(v.ids, id)
	v.mu.Unlock()
}

// PresentIDs returns connected ids in ascending order.
func (v *Virtual) PresentIDs() ([]gamepad.ID, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]gamepad.ID, 0, len(v.ids))
	for id := range v.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Snapshot returns the current virtual state of id.
func (v *Virtual) Snapshot(id gamepad.ID) (gamepad.State, error) {
	v.mu.RLock()
	connected := v.ids[id]
	elapsed := v.now().Sub(v.start).Seconds()
	v.mu.RUnlock()

	if !connected {
		return gamepad.State{}, fmt.Errorf("virtual controller %d: %w", id, ErrNotConnected)
	}

	phase := elapsed * 2 * math.Pi / VirtualPeriod.Seconds()
	axis := func(f float64) int16 { return int16(f * gamepad.MaxAxis) }
	trigger := uint8((math.Sin(phase)*0.5 + 0.5) * 255)

	var buttons gamepad.Buttons
	if int(elapsed)%2 == 1 {
		buttons |= gamepad.ButtonA
	}

	return gamepad.State{
		ID:           id,
		Name:         fmt.Sprintf("Virtual Controller %d", id),
		Power:        "Virtual",
		Axes:         gamepad.Axes{axis(math.Cos(phase)), axis(math.Sin(phase)), 0, 0},
		Buttons:      buttons,
		LeftTrigger:  trigger,
		RightTrigger: trigger,
	}, nil
}
