package app

import "github.com/relabs-tech/gamepad_polling/internal/scheduler"

// Fanout hands every frame to each consumer in order.
type Fanout []scheduler.Consumer

func (f Fanout) OnSnapshot(frame scheduler.Frame) {
	for _, c := range f {
		c.OnSnapshot(frame)
	}
}
