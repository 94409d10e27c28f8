package input

import (
	"errors"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
)

// ErrNotConnected is returned by Snapshot when no device answers for an id.
var ErrNotConnected = errors.New("input: device not connected")

// Source defines the interface for querying raw controller state.
type Source interface {
	// PresentIDs lists the currently connected controllers.
	PresentIDs() ([]gamepad.ID, error)
	// Snapshot reads the current state of one controller. It returns an
	// error wrapping ErrNotConnected when the controller is gone.
	Snapshot(id gamepad.ID) (gamepad.State, error)
}
