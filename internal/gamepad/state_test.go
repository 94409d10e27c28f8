package gamepad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAxis(t *testing.T) {
	assert.Equal(t, 1.0, NormalizeAxis(32767))
	assert.Equal(t, 0.0, NormalizeAxis(0))
	assert.Equal(t, -1.0, NormalizeAxis(-32767))
	assert.Equal(t, -1.0, NormalizeAxis(-32768), "negative extreme is clamped")
}

func TestStateInfo(t *testing.T) {
	s := State{
		ID:           2,
		Name:         "pad",
		Power:        "Full",
		Axes:         Axes{32767, 0, -32767, 0},
		Buttons:      ButtonA | ButtonStart,
		LeftTrigger:  255,
		RightTrigger: 0,
	}
	info := s.Info()

	assert.Equal(t, ID(2), info.ID)
	assert.Equal(t, 1.0, info.Axes["LeftThumbX"])
	assert.Equal(t, -1.0, info.Axes["RightThumbX"])
	assert.True(t, info.Buttons["A"].Pressed)
	assert.True(t, info.Buttons["Start"].Pressed)
	assert.False(t, info.Buttons["B"].Pressed)
	assert.Equal(t, 1.0, info.Buttons["LeftTrigger"].Value)
	assert.False(t, info.Buttons["RightTrigger"].Pressed)
	assert.Len(t, info.Buttons, 16)
}

func TestButtonsString(t *testing.T) {
	assert.Equal(t, "-", Buttons(0).String())
	assert.Equal(t, "A+DPadUp", (ButtonA | ButtonDPadUp).String())
	assert.True(t, (ButtonA | ButtonB).Pressed(ButtonB))
	assert.False(t, ButtonA.Pressed(ButtonA|ButtonB))
}

func TestAxesPairs(t *testing.T) {
	a := Axes{1, 2, 3, 4}
	lx, ly := a.Left()
	rx, ry := a.Right()
	assert.Equal(t, []int16{1, 2, 3, 4}, []int16{lx, ly, rx, ry})
}
