package gamepad

import "strings"

// Buttons is a bit set of digital buttons in XInput order.
type Buttons uint16

const (
	ButtonA Buttons = 1 << iota
	ButtonB
	ButtonX
	ButtonY
	ButtonLeftShoulder
	ButtonRightShoulder
	ButtonBack
	ButtonStart
	ButtonLeftThumb
	ButtonRightThumb
	ButtonDPadUp
	ButtonDPadDown
	ButtonDPadLeft
	ButtonDPadRight
)

// buttonNames is indexed by bit position.
var buttonNames = [...]string{
	"A", "B", "X", "Y",
	"LeftShoulder", "RightShoulder",
	"Back", "Start",
	"LeftThumb", "RightThumb",
	"DPadUp", "DPadDown", "DPadLeft", "DPadRight",
}

// Pressed reports whether every bit in b is set.
func (bs Buttons) Pressed(b Buttons) bool { return bs&b == b }

func (bs Buttons) String() string {
	var names []string
	for i, name := range buttonNames {
		if bs&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, "+")
}
