package gamepad

// ID identifies a controller slot as reported by the input source.
type ID uint32

// MaxAxis is the largest magnitude a raw stick axis can report.
const MaxAxis = 32767.0

// Axes holds the two analog sticks as LX, LY, RX, RY.
type Axes [4]int16

// Left returns the left stick X/Y pair.
func (a Axes) Left() (int16, int16) { return a[0], a[1] }

// Right returns the right stick X/Y pair.
func (a Axes) Right() (int16, int16) { return a[2], a[3] }

// Normalized scales every axis into [-1, 1].
func (a Axes) Normalized() [4]float64 {
	return [4]float64{
		NormalizeAxis(a[0]),
		NormalizeAxis(a[1]),
		NormalizeAxis(a[2]),
		NormalizeAxis(a[3]),
	}
}

// NormalizeAxis scales a raw axis value into [-1, 1]. The negative
// extreme -32768 is clamped.
func NormalizeAxis(v int16) float64 {
	f := float64(v) / MaxAxis
	if f < -1 {
		return -1
	}
	return f
}

// State represents a single raw controller snapshot.
type State struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Power string `json:"power"` // "Full", "Medium", "Low", "Empty", "Wired", "Virtual", "Unknown"

	Axes Axes `json:"axes"`

	Buttons      Buttons `json:"buttons"`
	LeftTrigger  uint8   `json:"lt"`
	RightTrigger uint8   `json:"rt"`
}

// Info converts the raw state into its presentation view.
func (s State) Info() Info {
	axes := s.Axes.Normalized()
	info := Info{
		ID:    s.ID,
		Name:  s.Name,
		Power: s.Power,
		Axes: map[string]float64{
			"LeftThumbX":  axes[0],
			"LeftThumbY":  axes[1],
			"RightThumbX": axes[2],
			"RightThumbY": axes[3],
		},
		Buttons: make(map[string]ButtonValue, len(buttonNames)+2),
	}
	for i, name := range buttonNames {
		pressed := s.Buttons&(1<<uint(i)) != 0
		v := 0.0
		if pressed {
			v = 1
		}
		info.Buttons[name] = ButtonValue{Pressed: pressed, Value: v}
	}
	info.Buttons["LeftTrigger"] = ButtonValue{Pressed: s.LeftTrigger > 0, Value: float64(s.LeftTrigger) / 255.0}
	info.Buttons["RightTrigger"] = ButtonValue{Pressed: s.RightTrigger > 0, Value: float64(s.RightTrigger) / 255.0}
	return info
}

// Info is the normalized controller view handed to consumers.
type Info struct {
	ID      ID                     `json:"id"`
	Name    string                 `json:"name"`
	Power   string                 `json:"power"`
	Axes    map[string]float64     `json:"axes"`
	Buttons map[string]ButtonValue `json:"buttons"`
}

// ButtonValue is a single button or trigger in the normalized view.
type ButtonValue struct {
	Pressed bool    `json:"pressed"`
	Value   float64 `json:"value"` // 0..1
}

// Point is one sample of the polling-rate series as shown to consumers:
// the timestamp in microseconds and the stick axes scaled to [-1, 1].
type Point struct {
	Timestamp uint64     `json:"timestamp"`
	Axes      [4]float64 `json:"xyxy"`
}

// Sample is one timestamped capture of the stick axes. Timestamp is in
// microseconds since the owning log was created.
type Sample struct {
	Timestamp uint64 `json:"timestamp"`
	Axes      Axes   `json:"xyxy"`
}

// Point converts the sample into its normalized series entry.
func (s Sample) Point() Point {
	return Point{Timestamp: s.Timestamp, Axes: s.Axes.Normalized()}
}
