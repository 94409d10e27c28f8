package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/metrics"
	"github.com/relabs-tech/gamepad_polling/internal/polling"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

// ---- Fakes ----

type fakeToken struct {
	done    bool
	err     error
	doneCh  chan struct{}
	waitedD time.Duration
}

func newFakeToken(done bool, err error) *fakeToken {
	ch := make(chan struct{})
	if done {
		close(ch)
	}
	return &fakeToken{done: done, err: err, doneCh: ch}
}

func (t *fakeToken) Wait() bool { return t.done }

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	t.waitedD = d
	return t.done
}

func (t *fakeToken) Done() <-chan struct{} { return t.doneCh }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	token *fakeToken
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, payload: payload.([]byte)})
	return p.token
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func sampleFrame() scheduler.Frame {
	st := gamepad.State{ID: 3, Name: "Pad", Power: "Wired", Axes: gamepad.Axes{32767, 0, 0, -32767}, Buttons: gamepad.ButtonA | gamepad.ButtonB}
	return scheduler.Frame{
		Session: "s-1",
		ID:      3,
		Info:    st.Info(),
		Series: []gamepad.Point{
			{Timestamp: 0, Axes: [4]float64{1, 0, 0, -1}},
			{Timestamp: 1000, Axes: [4]float64{0.5, 0.5, 0, 0}},
		},
		Result: polling.Result{
			AvgRateHz: 1000, MinRateHz: 500, MaxRateHz: 2000, AvgIntervalMs: 1,
			AvgErrorLeft: 0.25, AvgErrorRight: 1, P99IntervalMs: 2, Pairs: 1,
		},
	}
}

// ---- MQTT ----

func TestFrameTopic(t *testing.T) {
	assert.Equal(t, "gamepad/polling/7", FrameTopic("gamepad/polling", 7))
}

func TestMQTTConsumer_PublishesFrame(t *testing.T) {
	pub := &fakePublisher{token: newFakeToken(true, nil)}
	c := NewMQTTConsumer(pub, "pads")

	c.OnSnapshot(sampleFrame())

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "pads/3", pub.msgs[0].topic)
	assert.Equal(t, publishTimeout, pub.token.waitedD)

	var got scheduler.Frame
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &got))
	assert.Equal(t, sampleFrame(), got)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(pub.msgs[0].payload, &raw))
	assert.JSONEq(t, `"s-1"`, string(raw["session"]))
	var result map[string]any
	require.NoError(t, json.Unmarshal(raw["result"], &result))
	assert.Contains(t, result, "polling_rate_avg")
	assert.Contains(t, result, "avg_error_l")
}

func TestMQTTConsumer_CountsFailures(t *testing.T) {
	timeouts := metrics.PublishSkipped.WithLabelValues("mqtt_timeout")
	errs := metrics.PublishSkipped.WithLabelValues("mqtt_error")
	beforeTimeout, beforeErr := testutil.ToFloat64(timeouts), testutil.ToFloat64(errs)

	NewMQTTConsumer(&fakePublisher{token: newFakeToken(false, nil)}, "p").OnSnapshot(sampleFrame())
	NewMQTTConsumer(&fakePublisher{token: newFakeToken(true, errors.New("broker gone"))}, "p").OnSnapshot(sampleFrame())

	assert.Equal(t, beforeTimeout+1, testutil.ToFloat64(timeouts))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(errs))
}

func TestFrameHandler(t *testing.T) {
	payload, err := json.Marshal(sampleFrame())
	require.NoError(t, err)

	var lines []string
	h := frameHandler(func(s string) { lines = append(lines, s) })
	h(nil, fakeMessage{topic: "pads/3", payload: payload})
	h(nil, fakeMessage{topic: "pads/3", payload: []byte("{not json")})

	require.Len(t, lines, 1)
	assert.Equal(t, FormatFrame(sampleFrame()), lines[0])
}

// ---- Console ----

func TestFormatFrame(t *testing.T) {
	line := FormatFrame(sampleFrame())
	assert.True(t, strings.HasPrefix(line, "[PAD 3] AVG= 1000.0Hz"), line)
	assert.Contains(t, line, "MIN=  500.0Hz")
	assert.Contains(t, line, "ERR L=0.2500 R=1.0000")
	assert.Contains(t, line, "N=2")
	assert.Contains(t, line, "buttons=A+B")
}

func TestFormatFrame_Waiting(t *testing.T) {
	f := sampleFrame()
	f.Result = polling.Result{}
	f.Info = gamepad.State{ID: 3}.Info()
	assert.Equal(t, "[PAD 3] waiting for samples (2 in log)  buttons=-", FormatFrame(f))
}

func TestConsoleConsumer(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleConsumer(&buf)
	c.OnSnapshot(sampleFrame())
	c.OnSnapshot(sampleFrame())
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

// ---- Fanout ----

func TestFanout(t *testing.T) {
	var order []string
	f := Fanout{
		scheduler.ConsumerFunc(func(scheduler.Frame) { order = append(order, "first") }),
		scheduler.ConsumerFunc(func(scheduler.Frame) { order = append(order, "second") }),
	}
	f.OnSnapshot(sampleFrame())
	assert.Equal(t, []string{"first", "second"}, order)
}
