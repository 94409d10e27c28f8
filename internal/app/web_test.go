package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/input"
	"github.com/relabs-tech/gamepad_polling/internal/metrics"
	"github.com/relabs-tech/gamepad_polling/internal/monitoring"
	"github.com/relabs-tech/gamepad_polling/internal/polling"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

func init() {
	monitoring.SetLogger(nil)
}

type testHost struct {
	srv *httptest.Server
	ctl *Control
	hub *Hub
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	eng := polling.NewEngine(input.NewVirtual(0, 1), polling.Options{CalculateInterval: 20})

	var hub *Hub
	sched := scheduler.New(eng, scheduler.ConsumerFunc(func(f scheduler.Frame) { hub.OnSnapshot(f) }), scheduler.Options{})
	ctl := NewControl(context.Background(), eng, sched)
	defaults := StartDefaults{ID: 0, FPS: 50, Record: true}
	hub = NewHub(ctl, defaults)

	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg))

	h := &testHost{srv: httptest.NewServer(NewServer(ctl, hub, defaults, reg)), ctl: ctl, hub: hub}
	t.Cleanup(func() {
		ctl.Stop()
		hub.Close()
		h.srv.Close()
	})
	return h
}

func (h *testHost) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

// ---- HTTP API ----

func TestAPI_IDs(t *testing.T) {
	h := newTestHost(t)
	code, body := h.do(t, http.MethodGet, "/api/ids", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"ids":[0,1]}`, body)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	h := newTestHost(t)

	code, _ := h.do(t, http.MethodGet, "/api/result?id=0", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body := h.do(t, http.MethodPost, "/api/start", `{"id":1,"fps":100}`)
	require.Equal(t, http.StatusOK, code, body)
	var st Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.True(t, st.Running)
	assert.Equal(t, gamepad.ID(1), st.Device)
	assert.NotEmpty(t, st.Session)

	require.Eventually(t, func() bool {
		code, body := h.do(t, http.MethodGet, "/api/result?id=1", "")
		if code != http.StatusOK {
			return false
		}
		var rep DeviceReport
		return json.Unmarshal([]byte(body), &rep) == nil && rep.Result.Ready()
	}, 3*time.Second, 20*time.Millisecond)

	code, body = h.do(t, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.False(t, st.Running)

	code, _ = h.do(t, http.MethodPost, "/api/reset", "")
	assert.Equal(t, http.StatusOK, code)
	code, body = h.do(t, http.MethodGet, "/api/result?id=1", "")
	require.Equal(t, http.StatusOK, code)
	var rep DeviceReport
	require.NoError(t, json.Unmarshal([]byte(body), &rep))
	assert.False(t, rep.Result.Ready())
	assert.Zero(t, rep.Stats.LogLen)
}

func TestAPI_StartDefaultsAndValidation(t *testing.T) {
	h := newTestHost(t)

	code, _ := h.do(t, http.MethodPost, "/api/start", `{"fps":-1}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = h.do(t, http.MethodPost, "/api/start", `{bad`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := h.do(t, http.MethodPost, "/api/start", "")
	require.Equal(t, http.StatusOK, code)
	var st Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, gamepad.ID(0), st.Device)
}

func TestAPI_LogSize(t *testing.T) {
	h := newTestHost(t)

	code, _ := h.do(t, http.MethodPost, "/api/log_size", `{"log_size":0}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := h.do(t, http.MethodPost, "/api/log_size", `{"log_size":300}`)
	require.Equal(t, http.StatusOK, code)
	var st Status
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, 300, st.LogSize)
}

func TestAPI_ResultInvalidID(t *testing.T) {
	h := newTestHost(t)
	code, _ := h.do(t, http.MethodGet, "/api/result?id=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAPI_Metrics(t *testing.T) {
	h := newTestHost(t)
	_, _ = h.do(t, http.MethodPost, "/api/start", `{"fps":100}`)

	assert.Eventually(t, func() bool {
		code, body := h.do(t, http.MethodGet, "/metrics", "")
		return code == http.StatusOK && strings.Contains(body, "gamepad_samples_recorded_total")
	}, 3*time.Second, 20*time.Millisecond)
}

// ---- WebSocket ----

func dialWS(t *testing.T, h *testHost) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) WSResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var resp WSResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Type == typ {
			return resp
		}
	}
}

func TestHub_ControlAndStream(t *testing.T) {
	h := newTestHost(t)
	conn := dialWS(t, h)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "ids"}))
	resp := readUntil(t, conn, "ids")
	assert.Equal(t, []gamepad.ID{0, 1}, resp.IDs)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "start", FPS: 100}))
	resp = readUntil(t, conn, "status")
	require.NotNil(t, resp.Status)
	assert.True(t, resp.Status.Running)

	resp = readUntil(t, conn, "frame")
	require.NotNil(t, resp.Frame)
	assert.Equal(t, gamepad.ID(0), resp.Frame.ID)
	assert.Equal(t, resp.Frame.Session, h.ctl.Status().Session)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "explode"}))
	resp = readUntil(t, conn, "error")
	assert.Equal(t, "unknown action: explode", resp.Message)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "set_log_size", LogSize: -3}))
	resp = readUntil(t, conn, "error")
	assert.Contains(t, resp.Message, "log size")

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "stop"}))
	resp = readUntil(t, conn, "status")
	require.NotNil(t, resp.Status)
	assert.False(t, resp.Status.Running)
}

func TestHub_ClientsTracked(t *testing.T) {
	h := newTestHost(t)
	conn := dialWS(t, h)

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "status"}))
	readUntil(t, conn, "status")
	assert.Equal(t, 1, h.hub.Clients())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return h.hub.Clients() == 0 }, 3*time.Second, 10*time.Millisecond)
}
