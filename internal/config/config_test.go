package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gamepad_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# only comments\n\n"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_AllKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
SOURCE=Serial
SERIAL_PORT=/dev/ttyACM0
SERIAL_BAUD_RATE=921600
SERIAL_STALE_MS=250
VIRTUAL_DEVICES=0, 2 ,5
DEVICE_ID=2
FRAME_RATE=60
RECORD=false
SAMPLER_PERIOD_US=125
STANDBY_PERIOD_US=20000
LOG_SIZE=4000
CALCULATE_INTERVAL=50
DIRECTION_PRECISION=2
EVICT_FRACTION=10
RESET_ON_DEVICE_CHANGE=true
MQTT_BROKER=tcp://broker:1883
MQTT_CLIENT_ID_PRODUCER=p
MQTT_CLIENT_ID_CONSOLE=c
TOPIC_PREFIX=pads/
WEB_SERVER_PORT=9090
`))
	require.NoError(t, err)

	want := &Config{
		Source:               SourceSerial,
		SerialPort:           "/dev/ttyACM0",
		SerialBaudRate:       921600,
		SerialStaleMs:        250,
		VirtualDevices:       []uint32{0, 2, 5},
		DeviceID:             2,
		FrameRate:            60,
		Record:               false,
		SamplerPeriodUs:      125,
		StandbyPeriodUs:      20000,
		LogSize:              4000,
		CalculateInterval:    50,
		DirectionPrecision:   2,
		EvictFraction:        10,
		ResetOnDeviceChange:  true,
		MQTTBroker:           "tcp://broker:1883",
		MQTTClientIDProducer: "p",
		MQTTClientIDConsole:  "c",
		TopicPrefix:          "pads",
		WebServerPort:        9090,
	}
	assert.Equal(t, want, cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing equals", "LOG_SIZE 10\n", "invalid config line 1"},
		{"unknown key", "NOPE=1\n", "unknown config key"},
		{"bad int", "LOG_SIZE=ten\n", "invalid LOG_SIZE"},
		{"out of range", "DIRECTION_PRECISION=16\n", "DIRECTION_PRECISION must be 0-15"},
		{"zero frame rate", "FRAME_RATE=0\n", "FRAME_RATE must be"},
		{"bad bool", "RECORD=maybe\n", "invalid RECORD"},
		{"bad id list", "VIRTUAL_DEVICES=1,x\n", "invalid VIRTUAL_DEVICES entry"},
		{"unknown source", "SOURCE=bluetooth\n", "SOURCE must be"},
		{"serial without port", "SOURCE=serial\n", "SERIAL_PORT is required"},
		{"standby shorter than sampler", "SAMPLER_PERIOD_US=5000\nSTANDBY_PERIOD_US=1000\n", "STANDBY_PERIOD_US"},
		{"empty broker", "MQTT_BROKER=\n", "MQTT_BROKER is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorContains(t, err, "failed to open config file")
}

func TestInitGlobal_LoadsOnce(t *testing.T) {
	first := writeConfig(t, "LOG_SIZE=10\n")
	second := writeConfig(t, "LOG_SIZE=20\n")

	require.NoError(t, InitGlobal(first))
	require.NoError(t, InitGlobal(second))
	require.NotNil(t, Get())
	assert.Equal(t, 10, Get().LogSize)
}
