package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Input source kinds accepted by SOURCE.
const (
	SourceVirtual = "virtual"
	SourceSerial  = "serial"
)

// Config holds all application configuration values.
type Config struct {
	// Input source
	Source         string   // "virtual" or "serial"
	SerialPort     string
	SerialBaudRate int
	SerialStaleMs  int      // milliseconds without a report before a controller is gone
	VirtualDevices []uint32 // controller ids served by the virtual source

	// Session
	DeviceID  int
	FrameRate int // publisher frames per second
	Record    bool

	// Timing
	SamplerPeriodUs int // microseconds
	StandbyPeriodUs int // microseconds

	// Engine
	LogSize             int
	CalculateInterval   int
	DirectionPrecision  int
	EvictFraction       int
	ResetOnDeviceChange bool

	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	TopicPrefix          string

	// Web Server
	WebServerPort int
}

// globalConfig is only reachable through InitGlobal and Get. configOnce
// makes InitGlobal run once; configMu lets Get take a read lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Source:         SourceVirtual,
		SerialBaudRate: 115200,
		SerialStaleMs:  500,
		VirtualDevices: []uint32{0},

		DeviceID:  0,
		FrameRate: 30,
		Record:    true,

		SamplerPeriodUs: 250,
		StandbyPeriodUs: 10000,

		LogSize:           2000,
		CalculateInterval: 100,
		EvictFraction:     20,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "gamepad-producer",
		MQTTClientIDConsole:  "gamepad-console",
		TopicPrefix:          "gamepad/polling",

		WebServerPort: 8080,
	}
}

// Load reads the configuration file and returns a Config struct.
// Keys missing from the file keep their Default value.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Input source
	case "SOURCE":
		c.Source = strings.ToLower(value)
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value, 1, 4_000_000)
	case "SERIAL_STALE_MS":
		c.SerialStaleMs, err = parseInt(key, value, 1, 60_000)
	case "VIRTUAL_DEVICES":
		c.VirtualDevices, err = parseIDs(key, value)

	// Session
	case "DEVICE_ID":
		c.DeviceID, err = parseInt(key, value, 0, 1<<31-1)
	case "FRAME_RATE":
		c.FrameRate, err = parseInt(key, value, 1, 1_000_000)
	case "RECORD":
		c.Record, err = parseBool(key, value)

	// Timing
	case "SAMPLER_PERIOD_US":
		c.SamplerPeriodUs, err = parseInt(key, value, 1, 1_000_000)
	case "STANDBY_PERIOD_US":
		c.StandbyPeriodUs, err = parseInt(key, value, 1, 10_000_000)

	// Engine
	case "LOG_SIZE":
		c.LogSize, err = parseInt(key, value, 1, 10_000_000)
	case "CALCULATE_INTERVAL":
		c.CalculateInterval, err = parseInt(key, value, 1, 10_000_000)
	case "DIRECTION_PRECISION":
		c.DirectionPrecision, err = parseInt(key, value, 0, 15)
	case "EVICT_FRACTION":
		c.EvictFraction, err = parseInt(key, value, 1, 10_000)
	case "RESET_ON_DEVICE_CHANGE":
		c.ResetOnDeviceChange, err = parseBool(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "TOPIC_PREFIX":
		c.TopicPrefix = strings.TrimSuffix(value, "/")

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 1, 65535)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

// parseIDs reads a comma separated list of controller ids.
func parseIDs(key, value string) ([]uint32, error) {
	var ids []uint32
	for _, f := range strings.Split(value, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		id, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, f, err)
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

// validate checks the values that depend on each other.
func (c *Config) validate() error {
	switch c.Source {
	case SourceVirtual:
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required when SOURCE=serial")
		}
	default:
		return fmt.Errorf("SOURCE must be %q or %q, got %q", SourceVirtual, SourceSerial, c.Source)
	}
	if c.StandbyPeriodUs < c.SamplerPeriodUs {
		return fmt.Errorf("STANDBY_PERIOD_US (%d) must not be shorter than SAMPLER_PERIOD_US (%d)", c.StandbyPeriodUs, c.SamplerPeriodUs)
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicPrefix == "" {
		return fmt.Errorf("TOPIC_PREFIX is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads anything; later calls are no-ops.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
