package app

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/relabs-tech/gamepad_polling/internal/config"
	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/input"
	"github.com/relabs-tech/gamepad_polling/internal/polling"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openSource builds the input source selected by SOURCE. The returned
// closer releases the serial port, if any.
func openSource(cfg *config.Config) (input.Source, io.Closer, error) {
	switch cfg.Source {
	case config.SourceSerial:
		s, err := input.OpenSerial(input.SerialOptions{
			PortName:   cfg.SerialPort,
			BaudRate:   uint(cfg.SerialBaudRate),
			StaleAfter: time.Duration(cfg.SerialStaleMs) * time.Millisecond,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.SourceVirtual:
		ids := make([]gamepad.ID, len(cfg.VirtualDevices))
		for i, id := range cfg.VirtualDevices {
			ids[i] = gamepad.ID(id)
		}
		log.Printf("source: virtual controllers %v", ids)
		return input.NewVirtual(ids...), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("source: unknown kind %q", cfg.Source)
	}
}

func newEngine(cfg *config.Config, src input.Source) *polling.Engine {
	return polling.NewEngine(src, polling.Options{
		LogSize:             cfg.LogSize,
		CalculateInterval:   cfg.CalculateInterval,
		DirectionPrecision:  uint32(cfg.DirectionPrecision),
		EvictFraction:       cfg.EvictFraction,
		ResetOnDeviceChange: cfg.ResetOnDeviceChange,
	})
}

func newScheduler(cfg *config.Config, eng *polling.Engine, c scheduler.Consumer) *scheduler.Scheduler {
	return scheduler.New(eng, c, scheduler.Options{
		SamplerPeriod: time.Duration(cfg.SamplerPeriodUs) * time.Microsecond,
		StandbyPeriod: time.Duration(cfg.StandbyPeriodUs) * time.Microsecond,
	})
}
