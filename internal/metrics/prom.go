package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SamplesRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gamepad_samples_recorded_total", Help: "Samples appended to a device log"},
		[]string{"device"},
	)
	SamplesDuplicate = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gamepad_samples_duplicate_total", Help: "Samples dropped as repeats of the previous report"},
		[]string{"device"},
	)
	DeviceUnavailable = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gamepad_device_unavailable_total", Help: "Record attempts that found no device"},
		[]string{"device"},
	)
	SamplesEvicted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gamepad_samples_evicted_total", Help: "Samples dropped from the head of a full log"},
		[]string{"device"},
	)
	PublishSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gamepad_publish_skipped_total", Help: "Publisher ticks skipped"},
		[]string{"reason"},
	)
	PollingRate = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "gamepad_polling_rate_hz", Help: "Last computed polling rate"},
		[]string{"device", "stat"},
	)
	AngularError = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "gamepad_angular_error", Help: "Last computed average angular error"},
		[]string{"device", "stick"},
	)
	StandbyTicks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "gamepad_sampler_standby_total", Help: "Sampler ticks spent in standby with no device present"},
	)
)

// Collectors returns every collector of this package for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		SamplesRecorded,
		SamplesDuplicate,
		DeviceUnavailable,
		SamplesEvicted,
		PublishSkipped,
		PollingRate,
		AngularError,
		StandbyTicks,
	}
}

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
