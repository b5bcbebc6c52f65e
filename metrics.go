package goRecover

import "sync/atomic"

// MetricID names one engine counter. IDs are dense and stable; use
// [MetricsSnapshot] to read them.
type MetricID uint16

const (
	// MetricSetupSuccess is an exported constant or variable used by the recovery engine.
	MetricSetupSuccess MetricID = iota
	// MetricSetupFailure is an exported constant or variable used by the recovery engine.
	MetricSetupFailure
	// MetricResetBegin is an exported constant or variable used by the recovery engine.
	MetricResetBegin
	// MetricResetBeginFailure is an exported constant or variable used by the recovery engine.
	MetricResetBeginFailure
	// MetricResetRateLimited is an exported constant or variable used by the recovery engine.
	MetricResetRateLimited
	// MetricResetVerifySuccess is an exported constant or variable used by the recovery engine.
	MetricResetVerifySuccess
	// MetricResetVerifyFailure is an exported constant or variable used by the recovery engine.
	MetricResetVerifyFailure
	// MetricResetComplete is an exported constant or variable used by the recovery engine.
	MetricResetComplete
	// MetricResetCompleteFailure is an exported constant or variable used by the recovery engine.
	MetricResetCompleteFailure
	// MetricResetAbandoned is an exported constant or variable used by the recovery engine.
	MetricResetAbandoned
	// MetricChangeBegin is an exported constant or variable used by the recovery engine.
	MetricChangeBegin
	// MetricChangeBeginFailure is an exported constant or variable used by the recovery engine.
	MetricChangeBeginFailure
	// MetricChangeVerifySuccess is an exported constant or variable used by the recovery engine.
	MetricChangeVerifySuccess
	// MetricChangeVerifyFailure is an exported constant or variable used by the recovery engine.
	MetricChangeVerifyFailure
	// MetricChangeComplete is an exported constant or variable used by the recovery engine.
	MetricChangeComplete
	// MetricChangeCompleteFailure is an exported constant or variable used by the recovery engine.
	MetricChangeCompleteFailure
	// MetricLoginSuccess is an exported constant or variable used by the recovery engine.
	MetricLoginSuccess
	// MetricLoginFailure is an exported constant or variable used by the recovery engine.
	MetricLoginFailure
	// MetricLogout is an exported constant or variable used by the recovery engine.
	MetricLogout
	// MetricSessionInvalidated is an exported constant or variable used by the recovery engine.
	MetricSessionInvalidated

	metricIDCount
)

// paddedCounter keeps each counter on its own cache line.
type paddedCounter struct {
	value uint64
	_     [56]byte
}

// Metrics holds the engine's atomic flow counters.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

func newMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc adds one to the counter. No-op when metrics are disabled or id is out
// of range.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot returns a copy of the current counter values. An empty map is
// returned when metrics are disabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
