package connectivity

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "plantpot"

var allStates = []State{StateIdle, StateConnecting, StateConnected, StateDisconnected, StateError}

// Metrics exports Controller activity to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	state        *prometheus.GaugeVec
	reconnects   prometheus.Counter
	retryDelay   prometheus.Gauge
	samples      *prometheus.CounterVec
	streamErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Current connection state (1 for the active state).",
		}, []string{"state"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Automatic reconnect attempts made.",
		}),
		retryDelay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "connection",
			Name:      "retry_delay_seconds",
			Help:      "Delay of the pending reconnect, 0 when none is scheduled.",
		}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "telemetry",
			Name:      "samples_total",
			Help:      "Telemetry samples received.",
		}, []string{"transport"}),
		streamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "telemetry",
			Name:      "stream_errors_total",
			Help:      "Non-fatal stream errors reported by transports.",
		}, []string{"transport"}),
	}

	if reg != nil {
		reg.MustRegister(m.state, m.reconnects, m.retryDelay, m.samples, m.streamErrors)
	}
	return m
}

func (m *Metrics) observeState(s State) {
	if m == nil {
		return
	}
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(string(st)).Set(v)
	}
}

func (m *Metrics) observeReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) observeRetryDelay(seconds float64) {
	if m == nil {
		return
	}
	m.retryDelay.Set(seconds)
}

func (m *Metrics) observeSample(t Transport) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) observeStreamError(t Transport) {
	if m == nil {
		return
	}
	m.streamErrors.WithLabelValues(string(t)).Inc()
}
