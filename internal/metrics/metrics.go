// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vsd_gateway"

// Metrics exports polling engine counters. It implements poller.Recorder.
type Metrics struct {
	cycles       *prometheus.CounterVec
	cycleSeconds prometheus.Histogram
	reconnects   *prometheus.CounterVec
	online       *prometheus.GaugeVec
	failures     *prometheus.CounterVec
	paramErrors  *prometheus.CounterVec
	plcReads     *prometheus.CounterVec
	mqttPublish  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Polling cycles by result.",
		}, []string{"result"}),
		cycleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_seconds",
			Help:      "Wall time of one polling cycle.",
			Buckets:   []float64{.05, .1, .25, .5, .75, 1, 1.5, 2, 5},
		}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Serial reconnect sequences by result.",
		}, []string{"result"}),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_online",
			Help:      "1 while the drive is ONLINE, 0 while OFFLINE.",
		}, []string{"device"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_failures_total",
			Help:      "Device-level probe failures.",
		}, []string{"device", "kind"}),
		paramErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parameter_errors_total",
			Help:      "Failed parameter reads inside otherwise answered sweeps.",
		}, []string{"device", "parameter"}),
		plcReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plc_reads_total",
			Help:      "PLC tag block reads by result.",
		}, []string{"result"}),
		mqttPublish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publishes_total",
			Help:      "MQTT snapshot publishes by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.cycles,
		m.cycleSeconds,
		m.reconnects,
		m.online,
		m.failures,
		m.paramErrors,
		m.plcReads,
		m.mqttPublish,
	)

	return m
}

func (m *Metrics) Cycle(result string, elapsed time.Duration) {
	m.cycles.WithLabelValues(result).Inc()
	m.cycleSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) Reconnect(ok bool) {
	m.reconnects.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) DeviceFailure(device, kind string) {
	m.failures.WithLabelValues(device, kind).Inc()
}

func (m *Metrics) ParameterError(device, parameter string) {
	m.paramErrors.WithLabelValues(device, parameter).Inc()
}

func (m *Metrics) DeviceState(device string, online bool) {
	v := 0.0
	if online {
		v = 1
	}
	m.online.WithLabelValues(device).Set(v)
}

// PLCRead counts one PLC poll.
func (m *Metrics) PLCRead(ok bool) {
	m.plcReads.WithLabelValues(result(ok)).Inc()
}

// Publish counts one MQTT publish.
func (m *Metrics) Publish(ok bool) {
	m.mqttPublish.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
