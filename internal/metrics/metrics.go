// Package metrics exposes engine counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quakealert"

// Metrics holds every collector of the service
type Metrics struct {
	registry *prometheus.Registry

	attempts      *prometheus.CounterVec
	invalidated   prometheus.Counter
	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	eventsFetched prometheus.Gauge
	feedErrors    prometheus.Counter
	endpoints     prometheus.Gauge
	devices       prometheus.Gauge
	ledgerEntries *prometheus.GaugeVec
}

// New creates and registers the collectors on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Push delivery attempts by dispatch path and outcome",
		}, []string{"path", "outcome"}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoints_invalidated_total",
			Help:      "Endpoints removed after a permanent delivery error",
		}),
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_passes_total",
			Help:      "Poll passes by trigger and result",
		}, []string{"trigger", "result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_pass_duration_seconds",
			Help:      "Time spent in one fetch-filter-dispatch pass",
			Buckets:   prometheus.DefBuckets,
		}),
		eventsFetched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_events_last_fetch",
			Help:      "Number of events returned by the last feed fetch",
		}),
		feedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Failed feed fetches",
		}),
		endpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_endpoints",
			Help:      "Registered delivery endpoints",
		}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_devices",
			Help:      "Devices with a configuration",
		}),
		ledgerEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_entries",
			Help:      "Event ids held by the dedup ledger",
		}, []string{"scope"}),
	}

	m.registry.MustRegister(
		m.attempts, m.invalidated, m.passes, m.passDuration,
		m.eventsFetched, m.feedErrors, m.endpoints, m.devices, m.ledgerEntries,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveAttempt(path, outcome string) {
	m.attempts.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) ObserveInvalidation() {
	m.invalidated.Inc()
}

func (m *Metrics) ObservePass(trigger, result string, d time.Duration) {
	m.passes.WithLabelValues(trigger, result).Inc()
	if result != "skipped" {
		m.passDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) ObserveFetch(events int, err error) {
	if err != nil {
		m.feedErrors.Inc()
		return
	}
	m.eventsFetched.Set(float64(events))
}

// SetRegistrySize updates the endpoint and device gauges
func (m *Metrics) SetRegistrySize(endpoints, devices int) {
	m.endpoints.Set(float64(endpoints))
	m.devices.Set(float64(devices))
}

// SetLedgerSize updates the ledger gauges
func (m *Metrics) SetLedgerSize(endpointEntries, deviceEntries int) {
	m.ledgerEntries.WithLabelValues("endpoint").Set(float64(endpointEntries))
	m.ledgerEntries.WithLabelValues("device").Set(float64(deviceEntries))
}
