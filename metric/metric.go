// Package metric provides Prometheus metrics of pipeline components.
//
// All methods are safe to call on nil *Metrics, so components can be
// measured only when metrics are enabled.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cvpipe"

// Configure attempt results.
const (
	ResultCommitted   = "committed"
	ResultOpenFailed  = "open_failed"
	ResultUnsatisfied = "unsatisfied"
	ResultRejected    = "rejected"
)

// Metrics contains pipeline collectors.
type Metrics struct {
	state             prometheus.Gauge
	configureAttempts *prometheus.CounterVec
	delivered         *prometheus.CounterVec
	dropped           *prometheus.CounterVec
	skipped           *prometheus.CounterVec
	processErrors     *prometheus.CounterVec
	processDuration   *prometheus.HistogramVec
	consumers         prometheus.Gauge

	collectors []prometheus.Collector
}

// New creates metrics and registers them in provided registerer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current pipeline state: 0 unconfigured, 1 configured, 2 streaming",
		}),
		configureAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "configure_attempts_total",
			Help:      "Candidate configurations tried by result",
		}, []string{"result"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_delivered_total",
			Help:      "Sample sets delivered to consumers",
		}, []string{"consumer"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_dropped_total",
			Help:      "Sample sets dropped by asynchronous consumers",
		}, []string{"consumer"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_skipped_total",
			Help:      "Sample sets not relevant to consumer config",
		}, []string{"consumer"}),
		processErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_errors_total",
			Help:      "Sample sets that consumers failed to process",
		}, []string{"consumer"}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Time taken by consumers to process a sample set",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"consumer"}),
		consumers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consumers",
			Help:      "Number of active consumers",
		}),
	}
	m.collectors = []prometheus.Collector{
		m.state,
		m.configureAttempts,
		m.delivered,
		m.dropped,
		m.skipped,
		m.processErrors,
		m.processDuration,
		m.consumers,
	}
	for _, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Unregister removes all collectors from registerer.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if m == nil {
		return
	}
	for _, c := range m.collectors {
		reg.Unregister(c)
	}
}

// State sets current state value.
func (m *Metrics) State(v int) {
	if m == nil {
		return
	}
	m.state.Set(float64(v))
}

// ConfigureAttempt counts a tried candidate.
func (m *Metrics) ConfigureAttempt(result string) {
	if m == nil {
		return
	}
	m.configureAttempts.WithLabelValues(result).Inc()
}

// Consumers sets number of active consumers.
func (m *Metrics) Consumers(n int) {
	if m == nil {
		return
	}
	m.consumers.Set(float64(n))
}

// Meter returns meter of a single consumer.
func (m *Metrics) Meter(consumer string) *Meter {
	if m == nil {
		return nil
	}
	return &Meter{
		delivered: m.delivered.WithLabelValues(consumer),
		dropped:   m.dropped.WithLabelValues(consumer),
		skipped:   m.skipped.WithLabelValues(consumer),
		errors:    m.processErrors.WithLabelValues(consumer),
		duration:  m.processDuration.WithLabelValues(consumer),
	}
}

// Meter captures metrics of a single consumer. Nil meter discards
// everything.
type Meter struct {
	delivered prometheus.Counter
	dropped   prometheus.Counter
	skipped   prometheus.Counter
	errors    prometheus.Counter
	duration  prometheus.Observer
}

// Delivered counts a set handed to consumer.
func (m *Meter) Delivered() {
	if m == nil {
		return
	}
	m.delivered.Inc()
}

// Dropped counts a set discarded because consumer was too slow.
func (m *Meter) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// Skipped counts a set that is not relevant to consumer.
func (m *Meter) Skipped() {
	if m == nil {
		return
	}
	m.skipped.Inc()
}

// Processed captures processing time and result.
func (m *Meter) Processed(since time.Time, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(time.Since(since).Seconds())
	if err != nil {
		m.errors.Inc()
	}
}
