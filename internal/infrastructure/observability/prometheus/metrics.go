// Package prometheus implements ports.Metrics against a Prometheus
// registry, in the style of the teacher's
// shared/observability/metrics/prometheus_metrics.go generalized from a
// fixed metric set to the arbitrary name/tags shape ports.Metrics exposes.
// It backs the long-running subscription HTTP listener, the one component
// in this repo alive long enough for scraping to make sense (spec.md §5,
// "unbounded parallelism" for the push handler).
package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// Metrics implements ports.Metrics, registering one Prometheus vec per
// distinct metric name on first use.
type Metrics struct {
	registry *prometheus.Registry
	tags     map[string]string

	mu         *sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewMetrics builds a Metrics backed by a fresh Prometheus registry, which
// the caller exposes via Registry() for a /metrics endpoint.
func NewMetrics() *Metrics {
	return &Metrics{
		registry:   prometheus.NewRegistry(),
		tags:       map[string]string{},
		mu:         &sync.Mutex{},
		counters:   map[string]*prometheus.CounterVec{},
		histograms: map[string]*prometheus.HistogramVec{},
		gauges:     map[string]*prometheus.GaugeVec{},
	}
}

// Registry returns the underlying Prometheus registry for scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncrementCounter(name string, tags map[string]string) {
	merged := m.mergeTags(tags)
	labels := labelNames(merged)

	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: sanitize(name), Help: name}, labels)
		m.registry.MustRegister(vec)
		m.counters[name] = vec
	}
	m.mu.Unlock()

	vec.With(prometheus.Labels(merged)).Inc()
}

func (m *Metrics) RecordHistogram(name string, value float64, tags map[string]string) {
	merged := m.mergeTags(tags)
	labels := labelNames(merged)

	m.mu.Lock()
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: sanitize(name), Help: name, Buckets: prometheus.DefBuckets}, labels)
		m.registry.MustRegister(vec)
		m.histograms[name] = vec
	}
	m.mu.Unlock()

	vec.With(prometheus.Labels(merged)).Observe(value)
}

func (m *Metrics) RecordGauge(name string, value float64, tags map[string]string) {
	merged := m.mergeTags(tags)
	labels := labelNames(merged)

	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: sanitize(name), Help: name}, labels)
		m.registry.MustRegister(vec)
		m.gauges[name] = vec
	}
	m.mu.Unlock()

	vec.With(prometheus.Labels(merged)).Set(value)
}

// WithTags returns a Metrics sharing this instance's registry and vecs,
// defaulting to the union of tags on every subsequent call.
func (m *Metrics) WithTags(tags map[string]string) ports.Metrics {
	return &Metrics{
		registry:   m.registry,
		tags:       m.mergeTags(tags),
		mu:         m.mu,
		counters:   m.counters,
		histograms: m.histograms,
		gauges:     m.gauges,
	}
}

func (m *Metrics) mergeTags(tags map[string]string) map[string]string {
	merged := make(map[string]string, len(m.tags)+len(tags))
	for k, v := range m.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	return merged
}

func labelNames(tags map[string]string) []string {
	names := make([]string, 0, len(tags))
	for k := range tags {
		names = append(names, k)
	}
	return names
}

// sanitize maps a dotted metric name (this repo's convention, e.g.
// "subscription.admitted") onto the underscore-separated form Prometheus
// requires.
func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == '-' {
			out[i] = '_'
		} else {
			out[i] = c
		}
	}
	return string(out)
}
