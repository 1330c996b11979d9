package observability

import "github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"

// fanoutMetrics records every observation on both the process's normal
// Metrics sink (stdout/cloudwatch) and a secondary sink, used by
// cmd/subscriptionhandler to keep the Prometheus registry populated
// alongside the structured metrics every other component emits.
type fanoutMetrics struct {
	primary   ports.Metrics
	secondary ports.Metrics
}

// Fanout wraps primary so every call also reaches secondary.
func Fanout(primary, secondary ports.Metrics) ports.Metrics {
	return &fanoutMetrics{primary: primary, secondary: secondary}
}

func (f *fanoutMetrics) IncrementCounter(name string, tags map[string]string) {
	f.primary.IncrementCounter(name, tags)
	f.secondary.IncrementCounter(name, tags)
}

func (f *fanoutMetrics) RecordHistogram(name string, value float64, tags map[string]string) {
	f.primary.RecordHistogram(name, value, tags)
	f.secondary.RecordHistogram(name, value, tags)
}

func (f *fanoutMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	f.primary.RecordGauge(name, value, tags)
	f.secondary.RecordGauge(name, value, tags)
}

func (f *fanoutMetrics) WithTags(tags map[string]string) ports.Metrics {
	return &fanoutMetrics{primary: f.primary.WithTags(tags), secondary: f.secondary.WithTags(tags)}
}
