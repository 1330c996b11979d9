// Package cloudwatch implements the observability ports against AWS
// CloudWatch Logs and CloudWatch Metrics, for Lambda deployments.
package cloudwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/NASA-IMPACT/hls-sentinel2-downloader-serverless/internal/application/ports"
)

// flushInterval governs the background flusher, balancing PutMetricData
// call volume against freshness.
const flushInterval = 10 * time.Second

const bufferCapacity = 20

// Metrics implements ports.Metrics by buffering datums and flushing them
// to CloudWatch Metrics on a ticker, so the hot path never blocks on a
// network call.
type Metrics struct {
	client    *cloudwatch.Client
	namespace string
	tags      map[string]string
	buffer    chan cwtypes.MetricDatum
}

// NewMetrics builds a CloudWatch metrics sink for namespace in region.
func NewMetrics(ctx context.Context, region, namespace string) (*Metrics, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config for cloudwatch metrics: %w", err)
	}

	m := &Metrics{
		client:    cloudwatch.NewFromConfig(awsCfg),
		namespace: namespace,
		tags:      map[string]string{},
		buffer:    make(chan cwtypes.MetricDatum, 100),
	}
	go m.flushLoop()
	return m, nil
}

func (m *Metrics) IncrementCounter(name string, tags map[string]string) {
	m.enqueue(name, 1, cwtypes.StandardUnitCount, tags)
}

func (m *Metrics) RecordHistogram(name string, value float64, tags map[string]string) {
	m.enqueue(name, value, cwtypes.StandardUnitNone, tags)
}

func (m *Metrics) RecordGauge(name string, value float64, tags map[string]string) {
	m.enqueue(name, value, cwtypes.StandardUnitNone, tags)
}

// WithTags returns a new Metrics sharing this instance's client and
// buffer, defaulting to the union of tags.
func (m *Metrics) WithTags(tags map[string]string) ports.Metrics {
	merged := make(map[string]string, len(m.tags)+len(tags))
	for k, v := range m.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}
	return &Metrics{client: m.client, namespace: m.namespace, tags: merged, buffer: m.buffer}
}

func (m *Metrics) enqueue(name string, value float64, unit cwtypes.StandardUnit, tags map[string]string) {
	merged := make(map[string]string, len(m.tags)+len(tags))
	for k, v := range m.tags {
		merged[k] = v
	}
	for k, v := range tags {
		merged[k] = v
	}

	metricName := name
	if component, ok := merged["component"]; ok && component != "" {
		metricName = component + "." + name
	}

	dimensions := make([]cwtypes.Dimension, 0, len(merged))
	for k, v := range merged {
		dimensions = append(dimensions, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}

	datum := cwtypes.MetricDatum{
		MetricName: aws.String(metricName),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: dimensions,
	}

	select {
	case m.buffer <- datum:
	default:
		// buffer full: drop rather than block the caller's hot path.
	}
}

func (m *Metrics) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]cwtypes.MetricDatum, 0, bufferCapacity)
	for {
		select {
		case datum := <-m.buffer:
			batch = append(batch, datum)
			if len(batch) >= bufferCapacity {
				m.flush(batch)
				batch = make([]cwtypes.MetricDatum, 0, bufferCapacity)
			}
		case <-ticker.C:
			if len(batch) > 0 {
				m.flush(batch)
				batch = make([]cwtypes.MetricDatum, 0, bufferCapacity)
			}
		}
	}
}

func (m *Metrics) flush(batch []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: batch,
	})
}
