package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/fusionflow/image"
)

const meterName = "github.com/BaSui01/fusionflow/image"

// Recorder 将生成与轮询事件记录为 OTel 指标，经 Init 安装的 MeterProvider
// 通过 OTLP 导出。遥测禁用时全局 MeterProvider 为 noop。
type Recorder struct {
	generations metric.Int64Counter
	duration    metric.Float64Histogram
	polls       metric.Int64Counter
}

var _ image.MetricsRecorder = (*Recorder)(nil)

// NewRecorder creates the instruments on meter; a nil meter uses the global
// MeterProvider.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	generations, err := meter.Int64Counter("fusionflow.image.generations",
		metric.WithDescription("Completed image generations by engine and outcome"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("fusionflow.image.generation.duration",
		metric.WithDescription("End to end generation latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 20, 40, 60, 120),
	)
	if err != nil {
		return nil, err
	}
	polls, err := meter.Int64Counter("fusionflow.image.poll.attempts",
		metric.WithDescription("Evaluated poll attempts by engine and status"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}
	return &Recorder{generations: generations, duration: duration, polls: polls}, nil
}

// ObserveGeneration implements image.MetricsRecorder.
func (r *Recorder) ObserveGeneration(engine, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("image.engine", engine),
		attribute.String("outcome", outcome),
	)
	ctx := context.Background()
	r.generations.Add(ctx, 1, attrs)
	r.duration.Record(ctx, d.Seconds(), attrs)
}

// ObservePollAttempt implements image.PollObserver.
func (r *Recorder) ObservePollAttempt(engine string, status image.JobStatus) {
	r.polls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("image.engine", engine),
		attribute.String("status", string(status)),
	))
}
