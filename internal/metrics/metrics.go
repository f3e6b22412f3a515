// Package metrics wires the daemon's request and job counters into
// OpenTelemetry metric instruments. It stands in the same place the
// teacher's hooks package uses OpenTelemetry for span tracing
// (internal/hooks/hooks_otel.go), adapted here to counters and
// histograms since the daemon has no distributed trace to attach spans
// to across a single unix-socket hop.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder holds the instruments the rpc server and scheduler report
// into. A nil *Recorder is always safe to call methods on: every method
// guards on it, so metrics stay fully optional.
type Recorder struct {
	provider *sdkmetric.MeterProvider

	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	jobRuns         metric.Int64Counter
	jobFailures     metric.Int64Counter
	jobDuration     metric.Float64Histogram
}

// New builds a Recorder backed by an in-process meter provider. reader
// may be nil, in which case metrics are computed but
// never exported, which is enough to exercise the instrument API without
// requiring an external collector for local runs.
func New(reader sdkmetric.Reader) (*Recorder, error) {
	var opts []sdkmetric.Option
	if reader != nil {
		opts = append(opts, sdkmetric.WithReader(reader))
	}
	provider := sdkmetric.NewMeterProvider(opts...)
	meter := provider.Meter("github.com/agentmemory/memd")

	requests, err := meter.Int64Counter("memd.rpc.requests",
		metric.WithDescription("RPC requests handled, by operation"))
	if err != nil {
		return nil, err
	}
	requestDuration, err := meter.Float64Histogram("memd.rpc.request.duration_ms",
		metric.WithDescription("RPC request latency in milliseconds"))
	if err != nil {
		return nil, err
	}
	requestErrors, err := meter.Int64Counter("memd.rpc.request.errors",
		metric.WithDescription("RPC requests that returned an error, by operation and code"))
	if err != nil {
		return nil, err
	}
	jobRuns, err := meter.Int64Counter("memd.scheduler.job.runs",
		metric.WithDescription("scheduler job runs, by job name"))
	if err != nil {
		return nil, err
	}
	jobFailures, err := meter.Int64Counter("memd.scheduler.job.failures",
		metric.WithDescription("scheduler job runs that returned an error, by job name"))
	if err != nil {
		return nil, err
	}
	jobDuration, err := meter.Float64Histogram("memd.scheduler.job.duration_ms",
		metric.WithDescription("scheduler job run latency in milliseconds"))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		provider:        provider,
		requests:        requests,
		requestDuration: requestDuration,
		requestErrors:   requestErrors,
		jobRuns:         jobRuns,
		jobFailures:     jobFailures,
		jobDuration:     jobDuration,
	}, nil
}

// RecordRequest reports one RPC call's outcome and latency.
func (r *Recorder) RecordRequest(ctx context.Context, operation string, dur time.Duration, errCode string) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	r.requests.Add(ctx, 1, attrs)
	r.requestDuration.Record(ctx, float64(dur.Milliseconds()), attrs)
	if errCode != "" {
		r.requestErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("code", errCode),
		))
	}
}

// RecordJob reports one scheduler job run's outcome and latency.
func (r *Recorder) RecordJob(ctx context.Context, name string, dur time.Duration, err error) {
	if r == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("job", name))
	r.jobRuns.Add(ctx, 1, attrs)
	r.jobDuration.Record(ctx, float64(dur.Milliseconds()), attrs)
	if err != nil {
		r.jobFailures.Add(ctx, 1, attrs)
	}
}

// Shutdown flushes and releases the underlying meter provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}
