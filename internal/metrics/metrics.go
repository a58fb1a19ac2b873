// Package metrics provides OpenTelemetry instrumentation for price retrieval.
//
// Counters:
//   - cryptoprice.requests: HTTP requests sent to the provider, by endpoint and status
//   - cryptoprice.retries: retry waits, by reason (rate_limit, transport)
//   - cryptoprice.fetch.failures: terminal fetch failures, by error type
//   - cryptoprice.days.filled: requested days that received a price
//   - cryptoprice.days.missing: requested days without a price
//
// Spans: collector.FetchDailyPrices and collector.RunBatch.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/tomx220052/cryptoprice"

// Metric names.
const (
	RequestsTotal = "cryptoprice.requests"
	RetriesTotal  = "cryptoprice.retries"
	FailuresTotal = "cryptoprice.fetch.failures"
	DaysFilled    = "cryptoprice.days.filled"
	DaysMissing   = "cryptoprice.days.missing"
)

// Telemetry records metrics and spans. A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	tracer trace.Tracer

	requests    metric.Int64Counter
	retries     metric.Int64Counter
	failures    metric.Int64Counter
	daysFilled  metric.Int64Counter
	daysMissing metric.Int64Counter
}

// NewTelemetry creates a Telemetry bound to the global tracer and meter providers.
func NewTelemetry() (*Telemetry, error) {
	return NewTelemetryWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewTelemetryWithProviders creates a Telemetry with custom providers.
func NewTelemetryWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&t.requests, RequestsTotal, "Total number of HTTP requests sent to the price provider"},
		{&t.retries, RetriesTotal, "Total number of retry waits"},
		{&t.failures, FailuresTotal, "Total number of terminal fetch failures"},
		{&t.daysFilled, DaysFilled, "Requested days that received a price"},
		{&t.daysMissing, DaysMissing, "Requested days without a price"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}

	return t, nil
}

// Noop returns a Telemetry that discards everything.
func Noop() *Telemetry {
	t, _ := NewTelemetryWithProviders(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return t
}

// StartSpan starts an internal span with the given attributes.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordRequest records one provider request and its HTTP status (0 for transport failures).
func (t *Telemetry) RecordRequest(ctx context.Context, endpoint string, status int) {
	if t == nil {
		return
	}
	t.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.Int("http.status_code", status),
	))
}

// RecordRetry records a retry wait.
func (t *Telemetry) RecordRetry(ctx context.Context, endpoint, reason string, attempt int) {
	if t == nil {
		return
	}
	t.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
		attribute.Int("attempt", attempt),
	))
}

// RecordFailure records a terminal fetch failure.
func (t *Telemetry) RecordFailure(ctx context.Context, coinID, errType string) {
	if t == nil {
		return
	}
	t.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("coin", coinID),
		attribute.String("error.type", errType),
	))
}

// RecordDays records how many requested days were filled and missing.
func (t *Telemetry) RecordDays(ctx context.Context, coinID string, filled, missing int) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("coin", coinID))
	t.daysFilled.Add(ctx, int64(filled), attrs)
	t.daysMissing.Add(ctx, int64(missing), attrs)
}

// Snapshot maps metric names to their summed value across all attribute sets.
type Snapshot map[string]int64

// String renders the snapshot sorted by name, one metric per line.
func (s Snapshot) String() string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s %d\n", name, s[name])
	}
	return b.String()
}

// InProcess collects metrics in memory so they can be reported when a run ends.
type InProcess struct {
	*Telemetry

	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewInProcess creates an in-memory meter provider with a manual reader.
// Spans use the global tracer provider.
func NewInProcess() (*InProcess, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t, err := NewTelemetryWithProviders(otel.GetTracerProvider(), provider)
	if err != nil {
		return nil, err
	}
	return &InProcess{Telemetry: t, reader: reader, provider: provider}, nil
}

// Snapshot collects the current counter values.
func (p *InProcess) Snapshot(ctx context.Context) (Snapshot, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}
	return Summarize(rm), nil
}

// Shutdown releases the meter provider.
func (p *InProcess) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}

// Summarize sums every int64 sum data point by metric name.
func Summarize(rm metricdata.ResourceMetrics) Snapshot {
	out := make(Snapshot)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			out[m.Name] += total
		}
	}
	return out
}
