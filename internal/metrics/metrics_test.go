package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcess_Snapshot(t *testing.T) {
	ctx := context.Background()
	p, err := NewInProcess()
	require.NoError(t, err)
	defer p.Shutdown(ctx)

	p.RecordRequest(ctx, "market_chart_range", 200)
	p.RecordRequest(ctx, "market_chart_range", 429)
	p.RecordRetry(ctx, "market_chart_range", "rate_limit", 1)
	p.RecordFailure(ctx, "nope", "not_found")
	p.RecordDays(ctx, "bitcoin", 3, 1)
	p.RecordDays(ctx, "ethereum", 2, 0)

	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), snap[RequestsTotal])
	assert.Equal(t, int64(1), snap[RetriesTotal])
	assert.Equal(t, int64(1), snap[FailuresTotal])
	assert.Equal(t, int64(5), snap[DaysFilled])
	assert.Equal(t, int64(1), snap[DaysMissing])
}

func TestSnapshot_String(t *testing.T) {
	s := Snapshot{RetriesTotal: 2, RequestsTotal: 5}

	assert.Equal(t, "cryptoprice.requests 5\ncryptoprice.retries 2\n", s.String())
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *Telemetry
	ctx := context.Background()

	assert.NotPanics(t, func() {
		tel.RecordRequest(ctx, "ping", 200)
		tel.RecordRetry(ctx, "ping", "transport", 1)
		tel.RecordFailure(ctx, "bitcoin", "transport")
		tel.RecordDays(ctx, "bitcoin", 1, 1)
		spanCtx, span := tel.StartSpan(ctx, "noop")
		span.End()
		assert.NotNil(t, spanCtx)
	})
}

func TestNoop(t *testing.T) {
	tel := Noop()
	require.NotNil(t, tel)

	ctx, span := tel.StartSpan(context.Background(), "collector.FetchDailyPrices")
	defer span.End()
	assert.NotNil(t, ctx)
	tel.RecordRequest(ctx, "ping", 200)
}
