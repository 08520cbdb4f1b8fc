package sim

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/rustyeddy/papertrade/journal"
)

const instrumentationName = "github.com/rustyeddy/papertrade/sim"

// Telemetry records trade spans and metrics:
//   - papertrade.trades.total: counter by side and outcome
//   - papertrade.trade.duration: histogram of trade latency in seconds
//   - papertrade.oracle.lookup.duration: histogram of price lookups in seconds
type Telemetry struct {
	tracer trace.Tracer

	tradesTotal    metric.Int64Counter
	tradeDuration  metric.Float64Histogram
	lookupDuration metric.Float64Histogram
}

// NewTelemetry uses the global tracer and meter providers.
func NewTelemetry() (*Telemetry, error) {
	return NewTelemetryWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

func NewTelemetryWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter(instrumentationName)
	t := &Telemetry{tracer: tp.Tracer(instrumentationName)}

	var err error
	t.tradesTotal, err = meter.Int64Counter(
		"papertrade.trades.total",
		metric.WithDescription("Total number of trade attempts by side and outcome"),
	)
	if err != nil {
		return nil, err
	}

	t.tradeDuration, err = meter.Float64Histogram(
		"papertrade.trade.duration",
		metric.WithDescription("Duration of trades in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	t.lookupDuration, err = meter.Float64Histogram(
		"papertrade.oracle.lookup.duration",
		metric.WithDescription("Duration of price oracle lookups in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Telemetry) startTrade(ctx context.Context, side journal.Side, userID int64, symbol string, shares int64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "papertrade."+string(side),
		trace.WithAttributes(
			attribute.String("trade.side", string(side)),
			attribute.Int64("trade.user_id", userID),
			attribute.String("trade.symbol", symbol),
			attribute.Int64("trade.shares", shares),
		),
	)
}

func (t *Telemetry) endTrade(ctx context.Context, span trace.Span, side journal.Side, d time.Duration, err error) {
	outcome := KindOf(err).String()
	if err == nil {
		outcome = "ok"
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()

	attrs := metric.WithAttributes(
		attribute.String("trade.side", string(side)),
		attribute.String("outcome", outcome),
	)
	t.tradesTotal.Add(ctx, 1, attrs)
	t.tradeDuration.Record(ctx, d.Seconds(), attrs)
}

func (t *Telemetry) recordLookup(ctx context.Context, d time.Duration, err error) {
	t.lookupDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("outcome", KindOf(err).String()),
	))
}
