package asyncdep

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("formkeeper.asyncdep")

var (
	asyncHits     metric.Int64Counter
	asyncMisses   metric.Int64Counter
	asyncFailures metric.Int64Counter
	asyncDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments once. With no MeterProvider installed
// the global no-op provider makes every record call free.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		asyncHits, err = meter.Int64Counter(
			"formkeeper_async_cache_hits_total",
			metric.WithDescription("Async evaluations answered from the cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		asyncMisses, err = meter.Int64Counter(
			"formkeeper_async_cache_misses_total",
			metric.WithDescription("Async evaluations started on a cache miss"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		asyncFailures, err = meter.Int64Counter(
			"formkeeper_async_failures_total",
			metric.WithDescription("Async evaluations that failed, panicked or timed out"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		asyncDuration, err = meter.Float64Histogram(
			"formkeeper_async_duration_seconds",
			metric.WithDescription("Duration of async evaluator calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func evaluatorAttr(id string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("evaluator", id))
}

func recordHit(ctx context.Context, id string) {
	if err := initMetrics(); err != nil {
		return
	}
	asyncHits.Add(ctx, 1, evaluatorAttr(id))
}

func recordMiss(ctx context.Context, id string) {
	if err := initMetrics(); err != nil {
		return
	}
	asyncMisses.Add(ctx, 1, evaluatorAttr(id))
}

func recordFailure(ctx context.Context, id string) {
	if err := initMetrics(); err != nil {
		return
	}
	asyncFailures.Add(ctx, 1, evaluatorAttr(id))
}

func recordDuration(ctx context.Context, id string, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	asyncDuration.Record(ctx, d.Seconds(), evaluatorAttr(id))
}
