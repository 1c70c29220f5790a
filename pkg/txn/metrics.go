package txn

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nikmy/graphtx/pkg/logger"
)

const meterName = "github.com/nikmy/graphtx/pkg/txn"

type txnMetrics struct {
	begun          metric.Int64Counter
	finished       metric.Int64Counter
	retries        metric.Int64Counter
	commitDuration metric.Int64Histogram
}

func newTxnMetrics(log logger.Logger, provider metric.MeterProvider) *txnMetrics {
	if provider == nil {
		return nil
	}

	meter := provider.Meter(meterName)
	m := &txnMetrics{}
	var err error

	m.begun, err = meter.Int64Counter(
		"graphtx.txn.begin",
		metric.WithDescription("Root transactions opened against the backend"),
	)
	logMetricInitError(log, "graphtx.txn.begin", err)

	m.finished, err = meter.Int64Counter(
		"graphtx.txn.finish",
		metric.WithDescription("Root transactions by final status"),
	)
	logMetricInitError(log, "graphtx.txn.finish", err)

	m.retries, err = meter.Int64Counter(
		"graphtx.txn.retry",
		metric.WithDescription("Units of work rerun after a transient failure"),
	)
	logMetricInitError(log, "graphtx.txn.retry", err)

	m.commitDuration, err = meter.Int64Histogram(
		"graphtx.txn.duration_ms",
		metric.WithDescription("Time from begin to commit or rollback"),
		metric.WithUnit("ms"),
	)
	logMetricInitError(log, "graphtx.txn.duration_ms", err)

	return m
}

func (m *txnMetrics) recordBegin(ctx context.Context, database string, mode AccessMode) {
	if m == nil || m.begun == nil {
		return
	}
	m.begun.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graphtx.database", databaseLabel(database)),
		attribute.String("graphtx.mode", mode.String()),
	))
}

func (m *txnMetrics) recordFinish(ctx context.Context, c *Context) {
	if m == nil || m.finished == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("graphtx.database", databaseLabel(c.database)),
		attribute.String("graphtx.mode", c.mode.String()),
		attribute.String("graphtx.status", c.status.String()),
	)
	m.finished.Add(ctx, 1, attrs)
	if m.commitDuration != nil {
		m.commitDuration.Record(ctx, time.Since(c.started).Milliseconds(), attrs)
	}
}

func (m *txnMetrics) recordRetry(ctx context.Context, database string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("graphtx.database", databaseLabel(database)),
	))
}

func databaseLabel(database string) string {
	if database == "" {
		return "default"
	}
	return database
}

func logMetricInitError(log logger.Logger, name string, err error) {
	if err == nil || log == nil {
		return
	}
	log.Warnf("init metric %s: %s", name, err)
}
