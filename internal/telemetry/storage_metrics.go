package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// StorageMetrics holds all the metric instruments for the row store.
type StorageMetrics struct {
	PageLoadsCounter    metric.Int64Counter
	PageFlushesCounter  metric.Int64Counter
	FlushedBytesCounter metric.Int64Counter
	StatementsCounter   metric.Int64Counter
	StatementLatency    metric.Int64Histogram
	RowsUpDownCounter   metric.Int64UpDownCounter
	ResidentPagesUpDown metric.Int64UpDownCounter
}

// NewStorageMetrics creates and registers all the metrics for the row store.
func NewStorageMetrics(meter metric.Meter) (*StorageMetrics, error) {
	pageLoadsCounter, err := meter.Int64Counter(
		"rowdb.pager.page_loads_total",
		metric.WithDescription("Total number of pages made resident in the page cache."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pageFlushesCounter, err := meter.Int64Counter(
		"rowdb.pager.flushes_total",
		metric.WithDescription("Total number of page flushes to the data file."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	flushedBytesCounter, err := meter.Int64Counter(
		"rowdb.pager.flushed_bytes_total",
		metric.WithDescription("Total number of bytes written by page flushes."),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	statementsCounter, err := meter.Int64Counter(
		"rowdb.executor.statements_total",
		metric.WithDescription("Total number of statements executed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	statementLatency, err := meter.Int64Histogram(
		"rowdb.executor.duration",
		metric.WithDescription("The latency of statement execution."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	rowsUpDownCounter, err := meter.Int64UpDownCounter(
		"rowdb.table.rows",
		metric.WithDescription("Number of committed rows in the table."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	residentPages, err := meter.Int64UpDownCounter(
		"rowdb.pager.resident_pages",
		metric.WithDescription("Number of pages currently resident in the page cache."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &StorageMetrics{
		PageLoadsCounter:    pageLoadsCounter,
		PageFlushesCounter:  pageFlushesCounter,
		FlushedBytesCounter: flushedBytesCounter,
		StatementsCounter:   statementsCounter,
		StatementLatency:    statementLatency,
		RowsUpDownCounter:   rowsUpDownCounter,
		ResidentPagesUpDown: residentPages,
	}, nil
}

// NopStorageMetrics returns instruments that record nothing.
func NopStorageMetrics() *StorageMetrics {
	m, _ := NewStorageMetrics(noop.NewMeterProvider().Meter(""))
	return m
}
