package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/sushant-115/rowdb/core/statement"
	"github.com/sushant-115/rowdb/core/storage_engine/row"
	"github.com/sushant-115/rowdb/core/storage_engine/table"
	internaltelemetry "github.com/sushant-115/rowdb/internal/telemetry"
	"github.com/sushant-115/rowdb/pkg/telemetry"
)

// Result is the outcome of one statement.
type Result struct {
	Kind         statement.Kind
	RowsAffected int
	Rows         []row.Row
}

// Executor routes parsed statements to the table.
type Executor struct {
	table     *table.Table
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *internaltelemetry.StorageMetrics
	sessionID string
}

func New(t *table.Table, logger *zap.Logger, tel *telemetry.Telemetry, metrics *internaltelemetry.StorageMetrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	var tracer trace.Tracer = nooptrace.NewTracerProvider().Tracer("")
	if tel != nil && tel.Tracer != nil {
		tracer = tel.Tracer
	}
	if metrics == nil {
		metrics = internaltelemetry.NopStorageMetrics()
	}
	sessionID := uuid.NewString()
	return &Executor{
		table:     t,
		logger:    logger.With(zap.String("component", "executor"), zap.String("session", sessionID)),
		tracer:    tracer,
		metrics:   metrics,
		sessionID: sessionID,
	}
}

func (e *Executor) SessionID() string { return e.sessionID }

// Execute runs stmt against the table. Table errors such as
// flushmanager.ErrTableFull are returned unchanged.
func (e *Executor) Execute(ctx context.Context, stmt *statement.Statement) (*Result, error) {
	ctx, span, startTime := e.startMetricsAndTrace(ctx, stmt.Kind)
	statusCode := otelcodes.Ok
	defer func() {
		e.endMetricsAndTrace(ctx, span, startTime, stmt.Kind, statusCode)
	}()

	var (
		res *Result
		err error
	)
	switch stmt.Kind {
	case statement.KindInsert:
		res, err = e.executeInsert(stmt)
	case statement.KindSelect:
		res, err = e.executeSelect()
	default:
		err = fmt.Errorf("unsupported statement kind %v", stmt.Kind)
	}
	if err != nil {
		statusCode = otelcodes.Error
		span.RecordError(err)
		e.logger.Debug("Statement failed", zap.Stringer("kind", stmt.Kind), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (e *Executor) executeInsert(stmt *statement.Statement) (*Result, error) {
	r := stmt.Row
	if err := e.table.Insert(&r); err != nil {
		return nil, err
	}
	e.logger.Debug("Inserted row", zap.Int32("id", r.ID), zap.Uint32("numRows", e.table.NumRows()))
	return &Result{Kind: statement.KindInsert, RowsAffected: 1}, nil
}

func (e *Executor) executeSelect() (*Result, error) {
	rows, err := e.table.Rows()
	if err != nil {
		return nil, err
	}
	return &Result{Kind: statement.KindSelect, Rows: rows}, nil
}

// startMetricsAndTrace begins the telemetry recording for a statement.
// It returns a new context, the trace span, and the start time.
func (e *Executor) startMetricsAndTrace(ctx context.Context, kind statement.Kind) (context.Context, trace.Span, time.Time) {
	startTime := time.Now()
	ctx, span := e.tracer.Start(ctx, "rowdb."+kind.String(), trace.WithAttributes(
		attribute.String("rowdb.statement", kind.String()),
		attribute.String("rowdb.session", e.sessionID),
	))
	return ctx, span, startTime
}

// endMetricsAndTrace completes the telemetry recording for a statement.
func (e *Executor) endMetricsAndTrace(ctx context.Context, span trace.Span, startTime time.Time, kind statement.Kind, statusCode otelcodes.Code) {
	latency := time.Since(startTime).Microseconds()

	if statusCode != otelcodes.Ok {
		span.SetStatus(otelcodes.Error, statusCode.String())
	} else {
		span.SetStatus(otelcodes.Ok, "Success")
	}
	span.SetAttributes(attribute.Int64("rowdb.num_rows", int64(e.table.NumRows())))
	span.End()

	metricAttributes := attribute.NewSet(
		attribute.String("rowdb.statement", kind.String()),
		attribute.String("rowdb.code", statusCode.String()),
	)
	e.metrics.StatementLatency.Record(ctx, latency, metric.WithAttributeSet(metricAttributes))
	e.metrics.StatementsCounter.Add(ctx, 1, metric.WithAttributeSet(metricAttributes))
}
