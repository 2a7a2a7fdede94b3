package database

import (
	"context"
	"time"

	"github.com/hatlonely/ormx/log"
	"github.com/hatlonely/ormx/log/logger"
	"github.com/hatlonely/ormx/rdb/query"
	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableEngineOptions struct {
	// Engine 被包装的引擎配置
	Engine *ref.TypeOptions `cfg:"engine" validate:"required"`

	// Logger 为空时使用 log.Default()
	Logger *ref.TypeOptions `cfg:"logger"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	Name string `cfg:"name" def:"rdb" validate:"required"`

	// 超过该耗时的语句以 warn 级别记录
	SlowThreshold time.Duration `cfg:"slowThreshold" def:"500ms"`
}

type EngineMetrics struct {
	statementCounter  *prometheus.CounterVec
	statementDuration *prometheus.HistogramVec
}

// NewEngineMetrics 创建并注册语句指标，同名指标已注册时复用
func NewEngineMetrics(name string, registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &EngineMetrics{
		statementCounter: registerCollector(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_statements_total",
				Help: "Total number of executed statements",
			},
			[]string{"operation", "status"},
		)),
		statementDuration: registerCollector(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_statement_duration_seconds",
				Help:    "Duration of executed statements in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		)),
	}
}

func registerCollector[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// observer 语句观测逻辑，由引擎和它开启的事务共享
type observer struct {
	name          string
	logger        logger.Logger
	metrics       *EngineMetrics
	tracer        trace.Tracer
	slowThreshold time.Duration
}

// ObservableEngine 为任意 Engine 记录每条语句的日志、指标和追踪
type ObservableEngine struct {
	engine Engine
	obs    *observer
}

func NewObservableEngineWithOptions(options *ObservableEngineOptions) (*ObservableEngine, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	engine, err := NewEngineWithOptions(options.Engine)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create underlying engine")
	}

	l := log.Default()
	if options.Logger != nil {
		if l, err = log.NewLoggerWithOptions(options.Logger); err != nil {
			_ = engine.Close()
			return nil, errors.WithMessage(err, "failed to create logger")
		}
	}

	var metrics *EngineMetrics
	if options.EnableMetrics {
		metrics = NewEngineMetrics(options.Name, nil)
	}

	e := NewObservableEngine(engine, options.Name, l, metrics)
	e.obs.slowThreshold = options.SlowThreshold
	if options.EnableTracing {
		e.obs.tracer = otel.Tracer("rdb." + options.Name)
	}
	return e, nil
}

// NewObservableEngine 包装已有引擎，metrics 为 nil 时不采集指标
func NewObservableEngine(engine Engine, name string, l logger.Logger, metrics *EngineMetrics) *ObservableEngine {
	if l == nil {
		l = log.Default()
	}
	return &ObservableEngine{
		engine: engine,
		obs: &observer{
			name:    name,
			logger:  l.WithGroup("observableEngine"),
			metrics: metrics,
		},
	}
}

func (o *observer) observe(ctx context.Context, operation string, sqlStr string, args []any, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "rdb."+operation,
			trace.WithAttributes(
				attribute.String("component", o.name),
				attribute.String("db.statement", sqlStr),
			),
		)
		defer span.End()
	}

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err != nil {
		status = "error"
	}

	if span != nil {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, status)
		}
	}

	if o.metrics != nil {
		o.metrics.statementCounter.WithLabelValues(operation, status).Inc()
		o.metrics.statementDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	switch {
	case err != nil:
		o.logger.ErrorContext(ctx, "statement failed",
			"component", o.name, "sql", sqlStr, "args", args, "duration", duration, "error", err.Error())
	case o.slowThreshold > 0 && duration > o.slowThreshold:
		o.logger.WarnContext(ctx, "slow statement",
			"component", o.name, "sql", sqlStr, "args", args, "duration", duration)
	default:
		o.logger.DebugContext(ctx, "statement executed",
			"component", o.name, "sql", sqlStr, "args", args, "duration", duration)
	}

	return err
}

func (o *observer) query(ctx context.Context, executor Executor, sqlStr string, args []any) ([]map[string]any, error) {
	var rows []map[string]any
	err := o.observe(ctx, "query", sqlStr, args, func(ctx context.Context) error {
		var queryErr error
		rows, queryErr = executor.Query(ctx, sqlStr, args...)
		return queryErr
	})
	return rows, err
}

func (o *observer) exec(ctx context.Context, executor Executor, sqlStr string, args []any) (Result, error) {
	var result Result
	err := o.observe(ctx, "exec", sqlStr, args, func(ctx context.Context) error {
		var execErr error
		result, execErr = executor.Exec(ctx, sqlStr, args...)
		return execErr
	})
	return result, err
}

// Unwrap 返回被包装的引擎
func (e *ObservableEngine) Unwrap() Engine {
	return e.engine
}

func (e *ObservableEngine) Dialect() query.Dialect {
	return e.engine.Dialect()
}

func (e *ObservableEngine) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	return e.obs.query(ctx, e.engine, sqlStr, args)
}

func (e *ObservableEngine) Exec(ctx context.Context, sqlStr string, args ...any) (Result, error) {
	return e.obs.exec(ctx, e.engine, sqlStr, args)
}

func (e *ObservableEngine) Columns(ctx context.Context, table string) ([]string, error) {
	var columns []string
	err := e.obs.observe(ctx, "columns", table, nil, func(ctx context.Context) error {
		var colErr error
		columns, colErr = e.engine.Columns(ctx, table)
		return colErr
	})
	return columns, err
}

func (e *ObservableEngine) Begin(ctx context.Context) (Tx, error) {
	var tx Tx
	err := e.obs.observe(ctx, "begin", "BEGIN", nil, func(ctx context.Context) error {
		var beginErr error
		tx, beginErr = e.engine.Begin(ctx)
		return beginErr
	})
	if err != nil {
		return nil, err
	}
	return &observableTx{tx: tx, obs: e.obs}, nil
}

func (e *ObservableEngine) Close() error {
	return e.engine.Close()
}

type observableTx struct {
	tx  Tx
	obs *observer
}

func (t *observableTx) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	return t.obs.query(ctx, t.tx, sqlStr, args)
}

func (t *observableTx) Exec(ctx context.Context, sqlStr string, args ...any) (Result, error) {
	return t.obs.exec(ctx, t.tx, sqlStr, args)
}

func (t *observableTx) Commit() error {
	return t.obs.observe(context.Background(), "commit", "COMMIT", nil, func(context.Context) error {
		return t.tx.Commit()
	})
}

func (t *observableTx) Rollback() error {
	return t.obs.observe(context.Background(), "rollback", "ROLLBACK", nil, func(context.Context) error {
		return t.tx.Rollback()
	})
}
