package store

import (
	"context"
	"time"

	"github.com/hatlonely/ormx/log"
	"github.com/hatlonely/ormx/log/logger"
	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableStoreOptions struct {
	// Store 被包装的底层存储配置
	Store *ref.TypeOptions `cfg:"store" validate:"required"`

	// Logger 日志记录器配置，为空时使用 log.Default()
	Logger *ref.TypeOptions `cfg:"logger"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableLogging bool `cfg:"enableLogging" def:"true"`
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称，作为指标名前缀、日志 component 字段和 span 的 component 属性
	Name string `cfg:"name" def:"store" validate:"required"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
}

// NewObservableMetrics 创建并注册指标，同名指标已注册时复用已有的
func NewObservableMetrics(name string, registerer prometheus.Registerer) *ObservableMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &ObservableMetrics{
		operationCounter: registerCollector(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		)),
		operationDuration: registerCollector(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of store operations in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		)),
		activeOperations: registerCollector(registerer, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: name + "_active_operations",
				Help: "Number of active store operations",
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

// ObservableStore 装饰器，为任何 Store 添加指标、日志和追踪
// Get 未命中记为 miss 而不是 error
type ObservableStore struct {
	store Store

	logger        logger.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableLogging bool
}

func NewObservableStoreWithOptions(options *ObservableStoreOptions) (*ObservableStore, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	store, err := NewStoreWithOptions(options.Store)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create underlying store")
	}

	obs := &ObservableStore{
		store:         store,
		name:          options.Name,
		enableLogging: options.EnableLogging,
		logger:        log.Default(),
	}

	if options.Logger != nil {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			_ = store.Close()
			return nil, errors.WithMessage(err, "failed to create logger")
		}
		obs.logger = l
	}
	obs.logger = obs.logger.WithGroup("observableStore")

	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(options.Name, nil)
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer("store." + options.Name)
	}

	return obs, nil
}

// NewObservableStore 包装已有存储，metrics 为 nil 时不采集指标
func NewObservableStore(store Store, name string, l logger.Logger, metrics *ObservableMetrics) *ObservableStore {
	obs := &ObservableStore{store: store, name: name, metrics: metrics, logger: l}
	if l != nil {
		obs.enableLogging = true
	}
	return obs
}

func (obs *ObservableStore) observeOperation(ctx context.Context, operation string, key string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, "store."+operation,
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
				attribute.String("key", key),
			),
		)
		defer span.End()
	}

	if obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	status := "success"
	if err == ErrKeyNotFound {
		status = "miss"
	} else if err != nil {
		status = "error"
	}

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_us", duration.Microseconds()))
		if status == "error" {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, status)
		}
	}

	if obs.metrics != nil {
		obs.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.enableLogging && obs.logger != nil {
		if status == "error" {
			obs.logger.ErrorContext(ctx, "store operation failed",
				"component", obs.name,
				"operation", operation,
				"key", key,
				"duration", duration,
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "store operation completed",
				"component", obs.name,
				"operation", operation,
				"key", key,
				"status", status,
				"duration", duration,
			)
		}
	}

	return err
}

func (obs *ObservableStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	return obs.observeOperation(ctx, "set", key, func(ctx context.Context) error {
		return obs.store.Set(ctx, key, value, opts...)
	})
}

func (obs *ObservableStore) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte
	err := obs.observeOperation(ctx, "get", key, func(ctx context.Context) error {
		var getErr error
		result, getErr = obs.store.Get(ctx, key)
		return getErr
	})
	return result, err
}

func (obs *ObservableStore) Del(ctx context.Context, key string) error {
	return obs.observeOperation(ctx, "del", key, func(ctx context.Context) error {
		return obs.store.Del(ctx, key)
	})
}

func (obs *ObservableStore) DelPrefix(ctx context.Context, prefix string) error {
	return obs.observeOperation(ctx, "del_prefix", prefix, func(ctx context.Context) error {
		return obs.store.DelPrefix(ctx, prefix)
	})
}

func (obs *ObservableStore) Close() error {
	return obs.observeOperation(context.Background(), "close", "", func(ctx context.Context) error {
		return obs.store.Close()
	})
}
