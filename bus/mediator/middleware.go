package mediator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-reflect"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

const (
	instrumentationName    = "github.com/x-research-team/dtx-mediator/bus/mediator"
	instrumentationVersion = "0.1.0"
	metricKeyPrefix        = "mediator."
)

// Metadatable реализуют значения команд, переносящие метаданные, например
// контекст трассировки.
type Metadatable interface {
	Metadata() map[string]string
}

// Порядок фильтров наблюдаемости: трассировка снаружи, затем метрики, затем логирование.
const (
	TracingFilterOrder = -300
	MetricsFilterOrder = -200
	LoggingFilterOrder = -100
)

// noopProvider не поставляет фильтров.
type noopProvider struct{}

func (noopProvider) Required() bool { return false }

func (noopProvider) Filters(*Binding, Callback, Handler) ([]Filter, error) { return nil, nil }

// loggingFilter логирует вызовы членов.
type loggingFilter struct {
	logger *slog.Logger
}

// NewLoggingFilter создает поставщика фильтра логирования.
// Если logger равен nil, фильтр не добавляется.
func NewLoggingFilter(logger *slog.Logger) FilterProvider {
	if logger == nil {
		return noopProvider{}
	}
	return UseFilters(&loggingFilter{logger: logger})
}

func (f *loggingFilter) Order() int { return LoggingFilterOrder }

func (f *loggingFilter) Next(ctx context.Context, hc HandleContext, next Next) *promise.Promise[any] {
	callbackType, callbackID := getCallbackTypeAndID(hc)
	member := hc.Binding().Name()
	f.logger.InfoContext(ctx, "вызов обработчика",
		slog.String("callback_type", callbackType),
		slog.String("callback_id", callbackID),
		slog.String("member", member),
	)

	startTime := time.Now()
	return observe(next(ctx), func(err error) {
		if err == nil {
			return
		}
		if skippable(err) {
			f.logger.DebugContext(ctx, "обработчик отказался от вызова",
				slog.String("callback_type", callbackType),
				slog.String("member", member),
			)
			return
		}
		f.logger.ErrorContext(ctx, "ошибка обработчика",
			slog.String("callback_type", callbackType),
			slog.String("callback_id", callbackID),
			slog.String("member", member),
			slog.Any("error", err),
			slog.Duration("duration", time.Since(startTime)),
		)
	})
}

// metricsFilter собирает метрики OpenTelemetry по вызовам членов.
type metricsFilter struct {
	dispatchCounter     metric.Int64Counter
	processDurationHist metric.Float64Histogram
}

// NewMetricsFilter создает поставщика фильтра метрик.
// Если provider равен nil, фильтр не добавляется.
func NewMetricsFilter(provider metric.MeterProvider) FilterProvider {
	if provider == nil {
		return noopProvider{}
	}

	meter := provider.Meter(instrumentationName, metric.WithInstrumentationVersion(instrumentationVersion))

	dispatchCounter, err := meter.Int64Counter(
		metricKeyPrefix+"dispatch.count",
		metric.WithDescription("Количество вызовов обработчиков"),
		metric.WithUnit("{calls}"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать счетчик dispatch.count: %v", err))
	}

	processDurationHist, err := meter.Float64Histogram(
		metricKeyPrefix+"process.duration",
		metric.WithDescription("Длительность вызова обработчика"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		panic(fmt.Sprintf("не удалось создать гистограмму process.duration: %v", err))
	}

	return UseFilters(&metricsFilter{
		dispatchCounter:     dispatchCounter,
		processDurationHist: processDurationHist,
	})
}

func (f *metricsFilter) Order() int { return MetricsFilterOrder }

func (f *metricsFilter) Next(ctx context.Context, hc HandleContext, next Next) *promise.Promise[any] {
	startTime := time.Now()
	callbackType, _ := getCallbackTypeAndID(hc)
	policy := ""
	if b := hc.Binding(); b != nil {
		policy = b.Policy().Name()
	}

	return observe(next(ctx), func(err error) {
		duration := float64(time.Since(startTime).Milliseconds())
		status := "success"
		switch {
		case skippable(err):
			status = "declined"
		case err != nil:
			status = "error"
		}
		attrs := metric.WithAttributes(
			attribute.String("callback.type", callbackType),
			attribute.String("policy", policy),
			attribute.String("status", status),
		)
		f.dispatchCounter.Add(ctx, 1, attrs)
		f.processDurationHist.Record(ctx, duration, attrs)
	})
}

// tracingFilter создает спаны OpenTelemetry для вызовов членов.
type tracingFilter struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingFilter создает поставщика фильтра трассировки. Контекст трассировки
// извлекается из метаданных команд, реализующих Metadatable.
// Если tp равен nil, фильтр не добавляется.
func NewTracingFilter(tp trace.TracerProvider, p propagation.TextMapPropagator) FilterProvider {
	if tp == nil {
		return noopProvider{}
	}
	if p == nil {
		p = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	}
	return UseFilters(&tracingFilter{
		tracer: tp.Tracer(
			instrumentationName,
			trace.WithInstrumentationVersion(instrumentationVersion),
		),
		propagator: p,
	})
}

func (f *tracingFilter) Order() int { return TracingFilterOrder }

func (f *tracingFilter) Next(ctx context.Context, hc HandleContext, next Next) *promise.Promise[any] {
	if md, ok := hc.Payload().(Metadatable); ok && md.Metadata() != nil {
		ctx = f.propagator.Extract(ctx, propagation.MapCarrier(md.Metadata()))
	}

	callbackType, callbackID := getCallbackTypeAndID(hc)
	ctx, span := f.tracer.Start(ctx, fmt.Sprintf("%s process", callbackType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("callback.type", callbackType),
			attribute.String("callback.id", callbackID),
			attribute.String("member", hc.Binding().Name()),
		),
	)

	return observe(next(ctx), func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	})
}

// observe вызывает fn после завершения p. Для завершенного p вызов синхронный,
// и исходный промис возвращается без изменений.
func observe(p *promise.Promise[any], fn func(err error)) *promise.Promise[any] {
	if p.Settled() {
		_, err := p.Wait()
		fn(err)
		return p
	}
	return p.Tap(func(_ any, err error) { fn(err) })
}

// getCallbackTypeAndID извлекает тип значения callback-а и его ID: поле ID
// значения, а при его отсутствии идентификатор конверта.
func getCallbackTypeAndID(hc HandleContext) (string, string) {
	callbackType := describe(hc.Callback())
	callbackID := "unknown"

	val := reflect.ValueOf(hc.Payload())
	if val.Kind() == reflect.Ptr && !val.IsNil() {
		val = val.Elem()
	}
	if val.Kind() == reflect.Struct {
		if idField := val.FieldByName("ID"); idField.IsValid() && idField.CanInterface() {
			return callbackType, fmt.Sprintf("%v", idField.Interface())
		}
	}
	if c, ok := hc.Callback().(interface{ ID() uuid.UUID }); ok {
		callbackID = c.ID().String()
	}
	return callbackType, callbackID
}
