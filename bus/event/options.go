package event

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// Значения пула воркеров по умолчанию.
const (
	defaultWorkerMin = 1
	defaultWorkerMax = 10
	defaultQueueSize = 100
)

// config содержит неэкспортируемую конфигурацию для шины событий.
// Это позволяет добавлять новые опции без изменения публичного API.
type config[T Event] struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	filters        []mediator.FilterProvider
	mediator       *mediator.Mediator
	provider       Provider[T]
	workerMin      int
	workerMax      int
	queueSize      int
}

// Option определяет тип для функциональных опций, которые изменяют конфигурацию шины.
type Option[T Event] func(*config[T])

// WithLogger возвращает опцию, которая устанавливает логгер для шины событий.
// Логгер используется для записи информации о жизненном цикле событий и ошибках.
func WithLogger[T Event](logger *slog.Logger) Option[T] {
	return func(c *config[T]) {
		c.logger = logger
	}
}

// WithTracerProvider возвращает опцию, которая устанавливает провайдер трассировки.
// Провайдер трассировки используется для создания и управления трассами в контексте OpenTelemetry.
func WithTracerProvider[T Event](provider trace.TracerProvider) Option[T] {
	return func(c *config[T]) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider возвращает опцию, которая устанавливает провайдер метрик.
// Провайдер метрик используется для сбора и экспорта метрик производительности.
func WithMeterProvider[T Event](provider metric.MeterProvider) Option[T] {
	return func(c *config[T]) {
		c.meterProvider = provider
	}
}

// WithPropagator возвращает опцию, которая устанавливает механизм распространения контекста.
// Пропагатор отвечает за сериализацию и десериализацию контекста трассировки.
func WithPropagator[T Event](propagator propagation.TextMapPropagator) Option[T] {
	return func(c *config[T]) {
		c.propagator = propagator
	}
}

// WithFilters возвращает опцию, которая добавляет фильтры медиатора ко всем
// вызовам подписчиков шины.
func WithFilters[T Event](providers ...mediator.FilterProvider) Option[T] {
	return func(c *config[T]) {
		c.filters = append(c.filters, providers...)
	}
}

// WithMediator возвращает опцию, которая подключает шину к общему медиатору.
// Опции наблюдаемости в этом случае задаются при создании медиатора.
func WithMediator[T Event](m *mediator.Mediator) Option[T] {
	return func(c *config[T]) {
		c.mediator = m
	}
}

// WithProvider устанавливает кастомный провайдер для шины.
func WithProvider[T Event](p Provider[T]) Option[T] {
	return func(c *config[T]) {
		c.provider = p
	}
}

// WithWorkerPoolConfig настраивает параметры пула горутин для асинхронных обработчиков.
func WithWorkerPoolConfig[T Event](minWorkers, maxWorkers, queueSize int) Option[T] {
	return func(c *config[T]) {
		c.workerMin = minWorkers
		c.workerMax = maxWorkers
		c.queueSize = queueSize
	}
}
