package mediator

import (
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var packageLogger atomic.Pointer[slog.Logger]

// SetLogger задает логгер для внутренних событий пакета (построение
// дескрипторов, пропуск циклических запросов). nil возвращает slog.Default().
func SetLogger(l *slog.Logger) {
	packageLogger.Store(l)
}

func logger() *slog.Logger {
	if l := packageLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// config содержит неэкспортируемую конфигурацию медиатора.
type config struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	propagator     propagation.TextMapPropagator
	handlers       []any
	filters        []FilterProvider
}

// Option определяет тип для функциональных опций, которые изменяют конфигурацию медиатора.
type Option func(*config)

// WithLogger возвращает опцию, которая устанавливает логгер для фильтра логирования.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithTracerProvider возвращает опцию, которая устанавливает провайдер трассировки.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = provider
	}
}

// WithMeterProvider возвращает опцию, которая устанавливает провайдер метрик.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = provider
	}
}

// WithPropagator возвращает опцию, которая устанавливает механизм распространения контекста.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagator = propagator
	}
}

// WithHandlers возвращает опцию, которая добавляет обработчики в корневую цепочку.
func WithHandlers(handlers ...any) Option {
	return func(c *config) {
		c.handlers = append(c.handlers, handlers...)
	}
}

// WithFilters возвращает опцию, которая добавляет поставщиков фильтров ко всем
// вызовам через медиатор.
func WithFilters(providers ...FilterProvider) Option {
	return func(c *config) {
		c.filters = append(c.filters, providers...)
	}
}

// Mediator - корневая цепочка обработчиков с фильтрами наблюдаемости.
// Обработчики добавляются и удаляются во время работы.
type Mediator struct {
	root   *Composite
	chain  Handler
	logger *slog.Logger
}

// New создает медиатор. Фильтры логирования, метрик и трассировки подключаются
// ко всем вызовам членов; без соответствующей зависимости они не действуют.
func New(opts ...Option) *Mediator {
	cfg := &config{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	root := NewComposite(cfg.handlers...)
	providers := []FilterProvider{
		NewLoggingFilter(cfg.logger),
		NewMetricsFilter(cfg.meterProvider),
		NewTracingFilter(cfg.tracerProvider, cfg.propagator),
	}
	providers = append(providers, cfg.filters...)

	return &Mediator{
		root:   root,
		chain:  AddFilters(root, providers...),
		logger: cfg.logger,
	}
}

// Handle реализует Handler.
func (m *Mediator) Handle(callback any, greedy bool, composer Handler) HandleResult {
	return m.chain.Handle(callback, greedy, composer)
}

// Add добавляет обработчики в конец цепочки.
func (m *Mediator) Add(handlers ...any) *Mediator {
	m.root.Add(handlers...)
	return m
}

// Remove удаляет обработчики из цепочки.
func (m *Mediator) Remove(handlers ...any) *Mediator {
	m.root.Remove(handlers...)
	return m
}

// Handlers возвращает текущие обработчики цепочки.
func (m *Mediator) Handlers() []Handler {
	return m.root.Handlers()
}

// Logger возвращает логгер медиатора.
func (m *Mediator) Logger() *slog.Logger {
	return m.logger
}
