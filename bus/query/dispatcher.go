package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// IDispatcher определяет основной, строго типизированный интерфейс для шины запросов.
// Он отвечает за регистрацию обработчиков и диспетчеризацию запросов.
type IDispatcher[Q Query[R], R any] interface {
	// Dispatch отправляет запрос в шину для выполнения.
	// Метод находит зарегистрированный обработчик для типа запроса Q,
	// выполняет его и возвращает результат типа R или ошибку.
	// Если обработчик для данного запроса не найден, возвращается ошибка.
	Dispatch(ctx context.Context, q Q) (R, error)

	// DispatchAsync аналогичен Dispatch, но возвращает промис результата.
	// Обработчик выполняется в отдельной горутине.
	DispatchAsync(ctx context.Context, q Q) *promise.Promise[R]

	// Register связывает тип запроса Q с его обработчиком.
	// Попытка зарегистрировать обработчик для уже зарегистрированного запроса
	// вернет ошибку.
	Register(handler QueryHandler[Q, R]) error

	// Shutdown отключает обработчик от медиатора. После вызова Dispatch
	// возвращает ErrDispatcherClosed.
	Shutdown(ctx context.Context) error
}

// ErrDispatcherClosed возвращается при обращении к остановленному диспетчеру.
var ErrDispatcherClosed = errors.New("диспетчер запросов остановлен")

// dispatcher представляет собой потокобезопасную реализацию IDispatcher.
// Обработчик регистрируется в медиаторе как узел цепочки, поэтому фильтры
// медиатора применяются к каждому запросу.
type dispatcher[Q Query[R], R any] struct {
	mediator *mediator.Mediator
	cfg      *config[Q, R]
	node     *handlerNode[Q, R]
	closed   bool
	mu       sync.RWMutex
}

// NewDispatcher создает и возвращает новый экземпляр диспетчера.
// Он принимает функциональные опции для конфигурации, например, для добавления middleware.
func NewDispatcher[Q Query[R], R any](opts ...Option[Q, R]) IDispatcher[Q, R] {
	cfg := &config[Q, R]{
		logger:      slog.Default(),
		middlewares: make([]Middleware[Q, R], 0),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	m := cfg.mediator
	if m == nil {
		m = mediator.New(
			mediator.WithLogger(cfg.logger),
			mediator.WithTracerProvider(cfg.tracerProvider),
			mediator.WithMeterProvider(cfg.meterProvider),
			mediator.WithPropagator(cfg.propagator),
		)
	}

	return &dispatcher[Q, R]{
		mediator: m,
		cfg:      cfg,
	}
}

// Register регистрирует обработчик для конкретного типа запроса.
// Этот метод является потокобезопасным.
// Возвращает ошибку, если обработчик для данного запроса уже зарегистрирован.
func (d *dispatcher[Q, R]) Register(handler QueryHandler[Q, R]) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if d.node != nil {
		return fmt.Errorf("обработчик для запроса '%s' уже зарегистрирован", queryType[Q]())
	}
	if err := registerNode[Q, R](); err != nil {
		return err
	}

	// Middlewares применяются в обратном порядке, чтобы первый добавленный выполнялся первым.
	h := handler
	for i := len(d.cfg.middlewares) - 1; i >= 0; i-- {
		h = d.cfg.middlewares[i](h)
	}
	d.node = &handlerNode[Q, R]{handler: h}
	d.mediator.Add(d.node)

	return nil
}

// Dispatch находит и выполняет обработчик для указанного запроса.
// Этот метод является потокобезопасным.
// Возвращает ошибку, если обработчик для данного запроса не найден.
func (d *dispatcher[Q, R]) Dispatch(ctx context.Context, q Q) (R, error) {
	var zero R

	d.mu.RLock()
	closed, node := d.closed, d.node
	d.mu.RUnlock()
	if closed {
		return zero, ErrDispatcherClosed
	}

	result, err := mediator.ExecuteAs[R](d.mediator, q, mediator.WithContext(withTarget(ctx, node)))
	if err != nil {
		return zero, d.translate(err)
	}
	return result, nil
}

// Shutdown отключает обработчик от медиатора. Повторный вызов ничего не делает.
func (d *dispatcher[Q, R]) Shutdown(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.node != nil {
		d.mediator.Remove(d.node)
	}
	return nil
}

// DispatchAsync выполняет запрос в отдельной горутине.
func (d *dispatcher[Q, R]) DispatchAsync(ctx context.Context, q Q) *promise.Promise[R] {
	return promise.Go(ctx, func(ctx context.Context) (R, error) {
		return d.Dispatch(ctx, q)
	})
}

func (d *dispatcher[Q, R]) translate(err error) error {
	var notHandled *mediator.NotHandledError
	if errors.As(err, &notHandled) {
		return fmt.Errorf("обработчик для запроса '%s' не найден", queryType[Q]())
	}
	return err
}
