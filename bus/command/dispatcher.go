package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// ErrDispatcherClosed возвращается после завершения работы диспетчера.
var ErrDispatcherClosed = errors.New("диспетчер команд остановлен")

// IDispatcher определяет основной, строго типизированный интерфейс для шины команд.
type IDispatcher[C Command[R], R any] interface {
	Dispatch(ctx context.Context, cmd C) (R, error)
	Register(handler CommandHandler[C, R]) error
	Shutdown(ctx context.Context) error
}

// dispatcherImpl представляет собой реализацию IDispatcher поверх медиатора.
type dispatcherImpl[C Command[R], R any] struct {
	mediator *mediator.Mediator
	cfg      *config[C, R]
	node     *handlerNode[C, R]
	closed   bool
	mu       sync.RWMutex
}

// NewDispatcher создает новый, готовый к использованию экземпляр диспетчера.
func NewDispatcher[C Command[R], R any](opts ...Option[C, R]) (IDispatcher[C, R], error) {
	cfg := &config[C, R]{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := registerNode[C, R](); err != nil {
		return nil, err
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

	return &dispatcherImpl[C, R]{
		mediator: m,
		cfg:      cfg,
	}, nil
}

// Register регистрирует обработчик для конкретного типа команды.
func (d *dispatcherImpl[C, R]) Register(handler CommandHandler[C, R]) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}
	if d.node != nil {
		return fmt.Errorf("обработчик для команды '%s' уже зарегистрирован", commandType[C]())
	}

	d.node = &handlerNode[C, R]{handler: applyMiddlewares(handler, d.cfg.middlewares...)}
	d.mediator.Add(d.node)

	d.cfg.logger.Info("регистрация обработчика команды",
		slog.String("command_type", commandType[C]()),
		slog.String("handler_name", getHandlerName(handler)),
	)
	return nil
}

// Dispatch находит и выполняет обработчик для указанной команды.
func (d *dispatcherImpl[C, R]) Dispatch(ctx context.Context, cmd C) (R, error) {
	var zero R

	d.mu.RLock()
	closed, node := d.closed, d.node
	d.mu.RUnlock()
	if closed {
		return zero, ErrDispatcherClosed
	}

	result, err := mediator.ExecuteAs[R](d.mediator, cmd, mediator.WithContext(withTarget(ctx, node)))
	if err != nil {
		var notHandled *mediator.NotHandledError
		if errors.As(err, &notHandled) {
			return zero, fmt.Errorf("обработчик для команды '%s' не найден", commandType[C]())
		}
		return zero, err
	}
	return result, nil
}

// Shutdown отключает обработчик от медиатора. Повторный вызов ничего не делает.
func (d *dispatcherImpl[C, R]) Shutdown(_ context.Context) error {
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
