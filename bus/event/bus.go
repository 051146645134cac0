package event

import (
	"context"
	"fmt"
	"log/slog"
)

// IBus определяет строго типизированный интерфейс для публикации и подписки
// на события конкретного типа T.
type IBus[T Event] interface {
	// Publish публикует событие типа T в шину.
	// Метод возвращает ошибку только в случае сбоя самой шины; ошибки
	// обработчиков передаются их ErrorHandler.
	Publish(ctx context.Context, event T) error

	// Subscribe подписывает строго типизированный обработчик на события типа T.
	Subscribe(handler EventHandler[T], opts ...SubscribeOption[T]) (unsubscribe func(), err error)

	// Shutdown корректно завершает работу шины.
	Shutdown(ctx context.Context) error
}

// busImpl - это реализация строго типизированной шины событий.
type busImpl[T Event] struct {
	topic    string
	provider Provider[T]
	cfg      *config[T]
}

// NewBus создает новый, строго типизированный экземпляр Bus для конкретного
// типа события T и связанного с ним топика.
func NewBus[T Event](topic string, opts ...Option[T]) (IBus[T], error) {
	if topic == "" {
		return nil, fmt.Errorf("topic не может быть пустым")
	}

	cfg := &config[T]{
		logger:    slog.Default(),
		workerMin: defaultWorkerMin,
		workerMax: defaultWorkerMax,
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	provider := cfg.provider
	if provider == nil {
		local, err := NewLocalProvider(topic, cfg)
		if err != nil {
			return nil, fmt.Errorf("не удалось создать локальный провайдер: %w", err)
		}
		provider = local
	}

	return &busImpl[T]{
		topic:    topic,
		provider: provider,
		cfg:      cfg,
	}, nil
}

// Publish публикует событие в шину.
func (b *busImpl[T]) Publish(ctx context.Context, event T) error {
	return b.provider.Publish(ctx, event)
}

// Subscribe подписывает обработчик на события.
func (b *busImpl[T]) Subscribe(handler EventHandler[T], opts ...SubscribeOption[T]) (unsubscribe func(), err error) {
	return b.provider.Subscribe(handler, opts...)
}

// Shutdown завершает работу шины.
func (b *busImpl[T]) Shutdown(ctx context.Context) error {
	return b.provider.Shutdown(ctx)
}
