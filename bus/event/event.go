// Package event определяет типобезопасную шину событий поверх медиатора.
// Подписчики регистрируются в медиаторе как обработчики, публикация доставляет
// событие всем подписчикам топика, а асинхронные подписчики выполняются в
// пуле воркеров.
package event

import (
	"context"
)

// Event определяет минимальный контракт для любого события, которое может быть
// передано через шину.
type Event interface {
	// Topic возвращает имя топика, к которому относится событие.
	// Топик используется для маршрутизации, если событие публикуется
	// непосредственно в медиатор, минуя шину.
	Topic() string
}

// EventHandler - это тип для функции-обработчика, которая принимает контекст
// и конкретный тип события.
type EventHandler[T Event] func(ctx context.Context, event T) error

// ErrorHandler - это функция для обработки ошибок, возникших в EventHandler.
type ErrorHandler[T Event] func(err error, event T)

// Middleware - это функция-декоратор для EventHandler.
// Она принимает следующий обработчик в цепочке и возвращает новый обработчик.
type Middleware[T Event] func(next EventHandler[T]) EventHandler[T]

// Provider определяет контракт для сменных механизмов доставки событий.
// Реализация по умолчанию - LocalProvider.
type Provider[T Event] interface {
	// Publish доставляет событие подписчикам. Ошибки обработчиков не
	// возвращаются, а передаются ErrorHandler подписки или в лог.
	Publish(ctx context.Context, event T) error

	// Subscribe подписывает обработчик и возвращает функцию отписки.
	Subscribe(handler EventHandler[T], opts ...SubscribeOption[T]) (unsubscribe func(), err error)

	// Shutdown завершает работу провайдера, дожидаясь выполнения
	// асинхронных обработчиков.
	Shutdown(ctx context.Context) error
}

// subscriptionOptions определяет набор параметров для конфигурации конкретной подписки.
type subscriptionOptions[T Event] struct {
	// isAsync указывает, должен ли обработчик выполняться в пуле воркеров.
	isAsync bool
	// errorHandler получает ошибки обработчика.
	errorHandler ErrorHandler[T]
	// middleware применяется только к обработчику этой подписки.
	middleware []Middleware[T]
	// name используется в логах вместо имени функции-обработчика.
	name string
}

// SubscribeOption - это функциональная опция для настройки подписки.
type SubscribeOption[T Event] func(*subscriptionOptions[T])

// WithAsync - опция, включающая асинхронный режим обработки для подписчика.
func WithAsync[T Event]() SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.isAsync = true
	}
}

// WithErrorHandler - опция, позволяющая задать пользовательский обработчик ошибок.
func WithErrorHandler[T Event](handler ErrorHandler[T]) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.errorHandler = handler
	}
}

// WithMiddleware добавляет локальные middleware, которые применяются только к данной подписке.
func WithMiddleware[T Event](mw ...Middleware[T]) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.middleware = append(o.middleware, mw...)
	}
}

// WithSubscriberName задает имя подписчика для логов.
func WithSubscriberName[T Event](name string) SubscribeOption[T] {
	return func(o *subscriptionOptions[T]) {
		o.name = name
	}
}
