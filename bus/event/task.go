package event

import (
	"context"
	"fmt"
	"log/slog"
)

// Task представляет собой атомарную задачу для выполнения:
// событие и подписка, которая должна его обработать.
type Task[T Event] struct {
	ctx   context.Context
	event T
	sub   *subscription[T]
}

// run выполняет обработчик подписки. Паника обработчика превращается в ошибку.
// Ошибка передается ErrorHandler подписки, а без него записывается в лог.
func (t *Task[T]) run(logger *slog.Logger) {
	err := t.call()
	if err == nil {
		return
	}
	if t.sub.errorHandler != nil {
		t.sub.errorHandler(err, t.event)
		return
	}
	logger.ErrorContext(t.ctx, "ошибка обработчика события",
		slog.String("topic", t.sub.topic),
		slog.String("subscription_id", t.sub.id),
		slog.String("subscriber", t.sub.name),
		slog.Any("error", err),
	)
}

func (t *Task[T]) call() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("паника в обработчике события: %v", r)
		}
	}()
	return t.sub.handler(t.ctx, t.event)
}
