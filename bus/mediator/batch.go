package mediator

import (
	"sync"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// batchHandler откладывает асинхронные команды до завершения пакета.
// Синхронные команды и вложенные вызовы передаются дальше сразу.
type batchHandler struct {
	Decorator
	bundle *Bundle

	mu        sync.Mutex
	completed bool
}

// Batch вызывает configure с узлом, который собирает асинхронные команды
// (ExecuteAsync) в пакет. Каждая команда сразу получает ожидающий промис,
// который завершается после выполнения пакета над h.
func Batch(h Handler, configure func(batch Handler)) *promise.Promise[[]promise.Outcome[any]] {
	return runBatch(h, configure, false)
}

// BatchAll аналогичен Batch, но первая ошибка прерывает пакет, а промисы
// невыполненных команд отменяются.
func BatchAll(h Handler, configure func(batch Handler)) *promise.Promise[[]promise.Outcome[any]] {
	return runBatch(h, configure, true)
}

func runBatch(h Handler, configure func(batch Handler), all bool) *promise.Promise[[]promise.Outcome[any]] {
	b := &batchHandler{Decorator: NewDecorator(h), bundle: NewBundle(all)}
	configure(b)
	return b.complete()
}

func (b *batchHandler) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(b)
	}

	b.mu.Lock()
	completed := b.completed
	b.mu.Unlock()

	if cmd, ok := callback.(*Command); ok && !completed && cmd.WantsAsync() {
		b.enqueue(cmd)
		return Handled
	}
	return b.forward(callback, greedy, composer)
}

func (b *batchHandler) enqueue(cmd *Command) {
	pending, resolve, reject := promise.WithResolvers[any]()
	opts := []CallbackOption{WithContext(cmd.Context())}
	if cmd.Many() {
		opts = append(opts, WithMany())
	}
	payload := cmd.Payload()

	b.bundle.AddNotify(func(h Handler) (any, error) {
		return ExecuteAsync(h, payload, opts...), nil
	}, func(result any, err error) bool {
		if err != nil {
			reject(err)
		} else {
			resolve(result)
		}
		return true
	})
	cmd.SetResult(pending)
}

func (b *batchHandler) complete() *promise.Promise[[]promise.Outcome[any]] {
	b.mu.Lock()
	b.completed = true
	b.mu.Unlock()
	return b.bundle.Complete(b.decoratee, nil)
}
