package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// errPoolStopped возвращается при попытке поставить задачу в остановленный пул.
var errPoolStopped = errors.New("пул воркеров остановлен")

// workerPool - это пул горутин для асинхронной обработки событий.
// Постоянно работают minWorkers воркеров. Если очередь не пуста, пул
// добавляет временных воркеров, пока их не станет maxWorkers.
type workerPool[T Event] struct {
	minWorkers int
	maxWorkers int
	tasks      chan *Task[T]
	logger     *slog.Logger
	active     atomic.Int32
	wg         sync.WaitGroup
	mu         sync.RWMutex
	stopped    bool
}

// newWorkerPool создает новый пул воркеров.
func newWorkerPool[T Event](minWorkers, maxWorkers, queueSize int, logger *slog.Logger) *workerPool[T] {
	if minWorkers <= 0 {
		minWorkers = defaultWorkerMin
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &workerPool[T]{
		minWorkers: minWorkers,
		maxWorkers: maxWorkers,
		tasks:      make(chan *Task[T], queueSize),
		logger:     logger,
	}
}

// run запускает постоянных воркеров пула.
func (p *workerPool[T]) run() {
	for i := 0; i < p.minWorkers; i++ {
		p.spawn(true)
	}
}

func (p *workerPool[T]) spawn(permanent bool) {
	p.active.Add(1)
	p.wg.Add(1)
	go p.worker(permanent)
}

// enqueue добавляет задачу в очередь на выполнение. Если очередь заполнена,
// вызов ждет освобождения места или отмены ctx.
func (p *workerPool[T]) enqueue(ctx context.Context, task *Task[T]) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return errPoolStopped
	}
	if len(p.tasks) > 0 && int(p.active.Load()) < p.maxWorkers {
		p.spawn(false)
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop закрывает очередь и ждет, пока воркеры выполнят оставшиеся задачи.
func (p *workerPool[T]) stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker - это основная функция горутины-воркера. Временный воркер
// завершается, как только очередь опустеет.
func (p *workerPool[T]) worker(permanent bool) {
	defer p.wg.Done()
	defer p.active.Add(-1)

	for {
		if permanent {
			task, ok := <-p.tasks
			if !ok {
				return
			}
			task.run(p.logger)
			continue
		}

		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task.run(p.logger)
		default:
			return
		}
	}
}
