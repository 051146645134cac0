package mediator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// BundleOp - операция пакета, выполняемая над обработчиком.
type BundleOp func(h Handler) (any, error)

// NotifyFunc получает результат операции пакета. Для синхронных результатов
// false прекращает выполнение оставшихся операций.
type NotifyFunc func(result any, err error) bool

type bundleOp struct {
	op       BundleOp
	notify   NotifyFunc
	executed bool
}

// Bundle - пакет операций, выполняемых одной группой. В режиме all первая
// ошибка прерывает выполнение и отклоняет результат пакета; иначе ошибки
// операций записываются по отдельности.
type Bundle struct {
	id  uuid.UUID
	all bool

	mu        sync.Mutex
	ops       []*bundleOp
	completed bool
	result    *promise.Promise[[]promise.Outcome[any]]
}

// NewBundle создает пустой пакет.
func NewBundle(all bool) *Bundle {
	return &Bundle{id: uuid.New(), all: all}
}

// ID возвращает идентификатор пакета.
func (b *Bundle) ID() uuid.UUID { return b.id }

// Add добавляет операцию.
func (b *Bundle) Add(op BundleOp) *Bundle {
	return b.AddNotify(op, nil)
}

// AddNotify добавляет операцию с получателем результата.
func (b *Bundle) AddNotify(op BundleOp, notify NotifyFunc) *Bundle {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, &bundleOp{op: op, notify: notify})
	return b
}

// Len возвращает количество операций.
func (b *Bundle) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

// Result возвращает результат последнего выполнения пакета как callback-а.
func (b *Bundle) Result() *promise.Promise[[]promise.Outcome[any]] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result
}

// CanInfer реализует inferable.
func (b *Bundle) CanInfer() bool { return false }

// Dispatch реализует CallbackDispatcher: пакет выполняется один раз у первого
// получившего его объекта, а операции видят этот объект и всю цепочку composer.
func (b *Bundle) Dispatch(handler any, _ bool, composer Handler) HandleResult {
	if !b.start() {
		return NotHandled
	}
	b.finish(b.run(NewHandler(handler), composer))
	return Handled
}

// Complete выполняет операции над target, а затем над composer. Если все
// результаты синхронные, возвращаемый промис уже завершен. Пакет выполняется
// не более одного раза; повторный вызов возвращает ошибку.
func (b *Bundle) Complete(target Handler, composer Handler) *promise.Promise[[]promise.Outcome[any]] {
	if !b.start() {
		return promise.Reject[[]promise.Outcome[any]](fmt.Errorf("пакет %s уже выполнен: %w", b.id, ErrInvalidOperation))
	}
	result := b.run(target, composer)
	b.finish(result)
	return result
}

func (b *Bundle) start() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completed {
		return false
	}
	b.completed = true
	return true
}

func (b *Bundle) finish(result *promise.Promise[[]promise.Outcome[any]]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result = result
}

func (b *Bundle) run(target Handler, composer Handler) *promise.Promise[[]promise.Outcome[any]] {
	b.mu.Lock()
	ops := b.ops
	b.mu.Unlock()

	proxy := target
	if composer != nil {
		proxy = Cascade(target, composer)
	}

	results := make([]*promise.Promise[any], 0, len(ops))
	for _, o := range ops {
		p := runOp(o, proxy)
		o.executed = true
		results = append(results, p)

		if p.Settled() {
			v, err := p.Wait()
			if o.notify != nil && !o.notify(v, err) {
				break
			}
			if err != nil && b.all {
				break
			}
		} else if o.notify != nil {
			notify := o.notify
			results[len(results)-1] = p.Tap(func(v any, err error) { notify(v, err) })
		}
	}

	for _, o := range ops {
		if !o.executed && o.notify != nil {
			o.notify(nil, promise.ErrCanceled)
		}
	}

	if b.all {
		return promise.Then(promise.All(results...), func(values []any) ([]promise.Outcome[any], error) {
			outcomes := make([]promise.Outcome[any], len(values))
			for i, v := range values {
				outcomes[i] = promise.Outcome[any]{Value: v}
			}
			return outcomes, nil
		})
	}
	return promise.AllSettled(results...)
}

func runOp(o *bundleOp, h Handler) *promise.Promise[any] {
	v, err := o.op(h)
	if err != nil {
		return promise.Reject[any](err)
	}
	return toPromise(v)
}
