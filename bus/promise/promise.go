// Package promise реализует отложенные значения, которые использует ядро
// медиатора для унификации синхронных и асинхронных результатов.
//
// Promise находится в одном из трех состояний: ожидание, выполнен, отклонен.
// Отмена является частным случаем отклонения с ошибкой ErrCanceled.
// После перехода в конечное состояние результат промиса не меняется.
//
// Продолжения (Then, Catch, Finally, Tap), зарегистрированные на уже
// завершенном промисе, выполняются синхронно в вызывающей горутине. Продолжения
// на ожидающем промисе выполняются в горутине, которая его завершила.
// Пакет не создает горутин сам по себе, кроме Go и All.
package promise

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCanceled возвращается промисом, который был отменен вызовом Cancel.
var ErrCanceled = errors.New("промис отменен")

// PanicError оборачивает значение паники, возникшей в исполнителе или продолжении.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("паника при вычислении промиса: %v", e.Value)
}

// Deferred позволяет распознать промис независимо от типа его значения.
type Deferred interface {
	// Untyped возвращает представление промиса со значением типа any.
	Untyped() *Promise[any]
	// Done возвращает канал, который закрывается при завершении промиса.
	Done() <-chan struct{}
	// Cancel отменяет промис, если он еще не завершен.
	Cancel()
}

// Promise представляет отложенное значение типа T.
type Promise[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []func()
}

func newPending[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// New создает промис и синхронно вызывает executor. Промис завершается
// первым вызовом resolve или reject; повторные вызовы игнорируются.
// Паника внутри executor отклоняет промис с *PanicError.
func New[T any](executor func(resolve func(T), reject func(error))) *Promise[T] {
	p := newPending[T]()
	func() {
		defer p.recoverPanic()
		executor(p.resolve, p.reject)
	}()
	return p
}

// WithResolvers создает ожидающий промис и возвращает функции для его завершения.
func WithResolvers[T any]() (*Promise[T], func(T), func(error)) {
	p := newPending[T]()
	return p, p.resolve, p.reject
}

// Go выполняет fn в отдельной горутине. Контекст, переданный в fn,
// отменяется при отмене промиса.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Promise[T] {
	ctx, cancel := context.WithCancel(ctx)
	p := newPending[T]()
	p.OnCancel(cancel)
	go func() {
		defer cancel()
		defer p.recoverPanic()
		v, err := fn(ctx)
		p.settle(v, err)
	}()
	return p
}

// Resolve возвращает выполненный промис.
func Resolve[T any](v T) *Promise[T] {
	p := newPending[T]()
	p.settle(v, nil)
	return p
}

// Reject возвращает отклоненный промис.
func Reject[T any](err error) *Promise[T] {
	if err == nil {
		err = errors.New("промис отклонен без причины")
	}
	p := newPending[T]()
	var zero T
	p.settle(zero, err)
	return p
}

func (p *Promise[T]) resolve(v T) {
	p.settle(v, nil)
}

func (p *Promise[T]) reject(err error) {
	var zero T
	if err == nil {
		err = errors.New("промис отклонен без причины")
	}
	p.settle(zero, err)
}

func (p *Promise[T]) recoverPanic() {
	if r := recover(); r != nil {
		p.reject(&PanicError{Value: r})
	}
}

// settle переводит промис в конечное состояние и запускает продолжения.
func (p *Promise[T]) settle(v T, err error) bool {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return false
	}
	p.settled = true
	p.value, p.err = v, err
	callbacks := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return true
}

// subscribe вызывает cb после завершения промиса (сразу, если он уже завершен).
func (p *Promise[T]) subscribe(cb func()) {
	p.mu.Lock()
	if !p.settled {
		p.callbacks = append(p.callbacks, cb)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	cb()
}

// Done возвращает канал, закрывающийся при завершении промиса.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Settled сообщает, завершен ли промис.
func (p *Promise[T]) Settled() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Wait блокируется до завершения промиса и возвращает его результат.
func (p *Promise[T]) Wait() (T, error) {
	<-p.done
	return p.value, p.err
}

// Await ожидает завершения промиса или отмены ctx.
// Отмена ctx не отменяет сам промис.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Cancel отклоняет ожидающий промис с ErrCanceled.
func (p *Promise[T]) Cancel() {
	var zero T
	p.settle(zero, ErrCanceled)
}

// OnCancel регистрирует fn, которая будет вызвана, если промис будет отменен.
func (p *Promise[T]) OnCancel(fn func()) {
	p.subscribe(func() {
		if errors.Is(p.err, ErrCanceled) {
			fn()
		}
	})
}

// Untyped реализует Deferred.
func (p *Promise[T]) Untyped() *Promise[any] {
	if up, ok := any(p).(*Promise[any]); ok {
		return up
	}
	return Then(p, func(v T) (any, error) {
		return v, nil
	})
}

// Catch возвращает промис, в котором ошибка обработана fn.
func (p *Promise[T]) Catch(fn func(err error) (T, error)) *Promise[T] {
	return chain(p, func(v T, err error) (T, error) {
		if err == nil {
			return v, nil
		}
		return fn(err)
	})
}

// Finally возвращает промис с тем же результатом, вызвав fn после завершения.
func (p *Promise[T]) Finally(fn func()) *Promise[T] {
	return chain(p, func(v T, err error) (T, error) {
		fn()
		return v, err
	})
}

// Tap возвращает промис с тем же результатом, передав результат в fn.
func (p *Promise[T]) Tap(fn func(v T, err error)) *Promise[T] {
	return chain(p, func(v T, err error) (T, error) {
		fn(v, err)
		return v, err
	})
}

// Then возвращает промис, значение которого вычисляется fn из значения p.
// Ошибка p передается дальше без вызова fn.
func Then[T, R any](p *Promise[T], fn func(T) (R, error)) *Promise[R] {
	return chain(p, func(v T, err error) (R, error) {
		if err != nil {
			var zero R
			return zero, err
		}
		return fn(v)
	})
}

// As приводит нетипизированный промис к промису типа T.
// Значение nil превращается в нулевое значение T.
func As[T any](p *Promise[any]) *Promise[T] {
	if tp, ok := any(p).(*Promise[T]); ok {
		return tp
	}
	return Then(p, func(v any) (T, error) {
		var zero T
		if v == nil {
			return zero, nil
		}
		typed, ok := v.(T)
		if !ok {
			return zero, fmt.Errorf("значение промиса имеет тип %T, ожидался %T", v, zero)
		}
		return typed, nil
	})
}

// chain создает производный промис. Отмена производного промиса отменяет исходный.
func chain[T, R any](p *Promise[T], fn func(T, error) (R, error)) *Promise[R] {
	next := newPending[R]()
	next.OnCancel(p.Cancel)
	p.subscribe(func() {
		defer next.recoverPanic()
		v, err := fn(p.value, p.err)
		next.settle(v, err)
	})
	return next
}
