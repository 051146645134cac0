package promise

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Outcome описывает результат отдельного промиса в AllSettled.
type Outcome[T any] struct {
	Value T
	Err   error
}

// All возвращает промис, который выполняется срезом значений всех ps в исходном
// порядке или отклоняется первой ошибкой. Если все ps уже завершены, результат
// вычисляется синхронно. Отмена результата отменяет все входные промисы.
func All[T any](ps ...*Promise[T]) *Promise[[]T] {
	if len(ps) == 0 {
		return Resolve([]T{})
	}
	if allSettled(ps) {
		values := make([]T, len(ps))
		for i, p := range ps {
			if p.err != nil {
				return Reject[[]T](p.err)
			}
			values[i] = p.value
		}
		return Resolve(values)
	}

	result := Go(context.Background(), func(ctx context.Context) ([]T, error) {
		g, gctx := errgroup.WithContext(ctx)
		values := make([]T, len(ps))
		for i, p := range ps {
			g.Go(func() error {
				v, err := p.Await(gctx)
				if err != nil {
					return err
				}
				values[i] = v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return values, nil
	})
	result.OnCancel(func() {
		for _, p := range ps {
			p.Cancel()
		}
	})
	return result
}

// AllSettled возвращает промис, который выполняется после завершения всех ps
// и никогда не отклоняется, кроме случая собственной отмены.
func AllSettled[T any](ps ...*Promise[T]) *Promise[[]Outcome[T]] {
	outcomes := make([]Outcome[T], len(ps))
	if len(ps) == 0 {
		return Resolve(outcomes)
	}

	result := newPending[[]Outcome[T]]()
	var (
		mu        sync.Mutex
		remaining = len(ps)
	)
	for i, p := range ps {
		p.subscribe(func() {
			mu.Lock()
			outcomes[i] = Outcome[T]{Value: p.value, Err: p.err}
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				result.settle(outcomes, nil)
			}
		})
	}
	return result
}

func allSettled[T any](ps []*Promise[T]) bool {
	for _, p := range ps {
		if !p.Settled() {
			return false
		}
	}
	return true
}
