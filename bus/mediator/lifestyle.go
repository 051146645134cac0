package mediator

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// singletonProvider выдает каждой привязке собственный фильтр-кэш.
type singletonProvider struct {
	filters sync.Map
}

// Singleton возвращает поставщика, который кэширует первый результат члена
// для каждой привязки. Конкурентные первые вызовы получают один экземпляр.
// Отклоненный результат не кэшируется.
func Singleton() FilterProvider {
	return &singletonProvider{}
}

func (s *singletonProvider) Required() bool { return true }

func (s *singletonProvider) Filters(b *Binding, _ Callback, _ Handler) ([]Filter, error) {
	f, _ := s.filters.LoadOrStore(b, &singletonFilter{})
	return []Filter{f.(*singletonFilter)}, nil
}

type singletonFilter struct {
	mu     sync.Mutex
	cached atomic.Pointer[promise.Promise[any]]
}

// Order размещает кэш ближе всего к члену, внутри фильтров без порядка.
func (f *singletonFilter) Order() int { return lifestyleOrder }

func (f *singletonFilter) Next(ctx context.Context, _ HandleContext, next Next) *promise.Promise[any] {
	if p := f.cached.Load(); p != nil {
		return p
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if p := f.cached.Load(); p != nil {
		return p
	}
	p := next(ctx)
	f.cached.Store(p)
	p.Catch(func(err error) (any, error) {
		f.cached.CompareAndSwap(p, nil)
		return nil, err
	})
	return p
}

const lifestyleOrder = math.MaxInt
