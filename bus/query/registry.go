package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// Registry - потокобезопасный реестр диспетчеров запросов. Диспетчеры реестра
// разделяют один медиатор и его фильтры.
type Registry struct {
	mediator    *mediator.Mediator
	owned       bool
	dispatchers map[string]any
	mu          sync.RWMutex
}

// NewRegistry создает реестр с собственным медиатором, собранным из opts.
func NewRegistry(opts ...mediator.Option) *Registry {
	r := NewRegistryWith(mediator.New(opts...))
	r.owned = true
	return r
}

// NewRegistryWith создает реестр поверх внешнего медиатора. Shutdown реестра
// не удаляет из него чужие обработчики.
func NewRegistryWith(m *mediator.Mediator) *Registry {
	return &Registry{
		mediator:    m,
		dispatchers: make(map[string]any),
	}
}

// Mediator возвращает общий медиатор реестра.
func (r *Registry) Mediator() *mediator.Mediator {
	return r.mediator
}

// Dispatcher возвращает диспетчер для имени запроса, создавая его при первом
// обращении. Медиатор реестра имеет приоритет над WithMediator из opts.
func Dispatcher[Q Query[R], R any](r *Registry, queryName string, opts ...Option[Q, R]) (IDispatcher[Q, R], error) {
	r.mu.RLock()
	existing, exists := r.dispatchers[queryName]
	r.mu.RUnlock()

	if exists {
		return typed[Q, R](existing, queryName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.dispatchers[queryName]; exists {
		return typed[Q, R](existing, queryName)
	}

	opts = append(opts[:len(opts):len(opts)], WithMediator[Q, R](r.mediator))
	d := NewDispatcher(opts...)
	r.dispatchers[queryName] = d

	return d, nil
}

func typed[Q Query[R], R any](d any, queryName string) (IDispatcher[Q, R], error) {
	if td, ok := d.(IDispatcher[Q, R]); ok {
		return td, nil
	}
	return nil, fmt.Errorf("диспетчер для запроса '%s' уже существует с другим типом", queryName)
}

// Shutdown останавливает диспетчеры и возвращает объединенную ошибку.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, dispatcher := range r.dispatchers {
		if d, ok := dispatcher.(interface{ Shutdown(context.Context) error }); ok {
			if err := d.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("ошибка при завершении работы диспетчера '%s': %w", name, err))
			}
		}
	}

	if r.owned {
		for _, h := range r.mediator.Handlers() {
			r.mediator.Remove(h)
		}
	}

	return errors.Join(errs...)
}
