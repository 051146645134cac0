package command

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// Registry хранит именованные диспетчеры команд поверх одного медиатора.
//
// Все диспетчеры реестра регистрируют свои обработчики в общей цепочке, так что
// логгер, телеметрия и фильтры, переданные в NewRegistry, действуют на каждую
// команду. Диспетчеры одного типа команды не перехватывают вызовы друг друга.
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

// Dispatcher возвращает диспетчер для имени команды, создавая его при первом
// обращении. Медиатор реестра имеет приоритет над WithMediator из opts.
func Dispatcher[C Command[R], R any](r *Registry, commandName string, opts ...Option[C, R]) (IDispatcher[C, R], error) {
	r.mu.RLock()
	existing, exists := r.dispatchers[commandName]
	r.mu.RUnlock()

	if exists {
		return typed[C, R](existing, commandName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.dispatchers[commandName]; exists {
		return typed[C, R](existing, commandName)
	}

	opts = append(opts[:len(opts):len(opts)], WithMediator[C, R](r.mediator))
	d, err := NewDispatcher(opts...)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать диспетчер для команды '%s': %w", commandName, err)
	}
	r.dispatchers[commandName] = d

	return d, nil
}

func typed[C Command[R], R any](d any, commandName string) (IDispatcher[C, R], error) {
	if td, ok := d.(IDispatcher[C, R]); ok {
		return td, nil
	}
	return nil, fmt.Errorf("диспетчер для команды '%s' уже существует с другим типом", commandName)
}

// Shutdown останавливает все диспетчеры реестра. Если медиатор принадлежит
// реестру, из его цепочки удаляются и оставшиеся обработчики.
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
