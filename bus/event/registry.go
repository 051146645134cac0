package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// Registry - это потокобезопасный реестр для управления экземплярами шин событий.
// Он гарантирует, что для каждого топика существует только один экземпляр шины
// определенного типа. Все шины реестра публикуют через общий медиатор.
type Registry struct {
	mu       sync.RWMutex
	mediator *mediator.Mediator
	owned    bool
	buses    map[string]any
}

// NewRegistry создает реестр с собственным медиатором, собранным из opts.
func NewRegistry(opts ...mediator.Option) *Registry {
	r := NewRegistryWith(mediator.New(opts...))
	r.owned = true
	return r
}

// NewRegistryWith создает реестр поверх внешнего медиатора.
func NewRegistryWith(m *mediator.Mediator) *Registry {
	return &Registry{
		mediator: m,
		buses:    make(map[string]any),
	}
}

// Mediator возвращает общий медиатор реестра.
func (r *Registry) Mediator() *mediator.Mediator {
	return r.mediator
}

// Bus возвращает строго типизированный экземпляр шины для указанного топика.
// Эта функция является идиоматичным способом работы с реестром в Go,
// обходя ограничение на отсутствие обобщенных методов.
func Bus[T Event](r *Registry, topic string, opts ...Option[T]) (IBus[T], error) {
	r.mu.RLock()
	bus, exists := r.buses[topic]
	r.mu.RUnlock()

	if exists {
		if typedBus, ok := bus.(IBus[T]); ok {
			return typedBus, nil
		}
		return nil, fmt.Errorf("шина для топика '%s' уже существует с другим типом события", topic)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Повторная проверка на случай, если шина была создана во время ожидания блокировки.
	if bus, exists := r.buses[topic]; exists {
		if typedBus, ok := bus.(IBus[T]); ok {
			return typedBus, nil
		}
		return nil, fmt.Errorf("шина для топика '%s' уже существует с другим типом события", topic)
	}

	opts = append(opts[:len(opts):len(opts)], WithMediator[T](r.mediator))
	newBus, err := NewBus(topic, opts...)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать шину для топика '%s': %w", topic, err)
	}

	r.buses[topic] = newBus
	return newBus, nil
}

// Shutdown корректно завершает работу всех зарегистрированных шин
// и возвращает объединение их ошибок. Собственный медиатор реестра
// после этого остается пустым.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for topic, busInstance := range r.buses {
		if shutdowner, ok := busInstance.(interface {
			Shutdown(context.Context) error
		}); ok {
			if err := shutdowner.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("ошибка при закрытии шины для топика %s: %w", topic, err))
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
