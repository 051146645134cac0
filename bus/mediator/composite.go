package mediator

import (
	"slices"
	"sync"
)

// Composite - упорядоченный набор узлов. Обход идет по порядку до первой
// обработки, а при greedy - по всем узлам. Добавление идемпотентно по
// экземпляру; изменения не влияют на уже начатый обход.
//
// Тип, встраивающий *Composite, задает себя через SetSurrogate, и тогда его
// собственные члены опрашиваются раньше узлов набора.
type Composite struct {
	mu        sync.RWMutex
	handlers  []Handler
	surrogate any
}

// NewComposite создает набор из обработчиков; объекты адаптируются через NewHandler.
func NewComposite(handlers ...any) *Composite {
	c := &Composite{}
	c.Add(handlers...)
	return c
}

// SetSurrogate задает объект, чьи объявленные члены отвечают первыми.
func (c *Composite) SetSurrogate(surrogate any) *Composite {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surrogate = surrogate
	return c
}

// Handlers возвращает снимок узлов набора.
func (c *Composite) Handlers() []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.handlers)
}

// Add добавляет обработчики в конец набора.
func (c *Composite) Add(handlers ...any) *Composite {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := slices.Clone(c.handlers)
	for _, h := range handlers {
		if h == nil || indexOf(next, h) >= 0 {
			continue
		}
		next = append(next, NewHandler(h))
	}
	c.handlers = next
	return c
}

// Insert вставляет обработчики в позицию index.
func (c *Composite) Insert(index int, handlers ...any) *Composite {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := slices.Clone(c.handlers)
	index = min(max(index, 0), len(next))
	for _, h := range handlers {
		if h == nil || indexOf(next, h) >= 0 {
			continue
		}
		next = slices.Insert(next, index, NewHandler(h))
		index++
	}
	c.handlers = next
	return c
}

// Remove удаляет обработчики по экземпляру.
func (c *Composite) Remove(handlers ...any) *Composite {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := slices.Clone(c.handlers)
	for _, h := range handlers {
		if i := indexOf(next, h); i >= 0 {
			next = slices.Delete(next, i, i+1)
		}
	}
	c.handlers = next
	return c
}

// Len возвращает количество узлов.
func (c *Composite) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Handle реализует Handler.
func (c *Composite) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(c)
	}

	c.mu.RLock()
	handlers, surrogate := c.handlers, c.surrogate
	c.mu.RUnlock()

	result := NotHandled
	if surrogate != nil {
		result = DispatchCallback(surrogate, callback, greedy, composer)
		if result.IsError() || (result.IsHandled() && !greedy) {
			return result
		}
	}
	for _, h := range handlers {
		result = result.Or(h.Handle(callback, greedy, composer))
		if result.IsError() || (result.IsHandled() && !greedy) {
			return result
		}
	}
	return result
}

func indexOf(handlers []Handler, h any) int {
	target := unwrapHandler(h)
	for i, existing := range handlers {
		if sameInstance(existing, h) || sameInstance(unwrapHandler(existing), target) {
			return i
		}
	}
	return -1
}
