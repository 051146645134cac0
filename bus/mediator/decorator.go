package mediator

// Decorator - основа узлов, которые добавляют поведение и передают
// необработанные callback-и оборачиваемому узлу.
type Decorator struct {
	decoratee Handler
}

// NewDecorator создает основу декоратора вокруг h.
func NewDecorator(h Handler) Decorator {
	return Decorator{decoratee: h}
}

// Decoratee возвращает оборачиваемый узел.
func (d *Decorator) Decoratee() Handler { return d.decoratee }

// forward передает callback оборачиваемому узлу, если он задан.
func (d *Decorator) forward(callback any, greedy bool, composer Handler) HandleResult {
	if d.decoratee == nil {
		return NotHandled
	}
	return d.decoratee.Handle(callback, greedy, composer)
}

// handleLocal опрашивает local, а затем оборачиваемый узел по правилам greedy.
func (d *Decorator) handleLocal(local func() HandleResult, callback any, greedy bool, composer Handler) HandleResult {
	result := local()
	if result.IsError() || (result.IsHandled() && !greedy) {
		return result
	}
	return result.Or(d.forward(callback, greedy, composer))
}

// HandleSelf опрашивает объявленные члены self, а затем оборачиваемый узел.
// Типы, встраивающие Decorator, вызывают его из своего метода Handle.
func (d *Decorator) HandleSelf(self any, callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		if h, ok := self.(Handler); ok {
			composer = scope(h)
		}
	}
	return d.handleLocal(func() HandleResult {
		return DispatchCallback(self, callback, greedy, composer)
	}, callback, greedy, composer)
}
