package mediator

// cascadeHandler опрашивает first, затем second. В режиме all оба узла
// опрашиваются всегда, и результат обработан только если обработали оба.
type cascadeHandler struct {
	first  Handler
	second Handler
	all    bool
}

// Cascade возвращает узел, который обращается к second, только если first
// не обработал callback (или при greedy).
func Cascade(first, second Handler) Handler {
	return &cascadeHandler{first: first, second: second}
}

// CascadeAll возвращает узел, требующий обработки обоими узлами.
func CascadeAll(first, second Handler) Handler {
	return &cascadeHandler{first: first, second: second, all: true}
}

func (c *cascadeHandler) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(c)
	}

	result := c.first.Handle(callback, greedy, composer)
	if result.IsError() {
		return result
	}
	if c.all {
		return result.And(c.second.Handle(callback, greedy, composer))
	}
	if result.IsHandled() && !greedy {
		return result
	}
	return result.Or(c.second.Handle(callback, greedy, composer))
}

// Chain последовательно объединяет обработчики через Cascade.
func Chain(h Handler, others ...any) Handler {
	result := h
	for _, o := range others {
		if o == nil {
			continue
		}
		result = Cascade(result, NewHandler(o))
	}
	return result
}
