package mediator

// Composition оборачивает callback, отправленный через composer во время
// обработки другого callback-а. Семантика вызова не распространяется на
// вложенные вызовы.
type Composition struct {
	callback any
}

// Callback возвращает вложенный callback.
func (c *Composition) Callback() any { return c.callback }

// Dispatch реализует CallbackDispatcher.
func (c *Composition) Dispatch(handler any, greedy bool, composer Handler) HandleResult {
	return DispatchCallback(handler, c.callback, greedy, composer)
}

// Bounds передает метку границы вложенного callback-а.
func (c *Composition) Bounds() any {
	if b, ok := c.callback.(Bounded); ok {
		return b.Bounds()
	}
	return nil
}

// CanInfer реализует inferable.
func (c *Composition) CanInfer() bool {
	if i, ok := c.callback.(inferable); ok {
		return i.CanInfer()
	}
	return true
}

// unwrapComposition возвращает callback без обертки Composition.
func unwrapComposition(callback any) any {
	if c, ok := callback.(*Composition); ok {
		return c.callback
	}
	return callback
}

// compositionScope оборачивает все callback-и, проходящие через него, в Composition.
type compositionScope struct {
	Handler
}

func (s *compositionScope) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = s
	}
	if _, ok := callback.(*Composition); !ok {
		callback = &Composition{callback: callback}
	}
	return s.Handler.Handle(callback, greedy, composer)
}

// scope возвращает composer по умолчанию для узла цепочки.
func scope(h Handler) Handler {
	return &compositionScope{Handler: h}
}
