package mediator

// Handler - узел цепочки обработки. Любой callback может быть обработан
// нулем или более узлами; greedy требует опросить всех кандидатов.
// Если composer равен nil, узел использует себя в качестве composer-а.
type Handler interface {
	Handle(callback any, greedy bool, composer Handler) HandleResult
}

// HandlerFunc позволяет использовать функцию как узел цепочки.
type HandlerFunc func(callback any, greedy bool, composer Handler) HandleResult

// Handle реализует Handler.
func (f HandlerFunc) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(f)
	}
	return f(callback, greedy, composer)
}

// handlerAdapter превращает произвольный объект с зарегистрированными
// метаданными в узел цепочки.
type handlerAdapter struct {
	handler any
}

// NewHandler адаптирует объект к Handler. Значения, уже реализующие Handler,
// возвращаются без изменений.
func NewHandler(v any) Handler {
	if h, ok := v.(Handler); ok {
		return h
	}
	return &handlerAdapter{handler: v}
}

func (a *handlerAdapter) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(a)
	}
	return DispatchCallback(a.handler, callback, greedy, composer)
}

// Unwrap возвращает адаптированный объект.
func (a *handlerAdapter) Unwrap() any { return a.handler }

// DispatchCallback доставляет callback объекту handler: самодиспетчеризуемые
// callback-и решают сами, остальные идут через дескриптор типа handler.
// Значения, не являющиеся конвертами, оборачиваются в Command.
func DispatchCallback(handler any, callback any, greedy bool, composer Handler) HandleResult {
	if handler == nil || callback == nil {
		return NotHandled
	}
	switch cb := callback.(type) {
	case CallbackDispatcher:
		return cb.Dispatch(handler, greedy, composer)
	case Callback:
		return DispatchPolicy(handler, cb, greedy, composer)
	}
	return DispatchPolicy(handler, NewCommand(callback), greedy, composer)
}

// unwrapHandler возвращает объект, скрытый за адаптером.
func unwrapHandler(h any) any {
	if u, ok := h.(interface{ Unwrap() any }); ok {
		return u.Unwrap()
	}
	return h
}
