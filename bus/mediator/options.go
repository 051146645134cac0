package mediator

// Mergeable описывает значение опций типа T, которое умеет переносить заданные
// в нем поля в другое значение того же типа.
type Mergeable[T any] interface {
	*T
	MergeInto(target *T)
}

// optionsQuery собирает опции типа T, заданные в цепочке.
type optionsQuery[T any] struct {
	target *T
}

func (q *optionsQuery[T]) Dispatch(any, bool, Handler) HandleResult { return NotHandled }
func (q *optionsQuery[T]) CanInfer() bool                           { return false }
func (q *optionsQuery[T]) system()                                  {}

type optionsHandler[T any, PT Mergeable[T]] struct {
	Decorator
	options T
}

// WithOptions возвращает узел, предоставляющий опции options вызовам через h.
// Опции, заданные ближе к вызывающей стороне, имеют приоритет.
func WithOptions[T any, PT Mergeable[T]](h Handler, options T) Handler {
	return &optionsHandler[T, PT]{Decorator: NewDecorator(h), options: options}
}

func (o *optionsHandler[T, PT]) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(o)
	}
	if q, ok := unwrapComposition(callback).(*optionsQuery[T]); ok {
		PT(&o.options).MergeInto(q.target)
		if greedy {
			o.forward(callback, greedy, composer)
		}
		return Handled
	}
	return o.forward(callback, greedy, composer)
}

// GetOptions собирает в target опции типа T, заданные в цепочке h.
// Возвращает false, если опции не заданы.
func GetOptions[T any](h Handler, target *T) bool {
	if h == nil {
		return false
	}
	return h.Handle(&optionsQuery[T]{target: target}, true, h).IsHandled()
}
