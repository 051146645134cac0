package mediator

import (
	"github.com/goccy/go-reflect"
)

// providerHandler отвечает на запросы заранее заданными значениями.
type providerHandler struct {
	Decorator
	values []any
}

// Provide возвращает узел, который отвечает на запросы значениями values,
// а остальные callback-и передает h. Если h равен nil, узел работает как лист.
func Provide(h Handler, values ...any) Handler {
	return &providerHandler{Decorator: NewDecorator(h), values: values}
}

func (p *providerHandler) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(p)
	}
	return p.handleLocal(func() HandleResult {
		inquiry, ok := unwrapComposition(callback).(*Inquiry)
		if !ok || inquiry.circular() {
			return NotHandled
		}
		result := NotHandled
		for _, v := range p.values {
			if !provides(v, inquiry.key) {
				continue
			}
			if inquiry.ReceiveResult(v, greedy, HandleContext{callback: inquiry, composer: composer}) {
				result = Handled
				if !greedy {
					break
				}
			}
		}
		return result
	}, callback, greedy, composer)
}

func provides(v any, key any) bool {
	if v == nil {
		return false
	}
	if kt, ok := key.(reflect.Type); ok {
		return reflect.TypeOf(v).AssignableTo(kt)
	}
	return false
}
