package mediator

import (
	"context"
	"log/slog"

	"github.com/goccy/go-reflect"
)

// inferenceHandler ищет обработчики среди зарегистрированных типов: отвечает
// на запросы конструкторами и создает экземпляры типов, умеющих обработать callback.
type inferenceHandler struct {
	factory *DescriptorFactory
}

func (h *inferenceHandler) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(h)
	}
	inner := unwrapComposition(callback)
	if i, ok := inner.(inferable); ok && !i.CanInfer() {
		return NotHandled
	}

	var cb Callback
	switch c := inner.(type) {
	case Callback:
		cb = c
	case CallbackDispatcher, systemCallback:
		return NotHandled
	default:
		cb = NewCommand(inner)
	}

	result := NotHandled
	if inquiry, ok := cb.(*Inquiry); ok {
		result = h.create(inquiry, greedy, composer)
		if result.IsError() || (result.IsHandled() && !greedy) {
			return result
		}
	}

	for _, t := range h.factory.Types() {
		d, err := h.factory.Descriptor(t)
		if err != nil {
			return result.WithError(err)
		}
		if !d.HasBindings(cb.Policy(), cb.Key()) {
			continue
		}
		instance, err := h.instantiate(d, cb, composer)
		if err != nil {
			return result.WithError(err)
		}
		if instance == nil {
			continue
		}
		result = result.Or(d.Dispatch(cb.Policy(), instance, cb, greedy, composer))
		if result.IsError() || (result.IsHandled() && !greedy) {
			return result
		}
	}
	return result
}

// create отвечает на запрос конструкторами зарегистрированных типов.
func (h *inferenceHandler) create(inquiry *Inquiry, greedy bool, composer Handler) HandleResult {
	if inquiry.circular() {
		return NotHandled
	}
	result := NotHandled
	for _, t := range h.factory.Types() {
		d, err := h.factory.Descriptor(t)
		if err != nil {
			return result.WithError(err)
		}
		result = result.Or(d.Dispatch(CreatesPolicy, nil, inquiry, greedy, composer))
		if result.IsError() || (result.IsHandled() && !greedy) {
			return result
		}
	}
	return result
}

// instantiate создает экземпляр типа дескриптора первым подходящим конструктором.
func (h *inferenceHandler) instantiate(d *HandlerDescriptor, cb Callback, composer Handler) (any, error) {
	parent, _ := cb.(*Inquiry)
	var inquiry *Inquiry
	if parent != nil {
		inquiry = parent.child(d.Type(), false)
	} else if c, ok := cb.(interface{ Context() context.Context }); ok {
		inquiry = NewInquiry(d.Type(), WithContext(c.Context()))
	} else {
		inquiry = NewInquiry(d.Type())
	}
	result := d.Dispatch(CreatesPolicy, nil, inquiry, false, composer)
	if result.IsError() {
		return nil, result.Err()
	}
	instance, err := awaitValue(inquiry.Context(), inquiry.Result())
	if err != nil {
		return nil, err
	}
	if instance == nil {
		logger().Debug("тип не может быть создан", slog.String("handler_type", d.Type().String()))
		return nil, nil
	}
	if !reflect.TypeOf(instance).AssignableTo(d.Type()) {
		return nil, nil
	}
	return instance, nil
}
