package mediator

import (
	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// InterceptFunc перехватывает обработку callback-а; proceed передает
// callback дальше по цепочке.
type InterceptFunc func(callback any, composer Handler, proceed func() HandleResult) HandleResult

type interceptHandler struct {
	Decorator
	intercept InterceptFunc
	reentrant bool
}

// Intercept возвращает узел, перехватывающий callback-и перед h.
// Вложенные вызовы через composer не перехватываются.
func Intercept(h Handler, fn InterceptFunc) Handler {
	return &interceptHandler{Decorator: NewDecorator(h), intercept: fn}
}

// InterceptReentrant аналогичен Intercept, но перехватывает и вложенные вызовы.
func InterceptReentrant(h Handler, fn InterceptFunc) Handler {
	return &interceptHandler{Decorator: NewDecorator(h), intercept: fn, reentrant: true}
}

func (f *interceptHandler) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(f)
	}
	if _, nested := callback.(*Composition); nested && !f.reentrant {
		return f.forward(callback, greedy, composer)
	}
	return f.intercept(callback, composer, func() HandleResult {
		return f.forward(callback, greedy, composer)
	})
}

// BeforeFunc вызывается перед обработкой; false отклоняет callback.
type BeforeFunc func(callback any, composer Handler) (bool, error)

// AfterFunc вызывается после обработки.
type AfterFunc func(callback any, composer Handler, result HandleResult)

// Aspect возвращает узел с предусловием before и постобработкой after.
// Отклонение в before дает *RejectedError, а для асинхронного вызова -
// отмененный промис в качестве результата.
func Aspect(h Handler, before BeforeFunc, after AfterFunc) Handler {
	return Intercept(h, func(callback any, composer Handler, proceed func() HandleResult) HandleResult {
		if before != nil {
			ok, err := before(callback, composer)
			if err != nil {
				return NotHandled.WithError(err)
			}
			if !ok {
				return reject(callback)
			}
		}
		result := proceed()
		if after != nil {
			after(callback, composer, result)
		}
		return result
	})
}

func reject(callback any) HandleResult {
	err := &RejectedError{Callback: callback}
	if ac, ok := unwrapComposition(callback).(asyncCallback); ok && ac.WantsAsync() {
		ac.SetResult(promise.Reject[any](err))
		return Handled
	}
	return NotHandled.WithError(err)
}
