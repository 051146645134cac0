package mediator

import (
	"context"

	"github.com/goccy/go-reflect"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// Execute отправляет команду в цепочку h и возвращает ее результат.
// Асинхронный результат ожидается в контексте команды.
func Execute(h Handler, callback any, opts ...CallbackOption) (any, error) {
	cmd := NewCommand(callback, opts...)
	cmd.wantsAsync = false
	if err := handle(h, cmd, false); err != nil {
		return nil, err
	}
	return awaitValue(cmd.Context(), cmd.Result())
}

// ExecuteAll отправляет команду всем обработчикам цепочки и возвращает все
// непустые результаты.
func ExecuteAll(h Handler, callback any, opts ...CallbackOption) ([]any, error) {
	cmd := NewCommand(callback, append(opts, WithMany())...)
	cmd.wantsAsync = false
	if err := handle(h, cmd, true); err != nil {
		return nil, err
	}
	v, err := awaitValue(cmd.Context(), cmd.Result())
	if err != nil {
		return nil, err
	}
	results, _ := v.([]any)
	return results, nil
}

// ExecuteAsync отправляет команду и возвращает промис результата.
func ExecuteAsync(h Handler, callback any, opts ...CallbackOption) *promise.Promise[any] {
	cmd := NewCommand(callback, append(opts, WithAsync())...)
	if err := handle(h, cmd, false); err != nil {
		return promise.Reject[any](err)
	}
	return toPromise(cmd.Result())
}

// ExecuteAs аналогичен Execute, но приводит результат к типу R.
func ExecuteAs[R any](h Handler, callback any, opts ...CallbackOption) (R, error) {
	cmd := NewCommand(callback, opts...)
	cmd.wantsAsync = false
	if err := handle(h, cmd, false); err != nil {
		var zero R
		return zero, err
	}
	return convert[R](cmd.Context(), cmd.Result())
}

// Resolve запрашивает значение типа T. Если значение не найдено, возвращается
// нулевое значение без ошибки.
func Resolve[T any](h Handler, opts ...CallbackOption) (T, error) {
	v, err := ResolveKey(h, TypeOf[T](), opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](context.Background(), v)
}

// ResolveKey запрашивает значение по произвольному ключу.
func ResolveKey(h Handler, key any, opts ...CallbackOption) (any, error) {
	inquiry := NewInquiry(key, opts...)
	inquiry.wantsAsync = false
	if result := h.Handle(inquiry, false, nil); result.IsError() {
		return nil, result.Err()
	}
	return awaitValue(inquiry.Context(), inquiry.Result())
}

// ResolveAll запрашивает все значения типа T. Результат никогда не равен nil.
func ResolveAll[T any](h Handler, opts ...CallbackOption) ([]T, error) {
	inquiry := NewInquiry(TypeOf[T](), append(opts, WithMany())...)
	inquiry.wantsAsync = false
	if result := h.Handle(inquiry, true, nil); result.IsError() {
		return []T{}, result.Err()
	}
	v, err := awaitValue(inquiry.Context(), inquiry.Result())
	if err != nil {
		return []T{}, err
	}
	return convertAll[T](v)
}

// ResolveAsync запрашивает значение типа T и возвращает промис.
func ResolveAsync[T any](h Handler, opts ...CallbackOption) *promise.Promise[T] {
	inquiry := NewInquiry(TypeOf[T](), append(opts, WithAsync())...)
	if result := h.Handle(inquiry, false, nil); result.IsError() {
		return promise.Reject[T](result.Err())
	}
	return promise.As[T](toPromise(inquiry.Result()))
}

// ResolveAllAsync запрашивает все значения типа T и возвращает промис.
func ResolveAllAsync[T any](h Handler, opts ...CallbackOption) *promise.Promise[[]T] {
	inquiry := NewInquiry(TypeOf[T](), append(opts, WithMany(), WithAsync())...)
	if result := h.Handle(inquiry, true, nil); result.IsError() {
		return promise.Reject[[]T](result.Err())
	}
	return promise.Then(toPromise(inquiry.Result()), convertAll[T])
}

func handle(h Handler, cb Callback, greedy bool) error {
	result := h.Handle(cb, greedy, nil)
	if result.IsError() {
		return result.Err()
	}
	if !result.IsHandled() {
		return &NotHandledError{Callback: cb.Payload()}
	}
	return nil
}

// convert приводит значение (или результат промиса) к типу R.
func convert[R any](ctx context.Context, v any) (R, error) {
	var zero R
	if _, wantsPromise := any(zero).(promise.Deferred); !wantsPromise {
		var err error
		if v, err = awaitValue(ctx, v); err != nil {
			return zero, err
		}
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(R)
	if !ok {
		return zero, &ResultTypeError{Expected: TypeOf[R](), Actual: reflect.TypeOf(v)}
	}
	return typed, nil
}

func convertAll[T any](v any) ([]T, error) {
	values, _ := v.([]any)
	out := make([]T, 0, len(values))
	for _, value := range values {
		typed, ok := value.(T)
		if !ok {
			return out, &ResultTypeError{Expected: TypeOf[T](), Actual: reflect.TypeOf(value)}
		}
		out = append(out, typed)
	}
	return out, nil
}
