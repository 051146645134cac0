package mediator

import (
	"context"
	"fmt"

	"github.com/goccy/go-reflect"
)

// TypeOf возвращает тип T, включая интерфейсные типы.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

var (
	anyType           = TypeOf[any]()
	errorType         = TypeOf[error]()
	contextType       = TypeOf[context.Context]()
	handlerType       = TypeOf[Handler]()
	handleContextType = TypeOf[HandleContext]()
	callbackType      = TypeOf[Callback]()
)

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// describe возвращает читаемое имя callback-а для логов и ошибок.
func describe(callback any) string {
	switch cb := callback.(type) {
	case nil:
		return "<nil>"
	case *Command:
		return describe(cb.callback)
	case *Inquiry:
		return fmt.Sprintf("inquiry %v", keyString(cb.key))
	case *Composition:
		return describe(cb.callback)
	case *HandleMethod:
		return fmt.Sprintf("%s.%s", typeString(cb.protocol), cb.method)
	}
	return reflect.TypeOf(callback).String()
}

func keyString(key any) string {
	if t, ok := key.(reflect.Type); ok {
		return typeString(t)
	}
	return fmt.Sprintf("%v", key)
}

// isComparable сообщает, можно ли использовать значение как ключ map.
func isComparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}

// isNilValue распознает типизированные nil-значения внутри any.
func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// sameInstance сравнивает обработчики без паники на несравнимых типах.
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
