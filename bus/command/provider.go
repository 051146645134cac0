package command

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/goccy/go-reflect"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// handlerNode - узел медиатора, выполняющий обработчик команды C.
type handlerNode[C Command[R], R any] struct {
	handler CommandHandler[C, R]
}

// targetKey хранит в контексте узел диспетчера, выполняющего вызов. Узлы того
// же типа в общем медиаторе отказываются от чужих вызовов.
type targetKey struct{}

// withTarget направляет вызов узлу n.
func withTarget[C Command[R], R any](ctx context.Context, n *handlerNode[C, R]) context.Context {
	return context.WithValue(ctx, targetKey{}, n)
}

// nodeRegistrations хранит однократную регистрацию метаданных для каждой пары C, R.
var nodeRegistrations sync.Map

// registerNode регистрирует метаданные handlerNode[C, R] в медиаторе.
func registerNode[C Command[R], R any]() error {
	t := mediator.TypeOf[*handlerNode[C, R]]()
	once, _ := nodeRegistrations.LoadOrStore(t, sync.OnceValue(func() error {
		err := mediator.Register[*handlerNode[C, R]](
			mediator.Handles(func(n *handlerNode[C, R], cmd C, ctx context.Context) (R, error) {
				if target, ok := ctx.Value(targetKey{}).(*handlerNode[C, R]); ok && target != n {
					var zero R
					return zero, mediator.ErrDeclined
				}
				return n.handler(context.WithValue(ctx, targetKey{}, nil), cmd)
			}).Named("command." + commandType[C]()),
		)
		if err != nil && !errors.Is(err, mediator.ErrTypeAlreadyRegistered) {
			return fmt.Errorf("не удалось зарегистрировать обработчик команды '%s': %w", commandType[C](), err)
		}
		return nil
	}))
	return once.(func() error)()
}

// applyMiddlewares оборачивает обработчик так, что первый middleware выполняется первым.
func applyMiddlewares[C Command[R], R any](handler CommandHandler[C, R], middlewares ...Middleware[C, R]) CommandHandler[C, R] {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

func commandType[C any]() string {
	return mediator.TypeOf[C]().String()
}

// getHandlerName извлекает имя обработчика.
func getHandlerName(handler any) string {
	v := reflect.ValueOf(handler)
	if v.Kind() == reflect.Func {
		if pc := v.Pointer(); pc != 0 {
			if f := runtime.FuncForPC(pc); f != nil {
				return f.Name()
			}
		}
	}
	return reflect.TypeOf(handler).String()
}
