package query

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// handlerNode - узел медиатора, выполняющий обработчик запроса Q.
type handlerNode[Q Query[R], R any] struct {
	handler QueryHandler[Q, R]
}

// targetKey хранит в контексте узел диспетчера, выполняющего вызов. Узлы того
// же типа в общем медиаторе отказываются от чужих вызовов.
type targetKey struct{}

// withTarget направляет вызов узлу n.
func withTarget[Q Query[R], R any](ctx context.Context, n *handlerNode[Q, R]) context.Context {
	return context.WithValue(ctx, targetKey{}, n)
}

var nodeRegistrations sync.Map

// registerNode однократно регистрирует метаданные handlerNode[Q, R].
func registerNode[Q Query[R], R any]() error {
	t := mediator.TypeOf[*handlerNode[Q, R]]()
	once, _ := nodeRegistrations.LoadOrStore(t, sync.OnceValue(func() error {
		err := mediator.Register[*handlerNode[Q, R]](
			mediator.Handles(func(n *handlerNode[Q, R], q Q, ctx context.Context) (R, error) {
				if target, ok := ctx.Value(targetKey{}).(*handlerNode[Q, R]); ok && target != n {
					var zero R
					return zero, mediator.ErrDeclined
				}
				return n.handler(context.WithValue(ctx, targetKey{}, nil), q)
			}).Named("query." + queryType[Q]()),
		)
		if err != nil && !errors.Is(err, mediator.ErrTypeAlreadyRegistered) {
			return fmt.Errorf("не удалось зарегистрировать обработчик запроса '%s': %w", queryType[Q](), err)
		}
		return nil
	}))
	return once.(func() error)()
}

func queryType[Q any]() string {
	return mediator.TypeOf[Q]().String()
}
