package mediator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/goccy/go-reflect"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// HandleContext описывает текущий вызов члена: конверт, привязку, экземпляр
// обработчика и composer.
type HandleContext struct {
	ctx      context.Context
	callback Callback
	binding  *Binding
	handler  any
	composer Handler
	greedy   bool
}

// Context возвращает контекст вызова.
func (hc HandleContext) Context() context.Context {
	if hc.ctx != nil {
		return hc.ctx
	}
	if c, ok := hc.callback.(interface{ Context() context.Context }); ok {
		return c.Context()
	}
	return context.Background()
}

// WithContext возвращает копию с заменой контекста.
func (hc HandleContext) WithContext(ctx context.Context) HandleContext {
	hc.ctx = ctx
	return hc
}

// Callback возвращает обрабатываемый конверт.
func (hc HandleContext) Callback() Callback { return hc.callback }

// Payload возвращает значение конверта.
func (hc HandleContext) Payload() any {
	if hc.callback == nil {
		return nil
	}
	return hc.callback.Payload()
}

// Binding возвращает вызываемую привязку.
func (hc HandleContext) Binding() *Binding { return hc.binding }

// Handler возвращает экземпляр обработчика; nil для конструкторов.
func (hc HandleContext) Handler() any { return hc.handler }

// Composer возвращает composer текущей обработки.
func (hc HandleContext) Composer() Handler { return hc.composer }

// Greedy сообщает, идет ли жадная обработка.
func (hc HandleContext) Greedy() bool { return hc.greedy }

// Binding - привязка члена к типу обработчика. Строится один раз при
// построении дескриптора и не меняется.
type Binding struct {
	member  Member
	owner   reflect.Type
	key     any
	filters []FilterProvider
}

func newBinding(owner reflect.Type, m Member, typeFilters []FilterProvider) *Binding {
	filters := make([]FilterProvider, 0, len(typeFilters)+len(m.Filters))
	filters = append(filters, typeFilters...)
	filters = append(filters, m.Filters...)
	return &Binding{member: m, owner: owner, key: m.Key, filters: filters}
}

// Name возвращает имя члена.
func (b *Binding) Name() string { return b.member.Name }

// Key возвращает объявленный ключ.
func (b *Binding) Key() any { return b.key }

// Policy возвращает политику привязки.
func (b *Binding) Policy() Policy { return b.member.Policy }

// Owner возвращает тип обработчика.
func (b *Binding) Owner() reflect.Type { return b.owner }

// Invariant сообщает, требует ли привязка точного совпадения ключа.
func (b *Binding) Invariant() bool { return b.member.Invariant }

// Invoke выполняет член через конвейер фильтров. Синхронный результат члена
// остается синхронным, если ни один фильтр не сделал его асинхронным.
func (b *Binding) Invoke(hc HandleContext) (any, error) {
	hc.binding = b
	filters, err := b.collectFilters(hc)
	if err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return b.call(hc)
	}

	var memberAsync atomic.Bool
	var next Next = func(ctx context.Context) *promise.Promise[any] {
		v, err := b.call(hc.WithContext(ctx))
		if err != nil {
			return promise.Reject[any](err)
		}
		if d, ok := v.(promise.Deferred); ok {
			memberAsync.Store(true)
			return d.Untyped()
		}
		return promise.Resolve(v)
	}
	for i := len(filters) - 1; i >= 0; i-- {
		filter, inner := filters[i], next
		next = func(ctx context.Context) *promise.Promise[any] {
			p := filter.Next(ctx, hc.WithContext(ctx), inner)
			if p == nil {
				return promise.Reject[any](fmt.Errorf("фильтр %T не вернул результат: %w", filter, ErrInvalidOperation))
			}
			return p
		}
	}

	p := next(hc.Context())
	if p.Settled() && !memberAsync.Load() {
		return p.Wait()
	}
	return p, nil
}

func (b *Binding) call(hc HandleContext) (any, error) {
	args, err := b.resolveArgs(hc)
	if err != nil {
		return nil, err
	}
	return b.member.Invoke(hc.handler, args)
}

func (b *Binding) resolveArgs(hc HandleContext) ([]any, error) {
	args := make([]any, len(b.member.Params))
	for i, p := range b.member.Params {
		switch p.Kind {
		case ParamPayload:
			payload := hc.Payload()
			if !assignable(payload, p.Type) {
				return nil, errUnresolved
			}
			args[i] = payload
		case ParamCallback:
			if !assignable(hc.callback, p.Type) {
				return nil, errUnresolved
			}
			args[i] = hc.callback
		case ParamComposer:
			args[i] = hc.composer
		case ParamContext:
			args[i] = hc.Context()
		case ParamHandleContext:
			args[i] = hc
		case ParamResolve:
			v, err := resolveParam(hc, p)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
	}
	return args, nil
}

func assignable(v any, t reflect.Type) bool {
	if v == nil || t == nil {
		return true
	}
	return reflect.TypeOf(v).AssignableTo(t)
}

// resolveParam разрешает зависимость через composer вложенным запросом.
func resolveParam(hc HandleContext, p Param) (any, error) {
	if hc.composer == nil {
		if p.Optional || p.Many {
			return nil, nil
		}
		return nil, errUnresolved
	}

	inquiry := dependencyInquiry(hc, p.Key, p.Many)
	r := hc.composer.Handle(inquiry, p.Many, nil)
	if r.IsError() {
		return nil, fmt.Errorf("разрешение зависимости '%s': %w", keyString(p.Key), r.Err())
	}

	ctx := hc.Context()
	if p.Many {
		values := make([]any, 0, len(inquiry.results))
		var elem reflect.Type
		if p.Type != nil && p.Type.Kind() == reflect.Slice {
			elem = p.Type.Elem()
		}
		for _, res := range inquiry.results {
			v, err := awaitValue(ctx, res)
			if err != nil {
				return nil, err
			}
			if v != nil && assignable(v, elem) {
				values = append(values, v)
			}
		}
		return values, nil
	}

	v, err := awaitValue(ctx, inquiry.Result())
	if err != nil {
		return nil, err
	}
	if v == nil || !assignable(v, p.Type) {
		if p.Optional {
			return nil, nil
		}
		return nil, errUnresolved
	}
	return v, nil
}

func dependencyInquiry(hc HandleContext, key any, many bool) *Inquiry {
	if parent, ok := hc.callback.(*Inquiry); ok {
		return parent.child(key, many)
	}
	opts := []CallbackOption{WithContext(hc.Context())}
	if many {
		opts = append(opts, WithMany())
	}
	return NewInquiry(key, opts...)
}

// skippable сообщает, что привязка не подошла и поиск нужно продолжить.
func skippable(err error) bool {
	return errors.Is(err, ErrDeclined) || errors.Is(err, errUnresolved)
}
