package mediator

import (
	"context"

	"github.com/google/uuid"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// Callback - конверт, который диспетчеризуется по политике через дескрипторы обработчиков.
type Callback interface {
	// Policy возвращает политику, по которой выбираются привязки.
	Policy() Policy
	// Key возвращает ключ, с которым сопоставляются объявленные ключи членов.
	Key() any
	// Payload возвращает значение, передаваемое членам как аргумент callback-а.
	Payload() any
	// ReceiveResult принимает результат вызова члена и сообщает, засчитан ли он.
	ReceiveResult(result any, greedy bool, hc HandleContext) bool
}

// CallbackDispatcher реализуют callback-и, которые сами решают, как обработать
// конкретный объект-обработчик.
type CallbackDispatcher interface {
	Dispatch(handler any, greedy bool, composer Handler) HandleResult
}

// Bounded реализуют callback-и с меткой границы, которую не пересекают
// обработчики, созданные через Bounds.
type Bounded interface {
	Bounds() any
}

// inferable реализуют служебные callback-и, для которых не нужен поиск
// обработчиков через конструкторы.
type inferable interface {
	CanInfer() bool
}

// asyncCallback реализуют конверты, различающие синхронные и асинхронные вызовы.
type asyncCallback interface {
	WantsAsync() bool
	SetResult(result any)
}

// CallbackOption настраивает базовые свойства конверта.
type CallbackOption func(*CallbackBase)

// WithContext задает контекст, который получают члены с параметром context.Context.
func WithContext(ctx context.Context) CallbackOption {
	return func(c *CallbackBase) {
		c.ctx = ctx
	}
}

// WithMany требует сбора всех результатов, а не только первого.
func WithMany() CallbackOption {
	return func(c *CallbackBase) {
		c.many = true
	}
}

// WithAsync требует асинхронного результата в виде промиса.
func WithAsync() CallbackOption {
	return func(c *CallbackBase) {
		c.wantsAsync = true
	}
}

// WithBounds задает метку границы callback-а.
func WithBounds(boundary any) CallbackOption {
	return func(c *CallbackBase) {
		c.bounds = boundary
	}
}

// WithCallbackFilters добавляет поставщиков фильтров для всех вызовов этого callback-а.
func WithCallbackFilters(providers ...FilterProvider) CallbackOption {
	return func(c *CallbackBase) {
		c.filters = append(c.filters, providers...)
	}
}

// CallbackBase содержит общее состояние конвертов: накопленные результаты,
// режим сбора и признак асинхронности.
type CallbackBase struct {
	id         uuid.UUID
	ctx        context.Context
	many       bool
	wantsAsync bool
	async      bool
	bounds     any
	filters    []FilterProvider
	results    []any
	result     any
	hasResult  bool
}

func (c *CallbackBase) init(opts []CallbackOption) {
	c.id = uuid.New()
	for _, opt := range opts {
		opt(c)
	}
}

// ID возвращает уникальный идентификатор конверта.
func (c *CallbackBase) ID() uuid.UUID { return c.id }

// Context возвращает контекст конверта.
func (c *CallbackBase) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Many сообщает, собираются ли все результаты.
func (c *CallbackBase) Many() bool { return c.many }

// WantsAsync сообщает, ожидает ли вызывающая сторона промис.
func (c *CallbackBase) WantsAsync() bool { return c.wantsAsync }

// IsAsync сообщает, был ли получен хотя бы один асинхронный результат.
func (c *CallbackBase) IsAsync() bool { return c.async }

// Bounds реализует Bounded.
func (c *CallbackBase) Bounds() any { return c.bounds }

// Filters возвращает поставщиков фильтров, заданных вызывающей стороной.
func (c *CallbackBase) Filters() []FilterProvider { return c.filters }

// Results возвращает накопленные результаты в порядке получения.
func (c *CallbackBase) Results() []any {
	results := make([]any, len(c.results))
	copy(results, c.results)
	return results
}

// AddResult добавляет результат. Значение nil не добавляется.
func (c *CallbackBase) AddResult(result any) bool {
	if result == nil {
		return false
	}
	if _, ok := result.(promise.Deferred); ok {
		c.async = true
	}
	c.results = append(c.results, result)
	return true
}

// SetResult заменяет вычисляемый результат явным значением.
func (c *CallbackBase) SetResult(result any) {
	c.result = result
	c.hasResult = true
	if _, ok := result.(promise.Deferred); ok {
		c.async = true
	}
}

// Result объединяет накопленные результаты. Для режима Many возвращается
// []any, иначе первый результат. Если хотя бы один результат асинхронный или
// вызывающая сторона ожидает промис, возвращается *promise.Promise[any].
func (c *CallbackBase) Result() any {
	if c.hasResult {
		if c.wantsAsync {
			return toPromise(c.result)
		}
		return c.result
	}

	if !c.async && !c.wantsAsync {
		if c.many {
			return c.Results()
		}
		if len(c.results) > 0 {
			return c.results[0]
		}
		return nil
	}

	pending := make([]*promise.Promise[any], len(c.results))
	for i, r := range c.results {
		pending[i] = toPromise(r)
	}
	many := c.many
	return promise.Then(promise.All(pending...), func(values []any) (any, error) {
		if many {
			out := make([]any, 0, len(values))
			for _, v := range values {
				if v != nil {
					out = append(out, v)
				}
			}
			return out, nil
		}
		for _, v := range values {
			if v != nil {
				return v, nil
			}
		}
		return nil, nil
	})
}

func toPromise(v any) *promise.Promise[any] {
	if d, ok := v.(promise.Deferred); ok {
		return d.Untyped()
	}
	return promise.Resolve(v)
}

// awaitValue дожидается значения, если v - промис.
func awaitValue(ctx context.Context, v any) (any, error) {
	if d, ok := v.(promise.Deferred); ok {
		return d.Untyped().Await(ctx)
	}
	return v, nil
}
