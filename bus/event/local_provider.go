package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/goccy/go-reflect"
	"github.com/google/uuid"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
)

// ErrBusClosed возвращается при публикации или подписке после Shutdown.
var ErrBusClosed = errors.New("шина событий остановлена")

// subscription представляет собой узел медиатора для конкретной подписки.
// Медиатор вызывает его для каждого события типа T, а подписка отказывается
// от событий чужих топиков.
type subscription[T Event] struct {
	// id представляет собой уникальный идентификатор подписки (UUID).
	id    string
	topic string
	// name - имя подписчика в логах.
	name         string
	handler      EventHandler[T]
	isAsync      bool
	errorHandler ErrorHandler[T]
	provider     *LocalProvider[T]
}

// subscriptionRegistrations хранит однократную регистрацию метаданных для каждого T.
var subscriptionRegistrations sync.Map

// registerSubscription регистрирует метаданные subscription[T] в медиаторе.
func registerSubscription[T Event]() error {
	t := mediator.TypeOf[*subscription[T]]()
	once, _ := subscriptionRegistrations.LoadOrStore(t, sync.OnceValue(func() error {
		err := mediator.Register[*subscription[T]](
			mediator.Handles(func(s *subscription[T], e T, ctx context.Context) error {
				return s.deliver(ctx, e)
			}).Named("event." + eventType[T]()),
		)
		if err != nil && !errors.Is(err, mediator.ErrTypeAlreadyRegistered) {
			return fmt.Errorf("не удалось зарегистрировать подписчика события '%s': %w", eventType[T](), err)
		}
		return nil
	}))
	return once.(func() error)()
}

// deliver выполняет обработчик сразу или ставит задачу в пул воркеров.
func (s *subscription[T]) deliver(ctx context.Context, e T) error {
	if routingTopic(ctx, e) != s.topic {
		return mediator.ErrDeclined
	}
	ctx = withTopic(ctx, "")

	task := &Task[T]{ctx: ctx, event: e, sub: s}
	if !s.isAsync {
		task.run(s.provider.logger)
		return nil
	}

	task.ctx = context.WithoutCancel(ctx)
	if err := s.provider.pool.enqueue(ctx, task); err != nil {
		return fmt.Errorf("не удалось поставить событие топика '%s' в очередь: %w", s.topic, err)
	}
	return nil
}

// LocalProvider - это реализация интерфейса Provider, которая доставляет
// события в рамках одного процесса через медиатор. Асинхронные подписчики
// выполняются во внутреннем пуле воркеров.
type LocalProvider[T Event] struct {
	topic    string
	mediator *mediator.Mediator
	filters  []mediator.FilterProvider
	logger   *slog.Logger
	pool     *workerPool[T]

	mu       sync.RWMutex
	subs     map[string]*subscription[T]
	closed   bool
	inflight sync.WaitGroup
}

// NewLocalProvider создает новый экземпляр LocalProvider для топика.
func NewLocalProvider[T Event](topic string, cfg *config[T]) (*LocalProvider[T], error) {
	if err := registerSubscription[T](); err != nil {
		return nil, err
	}

	m := cfg.mediator
	if m == nil {
		m = mediator.New(
			mediator.WithLogger(cfg.logger),
			mediator.WithTracerProvider(cfg.tracerProvider),
			mediator.WithMeterProvider(cfg.meterProvider),
			mediator.WithPropagator(cfg.propagator),
		)
	}

	pool := newWorkerPool[T](cfg.workerMin, cfg.workerMax, cfg.queueSize, cfg.logger)
	pool.run()

	return &LocalProvider[T]{
		topic:    topic,
		mediator: m,
		filters:  cfg.filters,
		logger:   cfg.logger,
		pool:     pool,
		subs:     make(map[string]*subscription[T]),
	}, nil
}

// Publish доставляет событие всем подписчикам топика в порядке подписки.
// Отсутствие подписчиков не является ошибкой.
func (lp *LocalProvider[T]) Publish(ctx context.Context, event T) error {
	lp.mu.RLock()
	if lp.closed {
		lp.mu.RUnlock()
		return ErrBusClosed
	}
	lp.inflight.Add(1)
	lp.mu.RUnlock()
	defer lp.inflight.Done()

	_, err := mediator.Execute(mediator.Notify(lp.mediator), event,
		mediator.WithContext(withTopic(ctx, lp.topic)),
		mediator.WithCallbackFilters(lp.filters...),
	)
	if err != nil {
		return fmt.Errorf("не удалось опубликовать событие в топик '%s': %w", lp.topic, err)
	}
	return nil
}

// Subscribe подписывает обработчик на события топика.
func (lp *LocalProvider[T]) Subscribe(handler EventHandler[T], opts ...SubscribeOption[T]) (unsubscribe func(), err error) {
	if handler == nil {
		return nil, fmt.Errorf("обработчик не может быть nil")
	}

	subOpts := subscriptionOptions[T]{}
	for _, opt := range opts {
		opt(&subOpts)
	}

	finalHandler := handler
	for i := len(subOpts.middleware) - 1; i >= 0; i-- {
		finalHandler = subOpts.middleware[i](finalHandler)
	}

	name := subOpts.name
	if name == "" {
		name = getHandlerName(handler)
	}

	sub := &subscription[T]{
		id:           uuid.NewString(),
		topic:        lp.topic,
		name:         name,
		handler:      finalHandler,
		isAsync:      subOpts.isAsync,
		errorHandler: subOpts.errorHandler,
		provider:     lp,
	}

	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.closed {
		return nil, ErrBusClosed
	}
	lp.subs[sub.id] = sub
	lp.mediator.Add(sub)

	lp.logger.Info("подписка на события",
		slog.String("topic", lp.topic),
		slog.String("subscription_id", sub.id),
		slog.String("subscriber", name),
		slog.Bool("async", sub.isAsync),
	)

	return func() {
		lp.mu.Lock()
		defer lp.mu.Unlock()

		if _, ok := lp.subs[sub.id]; ok {
			delete(lp.subs, sub.id)
			lp.mediator.Remove(sub)
		}
	}, nil
}

// Shutdown отключает подписчиков от медиатора, дожидается текущих публикаций
// и выполнения задач из очереди пула.
func (lp *LocalProvider[T]) Shutdown(ctx context.Context) error {
	lp.mu.Lock()
	if lp.closed {
		lp.mu.Unlock()
		return nil
	}
	lp.closed = true
	lp.mu.Unlock()

	lp.inflight.Wait()

	lp.mu.Lock()
	for id, sub := range lp.subs {
		lp.mediator.Remove(sub)
		delete(lp.subs, id)
	}
	lp.mu.Unlock()

	return lp.pool.stop(ctx)
}

type topicKey struct{}

// withTopic сохраняет топик публикации в контексте.
func withTopic(ctx context.Context, topic string) context.Context {
	return context.WithValue(ctx, topicKey{}, topic)
}

// routingTopic возвращает топик публикации, а для события, отправленного
// в медиатор напрямую, топик самого события.
func routingTopic[T Event](ctx context.Context, e T) string {
	if topic, ok := ctx.Value(topicKey{}).(string); ok && topic != "" {
		return topic
	}
	return e.Topic()
}

func eventType[T any]() string {
	return mediator.TypeOf[T]().String()
}

// getHandlerName извлекает имя функции-обработчика.
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
