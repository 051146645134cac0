package query_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
	"github.com/x-research-team/dtx-mediator/bus/promise"
	"github.com/x-research-team/dtx-mediator/bus/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Тестовый запрос для проверки.
type testQuery struct {
	Value string
}

// Тестовый запрос для проверки несовпадения типов.
type anotherTestQuery struct {
	Value int
}

// Запрос, переносящий контекст трассировки.
type tracedQuery struct {
	md map[string]string
}

func (q tracedQuery) Metadata() map[string]string { return q.md }

// Тестовый обработчик запроса.
func testQueryHandler(ctx context.Context, q testQuery) (string, error) {
	return "processed: " + q.Value, nil
}

// Тест успешной регистрации и выполнения запроса.
func TestDispatcher_Success(t *testing.T) {
	t.Parallel()

	// Создаем новый диспетчер.
	dispatcher := query.NewDispatcher[testQuery, string]()
	err := dispatcher.Register(testQueryHandler)
	require.NoError(t, err, "Регистрация обработчика не должна вызывать ошибку")

	// Отправляем запрос.
	q := testQuery{Value: "test"}
	result, err := dispatcher.Dispatch(context.Background(), q)

	// Проверяем результат.
	require.NoError(t, err, "Выполнение запроса не должно вызывать ошибку")
	assert.Equal(t, "processed: test", result, "Результат выполнения запроса некорректен")
}

// Тест ошибки при отправке запроса без зарегистрированного обработчика.
func TestDispatcher_Dispatch_NoHandler(t *testing.T) {
	t.Parallel()

	// Создаем новый диспетчер без регистрации обработчика.
	dispatcher := query.NewDispatcher[testQuery, string]()

	// Отправляем запрос.
	q := testQuery{Value: "test"}
	_, err := dispatcher.Dispatch(context.Background(), q)

	// Проверяем ошибку.
	require.Error(t, err, "Выполнение запроса без обработчика должно вызывать ошибку")
	assert.Contains(t, err.Error(), "обработчик для запроса", "Текст ошибки должен содержать информацию об отсутствующем обработчике")
	assert.Contains(t, err.Error(), "не найден", "Текст ошибки должен содержать информацию о том, что обработчик не найден")
}

// Тест ошибки при повторной регистрации обработчика.
func TestDispatcher_Register_AlreadyRegistered(t *testing.T) {
	t.Parallel()

	// Создаем новый диспетчер и регистрируем обработчик.
	dispatcher := query.NewDispatcher[testQuery, string]()
	err := dispatcher.Register(testQueryHandler)
	require.NoError(t, err, "Первая регистрация обработчика не должна вызывать ошибку")

	// Повторно регистрируем обработчик.
	err = dispatcher.Register(testQueryHandler)

	// Проверяем ошибку.
	require.Error(t, err, "Повторная регистрация обработчика должна вызывать ошибку")
	assert.Contains(t, err.Error(), "обработчик для запроса", "Текст ошибки должен содержать информацию о запросе")
	assert.Contains(t, err.Error(), "уже зарегистрирован", "Текст ошибки должен содержать информацию о том, что обработчик уже зарегистрирован")
}

// Тест асинхронного выполнения запроса.
func TestDispatcher_DispatchAsync(t *testing.T) {
	t.Parallel()

	dispatcher := query.NewDispatcher[testQuery, string]()
	require.NoError(t, dispatcher.Register(testQueryHandler))

	result, err := dispatcher.DispatchAsync(context.Background(), testQuery{Value: "async"}).Await(context.Background())
	require.NoError(t, err, "Асинхронный запрос не должен вызывать ошибку")
	assert.Equal(t, "processed: async", result)

	errFailed := errors.New("сбой")
	failing := query.NewDispatcher[anotherTestQuery, int]()
	require.NoError(t, failing.Register(func(context.Context, anotherTestQuery) (int, error) {
		return 0, errFailed
	}))
	_, err = failing.DispatchAsync(context.Background(), anotherTestQuery{}).Await(context.Background())
	assert.ErrorIs(t, err, errFailed, "Ошибка обработчика должна отклонять промис")
}

// Тест порядка выполнения middleware.
func TestDispatcher_Middleware(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(name string) query.Middleware[testQuery, string] {
		return func(next query.QueryHandler[testQuery, string]) query.QueryHandler[testQuery, string] {
			return func(ctx context.Context, q testQuery) (string, error) {
				order = append(order, name)
				return next(ctx, q)
			}
		}
	}

	dispatcher := query.NewDispatcher(query.WithMiddleware(mw("первый"), mw("второй")))
	require.NoError(t, dispatcher.Register(testQueryHandler))

	_, err := dispatcher.Dispatch(context.Background(), testQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"первый", "второй"}, order, "Middleware должны выполняться в порядке добавления")
}

// Тест продолжения трассы из метаданных запроса.
func TestDispatcher_Tracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	dispatcher := query.NewDispatcher(query.WithTracerProvider[tracedQuery, string](tp))
	require.NoError(t, dispatcher.Register(func(context.Context, tracedQuery) (string, error) {
		return "ok", nil
	}))

	parentCtx, parent := tp.Tracer("test").Start(context.Background(), "родитель")
	md := map[string]string{}
	propagation.TraceContext{}.Inject(parentCtx, propagation.MapCarrier(md))
	parent.End()

	_, err := dispatcher.Dispatch(context.Background(), tracedQuery{md: md})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2, "Должны быть записаны родительский спан и спан запроса")
	assert.Equal(t, "query_test.tracedQuery process", spans[1].Name())
	assert.Equal(t, parent.SpanContext().TraceID(), spans[1].SpanContext().TraceID(), "Спан запроса должен продолжать трассу")
}

// Тест успешного получения диспетчера из реестра.
func TestRegistry_GetDispatcher_Success(t *testing.T) {
	t.Parallel()

	registry := query.NewRegistry()
	queryName := "test.query"

	// Получаем диспетчер в первый раз.
	dispatcher1, err := query.Dispatcher[testQuery, string](registry, queryName)
	require.NoError(t, err, "Первое получение диспетчера не должно вызывать ошибку")
	require.NotNil(t, dispatcher1, "Диспетчер не должен быть nil")

	// Получаем диспетчер во второй раз.
	dispatcher2, err := query.Dispatcher[testQuery, string](registry, queryName)
	require.NoError(t, err, "Второе получение диспетчера не должно вызывать ошибку")
	require.NotNil(t, dispatcher2, "Диспетчер не должен быть nil")

	// Проверяем, что это один и тот же экземпляр.
	assert.Same(t, dispatcher1, dispatcher2, "Реестр должен возвращать один и тот же экземпляр диспетчера для одного имени")
}

// Тест ошибки при несовпадении типов в реестре.
func TestRegistry_GetDispatcher_TypeMismatch(t *testing.T) {
	t.Parallel()

	registry := query.NewRegistry()
	queryName := "test.query"

	// Регистрируем диспетчер с одним типом.
	_, err := query.Dispatcher[testQuery, string](registry, queryName)
	require.NoError(t, err, "Регистрация первого диспетчера не должна вызывать ошибку")

	// Пытаемся получить диспетчер с другим типом.
	_, err = query.Dispatcher[anotherTestQuery, int](registry, queryName)

	// Проверяем ошибку.
	require.Error(t, err, "Получение диспетчера с другим типом должно вызывать ошибку")
	assert.Equal(t, fmt.Sprintf("диспетчер для запроса '%s' уже существует с другим типом", queryName), err.Error())
}

// Тест на потокобезопасность реестра.
func TestRegistry_GetDispatcher_Concurrency(t *testing.T) {
	t.Parallel()

	registry := query.NewRegistry()
	queryName := "concurrent.query"
	goroutines := 100
	var wg sync.WaitGroup
	wg.Add(goroutines)

	// Массив для хранения полученных диспетчеров.
	dispatchers := make([]query.IDispatcher[testQuery, string], goroutines)

	// Запускаем множество горутин для одновременного получения диспетчера.
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			dispatcher, err := query.Dispatcher[testQuery, string](registry, queryName)
			assert.NoError(t, err)
			dispatchers[i] = dispatcher
		}(i)
	}

	wg.Wait()

	// Проверяем, что все горутины получили один и тот же экземпляр диспетчера.
	firstDispatcher := dispatchers[0]
	for i := 1; i < goroutines; i++ {
		assert.Same(t, firstDispatcher, dispatchers[i], "Все горутины должны получать один и тот же экземпляр диспетчера")
	}
}

// Тест общего медиатора: диспетчеры реестра проходят через одни фильтры.
func TestRegistry_SharedMediator(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	counter := mediator.FilterFunc(func(ctx context.Context, hc mediator.HandleContext, next mediator.Next) *promise.Promise[any] {
		calls.Add(1)
		return next(ctx)
	})
	registry := query.NewRegistry(
		mediator.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		mediator.WithFilters(mediator.UseFilters(counter)),
	)

	first, err := query.Dispatcher[testQuery, string](registry, "first")
	require.NoError(t, err)
	require.NoError(t, first.Register(testQueryHandler))

	second, err := query.Dispatcher[anotherTestQuery, int](registry, "second")
	require.NoError(t, err)
	require.NoError(t, second.Register(func(_ context.Context, v anotherTestQuery) (int, error) {
		return v.Value * 2, nil
	}))

	assert.Len(t, registry.Mediator().Handlers(), 2, "Оба обработчика должны попасть в общий медиатор")

	result, err := first.Dispatch(context.Background(), testQuery{Value: "общий"})
	require.NoError(t, err)
	assert.Equal(t, "processed: общий", result)

	n, err := second.Dispatch(context.Background(), anotherTestQuery{Value: 21})
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	assert.Equal(t, int32(2), calls.Load(), "Фильтр реестра должен сработать для каждого диспетчера")

	require.NoError(t, registry.Shutdown(context.Background()))
	assert.Empty(t, registry.Mediator().Handlers(), "Shutdown должен очистить общий медиатор")
}

// Тест изоляции: диспетчеры одного типа запроса в реестре не перехватывают вызовы друг друга.
func TestRegistry_SameTypeIsolation(t *testing.T) {
	t.Parallel()

	registry := query.NewRegistry(mediator.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer func() { _ = registry.Shutdown(context.Background()) }()

	left, err := query.Dispatcher[testQuery, string](registry, "left")
	require.NoError(t, err)
	right, err := query.Dispatcher[testQuery, string](registry, "right")
	require.NoError(t, err)
	empty, err := query.Dispatcher[testQuery, string](registry, "empty")
	require.NoError(t, err)

	require.NoError(t, left.Register(func(_ context.Context, v testQuery) (string, error) { return "left: " + v.Value, nil }))
	require.NoError(t, right.Register(func(_ context.Context, v testQuery) (string, error) { return "right: " + v.Value, nil }))

	result, err := right.Dispatch(context.Background(), testQuery{Value: "x"})
	require.NoError(t, err)
	assert.Equal(t, "right: x", result)

	result, err = left.Dispatch(context.Background(), testQuery{Value: "y"})
	require.NoError(t, err)
	assert.Equal(t, "left: y", result)

	_, err = empty.Dispatch(context.Background(), testQuery{Value: "z"})
	require.Error(t, err, "Диспетчер без обработчика не должен использовать чужой")
}
