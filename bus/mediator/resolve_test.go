package mediator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// Тест: три поставщика Bar отвечают в порядке объявления.
func TestResolve_Cardinality(t *testing.T) {
	t.Parallel()

	chain := mediator.NewComposite(&BarProvider{})

	all, err := mediator.ResolveAll[Bar](chain)
	require.NoError(t, err)
	assert.Equal(t, []Bar{{ID: 1}, {ID: 2}, {ID: 3}}, all, "Все значения в порядке объявления поставщиков")

	one, err := mediator.Resolve[Bar](chain)
	require.NoError(t, err)
	assert.Equal(t, Bar{ID: 1}, one, "Одиночный запрос возвращает первое значение")
}

// Тест: отсутствие значения не является ошибкой.
func TestResolve_NoMatch(t *testing.T) {
	t.Parallel()

	chain := mediator.NewComposite(&BarProvider{})

	all, err := mediator.ResolveAll[Baz](chain)
	require.NoError(t, err)
	require.NotNil(t, all, "ResolveAll никогда не возвращает nil")
	assert.Empty(t, all)

	value, err := mediator.Resolve[Baz](chain)
	require.NoError(t, err)
	assert.Equal(t, Baz{}, value, "Без совпадения возвращается нулевое значение")

	ptr, err := mediator.Resolve[*Repo](chain)
	require.NoError(t, err)
	assert.Nil(t, ptr)
}

// Тест: Provide отвечает на запросы заданными значениями, включая интерфейсы.
func TestProvide(t *testing.T) {
	t.Parallel()

	a, b := &memSink{name: "a"}, &memSink{name: "b"}
	chain := mediator.Provide(nil, &Repo{Name: "памяти"}, a, b)

	repo, err := mediator.Resolve[*Repo](chain)
	require.NoError(t, err)
	assert.Equal(t, "памяти", repo.Name)

	sinks, err := mediator.ResolveAll[Sink](chain)
	require.NoError(t, err)
	assert.Equal(t, []Sink{a, b}, sinks)
}

// Тест: объект, сам являющийся значением запрошенного типа, отвечает на запрос.
func TestResolve_HandlerItself(t *testing.T) {
	t.Parallel()

	provider := &BarProvider{}
	got, err := mediator.Resolve[*BarProvider](mediator.NewComposite(provider))
	require.NoError(t, err)
	assert.Same(t, provider, got)
}

// Тест: строковый ключ сопоставляется по равенству и не пересекается с типом.
func TestResolveKey_StringKey(t *testing.T) {
	t.Parallel()

	chain := mediator.NewComposite(&SettingsProvider{})

	value, err := mediator.ResolveKey(chain, "settings.fallback")
	require.NoError(t, err)
	assert.Equal(t, Settings{Env: "test"}, value)

	value, err = mediator.ResolveKey(chain, "settings.unknown")
	require.NoError(t, err)
	assert.Nil(t, value, "Неизвестный ключ не дает значения")

	byType, err := mediator.Resolve[Settings](chain)
	require.NoError(t, err)
	assert.Equal(t, Settings{}, byType, "Члены со строковым ключом не отвечают на запрос по типу")
}

// Тест: Inject разрешает параметр по строковому ключу.
func TestDependencies_Inject(t *testing.T) {
	t.Parallel()

	chain := mediator.NewComposite(&EnvReporter{}, &SettingsProvider{})
	result, err := mediator.Execute(chain, Report{})
	require.NoError(t, err)
	assert.Equal(t, "prod", result)
}

// Тест: зависимости метода разрешаются через composer.
func TestDependencies_Resolve(t *testing.T) {
	t.Parallel()

	chain := mediator.NewComposite(&Service{}, mediator.Provide(nil, &Repo{Name: "памяти"}))
	result, err := mediator.Execute(chain, Greet{Name: "мир"})
	require.NoError(t, err)
	assert.Equal(t, "привет, мир из памяти", result)

	// Без зависимости обработчик не подходит.
	_, err = mediator.Execute(mediator.NewComposite(&Service{}), Greet{Name: "мир"})
	var notHandled *mediator.NotHandledError
	require.ErrorAs(t, err, &notHandled, "Неразрешенная зависимость делает обработчик неподходящим")
}

// Тест: необязательная зависимость получает нулевое значение.
func TestDependencies_Optional(t *testing.T) {
	t.Parallel()

	result, err := mediator.Execute(mediator.NewComposite(&OptService{}), Greet{Name: "мир"})
	require.NoError(t, err)
	assert.Equal(t, "привет, мир", result)

	chain := mediator.NewComposite(&OptService{}, mediator.Provide(nil, &Repo{Name: "кэша"}))
	result, err = mediator.Execute(chain, Greet{Name: "мир"})
	require.NoError(t, err)
	assert.Equal(t, "привет, мир из кэша", result)
}

// Тест: параметр-срез получает все разрешенные значения.
func TestDependencies_Many(t *testing.T) {
	t.Parallel()

	chain := mediator.NewComposite(&Auditor{}, mediator.Provide(nil, &memSink{name: "a"}, &memSink{name: "b"}))
	result, err := mediator.Execute(chain, Audit{})
	require.NoError(t, err)
	assert.Equal(t, 2, result)

	result, err = mediator.Execute(mediator.NewComposite(&Auditor{}), Audit{})
	require.NoError(t, err)
	assert.Equal(t, 0, result, "Пустой набор зависимостей допустим")
}

// Тест: Inject и Optional отклоняют параметр-значение команды.
func TestMemberBuilder_InvalidParam(t *testing.T) {
	t.Parallel()

	_, err := mediator.Handles(func(_ *Service, _ Greet) {}).Optional(1).Build()
	require.Error(t, err, "Значение команды не может быть зависимостью")

	_, err = mediator.Handles(func(_ *Service) {}).Build()
	require.Error(t, err, "Обработчик должен принимать команду")

	_, err = mediator.Provides(func(_ *Service) error { return nil }).Build()
	require.Error(t, err, "Поставщик должен возвращать значение")

	_, err = mediator.Handles(func(_ *Service, _ Greet) (int, int) { return 0, 0 }).Build()
	require.Error(t, err, "Второй результат должен быть ошибкой")
}

// Тест: Resolving создает обработчики зарегистрированных типов конструкторами.
func TestResolving_Inference(t *testing.T) {
	t.Parallel()

	chain := mediator.Resolving(mediator.NewComposite())

	result, err := mediator.Execute(chain, Ping{Msg: "тест"})
	require.NoError(t, err)
	assert.Equal(t, "уведомление: тест", result, "Обработчик должен быть создан конструктором")

	notifier, err := mediator.Resolve[*Notifier](chain)
	require.NoError(t, err)
	require.NotNil(t, notifier, "Запрос должен быть удовлетворен конструктором")
	assert.Equal(t, "уведомление", notifier.prefix)

	// Без Resolving зарегистрированные типы не создаются.
	_, err = mediator.Execute(mediator.NewComposite(), Ping{Msg: "тест"})
	var notHandled *mediator.NotHandledError
	require.ErrorAs(t, err, &notHandled)
}

// Тест: Singleton создает значение один раз при конкурентных запросах.
func TestSingleton_Concurrent(t *testing.T) {
	t.Parallel()

	factory := &CounterFactory{}
	chain := mediator.NewComposite(factory)

	const workers = 32
	counters := make([]*Counter, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := mediator.Resolve[*Counter](chain)
			assert.NoError(t, err)
			counters[i] = c
		}()
	}
	wg.Wait()

	require.NotNil(t, counters[0])
	for _, c := range counters {
		assert.Same(t, counters[0], c, "Все запросы должны получить один экземпляр")
	}
	assert.Equal(t, int32(1), factory.created.Load(), "Значение должно создаваться один раз")
}

// Тест: фильтр без порядка выполняется и при попадании в кэш Singleton.
func TestSingleton_InsideUnorderedFilters(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	audit := mediator.UseFilters(mediator.FilterFunc(func(ctx context.Context, _ mediator.HandleContext, next mediator.Next) *promise.Promise[any] {
		calls.Add(1)
		return next(ctx)
	}))
	factory := &GaugeFactory{}
	chain := mediator.NewComposite(factory)

	first, err := mediator.Resolve[*Gauge](chain, mediator.WithCallbackFilters(audit))
	require.NoError(t, err)
	second, err := mediator.Resolve[*Gauge](chain, mediator.WithCallbackFilters(audit))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), factory.created.Load(), "Значение должно создаваться один раз")
	assert.Equal(t, int32(2), calls.Load(), "Фильтр должен выполняться для каждого запроса")
}

// Тест: асинхронный результат обработчика ожидается синхронным вызовом и
// передается асинхронному как промис.
func TestAsync_Unification(t *testing.T) {
	t.Parallel()

	chain := mediator.NewComposite(&Mailer{})

	result, err := mediator.Execute(chain, SendEmail{To: "a@b"})
	require.NoError(t, err)
	assert.Equal(t, "отправлено: a@b", result, "Синхронный вызов ожидает промис")

	p := mediator.ExecuteAsync(chain, SendEmail{To: "c@d"})
	v, err := p.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "отправлено: c@d", v)

	// Синхронный обработчик при асинхронном вызове дает завершенный промис.
	p = mediator.ExecuteAsync(mediator.NewComposite(&HandlerA{}), Foo{})
	require.True(t, p.Settled(), "Синхронный результат не требует ожидания")
	v, err = p.Wait()
	require.NoError(t, err)
	assert.Equal(t, "A", v)

	s, err := mediator.ExecuteAs[string](mediator.NewComposite(&HandlerA{}), Foo{})
	require.NoError(t, err)
	assert.Equal(t, "A", s)

	_, err = mediator.ExecuteAs[int](mediator.NewComposite(&HandlerA{}), Foo{})
	var typeErr *mediator.ResultTypeError
	require.ErrorAs(t, err, &typeErr)
}

// Тест: асинхронные запросы значений.
func TestResolveAsync(t *testing.T) {
	t.Parallel()

	chain := mediator.NewComposite(&BarProvider{})

	bar, err := mediator.ResolveAsync[Bar](chain).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Bar{ID: 1}, bar)

	bars, err := mediator.ResolveAllAsync[Bar](chain).Await(context.Background())
	require.NoError(t, err)
	assert.Len(t, bars, 3)
}
