package mediator_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-reflect"
	"go.uber.org/goleak"

	"github.com/x-research-team/dtx-mediator/bus/mediator"
	"github.com/x-research-team/dtx-mediator/bus/promise"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// Тестовые команды и значения.
type (
	Foo struct{ Name string }
	Bar struct{ ID int }
	Baz struct{}

	Greet struct{ Name string }
	Audit struct{}
	Ping  struct{ Msg string }

	SendEmail struct{ To string }
	Rock      struct{}
)

// Animal и Dog проверяют упорядочивание от узких типов к широким.
type Animal interface{ Sound() string }

type Dog struct{}

func (Dog) Sound() string { return "гав" }

// Обработчики команды Foo.
type HandlerA struct{ calls atomic.Int32 }

type HandlerB struct{ calls atomic.Int32 }

// ZooKeeper объявляет обработчики Dog, Animal и any в обратном порядке специфичности.
type ZooKeeper struct{}

// BarProvider объявляет три поставщика Bar.
type BarProvider struct{}

// SettingsProvider отвечает на запросы по строковым ключам.
type Settings struct{ Env string }

type SettingsProvider struct{}

// EnvReporter получает настройки по строковому ключу.
type (
	Report      struct{}
	EnvReporter struct{}
)

// Repo, Service, OptService и Auditor проверяют разрешение зависимостей.
type Repo struct{ Name string }

type Service struct{}

type OptService struct{}

type Sink interface{ Write(string) }

type memSink struct{ name string }

func (s *memSink) Write(string) {}

type Auditor struct{}

// Picky отказывается от команд с неподходящим именем.
type Picky struct{}

// Mailer отвечает асинхронно.
type Mailer struct{}

// Notifier создается конструктором при выводе обработчиков.
type Notifier struct{ prefix string }

// Counter и CounterFactory проверяют фильтр Singleton.
type Counter struct{ N int }

type CounterFactory struct{ created atomic.Int32 }

// Gauge и GaugeFactory проверяют порядок Singleton относительно фильтров без порядка.
type Gauge struct{ N int }

type GaugeFactory struct{ created atomic.Int32 }

// Box и BoxOpener проверяют обобщенные члены.
type Unboxer interface{ Unbox() any }

type Box[T any] struct{ Value T }

func (b Box[T]) Unbox() any { return b.Value }

type BoxOpener struct{}

var boxCloses atomic.Int32

// BrokenBox подходит обобщенному члену, но не может быть замкнут.
type BrokenBox struct{}

func (BrokenBox) Unbox() any { return nil }

type BrokenOpener struct{}

var errBrokenBox = errors.New("коробка не открывается")

// Office встраивает набор и объявляет собственные члены.
type (
	Visit  struct{}
	Office struct{ *mediator.Composite }
)

func newOffice(handlers ...any) *Office {
	o := &Office{}
	o.Composite = mediator.NewComposite(handlers...).SetSurrogate(o)
	return o
}

// Doorman - декоратор с собственным членом.
type (
	Knock   struct{}
	Doorman struct{ mediator.Decorator }
)

func (d *Doorman) Handle(callback any, greedy bool, composer mediator.Handler) mediator.HandleResult {
	return d.HandleSelf(d, callback, greedy, composer)
}

// MixedOpener объявляет обработчик any и обобщенный член для коробок.
type MixedOpener struct{}

// TaggedHandler объявляет фильтры типа и члена.
type (
	Tagged        struct{}
	Untagged      struct{}
	TaggedHandler struct{}
)

// Exploder всегда завершается ошибкой.
type (
	Explode  struct{}
	Exploder struct{}
)

var errExplode = errors.New("взрыв")

// Traced переносит контекст трассировки в метаданных.
type Traced struct{ md map[string]string }

func (t Traced) Metadata() map[string]string { return t.md }

type TracedHandler struct{}

func suffix(s string, order int) mediator.Filter {
	return mediator.WithOrder(mediator.FilterFunc(func(ctx context.Context, _ mediator.HandleContext, next mediator.Next) *promise.Promise[any] {
		return promise.Then(next(ctx), func(v any) (any, error) {
			return fmt.Sprintf("%v %s", v, s), nil
		})
	}), order)
}

func init() {
	mediator.MustRegister[*HandlerA](
		mediator.Handles(func(h *HandlerA, _ Foo) string {
			h.calls.Add(1)
			return "A"
		}),
	)
	mediator.MustRegister[*HandlerB](
		mediator.Handles(func(h *HandlerB, _ Foo) string {
			h.calls.Add(1)
			return "B"
		}),
	)

	mediator.MustRegister[*ZooKeeper](
		mediator.Handles(func(_ *ZooKeeper, _ any) string { return "any" }),
		mediator.Handles(func(_ *ZooKeeper, _ Animal) string { return "animal" }),
		mediator.Handles(func(_ *ZooKeeper, _ Dog) string { return "dog" }),
	)

	mediator.MustRegister[*BarProvider](
		mediator.Provides(func(*BarProvider) Bar { return Bar{ID: 1} }),
		mediator.Provides(func(*BarProvider) Bar { return Bar{ID: 2} }),
		mediator.Provides(func(*BarProvider) Bar { return Bar{ID: 3} }),
	)

	mediator.MustRegister[*SettingsProvider](
		mediator.Provides(func(*SettingsProvider) Settings { return Settings{Env: "prod"} }).WithKey("settings.primary"),
		mediator.Provides(func(*SettingsProvider) Settings { return Settings{Env: "test"} }).WithKey("settings.fallback"),
	)

	mediator.MustRegister[*EnvReporter](
		mediator.Handles(func(_ *EnvReporter, _ Report, s Settings) string { return s.Env }).Inject(2, "settings.primary"),
	)

	mediator.MustRegister[*Service](
		mediator.Handles(func(_ *Service, cmd Greet, repo *Repo) string {
			return fmt.Sprintf("привет, %s из %s", cmd.Name, repo.Name)
		}),
	)
	mediator.MustRegister[*OptService](
		mediator.Handles(func(_ *OptService, cmd Greet, repo *Repo) string {
			if repo == nil {
				return "привет, " + cmd.Name
			}
			return fmt.Sprintf("привет, %s из %s", cmd.Name, repo.Name)
		}).Optional(2),
	)
	mediator.MustRegister[*Auditor](
		mediator.Handles(func(_ *Auditor, _ Audit, sinks []Sink) int {
			return len(sinks)
		}),
	)

	mediator.MustRegister[*Picky](
		mediator.Handles(func(_ *Picky, f Foo) (string, error) {
			if f.Name != "нужный" {
				return "", fmt.Errorf("имя '%s': %w", f.Name, mediator.ErrDeclined)
			}
			return "принято", nil
		}),
	)

	mediator.MustRegister[*Mailer](
		mediator.Handles(func(_ *Mailer, e SendEmail, ctx context.Context) *promise.Promise[string] {
			return promise.Go(ctx, func(context.Context) (string, error) {
				time.Sleep(time.Millisecond)
				return "отправлено: " + e.To, nil
			})
		}),
	)

	mediator.MustRegister[*Notifier](
		mediator.Constructor(func() *Notifier { return &Notifier{prefix: "уведомление"} }),
		mediator.Handles(func(n *Notifier, p Ping) string { return n.prefix + ": " + p.Msg }),
	)

	mediator.MustRegister[*CounterFactory](
		mediator.Provides(func(f *CounterFactory) *Counter {
			n := f.created.Add(1)
			time.Sleep(time.Millisecond)
			return &Counter{N: int(n)}
		}).WithFilters(mediator.Singleton()),
	)

	mediator.MustRegister[*GaugeFactory](
		mediator.Provides(func(f *GaugeFactory) *Gauge {
			return &Gauge{N: int(f.created.Add(1))}
		}).WithFilters(mediator.Singleton()),
	)

	mediator.MustRegister[*TaggedHandler](
		mediator.TypeFilters(mediator.UseFilters(suffix("[тип]", 5))),
		mediator.Handles(func(_ *TaggedHandler, _ Tagged) string { return "tagged" }).
			WithFilters(mediator.UseFilters(suffix("[член]", 10))),
		mediator.Handles(func(_ *TaggedHandler, _ Untagged) string { return "untagged" }).SkipFilters(),
	)
	mediator.MustRegister[*Exploder](
		mediator.Handles(func(_ *Exploder, _ Explode) error { return errExplode }),
	)
	mediator.MustRegister[*TracedHandler](
		mediator.Handles(func(_ *TracedHandler, _ Traced) string { return "ok" }),
	)

	mediator.MustRegister[*BoxOpener](
		mediator.GenericMember{
			Name:   "BoxOpener.Open",
			Policy: mediator.HandlesPolicy,
			Match:  matchUnboxer,
			Close: func(args []reflect.Type) (mediator.Member, error) {
				boxCloses.Add(1)
				return unboxMember(mediator.TypeOf[*BoxOpener](), args[0]), nil
			},
		},
	)
	mediator.MustRegister[*BrokenOpener](
		mediator.GenericMember{
			Name:   "BrokenOpener.Open",
			Policy: mediator.HandlesPolicy,
			Match:  matchUnboxer,
			Close: func(args []reflect.Type) (mediator.Member, error) {
				if args[0] == mediator.TypeOf[BrokenBox]() {
					return mediator.Member{}, errBrokenBox
				}
				return unboxMember(mediator.TypeOf[*BrokenOpener](), args[0]), nil
			},
		},
	)
	mediator.MustRegister[*Office](
		mediator.Handles(func(_ *Office, _ Visit) string { return "кабинет" }),
		mediator.Handles(func(_ *Office, _ Foo) string { return "кабинет: foo" }),
	)
	mediator.MustRegister[*Doorman](
		mediator.Handles(func(_ *Doorman, _ Knock) string { return "входите" }),
	)
	mediator.MustRegister[*MixedOpener](
		mediator.Handles(func(_ *MixedOpener, _ any) string { return "any" }),
		mediator.GenericMember{
			Name:   "MixedOpener.Open",
			Policy: mediator.HandlesPolicy,
			Match:  matchUnboxer,
			Close: func(args []reflect.Type) (mediator.Member, error) {
				return mediator.Member{
					Receiver: mediator.TypeOf[*MixedOpener](),
					Params:   []mediator.Param{{Kind: mediator.ParamPayload, Type: args[0]}},
					Invoke:   func(any, []any) (any, error) { return "generic", nil },
				}, nil
			},
		},
	)
}

func matchUnboxer(key any) ([]reflect.Type, bool) {
	t, ok := key.(reflect.Type)
	if !ok || t.Kind() == reflect.Interface || !t.Implements(mediator.TypeOf[Unboxer]()) {
		return nil, false
	}
	return []reflect.Type{t}, true
}

func unboxMember(receiver, payload reflect.Type) mediator.Member {
	return mediator.Member{
		Receiver: receiver,
		Params:   []mediator.Param{{Kind: mediator.ParamPayload, Type: payload}},
		Invoke: func(_ any, args []any) (any, error) {
			return args[0].(Unboxer).Unbox(), nil
		},
	}
}
