package mediator

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/goccy/go-reflect"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// Next продолжает конвейер фильтров с контекстом ctx.
type Next func(ctx context.Context) *promise.Promise[any]

// Filter перехватывает вызов члена. Фильтр может вызвать next, изменить
// результат, вернуть собственный результат без вызова next или отклонить вызов.
type Filter interface {
	Next(ctx context.Context, hc HandleContext, next Next) *promise.Promise[any]
}

// Ordered реализуют фильтры с явным порядком. Меньший порядок выполняется
// раньше (снаружи). Фильтры без порядка выполняются после упорядоченных,
// но снаружи кэша Singleton.
type Ordered interface {
	Order() int
}

// FilterFunc позволяет использовать функцию как Filter.
type FilterFunc func(ctx context.Context, hc HandleContext, next Next) *promise.Promise[any]

// Next реализует Filter.
func (f FilterFunc) Next(ctx context.Context, hc HandleContext, next Next) *promise.Promise[any] {
	return f(ctx, hc, next)
}

type orderedFilter struct {
	Filter
	order int
}

func (o *orderedFilter) Order() int { return o.order }

// WithOrder задает порядок фильтра.
func WithOrder(f Filter, order int) Filter {
	return &orderedFilter{Filter: f, order: order}
}

// FilterProvider поставляет фильтры для привязки.
type FilterProvider interface {
	// Required сообщает, что пустой набор фильтров является ошибкой.
	Required() bool
	// Filters возвращает фильтры для вызова binding с callback.
	Filters(binding *Binding, callback Callback, composer Handler) ([]Filter, error)
}

type staticFilters struct {
	filters  []Filter
	required bool
}

// UseFilters возвращает поставщика заданных фильтров.
func UseFilters(filters ...Filter) FilterProvider {
	return &staticFilters{filters: filters}
}

// RequireFilters аналогичен UseFilters, но фильтры не отключаются SkipFilters.
func RequireFilters(filters ...Filter) FilterProvider {
	return &staticFilters{filters: filters, required: true}
}

func (s *staticFilters) Required() bool { return s.required }

func (s *staticFilters) Filters(*Binding, Callback, Handler) ([]Filter, error) {
	return s.filters, nil
}

func (s *staticFilters) Validate() error {
	for _, f := range s.filters {
		if f == nil {
			return fmt.Errorf("пустой фильтр: %w", ErrInvalidOperation)
		}
	}
	return nil
}

// resolvingFilters получает фильтры заданного типа через composer.
type resolvingFilters struct {
	filterType reflect.Type
	required   bool
}

// ResolveFilters возвращает поставщика, который получает все фильтры типа F
// через composer. Разрешение выполняется без фильтров, чтобы фильтры не
// перехватывали собственное создание.
func ResolveFilters[F Filter](required bool) FilterProvider {
	return &resolvingFilters{filterType: TypeOf[F](), required: required}
}

// ResolveFilterType аналогичен ResolveFilters для типа, известного во время выполнения.
// Тип, не реализующий Filter, приводит к ошибке при построении дескриптора.
func ResolveFilterType(t reflect.Type, required bool) FilterProvider {
	return &resolvingFilters{filterType: t, required: required}
}

func (r *resolvingFilters) Required() bool { return r.required }

func (r *resolvingFilters) Validate() error {
	if r.filterType == nil || !r.filterType.Implements(TypeOf[Filter]()) {
		return fmt.Errorf("тип '%s' не реализует Filter: %w", typeString(r.filterType), ErrInvalidOperation)
	}
	return nil
}

func (r *resolvingFilters) Filters(_ *Binding, callback Callback, composer Handler) ([]Filter, error) {
	if composer == nil {
		return nil, nil
	}
	opts := []CallbackOption{WithMany()}
	if c, ok := callback.(interface{ Context() context.Context }); ok {
		opts = append(opts, WithContext(c.Context()))
	}
	inquiry := NewInquiry(r.filterType, opts...)
	if result := SkipFilters(composer).Handle(inquiry, true, nil); result.IsError() {
		return nil, result.Err()
	}
	filters := make([]Filter, 0, len(inquiry.results))
	for _, v := range inquiry.results {
		if f, ok := v.(Filter); ok {
			filters = append(filters, f)
		}
	}
	return filters, nil
}

// collectFilters собирает фильтры члена, типа, цепочки и вызывающей стороны,
// исключает подавленные типы и сортирует по порядку.
func (b *Binding) collectFilters(hc HandleContext) ([]Filter, error) {
	var options FilterOptions
	GetOptions(hc.composer, &options)

	providers := slices.Clone(b.filters)
	providers = append(providers, options.Providers...)
	if c, ok := hc.callback.(interface{ Filters() []FilterProvider }); ok {
		providers = append(providers, c.Filters()...)
	}
	if len(providers) == 0 {
		return nil, nil
	}

	skip := b.member.SkipFilters || options.SkipsFilters()
	var filters []Filter
	for _, p := range providers {
		if p == nil || (skip && !p.Required()) {
			continue
		}
		fs, err := p.Filters(b, hc.callback, hc.composer)
		if err != nil {
			return nil, err
		}
		if len(fs) == 0 && p.Required() {
			return nil, &RequiredFilterError{Member: b.Name(), Provider: fmt.Sprintf("%T", p)}
		}
		for _, f := range fs {
			if f == nil || options.suppresses(f) || containsFilter(filters, f) {
				continue
			}
			filters = append(filters, f)
		}
	}

	slices.SortStableFunc(filters, func(a, b Filter) int {
		oa, ob := filterOrder(a), filterOrder(b)
		switch {
		case oa < ob:
			return -1
		case oa > ob:
			return 1
		}
		return 0
	})
	return filters, nil
}

func filterOrder(f Filter) int {
	if o, ok := f.(Ordered); ok {
		return o.Order()
	}
	return unorderedFilter
}

// unorderedFilter - порядок фильтров без Ordered.
const unorderedFilter = math.MaxInt - 1

func containsFilter(filters []Filter, f Filter) bool {
	for _, existing := range filters {
		if sameInstance(existing, f) {
			return true
		}
	}
	return false
}
