package mediator

import (
	"slices"

	"github.com/goccy/go-reflect"
)

// FilterOptions - опции конвейера фильтров, задаваемые в цепочке.
type FilterOptions struct {
	// Providers добавляются ко всем вызовам членов через цепочку.
	Providers []FilterProvider
	// Suppress исключает фильтры перечисленных типов.
	Suppress []reflect.Type

	skip          bool
	skipSpecified bool
}

// SetSkipFilters явно включает или выключает пропуск необязательных фильтров.
func (o *FilterOptions) SetSkipFilters(skip bool) {
	o.skip = skip
	o.skipSpecified = true
}

// SkipsFilters сообщает, отключены ли необязательные фильтры.
func (o *FilterOptions) SkipsFilters() bool { return o.skip }

// MergeInto реализует Mergeable.
func (o *FilterOptions) MergeInto(target *FilterOptions) {
	target.Providers = append(target.Providers, o.Providers...)
	target.Suppress = append(target.Suppress, o.Suppress...)
	if o.skipSpecified && !target.skipSpecified {
		target.SetSkipFilters(o.skip)
	}
}

func (o *FilterOptions) suppresses(f Filter) bool {
	if len(o.Suppress) == 0 {
		return false
	}
	if slices.Contains(o.Suppress, reflect.TypeOf(f)) {
		return true
	}
	if of, ok := f.(*orderedFilter); ok {
		return o.suppresses(of.Filter)
	}
	return false
}

// AddFilters добавляет поставщиков фильтров ко всем вызовам через h.
func AddFilters(h Handler, providers ...FilterProvider) Handler {
	return WithOptions(h, FilterOptions{Providers: providers})
}

// SkipFilters отключает необязательные фильтры для вызовов через h.
func SkipFilters(h Handler) Handler {
	options := FilterOptions{}
	options.SetSkipFilters(true)
	return WithOptions(h, options)
}

// SuppressFilters исключает фильтры указанных типов для вызовов через h.
func SuppressFilters(h Handler, types ...reflect.Type) Handler {
	return WithOptions(h, FilterOptions{Suppress: types})
}
