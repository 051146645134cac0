package mediator

import (
	"github.com/goccy/go-reflect"
)

// Variance определяет, как объявленный ключ члена сопоставляется с ключом callback-а.
type Variance uint8

const (
	// Covariant: объявленный тип должен приводиться к запрошенному (результаты).
	Covariant Variance = iota
	// Contravariant: запрошенный тип должен приводиться к объявленному (входы).
	Contravariant
)

// Policy определяет категорию привязок и правила сопоставления ключей.
type Policy interface {
	// Name возвращает имя политики.
	Name() string
	// Variance возвращает вариантность политики.
	Variance() Variance
	// Matches сообщает, подходит ли объявленный ключ к ключу callback-а.
	Matches(declared, key any, invariant bool) bool
	// Less сообщает, является ли ключ a более специфичным, чем b.
	Less(a, b any) bool
}

var (
	// HandlesPolicy связывает команды с методами-обработчиками.
	HandlesPolicy Policy = &policy{name: "handles", variance: Contravariant}
	// ProvidesPolicy связывает запросы с методами-поставщиками.
	ProvidesPolicy Policy = &policy{name: "provides", variance: Covariant}
	// CreatesPolicy связывает запросы с конструкторами типов.
	CreatesPolicy Policy = &policy{name: "creates", variance: Covariant}
)

type policy struct {
	name     string
	variance Variance
}

func (p *policy) Name() string       { return p.name }
func (p *policy) Variance() Variance { return p.variance }

func (p *policy) Matches(declared, key any, invariant bool) bool {
	dt, dok := declared.(reflect.Type)
	kt, kok := key.(reflect.Type)
	if !dok || !kok {
		if dok != kok || !isComparable(declared) || !isComparable(key) {
			return false
		}
		return declared == key
	}
	if dt == kt {
		return true
	}
	if invariant {
		return false
	}
	switch p.variance {
	case Contravariant:
		return kt.AssignableTo(dt)
	case Covariant:
		return dt.AssignableTo(kt)
	}
	return false
}

// Less упорядочивает типы от узких к широким: тип, приводимый к другому,
// считается более специфичным. Пустой интерфейс всегда последний.
func (p *policy) Less(a, b any) bool {
	at, aok := a.(reflect.Type)
	bt, bok := b.(reflect.Type)
	if !aok || !bok || at == bt {
		return false
	}
	return at.AssignableTo(bt)
}

// insertOrdered вставляет привязку перед первой менее специфичной.
// Привязки с равной специфичностью сохраняют порядок объявления.
func insertOrdered(p Policy, bindings []*Binding, b *Binding) []*Binding {
	for i, existing := range bindings {
		if p.Less(b.key, existing.key) {
			bindings = append(bindings, nil)
			copy(bindings[i+1:], bindings[i:])
			bindings[i] = b
			return bindings
		}
	}
	return append(bindings, b)
}
