package mediator

import (
	"sync"

	"github.com/goccy/go-reflect"
)

// genericBinding - открытый обобщенный член. Замкнутые привязки кэшируются
// по ключу; при гонке сохраняется первая построенная привязка.
type genericBinding struct {
	member      GenericMember
	owner       reflect.Type
	typeFilters []FilterProvider
	closed      sync.Map
}

type closedBinding struct {
	binding *Binding
	ok      bool
}

func (g *genericBinding) close(key any) (*Binding, bool, error) {
	cacheable := isComparable(key)
	if cacheable {
		if c, ok := g.closed.Load(key); ok {
			cb := c.(closedBinding)
			return cb.binding, cb.ok, nil
		}
	}

	args, ok := g.member.Match(key)
	if !ok {
		if cacheable {
			g.closed.LoadOrStore(key, closedBinding{})
		}
		return nil, false, nil
	}

	m, err := g.member.Close(args)
	if err != nil {
		return nil, false, &GenericInferenceError{Member: g.member.Name, Key: key, Err: err}
	}
	if m.Name == "" {
		m.Name = g.member.Name
	}
	if m.Policy == nil {
		m.Policy = g.member.Policy
	}
	if m.Key == nil {
		m.Key = key
	}
	if err := validateMember(g.owner, m); err != nil {
		return nil, false, &GenericInferenceError{Member: g.member.Name, Key: key, Err: err}
	}

	b := newBinding(g.owner, m, g.typeFilters)
	if !cacheable {
		return b, true, nil
	}
	actual, _ := g.closed.LoadOrStore(key, closedBinding{binding: b, ok: true})
	cb := actual.(closedBinding)
	return cb.binding, cb.ok, nil
}
