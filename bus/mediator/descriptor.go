package mediator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-reflect"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

// HandlerDescriptor - неизменяемое описание привязок типа обработчика,
// сгруппированных по политикам.
type HandlerDescriptor struct {
	handlerType reflect.Type
	policies    map[Policy]*policyBindings
}

// policyBindings хранит привязки одной политики: точный индекс для
// инвариантных и нетиповых ключей, упорядоченный список вариантных привязок
// и открытые обобщенные члены.
type policyBindings struct {
	policy    Policy
	invariant map[any][]*Binding
	variant   []*Binding
	generic   []*genericBinding
}

func newPolicyBindings(p Policy) *policyBindings {
	return &policyBindings{policy: p, invariant: make(map[any][]*Binding)}
}

func (pb *policyBindings) add(b *Binding) {
	if _, isType := b.key.(reflect.Type); isType && !b.Invariant() {
		pb.variant = insertOrdered(pb.policy, pb.variant, b)
		return
	}
	pb.invariant[b.key] = append(pb.invariant[b.key], b)
}

// candidates возвращает привязки в порядке диспетчеризации: точные совпадения,
// затем вариантные и замкнутые обобщенные от узких к широким.
func (pb *policyBindings) candidates(key any) ([]*Binding, error) {
	var variant []*Binding
	for _, b := range pb.variant {
		if pb.policy.Matches(b.key, key, false) {
			variant = append(variant, b)
		}
	}
	for _, g := range pb.generic {
		b, ok, err := g.close(key)
		if err != nil {
			return nil, err
		}
		if ok {
			variant = insertOrdered(pb.policy, variant, b)
		}
	}

	if !isComparable(key) || len(pb.invariant[key]) == 0 {
		return variant, nil
	}
	out := make([]*Binding, 0, len(pb.invariant[key])+len(variant))
	out = append(out, pb.invariant[key]...)
	return append(out, variant...), nil
}

// Type возвращает тип обработчика.
func (d *HandlerDescriptor) Type() reflect.Type { return d.handlerType }

// Bindings возвращает вариантные и точные привязки политики p.
func (d *HandlerDescriptor) Bindings(p Policy) []*Binding {
	pb, ok := d.policies[p]
	if !ok {
		return nil
	}
	out := make([]*Binding, 0, len(pb.variant))
	for _, bs := range pb.invariant {
		out = append(out, bs...)
	}
	return append(out, pb.variant...)
}

// HasBindings сообщает, есть ли у дескриптора кандидаты для ключа.
func (d *HandlerDescriptor) HasBindings(p Policy, key any) bool {
	pb, ok := d.policies[p]
	if !ok {
		return false
	}
	if isComparable(key) && len(pb.invariant[key]) > 0 {
		return true
	}
	for _, b := range pb.variant {
		if p.Matches(b.key, key, false) {
			return true
		}
	}
	for _, g := range pb.generic {
		if _, ok := g.member.Match(key); ok {
			return true
		}
	}
	return false
}

// Dispatch вызывает подходящие привязки handler для callback. Без greedy
// обработка останавливается на первом засчитанном результате.
func (d *HandlerDescriptor) Dispatch(p Policy, handler any, callback Callback, greedy bool, composer Handler) HandleResult {
	pb, ok := d.policies[p]
	if !ok {
		return NotHandled
	}
	candidates, err := pb.candidates(callback.Key())
	if err != nil {
		return NotHandled.WithError(err)
	}

	result := NotHandled
	for _, b := range candidates {
		hc := HandleContext{
			callback: callback,
			handler:  handler,
			composer: composer,
			greedy:   greedy,
		}
		value, err := b.Invoke(hc)
		if err != nil {
			if skippable(err) {
				continue
			}
			var rejected *RejectedError
			if ac, ok := callback.(asyncCallback); ok && ac.WantsAsync() && errors.As(err, &rejected) {
				value = promise.Reject[any](err)
			} else {
				return result.WithError(err)
			}
		}
		if callback.ReceiveResult(value, greedy, hc) {
			result = Handled
			if !greedy {
				return result
			}
		}
	}
	return result
}

// DescriptorOption настраивает DescriptorFactory.
type DescriptorOption func(*DescriptorFactory)

// WithMetadata задает источник метаданных фабрики.
func WithMetadata(provider MetadataProvider) DescriptorOption {
	return func(f *DescriptorFactory) {
		f.metadata = provider
	}
}

// DescriptorFactory строит и кэширует дескрипторы по типу обработчика.
// Построение выполняется один раз на тип даже при конкурентных запросах.
type DescriptorFactory struct {
	mu          sync.RWMutex
	descriptors map[reflect.Type]*HandlerDescriptor
	metadata    MetadataProvider
	builds      int
}

// NewDescriptorFactory создает фабрику дескрипторов.
func NewDescriptorFactory(opts ...DescriptorOption) *DescriptorFactory {
	f := &DescriptorFactory{
		descriptors: make(map[reflect.Type]*HandlerDescriptor),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.metadata == nil {
		f.metadata = NewStaticMetadata()
	}
	return f
}

var defaultFactory = NewDescriptorFactory(WithMetadata(defaultMetadata))

// Descriptors возвращает глобальную фабрику дескрипторов.
func Descriptors() *DescriptorFactory {
	return defaultFactory
}

// Descriptor возвращает дескриптор типа t, строя его при первом обращении.
// Ошибки построения не кэшируются.
func (f *DescriptorFactory) Descriptor(t reflect.Type) (*HandlerDescriptor, error) {
	f.mu.RLock()
	d, exists := f.descriptors[t]
	f.mu.RUnlock()
	if exists {
		return d, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if d, exists := f.descriptors[t]; exists {
		return d, nil
	}

	d, err := f.build(t)
	if err != nil {
		return nil, err
	}
	f.descriptors[t] = d
	f.builds++
	return d, nil
}

// Builds возвращает количество построенных дескрипторов.
func (f *DescriptorFactory) Builds() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.builds
}

// Invalidate удаляет кэшированный дескриптор типа t.
func (f *DescriptorFactory) Invalidate(t reflect.Type) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.descriptors, t)
}

// Reset очищает кэш дескрипторов.
func (f *DescriptorFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descriptors = make(map[reflect.Type]*HandlerDescriptor)
	f.builds = 0
}

// Types возвращает зарегистрированные типы обработчиков.
func (f *DescriptorFactory) Types() []reflect.Type {
	return f.metadata.Types()
}

func (f *DescriptorFactory) build(t reflect.Type) (*HandlerDescriptor, error) {
	d := &HandlerDescriptor{
		handlerType: t,
		policies:    make(map[Policy]*policyBindings),
	}
	md, ok := f.metadata.Describe(t)
	if !ok {
		return d, nil
	}

	if err := validateProviders(md.Filters); err != nil {
		return nil, &InvalidDescriptorError{HandlerType: t, Err: err}
	}
	for _, m := range md.Members {
		if err := validateMember(t, m); err != nil {
			return nil, &InvalidDescriptorError{HandlerType: t, Member: m.Name, Err: err}
		}
		d.bindings(m.Policy).add(newBinding(t, m, md.Filters))
	}
	for _, g := range md.Generics {
		pb := d.bindings(g.Policy)
		pb.generic = append(pb.generic, &genericBinding{member: g, owner: t, typeFilters: md.Filters})
	}

	logger().Debug("построен дескриптор обработчика",
		slog.String("handler_type", t.String()),
		slog.Int("members", len(md.Members)),
		slog.Int("generics", len(md.Generics)),
	)
	return d, nil
}

func (d *HandlerDescriptor) bindings(p Policy) *policyBindings {
	pb, ok := d.policies[p]
	if !ok {
		pb = newPolicyBindings(p)
		d.policies[p] = pb
	}
	return pb
}

func validateMember(t reflect.Type, m Member) error {
	if m.Policy == nil || m.Invoke == nil {
		return errors.New("член задан не полностью")
	}
	if !isComparable(m.Key) {
		return fmt.Errorf("ключ типа %T нельзя сравнивать", m.Key)
	}
	if m.Receiver != nil && m.Policy != CreatesPolicy && !t.AssignableTo(m.Receiver) {
		return fmt.Errorf("член объявлен для '%s'", m.Receiver)
	}
	if m.Policy == CreatesPolicy {
		if kt, ok := m.Key.(reflect.Type); !ok || !kt.AssignableTo(t) {
			return fmt.Errorf("конструктор возвращает '%v'", m.Key)
		}
	}
	return validateProviders(m.Filters)
}

func validateProviders(providers []FilterProvider) error {
	for _, p := range providers {
		if p == nil {
			return errors.New("поставщик фильтров не задан")
		}
		if v, ok := p.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// DispatchPolicy диспетчеризует callback в привязки handler по политике callback-а.
func DispatchPolicy(handler any, callback Callback, greedy bool, composer Handler) HandleResult {
	if handler == nil || callback == nil {
		return NotHandled
	}
	d, err := defaultFactory.Descriptor(reflect.TypeOf(handler))
	if err != nil {
		return NotHandled.WithError(err)
	}
	return d.Dispatch(callback.Policy(), handler, callback, greedy, composer)
}
