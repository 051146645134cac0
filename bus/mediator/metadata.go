package mediator

import (
	"fmt"
	"sync"

	"github.com/goccy/go-reflect"
)

// TypeMetadata - метаданные типа обработчика, из которых строится дескриптор.
type TypeMetadata struct {
	Members  []Member
	Generics []GenericMember
	Filters  []FilterProvider
}

// Declaration - элемент регистрации типа: член, обобщенный член или фильтры типа.
type Declaration interface {
	declare(t *TypeMetadata) error
}

// GenericMember описывает открытый обобщенный член, который замыкается для
// конкретного ключа при первом обращении.
type GenericMember struct {
	Name   string
	Policy Policy
	// Match выводит аргументы типа из ключа callback-а. ok=false исключает член
	// из кандидатов без ошибки.
	Match func(key any) (args []reflect.Type, ok bool)
	// Close строит замкнутый член. Ошибка считается ошибкой конфигурации.
	Close func(args []reflect.Type) (Member, error)
}

func (g GenericMember) declare(t *TypeMetadata) error {
	if g.Policy == nil || g.Match == nil || g.Close == nil {
		return fmt.Errorf("обобщенный член '%s' задан не полностью", g.Name)
	}
	t.Generics = append(t.Generics, g)
	return nil
}

type typeFilters []FilterProvider

func (f typeFilters) declare(t *TypeMetadata) error {
	t.Filters = append(t.Filters, f...)
	return nil
}

// TypeFilters объявляет поставщиков фильтров для всех членов типа.
func TypeFilters(providers ...FilterProvider) Declaration {
	return typeFilters(providers)
}

// MetadataProvider поставляет метаданные типов обработчиков.
type MetadataProvider interface {
	// Describe возвращает метаданные типа или false, если тип не зарегистрирован.
	Describe(t reflect.Type) (TypeMetadata, bool)
	// Types возвращает зарегистрированные типы в порядке регистрации.
	Types() []reflect.Type
}

// StaticMetadata - потокобезопасный реестр метаданных, заполняемый явной регистрацией.
type StaticMetadata struct {
	mu    sync.RWMutex
	types map[reflect.Type]TypeMetadata
	order []reflect.Type
}

// NewStaticMetadata создает пустой реестр метаданных.
func NewStaticMetadata() *StaticMetadata {
	return &StaticMetadata{
		types: make(map[reflect.Type]TypeMetadata),
	}
}

// Register регистрирует метаданные типа t.
// Повторная регистрация возвращает ErrTypeAlreadyRegistered.
func (m *StaticMetadata) Register(t reflect.Type, decls ...Declaration) error {
	var md TypeMetadata
	for _, d := range decls {
		if err := d.declare(&md); err != nil {
			return &InvalidDescriptorError{HandlerType: t, Err: err}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.types[t]; exists {
		return fmt.Errorf("метаданные '%s': %w", t, ErrTypeAlreadyRegistered)
	}
	m.types[t] = md
	m.order = append(m.order, t)
	return nil
}

// Describe реализует MetadataProvider.
func (m *StaticMetadata) Describe(t reflect.Type) (TypeMetadata, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	md, ok := m.types[t]
	return md, ok
}

// Types реализует MetadataProvider.
func (m *StaticMetadata) Types() []reflect.Type {
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := make([]reflect.Type, len(m.order))
	copy(types, m.order)
	return types
}

var defaultMetadata = NewStaticMetadata()

// Register регистрирует метаданные типа обработчика H в глобальном реестре.
func Register[H any](decls ...Declaration) error {
	t := TypeOf[H]()
	if err := defaultMetadata.Register(t, decls...); err != nil {
		return err
	}
	defaultFactory.Invalidate(t)
	return nil
}

// MustRegister аналогичен Register, но паникует при ошибке.
func MustRegister[H any](decls ...Declaration) {
	if err := Register[H](decls...); err != nil {
		panic(err)
	}
}
