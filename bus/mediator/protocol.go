package mediator

import (
	"context"
	"errors"
	"sync"

	"github.com/goccy/go-reflect"
)

// HandleMethod - вызов метода протокола (интерфейса), доставляемый объектам
// цепочки. По умолчанию метод вызывается у объектов, реализующих протокол.
// Семантика Strict исключает методы, полученные встраиванием; семантика Duck
// допускает объекты с методом того же имени и числа аргументов.
type HandleMethod struct {
	protocol  reflect.Type
	method    string
	args      []any
	invoke    func(target any) (any, error)
	semantics *CallbackSemantics
	results   []any
	invoked   []any
}

// NewHandleMethod создает вызов метода method протокола protocol.
// invoke вызывает метод у объекта, реализующего протокол; args используются
// для вызова через рефлексию в режиме Duck.
func NewHandleMethod(protocol reflect.Type, method string, invoke func(target any) (any, error), args ...any) *HandleMethod {
	return &HandleMethod{
		protocol:  protocol,
		method:    method,
		args:      args,
		invoke:    invoke,
		semantics: &CallbackSemantics{},
	}
}

// Protocol возвращает тип протокола.
func (m *HandleMethod) Protocol() reflect.Type { return m.protocol }

// Method возвращает имя метода.
func (m *HandleMethod) Method() string { return m.method }

// Results возвращает результаты вызовов в порядке получения.
func (m *HandleMethod) Results() []any { return m.results }

// CanInfer реализует inferable.
func (m *HandleMethod) CanInfer() bool { return false }

// Dispatch реализует CallbackDispatcher.
func (m *HandleMethod) Dispatch(handler any, _ bool, _ Handler) HandleResult {
	if handler == nil || m.alreadyInvoked(handler) {
		return NotHandled
	}
	implements, ok := m.accepts(reflect.TypeOf(handler))
	if !ok {
		return NotHandled
	}

	var (
		value any
		err   error
	)
	if implements && m.invoke != nil {
		value, err = m.invoke(handler)
	} else {
		value, err = m.callByName(handler)
	}
	if err != nil {
		if errors.Is(err, ErrDeclined) {
			return NotHandled
		}
		return NotHandled.WithError(err)
	}

	if isComparable(handler) {
		m.invoked = append(m.invoked, handler)
	}
	m.results = append(m.results, value)
	return Handled
}

func (m *HandleMethod) alreadyInvoked(handler any) bool {
	for _, h := range m.invoked {
		if sameInstance(h, handler) {
			return true
		}
	}
	return false
}

// accepts сообщает, подходит ли тип t, и реализует ли он протокол.
func (m *HandleMethod) accepts(t reflect.Type) (implements bool, ok bool) {
	if m.protocol != nil && m.protocol.Kind() == reflect.Interface && t.Implements(m.protocol) {
		if m.semantics.HasOption(SemanticStrict) && promoted(t, m.method) {
			return true, false
		}
		return true, true
	}
	if m.semantics.HasOption(SemanticDuck) {
		if method, found := t.MethodByName(m.method); found && method.Type.NumIn()-1 == len(m.args) {
			return false, true
		}
	}
	return false, false
}

func (m *HandleMethod) callByName(handler any) (any, error) {
	method := reflect.ValueOf(handler).MethodByName(m.method)
	if !method.IsValid() {
		return nil, ErrDeclined
	}
	mt := method.Type()
	if mt.NumIn() != len(m.args) || validateResults(mt) != nil {
		return nil, ErrDeclined
	}
	in := make([]reflect.Value, len(m.args))
	for i, arg := range m.args {
		if !assignable(arg, mt.In(i)) {
			return nil, ErrDeclined
		}
		in[i] = argValue(mt.In(i), arg)
	}
	return unpackResults(mt, method.Call(in))
}

// promoted сообщает, получен ли метод name типом t из встроенного поля.
func promoted(t reflect.Type, name string) bool {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.Anonymous {
			continue
		}
		ft := field.Type
		if _, ok := ft.MethodByName(name); ok {
			return true
		}
		if ft.Kind() != reflect.Ptr && ft.Kind() != reflect.Interface {
			if _, ok := reflect.PtrTo(ft).MethodByName(name); ok {
				return true
			}
		}
	}
	return false
}

var resolvingProtocols sync.Map

// RegisterResolvingProtocol помечает протокол P: если вызов его метода не
// обработан цепочкой, реализации P дополнительно запрашиваются через цепочку.
func RegisterResolvingProtocol[P any]() {
	resolvingProtocols.Store(TypeOf[P](), struct{}{})
}

func isResolvingProtocol(t reflect.Type) bool {
	_, ok := resolvingProtocols.Load(t)
	return ok
}

// Call доставляет вызов метода в цепочку h с учетом ее семантики и возвращает
// первый результат. Необработанный вызов дает *MissingMethodError, а при
// семантике BestEffort - nil.
func Call(h Handler, method *HandleMethod) (any, error) {
	if err := call(h, method); err != nil {
		return nil, err
	}
	if len(method.results) == 0 {
		return nil, nil
	}
	return method.results[0], nil
}

// CallAll аналогичен Call, но опрашивает все объекты и возвращает все результаты.
func CallAll(h Handler, method *HandleMethod) ([]any, error) {
	if err := call(Broadcast(h), method); err != nil {
		return nil, err
	}
	return method.results, nil
}

func call(h Handler, method *HandleMethod) error {
	if semantics := GetSemantics(h); semantics != nil {
		method.semantics = semantics
	}
	broadcast := method.semantics.HasOption(SemanticBroadcast)

	result := h.Handle(method, broadcast, nil)
	if result.IsError() {
		return result.Err()
	}

	if (len(method.results) == 0 || broadcast) &&
		(method.semantics.HasOption(SemanticResolve) || isResolvingProtocol(method.protocol)) {
		if err := resolveTargets(h, method, broadcast); err != nil {
			return err
		}
	}

	if len(method.results) == 0 && !method.semantics.HasOption(SemanticBestEffort) {
		return &MissingMethodError{Protocol: method.protocol, Method: method.method}
	}
	return nil
}

// resolveTargets запрашивает реализации протокола и вызывает метод у них.
func resolveTargets(h Handler, method *HandleMethod, broadcast bool) error {
	opts := []CallbackOption{}
	if broadcast {
		opts = append(opts, WithMany())
	}
	inquiry := NewInquiry(method.protocol, opts...)
	if result := h.Handle(inquiry, broadcast, nil); result.IsError() {
		return result.Err()
	}
	for _, r := range inquiry.results {
		target, err := awaitValue(context.Background(), r)
		if err != nil {
			return err
		}
		result := method.Dispatch(target, broadcast, h)
		if result.IsError() {
			return result.Err()
		}
		if result.IsHandled() && !broadcast {
			return nil
		}
	}
	return nil
}

// Invoke вызывает метод протокола P у обработчиков цепочки h. call выполняет
// вызов у объекта, реализующего P; args нужны для вызова по имени в режиме Duck.
func Invoke[P, R any](h Handler, method string, call func(P) (R, error), args ...any) (R, error) {
	m := NewHandleMethod(TypeOf[P](), method, func(target any) (any, error) {
		return call(target.(P))
	}, args...)
	v, err := Call(h, m)
	if err != nil {
		var zero R
		return zero, err
	}
	return convert[R](context.Background(), v)
}
