package mediator

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/goccy/go-reflect"
)

// ParamKind определяет источник аргумента метода.
type ParamKind uint8

const (
	// ParamPayload - значение команды.
	ParamPayload ParamKind = iota
	// ParamCallback - сам конверт (*Command, *Inquiry и т.п.).
	ParamCallback
	// ParamComposer - composer текущей обработки.
	ParamComposer
	// ParamContext - context.Context конверта.
	ParamContext
	// ParamHandleContext - HandleContext текущего вызова.
	ParamHandleContext
	// ParamResolve - зависимость, разрешаемая через composer по ключу.
	ParamResolve
)

// Param описывает один аргумент метода.
type Param struct {
	Kind     ParamKind
	Key      any
	Optional bool
	Many     bool
	Type     reflect.Type
}

// Invoker вызывает член на экземпляре handler с подготовленными аргументами.
// Для конструкторов handler равен nil.
type Invoker func(handler any, args []any) (any, error)

// Member - метаданные одного члена обработчика: политика, объявленный ключ,
// параметры и делегат вызова.
type Member struct {
	Name        string
	Receiver    reflect.Type
	Policy      Policy
	Key         any
	Invariant   bool
	Params      []Param
	Filters     []FilterProvider
	SkipFilters bool
	Invoke      Invoker
}

func (m Member) declare(t *TypeMetadata) error {
	if m.Policy == nil {
		return fmt.Errorf("член '%s' не задает политику", m.Name)
	}
	if m.Invoke == nil {
		return fmt.Errorf("член '%s' не задает делегат вызова", m.Name)
	}
	if m.Key == nil {
		return fmt.Errorf("член '%s' не задает ключ", m.Name)
	}
	t.Members = append(t.Members, m)
	return nil
}

// MemberBuilder строит Member из функции, сигнатура которой разбирается один
// раз при регистрации. Первым параметром функции-метода является экземпляр
// обработчика, вторым (для Handles) - значение команды. Остальные параметры
// распознаются по типу: context.Context, HandleContext, Handler (composer),
// конверты *Command, *Inquiry и Callback; все прочие разрешаются через composer.
// Функция может возвращать (), (error), (R) или (R, error).
type MemberBuilder struct {
	member    Member
	fn        reflect.Value
	fnType    reflect.Type
	receivers int
	err       error
}

// Handles объявляет метод-обработчик команды.
// fn имеет вид func(h H, cmd C, deps...) (R, error); ключом служит тип C.
func Handles(fn any) *MemberBuilder {
	b := newMemberBuilder(fn, HandlesPolicy, 1)
	if b.err != nil {
		return b
	}
	if b.fnType.NumIn() < 2 {
		b.err = errors.New("метод-обработчик должен принимать экземпляр и команду")
		return b
	}
	b.member.Key = b.fnType.In(1)
	b.member.Params[0] = Param{Kind: ParamPayload, Type: b.fnType.In(1)}
	return b
}

// Provides объявляет метод-поставщик значения.
// fn имеет вид func(h H, deps...) (R, error); ключом служит тип R.
func Provides(fn any) *MemberBuilder {
	b := newMemberBuilder(fn, ProvidesPolicy, 1)
	if b.err != nil {
		return b
	}
	if b.fnType.NumOut() == 0 || b.fnType.Out(0) == errorType {
		b.err = errors.New("метод-поставщик должен возвращать значение")
		return b
	}
	b.member.Key = b.fnType.Out(0)
	return b
}

// Constructor объявляет конструктор типа обработчика.
// fn имеет вид func(deps...) (H, error); ключом служит тип H.
func Constructor(fn any) *MemberBuilder {
	b := newMemberBuilder(fn, CreatesPolicy, 0)
	if b.err != nil {
		return b
	}
	if b.fnType.NumOut() == 0 || b.fnType.Out(0) == errorType {
		b.err = errors.New("конструктор должен возвращать экземпляр")
		return b
	}
	b.member.Key = b.fnType.Out(0)
	return b
}

func newMemberBuilder(fn any, p Policy, receivers int) *MemberBuilder {
	b := &MemberBuilder{member: Member{Policy: p}, receivers: receivers}
	if fn == nil {
		b.err = errors.New("функция члена не задана")
		return b
	}
	b.fn = reflect.ValueOf(fn)
	b.fnType = b.fn.Type()
	switch {
	case b.fnType.Kind() != reflect.Func:
		b.err = fmt.Errorf("ожидалась функция, получен '%s'", b.fnType)
	case b.fnType.IsVariadic():
		b.err = errors.New("вариадические функции не поддерживаются")
	case b.fnType.NumIn() < receivers:
		b.err = errors.New("функция метода должна принимать экземпляр обработчика")
	default:
		b.err = validateResults(b.fnType)
	}
	if b.err != nil {
		return b
	}
	b.member.Name = funcName(b.fn)
	if receivers == 1 {
		b.member.Receiver = b.fnType.In(0)
	}
	b.member.Params = classifyParams(b.fnType, receivers)
	b.member.Invoke = reflectInvoker(b.fn, receivers == 1)
	return b
}

// Named задает имя члена для логов и ошибок.
func (b *MemberBuilder) Named(name string) *MemberBuilder {
	b.member.Name = name
	return b
}

// Invariant требует точного совпадения ключа.
func (b *MemberBuilder) Invariant() *MemberBuilder {
	b.member.Invariant = true
	return b
}

// WithKey заменяет объявленный ключ, например строковым.
func (b *MemberBuilder) WithKey(key any) *MemberBuilder {
	b.member.Key = key
	return b
}

// Inject задает ключ разрешения для параметра с индексом index.
// Индекс считается по списку параметров функции.
func (b *MemberBuilder) Inject(index int, key any) *MemberBuilder {
	if p := b.param(index); p != nil {
		p.Kind = ParamResolve
		p.Key = key
	}
	return b
}

// Optional помечает параметры как необязательные: при неудаче разрешения
// передается нулевое значение.
func (b *MemberBuilder) Optional(indexes ...int) *MemberBuilder {
	for _, index := range indexes {
		if p := b.param(index); p != nil {
			p.Optional = true
		}
	}
	return b
}

// WithFilters добавляет поставщиков фильтров члена.
func (b *MemberBuilder) WithFilters(providers ...FilterProvider) *MemberBuilder {
	b.member.Filters = append(b.member.Filters, providers...)
	return b
}

// SkipFilters отключает необязательные фильтры для члена.
func (b *MemberBuilder) SkipFilters() *MemberBuilder {
	b.member.SkipFilters = true
	return b
}

// Build возвращает построенный член.
func (b *MemberBuilder) Build() (Member, error) {
	if b.err != nil {
		return Member{}, fmt.Errorf("член '%s': %w", b.member.Name, b.err)
	}
	return b.member, nil
}

func (b *MemberBuilder) declare(t *TypeMetadata) error {
	m, err := b.Build()
	if err != nil {
		return err
	}
	return m.declare(t)
}

func (b *MemberBuilder) param(index int) *Param {
	if b.err != nil {
		return nil
	}
	i := index - b.receivers
	if i < 0 || i >= len(b.member.Params) || b.member.Params[i].Kind == ParamPayload {
		b.err = fmt.Errorf("параметр %d не может быть зависимостью", index)
		return nil
	}
	return &b.member.Params[i]
}

// classifyParams распознает параметры функции начиная с индекса from.
func classifyParams(fnType reflect.Type, from int) []Param {
	params := make([]Param, 0, fnType.NumIn()-from)
	for i := from; i < fnType.NumIn(); i++ {
		params = append(params, classifyParam(fnType.In(i)))
	}
	return params
}

func classifyParam(t reflect.Type) Param {
	switch {
	case t == contextType:
		return Param{Kind: ParamContext, Type: t}
	case t == handleContextType:
		return Param{Kind: ParamHandleContext, Type: t}
	case t == handlerType:
		return Param{Kind: ParamComposer, Type: t}
	case t == callbackType || t == TypeOf[*Command]() || t == TypeOf[*Inquiry]():
		return Param{Kind: ParamCallback, Type: t}
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8:
		return Param{Kind: ParamResolve, Key: t.Elem(), Many: true, Type: t}
	}
	return Param{Kind: ParamResolve, Key: t, Type: t}
}

func validateResults(fnType reflect.Type) error {
	switch fnType.NumOut() {
	case 0:
		return nil
	case 1:
		return nil
	case 2:
		if fnType.Out(1) != errorType {
			return errors.New("второй результат функции должен иметь тип error")
		}
		return nil
	}
	return errors.New("функция может возвращать не более двух результатов")
}

// reflectInvoker строит делегат вызова функции через рефлексию.
func reflectInvoker(fn reflect.Value, withReceiver bool) Invoker {
	fnType := fn.Type()
	return func(handler any, args []any) (any, error) {
		in := make([]reflect.Value, 0, fnType.NumIn())
		offset := 0
		if withReceiver {
			in = append(in, argValue(fnType.In(0), handler))
			offset = 1
		}
		for i, arg := range args {
			in = append(in, argValue(fnType.In(i+offset), arg))
		}
		return unpackResults(fnType, fn.Call(in))
	}
}

func argValue(t reflect.Type, arg any) reflect.Value {
	if arg == nil {
		return reflect.Zero(t)
	}
	if values, ok := arg.([]any); ok && t.Kind() == reflect.Slice && t != TypeOf[[]any]() {
		slice := reflect.MakeSlice(t, 0, len(values))
		for _, v := range values {
			slice = reflect.Append(slice, reflect.ValueOf(v))
		}
		return slice
	}
	return reflect.ValueOf(arg)
}

func unpackResults(fnType reflect.Type, out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if fnType.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return resultValue(out[0]), nil
	}
	return resultValue(out[0]), asError(out[1])
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

func resultValue(v reflect.Value) any {
	if !v.IsValid() || isNilValue(v) {
		return nil
	}
	return v.Interface()
}

func funcName(fn reflect.Value) string {
	if pc := fn.Pointer(); pc != 0 {
		if f := runtime.FuncForPC(pc); f != nil {
			return f.Name()
		}
	}
	return fn.Type().String()
}
