package mediator

import (
	"log/slog"

	"github.com/goccy/go-reflect"
)

// Inquiry - запрос значения по ключу. Ключом может быть тип или строка.
// Поставщики отвечают на запрос по политике ProvidesPolicy; обработчик,
// сам являющийся значением запрошенного типа, также отвечает на запрос.
type Inquiry struct {
	CallbackBase
	key    any
	parent *Inquiry
}

// NewInquiry создает запрос значения по ключу.
func NewInquiry(key any, opts ...CallbackOption) *Inquiry {
	i := &Inquiry{key: key}
	i.init(opts)
	return i
}

// Parent возвращает запрос, при обработке которого был создан текущий.
func (i *Inquiry) Parent() *Inquiry { return i.parent }

// Policy реализует Callback.
func (i *Inquiry) Policy() Policy { return ProvidesPolicy }

// Key реализует Callback.
func (i *Inquiry) Key() any { return i.key }

// Payload реализует Callback.
func (i *Inquiry) Payload() any { return i }

// Resolutions возвращает полученные значения.
func (i *Inquiry) Resolutions() []any { return i.Results() }

// ReceiveResult принимает только непустые значения. Без режима Many
// принимается не более одного значения.
func (i *Inquiry) ReceiveResult(result any, _ bool, _ HandleContext) bool {
	if result == nil {
		return false
	}
	if !i.many && len(i.results) > 0 {
		return false
	}
	return i.AddResult(result)
}

// Dispatch реализует CallbackDispatcher.
func (i *Inquiry) Dispatch(handler any, greedy bool, composer Handler) HandleResult {
	if handler == nil {
		return NotHandled
	}
	if i.circular() {
		logger().Debug("циклический запрос пропущен", slog.String("key", keyString(i.key)))
		return NotHandled
	}

	result := NotHandled
	if kt, ok := i.key.(reflect.Type); ok && reflect.TypeOf(handler).AssignableTo(kt) {
		if i.ReceiveResult(handler, greedy, HandleContext{}) {
			result = Handled
			if !greedy {
				return result
			}
		}
	}
	return result.Or(DispatchPolicy(handler, i, greedy, composer))
}

// child создает вложенный запрос для разрешения зависимости.
func (i *Inquiry) child(key any, many bool) *Inquiry {
	opts := []CallbackOption{WithContext(i.Context())}
	if many {
		opts = append(opts, WithMany())
	}
	c := NewInquiry(key, opts...)
	c.parent = i
	return c
}

func (i *Inquiry) circular() bool {
	if !isComparable(i.key) {
		return false
	}
	for p := i.parent; p != nil; p = p.parent {
		if isComparable(p.key) && p.key == i.key {
			return true
		}
	}
	return false
}
