package mediator

import (
	"github.com/goccy/go-reflect"
)

// Command - конверт, доставляющий произвольное значение методам-обработчикам
// по политике HandlesPolicy. Ключом служит динамический тип значения.
type Command struct {
	CallbackBase
	callback any
}

// NewCommand оборачивает callback в конверт команды.
func NewCommand(callback any, opts ...CallbackOption) *Command {
	c := &Command{callback: callback}
	c.init(opts)
	return c
}

// Callback возвращает исходное значение команды.
func (c *Command) Callback() any { return c.callback }

// Policy реализует Callback.
func (c *Command) Policy() Policy { return HandlesPolicy }

// Key реализует Callback.
func (c *Command) Key() any { return reflect.TypeOf(c.callback) }

// Payload реализует Callback.
func (c *Command) Payload() any { return c.callback }

// ReceiveResult засчитывает любой вызов обработчика; nil не попадает в результаты.
func (c *Command) ReceiveResult(result any, _ bool, _ HandleContext) bool {
	c.AddResult(result)
	return true
}

// CanInfer реализует inferable.
func (c *Command) CanInfer() bool {
	if i, ok := c.callback.(inferable); ok {
		return i.CanInfer()
	}
	return true
}
