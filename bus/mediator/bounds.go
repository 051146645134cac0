package mediator

// boundsHandler не пропускает callback-и, помеченные той же границей.
type boundsHandler struct {
	Decorator
	boundary any
}

// Bounds возвращает узел, который отклоняет callback-и с меткой boundary
// и передает остальные h. Метка сравнивается оператором ==.
func Bounds(h Handler, boundary any) Handler {
	return &boundsHandler{Decorator: NewDecorator(h), boundary: boundary}
}

func (b *boundsHandler) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if composer == nil {
		composer = scope(b)
	}
	if bounded, ok := callback.(Bounded); ok && b.boundary != nil {
		tag := bounded.Bounds()
		if isComparable(tag) && isComparable(b.boundary) && tag == b.boundary {
			return NotHandled
		}
	}
	return b.forward(callback, greedy, composer)
}
