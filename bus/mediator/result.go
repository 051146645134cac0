package mediator

// HandleResult описывает исход обработки callback-а: был ли он обработан
// и возникла ли ошибка.
type HandleResult struct {
	handled bool
	err     error
}

var (
	// Handled означает успешную обработку.
	Handled = HandleResult{handled: true}
	// NotHandled означает, что callback не был обработан.
	NotHandled = HandleResult{}
)

// IsHandled сообщает, был ли callback обработан.
func (r HandleResult) IsHandled() bool { return r.handled }

// IsError сообщает, завершилась ли обработка ошибкой.
func (r HandleResult) IsError() bool { return r.err != nil }

// Err возвращает ошибку обработки.
func (r HandleResult) Err() error { return r.err }

// WithError возвращает копию результата с ошибкой err.
func (r HandleResult) WithError(err error) HandleResult {
	r.err = err
	return r
}

// Or объединяет результаты: обработан, если обработан хотя бы один.
// Сохраняется первая ошибка.
func (r HandleResult) Or(other HandleResult) HandleResult {
	return HandleResult{
		handled: r.handled || other.handled,
		err:     firstError(r.err, other.err),
	}
}

// And объединяет результаты: обработан, только если обработаны оба.
func (r HandleResult) And(other HandleResult) HandleResult {
	return HandleResult{
		handled: r.handled && other.handled,
		err:     firstError(r.err, other.err),
	}
}

func firstError(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
