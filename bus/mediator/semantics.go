package mediator

import (
	"errors"
)

// Semantic - флаг семантики вызова.
type Semantic uint16

const (
	// SemanticNone - семантика по умолчанию.
	SemanticNone Semantic = 0
	// SemanticBroadcast требует опросить все обработчики.
	SemanticBroadcast Semantic = 1 << 0
	// SemanticBestEffort считает отсутствие обработки и отклонение успехом.
	SemanticBestEffort Semantic = 1 << 1
	// SemanticStrict запрещает вызов методов протокола, полученных встраиванием.
	SemanticStrict Semantic = 1 << 2
	// SemanticDuck разрешает вызов метода по имени без реализации протокола.
	SemanticDuck Semantic = 1 << 3
	// SemanticResolve расширяет поиск обработчиков на зарегистрированные типы.
	SemanticResolve Semantic = 1 << 4
	// SemanticNotify - Broadcast и BestEffort вместе.
	SemanticNotify = SemanticBroadcast | SemanticBestEffort
)

// CallbackSemantics - набор флагов семантики с признаком явного задания.
// Флаг, заданный ближе к вызывающей стороне, не перекрывается внешним.
type CallbackSemantics struct {
	options   Semantic
	specified Semantic
}

// NewSemantics создает семантику с включенными флагами.
func NewSemantics(options Semantic) *CallbackSemantics {
	return &CallbackSemantics{options: options, specified: options}
}

// HasOption сообщает, включены ли все флаги options.
func (s *CallbackSemantics) HasOption(options Semantic) bool {
	return s.options&options == options
}

// IsSpecified сообщает, заданы ли флаги options явно.
func (s *CallbackSemantics) IsSpecified(options Semantic) bool {
	return s.specified&options == options
}

// SetOption задает флаги options явно.
func (s *CallbackSemantics) SetOption(options Semantic, enabled bool) {
	if enabled {
		s.options |= options
	} else {
		s.options &^= options
	}
	s.specified |= options
}

// MergeInto переносит в target флаги, заданные здесь и не заданные в target.
func (s *CallbackSemantics) MergeInto(target *CallbackSemantics) {
	for _, option := range []Semantic{
		SemanticBroadcast, SemanticBestEffort, SemanticStrict, SemanticDuck, SemanticResolve,
	} {
		if s.IsSpecified(option) && !target.IsSpecified(option) {
			target.SetOption(option, s.HasOption(option))
		}
	}
}

// Dispatch реализует CallbackDispatcher: запрос семантики не доставляется объектам.
func (s *CallbackSemantics) Dispatch(any, bool, Handler) HandleResult {
	return NotHandled
}

// CanInfer реализует inferable.
func (s *CallbackSemantics) CanInfer() bool { return false }

func (s *CallbackSemantics) system() {}

// systemCallback реализуют служебные запросы, на которые не влияет семантика вызова.
type systemCallback interface {
	system()
}

// semanticsHandler применяет семантику к callback-ам, проходящим через узел.
type semanticsHandler struct {
	Decorator
	semantics *CallbackSemantics
	resolving Handler
}

// WithSemantics возвращает узел, применяющий флаги options к вызовам h.
func WithSemantics(h Handler, options Semantic) Handler {
	s := &semanticsHandler{Decorator: NewDecorator(h), semantics: NewSemantics(options)}
	if s.semantics.HasOption(SemanticResolve) {
		s.resolving = Cascade(h, &inferenceHandler{factory: defaultFactory})
	}
	return s
}

func (s *semanticsHandler) Handle(callback any, greedy bool, composer Handler) HandleResult {
	if callback == nil {
		return NotHandled
	}
	if composer == nil {
		composer = scope(s)
	}

	switch cb := callback.(type) {
	case *CallbackSemantics:
		s.semantics.MergeInto(cb)
		if greedy {
			s.forward(callback, greedy, composer)
		}
		return Handled
	case *Composition:
		if _, ok := cb.callback.(*CallbackSemantics); ok {
			return NotHandled
		}
		return s.forward(callback, greedy, composer)
	case systemCallback:
		return s.forward(callback, greedy, composer)
	}

	if s.semantics.IsSpecified(SemanticBroadcast) {
		greedy = s.semantics.HasOption(SemanticBroadcast)
	}

	target := s.decoratee
	if s.resolving != nil {
		target = s.resolving
	}
	if target == nil {
		return NotHandled
	}

	if s.semantics.IsSpecified(SemanticBestEffort) && s.semantics.HasOption(SemanticBestEffort) {
		result := target.Handle(callback, greedy, composer)
		if result.IsError() {
			var notHandled *NotHandledError
			var rejected *RejectedError
			if errors.As(result.Err(), &notHandled) || errors.As(result.Err(), &rejected) {
				return Handled
			}
			return result
		}
		return Handled
	}
	return target.Handle(callback, greedy, composer)
}

// GetSemantics собирает семантику, заданную в цепочке h, или возвращает nil.
func GetSemantics(h Handler) *CallbackSemantics {
	semantics := &CallbackSemantics{}
	if h.Handle(semantics, true, h).IsHandled() {
		return semantics
	}
	return nil
}

// Broadcast требует опросить все обработчики.
func Broadcast(h Handler) Handler { return WithSemantics(h, SemanticBroadcast) }

// BestEffort считает необработанный или отклоненный callback успешным.
func BestEffort(h Handler) Handler { return WithSemantics(h, SemanticBestEffort) }

// Notify - Broadcast и BestEffort вместе.
func Notify(h Handler) Handler { return WithSemantics(h, SemanticNotify) }

// Strict запрещает вызов методов протокола, полученных встраиванием.
func Strict(h Handler) Handler { return WithSemantics(h, SemanticStrict) }

// Duck разрешает вызов методов протокола по имени.
func Duck(h Handler) Handler { return WithSemantics(h, SemanticDuck) }

// Resolving расширяет поиск обработчиков на зарегистрированные типы с конструкторами.
func Resolving(h Handler) Handler { return WithSemantics(h, SemanticResolve) }
