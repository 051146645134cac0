package mediator

import (
	"errors"
	"fmt"

	"github.com/goccy/go-reflect"

	"github.com/x-research-team/dtx-mediator/bus/promise"
)

var (
	// ErrDeclined возвращается методом-обработчиком, который отказывается от
	// callback-а. Такой вызов не считается обработкой, и поиск продолжается.
	ErrDeclined = errors.New("обработчик отказался от callback")

	// ErrTypeAlreadyRegistered возвращается при повторной регистрации метаданных типа.
	ErrTypeAlreadyRegistered = errors.New("тип уже зарегистрирован")

	// ErrInvalidOperation сигнализирует о недопустимой операции или конфигурации.
	ErrInvalidOperation = errors.New("недопустимая операция")

	// errUnresolved сигнализирует, что аргумент метода не удалось получить.
	errUnresolved = errors.New("аргумент не разрешен")
)

// NotHandledError возвращается, когда ни один обработчик не принял callback.
type NotHandledError struct {
	Callback any
}

func (e *NotHandledError) Error() string {
	return fmt.Sprintf("callback '%s' не обработан", describe(e.Callback))
}

// RejectedError возвращается, когда callback отклонен фильтром или аспектом.
// С точки зрения промисов отклонение считается отменой.
type RejectedError struct {
	Callback any
	Reason   error
}

func (e *RejectedError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("callback '%s' отклонен: %v", describe(e.Callback), e.Reason)
	}
	return fmt.Sprintf("callback '%s' отклонен", describe(e.Callback))
}

func (e *RejectedError) Unwrap() error {
	return e.Reason
}

// Is позволяет распознать отклонение как отмену промиса.
func (e *RejectedError) Is(target error) bool {
	return target == promise.ErrCanceled
}

// MissingMethodError возвращается, когда вызов метода протокола никем не обработан.
type MissingMethodError struct {
	Protocol reflect.Type
	Method   string
}

func (e *MissingMethodError) Error() string {
	return fmt.Sprintf("метод '%s' протокола '%s' не найден ни у одного обработчика", e.Method, typeString(e.Protocol))
}

// InvalidDescriptorError возвращается при построении дескриптора из некорректных метаданных.
type InvalidDescriptorError struct {
	HandlerType reflect.Type
	Member      string
	Err         error
}

func (e *InvalidDescriptorError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("некорректный дескриптор обработчика '%s': %v", typeString(e.HandlerType), e.Err)
	}
	return fmt.Sprintf("некорректный член '%s' обработчика '%s': %v", e.Member, typeString(e.HandlerType), e.Err)
}

func (e *InvalidDescriptorError) Unwrap() error {
	return e.Err
}

// RequiredFilterError возвращается, когда обязательный поставщик фильтров
// не вернул ни одного фильтра.
type RequiredFilterError struct {
	Member   string
	Provider string
}

func (e *RequiredFilterError) Error() string {
	return fmt.Sprintf("обязательный поставщик фильтров '%s' не вернул фильтров для '%s'", e.Provider, e.Member)
}

func (e *RequiredFilterError) Unwrap() error {
	return ErrInvalidOperation
}

// GenericInferenceError возвращается, когда обобщенный член подходит по ключу,
// но не может быть замкнут.
type GenericInferenceError struct {
	Member string
	Key    any
	Err    error
}

func (e *GenericInferenceError) Error() string {
	return fmt.Sprintf("не удалось вывести обобщенный член '%s' для ключа '%v': %v", e.Member, e.Key, e.Err)
}

func (e *GenericInferenceError) Unwrap() error {
	return e.Err
}

// ResultTypeError возвращается, когда результат callback-а не приводится к ожидаемому типу.
type ResultTypeError struct {
	Expected reflect.Type
	Actual   reflect.Type
}

func (e *ResultTypeError) Error() string {
	return fmt.Sprintf("результат имеет тип '%s', ожидался '%s'", typeString(e.Actual), typeString(e.Expected))
}
