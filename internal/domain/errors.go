package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind классифицирует доменные ошибки.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NotFound"
	KindForbidden          ErrorKind = "Forbidden"
	KindArgument           ErrorKind = "Argument"
	KindAlreadyInUse       ErrorKind = "AlreadyInUse"
	KindNotImplemented     ErrorKind = "NotImplemented"
	KindServiceUnavailable ErrorKind = "ServiceUnavailable"
	KindRateLimitExceeded  ErrorKind = "RateLimitExceeded"
)

var (
	// ErrNotFound: сущность или обязательное поле отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrForbidden: транзакция чужая или не выполнены условия допуска.
	ErrForbidden = errors.New("forbidden")
	// ErrArgument: нарушено предусловие на входные данные.
	ErrArgument = errors.New("invalid argument")
	// ErrAlreadyInUse: нарушено ограничение уникальности.
	ErrAlreadyInUse = errors.New("already in use")
	// ErrNotImplemented: неизвестный вариант typeOf.
	ErrNotImplemented = errors.New("not implemented")
	// ErrServiceUnavailable: внешний сервис временно недоступен.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrRateLimitExceeded: превышен лимит обращений к внешнему сервису.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

var kindSentinels = map[ErrorKind]error{
	KindNotFound:           ErrNotFound,
	KindForbidden:          ErrForbidden,
	KindArgument:           ErrArgument,
	KindAlreadyInUse:       ErrAlreadyInUse,
	KindNotImplemented:     ErrNotImplemented,
	KindServiceUnavailable: ErrServiceUnavailable,
	KindRateLimitExceeded:  ErrRateLimitExceeded,
}

// Error: типизированная доменная ошибка.
// Сравнивается через errors.Is с сентинелами ErrNotFound, ErrForbidden и т.д.
type Error struct {
	Kind ErrorKind
	// Entity: имя сущности или поля (например, "action", "transaction.result").
	Entity string
	// Fields перечисляет поля, нарушившие уникальность (только для AlreadyInUse).
	Fields  []string
	Message string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Entity != "" {
		b.WriteString(": ")
		b.WriteString(e.Entity)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ","))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is позволяет сравнивать *Error с сентинелами по виду ошибки.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// NotFound создаёт ошибку отсутствующей сущности.
func NotFound(entity string) error {
	return &Error{Kind: KindNotFound, Entity: entity, Message: entity + " not found"}
}

// Forbidden создаёт ошибку отказа в доступе.
func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Argument создаёт ошибку некорректного аргумента.
func Argument(field, message string) error {
	return &Error{Kind: KindArgument, Entity: field, Message: message}
}

// AlreadyInUse создаёт ошибку нарушения уникальности.
func AlreadyInUse(entity string, fields []string, message string) error {
	return &Error{Kind: KindAlreadyInUse, Entity: entity, Fields: fields, Message: message}
}

// NotImplemented создаёт ошибку неподдерживаемого варианта.
func NotImplemented(message string) error {
	return &Error{Kind: KindNotImplemented, Message: message}
}

// ServiceUnavailable создаёт ошибку недоступности внешнего сервиса.
func ServiceUnavailable(message string) error {
	return &Error{Kind: KindServiceUnavailable, Message: message}
}

// RateLimitExceeded создаёт ошибку превышения лимита обращений.
func RateLimitExceeded(message string) error {
	return &Error{Kind: KindRateLimitExceeded, Message: message}
}

// KindOf возвращает вид доменной ошибки или пустую строку.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// ExternalError описывает ошибку внешнего сервиса (GMO, Pecorino, COA).
type ExternalError struct {
	Service    string
	StatusCode int
	Name       string
	Message    string
}

func (e *ExternalError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Service, e.Name, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Service, e.Name, e.Message)
}

// ActionError: сериализуемый снимок ошибки, сохраняемый в Action.Error.
type ActionError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	// Code: код внешнего сервиса или вид доменной ошибки, если известен.
	Code string `json:"code,omitempty"`
}

// NewActionError нормализует произвольную ошибку до снимка {name, message}.
func NewActionError(err error) ActionError {
	if err == nil {
		return ActionError{Name: "Error", Message: "unknown error"}
	}

	var ext *ExternalError
	if errors.As(err, &ext) {
		out := ActionError{Name: ext.Name, Message: ext.Message}
		if out.Name == "" {
			out.Name = ext.Service + "Error"
		}
		if ext.StatusCode > 0 {
			out.Code = fmt.Sprintf("%d", ext.StatusCode)
		}
		return out
	}

	var de *Error
	if errors.As(err, &de) {
		return ActionError{Name: string(de.Kind), Message: err.Error(), Code: string(de.Kind)}
	}

	return ActionError{Name: "Error", Message: err.Error()}
}
