// Package apperr — типизированные ошибки доменного уровня. Обработчики HTTP и WebSocket
// отображают Kind в код ответа, остальные ошибки считаются внутренними.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindConflict
	KindAuthentication
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	default:
		return "internal"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is позволяет сравнивать с образцами вида &Error{Kind: KindNotFound}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Kind == e.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return newf(KindAuthorization, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

func Authentication(format string, args ...any) *Error {
	return newf(KindAuthentication, format, args...)
}

// Wrap добавляет к ошибке kind и сообщение, сохраняя цепочку для errors.Is.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf возвращает kind первой *Error в цепочке; для остальных ошибок — KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message возвращает текст для клиента. Внутренние ошибки не раскрываются.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "internal server error"
}

var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrConflict       = &Error{Kind: KindConflict}
	ErrAuthentication = &Error{Kind: KindAuthentication}
)
