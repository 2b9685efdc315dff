package domain

import (
	"errors"
	"net/http"
)

// ErrorKind классифицирует ошибку на границе сервисного слоя.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "Validation Error"
	case KindBadRequest:
		return "Bad Request"
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Not Found"
	case KindConflict:
		return "Conflict"
	case KindTooManyRequests:
		return "Too Many Requests"
	default:
		return "Internal Server Error"
	}
}

// HTTPStatus возвращает HTTP-код для вида ошибки.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error - классифицированная ошибка. Message можно показывать клиенту,
// Err остается только в логах.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

func Validation(msg string) error      { return newError(KindValidation, msg) }
func BadRequest(msg string) error      { return newError(KindBadRequest, msg) }
func Unauthorized(msg string) error    { return newError(KindUnauthorized, msg) }
func Forbidden(msg string) error       { return newError(KindForbidden, msg) }
func NotFound(msg string) error        { return newError(KindNotFound, msg) }
func Conflict(msg string) error        { return newError(KindConflict, msg) }
func TooManyRequests(msg string) error { return newError(KindTooManyRequests, msg) }

// Internal оборачивает неожиданную ошибку нижнего слоя.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// Wrap превращает неклассифицированную ошибку в Internal, а уже
// классифицированную возвращает как есть.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(msg, err)
}

// KindOf возвращает вид ошибки; для неклассифицированных это KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind сообщает, относится ли err к виду kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage возвращает текст, безопасный для клиента.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "Internal server error"
}
