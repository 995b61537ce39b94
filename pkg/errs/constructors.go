package errs

import "fmt"

// New creates an Error of the given kind with the default code for that kind.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    codeFor(kind),
		Message: message,
	}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an Error of the given kind that unwraps to cause.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.Err = cause
	return e
}

// NewInvalidConfigError creates an invalid-config Error.
//
// fields is optional and typically comes from struct tag validation.
func NewInvalidConfigError(message string, fields []FieldError) *Error {
	e := New(KindInvalidConfig, message)
	e.Fields = fields
	return e
}

// NewNotConnectedError creates a not-connected Error.
func NewNotConnectedError(message string) *Error {
	return New(KindNotConnected, message)
}

// NewUnsupportedError creates an unsupported Error.
func NewUnsupportedError(message string) *Error {
	return New(KindUnsupported, message)
}

// NewNotFoundError creates a not-found Error.
//
// code is optional; if nil the default NOT_FOUND code is used.
func NewNotFoundError(message string, code *string, cause error) *Error {
	e := Wrap(KindNotFound, message, cause)
	if code != nil {
		e.Code = *code
	}
	return e
}

// NewConflictError creates a conflict Error for unique violations.
func NewConflictError(message string, code string, cause error) *Error {
	e := Wrap(KindConflict, message, cause)
	e.Code = code
	return e
}

// NewInvalidInputError creates an invalid-input Error.
//
// This supports extra payload:
//   - code: custom code string (e.g. "USER_NOT_FOUND" for a dangling foreign key)
//   - fields: optional slice of field errors
func NewInvalidInputError(message string, code string, fields []FieldError, cause error) *Error {
	e := Wrap(KindInvalidInput, message, cause)
	e.Code = code
	e.Fields = fields
	return e
}

// NewInternalError creates an internal Error.
func NewInternalError(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}
