package errs

import (
	"strings"
)

// Kind classifies an Error.
type Kind string

const (
	// KindInvalidConfig is returned when a connection config, URI or
	// migration source cannot be used.
	KindInvalidConfig Kind = "invalid_config"

	// KindNotConnected is returned when a table is requested before
	// Connect succeeded or after Disconnect.
	KindNotConnected Kind = "not_connected"

	// KindUnsupported is returned for database types a feature does not
	// know how to serve (e.g. listing tables).
	KindUnsupported Kind = "unsupported"

	// KindNotFound is returned for unknown tables and missing rows.
	KindNotFound Kind = "not_found"

	// KindConflict is returned for unique violations.
	KindConflict Kind = "conflict"

	// KindInvalidInput is returned for foreign key, not null and check
	// violations.
	KindInvalidInput Kind = "invalid_input"

	// KindInternal is returned when the database did something the layer
	// did not expect (e.g. an insert that produced no row).
	KindInternal Kind = "internal"
)

// FieldError represents a field-level validation error.
// Example:
//
//	{ "field": "client", "error": "is required" }
type FieldError struct {
	// Field is the field name/key the error relates to (e.g. "client").
	Field string `json:"field"`

	// Error is the human-readable error message.
	Error string `json:"error"`
}

// Error is the error type returned by dbkit.
//
// Fields:
//   - Kind: error class, compared by Is.
//   - Code: machine-friendly error code (e.g. "NOT_CONNECTED").
//   - Message: human-friendly message, returned by Error().
//   - Fields: list of per-field errors (config validation).
//   - Err: the underlying cause, returned by Unwrap.
type Error struct {
	Kind    Kind         `json:"kind"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	Err     error        `json:"-"`
}

// Error makes *Error satisfy the built-in error interface.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind.
//
// A target with an empty Kind matches any *Error, so
// errors.Is(err, &errs.Error{}) answers "is this a dbkit error at all".
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// WithMessage returns a copy of this Error with Message replaced.
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: message,
		Fields:  e.Fields,
		Err:     e.Err,
	}
}

// MakeUpperCaseWithUnderscores converts a string into an UPPER_CASE_WITH_UNDERSCORES format.
//
// Example:
//
//	"not connected" -> "NOT_CONNECTED"
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}

func codeFor(kind Kind) string {
	return MakeUpperCaseWithUnderscores(strings.ReplaceAll(string(kind), "_", " "))
}
