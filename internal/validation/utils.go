package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/deppfellow/dbkit/pkg/errs"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// instance returns the shared validator. It reports field names by their
// koanf tag so messages match the keys users configure.
func instance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("koanf"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// CustomValidationError represents a single validation issue for a specific field.
// This is used for validation errors that cannot be expressed via validator tags.
type CustomValidationError struct {
	Field   string
	Message string
}

// CustomValidationErrors is a slice of custom validation errors that satisfies error.
type CustomValidationErrors []CustomValidationError

func (c CustomValidationErrors) Error() string {
	return "Validation failed"
}

// Struct validates v against its struct tags.
//
// Returns nil when v is valid and an invalid-config *errs.Error carrying
// one FieldError per failed rule otherwise.
func Struct(v any, message string) error {
	if err := instance().Struct(v); err != nil {
		return ToError(err, message)
	}
	return nil
}

// ToError converts validator.ValidationErrors or CustomValidationErrors
// into an invalid-config *errs.Error. Any other error is wrapped as is.
func ToError(err error, message string) error {
	fieldErrors := extractValidationError(err)
	if fieldErrors == nil {
		return errs.Wrap(errs.KindInvalidConfig, fmt.Sprintf("%s: %v", message, err), err)
	}

	details := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		details = append(details, fe.Field+" "+fe.Error)
	}

	e := errs.NewInvalidConfigError(fmt.Sprintf("%s: %s", message, strings.Join(details, ", ")), fieldErrors)
	e.Err = err
	return e
}

func extractValidationError(err error) []errs.FieldError {
	var fieldErrors []errs.FieldError

	var customValidationErrors CustomValidationErrors
	if errors.As(err, &customValidationErrors) {
		for _, err := range customValidationErrors {
			fieldErrors = append(fieldErrors, errs.FieldError{
				Field: err.Field,
				Error: err.Message,
			})
		}
		return fieldErrors
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	for _, err := range validationErrors {
		// Namespace is "Config.connection.port"; drop the root type name.
		field := err.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}

		var msg string
		switch err.Tag() {
		case "required":
			msg = "is required"

		case "min", "gte":
			if err.Type().Kind() == reflect.String {
				msg = fmt.Sprintf("must be at least %s characters", err.Param())
			} else {
				msg = fmt.Sprintf("must be at least %s", err.Param())
			}

		case "max", "lte":
			if err.Type().Kind() == reflect.String {
				msg = fmt.Sprintf("must not exceed %s characters", err.Param())
			} else {
				msg = fmt.Sprintf("must not exceed %s", err.Param())
			}

		case "oneof":
			msg = fmt.Sprintf("must be one of: %s", err.Param())

		case "required_without":
			msg = fmt.Sprintf("is required when %s is not set", strings.ToLower(err.Param()))

		default:
			if err.Param() != "" {
				msg = fmt.Sprintf("%s:%s", err.Tag(), err.Param())
			} else {
				msg = err.Tag()
			}
		}

		fieldErrors = append(fieldErrors, errs.FieldError{
			Field: field,
			Error: msg,
		})
	}

	return fieldErrors
}
