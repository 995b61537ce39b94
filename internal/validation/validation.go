// Package validation validates configuration structs.
//
// It uses the `validator` library to enforce rules (like required fields
// or allowed values) defined in struct tags and converts validation errors
// into errs.FieldError lists a caller can print or inspect.
package validation
