package sqlerr

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deppfellow/dbkit/pkg/errs"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrCode reports the mapped Code for a given error.
//
// If err can be unwrapped into a driver error sqlerr knows about, its
// mapped Code is returned; otherwise Other.
func ErrCode(err error) Code {
	var sqlErr *Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code
	}
	if converted := Convert(err); converted != nil {
		return converted.Code
	}
	return Other
}

// Convert turns a pgx or mysql driver error found anywhere in err's chain
// into an *Error. It returns nil for errors of any other origin.
func Convert(err error) *Error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return ConvertPgError(pgErr)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return ConvertMySQLError(myErr)
	}
	return nil
}

// ConvertPgError converts a pgconn.PgError (raw Postgres error) into an *Error.
func ConvertPgError(src *pgconn.PgError) *Error {
	return &Error{
		Code:           MapCode(src.Code),
		Severity:       MapSeverity(src.Severity),
		DatabaseCode:   src.Code,
		Message:        src.Message,
		SchemaName:     src.SchemaName,
		TableName:      src.TableName,
		ColumnName:     src.ColumnName,
		DataTypeName:   src.DataTypeName,
		ConstraintName: src.ConstraintName,
		driverErr:      src,
	}
}

var (
	// Duplicate entry 'a@b.c' for key 'users.users_email_key'
	mysqlDuplicateKey = regexp.MustCompile(`for key '([^']+)'`)

	// ... a foreign key constraint fails (`db`.`posts`, CONSTRAINT `fk` FOREIGN KEY (`user_id`) ...
	mysqlForeignKey = regexp.MustCompile("\\(`[^`]*`\\.`([^`]+)`, CONSTRAINT `([^`]+)` FOREIGN KEY \\(`([^`]+)`\\)")

	// Column 'name' cannot be null / Field 'name' doesn't have a default value
	mysqlColumn = regexp.MustCompile(`(?:Column|Field) '([^']+)'`)

	// Check constraint 'users_chk_1' is violated.
	mysqlCheck = regexp.MustCompile(`[Cc]heck constraint '([^']+)'`)
)

// ConvertMySQLError converts a mysql.MySQLError into an *Error.
//
// MySQL does not report table and column names as separate fields, so they
// are recovered from the message where the server includes them.
func ConvertMySQLError(src *mysql.MySQLError) *Error {
	out := &Error{
		Code:         MapMySQLCode(src.Number),
		Severity:     SeverityError,
		DatabaseCode: strconv.Itoa(int(src.Number)),
		Message:      src.Message,
		driverErr:    src,
	}

	switch out.Code {
	case UniqueViolation:
		if m := mysqlDuplicateKey.FindStringSubmatch(src.Message); m != nil {
			key := m[1]
			// MySQL 8 prefixes the key with the table name.
			if table, constraint, ok := strings.Cut(key, "."); ok {
				out.TableName = table
				key = constraint
			}
			out.ConstraintName = key
		}
	case ForeignKeyViolation:
		if m := mysqlForeignKey.FindStringSubmatch(src.Message); m != nil {
			out.TableName = m[1]
			out.ConstraintName = m[2]
			out.ColumnName = m[3]
		}
	case NotNullViolation:
		if m := mysqlColumn.FindStringSubmatch(src.Message); m != nil {
			out.ColumnName = m[1]
		}
	case CheckViolation:
		if m := mysqlCheck.FindStringSubmatch(src.Message); m != nil {
			out.ConstraintName = m[1]
		}
	}

	return out
}

// generateErrorCode creates consistent application error codes from
// database errors, in the form <DOMAIN>_<ACTION>.
//
// Example:
//
//	users + UniqueViolation => USER_ALREADY_EXISTS
func generateErrorCode(tableName string, errType Code) string {
	if tableName == "" {
		tableName = "RECORD"
	}

	domain := strings.ToUpper(tableName)
	if strings.HasSuffix(domain, "S") && len(domain) > 1 {
		domain = domain[:len(domain)-1]
	}

	action := "ERROR"
	switch errType {
	case ForeignKeyViolation:
		action = "NOT_FOUND"
	case UniqueViolation:
		action = "ALREADY_EXISTS"
	case NotNullViolation:
		action = "REQUIRED"
	case CheckViolation:
		action = "INVALID"
	}

	return fmt.Sprintf("%s_%s", domain, action)
}

// formatUserFriendlyMessage produces a message that can be shown to an end user.
func formatUserFriendlyMessage(sqlErr *Error) string {
	entityName := getEntityName(sqlErr.TableName, sqlErr.ColumnName)

	switch sqlErr.Code {
	case ForeignKeyViolation:
		return fmt.Sprintf("The referenced %s does not exist", entityName)

	case UniqueViolation:
		return fmt.Sprintf("A %s with this identifier already exists", entityName)

	case NotNullViolation:
		fieldName := humanizeText(sqlErr.ColumnName)
		if fieldName == "" {
			fieldName = "field"
		}
		return fmt.Sprintf("The %s is required", fieldName)

	case CheckViolation:
		fieldName := humanizeText(sqlErr.ColumnName)
		if fieldName != "" {
			return fmt.Sprintf("The %s value does not meet required conditions", fieldName)
		}
		return "One or more values do not meet required conditions"

	default:
		return "An error occurred while processing your request"
	}
}

// getEntityName infers an entity name from table/column data.
//
// Priority rules:
//  1. A column ending in "_id" names the entity ("user_id" -> "User").
//  2. Otherwise the table name, singularized if it ends with "s".
//  3. Otherwise "record".
func getEntityName(tableName, columnName string) string {
	if columnName != "" && strings.HasSuffix(strings.ToLower(columnName), "_id") {
		entity := strings.TrimSuffix(strings.ToLower(columnName), "_id")
		return humanizeText(entity)
	}

	if tableName != "" {
		entity := tableName
		if strings.HasSuffix(entity, "s") && len(entity) > 1 {
			entity = entity[:len(entity)-1]
		}
		return humanizeText(entity)
	}

	return "record"
}

// humanizeText converts snake_case into Title Case.
//
//	"first_name" -> "First Name"
func humanizeText(text string) string {
	if text == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}

var uniqueKeySuffix = regexp.MustCompile(`_([^_]+)_(?:key|ukey)$`)

// extractColumnForUniqueViolation infers the column name from a unique
// constraint name.
//
// It supports two conventions:
//
//  1. "unique_<table>_<column>"  (unique_users_email -> "email")
//  2. "<table>_<column>_(key|ukey)"  (users_email_key -> "email")
func extractColumnForUniqueViolation(constraintName string) string {
	if constraintName == "" {
		return ""
	}

	if strings.HasPrefix(constraintName, "unique_") {
		parts := strings.Split(constraintName, "_")
		if len(parts) >= 3 {
			return parts[len(parts)-1]
		}
	}

	if matches := uniqueKeySuffix.FindStringSubmatch(constraintName); len(matches) > 1 {
		return matches[1]
	}

	return ""
}

// HandleError converts a low-level database error into an *errs.Error.
//
// Output:
//   - nil and *errs.Error values are returned unchanged
//   - recognised constraint violations become conflict or invalid-input errors
//   - ErrNoRows (pgx or database/sql) becomes a not-found error
//   - every other error is returned unchanged
//
// The driver error is kept as the cause of the returned error.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	var dbkitErr *errs.Error
	if errors.As(err, &dbkitErr) {
		return err
	}

	if sqlErr := Convert(err); sqlErr != nil {
		errorCode := generateErrorCode(sqlErr.TableName, sqlErr.Code)
		userMessage := formatUserFriendlyMessage(sqlErr)

		switch sqlErr.Code {
		case ForeignKeyViolation:
			return errs.NewInvalidInputError(userMessage, errorCode, nil, err)

		case UniqueViolation:
			if columnName := extractColumnForUniqueViolation(sqlErr.ConstraintName); columnName != "" {
				userMessage = strings.ReplaceAll(userMessage, "identifier", humanizeText(columnName))
			}
			return errs.NewConflictError(userMessage, errorCode, err)

		case NotNullViolation:
			fieldErrors := []errs.FieldError{
				{
					Field: strings.ToLower(sqlErr.ColumnName),
					Error: "is required",
				},
			}
			return errs.NewInvalidInputError(userMessage, errorCode, fieldErrors, err)

		case CheckViolation:
			return errs.NewInvalidInputError(userMessage, errorCode, nil, err)

		default:
			return err
		}
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		errMsg := err.Error()
		tablePrefix := "table:"
		if strings.Contains(errMsg, tablePrefix) {
			table := strings.Split(strings.Split(errMsg, tablePrefix)[1], ":")[0]
			entityName := getEntityName(table, "")
			return errs.NewNotFoundError(fmt.Sprintf("%s not found", entityName), nil, err)
		}
		return errs.NewNotFoundError("Resource not found", nil, err)
	}

	return err
}
