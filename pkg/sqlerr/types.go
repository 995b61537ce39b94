package sqlerr

import "fmt"

// Code is a driver-independent classification of a database error.
type Code string

const (
	Other               Code = "other"
	UniqueViolation     Code = "unique_violation"
	ForeignKeyViolation Code = "foreign_key_violation"
	NotNullViolation    Code = "not_null_violation"
	CheckViolation      Code = "check_violation"
	UndefinedTable      Code = "undefined_table"
	UndefinedColumn     Code = "undefined_column"
	SyntaxError         Code = "syntax_error"
	InvalidAuth         Code = "invalid_authorization"
	TooManyConnections  Code = "too_many_connections"
)

// Severity is the severity reported by the database.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityFatal   Severity = "FATAL"
	SeverityPanic   Severity = "PANIC"
	SeverityWarning Severity = "WARNING"
	SeverityNotice  Severity = "NOTICE"
	SeverityDebug   Severity = "DEBUG"
	SeverityInfo    Severity = "INFO"
	SeverityLog     Severity = "LOG"
)

// Error is a normalized driver error.
type Error struct {
	Code     Code
	Severity Severity

	// DatabaseCode is the raw code reported by the driver: the SQLSTATE for
	// postgres, the error number for mysql.
	DatabaseCode string

	Message        string
	SchemaName     string
	TableName      string
	ColumnName     string
	DataTypeName   string
	ConstraintName string

	driverErr error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Severity, e.DatabaseCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.driverErr
}

// MapCode maps a postgres SQLSTATE to a Code.
func MapCode(sqlState string) Code {
	switch sqlState {
	case "23505":
		return UniqueViolation
	case "23503":
		return ForeignKeyViolation
	case "23502":
		return NotNullViolation
	case "23514":
		return CheckViolation
	case "42P01":
		return UndefinedTable
	case "42703":
		return UndefinedColumn
	case "42601":
		return SyntaxError
	case "28000", "28P01":
		return InvalidAuth
	case "53300":
		return TooManyConnections
	default:
		return Other
	}
}

// MapMySQLCode maps a mysql server error number to a Code.
func MapMySQLCode(number uint16) Code {
	switch number {
	case 1062, 1586:
		return UniqueViolation
	case 1216, 1217, 1451, 1452:
		return ForeignKeyViolation
	case 1048, 1364:
		return NotNullViolation
	case 3819:
		return CheckViolation
	case 1146:
		return UndefinedTable
	case 1054:
		return UndefinedColumn
	case 1064:
		return SyntaxError
	case 1045, 1251:
		return InvalidAuth
	case 1040:
		return TooManyConnections
	default:
		return Other
	}
}

// MapSeverity maps a severity string reported by postgres to a Severity.
func MapSeverity(severity string) Severity {
	switch severity {
	case "FATAL":
		return SeverityFatal
	case "PANIC":
		return SeverityPanic
	case "WARNING":
		return SeverityWarning
	case "NOTICE":
		return SeverityNotice
	case "DEBUG":
		return SeverityDebug
	case "INFO":
		return SeverityInfo
	case "LOG":
		return SeverityLog
	default:
		return SeverityError
	}
}
