// Package sqlerr specifically handles database driver errors.
//
// It parses cryptic error codes from the database drivers (SQLSTATE codes
// from pgx, error numbers from go-sql-driver/mysql) and converts them into
// errs.Error values with a Kind, a machine-friendly code and a
// user-friendly message. The driver error stays reachable through Unwrap.
package sqlerr
