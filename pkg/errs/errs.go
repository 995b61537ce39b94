// Package errs defines the error types returned by dbkit.
//
// Its purpose is to give callers one error shape for everything the
// data-access layer rejects on its own (bad configuration, missing
// connection, unsupported database type) and for the driver errors it
// recognises (constraint violations, missing rows).
//
//   - Every error carries a Kind so callers can branch with errors.Is.
//   - Every error carries a machine-friendly Code (e.g. USER_ALREADY_EXISTS).
//   - Driver errors stay reachable through Unwrap, so errors.As still finds
//     *pgconn.PgError or *mysql.MySQLError.
package errs
