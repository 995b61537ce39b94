// Command dbkit runs migrations and inspects a database configured through
// DBKIT_ environment variables.
//
//	dbkit migrate up
//	dbkit migrate down --steps 2
//	dbkit tables
//	dbkit find users --where 'age >= 18' --order 'name desc' --limit 10
//	dbkit count users --where 'deleted_at = null'
//	dbkit health
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
