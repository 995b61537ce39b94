package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deppfellow/dbkit/pkg/errs"
	"github.com/deppfellow/dbkit/pkg/instrumentation"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
)

// Tx is a transaction started by Database.Transaction.
type Tx struct {
	tx       *sqlx.Tx
	dialect  *Dialect
	recorder *instrumentation.Recorder
}

// From returns an accessor for a table whose statements run in the
// transaction.
func (tx *Tx) From(name string) *Table {
	return newTxTable(name, tx.dialect, tx.tx, tx.recorder)
}

// Tx returns the underlying sqlx transaction.
func (tx *Tx) Tx() *sqlx.Tx {
	return tx.tx
}

// Transaction runs fn in a transaction. It commits when fn returns nil and
// rolls back when fn returns an error or panics.
func (d *Database) Transaction(ctx context.Context, fn func(*Tx) error) error {
	return d.TransactionWithOptions(ctx, nil, fn)
}

// TransactionWithOptions is Transaction with explicit isolation and
// read-only settings.
func (d *Database) TransactionWithOptions(ctx context.Context, opts *sql.TxOptions, fn func(*Tx) error) (err error) {
	d.mu.RLock()
	conn, dialect := d.conn, d.dialect
	d.mu.RUnlock()

	if conn == nil {
		return errs.NewNotConnectedError("The database must be connected to start a transaction")
	}

	sqlTx, err := conn.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// A failed commit already ended the transaction.
	committing := false
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil && !committing {
			if rbErr := sqlTx.Rollback(); rbErr != nil {
				err = multierror.Append(err, fmt.Errorf("failed to roll back transaction: %w", rbErr))
			}
		}
	}()

	if err = fn(&Tx{tx: sqlTx, dialect: dialect, recorder: d.opts.recorder}); err != nil {
		return err
	}

	committing = true
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
