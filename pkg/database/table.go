package database

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/deppfellow/dbkit/pkg/errs"
	"github.com/deppfellow/dbkit/pkg/instrumentation"
	"github.com/deppfellow/dbkit/pkg/sqlerr"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
)

// Table is the accessor for one table.
//
// A Table is cheap to create and holds no connection of its own; it is
// valid as long as the Database (or transaction) that created it.
type Table struct {
	name    string
	dialect *Dialect
	exec    sqlx.ExtContext

	// db starts transactions for dialects without RETURNING. nil when the
	// Table already runs inside a transaction.
	db       *sqlx.DB
	recorder *instrumentation.Recorder

	builder sq.StatementBuilderType
}

func newTable(name string, dialect *Dialect, db *sqlx.DB, recorder *instrumentation.Recorder) *Table {
	return &Table{
		name:     name,
		dialect:  dialect,
		exec:     recorder.Wrap(db),
		db:       db,
		recorder: recorder,
		builder:  sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
	}
}

func newTxTable(name string, dialect *Dialect, tx *sqlx.Tx, recorder *instrumentation.Recorder) *Table {
	return &Table{
		name:     name,
		dialect:  dialect,
		exec:     recorder.Wrap(tx),
		recorder: recorder,
		builder:  sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder),
	}
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Insert inserts one row and returns it as stored.
//
// Dialects without RETURNING return fields plus the generated "id" when
// the driver reports one.
func (t *Table) Insert(ctx context.Context, fields Record) (Record, error) {
	if !t.dialect.Returning {
		return t.insertExec(ctx, fields)
	}

	query, args, err := t.insertSQL(fields, "RETURNING *")
	if err != nil {
		return nil, err
	}

	rows, err := t.queryRecords(ctx, t.exec, query, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, t.insertError(nil)
	}
	return rows[0], nil
}

func (t *Table) insertExec(ctx context.Context, fields Record) (Record, error) {
	query, args, err := t.insertSQL(fields, "")
	if err != nil {
		return nil, err
	}

	res, err := t.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, t.insertError(nil)
	}

	inserted := maps.Clone(fields)
	if inserted == nil {
		inserted = Record{}
	}
	if _, ok := inserted["id"]; !ok {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			inserted["id"] = id
		}
	}
	return inserted, nil
}

func (t *Table) insertSQL(fields Record, suffix string) (string, []any, error) {
	table := t.dialect.Quote(t.name)

	if len(fields) == 0 {
		query := "INSERT INTO " + table + " DEFAULT VALUES"
		if !t.dialect.Returning {
			query = "INSERT INTO " + table + " () VALUES ()"
		}
		if suffix != "" {
			query += " " + suffix
		}
		return query, nil, nil
	}

	b := t.builder.Insert(table).SetMap(t.quoteKeys(fields))
	if suffix != "" {
		b = b.Suffix(suffix)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return "", nil, t.insertError(err)
	}
	return query, args, nil
}

func (t *Table) insertError(cause error) error {
	return errs.NewInternalError(fmt.Sprintf("There was an error inserting the record to %s", t.name), cause)
}

// Update sets fields on the rows matching criteria and returns the
// updated rows, or nil when no row matched.
func (t *Table) Update(ctx context.Context, criteria Criteria, fields Record) ([]Record, error) {
	if len(fields) == 0 {
		return nil, errs.NewInvalidInputError(fmt.Sprintf("No fields to update in %s", t.name), "NO_FIELDS", nil, nil)
	}

	b := t.builder.Update(t.dialect.Quote(t.name)).SetMap(t.quoteKeys(fields))
	if w := whereClause(t.dialect, criteria); w != nil {
		b = b.Where(w)
	}

	if t.dialect.Returning {
		query, args, err := b.Suffix("RETURNING *").ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build update for %s: %w", t.name, err)
		}
		return t.queryRecords(ctx, t.exec, query, args)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update for %s: %w", t.name, err)
	}

	var updated []Record
	err = t.atomic(ctx, func(exec sqlx.ExtContext) error {
		rows, err := t.selectLocked(ctx, exec, criteria)
		if err != nil || len(rows) == 0 {
			return err
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return sqlerr.HandleError(err)
		}
		for _, r := range rows {
			maps.Copy(r, fields)
		}
		updated = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Find returns the rows matching criteria, or nil when none matched.
func (t *Table) Find(ctx context.Context, criteria Criteria, opts *Options) ([]Record, error) {
	query, args, err := t.selectSQL(criteria, opts).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select for %s: %w", t.name, err)
	}
	return t.queryRecords(ctx, t.exec, query, args)
}

// FindOne returns the first row matching criteria, or nil.
func (t *Table) FindOne(ctx context.Context, criteria Criteria, opts *Options) (Record, error) {
	rows, err := t.Find(ctx, criteria, opts)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Destroy deletes the rows matching criteria and returns them, or nil when
// none matched.
func (t *Table) Destroy(ctx context.Context, criteria Criteria) ([]Record, error) {
	b := t.builder.Delete(t.dialect.Quote(t.name))
	if w := whereClause(t.dialect, criteria); w != nil {
		b = b.Where(w)
	}

	if t.dialect.Returning {
		query, args, err := b.Suffix("RETURNING *").ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build delete for %s: %w", t.name, err)
		}
		return t.queryRecords(ctx, t.exec, query, args)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build delete for %s: %w", t.name, err)
	}

	var deleted []Record
	err = t.atomic(ctx, func(exec sqlx.ExtContext) error {
		rows, err := t.selectLocked(ctx, exec, criteria)
		if err != nil || len(rows) == 0 {
			return err
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			return sqlerr.HandleError(err)
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// Truncate removes every row.
func (t *Table) Truncate(ctx context.Context) error {
	if _, err := t.exec.ExecContext(ctx, t.dialect.TruncateSQL(t.dialect.Quote(t.name))); err != nil {
		return sqlerr.HandleError(err)
	}
	return nil
}

// Count counts the rows matching criteria. column "" or "*" counts rows,
// any other column counts its non-null values.
func (t *Table) Count(ctx context.Context, criteria Criteria, column string) (int64, error) {
	expr := "COUNT(*)"
	if column != "" && column != "*" {
		expr = "COUNT(" + t.dialect.Quote(column) + ")"
	}

	v, err := t.aggregate(ctx, criteria, expr)
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

// Max returns the largest value of column among the rows matching
// criteria, or nil when no row matched.
func (t *Table) Max(ctx context.Context, criteria Criteria, column string) (any, error) {
	return t.aggregate(ctx, criteria, "MAX("+t.dialect.Quote(column)+")")
}

// Query runs a custom select. build receives SELECT * FROM the table and
// returns the statement to run.
func (t *Table) Query(ctx context.Context, build func(sq.SelectBuilder) sq.SelectBuilder) ([]Record, error) {
	b := t.builder.Select("*").From(t.dialect.Quote(t.name))
	if build != nil {
		b = build(b)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query for %s: %w", t.name, err)
	}
	return t.queryRecords(ctx, t.exec, query, args)
}

// Stream calls fn for every row matching criteria, one row at a time. It
// stops at the first error returned by fn and returns it.
func (t *Table) Stream(ctx context.Context, criteria Criteria, opts *Options, fn func(Record) error) error {
	query, args, err := t.selectSQL(criteria, opts).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build select for %s: %w", t.name, err)
	}

	rows, err := t.exec.QueryxContext(ctx, query, args...)
	if err != nil {
		return sqlerr.HandleError(err)
	}
	defer rows.Close()

	kinds := columnKinds(rows)
	for rows.Next() {
		r := Record{}
		if err := rows.MapScan(r); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", t.name, err)
		}
		if err := fn(normalizeRecord(r, kinds)); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return sqlerr.HandleError(err)
	}
	return nil
}

func (t *Table) selectSQL(criteria Criteria, opts *Options) sq.SelectBuilder {
	columns := []string{"*"}
	if opts != nil && len(opts.Columns) > 0 {
		columns = make([]string, len(opts.Columns))
		for i, c := range opts.Columns {
			columns[i] = t.dialect.Quote(c)
		}
	}

	b := t.builder.Select(columns...).From(t.dialect.Quote(t.name))
	if w := whereClause(t.dialect, criteria); w != nil {
		b = b.Where(w)
	}

	if opts == nil {
		return b
	}
	if column, direction, ok := parseOrder(opts.Order); ok {
		b = b.OrderBy(t.dialect.Quote(column) + " " + direction)
	}
	if opts.Limit > 0 {
		b = b.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		b = b.Offset(opts.Offset)
	}
	return b
}

// selectLocked selects the rows matching criteria for update.
func (t *Table) selectLocked(ctx context.Context, exec sqlx.ExtContext, criteria Criteria) ([]Record, error) {
	query, args, err := t.selectSQL(criteria, nil).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select for %s: %w", t.name, err)
	}
	return t.queryRecords(ctx, exec, query, args)
}

func (t *Table) aggregate(ctx context.Context, criteria Criteria, expr string) (any, error) {
	b := t.builder.Select(expr).From(t.dialect.Quote(t.name))
	if w := whereClause(t.dialect, criteria); w != nil {
		b = b.Where(w)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s for %s: %w", expr, t.name, err)
	}

	var v any
	if err := t.exec.QueryRowxContext(ctx, query, args...).Scan(&v); err != nil {
		return nil, sqlerr.HandleError(err)
	}
	return normalizeValue(v), nil
}

func (t *Table) queryRecords(ctx context.Context, exec sqlx.ExtContext, query string, args []any) ([]Record, error) {
	rows, err := exec.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, sqlerr.HandleError(err)
	}
	defer rows.Close()

	kinds := columnKinds(rows)
	var out []Record
	for rows.Next() {
		r := Record{}
		if err := rows.MapScan(r); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
		}
		out = append(out, normalizeRecord(r, kinds))
	}
	if err := rows.Err(); err != nil {
		return nil, sqlerr.HandleError(err)
	}
	return out, nil
}

// atomic runs fn in a transaction, or directly when the Table already
// belongs to one.
func (t *Table) atomic(ctx context.Context, fn func(sqlx.ExtContext) error) (err error) {
	if t.db == nil {
		return fn(t.exec)
	}

	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// A failed commit already ended the transaction.
	committing := false
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil && !committing {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = multierror.Append(err, fmt.Errorf("failed to roll back transaction: %w", rbErr))
			}
		}
	}()

	if err = fn(t.recorder.Wrap(tx)); err != nil {
		return err
	}
	committing = true
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *Table) quoteKeys(fields Record) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[t.dialect.Quote(k)] = v
	}
	return out
}

type columnKind int

const (
	textColumn columnKind = iota
	integerColumn
	floatColumn
)

// columnKinds returns the integer and floating point columns of a result.
//
// The mysql text protocol, used for statements without arguments, returns
// every value as text, while prepared statements return numbers. The
// column types let both shapes come out the same.
func columnKinds(rows *sqlx.Rows) map[string]columnKind {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil
	}

	var kinds map[string]columnKind
	for _, ct := range types {
		kind := kindOf(ct.DatabaseTypeName())
		if kind == textColumn {
			continue
		}
		if kinds == nil {
			kinds = map[string]columnKind{}
		}
		kinds[ct.Name()] = kind
	}
	return kinds
}

// kindOf classifies a driver type name. DECIMAL and NUMERIC stay text to
// keep their precision.
func kindOf(dbType string) columnKind {
	switch strings.TrimPrefix(strings.ToUpper(dbType), "UNSIGNED ") {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR",
		"INT2", "INT4", "INT8":
		return integerColumn
	case "FLOAT", "DOUBLE", "REAL", "FLOAT4", "FLOAT8":
		return floatColumn
	default:
		return textColumn
	}
}

// normalizeRecord turns driver []byte values into strings, and numeric
// columns returned as text into numbers.
func normalizeRecord(r Record, kinds map[string]columnKind) Record {
	for k, v := range r {
		r[k] = normalizeColumn(normalizeValue(v), kinds[k])
	}
	return r
}

func normalizeColumn(v any, kind columnKind) any {
	s, ok := v.(string)
	if !ok {
		return v
	}

	switch kind {
	case integerColumn:
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u
		}
	case floatColumn:
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return v
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("failed to parse count %q: %w", n, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
