package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCriteriaKey(t *testing.T) {
	tests := []struct {
		key  string
		want []string
	}{
		{key: "id", want: []string{"id"}},
		{key: "id >=", want: []string{"id", ">="}},
		{key: "id>=", want: []string{"id", ">="}},
		{key: "num >", want: []string{"num", ">"}},
		{key: "num <", want: []string{"num", "<"}},
		{key: "num <=", want: []string{"num", "<="}},
		{key: "status <>", want: []string{"status", "<>"}},
		{key: "name =", want: []string{"name", "="}},
		{key: "id !=", want: []string{"id"}},
		{key: "id like", want: []string{"id"}},
		{key: "  padded   >", want: []string{"padded", ">"}},
		{key: "", want: []string{""}},
		{key: "!!", want: []string{"!!"}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, parseCriteriaKey(tt.key))
		})
	}
}

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		sql      string
		args     []any
	}{
		{
			name:     "equality",
			criteria: Criteria{"name": "alice"},
			sql:      `("name" = ?)`,
			args:     []any{"alice"},
		},
		{
			name:     "list becomes IN",
			criteria: Criteria{"id": []int{1, 2, 3}},
			sql:      `("id" IN (?,?,?))`,
			args:     []any{1, 2, 3},
		},
		{
			name:     "nil becomes IS NULL",
			criteria: Criteria{"deleted_at": nil},
			sql:      `("deleted_at" IS NULL)`,
		},
		{
			name:     "greater or equal",
			criteria: Criteria{"id >=": 10},
			sql:      `("id" >= ?)`,
			args:     []any{10},
		},
		{
			name:     "not equal",
			criteria: Criteria{"status <>": "gone"},
			sql:      `("status" <> ?)`,
			args:     []any{"gone"},
		},
		{
			name:     "unknown operator falls back to equality",
			criteria: Criteria{"id !=": 5},
			sql:      `("id" = ?)`,
			args:     []any{5},
		},
		{
			name:     "bytes are a scalar",
			criteria: Criteria{"payload": []byte("raw")},
			sql:      `("payload" = ?)`,
			args:     []any{[]byte("raw")},
		},
		{
			name:     "keys are sorted",
			criteria: Criteria{"name": "bob", "age <": 40, "age >": 18},
			sql:      `("age" < ? AND "age" > ? AND "name" = ?)`,
			args:     []any{40, 18, "bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where := whereClause(postgresDialect, tt.criteria)
			require.NotNil(t, where)

			sql, args, err := where.ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			if tt.args == nil {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.args, args)
			}
		})
	}
}

func TestWhereClause_Empty(t *testing.T) {
	assert.Nil(t, whereClause(postgresDialect, nil))
	assert.Nil(t, whereClause(postgresDialect, Criteria{}))
}

func TestWhereClause_MySQLQuoting(t *testing.T) {
	sql, args, err := whereClause(mysqlDialect, Criteria{"id >=": 1}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(`id` >= ?)", sql)
	assert.Equal(t, []any{1}, args)

	// Only the first word of a key is the column.
	sql, _, err = whereClause(mysqlDialect, Criteria{"users.id": 1}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "(`users` = ?)", sql)
}

func TestParseOrder(t *testing.T) {
	tests := []struct {
		order     string
		column    string
		direction string
		ok        bool
	}{
		{order: "name", column: "name", direction: "ASC", ok: true},
		{order: "name desc", column: "name", direction: "DESC", ok: true},
		{order: "name DESC", column: "name", direction: "DESC", ok: true},
		{order: "  name   asc ", column: "name", direction: "ASC", ok: true},
		{order: "name sideways", column: "name", direction: "ASC", ok: true},
		{order: "", ok: false},
		{order: "   ", ok: false},
		{order: "name desc nulls", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.order, func(t *testing.T) {
			column, direction, ok := parseOrder(tt.order)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.column, column)
			assert.Equal(t, tt.direction, direction)
		})
	}
}

func TestDialectQuote(t *testing.T) {
	assert.Equal(t, `"users"`, postgresDialect.Quote("users"))
	assert.Equal(t, `"public"."users"`, postgresDialect.Quote("public.users"))
	assert.Equal(t, `"we""ird"`, postgresDialect.Quote(`we"ird`))
	assert.Equal(t, "*", postgresDialect.Quote("*"))
	assert.Equal(t, "`users`", mysqlDialect.Quote("users"))
}
