package database

import (
	"regexp"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Record is a row passed to and from the database, keyed by column name.
type Record map[string]any

// Criteria filters the rows an operation applies to.
//
// Keys are a column name optionally followed by a comparison operator:
//
//	Criteria{"name": "alice"}       name = 'alice'
//	Criteria{"id": []int{1, 2}}     id IN (1, 2)
//	Criteria{"deleted_at": nil}     deleted_at IS NULL
//	Criteria{"id >=": 10}           id >= 10
//	Criteria{"status <>": "gone"}   status <> 'gone'
//
// Supported operators are =, <>, >, >=, < and <=. Keys with any other
// operator fall back to equality on the column name. Multiple keys are
// AND-ed.
//
// The column is the first word of the key, so qualified names are not
// supported: "users.id" compares the column users. Use Table.Query for
// anything the grammar cannot express.
type Criteria map[string]any

// Options shape the rows returned by Find, FindOne and Stream.
type Options struct {
	// Order is "column" (ascending) or "column direction", e.g. "name desc".
	// Anything with zero or more than two fields is ignored.
	Order string

	// Columns restricts the selected columns. Empty selects *.
	Columns []string

	Limit  uint64
	Offset uint64
}

var conditionPattern = regexp.MustCompile(`(\w+)\s*(<>|>=|<=|>|<|=)?`)

// parseCriteriaKey splits a criteria key into the column name and, when
// present, the comparison operator.
//
//	"id"     -> [id]
//	"id >="  -> [id >=]
//	"id !="  -> [id]
//	""       -> [""]
func parseCriteriaKey(key string) []string {
	m := conditionPattern.FindStringSubmatch(key)
	if m == nil {
		return []string{key}
	}
	if m[2] == "" {
		return []string{m[1]}
	}
	return []string{m[1], m[2]}
}

// condition renders one criteria entry against a quoted column.
func condition(column string, parts []string, value any) sq.Sqlizer {
	op := "="
	if len(parts) == 2 {
		op = parts[1]
	}

	// squirrel treats every slice as a list, []byte included.
	if b, ok := value.([]byte); ok {
		return sq.Expr(column+" "+op+" ?", b)
	}

	switch op {
	case "<>":
		return sq.NotEq{column: value}
	case ">":
		return sq.Gt{column: value}
	case ">=":
		return sq.GtOrEq{column: value}
	case "<":
		return sq.Lt{column: value}
	case "<=":
		return sq.LtOrEq{column: value}
	default:
		// Slices render as IN (...) and nil as IS NULL.
		return sq.Eq{column: value}
	}
}

// whereClause converts criteria into a single AND-ed condition. Keys are
// applied in sorted order. It returns nil for empty criteria.
func whereClause(d *Dialect, criteria Criteria) sq.Sqlizer {
	if len(criteria) == 0 {
		return nil
	}

	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	and := make(sq.And, 0, len(keys))
	for _, k := range keys {
		parts := parseCriteriaKey(k)
		column := parts[0]
		if column != "" {
			column = d.Quote(column)
		}
		and = append(and, condition(column, parts, criteria[k]))
	}
	return and
}

// parseOrder splits an order string into a column and a direction.
// ok is false when the string does not hold one or two fields.
func parseOrder(order string) (column, direction string, ok bool) {
	fields := strings.Fields(order)
	switch len(fields) {
	case 1:
		return fields[0], "ASC", true
	case 2:
		if strings.EqualFold(fields[1], "desc") {
			return fields[0], "DESC", true
		}
		return fields[0], "ASC", true
	default:
		return "", "", false
	}
}
