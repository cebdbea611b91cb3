package querybuilder

import (
	"fmt"
	"strconv"
	"strings"
)

// writer accumulates SQL text and positional ($n) arguments.
type writer struct {
	buf  strings.Builder
	args []any
}

func (w *writer) text(s string) {
	w.buf.WriteString(s)
}

func (w *writer) bind(value any) {
	w.args = append(w.args, value)
	w.buf.WriteString("$")
	w.buf.WriteString(strconv.Itoa(len(w.args)))
}

// expr writes raw SQL replacing each '?' with the next bound argument.
// Extra '?' without a matching argument are kept verbatim.
func (w *writer) expr(raw string, values []any) {
	next := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == '?' && next < len(values) {
			w.bind(values[next])
			next++
			continue
		}
		w.buf.WriteByte(raw[i])
	}
}

type Condition interface {
	write(w *writer) error
}

type compareCondition struct {
	column string
	op     string
	value  any
}

func (c compareCondition) write(w *writer) error {
	w.text(c.column)
	w.text(" ")
	w.text(c.op)
	w.text(" ")
	w.bind(c.value)
	return nil
}

func Eq(column string, value any) Condition  { return compareCondition{column: column, op: "=", value: value} }
func Ne(column string, value any) Condition  { return compareCondition{column: column, op: "<>", value: value} }
func Lt(column string, value any) Condition  { return compareCondition{column: column, op: "<", value: value} }
func Lte(column string, value any) Condition { return compareCondition{column: column, op: "<=", value: value} }
func Gt(column string, value any) Condition  { return compareCondition{column: column, op: ">", value: value} }

type inCondition struct {
	column string
	values []any
}

// In renders "column IN (...)". An empty list renders a false predicate.
func In[T any](column string, values ...T) Condition {
	items := make([]any, 0, len(values))
	for _, v := range values {
		items = append(items, v)
	}
	return inCondition{column: column, values: items}
}

func (c inCondition) write(w *writer) error {
	if len(c.values) == 0 {
		w.text("1=0")
		return nil
	}
	w.text(c.column)
	w.text(" IN (")
	for i, v := range c.values {
		if i > 0 {
			w.text(", ")
		}
		w.bind(v)
	}
	w.text(")")
	return nil
}

type nullCondition struct {
	column string
	not    bool
}

func IsNull(column string) Condition    { return nullCondition{column: column} }
func IsNotNull(column string) Condition { return nullCondition{column: column, not: true} }

func (c nullCondition) write(w *writer) error {
	w.text(c.column)
	if c.not {
		w.text(" IS NOT NULL")
	} else {
		w.text(" IS NULL")
	}
	return nil
}

type exprCondition struct {
	sql  string
	args []any
}

// Expr is a raw predicate using '?' placeholders.
func Expr(sql string, args ...any) Condition {
	return exprCondition{sql: sql, args: args}
}

func (c exprCondition) write(w *writer) error {
	w.expr(c.sql, c.args)
	return nil
}

type subqueryCondition struct {
	column string
	op     string
	query  *SelectBuilder
}

// EqSubquery renders "column = (SELECT ...)" sharing the outer argument list.
func EqSubquery(column string, query *SelectBuilder) Condition {
	return subqueryCondition{column: column, op: "=", query: query}
}

func (c subqueryCondition) write(w *writer) error {
	if c.query == nil {
		return fmt.Errorf("subquery for %s is nil", c.column)
	}
	w.text(c.column)
	w.text(" ")
	w.text(c.op)
	w.text(" (")
	if err := c.query.writeTo(w); err != nil {
		return err
	}
	w.text(")")
	return nil
}

func writeWhere(w *writer, conditions []Condition) error {
	if len(conditions) == 0 {
		return nil
	}
	w.text(" WHERE ")
	for i, c := range conditions {
		if i > 0 {
			w.text(" AND ")
		}
		if err := c.write(w); err != nil {
			return err
		}
	}
	return nil
}

type lockMode int

const (
	lockNone lockMode = iota
	lockForUpdate
	lockForUpdateSkipLocked
)

type SelectBuilder struct {
	columns []string
	table   string
	where   []Condition
	groupBy []string
	orderBy []string
	limit   int
	lock    lockMode
}

func Select(columns ...string) *SelectBuilder {
	return &SelectBuilder{columns: append([]string(nil), columns...)}
}

func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.table = table
	return b
}

func (b *SelectBuilder) Where(conditions ...Condition) *SelectBuilder {
	b.where = append(b.where, conditions...)
	return b
}

func (b *SelectBuilder) GroupBy(parts ...string) *SelectBuilder {
	b.groupBy = append(b.groupBy, parts...)
	return b
}

func (b *SelectBuilder) OrderBy(parts ...string) *SelectBuilder {
	b.orderBy = append(b.orderBy, parts...)
	return b
}

func (b *SelectBuilder) Limit(limit int) *SelectBuilder {
	b.limit = limit
	return b
}

// ForUpdate locks the selected rows until the surrounding transaction ends.
func (b *SelectBuilder) ForUpdate() *SelectBuilder {
	b.lock = lockForUpdate
	return b
}

// ForUpdateSkipLocked locks the selected rows, skipping rows already locked by others.
func (b *SelectBuilder) ForUpdateSkipLocked() *SelectBuilder {
	b.lock = lockForUpdateSkipLocked
	return b
}

func (b *SelectBuilder) ToSQL() (string, []any, error) {
	var w writer
	if err := b.writeTo(&w); err != nil {
		return "", nil, err
	}
	return w.buf.String(), w.args, nil
}

func (b *SelectBuilder) writeTo(w *writer) error {
	if len(b.columns) == 0 {
		return fmt.Errorf("select columns are required")
	}
	if strings.TrimSpace(b.table) == "" {
		return fmt.Errorf("select table is required")
	}

	w.text("SELECT ")
	w.text(strings.Join(b.columns, ", "))
	w.text(" FROM ")
	w.text(b.table)
	if err := writeWhere(w, b.where); err != nil {
		return err
	}
	if len(b.groupBy) > 0 {
		w.text(" GROUP BY ")
		w.text(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		w.text(" ORDER BY ")
		w.text(strings.Join(b.orderBy, ", "))
	}
	if b.limit > 0 {
		w.text(" LIMIT ")
		w.text(strconv.Itoa(b.limit))
	}
	switch b.lock {
	case lockForUpdate:
		w.text(" FOR UPDATE")
	case lockForUpdateSkipLocked:
		w.text(" FOR UPDATE SKIP LOCKED")
	}
	return nil
}

type InsertBuilder struct {
	table     string
	columns   []string
	rows      [][]any
	suffix    string
	returning []string
}

func InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

func (b *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	b.columns = append([]string(nil), columns...)
	return b
}

func (b *InsertBuilder) Values(values ...any) *InsertBuilder {
	b.rows = append(b.rows, append([]any(nil), values...))
	return b
}

// Suffix appends raw SQL such as an ON CONFLICT clause before RETURNING.
func (b *InsertBuilder) Suffix(sql string) *InsertBuilder {
	b.suffix = strings.TrimSpace(sql)
	return b
}

func (b *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	b.returning = append([]string(nil), columns...)
	return b
}

func (b *InsertBuilder) ToSQL() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" {
		return "", nil, fmt.Errorf("insert table is required")
	}
	if len(b.columns) == 0 {
		return "", nil, fmt.Errorf("insert columns are required")
	}
	if len(b.rows) == 0 {
		return "", nil, fmt.Errorf("insert values are required")
	}

	var w writer
	w.text("INSERT INTO ")
	w.text(b.table)
	w.text(" (")
	w.text(strings.Join(b.columns, ", "))
	w.text(") VALUES ")
	for i, row := range b.rows {
		if len(row) != len(b.columns) {
			return "", nil, fmt.Errorf("insert row %d has %d values, expected %d", i, len(row), len(b.columns))
		}
		if i > 0 {
			w.text(", ")
		}
		w.text("(")
		for j, value := range row {
			if j > 0 {
				w.text(", ")
			}
			w.bind(value)
		}
		w.text(")")
	}
	if b.suffix != "" {
		w.text(" ")
		w.text(b.suffix)
	}
	writeReturning(&w, b.returning)

	return w.buf.String(), w.args, nil
}

type assignment struct {
	column string
	value  any
	raw    *exprCondition
}

type UpdateBuilder struct {
	table     string
	sets      []assignment
	where     []Condition
	returning []string
}

func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

func (b *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	b.sets = append(b.sets, assignment{column: column, value: value})
	return b
}

// SetExpr assigns a raw SQL expression using '?' placeholders, e.g. NOW().
func (b *UpdateBuilder) SetExpr(column, sql string, args ...any) *UpdateBuilder {
	b.sets = append(b.sets, assignment{column: column, raw: &exprCondition{sql: sql, args: args}})
	return b
}

func (b *UpdateBuilder) Where(conditions ...Condition) *UpdateBuilder {
	b.where = append(b.where, conditions...)
	return b
}

func (b *UpdateBuilder) Returning(columns ...string) *UpdateBuilder {
	b.returning = append([]string(nil), columns...)
	return b
}

func (b *UpdateBuilder) ToSQL() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" {
		return "", nil, fmt.Errorf("update table is required")
	}
	if len(b.sets) == 0 {
		return "", nil, fmt.Errorf("update sets are required")
	}

	var w writer
	w.text("UPDATE ")
	w.text(b.table)
	w.text(" SET ")
	for i, s := range b.sets {
		if i > 0 {
			w.text(", ")
		}
		w.text(s.column)
		w.text(" = ")
		if s.raw != nil {
			w.expr(s.raw.sql, s.raw.args)
			continue
		}
		w.bind(s.value)
	}
	if err := writeWhere(&w, b.where); err != nil {
		return "", nil, err
	}
	writeReturning(&w, b.returning)

	return w.buf.String(), w.args, nil
}

type DeleteBuilder struct {
	table     string
	where     []Condition
	returning []string
}

func DeleteFrom(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

func (b *DeleteBuilder) Where(conditions ...Condition) *DeleteBuilder {
	b.where = append(b.where, conditions...)
	return b
}

func (b *DeleteBuilder) Returning(columns ...string) *DeleteBuilder {
	b.returning = append([]string(nil), columns...)
	return b
}

// ToSQL refuses to build an unconditional delete.
func (b *DeleteBuilder) ToSQL() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" {
		return "", nil, fmt.Errorf("delete table is required")
	}
	if len(b.where) == 0 {
		return "", nil, fmt.Errorf("delete without where is not allowed")
	}

	var w writer
	w.text("DELETE FROM ")
	w.text(b.table)
	if err := writeWhere(&w, b.where); err != nil {
		return "", nil, err
	}
	writeReturning(&w, b.returning)

	return w.buf.String(), w.args, nil
}

func writeReturning(w *writer, columns []string) {
	if len(columns) == 0 {
		return
	}
	w.text(" RETURNING ")
	w.text(strings.Join(columns, ", "))
}
