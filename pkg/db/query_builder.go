package db

import (
	"fmt"
	"reflect"
	"strings"
)

// SQL SELECT Builder
// Assembles the parameterized SELECT statements the loader runs: a column
// list, inner joins, AND-ed predicates, grouping, ordering and paging.
//
// SECURITY WARNING:
// Table names, column names, join conditions and raw fragments are written
// into the statement verbatim. They must come from code, never from request
// input. Request input travels only as bound values.
//
// Example - SAFE:
//   db.NewBuilder("blorg_post").Select("blorg_post.id").Where("blorg_post.shortname", Equal, slug)
//
// Example - UNSAFE (DO NOT DO THIS):
//   db.NewBuilder("blorg_post").WhereRaw("shortname = '" + slug + "'")

// Operator is a comparison rendered by Where
type Operator string

const (
	Equal  Operator = "="
	In     Operator = "IN"
	IsNull Operator = "IS NULL"
)

// Condition compares a column with a bound value
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// RawCondition is a trusted SQL fragment with its own placeholders.
// It is always wrapped in parentheses when rendered.
type RawCondition struct {
	SQL  string
	Args []interface{}
}

// predicate is a WHERE term; all terms are AND-ed
type predicate interface {
	render() (string, []interface{})
}

type join struct {
	table     string
	condition string
}

// Builder assembles one SELECT statement
type Builder struct {
	table      string
	selectCols []string
	selectArgs []interface{}
	joins      []join
	where      []predicate
	groupBy    []string
	orderBy    []string
	limit      int
	offset     int
}

// NewBuilder starts a SELECT * over table
// SECURITY: table must be a trusted identifier.
func NewBuilder(table string) *Builder {
	return &Builder{
		table:      table,
		selectCols: []string{"*"},
	}
}

// Select replaces the selected columns
// SECURITY: column names are not escaped.
func (b *Builder) Select(cols ...string) *Builder {
	b.selectCols = cols
	b.selectArgs = nil
	return b
}

// SelectExpr appends a select expression carrying its own bound arguments.
// A builder still selecting the default "*" has it replaced.
func (b *Builder) SelectExpr(expr string, args ...interface{}) *Builder {
	if len(b.selectCols) == 1 && b.selectCols[0] == "*" {
		b.selectCols = nil
	}
	b.selectCols = append(b.selectCols, expr)
	b.selectArgs = append(b.selectArgs, args...)
	return b
}

// Where adds a column comparison. value is always bound.
func (b *Builder) Where(field string, operator Operator, value interface{}) *Builder {
	b.where = append(b.where, Condition{Field: field, Operator: operator, Value: value})
	return b
}

// WhereNullable adds a NULL-aware equality: "field IS NULL" when value is
// nil, "field = ?" otherwise.
func (b *Builder) WhereNullable(field string, value *int64) *Builder {
	if value == nil {
		return b.Where(field, IsNull, nil)
	}
	return b.Where(field, Equal, *value)
}

// WhereRaw adds a trusted SQL fragment. Empty fragments are ignored.
// SECURITY: the fragment is NOT escaped; pass user input via args only.
func (b *Builder) WhereRaw(fragment string, args ...interface{}) *Builder {
	if strings.TrimSpace(fragment) == "" {
		return b
	}
	b.where = append(b.where, RawCondition{SQL: fragment, Args: args})
	return b
}

// InnerJoin adds an INNER JOIN
func (b *Builder) InnerJoin(table, condition string) *Builder {
	b.joins = append(b.joins, join{table: table, condition: condition})
	return b
}

// GroupBy adds GROUP BY columns
func (b *Builder) GroupBy(columns ...string) *Builder {
	b.groupBy = append(b.groupBy, columns...)
	return b
}

// OrderByRaw appends a trusted ORDER BY fragment such as "publish_date desc, id".
// Empty fragments are ignored.
func (b *Builder) OrderByRaw(fragment string) *Builder {
	if strings.TrimSpace(fragment) == "" {
		return b
	}
	b.orderBy = append(b.orderBy, fragment)
	return b
}

// Limit sets the LIMIT clause. Negative values mean no limit.
func (b *Builder) Limit(limit int) *Builder {
	b.limit = max(limit, 0)
	return b
}

// Offset sets the OFFSET clause, rendered only together with a limit.
// Negative values mean no offset.
func (b *Builder) Offset(offset int) *Builder {
	b.offset = max(offset, 0)
	return b
}

// BuildSelect renders the statement and its arguments in placeholder order
func (b *Builder) BuildSelect() (string, []interface{}) {
	var query strings.Builder
	args := append([]interface{}(nil), b.selectArgs...)

	query.WriteString("SELECT ")
	query.WriteString(strings.Join(b.selectCols, ", "))
	query.WriteString(" FROM ")
	query.WriteString(b.table)

	for _, j := range b.joins {
		fmt.Fprintf(&query, " INNER JOIN %s ON %s", j.table, j.condition)
	}

	if len(b.where) > 0 {
		terms := make([]string, len(b.where))
		for i, p := range b.where {
			sql, pArgs := p.render()
			terms[i] = sql
			args = append(args, pArgs...)
		}
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(terms, " AND "))
	}

	if len(b.groupBy) > 0 {
		query.WriteString(" GROUP BY ")
		query.WriteString(strings.Join(b.groupBy, ", "))
	}
	if len(b.orderBy) > 0 {
		query.WriteString(" ORDER BY ")
		query.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.limit > 0 {
		fmt.Fprintf(&query, " LIMIT %d", b.limit)
		if b.offset > 0 {
			fmt.Fprintf(&query, " OFFSET %d", b.offset)
		}
	}

	return query.String(), args
}

func (c RawCondition) render() (string, []interface{}) {
	return "(" + c.SQL + ")", c.Args
}

func (c Condition) render() (string, []interface{}) {
	switch c.Operator {
	case IsNull:
		return c.Field + " IS NULL", nil
	case In:
		return c.renderIn()
	default:
		return fmt.Sprintf("%s %s ?", c.Field, c.Operator), []interface{}{c.Value}
	}
}

// renderIn expands a slice into one placeholder per element. An empty or
// nil slice matches nothing.
func (c Condition) renderIn() (string, []interface{}) {
	if c.Value == nil {
		return "1 = 0", nil
	}
	v := reflect.ValueOf(c.Value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return c.Field + " IN (?)", []interface{}{c.Value}
	}
	if v.Len() == 0 {
		return "1 = 0", nil
	}

	placeholders := make([]string, v.Len())
	args := make([]interface{}, v.Len())
	for i := range placeholders {
		placeholders[i] = "?"
		args[i] = v.Index(i).Interface()
	}
	return fmt.Sprintf("%s IN (%s)", c.Field, strings.Join(placeholders, ", ")), args
}
