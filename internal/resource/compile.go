package resource

import (
	"fmt"
	"strings"
)

const likeEscape = `\`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Statement is a compiled page request. Filter and Order only ever contain
// whitelisted column names and placeholders; every user supplied value lives in
// FilterArgs, Limit or Offset.
type Statement struct {
	Filter     string
	FilterArgs []any
	Order      string
	Limit      int
	Offset     int
}

// Compile turns q into a parameterized statement for schema. Sort entries that
// reference unknown or non-sortable fields are dropped. It fails only when the
// requested range is inverted.
func Compile[T any](schema Schema[T], q Query) (Statement, error) {
	if err := q.Range.Validate(); err != nil {
		return Statement{}, err
	}
	filter, args := compileFilter(schema.SearchColumns(), q.Search)
	return Statement{
		Filter:     filter,
		FilterArgs: args,
		Order:      compileOrder(schema, q.Sort),
		Limit:      q.Range.Len(),
		Offset:     q.Range.Start,
	}, nil
}

// CompileCount builds the filter used to count rows matching search.
func CompileCount[T any](schema Schema[T], search string) Statement {
	filter, args := compileFilter(schema.SearchColumns(), search)
	return Statement{Filter: filter, FilterArgs: args}
}

// SelectSQL renders the full SELECT for table with its bound arguments.
func (s Statement) SelectSQL(table string) (string, []any) {
	var builder strings.Builder
	builder.WriteString("SELECT * FROM ")
	builder.WriteString(table)
	if s.Filter != "" {
		builder.WriteString(" WHERE ")
		builder.WriteString(s.Filter)
	}
	if s.Order != "" {
		builder.WriteString(" ORDER BY ")
		builder.WriteString(s.Order)
	}
	builder.WriteString(" LIMIT ? OFFSET ?")

	args := make([]any, 0, len(s.FilterArgs)+2)
	args = append(args, s.FilterArgs...)
	args = append(args, int64(s.Limit), int64(s.Offset))
	return builder.String(), args
}

// CountSQL renders a COUNT over table honouring only the filter.
func (s Statement) CountSQL(table string) (string, []any) {
	text := "SELECT COUNT(*) FROM " + table
	if s.Filter != "" {
		text += " WHERE " + s.Filter
	}
	return text, append([]any(nil), s.FilterArgs...)
}

func compileFilter(columns []string, search string) (string, []any) {
	if search == "" || len(columns) == 0 {
		return "", nil
	}
	pattern := "%" + likeEscaper.Replace(search) + "%"
	predicates := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns))
	for _, column := range columns {
		predicates = append(predicates, fmt.Sprintf("LOWER(%s) LIKE LOWER(?) ESCAPE '%s'", column, likeEscape))
		args = append(args, pattern)
	}
	return "(" + strings.Join(predicates, " OR ") + ")", args
}

func compileOrder[T any](schema Schema[T], sorting Sorting) string {
	clauses := make([]string, 0, len(sorting))
	seen := make(map[int]struct{}, len(sorting))
	for _, entry := range sorting {
		if _, duplicate := seen[entry.Field]; duplicate {
			continue
		}
		column, ok := schema.SortColumn(entry.Field)
		if !ok {
			continue
		}
		seen[entry.Field] = struct{}{}
		clauses = append(clauses, column+" "+entry.Direction.SQL())
	}
	return strings.Join(clauses, ", ")
}
