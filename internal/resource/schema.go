package resource

// Field describes one column of a record as exposed through a table.
// Column is the whitelisted SQL column name; it never comes from user input.
type Field struct {
	Column     string
	Title      string
	Sortable   bool
	Searchable bool
}

// Schema is the capability set shared by every record type exposed through the
// generic table: its table, ordered fields and identity accessor.
type Schema[T any] struct {
	table    string
	fields   []Field
	identity func(T) string
}

// NewSchema describes the record type T stored in table.
func NewSchema[T any](table string, identity func(T) string, fields ...Field) Schema[T] {
	return Schema[T]{
		table:    table,
		fields:   append([]Field(nil), fields...),
		identity: identity,
	}
}

// Table returns the backing table name.
func (s Schema[T]) Table() string {
	return s.table
}

// Fields returns a copy of the ordered field list.
func (s Schema[T]) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Field returns the field at index.
func (s Schema[T]) Field(index int) (Field, bool) {
	if index < 0 || index >= len(s.fields) {
		return Field{}, false
	}
	return s.fields[index], true
}

// SortColumn maps a field index to its column when the field is sortable.
func (s Schema[T]) SortColumn(index int) (string, bool) {
	field, ok := s.Field(index)
	if !ok || !field.Sortable {
		return "", false
	}
	return field.Column, true
}

// SearchColumns lists the columns matched by free-text search.
func (s Schema[T]) SearchColumns() []string {
	columns := make([]string, 0, len(s.fields))
	for _, field := range s.fields {
		if field.Searchable {
			columns = append(columns, field.Column)
		}
	}
	return columns
}

// Identity returns the unique key of record.
func (s Schema[T]) Identity(record T) string {
	if s.identity == nil {
		return ""
	}
	return s.identity(record)
}
