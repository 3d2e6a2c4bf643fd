package resource

// Page holds the rows returned for a requested window and the range they
// actually cover. A page shorter than requested marks the end of the data.
type Page[T any] struct {
	Rows  []T   `json:"rows"`
	Range Range `json:"range"`
}

// NewPage trims rows to the requested window and derives the effective range,
// which always starts at requested.Start.
func NewPage[T any](rows []T, requested Range) Page[T] {
	if limit := requested.Len(); len(rows) > limit {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []T{}
	}
	return Page[T]{
		Rows:  rows,
		Range: Range{Start: requested.Start, End: requested.Start + len(rows)},
	}
}
