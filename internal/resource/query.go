package resource

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRange indicates a row range whose start lies after its end.
var ErrInvalidRange = errors.New("resource: invalid row range")

// Direction is the order applied to a sorted column.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Toggle returns the opposite direction.
func (d Direction) Toggle() Direction {
	if d == Descending {
		return Ascending
	}
	return Descending
}

// SQL returns the ORDER BY keyword for the direction.
func (d Direction) SQL() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

func parseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	default:
		return Ascending, fmt.Errorf("unknown sort direction %q", value)
	}
}

// SortEntry orders rows by the field at Field.
type SortEntry struct {
	Field     int       `json:"field"`
	Direction Direction `json:"direction"`
}

// Sorting lists sort entries by priority; the first entry is the primary key.
type Sorting []SortEntry

// Clone returns an independent copy of the sorting.
func (s Sorting) Clone() Sorting {
	if s == nil {
		return nil
	}
	clone := make(Sorting, len(s))
	copy(clone, s)
	return clone
}

// Priority reports the position and direction of field within the sorting.
func (s Sorting) Priority(field int) (int, Direction, bool) {
	for index, entry := range s {
		if entry.Field == field {
			return index, entry.Direction, true
		}
	}
	return 0, Ascending, false
}

// Promote makes field the primary sort key. A field that was already sorted
// flips its direction; a new field starts ascending. Remaining entries keep
// their relative order behind it.
func (s Sorting) Promote(field int) Sorting {
	direction := Ascending
	promoted := make(Sorting, 0, len(s)+1)
	for _, entry := range s {
		if entry.Field == field {
			direction = entry.Direction.Toggle()
			continue
		}
		promoted = append(promoted, entry)
	}
	return append(Sorting{{Field: field, Direction: direction}}, promoted...)
}

// String encodes the sorting as "field:dir,field:dir".
func (s Sorting) String() string {
	parts := make([]string, 0, len(s))
	for _, entry := range s {
		parts = append(parts, strconv.Itoa(entry.Field)+":"+entry.Direction.String())
	}
	return strings.Join(parts, ",")
}

// ParseSorting decodes the format produced by Sorting.String.
func ParseSorting(value string) (Sorting, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	segments := strings.Split(value, ",")
	sorting := make(Sorting, 0, len(segments))
	for _, segment := range segments {
		fieldText, directionText, _ := strings.Cut(strings.TrimSpace(segment), ":")
		field, err := strconv.Atoi(strings.TrimSpace(fieldText))
		if err != nil || field < 0 {
			return nil, fmt.Errorf("invalid sort field %q", fieldText)
		}
		direction, err := parseDirection(directionText)
		if err != nil {
			return nil, err
		}
		sorting = append(sorting, SortEntry{Field: field, Direction: direction})
	}
	return sorting, nil
}

// Range is a half-open, zero-based window of row positions.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of positions covered by the range.
func (r Range) Len() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Validate rejects negative or inverted ranges.
func (r Range) Validate() error {
	if r.Start < 0 || r.Start > r.End {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Query describes one page request.
type Query struct {
	Sort   Sorting
	Range  Range
	Search string
}
