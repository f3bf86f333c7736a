package olap

import (
	"fmt"
	"sort"
	"strings"
)

// Slice is an immutable set of coordinates: a mapping from column name to
// value. Columns are kept sorted so that two slices holding the same
// coordinates are identical, whatever the order they were built in.
type Slice struct {
	columns []string
	values  []interface{}
	key     string
}

// EmptySlice returns the slice with no coordinate, aka the grand total.
func EmptySlice() Slice {
	return Slice{}
}

// NewSlice creates a slice from the given coordinates.
func NewSlice(coordinates map[string]interface{}) Slice {
	columns := make([]string, 0, len(coordinates))
	for c := range coordinates {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	values := make([]interface{}, len(columns))
	for i, c := range columns {
		values[i] = Normalize(coordinates[c])
	}

	return newSlice(columns, values)
}

// NewSliceFromPairs creates a slice from column, value pairs.
func NewSliceFromPairs(pairs ...interface{}) Slice {
	if len(pairs)%2 != 0 {
		panic("olap: NewSliceFromPairs expects column, value pairs")
	}

	coordinates := make(map[string]interface{}, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		coordinates[pairs[i].(string)] = pairs[i+1]
	}
	return NewSlice(coordinates)
}

func newSlice(columns []string, values []interface{}) Slice {
	if len(columns) == 0 {
		return Slice{}
	}

	var sb strings.Builder
	for i, c := range columns {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(c)
		sb.WriteByte('=')
		sb.WriteString(ValueKey(values[i]))
	}

	return Slice{columns: columns, values: values, key: sb.String()}
}

// Get returns the coordinate for the given column, and whether the column is
// part of the slice.
func (s Slice) Get(column string) (interface{}, bool) {
	i := sort.SearchStrings(s.columns, column)
	if i < len(s.columns) && s.columns[i] == column {
		return s.values[i], true
	}
	return nil, false
}

// Columns returns the sorted columns of the slice.
func (s Slice) Columns() []string {
	result := make([]string, len(s.columns))
	copy(result, s.columns)
	return result
}

// Len returns the number of coordinates.
func (s Slice) Len() int {
	return len(s.columns)
}

// IsEmpty returns whether the slice has no coordinate.
func (s Slice) IsEmpty() bool {
	return len(s.columns) == 0
}

// Key returns a string identifying the slice: two slices are Equal if and
// only if they have the same key.
func (s Slice) Key() string {
	return s.key
}

// Equal returns whether both slices hold the same coordinates.
func (s Slice) Equal(other Slice) bool {
	return s.key == other.key
}

// Compare orders slices by columns, then by values.
func (s Slice) Compare(other Slice) int {
	for i := 0; i < len(s.columns) && i < len(other.columns); i++ {
		if c := strings.Compare(s.columns[i], other.columns[i]); c != 0 {
			return c
		}
	}
	if c := compareInts(int64(len(s.columns)), int64(len(other.columns))); c != 0 {
		return c
	}

	for i := range s.values {
		if c := Compare(s.values[i], other.values[i]); c != 0 {
			return c
		}
	}
	return 0
}

// With returns a new slice where the given coordinates are added to, or
// replace, the ones of this slice.
func (s Slice) With(delta map[string]interface{}) Slice {
	if len(delta) == 0 {
		return s
	}

	coordinates := s.AsMap()
	for c, v := range delta {
		coordinates[c] = v
	}
	return NewSlice(coordinates)
}

// Project restricts the slice to the columns of the given group by. Every
// grouped column must have a non-null coordinate.
func (s Slice) Project(groupBy GroupBy) (Slice, error) {
	columns := groupBy.Columns()
	values := make([]interface{}, len(columns))
	for i, c := range columns {
		v, ok := s.Get(c)
		if !ok || v == nil {
			return Slice{}, ErrNullCoordinate.New(c, s)
		}
		values[i] = v
	}

	return newSlice(columns, values), nil
}

// AsMap returns the coordinates as a new map.
func (s Slice) AsMap() map[string]interface{} {
	result := make(map[string]interface{}, len(s.columns))
	for i, c := range s.columns {
		result[c] = s.values[i]
	}
	return result
}

// String implements the fmt.Stringer interface.
func (s Slice) String() string {
	parts := make([]string, len(s.columns))
	for i, c := range s.columns {
		parts[i] = fmt.Sprintf("%s=%v", c, s.values[i])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// SortSlices sorts the given slices in Compare order.
func SortSlices(slices []Slice) {
	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].Compare(slices[j]) < 0
	})
}

func sortValues(values []interface{}) {
	sort.SliceStable(values, func(i, j int) bool {
		return Compare(values[i], values[j]) < 0
	})
}
