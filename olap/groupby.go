package olap

import (
	"sort"
	"strings"
)

// GroupBy is an ordered set of columns a query is sliced by.
type GroupBy struct {
	columns []string
}

// GrandTotal is the group by with no column: every row contributes to a
// single slice.
var GrandTotal = GroupBy{}

// NewGroupBy creates a group by on the given columns. Duplicates are
// ignored.
func NewGroupBy(columns ...string) GroupBy {
	if len(columns) == 0 {
		return GrandTotal
	}

	set := make(map[string]struct{}, len(columns))
	result := make([]string, 0, len(columns))
	for _, c := range columns {
		if _, ok := set[c]; ok {
			continue
		}
		set[c] = struct{}{}
		result = append(result, c)
	}
	sort.Strings(result)

	return GroupBy{columns: result}
}

// Columns returns the sorted grouped columns.
func (g GroupBy) Columns() []string {
	result := make([]string, len(g.columns))
	copy(result, g.columns)
	return result
}

// Len returns the number of grouped columns.
func (g GroupBy) Len() int {
	return len(g.columns)
}

// Contains returns whether the column is grouped by.
func (g GroupBy) Contains(column string) bool {
	i := sort.SearchStrings(g.columns, column)
	return i < len(g.columns) && g.columns[i] == column
}

// Union returns a group by on the columns of both group bys.
func (g GroupBy) Union(other GroupBy) GroupBy {
	return NewGroupBy(append(g.Columns(), other.columns...)...)
}

// With returns a group by with the given columns added.
func (g GroupBy) With(columns ...string) GroupBy {
	return NewGroupBy(append(g.Columns(), columns...)...)
}

// Without returns a group by with the given columns removed.
func (g GroupBy) Without(columns ...string) GroupBy {
	removed := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		removed[c] = struct{}{}
	}

	var result []string
	for _, c := range g.columns {
		if _, ok := removed[c]; !ok {
			result = append(result, c)
		}
	}
	return NewGroupBy(result...)
}

// Equal returns whether both group bys have the same columns.
func (g GroupBy) Equal(other GroupBy) bool {
	if len(g.columns) != len(other.columns) {
		return false
	}
	for i := range g.columns {
		if g.columns[i] != other.columns[i] {
			return false
		}
	}
	return true
}

// String implements the fmt.Stringer interface.
func (g GroupBy) String() string {
	if len(g.columns) == 0 {
		return "GrandTotal"
	}
	return "GroupBy(" + strings.Join(g.columns, ", ") + ")"
}
