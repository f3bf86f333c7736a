package filter

import (
	"fmt"
	"strings"

	"gopkg.in/src-d/go-pivot.v0/olap/matcher"
)

// Filter is an immutable predicate over rows. Variants are MatchAll,
// MatchNone, *ColumnFilter, *AndFilter, *OrFilter and *NotFilter.
type Filter interface {
	fmt.Stringer
	// IsMatchAll returns whether the filter accepts every row.
	IsMatchAll() bool
	// IsMatchNone returns whether the filter rejects every row.
	IsMatchNone() bool
	filter()
}

// MatchAllFilter accepts every row.
type MatchAllFilter struct{}

// MatchAll is the filter accepting every row.
var MatchAll Filter = MatchAllFilter{}

// IsMatchAll implements the Filter interface.
func (MatchAllFilter) IsMatchAll() bool { return true }

// IsMatchNone implements the Filter interface.
func (MatchAllFilter) IsMatchNone() bool { return false }

func (MatchAllFilter) String() string { return "MatchAll" }

func (MatchAllFilter) filter() {}

// MatchNoneFilter rejects every row.
type MatchNoneFilter struct{}

// MatchNone is the filter rejecting every row.
var MatchNone Filter = MatchNoneFilter{}

// IsMatchAll implements the Filter interface.
func (MatchNoneFilter) IsMatchAll() bool { return false }

// IsMatchNone implements the Filter interface.
func (MatchNoneFilter) IsMatchNone() bool { return true }

func (MatchNoneFilter) String() string { return "MatchNone" }

func (MatchNoneFilter) filter() {}

// ColumnFilter matches the value of a single column. When the column is
// absent from the row, it is matched as nil if NullIfAbsent is set, and
// rejected otherwise.
type ColumnFilter struct {
	Column       string
	Matcher      matcher.Matcher
	NullIfAbsent bool
}

// NewColumn creates a filter matching the given column. NullIfAbsent
// defaults to true.
func NewColumn(column string, m matcher.Matcher) *ColumnFilter {
	return &ColumnFilter{Column: column, Matcher: m, NullIfAbsent: true}
}

// WithNullIfAbsent returns a copy of the filter with the given absent
// column handling.
func (f *ColumnFilter) WithNullIfAbsent(nullIfAbsent bool) *ColumnFilter {
	nf := *f
	nf.NullIfAbsent = nullIfAbsent
	return &nf
}

// IsMatchAll implements the Filter interface.
func (*ColumnFilter) IsMatchAll() bool { return false }

// IsMatchNone implements the Filter interface.
func (*ColumnFilter) IsMatchNone() bool { return false }

func (f *ColumnFilter) String() string {
	s := f.Column + " " + f.Matcher.String()
	if !f.NullIfAbsent {
		s += " IF PRESENT"
	}
	return s
}

func (*ColumnFilter) filter() {}

// AndFilter accepts rows accepted by all of its operands.
type AndFilter struct {
	Operands []Filter
}

// And returns a filter accepting rows accepted by all the given filters.
// A single filter is returned unchanged. Otherwise MatchAll operands are
// ignored, nested AndFilters are flattened and a MatchNone operand gives
// MatchNone. With no operand left, the result is MatchAll.
func And(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}

	var operands []Filter
	for _, f := range filters {
		switch f := f.(type) {
		case *AndFilter:
			operands = append(operands, f.Operands...)
		case MatchNoneFilter:
			return MatchNone
		default:
			if f.IsMatchAll() {
				continue
			}
			operands = append(operands, f)
		}
	}

	switch len(operands) {
	case 0:
		return MatchAll
	case 1:
		return operands[0]
	default:
		return &AndFilter{Operands: operands}
	}
}

// IsMatchAll implements the Filter interface.
func (f *AndFilter) IsMatchAll() bool {
	for _, o := range f.Operands {
		if !o.IsMatchAll() {
			return false
		}
	}
	return true
}

// IsMatchNone implements the Filter interface.
func (f *AndFilter) IsMatchNone() bool {
	for _, o := range f.Operands {
		if o.IsMatchNone() {
			return true
		}
	}
	return false
}

func (f *AndFilter) String() string {
	return joinOperands(f.Operands, " AND ")
}

func (*AndFilter) filter() {}

// OrFilter accepts rows accepted by any of its operands. An OrFilter with
// no operand accepts no row.
type OrFilter struct {
	Operands []Filter
}

// Or returns a filter accepting rows accepted by any of the given filters.
// A single filter is returned unchanged. Otherwise MatchNone operands are
// ignored, nested OrFilters are flattened and a MatchAll operand gives
// MatchAll. With no operand left, the result is MatchNone.
func Or(filters ...Filter) Filter {
	if len(filters) == 1 {
		return filters[0]
	}

	var operands []Filter
	for _, f := range filters {
		switch f := f.(type) {
		case *OrFilter:
			operands = append(operands, f.Operands...)
		case MatchAllFilter:
			return MatchAll
		default:
			if f.IsMatchNone() {
				continue
			}
			operands = append(operands, f)
		}
	}

	switch len(operands) {
	case 0:
		return MatchNone
	case 1:
		return operands[0]
	default:
		return &OrFilter{Operands: operands}
	}
}

// IsMatchAll implements the Filter interface.
func (f *OrFilter) IsMatchAll() bool {
	for _, o := range f.Operands {
		if o.IsMatchAll() {
			return true
		}
	}
	return false
}

// IsMatchNone implements the Filter interface.
func (f *OrFilter) IsMatchNone() bool {
	for _, o := range f.Operands {
		if !o.IsMatchNone() {
			return false
		}
	}
	return true
}

func (f *OrFilter) String() string {
	return joinOperands(f.Operands, " OR ")
}

func (*OrFilter) filter() {}

// NotFilter accepts rows rejected by its operand.
type NotFilter struct {
	Operand Filter
}

// Not returns the negation of the given filter.
func Not(f Filter) Filter {
	switch {
	case f.IsMatchAll():
		return MatchNone
	case f.IsMatchNone():
		return MatchAll
	}

	if n, ok := f.(*NotFilter); ok {
		return n.Operand
	}
	return &NotFilter{Operand: f}
}

// IsMatchAll implements the Filter interface.
func (f *NotFilter) IsMatchAll() bool { return f.Operand.IsMatchNone() }

// IsMatchNone implements the Filter interface.
func (f *NotFilter) IsMatchNone() bool { return f.Operand.IsMatchAll() }

func (f *NotFilter) String() string {
	return fmt.Sprintf("NOT(%s)", f.Operand)
}

func (*NotFilter) filter() {}

func joinOperands(operands []Filter, sep string) string {
	parts := make([]string, len(operands))
	for i, o := range operands {
		parts[i] = o.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

// IsEqualTo returns a filter accepting rows where the column equals the
// value. A nil value gives an IsNull filter.
func IsEqualTo(column string, value interface{}) Filter {
	if value == nil {
		return IsNull(column)
	}
	return NewColumn(column, matcher.NewEquals(value))
}

// IsIn returns a filter accepting rows where the column equals any of the
// values. With no value, no row is accepted.
func IsIn(column string, values ...interface{}) Filter {
	switch len(values) {
	case 0:
		return MatchNone
	case 1:
		return IsEqualTo(column, values[0])
	default:
		return NewColumn(column, matcher.NewIn(values...))
	}
}

// IsNull returns a filter accepting rows where the column is null or
// absent.
func IsNull(column string) Filter {
	return NewColumn(column, matcher.Null{})
}

// IsLike returns a filter accepting rows where the column matches the
// given LIKE pattern.
func IsLike(column, pattern string) Filter {
	return NewColumn(column, matcher.NewLike(pattern))
}

// IsDistinctFrom returns a filter accepting rows where the column is not
// equal to the value.
func IsDistinctFrom(column string, value interface{}) Filter {
	return Not(IsEqualTo(column, value))
}

// IsGreaterThan returns a filter accepting rows where the column is greater
// than the value, or equal to it if orEqual is set.
func IsGreaterThan(column string, value interface{}, orEqual bool) Filter {
	return NewColumn(column, matcher.GreaterThan(value, orEqual))
}

// IsLessThan returns a filter accepting rows where the column is lower
// than the value, or equal to it if orEqual is set.
func IsLessThan(column string, value interface{}, orEqual bool) Filter {
	return NewColumn(column, matcher.LessThan(value, orEqual))
}
