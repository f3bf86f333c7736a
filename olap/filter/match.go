package filter

import (
	"sort"

	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/matcher"
)

// Row gives access to the values of a row by column. olap.Slice is a Row.
type Row interface {
	Get(column string) (interface{}, bool)
}

// MapRow is a Row backed by a map.
type MapRow map[string]interface{}

// Get implements the Row interface.
func (r MapRow) Get(column string) (interface{}, bool) {
	v, ok := r[column]
	return v, ok
}

var _ Row = MapRow(nil)
var _ Row = olap.Slice{}

// Match returns whether the row is accepted by the filter. And and Or
// operands are evaluated left to right, stopping as soon as the result is
// known.
func Match(f Filter, row Row) (bool, error) {
	switch f := f.(type) {
	case MatchAllFilter:
		return true, nil
	case MatchNoneFilter:
		return false, nil
	case *ColumnFilter:
		v, ok := row.Get(f.Column)
		if !ok && !f.NullIfAbsent {
			return false, nil
		}
		return f.Matcher.Match(v), nil
	case *AndFilter:
		for _, o := range f.Operands {
			ok, err := Match(o, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *OrFilter:
		for _, o := range f.Operands {
			ok, err := Match(o, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *NotFilter:
		ok, err := Match(f.Operand, row)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, olap.ErrUnsupportedFilter.New(f)
	}
}

// Columns returns the sorted columns referenced by the filter.
func Columns(f Filter) []string {
	set := make(map[string]struct{})
	Inspect(f, func(f Filter) bool {
		if c, ok := f.(*ColumnFilter); ok {
			set[c.Column] = struct{}{}
		}
		return true
	})

	result := make([]string, 0, len(set))
	for c := range set {
		result = append(result, c)
	}
	sort.Strings(result)
	return result
}

// Inspect traverses the filter in depth-first order, calling fn for each
// node. Children are not visited when fn returns false.
func Inspect(f Filter, fn func(Filter) bool) {
	if f == nil || !fn(f) {
		return
	}

	switch f := f.(type) {
	case *AndFilter:
		for _, o := range f.Operands {
			Inspect(o, fn)
		}
	case *OrFilter:
		for _, o := range f.Operands {
			Inspect(o, fn)
		}
	case *NotFilter:
		Inspect(f.Operand, fn)
	}
}

// Equal returns whether both filters have the same structure.
func Equal(a, b Filter) bool {
	switch a := a.(type) {
	case MatchAllFilter:
		_, ok := b.(MatchAllFilter)
		return ok
	case MatchNoneFilter:
		_, ok := b.(MatchNoneFilter)
		return ok
	case *ColumnFilter:
		b, ok := b.(*ColumnFilter)
		return ok &&
			a.Column == b.Column &&
			a.NullIfAbsent == b.NullIfAbsent &&
			matcher.Equal(a.Matcher, b.Matcher)
	case *AndFilter:
		b, ok := b.(*AndFilter)
		return ok && equalOperands(a.Operands, b.Operands)
	case *OrFilter:
		b, ok := b.(*OrFilter)
		return ok && equalOperands(a.Operands, b.Operands)
	case *NotFilter:
		b, ok := b.(*NotFilter)
		return ok && Equal(a.Operand, b.Operand)
	default:
		return false
	}
}

func equalOperands(a, b []Filter) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// TransformFunc rewrites a column filter.
type TransformFunc func(*ColumnFilter) (Filter, error)

// Transform rewrites every column filter of f with fn, rebuilding And, Or
// and Not nodes with their constructors.
func Transform(f Filter, fn TransformFunc) (Filter, error) {
	switch f := f.(type) {
	case MatchAllFilter, MatchNoneFilter:
		return f, nil
	case *ColumnFilter:
		return fn(f)
	case *AndFilter:
		operands, err := transformOperands(f.Operands, fn)
		if err != nil {
			return nil, err
		}
		return And(operands...), nil
	case *OrFilter:
		operands, err := transformOperands(f.Operands, fn)
		if err != nil {
			return nil, err
		}
		return Or(operands...), nil
	case *NotFilter:
		operand, err := Transform(f.Operand, fn)
		if err != nil {
			return nil, err
		}
		return Not(operand), nil
	default:
		return nil, olap.ErrUnsupportedFilter.New(f)
	}
}

func transformOperands(operands []Filter, fn TransformFunc) ([]Filter, error) {
	result := make([]Filter, len(operands))
	for i, o := range operands {
		t, err := Transform(o, fn)
		if err != nil {
			return nil, err
		}
		result[i] = t
	}
	return result, nil
}
