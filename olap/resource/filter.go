package resource

import (
	"fmt"

	"github.com/spf13/cast"
	"gopkg.in/src-d/go-pivot.v0/internal/similartext"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/matcher"
)

// Filter and matcher types.
const (
	matchAllType  = "matchAll"
	matchNoneType = "matchNone"
	columnType    = "column"
	andType       = "and"
	orType        = "or"
	notType       = "not"

	equalsType    = "equals"
	inType        = "in"
	nullType      = "isNull"
	likeType      = "like"
	comparingType = "comparing"
)

var (
	filterTypes  = []string{matchAllType, matchNoneType, columnType, andType, orType, notType}
	matcherTypes = []string{equalsType, inType, nullType, likeType, comparingType}
)

// MakeFilter creates a filter from its raw definition:
//
//	{type: column, column: a, matcher: {type: equals, operand: a1}}
//	{type: and, filters: [...]}
//	{type: not, filter: {...}}
//
// A column filter may set nullIfAbsent, which defaults to true.
func MakeFilter(raw interface{}) (filter.Filter, error) {
	def, ok := raw.(map[string]interface{})
	if !ok {
		return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("expected a filter, got %T", raw))
	}

	typ, err := requiredString(def, typeKey)
	if err != nil {
		return nil, err
	}

	switch typ {
	case matchAllType:
		return filter.MatchAll, nil
	case matchNoneType:
		return filter.MatchNone, nil
	case columnType:
		column, err := requiredString(def, "column")
		if err != nil {
			return nil, err
		}
		rawMatcher, err := required(def, "matcher")
		if err != nil {
			return nil, err
		}
		m, err := MakeMatcher(rawMatcher)
		if err != nil {
			return nil, err
		}

		f := filter.NewColumn(column, m)
		if v, ok := def["nullIfAbsent"]; ok {
			f = f.WithNullIfAbsent(cast.ToBool(v))
		}
		return f, nil
	case andType, orType:
		rawFilters, err := required(def, "filters")
		if err != nil {
			return nil, err
		}
		list, ok := rawFilters.([]interface{})
		if !ok {
			return nil, olap.ErrInvalidConfiguration.New("filters must be a list")
		}

		operands := make([]filter.Filter, len(list))
		for i, rf := range list {
			if operands[i], err = MakeFilter(rf); err != nil {
				return nil, err
			}
		}
		if typ == andType {
			return filter.And(operands...), nil
		}
		return filter.Or(operands...), nil
	case notType:
		rawFilter, err := required(def, "filter")
		if err != nil {
			return nil, err
		}
		f, err := MakeFilter(rawFilter)
		if err != nil {
			return nil, err
		}
		return filter.Not(f), nil
	default:
		return nil, olap.ErrInvalidConfiguration.New(
			fmt.Sprintf("unknown filter type %q%s", typ, similartext.Find(filterTypes, typ)),
		)
	}
}

// MakeMatcher creates a value matcher from its raw definition.
func MakeMatcher(raw interface{}) (matcher.Matcher, error) {
	def, ok := raw.(map[string]interface{})
	if !ok {
		return nil, olap.ErrInvalidConfiguration.New(fmt.Sprintf("expected a matcher, got %T", raw))
	}

	typ, err := requiredString(def, typeKey)
	if err != nil {
		return nil, err
	}

	switch typ {
	case equalsType:
		operand, err := required(def, "operand")
		if err != nil {
			return nil, err
		}
		return matcher.NewEquals(operand), nil
	case inType:
		raw, err := required(def, "operands")
		if err != nil {
			return nil, err
		}
		operands, ok := raw.([]interface{})
		if !ok {
			return nil, olap.ErrInvalidConfiguration.New("operands must be a list")
		}
		return matcher.NewIn(operands...), nil
	case nullType:
		return matcher.Null{}, nil
	case likeType:
		pattern, err := requiredString(def, "pattern")
		if err != nil {
			return nil, err
		}
		return matcher.NewLike(pattern), nil
	case comparingType:
		operand, err := required(def, "operand")
		if err != nil {
			return nil, err
		}
		m := matcher.NewComparing(
			operand,
			cast.ToBool(def["greaterThan"]),
			cast.ToBool(def["matchIfEqual"]),
		)
		return m.WithMatchIfNull(cast.ToBool(def["matchIfNull"])), nil
	default:
		return nil, olap.ErrInvalidConfiguration.New(
			fmt.Sprintf("unknown matcher type %q%s", typ, similartext.Find(matcherTypes, typ)),
		)
	}
}

// filterDefinition is the inverse of MakeFilter.
func filterDefinition(f filter.Filter) (interface{}, error) {
	switch f := f.(type) {
	case nil:
		return ordered(typeKey, matchAllType), nil
	case filter.MatchAllFilter:
		return ordered(typeKey, matchAllType), nil
	case filter.MatchNoneFilter:
		return ordered(typeKey, matchNoneType), nil
	case *filter.ColumnFilter:
		m, err := matcherDefinition(f.Matcher)
		if err != nil {
			return nil, err
		}
		def := ordered(typeKey, columnType, "column", f.Column, "matcher", m)
		if !f.NullIfAbsent {
			def = append(def, ordered("nullIfAbsent", false)...)
		}
		return def, nil
	case *filter.AndFilter:
		operands, err := filterDefinitions(f.Operands)
		if err != nil {
			return nil, err
		}
		return ordered(typeKey, andType, "filters", operands), nil
	case *filter.OrFilter:
		operands, err := filterDefinitions(f.Operands)
		if err != nil {
			return nil, err
		}
		return ordered(typeKey, orType, "filters", operands), nil
	case *filter.NotFilter:
		operand, err := filterDefinition(f.Operand)
		if err != nil {
			return nil, err
		}
		return ordered(typeKey, notType, "filter", operand), nil
	default:
		return nil, olap.ErrUnsupportedFilter.New(f)
	}
}

func filterDefinitions(filters []filter.Filter) ([]interface{}, error) {
	result := make([]interface{}, len(filters))
	for i, f := range filters {
		var err error
		if result[i], err = filterDefinition(f); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func matcherDefinition(m matcher.Matcher) (interface{}, error) {
	switch m := m.(type) {
	case *matcher.Equals:
		return ordered(typeKey, equalsType, "operand", m.Operand), nil
	case *matcher.In:
		return ordered(typeKey, inType, "operands", m.Operands.Values()), nil
	case matcher.Null:
		return ordered(typeKey, nullType), nil
	case *matcher.Like:
		return ordered(typeKey, likeType, "pattern", m.Pattern), nil
	case *matcher.Comparing:
		return ordered(
			typeKey, comparingType,
			"operand", m.Operand,
			"greaterThan", m.GreaterThan,
			"matchIfEqual", m.MatchIfEqual,
			"matchIfNull", m.MatchIfNull,
		), nil
	default:
		return nil, olap.ErrUnsupportedFilter.New(m)
	}
}
