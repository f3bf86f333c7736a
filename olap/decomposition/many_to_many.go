package decomposition

import (
	"fmt"

	"github.com/spf13/cast"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
)

const (
	// ElementOption is the option naming the element column.
	ElementOption = "element"
	// GroupOption is the option naming the group column.
	GroupOption = "group"
	// ScaleOption is the option selecting the scale of a many to many
	// decomposition: duplicate (default) or split.
	ScaleOption = "scale"
)

// ScaleFunc computes the value an element contributes to one of its groups.
// groupCount is the number of groups the value is sent to.
type ScaleFunc func(element, group, value interface{}, groupCount int) (interface{}, error)

// DuplicateScale sends the whole value to every group.
func DuplicateScale(_, _, value interface{}, _ int) (interface{}, error) {
	return value, nil
}

// SplitScale divides the value evenly among the groups.
func SplitScale(_, _, value interface{}, groupCount int) (interface{}, error) {
	if value == nil || groupCount == 0 {
		return value, nil
	}

	f, err := olap.ToFloat64(value)
	if err != nil {
		return nil, err
	}
	return f / float64(groupCount), nil
}

var scales = map[string]ScaleFunc{
	"duplicate": DuplicateScale,
	"split":     SplitScale,
}

// ManyToMany sends the value of an element to every group the element
// belongs to. Filters on the group column are turned into filters on the
// element column for the underlying measure.
type ManyToMany struct {
	ElementColumn string
	GroupColumn   string
	Definition    Definition
	Scale         ScaleFunc
}

var _ plan.Decomposition = (*ManyToMany)(nil)

// NewManyToMany creates a many to many decomposition from its options.
func NewManyToMany(options map[string]interface{}, def Definition) (*ManyToMany, error) {
	element := cast.ToString(options[ElementOption])
	group := cast.ToString(options[GroupOption])

	switch {
	case element == "":
		return nil, olap.ErrInvalidDecompositionOptions.New(ManyToManyKey, "missing "+ElementOption)
	case group == "":
		return nil, olap.ErrInvalidDecompositionOptions.New(ManyToManyKey, "missing "+GroupOption)
	case element == group:
		return nil, olap.ErrInvalidDecompositionOptions.New(
			ManyToManyKey,
			fmt.Sprintf("element and group columns must differ, both are %q", element),
		)
	case def == nil:
		return nil, olap.ErrInvalidDecompositionOptions.New(ManyToManyKey, "missing definition")
	}

	scale := DuplicateScale
	if key, ok := options[ScaleOption]; ok {
		s, ok := scales[cast.ToString(key)]
		if !ok {
			return nil, olap.ErrInvalidDecompositionOptions.New(
				ManyToManyKey,
				fmt.Sprintf("unknown scale %v", key),
			)
		}
		scale = s
	}

	return &ManyToMany{
		ElementColumn: element,
		GroupColumn:   group,
		Definition:    def,
		Scale:         scale,
	}, nil
}

// Decompose implements the plan.Decomposition interface. The value is
// passed through when the slice has no element or the group column is not
// requested.
func (d *ManyToMany) Decompose(slice plan.StepSlice, value interface{}) ([]plan.Contribution, error) {
	element, ok := slice.Get(d.ElementColumn)
	if !ok || element == nil || !slice.Step.GroupBy.Contains(d.GroupColumn) {
		return []plan.Contribution{{Value: value}}, nil
	}

	groups, err := d.Definition.Groups(element)
	if err != nil {
		return nil, err
	}

	matching, err := d.matchingGroups(slice.Step)
	if err != nil {
		return nil, err
	}
	if matching != nil {
		groups = groups.Intersect(matching)
	}

	values := groups.Sorted()
	result := make([]plan.Contribution, 0, len(values))
	for _, g := range values {
		v, err := d.Scale(element, g, value, len(values))
		if err != nil {
			return nil, err
		}

		result = append(result, plan.Contribution{
			Coordinates: map[string]interface{}{d.GroupColumn: g},
			Value:       v,
		})
	}
	return result, nil
}

// matchingGroups returns the groups accepted by the step filter, or nil if
// the filter does not restrict the groups.
func (d *ManyToMany) matchingGroups(step *plan.QueryStep) (*olap.ValueSet, error) {
	if !d.filtersGroup(step.Filter) {
		return nil, nil
	}

	v, err := step.Cache().GetOrCompute(plan.CacheMatchingGroups, func() (interface{}, error) {
		return d.Definition.MatchingGroups(func(group interface{}) (bool, error) {
			return d.groupMatches(group, step.Filter)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*olap.ValueSet), nil
}

func (d *ManyToMany) filtersGroup(f filter.Filter) bool {
	if f == nil {
		return false
	}
	for _, c := range filter.Columns(f) {
		if c == d.GroupColumn {
			return true
		}
	}
	return false
}

// groupMatches tells whether the group is accepted by the filter, ignoring
// clauses on other columns.
func (d *ManyToMany) groupMatches(group interface{}, f filter.Filter) (bool, error) {
	switch f := f.(type) {
	case filter.MatchAllFilter:
		return true, nil
	case filter.MatchNoneFilter:
		return false, nil
	case *filter.NotFilter:
		if d.filtersGroup(f) {
			return false, olap.ErrUnsupportedFilter.New(f)
		}
		return true, nil
	case *filter.ColumnFilter:
		if f.Column != d.GroupColumn {
			return true, nil
		}
		return f.Matcher.Match(group), nil
	case *filter.AndFilter:
		for _, o := range f.Operands {
			ok, err := d.groupMatches(group, o)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *filter.OrFilter:
		for _, o := range f.Operands {
			ok, err := d.groupMatches(group, o)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, olap.ErrUnsupportedFilter.New(f)
	}
}

// UnderlyingSteps implements the plan.Decomposition interface. Clauses on
// the group column are replaced by clauses on the elements of the matching
// groups. When the group column is requested, the element column is
// requested instead.
func (d *ManyToMany) UnderlyingSteps(step *plan.QueryStep) ([]plan.MeasurelessQuery, error) {
	var unsupported filter.Filter
	filter.Inspect(step.Filter, func(f filter.Filter) bool {
		if n, ok := f.(*filter.NotFilter); ok && d.filtersGroup(n) {
			unsupported = n
			return false
		}
		return unsupported == nil
	})
	if unsupported != nil {
		return nil, olap.ErrUnsupportedFilter.New(unsupported)
	}

	f, err := filter.Transform(step.Filter, func(c *filter.ColumnFilter) (filter.Filter, error) {
		if c.Column != d.GroupColumn {
			return c, nil
		}

		elements, err := d.Definition.ElementsMatchingGroups(func(group interface{}) (bool, error) {
			return c.Matcher.Match(group), nil
		})
		if err != nil {
			return nil, err
		}
		return filter.IsIn(d.ElementColumn, elements.Sorted()...), nil
	})
	if err != nil {
		return nil, err
	}

	groupBy := step.GroupBy
	if groupBy.Contains(d.GroupColumn) {
		groupBy = groupBy.Without(d.GroupColumn).With(d.ElementColumn)
	}

	return []plan.MeasurelessQuery{
		plan.NewMeasurelessQuery(f, groupBy, step.CustomMarker),
	}, nil
}
