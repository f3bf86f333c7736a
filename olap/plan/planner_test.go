package plan

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
)

type swapDecomposition struct {
	from, to string
}

func (d swapDecomposition) Decompose(slice StepSlice, value interface{}) ([]Contribution, error) {
	return []Contribution{{Value: value}}, nil
}

func (d swapDecomposition) UnderlyingSteps(step *QueryStep) ([]MeasurelessQuery, error) {
	if !step.GroupBy.Contains(d.to) {
		return []MeasurelessQuery{step.Query()}, nil
	}
	return []MeasurelessQuery{
		NewMeasurelessQuery(step.Filter, step.GroupBy.Without(d.to).With(d.from), step.CustomMarker),
	}, nil
}

type fakeOperators struct{}

func (fakeOperators) Decomposition(key string, options map[string]interface{}) (Decomposition, error) {
	if key != "swap" {
		return nil, olap.ErrUnknownDecomposition.New(key)
	}
	return swapDecomposition{from: options["element"].(string), to: options["group"].(string)}, nil
}

func scenarioBag() *measure.Bag {
	return measure.NewBag(
		measure.NewAggregator("k1"),
		measure.NewAggregator("k2"),
		measure.NewCombinator("sumK1K2", "sum", "k1", "k2"),
		measure.NewFiltrator("filterK1onA1", "k1", filter.IsEqualTo("a", "a1")),
		&measure.Bucketor{
			Name:            "maxK1K2ByA",
			UnderlyingNames: []string{"k1", "k2"},
			GroupBy:         olap.NewGroupBy("a"),
			AggregationKey:  "max",
		},
		&measure.Columnator{
			Name:            "k1IfB",
			UnderlyingNames: []string{"k1"},
			RequiredColumns: []string{"b"},
		},
		&measure.Dispatchor{
			Name:                 "k1ByGroup",
			Underlying:           "k1",
			DecompositionKey:     "swap",
			DecompositionOptions: map[string]interface{}{"element": "element", "group": "group"},
		},
	)
}

func newTestPlanner() *Planner {
	return NewPlanner(scenarioBag(), fakeOperators{})
}

func TestPlanSharedSteps(t *testing.T) {
	require := require.New(t)

	dag, err := newTestPlanner().Plan(
		olap.NewEmptyContext(),
		[]string{"sumK1K2", "k1"},
		NewMeasurelessQuery(nil, olap.GrandTotal, nil),
		false,
	)
	require.NoError(err)

	require.Len(dag.Roots, 2)
	require.Len(dag.Steps, 3)
	require.True(dag.Roots[1] == dag.Roots[0].Underlyings[0])
	require.Len(dag.Levels, 2)
	require.Len(dag.Leaves(), 2)
	require.Equal(1, dag.Roots[0].Level())

	tqs := dag.TableQueries()
	require.Len(tqs, 1)
	require.Equal([]AggregatorRef{
		{Name: "k1", ColumnName: "k1", AggregationKey: "sum"},
		{Name: "k2", ColumnName: "k2", AggregationKey: "sum"},
	}, tqs[0].Aggregators)

	step, ok := tqs[0].Step("k2")
	require.True(ok)
	require.Equal("k2", step.Measure.MeasureName())
}

func TestPlanFiltrator(t *testing.T) {
	require := require.New(t)

	dag, err := newTestPlanner().Plan(
		olap.NewEmptyContext(),
		[]string{"k1", "filterK1onA1"},
		NewMeasurelessQuery(nil, olap.GrandTotal, nil),
		false,
	)
	require.NoError(err)

	require.Len(dag.Steps, 3)
	filtered := dag.Roots[1].Underlyings[0]
	require.Equal("k1", filtered.Measure.MeasureName())
	require.True(filter.Equal(filter.IsEqualTo("a", "a1"), filtered.Filter))
	require.False(filtered == dag.Roots[0])

	tqs := dag.TableQueries()
	require.Len(tqs, 2)
	require.True(filter.Equal(filter.MatchAll, tqs[0].Filter))
	require.True(filter.Equal(filter.IsEqualTo("a", "a1"), tqs[1].Filter))
}

func TestPlanFiltratorAndsQueryFilter(t *testing.T) {
	require := require.New(t)

	dag, err := newTestPlanner().Plan(
		olap.NewEmptyContext(),
		[]string{"filterK1onA1"},
		NewMeasurelessQuery(filter.IsEqualTo("b", "b1"), olap.GrandTotal, nil),
		false,
	)
	require.NoError(err)

	require.True(filter.Equal(
		filter.And(filter.IsEqualTo("b", "b1"), filter.IsEqualTo("a", "a1")),
		dag.Roots[0].Underlyings[0].Filter,
	))
}

func TestPlanBucketor(t *testing.T) {
	require := require.New(t)

	dag, err := newTestPlanner().Plan(
		olap.NewEmptyContext(),
		[]string{"maxK1K2ByA"},
		NewMeasurelessQuery(nil, olap.NewGroupBy("b"), nil),
		false,
	)
	require.NoError(err)

	root := dag.Roots[0]
	require.True(olap.NewGroupBy("b").Equal(root.GroupBy))
	require.Len(root.Underlyings, 2)
	for _, u := range root.Underlyings {
		require.True(olap.NewGroupBy("a", "b").Equal(u.GroupBy))
	}
}

func TestPlanColumnator(t *testing.T) {
	testCases := []struct {
		name        string
		query       MeasurelessQuery
		underlyings int
	}{
		{"missing column", NewMeasurelessQuery(nil, olap.NewGroupBy("a"), nil), 0},
		{"grouped column", NewMeasurelessQuery(nil, olap.NewGroupBy("b"), nil), 1},
		{"filtered column", NewMeasurelessQuery(filter.IsEqualTo("b", "b1"), olap.GrandTotal, nil), 1},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			dag, err := newTestPlanner().Plan(olap.NewEmptyContext(), []string{"k1IfB"}, tt.query, false)
			require.NoError(err)
			require.Len(dag.Roots[0].Underlyings, tt.underlyings)
			require.Equal(1, dag.Roots[0].Level())
		})
	}
}

func TestPlanDispatchor(t *testing.T) {
	require := require.New(t)

	dag, err := newTestPlanner().Plan(
		olap.NewEmptyContext(),
		[]string{"k1ByGroup"},
		NewMeasurelessQuery(nil, olap.NewGroupBy("group", "a"), nil),
		false,
	)
	require.NoError(err)

	root := dag.Roots[0]
	require.NotNil(root.Decomposition())
	require.Len(root.Underlyings, 1)
	require.True(olap.NewGroupBy("a", "element").Equal(root.Underlyings[0].GroupBy))
}

func TestPlanErrors(t *testing.T) {
	require := require.New(t)

	bag := measure.NewBag(
		measure.NewCombinator("loop", "sum", "k1", "loop"),
		measure.NewAggregator("k1"),
		measure.NewCombinator("broken", "sum", "missing"),
		&measure.Dispatchor{Name: "unknown", Underlying: "k1", DecompositionKey: "nope"},
	)
	p := NewPlanner(bag, fakeOperators{})
	q := NewMeasurelessQuery(nil, olap.GrandTotal, nil)

	_, err := p.Plan(olap.NewEmptyContext(), []string{"loop"}, q, false)
	require.Error(err)
	require.True(olap.ErrCyclicMeasure.Is(err))

	_, err = p.Plan(olap.NewEmptyContext(), []string{"broken"}, q, false)
	require.True(olap.ErrMeasureNotFound.Is(err))

	_, err = p.Plan(olap.NewEmptyContext(), []string{"k3"}, q, false)
	require.True(olap.ErrMeasureNotFound.Is(err))

	_, err = p.Plan(olap.NewEmptyContext(), []string{"unknown"}, q, false)
	require.True(olap.ErrUnknownDecomposition.Is(err))
}

func TestReplanningGivesEqualSteps(t *testing.T) {
	require := require.New(t)

	q := NewMeasurelessQuery(filter.IsIn("a", "a1", "a2"), olap.NewGroupBy("b"), "marker")
	measures := []string{"sumK1K2", "filterK1onA1", "maxK1K2ByA"}

	first, err := newTestPlanner().Plan(olap.NewEmptyContext(), measures, q, false)
	require.NoError(err)
	second, err := newTestPlanner().Plan(olap.NewEmptyContext(), measures, q, false)
	require.NoError(err)

	require.Equal(len(first.Steps), len(second.Steps))
	for i := range first.Steps {
		require.True(first.Steps[i].Equal(second.Steps[i]))
		require.Equal(first.Steps[i].Hash(), second.Steps[i].Hash())
		require.False(first.Steps[i] == second.Steps[i])
	}
}

func TestCustomMarkerPreventsMerge(t *testing.T) {
	require := require.New(t)

	m := measure.NewAggregator("k1")
	s1, err := NewQueryStep(m, NewMeasurelessQuery(nil, olap.GrandTotal, "m1"))
	require.NoError(err)
	s2, err := NewQueryStep(m, NewMeasurelessQuery(nil, olap.GrandTotal, "m2"))
	require.NoError(err)
	s3, err := NewQueryStep(m, NewMeasurelessQuery(filter.MatchAll, olap.GrandTotal, "m1"))
	require.NoError(err)

	require.False(s1.Equal(s2))
	require.True(s1.Equal(s3))
	require.Equal(s1.Hash(), s3.Hash())
}

const expectedDAG = `sumK1K2(filter=MatchAll, groupBy=GroupBy(a))
 ├─ k1(filter=MatchAll, groupBy=GroupBy(a))
 └─ k2(filter=MatchAll, groupBy=GroupBy(a))
`

func TestDAGString(t *testing.T) {
	dag, err := newTestPlanner().Plan(
		olap.NewEmptyContext(),
		[]string{"sumK1K2"},
		NewMeasurelessQuery(nil, olap.NewGroupBy("a"), nil),
		false,
	)
	require.NoError(t, err)
	require.Equal(t, expectedDAG, dag.String())
}

func TestCache(t *testing.T) {
	require := require.New(t)

	c := NewCache()
	_, ok := c.Get(CacheMatchingGroups)
	require.False(ok)

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return "groups", nil
	}

	v, err := c.GetOrCompute(CacheMatchingGroups, compute)
	require.NoError(err)
	require.Equal("groups", v)

	v, err = c.GetOrCompute(CacheMatchingGroups, compute)
	require.NoError(err)
	require.Equal("groups", v)
	require.Equal(1, calls)
}
