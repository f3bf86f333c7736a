package decomposition

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
)

func testDefinition() *InMemoryDefinition {
	def := NewInMemoryDefinition()
	def.Put("FR", "G8", "G20")
	def.Put("US", "G8", "G20", "NATO")
	def.Put("CH")
	return def
}

func newManyToMany(t *testing.T, def Definition, options map[string]interface{}) *ManyToMany {
	if options == nil {
		options = map[string]interface{}{"element": "element", "group": "group"}
	}
	d, err := NewManyToMany(options, def)
	require.NoError(t, err)
	return d
}

func dispatchorStep(t *testing.T, f filter.Filter, groupBy olap.GroupBy) *plan.QueryStep {
	m := &measure.Dispatchor{
		Name:             "d",
		Underlying:       "k1",
		DecompositionKey: ManyToManyKey,
	}
	step, err := plan.NewQueryStep(m, plan.NewMeasurelessQuery(f, groupBy, nil))
	require.NoError(t, err)
	return step
}

func TestNewManyToManyOptions(t *testing.T) {
	testCases := []struct {
		name    string
		options map[string]interface{}
	}{
		{"missing element", map[string]interface{}{"group": "group"}},
		{"missing group", map[string]interface{}{"element": "element"}},
		{"same columns", map[string]interface{}{"element": "c", "group": "c"}},
		{"unknown scale", map[string]interface{}{"element": "e", "group": "g", "scale": "triple"}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManyToMany(tt.options, NewInMemoryDefinition())
			require.Error(t, err)
			require.True(t, olap.ErrInvalidDecompositionOptions.Is(err))
		})
	}

	_, err := NewManyToMany(map[string]interface{}{"element": "e", "group": "g"}, nil)
	require.True(t, olap.ErrInvalidDecompositionOptions.Is(err))
}

func TestManyToManyDecomposeDuplicates(t *testing.T) {
	require := require.New(t)

	d := newManyToMany(t, testDefinition(), nil)
	step := dispatchorStep(t, nil, olap.NewGroupBy("group"))
	slice := plan.NewStepSlice(olap.NewSliceFromPairs("element", "FR"), step)

	result, err := d.Decompose(slice, 200)
	require.NoError(err)
	require.Equal([]plan.Contribution{
		{Coordinates: map[string]interface{}{"group": "G20"}, Value: 200},
		{Coordinates: map[string]interface{}{"group": "G8"}, Value: 200},
	}, result)
}

func TestManyToManyDecomposeSplit(t *testing.T) {
	require := require.New(t)

	d := newManyToMany(t, testDefinition(), map[string]interface{}{
		"element": "element",
		"group":   "group",
		"scale":   "split",
	})
	step := dispatchorStep(t, nil, olap.NewGroupBy("group"))

	result, err := d.Decompose(plan.NewStepSlice(olap.NewSliceFromPairs("element", "FR"), step), 200)
	require.NoError(err)
	require.Len(result, 2)
	require.Equal(100.0, result[0].Value)
	require.Equal(100.0, result[1].Value)
}

func TestManyToManyDecomposePassThrough(t *testing.T) {
	require := require.New(t)

	d := newManyToMany(t, testDefinition(), nil)

	// no element coordinate
	step := dispatchorStep(t, nil, olap.NewGroupBy("group"))
	result, err := d.Decompose(plan.NewStepSlice(olap.NewSliceFromPairs("a", "a1"), step), 200)
	require.NoError(err)
	require.Equal([]plan.Contribution{{Value: 200}}, result)

	// group not requested
	step = dispatchorStep(t, nil, olap.NewGroupBy("element"))
	result, err = d.Decompose(plan.NewStepSlice(olap.NewSliceFromPairs("element", "FR"), step), 200)
	require.NoError(err)
	require.Equal([]plan.Contribution{{Value: 200}}, result)
}

func TestManyToManyDecomposeFilteredGroups(t *testing.T) {
	require := require.New(t)

	d := newManyToMany(t, testDefinition(), nil)
	step := dispatchorStep(
		t,
		filter.And(filter.IsIn("group", "G8", "NATO"), filter.IsEqualTo("a", "a1")),
		olap.NewGroupBy("group"),
	)

	result, err := d.Decompose(plan.NewStepSlice(olap.NewSliceFromPairs("element", "US"), step), 10)
	require.NoError(err)
	require.Equal([]plan.Contribution{
		{Coordinates: map[string]interface{}{"group": "G8"}, Value: 10},
		{Coordinates: map[string]interface{}{"group": "NATO"}, Value: 10},
	}, result)

	cached, ok := step.Cache().Get(plan.CacheMatchingGroups)
	require.True(ok)
	require.Equal([]interface{}{"G8", "NATO"}, cached.(*olap.ValueSet).Sorted())

	result, err = d.Decompose(plan.NewStepSlice(olap.NewSliceFromPairs("element", "FR"), step), 20)
	require.NoError(err)
	require.Equal([]plan.Contribution{
		{Coordinates: map[string]interface{}{"group": "G8"}, Value: 20},
	}, result)

	result, err = d.Decompose(plan.NewStepSlice(olap.NewSliceFromPairs("element", "CH"), step), 30)
	require.NoError(err)
	require.Empty(result)
}

func TestManyToManyUnderlyingSteps(t *testing.T) {
	testCases := []struct {
		name    string
		filter  filter.Filter
		groupBy olap.GroupBy
		want    plan.MeasurelessQuery
	}{
		{
			"group not requested",
			nil,
			olap.NewGroupBy("a"),
			plan.NewMeasurelessQuery(filter.MatchAll, olap.NewGroupBy("a"), nil),
		},
		{
			"group requested",
			nil,
			olap.NewGroupBy("a", "group"),
			plan.NewMeasurelessQuery(filter.MatchAll, olap.NewGroupBy("a", "element"), nil),
		},
		{
			"group filtered",
			filter.IsEqualTo("group", "NATO"),
			olap.GrandTotal,
			plan.NewMeasurelessQuery(filter.IsEqualTo("element", "US"), olap.GrandTotal, nil),
		},
		{
			"group filtered in and",
			filter.And(filter.IsEqualTo("a", "a1"), filter.IsEqualTo("group", "G20")),
			olap.NewGroupBy("group"),
			plan.NewMeasurelessQuery(
				filter.And(filter.IsEqualTo("a", "a1"), filter.IsIn("element", "FR", "US")),
				olap.NewGroupBy("element"),
				nil,
			),
		},
		{
			"group filtered in or",
			filter.Or(filter.IsEqualTo("group", "unknown"), filter.IsEqualTo("a", "a1")),
			olap.GrandTotal,
			plan.NewMeasurelessQuery(filter.IsEqualTo("a", "a1"), olap.GrandTotal, nil),
		},
	}

	d := newManyToMany(t, testDefinition(), nil)
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			result, err := d.UnderlyingSteps(dispatchorStep(t, tt.filter, tt.groupBy))
			require.NoError(err)
			require.Len(result, 1)
			require.True(tt.want.Equal(result[0]), "got %s, want %s", result[0], tt.want)
		})
	}
}

func TestManyToManyUnsupportedNot(t *testing.T) {
	require := require.New(t)

	d := newManyToMany(t, testDefinition(), nil)

	_, err := d.UnderlyingSteps(dispatchorStep(t, filter.IsDistinctFrom("group", "G8"), olap.GrandTotal))
	require.Error(err)
	require.True(olap.ErrUnsupportedFilter.Is(err))

	_, err = d.UnderlyingSteps(dispatchorStep(t, filter.IsDistinctFrom("a", "a1"), olap.GrandTotal))
	require.NoError(err)
}

func TestIdentity(t *testing.T) {
	require := require.New(t)

	step := dispatchorStep(t, filter.IsEqualTo("a", "a1"), olap.NewGroupBy("b"))
	result, err := Identity{}.Decompose(plan.NewStepSlice(olap.NewSliceFromPairs("b", "b1"), step), 3)
	require.NoError(err)
	require.Equal([]plan.Contribution{{Value: 3}}, result)

	queries, err := Identity{}.UnderlyingSteps(step)
	require.NoError(err)
	require.Equal([]plan.MeasurelessQuery{step.Query()}, queries)
}

func TestBoltDefinition(t *testing.T) {
	require := require.New(t)

	dir, err := ioutil.TempDir("", "pivot-bolt")
	require.NoError(err)
	defer os.RemoveAll(dir)

	def := NewBoltDefinition(filepath.Join(dir, "groups.db"))
	defer def.Close()

	require.NoError(def.Put("FR", "G8", "G20"))
	require.NoError(def.Put("US", "G8"))
	require.NoError(def.Put("US", "G20", "NATO"))
	require.NoError(def.Put(int64(42), "answers"))

	groups, err := def.Groups("US")
	require.NoError(err)
	require.Equal([]interface{}{"G20", "G8", "NATO"}, groups.Sorted())

	groups, err = def.Groups(42)
	require.NoError(err)
	require.Equal([]interface{}{"answers"}, groups.Values())

	groups, err = def.Groups("CH")
	require.NoError(err)
	require.Equal(0, groups.Len())

	matching, err := def.MatchingGroups(func(g interface{}) (bool, error) {
		return g != "NATO", nil
	})
	require.NoError(err)
	require.Equal([]interface{}{"G20", "G8", "answers"}, matching.Sorted())

	elements, err := def.ElementsMatchingGroups(func(g interface{}) (bool, error) {
		return g == "NATO", nil
	})
	require.NoError(err)
	require.Equal([]interface{}{"US"}, elements.Values())

	require.NoError(def.Close())

	// reopened lazily
	groups, err = def.Groups("FR")
	require.NoError(err)
	require.Equal([]interface{}{"G20", "G8"}, groups.Sorted())
}

func TestManyToManyWithBoltDefinition(t *testing.T) {
	require := require.New(t)

	dir, err := ioutil.TempDir("", "pivot-bolt")
	require.NoError(err)
	defer os.RemoveAll(dir)

	def := NewBoltDefinition(filepath.Join(dir, "groups.db"))
	defer def.Close()
	require.NoError(def.Put("FR", "G8", "G20"))

	d := newManyToMany(t, def, nil)
	step := dispatchorStep(t, nil, olap.NewGroupBy("group"))
	result, err := d.Decompose(plan.NewStepSlice(olap.NewSliceFromPairs("element", "FR"), step), 200)
	require.NoError(err)
	require.Len(result, 2)
}
