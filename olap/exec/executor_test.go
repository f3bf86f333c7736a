package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/decomposition"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
	"gopkg.in/src-d/go-pivot.v0/olap/operator"
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
	"gopkg.in/src-d/go-pivot.v0/test"
)

var (
	scenarioTable = test.ScenarioTable
	scenarioBag   = test.ScenarioBag
)

type query struct {
	measures []string
	filter   filter.Filter
	groupBy  olap.GroupBy
}

func execute(t *testing.T, e *Executor, bag *measure.Bag, source plan.Source, q query) map[string]map[string]interface{} {
	t.Helper()

	ctx := olap.NewEmptyContext()
	reg := e.Operators.(*operator.Registry)
	dag, err := plan.NewPlanner(bag, reg).Plan(ctx, q.measures, plan.NewMeasurelessQuery(q.filter, q.groupBy, nil), false)
	require.NoError(t, err)

	columns, err := e.Execute(ctx, dag, source)
	require.NoError(t, err)

	result := make(map[string]map[string]interface{})
	for _, root := range dag.Roots {
		values := make(map[string]interface{})
		require.NoError(t, columns[root].ForEach(func(slice olap.Slice, v interface{}) error {
			values[slice.String()] = v
			return nil
		}))
		result[root.Measure.MeasureName()] = values
	}
	return result
}

func TestExecuteScenario(t *testing.T) {
	testCases := []struct {
		name  string
		query query
		want  map[string]map[string]interface{}
	}{
		{
			"combinator grand total",
			query{measures: []string{"sumK1K2"}},
			map[string]map[string]interface{}{
				"sumK1K2": {"{}": int64(1725)},
			},
		},
		{
			"combinator by a",
			query{measures: []string{"sumK1K2"}, groupBy: olap.NewGroupBy("a")},
			map[string]map[string]interface{}{
				"sumK1K2": {"{a=a1}": int64(924), "{a=a2}": int64(801)},
			},
		},
		{
			"combinator by b",
			query{measures: []string{"sumK1K2"}, groupBy: olap.NewGroupBy("b")},
			map[string]map[string]interface{}{
				"sumK1K2": {"{b=b1}": int64(234), "{b=b2}": int64(567)},
			},
		},
		{
			"max aggregator",
			query{measures: []string{"maxK1"}, groupBy: olap.NewGroupBy("a")},
			map[string]map[string]interface{}{
				"maxK1": {"{a=a1}": int64(345), "{a=a2}": int64(567)},
			},
		},
		{
			"bucketor grand total",
			query{measures: []string{"maxK1K2ByA"}},
			map[string]map[string]interface{}{
				"maxK1K2ByA": {"{}": int64(924)},
			},
		},
		{
			"bucketor by a",
			query{measures: []string{"maxK1K2ByA"}, groupBy: olap.NewGroupBy("a")},
			map[string]map[string]interface{}{
				"maxK1K2ByA": {"{a=a1}": int64(924), "{a=a2}": int64(801)},
			},
		},
		{
			"filtrator",
			query{measures: []string{"k1", "filterK1onA1"}},
			map[string]map[string]interface{}{
				"k1":           {"{}": int64(1035)},
				"filterK1onA1": {"{}": int64(468)},
			},
		},
		{
			"divide",
			query{measures: []string{"ratio"}},
			map[string]map[string]interface{}{
				"ratio": {"{}": 468.0 / 1035.0},
			},
		},
		{
			"columnator without required column",
			query{measures: []string{"k1IfB"}},
			map[string]map[string]interface{}{
				"k1IfB": {},
			},
		},
		{
			"columnator with required column",
			query{measures: []string{"k1IfB"}, groupBy: olap.NewGroupBy("b")},
			map[string]map[string]interface{}{
				"k1IfB": {"{b=b2}": int64(567)},
			},
		},
		{
			"columnator with required column filtered",
			query{measures: []string{"k1IfB"}, filter: filter.IsEqualTo("b", "b2")},
			map[string]map[string]interface{}{
				"k1IfB": {"{}": int64(567)},
			},
		},
		{
			"filter on query",
			query{measures: []string{"k1", "k2"}, filter: filter.IsEqualTo("a", "a2")},
			map[string]map[string]interface{}{
				"k1": {"{}": int64(567)},
				"k2": {"{}": int64(234)},
			},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(operator.NewDefaults())
			require.Equal(t, tt.want, execute(t, e, scenarioBag(), scenarioTable(), tt.query))
		})
	}
}

func manyToManyRegistry() *operator.Registry {
	def := test.ClubDefinition()
	return operator.NewDefaults().WithManyToManyDefinition(
		func(map[string]interface{}) (decomposition.Definition, error) {
			return def, nil
		},
	)
}

func TestExecuteManyToMany(t *testing.T) {
	table := test.CountryTable()

	testCases := []struct {
		name  string
		query query
		want  map[string]interface{}
	}{
		{
			"by club",
			query{groupBy: olap.NewGroupBy("club")},
			map[string]interface{}{
				"{club=G20}":  int64(300),
				"{club=G8}":   int64(300),
				"{club=NATO}": int64(100),
			},
		},
		{
			"grand total",
			query{},
			map[string]interface{}{"{}": int64(350)},
		},
		{
			"filtered club",
			query{filter: filter.IsEqualTo("club", "NATO")},
			map[string]interface{}{"{}": int64(100)},
		},
		{
			"filtered club by club",
			query{filter: filter.IsEqualTo("club", "G8"), groupBy: olap.NewGroupBy("club")},
			map[string]interface{}{"{club=G8}": int64(300)},
		},
		{
			"by club and country",
			query{filter: filter.IsEqualTo("country", "FR"), groupBy: olap.NewGroupBy("club", "country")},
			map[string]interface{}{
				"{club=G20, country=FR}": int64(200),
				"{club=G8, country=FR}":  int64(200),
			},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.measures = []string{"vByClub"}
			e := NewExecutor(manyToManyRegistry())
			result := execute(t, e, test.ClubBag(), table, tt.query)
			require.Equal(t, tt.want, result["vByClub"])
		})
	}
}

type countingSource struct {
	plan.Source
	mu    sync.Mutex
	scans int
}

func (s *countingSource) Scan(ctx *olap.Context, q *plan.TableQuery) (plan.RowIter, error) {
	s.mu.Lock()
	s.scans++
	s.mu.Unlock()
	return s.Source.Scan(ctx, q)
}

func TestExecuteSharedSteps(t *testing.T) {
	require := require.New(t)

	source := &countingSource{Source: scenarioTable()}
	obs := &recordingObserver{}
	e := NewExecutor(operator.NewDefaults())
	e.Observer = obs

	result := execute(t, e, scenarioBag(), source, query{
		measures: []string{"sumK1K2", "k1", "k2", "ratio"},
	})
	require.Equal(int64(1725), result["sumK1K2"]["{}"])

	// k1 and k2 share a query, filterK1onA1 needs its own
	require.Equal(2, source.scans)
	require.Equal([]olap.QueryPhase{olap.PhaseTableQuery, olap.PhaseSteps}, obs.phases)
	// k1 is computed with and without the a1 filter
	require.Equal(2, obs.completed["k1"])
	require.Equal(1, obs.completed["sumK1K2"])
	require.Equal(1, obs.completed["ratio"])
}

type recordingObserver struct {
	mu        sync.Mutex
	phases    []olap.QueryPhase
	completed map[string]int
}

func (o *recordingObserver) QueryPhaseCompleted(phase olap.QueryPhase, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, phase)
}

func (o *recordingObserver) StepEvaluating(fmt.Stringer, string) {}

func (o *recordingObserver) MeasureCompleted(measure string, _ int, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.completed == nil {
		o.completed = make(map[string]int)
	}
	o.completed[measure]++
}

var errBroken = errors.NewKind("broken source")

type brokenSource struct{}

func (brokenSource) String() string { return "broken" }

func (brokenSource) Scan(*olap.Context, *plan.TableQuery) (plan.RowIter, error) {
	return nil, errBroken.New()
}

func TestExecuteSourceError(t *testing.T) {
	require := require.New(t)

	ctx := olap.NewEmptyContext()
	dag, err := plan.NewPlanner(scenarioBag(), operator.NewDefaults()).
		Plan(ctx, []string{"sumK1K2"}, plan.NewMeasurelessQuery(nil, olap.GrandTotal, nil), false)
	require.NoError(err)

	_, err = NewExecutor(operator.NewDefaults()).Execute(ctx, dag, brokenSource{})
	require.Error(err)
	require.True(errBroken.Is(err))
}

func TestExecuteCancelled(t *testing.T) {
	require := require.New(t)

	c, cancel := context.WithCancel(context.Background())
	cancel()
	ctx := olap.NewContext(c)

	dag, err := plan.NewPlanner(scenarioBag(), operator.NewDefaults()).
		Plan(ctx, []string{"sumK1K2"}, plan.NewMeasurelessQuery(nil, olap.GrandTotal, nil), false)
	require.NoError(err)

	_, err = NewExecutor(operator.NewDefaults()).Execute(ctx, dag, scenarioTable())
	require.Equal(context.Canceled, err)
}

func TestExecuteUnknownAggregation(t *testing.T) {
	require := require.New(t)

	bag := measure.NewBag(&measure.Aggregator{Name: "k1", AggregationKey: "median"})
	ctx := olap.NewEmptyContext()
	dag, err := plan.NewPlanner(bag, operator.NewDefaults()).
		Plan(ctx, []string{"k1"}, plan.NewMeasurelessQuery(nil, olap.GrandTotal, nil), false)
	require.NoError(err)

	_, err = NewExecutor(operator.NewDefaults()).Execute(ctx, dag, scenarioTable())
	require.True(olap.ErrUnknownAggregation.Is(err))
}

func TestExecuteUnknownCombination(t *testing.T) {
	require := require.New(t)

	bag := measure.NewBag(
		measure.NewAggregator("k1"),
		measure.NewCombinator("c", "median", "k1"),
	)
	ctx := olap.NewEmptyContext()
	dag, err := plan.NewPlanner(bag, operator.NewDefaults()).
		Plan(ctx, []string{"c"}, plan.NewMeasurelessQuery(nil, olap.GrandTotal, nil), false)
	require.NoError(err)

	_, err = NewExecutor(operator.NewDefaults()).Execute(ctx, dag, scenarioTable())
	require.True(olap.ErrUnknownCombination.Is(err))
}

func TestExecuteDebug(t *testing.T) {
	require := require.New(t)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	e := NewExecutor(operator.NewDefaults())
	e.Debug = true
	execute(t, e, scenarioBag(), scenarioTable(), query{
		measures: []string{"sumK1K2"},
		groupBy:  olap.NewGroupBy("a"),
	})

	var lines []string
	for _, entry := range hook.AllEntries() {
		if strings.HasPrefix(entry.Message, "[DEBUG]") && entry.Data["step"] == "sumK1K2(filter=MatchAll, groupBy=GroupBy(a))" {
			lines = append(lines, entry.Message)
		}
	}
	require.Equal([]string{
		"[DEBUG] {a=a1}: 924",
		"[DEBUG] {a=a2}: 801",
	}, lines)
}

func TestExecuteParallelism(t *testing.T) {
	for _, p := range []int{1, 2, 8} {
		t.Run(fmt.Sprint(p), func(t *testing.T) {
			e := NewExecutor(operator.NewDefaults())
			e.Parallelism = p
			result := execute(t, e, scenarioBag(), scenarioTable(), query{
				measures: []string{"sumK1K2", "maxK1K2ByA", "ratio", "filterK1onA1"},
				groupBy:  olap.NewGroupBy("a"),
			})
			require.Equal(t, int64(924), result["sumK1K2"]["{a=a1}"])
			require.Equal(t, int64(801), result["maxK1K2ByA"]["{a=a2}"])
			require.Equal(t, 1.0, result["ratio"]["{a=a1}"])
			require.Equal(t, map[string]interface{}{"{a=a1}": int64(468)}, result["filterK1onA1"])
		})
	}
}

var _ Operators = (*operator.Registry)(nil)
