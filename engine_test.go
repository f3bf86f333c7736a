package pivot

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/decomposition"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
	"gopkg.in/src-d/go-pivot.v0/olap/operator"
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
	"gopkg.in/src-d/go-pivot.v0/test"
)

var queries = []struct {
	name     string
	query    Query
	expected map[string]map[string]interface{}
}{
	{
		"grand total",
		NewQuery("sumK1K2"),
		map[string]map[string]interface{}{
			"{}": {"sumK1K2": int64(1725)},
		},
	},
	{
		"group by a",
		Query{Measures: []string{"sumK1K2"}, GroupBy: olap.NewGroupBy("a")},
		map[string]map[string]interface{}{
			"{a=a1}": {"sumK1K2": int64(924)},
			"{a=a2}": {"sumK1K2": int64(801)},
		},
	},
	{
		"filtrator next to its underlying",
		NewQuery("k1", "filterK1onA1"),
		map[string]map[string]interface{}{
			"{}": {"k1": int64(1035), "filterK1onA1": int64(468)},
		},
	},
	{
		"divide",
		NewQuery("ratio"),
		map[string]map[string]interface{}{
			"{}": {"ratio": 468.0 / 1035.0},
		},
	},
	{
		"bucketor",
		NewQuery("maxK1K2ByA"),
		map[string]map[string]interface{}{
			"{}": {"maxK1K2ByA": int64(924)},
		},
	},
	{
		"columnator without its column",
		NewQuery("k1IfB"),
		map[string]map[string]interface{}{},
	},
	{
		"columnator grouped by its column",
		Query{Measures: []string{"k1IfB"}, GroupBy: olap.NewGroupBy("b")},
		map[string]map[string]interface{}{
			"{b=b2}": {"k1IfB": int64(567)},
		},
	},
	{
		"filtered",
		Query{Measures: []string{"k1", "k2"}, Filter: filter.IsEqualTo("a", "a2")},
		map[string]map[string]interface{}{
			"{}": {"k1": int64(567), "k2": int64(234)},
		},
	},
	{
		"same measure twice",
		NewQuery("k1", "k1"),
		map[string]map[string]interface{}{
			"{}": {"k1": int64(1035)},
		},
	},
}

func TestQueries(t *testing.T) {
	e := newEngine(t)

	for _, tt := range queries {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			v, err := e.Execute(olap.NewEmptyContext(), tt.query, test.ScenarioTable())
			require.NoError(err)
			require.Equal(tt.expected, v.AsMap())
		})
	}
}

func TestQueriesParallelism(t *testing.T) {
	for _, p := range []int{1, 2, 4} {
		e := NewBuilder(test.ScenarioBag()).WithParallelism(p).Build()
		require.Equal(t, p, e.Parallelism)

		for _, tt := range queries {
			v, err := e.Execute(olap.NewEmptyContext(), tt.query, test.ScenarioTable())
			require.NoError(t, err)
			require.Equal(t, tt.expected, v.AsMap(), tt.name)
		}
	}
}

func TestManyToMany(t *testing.T) {
	require := require.New(t)

	def := test.ClubDefinition()
	operators := operator.NewDefaults().WithManyToManyDefinition(
		func(map[string]interface{}) (decomposition.Definition, error) {
			return def, nil
		},
	)
	e := NewBuilder(test.ClubBag()).WithOperators(operators).Build()
	require.NoError(e.Validate())

	q := Query{Measures: []string{"v", "vByClub"}, GroupBy: olap.NewGroupBy("club")}
	v, err := e.Execute(olap.NewEmptyContext(), q, test.CountryTable())
	require.NoError(err)

	// v has no club coordinate, so it has no value by club
	require.Equal(map[string]map[string]interface{}{
		"{club=G20}":  {"vByClub": int64(300)},
		"{club=G8}":   {"vByClub": int64(300)},
		"{club=NATO}": {"vByClub": int64(100)},
	}, v.AsMap())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		bag  *measure.Bag
		kind interface{ Is(error) bool }
	}{
		{
			"unknown aggregation",
			measure.NewBag(&measure.Aggregator{Name: "k1", AggregationKey: "median"}),
			olap.ErrUnknownAggregation,
		},
		{
			"unknown combination",
			measure.NewBag(
				measure.NewAggregator("k1"),
				measure.NewCombinator("c", "median", "k1"),
			),
			olap.ErrUnknownCombination,
		},
		{
			"unknown decomposition",
			measure.NewBag(
				measure.NewAggregator("k1"),
				&measure.Dispatchor{Name: "d", Underlying: "k1", DecompositionKey: "unknown"},
			),
			olap.ErrUnknownDecomposition,
		},
		{
			"missing definition",
			measure.NewBag(
				measure.NewAggregator("k1"),
				&measure.Dispatchor{
					Name:             "d",
					Underlying:       "k1",
					DecompositionKey: decomposition.ManyToManyKey,
					DecompositionOptions: map[string]interface{}{
						decomposition.ElementOption: "country",
						decomposition.GroupOption:   "club",
					},
				},
			),
			olap.ErrInvalidDecompositionOptions,
		},
		{
			"cycle",
			measure.NewBag(
				measure.NewCombinator("c1", "sum", "c2"),
				measure.NewCombinator("c2", "sum", "c1"),
			),
			olap.ErrCyclicMeasure,
		},
		{
			"missing underlying",
			measure.NewBag(measure.NewCombinator("c", "sum", "nope")),
			olap.ErrMeasureNotFound,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			err := New(tt.bag).Validate()
			require.Error(err)
			require.True(tt.kind.Is(err), err.Error())
		})
	}

	require.NoError(t, newEngine(t).Validate())
}

func TestExecuteUnknownMeasure(t *testing.T) {
	require := require.New(t)
	e := newEngine(t)

	_, err := e.Execute(olap.NewEmptyContext(), NewQuery("nope"), test.ScenarioTable())
	require.Error(err)
	require.True(olap.ErrMeasureNotFound.Is(err))
	require.Len(e.ProcessList.Processes(), 0)
}

func TestTracing(t *testing.T) {
	require := require.New(t)
	e := newEngine(t)

	tracer := new(test.MemTracer)
	ctx := olap.NewContext(context.TODO(), olap.WithTracer(tracer))

	_, err := e.Execute(ctx, NewQuery("sumK1K2"), test.ScenarioTable())
	require.NoError(err)

	expectedSpans := []string{
		"pivot.Execute",
		"plan.Plan",
		"exec.Execute",
		"exec.TableQuery",
		"memory.Scan",
		"exec.Step",
	}
	require.Equal(expectedSpans, tracer.Spans)
}

func TestExplain(t *testing.T) {
	require := require.New(t)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	e := newEngine(t)
	q := NewQuery("sumK1K2")
	q.Explain = true

	_, err := e.Execute(olap.NewEmptyContext(), q, test.ScenarioTable())
	require.NoError(err)

	var explained []string
	for _, entry := range hook.AllEntries() {
		if strings.HasPrefix(entry.Message, "[EXPLAIN]") {
			explained = append(explained, entry.Message)
		}
	}
	require.Len(explained, 2)
	require.Contains(explained[0], "sumK1K2")
	require.Contains(explained[0], "k1")
	require.Contains(explained[1], "k2")
}

func TestObserver(t *testing.T) {
	require := require.New(t)

	obs := &phaseObserver{}
	e := NewBuilder(test.ScenarioBag()).WithObserver(obs).Build()

	_, err := e.Execute(olap.NewEmptyContext(), NewQuery("sumK1K2"), test.ScenarioTable())
	require.NoError(err)
	require.Equal([]olap.QueryPhase{
		olap.PhasePlan,
		olap.PhaseTableQuery,
		olap.PhaseSteps,
		olap.PhaseView,
	}, obs.phases)
}

type phaseObserver struct {
	olap.NoopObserver
	phases []olap.QueryPhase
}

func (o *phaseObserver) QueryPhaseCompleted(phase olap.QueryPhase, _ string) {
	o.phases = append(o.phases, phase)
}

// blockingSource never returns a row until its context is cancelled.
type blockingSource struct {
	started chan struct{}
}

func (s *blockingSource) String() string { return "blocking" }

func (s *blockingSource) Scan(ctx *olap.Context, _ *plan.TableQuery) (plan.RowIter, error) {
	close(s.started)
	return &blockingIter{ctx}, nil
}

type blockingIter struct {
	ctx *olap.Context
}

func (i *blockingIter) Next() (plan.Row, error) {
	<-i.ctx.Done()
	return plan.Row{}, i.ctx.Err()
}

func (i *blockingIter) Close() error { return nil }

func TestKillQuery(t *testing.T) {
	require := require.New(t)
	e := newEngine(t)

	source := &blockingSource{started: make(chan struct{})}
	ctx := olap.NewContext(context.Background(), olap.WithQueryID("q1"))

	errs := make(chan error)
	go func() {
		_, err := e.Execute(ctx, NewQuery("k1"), source)
		errs <- err
	}()

	select {
	case <-source.started:
	case <-time.After(5 * time.Second):
		require.FailNow("query never reached the source")
	}

	procs := e.ProcessList.Processes()
	require.Len(procs, 1)
	require.Equal("q1", procs[0].ID)
	require.Equal(olap.PhasePlan, procs[0].Phase)

	e.ProcessList.Kill("q1")

	select {
	case err := <-errs:
		require.Equal(context.Canceled, err)
	case <-time.After(5 * time.Second):
		require.FailNow("killed query did not return")
	}
	require.Len(e.ProcessList.Processes(), 0)
}

func TestBuilderEnv(t *testing.T) {
	require := require.New(t)

	require.NoError(os.Setenv(debugKey, ""))
	require.NoError(os.Setenv(parallelismKey, "3"))
	defer func() {
		os.Unsetenv(debugKey)
		os.Unsetenv(parallelismKey)
	}()

	e := NewBuilder(test.ScenarioBag()).Build()
	require.True(e.Debug)
	require.Equal(3, e.Parallelism)

	e = NewBuilder(test.ScenarioBag()).WithParallelism(2).Build()
	require.Equal(2, e.Parallelism)

	require.NoError(os.Setenv(parallelismKey, "many"))
	e = NewBuilder(test.ScenarioBag()).Build()
	require.Equal(0, e.Parallelism)

	os.Unsetenv(debugKey)
	e = NewBuilder(test.ScenarioBag()).Build()
	require.False(e.Debug)

	e = NewBuilder(test.ScenarioBag()).WithDebug().Build()
	require.True(e.Debug)
	require.NotNil(e.ProcessList)

	pl := NewProcessList()
	e = NewBuilder(test.ScenarioBag()).WithProcessList(pl).Build()
	require.True(pl == e.ProcessList)
}

func TestQueryString(t *testing.T) {
	require := require.New(t)

	q := Query{
		Measures: []string{"k1", "k2"},
		Filter:   filter.IsEqualTo("a", "a1"),
		GroupBy:  olap.NewGroupBy("b"),
	}
	require.True(strings.HasPrefix(q.String(), "[k1, k2] WHERE "))
	require.True(strings.HasSuffix(q.String(), " BY GroupBy(b)"))
	require.Equal("[k1] WHERE MatchAll BY GrandTotal", NewQuery("k1").String())
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewBuilder(test.ScenarioBag()).WithParallelism(1).Build()
	require.NoError(t, e.Validate())
	return e
}
