package pivot

import (
	"fmt"
	"os"
	"strings"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/aggregation"
	"gopkg.in/src-d/go-pivot.v0/olap/exec"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
	"gopkg.in/src-d/go-pivot.v0/olap/operator"
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
	"gopkg.in/src-d/go-pivot.v0/olap/view"
)

const (
	debugKey       = "PIVOT_DEBUG"
	parallelismKey = "PIVOT_PARALLELISM"
)

// Query is a request for the values of some measures, sliced by a group by
// and restricted by a filter.
type Query struct {
	Measures []string
	Filter   filter.Filter
	GroupBy  olap.GroupBy
	// CustomMarker is passed untouched to the data source. Queries with
	// different markers never share steps.
	CustomMarker interface{}
	Debug        bool
	Explain      bool
}

// NewQuery creates a grand total query of the given measures.
func NewQuery(measures ...string) Query {
	return Query{Measures: measures, Filter: filter.MatchAll, GroupBy: olap.GrandTotal}
}

func (q Query) String() string {
	f := q.Filter
	if f == nil {
		f = filter.MatchAll
	}
	return fmt.Sprintf("[%s] WHERE %s BY %s", strings.Join(q.Measures, ", "), f, q.GroupBy)
}

// Engine evaluates queries over a measure bag.
type Engine struct {
	Bag         *measure.Bag
	Operators   *operator.Registry
	ProcessList *ProcessList
	Observer    olap.Observer
	Debug       bool
	Parallelism int
}

// Builder provides an easy way to configure an Engine.
type Builder struct {
	bag         *measure.Bag
	operators   *operator.Registry
	processList *ProcessList
	observer    olap.Observer
	debug       bool
	parallelism int
}

// NewBuilder creates a new Builder for the given measure bag.
func NewBuilder(bag *measure.Bag) *Builder {
	return &Builder{bag: bag}
}

// WithOperators sets the operator registry. Defaults to the built-in
// operators.
func (b *Builder) WithOperators(r *operator.Registry) *Builder {
	b.operators = r
	return b
}

// WithProcessList sets the process list the running queries are
// registered in. Engines sharing a process list can kill each other's
// queries.
func (b *Builder) WithProcessList(pl *ProcessList) *Builder {
	b.processList = pl
	return b
}

// WithObserver sets the observer notified of the progress of every query.
func (b *Builder) WithObserver(o olap.Observer) *Builder {
	b.observer = o
	return b
}

// WithDebug activates debug on the Engine.
func (b *Builder) WithDebug() *Builder {
	b.debug = true
	return b
}

// WithParallelism sets the maximum number of steps evaluated at the same
// time.
func (b *Builder) WithParallelism(parallelism int) *Builder {
	b.parallelism = parallelism
	return b
}

// Build creates the Engine. PIVOT_DEBUG turns debug on and
// PIVOT_PARALLELISM sets the parallelism if the builder did not.
func (b *Builder) Build() *Engine {
	_, debug := os.LookupEnv(debugKey)

	parallelism := b.parallelism
	if parallelism == 0 {
		if e := os.Getenv(parallelismKey); e != "" {
			p, err := cast.ToIntE(e)
			if err != nil {
				logrus.WithField("value", e).Warnf("ignoring invalid %s", parallelismKey)
			} else {
				parallelism = p
			}
		}
	}

	operators := b.operators
	if operators == nil {
		operators = operator.NewDefaults()
	}

	processList := b.processList
	if processList == nil {
		processList = NewProcessList()
	}

	observer := b.observer
	if observer == nil {
		observer = olap.NoopObserver{}
	}

	return &Engine{
		Bag:         b.bag,
		Operators:   operators,
		ProcessList: processList,
		Observer:    observer,
		Debug:       debug || b.debug,
		Parallelism: parallelism,
	}
}

// New creates a new Engine with the default operators.
func New(bag *measure.Bag) *Engine {
	return NewBuilder(bag).Build()
}

// Validate checks the measure bag and that every operator the measures
// refer to can be built.
func (e *Engine) Validate() error {
	if err := e.Bag.Validate(); err != nil {
		return err
	}

	for _, m := range e.Bag.Measures() {
		if err := e.validateMeasure(m); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) validateMeasure(m measure.Measure) error {
	aggregationKey := func(key string) error {
		_, err := e.Operators.Aggregation(key)
		return err
	}
	combination := func(key string, options aggregation.Options) error {
		_, err := e.Operators.Combination(key, options)
		return err
	}

	switch m := m.(type) {
	case *measure.Aggregator:
		return aggregationKey(m.Aggregation())
	case *measure.Combinator:
		return combination(m.Combination(), m.Options())
	case *measure.Columnator:
		return combination(m.Combination(), m.Options())
	case *measure.Bucketor:
		if err := aggregationKey(m.Aggregation()); err != nil {
			return err
		}
		return combination(m.Combination(), m.Options())
	case *measure.Dispatchor:
		if err := aggregationKey(m.Aggregation()); err != nil {
			return err
		}
		_, err := e.Operators.Decomposition(m.DecompositionKey, m.DecompositionOptions)
		return err
	default:
		return nil
	}
}

// Execute evaluates the query against the source. The query either fully
// succeeds or fails: there is no partial result.
func (e *Engine) Execute(ctx *olap.Context, q Query, source plan.Source) (*view.TabularView, error) {
	span, ctx := ctx.Span("pivot.Execute", opentracing.Tags{
		"query":  q.String(),
		"source": source.String(),
	})
	defer span.Finish()

	ctx, err := e.ProcessList.AddProcess(ctx, q)
	if err != nil {
		return nil, err
	}
	defer e.ProcessList.Done(ctx.QueryID())

	debug := q.Debug || e.Debug
	src := source.String()
	obs := olap.NewMultiObserver(e.Observer, e.ProcessList.observer(ctx.QueryID()))

	dag, err := plan.NewPlanner(e.Bag, e.Operators).Plan(
		ctx,
		q.Measures,
		plan.NewMeasurelessQuery(q.Filter, q.GroupBy, q.CustomMarker),
		debug,
	)
	if err != nil {
		return nil, err
	}
	obs.QueryPhaseCompleted(olap.PhasePlan, src)

	if q.Explain {
		logrus.WithField("query", ctx.QueryID()).Infof("[EXPLAIN] %s\n%s", q, dag)
	}

	executor := &exec.Executor{
		Operators:   e.Operators,
		Observer:    obs,
		Parallelism: e.Parallelism,
		Debug:       debug,
		Explain:     q.Explain,
	}

	columns, err := executor.Execute(ctx, dag, source)
	if err != nil {
		return nil, err
	}

	result := view.New()
	seen := make(map[string]struct{}, len(dag.Roots))
	for _, root := range dag.Roots {
		name := root.Measure.MeasureName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		err := columns[root].ForEach(func(slice olap.Slice, v interface{}) error {
			return result.Append(slice, map[string]interface{}{name: v})
		})
		if err != nil {
			return nil, err
		}
	}
	obs.QueryPhaseCompleted(olap.PhaseView, src)

	span.SetTag("slices", result.Len())
	logrus.WithFields(logrus.Fields{
		"query":  ctx.QueryID(),
		"slices": result.Len(),
		"steps":  len(dag.Steps),
	}).Debug("query executed")

	return result, nil
}
