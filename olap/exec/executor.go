package exec

import (
	"io"
	"runtime"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/aggregation"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
)

// Operators gives the executor access to aggregations and combinations.
type Operators interface {
	Aggregation(key string) (aggregation.Aggregation, error)
	Combination(key string, options aggregation.Options) (aggregation.Combination, error)
}

// Columns holds the column computed for each step of a DAG.
type Columns map[*plan.QueryStep]*Column

// Executor evaluates the steps of a DAG, leaves first.
type Executor struct {
	Operators Operators
	Observer  olap.Observer
	// Parallelism is the maximum number of steps, or table queries,
	// evaluated at the same time. Zero means the number of CPUs.
	Parallelism int
	// Debug logs the column of every step.
	Debug bool
	// Explain logs every table query sent to the source.
	Explain bool
}

// NewExecutor creates an executor using the given operators.
func NewExecutor(operators Operators) *Executor {
	return &Executor{Operators: operators, Observer: olap.NoopObserver{}}
}

func (e *Executor) parallelism() int {
	if e.Parallelism > 0 {
		return e.Parallelism
	}
	return runtime.NumCPU()
}

func (e *Executor) observer() olap.Observer {
	if e.Observer == nil {
		return olap.NoopObserver{}
	}
	return e.Observer
}

// Execute evaluates every step of the DAG against the source. Steps of the
// same level run concurrently, each one writing its own column.
func (e *Executor) Execute(ctx *olap.Context, dag *plan.DAG, source plan.Source) (Columns, error) {
	span, ctx := ctx.Span("exec.Execute")
	defer span.Finish()

	columns, err := e.newColumns(dag)
	if err != nil {
		return nil, err
	}

	obs := e.observer()
	src := source.String()

	eg, gctx := ctx.NewErrgroup()
	eg.SetLimit(e.parallelism())
	for _, tq := range dag.TableQueries() {
		tq := tq
		tq.Explain = tq.Explain || e.Explain
		eg.Go(func() error {
			return e.scan(gctx, tq, source, columns)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for _, leaf := range dag.Leaves() {
		e.debug(leaf, columns[leaf])
		obs.MeasureCompleted(leaf.Measure.MeasureName(), columns[leaf].Len(), src)
	}
	obs.QueryPhaseCompleted(olap.PhaseTableQuery, src)

	for level := 1; level < len(dag.Levels); level++ {
		eg, gctx := ctx.NewErrgroup()
		eg.SetLimit(e.parallelism())
		for _, step := range dag.Levels[level] {
			step := step
			eg.Go(func() error {
				return e.evaluate(gctx, step, columns, src)
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}
	obs.QueryPhaseCompleted(olap.PhaseSteps, src)

	return columns, nil
}

// newColumns creates the column of every step upfront, so that unknown
// operators fail the query before the source is scanned.
func (e *Executor) newColumns(dag *plan.DAG) (Columns, error) {
	columns := make(Columns, len(dag.Steps))
	for _, step := range dag.Steps {
		var key string
		switch m := step.Measure.(type) {
		case *measure.Aggregator:
			key = m.Aggregation()
		case *measure.Bucketor:
			key = m.Aggregation()
		case *measure.Dispatchor:
			key = m.Aggregation()
		}

		var agg aggregation.Aggregation
		if key != "" {
			var err error
			if agg, err = e.Operators.Aggregation(key); err != nil {
				return nil, err
			}
		}
		columns[step] = NewColumn(agg)
	}
	return columns, nil
}

func (e *Executor) scan(ctx *olap.Context, tq *plan.TableQuery, source plan.Source, columns Columns) error {
	span, ctx := ctx.Span("exec.TableQuery", opentracing.Tags{
		"query":       tq.MeasurelessQuery.String(),
		"aggregators": len(tq.Aggregators),
	})
	defer span.Finish()

	if tq.Explain || tq.Debug || e.Debug {
		logrus.WithFields(logrus.Fields{
			"query":  ctx.QueryID(),
			"source": source.String(),
		}).Infof("[EXPLAIN] %s", tq)
	}

	iter, err := source.Scan(ctx, tq)
	if err != nil {
		return err
	}

	var rows int
	for {
		if err := ctx.Err(); err != nil {
			_ = iter.Close()
			return err
		}

		row, err := iter.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = iter.Close()
			return err
		}

		if err := e.mergeRow(tq, row, columns); err != nil {
			_ = iter.Close()
			return err
		}
		rows++
	}

	span.SetTag("rows", rows)
	return iter.Close()
}

func (e *Executor) mergeRow(tq *plan.TableQuery, row plan.Row, columns Columns) error {
	empty := true
	for _, a := range tq.Aggregators {
		if row.Values[a.Name] != nil {
			empty = false
			break
		}
	}
	if empty {
		return nil
	}

	slice, err := row.Slice.Project(tq.GroupBy)
	if err != nil {
		return err
	}

	for _, a := range tq.Aggregators {
		step, ok := tq.Step(a.Name)
		if !ok {
			continue
		}
		if err := columns[step].Merge(slice, row.Values[a.Name]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) evaluate(ctx *olap.Context, step *plan.QueryStep, columns Columns, src string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	span, _ := ctx.Span("exec.Step", opentracing.Tag{Key: "step", Value: step.String()})
	defer span.Finish()

	e.observer().StepEvaluating(step, src)

	out := columns[step]
	var err error
	switch m := step.Measure.(type) {
	case *measure.Combinator:
		err = e.combine(step, m.Combination(), m.Options(), columns, out)
	case *measure.Columnator:
		if plan.HasRequiredColumns(m, step.Query()) {
			err = e.combine(step, m.Combination(), m.Options(), columns, out)
		}
	case *measure.Filtrator:
		err = columns[step.Underlyings[0]].ForEach(func(slice olap.Slice, v interface{}) error {
			out.Put(slice, v)
			return nil
		})
	case *measure.Bucketor:
		err = e.bucket(step, m, columns, out)
	case *measure.Dispatchor:
		err = e.dispatch(step, columns, out)
	default:
		err = olap.ErrInvalidMeasure.New(step.Measure, "unknown measure type")
	}
	if err != nil {
		return err
	}

	span.SetTag("cells", out.Len())
	e.debug(step, out)
	e.observer().MeasureCompleted(step.Measure.MeasureName(), out.Len(), src)
	return nil
}

// combine writes, for every slice of any underlying column, the combination
// of the underlying values. Underlyings with no value at a slice give nil.
func (e *Executor) combine(
	step *plan.QueryStep,
	key string,
	options aggregation.Options,
	columns Columns,
	out *Column,
) error {
	comb, err := e.Operators.Combination(key, options)
	if err != nil {
		return err
	}

	underlyings := make([]*Column, len(step.Underlyings))
	for i, u := range step.Underlyings {
		underlyings[i] = columns[u]
	}

	seen := make(map[string]struct{})
	for _, col := range underlyings {
		for _, slice := range col.Slices(false) {
			if _, ok := seen[slice.Key()]; ok {
				continue
			}
			seen[slice.Key()] = struct{}{}

			values := make([]interface{}, len(underlyings))
			for i, u := range underlyings {
				values[i], _ = u.Get(slice)
			}

			v, err := comb.Combine(slice, values)
			if err != nil {
				return err
			}
			out.Put(slice, v)
		}
	}
	return nil
}

func (e *Executor) bucket(step *plan.QueryStep, m *measure.Bucketor, columns Columns, out *Column) error {
	fine := NewColumn(nil)
	if err := e.combine(step, m.Combination(), m.Options(), columns, fine); err != nil {
		return err
	}

	return fine.ForEach(func(slice olap.Slice, v interface{}) error {
		coarse, err := slice.Project(step.GroupBy)
		if err != nil {
			return err
		}
		return out.Merge(coarse, v)
	})
}

func (e *Executor) dispatch(step *plan.QueryStep, columns Columns, out *Column) error {
	dec := step.Decomposition()
	if dec == nil {
		return olap.ErrInvalidMeasure.New(step.Measure, "step has no decomposition")
	}

	for _, u := range step.Underlyings {
		err := columns[u].ForEach(func(slice olap.Slice, v interface{}) error {
			contributions, err := dec.Decompose(plan.NewStepSlice(slice, step), v)
			if err != nil {
				return err
			}

			for _, c := range contributions {
				target, err := slice.With(c.Coordinates).Project(step.GroupBy)
				if err != nil {
					return err
				}
				if err := out.Merge(target, c.Value); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) debug(step *plan.QueryStep, col *Column) {
	if !step.Debug && !e.Debug {
		return
	}

	log := logrus.WithField("step", step.String())
	for _, slice := range col.Slices(true) {
		v, _ := col.Get(slice)
		log.Infof("[DEBUG] %s: %v", slice, v)
	}
}
