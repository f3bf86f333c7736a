package plan

import (
	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
)

// Planner expands requested measures into a DAG of query steps.
type Planner struct {
	Bag       *measure.Bag
	Operators Operators
}

// NewPlanner creates a planner resolving measures in the given bag.
func NewPlanner(bag *measure.Bag, operators Operators) *Planner {
	return &Planner{Bag: bag, Operators: operators}
}

// Plan builds the DAG computing the given measures for the query. Steps
// reached from several paths are shared.
func (p *Planner) Plan(
	ctx *olap.Context,
	measures []string,
	q MeasurelessQuery,
	debug bool,
) (*DAG, error) {
	span, _ := ctx.Span("plan.Plan")
	defer span.Finish()

	pl := &planning{
		planner: p,
		debug:   debug,
		buckets: make(map[uint64][]*QueryStep),
	}

	var roots []*QueryStep
	for _, name := range measures {
		m, err := p.Bag.Get(name)
		if err != nil {
			return nil, err
		}

		step, err := pl.expand(m, q, nil)
		if err != nil {
			return nil, err
		}
		roots = append(roots, step)
	}

	dag := newDAG(roots, pl.steps)
	span.SetTag("steps", len(dag.Steps))

	logrus.WithFields(logrus.Fields{
		"query":  ctx.QueryID(),
		"roots":  len(roots),
		"steps":  len(dag.Steps),
		"leaves": len(dag.Levels[0]),
	}).Debug("query planned")

	return dag, nil
}

type planning struct {
	planner *Planner
	debug   bool
	buckets map[uint64][]*QueryStep
	// steps are stored once their underlyings are, so that underlyings
	// always come first.
	steps []*QueryStep
}

func (pl *planning) intern(step *QueryStep) (*QueryStep, bool) {
	for _, s := range pl.buckets[step.Hash()] {
		if s.Equal(step) {
			return s, true
		}
	}
	return step, false
}

func (pl *planning) expand(m measure.Measure, q MeasurelessQuery, path []string) (*QueryStep, error) {
	name := m.MeasureName()
	for _, p := range path {
		if p == name {
			return nil, olap.ErrCyclicMeasure.New(name, append(path, name))
		}
	}

	step, err := NewQueryStep(m, q)
	if err != nil {
		return nil, err
	}

	if existing, ok := pl.intern(step); ok {
		return existing, nil
	}

	step.Debug = step.Debug || pl.debug
	queries, err := pl.underlyingQueries(step)
	if err != nil {
		return nil, err
	}

	path = append(path, name)
	for _, uq := range queries {
		u, err := pl.planner.Bag.Get(uq.measure)
		if err != nil {
			return nil, err
		}

		child, err := pl.expand(u, uq.query, path)
		if err != nil {
			return nil, err
		}
		step.Underlyings = append(step.Underlyings, child)
	}

	if _, ok := m.(*measure.Aggregator); !ok {
		step.level = 1
		for _, u := range step.Underlyings {
			if u.level+1 > step.level {
				step.level = u.level + 1
			}
		}
	}

	pl.buckets[step.Hash()] = append(pl.buckets[step.Hash()], step)
	pl.steps = append(pl.steps, step)
	return step, nil
}

type underlyingQuery struct {
	measure string
	query   MeasurelessQuery
}

func sameQuery(names []string, q MeasurelessQuery) []underlyingQuery {
	result := make([]underlyingQuery, len(names))
	for i, n := range names {
		result[i] = underlyingQuery{measure: n, query: q}
	}
	return result
}

func (pl *planning) underlyingQueries(step *QueryStep) ([]underlyingQuery, error) {
	q := step.Query()
	switch m := step.Measure.(type) {
	case *measure.Aggregator:
		return nil, nil
	case *measure.Combinator:
		return sameQuery(m.UnderlyingNames, q), nil
	case *measure.Columnator:
		if !HasRequiredColumns(m, q) {
			return nil, nil
		}
		return sameQuery(m.UnderlyingNames, q), nil
	case *measure.Filtrator:
		fq := NewMeasurelessQuery(filter.And(q.Filter, m.Filter), q.GroupBy, q.CustomMarker)
		return sameQuery([]string{m.Underlying}, fq), nil
	case *measure.Bucketor:
		bq := NewMeasurelessQuery(q.Filter, q.GroupBy.Union(m.GroupBy), q.CustomMarker)
		return sameQuery(m.UnderlyingNames, bq), nil
	case *measure.Dispatchor:
		dec, err := pl.planner.Operators.Decomposition(m.DecompositionKey, m.DecompositionOptions)
		if err != nil {
			return nil, err
		}
		step.decomposition = dec

		queries, err := dec.UnderlyingSteps(step)
		if err != nil {
			return nil, err
		}

		result := make([]underlyingQuery, len(queries))
		for i, uq := range queries {
			result[i] = underlyingQuery{measure: m.Underlying, query: uq}
		}
		return result, nil
	default:
		return nil, olap.ErrInvalidMeasure.New(step.Measure, "unknown measure type")
	}
}

// HasRequiredColumns returns whether every required column of the
// columnator is grouped by or filtered on in the query.
func HasRequiredColumns(m *measure.Columnator, q MeasurelessQuery) bool {
	available := make(map[string]struct{})
	for _, c := range q.GroupBy.Columns() {
		available[c] = struct{}{}
	}
	for _, c := range filter.Columns(q.filter()) {
		available[c] = struct{}{}
	}

	for _, c := range m.RequiredColumns {
		if _, ok := available[c]; !ok {
			return false
		}
	}
	return true
}
