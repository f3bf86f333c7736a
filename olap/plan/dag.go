package plan

import (
	"strings"

	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
)

// DAG is the evaluation plan of a query. Each step appears once, even when
// several steps depend on it.
type DAG struct {
	// Roots are the steps of the requested measures, in request order.
	Roots []*QueryStep
	// Steps holds every step, underlyings before the steps depending on
	// them.
	Steps []*QueryStep
	// Levels groups the steps by level. Level 0 holds the Aggregator steps;
	// steps of a level only depend on steps of lower levels.
	Levels [][]*QueryStep
}

func newDAG(roots, steps []*QueryStep) *DAG {
	levels := [][]*QueryStep{nil}
	for _, s := range steps {
		for len(levels) <= s.level {
			levels = append(levels, nil)
		}
		levels[s.level] = append(levels[s.level], s)
	}

	return &DAG{Roots: roots, Steps: steps, Levels: levels}
}

// Leaves returns the Aggregator steps.
func (d *DAG) Leaves() []*QueryStep {
	return d.Levels[0]
}

// TableQueries groups the leaves by query, giving one table query per
// group, in the order the groups are first met.
func (d *DAG) TableQueries() []*TableQuery {
	var result []*TableQuery
	for _, leaf := range d.Leaves() {
		agg := leaf.Measure.(*measure.Aggregator)

		var tq *TableQuery
		for _, candidate := range result {
			if candidate.MeasurelessQuery.Equal(leaf.MeasurelessQuery) {
				tq = candidate
				break
			}
		}

		if tq == nil {
			tq = &TableQuery{
				MeasurelessQuery: leaf.MeasurelessQuery,
				steps:            make(map[string]*QueryStep),
			}
			result = append(result, tq)
		}

		tq.Debug = tq.Debug || leaf.Debug
		tq.Aggregators = append(tq.Aggregators, AggregatorRef{
			Name:           agg.Name,
			ColumnName:     agg.Column(),
			AggregationKey: agg.Aggregation(),
		})
		tq.steps[agg.Name] = leaf
	}
	return result
}

// String returns the DAG as a tree per root. Shared steps are printed
// under each step depending on them.
func (d *DAG) String() string {
	roots := make([]string, len(d.Roots))
	for i, r := range d.Roots {
		roots[i] = stepTree(r)
	}
	return strings.Join(roots, "")
}

func stepTree(s *QueryStep) string {
	p := olap.NewTreePrinter()
	p.WriteNode("%s", s)
	if len(s.Underlyings) > 0 {
		children := make([]string, len(s.Underlyings))
		for i, u := range s.Underlyings {
			children[i] = stepTree(u)
		}
		p.WriteChildren(children...)
	}
	return p.String()
}
