package plan

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/hashstructure"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/measure"
)

// MeasurelessQuery is the shape of a query regardless of the measure it
// computes: the rows it considers and the slices it produces.
type MeasurelessQuery struct {
	Filter  filter.Filter
	GroupBy olap.GroupBy
	// CustomMarker is an opaque value given to the data source. Queries
	// with different markers are never merged.
	CustomMarker interface{}
}

// NewMeasurelessQuery creates a query. A nil filter matches all rows.
func NewMeasurelessQuery(f filter.Filter, groupBy olap.GroupBy, marker interface{}) MeasurelessQuery {
	if f == nil {
		f = filter.MatchAll
	}
	return MeasurelessQuery{Filter: f, GroupBy: groupBy, CustomMarker: marker}
}

// Equal returns whether both queries have the same filter, group by and
// marker.
func (q MeasurelessQuery) Equal(other MeasurelessQuery) bool {
	return filter.Equal(q.filter(), other.filter()) &&
		q.GroupBy.Equal(other.GroupBy) &&
		reflect.DeepEqual(q.CustomMarker, other.CustomMarker)
}

func (q MeasurelessQuery) filter() filter.Filter {
	if q.Filter == nil {
		return filter.MatchAll
	}
	return q.Filter
}

func (q MeasurelessQuery) String() string {
	s := fmt.Sprintf("filter=%s, groupBy=%s", q.filter(), q.GroupBy)
	if q.CustomMarker != nil {
		s += fmt.Sprintf(", marker=%v", q.CustomMarker)
	}
	return s
}

type identity struct {
	Measure string
	Filter  string
	GroupBy []string
	Marker  string
}

func (q MeasurelessQuery) identityHash(measureName string) (uint64, error) {
	id := identity{
		Measure: measureName,
		Filter:  q.filter().String(),
		GroupBy: q.GroupBy.Columns(),
	}
	if q.CustomMarker != nil {
		id.Marker = fmt.Sprintf("%T:%v", q.CustomMarker, q.CustomMarker)
	}
	return hashstructure.Hash(id, nil)
}

// QueryStep is a node of the evaluation plan: a measure computed for a
// filter, a group by and a custom marker. Steps equal on those four
// properties are computed once per query.
type QueryStep struct {
	MeasurelessQuery
	Measure measure.Measure
	Debug   bool
	// Underlyings are the steps this one is computed from, in the order of
	// the underlying measures. Dispatchor steps have one underlying per
	// query returned by their decomposition.
	Underlyings []*QueryStep

	decomposition Decomposition
	cache         *Cache
	hash          uint64
	level         int
}

// NewQueryStep creates a step with no underlying.
func NewQueryStep(m measure.Measure, q MeasurelessQuery) (*QueryStep, error) {
	q = NewMeasurelessQuery(q.Filter, q.GroupBy, q.CustomMarker)
	hash, err := q.identityHash(m.MeasureName())
	if err != nil {
		return nil, err
	}

	return &QueryStep{
		MeasurelessQuery: q,
		Measure:          m,
		Debug:            measure.IsDebug(m),
		cache:            NewCache(),
		hash:             hash,
	}, nil
}

// Hash returns the identity hash of the step. Equal steps have the same
// hash.
func (s *QueryStep) Hash() uint64 { return s.hash }

// Equal returns whether both steps compute the same measure for the same
// query.
func (s *QueryStep) Equal(other *QueryStep) bool {
	return s.Measure.MeasureName() == other.Measure.MeasureName() &&
		s.MeasurelessQuery.Equal(other.MeasurelessQuery)
}

// Cache returns the scratch cache of the step. It lives as long as the
// step, that is one query.
func (s *QueryStep) Cache() *Cache { return s.cache }

// Decomposition returns the decomposition of a Dispatchor step, nil for
// other steps.
func (s *QueryStep) Decomposition() Decomposition { return s.decomposition }

// Level returns the depth of the step in its DAG: 0 for Aggregator steps,
// one more than its deepest underlying for the others.
func (s *QueryStep) Level() int { return s.level }

// Query returns the measureless part of the step.
func (s *QueryStep) Query() MeasurelessQuery { return s.MeasurelessQuery }

func (s *QueryStep) String() string {
	return fmt.Sprintf("%s(%s)", s.Measure.MeasureName(), s.MeasurelessQuery)
}

// StepSlice is a slice produced by a step. It gives access to the step
// filter and cache while evaluating the slice.
type StepSlice struct {
	olap.Slice
	Step *QueryStep
}

// NewStepSlice decorates the slice with the step producing it.
func NewStepSlice(slice olap.Slice, step *QueryStep) StepSlice {
	return StepSlice{Slice: slice, Step: step}
}
