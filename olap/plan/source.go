package plan

import (
	"fmt"
	"strings"

	"gopkg.in/src-d/go-pivot.v0/olap"
)

// AggregatorRef is an aggregation of a source column requested from a data
// source. Values are reported under Name.
type AggregatorRef struct {
	Name           string
	ColumnName     string
	AggregationKey string
}

func (a AggregatorRef) String() string {
	if a.Name == a.ColumnName {
		return fmt.Sprintf("%s(%s)", a.AggregationKey, a.ColumnName)
	}
	return fmt.Sprintf("%s=%s(%s)", a.Name, a.AggregationKey, a.ColumnName)
}

// TableQuery is what a data source is asked for: the rows matching the
// filter, sliced by the group by, with the values of every aggregator.
type TableQuery struct {
	MeasurelessQuery
	Aggregators []AggregatorRef
	Debug       bool
	Explain     bool

	steps map[string]*QueryStep
}

// Step returns the Aggregator step reported under the given name.
func (q *TableQuery) Step(name string) (*QueryStep, bool) {
	s, ok := q.steps[name]
	return s, ok
}

func (q *TableQuery) String() string {
	aggs := make([]string, len(q.Aggregators))
	for i, a := range q.Aggregators {
		aggs[i] = a.String()
	}
	return fmt.Sprintf("TableQuery(%s, aggregators=[%s])", q.MeasurelessQuery, strings.Join(aggs, ", "))
}

// Row is a row returned by a data source: the slice it belongs to and the
// value of each aggregator, by name. Sources may return several rows for the
// same slice, either raw rows or partial aggregates: values are merged with
// the aggregation of their aggregator.
type Row struct {
	Slice  olap.Slice
	Values map[string]interface{}
}

// RowIter is an iterator over rows. Next returns io.EOF when there are no
// more rows.
type RowIter interface {
	Next() (Row, error)
	Close() error
}

// Source is the data source queries are evaluated against.
type Source interface {
	fmt.Stringer
	// Scan returns the rows for the given table query.
	Scan(ctx *olap.Context, q *TableQuery) (RowIter, error)
}

// Contribution is a value a decomposition sends to the slice obtained by
// applying Coordinates to the decomposed slice.
type Contribution struct {
	Coordinates map[string]interface{}
	Value       interface{}
}

// Decomposition fans values out from one slice to other slices.
type Decomposition interface {
	// Decompose returns the contributions of the value of the given slice.
	Decompose(slice StepSlice, value interface{}) ([]Contribution, error)
	// UnderlyingSteps returns the queries the underlying measure has to be
	// evaluated on to compute the given step.
	UnderlyingSteps(step *QueryStep) ([]MeasurelessQuery, error)
}

// Operators gives the planner access to the decompositions.
type Operators interface {
	Decomposition(key string, options map[string]interface{}) (Decomposition, error)
}
