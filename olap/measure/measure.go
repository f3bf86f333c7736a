package measure

import (
	"fmt"
	"strings"

	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/aggregation"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
)

// Measure is a named computation producing one value per slice. Variants
// are *Aggregator, *Combinator, *Filtrator, *Bucketor, *Dispatchor and
// *Columnator.
type Measure interface {
	fmt.Stringer
	// MeasureName returns the name of the measure, unique in its bag.
	MeasureName() string
	// Underlyings returns the names of the measures this one depends on.
	Underlyings() []string
	measure()
}

// Aggregator reads a column of the data source, reducing its values with
// an aggregation.
type Aggregator struct {
	Name string
	// ColumnName defaults to Name.
	ColumnName string
	// AggregationKey defaults to sum.
	AggregationKey string
	Debug          bool
}

// NewAggregator creates an aggregator summing the column with the same
// name.
func NewAggregator(name string) *Aggregator {
	return &Aggregator{Name: name}
}

// MeasureName implements the Measure interface.
func (m *Aggregator) MeasureName() string { return m.Name }

// Underlyings implements the Measure interface.
func (m *Aggregator) Underlyings() []string { return nil }

// Column returns the column read by the aggregator.
func (m *Aggregator) Column() string {
	if m.ColumnName == "" {
		return m.Name
	}
	return m.ColumnName
}

// Aggregation returns the key of the aggregation of the aggregator.
func (m *Aggregator) Aggregation() string {
	return defaultKey(m.AggregationKey, aggregation.SumKey)
}

func (m *Aggregator) String() string {
	return fmt.Sprintf("Aggregator(%s: %s(%s))", m.Name, m.Aggregation(), m.Column())
}

func (*Aggregator) measure() {}

// Combinator combines the values of its underlying measures at the same
// slice.
type Combinator struct {
	Name            string
	UnderlyingNames []string
	// CombinationKey defaults to sum.
	CombinationKey     string
	CombinationOptions map[string]interface{}
	Debug              bool
}

// NewCombinator creates a combinator.
func NewCombinator(name, combinationKey string, underlyings ...string) *Combinator {
	return &Combinator{
		Name:            name,
		UnderlyingNames: underlyings,
		CombinationKey:  combinationKey,
	}
}

// MeasureName implements the Measure interface.
func (m *Combinator) MeasureName() string { return m.Name }

// Underlyings implements the Measure interface.
func (m *Combinator) Underlyings() []string { return m.UnderlyingNames }

// Combination returns the key of the combination of the combinator.
func (m *Combinator) Combination() string {
	return defaultKey(m.CombinationKey, aggregation.SumKey)
}

// Options returns the combination options, including the underlying names.
func (m *Combinator) Options() aggregation.Options {
	return aggregation.Options(m.CombinationOptions).WithUnderlyingNames(m.UnderlyingNames)
}

func (m *Combinator) String() string {
	return fmt.Sprintf("Combinator(%s: %s(%s))", m.Name, m.Combination(), strings.Join(m.UnderlyingNames, ", "))
}

func (*Combinator) measure() {}

// Filtrator restricts its underlying measure to the rows matching a filter.
type Filtrator struct {
	Name       string
	Underlying string
	Filter     filter.Filter
	Debug      bool
}

// NewFiltrator creates a filtrator.
func NewFiltrator(name, underlying string, f filter.Filter) *Filtrator {
	return &Filtrator{Name: name, Underlying: underlying, Filter: f}
}

// MeasureName implements the Measure interface.
func (m *Filtrator) MeasureName() string { return m.Name }

// Underlyings implements the Measure interface.
func (m *Filtrator) Underlyings() []string { return []string{m.Underlying} }

func (m *Filtrator) String() string {
	return fmt.Sprintf("Filtrator(%s: %s WHERE %s)", m.Name, m.Underlying, filterOrMatchAll(m.Filter))
}

func (*Filtrator) measure() {}

// Bucketor computes its underlying measures on a finer group by, combines
// them per fine slice then aggregates the combined values into the
// requested slices.
type Bucketor struct {
	Name            string
	UnderlyingNames []string
	GroupBy         olap.GroupBy
	// AggregationKey defaults to sum.
	AggregationKey string
	// CombinationKey defaults to sum.
	CombinationKey     string
	CombinationOptions map[string]interface{}
	Debug              bool
}

// MeasureName implements the Measure interface.
func (m *Bucketor) MeasureName() string { return m.Name }

// Underlyings implements the Measure interface.
func (m *Bucketor) Underlyings() []string { return m.UnderlyingNames }

// Aggregation returns the key of the aggregation of the bucketor.
func (m *Bucketor) Aggregation() string {
	return defaultKey(m.AggregationKey, aggregation.SumKey)
}

// Combination returns the key of the combination of the bucketor.
func (m *Bucketor) Combination() string {
	return defaultKey(m.CombinationKey, aggregation.SumKey)
}

// Options returns the combination options, including the underlying names.
func (m *Bucketor) Options() aggregation.Options {
	return aggregation.Options(m.CombinationOptions).WithUnderlyingNames(m.UnderlyingNames)
}

func (m *Bucketor) String() string {
	return fmt.Sprintf(
		"Bucketor(%s: %s(%s(%s)) BY %s)",
		m.Name,
		m.Aggregation(),
		m.Combination(),
		strings.Join(m.UnderlyingNames, ", "),
		m.GroupBy,
	)
}

func (*Bucketor) measure() {}

// Dispatchor fans the values of its underlying measure out to other slices
// with a decomposition, aggregating the values landing on the same slice.
type Dispatchor struct {
	Name                 string
	Underlying           string
	DecompositionKey     string
	DecompositionOptions map[string]interface{}
	// AggregationKey defaults to sum.
	AggregationKey string
	Debug          bool
}

// MeasureName implements the Measure interface.
func (m *Dispatchor) MeasureName() string { return m.Name }

// Underlyings implements the Measure interface.
func (m *Dispatchor) Underlyings() []string { return []string{m.Underlying} }

// Aggregation returns the key of the aggregation of the dispatchor.
func (m *Dispatchor) Aggregation() string {
	return defaultKey(m.AggregationKey, aggregation.SumKey)
}

func (m *Dispatchor) String() string {
	return fmt.Sprintf("Dispatchor(%s: %s(%s) THROUGH %s)", m.Name, m.Aggregation(), m.Underlying, m.DecompositionKey)
}

func (*Dispatchor) measure() {}

// Columnator is a Combinator evaluated only when all its required columns
// are grouped by or filtered on. Otherwise it has no value.
type Columnator struct {
	Name            string
	UnderlyingNames []string
	RequiredColumns []string
	// CombinationKey defaults to sum.
	CombinationKey     string
	CombinationOptions map[string]interface{}
	Debug              bool
}

// MeasureName implements the Measure interface.
func (m *Columnator) MeasureName() string { return m.Name }

// Underlyings implements the Measure interface.
func (m *Columnator) Underlyings() []string { return m.UnderlyingNames }

// Combination returns the key of the combination of the columnator.
func (m *Columnator) Combination() string {
	return defaultKey(m.CombinationKey, aggregation.SumKey)
}

// Options returns the combination options, including the underlying names.
func (m *Columnator) Options() aggregation.Options {
	return aggregation.Options(m.CombinationOptions).WithUnderlyingNames(m.UnderlyingNames)
}

func (m *Columnator) String() string {
	return fmt.Sprintf(
		"Columnator(%s: %s(%s) REQUIRES %s)",
		m.Name,
		m.Combination(),
		strings.Join(m.UnderlyingNames, ", "),
		strings.Join(m.RequiredColumns, ", "),
	)
}

func (*Columnator) measure() {}

// IsDebug returns whether the measure is flagged for debugging.
func IsDebug(m Measure) bool {
	switch m := m.(type) {
	case *Aggregator:
		return m.Debug
	case *Combinator:
		return m.Debug
	case *Filtrator:
		return m.Debug
	case *Bucketor:
		return m.Debug
	case *Dispatchor:
		return m.Debug
	case *Columnator:
		return m.Debug
	default:
		return false
	}
}

func defaultKey(key, def string) string {
	if key == "" {
		return def
	}
	return key
}

func filterOrMatchAll(f filter.Filter) filter.Filter {
	if f == nil {
		return filter.MatchAll
	}
	return f
}
