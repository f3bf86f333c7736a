// Package view holds the tabular result of a query.
package view

import (
	"bytes"
	"fmt"
	"sync"
	"text/tabwriter"

	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/aggregation"
)

// ValueConsumer receives the values of one slice, one measure at a time.
type ValueConsumer interface {
	OnValue(measure string, value interface{})
}

// RowScanner receives every slice of a view. It returns the consumer of
// the slice values, or nil to skip the slice.
type RowScanner interface {
	OnKey(slice olap.Slice) ValueConsumer
}

// Scannable is anything able to stream slices and values to a scanner.
type Scannable interface {
	AcceptScanner(scanner RowScanner) error
}

// ValuesConsumer collects the values of a slice in a map.
type ValuesConsumer map[string]interface{}

// OnValue implements the ValueConsumer interface.
func (c ValuesConsumer) OnValue(measure string, value interface{}) {
	c[measure] = value
}

// RowScannerFunc adapts a function to the RowScanner interface.
type RowScannerFunc func(slice olap.Slice) ValueConsumer

// OnKey implements the RowScanner interface.
func (f RowScannerFunc) OnKey(slice olap.Slice) ValueConsumer { return f(slice) }

type row struct {
	slice  olap.Slice
	values map[string]interface{}
}

// TabularView maps result slices to the values of the measures at each
// slice. Iteration is sorted by slice.
type TabularView struct {
	aggregations map[string]aggregation.Aggregation

	mu       sync.RWMutex
	index    map[string]int
	rows     []row
	measures []string
}

var _ Scannable = (*TabularView)(nil)

// New creates an empty view. A measure appended twice to the same slice
// is an error.
func New() *TabularView {
	return NewWithAggregations(nil)
}

// NewWithAggregations creates an empty view merging the values appended
// twice to the same slice with the aggregation of their measure.
func NewWithAggregations(aggregations map[string]aggregation.Aggregation) *TabularView {
	return &TabularView{
		aggregations: aggregations,
		index:        make(map[string]int),
	}
}

// Append adds the values to the slice, merging them with the values it
// already holds.
func (v *TabularView) Append(slice olap.Slice, values map[string]interface{}) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	i, ok := v.index[slice.Key()]
	if !ok {
		i = len(v.rows)
		v.index[slice.Key()] = i
		v.rows = append(v.rows, row{slice: slice, values: make(map[string]interface{}, len(values))})
	}

	current := v.rows[i].values
	for m, val := range values {
		val = olap.Normalize(val)
		prev, exists := current[m]
		if !exists {
			v.addMeasure(m)
			current[m] = val
			continue
		}

		agg, ok := v.aggregations[m]
		if !ok {
			return olap.ErrDuplicateSlice.New(fmt.Sprintf("%s in %s", m, slice))
		}

		merged, err := agg.Aggregate(prev, val)
		if err != nil {
			return err
		}
		current[m] = merged
	}
	return nil
}

func (v *TabularView) addMeasure(m string) {
	for _, known := range v.measures {
		if known == m {
			return
		}
	}
	v.measures = append(v.measures, m)
}

// Get returns a copy of the values of the slice.
func (v *TabularView) Get(slice olap.Slice) (map[string]interface{}, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	i, ok := v.index[slice.Key()]
	if !ok {
		return nil, false
	}

	result := make(map[string]interface{}, len(v.rows[i].values))
	for m, val := range v.rows[i].values {
		result[m] = val
	}
	return result, true
}

// Len returns the number of slices.
func (v *TabularView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.rows)
}

// Measures returns the measures of the view in the order they were first
// appended.
func (v *TabularView) Measures() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]string, len(v.measures))
	copy(result, v.measures)
	return result
}

// Slices returns the sorted slices of the view.
func (v *TabularView) Slices() []olap.Slice {
	v.mu.RLock()
	result := make([]olap.Slice, len(v.rows))
	for i, r := range v.rows {
		result[i] = r.slice
	}
	v.mu.RUnlock()

	olap.SortSlices(result)
	return result
}

// AcceptScanner streams every slice, sorted, to the scanner. The values of
// a slice are pushed in measure order; measures with no value at the slice
// are skipped.
func (v *TabularView) AcceptScanner(scanner RowScanner) error {
	measures := v.Measures()
	for _, slice := range v.Slices() {
		consumer := scanner.OnKey(slice)
		if consumer == nil {
			continue
		}

		values, _ := v.Get(slice)
		for _, m := range measures {
			if val, ok := values[m]; ok {
				consumer.OnValue(m, val)
			}
		}
	}
	return nil
}

// Load copies the content of the scannable into the view. A slice already
// in the view is an error.
func (v *TabularView) Load(s Scannable) error {
	var err error
	scanErr := s.AcceptScanner(RowScannerFunc(func(slice olap.Slice) ValueConsumer {
		if err != nil {
			return nil
		}

		v.mu.Lock()
		_, exists := v.index[slice.Key()]
		v.mu.Unlock()
		if exists {
			err = olap.ErrDuplicateSlice.New(slice)
			return nil
		}

		return &loadConsumer{view: v, slice: slice, err: &err}
	}))
	if scanErr != nil {
		return scanErr
	}
	return err
}

type loadConsumer struct {
	view  *TabularView
	slice olap.Slice
	err   *error
}

func (c *loadConsumer) OnValue(measure string, value interface{}) {
	if *c.err != nil {
		return
	}
	*c.err = c.view.Append(c.slice, map[string]interface{}{measure: value})
}

// AsMap returns the values of every slice, keyed by the slice string.
func (v *TabularView) AsMap() map[string]map[string]interface{} {
	result := make(map[string]map[string]interface{}, v.Len())
	_ = v.AcceptScanner(RowScannerFunc(func(slice olap.Slice) ValueConsumer {
		values := make(ValuesConsumer)
		result[slice.String()] = values
		return values
	}))
	return result
}

// String returns the view as a table, one line per slice.
func (v *TabularView) String() string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	measures := v.Measures()
	fmt.Fprint(w, "slice")
	for _, m := range measures {
		fmt.Fprintf(w, "\t%s", m)
	}
	fmt.Fprintln(w)

	for _, slice := range v.Slices() {
		values, _ := v.Get(slice)
		fmt.Fprint(w, slice)
		for _, m := range measures {
			if val, ok := values[m]; ok {
				fmt.Fprintf(w, "\t%v", val)
			} else {
				fmt.Fprint(w, "\t")
			}
		}
		fmt.Fprintln(w)
	}

	_ = w.Flush()
	return buf.String()
}
