package aggregation

import (
	"github.com/spf13/cast"
	"gopkg.in/src-d/go-pivot.v0/olap"
)

// Combination computes the value of a slice from the values of the
// underlying measures at the same slice. Values are given in the order of
// the underlying measures; a nil value means the underlying measure has no
// value for the slice. A nil result means the slice has no value.
type Combination interface {
	// Key returns the name the combination is registered with.
	Key() string
	// Combine computes the value for the slice.
	Combine(slice olap.Slice, values []interface{}) (interface{}, error)
}

// Options configure combinations. UnderlyingNamesOption always holds the
// names of the underlying measures, in order.
type Options map[string]interface{}

const (
	// UnderlyingNamesOption is the option holding the underlying names.
	UnderlyingNamesOption = "underlyingNames"
	// ExpressionOption is the option holding the expression of an
	// Expression combination.
	ExpressionOption = "expression"
)

// UnderlyingNames returns the underlying names held by the options.
func (o Options) UnderlyingNames() []string {
	v, ok := o[UnderlyingNamesOption]
	if !ok {
		return nil
	}
	return cast.ToStringSlice(v)
}

// String returns the option with the given key as a string.
func (o Options) String(key string) (string, bool) {
	v, ok := o[key]
	if !ok || v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	return s, err == nil
}

// WithUnderlyingNames returns a copy of the options, defaulting the
// underlying names to the given ones. Explicit options take precedence.
func (o Options) WithUnderlyingNames(names []string) Options {
	result := Options{UnderlyingNamesOption: names}
	for k, v := range o {
		result[k] = v
	}
	return result
}

const (
	// DivideKey is the key of the Divide combination.
	DivideKey = "divide"
	// ExpressionKey is the key of the Expression combination.
	ExpressionKey = "expression"
)

// AggregationCombination reduces the non-nil values with an aggregation.
// If every value is nil, the result is nil.
type AggregationCombination struct {
	Aggregation Aggregation
}

// NewAggregationCombination creates a combination reducing the values with
// the given aggregation.
func NewAggregationCombination(agg Aggregation) *AggregationCombination {
	return &AggregationCombination{Aggregation: agg}
}

// Key implements the Combination interface.
func (c *AggregationCombination) Key() string { return c.Aggregation.Key() }

// Combine implements the Combination interface.
func (c *AggregationCombination) Combine(_ olap.Slice, values []interface{}) (interface{}, error) {
	return Reduce(c.Aggregation, values)
}

// Divide divides the first value by the second one. The result is a float64,
// or nil if any value is nil or the denominator is zero.
type Divide struct{}

// Key implements the Combination interface.
func (Divide) Key() string { return DivideKey }

// Combine implements the Combination interface.
func (Divide) Combine(slice olap.Slice, values []interface{}) (interface{}, error) {
	if len(values) != 2 {
		return nil, olap.ErrUnderlyingMismatch.New(DivideKey, len(values), 2)
	}

	if values[0] == nil || values[1] == nil {
		return nil, nil
	}

	numerator, err := olap.ToFloat64(values[0])
	if err != nil {
		return nil, err
	}
	denominator, err := olap.ToFloat64(values[1])
	if err != nil {
		return nil, err
	}

	if denominator == 0 {
		return nil, nil
	}
	return numerator / denominator, nil
}
