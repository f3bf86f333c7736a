package aggregation

import (
	"math"

	"gopkg.in/src-d/go-pivot.v0/olap"
)

// Aggregation merges values contributing to the same slice. Implementations
// must accept nil on both sides: merging with nil returns the other value,
// and merging two nils returns nil.
type Aggregation interface {
	// Key returns the name the aggregation is registered with.
	Key() string
	// Aggregate merges two values.
	Aggregate(a, b interface{}) (interface{}, error)
}

// IntAggregation is implemented by aggregations which can merge int64 values
// without boxing them. ok is false when the result does not fit an int64, in
// which case the generic Aggregate is used.
type IntAggregation interface {
	Aggregation
	AggregateInts(a, b int64) (result int64, ok bool)
}

// FloatAggregation is implemented by aggregations which can merge float64
// values without boxing them.
type FloatAggregation interface {
	Aggregation
	AggregateFloats(a, b float64) float64
}

const (
	// SumKey is the key of the Sum aggregation.
	SumKey = "sum"
	// MaxKey is the key of the Max aggregation.
	MaxKey = "max"
	// MinKey is the key of the Min aggregation.
	MinKey = "min"
)

// Sum adds numbers. Integers stay int64 unless the sum overflows or a
// non-integer is added, in which case the result is a float64. NaN is
// absorbing.
type Sum struct{}

var _ IntAggregation = Sum{}
var _ FloatAggregation = Sum{}

// Key implements the Aggregation interface.
func (Sum) Key() string { return SumKey }

// Aggregate implements the Aggregation interface.
func (s Sum) Aggregate(a, b interface{}) (interface{}, error) {
	if a == nil && b == nil {
		return nil, nil
	}

	for _, v := range []interface{}{a, b} {
		if v != nil && !olap.IsNumeric(v) {
			return nil, olap.ErrUnsupportedValue.New(SumKey, v, v)
		}
	}

	switch {
	case a == nil:
		return olap.Normalize(b), nil
	case b == nil:
		return olap.Normalize(a), nil
	}

	a, b = olap.Normalize(a), olap.Normalize(b)
	if ai, ok := a.(int64); ok {
		if bi, ok := b.(int64); ok {
			if r, ok := s.AggregateInts(ai, bi); ok {
				return r, nil
			}
		}
	}

	af, err := olap.ToFloat64(a)
	if err != nil {
		return nil, err
	}
	bf, err := olap.ToFloat64(b)
	if err != nil {
		return nil, err
	}
	return s.AggregateFloats(af, bf), nil
}

// AggregateInts implements the IntAggregation interface.
func (Sum) AggregateInts(a, b int64) (int64, bool) {
	r := a + b
	if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
		return 0, false
	}
	return r, true
}

// AggregateFloats implements the FloatAggregation interface.
func (Sum) AggregateFloats(a, b float64) float64 {
	return a + b
}

// Max keeps the greatest value, ignoring nils. Numbers are compared by
// value whatever their type.
type Max struct{}

var _ IntAggregation = Max{}
var _ FloatAggregation = Max{}

// Key implements the Aggregation interface.
func (Max) Key() string { return MaxKey }

// Aggregate implements the Aggregation interface.
func (Max) Aggregate(a, b interface{}) (interface{}, error) {
	return pick(a, b, func(cmp int) bool { return cmp >= 0 }), nil
}

// AggregateInts implements the IntAggregation interface.
func (Max) AggregateInts(a, b int64) (int64, bool) {
	if a >= b {
		return a, true
	}
	return b, true
}

// AggregateFloats implements the FloatAggregation interface.
func (Max) AggregateFloats(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b) || a >= b:
		return a
	default:
		return b
	}
}

// Min keeps the lowest value, ignoring nils. Numbers are compared by value
// whatever their type.
type Min struct{}

var _ IntAggregation = Min{}
var _ FloatAggregation = Min{}

// Key implements the Aggregation interface.
func (Min) Key() string { return MinKey }

// Aggregate implements the Aggregation interface.
func (Min) Aggregate(a, b interface{}) (interface{}, error) {
	return pick(a, b, func(cmp int) bool { return cmp <= 0 }), nil
}

// AggregateInts implements the IntAggregation interface.
func (Min) AggregateInts(a, b int64) (int64, bool) {
	if a <= b {
		return a, true
	}
	return b, true
}

// AggregateFloats implements the FloatAggregation interface.
func (Min) AggregateFloats(a, b float64) float64 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return math.NaN()
	case a <= b:
		return a
	default:
		return b
	}
}

func pick(a, b interface{}, keepA func(cmp int) bool) interface{} {
	switch {
	case a == nil:
		return olap.Normalize(b)
	case b == nil:
		return olap.Normalize(a)
	case keepA(olap.Compare(a, b)):
		return olap.Normalize(a)
	default:
		return olap.Normalize(b)
	}
}

// Reduce merges all the values with the aggregation, from left to right.
func Reduce(agg Aggregation, values []interface{}) (interface{}, error) {
	var result interface{}
	for _, v := range values {
		var err error
		result, err = agg.Aggregate(result, v)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}
