package aggregation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-pivot.v0/olap"
)

func TestAggregationCombination(t *testing.T) {
	require := require.New(t)

	c := NewAggregationCombination(Sum{})
	require.Equal(SumKey, c.Key())

	result, err := c.Combine(olap.EmptySlice(), []interface{}{1035, 690})
	require.NoError(err)
	require.Equal(int64(1725), result)

	result, err = c.Combine(olap.EmptySlice(), []interface{}{nil, 234})
	require.NoError(err)
	require.Equal(int64(234), result)

	result, err = c.Combine(olap.EmptySlice(), []interface{}{nil, nil})
	require.NoError(err)
	require.Nil(result)

	result, err = NewAggregationCombination(Max{}).Combine(olap.EmptySlice(), []interface{}{468, 456})
	require.NoError(err)
	require.Equal(int64(468), result)
}

func TestDivide(t *testing.T) {
	testCases := []struct {
		name     string
		values   []interface{}
		expected interface{}
	}{
		{"ratio", []interface{}{468, 1035}, 468.0 / 1035.0},
		{"null numerator", []interface{}{nil, 1035}, nil},
		{"null denominator", []interface{}{468, nil}, nil},
		{"zero denominator", []interface{}{468, 0}, nil},
		{"floats", []interface{}{1.5, 0.5}, 3.0},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			result, err := Divide{}.Combine(olap.EmptySlice(), tt.values)
			require.NoError(err)
			require.Equal(tt.expected, result)
		})
	}

	_, err := Divide{}.Combine(olap.EmptySlice(), []interface{}{1})
	require.True(t, olap.ErrUnderlyingMismatch.Is(err))
}

func TestOptions(t *testing.T) {
	require := require.New(t)

	o := Options{"expression": "k1 + k2"}.WithUnderlyingNames([]string{"k1", "k2"})
	require.Equal([]string{"k1", "k2"}, o.UnderlyingNames())

	s, ok := o.String(ExpressionOption)
	require.True(ok)
	require.Equal("k1 + k2", s)

	_, ok = o.String("missing")
	require.False(ok)

	o = Options{UnderlyingNamesOption: []interface{}{"a"}}.WithUnderlyingNames([]string{"b"})
	require.Equal([]string{"a"}, o.UnderlyingNames())
}

func TestExpression(t *testing.T) {
	require := require.New(t)

	e, err := NewExpression(Options{
		ExpressionOption:      "k1 + 2 * k2",
		UnderlyingNamesOption: []string{"k1", "k2"},
	})
	require.NoError(err)
	require.Equal(ExpressionKey, e.Key())

	result, err := e.Combine(olap.EmptySlice(), []interface{}{123, 456})
	require.NoError(err)
	require.Equal(int64(1035), result)

	result, err = e.Combine(olap.EmptySlice(), []interface{}{1.5, 1})
	require.NoError(err)
	require.Equal(3.5, result)

	result, err = e.Combine(olap.EmptySlice(), []interface{}{nil, 1})
	require.NoError(err)
	require.Nil(result)

	ratio, err := NewExpression(Options{
		ExpressionOption:      "k1 / k2",
		UnderlyingNamesOption: []string{"k1", "k2"},
	})
	require.NoError(err)

	result, err = ratio.Combine(olap.EmptySlice(), []interface{}{1, 4})
	require.NoError(err)
	require.Equal(0.25, result)

	result, err = ratio.Combine(olap.EmptySlice(), []interface{}{1, 0})
	require.NoError(err)
	require.Nil(result)
}

func TestExpressionInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		options Options
	}{
		{"missing expression", Options{UnderlyingNamesOption: []string{"k1"}}},
		{"syntax error", Options{ExpressionOption: "k1 +", UnderlyingNamesOption: []string{"k1"}}},
		{"invalid name", Options{ExpressionOption: "1", UnderlyingNamesOption: []string{"k-1"}}},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExpression(tt.options)
			require.Error(t, err)
			require.True(t, olap.ErrInvalidConfiguration.Is(err))
		})
	}
}
