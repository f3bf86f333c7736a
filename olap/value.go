package olap

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Normalize converts the given value to the canonical representation used
// for coordinates and aggregated values: every integer kind becomes an int64
// and float32 becomes float64. Other values are returned as they are.
func Normalize(v interface{}) interface{} {
	switch v := v.(type) {
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return normalizeUint(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return normalizeUint(v)
	case float32:
		return float64(v)
	default:
		return v
	}
}

func normalizeUint(v uint64) interface{} {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

// IsNumeric returns whether the value is a number of any kind.
func IsNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// IsIntegral returns whether the value is an integer of any kind.
func IsIntegral(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// ToFloat64 converts a numeric value into a float64.
func ToFloat64(v interface{}) (float64, error) {
	if !IsNumeric(v) {
		return 0, ErrUnsupportedValue.New("float conversion", v, v)
	}
	return cast.ToFloat64E(Normalize(v))
}

// ToInt64 converts an integral value into an int64.
func ToInt64(v interface{}) (int64, error) {
	if !IsIntegral(v) {
		return 0, ErrUnsupportedValue.New("integer conversion", v, v)
	}
	if u, ok := v.(uint64); ok && u > math.MaxInt64 {
		return 0, ErrUnsupportedValue.New("integer conversion", v, v)
	}
	return cast.ToInt64E(Normalize(v))
}

const (
	rankNull = iota
	rankBool
	rankNumber
	rankString
	rankTime
	rankOther
)

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case string:
		return rankString
	case time.Time:
		return rankTime
	default:
		if IsNumeric(v) {
			return rankNumber
		}
		return rankOther
	}
}

// Comparable returns whether both values are of the same kind, that is
// whether Compare orders them by value rather than by kind.
func Comparable(a, b interface{}) bool {
	return rank(a) == rank(b)
}

// Compare returns -1, 0 or 1 depending on a being lower, equal or greater
// than b. Numbers are compared by value whatever their Go type. Values of
// different kinds are ordered by kind (null, bool, number, string, time,
// others) so that any two values can be compared.
func Compare(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return compareInts(int64(ra), int64(rb))
	}

	switch ra {
	case rankNull:
		return 0
	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case rankNumber:
		return compareNumbers(a, b)
	case rankString:
		return strings.Compare(a.(string), b.(string))
	case rankTime:
		at, bt := a.(time.Time), b.(time.Time)
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	default:
		if c := strings.Compare(fmt.Sprintf("%T", a), fmt.Sprintf("%T", b)); c != 0 {
			return c
		}
		return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
	}
}

func compareNumbers(a, b interface{}) int {
	if IsIntegral(a) && IsIntegral(b) {
		ai, aerr := ToInt64(a)
		bi, berr := ToInt64(b)
		if aerr == nil && berr == nil {
			return compareInts(ai, bi)
		}
	}

	af, _ := ToFloat64(a)
	bf, _ := ToFloat64(b)
	switch {
	case math.IsNaN(af) && math.IsNaN(bf):
		return 0
	case math.IsNaN(af):
		return -1
	case math.IsNaN(bf):
		return 1
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Equal returns whether both values are equal. Numbers are equal when they
// have the same value, whatever their Go type.
func Equal(a, b interface{}) bool {
	return ValueKey(a) == ValueKey(b)
}

// ValueKey returns a string identifying the value. Two values have the same
// key if and only if they are Equal.
func ValueKey(v interface{}) string {
	switch v := Normalize(v).(type) {
	case nil:
		return "n"
	case int64:
		return "i:" + strconv.FormatInt(v, 10)
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return "i:" + strconv.FormatInt(int64(v), 10)
		}
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64)
	case string:
		return "s:" + v
	case bool:
		return "b:" + strconv.FormatBool(v)
	case time.Time:
		return "t:" + v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("o:%T:%v", v, v)
	}
}

// ValueSet is a set of values keyed by ValueKey. It keeps the insertion
// order of its values.
type ValueSet struct {
	index  map[string]int
	values []interface{}
}

// NewValueSet creates a set holding the given values.
func NewValueSet(values ...interface{}) *ValueSet {
	s := &ValueSet{index: make(map[string]int, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add adds the value to the set, returning whether it was missing.
func (s *ValueSet) Add(v interface{}) bool {
	if s.index == nil {
		s.index = make(map[string]int)
	}

	k := ValueKey(v)
	if _, ok := s.index[k]; ok {
		return false
	}

	s.index[k] = len(s.values)
	s.values = append(s.values, Normalize(v))
	return true
}

// Contains returns whether the value is in the set.
func (s *ValueSet) Contains(v interface{}) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[ValueKey(v)]
	return ok
}

// Len returns the number of values in the set.
func (s *ValueSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// Values returns the values of the set in insertion order.
func (s *ValueSet) Values() []interface{} {
	if s == nil {
		return nil
	}
	result := make([]interface{}, len(s.values))
	copy(result, s.values)
	return result
}

// Sorted returns the values of the set in Compare order.
func (s *ValueSet) Sorted() []interface{} {
	result := s.Values()
	sortValues(result)
	return result
}

// Intersect returns the values present in both sets. The smaller set is
// iterated, the order of the result follows it.
func (s *ValueSet) Intersect(other *ValueSet) *ValueSet {
	small, large := s, other
	if other.Len() < s.Len() {
		small, large = other, s
	}

	result := NewValueSet()
	for _, v := range small.Values() {
		if large.Contains(v) {
			result.Add(v)
		}
	}
	return result
}

// String implements the fmt.Stringer interface.
func (s *ValueSet) String() string {
	values := s.Sorted()
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
