package olap

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrMeasureNotFound is returned when a measure name can not be resolved
	// in the measure bag.
	ErrMeasureNotFound = errors.NewKind("measure not found: %s")

	// ErrDuplicateMeasure is returned when two measures share the same name in
	// a single bag.
	ErrDuplicateMeasure = errors.NewKind("measure with name %s already exists")

	// ErrCyclicMeasure is returned when a measure depends, directly or not, on
	// itself.
	ErrCyclicMeasure = errors.NewKind("measure %s has a cyclic dependency: %v")

	// ErrInvalidMeasure is returned when a measure misses a mandatory property.
	ErrInvalidMeasure = errors.NewKind("invalid measure %s: %s")

	// ErrInvalidDecompositionOptions is returned when a decomposition can not
	// be built from its options.
	ErrInvalidDecompositionOptions = errors.NewKind("invalid options for decomposition %s: %s")

	// ErrInvalidConfiguration is returned when a raw measure definition can not
	// be turned into a measure.
	ErrInvalidConfiguration = errors.NewKind("invalid configuration: %s")

	// ErrUnsupportedFilter is returned when a filter shape can not be matched,
	// translated or rewritten.
	ErrUnsupportedFilter = errors.NewKind("unsupported filter: %s")

	// ErrUnknownAggregation is returned for an aggregation key missing from
	// the operator registry.
	ErrUnknownAggregation = errors.NewKind("unknown aggregation: %s")

	// ErrUnknownCombination is returned for a combination key missing from
	// the operator registry.
	ErrUnknownCombination = errors.NewKind("unknown combination: %s")

	// ErrUnknownDecomposition is returned for a decomposition key missing from
	// the operator registry.
	ErrUnknownDecomposition = errors.NewKind("unknown decomposition: %s")

	// ErrUnsupportedValue is returned when an operator receives a value of a
	// type it can not handle.
	ErrUnsupportedValue = errors.NewKind("%s does not support value %v (%T)")

	// ErrNullCoordinate is returned when an output slice would hold a null
	// coordinate. It means the planner and the executor disagree.
	ErrNullCoordinate = errors.NewKind("a coordinate can not be null: column %s in %s")

	// ErrDuplicateSlice is returned when a slice is written twice where a
	// single producer is expected.
	ErrDuplicateSlice = errors.NewKind("already has a value for %s")

	// ErrUnderlyingMismatch is returned when a step receives a number of
	// underlying columns different from its number of underlying measures.
	ErrUnderlyingMismatch = errors.NewKind("%s: invalid underlyings number, got %d, expected %d")
)
