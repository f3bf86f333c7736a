package exec

import (
	"sync"

	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/aggregation"
)

type lane byte

const (
	intLane lane = iota
	floatLane
	objectLane
)

type cell struct {
	slice  olap.Slice
	lane   lane
	int    int64
	float  float64
	object interface{}
}

func (c *cell) value() interface{} {
	switch c.lane {
	case intLane:
		return c.int
	case floatLane:
		return c.float
	default:
		return c.object
	}
}

func (c *cell) set(v interface{}) {
	c.object = nil
	switch v := v.(type) {
	case int64:
		c.lane, c.int = intLane, v
	case float64:
		c.lane, c.float = floatLane, v
	default:
		c.lane, c.object = objectLane, v
	}
}

// Column holds the value of a step for each slice. Integers and floats are
// stored unboxed and merged with the fast paths of the aggregation when it
// has some. It is safe for concurrent use.
type Column struct {
	agg aggregation.Aggregation

	mu    sync.RWMutex
	index map[string]int
	cells []cell
}

// NewColumn creates an empty column merging values with the given
// aggregation. A nil aggregation makes Merge fail on slices already set.
func NewColumn(agg aggregation.Aggregation) *Column {
	return &Column{agg: agg, index: make(map[string]int)}
}

// Merge merges the value into the slice with the aggregation of the column.
// Nil values are ignored.
func (c *Column) Merge(slice olap.Slice, v interface{}) error {
	v = olap.Normalize(v)
	if v == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[slice.Key()]
	if !ok {
		c.add(slice, v)
		return nil
	}

	if c.agg == nil {
		return olap.ErrDuplicateSlice.New(slice)
	}

	cl := &c.cells[i]
	switch {
	case cl.lane == intLane:
		if b, ok := v.(int64); ok {
			if ia, ok := c.agg.(aggregation.IntAggregation); ok {
				if r, ok := ia.AggregateInts(cl.int, b); ok {
					cl.int = r
					return nil
				}
			}
		}
	case cl.lane == floatLane:
		if b, ok := v.(float64); ok {
			if fa, ok := c.agg.(aggregation.FloatAggregation); ok {
				cl.float = fa.AggregateFloats(cl.float, b)
				return nil
			}
		}
	}

	r, err := c.agg.Aggregate(cl.value(), v)
	if err != nil {
		return err
	}
	cl.set(olap.Normalize(r))
	return nil
}

// Put sets the value of the slice, replacing any previous value. A nil value
// removes nothing and is ignored.
func (c *Column) Put(slice olap.Slice, v interface{}) {
	v = olap.Normalize(v)
	if v == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if i, ok := c.index[slice.Key()]; ok {
		c.cells[i].set(v)
		return
	}
	c.add(slice, v)
}

func (c *Column) add(slice olap.Slice, v interface{}) {
	c.index[slice.Key()] = len(c.cells)
	c.cells = append(c.cells, cell{slice: slice})
	c.cells[len(c.cells)-1].set(v)
}

// Get returns the value of the slice and whether it has one.
func (c *Column) Get(slice olap.Slice) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[slice.Key()]
	if !ok {
		return nil, false
	}
	return c.cells[i].value(), true
}

// OnValue calls fn with the value of the slice, if it has one, and returns
// whether it did.
func (c *Column) OnValue(slice olap.Slice, fn func(v interface{})) bool {
	v, ok := c.Get(slice)
	if ok {
		fn(v)
	}
	return ok
}

// Len returns the number of slices with a value.
func (c *Column) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cells)
}

// Slices returns the slices with a value, in insertion order or sorted.
func (c *Column) Slices(sorted bool) []olap.Slice {
	c.mu.RLock()
	result := make([]olap.Slice, len(c.cells))
	for i := range c.cells {
		result[i] = c.cells[i].slice
	}
	c.mu.RUnlock()

	if sorted {
		olap.SortSlices(result)
	}
	return result
}

// ForEach calls fn for every slice and its value, in insertion order,
// stopping at the first error.
func (c *Column) ForEach(fn func(slice olap.Slice, v interface{}) error) error {
	c.mu.RLock()
	cells := make([]cell, len(c.cells))
	copy(cells, c.cells)
	c.mu.RUnlock()

	for i := range cells {
		if err := fn(cells[i].slice, cells[i].value()); err != nil {
			return err
		}
	}
	return nil
}
