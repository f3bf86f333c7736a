package measure

import (
	"sort"
	"sync"

	"gopkg.in/src-d/go-pivot.v0/internal/similartext"
	"gopkg.in/src-d/go-pivot.v0/olap"
)

// Bag holds the measures available to queries, by name. It is filled at
// configuration time and only read while queries run.
type Bag struct {
	mu       sync.RWMutex
	measures map[string]Measure
	names    []string
}

// NewBag creates a bag with the given measures. It panics if two measures
// share a name.
func NewBag(measures ...Measure) *Bag {
	b := &Bag{measures: make(map[string]Measure, len(measures))}
	for _, m := range measures {
		if err := b.Add(m); err != nil {
			panic(err)
		}
	}
	return b
}

// Add registers the measure.
func (b *Bag) Add(m Measure) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.measures == nil {
		b.measures = make(map[string]Measure)
	}

	name := m.MeasureName()
	if _, ok := b.measures[name]; ok {
		return olap.ErrDuplicateMeasure.New(name)
	}

	b.measures[name] = m
	b.names = append(b.names, name)
	return nil
}

// Get returns the measure with the given name.
func (b *Bag) Get(name string) (Measure, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m, ok := b.measures[name]
	if !ok {
		similar := similartext.FindFromMap(b.measures, name)
		return nil, olap.ErrMeasureNotFound.New(name + similar)
	}
	return m, nil
}

// Names returns the names of the measures, sorted.
func (b *Bag) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]string, len(b.names))
	copy(result, b.names)
	sort.Strings(result)
	return result
}

// Measures returns the measures in the order they were added.
func (b *Bag) Measures() []Measure {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Measure, len(b.names))
	for i, n := range b.names {
		result[i] = b.measures[n]
	}
	return result
}

// Len returns the number of measures.
func (b *Bag) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.names)
}

// Validate checks every measure has its mandatory properties, every
// underlying name resolves in the bag and no measure depends on itself.
func (b *Bag) Validate() error {
	measures := b.Measures()
	for _, m := range measures {
		if err := validateMeasure(m); err != nil {
			return err
		}

		for _, u := range m.Underlyings() {
			if _, err := b.Get(u); err != nil {
				return err
			}
		}
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(measures))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return olap.ErrCyclicMeasure.New(name, append(path, name))
		}

		state[name] = visiting
		m, err := b.Get(name)
		if err != nil {
			return err
		}
		for _, u := range m.Underlyings() {
			if err := visit(u, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = visited
		return nil
	}

	for _, m := range measures {
		if err := visit(m.MeasureName(), nil); err != nil {
			return err
		}
	}
	return nil
}

func validateMeasure(m Measure) error {
	name := m.MeasureName()
	if name == "" {
		return olap.ErrInvalidMeasure.New(m, "name is mandatory")
	}

	switch m := m.(type) {
	case *Aggregator:
	case *Combinator:
		if len(m.UnderlyingNames) == 0 {
			return olap.ErrInvalidMeasure.New(name, "underlyings are mandatory")
		}
	case *Filtrator:
		if m.Underlying == "" {
			return olap.ErrInvalidMeasure.New(name, "underlying is mandatory")
		}
		if m.Filter == nil {
			return olap.ErrInvalidMeasure.New(name, "filter is mandatory")
		}
	case *Bucketor:
		if len(m.UnderlyingNames) == 0 {
			return olap.ErrInvalidMeasure.New(name, "underlyings are mandatory")
		}
	case *Dispatchor:
		if m.Underlying == "" {
			return olap.ErrInvalidMeasure.New(name, "underlying is mandatory")
		}
		if m.DecompositionKey == "" {
			return olap.ErrInvalidMeasure.New(name, "decomposition is mandatory")
		}
	case *Columnator:
		if len(m.UnderlyingNames) == 0 {
			return olap.ErrInvalidMeasure.New(name, "underlyings are mandatory")
		}
	default:
		return olap.ErrInvalidMeasure.New(name, "unknown measure type")
	}
	return nil
}
