package decomposition

import (
	"sync"

	"gopkg.in/src-d/go-pivot.v0/olap"
)

// GroupPredicate tells whether a group is accepted.
type GroupPredicate func(group interface{}) (bool, error)

// Definition is the mapping from elements to the groups they belong to.
type Definition interface {
	// Groups returns the groups of the element.
	Groups(element interface{}) (*olap.ValueSet, error)
	// MatchingGroups returns every known group accepted by the predicate.
	MatchingGroups(pred GroupPredicate) (*olap.ValueSet, error)
	// ElementsMatchingGroups returns the elements belonging to at least one
	// group accepted by the predicate.
	ElementsMatchingGroups(pred GroupPredicate) (*olap.ValueSet, error)
}

// InMemoryDefinition is a Definition held in memory.
type InMemoryDefinition struct {
	mu       sync.RWMutex
	elements *olap.ValueSet
	groups   map[string]*olap.ValueSet
}

var _ Definition = (*InMemoryDefinition)(nil)

// NewInMemoryDefinition creates an empty definition.
func NewInMemoryDefinition() *InMemoryDefinition {
	return &InMemoryDefinition{
		elements: olap.NewValueSet(),
		groups:   make(map[string]*olap.ValueSet),
	}
}

// Put adds the element to the given groups.
func (d *InMemoryDefinition) Put(element interface{}, groups ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := olap.ValueKey(element)
	set, ok := d.groups[key]
	if !ok {
		set = olap.NewValueSet()
		d.groups[key] = set
		d.elements.Add(element)
	}

	for _, g := range groups {
		set.Add(g)
	}
}

// Groups implements the Definition interface.
func (d *InMemoryDefinition) Groups(element interface{}) (*olap.ValueSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set, ok := d.groups[olap.ValueKey(element)]
	if !ok {
		return olap.NewValueSet(), nil
	}
	return olap.NewValueSet(set.Values()...), nil
}

// MatchingGroups implements the Definition interface.
func (d *InMemoryDefinition) MatchingGroups(pred GroupPredicate) (*olap.ValueSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := olap.NewValueSet()
	for _, e := range d.elements.Values() {
		for _, g := range d.groups[olap.ValueKey(e)].Values() {
			if result.Contains(g) {
				continue
			}

			ok, err := pred(g)
			if err != nil {
				return nil, err
			}
			if ok {
				result.Add(g)
			}
		}
	}
	return result, nil
}

// ElementsMatchingGroups implements the Definition interface.
func (d *InMemoryDefinition) ElementsMatchingGroups(pred GroupPredicate) (*olap.ValueSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := olap.NewValueSet()
	for _, e := range d.elements.Values() {
		for _, g := range d.groups[olap.ValueKey(e)].Values() {
			ok, err := pred(g)
			if err != nil {
				return nil, err
			}
			if ok {
				result.Add(e)
				break
			}
		}
	}
	return result, nil
}
