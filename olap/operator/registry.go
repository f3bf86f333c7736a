package operator

import (
	"fmt"
	"sync"

	"github.com/spf13/cast"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/aggregation"
	"gopkg.in/src-d/go-pivot.v0/olap/decomposition"
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
)

// DefinitionOption is the many to many option holding the definition. It
// may be a decomposition.Definition or the path of a bolt file.
const DefinitionOption = "definition"

// CombinationFactory builds a combination from its options.
type CombinationFactory func(options aggregation.Options) (aggregation.Combination, error)

// DecompositionFactory builds a decomposition from its options.
type DecompositionFactory func(options map[string]interface{}) (plan.Decomposition, error)

// DefinitionResolver returns the many to many definition to use for the
// given options.
type DefinitionResolver func(options map[string]interface{}) (decomposition.Definition, error)

// Registry holds the operators measures refer to by key. It is built at
// startup and shared by the planner and the executor.
type Registry struct {
	mu             sync.RWMutex
	aggregations   map[string]aggregation.Aggregation
	combinations   map[string]CombinationFactory
	decompositions map[string]DecompositionFactory

	boltMu      sync.Mutex
	definitions map[string]*decomposition.BoltDefinition
}

var _ plan.Operators = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		aggregations:   make(map[string]aggregation.Aggregation),
		combinations:   make(map[string]CombinationFactory),
		decompositions: make(map[string]DecompositionFactory),
		definitions:    make(map[string]*decomposition.BoltDefinition),
	}
}

// NewDefaults creates a registry holding the built-in operators.
func NewDefaults() *Registry {
	r := NewRegistry()

	for _, agg := range []aggregation.Aggregation{
		aggregation.Sum{},
		aggregation.Max{},
		aggregation.Min{},
	} {
		r.RegisterAggregation(agg)

		agg := agg
		r.RegisterCombination(agg.Key(), func(aggregation.Options) (aggregation.Combination, error) {
			return aggregation.NewAggregationCombination(agg), nil
		})
	}

	r.RegisterCombination(aggregation.DivideKey, func(aggregation.Options) (aggregation.Combination, error) {
		return aggregation.Divide{}, nil
	})
	r.RegisterCombination(aggregation.ExpressionKey, func(options aggregation.Options) (aggregation.Combination, error) {
		return aggregation.NewExpression(options)
	})

	r.RegisterDecomposition(decomposition.IdentityKey, func(map[string]interface{}) (plan.Decomposition, error) {
		return decomposition.Identity{}, nil
	})
	r.WithManyToManyDefinition(r.resolveDefinition)

	return r
}

// RegisterAggregation registers the aggregation under its key, replacing
// any aggregation with the same key.
func (r *Registry) RegisterAggregation(agg aggregation.Aggregation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregations[agg.Key()] = agg
}

// RegisterCombination registers a combination factory under the given key.
func (r *Registry) RegisterCombination(key string, factory CombinationFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.combinations[key] = factory
}

// RegisterDecomposition registers a decomposition factory under the given
// key.
func (r *Registry) RegisterDecomposition(key string, factory DecompositionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decompositions[key] = factory
}

// WithManyToManyDefinition registers the many to many decomposition, getting
// its definition from the given resolver.
func (r *Registry) WithManyToManyDefinition(resolve DefinitionResolver) *Registry {
	r.RegisterDecomposition(decomposition.ManyToManyKey, func(options map[string]interface{}) (plan.Decomposition, error) {
		def, err := resolve(options)
		if err != nil {
			return nil, err
		}
		return decomposition.NewManyToMany(options, def)
	})
	return r
}

// Aggregation returns the aggregation with the given key.
func (r *Registry) Aggregation(key string) (aggregation.Aggregation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg, ok := r.aggregations[key]
	if !ok {
		return nil, olap.ErrUnknownAggregation.New(key)
	}
	return agg, nil
}

// Combination builds the combination with the given key.
func (r *Registry) Combination(key string, options aggregation.Options) (aggregation.Combination, error) {
	r.mu.RLock()
	factory, ok := r.combinations[key]
	r.mu.RUnlock()
	if !ok {
		return nil, olap.ErrUnknownCombination.New(key)
	}
	return factory(options)
}

// Decomposition builds the decomposition with the given key. It implements
// the plan.Operators interface.
func (r *Registry) Decomposition(key string, options map[string]interface{}) (plan.Decomposition, error) {
	r.mu.RLock()
	factory, ok := r.decompositions[key]
	r.mu.RUnlock()
	if !ok {
		return nil, olap.ErrUnknownDecomposition.New(key)
	}
	return factory(options)
}

// Keys returns the registered aggregation, combination and decomposition
// keys, for diagnostics.
func (r *Registry) Keys() (aggregations, combinations, decompositions []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for k := range r.aggregations {
		aggregations = append(aggregations, k)
	}
	for k := range r.combinations {
		combinations = append(combinations, k)
	}
	for k := range r.decompositions {
		decompositions = append(decompositions, k)
	}
	return
}

// resolveDefinition accepts a Definition value or the path of a bolt file.
// Bolt definitions are opened once per path and closed by Close.
func (r *Registry) resolveDefinition(options map[string]interface{}) (decomposition.Definition, error) {
	switch def := options[DefinitionOption].(type) {
	case nil:
		return nil, olap.ErrInvalidDecompositionOptions.New(
			decomposition.ManyToManyKey,
			"missing "+DefinitionOption,
		)
	case decomposition.Definition:
		return def, nil
	default:
		path, err := cast.ToStringE(def)
		if err != nil || path == "" {
			return nil, olap.ErrInvalidDecompositionOptions.New(
				decomposition.ManyToManyKey,
				fmt.Sprintf("invalid %s %v", DefinitionOption, def),
			)
		}

		r.boltMu.Lock()
		defer r.boltMu.Unlock()

		b, ok := r.definitions[path]
		if !ok {
			b = decomposition.NewBoltDefinition(path)
			r.definitions[path] = b
		}
		return b, nil
	}
}

// Close closes the bolt definitions opened by the registry.
func (r *Registry) Close() error {
	r.boltMu.Lock()
	defer r.boltMu.Unlock()

	var firstErr error
	for path, def := range r.definitions {
		if err := def.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.definitions, path)
	}
	return firstErr
}
