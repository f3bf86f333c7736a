package decomposition

import (
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
)

const (
	// IdentityKey is the key of the Identity decomposition.
	IdentityKey = "identity"
	// ManyToManyKey is the key of the ManyToMany decomposition.
	ManyToManyKey = "many_to_many"
)

// Identity sends every value to its own slice.
type Identity struct{}

var _ plan.Decomposition = Identity{}

// Decompose implements the plan.Decomposition interface.
func (Identity) Decompose(_ plan.StepSlice, value interface{}) ([]plan.Contribution, error) {
	return []plan.Contribution{{Value: value}}, nil
}

// UnderlyingSteps implements the plan.Decomposition interface.
func (Identity) UnderlyingSteps(step *plan.QueryStep) ([]plan.MeasurelessQuery, error) {
	return []plan.MeasurelessQuery{step.Query()}, nil
}
