package olap

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// QueryPhase is a phase of the evaluation of a query.
type QueryPhase string

const (
	// PhasePlan is completed once the step DAG is built.
	PhasePlan QueryPhase = "plan"
	// PhaseTableQuery is completed once every leaf step received its rows.
	PhaseTableQuery QueryPhase = "table_query"
	// PhaseSteps is completed once every internal step is evaluated.
	PhaseSteps QueryPhase = "steps"
	// PhaseView is completed once the root columns are materialized.
	PhaseView QueryPhase = "view"
)

// Observer receives notifications about the progress of a query. It is
// purely informational: no result depends on it.
type Observer interface {
	// QueryPhaseCompleted is called at the end of each phase.
	QueryPhaseCompleted(phase QueryPhase, source string)
	// StepEvaluating is called before a step is evaluated.
	StepEvaluating(step fmt.Stringer, source string)
	// MeasureCompleted is called once a step produced its column.
	MeasureCompleted(measure string, cellCount int, source string)
}

// NoopObserver is an Observer doing nothing.
type NoopObserver struct{}

var _ Observer = NoopObserver{}

// QueryPhaseCompleted implements the Observer interface.
func (NoopObserver) QueryPhaseCompleted(QueryPhase, string) {}

// StepEvaluating implements the Observer interface.
func (NoopObserver) StepEvaluating(fmt.Stringer, string) {}

// MeasureCompleted implements the Observer interface.
func (NoopObserver) MeasureCompleted(string, int, string) {}

// LogObserver writes every notification to a logrus logger.
type LogObserver struct {
	Logger logrus.FieldLogger
}

var _ Observer = (*LogObserver)(nil)

// NewLogObserver creates an observer logging to the standard logrus logger.
func NewLogObserver() *LogObserver {
	return &LogObserver{Logger: logrus.StandardLogger()}
}

// QueryPhaseCompleted implements the Observer interface.
func (o *LogObserver) QueryPhaseCompleted(phase QueryPhase, source string) {
	o.Logger.WithFields(logrus.Fields{
		"phase":  phase,
		"source": source,
	}).Info("query phase completed")
}

// StepEvaluating implements the Observer interface.
func (o *LogObserver) StepEvaluating(step fmt.Stringer, source string) {
	o.Logger.WithFields(logrus.Fields{
		"step":   step.String(),
		"source": source,
	}).Debug("evaluating step")
}

// MeasureCompleted implements the Observer interface.
func (o *LogObserver) MeasureCompleted(measure string, cellCount int, source string) {
	o.Logger.WithFields(logrus.Fields{
		"measure": measure,
		"cells":   cellCount,
		"source":  source,
	}).Info("measure completed")
}

// MultiObserver forwards notifications to several observers. It may be
// notified from concurrent goroutines; observers are called one at a time.
type MultiObserver struct {
	mu        sync.Mutex
	observers []Observer
}

var _ Observer = (*MultiObserver)(nil)

// NewMultiObserver creates an observer forwarding to the given ones.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

// QueryPhaseCompleted implements the Observer interface.
func (o *MultiObserver) QueryPhaseCompleted(phase QueryPhase, source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, obs := range o.observers {
		obs.QueryPhaseCompleted(phase, source)
	}
}

// StepEvaluating implements the Observer interface.
func (o *MultiObserver) StepEvaluating(step fmt.Stringer, source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, obs := range o.observers {
		obs.StepEvaluating(step, source)
	}
}

// MeasureCompleted implements the Observer interface.
func (o *MultiObserver) MeasureCompleted(measure string, cellCount int, source string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, obs := range o.observers {
		obs.MeasureCompleted(measure, cellCount, source)
	}
}
