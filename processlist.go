package pivot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-errors.v1"
	"gopkg.in/src-d/go-pivot.v0/olap"
)

// ErrQueryIDAlreadyUsed is returned when a query is registered twice.
var ErrQueryIDAlreadyUsed = errors.NewKind("query id %s is already in use")

// Process is a query being evaluated.
type Process struct {
	ID        string
	Query     string
	Phase     olap.QueryPhase
	Cells     map[string]int
	StartedAt time.Time
	Kill      context.CancelFunc
}

// Done cancels the context of the query.
func (p *Process) Done() {
	if kill := p.Kill; kill != nil {
		kill()
	}
}

// ProcessList keeps track of all the running queries and their progress.
type ProcessList struct {
	mu    sync.RWMutex
	procs map[string]*Process
}

// NewProcessList creates a new process list.
func NewProcessList() *ProcessList {
	return &ProcessList{
		procs: make(map[string]*Process),
	}
}

// Processes returns a copy of the running processes, oldest first.
func (pl *ProcessList) Processes() []Process {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	var result = make([]Process, 0, len(pl.procs))
	for _, proc := range pl.procs {
		p := *proc
		p.Cells = make(map[string]int, len(proc.Cells))
		for m, n := range proc.Cells {
			p.Cells[m] = n
		}
		result = append(result, p)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// AddProcess registers the query under the id of the context. The returned
// context is cancelled when the process is killed.
func (pl *ProcessList) AddProcess(ctx *olap.Context, q fmt.Stringer) (*olap.Context, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if _, ok := pl.procs[ctx.QueryID()]; ok {
		return nil, ErrQueryIDAlreadyUsed.New(ctx.QueryID())
	}

	ctx, cancel := ctx.NewSubContext()
	pl.procs[ctx.QueryID()] = &Process{
		ID:        ctx.QueryID(),
		Query:     q.String(),
		Cells:     make(map[string]int),
		StartedAt: ctx.StartedAt(),
		Kill:      cancel,
	}

	return ctx, nil
}

// UpdatePhase records the last completed phase of the query.
func (pl *ProcessList) UpdatePhase(id string, phase olap.QueryPhase) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if p, ok := pl.procs[id]; ok {
		p.Phase = phase
	}
}

// UpdateCells adds the cells computed for the measure to the progress of
// the query.
func (pl *ProcessList) UpdateCells(id, measure string, delta int) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if p, ok := pl.procs[id]; ok {
		p.Cells[measure] += delta
	}
}

// Kill cancels the query with the given id.
func (pl *ProcessList) Kill(id string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if proc, ok := pl.procs[id]; ok {
		logrus.Infof("kill query: id %s", id)
		proc.Done()
		delete(pl.procs, id)
	}
}

// Done removes the finished query with the given id from the process list.
// If the process does not exist, it will do nothing.
func (pl *ProcessList) Done(id string) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if proc, ok := pl.procs[id]; ok {
		proc.Done()
	}

	delete(pl.procs, id)
}

func (pl *ProcessList) observer(id string) olap.Observer {
	return &processObserver{pl: pl, id: id}
}

// processObserver reports the progress of one query to the process list.
type processObserver struct {
	olap.NoopObserver
	pl *ProcessList
	id string
}

func (o *processObserver) QueryPhaseCompleted(phase olap.QueryPhase, _ string) {
	o.pl.UpdatePhase(o.id, phase)
}

func (o *processObserver) MeasureCompleted(measure string, cells int, _ string) {
	o.pl.UpdateCells(o.id, measure, cells)
}
