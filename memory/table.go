package memory

import (
	"fmt"
	"io"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/src-d/go-pivot.v0/olap"
	"gopkg.in/src-d/go-pivot.v0/olap/filter"
	"gopkg.in/src-d/go-pivot.v0/olap/plan"
)

// Table is an in-memory data source. Rows are maps from column to value.
// It returns one row per matching table row and lets the engine aggregate
// them.
type Table struct {
	name string

	mu   sync.RWMutex
	rows []map[string]interface{}
}

var _ plan.Source = (*Table)(nil)

// NewTable creates a new Table with the given name and rows.
func NewTable(name string, rows ...map[string]interface{}) *Table {
	t := &Table{name: name}
	for _, r := range rows {
		t.insert(r)
	}
	return t
}

// Name returns the name of the table.
func (t *Table) Name() string {
	return t.name
}

func (t *Table) String() string {
	return fmt.Sprintf("memory.Table(%s)", t.name)
}

// Insert adds a row to the table.
func (t *Table) Insert(row map[string]interface{}) error {
	for c := range row {
		if c == "" {
			return ErrEmptyColumn.New(t.name)
		}
	}

	t.insert(row)
	return nil
}

func (t *Table) insert(row map[string]interface{}) {
	normalized := make(map[string]interface{}, len(row))
	for c, v := range row {
		normalized[c] = olap.Normalize(v)
	}

	t.mu.Lock()
	t.rows = append(t.rows, normalized)
	t.mu.Unlock()
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Columns returns every column found in the rows, sorted.
func (t *Table) Columns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := olap.NewValueSet()
	for _, r := range t.rows {
		for c := range r {
			set.Add(c)
		}
	}

	values := set.Sorted()
	result := make([]string, len(values))
	for i, v := range values {
		result[i] = v.(string)
	}
	return result
}

// Scan implements the plan.Source interface. Rows not matching the filter,
// or missing a grouped column, are skipped.
func (t *Table) Scan(ctx *olap.Context, q *plan.TableQuery) (plan.RowIter, error) {
	span, ctx := ctx.Span("memory.Scan")
	span.SetTag("table", t.name)

	t.mu.RLock()
	rows := make([]map[string]interface{}, len(t.rows))
	copy(rows, t.rows)
	t.mu.RUnlock()

	if q.Debug {
		logrus.WithFields(logrus.Fields{
			"table": t.name,
			"rows":  len(rows),
		}).Infof("[DEBUG] scanning %s", q)
	}

	return &iter{ctx: ctx, span: span, q: q, rows: rows}, nil
}

type iter struct {
	ctx  *olap.Context
	span opentracing.Span
	q    *plan.TableQuery
	rows []map[string]interface{}
	idx  int
}

func (i *iter) Next() (plan.Row, error) {
	for {
		if err := i.ctx.Err(); err != nil {
			return plan.Row{}, err
		}

		if i.idx >= len(i.rows) {
			return plan.Row{}, io.EOF
		}
		row := i.rows[i.idx]
		i.idx++

		r, ok, err := i.project(row)
		if err != nil {
			return plan.Row{}, err
		}
		if ok {
			return r, nil
		}
	}
}

func (i *iter) project(row map[string]interface{}) (plan.Row, bool, error) {
	ok, err := filter.Match(i.q.Filter, filter.MapRow(row))
	if err != nil || !ok {
		return plan.Row{}, false, err
	}

	columns := i.q.GroupBy.Columns()
	coordinates := make(map[string]interface{}, len(columns))
	for _, c := range columns {
		v := row[c]
		if v == nil {
			return plan.Row{}, false, nil
		}
		coordinates[c] = v
	}

	values := make(map[string]interface{}, len(i.q.Aggregators))
	empty := true
	for _, a := range i.q.Aggregators {
		v := row[a.ColumnName]
		if v != nil {
			empty = false
		}
		values[a.Name] = v
	}
	if empty {
		return plan.Row{}, false, nil
	}

	return plan.Row{Slice: olap.NewSlice(coordinates), Values: values}, true, nil
}

func (i *iter) Close() error {
	if i.span != nil {
		i.span.Finish()
		i.span = nil
	}
	return nil
}
