package olap

import (
	"context"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	uuid "github.com/satori/go.uuid"
	"golang.org/x/sync/errgroup"
)

// Context carries a single query through planning, the table query and the
// evaluation of its steps. Every blocking call of the engine receives it.
type Context struct {
	context.Context
	queryID   string
	startedAt time.Time
	tracer    opentracing.Tracer
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithTracer makes the query report its spans to t.
func WithTracer(t opentracing.Tracer) ContextOption {
	return func(c *Context) { c.tracer = t }
}

// WithQueryID sets the identifier of the query. It is the key of the query
// in the process list.
func WithQueryID(id string) ContextOption {
	return func(c *Context) { c.queryID = id }
}

// NewContext creates the context of a new query. Without options, spans go
// to a noop tracer and the query gets a random id.
func NewContext(ctx context.Context, opts ...ContextOption) *Context {
	c := &Context{
		Context:   ctx,
		startedAt: time.Now(),
		tracer:    opentracing.NoopTracer{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.queryID == "" {
		c.queryID = uuid.NewV4().String()
	}
	return c
}

// NewEmptyContext is a query context with default options.
func NewEmptyContext() *Context { return NewContext(context.TODO()) }

// QueryID returns the identifier of the query.
func (c *Context) QueryID() string { return c.queryID }

// StartedAt is the time the query context was created.
func (c *Context) StartedAt() time.Time { return c.startedAt }

// Span starts a span named opName, child of the span already in the context
// if any. Work done under the span must use the returned context.
func (c *Context) Span(
	opName string,
	opts ...opentracing.StartSpanOption,
) (opentracing.Span, *Context) {
	if parent := opentracing.SpanFromContext(c.Context); parent != nil {
		opts = append(opts, opentracing.ChildOf(parent.Context()))
	}

	span := c.tracer.StartSpan(opName, opts...)
	return span, c.WithContext(opentracing.ContextWithSpan(c.Context, span))
}

// WithContext returns a copy of the query context over ctx.
func (c *Context) WithContext(ctx context.Context) *Context {
	nc := *c
	nc.Context = ctx
	return &nc
}

// NewSubContext returns a cancellable copy of the query context. The process
// list keeps the cancel function to kill the query.
func (c *Context) NewSubContext() (*Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Context)
	return c.WithContext(ctx), cancel
}

// NewErrgroup returns a group for the steps evaluated concurrently, along
// with the context they must use. The context is cancelled as soon as one
// step fails.
func (c *Context) NewErrgroup() (*errgroup.Group, *Context) {
	eg, egCtx := errgroup.WithContext(c.Context)
	return eg, c.WithContext(egCtx)
}
