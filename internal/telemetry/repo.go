package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	dom "mdtodo/internal/domain"
	"mdtodo/internal/repo"
)

const storeScopeName = "mdtodo/store"

// InstrumentedRepo wraps a repo.TodoRepo with a span and metrics per call.
type InstrumentedRepo struct {
	inner  repo.TodoRepo
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
	count  metric.Int64Gauge
}

// WrapRepo returns r decorated with instrumentation, or r itself when
// telemetry is disabled.
func WrapRepo(r repo.TodoRepo, enabled bool) repo.TodoRepo {
	if !enabled {
		return r
	}
	m := Meter(storeScopeName)
	ops, _ := m.Int64Counter("mdtodo.store.operations",
		metric.WithDescription("Total store operations executed"),
	)
	dur, _ := m.Float64Histogram("mdtodo.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("mdtodo.store.errors",
		metric.WithDescription("Total store operation errors"),
	)
	count, _ := m.Int64Gauge("mdtodo.todo.count",
		metric.WithDescription("Number of todos seen by the last List"),
	)
	return &InstrumentedRepo{
		inner:  r,
		tracer: Tracer(storeScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
		count:  count,
	}
}

func (s *InstrumentedRepo) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("store.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name, trace.WithAttributes(all...))
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

func (s *InstrumentedRepo) done(ctx context.Context, span trace.Span, start time.Time, err error) {
	s.dur.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1)
	}
	span.End()
}

func (s *InstrumentedRepo) Create(ctx context.Context, t dom.Todo) (dom.Todo, error) {
	ctx, span, start := s.op(ctx, "Create", attribute.String("todo.section", string(t.Section)))
	v, err := s.inner.Create(ctx, t)
	if err == nil {
		span.SetAttributes(attribute.String("todo.id", v.ID))
	}
	s.done(ctx, span, start, err)
	return v, err
}

func (s *InstrumentedRepo) GetByID(ctx context.Context, id string) (dom.Todo, error) {
	ctx, span, start := s.op(ctx, "GetByID", attribute.String("todo.id", id))
	v, err := s.inner.GetByID(ctx, id)
	s.done(ctx, span, start, err)
	return v, err
}

func (s *InstrumentedRepo) List(ctx context.Context) ([]dom.Todo, error) {
	ctx, span, start := s.op(ctx, "List")
	v, err := s.inner.List(ctx)
	if err == nil {
		s.count.Record(ctx, int64(len(v)))
		span.SetAttributes(attribute.Int("todo.count", len(v)))
	}
	s.done(ctx, span, start, err)
	return v, err
}

func (s *InstrumentedRepo) Update(ctx context.Context, id string, p repo.Patch) (dom.Todo, error) {
	ctx, span, start := s.op(ctx, "Update",
		attribute.String("todo.id", id),
		attribute.Bool("todo.rename", p.Title != nil),
	)
	v, err := s.inner.Update(ctx, id, p)
	s.done(ctx, span, start, err)
	return v, err
}

func (s *InstrumentedRepo) Delete(ctx context.Context, id string) error {
	ctx, span, start := s.op(ctx, "Delete", attribute.String("todo.id", id))
	err := s.inner.Delete(ctx, id)
	s.done(ctx, span, start, err)
	return err
}

func (s *InstrumentedRepo) Move(ctx context.Context, srcSection dom.Section, srcIndex int, dstSection dom.Section, dstIndex int) ([]dom.Todo, error) {
	ctx, span, start := s.op(ctx, "Move",
		attribute.String("move.src_section", string(srcSection)),
		attribute.Int("move.src_index", srcIndex),
		attribute.String("move.dst_section", string(dstSection)),
		attribute.Int("move.dst_index", dstIndex),
	)
	v, err := s.inner.Move(ctx, srcSection, srcIndex, dstSection, dstIndex)
	s.done(ctx, span, start, err)
	return v, err
}

// Invalidate forwards to the wrapped store when it keeps an index.
func (s *InstrumentedRepo) Invalidate() {
	if inv, ok := s.inner.(interface{ Invalidate() }); ok {
		inv.Invalidate()
	}
}
