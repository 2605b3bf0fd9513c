package trace

import (
	"context"
	"sync/atomic"
	"time"
)

var spanIDs atomic.Uint64

type spanKey struct{}

// Span is an open begin/end pair. The zero-ID span returned when its scope
// is filtered out ignores every call.
type Span struct {
	t      Tracer
	id     uint64
	parent uint64
	scope  Scope
	name   string
	start  time.Time
	extra  map[string]string
}

// Start opens a span under the span recorded in ctx. The returned context
// makes the new span the parent of nested work.
func Start(ctx context.Context, scope Scope, name string) (*Span, context.Context) {
	t := FromContext(ctx)
	if !t.Level().Admits(scope) {
		return &Span{}, ctx
	}
	s := &Span{
		t:      t,
		id:     spanIDs.Add(1),
		parent: parentSpan(ctx),
		scope:  scope,
		name:   name,
		start:  time.Now(),
	}
	t.Emit(&Event{Time: s.start, Seq: nextSeq(), Kind: KindBegin, Scope: scope, Span: s.id, Parent: s.parent, Name: name})
	return s, context.WithValue(ctx, spanKey{}, s.id)
}

// WithExtra attaches key=value to the end event.
func (s *Span) WithExtra(key, value string) *Span {
	if s.id == 0 {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string, 2)
	}
	s.extra[key] = value
	return s
}

// End closes the span and returns its duration.
func (s *Span) End(detail string) time.Duration {
	if s.id == 0 {
		return 0
	}
	now := time.Now()
	s.t.Emit(&Event{Time: now, Seq: nextSeq(), Kind: KindEnd, Scope: s.scope, Span: s.id, Parent: s.parent, Name: s.name, Detail: detail, Extra: s.extra})
	return now.Sub(s.start)
}

// ID is zero for a filtered span.
func (s *Span) ID() uint64 { return s.id }

// Point records an instant event under the span in ctx.
func Point(ctx context.Context, scope Scope, name, detail string) {
	t := FromContext(ctx)
	if !t.Level().Admits(scope) {
		return
	}
	t.Emit(&Event{Time: time.Now(), Seq: nextSeq(), Kind: KindPoint, Scope: scope, Parent: parentSpan(ctx), Name: name, Detail: detail})
}

func parentSpan(ctx context.Context) uint64 {
	id, _ := ctx.Value(spanKey{}).(uint64)
	return id
}
