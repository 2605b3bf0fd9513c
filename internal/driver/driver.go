// Package driver runs the whole pipeline on Sierra text: parse, lower,
// convert to the llvm dialect, verify, then print the module or hand it to
// the execution engine.
package driver

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"sierra2mlir/internal/engine"
	"sierra2mlir/internal/layout"
	"sierra2mlir/internal/lower"
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/dialects"
	"sierra2mlir/internal/observ"
	"sierra2mlir/internal/passes"
	"sierra2mlir/internal/sierra"
	"sierra2mlir/internal/trace"
)

// Stage names reported to observers, timers and the tracer.
const (
	StageParse  = "parse"
	StageLower  = "lower"
	StagePasses = "passes"
	StageVerify = "verify"
	StageEmit   = "emit"
	StageCache  = "cache"
)

// Options configure Compile and Execute.
type Options struct {
	VerifyMoves    bool
	PrintLocations bool
	// Target is a target triple; empty selects x86_64-linux-gnu.
	Target string
	// Cache, when set, stores printed modules across runs.
	Cache    *Cache
	MaxSteps int64
	OptLevel int

	Timer    *observ.Timer
	Observer PhaseObserver
}

type pipeline struct {
	ctx  context.Context
	opts Options
}

// stage runs fn as a named phase: traced, timed and reported.
func (p *pipeline) stage(name string, fn func(ctx context.Context) error) error {
	span, ctx := trace.Start(p.ctx, trace.ScopeDriver, name)
	stop := p.opts.Timer.Start(name)
	p.notify(PhaseEvent{Name: name, Status: PhaseStart})
	start := time.Now()

	err := fn(ctx)

	elapsed := time.Since(start)
	detail := "ok"
	if err != nil {
		detail = err.Error()
	}
	stop("")
	span.End(detail)
	p.notify(PhaseEvent{Name: name, Status: PhaseEnd, Elapsed: elapsed, Err: err})
	if err != nil {
		return errors.Wrap(err, name)
	}
	return nil
}

// Lower parses src and produces a verified module in the llvm dialect.
func Lower(ctx context.Context, src string, opts Options) (*mlir.Module, error) {
	p := &pipeline{ctx: ctx, opts: opts}
	return p.lower(src)
}

func (p *pipeline) lower(src string) (*mlir.Module, error) {
	target, err := layout.TargetByTriple(p.opts.Target)
	if err != nil {
		return nil, errors.Wrap(err, "target")
	}

	var prog *sierra.Program
	if err := p.stage(StageParse, func(context.Context) error {
		prog, err = sierra.Parse(src)
		return err
	}); err != nil {
		return nil, err
	}

	var m *mlir.Module
	if err := p.stage(StageLower, func(ctx context.Context) error {
		m, err = lower.Lower(ctx, prog, lower.Options{VerifyMoves: p.opts.VerifyMoves, Target: target})
		return err
	}); err != nil {
		return nil, err
	}

	reg := dialects.Registry()
	if err := p.stage(StagePasses, func(ctx context.Context) error {
		pm := passes.NewManager(reg)
		pm.Add(passes.Standard()...)
		pm.EnableVerifier(true)
		return pm.Run(ctx, m)
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageVerify, func(context.Context) error {
		return mlir.Verify(m, reg)
	}); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *pipeline) print(m *mlir.Module) (string, error) {
	var sb strings.Builder
	err := p.stage(StageEmit, func(context.Context) error {
		return mlir.Print(&sb, m, mlir.PrintOptions{Locations: p.opts.PrintLocations})
	})
	return sb.String(), err
}

// cached looks src up in the cache. Cache failures are traced and treated
// as misses.
func (p *pipeline) cached(key Digest) (string, bool) {
	if p.opts.Cache == nil {
		return "", false
	}
	var text string
	var hit bool
	_ = p.stage(StageCache, func(ctx context.Context) error {
		entry, ok, err := p.opts.Cache.Get(key)
		if err != nil {
			trace.Point(ctx, trace.ScopeDriver, "cache-error", err.Error())
			return nil
		}
		if ok {
			text, hit = entry.Module, true
		}
		return nil
	})
	return text, hit
}

func (p *pipeline) store(key Digest, m *mlir.Module, text string) {
	if p.opts.Cache == nil {
		return
	}
	if err := p.opts.Cache.Put(key, newCacheEntry(m, text)); err != nil {
		trace.Point(p.ctx, trace.ScopeDriver, "cache-error", err.Error())
	}
}

// Compile returns the printed MLIR module for src.
func Compile(ctx context.Context, src string, opts Options) (string, error) {
	p := &pipeline{ctx: ctx, opts: opts}
	key := CacheKey(src, opts)
	if text, ok := p.cached(key); ok {
		return text, nil
	}
	m, err := p.lower(src)
	if err != nil {
		return "", err
	}
	text, err := p.print(m)
	if err != nil {
		return "", err
	}
	p.store(key, m, text)
	return text, nil
}

// Execute compiles src and returns an engine ready to invoke its functions.
// A cached module is parsed back and verified instead of being rebuilt; one
// that no longer verifies is rebuilt.
func Execute(ctx context.Context, src string, opts Options) (*engine.Engine, error) {
	p := &pipeline{ctx: ctx, opts: opts}
	target, err := layout.TargetByTriple(opts.Target)
	if err != nil {
		return nil, errors.Wrap(err, "target")
	}

	key := CacheKey(src, opts)
	m := p.fromCache(key)
	if m == nil {
		if m, err = p.lower(src); err != nil {
			return nil, err
		}
		if opts.Cache != nil {
			text, err := p.print(m)
			if err != nil {
				return nil, err
			}
			p.store(key, m, text)
		}
	}
	e, err := engine.New(m, engine.Options{MaxSteps: opts.MaxSteps, OptLevel: opts.OptLevel, Target: target})
	if err != nil {
		return nil, errors.Wrap(err, "engine")
	}
	return e, nil
}

func (p *pipeline) fromCache(key Digest) *mlir.Module {
	text, ok := p.cached(key)
	if !ok {
		return nil
	}
	var m *mlir.Module
	err := p.stage(StageVerify, func(context.Context) error {
		parsed, err := mlir.Parse(text)
		if err != nil {
			return err
		}
		if err := mlir.Verify(parsed, dialects.Registry()); err != nil {
			return err
		}
		m = parsed
		return nil
	})
	if err != nil {
		trace.Point(p.ctx, trace.ScopeDriver, "cache-stale", err.Error())
		return nil
	}
	return m
}
