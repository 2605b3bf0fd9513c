// Package engine executes lowered modules. It interprets the func, cf,
// arith, scf and llvm ops produced by the lowering over a byte-addressed
// memory laid out for the compilation target, which is how the CLI runs
// Sierra entry points without a native toolchain.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"sierra2mlir/internal/layout"
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/trace"
)

// ErrStepLimit is returned when an invocation runs out of its step budget.
var ErrStepLimit = errors.New("step limit exceeded")

const (
	maxCallDepth     = 4096
	cancelCheckEvery = 1024
)

// Options configure an Engine.
type Options struct {
	// MaxSteps bounds the number of executed operations per Invoke.
	// Zero means unbounded.
	MaxSteps int64
	// OptLevel is accepted for parity with native execution. It must be
	// between 0 and 3 and does not change results.
	OptLevel int
	Target   layout.Target
}

// Panic reports that the program aborted: a Sierra panic reached the abort
// runtime or control hit an unreachable op.
type Panic struct {
	Reason string
	Loc    mlir.Location
	// Backtrace lists function names, innermost first.
	Backtrace []string
}

func (p *Panic) Error() string {
	var sb strings.Builder
	sb.WriteString("program panicked: ")
	sb.WriteString(p.Reason)
	if p.Loc.Known() {
		fmt.Fprintf(&sb, " at %s", p.Loc)
	}
	if len(p.Backtrace) > 0 {
		sb.WriteString(" in ")
		sb.WriteString(strings.Join(p.Backtrace, " <- "))
	}
	return sb.String()
}

// Engine runs functions of one module. An Engine keeps its memory across
// invocations and is not safe for concurrent use.
type Engine struct {
	module  *mlir.Module
	opts    Options
	layouts *layout.Engine
	funcs   map[string]*mlir.Operation
	mem     *memory
	steps   int64
}

// New prepares m for execution.
func New(m *mlir.Module, opts Options) (*Engine, error) {
	if m == nil {
		return nil, fmt.Errorf("engine: nil module")
	}
	if opts.OptLevel < 0 || opts.OptLevel > 3 {
		return nil, fmt.Errorf("engine: optimization level %d out of range 0..3", opts.OptLevel)
	}
	if opts.Target.Triple == "" {
		opts.Target = layout.X86_64LinuxGNU()
	}
	e := &Engine{
		module:  m,
		opts:    opts,
		layouts: layout.New(opts.Target),
		funcs:   make(map[string]*mlir.Operation),
		mem:     newMemory(),
	}
	for _, f := range m.Functions() {
		e.funcs[mlir.SymbolName(f)] = f
	}
	return e, nil
}

// Functions lists the functions with a body, sorted by name.
func (e *Engine) Functions() []string {
	out := make([]string, 0, len(e.funcs))
	for name, f := range e.funcs {
		if !fn.IsDeclaration(f) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Signature returns the type of function name.
func (e *Engine) Signature(name string) (mlir.FunctionType, bool) {
	f, ok := e.funcs[name]
	if !ok {
		return mlir.FunctionType{}, false
	}
	return mlir.FuncType(f)
}

// Steps reports how many operations the last invocation executed.
func (e *Engine) Steps() int64 { return e.steps }

// Invoke runs function name with args and returns its results.
func (e *Engine) Invoke(ctx context.Context, name string, args ...Value) ([]Value, error) {
	f, ok := e.funcs[name]
	if !ok || fn.IsDeclaration(f) {
		return nil, fmt.Errorf("engine: function %q not found", name)
	}
	ty, _ := mlir.FuncType(f)
	if len(args) != len(ty.Inputs) {
		return nil, fmt.Errorf("engine: %s takes %d arguments, got %d", name, len(ty.Inputs), len(args))
	}
	for i, a := range args {
		if !Conforms(a, ty.Inputs[i]) {
			return nil, fmt.Errorf("engine: argument #%d of %s is %s, want %s", i, name, a, ty.Inputs[i])
		}
	}

	span, ctx := trace.Start(ctx, trace.ScopeDriver, "execute")
	e.steps = 0
	out, err := e.call(ctx, f, args, 0)
	span.WithExtra("steps", fmt.Sprint(e.steps)).End(name)
	return out, err
}
