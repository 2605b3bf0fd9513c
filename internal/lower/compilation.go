// Package lower turns a parsed Sierra program into an MLIR module built from
// the arith, cf, scf, func and llvm dialects.
package lower

import (
	"context"
	"strconv"

	"sierra2mlir/internal/layout"
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/sierra"
	"sierra2mlir/internal/trace"
)

// Options tune a single lowering.
type Options struct {
	// VerifyMoves makes the variable tracker reject reuse of consumed
	// variables and rebinding of live ones.
	VerifyMoves bool
	// Target selects the data layout. The zero value means x86_64-linux-gnu.
	Target layout.Target
}

// Compilation holds the caches of one lowering run. It is not safe for
// concurrent use.
type Compilation struct {
	prog    *sierra.Program
	opts    Options
	layouts *layout.Engine
	module  *mlir.Module

	typeDecls map[sierra.TypeID]*sierra.TypeDeclaration
	types     map[sierra.TypeID]*ConcreteType
	canonical map[string]*ConcreteType
	resolving []sierra.TypeID

	libfuncs map[sierra.LibfuncID]*boundLibfunc
	funcs    map[sierra.FunctionID]*sierra.Function

	runtime runtimeSet
}

// NewCompilation indexes the declarations of prog.
func NewCompilation(prog *sierra.Program, opts Options) *Compilation {
	if opts.Target.Triple == "" {
		opts.Target = layout.X86_64LinuxGNU()
	}
	c := &Compilation{
		prog:      prog,
		opts:      opts,
		layouts:   layout.New(opts.Target),
		module:    mlir.NewModule(mlir.Location{}),
		typeDecls: make(map[sierra.TypeID]*sierra.TypeDeclaration, len(prog.TypeDeclarations)),
		types:     make(map[sierra.TypeID]*ConcreteType, len(prog.TypeDeclarations)),
		canonical: make(map[string]*ConcreteType),
		libfuncs:  make(map[sierra.LibfuncID]*boundLibfunc, len(prog.LibfuncDeclarations)),
		funcs:     make(map[sierra.FunctionID]*sierra.Function, len(prog.Functions)),
	}
	for i := range prog.TypeDeclarations {
		d := &prog.TypeDeclarations[i]
		c.typeDecls[d.ID] = d
	}
	for i := range prog.Functions {
		f := &prog.Functions[i]
		c.funcs[f.ID] = f
	}
	return c
}

// Lower builds the module for prog.
func Lower(ctx context.Context, prog *sierra.Program, opts Options) (*mlir.Module, error) {
	return NewCompilation(prog, opts).Module(ctx)
}

// Module resolves every declaration, lowers each function in declaration
// order and appends the runtime routines the functions asked for.
func (c *Compilation) Module(ctx context.Context) (*mlir.Module, error) {
	for _, d := range c.prog.TypeDeclarations {
		if _, err := c.ResolveType(d.ID); err != nil {
			return nil, err
		}
	}
	for i := range c.prog.LibfuncDeclarations {
		if err := c.bindLibfunc(&c.prog.LibfuncDeclarations[i]); err != nil {
			return nil, err
		}
	}
	for i := range c.prog.Functions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := &c.prog.Functions[i]
		span, fctx := trace.Start(ctx, trace.ScopeFunction, string(f.ID))
		start, end := c.prog.FunctionRange(i)
		err := c.lowerFunction(fctx, f, start, end)
		span.WithExtra("statements", strconv.Itoa(int(end-start))).End("")
		if err != nil {
			return nil, err
		}
	}
	c.emitRuntime()
	return c.module, nil
}

// Layouts exposes the layout engine of the compilation target.
func (c *Compilation) Layouts() *layout.Engine { return c.layouts }

func (c *Compilation) signatureTypes(ids []sierra.TypeID) ([]mlir.Type, error) {
	out := make([]mlir.Type, len(ids))
	for i, id := range ids {
		ct, err := c.ResolveType(id)
		if err != nil {
			return nil, err
		}
		out[i] = ct.Type
	}
	return out, nil
}
