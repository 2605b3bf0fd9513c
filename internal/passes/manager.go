// Package passes holds the conversion pipeline that brings a lowered module
// down to the llvm and func dialects.
package passes

import (
	"context"

	"github.com/pkg/errors"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/trace"
)

// Pass rewrites a module in place.
type Pass interface {
	Name() string
	Run(m *mlir.Module) error
}

// Manager runs passes in order, optionally verifying after each one.
type Manager struct {
	passes []Pass
	reg    *mlir.Registry
	verify bool
}

// NewManager returns an empty pipeline verifying against reg.
func NewManager(reg *mlir.Registry) *Manager {
	return &Manager{reg: reg}
}

// Add appends passes to the pipeline.
func (pm *Manager) Add(p ...Pass) { pm.passes = append(pm.passes, p...) }

// EnableVerifier toggles verification after every pass.
func (pm *Manager) EnableVerifier(on bool) { pm.verify = on }

// Names lists the passes in run order.
func (pm *Manager) Names() []string {
	out := make([]string, len(pm.passes))
	for i, p := range pm.passes {
		out[i] = p.Name()
	}
	return out
}

// Run applies every pass to m. The first failure stops the pipeline.
func (pm *Manager) Run(ctx context.Context, m *mlir.Module) error {
	for _, p := range pm.passes {
		if err := ctx.Err(); err != nil {
			return err
		}
		span, _ := trace.Start(ctx, trace.ScopePass, p.Name())
		err := p.Run(m)
		if err == nil && pm.verify {
			if verr := mlir.Verify(m, pm.reg); verr != nil {
				err = errors.Wrap(verr, "verification failed")
			}
		}
		if err != nil {
			span.End("failed")
			return errors.Wrapf(err, "pass %s", p.Name())
		}
		span.End("")
	}
	return nil
}

// Standard returns the scf-to-cf, cf-to-llvm, arith-to-llvm pipeline.
func Standard() []Pass {
	return []Pass{ConvertSCFToCF{}, ConvertCFToLLVM{}, ConvertArithToLLVM{}}
}
