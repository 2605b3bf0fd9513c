// Package scf builds and registers the structured control-flow ops used by
// the lowering: scf.if with both regions and scf.yield.
package scf

import (
	"fmt"

	"sierra2mlir/internal/mlir"
)

// Operation names.
const (
	IfOp    = "scf.if"
	YieldOp = "scf.yield"
)

// If creates an scf.if with empty then and else blocks and returns the op.
// Callers fill both blocks and end each with Yield.
func If(b *mlir.Builder, cond mlir.Value, resultTypes []mlir.Type) (op *mlir.Operation, then, els *mlir.Block) {
	then = mlir.NewBlock()
	els = mlir.NewBlock()
	op = b.Create(mlir.OperationState{
		Name:        IfOp,
		Operands:    []mlir.Value{cond},
		ResultTypes: resultTypes,
		Regions:     []*mlir.Region{mlir.NewRegion(then), mlir.NewRegion(els)},
	})
	return op, then, els
}

// Yield ends an scf region.
func Yield(b *mlir.Builder, vals ...mlir.Value) *mlir.Operation {
	return b.Create(mlir.OperationState{Name: YieldOp, Operands: vals})
}

func verifyIf(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, 1, -1, 0); err != nil {
		return err
	}
	if !mlir.TypeEqual(op.Operands[0].Type(), mlir.I1) {
		return fmt.Errorf("condition must be i1, got %s", op.Operands[0].Type())
	}
	if len(op.Regions) != 2 {
		return fmt.Errorf("expects then and else regions, got %d", len(op.Regions))
	}
	want := op.ResultTypes()
	for i, r := range op.Regions {
		if len(r.Blocks) != 1 {
			return fmt.Errorf("region #%d must hold exactly one block", i)
		}
		term := r.Blocks[0].Terminator()
		if term == nil || term.Name != YieldOp {
			return fmt.Errorf("region #%d must end with %s", i, YieldOp)
		}
		if !mlir.TypesEqual(term.OperandTypes(), want) {
			return fmt.Errorf("region #%d yields %s, want %s", i, mlir.FormatTypes(term.OperandTypes()), mlir.FormatTypes(want))
		}
	}
	return nil
}

func verifyYield(op *mlir.Operation) error {
	parent := op.ParentOp()
	if parent == nil || parent.Name != IfOp {
		return fmt.Errorf("must be nested in %s", IfOp)
	}
	return mlir.CheckCounts(op, -1, 0, 0)
}

// Register adds the scf ops to r.
func Register(r *mlir.Registry) {
	r.Register(
		mlir.OpDef{Name: IfOp, Verify: verifyIf},
		mlir.OpDef{Name: YieldOp, Terminator: true, Verify: verifyYield},
	)
}
