// Package cf builds and registers the unstructured control-flow dialect.
package cf

import "sierra2mlir/internal/mlir"

// Operation names.
const (
	BrOp     = "cf.br"
	CondBrOp = "cf.cond_br"
	SwitchOp = "cf.switch"
)

// Br jumps to dest passing args.
func Br(b *mlir.Builder, dest *mlir.Block, args []mlir.Value) *mlir.Operation {
	return b.Create(mlir.OperationState{
		Name:       BrOp,
		Successors: []mlir.Successor{{Block: dest, Args: args}},
	})
}

// CondBr jumps to t when cond is true and to f otherwise.
func CondBr(b *mlir.Builder, cond mlir.Value, t mlir.Successor, f mlir.Successor) *mlir.Operation {
	return b.Create(mlir.OperationState{
		Name:       CondBrOp,
		Operands:   []mlir.Value{cond},
		Successors: []mlir.Successor{t, f},
	})
}

// Switch jumps to the case whose value equals flag, or to def.
func Switch(b *mlir.Builder, flag mlir.Value, def mlir.Successor, values []int64, cases []mlir.Successor) *mlir.Operation {
	succs := make([]mlir.Successor, 0, len(cases)+1)
	succs = append(succs, def)
	succs = append(succs, cases...)
	return b.Create(mlir.OperationState{
		Name:       SwitchOp,
		Operands:   []mlir.Value{flag},
		Successors: succs,
		Attrs:      []mlir.NamedAttr{{Name: "case_values", Value: mlir.DenseI64ArrayAttr(append([]int64(nil), values...))}},
	})
}

func verifyBr(op *mlir.Operation) error {
	return mlir.CheckCounts(op, 0, 0, 1)
}

// Register adds the cf ops to r.
func Register(r *mlir.Registry) {
	r.Register(
		mlir.OpDef{Name: BrOp, Terminator: true, Verify: verifyBr},
		mlir.OpDef{Name: CondBrOp, Terminator: true, Verify: mlir.CheckCondBranch},
		mlir.OpDef{Name: SwitchOp, Terminator: true, Verify: mlir.CheckSwitch},
	)
}
