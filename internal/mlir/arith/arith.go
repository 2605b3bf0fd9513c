// Package arith builds and registers operations of the arith dialect.
package arith

import (
	"math/big"

	"sierra2mlir/internal/mlir"
)

// Operation names.
const (
	ConstantOp = "arith.constant"
	AddIOp     = "arith.addi"
	SubIOp     = "arith.subi"
	MulIOp     = "arith.muli"
	DivUIOp    = "arith.divui"
	RemUIOp    = "arith.remui"
	AndIOp     = "arith.andi"
	OrIOp      = "arith.ori"
	XOrIOp     = "arith.xori"
	ShLIOp     = "arith.shli"
	ShRUIOp    = "arith.shrui"
	CmpIOp     = "arith.cmpi"
	ExtUIOp    = "arith.extui"
	TruncIOp   = "arith.trunci"
	SelectOp   = "arith.select"
)

// Predicate is an integer comparison predicate. The numbering matches the
// llvm dialect so conversion keeps the attribute as is.
type Predicate int64

const (
	EQ Predicate = iota
	NE
	SLT
	SLE
	SGT
	SGE
	ULT
	ULE
	UGT
	UGE
)

// BinaryOps lists the two-operand integer ops.
var BinaryOps = []string{AddIOp, SubIOp, MulIOp, DivUIOp, RemUIOp, AndIOp, OrIOp, XOrIOp, ShLIOp, ShRUIOp}

// Constant materializes an integer constant of type t.
func Constant(b *mlir.Builder, v *big.Int, t mlir.Type) mlir.Value {
	op := b.Create(mlir.OperationState{
		Name:        ConstantOp,
		ResultTypes: []mlir.Type{t},
		Attrs:       []mlir.NamedAttr{{Name: "value", Value: mlir.IntegerAttr{Value: new(big.Int).Set(v), Type: t}}},
	})
	return op.Result(0)
}

// ConstantInt materializes a small integer constant.
func ConstantInt(b *mlir.Builder, v int64, t mlir.Type) mlir.Value {
	return Constant(b, big.NewInt(v), t)
}

func binary(b *mlir.Builder, name string, lhs, rhs mlir.Value) mlir.Value {
	op := b.Create(mlir.OperationState{
		Name:        name,
		Operands:    []mlir.Value{lhs, rhs},
		ResultTypes: []mlir.Type{lhs.Type()},
	})
	return op.Result(0)
}

func AddI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value  { return binary(b, AddIOp, lhs, rhs) }
func SubI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value  { return binary(b, SubIOp, lhs, rhs) }
func MulI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value  { return binary(b, MulIOp, lhs, rhs) }
func DivUI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value { return binary(b, DivUIOp, lhs, rhs) }
func RemUI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value { return binary(b, RemUIOp, lhs, rhs) }
func AndI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value  { return binary(b, AndIOp, lhs, rhs) }
func OrI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value   { return binary(b, OrIOp, lhs, rhs) }
func XOrI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value  { return binary(b, XOrIOp, lhs, rhs) }
func ShLI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value  { return binary(b, ShLIOp, lhs, rhs) }
func ShRUI(b *mlir.Builder, lhs, rhs mlir.Value) mlir.Value { return binary(b, ShRUIOp, lhs, rhs) }

// CmpI compares two integers and yields an i1.
func CmpI(b *mlir.Builder, pred Predicate, lhs, rhs mlir.Value) mlir.Value {
	op := b.Create(mlir.OperationState{
		Name:        CmpIOp,
		Operands:    []mlir.Value{lhs, rhs},
		ResultTypes: []mlir.Type{mlir.I1},
		Attrs:       []mlir.NamedAttr{{Name: "predicate", Value: mlir.IntAttr(int64(pred), mlir.I64)}},
	})
	return op.Result(0)
}

func cast(b *mlir.Builder, name string, v mlir.Value, t mlir.Type) mlir.Value {
	op := b.Create(mlir.OperationState{
		Name:        name,
		Operands:    []mlir.Value{v},
		ResultTypes: []mlir.Type{t},
	})
	return op.Result(0)
}

// ExtUI zero-extends v to t.
func ExtUI(b *mlir.Builder, v mlir.Value, t mlir.Type) mlir.Value { return cast(b, ExtUIOp, v, t) }

// TruncI truncates v to t.
func TruncI(b *mlir.Builder, v mlir.Value, t mlir.Type) mlir.Value { return cast(b, TruncIOp, v, t) }

// Resize zero-extends or truncates v to t, or returns it unchanged.
func Resize(b *mlir.Builder, v mlir.Value, t mlir.Type) mlir.Value {
	from, _ := mlir.IntWidth(v.Type())
	to, _ := mlir.IntWidth(t)
	switch {
	case to > from:
		return ExtUI(b, v, t)
	case to < from:
		return TruncI(b, v, t)
	default:
		return v
	}
}

// Select picks a or b depending on cond.
func Select(b *mlir.Builder, cond, x, y mlir.Value) mlir.Value {
	op := b.Create(mlir.OperationState{
		Name:        SelectOp,
		Operands:    []mlir.Value{cond, x, y},
		ResultTypes: []mlir.Type{x.Type()},
	})
	return op.Result(0)
}

// Register adds the arith ops to r.
func Register(r *mlir.Registry) {
	r.Register(
		mlir.OpDef{Name: ConstantOp, Verify: mlir.CheckConstant},
		mlir.OpDef{Name: CmpIOp, Verify: func(op *mlir.Operation) error { return mlir.CheckCompare(op, int64(UGE)) }},
		mlir.OpDef{Name: ExtUIOp, Verify: func(op *mlir.Operation) error { return mlir.CheckIntCast(op, true) }},
		mlir.OpDef{Name: TruncIOp, Verify: func(op *mlir.Operation) error { return mlir.CheckIntCast(op, false) }},
		mlir.OpDef{Name: SelectOp, Verify: mlir.CheckSelect},
	)
	for _, name := range BinaryOps {
		r.Register(mlir.OpDef{Name: name, Verify: mlir.CheckBinaryInt})
	}
}
