// Package llvm builds and registers the subset of the LLVM dialect produced
// by the lowering and the conversion passes.
package llvm

import (
	"fmt"
	"math"
	"math/big"

	"sierra2mlir/internal/mlir"
)

// Operation names.
const (
	ConstantOp    = "llvm.mlir.constant"
	UndefOp       = "llvm.mlir.undef"
	ZeroOp        = "llvm.mlir.zero"
	AddOp         = "llvm.add"
	SubOp         = "llvm.sub"
	MulOp         = "llvm.mul"
	UDivOp        = "llvm.udiv"
	URemOp        = "llvm.urem"
	AndOp         = "llvm.and"
	OrOp          = "llvm.or"
	XOrOp         = "llvm.xor"
	ShlOp         = "llvm.shl"
	LShrOp        = "llvm.lshr"
	ICmpOp        = "llvm.icmp"
	ZExtOp        = "llvm.zext"
	TruncOp       = "llvm.trunc"
	SelectOp      = "llvm.select"
	BrOp          = "llvm.br"
	CondBrOp      = "llvm.cond_br"
	SwitchOp      = "llvm.switch"
	UnreachableOp = "llvm.unreachable"
	AllocaOp      = "llvm.alloca"
	LoadOp        = "llvm.load"
	StoreOp       = "llvm.store"
	GEPOp         = "llvm.getelementptr"
	InsertValueOp = "llvm.insertvalue"
	ExtractValOp  = "llvm.extractvalue"
	MemmoveOp     = "llvm.intr.memmove"
)

// DynamicIndex marks a getelementptr index taken from the operands.
const DynamicIndex = math.MinInt32

// BinaryOps lists the two-operand integer ops.
var BinaryOps = []string{AddOp, SubOp, MulOp, UDivOp, URemOp, AndOp, OrOp, XOrOp, ShlOp, LShrOp}

// Constant materializes an integer constant.
func Constant(b *mlir.Builder, v *big.Int, t mlir.Type) mlir.Value {
	return b.Create(mlir.OperationState{
		Name:        ConstantOp,
		ResultTypes: []mlir.Type{t},
		Attrs:       []mlir.NamedAttr{{Name: "value", Value: mlir.IntegerAttr{Value: new(big.Int).Set(v), Type: t}}},
	}).Result(0)
}

// Undef materializes an undefined value of type t.
func Undef(b *mlir.Builder, t mlir.Type) mlir.Value {
	return b.Create(mlir.OperationState{Name: UndefOp, ResultTypes: []mlir.Type{t}}).Result(0)
}

// Null materializes the null pointer.
func Null(b *mlir.Builder) mlir.Value {
	return b.Create(mlir.OperationState{Name: ZeroOp, ResultTypes: []mlir.Type{mlir.Ptr}}).Result(0)
}

// Unreachable ends a block that control never leaves.
func Unreachable(b *mlir.Builder) *mlir.Operation {
	return b.Create(mlir.OperationState{Name: UnreachableOp})
}

// Alloca reserves stack space for one value of type elem.
func Alloca(b *mlir.Builder, elem mlir.Type, count mlir.Value) mlir.Value {
	return b.Create(mlir.OperationState{
		Name:        AllocaOp,
		Operands:    []mlir.Value{count},
		ResultTypes: []mlir.Type{mlir.Ptr},
		Attrs:       []mlir.NamedAttr{{Name: "elem_type", Value: mlir.TypeAttr{Type: elem}}},
	}).Result(0)
}

// Load reads a value of type t from ptr.
func Load(b *mlir.Builder, t mlir.Type, ptr mlir.Value) mlir.Value {
	return b.Create(mlir.OperationState{
		Name:        LoadOp,
		Operands:    []mlir.Value{ptr},
		ResultTypes: []mlir.Type{t},
	}).Result(0)
}

// Store writes val to ptr.
func Store(b *mlir.Builder, val, ptr mlir.Value) *mlir.Operation {
	return b.Create(mlir.OperationState{Name: StoreOp, Operands: []mlir.Value{val, ptr}})
}

// GEP computes an address inside elem-typed memory at base. Entries of
// indices equal to DynamicIndex consume dynamic operands in order.
func GEP(b *mlir.Builder, elem mlir.Type, base mlir.Value, indices []int32, dynamic ...mlir.Value) mlir.Value {
	return b.Create(mlir.OperationState{
		Name:        GEPOp,
		Operands:    append([]mlir.Value{base}, dynamic...),
		ResultTypes: []mlir.Type{mlir.Ptr},
		Attrs: []mlir.NamedAttr{
			{Name: "elem_type", Value: mlir.TypeAttr{Type: elem}},
			{Name: "rawConstantIndices", Value: mlir.DenseI32ArrayAttr(append([]int32(nil), indices...))},
		},
	}).Result(0)
}

// InsertValue returns container with the field at pos replaced by val.
func InsertValue(b *mlir.Builder, container, val mlir.Value, pos ...int64) mlir.Value {
	return b.Create(mlir.OperationState{
		Name:        InsertValueOp,
		Operands:    []mlir.Value{container, val},
		ResultTypes: []mlir.Type{container.Type()},
		Attrs:       []mlir.NamedAttr{{Name: "position", Value: mlir.DenseI64ArrayAttr(pos)}},
	}).Result(0)
}

// ExtractValue reads the field at pos of container.
func ExtractValue(b *mlir.Builder, container mlir.Value, pos ...int64) mlir.Value {
	t, err := TypeAtPosition(container.Type(), pos)
	if err != nil {
		panic(fmt.Sprintf("llvm.extractvalue: %v", err))
	}
	return b.Create(mlir.OperationState{
		Name:        ExtractValOp,
		Operands:    []mlir.Value{container},
		ResultTypes: []mlir.Type{t},
		Attrs:       []mlir.NamedAttr{{Name: "position", Value: mlir.DenseI64ArrayAttr(pos)}},
	}).Result(0)
}

// Memmove copies n bytes from src to dst; the ranges may overlap.
func Memmove(b *mlir.Builder, dst, src, n mlir.Value) *mlir.Operation {
	return b.Create(mlir.OperationState{
		Name:     MemmoveOp,
		Operands: []mlir.Value{dst, src, n},
		Attrs:    []mlir.NamedAttr{{Name: "isVolatile", Value: mlir.IntAttr(0, mlir.I1)}},
	})
}

// TypeAtPosition walks struct fields and array elements of t along pos.
func TypeAtPosition(t mlir.Type, pos []int64) (mlir.Type, error) {
	cur := t
	for _, p := range pos {
		switch ct := cur.(type) {
		case mlir.StructType:
			if p < 0 || p >= int64(len(ct.Fields)) {
				return nil, fmt.Errorf("position %d out of range for %s", p, ct)
			}
			cur = ct.Fields[p]
		case mlir.ArrayType:
			if p < 0 || p >= int64(ct.Len) {
				return nil, fmt.Errorf("position %d out of range for %s", p, ct)
			}
			cur = ct.Elem
		default:
			return nil, fmt.Errorf("cannot index into %s", cur)
		}
	}
	return cur, nil
}

func verifyUndef(op *mlir.Operation) error {
	return mlir.CheckCounts(op, 0, 1, 0)
}

func verifyZero(op *mlir.Operation) error {
	return mlir.CheckCounts(op, 0, 1, 0)
}

func verifyAlloca(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, 1, 1, 0); err != nil {
		return err
	}
	if _, err := mlir.TypeAttrOf(op, "elem_type"); err != nil {
		return err
	}
	if _, ok := mlir.IntWidth(op.Operands[0].Type()); !ok {
		return fmt.Errorf("array size must be an integer")
	}
	if !mlir.IsPointer(op.Results[0].Type()) {
		return fmt.Errorf("result must be a pointer")
	}
	return nil
}

func verifyLoad(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, 1, 1, 0); err != nil {
		return err
	}
	if !mlir.IsPointer(op.Operands[0].Type()) {
		return fmt.Errorf("address must be a pointer, got %s", op.Operands[0].Type())
	}
	return nil
}

func verifyStore(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, 2, 0, 0); err != nil {
		return err
	}
	if !mlir.IsPointer(op.Operands[1].Type()) {
		return fmt.Errorf("address must be a pointer, got %s", op.Operands[1].Type())
	}
	return nil
}

func verifyGEP(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, -1, 1, 0); err != nil {
		return err
	}
	if len(op.Operands) == 0 || !mlir.IsPointer(op.Operands[0].Type()) {
		return fmt.Errorf("base must be a pointer")
	}
	elem, err := mlir.TypeAttrOf(op, "elem_type")
	if err != nil {
		return err
	}
	idx, err := mlir.DenseI32Of(op, "rawConstantIndices")
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		return fmt.Errorf("requires at least one index")
	}
	dynamic := 0
	cur := elem
	for i, v := range idx {
		if v == DynamicIndex {
			dynamic++
			if dynamic >= len(op.Operands) {
				return fmt.Errorf("dynamic index #%d has no operand", dynamic)
			}
			if _, ok := mlir.IntWidth(op.Operands[dynamic].Type()); !ok {
				return fmt.Errorf("dynamic index #%d must be an integer", dynamic)
			}
		}
		if i == 0 {
			continue
		}
		switch ct := cur.(type) {
		case mlir.StructType:
			if v == DynamicIndex || v < 0 || int(v) >= len(ct.Fields) {
				return fmt.Errorf("invalid struct index %d into %s", v, ct)
			}
			cur = ct.Fields[v]
		case mlir.ArrayType:
			cur = ct.Elem
		default:
			return fmt.Errorf("cannot index into %s", cur)
		}
	}
	if dynamic != len(op.Operands)-1 {
		return fmt.Errorf("has %d dynamic indices but %d index operands", dynamic, len(op.Operands)-1)
	}
	return nil
}

func verifyInsertValue(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, 2, 1, 0); err != nil {
		return err
	}
	pos, err := mlir.DenseI64Of(op, "position")
	if err != nil {
		return err
	}
	ft, err := TypeAtPosition(op.Operands[0].Type(), pos)
	if err != nil {
		return err
	}
	if !mlir.TypeEqual(ft, op.Operands[1].Type()) {
		return fmt.Errorf("inserted value has type %s, position holds %s", op.Operands[1].Type(), ft)
	}
	if !mlir.TypeEqual(op.Results[0].Type(), op.Operands[0].Type()) {
		return fmt.Errorf("result type must match the container")
	}
	return nil
}

func verifyExtractValue(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, 1, 1, 0); err != nil {
		return err
	}
	pos, err := mlir.DenseI64Of(op, "position")
	if err != nil {
		return err
	}
	ft, err := TypeAtPosition(op.Operands[0].Type(), pos)
	if err != nil {
		return err
	}
	if !mlir.TypeEqual(ft, op.Results[0].Type()) {
		return fmt.Errorf("result has type %s, position holds %s", op.Results[0].Type(), ft)
	}
	return nil
}

func verifyMemmove(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, 3, 0, 0); err != nil {
		return err
	}
	if !mlir.IsPointer(op.Operands[0].Type()) || !mlir.IsPointer(op.Operands[1].Type()) {
		return fmt.Errorf("source and destination must be pointers")
	}
	if _, ok := mlir.IntWidth(op.Operands[2].Type()); !ok {
		return fmt.Errorf("length must be an integer")
	}
	return nil
}

// Register adds the llvm ops to r.
func Register(r *mlir.Registry) {
	r.Register(
		mlir.OpDef{Name: ConstantOp, Verify: mlir.CheckConstant},
		mlir.OpDef{Name: UndefOp, Verify: verifyUndef},
		mlir.OpDef{Name: ZeroOp, Verify: verifyZero},
		mlir.OpDef{Name: ICmpOp, Verify: func(op *mlir.Operation) error { return mlir.CheckCompare(op, 9) }},
		mlir.OpDef{Name: ZExtOp, Verify: func(op *mlir.Operation) error { return mlir.CheckIntCast(op, true) }},
		mlir.OpDef{Name: TruncOp, Verify: func(op *mlir.Operation) error { return mlir.CheckIntCast(op, false) }},
		mlir.OpDef{Name: SelectOp, Verify: mlir.CheckSelect},
		mlir.OpDef{Name: BrOp, Terminator: true, Verify: func(op *mlir.Operation) error { return mlir.CheckCounts(op, 0, 0, 1) }},
		mlir.OpDef{Name: CondBrOp, Terminator: true, Verify: mlir.CheckCondBranch},
		mlir.OpDef{Name: SwitchOp, Terminator: true, Verify: mlir.CheckSwitch},
		mlir.OpDef{Name: UnreachableOp, Terminator: true, Verify: func(op *mlir.Operation) error { return mlir.CheckCounts(op, 0, 0, 0) }},
		mlir.OpDef{Name: AllocaOp, Verify: verifyAlloca},
		mlir.OpDef{Name: LoadOp, Verify: verifyLoad},
		mlir.OpDef{Name: StoreOp, Verify: verifyStore},
		mlir.OpDef{Name: GEPOp, Verify: verifyGEP},
		mlir.OpDef{Name: InsertValueOp, Verify: verifyInsertValue},
		mlir.OpDef{Name: ExtractValOp, Verify: verifyExtractValue},
		mlir.OpDef{Name: MemmoveOp, Verify: verifyMemmove},
	)
	for _, name := range BinaryOps {
		r.Register(mlir.OpDef{Name: name, Verify: mlir.CheckBinaryInt})
	}
}
