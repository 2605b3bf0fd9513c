package lower

import (
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/mlir/llvm"
	"sierra2mlir/internal/mlir/scf"
	"sierra2mlir/internal/sierra"
)

// minArrayCapacity is the capacity of the first buffer an array allocates.
const minArrayCapacity = 8

func (c *Compilation) realloc(b *mlir.Builder, ptr, size mlir.Value) mlir.Value {
	c.runtime.realloc = true
	return fn.Call(b, reallocName, []mlir.Value{ptr, size}, []mlir.Type{mlir.Ptr}).Result(0)
}

// newBox copies v into a fresh heap cell.
func (c *Compilation) newBox(b *mlir.Builder, elem *ConcreteType, v mlir.Value) mlir.Value {
	size := arith.ConstantInt(b, int64(elem.Layout.Size), mlir.I64)
	p := c.realloc(b, llvm.Null(b), size)
	llvm.Store(b, v, p)
	return p
}

func nestedBuilder(parent *mlir.Builder, block *mlir.Block) *mlir.Builder {
	b := mlir.NewBuilder(block)
	b.SetLoc(parent.Loc())
	return b
}

// arrayParts splits an array value into data, len and cap.
func arrayParts(b *mlir.Builder, arr mlir.Value) (data, n, capacity mlir.Value) {
	return llvm.ExtractValue(b, arr, 0), llvm.ExtractValue(b, arr, 1), llvm.ExtractValue(b, arr, 2)
}

func arraySig(c *Compilation, args []sierra.GenericArg, build func(elem *ConcreteType) Signature) (Signature, error) {
	elem, err := c.typeArg(args, 0)
	if err != nil {
		return Signature{}, err
	}
	return build(elem), nil
}

type arrayNew struct{}

func (arrayNew) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	return arraySig(c, args, func(*ConcreteType) Signature {
		return Signature{Branches: [][]mlir.Type{{arrayType}}}
	})
}

func (arrayNew) lower(s *site) (*outcome, error) {
	zero := arith.ConstantInt(s.b, 0, mlir.I32)
	arr := llvm.Undef(s.b, arrayType)
	arr = llvm.InsertValue(s.b, arr, llvm.Null(s.b), 0)
	arr = llvm.InsertValue(s.b, arr, zero, 1)
	arr = llvm.InsertValue(s.b, arr, zero, 2)
	return single(arr), nil
}

// arrayAppend grows the buffer to max(8, 2*cap) when it is full. Growth
// copies into a fresh allocation: the old buffer may still back a
// snapshot, and after pop_front data no longer points at its start.
// Buffers are append-only, so elements below the length of any header
// sharing them are never overwritten.
type arrayAppend struct{}

func (arrayAppend) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	return arraySig(c, args, func(elem *ConcreteType) Signature {
		return Signature{Inputs: []mlir.Type{arrayType, elem.Type}, Branches: [][]mlir.Type{{arrayType}}}
	})
}

func (arrayAppend) lower(s *site) (*outcome, error) {
	elem, err := s.c.typeArg(s.args, 0)
	if err != nil {
		return nil, err
	}
	b := s.b
	arr, v := s.inputs[0], s.inputs[1]
	data, n, capacity := arrayParts(b, arr)
	full := arith.CmpI(b, arith.EQ, n, capacity)

	grow, then, els := scf.If(b, full, []mlir.Type{mlir.Ptr, mlir.I32})
	tb := nestedBuilder(b, then)
	doubled := arith.MulI(tb, capacity, arith.ConstantInt(tb, 2, mlir.I32))
	floor := arith.ConstantInt(tb, minArrayCapacity, mlir.I32)
	newCap := arith.Select(tb, arith.CmpI(tb, arith.UGT, doubled, floor), doubled, floor)
	stride := arith.ConstantInt(tb, int64(elem.Stride()), mlir.I64)
	fresh := s.c.realloc(tb, llvm.Null(tb), arith.MulI(tb, arith.ExtUI(tb, newCap, mlir.I64), stride))
	llvm.Memmove(tb, fresh, data, arith.MulI(tb, arith.ExtUI(tb, n, mlir.I64), stride))
	scf.Yield(tb, fresh, newCap)
	scf.Yield(nestedBuilder(b, els), data, capacity)

	data, capacity = grow.Result(0), grow.Result(1)
	llvm.Store(b, v, llvm.GEP(b, elem.Type, data, []int32{llvm.DynamicIndex}, n))
	n = arith.AddI(b, n, arith.ConstantInt(b, 1, mlir.I32))
	arr = llvm.InsertValue(b, arr, data, 0)
	arr = llvm.InsertValue(b, arr, n, 1)
	arr = llvm.InsertValue(b, arr, capacity, 2)
	return single(arr), nil
}

type arrayLen struct{}

func (arrayLen) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	return arraySig(c, args, func(*ConcreteType) Signature {
		return Signature{Inputs: []mlir.Type{arrayType}, Branches: [][]mlir.Type{{mlir.I32}}}
	})
}

func (arrayLen) lower(s *site) (*outcome, error) {
	return single(llvm.ExtractValue(s.b, s.inputs[0], 1)), nil
}

// arrayGet: branch 0 with a box holding a copy of the element when the
// index is in bounds, branch 1 otherwise. The element is only read inside
// the in-bounds region.
type arrayGet struct{}

func (arrayGet) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	return arraySig(c, args, func(*ConcreteType) Signature {
		return Signature{
			Inputs:   []mlir.Type{builtinType, arrayType, mlir.I32},
			Branches: [][]mlir.Type{{builtinType, mlir.Ptr}, {builtinType}},
		}
	})
}

func (arrayGet) lower(s *site) (*outcome, error) {
	elem, err := s.c.typeArg(s.args, 0)
	if err != nil {
		return nil, err
	}
	b := s.b
	rc, arr, idx := s.inputs[0], s.inputs[1], s.inputs[2]
	data := llvm.ExtractValue(b, arr, 0)
	n := llvm.ExtractValue(b, arr, 1)
	inBounds := arith.CmpI(b, arith.ULT, idx, n)

	get, then, els := scf.If(b, inBounds, []mlir.Type{mlir.Ptr})
	tb := nestedBuilder(b, then)
	v := llvm.Load(tb, elem.Type, llvm.GEP(tb, elem.Type, data, []int32{llvm.DynamicIndex}, idx))
	scf.Yield(tb, s.c.newBox(tb, elem, v))
	eb := nestedBuilder(b, els)
	scf.Yield(eb, llvm.Null(eb))

	return &outcome{
		branches: [][]mlir.Value{{rc, get.Result(0)}, {rc}},
		sel:      selectCond{cond: inBounds, ifTrue: 0},
	}, nil
}

// arrayPopFront: branch 0 with the shortened array and a box of the first
// element, branch 1 with the unchanged empty array.
type arrayPopFront struct{}

func (arrayPopFront) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	return arraySig(c, args, func(*ConcreteType) Signature {
		return Signature{
			Inputs:   []mlir.Type{arrayType},
			Branches: [][]mlir.Type{{arrayType, mlir.Ptr}, {arrayType}},
		}
	})
}

func (arrayPopFront) lower(s *site) (*outcome, error) {
	elem, err := s.c.typeArg(s.args, 0)
	if err != nil {
		return nil, err
	}
	b := s.b
	arr := s.inputs[0]
	data, n, capacity := arrayParts(b, arr)
	nonEmpty := arith.CmpI(b, arith.NE, n, arith.ConstantInt(b, 0, mlir.I32))

	// The front is dropped by advancing data; the buffer itself is left
	// untouched for any snapshot still reading it.
	pop, then, els := scf.If(b, nonEmpty, []mlir.Type{mlir.Ptr, mlir.Ptr, mlir.I32, mlir.I32})
	tb := nestedBuilder(b, then)
	box := s.c.newBox(tb, elem, llvm.Load(tb, elem.Type, data))
	one := arith.ConstantInt(tb, 1, mlir.I32)
	second := llvm.GEP(tb, elem.Type, data, []int32{1})
	scf.Yield(tb, box, second, arith.SubI(tb, n, one), arith.SubI(tb, capacity, one))
	eb := nestedBuilder(b, els)
	scf.Yield(eb, llvm.Null(eb), data, n, capacity)

	shortened := llvm.InsertValue(b, arr, pop.Result(1), 0)
	shortened = llvm.InsertValue(b, shortened, pop.Result(2), 1)
	shortened = llvm.InsertValue(b, shortened, pop.Result(3), 2)
	return &outcome{
		branches: [][]mlir.Value{{shortened, pop.Result(0)}, {arr}},
		sel:      selectCond{cond: nonEmpty, ifTrue: 0},
	}, nil
}

type intoBox struct{}

func (intoBox) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	return arraySig(c, args, func(elem *ConcreteType) Signature {
		return Signature{Inputs: []mlir.Type{elem.Type}, Branches: [][]mlir.Type{{mlir.Ptr}}}
	})
}

func (intoBox) lower(s *site) (*outcome, error) {
	elem, err := s.c.typeArg(s.args, 0)
	if err != nil {
		return nil, err
	}
	return single(s.c.newBox(s.b, elem, s.inputs[0])), nil
}

type unbox struct{}

func (unbox) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	return arraySig(c, args, func(elem *ConcreteType) Signature {
		return Signature{Inputs: []mlir.Type{mlir.Ptr}, Branches: [][]mlir.Type{{elem.Type}}}
	})
}

func (unbox) lower(s *site) (*outcome, error) {
	elem, err := s.c.typeArg(s.args, 0)
	if err != nil {
		return nil, err
	}
	return single(llvm.Load(s.b, elem.Type, s.inputs[0])), nil
}
