package lower

import (
	"math/big"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/mlir/cf"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/mlir/llvm"
)

// Runtime symbols.
const (
	abortTrampolineName = "__sierra_abort"
	feltInverseName     = "__sierra_felt_inverse"
	reallocName         = "realloc"
	abortName           = "abort"
)

// runtimeSet records the support routines requested while lowering.
type runtimeSet struct {
	abort       bool
	feltInverse bool
	realloc     bool
}

// emitRuntime appends the requested routines in a fixed order.
func (c *Compilation) emitRuntime() {
	if c.runtime.abort {
		c.emitAbortTrampoline()
	}
	if c.runtime.feltInverse {
		c.emitFeltInverse()
	}
	if c.runtime.realloc {
		fn.Declare(c.module, reallocName, mlir.FunctionType{
			Inputs:  []mlir.Type{mlir.Ptr, mlir.I64},
			Results: []mlir.Type{mlir.Ptr},
		})
	}
	if c.runtime.abort {
		fn.Declare(c.module, abortName, mlir.FunctionType{})
	}
}

func private(op *mlir.Operation) {
	op.SetAttr("sym_visibility", mlir.StringAttr("private"))
}

func (c *Compilation) emitAbortTrampoline() {
	op, entry := fn.Func(c.module, abortTrampolineName, mlir.FunctionType{}, mlir.Location{})
	private(op)
	b := mlir.NewBuilder(entry)
	fn.Call(b, abortName, nil, nil)
	llvm.Unreachable(b)
}

// emitFeltInverse builds a^(P-2) mod P by square and multiply over the bits
// of the exponent.
func (c *Compilation) emitFeltInverse() {
	ty := mlir.FunctionType{Inputs: []mlir.Type{feltType}, Results: []mlir.Type{feltType}}
	op, entry := fn.Func(c.module, feltInverseName, ty, mlir.Location{})
	private(op)
	region := op.Regions[0]
	wide := mlir.I512
	header := mlir.NewBlock(wide, wide, wide)
	body := mlir.NewBlock(wide, wide, wide)
	exit := mlir.NewBlock(wide)
	region.Append(header)
	region.Append(body)
	region.Append(exit)

	b := mlir.NewBuilder(entry)
	base := arith.ExtUI(b, entry.Args[0], wide)
	exp := arith.Constant(b, new(big.Int).Sub(feltPrime, big.NewInt(2)), wide)
	cf.Br(b, header, []mlir.Value{arith.ConstantInt(b, 1, wide), base, exp})

	b.SetInsertionPointToEnd(header)
	var acc, sq, e mlir.Value = header.Args[0], header.Args[1], header.Args[2]
	done := arith.CmpI(b, arith.EQ, e, arith.ConstantInt(b, 0, wide))
	cf.CondBr(b, done,
		mlir.Successor{Block: exit, Args: []mlir.Value{acc}},
		mlir.Successor{Block: body, Args: []mlir.Value{acc, sq, e}})

	b.SetInsertionPointToEnd(body)
	acc, sq, e = body.Args[0], body.Args[1], body.Args[2]
	p := arith.Constant(b, feltPrime, wide)
	one := arith.ConstantInt(b, 1, wide)
	odd := arith.CmpI(b, arith.NE, arith.AndI(b, e, one), arith.ConstantInt(b, 0, wide))
	product := arith.RemUI(b, arith.MulI(b, acc, sq), p)
	acc = arith.Select(b, odd, product, acc)
	sq = arith.RemUI(b, arith.MulI(b, sq, sq), p)
	e = arith.ShRUI(b, e, one)
	cf.Br(b, header, []mlir.Value{acc, sq, e})

	b.SetInsertionPointToEnd(exit)
	fn.Return(b, arith.TruncI(b, exit.Args[0], feltType))
}
