package lower

import (
	"math/big"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/sierra"
)

func pow2(bits int) *big.Int { return new(big.Int).Lsh(big.NewInt(1), uint(bits)) }

type uintConst struct{ width int }

func (l uintConst) specialize(_ *Compilation, args []sierra.GenericArg) (Signature, error) {
	v := valueArg(args, 0)
	if v.Sign() < 0 || v.Cmp(pow2(l.width)) >= 0 {
		return Signature{}, invalid("constant %s does not fit u%d", v, l.width)
	}
	return Signature{Branches: [][]mlir.Type{{mlir.I(l.width)}}}, nil
}

func (l uintConst) lower(s *site) (*outcome, error) {
	return single(arith.Constant(s.b, valueArg(s.args, 0), mlir.I(l.width))), nil
}

// uintOverflowing: branch 0 in range, branch 1 wrapped around.
type uintOverflowing struct {
	width int
	sub   bool
}

func (l uintOverflowing) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	t := mlir.I(l.width)
	return Signature{
		Inputs:   []mlir.Type{builtinType, t, t},
		Branches: [][]mlir.Type{{builtinType, t}, {builtinType, t}},
	}, nil
}

func (l uintOverflowing) lower(s *site) (*outcome, error) {
	rc, x, y := s.inputs[0], s.inputs[1], s.inputs[2]
	var r, overflow mlir.Value
	if l.sub {
		r = arith.SubI(s.b, x, y)
		overflow = arith.CmpI(s.b, arith.ULT, x, y)
	} else {
		r = arith.AddI(s.b, x, y)
		overflow = arith.CmpI(s.b, arith.ULT, r, x)
	}
	return &outcome{
		branches: [][]mlir.Value{{rc, r}, {rc, r}},
		sel:      selectCond{cond: overflow, ifTrue: 1},
	}, nil
}

type compareKind uint8

const (
	compareLT compareKind = iota
	compareLE
	compareEQ
)

// uintCompare: branch 0 false, branch 1 true. lt and le thread a range
// check; eq does not.
type uintCompare struct {
	width int
	kind  compareKind
}

func (l uintCompare) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	t := mlir.I(l.width)
	if l.kind == compareEQ {
		return Signature{Inputs: []mlir.Type{t, t}, Branches: [][]mlir.Type{{}, {}}}, nil
	}
	return Signature{
		Inputs:   []mlir.Type{builtinType, t, t},
		Branches: [][]mlir.Type{{builtinType}, {builtinType}},
	}, nil
}

func (l uintCompare) lower(s *site) (*outcome, error) {
	if l.kind == compareEQ {
		eq := arith.CmpI(s.b, arith.EQ, s.inputs[0], s.inputs[1])
		return &outcome{branches: [][]mlir.Value{{}, {}}, sel: selectCond{cond: eq, ifTrue: 1}}, nil
	}
	pred := arith.ULT
	if l.kind == compareLE {
		pred = arith.ULE
	}
	rc := s.inputs[0]
	cond := arith.CmpI(s.b, pred, s.inputs[1], s.inputs[2])
	return &outcome{branches: [][]mlir.Value{{rc}, {rc}}, sel: selectCond{cond: cond, ifTrue: 1}}, nil
}

// uintIsZero: branch 0 when zero, branch 1 with the value as NonZero.
type uintIsZero struct{ width int }

func (l uintIsZero) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	t := mlir.I(l.width)
	return Signature{Inputs: []mlir.Type{t}, Branches: [][]mlir.Type{{}, {t}}}, nil
}

func (l uintIsZero) lower(s *site) (*outcome, error) {
	zero := arith.ConstantInt(s.b, 0, mlir.I(l.width))
	isZero := arith.CmpI(s.b, arith.EQ, s.inputs[0], zero)
	return &outcome{branches: [][]mlir.Value{{}, {s.inputs[0]}}, sel: selectCond{cond: isZero, ifTrue: 0}}, nil
}

type uintDivmod struct{ width int }

func (l uintDivmod) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	t := mlir.I(l.width)
	return Signature{
		Inputs:   []mlir.Type{builtinType, t, t},
		Branches: [][]mlir.Type{{builtinType, t, t}},
	}, nil
}

func (l uintDivmod) lower(s *site) (*outcome, error) {
	q := arith.DivUI(s.b, s.inputs[1], s.inputs[2])
	r := arith.RemUI(s.b, s.inputs[1], s.inputs[2])
	return single(s.inputs[0], q, r), nil
}

type uintToFelt struct{ width int }

func (l uintToFelt) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{Inputs: []mlir.Type{mlir.I(l.width)}, Branches: [][]mlir.Type{{feltType}}}, nil
}

func (l uintToFelt) lower(s *site) (*outcome, error) {
	return single(arith.ExtUI(s.b, s.inputs[0], feltType)), nil
}

// uintTryFromFelt: branch 0 when the felt fits, branch 1 otherwise.
type uintTryFromFelt struct{ width int }

func (l uintTryFromFelt) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{
		Inputs:   []mlir.Type{builtinType, feltType},
		Branches: [][]mlir.Type{{builtinType, mlir.I(l.width)}, {builtinType}},
	}, nil
}

func (l uintTryFromFelt) lower(s *site) (*outcome, error) {
	rc, v := s.inputs[0], s.inputs[1]
	bound := arith.Constant(s.b, pow2(l.width), feltType)
	fits := arith.CmpI(s.b, arith.ULT, v, bound)
	narrow := arith.TruncI(s.b, v, mlir.I(l.width))
	return &outcome{branches: [][]mlir.Value{{rc, narrow}, {rc}}, sel: selectCond{cond: fits, ifTrue: 0}}, nil
}

// u128sFromFelt: branch 0 (low) when the felt fits u128, branch 1 (high, low)
// otherwise.
type u128sFromFelt struct{}

func (u128sFromFelt) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{
		Inputs:   []mlir.Type{builtinType, feltType},
		Branches: [][]mlir.Type{{builtinType, mlir.I128}, {builtinType, mlir.I128, mlir.I128}},
	}, nil
}

func (u128sFromFelt) lower(s *site) (*outcome, error) {
	rc, v := s.inputs[0], s.inputs[1]
	bound := arith.Constant(s.b, pow2(128), feltType)
	fits := arith.CmpI(s.b, arith.ULT, v, bound)
	low := arith.TruncI(s.b, v, mlir.I128)
	shift := arith.ConstantInt(s.b, 128, feltType)
	high := arith.TruncI(s.b, arith.ShRUI(s.b, v, shift), mlir.I128)
	return &outcome{
		branches: [][]mlir.Value{{rc, low}, {rc, high, low}},
		sel:      selectCond{cond: fits, ifTrue: 0},
	}, nil
}

// uintWideMul returns the full product in twice the width.
type uintWideMul struct{ width int }

func (l uintWideMul) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	t := mlir.I(l.width)
	return Signature{Inputs: []mlir.Type{t, t}, Branches: [][]mlir.Type{{mlir.I(2 * l.width)}}}, nil
}

func (l uintWideMul) lower(s *site) (*outcome, error) {
	wide := mlir.I(2 * l.width)
	x := arith.ExtUI(s.b, s.inputs[0], wide)
	y := arith.ExtUI(s.b, s.inputs[1], wide)
	return single(arith.MulI(s.b, x, y)), nil
}
