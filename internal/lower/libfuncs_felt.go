package lower

import (
	"math/big"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/sierra"
)

// feltPrime is P = 2^251 + 17*2^192 + 1.
var feltPrime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	p.Add(p, new(big.Int).Lsh(big.NewInt(17), 192))
	return p.Add(p, big.NewInt(1))
}()

// feltValue reduces v into [0, P).
func feltValue(v *big.Int) *big.Int {
	return new(big.Int).Mod(v, feltPrime)
}

type feltOp uint8

const (
	feltAdd feltOp = iota
	feltSub
	feltMul
)

// feltArith computes lhs op rhs mod P in i512.
func feltArith(b *mlir.Builder, op feltOp, lhs, rhs mlir.Value) mlir.Value {
	p := arith.Constant(b, feltPrime, mlir.I512)
	x := arith.ExtUI(b, lhs, mlir.I512)
	y := arith.ExtUI(b, rhs, mlir.I512)
	var r mlir.Value
	switch op {
	case feltAdd:
		r = arith.AddI(b, x, y)
	case feltSub:
		r = arith.AddI(b, x, arith.SubI(b, p, y))
	case feltMul:
		r = arith.MulI(b, x, y)
	}
	return arith.TruncI(b, arith.RemUI(b, r, p), feltType)
}

type feltConst struct{}

func (feltConst) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{Branches: [][]mlir.Type{{feltType}}}, nil
}

func (feltConst) lower(s *site) (*outcome, error) {
	return single(arith.Constant(s.b, feltValue(valueArg(s.args, 0)), feltType)), nil
}

type feltBinary struct{ op feltOp }

func (feltBinary) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{Inputs: []mlir.Type{feltType, feltType}, Branches: [][]mlir.Type{{feltType}}}, nil
}

func (l feltBinary) lower(s *site) (*outcome, error) {
	return single(feltArith(s.b, l.op, s.inputs[0], s.inputs[1])), nil
}

type feltBinaryConst struct{ op feltOp }

func (feltBinaryConst) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{Inputs: []mlir.Type{feltType}, Branches: [][]mlir.Type{{feltType}}}, nil
}

func (l feltBinaryConst) lower(s *site) (*outcome, error) {
	c := arith.Constant(s.b, feltValue(valueArg(s.args, 0)), feltType)
	return single(feltArith(s.b, l.op, s.inputs[0], c)), nil
}

// feltDiv multiplies by the inverse of a non-zero divisor.
type feltDiv struct{}

func (feltDiv) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{Inputs: []mlir.Type{feltType, feltType}, Branches: [][]mlir.Type{{feltType}}}, nil
}

func (feltDiv) lower(s *site) (*outcome, error) {
	s.c.runtime.feltInverse = true
	inv := fn.Call(s.b, feltInverseName, []mlir.Value{s.inputs[1]}, []mlir.Type{feltType}).Result(0)
	return single(feltArith(s.b, feltMul, s.inputs[0], inv)), nil
}

// feltIsZero: branch 0 when zero, branch 1 with the value as NonZero.
type feltIsZero struct{}

func (feltIsZero) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{Inputs: []mlir.Type{feltType}, Branches: [][]mlir.Type{{}, {feltType}}}, nil
}

func (feltIsZero) lower(s *site) (*outcome, error) {
	zero := arith.ConstantInt(s.b, 0, feltType)
	isZero := arith.CmpI(s.b, arith.EQ, s.inputs[0], zero)
	return &outcome{
		branches: [][]mlir.Value{{}, {s.inputs[0]}},
		sel:      selectCond{cond: isZero, ifTrue: 0},
	}, nil
}
