package engine

import (
	"fmt"
	"math/big"
	"strings"

	"sierra2mlir/internal/mlir"
)

// Value is a runtime value: Int, Ptr or Aggregate.
type Value interface {
	isValue()
	String() string
}

// Int is an integer of a fixed bit width. V is kept in [0, 2^Width).
type Int struct {
	Width int
	V     *big.Int
}

// Ptr is a memory address. The allocation id sits in the high 32 bits.
type Ptr uint64

// Aggregate holds the fields of a struct or the elements of an array.
type Aggregate []Value

func (Int) isValue()       {}
func (Ptr) isValue()       {}
func (Aggregate) isValue() {}

func (i Int) String() string {
	if i.V == nil {
		return "0"
	}
	return i.V.String()
}

func (p Ptr) String() string {
	if p == 0 {
		return "null"
	}
	return fmt.Sprintf("ptr(%d+%d)", uint64(p)>>32, uint64(p)&0xffffffff)
}

func (a Aggregate) String() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = v.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func modulus(width int) *big.Int { return new(big.Int).Lsh(big.NewInt(1), uint(width)) }

// IntOf wraps v into width bits.
func IntOf(width int, v *big.Int) Int {
	return Int{Width: width, V: new(big.Int).Mod(v, modulus(width))}
}

// NewInt wraps a machine integer into width bits.
func NewInt(width int, v int64) Int { return IntOf(width, big.NewInt(v)) }

// Signed returns the two's complement reading of i.
func (i Int) Signed() *big.Int {
	if i.Width > 0 && i.V.Bit(i.Width-1) == 1 {
		return new(big.Int).Sub(i.V, modulus(i.Width))
	}
	return new(big.Int).Set(i.V)
}

// IsTrue reports whether an i1 is set.
func (i Int) IsTrue() bool { return i.V != nil && i.V.Sign() != 0 }

// Zero returns the zero value of t.
func Zero(t mlir.Type) Value {
	switch tt := t.(type) {
	case mlir.IntegerType:
		return NewInt(tt.Width, 0)
	case mlir.PointerType:
		return Ptr(0)
	case mlir.StructType:
		out := make(Aggregate, len(tt.Fields))
		for i, f := range tt.Fields {
			out[i] = Zero(f)
		}
		return out
	case mlir.ArrayType:
		out := make(Aggregate, tt.Len)
		for i := range out {
			out[i] = Zero(tt.Elem)
		}
		return out
	default:
		return Aggregate(nil)
	}
}

// Conforms reports whether v has the shape of t.
func Conforms(v Value, t mlir.Type) bool {
	switch tt := t.(type) {
	case mlir.IntegerType:
		i, ok := v.(Int)
		return ok && i.Width == tt.Width
	case mlir.PointerType:
		_, ok := v.(Ptr)
		return ok
	case mlir.StructType:
		a, ok := v.(Aggregate)
		if !ok || len(a) != len(tt.Fields) {
			return false
		}
		for i, f := range tt.Fields {
			if !Conforms(a[i], f) {
				return false
			}
		}
		return true
	case mlir.ArrayType:
		a, ok := v.(Aggregate)
		if !ok || len(a) != tt.Len {
			return false
		}
		for _, x := range a {
			if !Conforms(x, tt.Elem) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ParseArg reads a command-line argument of integer type t. Negative
// numbers wrap into the width.
func ParseArg(t mlir.Type, s string) (Value, error) {
	it, ok := t.(mlir.IntegerType)
	if !ok {
		return nil, fmt.Errorf("cannot pass %s from the command line", t)
	}
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return IntOf(it.Width, v), nil
}
