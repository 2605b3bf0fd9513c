// Package mlir is a small in-memory model of MLIR modules: types,
// attributes, operations, blocks and regions, with a printer and parser for
// the generic operation form and a structural verifier.
package mlir

import (
	"strconv"
	"strings"
)

// Type is an MLIR type. Two types are equal when they print the same.
type Type interface {
	String() string
	format(sb *strings.Builder, nested bool)
}

// TypeEqual reports whether a and b denote the same type.
func TypeEqual(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// IntegerType is a signless integer of the given bit width.
type IntegerType struct {
	Width int
}

// I returns the integer type of the given width.
func I(width int) IntegerType { return IntegerType{Width: width} }

// Common integer types.
var (
	I1   = I(1)
	I8   = I(8)
	I16  = I(16)
	I32  = I(32)
	I64  = I(64)
	I128 = I(128)
	I256 = I(256)
	I512 = I(512)
)

func (t IntegerType) String() string { return "i" + strconv.Itoa(t.Width) }

func (t IntegerType) format(sb *strings.Builder, _ bool) {
	sb.WriteString(t.String())
}

// PointerType is the opaque LLVM pointer.
type PointerType struct{}

// Ptr is the opaque pointer type.
var Ptr = PointerType{}

func (t PointerType) String() string { return formatType(t) }

func (PointerType) format(sb *strings.Builder, nested bool) {
	if !nested {
		sb.WriteString("!llvm.")
	}
	sb.WriteString("ptr")
}

// StructType is a literal LLVM struct.
type StructType struct {
	Fields []Type
}

// Struct builds a struct type from its field types.
func Struct(fields ...Type) StructType { return StructType{Fields: fields} }

func (t StructType) String() string { return formatType(t) }

func (t StructType) format(sb *strings.Builder, nested bool) {
	if !nested {
		sb.WriteString("!llvm.")
	}
	sb.WriteString("struct<(")
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		f.format(sb, true)
	}
	sb.WriteString(")>")
}

// ArrayType is a fixed-length LLVM array.
type ArrayType struct {
	Len  int
	Elem Type
}

// Array builds an array type.
func Array(n int, elem Type) ArrayType { return ArrayType{Len: n, Elem: elem} }

func (t ArrayType) String() string { return formatType(t) }

func (t ArrayType) format(sb *strings.Builder, nested bool) {
	if !nested {
		sb.WriteString("!llvm.")
	}
	sb.WriteString("array<")
	sb.WriteString(strconv.Itoa(t.Len))
	sb.WriteString(" x ")
	t.Elem.format(sb, true)
	sb.WriteString(">")
}

// FunctionType is the type of a func.func symbol.
type FunctionType struct {
	Inputs  []Type
	Results []Type
}

func (t FunctionType) String() string { return formatType(t) }

func (t FunctionType) format(sb *strings.Builder, nested bool) {
	sb.WriteString("(")
	writeTypeList(sb, t.Inputs, nested)
	sb.WriteString(") -> ")
	if len(t.Results) == 1 {
		if _, isFn := t.Results[0].(FunctionType); !isFn {
			t.Results[0].format(sb, nested)
			return
		}
	}
	sb.WriteString("(")
	writeTypeList(sb, t.Results, nested)
	sb.WriteString(")")
}

func writeTypeList(sb *strings.Builder, ts []Type, nested bool) {
	for i, t := range ts {
		if i > 0 {
			sb.WriteString(", ")
		}
		t.format(sb, nested)
	}
}

func formatType(t Type) string {
	var sb strings.Builder
	t.format(&sb, false)
	return sb.String()
}

// IntWidth returns the bit width of an integer type.
func IntWidth(t Type) (int, bool) {
	it, ok := t.(IntegerType)
	if !ok {
		return 0, false
	}
	return it.Width, true
}

// IsPointer reports whether t is the opaque pointer type.
func IsPointer(t Type) bool {
	_, ok := t.(PointerType)
	return ok
}

// TypesEqual compares two type lists element-wise.
func TypesEqual(a, b []Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !TypeEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// FormatTypes prints a parenthesized type list.
func FormatTypes(ts []Type) string {
	var sb strings.Builder
	sb.WriteString("(")
	writeTypeList(&sb, ts, false)
	sb.WriteString(")")
	return sb.String()
}
