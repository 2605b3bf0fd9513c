package mlir

import (
	"math/big"
	"strconv"
	"strings"
)

// Attribute is a compile-time constant attached to an operation.
type Attribute interface {
	String() string
}

// IntegerAttr is a typed integer constant.
type IntegerAttr struct {
	Value *big.Int
	Type  Type
}

// IntAttr builds an IntegerAttr from an int64.
func IntAttr(v int64, t Type) IntegerAttr {
	return IntegerAttr{Value: big.NewInt(v), Type: t}
}

func (a IntegerAttr) String() string {
	v := "0"
	if a.Value != nil {
		v = a.Value.String()
	}
	return v + " : " + a.Type.String()
}

// Int64 returns the value truncated to int64.
func (a IntegerAttr) Int64() int64 {
	if a.Value == nil {
		return 0
	}
	return a.Value.Int64()
}

// StringAttr is a quoted string.
type StringAttr string

func (a StringAttr) String() string { return strconv.Quote(string(a)) }

// TypeAttr wraps a type.
type TypeAttr struct {
	Type Type
}

func (a TypeAttr) String() string { return a.Type.String() }

// SymbolRefAttr references a symbol by name.
type SymbolRefAttr string

func (a SymbolRefAttr) String() string { return "@" + formatSymbol(string(a)) }

// DenseI32ArrayAttr is array<i32: ...>.
type DenseI32ArrayAttr []int32

func (a DenseI32ArrayAttr) String() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = strconv.FormatInt(int64(v), 10)
	}
	return denseString("i32", parts)
}

// DenseI64ArrayAttr is array<i64: ...>.
type DenseI64ArrayAttr []int64

func (a DenseI64ArrayAttr) String() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return denseString("i64", parts)
}

func denseString(elem string, parts []string) string {
	if len(parts) == 0 {
		return "array<" + elem + ">"
	}
	return "array<" + elem + ": " + strings.Join(parts, ", ") + ">"
}

// ArrayAttr is a list of attributes.
type ArrayAttr []Attribute

func (a ArrayAttr) String() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// UnitAttr is a present-or-absent flag.
type UnitAttr struct{}

func (UnitAttr) String() string { return "unit" }

// NamedAttr is an attribute with its dictionary key.
type NamedAttr struct {
	Name  string
	Value Attribute
}

func isBareIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && ((r >= '0' && r <= '9') || r == '$' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func formatSymbol(name string) string {
	if isBareIdent(name) {
		return name
	}
	return strconv.Quote(name)
}
