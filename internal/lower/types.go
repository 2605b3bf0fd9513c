package lower

import (
	"fmt"
	"strings"

	"sierra2mlir/internal/layout"
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/sierra"
)

// TypeKind is the closed set of type shapes the lowering knows.
type TypeKind uint8

const (
	KindFelt TypeKind = iota + 1
	KindUint
	KindEnum
	KindStruct
	KindNonZero
	KindSnapshot
	KindBox
	KindArray
	KindBuiltin
)

func (k TypeKind) String() string {
	switch k {
	case KindFelt:
		return "felt"
	case KindUint:
		return "uint"
	case KindEnum:
		return "enum"
	case KindStruct:
		return "struct"
	case KindNonZero:
		return "non_zero"
	case KindSnapshot:
		return "snapshot"
	case KindBox:
		return "box"
	case KindArray:
		return "array"
	case KindBuiltin:
		return "builtin"
	default:
		return fmt.Sprintf("TypeKind(%d)", uint8(k))
	}
}

// ConcreteType is a resolved type declaration.
type ConcreteType struct {
	ID   sierra.TypeID
	Kind TypeKind
	// Canonical is the long id with every argument resolved.
	Canonical string
	Type      mlir.Type
	Layout    layout.Layout

	// Width is the bit width of KindUint.
	Width int
	// Fields are the members of KindStruct.
	Fields []*ConcreteType
	// Variants are the payloads of KindEnum, laid out by Union.
	Variants []*ConcreteType
	Union    layout.Union
	// Inner is the wrapped type of KindNonZero and KindSnapshot.
	Inner *ConcreteType
	// Elem names the pointee of KindBox or the element of KindArray. It is
	// resolved on use so that boxes and arrays may close recursive types.
	Elem sierra.TypeID
	// Builtin is the name of a KindBuiltin handle.
	Builtin string
}

var (
	feltType  = mlir.I256
	arrayType = mlir.Struct(mlir.Ptr, mlir.I32, mlir.I32)
	// builtinType is the opaque handle threaded through builtin parameters.
	builtinType = mlir.I64
)

var uintWidths = map[string]int{"u8": 8, "u16": 16, "u32": 32, "u64": 64, "u128": 128}

var builtinNames = map[string]bool{
	"RangeCheck":   true,
	"Pedersen":     true,
	"Bitwise":      true,
	"GasBuiltin":   true,
	"System":       true,
	"EcOp":         true,
	"Poseidon":     true,
	"SegmentArena": true,
}

// ResolveType returns the concrete type declared as id.
func (c *Compilation) ResolveType(id sierra.TypeID) (*ConcreteType, error) {
	if ct, ok := c.types[id]; ok {
		return ct, nil
	}
	decl, ok := c.typeDecls[id]
	if !ok {
		return nil, newError(UndefinedTypeReference, string(id), "")
	}
	for i, open := range c.resolving {
		if open == id {
			cycle := make([]string, 0, len(c.resolving)-i+1)
			for _, t := range c.resolving[i:] {
				cycle = append(cycle, string(t))
			}
			cycle = append(cycle, string(id))
			return nil, newError(UnsupportedType, string(id), "recursive type cycle: %s", strings.Join(cycle, " -> "))
		}
	}
	c.resolving = append(c.resolving, id)
	ct, err := c.buildType(decl)
	c.resolving = c.resolving[:len(c.resolving)-1]
	if err != nil {
		return nil, err
	}
	if prev, ok := c.canonical[ct.Canonical]; ok {
		c.types[id] = prev
		return prev, nil
	}
	c.canonical[ct.Canonical] = ct
	c.types[id] = ct
	return ct, nil
}

func (c *Compilation) buildType(decl *sierra.TypeDeclaration) (*ConcreteType, error) {
	long := decl.LongID
	ct := &ConcreteType{ID: decl.ID}
	unsupported := func(format string, args ...any) error {
		return newError(UnsupportedType, string(decl.ID), format, args...)
	}

	switch name := long.Generic; {
	case name == "felt252" || name == "felt":
		if len(long.Args) != 0 {
			return nil, unsupported("felt252 takes no generic arguments")
		}
		ct.Kind, ct.Type, ct.Canonical = KindFelt, feltType, "felt252"

	case uintWidths[name] != 0:
		if len(long.Args) != 0 {
			return nil, unsupported("%s takes no generic arguments", name)
		}
		ct.Kind, ct.Width, ct.Canonical = KindUint, uintWidths[name], name
		ct.Type = mlir.I(ct.Width)

	case builtinNames[name]:
		ct.Kind, ct.Type, ct.Builtin, ct.Canonical = KindBuiltin, builtinType, name, name

	case name == "bool":
		unit := c.unitType()
		ct.Kind, ct.Canonical = KindEnum, "bool"
		ct.Variants = []*ConcreteType{unit, unit}

	case name == "Enum":
		if len(long.Args) < 1 || long.Args[0].Kind != sierra.ArgUserType {
			return nil, unsupported("Enum expects a user type name first")
		}
		ct.Kind = KindEnum
		variants, canon, err := c.resolveArgs(long.Args[1:])
		if err != nil {
			return nil, err
		}
		ct.Variants = variants
		ct.Canonical = canonicalName("Enum", append([]string{long.Args[0].String()}, canon...))

	case name == "Struct" || name == "Tuple" || name == "Unit":
		args := long.Args
		prefix := []string(nil)
		if name == "Struct" {
			if len(args) < 1 || args[0].Kind != sierra.ArgUserType {
				return nil, unsupported("Struct expects a user type name first")
			}
			prefix = []string{args[0].String()}
			args = args[1:]
		}
		if name == "Unit" && len(args) != 0 {
			return nil, unsupported("Unit takes no generic arguments")
		}
		fields, canon, err := c.resolveArgs(args)
		if err != nil {
			return nil, err
		}
		ct.Kind, ct.Fields = KindStruct, fields
		ct.Canonical = canonicalName(name, append(prefix, canon...))
		fieldTypes := make([]mlir.Type, len(fields))
		for i, f := range fields {
			fieldTypes[i] = f.Type
		}
		ct.Type = mlir.Struct(fieldTypes...)

	case name == "NonZero" || name == "Snapshot":
		if len(long.Args) != 1 || long.Args[0].Kind != sierra.ArgType {
			return nil, unsupported("%s expects one type argument", name)
		}
		inner, err := c.ResolveType(long.Args[0].Type)
		if err != nil {
			return nil, err
		}
		ct.Kind = KindNonZero
		if name == "Snapshot" {
			ct.Kind = KindSnapshot
		}
		ct.Inner, ct.Type = inner, inner.Type
		ct.Canonical = canonicalName(name, []string{inner.Canonical})

	case name == "Box" || name == "Array":
		if len(long.Args) != 1 || long.Args[0].Kind != sierra.ArgType {
			return nil, unsupported("%s expects one type argument", name)
		}
		elem := long.Args[0].Type
		if _, ok := c.typeDecls[elem]; !ok {
			return nil, newError(UndefinedTypeReference, string(elem), "")
		}
		ct.Elem = elem
		ct.Canonical = canonicalName(name, []string{string(elem)})
		if name == "Box" {
			ct.Kind, ct.Type = KindBox, mlir.Ptr
		} else {
			ct.Kind, ct.Type = KindArray, arrayType
		}

	default:
		return nil, unsupported("no lowering for type %s", long.Generic)
	}

	if ct.Kind == KindEnum {
		// An enum without variants has no values; it keeps a tag-only
		// layout so it can still be passed around.
		payloads := make([]mlir.Type, len(ct.Variants))
		for i, v := range ct.Variants {
			payloads[i] = v.Type
		}
		u, err := c.layouts.TagUnion(payloads)
		if err != nil {
			return nil, unsupported("%v", err)
		}
		ct.Union, ct.Type = u, u.Type
	}

	l, err := c.layouts.LayoutOf(ct.Type)
	if err != nil {
		return nil, unsupported("%v", err)
	}
	ct.Layout = l
	return ct, nil
}

func (c *Compilation) resolveArgs(args []sierra.GenericArg) ([]*ConcreteType, []string, error) {
	out := make([]*ConcreteType, 0, len(args))
	canon := make([]string, 0, len(args))
	for _, a := range args {
		if a.Kind != sierra.ArgType {
			return nil, nil, newError(UnsupportedType, a.String(), "expected a type argument")
		}
		t, err := c.ResolveType(a.Type)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, t)
		canon = append(canon, t.Canonical)
	}
	return out, canon, nil
}

// unitType is the empty struct used as the payload of bool variants.
func (c *Compilation) unitType() *ConcreteType {
	if ct, ok := c.canonical["Unit"]; ok {
		return ct
	}
	ct := &ConcreteType{ID: "Unit", Kind: KindStruct, Canonical: "Unit", Type: mlir.Struct()}
	ct.Layout, _ = c.layouts.LayoutOf(ct.Type)
	c.canonical[ct.Canonical] = ct
	return ct
}

// ElemType resolves the pointee of a box or the element of an array.
func (c *Compilation) ElemType(ct *ConcreteType) (*ConcreteType, error) {
	if ct.Kind != KindBox && ct.Kind != KindArray {
		return nil, newError(UnsupportedType, string(ct.ID), "%s has no element type", ct.Kind)
	}
	return c.ResolveType(ct.Elem)
}

// Strip returns the value type behind snapshot and non-zero wrappers.
func (ct *ConcreteType) Strip() *ConcreteType {
	for ct.Kind == KindSnapshot || ct.Kind == KindNonZero {
		ct = ct.Inner
	}
	return ct
}

// Stride is the distance between consecutive elements of this type in an
// array buffer.
func (ct *ConcreteType) Stride() int {
	a := max(ct.Layout.Align, 1)
	return (ct.Layout.Size + a - 1) / a * a
}

func canonicalName(generic string, args []string) string {
	if len(args) == 0 {
		return generic
	}
	return generic + "<" + strings.Join(args, ", ") + ">"
}
