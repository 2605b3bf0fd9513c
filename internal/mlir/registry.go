package mlir

import (
	"fmt"
	"sort"
)

// OpDef describes a registered operation.
type OpDef struct {
	Name string
	// Terminator ops must end their block.
	Terminator bool
	// NoTerminator regions hold blocks that need no terminator.
	NoTerminator bool
	// Verify runs op-specific checks.
	Verify func(op *Operation) error
}

// Registry is the set of operations a verifier accepts.
type Registry struct {
	defs map[string]OpDef
}

// NewRegistry returns a registry that knows builtin.module.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]OpDef)}
	r.Register(OpDef{Name: ModuleOpName, NoTerminator: true, Verify: verifyModuleOp})
	return r
}

// Register adds op definitions, replacing earlier ones with the same name.
func (r *Registry) Register(defs ...OpDef) {
	for _, d := range defs {
		r.defs[d.Name] = d
	}
}

// Lookup returns the definition of name.
func (r *Registry) Lookup(name string) (OpDef, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the registered op names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func verifyModuleOp(op *Operation) error {
	if len(op.Regions) != 1 || len(op.Regions[0].Blocks) != 1 {
		return fmt.Errorf("expects one region with one block")
	}
	if len(op.Operands) != 0 || len(op.Results) != 0 {
		return fmt.Errorf("takes no operands and has no results")
	}
	seen := make(map[string]bool)
	for _, inner := range op.Regions[0].Blocks[0].Ops {
		name := SymbolName(inner)
		if name == "" {
			continue
		}
		if seen[name] {
			return fmt.Errorf("redefinition of symbol @%s", formatSymbol(name))
		}
		seen[name] = true
	}
	return nil
}

// CheckCounts validates operand, result and successor counts. A negative
// count skips the check.
func CheckCounts(op *Operation, operands, results, successors int) error {
	if operands >= 0 && len(op.Operands) != operands {
		return fmt.Errorf("expects %d operands, got %d", operands, len(op.Operands))
	}
	if results >= 0 && len(op.Results) != results {
		return fmt.Errorf("expects %d results, got %d", results, len(op.Results))
	}
	if successors >= 0 && len(op.Successors) != successors {
		return fmt.Errorf("expects %d successors, got %d", successors, len(op.Successors))
	}
	return nil
}

// IntegerAttrOf fetches a required integer attribute.
func IntegerAttrOf(op *Operation, name string) (IntegerAttr, error) {
	a, ok := op.Attr(name)
	if !ok {
		return IntegerAttr{}, fmt.Errorf("requires attribute %q", name)
	}
	ia, ok := a.(IntegerAttr)
	if !ok {
		return IntegerAttr{}, fmt.Errorf("attribute %q must be an integer", name)
	}
	return ia, nil
}

// TypeAttrOf fetches a required type attribute.
func TypeAttrOf(op *Operation, name string) (Type, error) {
	a, ok := op.Attr(name)
	if !ok {
		return nil, fmt.Errorf("requires attribute %q", name)
	}
	ta, ok := a.(TypeAttr)
	if !ok {
		return nil, fmt.Errorf("attribute %q must be a type", name)
	}
	return ta.Type, nil
}

// DenseI64Of fetches a required dense i64 array attribute.
func DenseI64Of(op *Operation, name string) (DenseI64ArrayAttr, error) {
	a, ok := op.Attr(name)
	if !ok {
		return nil, fmt.Errorf("requires attribute %q", name)
	}
	d, ok := a.(DenseI64ArrayAttr)
	if !ok {
		return nil, fmt.Errorf("attribute %q must be array<i64>", name)
	}
	return d, nil
}

// DenseI32Of fetches a required dense i32 array attribute.
func DenseI32Of(op *Operation, name string) (DenseI32ArrayAttr, error) {
	a, ok := op.Attr(name)
	if !ok {
		return nil, fmt.Errorf("requires attribute %q", name)
	}
	d, ok := a.(DenseI32ArrayAttr)
	if !ok {
		return nil, fmt.Errorf("attribute %q must be array<i32>", name)
	}
	return d, nil
}
