// Package fn builds and registers the func dialect (func.func, func.call,
// func.return).
package fn

import (
	"fmt"

	"sierra2mlir/internal/mlir"
)

// Operation names.
const (
	FuncOp   = mlir.FuncOpName
	CallOp   = "func.call"
	ReturnOp = "func.return"
)

// Func appends a function definition to the module body and returns it with
// its entry block, whose arguments match the inputs of ty.
func Func(m *mlir.Module, name string, ty mlir.FunctionType, loc mlir.Location) (*mlir.Operation, *mlir.Block) {
	entry := mlir.NewBlock(ty.Inputs...)
	op := mlir.NewOperation(mlir.OperationState{
		Name:    FuncOp,
		Regions: []*mlir.Region{mlir.NewRegion(entry)},
		Attrs: []mlir.NamedAttr{
			{Name: "sym_name", Value: mlir.StringAttr(name)},
			{Name: "function_type", Value: mlir.TypeAttr{Type: ty}},
		},
		Loc: loc,
	})
	m.Body().Append(op)
	return op, entry
}

// Declare appends a private external function declaration.
func Declare(m *mlir.Module, name string, ty mlir.FunctionType) *mlir.Operation {
	op := mlir.NewOperation(mlir.OperationState{
		Name:    FuncOp,
		Regions: []*mlir.Region{mlir.NewRegion()},
		Attrs: []mlir.NamedAttr{
			{Name: "sym_name", Value: mlir.StringAttr(name)},
			{Name: "function_type", Value: mlir.TypeAttr{Type: ty}},
			{Name: "sym_visibility", Value: mlir.StringAttr("private")},
		},
	})
	m.Body().Append(op)
	return op
}

// IsDeclaration reports whether a func.func has no body.
func IsDeclaration(op *mlir.Operation) bool {
	return len(op.Regions) == 1 && len(op.Regions[0].Blocks) == 0
}

// Return ends a function body.
func Return(b *mlir.Builder, vals ...mlir.Value) *mlir.Operation {
	return b.Create(mlir.OperationState{Name: ReturnOp, Operands: vals})
}

// Call invokes callee and returns the call op.
func Call(b *mlir.Builder, callee string, args []mlir.Value, results []mlir.Type) *mlir.Operation {
	return b.Create(mlir.OperationState{
		Name:        CallOp,
		Operands:    args,
		ResultTypes: results,
		Attrs:       []mlir.NamedAttr{{Name: "callee", Value: mlir.SymbolRefAttr(callee)}},
	})
}

// Callee returns the symbol a func.call targets.
func Callee(op *mlir.Operation) (string, bool) {
	a, ok := op.Attr("callee")
	if !ok {
		return "", false
	}
	s, ok := a.(mlir.SymbolRefAttr)
	return string(s), ok
}

func verifyFunc(op *mlir.Operation) error {
	if err := mlir.CheckCounts(op, 0, 0, 0); err != nil {
		return err
	}
	if mlir.SymbolName(op) == "" {
		return fmt.Errorf("requires a non-empty sym_name")
	}
	ty, ok := mlir.FuncType(op)
	if !ok {
		return fmt.Errorf("requires a function_type attribute")
	}
	if len(op.Regions) != 1 {
		return fmt.Errorf("expects one region, got %d", len(op.Regions))
	}
	if IsDeclaration(op) {
		vis, _ := op.Attr("sym_visibility")
		if s, ok := vis.(mlir.StringAttr); !ok || s == "public" {
			return fmt.Errorf("external declaration of @%s must not be public", mlir.SymbolName(op))
		}
		return nil
	}
	entry := op.Regions[0].Entry()
	if !mlir.TypesEqual(entry.ArgTypes(), ty.Inputs) {
		return fmt.Errorf("entry block arguments %s do not match inputs %s", mlir.FormatTypes(entry.ArgTypes()), mlir.FormatTypes(ty.Inputs))
	}
	return nil
}

func verifyReturn(op *mlir.Operation) error {
	parent := op.ParentOp()
	if parent == nil || parent.Name != FuncOp {
		return fmt.Errorf("must be nested in %s", FuncOp)
	}
	ty, ok := mlir.FuncType(parent)
	if !ok {
		return fmt.Errorf("enclosing function has no type")
	}
	if !mlir.TypesEqual(op.OperandTypes(), ty.Results) {
		return fmt.Errorf("returns %s, function results are %s", mlir.FormatTypes(op.OperandTypes()), mlir.FormatTypes(ty.Results))
	}
	return nil
}

func verifyCall(op *mlir.Operation) error {
	callee, ok := Callee(op)
	if !ok {
		return fmt.Errorf("requires a callee symbol")
	}
	target := mlir.LookupSymbolFrom(op, callee)
	if target == nil || target.Name != FuncOp {
		return fmt.Errorf("callee @%s does not reference a function", callee)
	}
	ty, ok := mlir.FuncType(target)
	if !ok {
		return fmt.Errorf("callee @%s has no type", callee)
	}
	if !mlir.TypesEqual(op.OperandTypes(), ty.Inputs) {
		return fmt.Errorf("passes %s to @%s expecting %s", mlir.FormatTypes(op.OperandTypes()), callee, mlir.FormatTypes(ty.Inputs))
	}
	if !mlir.TypesEqual(op.ResultTypes(), ty.Results) {
		return fmt.Errorf("expects %s from @%s returning %s", mlir.FormatTypes(op.ResultTypes()), callee, mlir.FormatTypes(ty.Results))
	}
	return nil
}

// Register adds the func ops to r.
func Register(r *mlir.Registry) {
	r.Register(
		mlir.OpDef{Name: FuncOp, Verify: verifyFunc},
		mlir.OpDef{Name: ReturnOp, Terminator: true, Verify: verifyReturn},
		mlir.OpDef{Name: CallOp, Verify: verifyCall},
	)
}
