package mlir

// Module is a builtin.module operation with a single-block body.
type Module struct {
	op *Operation
}

// Names of the builtin and func-level ops the core relies on.
const (
	ModuleOpName = "builtin.module"
	FuncOpName   = "func.func"
)

// NewModule creates an empty module.
func NewModule(loc Location) *Module {
	op := NewOperation(OperationState{
		Name:    ModuleOpName,
		Regions: []*Region{NewRegion(NewBlock())},
		Loc:     loc,
	})
	return &Module{op: op}
}

// ModuleFromOp wraps an existing builtin.module operation.
func ModuleFromOp(op *Operation) (*Module, bool) {
	if op == nil || op.Name != ModuleOpName || len(op.Regions) != 1 || len(op.Regions[0].Blocks) != 1 {
		return nil, false
	}
	return &Module{op: op}, true
}

// Operation returns the underlying builtin.module op.
func (m *Module) Operation() *Operation { return m.op }

// Body returns the module's only block.
func (m *Module) Body() *Block { return m.op.Regions[0].Blocks[0] }

// Functions returns the func.func ops in order.
func (m *Module) Functions() []*Operation {
	var out []*Operation
	for _, op := range m.Body().Ops {
		if op.Name == FuncOpName {
			out = append(out, op)
		}
	}
	return out
}

// Lookup finds a top-level symbol by name.
func (m *Module) Lookup(name string) *Operation {
	for _, op := range m.Body().Ops {
		if SymbolName(op) == name {
			return op
		}
	}
	return nil
}

// SymbolName returns the sym_name attribute of op, or "".
func SymbolName(op *Operation) string {
	a, ok := op.Attr("sym_name")
	if !ok {
		return ""
	}
	s, ok := a.(StringAttr)
	if !ok {
		return ""
	}
	return string(s)
}

// LookupSymbolFrom resolves name in the closest enclosing module of op.
func LookupSymbolFrom(op *Operation, name string) *Operation {
	for cur := op; cur != nil; cur = cur.ParentOp() {
		if m, ok := ModuleFromOp(cur); ok {
			return m.Lookup(name)
		}
	}
	return nil
}

// EnclosingFunc returns the func.func containing op, or nil.
func EnclosingFunc(op *Operation) *Operation {
	for cur := op; cur != nil; cur = cur.ParentOp() {
		if cur.Name == FuncOpName {
			return cur
		}
	}
	return nil
}

// FuncType returns the function_type attribute of a func.func op.
func FuncType(op *Operation) (FunctionType, bool) {
	a, ok := op.Attr("function_type")
	if !ok {
		return FunctionType{}, false
	}
	ta, ok := a.(TypeAttr)
	if !ok {
		return FunctionType{}, false
	}
	ft, ok := ta.Type.(FunctionType)
	return ft, ok
}
