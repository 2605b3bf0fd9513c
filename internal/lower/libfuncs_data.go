package lower

import (
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/mlir/llvm"
	"sierra2mlir/internal/sierra"
)

// boolType is the two-variant unit enum every bool libfunc works on.
func (c *Compilation) boolType() (mlir.Type, error) {
	unit := c.unitType().Type
	u, err := c.layouts.TagUnion([]mlir.Type{unit, unit})
	if err != nil {
		return nil, err
	}
	return u.Type, nil
}

type boolOp uint8

const (
	boolAnd boolOp = iota
	boolOr
	boolXor
)

type boolNot struct{}

func (boolNot) specialize(c *Compilation, _ []sierra.GenericArg) (Signature, error) {
	t, err := c.boolType()
	if err != nil {
		return Signature{}, err
	}
	return Signature{Inputs: []mlir.Type{t}, Branches: [][]mlir.Type{{t}}}, nil
}

func (boolNot) lower(s *site) (*outcome, error) {
	v := s.inputs[0]
	tag := llvm.ExtractValue(s.b, v, 0)
	one := arith.ConstantInt(s.b, 1, tag.Type())
	return single(llvm.InsertValue(s.b, v, arith.XOrI(s.b, tag, one), 0)), nil
}

type boolBinary struct{ op boolOp }

func (boolBinary) specialize(c *Compilation, _ []sierra.GenericArg) (Signature, error) {
	t, err := c.boolType()
	if err != nil {
		return Signature{}, err
	}
	return Signature{Inputs: []mlir.Type{t, t}, Branches: [][]mlir.Type{{t}}}, nil
}

func (l boolBinary) lower(s *site) (*outcome, error) {
	x := llvm.ExtractValue(s.b, s.inputs[0], 0)
	y := llvm.ExtractValue(s.b, s.inputs[1], 0)
	var r mlir.Value
	switch l.op {
	case boolAnd:
		r = arith.AndI(s.b, x, y)
	case boolOr:
		r = arith.OrI(s.b, x, y)
	default:
		r = arith.XOrI(s.b, x, y)
	}
	return single(llvm.InsertValue(s.b, s.inputs[0], r, 0)), nil
}

type boolToFelt struct{}

func (boolToFelt) specialize(c *Compilation, _ []sierra.GenericArg) (Signature, error) {
	t, err := c.boolType()
	if err != nil {
		return Signature{}, err
	}
	return Signature{Inputs: []mlir.Type{t}, Branches: [][]mlir.Type{{feltType}}}, nil
}

func (boolToFelt) lower(s *site) (*outcome, error) {
	tag := llvm.ExtractValue(s.b, s.inputs[0], 0)
	return single(arith.ExtUI(s.b, tag, feltType)), nil
}

func structArg(c *Compilation, args []sierra.GenericArg) (*ConcreteType, error) {
	t, err := c.typeArg(args, 0)
	if err != nil {
		return nil, err
	}
	if t.Kind != KindStruct {
		return nil, invalid("%s is not a struct", t.Canonical)
	}
	return t, nil
}

type structConstruct struct{}

func (structConstruct) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	t, err := structArg(c, args)
	if err != nil {
		return Signature{}, err
	}
	st := t.Type.(mlir.StructType)
	return Signature{Inputs: st.Fields, Branches: [][]mlir.Type{{t.Type}}}, nil
}

func (structConstruct) lower(s *site) (*outcome, error) {
	t, err := structArg(s.c, s.args)
	if err != nil {
		return nil, err
	}
	v := llvm.Undef(s.b, t.Type)
	for i, field := range s.inputs {
		v = llvm.InsertValue(s.b, v, field, int64(i))
	}
	return single(v), nil
}

type structDeconstruct struct{}

func (structDeconstruct) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	t, err := structArg(c, args)
	if err != nil {
		return Signature{}, err
	}
	st := t.Type.(mlir.StructType)
	return Signature{Inputs: []mlir.Type{t.Type}, Branches: [][]mlir.Type{st.Fields}}, nil
}

func (structDeconstruct) lower(s *site) (*outcome, error) {
	st := s.inputs[0].Type().(mlir.StructType)
	out := make([]mlir.Value, len(st.Fields))
	for i := range st.Fields {
		out[i] = llvm.ExtractValue(s.b, s.inputs[0], int64(i))
	}
	return single(out...), nil
}

func enumArg(c *Compilation, args []sierra.GenericArg) (*ConcreteType, error) {
	t, err := c.typeArg(args, 0)
	if err != nil {
		return nil, err
	}
	if t.Kind != KindEnum {
		return nil, invalid("%s is not an enum", t.Canonical)
	}
	return t, nil
}

// enumInit stores the tag and the payload through a stack slot.
type enumInit struct{}

func (enumInit) variant(c *Compilation, args []sierra.GenericArg) (*ConcreteType, int, error) {
	t, err := enumArg(c, args)
	if err != nil {
		return nil, 0, err
	}
	idx := valueArg(args, 1)
	if !idx.IsInt64() || idx.Int64() < 0 || idx.Int64() >= int64(len(t.Variants)) {
		return nil, 0, invalid("variant index %s out of range for %s", idx, t.Canonical)
	}
	return t, int(idx.Int64()), nil
}

func (l enumInit) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	t, i, err := l.variant(c, args)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Inputs: []mlir.Type{t.Variants[i].Type}, Branches: [][]mlir.Type{{t.Type}}}, nil
}

func (l enumInit) lower(s *site) (*outcome, error) {
	t, i, err := l.variant(s.c, s.args)
	if err != nil {
		return nil, err
	}
	one := arith.ConstantInt(s.b, 1, mlir.I64)
	slot := llvm.Alloca(s.b, t.Type, one)
	tag := arith.ConstantInt(s.b, int64(i), mlir.I(t.Union.TagBits))
	llvm.Store(s.b, tag, llvm.GEP(s.b, t.Type, slot, []int32{0, 0}))
	llvm.Store(s.b, s.inputs[0], llvm.GEP(s.b, t.Type, slot, []int32{0, 1}))
	return single(llvm.Load(s.b, t.Type, slot)), nil
}

// enumMatch reads every variant view of the payload and switches on the tag.
// The last variant is the default destination. Matching an enum without
// variants cannot happen at run time and ends the block unreachable.
type enumMatch struct{}

func (enumMatch) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	t, err := enumArg(c, args)
	if err != nil {
		return Signature{}, err
	}
	branches := make([][]mlir.Type, len(t.Variants))
	for i, v := range t.Variants {
		branches[i] = []mlir.Type{v.Type}
	}
	return Signature{Inputs: []mlir.Type{t.Type}, Branches: branches}, nil
}

func (enumMatch) lower(s *site) (*outcome, error) {
	t, err := enumArg(s.c, s.args)
	if err != nil {
		return nil, err
	}
	n := len(t.Variants)
	if n == 0 {
		return &outcome{sel: selectAbort{}}, nil
	}
	v := s.inputs[0]
	one := arith.ConstantInt(s.b, 1, mlir.I64)
	slot := llvm.Alloca(s.b, t.Type, one)
	llvm.Store(s.b, v, slot)
	payload := llvm.GEP(s.b, t.Type, slot, []int32{0, 1})
	branches := make([][]mlir.Value, n)
	for i, variant := range t.Variants {
		branches[i] = []mlir.Value{llvm.Load(s.b, variant.Type, payload)}
	}
	tag := llvm.ExtractValue(s.b, v, 0)
	sel := selectSwitch{flag: tag, def: n - 1}
	for i := 0; i < n-1; i++ {
		sel.values = append(sel.values, int64(i))
		sel.targets = append(sel.targets, i)
	}
	return &outcome{branches: branches, sel: sel}, nil
}

// passThrough forwards its input copies times.
type passThrough struct{ copies int }

func (l passThrough) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	t, err := c.typeArg(args, 0)
	if err != nil {
		return Signature{}, err
	}
	out := make([]mlir.Type, l.copies)
	for i := range out {
		out[i] = t.Type
	}
	return Signature{Inputs: []mlir.Type{t.Type}, Branches: [][]mlir.Type{out}}, nil
}

func (l passThrough) lower(s *site) (*outcome, error) {
	out := make([]mlir.Value, l.copies)
	for i := range out {
		out[i] = s.inputs[0]
	}
	return single(out...), nil
}

type nop struct{}

func (nop) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{Branches: [][]mlir.Type{{}}}, nil
}

func (nop) lower(*site) (*outcome, error) { return single(), nil }

// jump has one branch whose target is arbitrary.
type jump struct{ nop }

type functionCall struct{}

func (functionCall) callee(c *Compilation, args []sierra.GenericArg) (*sierra.Function, error) {
	id := sierra.FunctionID(args[0].Name)
	f, ok := c.funcs[id]
	if !ok {
		return nil, newError(UndefinedFunctionReference, string(id), "")
	}
	return f, nil
}

func (l functionCall) specialize(c *Compilation, args []sierra.GenericArg) (Signature, error) {
	f, err := l.callee(c, args)
	if err != nil {
		return Signature{}, err
	}
	ty, err := c.functionType(f)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Inputs: ty.Inputs, Branches: [][]mlir.Type{ty.Results}}, nil
}

func (l functionCall) lower(s *site) (*outcome, error) {
	f, err := l.callee(s.c, s.args)
	if err != nil {
		return nil, err
	}
	ty, err := s.c.functionType(f)
	if err != nil {
		return nil, err
	}
	call := fn.Call(s.b, string(f.ID), s.inputs, ty.Results)
	out := make([]mlir.Value, len(call.Results))
	for i := range call.Results {
		out[i] = call.Result(i)
	}
	return single(out...), nil
}

// panicAbort calls the abort trampoline; its inputs are discarded.
type panicAbort struct{}

func (panicAbort) specialize(*Compilation, []sierra.GenericArg) (Signature, error) {
	return Signature{Variadic: true}, nil
}

func (panicAbort) lower(s *site) (*outcome, error) {
	s.c.runtime.abort = true
	fn.Call(s.b, abortTrampolineName, nil, nil)
	return &outcome{sel: selectAbort{}}, nil
}

func (c *Compilation) functionType(f *sierra.Function) (mlir.FunctionType, error) {
	inputs := make([]mlir.Type, len(f.Params))
	for i, p := range f.Params {
		t, err := c.ResolveType(p.Type)
		if err != nil {
			return mlir.FunctionType{}, err
		}
		inputs[i] = t.Type
	}
	results, err := c.signatureTypes(f.RetTypes)
	if err != nil {
		return mlir.FunctionType{}, err
	}
	return mlir.FunctionType{Inputs: inputs, Results: results}, nil
}
