package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/mlir/cf"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/mlir/llvm"
	"sierra2mlir/internal/mlir/scf"
)

type frame map[mlir.Value]Value

func (f frame) get(v mlir.Value) (Value, error) {
	x, ok := f[v]
	if !ok {
		return nil, fmt.Errorf("value of type %s used before definition", v.Type())
	}
	return x, nil
}

func (f frame) int(op *mlir.Operation, i int) (Int, error) {
	v, err := f.get(op.Operands[i])
	if err != nil {
		return Int{}, err
	}
	x, ok := v.(Int)
	if !ok {
		return Int{}, fmt.Errorf("%s: operand #%d is %s, want an integer", op.Name, i, v)
	}
	return x, nil
}

func (f frame) ptr(op *mlir.Operation, i int) (Ptr, error) {
	v, err := f.get(op.Operands[i])
	if err != nil {
		return 0, err
	}
	p, ok := v.(Ptr)
	if !ok {
		return 0, fmt.Errorf("%s: operand #%d is %s, want a pointer", op.Name, i, v)
	}
	return p, nil
}

type binop func(a, b *big.Int, width int) (*big.Int, error)

var binops = map[string]binop{}

func init() {
	arithmetic := map[string]binop{
		"add": func(a, b *big.Int, _ int) (*big.Int, error) { return new(big.Int).Add(a, b), nil },
		"sub": func(a, b *big.Int, _ int) (*big.Int, error) { return new(big.Int).Sub(a, b), nil },
		"mul": func(a, b *big.Int, _ int) (*big.Int, error) { return new(big.Int).Mul(a, b), nil },
		"div": func(a, b *big.Int, _ int) (*big.Int, error) {
			if b.Sign() == 0 {
				return nil, errors.New("division by zero")
			}
			return new(big.Int).Quo(a, b), nil
		},
		"rem": func(a, b *big.Int, _ int) (*big.Int, error) {
			if b.Sign() == 0 {
				return nil, errors.New("remainder by zero")
			}
			return new(big.Int).Rem(a, b), nil
		},
		"and": func(a, b *big.Int, _ int) (*big.Int, error) { return new(big.Int).And(a, b), nil },
		"or":  func(a, b *big.Int, _ int) (*big.Int, error) { return new(big.Int).Or(a, b), nil },
		"xor": func(a, b *big.Int, _ int) (*big.Int, error) { return new(big.Int).Xor(a, b), nil },
		"shl": func(a, b *big.Int, w int) (*big.Int, error) {
			if b.Cmp(big.NewInt(int64(w))) >= 0 {
				return new(big.Int), nil
			}
			return new(big.Int).Lsh(a, uint(b.Uint64())), nil
		},
		"shr": func(a, b *big.Int, w int) (*big.Int, error) {
			if b.Cmp(big.NewInt(int64(w))) >= 0 {
				return new(big.Int), nil
			}
			return new(big.Int).Rsh(a, uint(b.Uint64())), nil
		},
	}
	for name, kind := range map[string]string{
		arith.AddIOp: "add", llvm.AddOp: "add",
		arith.SubIOp: "sub", llvm.SubOp: "sub",
		arith.MulIOp: "mul", llvm.MulOp: "mul",
		arith.DivUIOp: "div", llvm.UDivOp: "div",
		arith.RemUIOp: "rem", llvm.URemOp: "rem",
		arith.AndIOp: "and", llvm.AndOp: "and",
		arith.OrIOp: "or", llvm.OrOp: "or",
		arith.XOrIOp: "xor", llvm.XOrOp: "xor",
		arith.ShLIOp: "shl", llvm.ShlOp: "shl",
		arith.ShRUIOp: "shr", llvm.LShrOp: "shr",
	} {
		binops[name] = arithmetic[kind]
	}
}

func compare(pred arith.Predicate, a, b Int) (bool, error) {
	var c int
	switch pred {
	case arith.SLT, arith.SLE, arith.SGT, arith.SGE:
		c = a.Signed().Cmp(b.Signed())
	default:
		c = a.V.Cmp(b.V)
	}
	switch pred {
	case arith.EQ:
		return c == 0, nil
	case arith.NE:
		return c != 0, nil
	case arith.SLT, arith.ULT:
		return c < 0, nil
	case arith.SLE, arith.ULE:
		return c <= 0, nil
	case arith.SGT, arith.UGT:
		return c > 0, nil
	case arith.SGE, arith.UGE:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown predicate %d", pred)
}

func boolInt(b bool) Int {
	if b {
		return NewInt(1, 1)
	}
	return NewInt(1, 0)
}

func isTerminator(name string) bool {
	switch name {
	case fn.ReturnOp, cf.BrOp, cf.CondBrOp, cf.SwitchOp,
		llvm.BrOp, llvm.CondBrOp, llvm.SwitchOp, llvm.UnreachableOp, scf.YieldOp:
		return true
	}
	return false
}

// tick charges one step and polls ctx now and then.
func (e *Engine) tick(ctx context.Context) error {
	e.steps++
	if e.opts.MaxSteps > 0 && e.steps > e.opts.MaxSteps {
		return fmt.Errorf("%w after %d operations", ErrStepLimit, e.opts.MaxSteps)
	}
	if e.steps%cancelCheckEvery == 0 {
		return ctx.Err()
	}
	return nil
}

// call runs a function. Panics gain the function name as they unwind.
func (e *Engine) call(ctx context.Context, f *mlir.Operation, args []Value, depth int) ([]Value, error) {
	name := mlir.SymbolName(f)
	if fn.IsDeclaration(f) {
		return e.native(name, args)
	}
	if depth > maxCallDepth {
		return nil, fmt.Errorf("call depth exceeds %d in %s", maxCallDepth, name)
	}
	out, err := e.run(ctx, f, args, depth)
	if err != nil {
		var p *Panic
		if errors.As(err, &p) {
			p.Backtrace = append(p.Backtrace, name)
		}
		return nil, err
	}
	return out, nil
}

func (e *Engine) run(ctx context.Context, f *mlir.Operation, args []Value, depth int) ([]Value, error) {
	fr := make(frame)
	block := f.Regions[0].Entry()
	for i, a := range block.Args {
		fr[a] = args[i]
	}
	for {
		term, err := e.runOps(ctx, fr, block, depth)
		if err != nil {
			return nil, err
		}
		var next mlir.Successor
		switch term.Name {
		case fn.ReturnOp:
			out := make([]Value, len(term.Operands))
			for i, v := range term.Operands {
				if out[i], err = fr.get(v); err != nil {
					return nil, err
				}
			}
			return out, nil
		case cf.BrOp, llvm.BrOp:
			next = term.Successors[0]
		case cf.CondBrOp, llvm.CondBrOp:
			c, err := fr.int(term, 0)
			if err != nil {
				return nil, err
			}
			next = term.Successors[1]
			if c.IsTrue() {
				next = term.Successors[0]
			}
		case cf.SwitchOp, llvm.SwitchOp:
			if next, err = selectCase(fr, term); err != nil {
				return nil, err
			}
		case llvm.UnreachableOp:
			return nil, &Panic{Reason: "unreachable code", Loc: term.Loc}
		default:
			return nil, fmt.Errorf("%s cannot end a function block", term.Name)
		}
		if block, err = jump(fr, next); err != nil {
			return nil, err
		}
	}
}

func selectCase(fr frame, op *mlir.Operation) (mlir.Successor, error) {
	flag, err := fr.int(op, 0)
	if err != nil {
		return mlir.Successor{}, err
	}
	cases, err := mlir.DenseI64Of(op, "case_values")
	if err != nil {
		return mlir.Successor{}, err
	}
	for i, c := range cases {
		if IntOf(flag.Width, big.NewInt(c)).V.Cmp(flag.V) == 0 {
			return op.Successors[i+1], nil
		}
	}
	return op.Successors[0], nil
}

// jump binds successor arguments. All values are read before any is bound.
func jump(fr frame, s mlir.Successor) (*mlir.Block, error) {
	vals := make([]Value, len(s.Args))
	for i, a := range s.Args {
		v, err := fr.get(a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	for i, a := range s.Block.Args {
		fr[a] = vals[i]
	}
	return s.Block, nil
}

// runOps executes block up to its terminator and returns the terminator.
func (e *Engine) runOps(ctx context.Context, fr frame, block *mlir.Block, depth int) (*mlir.Operation, error) {
	for _, op := range block.Ops {
		if err := e.tick(ctx); err != nil {
			return nil, err
		}
		if isTerminator(op.Name) {
			return op, nil
		}
		if err := e.exec(ctx, fr, op, depth); err != nil {
			var p *Panic
			if errors.As(err, &p) {
				if !p.Loc.Known() {
					p.Loc = op.Loc
				}
				return nil, err
			}
			if errors.Is(err, ErrStepLimit) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%s at %s: %w", op.Name, op.Loc, err)
		}
	}
	return nil, fmt.Errorf("block ends without a terminator")
}

func (e *Engine) exec(ctx context.Context, fr frame, op *mlir.Operation, depth int) error {
	if bin, ok := binops[op.Name]; ok {
		a, err := fr.int(op, 0)
		if err != nil {
			return err
		}
		b, err := fr.int(op, 1)
		if err != nil {
			return err
		}
		r, err := bin(a.V, b.V, a.Width)
		if err != nil {
			return err
		}
		fr[op.Results[0]] = IntOf(a.Width, r)
		return nil
	}

	switch op.Name {
	case arith.ConstantOp, llvm.ConstantOp:
		v, err := mlir.IntegerAttrOf(op, "value")
		if err != nil {
			return err
		}
		w, _ := mlir.IntWidth(op.Results[0].Type())
		fr[op.Results[0]] = IntOf(w, v.Value)

	case arith.CmpIOp, llvm.ICmpOp:
		pred, err := mlir.IntegerAttrOf(op, "predicate")
		if err != nil {
			return err
		}
		a, err := fr.int(op, 0)
		if err != nil {
			return err
		}
		b, err := fr.int(op, 1)
		if err != nil {
			return err
		}
		r, err := compare(arith.Predicate(pred.Int64()), a, b)
		if err != nil {
			return err
		}
		fr[op.Results[0]] = boolInt(r)

	case arith.ExtUIOp, llvm.ZExtOp, arith.TruncIOp, llvm.TruncOp:
		a, err := fr.int(op, 0)
		if err != nil {
			return err
		}
		w, _ := mlir.IntWidth(op.Results[0].Type())
		fr[op.Results[0]] = IntOf(w, a.V)

	case arith.SelectOp, llvm.SelectOp:
		c, err := fr.int(op, 0)
		if err != nil {
			return err
		}
		pick := op.Operands[2]
		if c.IsTrue() {
			pick = op.Operands[1]
		}
		v, err := fr.get(pick)
		if err != nil {
			return err
		}
		fr[op.Results[0]] = v

	case llvm.UndefOp, llvm.ZeroOp:
		fr[op.Results[0]] = Zero(op.Results[0].Type())

	case llvm.AllocaOp:
		elem, err := mlir.TypeAttrOf(op, "elem_type")
		if err != nil {
			return err
		}
		n, err := fr.int(op, 0)
		if err != nil {
			return err
		}
		stride, err := e.strideOf(elem)
		if err != nil {
			return err
		}
		p, err := e.mem.alloc(stride * int(n.V.Int64()))
		if err != nil {
			return err
		}
		fr[op.Results[0]] = p

	case llvm.LoadOp:
		p, err := fr.ptr(op, 0)
		if err != nil {
			return err
		}
		v, err := e.Load(op.Results[0].Type(), p)
		if err != nil {
			return err
		}
		fr[op.Results[0]] = v

	case llvm.StoreOp:
		v, err := fr.get(op.Operands[0])
		if err != nil {
			return err
		}
		p, err := fr.ptr(op, 1)
		if err != nil {
			return err
		}
		return e.Store(op.Operands[0].Type(), p, v)

	case llvm.GEPOp:
		p, err := e.gep(fr, op)
		if err != nil {
			return err
		}
		fr[op.Results[0]] = p

	case llvm.InsertValueOp:
		agg, err := fr.get(op.Operands[0])
		if err != nil {
			return err
		}
		v, err := fr.get(op.Operands[1])
		if err != nil {
			return err
		}
		pos, err := mlir.DenseI64Of(op, "position")
		if err != nil {
			return err
		}
		out, err := insertAt(agg, v, pos)
		if err != nil {
			return err
		}
		fr[op.Results[0]] = out

	case llvm.ExtractValOp:
		agg, err := fr.get(op.Operands[0])
		if err != nil {
			return err
		}
		pos, err := mlir.DenseI64Of(op, "position")
		if err != nil {
			return err
		}
		v, err := extractAt(agg, pos)
		if err != nil {
			return err
		}
		fr[op.Results[0]] = v

	case llvm.MemmoveOp:
		dst, err := fr.ptr(op, 0)
		if err != nil {
			return err
		}
		src, err := fr.ptr(op, 1)
		if err != nil {
			return err
		}
		n, err := fr.int(op, 2)
		if err != nil {
			return err
		}
		if n.V.Sign() == 0 {
			return nil
		}
		from, err := e.mem.slice(src, int(n.V.Int64()))
		if err != nil {
			return err
		}
		to, err := e.mem.slice(dst, int(n.V.Int64()))
		if err != nil {
			return err
		}
		copy(to, from)

	case fn.CallOp:
		callee, _ := fn.Callee(op)
		target, ok := e.funcs[callee]
		if !ok {
			return fmt.Errorf("call to undefined function @%s", callee)
		}
		args := make([]Value, len(op.Operands))
		for i, a := range op.Operands {
			v, err := fr.get(a)
			if err != nil {
				return err
			}
			args[i] = v
		}
		out, err := e.call(ctx, target, args, depth+1)
		if err != nil {
			return err
		}
		if len(out) != len(op.Results) {
			return fmt.Errorf("@%s returned %d values, want %d", callee, len(out), len(op.Results))
		}
		for i, r := range op.Results {
			fr[r] = out[i]
		}

	case scf.IfOp:
		c, err := fr.int(op, 0)
		if err != nil {
			return err
		}
		region := op.Regions[1]
		if c.IsTrue() {
			region = op.Regions[0]
		}
		yield, err := e.runOps(ctx, fr, region.Entry(), depth)
		if err != nil {
			return err
		}
		if yield.Name != scf.YieldOp {
			return fmt.Errorf("%s cannot end an scf.if region", yield.Name)
		}
		for i, r := range op.Results {
			v, err := fr.get(yield.Operands[i])
			if err != nil {
				return err
			}
			fr[r] = v
		}

	default:
		return fmt.Errorf("unsupported operation")
	}
	return nil
}

// gep resolves an address the way LLVM does: the first index scales by the
// element size, later ones select struct fields or array elements.
func (e *Engine) gep(fr frame, op *mlir.Operation) (Ptr, error) {
	base, err := fr.ptr(op, 0)
	if err != nil {
		return 0, err
	}
	elem, err := mlir.TypeAttrOf(op, "elem_type")
	if err != nil {
		return 0, err
	}
	raw, err := mlir.DenseI32Of(op, "rawConstantIndices")
	if err != nil {
		return 0, err
	}
	dyn := 1
	var off int64
	cur := elem
	for i, ix := range raw {
		idx := int64(ix)
		if ix == llvm.DynamicIndex {
			v, err := fr.int(op, dyn)
			if err != nil {
				return 0, err
			}
			dyn++
			idx = v.Signed().Int64()
		}
		if i == 0 {
			stride, err := e.strideOf(cur)
			if err != nil {
				return 0, err
			}
			off += idx * int64(stride)
			continue
		}
		switch ct := cur.(type) {
		case mlir.StructType:
			if idx < 0 || idx >= int64(len(ct.Fields)) {
				return 0, fmt.Errorf("field %d out of range for %s", idx, ct)
			}
			l, err := e.layouts.LayoutOf(ct)
			if err != nil {
				return 0, err
			}
			off += int64(l.Offsets[idx])
			cur = ct.Fields[idx]
		case mlir.ArrayType:
			stride, err := e.strideOf(ct.Elem)
			if err != nil {
				return 0, err
			}
			off += idx * int64(stride)
			cur = ct.Elem
		default:
			return 0, fmt.Errorf("cannot index into %s", cur)
		}
	}
	return Ptr(uint64(int64(base) + off)), nil
}

func insertAt(agg, v Value, pos []int64) (Value, error) {
	if len(pos) == 0 {
		return v, nil
	}
	a, ok := agg.(Aggregate)
	if !ok || pos[0] < 0 || pos[0] >= int64(len(a)) {
		return nil, fmt.Errorf("position %d out of range for %s", pos[0], agg)
	}
	out := append(Aggregate(nil), a...)
	inner, err := insertAt(a[pos[0]], v, pos[1:])
	if err != nil {
		return nil, err
	}
	out[pos[0]] = inner
	return out, nil
}

func extractAt(agg Value, pos []int64) (Value, error) {
	for _, p := range pos {
		a, ok := agg.(Aggregate)
		if !ok || p < 0 || p >= int64(len(a)) {
			return nil, fmt.Errorf("position %d out of range for %s", p, agg)
		}
		agg = a[p]
	}
	return agg, nil
}
