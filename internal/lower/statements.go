package lower

import (
	"context"
	"sort"
	"strconv"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/cf"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/mlir/llvm"
	"sierra2mlir/internal/sierra"
	"sierra2mlir/internal/trace"
)

// targetBlock is the block that starts at a branch target. Its arguments
// are the variables live on entry, in ascending id order.
type targetBlock struct {
	block  *mlir.Block
	vars   []sierra.VarID
	filled bool
}

// functionLowering rebuilds the control-flow graph of one function from its
// flat statement range.
type functionLowering struct {
	c     *Compilation
	ctx   context.Context
	fn    *sierra.Function
	ty    mlir.FunctionType
	start sierra.StatementIdx
	end   sierra.StatementIdx

	targets map[sierra.StatementIdx]bool
	blocks  map[sierra.StatementIdx]*targetBlock

	tr  *tracker
	b   *mlir.Builder
	cur *mlir.Block
	// traceStatements is set when the tracer records statement points.
	traceStatements bool
}

func stmtLoc(f sierra.FunctionID, idx sierra.StatementIdx) mlir.Location {
	return mlir.Location{File: "sierra:" + string(f), Line: int(idx)}
}

func (c *Compilation) lowerFunction(ctx context.Context, f *sierra.Function, start, end sierra.StatementIdx) error {
	ty, err := c.functionType(f)
	if err != nil {
		return at(err, f.ID, NoStatement)
	}
	if start < 0 || start >= end || int(end) > len(c.prog.Statements) {
		return &Error{Kind: BranchTargetOutOfRange, Func: f.ID, Statement: start, Ref: strconv.Itoa(int(start))}
	}
	op, entry := fn.Func(c.module, string(f.ID), ty, stmtLoc(f.ID, start))
	fl := &functionLowering{
		c:               c,
		ctx:             ctx,
		fn:              f,
		ty:              ty,
		start:           start,
		end:             end,
		targets:         make(map[sierra.StatementIdx]bool),
		blocks:          make(map[sierra.StatementIdx]*targetBlock),
		tr:              newTracker(c.opts.VerifyMoves),
		b:               mlir.NewBuilder(entry),
		cur:             entry,
		traceStatements: trace.Enabled(ctx, trace.ScopeStatement),
	}
	if err := fl.collectTargets(); err != nil {
		return err
	}
	for i, p := range f.Params {
		if err := fl.tr.bind(p.ID, entry.Args[i]); err != nil {
			return at(err, f.ID, start)
		}
	}

	// A block first reached by a backward branch is lowered by another scan
	// starting at its index.
	for from := start; ; {
		if err := fl.scan(from); err != nil {
			return err
		}
		next, ok := fl.pending()
		if !ok {
			break
		}
		from = next
	}

	idxs := make([]sierra.StatementIdx, 0, len(fl.blocks))
	for idx := range fl.blocks {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })
	for _, idx := range idxs {
		op.Regions[0].Append(fl.blocks[idx].block)
	}
	return nil
}

// collectTargets records every statement that may start a block: targets of
// multi-branch invocations and jumps that do not fall through. A target
// referenced only from unreachable statements is recorded but never gets a
// block, since blocks are created on the first branch that reaches them.
func (fl *functionLowering) collectTargets() error {
	for idx := fl.start; idx < fl.end; idx++ {
		stmt := &fl.c.prog.Statements[idx]
		if stmt.Kind != sierra.StatementInvocation {
			continue
		}
		branches := stmt.Invocation.Branches
		for _, br := range branches {
			t := br.Target.Resolve(idx)
			if t < fl.start || t >= fl.end {
				return &Error{Kind: BranchTargetOutOfRange, Func: fl.fn.ID, Statement: idx, Ref: strconv.Itoa(int(t))}
			}
			if len(branches) > 1 || t != idx+1 {
				fl.targets[t] = true
			}
		}
	}
	return nil
}

func (fl *functionLowering) pending() (sierra.StatementIdx, bool) {
	best, found := sierra.StatementIdx(0), false
	for idx, tb := range fl.blocks {
		if !tb.filled && (!found || idx < best) {
			best, found = idx, true
		}
	}
	return best, found
}

func (fl *functionLowering) scan(from sierra.StatementIdx) error {
	for idx := from; idx < fl.end; idx++ {
		if fl.targets[idx] {
			if fl.cur != nil {
				succ, err := fl.branchTo(idx, fl.tr.live)
				if err != nil {
					return at(err, fl.fn.ID, idx)
				}
				cf.Br(fl.b, succ.Block, succ.Args)
				fl.cur = nil
			}
			tb := fl.blocks[idx]
			if tb == nil {
				continue
			}
			if tb.filled {
				return nil
			}
			fl.enter(tb)
		} else if fl.cur == nil {
			continue
		}
		if err := fl.lowerStatement(idx); err != nil {
			return at(err, fl.fn.ID, idx)
		}
	}
	if fl.cur != nil {
		return &Error{Kind: BranchTargetOutOfRange, Func: fl.fn.ID, Statement: fl.end - 1, Ref: strconv.Itoa(int(fl.end))}
	}
	return nil
}

func (fl *functionLowering) enter(tb *targetBlock) {
	tb.filled = true
	fl.cur = tb.block
	fl.b.SetInsertionPointToEnd(tb.block)
	vals := make([]mlir.Value, len(tb.block.Args))
	for i, a := range tb.block.Args {
		vals[i] = a
	}
	fl.tr.reset(tb.vars, vals)
}

// branchTo returns the successor for a jump to target carrying env. The
// first reference fixes the block signature.
func (fl *functionLowering) branchTo(target sierra.StatementIdx, env map[sierra.VarID]mlir.Value) (mlir.Successor, error) {
	tb, ok := fl.blocks[target]
	if !ok {
		vars := sortedVars(env)
		types := make([]mlir.Type, len(vars))
		for i, id := range vars {
			types[i] = env[id].Type()
		}
		tb = &targetBlock{block: mlir.NewBlock(types...), vars: vars}
		fl.blocks[target] = tb
	}
	if len(env) != len(tb.vars) {
		return mlir.Successor{}, invalid("statement %d is entered with %d live variables, expected %d", target, len(env), len(tb.vars))
	}
	args := make([]mlir.Value, len(tb.vars))
	for i, id := range tb.vars {
		v, ok := env[id]
		if !ok {
			return mlir.Successor{}, invalid("variable %s is not live on every branch into statement %d", varRef(id), target)
		}
		if want := tb.block.Args[i].Type(); !mlir.TypeEqual(v.Type(), want) {
			return mlir.Successor{}, invalid("variable %s enters statement %d as %s, expected %s", varRef(id), target, v.Type(), want)
		}
		args[i] = v
	}
	return mlir.Successor{Block: tb.block, Args: args}, nil
}

func (fl *functionLowering) lowerStatement(idx sierra.StatementIdx) error {
	stmt := &fl.c.prog.Statements[idx]
	fl.b.SetLoc(stmtLoc(fl.fn.ID, idx))
	if fl.traceStatements {
		trace.Point(fl.ctx, trace.ScopeStatement, strconv.Itoa(int(idx)), stmt.String())
	}
	switch stmt.Kind {
	case sierra.StatementReturn:
		vals, err := fl.tr.takeAll(stmt.Return)
		if err != nil {
			return err
		}
		if len(vals) != len(fl.ty.Results) {
			return invalid("returns %d values, function declares %d", len(vals), len(fl.ty.Results))
		}
		for i, v := range vals {
			if !mlir.TypeEqual(v.Type(), fl.ty.Results[i]) {
				return invalid("return value %d has type %s, want %s", i, v.Type(), fl.ty.Results[i])
			}
		}
		fn.Return(fl.b, vals...)
		fl.cur = nil
		return nil
	case sierra.StatementInvocation:
		return fl.lowerInvocation(idx, &stmt.Invocation)
	default:
		return invalid("unknown statement kind %d", stmt.Kind)
	}
}

func (fl *functionLowering) lowerInvocation(idx sierra.StatementIdx, inv *sierra.Invocation) error {
	bl, ok := fl.c.libfuncs[inv.Libfunc]
	if !ok {
		return newError(UndefinedLibfuncReference, string(inv.Libfunc), "")
	}
	sig := bl.sig
	if !sig.Variadic && len(inv.Args) != len(sig.Inputs) {
		return newError(InvalidInvocation, string(bl.id), "expects %d arguments, got %d", len(sig.Inputs), len(inv.Args))
	}
	if len(inv.Branches) != len(sig.Branches) {
		return newError(InvalidInvocation, string(bl.id), "has %d branches, statement lists %d", len(sig.Branches), len(inv.Branches))
	}
	for i, br := range inv.Branches {
		if len(br.Results) != len(sig.Branches[i]) {
			return newError(InvalidInvocation, string(bl.id), "branch %d yields %d values, statement binds %d", i, len(sig.Branches[i]), len(br.Results))
		}
	}
	inputs, err := fl.tr.takeAll(inv.Args)
	if err != nil {
		return err
	}
	if !sig.Variadic {
		for i, v := range inputs {
			if !mlir.TypeEqual(v.Type(), sig.Inputs[i]) {
				return newError(InvalidInvocation, string(bl.id), "argument %d has type %s, want %s", i, v.Type(), sig.Inputs[i])
			}
		}
	}

	out, err := bl.impl.lower(&site{c: fl.c, b: fl.b, args: bl.args, inputs: inputs})
	if err != nil {
		return err
	}

	if len(inv.Branches) == 1 {
		if t := inv.Branches[0].Target.Resolve(idx); t == idx+1 && !fl.targets[t] {
			for i, id := range inv.Branches[0].Results {
				if err := fl.tr.bind(id, out.branches[0][i]); err != nil {
					return err
				}
			}
			return nil
		}
	}

	succs := make([]mlir.Successor, len(inv.Branches))
	for i, br := range inv.Branches {
		env, err := fl.tr.env(br.Results, out.branches[i])
		if err != nil {
			return err
		}
		succs[i], err = fl.branchTo(br.Target.Resolve(idx), env)
		if err != nil {
			return err
		}
	}
	switch sel := out.sel.(type) {
	case selectOne:
		cf.Br(fl.b, succs[0].Block, succs[0].Args)
	case selectCond:
		cf.CondBr(fl.b, sel.cond, succs[sel.ifTrue], succs[1-sel.ifTrue])
	case selectSwitch:
		cases := make([]mlir.Successor, len(sel.targets))
		for i, t := range sel.targets {
			cases[i] = succs[t]
		}
		cf.Switch(fl.b, sel.flag, succs[sel.def], sel.values, cases)
	case selectAbort:
		llvm.Unreachable(fl.b)
	}
	fl.cur = nil
	return nil
}
