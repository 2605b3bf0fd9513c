package mlir

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Diagnostic is one verification failure.
type Diagnostic struct {
	Func string
	Op   string
	Loc  Location
	Msg  string
}

func (d *Diagnostic) Error() string {
	var sb strings.Builder
	if d.Func != "" {
		sb.WriteString("@")
		sb.WriteString(formatSymbol(d.Func))
		sb.WriteString(": ")
	}
	sb.WriteString(fmt.Sprintf("%q", d.Op))
	if d.Loc.Known() {
		sb.WriteString(" at ")
		sb.WriteString(d.Loc.String())
	}
	sb.WriteString(": ")
	sb.WriteString(d.Msg)
	return sb.String()
}

// VerificationError aggregates every diagnostic found in a module.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string {
	if e == nil || e.Err == nil {
		return "module verification failed"
	}
	return "module verification failed: " + e.Err.Error()
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Diagnostics lists the individual failures.
func (e *VerificationError) Diagnostics() []*Diagnostic {
	if e == nil {
		return nil
	}
	var out []*Diagnostic
	for _, err := range multierr.Errors(e.Err) {
		var d *Diagnostic
		if errors.As(err, &d) {
			out = append(out, d)
		}
	}
	return out
}

// Verify checks the structural invariants of m against the ops in reg.
func Verify(m *Module, reg *Registry) error {
	v := &verifier{reg: reg, doms: make(map[*Region]*domTree)}
	v.verifyOp(m.Operation())
	m.Operation().Walk(v.verifyDominance)
	if v.errs != nil {
		return &VerificationError{Err: v.errs}
	}
	return nil
}

type verifier struct {
	reg  *Registry
	errs error
	doms map[*Region]*domTree
}

func (v *verifier) report(op *Operation, format string, args ...any) {
	d := &Diagnostic{Op: op.Name, Loc: op.Loc, Msg: fmt.Sprintf(format, args...)}
	if fn := EnclosingFunc(op); fn != nil {
		d.Func = SymbolName(fn)
	}
	v.errs = multierr.Append(v.errs, d)
}

func (v *verifier) verifyOp(op *Operation) {
	def, known := v.reg.Lookup(op.Name)
	if !known {
		v.report(op, "unregistered operation")
	} else if def.Verify != nil {
		if err := def.Verify(op); err != nil {
			v.report(op, "%v", err)
		}
	}

	for i, s := range op.Successors {
		if s.Block == nil {
			v.report(op, "successor #%d is missing", i)
			continue
		}
		if op.block == nil || s.Block.parent != op.block.parent {
			v.report(op, "successor #%d is not in the same region", i)
			continue
		}
		if len(s.Args) != len(s.Block.Args) {
			v.report(op, "successor #%d expects %d arguments, got %d", i, len(s.Block.Args), len(s.Args))
			continue
		}
		for j, a := range s.Args {
			if !TypeEqual(a.Type(), s.Block.Args[j].Type()) {
				v.report(op, "successor #%d argument #%d has type %s, block expects %s", i, j, a.Type(), s.Block.Args[j].Type())
			}
		}
	}

	for _, r := range op.Regions {
		v.verifyRegion(op, r, known && def.NoTerminator)
	}
}

func (v *verifier) verifyRegion(owner *Operation, r *Region, noTerminator bool) {
	entry := r.Entry()
	for _, b := range r.Blocks {
		if len(b.Ops) == 0 {
			if !noTerminator {
				v.report(owner, "region contains a block without a terminator")
			}
			continue
		}
		for i, op := range b.Ops {
			def, known := v.reg.Lookup(op.Name)
			last := i == len(b.Ops)-1
			if known && def.Terminator && !last {
				v.report(op, "terminator must be the last operation of its block")
			}
			if last && !noTerminator && known && !def.Terminator {
				v.report(op, "block must end with a terminator")
			}
			for _, s := range op.Successors {
				if s.Block == entry {
					v.report(op, "entry block of a region cannot be a successor")
				}
			}
			v.verifyOp(op)
		}
	}
}

func (v *verifier) verifyDominance(op *Operation) {
	check := func(val Value) {
		if !v.dominates(val, op) {
			v.report(op, "operand does not dominate this use")
		}
	}
	for _, val := range op.Operands {
		check(val)
	}
	for _, s := range op.Successors {
		for _, val := range s.Args {
			check(val)
		}
	}
}

func (v *verifier) dominates(val Value, user *Operation) bool {
	var defBlock *Block
	var defOp *Operation
	switch x := val.(type) {
	case *OpResult:
		defOp = x.Owner
		if defOp == nil {
			return false
		}
		defBlock = defOp.block
	case *BlockArgument:
		defBlock = x.Owner
	}
	if defBlock == nil || defBlock.parent == nil {
		return false
	}
	region := defBlock.parent
	anc := user
	for anc != nil && (anc.block == nil || anc.block.parent != region) {
		anc = anc.ParentOp()
	}
	if anc == nil {
		return false
	}
	if anc.block == defBlock {
		if defOp == nil {
			return true
		}
		if anc == defOp {
			return false
		}
		return defBlock.Index(defOp) < defBlock.Index(anc)
	}
	dt, ok := v.doms[region]
	if !ok {
		dt = newDomTree(region)
		v.doms[region] = dt
	}
	return dt.dominates(defBlock, anc.block)
}

// domTree holds immediate dominators of the blocks of one region.
type domTree struct {
	index map[*Block]int
	idom  []int
}

func newDomTree(r *Region) *domTree {
	n := len(r.Blocks)
	dt := &domTree{index: make(map[*Block]int, n), idom: make([]int, n)}
	for i, b := range r.Blocks {
		dt.index[b] = i
		dt.idom[i] = -1
	}
	if n == 0 {
		return dt
	}
	succs := make([][]int, n)
	preds := make([][]int, n)
	for i, b := range r.Blocks {
		for _, op := range b.Ops {
			for _, s := range op.Successors {
				j, ok := dt.index[s.Block]
				if !ok {
					continue
				}
				succs[i] = append(succs[i], j)
				preds[j] = append(preds[j], i)
			}
		}
	}

	// Reverse post-order from the entry block.
	order := make([]int, n)
	for i := range order {
		order[i] = -1
	}
	visited := make([]bool, n)
	var post []int
	var dfs func(int)
	dfs = func(i int) {
		visited[i] = true
		for _, s := range succs[i] {
			if !visited[s] {
				dfs(s)
			}
		}
		post = append(post, i)
	}
	dfs(0)
	for k, i := range post {
		order[i] = k
	}

	dt.idom[0] = 0
	intersect := func(a, b int) int {
		for a != b {
			for order[a] < order[b] {
				a = dt.idom[a]
			}
			for order[b] < order[a] {
				b = dt.idom[b]
			}
		}
		return a
	}
	for changed := true; changed; {
		changed = false
		for k := len(post) - 1; k >= 0; k-- {
			b := post[k]
			if b == 0 {
				continue
			}
			newIdom := -1
			for _, p := range preds[b] {
				if dt.idom[p] == -1 {
					continue
				}
				if newIdom == -1 {
					newIdom = p
				} else {
					newIdom = intersect(p, newIdom)
				}
			}
			if newIdom != -1 && dt.idom[b] != newIdom {
				dt.idom[b] = newIdom
				changed = true
			}
		}
	}
	return dt
}

// dominates reports whether a dominates b. Unreachable uses are accepted.
func (dt *domTree) dominates(a, b *Block) bool {
	ai, ok := dt.index[a]
	if !ok {
		return false
	}
	bi, ok := dt.index[b]
	if !ok {
		return false
	}
	if dt.idom[bi] == -1 {
		return true
	}
	if dt.idom[ai] == -1 {
		return false
	}
	for {
		if bi == ai {
			return true
		}
		if bi == 0 {
			return false
		}
		bi = dt.idom[bi]
	}
}
