package passes

import (
	"fmt"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/cf"
	"sierra2mlir/internal/mlir/scf"
)

// ConvertSCFToCF inlines the regions of every scf.if into the enclosing
// region. The block holding the if is split: its tail moves into a
// continuation block whose arguments take the place of the if results.
type ConvertSCFToCF struct{}

func (ConvertSCFToCF) Name() string { return "scf-to-cf" }

func (ConvertSCFToCF) Run(m *mlir.Module) error {
	for _, fnOp := range m.Functions() {
		for {
			ifOp := firstIf(fnOp)
			if ifOp == nil {
				break
			}
			if err := inlineIf(fnOp, ifOp); err != nil {
				return err
			}
		}
	}
	return nil
}

func firstIf(fnOp *mlir.Operation) *mlir.Operation {
	for _, r := range fnOp.Regions {
		for _, b := range r.Blocks {
			for _, op := range b.Ops {
				if op.Name == scf.IfOp {
					return op
				}
			}
		}
	}
	return nil
}

func inlineIf(fnOp, ifOp *mlir.Operation) error {
	if len(ifOp.Regions) != 2 || len(ifOp.Regions[0].Blocks) != 1 || len(ifOp.Regions[1].Blocks) != 1 {
		return fmt.Errorf("%s at %s: expected two single-block regions", ifOp.Name, ifOp.Loc)
	}
	block := ifOp.Block()
	region := block.Region()
	then, els := ifOp.Regions[0].Blocks[0], ifOp.Regions[1].Blocks[0]

	cont := mlir.NewBlock(ifOp.ResultTypes()...)
	k := block.Index(ifOp)
	tail := append([]*mlir.Operation(nil), block.Ops[k+1:]...)
	block.Ops = block.Ops[:k+1]
	for _, op := range tail {
		cont.Append(op)
	}
	block.Remove(ifOp)

	for _, b := range []*mlir.Block{then, els} {
		y := b.Terminator()
		if y == nil || y.Name != scf.YieldOp {
			return fmt.Errorf("%s at %s: region must end with %s", ifOp.Name, ifOp.Loc, scf.YieldOp)
		}
		b.Remove(y)
		yb := mlir.NewBuilder(b)
		yb.SetLoc(y.Loc)
		cf.Br(yb, cont, y.Operands)
	}

	bb := mlir.NewBuilder(block)
	bb.SetLoc(ifOp.Loc)
	cf.CondBr(bb, ifOp.Operands[0], mlir.Successor{Block: then}, mlir.Successor{Block: els})

	region.InsertAfter(block, then)
	region.InsertAfter(then, els)
	region.InsertAfter(els, cont)
	for i := range ifOp.Results {
		mlir.ReplaceAllUsesWith(fnOp, ifOp.Result(i), cont.Args[i])
	}
	return nil
}
