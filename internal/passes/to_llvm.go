package passes

import (
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/mlir/cf"
	"sierra2mlir/internal/mlir/llvm"
)

// renames maps source op names onto their llvm counterparts. Operands,
// attributes and successors carry over unchanged.
type renames map[string]string

func (r renames) apply(m *mlir.Module) {
	m.Operation().Walk(func(op *mlir.Operation) {
		if to, ok := r[op.Name]; ok {
			op.Name = to
		}
	})
}

var cfRenames = renames{
	cf.BrOp:     llvm.BrOp,
	cf.CondBrOp: llvm.CondBrOp,
	cf.SwitchOp: llvm.SwitchOp,
}

var arithRenames = renames{
	arith.ConstantOp: llvm.ConstantOp,
	arith.AddIOp:     llvm.AddOp,
	arith.SubIOp:     llvm.SubOp,
	arith.MulIOp:     llvm.MulOp,
	arith.DivUIOp:    llvm.UDivOp,
	arith.RemUIOp:    llvm.URemOp,
	arith.AndIOp:     llvm.AndOp,
	arith.OrIOp:      llvm.OrOp,
	arith.XOrIOp:     llvm.XOrOp,
	arith.ShLIOp:     llvm.ShlOp,
	arith.ShRUIOp:    llvm.LShrOp,
	arith.CmpIOp:     llvm.ICmpOp,
	arith.ExtUIOp:    llvm.ZExtOp,
	arith.TruncIOp:   llvm.TruncOp,
	arith.SelectOp:   llvm.SelectOp,
}

// ConvertCFToLLVM rewrites cf branches to llvm branches.
type ConvertCFToLLVM struct{}

func (ConvertCFToLLVM) Name() string { return "cf-to-llvm" }

func (ConvertCFToLLVM) Run(m *mlir.Module) error {
	cfRenames.apply(m)
	return nil
}

// ConvertArithToLLVM rewrites arith ops to llvm ops.
type ConvertArithToLLVM struct{}

func (ConvertArithToLLVM) Name() string { return "arith-to-llvm" }

func (ConvertArithToLLVM) Run(m *mlir.Module) error {
	arithRenames.apply(m)
	return nil
}
