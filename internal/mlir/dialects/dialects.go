// Package dialects assembles the registry of every dialect the compiler
// emits or converts to.
package dialects

import (
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/mlir/cf"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/mlir/llvm"
	"sierra2mlir/internal/mlir/scf"
)

// Registry returns a fresh registry with builtin, func, arith, cf, scf and
// llvm ops.
func Registry() *mlir.Registry {
	r := mlir.NewRegistry()
	fn.Register(r)
	arith.Register(r)
	cf.Register(r)
	scf.Register(r)
	llvm.Register(r)
	return r
}
