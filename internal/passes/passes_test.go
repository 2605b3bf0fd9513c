package passes_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/arith"
	"sierra2mlir/internal/mlir/dialects"
	"sierra2mlir/internal/mlir/fn"
	"sierra2mlir/internal/mlir/scf"
	"sierra2mlir/internal/passes"
)

// buildClamp returns min(x, 10) computed with an scf.if.
func buildClamp(t *testing.T) *mlir.Module {
	t.Helper()
	m := mlir.NewModule(mlir.Location{})
	ty := mlir.FunctionType{Inputs: []mlir.Type{mlir.I32}, Results: []mlir.Type{mlir.I32}}
	_, entry := fn.Func(m, "clamp", ty, mlir.Location{})
	b := mlir.NewBuilder(entry)
	ten := arith.ConstantInt(b, 10, mlir.I32)
	big := arith.CmpI(b, arith.UGT, entry.Args[0], ten)
	ifOp, then, els := scf.If(b, big, []mlir.Type{mlir.I32})
	scf.Yield(mlir.NewBuilder(then), ten)
	scf.Yield(mlir.NewBuilder(els), entry.Args[0])
	one := arith.ConstantInt(b, 1, mlir.I32)
	fn.Return(b, arith.AddI(b, ifOp.Result(0), one))
	return m
}

func TestStandardPipeline(t *testing.T) {
	m := buildClamp(t)
	pm := passes.NewManager(dialects.Registry())
	pm.Add(passes.Standard()...)
	pm.EnableVerifier(true)
	if diff := cmp.Diff([]string{"scf-to-cf", "cf-to-llvm", "arith-to-llvm"}, pm.Names()); diff != "" {
		t.Fatalf("pipeline mismatch (-want +got):\n%s", diff)
	}
	if err := pm.Run(context.Background(), m); err != nil {
		t.Fatalf("run: %v", err)
	}
	m.Operation().Walk(func(op *mlir.Operation) {
		for _, prefix := range []string{"arith.", "cf.", "scf."} {
			if strings.HasPrefix(op.Name, prefix) {
				t.Errorf("op %s survived the pipeline", op.Name)
			}
		}
	})
	blocks := m.Lookup("clamp").Regions[0].Blocks
	if len(blocks) != 4 {
		t.Fatalf("expected entry, then, else and continuation blocks, got %d", len(blocks))
	}
	if term := blocks[0].Terminator(); term.Name != "llvm.cond_br" {
		t.Fatalf("entry must end in llvm.cond_br, got %s", term.Name)
	}
}

func TestSCFToCF_ContinuationArguments(t *testing.T) {
	m := buildClamp(t)
	if err := (passes.ConvertSCFToCF{}).Run(m); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := mlir.Verify(m, dialects.Registry()); err != nil {
		t.Fatalf("verify: %v\n%s", err, m)
	}
	blocks := m.Lookup("clamp").Regions[0].Blocks
	cont := blocks[3]
	if len(cont.Args) != 1 {
		t.Fatalf("continuation must take the if result, got %d args", len(cont.Args))
	}
	add := cont.Ops[1]
	if add.Name != arith.AddIOp || add.Operands[0] != cont.Args[0] {
		t.Fatalf("uses of the if result must read the continuation argument:\n%s", m)
	}
	for _, b := range blocks[1:3] {
		term := b.Terminator()
		if term.Name != "cf.br" || term.Successors[0].Block != cont {
			t.Fatalf("branch regions must jump to the continuation, got %s", term.Name)
		}
	}
}

type dropTerminator struct{}

func (dropTerminator) Name() string { return "drop-terminator" }

func (dropTerminator) Run(m *mlir.Module) error {
	entry := m.Lookup("clamp").Regions[0].Blocks[0]
	entry.Remove(entry.Terminator())
	return nil
}

func TestManager_VerifiesAfterEachPass(t *testing.T) {
	pm := passes.NewManager(dialects.Registry())
	pm.Add(dropTerminator{}, passes.ConvertCFToLLVM{})
	pm.EnableVerifier(true)
	err := pm.Run(context.Background(), buildClamp(t))
	if err == nil {
		t.Fatal("expected verification failure")
	}
	var verr *mlir.VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *mlir.VerificationError in %v", err)
	}
	if !strings.Contains(err.Error(), "pass drop-terminator") {
		t.Fatalf("error %q must name the failing pass", err)
	}
}

func TestManager_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pm := passes.NewManager(dialects.Registry())
	pm.Add(passes.Standard()...)
	if err := pm.Run(ctx, buildClamp(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
