package sierra_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sierra2mlir/internal/sierra"
)

const sampleProgram = `
// declarations
type [0] = felt252 [storable: true, drop: true];
type [1] = NonZero<[0]>;
type Unit = Struct<ut@Tuple>;

libfunc [0] = felt252_const<-5>;
libfunc [1] = felt252_is_zero;
libfunc branch_align = branch_align;
libfunc [2] = function_call<user@test::helper>;

[0]() -> ([1]);
[1]([1]) { fallthrough() 4([2]) };
branch_align() -> ();
return();
return([2]);

test::main@0() -> ();
test::helper@3([0]: [0], [1]: Unit) -> ([0], [1]);
`

func TestParse_Declarations(t *testing.T) {
	prog, err := sierra.Parse(sampleProgram)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.TypeDeclarations) != 3 {
		t.Fatalf("expected 3 type declarations, got %d", len(prog.TypeDeclarations))
	}
	if got := prog.TypeDeclarations[1].LongID.String(); got != "NonZero<[0]>" {
		t.Fatalf("unexpected long id %q", got)
	}
	if got := prog.TypeDeclarations[0].Attrs["storable"]; got != "true" {
		t.Fatalf("expected storable attribute, got %q", got)
	}
	if got := prog.TypeDeclarations[2].LongID.Args[0]; got.Kind != sierra.ArgUserType || got.Name != "Tuple" {
		t.Fatalf("unexpected user type argument %+v", got)
	}

	c := prog.LibfuncDeclarations[0].LongID.Args[0]
	if c.Kind != sierra.ArgValue || c.Value.Cmp(big.NewInt(-5)) != 0 {
		t.Fatalf("expected constant -5, got %s", c)
	}
	call := prog.LibfuncDeclarations[3].LongID.Args[0]
	if call.Kind != sierra.ArgUserFunc || call.Name != "test::helper" {
		t.Fatalf("unexpected function argument %+v", call)
	}
	if prog.LibfuncDeclarations[2].ID != "branch_align" {
		t.Fatalf("expected named libfunc id, got %q", prog.LibfuncDeclarations[2].ID)
	}
}

func TestParse_StatementsAndFunctions(t *testing.T) {
	prog, err := sierra.Parse(sampleProgram)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []string{
		"[0]() -> ([1])",
		"[1]([1]) { fallthrough() 4([2]) }",
		"branch_align() -> ()",
		"return()",
		"return([2])",
	}
	got := make([]string, len(prog.Statements))
	for i := range prog.Statements {
		got[i] = prog.Statements[i].String()
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("statements mismatch (-want +got):\n%s", diff)
	}

	helper, ok := prog.FunctionByID("test::helper")
	if !ok {
		t.Fatal("helper not found")
	}
	wantHelper := sierra.Function{
		ID:       "test::helper",
		Params:   []sierra.Param{{ID: 0, Type: "[0]"}, {ID: 1, Type: "Unit"}},
		RetTypes: []sierra.TypeID{"[0]", "[1]"},
		Entry:    3,
	}
	if diff := cmp.Diff(wantHelper, *helper); diff != "" {
		t.Fatalf("helper mismatch (-want +got):\n%s", diff)
	}

	start, end := prog.FunctionRange(0)
	if start != 0 || end != 3 {
		t.Fatalf("main range = [%d, %d), want [0, 3)", start, end)
	}
	start, end = prog.FunctionRange(1)
	if start != 3 || end != 5 {
		t.Fatalf("helper range = [%d, %d), want [3, 5)", start, end)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{name: "missing_semicolon", src: "type [0] = felt252\nlibfunc [0] = jump;", line: 2},
		{name: "bad_character", src: "type [0] = felt252;\n  $", line: 2},
		{name: "bad_branch_target", src: "[0]() { x() };", line: 1},
		{name: "duplicate_function", src: "f@0() -> ();\nf@0() -> ();", line: 2},
		{name: "unknown_prefix", src: "libfunc [0] = foo<zz@x>;", line: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sierra.Parse(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			var perr *sierra.ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if perr.Line != tt.line {
				t.Fatalf("error line = %d, want %d (%v)", perr.Line, tt.line, err)
			}
		})
	}
}
