package engine_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sierra2mlir/internal/engine"
	"sierra2mlir/internal/lower"
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/dialects"
	"sierra2mlir/internal/passes"
	"sierra2mlir/internal/sierra"
)

// compile lowers src and, when convert is set, runs the standard pipeline.
func compile(t *testing.T, src string, convert bool) *mlir.Module {
	t.Helper()
	prog, err := sierra.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m, err := lower.Lower(context.Background(), prog, lower.Options{VerifyMoves: true})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if convert {
		pm := passes.NewManager(dialects.Registry())
		pm.Add(passes.Standard()...)
		pm.EnableVerifier(true)
		if err := pm.Run(context.Background(), m); err != nil {
			t.Fatalf("passes: %v", err)
		}
	}
	return m
}

// forEachForm runs body on the lowered module and on its llvm-only form.
func forEachForm(t *testing.T, src string, opts engine.Options, body func(t *testing.T, e *engine.Engine)) {
	for _, convert := range []bool{false, true} {
		t.Run(fmt.Sprintf("converted=%v", convert), func(t *testing.T) {
			e, err := engine.New(compile(t, src, convert), opts)
			if err != nil {
				t.Fatalf("engine: %v", err)
			}
			body(t, e)
		})
	}
}

func invoke(t *testing.T, e *engine.Engine, name string, args ...engine.Value) []engine.Value {
	t.Helper()
	out, err := e.Invoke(context.Background(), name, args...)
	if err != nil {
		t.Fatalf("invoke %s: %v", name, err)
	}
	return out
}

func asInt(t *testing.T, v engine.Value) *big.Int {
	t.Helper()
	i, ok := v.(engine.Int)
	if !ok {
		t.Fatalf("expected an integer, got %s", v)
	}
	return i.V
}

func felt(v int64) engine.Value { return engine.NewInt(256, v) }

const countdown = `
type felt252 = felt252;
type NonZero<felt252> = NonZero<felt252>;
libfunc jump = jump;
libfunc felt252_is_zero = felt252_is_zero;
libfunc unwrap_non_zero<felt252> = unwrap_non_zero<felt252>;
libfunc felt252_sub_const<1> = felt252_sub_const<1>;
libfunc felt252_const<7> = felt252_const<7>;

jump() { 4() };
unwrap_non_zero<felt252>([0]) -> ([0]);
felt252_sub_const<1>([0]) -> ([0]);
jump() { 4() };
felt252_is_zero([0]) { fallthrough() 1([0]) };
felt252_const<7>() -> ([1]);
return([1]);

test::countdown@0([0]: felt252) -> (felt252);
`

func TestInvoke_Loop(t *testing.T) {
	forEachForm(t, countdown, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		for _, n := range []int64{0, 1, 25} {
			out := invoke(t, e, "test::countdown", felt(n))
			if got := asInt(t, out[0]); got.Int64() != 7 {
				t.Fatalf("countdown(%d) = %s, want 7", n, got)
			}
		}
	})
}

func TestInvoke_StepLimit(t *testing.T) {
	forEachForm(t, countdown, engine.Options{MaxSteps: 50}, func(t *testing.T, e *engine.Engine) {
		_, err := e.Invoke(context.Background(), "test::countdown", felt(1000))
		if !errors.Is(err, engine.ErrStepLimit) {
			t.Fatalf("expected ErrStepLimit, got %v", err)
		}
	})
}

func TestInvoke_Canceled(t *testing.T) {
	e, err := engine.New(compile(t, countdown, true), engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Invoke(ctx, "test::countdown", felt(1_000_000)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInvoke_FeltDivision(t *testing.T) {
	src := `
type felt252 = felt252;
libfunc felt252_div = felt252_div;
felt252_div([0], [1]) -> ([2]);
return([2]);
test::div@0([0]: felt252, [1]: felt252) -> (felt252);
`
	prime, _ := new(big.Int).SetString("800000000000011000000000000000000000000000000000000000000000001", 16)
	forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		tests := []struct{ x, y int64 }{{10, 2}, {10, 4}, {1, 3}, {0, 5}}
		for _, tt := range tests {
			got := asInt(t, invoke(t, e, "test::div", felt(tt.x), felt(tt.y))[0])
			inv := new(big.Int).ModInverse(big.NewInt(tt.y), prime)
			want := new(big.Int).Mod(new(big.Int).Mul(big.NewInt(tt.x), inv), prime)
			if got.Cmp(want) != 0 {
				t.Errorf("%d / %d = %s, want %s", tt.x, tt.y, got, want)
			}
		}
	})
}

func TestInvoke_FeltWrapsAtPrime(t *testing.T) {
	src := `
type felt252 = felt252;
libfunc felt252_sub = felt252_sub;
felt252_sub([0], [1]) -> ([2]);
return([2]);
test::sub@0([0]: felt252, [1]: felt252) -> (felt252);
`
	prime, _ := new(big.Int).SetString("800000000000011000000000000000000000000000000000000000000000001", 16)
	forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		got := asInt(t, invoke(t, e, "test::sub", felt(3), felt(5))[0])
		want := new(big.Int).Sub(prime, big.NewInt(2))
		if got.Cmp(want) != 0 {
			t.Fatalf("3 - 5 = %s, want %s", got, want)
		}
	})
}

const optionProgram = `
type u32 = u32;
type Unit = Struct<ut@Tuple>;
type Opt = Enum<ut@Option, u32, Unit>;
libfunc enum_init<Opt, 0> = enum_init<Opt, 0>;
libfunc enum_init<Opt, 1> = enum_init<Opt, 1>;
libfunc enum_match<Opt> = enum_match<Opt>;
libfunc drop<Unit> = drop<Unit>;
libfunc u32_const<7> = u32_const<7>;
libfunc struct_construct<Unit> = struct_construct<Unit>;
libfunc function_call<user@test::unwrap_or> = function_call<user@test::unwrap_or>;

enum_match<Opt>([0]) { fallthrough([1]) 2([2]) };
return([1]);
drop<Unit>([2]) -> ();
u32_const<7>() -> ([1]);
return([1]);
enum_init<Opt, 0>([0]) -> ([1]);
function_call<user@test::unwrap_or>([1]) -> ([2]);
return([2]);
struct_construct<Unit>() -> ([0]);
enum_init<Opt, 1>([0]) -> ([1]);
function_call<user@test::unwrap_or>([1]) -> ([2]);
return([2]);

test::unwrap_or@0([0]: Opt) -> (u32);
test::some@5([0]: u32) -> (u32);
test::none@8() -> (u32);
`

func TestInvoke_EnumRoundTrip(t *testing.T) {
	forEachForm(t, optionProgram, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		if got := asInt(t, invoke(t, e, "test::some", engine.NewInt(32, 41))[0]); got.Int64() != 41 {
			t.Errorf("some(41) unwrapped to %s", got)
		}
		if got := asInt(t, invoke(t, e, "test::none")[0]); got.Int64() != 7 {
			t.Errorf("none unwrapped to %s, want the default 7", got)
		}
	})
}

// appendProgram appends its argument n times and returns the array.
func appendProgram(n int) string {
	var sb strings.Builder
	sb.WriteString(`
type u32 = u32;
type Array<u32> = Array<u32>;
libfunc array_new<u32> = array_new<u32>;
libfunc array_append<u32> = array_append<u32>;
libfunc dup<u32> = dup<u32>;
libfunc drop<u32> = drop<u32>;
array_new<u32>() -> ([1]);
`)
	for range n {
		sb.WriteString("dup<u32>([0]) -> ([0], [2]);\n")
		sb.WriteString("array_append<u32>([1], [2]) -> ([1]);\n")
	}
	sb.WriteString("drop<u32>([0]) -> ();\nreturn([1]);\n")
	sb.WriteString("test::fill@0([0]: u32) -> (Array<u32>);\n")
	return sb.String()
}

func TestInvoke_ArrayGrowth(t *testing.T) {
	tests := []struct {
		n       int
		wantCap int64
	}{
		{0, 0},
		{1, 8},
		{8, 8},
		{9, 16},
		{17, 32},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.n), func(t *testing.T) {
			e, err := engine.New(compile(t, appendProgram(tt.n), true), engine.Options{})
			if err != nil {
				t.Fatal(err)
			}
			out := invoke(t, e, "test::fill", engine.NewInt(32, 5))
			arr, ok := out[0].(engine.Aggregate)
			if !ok || len(arr) != 3 {
				t.Fatalf("expected an array header, got %s", out[0])
			}
			length, capacity := asInt(t, arr[1]).Int64(), asInt(t, arr[2]).Int64()
			if length != int64(tt.n) || capacity != tt.wantCap {
				t.Fatalf("len %d cap %d, want len %d cap %d", length, capacity, tt.n, tt.wantCap)
			}
			data := arr[0].(engine.Ptr)
			got := make([]int64, 0, tt.n)
			for i := range tt.n {
				v, err := e.Load(mlir.I32, data+engine.Ptr(4*i))
				if err != nil {
					t.Fatalf("element %d: %v", i, err)
				}
				got = append(got, asInt(t, v).Int64())
			}
			want := make([]int64, tt.n)
			for i := range want {
				want[i] = 5
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("elements mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

const getProgram = `
type RangeCheck = RangeCheck;
type u32 = u32;
type Array<u32> = Array<u32>;
type Box<u32> = Box<u32>;
libfunc array_new<u32> = array_new<u32>;
libfunc array_append<u32> = array_append<u32>;
libfunc array_get<u32> = array_get<u32>;
libfunc unbox<u32> = unbox<u32>;
libfunc u32_const<99> = u32_const<99>;

array_new<u32>() -> ([3]);
array_append<u32>([3], [1]) -> ([3]);
array_get<u32>([0], [3], [2]) { fallthrough([0], [4]) 5([0]) };
unbox<u32>([4]) -> ([5]);
return([0], [5]);
u32_const<99>() -> ([5]);
return([0], [5]);

test::get@0([0]: RangeCheck, [1]: u32, [2]: u32) -> (RangeCheck, u32);
`

func TestInvoke_ArrayGet(t *testing.T) {
	forEachForm(t, getProgram, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		rc := engine.NewInt(64, 0)
		if got := asInt(t, invoke(t, e, "test::get", rc, engine.NewInt(32, 42), engine.NewInt(32, 0))[1]); got.Int64() != 42 {
			t.Errorf("in bounds: got %s, want 42", got)
		}
		if got := asInt(t, invoke(t, e, "test::get", rc, engine.NewInt(32, 42), engine.NewInt(32, 1))[1]); got.Int64() != 99 {
			t.Errorf("out of bounds: got %s, want the fallback 99", got)
		}
	})
}

// snapshotProgram snapshots [a, b], pops the original and appends 30 to it,
// then reads the snapshot at idx. It returns the popped value, the
// original's length, the snapshot element and the snapshot's length.
const snapshotProgram = `
type RangeCheck = RangeCheck;
type u32 = u32;
type Array<u32> = Array<u32>;
type Snapshot<Array<u32>> = Snapshot<Array<u32>>;
type Box<u32> = Box<u32>;
libfunc array_new<u32> = array_new<u32>;
libfunc array_append<u32> = array_append<u32>;
libfunc array_pop_front<u32> = array_pop_front<u32>;
libfunc array_get<u32> = array_get<u32>;
libfunc array_len<u32> = array_len<u32>;
libfunc snapshot_take<Array<u32>> = snapshot_take<Array<u32>>;
libfunc dup<Snapshot<Array<u32>>> = dup<Snapshot<Array<u32>>>;
libfunc unbox<u32> = unbox<u32>;
libfunc u32_const<30> = u32_const<30>;
libfunc u32_const<99> = u32_const<99>;

array_new<u32>() -> ([3]);
array_append<u32>([3], [1]) -> ([3]);
array_append<u32>([3], [2]) -> ([3]);
snapshot_take<Array<u32>>([3]) -> ([3], [4]);
array_pop_front<u32>([3]) { fallthrough([3], [5]) 14([3]) };
unbox<u32>([5]) -> ([5]);
u32_const<30>() -> ([6]);
array_append<u32>([3], [6]) -> ([3]);
array_len<u32>([3]) -> ([6]);
dup<Snapshot<Array<u32>>>([4]) -> ([4], [9]);
array_get<u32>([0], [4], [7]) { fallthrough([0], [8]) 19([0]) };
unbox<u32>([8]) -> ([8]);
array_len<u32>([9]) -> ([9]);
return([0], [5], [6], [8], [9]);
u32_const<99>() -> ([10]);
u32_const<99>() -> ([11]);
u32_const<99>() -> ([12]);
u32_const<99>() -> ([13]);
return([0], [10], [11], [12], [13]);
u32_const<99>() -> ([10]);
u32_const<99>() -> ([11]);
u32_const<99>() -> ([12]);
u32_const<99>() -> ([13]);
return([0], [10], [11], [12], [13]);

test::snap@0([0]: RangeCheck, [1]: u32, [2]: u32, [7]: u32) -> (RangeCheck, u32, u32, u32, u32);
`

func TestInvoke_SnapshotSurvivesMutation(t *testing.T) {
	forEachForm(t, snapshotProgram, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		for idx, want := range []int64{10, 20} {
			out := invoke(t, e, "test::snap", engine.NewInt(64, 0), engine.NewInt(32, 10), engine.NewInt(32, 20), engine.NewInt(32, int64(idx)))
			got := make([]int64, 0, 4)
			for _, v := range out[1:] {
				got = append(got, asInt(t, v).Int64())
			}
			if diff := cmp.Diff([]int64{10, 2, want, 2}, got); diff != "" {
				t.Errorf("snapshot[%d]: (-want +got):\n%s", idx, diff)
			}
		}
	})
}

func TestInvoke_Panic(t *testing.T) {
	src := `
type felt252 = felt252;
type Array<felt252> = Array<felt252>;
libfunc array_new<felt252> = array_new<felt252>;
libfunc array_append<felt252> = array_append<felt252>;
libfunc panic = panic;
array_new<felt252>() -> ([1]);
array_append<felt252>([1], [0]) -> ([1]);
panic([1]) { };
test::boom@0([0]: felt252) -> ();
`
	forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		_, err := e.Invoke(context.Background(), "test::boom", felt(1))
		var p *engine.Panic
		if !errors.As(err, &p) {
			t.Fatalf("expected *engine.Panic, got %v", err)
		}
		if diff := cmp.Diff([]string{"__sierra_abort", "test::boom"}, p.Backtrace); diff != "" {
			t.Fatalf("backtrace mismatch (-want +got):\n%s", diff)
		}
		if !strings.Contains(p.Error(), "test::boom") {
			t.Fatalf("panic message %q does not name the function", p.Error())
		}
	})
}

func TestInvoke_Arguments(t *testing.T) {
	e, err := engine.New(compile(t, countdown, false), engine.Options{})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		fn   string
		args []engine.Value
		want string
	}{
		{"unknown", "test::nope", nil, `function "test::nope" not found`},
		{"arity", "test::countdown", nil, "takes 1 arguments, got 0"},
		{"width", "test::countdown", []engine.Value{engine.NewInt(32, 1)}, "argument #0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Invoke(context.Background(), tt.fn, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %v does not mention %q", err, tt.want)
			}
		})
	}
}

func TestNew_RejectsOptLevel(t *testing.T) {
	if _, err := engine.New(compile(t, countdown, false), engine.Options{OptLevel: 4}); err == nil {
		t.Fatal("expected an error for -O4")
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		ty   mlir.Type
		in   string
		want string
	}{
		{mlir.I32, "42", "42"},
		{mlir.I8, "-1", "255"},
		{mlir.I64, "0x10", "16"},
	}
	for _, tt := range tests {
		v, err := engine.ParseArg(tt.ty, tt.in)
		if err != nil {
			t.Fatalf("%s: %v", tt.in, err)
		}
		if v.String() != tt.want {
			t.Errorf("ParseArg(%s, %q) = %s, want %s", tt.ty, tt.in, v, tt.want)
		}
	}
	if _, err := engine.ParseArg(mlir.Ptr, "1"); err == nil {
		t.Error("expected pointers to be rejected")
	}
}
