package driver_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"sierra2mlir/internal/driver"
	"sierra2mlir/internal/engine"
	"sierra2mlir/internal/lower"
	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/mlir/dialects"
	"sierra2mlir/internal/observ"
	"sierra2mlir/internal/sierra"
)

const constantProgram = `
type felt252 = felt252;
libfunc felt252_const<5> = felt252_const<5>;
felt252_const<5>() -> ([0]);
return([0]);
test::five@0() -> (felt252);
`

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

// mixed exercises arrays, enums, boxes and calls in one module.
const mixed = `
type RangeCheck = RangeCheck;
type u32 = u32;
type Unit = Struct<ut@Tuple>;
type Opt = Enum<ut@Option, u32, Unit>;
type Array<u32> = Array<u32>;
type Box<u32> = Box<u32>;
libfunc array_new<u32> = array_new<u32>;
libfunc array_append<u32> = array_append<u32>;
libfunc array_get<u32> = array_get<u32>;
libfunc unbox<u32> = unbox<u32>;
libfunc enum_init<Opt, 0> = enum_init<Opt, 0>;
libfunc enum_init<Opt, 1> = enum_init<Opt, 1>;
libfunc struct_construct<Unit> = struct_construct<Unit>;

array_new<u32>() -> ([3]);
array_append<u32>([3], [1]) -> ([3]);
array_get<u32>([0], [3], [2]) { fallthrough([0], [4]) 6([0]) };
unbox<u32>([4]) -> ([5]);
enum_init<Opt, 0>([5]) -> ([6]);
return([0], [6]);
struct_construct<Unit>() -> ([5]);
enum_init<Opt, 1>([5]) -> ([6]);
return([0], [6]);

test::lookup@0([0]: RangeCheck, [1]: u32, [2]: u32) -> (RangeCheck, Opt);
`

func TestCompile_ConstantReturn(t *testing.T) {
	text, err := driver.Compile(context.Background(), constantProgram, driver.Options{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, want := range []string{`"llvm.mlir.constant"`, `"func.return"`, `sym_name = "test::five"`} {
		if !strings.Contains(text, want) {
			t.Errorf("output lacks %q:\n%s", want, text)
		}
	}
	for _, banned := range []string{`"arith.`, `"cf.`, `"scf.`} {
		if strings.Contains(text, banned) {
			t.Errorf("output still contains %s ops:\n%s", banned, text)
		}
	}
}

func TestCompile_UnsupportedLibfunc(t *testing.T) {
	text, err := driver.Compile(context.Background(), `
libfunc foo_bar_123 = foo_bar_123;
return();
test::f@0() -> ();
`, driver.Options{})
	if err == nil {
		t.Fatalf("expected an error, got module:\n%s", text)
	}
	if text != "" {
		t.Fatal("a failed compilation must not produce output")
	}
	var lerr *lower.Error
	if !errors.As(err, &lerr) {
		t.Fatalf("expected *lower.Error, got %T: %v", err, err)
	}
	if lerr.Kind != lower.UnsupportedLibfunc || lerr.Ref != "foo_bar_123" {
		t.Fatalf("got %v %q, want UnsupportedLibfunc foo_bar_123", lerr.Kind, lerr.Ref)
	}
	if !strings.HasPrefix(err.Error(), "lower: ") {
		t.Fatalf("error %q does not name the failing stage", err)
	}
}

func TestCompile_ParseError(t *testing.T) {
	_, err := driver.Compile(context.Background(), "type = ;", driver.Options{})
	var perr *sierra.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *sierra.ParseError, got %v", err)
	}
}

func TestCompile_UnknownTarget(t *testing.T) {
	if _, err := driver.Compile(context.Background(), constantProgram, driver.Options{Target: "riscv64-unknown-elf"}); err == nil {
		t.Fatal("expected an error for an unknown target")
	}
}

func TestCompile_PrintParseIdempotence(t *testing.T) {
	for _, src := range []string{constantProgram, countdown, mixed} {
		for _, locs := range []bool{false, true} {
			text, err := driver.Compile(context.Background(), src, driver.Options{PrintLocations: locs})
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			m, err := mlir.Parse(text)
			if err != nil {
				t.Fatalf("parse: %v\n%s", err, text)
			}
			if err := mlir.Verify(m, dialects.Registry()); err != nil {
				t.Fatalf("verify: %v", err)
			}
			var sb strings.Builder
			if err := mlir.Print(&sb, m, mlir.PrintOptions{Locations: locs}); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(text, sb.String()); diff != "" {
				t.Fatalf("reprinted module differs (-first +second):\n%s", diff)
			}
		}
	}
}

func TestCompile_Deterministic(t *testing.T) {
	first, err := driver.Compile(context.Background(), mixed, driver.Options{PrintLocations: true})
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		again, err := driver.Compile(context.Background(), mixed, driver.Options{PrintLocations: true})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("output changed between runs:\n%s", diff)
		}
	}
}

func TestCompile_Locations(t *testing.T) {
	text, err := driver.Compile(context.Background(), countdown, driver.Options{PrintLocations: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, `loc("sierra:test::countdown":4:0)`) {
		t.Fatalf("missing statement location:\n%s", text)
	}
}

func TestCompile_Phases(t *testing.T) {
	var started []string
	timer := observ.NewTimer()
	opts := driver.Options{
		Timer: timer,
		Observer: func(ev driver.PhaseEvent) {
			if ev.Status == driver.PhaseStart {
				started = append(started, ev.Name)
			}
		},
	}
	if _, err := driver.Compile(context.Background(), constantProgram, opts); err != nil {
		t.Fatal(err)
	}
	want := []string{driver.StageParse, driver.StageLower, driver.StagePasses, driver.StageVerify, driver.StageEmit}
	if diff := cmp.Diff(want, started); diff != "" {
		t.Fatalf("phases mismatch (-want +got):\n%s", diff)
	}
	var timed []string
	for _, p := range timer.Phases() {
		timed = append(timed, p.Name)
	}
	if diff := cmp.Diff(want, timed); diff != "" {
		t.Fatalf("timer phases mismatch (-want +got):\n%s", diff)
	}
}

func TestCompile_CacheHit(t *testing.T) {
	cache, err := driver.OpenCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var phases []string
	opts := driver.Options{
		Cache: cache,
		Observer: func(ev driver.PhaseEvent) {
			if ev.Status == driver.PhaseStart {
				phases = append(phases, ev.Name)
			}
		},
	}
	first, err := driver.Compile(context.Background(), countdown, opts)
	if err != nil {
		t.Fatal(err)
	}
	phases = nil
	second, err := driver.Compile(context.Background(), countdown, opts)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatal("cached output differs from the compiled one")
	}
	if diff := cmp.Diff([]string{driver.StageCache}, phases); diff != "" {
		t.Fatalf("a cache hit must skip the pipeline (-want +got):\n%s", diff)
	}
}

func TestExecute(t *testing.T) {
	cache, err := driver.OpenCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []*driver.Cache{nil, cache, cache} {
		e, err := driver.Execute(context.Background(), countdown, driver.Options{Cache: c, MaxSteps: 100_000})
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		out, err := e.Invoke(context.Background(), "test::countdown", engine.NewInt(256, 12))
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		if got := out[0].String(); got != "7" {
			t.Fatalf("countdown returned %s, want 7", got)
		}
	}
}

func TestExecute_EnumResult(t *testing.T) {
	e, err := driver.Execute(context.Background(), mixed, driver.Options{})
	if err != nil {
		t.Fatal(err)
	}
	rc := engine.NewInt(64, 0)
	tests := []struct {
		idx  int64
		want string
	}{
		{0, "{0, {17}}"},
		{5, "{1, {0}}"},
	}
	for _, tt := range tests {
		out, err := e.Invoke(context.Background(), "test::lookup", rc, engine.NewInt(32, 17), engine.NewInt(32, tt.idx))
		if err != nil {
			t.Fatal(err)
		}
		if got := out[1].String(); got != tt.want {
			t.Errorf("lookup(%d) = %s, want %s", tt.idx, got, tt.want)
		}
	}
}

func TestFormatTimings(t *testing.T) {
	timer := observ.NewTimer()
	timer.Add("parse", 2*time.Millisecond, "")
	timer.Add("lower", time.Millisecond, "3 functions")

	text, err := driver.FormatTimings(timer, "compile", "a.sierra", false)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"timings (compile): a.sierra\n", "  parse     2.000 ms\n", "(3 functions)", "  total     3.000 ms\n"} {
		if !strings.Contains(text, want) {
			t.Errorf("text timings lack %q:\n%s", want, text)
		}
	}

	line, err := driver.FormatTimings(timer, "", "", true)
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Kind    string  `json:"kind"`
		TotalMS float64 `json:"total_ms"`
		Phases  []struct {
			Name string `json:"name"`
		} `json:"phases"`
	}
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("json timings: %v\n%s", err, line)
	}
	if got.Kind != "pipeline" || got.TotalMS != 3 || len(got.Phases) != 2 {
		t.Fatalf("unexpected payload %+v", got)
	}
}
