package engine_test

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sierra2mlir/internal/engine"
	"sierra2mlir/internal/mlir"
)

var uintTypes = []struct {
	name  string
	width int
}{
	{"u8", 8},
	{"u16", 16},
	{"u32", 32},
	{"u64", 64},
	{"u128", 128},
}

func pow2(bits int) *big.Int { return new(big.Int).Lsh(big.NewInt(1), uint(bits)) }

func rangeCheck() engine.Value { return engine.NewInt(64, 0) }

// decimals renders integer results for comparison.
func decimals(t *testing.T, vals []engine.Value) []string {
	t.Helper()
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = asInt(t, v).String()
	}
	return out
}

func strs(vals ...*big.Int) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = v.String()
	}
	return out
}

var feltPrime, _ = new(big.Int).SetString("800000000000011000000000000000000000000000000000000000000000001", 16)

const overflowingProgram = `
type RangeCheck = RangeCheck;
type $T = $T;
libfunc $T_overflowing_$OP = $T_overflowing_$OP;
libfunc $T_const<0> = $T_const<0>;
libfunc $T_const<1> = $T_const<1>;

$T_overflowing_$OP([0], [1], [2]) { fallthrough([0], [3]) 3([0], [3]) };
$T_const<0>() -> ([4]);
return([0], [3], [4]);
$T_const<1>() -> ([4]);
return([0], [3], [4]);

test::f@0([0]: RangeCheck, [1]: $T, [2]: $T) -> (RangeCheck, $T, $T);
`

func TestInvoke_UintOverflowing(t *testing.T) {
	for _, ut := range uintTypes {
		one := big.NewInt(1)
		maxV := new(big.Int).Sub(pow2(ut.width), one)
		tests := []struct {
			op       string
			x, y     *big.Int
			want     *big.Int
			overflow int64
		}{
			{"add", big.NewInt(1), big.NewInt(2), big.NewInt(3), 0},
			{"add", new(big.Int).Sub(maxV, one), one, maxV, 0},
			{"add", maxV, one, big.NewInt(0), 1},
			{"add", maxV, maxV, new(big.Int).Sub(maxV, one), 1},
			{"sub", big.NewInt(5), big.NewInt(3), big.NewInt(2), 0},
			{"sub", maxV, maxV, big.NewInt(0), 0},
			{"sub", big.NewInt(0), one, maxV, 1},
			{"sub", big.NewInt(3), big.NewInt(5), new(big.Int).Sub(maxV, one), 1},
		}
		for _, op := range []string{"add", "sub"} {
			src := strings.NewReplacer("$T", ut.name, "$OP", op).Replace(overflowingProgram)
			t.Run(ut.name+"_"+op, func(t *testing.T) {
				forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
					for _, tt := range tests {
						if tt.op != op {
							continue
						}
						out := invoke(t, e, "test::f", rangeCheck(), engine.IntOf(ut.width, tt.x), engine.IntOf(ut.width, tt.y))
						want := strs(tt.want, big.NewInt(tt.overflow))
						if diff := cmp.Diff(want, decimals(t, out[1:])); diff != "" {
							t.Errorf("%s %s %s (-want +got):\n%s", tt.x, op, tt.y, diff)
						}
					}
				})
			})
		}
	}
}

const compareProgram = `
type RangeCheck = RangeCheck;
type felt252 = felt252;
type $T = $T;
libfunc $T_$OP = $T_$OP;
libfunc felt252_const<0> = felt252_const<0>;
libfunc felt252_const<1> = felt252_const<1>;

$CALL
felt252_const<0>() -> ([3]);
return([0], [3]);
felt252_const<1>() -> ([3]);
return([0], [3]);

test::f@0([0]: RangeCheck, [1]: $T, [2]: $T) -> (RangeCheck, felt252);
`

func TestInvoke_UintCompareAtSignBoundary(t *testing.T) {
	calls := map[string]string{
		"lt": "$T_$OP([0], [1], [2]) { fallthrough([0]) 3([0]) };",
		"le": "$T_$OP([0], [1], [2]) { fallthrough([0]) 3([0]) };",
		"eq": "$T_$OP([1], [2]) { fallthrough() 3() };",
	}
	holds := map[string]func(c int) bool{
		"lt": func(c int) bool { return c < 0 },
		"le": func(c int) bool { return c <= 0 },
		"eq": func(c int) bool { return c == 0 },
	}
	for _, ut := range uintTypes {
		one := big.NewInt(1)
		half := pow2(ut.width - 1)
		maxV := new(big.Int).Sub(pow2(ut.width), one)
		pairs := [][2]*big.Int{
			{new(big.Int).Sub(half, one), half},
			{half, new(big.Int).Sub(half, one)},
			{half, half},
			{big.NewInt(0), maxV},
			{maxV, big.NewInt(0)},
		}
		for _, op := range []string{"lt", "le", "eq"} {
			src := strings.Replace(compareProgram, "$CALL", calls[op], 1)
			src = strings.NewReplacer("$T", ut.name, "$OP", op).Replace(src)
			t.Run(ut.name+"_"+op, func(t *testing.T) {
				forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
					for _, p := range pairs {
						out := invoke(t, e, "test::f", rangeCheck(), engine.IntOf(ut.width, p[0]), engine.IntOf(ut.width, p[1]))
						want := int64(0)
						if holds[op](p[0].Cmp(p[1])) {
							want = 1
						}
						if got := asInt(t, out[1]).Int64(); got != want {
							t.Errorf("%s %s %s = %d, want %d", p[0], op, p[1], got, want)
						}
					}
				})
			})
		}
	}
}

const isZeroProgram = `
type felt252 = felt252;
type $T = $T;
type NonZero<$T> = NonZero<$T>;
libfunc $T_is_zero = $T_is_zero;
libfunc unwrap_non_zero<$T> = unwrap_non_zero<$T>;
libfunc $T_to_felt252 = $T_to_felt252;
libfunc felt252_const<0> = felt252_const<0>;
libfunc felt252_const<1> = felt252_const<1>;

$T_is_zero([0]) { fallthrough() 4([0]) };
felt252_const<0>() -> ([1]);
felt252_const<0>() -> ([2]);
return([1], [2]);
unwrap_non_zero<$T>([0]) -> ([0]);
$T_to_felt252([0]) -> ([2]);
felt252_const<1>() -> ([1]);
return([1], [2]);

test::f@0([0]: $T) -> (felt252, felt252);
`

func TestInvoke_UintIsZero(t *testing.T) {
	for _, ut := range uintTypes {
		maxV := new(big.Int).Sub(pow2(ut.width), big.NewInt(1))
		src := strings.ReplaceAll(isZeroProgram, "$T", ut.name)
		t.Run(ut.name, func(t *testing.T) {
			forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
				tests := []struct {
					in   *big.Int
					want []string
				}{
					{big.NewInt(0), []string{"0", "0"}},
					{big.NewInt(1), []string{"1", "1"}},
					{pow2(ut.width - 1), []string{"1", pow2(ut.width - 1).String()}},
					{maxV, []string{"1", maxV.String()}},
				}
				for _, tt := range tests {
					out := invoke(t, e, "test::f", engine.IntOf(ut.width, tt.in))
					if diff := cmp.Diff(tt.want, decimals(t, out)); diff != "" {
						t.Errorf("is_zero(%s) (-want +got):\n%s", tt.in, diff)
					}
				}
			})
		})
	}
}

const divmodProgram = `
type RangeCheck = RangeCheck;
type $T = $T;
type NonZero<$T> = NonZero<$T>;
libfunc $T_safe_divmod = $T_safe_divmod;

$T_safe_divmod([0], [1], [2]) -> ([0], [3], [4]);
return([0], [3], [4]);

test::f@0([0]: RangeCheck, [1]: $T, [2]: NonZero<$T>) -> (RangeCheck, $T, $T);
`

func TestInvoke_UintSafeDivmod(t *testing.T) {
	for _, ut := range uintTypes {
		maxV := new(big.Int).Sub(pow2(ut.width), big.NewInt(1))
		pairs := [][2]*big.Int{
			{big.NewInt(7), big.NewInt(2)},
			{big.NewInt(2), big.NewInt(5)},
			{maxV, big.NewInt(1)},
			{maxV, maxV},
			{pow2(ut.width - 1), big.NewInt(3)},
			{maxV, pow2(ut.width - 1)},
		}
		src := strings.ReplaceAll(divmodProgram, "$T", ut.name)
		t.Run(ut.name, func(t *testing.T) {
			forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
				for _, p := range pairs {
					out := invoke(t, e, "test::f", rangeCheck(), engine.IntOf(ut.width, p[0]), engine.IntOf(ut.width, p[1]))
					q, r := new(big.Int).QuoRem(p[0], p[1], new(big.Int))
					if diff := cmp.Diff(strs(q, r), decimals(t, out[1:])); diff != "" {
						t.Errorf("%s divmod %s (-want +got):\n%s", p[0], p[1], diff)
					}
				}
			})
		})
	}
}

const tryFromFeltProgram = `
type RangeCheck = RangeCheck;
type felt252 = felt252;
type $T = $T;
libfunc $T_try_from_felt252 = $T_try_from_felt252;
libfunc $T_to_felt252 = $T_to_felt252;
libfunc felt252_const<0> = felt252_const<0>;
libfunc felt252_const<1> = felt252_const<1>;

$T_try_from_felt252([0], [1]) { fallthrough([0], [2]) 4([0]) };
$T_to_felt252([2]) -> ([2]);
felt252_const<1>() -> ([3]);
return([0], [3], [2]);
felt252_const<0>() -> ([3]);
felt252_const<0>() -> ([2]);
return([0], [3], [2]);

test::f@0([0]: RangeCheck, [1]: felt252) -> (RangeCheck, felt252, felt252);
`

func TestInvoke_UintTryFromFelt(t *testing.T) {
	for _, ut := range uintTypes {
		maxV := new(big.Int).Sub(pow2(ut.width), big.NewInt(1))
		tests := []struct {
			in   *big.Int
			fits bool
		}{
			{big.NewInt(0), true},
			{big.NewInt(200), true},
			{maxV, true},
			{pow2(ut.width), false},
			{new(big.Int).Sub(feltPrime, big.NewInt(1)), false},
		}
		src := strings.ReplaceAll(tryFromFeltProgram, "$T", ut.name)
		t.Run(ut.name, func(t *testing.T) {
			forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
				for _, tt := range tests {
					out := invoke(t, e, "test::f", rangeCheck(), engine.IntOf(256, tt.in))
					want := []string{"0", "0"}
					if tt.fits {
						want = []string{"1", tt.in.String()}
					}
					if diff := cmp.Diff(want, decimals(t, out[1:])); diff != "" {
						t.Errorf("try_from(%s) (-want +got):\n%s", tt.in, diff)
					}
				}
			})
		})
	}
}

const splitFeltProgram = `
type RangeCheck = RangeCheck;
type felt252 = felt252;
type u128 = u128;
libfunc u128s_from_felt252 = u128s_from_felt252;
libfunc u128_const<0> = u128_const<0>;

u128s_from_felt252([0], [1]) { fallthrough([0], [2]) 3([0], [3], [2]) };
u128_const<0>() -> ([3]);
return([0], [3], [2]);
return([0], [3], [2]);

test::split@0([0]: RangeCheck, [1]: felt252) -> (RangeCheck, u128, u128);
`

func TestInvoke_U128sFromFelt(t *testing.T) {
	mask := new(big.Int).Sub(pow2(128), big.NewInt(1))
	tests := []*big.Int{
		big.NewInt(5),
		mask,
		pow2(128),
		new(big.Int).Add(new(big.Int).Mul(big.NewInt(3), pow2(128)), big.NewInt(7)),
		new(big.Int).Sub(feltPrime, big.NewInt(1)),
	}
	forEachForm(t, splitFeltProgram, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		for _, in := range tests {
			out := invoke(t, e, "test::split", rangeCheck(), engine.IntOf(256, in))
			high := new(big.Int).Rsh(in, 128)
			low := new(big.Int).And(in, mask)
			if diff := cmp.Diff(strs(high, low), decimals(t, out[1:])); diff != "" {
				t.Errorf("split(%s) (-want +got):\n%s", in, diff)
			}
		}
	})
}

const boolProgram = `
type Unit = Struct<ut@Tuple>;
type bool = bool;
type felt252 = felt252;
libfunc struct_construct<Unit> = struct_construct<Unit>;
libfunc enum_init<bool, 0> = enum_init<bool, 0>;
libfunc enum_init<bool, 1> = enum_init<bool, 1>;
libfunc bool_$OP_impl = bool_$OP_impl;
libfunc bool_to_felt252 = bool_to_felt252;

struct_construct<Unit>() -> ([0]);
enum_init<bool, $A>([0]) -> ([0]);
struct_construct<Unit>() -> ([1]);
enum_init<bool, $B>([1]) -> ([1]);
$CALL
bool_to_felt252([0]) -> ([0]);
return([0]);

test::f@0() -> (felt252);
`

func TestInvoke_BoolOps(t *testing.T) {
	tests := []struct {
		op   string
		a, b int
		want int64
	}{
		{"not", 0, 0, 1},
		{"not", 1, 0, 0},
		{"and", 0, 0, 0},
		{"and", 0, 1, 0},
		{"and", 1, 1, 1},
		{"or", 0, 0, 0},
		{"or", 1, 0, 1},
		{"or", 1, 1, 1},
		{"xor", 0, 1, 1},
		{"xor", 1, 1, 0},
		{"xor", 0, 0, 0},
	}
	for _, tt := range tests {
		call := "bool_$OP_impl([0], [1]) -> ([0]);"
		if tt.op == "not" {
			call = "bool_$OP_impl([0]) -> ([0]);"
		}
		src := strings.Replace(boolProgram, "$CALL", call, 1)
		src = strings.NewReplacer("$OP", tt.op, "$A", fmt.Sprint(tt.a), "$B", fmt.Sprint(tt.b)).Replace(src)
		t.Run(fmt.Sprintf("%s_%d_%d", tt.op, tt.a, tt.b), func(t *testing.T) {
			forEachForm(t, src, engine.Options{}, func(t *testing.T, e *engine.Engine) {
				if got := asInt(t, invoke(t, e, "test::f")[0]).Int64(); got != tt.want {
					t.Fatalf("got %d, want %d", got, tt.want)
				}
			})
		})
	}
}

// popProgram pops both elements of [a, b] and expects a third pop to find
// the array empty. It returns a, b and the final length.
const popProgram = `
type u32 = u32;
type Array<u32> = Array<u32>;
type Box<u32> = Box<u32>;
libfunc array_new<u32> = array_new<u32>;
libfunc array_append<u32> = array_append<u32>;
libfunc array_pop_front<u32> = array_pop_front<u32>;
libfunc array_len<u32> = array_len<u32>;
libfunc unbox<u32> = unbox<u32>;
libfunc panic = panic;

array_new<u32>() -> ([2]);
array_append<u32>([2], [0]) -> ([2]);
array_append<u32>([2], [1]) -> ([2]);
array_pop_front<u32>([2]) { fallthrough([2], [3]) 11([2]) };
unbox<u32>([3]) -> ([3]);
array_pop_front<u32>([2]) { fallthrough([2], [4]) 12([2]) };
unbox<u32>([4]) -> ([4]);
array_pop_front<u32>([2]) { fallthrough([2], [5]) 9([2]) };
panic() { };
array_len<u32>([2]) -> ([5]);
return([3], [4], [5]);
panic() { };
panic() { };

test::drain@0([0]: u32, [1]: u32) -> (u32, u32, u32);
`

func TestInvoke_ArrayPopFront(t *testing.T) {
	forEachForm(t, popProgram, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		out := invoke(t, e, "test::drain", engine.NewInt(32, 10), engine.NewInt(32, 20))
		if diff := cmp.Diff([]string{"10", "20", "0"}, decimals(t, out)); diff != "" {
			t.Fatalf("drain (-want +got):\n%s", diff)
		}
	})
}

// popThenFill fills eight copies of its argument, pops one and appends
// another, which grows the buffer from a popped header.
func popThenFill() string {
	var sb strings.Builder
	sb.WriteString(`
type u32 = u32;
type Array<u32> = Array<u32>;
type Box<u32> = Box<u32>;
libfunc array_new<u32> = array_new<u32>;
libfunc array_append<u32> = array_append<u32>;
libfunc array_pop_front<u32> = array_pop_front<u32>;
libfunc dup<u32> = dup<u32>;
libfunc drop<u32> = drop<u32>;
libfunc unbox<u32> = unbox<u32>;
libfunc panic = panic;
array_new<u32>() -> ([1]);
`)
	for range 8 {
		sb.WriteString("dup<u32>([0]) -> ([0], [2]);\n")
		sb.WriteString("array_append<u32>([1], [2]) -> ([1]);\n")
	}
	// Statements 0 through 16 are above.
	sb.WriteString("array_pop_front<u32>([1]) { fallthrough([1], [2]) 24([1]) };\n")
	sb.WriteString("unbox<u32>([2]) -> ([2]);\n")
	sb.WriteString("drop<u32>([2]) -> ();\n")
	sb.WriteString("dup<u32>([0]) -> ([0], [2]);\n")
	sb.WriteString("array_append<u32>([1], [2]) -> ([1]);\n")
	sb.WriteString("drop<u32>([0]) -> ();\nreturn([1]);\n")
	sb.WriteString("panic() { };\n")
	sb.WriteString("test::refill@0([0]: u32) -> (Array<u32>);\n")
	return sb.String()
}

func TestInvoke_AppendAfterPopGrows(t *testing.T) {
	forEachForm(t, popThenFill(), engine.Options{}, func(t *testing.T, e *engine.Engine) {
		out := invoke(t, e, "test::refill", engine.NewInt(32, 5))
		arr, ok := out[0].(engine.Aggregate)
		if !ok || len(arr) != 3 {
			t.Fatalf("expected an array header, got %s", out[0])
		}
		if length, capacity := asInt(t, arr[1]).Int64(), asInt(t, arr[2]).Int64(); length != 8 || capacity != 14 {
			t.Fatalf("len %d cap %d, want len 8 cap 14", length, capacity)
		}
		data := arr[0].(engine.Ptr)
		for i := range 8 {
			v, err := e.Load(mlir.I32, data+engine.Ptr(4*i))
			if err != nil {
				t.Fatalf("element %d: %v", i, err)
			}
			if got := asInt(t, v).Int64(); got != 5 {
				t.Fatalf("element %d = %d, want 5", i, got)
			}
		}
	})
}

const boxProgram = `
type felt252 = felt252;
type u32 = u32;
type Pair = Struct<ut@Pair, felt252, u32>;
type Box<Pair> = Box<Pair>;
libfunc struct_construct<Pair> = struct_construct<Pair>;
libfunc struct_deconstruct<Pair> = struct_deconstruct<Pair>;
libfunc into_box<Pair> = into_box<Pair>;
libfunc unbox<Pair> = unbox<Pair>;

struct_construct<Pair>([0], [1]) -> ([2]);
into_box<Pair>([2]) -> ([2]);
unbox<Pair>([2]) -> ([2]);
struct_deconstruct<Pair>([2]) -> ([0], [1]);
return([1], [0]);

test::swap@0([0]: felt252, [1]: u32) -> (u32, felt252);
`

func TestInvoke_BoxRoundTrip(t *testing.T) {
	forEachForm(t, boxProgram, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		out := invoke(t, e, "test::swap", felt(123456789), engine.NewInt(32, 77))
		if diff := cmp.Diff([]string{"77", "123456789"}, decimals(t, out)); diff != "" {
			t.Fatalf("swap (-want +got):\n%s", diff)
		}
	})
}

const callProgram = `
type felt252 = felt252;
libfunc dup<felt252> = dup<felt252>;
libfunc felt252_mul = felt252_mul;
libfunc function_call<user@test::square> = function_call<user@test::square>;

dup<felt252>([0]) -> ([0], [1]);
felt252_mul([0], [1]) -> ([0]);
return([0]);
function_call<user@test::square>([0]) -> ([0]);
function_call<user@test::square>([0]) -> ([0]);
return([0]);
dup<felt252>([0]) -> ([0], [1]);
function_call<user@test::square>([1]) -> ([1]);
return([0], [1]);

test::square@0([0]: felt252) -> (felt252);
test::fourth@3([0]: felt252) -> (felt252);
test::with_square@6([0]: felt252) -> (felt252, felt252);
`

func TestInvoke_FunctionCall(t *testing.T) {
	forEachForm(t, callProgram, engine.Options{}, func(t *testing.T, e *engine.Engine) {
		tests := []struct {
			fn   string
			in   int64
			want []string
		}{
			{"test::square", 12, []string{"144"}},
			{"test::fourth", 3, []string{"81"}},
			{"test::with_square", 9, []string{"9", "81"}},
		}
		for _, tt := range tests {
			if diff := cmp.Diff(tt.want, decimals(t, invoke(t, e, tt.fn, felt(tt.in)))); diff != "" {
				t.Errorf("%s(%d) (-want +got):\n%s", tt.fn, tt.in, diff)
			}
		}
	})
}
