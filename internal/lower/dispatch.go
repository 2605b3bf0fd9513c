package lower

import (
	"math/big"
	"strings"

	"sierra2mlir/internal/mlir"
	"sierra2mlir/internal/sierra"
)

// Signature is the typed shape of a specialized libfunc.
type Signature struct {
	Inputs []mlir.Type
	// Branches lists the output types of each branch.
	Branches [][]mlir.Type
	// Variadic accepts inputs of any number and type.
	Variadic bool
}

// libfunc is one lowering variant of the dispatch table.
type libfunc interface {
	specialize(c *Compilation, args []sierra.GenericArg) (Signature, error)
	lower(s *site) (*outcome, error)
}

// site is the context of one invocation being lowered.
type site struct {
	c      *Compilation
	b      *mlir.Builder
	args   []sierra.GenericArg
	inputs []mlir.Value
}

// outcome is what a libfunc produced: the outputs of every branch and how
// the engine picks among them.
type outcome struct {
	branches [][]mlir.Value
	sel      selector
}

// selector tells the statement engine which terminator ends the block.
type selector interface{ isSelector() }

// selectOne continues with the only branch.
type selectOne struct{}

// selectCond takes branch ifTrue when cond holds and the other one
// otherwise.
type selectCond struct {
	cond   mlir.Value
	ifTrue int
}

// selectSwitch branches on an integer flag. Cases[i] is taken when flag
// equals Values[i], Default otherwise.
type selectSwitch struct {
	flag    mlir.Value
	def     int
	values  []int64
	targets []int
}

// selectAbort never returns; the block ends unreachable.
type selectAbort struct{}

func (selectOne) isSelector()    {}
func (selectCond) isSelector()   {}
func (selectSwitch) isSelector() {}
func (selectAbort) isSelector()  {}

func single(vals ...mlir.Value) *outcome {
	return &outcome{branches: [][]mlir.Value{vals}, sel: selectOne{}}
}

type boundLibfunc struct {
	id   sierra.LibfuncID
	name string
	impl libfunc
	args []sierra.GenericArg
	sig  Signature
}

type dispatchKey struct {
	name  string
	shape string
}

// genericShape renders the kinds of args: T type, V value, F user function,
// U user type, L libfunc.
func genericShape(args []sierra.GenericArg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch a.Kind {
		case sierra.ArgType:
			parts[i] = "T"
		case sierra.ArgValue:
			parts[i] = "V"
		case sierra.ArgUserFunc:
			parts[i] = "F"
		case sierra.ArgUserType:
			parts[i] = "U"
		case sierra.ArgLibfunc:
			parts[i] = "L"
		default:
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ",")
}

// canonicalLibfunc maps legacy felt names onto the felt252 family.
func canonicalLibfunc(name string) string {
	if name == "felt_jump_nz" || name == "felt252_jump_nz" {
		return "felt252_is_zero"
	}
	if rest, ok := strings.CutPrefix(name, "felt_"); ok {
		return "felt252_" + rest
	}
	return name
}

func (c *Compilation) bindLibfunc(decl *sierra.LibfuncDeclaration) error {
	name := canonicalLibfunc(decl.LongID.Generic)
	impl, ok := dispatchTable[dispatchKey{name: name, shape: genericShape(decl.LongID.Args)}]
	if !ok {
		return newError(UnsupportedLibfunc, string(decl.ID), "")
	}
	sig, err := impl.specialize(c, decl.LongID.Args)
	if err != nil {
		if le, ok := err.(*Error); ok && le.Ref == "" {
			le.Ref = string(decl.ID)
		}
		return err
	}
	c.libfuncs[decl.ID] = &boundLibfunc{id: decl.ID, name: name, impl: impl, args: decl.LongID.Args, sig: sig}
	return nil
}

// LibfuncSignature returns the signature bound to a declared libfunc.
func (c *Compilation) LibfuncSignature(id sierra.LibfuncID) (Signature, bool) {
	bl, ok := c.libfuncs[id]
	if !ok {
		return Signature{}, false
	}
	return bl.sig, true
}

func (c *Compilation) typeArg(args []sierra.GenericArg, i int) (*ConcreteType, error) {
	return c.ResolveType(args[i].Type)
}

func valueArg(args []sierra.GenericArg, i int) *big.Int {
	if args[i].Value == nil {
		return new(big.Int)
	}
	return args[i].Value
}

func invalid(format string, args ...any) error {
	return newError(InvalidInvocation, "", format, args...)
}

var dispatchTable = buildDispatchTable()

func buildDispatchTable() map[dispatchKey]libfunc {
	t := make(map[dispatchKey]libfunc)
	add := func(name, shape string, impl libfunc) { t[dispatchKey{name, shape}] = impl }

	add("felt252_const", "V", feltConst{})
	add("felt252_add", "", feltBinary{op: feltAdd})
	add("felt252_sub", "", feltBinary{op: feltSub})
	add("felt252_mul", "", feltBinary{op: feltMul})
	add("felt252_div", "", feltDiv{})
	add("felt252_add_const", "V", feltBinaryConst{op: feltAdd})
	add("felt252_sub_const", "V", feltBinaryConst{op: feltSub})
	add("felt252_mul_const", "V", feltBinaryConst{op: feltMul})
	add("felt252_is_zero", "", feltIsZero{})

	for name, w := range uintWidths {
		add(name+"_const", "V", uintConst{width: w})
		add(name+"_overflowing_add", "", uintOverflowing{width: w})
		add(name+"_overflowing_sub", "", uintOverflowing{width: w, sub: true})
		add(name+"_lt", "", uintCompare{width: w, kind: compareLT})
		add(name+"_le", "", uintCompare{width: w, kind: compareLE})
		add(name+"_eq", "", uintCompare{width: w, kind: compareEQ})
		add(name+"_is_zero", "", uintIsZero{width: w})
		add(name+"_safe_divmod", "", uintDivmod{width: w})
		add(name+"_to_felt252", "", uintToFelt{width: w})
		add(name+"_try_from_felt252", "", uintTryFromFelt{width: w})
		if w < 128 {
			add(name+"_wide_mul", "", uintWideMul{width: w})
		}
	}
	add("u128s_from_felt252", "", u128sFromFelt{})

	add("bool_not_impl", "", boolNot{})
	add("bool_and_impl", "", boolBinary{op: boolAnd})
	add("bool_or_impl", "", boolBinary{op: boolOr})
	add("bool_xor_impl", "", boolBinary{op: boolXor})
	add("bool_to_felt252", "", boolToFelt{})

	add("struct_construct", "T", structConstruct{})
	add("struct_deconstruct", "T", structDeconstruct{})
	add("enum_init", "T,V", enumInit{})
	add("enum_match", "T", enumMatch{})

	add("array_new", "T", arrayNew{})
	add("array_append", "T", arrayAppend{})
	add("array_len", "T", arrayLen{})
	add("array_get", "T", arrayGet{})
	add("array_pop_front", "T", arrayPopFront{})
	add("into_box", "T", intoBox{})
	add("unbox", "T", unbox{})

	for _, name := range []string{"store_temp", "store_local", "rename", "unwrap_non_zero"} {
		add(name, "T", passThrough{copies: 1})
	}
	add("dup", "T", passThrough{copies: 2})
	add("snapshot_take", "T", passThrough{copies: 2})
	add("drop", "T", passThrough{copies: 0})
	for _, name := range []string{"branch_align", "disable_ap_tracking", "enable_ap_tracking", "revoke_ap_tracking", "finalize_locals"} {
		add(name, "", nop{})
	}

	add("function_call", "F", functionCall{})
	add("jump", "", jump{})
	add("panic", "", panicAbort{})
	return t
}
