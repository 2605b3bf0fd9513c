// Package sierra holds the in-memory shape of a parsed Sierra program and a
// parser for its textual form.
package sierra

import (
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// TypeID identifies a concrete type declaration. It is the canonical text of
// the id as written in the program: either "[N]" or a debug long id such as
// "NonZero<felt252>".
type TypeID string

// LibfuncID identifies a concrete libfunc declaration.
type LibfuncID string

// FunctionID identifies a user function.
type FunctionID string

// VarID identifies a variable within a function.
type VarID uint64

// StatementIdx is the absolute address of a statement in the program.
type StatementIdx int

// GenericArgKind distinguishes generic argument forms.
type GenericArgKind uint8

const (
	// ArgType references a declared concrete type.
	ArgType GenericArgKind = iota + 1
	// ArgValue is an integer constant.
	ArgValue
	// ArgUserType is a user type name (ut@path).
	ArgUserType
	// ArgUserFunc references a user function (user@path).
	ArgUserFunc
	// ArgLibfunc references a libfunc (lib@id).
	ArgLibfunc
)

// GenericArg is one argument of a generic type or libfunc.
type GenericArg struct {
	Kind  GenericArgKind
	Type  TypeID
	Value *big.Int
	Name  string
}

func (a GenericArg) String() string {
	switch a.Kind {
	case ArgType:
		return string(a.Type)
	case ArgValue:
		if a.Value == nil {
			return "0"
		}
		return a.Value.String()
	case ArgUserType:
		return "ut@" + a.Name
	case ArgUserFunc:
		return "user@" + a.Name
	case ArgLibfunc:
		return "lib@" + a.Name
	default:
		return "?"
	}
}

// LongID is a generic name plus its generic arguments.
type LongID struct {
	Generic string
	Args    []GenericArg
}

func (l LongID) String() string {
	if len(l.Args) == 0 {
		return l.Generic
	}
	parts := make([]string, len(l.Args))
	for i, a := range l.Args {
		parts[i] = a.String()
	}
	return l.Generic + "<" + strings.Join(parts, ", ") + ">"
}

// TypeDeclaration binds a type id to its long id.
type TypeDeclaration struct {
	ID     TypeID
	LongID LongID
	// Attrs holds the optional trailing declaration info ([storable: true, ...]).
	Attrs map[string]string
}

// LibfuncDeclaration binds a libfunc id to its long id.
type LibfuncDeclaration struct {
	ID     LibfuncID
	LongID LongID
}

// Param is a function parameter.
type Param struct {
	ID   VarID
	Type TypeID
}

// Function is a user function declaration. Its body starts at Entry.
type Function struct {
	ID       FunctionID
	Params   []Param
	RetTypes []TypeID
	Entry    StatementIdx
}

// BranchTarget is either the next statement or an absolute statement index.
type BranchTarget struct {
	Fallthrough bool
	Statement   StatementIdx
}

// Resolve returns the absolute index the target refers to when taken from idx.
func (t BranchTarget) Resolve(idx StatementIdx) StatementIdx {
	if t.Fallthrough {
		return idx + 1
	}
	return t.Statement
}

func (t BranchTarget) String() string {
	if t.Fallthrough {
		return "fallthrough"
	}
	return strconv.Itoa(int(t.Statement))
}

// BranchInfo is one branch of an invocation.
type BranchInfo struct {
	Target  BranchTarget
	Results []VarID
}

// Invocation calls a libfunc.
type Invocation struct {
	Libfunc  LibfuncID
	Args     []VarID
	Branches []BranchInfo
}

// StatementKind distinguishes statements.
type StatementKind uint8

const (
	// StatementInvocation is a libfunc invocation.
	StatementInvocation StatementKind = iota + 1
	// StatementReturn returns from the enclosing function.
	StatementReturn
)

// Statement is either an invocation or a return.
type Statement struct {
	Kind       StatementKind
	Invocation Invocation
	Return     []VarID
}

func (s *Statement) String() string {
	if s == nil {
		return "<nil>"
	}
	switch s.Kind {
	case StatementReturn:
		return "return(" + formatVars(s.Return) + ")"
	case StatementInvocation:
		inv := &s.Invocation
		var sb strings.Builder
		sb.WriteString(string(inv.Libfunc))
		sb.WriteString("(")
		sb.WriteString(formatVars(inv.Args))
		sb.WriteString(")")
		if len(inv.Branches) == 1 && inv.Branches[0].Target.Fallthrough {
			sb.WriteString(" -> (")
			sb.WriteString(formatVars(inv.Branches[0].Results))
			sb.WriteString(")")
			return sb.String()
		}
		sb.WriteString(" {")
		for _, br := range inv.Branches {
			sb.WriteString(" ")
			sb.WriteString(br.Target.String())
			sb.WriteString("(")
			sb.WriteString(formatVars(br.Results))
			sb.WriteString(")")
		}
		sb.WriteString(" }")
		return sb.String()
	default:
		return "<invalid statement>"
	}
}

func formatVars(vars []VarID) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = "[" + strconv.FormatUint(uint64(v), 10) + "]"
	}
	return strings.Join(parts, ", ")
}

// Program is a parsed Sierra program.
type Program struct {
	TypeDeclarations    []TypeDeclaration
	LibfuncDeclarations []LibfuncDeclaration
	Statements          []Statement
	Functions           []Function
}

// FunctionRange returns the half-open statement range [start, end) owned by
// the function at position i in Functions. A function owns every statement
// from its entry up to the next entry of any function.
func (p *Program) FunctionRange(i int) (start, end StatementIdx) {
	if p == nil || i < 0 || i >= len(p.Functions) {
		return 0, 0
	}
	start = p.Functions[i].Entry
	end = StatementIdx(len(p.Statements))
	entries := make([]int, 0, len(p.Functions))
	for _, f := range p.Functions {
		entries = append(entries, int(f.Entry))
	}
	sort.Ints(entries)
	for _, e := range entries {
		if StatementIdx(e) > start {
			end = StatementIdx(e)
			break
		}
	}
	return start, end
}

// FunctionByID returns the function with the given id.
func (p *Program) FunctionByID(id FunctionID) (*Function, bool) {
	if p == nil {
		return nil, false
	}
	for i := range p.Functions {
		if p.Functions[i].ID == id {
			return &p.Functions[i], true
		}
	}
	return nil, false
}
