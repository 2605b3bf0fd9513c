package lower

import (
	"fmt"
	"strings"

	"sierra2mlir/internal/sierra"
)

// ErrorKind classifies lowering failures.
type ErrorKind uint8

const (
	// UndefinedTypeReference: a type id is used but never declared.
	UndefinedTypeReference ErrorKind = iota + 1
	// UndefinedLibfuncReference: a statement invokes an undeclared libfunc id.
	UndefinedLibfuncReference
	// UnsupportedLibfunc: a declared libfunc has no lowering.
	UnsupportedLibfunc
	// UnsupportedType: a declared type has no lowering or is recursive.
	UnsupportedType
	// UndefinedVariable: a variable is read while unbound on this path.
	UndefinedVariable
	// BranchTargetOutOfRange: a branch leaves its function's statements.
	BranchTargetOutOfRange
	// InvalidInvocation: a statement does not match its libfunc signature.
	InvalidInvocation
	// MoveViolation: a variable is consumed twice or redefined while live.
	MoveViolation
	// UndefinedFunctionReference: function_call names an unknown function.
	UndefinedFunctionReference
)

func (k ErrorKind) String() string {
	switch k {
	case UndefinedTypeReference:
		return "UndefinedTypeReference"
	case UndefinedLibfuncReference:
		return "UndefinedLibfuncReference"
	case UnsupportedLibfunc:
		return "UnsupportedLibfunc"
	case UnsupportedType:
		return "UnsupportedType"
	case UndefinedVariable:
		return "UndefinedVariable"
	case BranchTargetOutOfRange:
		return "BranchTargetOutOfRange"
	case InvalidInvocation:
		return "InvalidInvocation"
	case MoveViolation:
		return "MoveViolation"
	case UndefinedFunctionReference:
		return "UndefinedFunctionReference"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// NoStatement marks errors not tied to a statement.
const NoStatement sierra.StatementIdx = -1

// Error is a lowering failure with enough context to locate it.
type Error struct {
	Kind      ErrorKind
	Func      sierra.FunctionID
	Statement sierra.StatementIdx
	// Ref is the offending id: type, libfunc, function or variable.
	Ref string
	Err error
}

func newError(kind ErrorKind, ref string, format string, args ...any) *Error {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &Error{Kind: kind, Statement: NoStatement, Ref: ref, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Ref != "" {
		fmt.Fprintf(&sb, "(%q)", e.Ref)
	}
	if e.Func != "" {
		fmt.Fprintf(&sb, " in %s", e.Func)
	}
	if e.Statement != NoStatement {
		fmt.Fprintf(&sb, " at statement %d", e.Statement)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// at fills in the function and statement of err when missing.
func at(err error, fn sierra.FunctionID, idx sierra.StatementIdx) error {
	le, ok := err.(*Error)
	if !ok {
		return err
	}
	if le.Func == "" {
		le.Func = fn
	}
	if le.Statement == NoStatement {
		le.Statement = idx
	}
	return le
}
