package layout

import (
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// ErrorKind classifies layout failures.
type ErrorKind uint8

const (
	// Unsized is a type with no memory representation, such as a function.
	Unsized ErrorKind = iota + 1
	Overflow
	NegativeLength
	BadField
	UnknownTarget
)

// Error is a failed layout query. N carries the offending length or index.
type Error struct {
	Kind ErrorKind
	Type string
	N    int64
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case Unsized:
		return fmt.Sprintf("type %s has no memory layout", e.Type)
	case Overflow:
		return fmt.Sprintf("size of %s overflows: %v", e.Type, e.Err)
	case NegativeLength:
		return fmt.Sprintf("array %s has negative length %d", e.Type, e.N)
	case BadField:
		return fmt.Sprintf("%s has no field %d", e.Type, e.N)
	case UnknownTarget:
		return fmt.Sprintf("unsupported target %q", e.Type)
	}
	return fmt.Sprintf("layout of %s failed", e.Type)
}

func (e *Error) Unwrap() error { return e.Err }

// nested reports a member failure against the enclosing type while keeping
// the kind of the innermost error.
func nested(err error, outer fmt.Stringer) error {
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	return &Error{Kind: Unsized, Type: outer.String(), Err: err}
}

func checkedMul(a, b int) (int, error) {
	return safecast.Conv[int](int64(a) * int64(b))
}
