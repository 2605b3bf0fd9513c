// Package layout computes sizes, alignments and field offsets of MLIR types
// for a target, following LLVM's data layout rules.
package layout

import (
	"sync"

	"sierra2mlir/internal/mlir"
)

// Layout is where a type's bytes go on one target.
type Layout struct {
	Size  int
	Align int
	// Offsets holds the byte offset of each struct field.
	Offsets []int
	// Stride is the distance between array elements.
	Stride int
}

var zeroSized = Layout{Align: 1}

type memo struct {
	l   Layout
	err error
}

// Engine answers layout queries for a single target and remembers them by
// the printed type. It is safe for concurrent use.
type Engine struct {
	Target Target

	mu   sync.Mutex
	seen map[string]memo
}

// New returns an engine for target.
func New(target Target) *Engine {
	return &Engine{Target: target, seen: make(map[string]memo)}
}

// LayoutOf returns the layout of t. A nil type is zero sized.
func (e *Engine) LayoutOf(t mlir.Type) (Layout, error) {
	if t == nil {
		return zeroSized, nil
	}
	key := t.String()
	e.mu.Lock()
	m, ok := e.seen[key]
	e.mu.Unlock()
	if ok {
		return m.l, m.err
	}

	l, err := e.compute(t)
	e.mu.Lock()
	if e.seen == nil {
		e.seen = make(map[string]memo)
	}
	e.seen[key] = memo{l: l, err: err}
	e.mu.Unlock()
	return l, err
}

// FieldOffset returns the byte offset of field i of a struct type.
func (e *Engine) FieldOffset(t mlir.Type, i int) (int, error) {
	l, err := e.LayoutOf(t)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(l.Offsets) {
		return 0, &Error{Kind: BadField, Type: t.String(), N: int64(i)}
	}
	return l.Offsets[i], nil
}

func (e *Engine) compute(t mlir.Type) (Layout, error) {
	switch tt := t.(type) {
	case mlir.IntegerType:
		return e.integer(tt.Width), nil
	case mlir.PointerType:
		return Layout{Size: e.Target.PointerBytes, Align: e.Target.PointerBytes}, nil
	case mlir.StructType:
		return e.record(tt)
	case mlir.ArrayType:
		return e.array(tt)
	}
	return zeroSized, &Error{Kind: Unsized, Type: t.String()}
}

// integer stores iN in the smallest power of two bytes holding N bits,
// aligned to that size up to the target's cap.
func (e *Engine) integer(bits int) Layout {
	if bits <= 0 {
		return zeroSized
	}
	size := 1
	for size*8 < bits {
		size <<= 1
	}
	return Layout{Size: size, Align: min(size, e.Target.MaxIntAlign)}
}

func (e *Engine) record(t mlir.StructType) (Layout, error) {
	out := Layout{Align: 1, Offsets: make([]int, len(t.Fields))}
	for i, f := range t.Fields {
		fl, err := e.LayoutOf(f)
		if err != nil {
			return zeroSized, nested(err, t)
		}
		a := max(fl.Align, 1)
		out.Offsets[i] = alignTo(out.Size, a)
		out.Size = out.Offsets[i] + fl.Size
		out.Align = max(out.Align, a)
	}
	out.Size = alignTo(out.Size, out.Align)
	return out, nil
}

func (e *Engine) array(t mlir.ArrayType) (Layout, error) {
	if t.Len < 0 {
		return zeroSized, &Error{Kind: NegativeLength, Type: t.String(), N: int64(t.Len)}
	}
	el, err := e.LayoutOf(t.Elem)
	if err != nil {
		return zeroSized, nested(err, t)
	}
	a := max(el.Align, 1)
	stride := alignTo(el.Size, a)
	size, err := checkedMul(stride, t.Len)
	if err != nil {
		return zeroSized, &Error{Kind: Overflow, Type: t.String(), Err: err}
	}
	return Layout{Size: size, Align: a, Stride: stride}, nil
}

func alignTo(n, a int) int {
	if a <= 1 {
		return n
	}
	return (n + a - 1) / a * a
}
