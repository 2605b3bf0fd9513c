package engine

import (
	"fmt"
	"math/big"

	"sierra2mlir/internal/mlir"
)

func (e *Engine) sizeOf(t mlir.Type) (int, error) {
	l, err := e.layouts.LayoutOf(t)
	if err != nil {
		return 0, err
	}
	return l.Size, nil
}

// strideOf is the distance between consecutive elements of type t.
func (e *Engine) strideOf(t mlir.Type) (int, error) {
	l, err := e.layouts.LayoutOf(t)
	if err != nil {
		return 0, err
	}
	if l.Align <= 1 || l.Size%l.Align == 0 {
		return l.Size, nil
	}
	return l.Size + l.Align - l.Size%l.Align, nil
}

// encode writes v into buf using the layout of t. buf spans the whole value.
func (e *Engine) encode(buf []byte, t mlir.Type, v Value) error {
	switch tt := t.(type) {
	case mlir.IntegerType:
		i, ok := v.(Int)
		if !ok || i.Width != tt.Width {
			return fmt.Errorf("storing %s as %s", v, t)
		}
		be := i.V.FillBytes(make([]byte, len(buf)))
		for k := range buf {
			buf[k] = be[len(be)-1-k]
		}
		return nil
	case mlir.PointerType:
		p, ok := v.(Ptr)
		if !ok {
			return fmt.Errorf("storing %s as %s", v, t)
		}
		for k := range buf {
			buf[k] = byte(uint64(p) >> (8 * k))
		}
		return nil
	case mlir.StructType:
		a, ok := v.(Aggregate)
		if !ok || len(a) != len(tt.Fields) {
			return fmt.Errorf("storing %s as %s", v, t)
		}
		l, err := e.layouts.LayoutOf(tt)
		if err != nil {
			return err
		}
		for i, f := range tt.Fields {
			n, err := e.sizeOf(f)
			if err != nil {
				return err
			}
			off := l.Offsets[i]
			if err := e.encode(buf[off:off+n], f, a[i]); err != nil {
				return err
			}
		}
		return nil
	case mlir.ArrayType:
		a, ok := v.(Aggregate)
		if !ok || len(a) != tt.Len {
			return fmt.Errorf("storing %s as %s", v, t)
		}
		stride, err := e.strideOf(tt.Elem)
		if err != nil {
			return err
		}
		n, err := e.sizeOf(tt.Elem)
		if err != nil {
			return err
		}
		for i := range a {
			if err := e.encode(buf[i*stride:i*stride+n], tt.Elem, a[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("cannot store values of type %s", t)
	}
}

func (e *Engine) decode(buf []byte, t mlir.Type) (Value, error) {
	switch tt := t.(type) {
	case mlir.IntegerType:
		be := make([]byte, len(buf))
		for k := range buf {
			be[len(be)-1-k] = buf[k]
		}
		return IntOf(tt.Width, new(big.Int).SetBytes(be)), nil
	case mlir.PointerType:
		var p uint64
		for k := range buf {
			p |= uint64(buf[k]) << (8 * k)
		}
		return Ptr(p), nil
	case mlir.StructType:
		l, err := e.layouts.LayoutOf(tt)
		if err != nil {
			return nil, err
		}
		out := make(Aggregate, len(tt.Fields))
		for i, f := range tt.Fields {
			n, err := e.sizeOf(f)
			if err != nil {
				return nil, err
			}
			off := l.Offsets[i]
			if out[i], err = e.decode(buf[off:off+n], f); err != nil {
				return nil, err
			}
		}
		return out, nil
	case mlir.ArrayType:
		stride, err := e.strideOf(tt.Elem)
		if err != nil {
			return nil, err
		}
		n, err := e.sizeOf(tt.Elem)
		if err != nil {
			return nil, err
		}
		out := make(Aggregate, tt.Len)
		for i := range out {
			if out[i], err = e.decode(buf[i*stride:i*stride+n], tt.Elem); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot load values of type %s", t)
	}
}

// Load reads a value of type t at p.
func (e *Engine) Load(t mlir.Type, p Ptr) (Value, error) {
	n, err := e.sizeOf(t)
	if err != nil {
		return nil, err
	}
	buf, err := e.mem.slice(p, n)
	if err != nil {
		return nil, err
	}
	return e.decode(buf, t)
}

// Store writes v of type t at p.
func (e *Engine) Store(t mlir.Type, p Ptr, v Value) error {
	n, err := e.sizeOf(t)
	if err != nil {
		return err
	}
	buf, err := e.mem.slice(p, n)
	if err != nil {
		return err
	}
	return e.encode(buf, t, v)
}

// Alloc reserves zeroed heap memory of n bytes.
func (e *Engine) Alloc(n int) (Ptr, error) { return e.mem.alloc(n) }
