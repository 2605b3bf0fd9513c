package layout_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"sierra2mlir/internal/layout"
	"sierra2mlir/internal/mlir"
)

func TestLayoutOf_Scalars(t *testing.T) {
	e := layout.New(layout.X86_64LinuxGNU())
	tests := []struct {
		ty          mlir.Type
		size, align int
	}{
		{mlir.I1, 1, 1},
		{mlir.I8, 1, 1},
		{mlir.I16, 2, 2},
		{mlir.I32, 4, 4},
		{mlir.I(48), 8, 8},
		{mlir.I64, 8, 8},
		{mlir.I128, 16, 16},
		{mlir.I256, 32, 16},
		{mlir.I512, 64, 16},
		{mlir.Ptr, 8, 8},
	}
	for _, tt := range tests {
		l, err := e.LayoutOf(tt.ty)
		if err != nil {
			t.Fatalf("%s: %v", tt.ty, err)
		}
		if l.Size != tt.size || l.Align != tt.align {
			t.Errorf("%s: got size=%d align=%d, want size=%d align=%d", tt.ty, l.Size, l.Align, tt.size, tt.align)
		}
	}
}

func TestLayoutOf_StructPadding(t *testing.T) {
	e := layout.New(layout.X86_64LinuxGNU())
	got, err := e.LayoutOf(mlir.Struct(mlir.I8, mlir.I64, mlir.I16))
	if err != nil {
		t.Fatal(err)
	}
	want := layout.Layout{Size: 24, Align: 8, Offsets: []int{0, 8, 16}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}

	arr, err := e.LayoutOf(mlir.Struct(mlir.Ptr, mlir.I32, mlir.I32))
	if err != nil {
		t.Fatal(err)
	}
	if arr.Size != 16 || arr.Offsets[2] != 12 {
		t.Fatalf("array header layout = %+v", arr)
	}
}

func TestLayoutOf_ArrayStride(t *testing.T) {
	e := layout.New(layout.X86_64LinuxGNU())
	l, err := e.LayoutOf(mlir.Array(3, mlir.Struct(mlir.I64, mlir.I8)))
	if err != nil {
		t.Fatal(err)
	}
	if l.Stride != 16 || l.Size != 48 || l.Align != 8 {
		t.Fatalf("got %+v", l)
	}
}

func TestLayoutOf_FunctionTypeIsUnsized(t *testing.T) {
	e := layout.New(layout.X86_64LinuxGNU())
	_, err := e.LayoutOf(mlir.Struct(mlir.I8, mlir.FunctionType{}))
	var le *layout.Error
	if !errors.As(err, &le) || le.Kind != layout.Unsized {
		t.Fatalf("expected an Unsized error, got %v", err)
	}
}

func TestTagUnion(t *testing.T) {
	e := layout.New(layout.X86_64LinuxGNU())
	tests := []struct {
		name     string
		variants []mlir.Type
		want     string
		offset   int
		size     int
	}{
		{name: "bool", variants: []mlir.Type{mlir.Struct(), mlir.Struct()}, want: "!llvm.struct<(i8, array<0 x i8>)>", offset: 1, size: 1},
		{name: "option_u32", variants: []mlir.Type{mlir.I32, mlir.Struct()}, want: "!llvm.struct<(i8, array<1 x i32>)>", offset: 4, size: 8},
		{name: "felt_or_pair", variants: []mlir.Type{mlir.I256, mlir.Struct(mlir.I8, mlir.I64)}, want: "!llvm.struct<(i8, array<2 x i128>)>", offset: 16, size: 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := e.TagUnion(tt.variants)
			if err != nil {
				t.Fatal(err)
			}
			if got := u.Type.String(); got != tt.want {
				t.Fatalf("storage = %s, want %s", got, tt.want)
			}
			if u.PayloadOffset != tt.offset || u.Size != tt.size {
				t.Fatalf("offset=%d size=%d, want offset=%d size=%d", u.PayloadOffset, u.Size, tt.offset, tt.size)
			}
			for _, v := range tt.variants {
				vl, err := e.LayoutOf(v)
				if err != nil {
					t.Fatal(err)
				}
				if u.PayloadOffset+vl.Size > u.Size {
					t.Fatalf("variant %s overflows the union", v)
				}
			}
		})
	}

	many := make([]mlir.Type, 300)
	for i := range many {
		many[i] = mlir.Struct()
	}
	u, err := e.TagUnion(many)
	if err != nil {
		t.Fatal(err)
	}
	if u.TagBits != 16 {
		t.Fatalf("300 variants need a 16-bit tag, got %d", u.TagBits)
	}
}

func TestFieldOffset(t *testing.T) {
	e := layout.New(layout.X86_64LinuxGNU())
	st := mlir.Struct(mlir.I8, mlir.I32)
	if off, err := e.FieldOffset(st, 1); err != nil || off != 4 {
		t.Fatalf("FieldOffset(1) = %d, %v", off, err)
	}
	_, err := e.FieldOffset(st, 2)
	var le *layout.Error
	if !errors.As(err, &le) || le.Kind != layout.BadField {
		t.Fatalf("expected a BadField error, got %v", err)
	}
}

func TestTargetByTriple(t *testing.T) {
	if _, err := layout.TargetByTriple("x86_64-linux-gnu"); err != nil {
		t.Fatal(err)
	}
	if _, err := layout.TargetByTriple("riscv32-none"); err == nil {
		t.Fatal("expected unknown target error")
	}
}
