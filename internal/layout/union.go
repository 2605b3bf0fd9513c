package layout

import (
	"fortio.org/safecast"

	"sierra2mlir/internal/mlir"
)

// Union is a tagged union stored as struct<(iTag, array<Words x iWordBits>)>.
// Every variant's payload starts at PayloadOffset.
type Union struct {
	TagBits       int
	WordBits      int
	Words         int
	PayloadOffset int
	Size          int
	Align         int
	Type          mlir.StructType
}

// tagBits is the narrowest of i8, i16 and i32 that numbers n variants.
func tagBits(n int) int {
	switch {
	case n > 1<<16:
		return 32
	case n > 1<<8:
		return 16
	}
	return 8
}

// TagUnion lays out a tagged union over the variant payloads. The payload
// is an array of words as wide as the most aligned variant.
func (e *Engine) TagUnion(variants []mlir.Type) (Union, error) {
	size, align := 0, 1
	for _, v := range variants {
		l, err := e.LayoutOf(v)
		if err != nil {
			return Union{}, err
		}
		size = max(size, l.Size)
		align = max(align, l.Align)
	}
	wordBits, err := safecast.Conv[int](int64(align) * 8)
	if err != nil {
		return Union{}, &Error{Kind: Overflow, Type: "union word", Err: err}
	}
	u := Union{
		TagBits:  tagBits(len(variants)),
		WordBits: wordBits,
		Words:    alignTo(size, align) / align,
	}
	u.Type = mlir.Struct(mlir.I(u.TagBits), mlir.Array(u.Words, mlir.I(wordBits)))
	l, err := e.LayoutOf(u.Type)
	if err != nil {
		return Union{}, err
	}
	u.PayloadOffset, u.Size, u.Align = l.Offsets[1], l.Size, l.Align
	return u, nil
}
