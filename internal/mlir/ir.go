package mlir

import (
	"fmt"
	"sort"
)

// Value is an SSA value: an operation result or a block argument.
type Value interface {
	Type() Type
	isValue()
}

// OpResult is the i-th result of an operation.
type OpResult struct {
	Owner *Operation
	Index int
	typ   Type
}

func (r *OpResult) Type() Type { return r.typ }
func (*OpResult) isValue()     {}

// BlockArgument is the i-th argument of a block.
type BlockArgument struct {
	Owner *Block
	Index int
	typ   Type
}

func (a *BlockArgument) Type() Type { return a.typ }
func (*BlockArgument) isValue()     {}

// Location is a file:line:col source location. The zero value is unknown.
type Location struct {
	File string
	Line int
	Col  int
}

// Known reports whether the location carries a file.
func (l Location) Known() bool { return l.File != "" }

func (l Location) String() string {
	if !l.Known() {
		return "loc(unknown)"
	}
	return fmt.Sprintf("loc(%q:%d:%d)", l.File, l.Line, l.Col)
}

// Successor is a branch destination with the values passed to its arguments.
type Successor struct {
	Block *Block
	Args  []Value
}

// Operation is a generic MLIR operation.
type Operation struct {
	Name       string
	Operands   []Value
	Results    []*OpResult
	Attrs      []NamedAttr
	Successors []Successor
	Regions    []*Region
	Loc        Location

	block *Block
}

// OperationState collects everything needed to create an operation.
type OperationState struct {
	Name        string
	Operands    []Value
	ResultTypes []Type
	Attrs       []NamedAttr
	Successors  []Successor
	Regions     []*Region
	Loc         Location
}

// NewOperation creates a detached operation.
func NewOperation(st OperationState) *Operation {
	op := &Operation{
		Name:       st.Name,
		Operands:   st.Operands,
		Successors: st.Successors,
		Loc:        st.Loc,
	}
	for i, t := range st.ResultTypes {
		op.Results = append(op.Results, &OpResult{Owner: op, Index: i, typ: t})
	}
	for _, a := range st.Attrs {
		op.SetAttr(a.Name, a.Value)
	}
	for _, r := range st.Regions {
		r.parent = op
		op.Regions = append(op.Regions, r)
	}
	return op
}

// Result returns the i-th result as a Value.
func (op *Operation) Result(i int) Value { return op.Results[i] }

// ResultTypes returns the types of all results.
func (op *Operation) ResultTypes() []Type {
	out := make([]Type, len(op.Results))
	for i, r := range op.Results {
		out[i] = r.typ
	}
	return out
}

// OperandTypes returns the types of the non-successor operands.
func (op *Operation) OperandTypes() []Type {
	return valueTypes(op.Operands)
}

func valueTypes(vals []Value) []Type {
	out := make([]Type, len(vals))
	for i, v := range vals {
		out[i] = v.Type()
	}
	return out
}

// Attr looks up an attribute by name.
func (op *Operation) Attr(name string) (Attribute, bool) {
	for _, a := range op.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// SetAttr sets or replaces an attribute, keeping the dictionary sorted.
func (op *Operation) SetAttr(name string, value Attribute) {
	for i := range op.Attrs {
		if op.Attrs[i].Name == name {
			op.Attrs[i].Value = value
			return
		}
	}
	op.Attrs = append(op.Attrs, NamedAttr{Name: name, Value: value})
	sort.SliceStable(op.Attrs, func(i, j int) bool { return op.Attrs[i].Name < op.Attrs[j].Name })
}

// RemoveAttr deletes an attribute if present.
func (op *Operation) RemoveAttr(name string) {
	for i := range op.Attrs {
		if op.Attrs[i].Name == name {
			op.Attrs = append(op.Attrs[:i], op.Attrs[i+1:]...)
			return
		}
	}
}

// Block returns the block containing op, or nil when detached.
func (op *Operation) Block() *Block { return op.block }

// ParentOp returns the operation whose region contains op.
func (op *Operation) ParentOp() *Operation {
	if op.block == nil || op.block.parent == nil {
		return nil
	}
	return op.block.parent.parent
}

// Walk visits op and every nested operation in pre-order.
func (op *Operation) Walk(fn func(*Operation)) {
	fn(op)
	for _, r := range op.Regions {
		for _, b := range r.Blocks {
			for _, inner := range append([]*Operation(nil), b.Ops...) {
				inner.Walk(fn)
			}
		}
	}
}

// ReplaceAllUsesWith rewrites every use of old below root to use repl.
func ReplaceAllUsesWith(root *Operation, old, repl Value) {
	root.Walk(func(op *Operation) {
		for i, v := range op.Operands {
			if v == old {
				op.Operands[i] = repl
			}
		}
		for s := range op.Successors {
			for i, v := range op.Successors[s].Args {
				if v == old {
					op.Successors[s].Args[i] = repl
				}
			}
		}
	})
}

// Block is a list of operations with arguments.
type Block struct {
	Args []*BlockArgument
	Ops  []*Operation

	parent *Region
}

// NewBlock creates a detached block with arguments of the given types.
func NewBlock(argTypes ...Type) *Block {
	b := &Block{}
	for _, t := range argTypes {
		b.AddArgument(t)
	}
	return b
}

// AddArgument appends a block argument.
func (b *Block) AddArgument(t Type) *BlockArgument {
	arg := &BlockArgument{Owner: b, Index: len(b.Args), typ: t}
	b.Args = append(b.Args, arg)
	return arg
}

// ArgTypes returns the types of the block arguments.
func (b *Block) ArgTypes() []Type {
	out := make([]Type, len(b.Args))
	for i, a := range b.Args {
		out[i] = a.typ
	}
	return out
}

// Append adds op at the end of the block.
func (b *Block) Append(op *Operation) {
	op.block = b
	b.Ops = append(b.Ops, op)
}

// Remove detaches op from the block.
func (b *Block) Remove(op *Operation) {
	for i, o := range b.Ops {
		if o == op {
			b.Ops = append(b.Ops[:i], b.Ops[i+1:]...)
			op.block = nil
			return
		}
	}
}

// Index returns the position of op in the block, or -1.
func (b *Block) Index(op *Operation) int {
	for i, o := range b.Ops {
		if o == op {
			return i
		}
	}
	return -1
}

// Terminator returns the last operation of the block.
func (b *Block) Terminator() *Operation {
	if len(b.Ops) == 0 {
		return nil
	}
	return b.Ops[len(b.Ops)-1]
}

// Region returns the region containing the block.
func (b *Block) Region() *Region { return b.parent }

// Region is an ordered list of blocks owned by an operation.
type Region struct {
	Blocks []*Block

	parent *Operation
}

// NewRegion creates a region holding the given blocks.
func NewRegion(blocks ...*Block) *Region {
	r := &Region{}
	for _, b := range blocks {
		r.Append(b)
	}
	return r
}

// Append adds b at the end of the region.
func (r *Region) Append(b *Block) {
	b.parent = r
	r.Blocks = append(r.Blocks, b)
}

// InsertAfter places b right after the block at. A nil at inserts first.
func (r *Region) InsertAfter(at, b *Block) {
	b.parent = r
	pos := 0
	if at != nil {
		pos = r.index(at) + 1
	}
	r.Blocks = append(r.Blocks, nil)
	copy(r.Blocks[pos+1:], r.Blocks[pos:])
	r.Blocks[pos] = b
}

func (r *Region) index(b *Block) int {
	for i, x := range r.Blocks {
		if x == b {
			return i
		}
	}
	return len(r.Blocks) - 1
}

// Entry returns the first block of the region.
func (r *Region) Entry() *Block {
	if len(r.Blocks) == 0 {
		return nil
	}
	return r.Blocks[0]
}

// ParentOp returns the operation owning the region.
func (r *Region) ParentOp() *Operation { return r.parent }
