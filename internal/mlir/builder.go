package mlir

// Builder appends operations at the end of a block and stamps them with the
// current location.
type Builder struct {
	block *Block
	loc   Location
}

// NewBuilder returns a builder that inserts at the end of block.
func NewBuilder(block *Block) *Builder {
	return &Builder{block: block}
}

// SetInsertionPointToEnd moves the builder to the end of block.
func (b *Builder) SetInsertionPointToEnd(block *Block) { b.block = block }

// InsertionBlock returns the block the builder appends to.
func (b *Builder) InsertionBlock() *Block { return b.block }

// SetLoc sets the location stamped on new operations.
func (b *Builder) SetLoc(loc Location) { b.loc = loc }

// Loc returns the current location.
func (b *Builder) Loc() Location { return b.loc }

// Create builds an operation from st and appends it.
func (b *Builder) Create(st OperationState) *Operation {
	if !st.Loc.Known() {
		st.Loc = b.loc
	}
	op := NewOperation(st)
	if b.block != nil {
		b.block.Append(op)
	}
	return op
}
