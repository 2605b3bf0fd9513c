package mlir

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ParseError reports malformed module text.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("mlir parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Parse reads a module printed in the generic operation form.
func Parse(src string) (*Module, error) {
	toks, err := lexMLIR(src)
	if err != nil {
		return nil, err
	}
	p := &irParser{toks: toks, regions: make(map[*Region]*blockScope)}
	holder := NewBlock()
	if err := p.parseOp(holder, newValueScope()); err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != mtEOF {
		return nil, p.errorf(tok, "unexpected %s after module", tok)
	}
	if len(holder.Ops) != 1 {
		return nil, &ParseError{Line: 1, Col: 1, Msg: "expected a single top-level operation"}
	}
	op := holder.Ops[0]
	holder.Remove(op)
	m, ok := ModuleFromOp(op)
	if !ok {
		return nil, &ParseError{Line: 1, Col: 1, Msg: fmt.Sprintf("top-level operation is %q, want %q", op.Name, ModuleOpName)}
	}
	return m, nil
}

type mtKind uint8

const (
	mtEOF mtKind = iota
	mtValue
	mtBlock
	mtSymbol
	mtString
	mtNumber
	mtIdent
	mtDialectType
	mtPunct
	mtArrow
)

type mtoken struct {
	kind mtKind
	text string
	line int
	col  int
}

func (t mtoken) String() string {
	if t.kind == mtEOF {
		return "end of input"
	}
	return strconv.Quote(t.text)
}

func isNameChar(c byte) bool {
	return c == '_' || c == '$' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func lexMLIR(src string) ([]mtoken, error) {
	var toks []mtoken
	line, col := 1, 1
	i := 0
	adv := func(n int) {
		for k := 0; k < n && i < len(src); k++ {
			if src[i] == '\n' {
				line++
				col = 1
			} else {
				col++
			}
			i++
		}
	}
	scanName := func(start int) int {
		j := start
		for j < len(src) && isNameChar(src[j]) {
			j++
		}
		return j
	}
	scanString := func(start int) (int, error) {
		j := start + 1
		for j < len(src) {
			switch src[j] {
			case '\\':
				j += 2
				continue
			case '"':
				return j + 1, nil
			case '\n':
				return 0, &ParseError{Line: line, Col: col, Msg: "unterminated string"}
			}
			j++
		}
		return 0, &ParseError{Line: line, Col: col, Msg: "unterminated string"}
	}
	for {
		for i < len(src) && (src[i] == ' ' || src[i] == '\t' || src[i] == '\n' || src[i] == '\r') {
			adv(1)
		}
		if i+1 < len(src) && src[i] == '/' && src[i+1] == '/' {
			for i < len(src) && src[i] != '\n' {
				adv(1)
			}
			continue
		}
		tok := mtoken{line: line, col: col}
		if i >= len(src) {
			tok.kind = mtEOF
			toks = append(toks, tok)
			return toks, nil
		}
		c := src[i]
		var end int
		switch {
		case c == '%' || c == '^':
			end = scanName(i + 1)
			if end == i+1 {
				return nil, &ParseError{Line: line, Col: col, Msg: fmt.Sprintf("expected name after %q", c)}
			}
			tok.kind = mtValue
			if c == '^' {
				tok.kind = mtBlock
			}
			tok.text = src[i:end]
		case c == '@':
			tok.kind = mtSymbol
			if i+1 < len(src) && src[i+1] == '"' {
				e, err := scanString(i + 1)
				if err != nil {
					return nil, err
				}
				s, err := strconv.Unquote(src[i+1 : e])
				if err != nil {
					return nil, &ParseError{Line: line, Col: col, Msg: "invalid quoted symbol"}
				}
				tok.text = s
				end = e
			} else {
				end = scanName(i + 1)
				tok.text = src[i+1 : end]
			}
		case c == '"':
			e, err := scanString(i)
			if err != nil {
				return nil, err
			}
			s, err := strconv.Unquote(src[i:e])
			if err != nil {
				return nil, &ParseError{Line: line, Col: col, Msg: "invalid string literal"}
			}
			tok.kind = mtString
			tok.text = s
			end = e
		case c == '!':
			end = scanName(i + 1)
			tok.kind = mtDialectType
			tok.text = src[i:end]
		case c == '-' && i+1 < len(src) && src[i+1] == '>':
			tok.kind = mtArrow
			tok.text = "->"
			end = i + 2
		case c == '-' || (c >= '0' && c <= '9'):
			end = i + 1
			for end < len(src) && src[end] >= '0' && src[end] <= '9' {
				end++
			}
			tok.kind = mtNumber
			tok.text = src[i:end]
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			end = scanName(i)
			tok.kind = mtIdent
			tok.text = src[i:end]
		case strings.IndexByte("(){}[]<>,:=", c) >= 0:
			end = i + 1
			tok.kind = mtPunct
			tok.text = string(c)
		default:
			return nil, &ParseError{Line: line, Col: col, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
		toks = append(toks, tok)
		adv(end - i)
	}
}

type valueScope struct {
	defs    map[string]Value
	forward map[string]*OpResult
}

func newValueScope() *valueScope {
	return &valueScope{defs: make(map[string]Value), forward: make(map[string]*OpResult)}
}

type blockScope struct {
	blocks  map[string]*Block
	defined map[string]bool
}

type irParser struct {
	toks    []mtoken
	pos     int
	regions map[*Region]*blockScope
}

func (p *irParser) peek() mtoken { return p.toks[p.pos] }

func (p *irParser) bump() mtoken {
	tok := p.toks[p.pos]
	if tok.kind != mtEOF {
		p.pos++
	}
	return tok
}

func (p *irParser) errorf(tok mtoken, format string, args ...any) error {
	return &ParseError{Line: tok.line, Col: tok.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *irParser) isPunct(s string) bool {
	tok := p.peek()
	return tok.kind == mtPunct && tok.text == s
}

func (p *irParser) expect(s string) error {
	tok := p.bump()
	if tok.kind != mtPunct || tok.text != s {
		return p.errorf(tok, "expected %q, found %s", s, tok)
	}
	return nil
}

func (p *irParser) parseOp(block *Block, scope *valueScope) error {
	var resultNames []mtoken
	for p.peek().kind == mtValue {
		resultNames = append(resultNames, p.bump())
		if p.isPunct(",") {
			p.bump()
		}
	}
	if len(resultNames) > 0 {
		if err := p.expect("="); err != nil {
			return err
		}
	}
	nameTok := p.bump()
	if nameTok.kind != mtString {
		return p.errorf(nameTok, "expected quoted operation name, found %s", nameTok)
	}
	st := OperationState{Name: nameTok.text}

	if err := p.expect("("); err != nil {
		return err
	}
	var operandNames []mtoken
	for !p.isPunct(")") {
		tok := p.bump()
		if tok.kind != mtValue {
			return p.errorf(tok, "expected operand, found %s", tok)
		}
		operandNames = append(operandNames, tok)
		if p.isPunct(",") {
			p.bump()
		}
	}
	p.bump()

	var succNames []mtoken
	if p.isPunct("[") {
		p.bump()
		for !p.isPunct("]") {
			tok := p.bump()
			if tok.kind != mtBlock {
				return p.errorf(tok, "expected successor block, found %s", tok)
			}
			succNames = append(succNames, tok)
			if p.isPunct(",") {
				p.bump()
			}
		}
		p.bump()
	}

	if p.isPunct("(") {
		p.bump()
		inner := scope
		if nameTok.text == FuncOpName || nameTok.text == ModuleOpName {
			inner = newValueScope()
		}
		for !p.isPunct(")") {
			r, err := p.parseRegion(inner)
			if err != nil {
				return err
			}
			st.Regions = append(st.Regions, r)
			if p.isPunct(",") {
				p.bump()
			}
		}
		p.bump()
		if inner != scope {
			if err := p.resolveForward(inner, st.Regions, nameTok); err != nil {
				return err
			}
		}
	}

	if p.isPunct("{") {
		attrs, err := p.parseAttrDict()
		if err != nil {
			return err
		}
		st.Attrs = attrs
	}

	colon := p.peek()
	if err := p.expect(":"); err != nil {
		return err
	}
	ty, err := p.parseType(false)
	if err != nil {
		return err
	}
	fnType, ok := ty.(FunctionType)
	if !ok {
		return p.errorf(colon, "expected function type for %q", st.Name)
	}
	if len(fnType.Inputs) != len(operandNames) {
		return p.errorf(colon, "%q has %d operands but its type lists %d", st.Name, len(operandNames), len(fnType.Inputs))
	}
	if len(fnType.Results) != len(resultNames) {
		return p.errorf(colon, "%q defines %d results but its type lists %d", st.Name, len(resultNames), len(fnType.Results))
	}
	st.ResultTypes = fnType.Results

	if p.peek().kind == mtIdent && p.peek().text == "loc" {
		loc, err := p.parseLoc()
		if err != nil {
			return err
		}
		st.Loc = loc
	}

	operands := make([]Value, len(operandNames))
	for i, tok := range operandNames {
		v, err := p.lookupValue(scope, tok, fnType.Inputs[i])
		if err != nil {
			return err
		}
		operands[i] = v
	}

	var segs DenseI32ArrayAttr
	kept := st.Attrs[:0]
	for _, a := range st.Attrs {
		if a.Name == segmentSizesAttr && len(succNames) > 0 {
			d, ok := a.Value.(DenseI32ArrayAttr)
			if !ok {
				return p.errorf(nameTok, "%s must be a dense i32 array", segmentSizesAttr)
			}
			segs = d
			continue
		}
		kept = append(kept, a)
	}
	st.Attrs = kept

	if len(succNames) == 0 {
		st.Operands = operands
	} else {
		if segs == nil {
			if len(operands) > 0 {
				return p.errorf(nameTok, "%q has successors and operands but no %s", st.Name, segmentSizesAttr)
			}
			segs = make(DenseI32ArrayAttr, len(succNames)+1)
		}
		if len(segs) != len(succNames)+1 {
			return p.errorf(nameTok, "%s has %d entries, want %d", segmentSizesAttr, len(segs), len(succNames)+1)
		}
		total := 0
		for _, s := range segs {
			total += int(s)
		}
		if total != len(operands) {
			return p.errorf(nameTok, "%s covers %d operands, have %d", segmentSizesAttr, total, len(operands))
		}
		cur := int(segs[0])
		st.Operands = operands[:cur]
		bs := p.currentBlocks(block)
		for i, tok := range succNames {
			n := int(segs[i+1])
			st.Successors = append(st.Successors, Successor{
				Block: bs.ref(tok.text),
				Args:  operands[cur : cur+n],
			})
			cur += n
		}
	}

	op := NewOperation(st)
	block.Append(op)
	for i, tok := range resultNames {
		if err := p.define(scope, tok, op.Results[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *irParser) currentBlocks(block *Block) *blockScope {
	if bs, ok := p.regions[block.parent]; ok && block.parent != nil {
		return bs
	}
	return &blockScope{blocks: make(map[string]*Block), defined: make(map[string]bool)}
}

func (bs *blockScope) ref(name string) *Block {
	if b, ok := bs.blocks[name]; ok {
		return b
	}
	b := NewBlock()
	bs.blocks[name] = b
	return b
}

func (p *irParser) lookupValue(scope *valueScope, tok mtoken, t Type) (Value, error) {
	if v, ok := scope.defs[tok.text]; ok {
		if !TypeEqual(v.Type(), t) {
			return nil, p.errorf(tok, "use of %s with type %s, but it was defined with type %s", tok.text, t, v.Type())
		}
		return v, nil
	}
	if fwd, ok := scope.forward[tok.text]; ok {
		if !TypeEqual(fwd.typ, t) {
			return nil, p.errorf(tok, "use of %s with type %s, but it was first used with type %s", tok.text, t, fwd.typ)
		}
		return fwd, nil
	}
	fwd := &OpResult{typ: t}
	scope.forward[tok.text] = fwd
	return fwd, nil
}

func (p *irParser) define(scope *valueScope, tok mtoken, v Value) error {
	if _, ok := scope.defs[tok.text]; ok {
		return p.errorf(tok, "redefinition of %s", tok.text)
	}
	scope.defs[tok.text] = v
	return nil
}

func (p *irParser) resolveForward(scope *valueScope, regions []*Region, at mtoken) error {
	if len(scope.forward) == 0 {
		return nil
	}
	holder := NewOperation(OperationState{Name: "parse.holder"})
	holder.Regions = regions
	for name, fwd := range scope.forward {
		def, ok := scope.defs[name]
		if !ok {
			return p.errorf(at, "use of undefined value %s", name)
		}
		if !TypeEqual(def.Type(), fwd.typ) {
			return p.errorf(at, "value %s defined with type %s but used as %s", name, def.Type(), fwd.typ)
		}
		ReplaceAllUsesWith(holder, fwd, def)
	}
	return nil
}

func (p *irParser) parseRegion(scope *valueScope) (*Region, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	r := &Region{}
	bs := &blockScope{blocks: make(map[string]*Block), defined: make(map[string]bool)}
	p.regions[r] = bs
	var cur *Block
	for !p.isPunct("}") {
		if p.peek().kind == mtEOF {
			return nil, p.errorf(p.peek(), "unterminated region")
		}
		if p.peek().kind == mtBlock {
			label := p.bump()
			if bs.defined[label.text] {
				return nil, p.errorf(label, "redefinition of block %s", label.text)
			}
			bs.defined[label.text] = true
			cur = bs.ref(label.text)
			r.Append(cur)
			if p.isPunct("(") {
				p.bump()
				for !p.isPunct(")") {
					nameTok := p.bump()
					if nameTok.kind != mtValue {
						return nil, p.errorf(nameTok, "expected block argument, found %s", nameTok)
					}
					if err := p.expect(":"); err != nil {
						return nil, err
					}
					t, err := p.parseType(false)
					if err != nil {
						return nil, err
					}
					if err := p.define(scope, nameTok, cur.AddArgument(t)); err != nil {
						return nil, err
					}
					if p.isPunct(",") {
						p.bump()
					}
				}
				p.bump()
			}
			if err := p.expect(":"); err != nil {
				return nil, err
			}
			continue
		}
		if cur == nil {
			cur = NewBlock()
			r.Append(cur)
		}
		if err := p.parseOp(cur, scope); err != nil {
			return nil, err
		}
	}
	closing := p.bump()
	for name := range bs.blocks {
		if !bs.defined[name] {
			return nil, p.errorf(closing, "reference to undefined block %s", name)
		}
	}
	delete(p.regions, r)
	return r, nil
}

func (p *irParser) parseAttrDict() ([]NamedAttr, error) {
	p.bump()
	var attrs []NamedAttr
	for !p.isPunct("}") {
		nameTok := p.bump()
		if nameTok.kind != mtIdent && nameTok.kind != mtString {
			return nil, p.errorf(nameTok, "expected attribute name, found %s", nameTok)
		}
		if !p.isPunct("=") {
			attrs = append(attrs, NamedAttr{Name: nameTok.text, Value: UnitAttr{}})
		} else {
			p.bump()
			v, err := p.parseAttr()
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, NamedAttr{Name: nameTok.text, Value: v})
		}
		if p.isPunct(",") {
			p.bump()
		}
	}
	p.bump()
	return attrs, nil
}

func (p *irParser) parseAttr() (Attribute, error) {
	tok := p.peek()
	switch tok.kind {
	case mtNumber:
		p.bump()
		v, ok := new(big.Int).SetString(tok.text, 10)
		if !ok {
			return nil, p.errorf(tok, "invalid integer %s", tok.text)
		}
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		t, err := p.parseType(false)
		if err != nil {
			return nil, err
		}
		return IntegerAttr{Value: v, Type: t}, nil
	case mtString:
		p.bump()
		return StringAttr(tok.text), nil
	case mtSymbol:
		p.bump()
		return SymbolRefAttr(tok.text), nil
	case mtIdent:
		switch tok.text {
		case "unit":
			p.bump()
			return UnitAttr{}, nil
		case "array":
			return p.parseDenseArray()
		}
	case mtPunct:
		if tok.text == "[" {
			p.bump()
			var out ArrayAttr
			for !p.isPunct("]") {
				a, err := p.parseAttr()
				if err != nil {
					return nil, err
				}
				out = append(out, a)
				if p.isPunct(",") {
					p.bump()
				}
			}
			p.bump()
			return out, nil
		}
	}
	t, err := p.parseType(false)
	if err != nil {
		return nil, err
	}
	return TypeAttr{Type: t}, nil
}

func (p *irParser) parseDenseArray() (Attribute, error) {
	p.bump()
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	elem := p.bump()
	if elem.kind != mtIdent || (elem.text != "i32" && elem.text != "i64") {
		return nil, p.errorf(elem, "unsupported dense array element %s", elem)
	}
	var vals []int64
	if p.isPunct(":") {
		p.bump()
		for !p.isPunct(">") {
			tok := p.bump()
			if tok.kind != mtNumber {
				return nil, p.errorf(tok, "expected integer, found %s", tok)
			}
			bits := 64
			if elem.text == "i32" {
				bits = 32
			}
			v, err := strconv.ParseInt(tok.text, 10, bits)
			if err != nil {
				return nil, p.errorf(tok, "integer %s out of range for %s", tok.text, elem.text)
			}
			vals = append(vals, v)
			if p.isPunct(",") {
				p.bump()
			}
		}
	}
	if err := p.expect(">"); err != nil {
		return nil, err
	}
	if elem.text == "i64" {
		return DenseI64ArrayAttr(append([]int64{}, vals...)), nil
	}
	out := make(DenseI32ArrayAttr, len(vals))
	for i, v := range vals {
		out[i] = int32(v)
	}
	return out, nil
}

func (p *irParser) parseType(nested bool) (Type, error) {
	tok := p.bump()
	switch tok.kind {
	case mtIdent:
		if strings.HasPrefix(tok.text, "i") {
			if w, err := strconv.Atoi(tok.text[1:]); err == nil && w > 0 {
				return I(w), nil
			}
		}
		if nested {
			return p.parseLLVMType(tok, tok.text)
		}
	case mtDialectType:
		if rest, ok := strings.CutPrefix(tok.text, "!llvm."); ok {
			return p.parseLLVMType(tok, rest)
		}
	case mtPunct:
		if tok.text == "(" {
			inputs, err := p.parseTypeListRest(nested)
			if err != nil {
				return nil, err
			}
			arrow := p.bump()
			if arrow.kind != mtArrow {
				return nil, p.errorf(arrow, "expected \"->\" in function type, found %s", arrow)
			}
			var results []Type
			if p.isPunct("(") {
				p.bump()
				results, err = p.parseTypeListRest(nested)
				if err != nil {
					return nil, err
				}
			} else {
				t, err := p.parseType(nested)
				if err != nil {
					return nil, err
				}
				results = []Type{t}
			}
			return FunctionType{Inputs: inputs, Results: results}, nil
		}
	}
	return nil, p.errorf(tok, "expected type, found %s", tok)
}

// parseTypeListRest reads "T, T)" after an opening parenthesis.
func (p *irParser) parseTypeListRest(nested bool) ([]Type, error) {
	var out []Type
	for !p.isPunct(")") {
		t, err := p.parseType(nested)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if p.isPunct(",") {
			p.bump()
		} else if !p.isPunct(")") {
			return nil, p.errorf(p.peek(), "expected \",\" or \")\" in type list, found %s", p.peek())
		}
	}
	p.bump()
	return out, nil
}

func (p *irParser) parseLLVMType(tok mtoken, name string) (Type, error) {
	switch name {
	case "ptr":
		return Ptr, nil
	case "struct":
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		if err := p.expect("("); err != nil {
			return nil, err
		}
		fields, err := p.parseTypeListRest(true)
		if err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		return StructType{Fields: fields}, nil
	case "array":
		if err := p.expect("<"); err != nil {
			return nil, err
		}
		n := p.bump()
		if n.kind != mtNumber {
			return nil, p.errorf(n, "expected array length, found %s", n)
		}
		length, err := strconv.Atoi(n.text)
		if err != nil || length < 0 {
			return nil, p.errorf(n, "invalid array length %s", n.text)
		}
		x := p.bump()
		if x.kind != mtIdent || x.text != "x" {
			return nil, p.errorf(x, "expected \"x\" in array type, found %s", x)
		}
		elem, err := p.parseType(true)
		if err != nil {
			return nil, err
		}
		if err := p.expect(">"); err != nil {
			return nil, err
		}
		return ArrayType{Len: length, Elem: elem}, nil
	}
	return nil, p.errorf(tok, "unknown llvm type %q", name)
}

func (p *irParser) parseLoc() (Location, error) {
	p.bump()
	if err := p.expect("("); err != nil {
		return Location{}, err
	}
	tok := p.bump()
	var loc Location
	switch tok.kind {
	case mtIdent:
		if tok.text != "unknown" {
			return Location{}, p.errorf(tok, "unsupported location %s", tok)
		}
	case mtString:
		loc.File = tok.text
		for _, dst := range []*int{&loc.Line, &loc.Col} {
			if err := p.expect(":"); err != nil {
				return Location{}, err
			}
			n := p.bump()
			v, err := strconv.Atoi(n.text)
			if n.kind != mtNumber || err != nil {
				return Location{}, p.errorf(n, "expected location number, found %s", n)
			}
			*dst = v
		}
	default:
		return Location{}, p.errorf(tok, "expected location, found %s", tok)
	}
	if err := p.expect(")"); err != nil {
		return Location{}, err
	}
	return loc, nil
}
