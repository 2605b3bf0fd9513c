package sierra

import (
	"fmt"
	"math/big"
	"strconv"
)

// Parse reads a Sierra program in its textual form.
//
// Declarations and statements may appear in any order; statements are
// numbered in order of appearance.
func Parse(src string) (*Program, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, prog: &Program{}}
	if err := p.parseProgram(); err != nil {
		return nil, err
	}
	return p.prog, nil
}

type parser struct {
	toks []token
	pos  int
	prog *Program
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) bump() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &ParseError{Line: tok.line, Col: tok.col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isPunct(text string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.text == text
}

func (p *parser) expectPunct(text string) error {
	tok := p.bump()
	if tok.kind != tokPunct || tok.text != text {
		return p.errorf(tok, "expected %q, found %s", text, tok)
	}
	return nil
}

func (p *parser) expectArrow() error {
	tok := p.bump()
	if tok.kind != tokArrow {
		return p.errorf(tok, "expected \"->\", found %s", tok)
	}
	return nil
}

func (p *parser) parseProgram() error {
	for p.peek().kind != tokEOF {
		tok := p.peek()
		switch {
		case tok.kind == tokIdent && tok.text == "type" && !p.isCallAhead():
			if err := p.parseTypeDecl(); err != nil {
				return err
			}
		case tok.kind == tokIdent && tok.text == "libfunc" && !p.isCallAhead():
			if err := p.parseLibfuncDecl(); err != nil {
				return err
			}
		case tok.kind == tokIdent && tok.text == "return" && p.peekAt(1).kind == tokPunct && p.peekAt(1).text == "(":
			if err := p.parseReturn(); err != nil {
				return err
			}
		default:
			if err := p.parseStatementOrFunction(); err != nil {
				return err
			}
		}
	}
	return nil
}

// isCallAhead reports whether the keyword at the cursor is actually used as a
// libfunc or function name.
func (p *parser) isCallAhead() bool {
	next := p.peekAt(1)
	return next.kind == tokPunct && (next.text == "(" || next.text == "@")
}

func (p *parser) parseTypeDecl() error {
	p.bump()
	id, err := p.parseID()
	if err != nil {
		return err
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	long, err := p.parseLongID()
	if err != nil {
		return err
	}
	decl := TypeDeclaration{ID: TypeID(id), LongID: long}
	if p.isPunct("[") {
		attrs, err := p.parseDeclAttrs()
		if err != nil {
			return err
		}
		decl.Attrs = attrs
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	p.prog.TypeDeclarations = append(p.prog.TypeDeclarations, decl)
	return nil
}

func (p *parser) parseDeclAttrs() (map[string]string, error) {
	if err := p.expectPunct("["); err != nil {
		return nil, err
	}
	attrs := make(map[string]string)
	for !p.isPunct("]") {
		key := p.bump()
		if key.kind != tokIdent {
			return nil, p.errorf(key, "expected attribute name, found %s", key)
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		val := p.bump()
		if val.kind != tokIdent && val.kind != tokNumber {
			return nil, p.errorf(val, "expected attribute value, found %s", val)
		}
		attrs[key.text] = val.text
		if p.isPunct(",") {
			p.bump()
		}
	}
	p.bump()
	return attrs, nil
}

func (p *parser) parseLibfuncDecl() error {
	p.bump()
	id, err := p.parseID()
	if err != nil {
		return err
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	long, err := p.parseLongID()
	if err != nil {
		return err
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	p.prog.LibfuncDeclarations = append(p.prog.LibfuncDeclarations, LibfuncDeclaration{ID: LibfuncID(id), LongID: long})
	return nil
}

func (p *parser) parseReturn() error {
	p.bump()
	vars, err := p.parseVarList()
	if err != nil {
		return err
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	p.prog.Statements = append(p.prog.Statements, Statement{Kind: StatementReturn, Return: vars})
	return nil
}

func (p *parser) parseStatementOrFunction() error {
	start := p.peek()
	id, err := p.parseID()
	if err != nil {
		return err
	}
	if p.isPunct("@") {
		return p.parseFunctionRest(start, FunctionID(id))
	}
	args, err := p.parseVarList()
	if err != nil {
		return err
	}
	inv := Invocation{Libfunc: LibfuncID(id), Args: args}
	switch {
	case p.peek().kind == tokArrow:
		p.bump()
		results, err := p.parseVarList()
		if err != nil {
			return err
		}
		inv.Branches = []BranchInfo{{Target: BranchTarget{Fallthrough: true}, Results: results}}
	case p.isPunct("{"):
		p.bump()
		for !p.isPunct("}") {
			br, err := p.parseBranch()
			if err != nil {
				return err
			}
			inv.Branches = append(inv.Branches, br)
		}
		p.bump()
	default:
		return p.errorf(p.peek(), "expected \"->\" or \"{\" after invocation of %s, found %s", id, p.peek())
	}
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	p.prog.Statements = append(p.prog.Statements, Statement{Kind: StatementInvocation, Invocation: inv})
	return nil
}

func (p *parser) parseBranch() (BranchInfo, error) {
	tok := p.bump()
	var target BranchTarget
	switch {
	case tok.kind == tokIdent && tok.text == "fallthrough":
		target.Fallthrough = true
	case tok.kind == tokNumber:
		n, err := strconv.Atoi(tok.text)
		if err != nil || n < 0 {
			return BranchInfo{}, p.errorf(tok, "invalid branch target %s", tok.text)
		}
		target.Statement = StatementIdx(n)
	default:
		return BranchInfo{}, p.errorf(tok, "expected branch target, found %s", tok)
	}
	results, err := p.parseVarList()
	if err != nil {
		return BranchInfo{}, err
	}
	return BranchInfo{Target: target, Results: results}, nil
}

func (p *parser) parseFunctionRest(start token, id FunctionID) error {
	p.bump() // @
	entryTok := p.bump()
	if entryTok.kind != tokNumber {
		return p.errorf(entryTok, "expected entry statement index for function %s, found %s", id, entryTok)
	}
	entry, err := strconv.Atoi(entryTok.text)
	if err != nil || entry < 0 {
		return p.errorf(entryTok, "invalid entry statement index %s", entryTok.text)
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	fn := Function{ID: id, Entry: StatementIdx(entry)}
	for !p.isPunct(")") {
		v, err := p.parseVar()
		if err != nil {
			return err
		}
		if err := p.expectPunct(":"); err != nil {
			return err
		}
		ty, err := p.parseID()
		if err != nil {
			return err
		}
		fn.Params = append(fn.Params, Param{ID: v, Type: TypeID(ty)})
		if p.isPunct(",") {
			p.bump()
		} else if !p.isPunct(")") {
			return p.errorf(p.peek(), "expected \",\" or \")\" in parameters of %s, found %s", id, p.peek())
		}
	}
	p.bump()
	if err := p.expectArrow(); err != nil {
		return err
	}
	if err := p.expectPunct("("); err != nil {
		return err
	}
	for !p.isPunct(")") {
		ty, err := p.parseID()
		if err != nil {
			return err
		}
		fn.RetTypes = append(fn.RetTypes, TypeID(ty))
		if p.isPunct(",") {
			p.bump()
		} else if !p.isPunct(")") {
			return p.errorf(p.peek(), "expected \",\" or \")\" in results of %s, found %s", id, p.peek())
		}
	}
	p.bump()
	if err := p.expectPunct(";"); err != nil {
		return err
	}
	for _, existing := range p.prog.Functions {
		if existing.ID == fn.ID {
			return p.errorf(start, "function %s declared twice", fn.ID)
		}
	}
	p.prog.Functions = append(p.prog.Functions, fn)
	return nil
}

func (p *parser) parseVarList() ([]VarID, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var vars []VarID
	for !p.isPunct(")") {
		v, err := p.parseVar()
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
		if p.isPunct(",") {
			p.bump()
		} else if !p.isPunct(")") {
			return nil, p.errorf(p.peek(), "expected \",\" or \")\" in variable list, found %s", p.peek())
		}
	}
	p.bump()
	return vars, nil
}

func (p *parser) parseVar() (VarID, error) {
	if err := p.expectPunct("["); err != nil {
		return 0, err
	}
	tok := p.bump()
	if tok.kind != tokNumber {
		return 0, p.errorf(tok, "expected variable number, found %s", tok)
	}
	n, err := strconv.ParseUint(tok.text, 10, 64)
	if err != nil {
		return 0, p.errorf(tok, "invalid variable id %s", tok.text)
	}
	if err := p.expectPunct("]"); err != nil {
		return 0, err
	}
	return VarID(n), nil
}

// parseID reads a declaration or reference id and returns its canonical text.
func (p *parser) parseID() (string, error) {
	if p.isPunct("[") {
		open := p.bump()
		tok := p.bump()
		if tok.kind != tokNumber {
			return "", p.errorf(tok, "expected numeric id, found %s", tok)
		}
		n, err := strconv.ParseUint(tok.text, 10, 64)
		if err != nil {
			return "", p.errorf(open, "invalid numeric id %s", tok.text)
		}
		if err := p.expectPunct("]"); err != nil {
			return "", err
		}
		return "[" + strconv.FormatUint(n, 10) + "]", nil
	}
	long, err := p.parseLongID()
	if err != nil {
		return "", err
	}
	return long.String(), nil
}

func (p *parser) parseLongID() (LongID, error) {
	tok := p.bump()
	if tok.kind != tokIdent {
		return LongID{}, p.errorf(tok, "expected identifier, found %s", tok)
	}
	long := LongID{Generic: tok.text}
	if !p.isPunct("<") {
		return long, nil
	}
	p.bump()
	for !p.isPunct(">") {
		arg, err := p.parseGenericArg()
		if err != nil {
			return LongID{}, err
		}
		long.Args = append(long.Args, arg)
		if p.isPunct(",") {
			p.bump()
		} else if !p.isPunct(">") {
			return LongID{}, p.errorf(p.peek(), "expected \",\" or \">\" in generic arguments of %s, found %s", long.Generic, p.peek())
		}
	}
	p.bump()
	return long, nil
}

func (p *parser) parseGenericArg() (GenericArg, error) {
	tok := p.peek()
	if tok.kind == tokNumber {
		p.bump()
		v, ok := new(big.Int).SetString(tok.text, 10)
		if !ok {
			return GenericArg{}, p.errorf(tok, "invalid integer %s", tok.text)
		}
		return GenericArg{Kind: ArgValue, Value: v}, nil
	}
	if tok.kind == tokIdent && p.peekAt(1).kind == tokPunct && p.peekAt(1).text == "@" {
		var kind GenericArgKind
		switch tok.text {
		case "ut":
			kind = ArgUserType
		case "user":
			kind = ArgUserFunc
		case "lib":
			kind = ArgLibfunc
		default:
			return GenericArg{}, p.errorf(tok, "unknown generic argument prefix %q", tok.text)
		}
		p.bump()
		p.bump()
		if kind == ArgLibfunc {
			id, err := p.parseID()
			if err != nil {
				return GenericArg{}, err
			}
			return GenericArg{Kind: kind, Name: id}, nil
		}
		name := p.bump()
		if name.kind != tokIdent {
			return GenericArg{}, p.errorf(name, "expected path after %s@, found %s", tok.text, name)
		}
		return GenericArg{Kind: kind, Name: name.text}, nil
	}
	id, err := p.parseID()
	if err != nil {
		return GenericArg{}, err
	}
	return GenericArg{Kind: ArgType, Type: TypeID(id)}, nil
}
