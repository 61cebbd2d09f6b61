// Package parser implements TILT's parser (spec component C2): an
// LALR(1)-shaped grammar (spec §4.2) consumed here by straightforward
// recursive descent over the token stream produced by package lexer.
// There is no error recovery — the first unexpected token is a fatal
// Error carrying its span (spec §4.2, §7).
package parser

import (
	"fmt"
	"strconv"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/lexer"
	"github.com/tiltlang/tilt/token"
)

// Error reports a parse error at the offending token's span.
type Error struct {
	Start, End token.Pos
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Start, e.End, e.Message)
}

// Parse lexes and parses src into an ast.Program, or returns the
// first lexical or parse Error.
func Parse(src string) (*ast.Program, error) {
	toks, err := lexer.Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks []token.Token
	pos  int
}

func (p *parser) cur() token.Token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool       { return p.cur().Kind == token.EOF }
func (p *parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) errorf(tok token.Token, format string, args ...interface{}) error {
	return &Error{Start: tok.Start, End: tok.End, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(k token.Kind) (token.Token, error) {
	if p.cur().Kind != k {
		return token.Token{}, p.errorf(p.cur(), "expected %s, found %s", k, p.cur().Kind)
	}
	return p.advance(), nil
}

func (p *parser) parseProgram() (*ast.Program, error) {
	prog := &ast.Program{}
	for !p.atEOF() {
		switch p.cur().Kind {
		case token.Import:
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			prog.Imports = append(prog.Imports, imp)
		case token.Fn:
			fn, err := p.parseFuncDef()
			if err != nil {
				return nil, err
			}
			prog.Funcs = append(prog.Funcs, fn)
		default:
			return nil, p.errorf(p.cur(), "expected 'import' or 'fn', found %s", p.cur().Kind)
		}
	}
	return prog, nil
}

func (p *parser) parseImport() (*ast.Import, error) {
	start := p.advance() // 'import'

	mod, err := p.expect(token.String)
	if err != nil {
		return nil, err
	}
	name, err := p.expect(token.String)
	if err != nil {
		return nil, err
	}

	var callConv string
	if p.cur().Kind == token.String {
		callConv = p.advance().Text
	}

	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Arrow); err != nil {
		return nil, err
	}
	ret, err := p.parseType()
	if err != nil {
		return nil, err
	}

	return &ast.Import{
		Module: mod.Text, Name: name.Text, CallConv: callConv,
		Params: params, Return: ret, Pos: start.Start,
	}, nil
}

func (p *parser) parseFuncDef() (*ast.FunctionDef, error) {
	start := p.advance() // 'fn'
	name, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParamList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Arrow); err != nil {
		return nil, err
	}
	ret, err := p.parseType()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.LBrace); err != nil {
		return nil, err
	}

	var blocks []*ast.Block
	for p.cur().Kind != token.RBrace {
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if len(blocks) == 0 {
		return nil, p.errorf(p.cur(), "function %q has no blocks", name.Text)
	}
	if _, err := p.expect(token.RBrace); err != nil {
		return nil, err
	}

	return &ast.FunctionDef{Name: name.Text, Params: params, Return: ret, Blocks: blocks, Pos: start.Start}, nil
}

func (p *parser) parseParamList() ([]ast.TypedIdent, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var params []ast.TypedIdent
	for p.cur().Kind != token.RParen {
		if len(params) > 0 {
			if _, err := p.expect(token.Comma); err != nil {
				return nil, err
			}
		}
		ti, err := p.parseTypedIdent()
		if err != nil {
			return nil, err
		}
		params = append(params, ti)
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *parser) parseTypedIdent() (ast.TypedIdent, error) {
	name, err := p.expect(token.Ident)
	if err != nil {
		return ast.TypedIdent{}, err
	}
	if _, err := p.expect(token.Colon); err != nil {
		return ast.TypedIdent{}, err
	}
	typ, err := p.parseType()
	if err != nil {
		return ast.TypedIdent{}, err
	}
	return ast.TypedIdent{Name: name.Text, Type: typ, Pos: name.Start}, nil
}

func (p *parser) parseType() (ast.Type, error) {
	tok := p.cur()
	typ, ok := ast.TokenToType(tok.Kind)
	if !ok {
		return 0, p.errorf(tok, "expected a type, found %s", tok.Kind)
	}
	p.advance()
	return typ, nil
}

func (p *parser) parseBlock() (*ast.Block, error) {
	label, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}

	var params []ast.TypedIdent
	if p.cur().Kind == token.LParen {
		params, err = p.parseParamList()
		if err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(token.Colon); err != nil {
		return nil, err
	}

	b := &ast.Block{Label: label.Text, Params: params, Pos: label.Start}
	for {
		switch p.cur().Kind {
		case token.Ret:
			term, err := p.parseRet()
			if err != nil {
				return nil, err
			}
			b.Term = term
			return b, nil
		case token.Br:
			term, err := p.parseBr()
			if err != nil {
				return nil, err
			}
			b.Term = term
			return b, nil
		case token.BrIf:
			term, err := p.parseBrIf()
			if err != nil {
				return nil, err
			}
			b.Term = term
			return b, nil
		default:
			instr, err := p.parseInstr()
			if err != nil {
				return nil, err
			}
			b.Instrs = append(b.Instrs, instr)
		}
	}
}

// parseInstr parses either `TypedIdent '=' Expr` (assigning) or a bare
// `Expr` (expression-statement). Both forms start with an identifier,
// so we look ahead for ':' to disambiguate (spec §4.2 grammar).
func (p *parser) parseInstr() (*ast.Instr, error) {
	if p.cur().Kind == token.Ident && p.peekIsColon() {
		dest, err := p.parseTypedIdent()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.Equals); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ast.Instr{Dest: &dest, Expr: expr, Pos: dest.Pos}, nil
	}

	pos := p.cur().Start
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Instr{Expr: expr, Pos: pos}, nil
}

func (p *parser) peekIsColon() bool {
	return p.pos+1 < len(p.toks) && p.toks[p.pos+1].Kind == token.Colon
}

func (p *parser) parseExpr() (ast.Expr, error) {
	tok := p.cur()
	switch tok.Kind {
	case token.Call:
		p.advance()
		callee, err := p.expect(token.Ident)
		if err != nil {
			return nil, err
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &ast.CallExpr{Callee: callee.Text, Args: args, Explicit: true, Pos: tok.Start}, nil
	case token.Ident:
		p.advance()
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		return &ast.CallExpr{Callee: tok.Text, Args: args, Explicit: false, Pos: tok.Start}, nil
	case token.Int:
		p.advance()
		v, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid integer literal %q: %s", tok.Text, err)
		}
		return &ast.LitExpr{Value: v, Pos: tok.Start}, nil
	default:
		return nil, p.errorf(tok, "expected an expression, found %s", tok.Kind)
	}
}

func (p *parser) parseArgs() ([]ast.Value, error) {
	if _, err := p.expect(token.LParen); err != nil {
		return nil, err
	}
	var args []ast.Value
	for p.cur().Kind != token.RParen {
		if len(args) > 0 {
			if _, err := p.expect(token.Comma); err != nil {
				return nil, err
			}
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	if _, err := p.expect(token.RParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parseValue() (ast.Value, error) {
	tok := p.cur()
	switch tok.Kind {
	case token.Ident:
		p.advance()
		return ast.Value{Kind: ast.ValIdent, Name: tok.Text, Pos: tok.Start}, nil
	case token.Int:
		p.advance()
		v, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return ast.Value{}, p.errorf(tok, "invalid integer literal %q: %s", tok.Text, err)
		}
		return ast.Value{Kind: ast.ValInt, Int: v, Pos: tok.Start}, nil
	default:
		return ast.Value{}, p.errorf(tok, "expected a value, found %s", tok.Kind)
	}
}

// parseRet accepts both `ret v` and `ret (v)` (spec §4.2).
func (p *parser) parseRet() (*ast.RetTerm, error) {
	start := p.advance() // 'ret'
	if p.cur().Kind == token.LParen {
		p.advance()
		if p.cur().Kind == token.RParen {
			p.advance()
			return &ast.RetTerm{Pos: start.Start}, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(token.RParen); err != nil {
			return nil, err
		}
		return &ast.RetTerm{Value: &v, Pos: start.Start}, nil
	}
	if p.cur().Kind == token.RBrace || p.atEOF() {
		return &ast.RetTerm{Pos: start.Start}, nil
	}
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &ast.RetTerm{Value: &v, Pos: start.Start}, nil
}

func (p *parser) parseBr() (*ast.BrTerm, error) {
	start := p.advance() // 'br'
	target, err := p.expect(token.Ident)
	if err != nil {
		return nil, err
	}
	var args []ast.Value
	if p.cur().Kind == token.LParen {
		args, err = p.parseArgs()
		if err != nil {
			return nil, err
		}
	}
	return &ast.BrTerm{Target: target.Text, Args: args, Pos: start.Start}, nil
}

func (p *parser) parseBrIf() (*ast.BrIfTerm, error) {
	start := p.advance() // 'br_if'
	cond, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Comma); err != nil {
		return nil, err
	}
	trueTarget, trueArgs, err := p.parseBlockTarget()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(token.Comma); err != nil {
		return nil, err
	}
	falseTarget, falseArgs, err := p.parseBlockTarget()
	if err != nil {
		return nil, err
	}
	return &ast.BrIfTerm{
		Cond: cond,
		TrueTarget: trueTarget, TrueArgs: trueArgs,
		FalseTarget: falseTarget, FalseArgs: falseArgs,
		Pos: start.Start,
	}, nil
}

func (p *parser) parseBlockTarget() (string, []ast.Value, error) {
	name, err := p.expect(token.Ident)
	if err != nil {
		return "", nil, err
	}
	var args []ast.Value
	if p.cur().Kind == token.LParen {
		args, err = p.parseArgs()
		if err != nil {
			return "", nil, err
		}
	}
	return name.Text, args, nil
}
