// Package token defines the lexical token kinds produced by the lexer
// (spec component C1) and consumed by the parser (C2).
package token

import "fmt"

// Kind identifies the lexical class of a Token.
type Kind int

const (
	Illegal Kind = iota
	EOF

	Ident  // identifier or operation mnemonic, e.g. "i32.add", "entry", "sum_array"
	Int    // integer literal, e.g. "42", "-7"
	String // double-quoted string literal (unescaped value stored separately)

	// Keywords
	Fn
	Import
	Ret
	Br
	BrIf
	Phi
	Call

	// Type names
	I32
	I64
	F32
	F64
	Usize
	Void

	// Punctuation
	LBrace   // {
	RBrace   // }
	LParen   // (
	RParen   // )
	LBracket // [
	RBracket // ]
	Colon    // :
	Equals   // =
	Comma    // ,
	Arrow    // ->
)

var names = map[Kind]string{
	Illegal: "ILLEGAL", EOF: "EOF",
	Ident: "IDENT", Int: "INT", String: "STRING",
	Fn: "fn", Import: "import", Ret: "ret", Br: "br", BrIf: "br_if", Phi: "phi", Call: "call",
	I32: "i32", I64: "i64", F32: "f32", F64: "f64", Usize: "usize", Void: "void",
	LBrace: "{", RBrace: "}", LParen: "(", RParen: ")", LBracket: "[", RBracket: "]",
	Colon: ":", Equals: "=", Comma: ",", Arrow: "->",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// keywords maps the fixed keyword spellings to their Kind. Identifiers
// that don't match one of these (including every "<type>.<op>" mnemonic)
// lex as Ident; the parser and lowerer are responsible for interpreting
// their text.
var keywords = map[string]Kind{
	"fn": Fn, "import": Import, "ret": Ret, "br": Br, "br_if": BrIf, "phi": Phi, "call": Call,
	"i32": I32, "i64": I64, "f32": F32, "f64": F64, "usize": Usize, "void": Void,
}

// Lookup classifies word as a keyword/type-name Kind, or Ident if it is
// neither.
func Lookup(word string) Kind {
	if k, ok := keywords[word]; ok {
		return k
	}
	return Ident
}

// Pos is a byte offset into the source buffer a Token was lexed from.
type Pos int

// Token is a single lexeme: its kind, its span in the source buffer
// [Start, End), and (for Ident/Int/String) the text itself. For
// Ident/Int, Text borrows the source buffer — it is only valid as long
// as the buffer that produced it is alive (spec §3.5); for String it is
// a newly built string holding the unescaped content.
type Token struct {
	Kind  Kind
	Start Pos
	End   Pos
	Text  string // raw text for Ident/Int; unescaped content for String
}

func (t Token) String() string {
	if t.Text != "" {
		return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Text, t.Start, t.End)
	}
	return fmt.Sprintf("%s@%d:%d", t.Kind, t.Start, t.End)
}
