package lexer_test

import (
	"testing"

	"github.com/tiltlang/tilt/lexer"
	"github.com/tiltlang/tilt/token"
)

func kinds(t *testing.T, src string) []token.Kind {
	t.Helper()
	toks, err := lexer.Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", src, err)
	}
	var ks []token.Kind
	for _, tok := range toks {
		ks = append(ks, tok.Kind)
	}
	return ks
}

func TestTokenizeFunctionHeader(t *testing.T) {
	got := kinds(t, "fn add(a: i32, b: i32) -> i32 {")
	want := []token.Kind{
		token.Fn, token.Ident, token.LParen,
		token.Ident, token.Colon, token.I32, token.Comma,
		token.Ident, token.Colon, token.I32, token.RParen,
		token.Arrow, token.I32, token.LBrace, token.EOF,
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMnemonicLexesAsSingleIdent(t *testing.T) {
	toks, err := lexer.Tokenize("i32.add")
	if err != nil {
		t.Fatal(err)
	}
	if len(toks) != 2 { // mnemonic + EOF
		t.Fatalf("got %d tokens, want 2: %v", len(toks), toks)
	}
	if toks[0].Kind != token.Ident || toks[0].Text != "i32.add" {
		t.Errorf("got %+v, want single Ident %q", toks[0], "i32.add")
	}
}

func TestNegativeIntLiteral(t *testing.T) {
	toks, err := lexer.Tokenize("-7")
	if err != nil {
		t.Fatal(err)
	}
	if toks[0].Kind != token.Int || toks[0].Text != "-7" {
		t.Errorf("got %+v, want Int(-7)", toks[0])
	}
}

func TestStringEscapes(t *testing.T) {
	toks, err := lexer.Tokenize(`"a\nb\"c"`)
	if err != nil {
		t.Fatal(err)
	}
	want := "a\nb\"c"
	if toks[0].Kind != token.String || toks[0].Text != want {
		t.Errorf("got %+v, want String(%q)", toks[0], want)
	}
}

func TestCommentIsTrivia(t *testing.T) {
	got := kinds(t, "fn # a comment\nmain")
	want := []token.Kind{token.Fn, token.Ident, token.EOF}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestUnterminatedStringIsError(t *testing.T) {
	_, err := lexer.Tokenize(`"abc`)
	if err == nil {
		t.Fatal("expected an error for an unterminated string")
	}
}

func TestUnexpectedByteIsError(t *testing.T) {
	_, err := lexer.Tokenize("fn @main")
	if err == nil {
		t.Fatal("expected an error for an unexpected byte")
	}
	lexErr, ok := err.(*lexer.Error)
	if !ok {
		t.Fatalf("want *lexer.Error, got %T", err)
	}
	if lexErr.Offset != 3 {
		t.Errorf("got offset %d, want 3", lexErr.Offset)
	}
}
