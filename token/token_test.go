package token_test

import (
	"testing"

	"github.com/tiltlang/tilt/token"
)

func TestLookupKeywords(t *testing.T) {
	cases := map[string]token.Kind{
		"fn": token.Fn, "import": token.Import, "ret": token.Ret,
		"br": token.Br, "br_if": token.BrIf, "phi": token.Phi, "call": token.Call,
		"i32": token.I32, "i64": token.I64, "f32": token.F32, "f64": token.F64,
		"usize": token.Usize, "void": token.Void,
	}
	for word, want := range cases {
		if got := token.Lookup(word); got != want {
			t.Errorf("Lookup(%q) = %v, want %v", word, got, want)
		}
	}
}

func TestLookupNonKeywordIsIdent(t *testing.T) {
	for _, word := range []string{"i32.add", "sum_array", "main", "n"} {
		if got := token.Lookup(word); got != token.Ident {
			t.Errorf("Lookup(%q) = %v, want Ident", word, got)
		}
	}
}

func TestTokenStringIncludesText(t *testing.T) {
	tok := token.Token{Kind: token.Ident, Start: 0, End: 3, Text: "foo"}
	got := tok.String()
	if got != `IDENT("foo")@0:3` {
		t.Errorf("got %q", got)
	}
}

func TestTokenStringOmitsEmptyText(t *testing.T) {
	tok := token.Token{Kind: token.LBrace, Start: 4, End: 5}
	got := tok.String()
	if got != "{@4:5" {
		t.Errorf("got %q", got)
	}
}
