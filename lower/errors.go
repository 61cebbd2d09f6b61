package lower

import (
	"fmt"

	"github.com/tiltlang/tilt/ast"
	"github.com/tiltlang/tilt/token"
)

// ErrorKind is the semantic error taxonomy of spec §4.3.1. Tests
// match on the discriminant, never the Location or Message text
// (spec §8.4).
type ErrorKind int

const (
	UndefinedIdentifier ErrorKind = iota
	DuplicateDefinition
	TypeMismatch
	InvalidOperation
	UndefinedBlock
	MissingTerminator
	FunctionNotFound
	ArgumentMismatch
	InvalidPhiReference
)

var kindNames = [...]string{
	UndefinedIdentifier:  "UndefinedIdentifier",
	DuplicateDefinition:  "DuplicateDefinition",
	TypeMismatch:         "TypeMismatch",
	InvalidOperation:     "InvalidOperation",
	UndefinedBlock:       "UndefinedBlock",
	MissingTerminator:    "MissingTerminator",
	FunctionNotFound:     "FunctionNotFound",
	ArgumentMismatch:     "ArgumentMismatch",
	InvalidPhiReference:  "InvalidPhiReference",
}

func (k ErrorKind) String() string { return kindNames[k] }

// SemanticError is one diagnostic produced while lowering (spec
// §4.3). The lowerer accumulates these rather than stopping at the
// first one (spec §4.3, preamble); Expected/Found are populated for
// TypeMismatch and ArgumentMismatch and ignored otherwise.
type SemanticError struct {
	Kind     ErrorKind
	Location string
	Message  string

	Expected fmt.Stringer
	Found    fmt.Stringer
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Location, e.Message)
}

// intStringer lets plain ints satisfy fmt.Stringer for ArgumentMismatch.
type intStringer int

func (i intStringer) String() string { return fmt.Sprintf("%d", int(i)) }

type typeStringer ast.Type

func (t typeStringer) String() string { return ast.Type(t).String() }

func (l *lowerer) errorAt(pos token.Pos, kind ErrorKind, format string, args ...interface{}) {
	l.errs = append(l.errs, &SemanticError{
		Kind:     kind,
		Location: l.locate(pos),
		Message:  fmt.Sprintf(format, args...),
	})
}

func (l *lowerer) typeMismatch(pos token.Pos, context string, expected, found ast.Type) {
	l.errs = append(l.errs, &SemanticError{
		Kind:     TypeMismatch,
		Location: l.locate(pos),
		Message:  fmt.Sprintf("%s: expected %v, found %v", context, expected, found),
		Expected: typeStringer(expected),
		Found:    typeStringer(found),
	})
}

func (l *lowerer) argumentMismatch(pos token.Pos, context string, expected, found int) {
	l.errs = append(l.errs, &SemanticError{
		Kind:     ArgumentMismatch,
		Location: l.locate(pos),
		Message:  fmt.Sprintf("%s: expected %d arguments, found %d", context, expected, found),
		Expected: intStringer(expected),
		Found:    intStringer(found),
	})
}

// locate renders pos as a 1-based "line:col" string into the source
// buffer being lowered.
func (l *lowerer) locate(pos token.Pos) string {
	line, col := 1, 1
	for i := 0; i < int(pos) && i < len(l.src); i++ {
		if l.src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return fmt.Sprintf("%d:%d", line, col)
}
