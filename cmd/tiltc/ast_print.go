package main

import (
	"fmt"

	"github.com/tiltlang/tilt/ast"
)

// printAST writes a minimal, source-like rendering of prog. It exists
// only for -show-ast; nothing in the core pipeline depends on it, so
// it does not try to reproduce the grammar exactly.
func printAST(prog *ast.Program) {
	for _, imp := range prog.Imports {
		fmt.Printf("import %q %q", imp.Module, imp.Name)
		if imp.CallConv != "" {
			fmt.Printf(" %q", imp.CallConv)
		}
		fmt.Print("(")
		printParams(imp.Params)
		fmt.Printf(") -> %v\n", imp.Return)
	}
	for _, fn := range prog.Funcs {
		fmt.Printf("fn %s(", fn.Name)
		printParams(fn.Params)
		fmt.Printf(") -> %v {\n", fn.Return)
		for _, b := range fn.Blocks {
			fmt.Printf("%s", b.Label)
			if len(b.Params) > 0 {
				fmt.Print("(")
				printParams(b.Params)
				fmt.Print(")")
			}
			fmt.Println(":")
			for _, instr := range b.Instrs {
				printInstr(instr)
			}
			printTerm(b.Term)
		}
		fmt.Println("}")
	}
}

func printParams(params []ast.TypedIdent) {
	for i, p := range params {
		if i > 0 {
			fmt.Print(", ")
		}
		fmt.Printf("%s: %v", p.Name, p.Type)
	}
}

func printInstr(instr *ast.Instr) {
	fmt.Print("    ")
	if instr.Dest != nil {
		fmt.Printf("%s:%v = ", instr.Dest.Name, instr.Dest.Type)
	}
	printExpr(instr.Expr)
	fmt.Println()
}

func printExpr(e ast.Expr) {
	switch e := e.(type) {
	case *ast.CallExpr:
		if e.Explicit {
			fmt.Print("call ")
		}
		fmt.Printf("%s(", e.Callee)
		printValues(e.Args)
		fmt.Print(")")
	case *ast.LitExpr:
		fmt.Printf("%d", e.Value)
	default:
		fmt.Print("<unknown expr>")
	}
}

func printValues(vals []ast.Value) {
	for i, v := range vals {
		if i > 0 {
			fmt.Print(", ")
		}
		if v.Kind == ast.ValIdent {
			fmt.Print(v.Name)
		} else {
			fmt.Printf("%d", v.Int)
		}
	}
}

func printTerm(term ast.Terminator) {
	switch t := term.(type) {
	case *ast.RetTerm:
		if t.Value == nil {
			fmt.Println("    ret")
		} else {
			fmt.Print("    ret ")
			printValues([]ast.Value{*t.Value})
			fmt.Println()
		}
	case *ast.BrTerm:
		fmt.Printf("    br %s(", t.Target)
		printValues(t.Args)
		fmt.Println(")")
	case *ast.BrIfTerm:
		fmt.Print("    br_if ")
		printValues([]ast.Value{t.Cond})
		fmt.Printf(", %s(", t.TrueTarget)
		printValues(t.TrueArgs)
		fmt.Printf("), %s(", t.FalseTarget)
		printValues(t.FalseArgs)
		fmt.Println(")")
	default:
		fmt.Println("    <missing terminator>")
	}
}
