// Command tiltc is TILT's reference CLI front end (spec §6.4): an
// external collaborator over the core packages, not itself part of
// the reimplementation's required surface, but wired up here the way
// the teacher wires a thin cmd/ around each of its core packages
// (cmd/deadcode around go/ssa, cmd/stringer around go/ast).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tiltlang/tilt/driver"
	"github.com/tiltlang/tilt/hostabi"
)

var (
	showTokens    = flag.Bool("show-tokens", false, "print the token stream and exit")
	showAST       = flag.Bool("show-ast", false, "print the parsed syntax tree and exit")
	showIR        = flag.Bool("show-ir", false, "print the lowered IR and exit")
	showCraneliftIR = flag.Bool("show-cranelift-ir", false, "print the JIT's per-function IR trace")
	useJIT        = flag.Bool("jit", false, "run on the JIT backend")
	useVM         = flag.Bool("vm", true, "run on the tree-walking interpreter (default)")
	useBoth       = flag.Bool("both", false, "run on both backends and fail if they disagree")
	showTime      = flag.Bool("time", false, "print wall-clock compile and run time")
	maxDepth      = flag.Int("max-depth", 0, "interpreter call-stack depth limit (0 = default of 1000)")
	entry         = flag.String("entry", "main", "name of the function to call after compiling")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tiltc [flags] file.tilt

tiltc compiles one TILT source file and, unless a -show-* flag asks
only for an intermediate artifact, calls its %s function with no
arguments.

Flags:

`, *entry)
	flag.PrintDefaults()
}

func main() {
	log.SetPrefix("tiltc: ")
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	srcBytes, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("%v", err)
	}
	src := string(srcBytes)

	backend := driver.VM
	switch {
	case *useBoth:
		backend = driver.Both
	case *useJIT:
		backend = driver.JIT
	case *useVM:
		backend = driver.VM
	}

	opts := driver.Options{
		ShowTokens: *showTokens,
		ShowAST:    *showAST,
		ShowIR:     *showIR,
		ShowTrace:  *showCraneliftIR,
		Backend:    backend,
		MaxCallDepth: *maxDepth,
		ABI:        hostabi.NewVMMemory(),
	}

	start := time.Now()
	res, err := driver.Compile(src, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *showTokens {
		for _, tok := range res.Tokens {
			fmt.Println(tok)
		}
	}
	if *showAST {
		printAST(res.AST)
	}
	if *showIR {
		for _, fn := range res.IR.Funcs {
			fmt.Print(fn)
		}
	}
	if *showCraneliftIR && res.Trace.Len() > 0 {
		os.Stdout.Write(res.Trace.Bytes())
	}
	if *showTokens || *showAST || *showIR {
		return
	}

	var result hostabi.RuntimeValue
	if backend == driver.Both {
		result, err = res.CallBoth(*entry, nil)
	} else {
		result, err = res.Run(*entry, nil)
	}
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

	fmt.Println(result)
	if *showTime {
		fmt.Fprintf(os.Stderr, "compiled and ran %s in %s\n", flag.Arg(0), elapsed)
	}
}
