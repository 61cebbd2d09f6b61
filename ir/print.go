package ir

import (
	"bytes"
	"fmt"
	"io"
)

// WriteFunction writes a human-readable disassembly of f to buf,
// loosely in the spirit of the teacher's ssa.WriteFunction: one line
// per block header, one indented line per instruction, the
// instruction's destination (if any) printed as "vN = ...".
func WriteFunction(buf *bytes.Buffer, f *Function) {
	fmt.Fprintf(buf, "func %s(", f.Name)
	for i, t := range f.ParamTypes {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(buf, "v%d:%v", i, t)
	}
	fmt.Fprintf(buf, ") -> %v {\n", f.ReturnType)

	for _, b := range f.Blocks {
		fmt.Fprintf(buf, "%s", b.Label)
		if len(b.Params) > 0 {
			buf.WriteString("(")
			for i, p := range b.Params {
				if i > 0 {
					buf.WriteString(", ")
				}
				fmt.Fprintf(buf, "v%d:%v", p.Value, p.Type)
			}
			buf.WriteString(")")
		}
		fmt.Fprintf(buf, ": // b%d\n", b.ID)

		for _, instr := range b.Instrs {
			if dest, ok := instr.Dest(); ok {
				fmt.Fprintf(buf, "\tv%d = %s\n", dest, instr)
			} else {
				fmt.Fprintf(buf, "\t%s\n", instr)
			}
		}
		if b.Term != nil {
			fmt.Fprintf(buf, "\t%s\n", b.Term)
		} else {
			buf.WriteString("\t<missing terminator>\n")
		}
	}
	buf.WriteString("}\n")
}

// WriteTo implements io.WriterTo so callers can do
// `f.WriteTo(os.Stdout)` the way ssa.Function does.
func (f *Function) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	WriteFunction(&buf, f)
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

func (f *Function) String() string {
	var buf bytes.Buffer
	WriteFunction(&buf, f)
	return buf.String()
}
