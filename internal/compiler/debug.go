package compiler

import (
	"fmt"
	"io"
	"strings"

	"kenaf/internal/code"
)

// ansi codes used by Disassemble when color is requested. Kept minimal
// (mnemonic vs. operand) rather than a full palette, matching the
// teacher's own sparing use of color in CLI diagnostics.
const (
	ansiReset  = "\x1b[0m"
	ansiOpcode = "\x1b[36m"
	ansiReg    = "\x1b[33m"
)

// Disassemble writes a human-readable listing of fn and every function
// nested within it to w (§6.3 debug_print). color enables ANSI
// highlighting of the mnemonic and register fields; a caller typically
// sets this from isatty.IsTerminal(os.Stdout.Fd()) so piped output
// stays plain text.
func Disassemble(w io.Writer, fn *code.FunctionUnit, color bool) {
	disassemble(w, fn, color, 0)
}

func disassemble(w io.Writer, fn *code.FunctionUnit, color bool, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%sfunction %s(params=%d, stack=%d, outenvs=%d)\n",
		indent, nameOrAnon(fn.Name), fn.ParamCount, fn.StackSize, fn.OutenvCount)

	for i, instr := range fn.Ops {
		op := instr.Op()
		mnemonic := op.String()
		if color {
			mnemonic = ansiOpcode + mnemonic + ansiReset
		}
		fmt.Fprintf(w, "%s  %4d  %s %s\n", indent, i, mnemonic, operandString(instr, color))
	}

	for _, nested := range fn.Nested {
		disassemble(w, nested, color, depth+1)
	}
}

func nameOrAnon(name string) string {
	if name == "" {
		return "<anonymous>"
	}
	return name
}

// operandString renders an instruction's fields generically: every
// shape carries r plus either (a, b) or a single wide c/j, and the
// disassembler has no per-opcode field-name table (§4.7 already
// documents what each opcode's fields mean; this is a raw dump, not a
// semantic decoder).
func operandString(instr code.Instruction, color bool) string {
	reg := func(n uint8) string {
		s := fmt.Sprintf("r%d", n)
		if color {
			return ansiReg + s + ansiReset
		}
		return s
	}
	return fmt.Sprintf("%s a=%d b=%d c=%d j=%d", reg(instr.R()), instr.A(), instr.B(), instr.C(), instr.J())
}
