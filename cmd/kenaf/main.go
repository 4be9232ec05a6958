// Command kenaf is a thin wiring executable, not a CLI framework (§1
// excludes argument-parsing/lexer/parser concerns from scope): given a
// packed code_script blob (the output of compiler.Compile), it loads
// and runs it. It exists for manual smoke-testing of the runtime, the
// same role the teacher's own cmd/sentra/main.go plays for its
// pipeline, scaled down to match what this package actually owns.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/mattn/go-isatty"

	"kenaf/internal/code"
	"kenaf/internal/compiler"
	"kenaf/internal/kvm"
	"kenaf/internal/object"
)

func main() {
	disasm := flag.Bool("dis", false, "disassemble instead of running")
	verbose := flag.Bool("v", false, "log GC phase transitions to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: kenaf [-dis] [-v] <script.kbc>")
		os.Exit(2)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "kenaf:", err)
		os.Exit(1)
	}

	if *disasm {
		unit, err := code.Unpack(data)
		if err != nil {
			fmt.Fprintln(os.Stderr, "kenaf:", err)
			os.Exit(1)
		}
		color := isatty.IsTerminal(os.Stdout.Fd())
		for _, fn := range unit.Functions {
			compiler.Disassemble(os.Stdout, fn, color)
		}
		return
	}

	var logger *log.Logger
	if *verbose {
		logger = log.New(os.Stderr, "", log.Ltime)
	}
	vm := kvm.New(kvm.Options{Logger: logger})
	defer vm.Close()

	script, programs, err := vm.Load(data)
	if err != nil {
		fmt.Fprintln(os.Stderr, "kenaf:", err)
		os.Exit(1)
	}
	if len(programs) == 0 {
		fmt.Fprintln(os.Stderr, "kenaf: script has no top-level function")
		os.Exit(1)
	}
	_ = script

	fn := object.NewFunction(programs[0])
	vm.GC.Track(fn)

	if _, err := vm.Call(vm.Root(), object.Box(fn), nil); err != nil {
		fmt.Fprintln(os.Stderr, "kenaf:", err)
		os.Exit(1)
	}
}
