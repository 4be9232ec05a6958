// Package compiler wires the independent passes of §4 into the single
// source -> code_script pipeline §6.3 exposes to a host: resolve
// names, build SSA form, fold, compute live ranges, fold constants
// into per-function tables, allocate registers, and emit bytecode.
//
// This package has no lexer/parser of its own (§1 scopes that out);
// callers hand it an already-built *ast.Function forest, the same
// contract internal/ast.Builder and this package's tests both rely
// on.
package compiler

import (
	"fmt"

	"github.com/google/uuid"

	"kenaf/internal/ast"
	"kenaf/internal/code"
	"kenaf/internal/ir"
	"kenaf/internal/resolve"
)

// Diagnostic is one compile-time error, with enough context to report
// without a parser's own position tracking (§4.1's resolver already
// carries %w-wrapped fmt.Errorf messages naming the offending name).
type Diagnostic struct {
	Message string
}

func (d Diagnostic) Error() string { return d.Message }

// Compiler drives the fixed pass sequence over a resolved function
// forest. It holds no state between calls; every field is local to a
// single Compile.
type Compiler struct {
	// SourceName labels the resulting code_script's source file, used
	// by object.Script for error locations (§3.2) and by a host
	// embedding multiple scripts to tell them apart.
	SourceName string
}

// New returns a Compiler that stamps compiled units with sourceName.
func New(sourceName string) *Compiler {
	return &Compiler{SourceName: sourceName}
}

// Compile resolves top and every function nested within it, then runs
// the IR pipeline and packs the result into a code_script blob ready
// for kvm.VM.Load (§6.1, §6.3). Resolver errors are returned without
// attempting to compile further; a program with unresolved names has
// no well-defined IR to build.
func (c *Compiler) Compile(top *ast.Function) ([]byte, []Diagnostic, error) {
	r := resolve.New()
	if errs := r.Resolve(top); len(errs) > 0 {
		diags := make([]Diagnostic, len(errs))
		for i, e := range errs {
			diags[i] = Diagnostic{Message: e.Error()}
		}
		return nil, diags, fmt.Errorf("compiler: %d name resolution error(s)", len(errs))
	}

	fn := ir.Build(top)
	foldAndLive(fn)
	ir.FoldK(fn)
	ir.Alloc(fn)
	unit := ir.Emit(fn)

	script := code.Unit{
		SourceName: c.SourceName,
		Functions:  []*code.FunctionUnit{unit},
		ScriptID:   newScriptID(),
	}
	return code.Pack(&script), nil, nil
}

// foldAndLive applies Fold and Live to fn and every function nested
// within it. Unlike FoldK/Alloc/Emit, these two passes don't recurse
// into fn.Nested themselves (§4.3, §4.4 operate purely within one
// function's own block graph), so the driver walks the forest once on
// their behalf.
func foldAndLive(fn *ir.Function) {
	ir.Fold(fn)
	ir.Live(fn)
	for _, nested := range fn.Nested {
		foldAndLive(nested)
	}
}

// newScriptID mints a fresh v4 UUID for a compiled unit's code_script
// header (§6.1), stored as a raw [16]byte since uuid.UUID is itself
// defined as exactly that.
func newScriptID() [16]byte {
	return uuid.New()
}
