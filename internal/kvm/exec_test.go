package kvm

import (
	"testing"

	"kenaf/internal/code"
	"kenaf/internal/object"
)

// runProgram wraps prog in a Function and runs it on a fresh VM's root
// cothread, the same raw-bytecode harness the teacher's own vm_test.go
// uses: hand-assemble a chunk, run it, check the result.
func runProgram(t *testing.T, prog *object.Program, args []object.Value) []object.Value {
	t.Helper()
	vm := New(Options{})
	fn := object.NewFunction(prog)
	vm.GC.Track(fn)
	results, err := vm.Call(vm.Root(), object.Box(fn), args)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	return results
}

func TestExecArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   code.Op
		a, b float64
		want float64
	}{
		{"add", code.OpAdd, 10, 20, 30},
		{"sub", code.OpSub, 50, 20, 30},
		{"mul", code.OpMul, 5, 6, 30},
		{"div", code.OpDiv, 60, 2, 30},
		{"mod", code.OpMod, 17, 5, 2},
		{"floordiv_negative", code.OpIntdiv, -7, 2, -4},
		{"mod_negative", code.OpMod, -7, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := &object.Program{
				StackSize: 3,
				Constants: []object.Value{object.Number(tt.a), object.Number(tt.b)},
				Ops: []uint32{
					uint32(code.EncodeC(code.OpLdk, 0, 0)),
					uint32(code.EncodeC(code.OpLdk, 1, 1)),
					uint32(code.EncodeAB(tt.op, 2, 0, 1)),
					uint32(code.EncodeC(code.OpReturn, 2, 1)),
				},
			}
			results := runProgram(t, prog, nil)
			if len(results) != 1 || results[0].Number() != tt.want {
				t.Fatalf("got %v, want [%v]", results, tt.want)
			}
		})
	}
}

func TestExecComparisonAndEquality(t *testing.T) {
	prog := &object.Program{
		StackSize: 3,
		Constants: []object.Value{object.Number(3), object.Number(5)},
		Ops: []uint32{
			uint32(code.EncodeC(code.OpLdk, 0, 0)),
			uint32(code.EncodeC(code.OpLdk, 1, 1)),
			uint32(code.EncodeAB(code.OpLt, 2, 0, 1)),
			uint32(code.EncodeC(code.OpReturn, 2, 1)),
		},
	}
	results := runProgram(t, prog, nil)
	if len(results) != 1 || results[0] != object.True {
		t.Fatalf("got %v, want [true]", results)
	}
}

func TestExecStringConcat(t *testing.T) {
	lhs := object.NewString("foo")
	rhs := object.NewString("bar")
	prog := &object.Program{
		StackSize: 3,
		Constants: []object.Value{object.Box(lhs), object.Box(rhs)},
		Ops: []uint32{
			uint32(code.EncodeC(code.OpLdk, 0, 0)),
			uint32(code.EncodeC(code.OpLdk, 1, 1)),
			uint32(code.EncodeAB(code.OpConcat, 2, 0, 1)),
			uint32(code.EncodeC(code.OpReturn, 2, 1)),
		},
	}
	results := runProgram(t, prog, nil)
	if len(results) != 1 || results[0].AsString().String() != "foobar" {
		t.Fatalf("got %v, want [foobar]", results)
	}
}

func TestExecArrayAppendAndIndex(t *testing.T) {
	prog := &object.Program{
		StackSize: 4,
		Constants: []object.Value{object.Number(10), object.Number(20), object.Number(99), object.Number(1)},
		Ops: []uint32{
			uint32(code.EncodeAB(code.OpNewArray, 0, 0, 0)),
			uint32(code.EncodeC(code.OpLdk, 1, 0)),
			uint32(code.EncodeAB(code.OpAppend, 0, 1, 0)),
			uint32(code.EncodeC(code.OpLdk, 1, 1)),
			uint32(code.EncodeAB(code.OpAppend, 0, 1, 0)),
			// arr[1] = 99
			uint32(code.EncodeC(code.OpLdk, 2, 3)), // index 1
			uint32(code.EncodeC(code.OpLdk, 3, 2)), // value 99
			uint32(code.EncodeAB(code.OpSetIndex, 0, 2, 3)),
			uint32(code.EncodeAB(code.OpGetIndex, 1, 0, 2)),
			uint32(code.EncodeC(code.OpReturn, 1, 1)),
		},
	}
	results := runProgram(t, prog, nil)
	if len(results) != 1 || results[0].Number() != 99 {
		t.Fatalf("got %v, want [99]", results)
	}
}

func TestExecConditionalJump(t *testing.T) {
	// r0 = false; OpJf takes the jump (condition is falsey), skipping the
	// dead branch that would set r1 = false, landing on r1 = true.
	prog := &object.Program{
		StackSize: 2,
		Ops: []uint32{
			uint32(code.EncodeC(code.OpLdv, 0, code.LdvFalse)),
			uint32(code.EncodeJump(code.OpJf, 0, 2)),
			uint32(code.EncodeC(code.OpLdv, 1, code.LdvFalse)), // dead: skipped by the jump
			uint32(code.EncodeJump(code.OpJmp, 0, 1)),          // dead: skipped by the jump
			uint32(code.EncodeC(code.OpLdv, 1, code.LdvTrue)),
			uint32(code.EncodeC(code.OpReturn, 1, 1)),
		},
	}
	results := runProgram(t, prog, nil)
	if len(results) != 1 || results[0] != object.True {
		t.Fatalf("got %v, want [true] (OpJf should take the jump when the condition is falsey)", results)
	}
}

func TestExecNumericForStepSumsRange(t *testing.T) {
	// Registers: 0=cur,1=limit,2=step (the staged for-loop window), 3=loop var, 4=total
	prog := &object.Program{
		StackSize: 5,
		Constants: []object.Value{object.Number(1), object.Number(5), object.Number(1), object.Number(0)},
		Ops: []uint32{
			uint32(code.EncodeC(code.OpLdk, 0, 0)), // cur = 1
			uint32(code.EncodeC(code.OpLdk, 1, 1)), // limit = 5
			uint32(code.EncodeC(code.OpLdk, 2, 2)), // step = 1
			uint32(code.EncodeC(code.OpLdk, 4, 3)), // total = 0
			// loop:
			uint32(code.EncodeAB(code.OpForStep, 3, 0, 0)), // r3 = next or null
			uint32(code.EncodeJump(code.OpJf, 3, 2)),       // if null, exit (skip to return)
			uint32(code.EncodeAB(code.OpAdd, 4, 4, 3)),
			uint32(code.EncodeJump(code.OpJmp, 0, -4)), // back to ForStep
			uint32(code.EncodeC(code.OpReturn, 4, 1)),
		},
	}
	results := runProgram(t, prog, nil)
	if len(results) != 1 || results[0].Number() != 15 {
		t.Fatalf("got %v, want [15]", results)
	}
}

func TestExecThrowProducesScriptError(t *testing.T) {
	msg := object.NewString("boom")
	prog := &object.Program{
		StackSize: 1,
		Constants: []object.Value{object.Box(msg)},
		Ops: []uint32{
			uint32(code.EncodeC(code.OpLdk, 0, 0)),
			uint32(code.EncodeAB(code.OpThrow, 0, 0, 0)),
		},
	}
	vm := New(Options{})
	fn := object.NewFunction(prog)
	vm.GC.Track(fn)
	if _, err := vm.Call(vm.Root(), object.Box(fn), nil); err == nil {
		t.Fatal("expected OpThrow to surface as an error")
	}
}

func TestExecVarargsCollectsExtraArgs(t *testing.T) {
	// A 1-param varargs function: param in r0, vararg array built into r1.
	prog := &object.Program{
		StackSize:  2,
		ParamCount: 1,
		CodeFlags:  object.CodeFlagVarargs,
		Ops: []uint32{
			uint32(code.EncodeAB(code.OpVararg, 1, 0, 0)),
			uint32(code.EncodeC(code.OpReturn, 1, 1)),
		},
	}
	results := runProgram(t, prog, []object.Value{object.Number(1), object.Number(2), object.Number(3)})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	arr := results[0]
	if !arr.IsPointer() || arr.Header().Type != object.TypeArray {
		t.Fatalf("expected an array result, got %v", arr)
	}
	if arr.AsArray().Length() != 2 {
		t.Fatalf("vararg array length = %d, want 2", arr.AsArray().Length())
	}
	if arr.AsArray().Get(0).Number() != 2 || arr.AsArray().Get(1).Number() != 3 {
		t.Fatalf("vararg array contents = %v, want [2, 3]", arr.AsArray().Slice())
	}
}

func TestExecNestedFunctionCall(t *testing.T) {
	inner := &object.Program{
		Name:       "add",
		StackSize:  3,
		ParamCount: 2,
		Ops: []uint32{
			uint32(code.EncodeAB(code.OpAdd, 2, 0, 1)),
			uint32(code.EncodeC(code.OpReturn, 2, 1)),
		},
	}
	outer := &object.Program{
		Name:      "main",
		StackSize: 3,
		Functions: []*object.Program{inner},
		Constants: []object.Value{object.Number(4), object.Number(5)},
		Ops: []uint32{
			uint32(code.EncodeC(code.OpFunction, 0, 0)), // r0 = inner closure
			uint32(code.EncodeC(code.OpLdk, 1, 0)),      // r1 = 4
			uint32(code.EncodeC(code.OpLdk, 2, 1)),      // r2 = 5
			// call: base=0 (callee r0, args r1..r2), total=3, unpack=1 result written to r0
			uint32(code.EncodeAB(code.OpCall, 0, 3, 1)),
			uint32(code.EncodeC(code.OpReturn, 0, 1)),
		},
	}
	results := runProgram(t, outer, nil)
	if len(results) != 1 || results[0].Number() != 9 {
		t.Fatalf("got %v, want [9]", results)
	}
}
