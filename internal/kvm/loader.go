package kvm

import (
	"kenaf/internal/code"
	"kenaf/internal/object"
)

// Load validates and interns a packed code_script blob into a tree of
// object.Program objects rooted at the unit's top-level functions
// (§6.1 loader responsibilities: intern constants/selectors, build
// Program objects, wire child-function references).
func (vm *VM) Load(data []byte) (*object.Script, []*object.Program, error) {
	unit, err := code.Unpack(data)
	if err != nil {
		return nil, nil, err
	}

	script := &object.Script{Header: object.Header{Type: object.TypeScript}, Name: unit.SourceName, ID: unit.ScriptID}
	vm.GC.Track(script)

	programs := make([]*object.Program, len(unit.Functions))
	for i, fn := range unit.Functions {
		programs[i] = vm.loadFunction(fn, script)
	}
	return script, programs, nil
}

// loadFunction converts one code.FunctionUnit into an object.Program,
// re-encoding LDK_STR operands to index into the combined
// Numbers+Strings constants table object.Program expects, and
// recursively building nested closures.
func (vm *VM) loadFunction(fn *code.FunctionUnit, script *object.Script) *object.Program {
	offset := len(fn.Numbers)

	constants := make([]object.Value, 0, len(fn.Numbers)+len(fn.Strings))
	for _, n := range fn.Numbers {
		constants = append(constants, object.Number(n))
	}
	for _, s := range fn.Strings {
		str := object.NewString(s)
		vm.GC.Track(str)
		constants = append(constants, object.Box(str))
	}

	selectors := make([]*object.StringObj, len(fn.Selectors))
	for i, s := range fn.Selectors {
		selectors[i] = vm.Keys.Intern(s)
	}

	ops := make([]uint32, len(fn.Ops))
	for i, instr := range fn.Ops {
		if instr.Op() == code.OpLdkStr {
			instr = code.EncodeC(code.OpLdk, instr.R(), instr.C()+uint16(offset))
		}
		ops[i] = uint32(instr)
	}

	prog := &object.Program{
		Header:      object.Header{Type: object.TypeProgram},
		Ops:         ops,
		Constants:   constants,
		Selectors:   selectors,
		Name:        fn.Name,
		ParamCount:  fn.ParamCount,
		StackSize:   fn.StackSize,
		OutenvCount: fn.OutenvCount,
		Script:      script,
		Slocs:       fn.Slocs,
	}
	if fn.IsVarargs {
		prog.CodeFlags |= object.CodeFlagVarargs
	}
	if fn.IsGenerator {
		prog.CodeFlags |= object.CodeFlagGenerator
	}

	prog.Functions = make([]*object.Program, len(fn.Nested))
	for i, nested := range fn.Nested {
		prog.Functions[i] = vm.loadFunction(nested, script)
	}

	vm.GC.Track(prog)
	return prog
}
