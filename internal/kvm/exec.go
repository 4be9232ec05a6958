package kvm

import (
	"kenaf/internal/code"
	kerr "kenaf/internal/errors"
	"kenaf/internal/object"
)

// execute is the register-machine dispatch loop (§4.9, §4.10). It
// always operates on co's current top frame: callFunction pushes
// exactly one frame and calls execute, which runs until that frame's
// own OP_RETURN or an uncaught error, then returns — a nested OP_CALL
// recurses into vm.Call (pushing and fully draining its own frame)
// before this loop resumes, so by the time control comes back here the
// top frame is always this invocation's again (§4.10's "Kenaf's own
// call stack rides on Go's call stack" design in call.go).
//
// frame is refetched via co.TopFrame() at the top of every iteration
// and never read again after a case that may have pushed/popped
// frames on co (OP_CALL, OP_CALL_METHOD) — co.Frames is a slice that
// append can reallocate, so a *Frame cached across such a call would
// silently point at a stale backing array.
func (vm *VM) execute(co *object.Cothread) ([]object.Value, error) {
	for {
		vm.GC.Safepoint(nil)

		frame := co.TopFrame()
		prog := frame.Function.Program
		instr := code.Instruction(prog.Ops[frame.IP])
		frame.IP++
		bp := frame.BP

		switch instr.Op() {
		case code.OpNop:

		case code.OpMov:
			co.Stack[bp+int(instr.R())] = co.Stack[bp+int(instr.A())]

		case code.OpSwp:
			r, a := bp+int(instr.R()), bp+int(instr.A())
			co.Stack[r], co.Stack[a] = co.Stack[a], co.Stack[r]

		case code.OpLdv, code.OpLdk, code.OpLdkStr:
			co.Stack[bp+int(instr.R())] = vm.loadConst(instr, prog)

		case code.OpNeg:
			v := co.Stack[bp+int(instr.A())]
			if !v.IsNumber() {
				return nil, vm.runtimeError(co, kerr.TypeError, "cannot negate a value of type %s", v.Kind())
			}
			co.Stack[bp+int(instr.R())] = object.Number(-v.Number())

		case code.OpNot:
			v := co.Stack[bp+int(instr.A())]
			co.Stack[bp+int(instr.R())] = object.Bool(v.Falsey())

		case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpIntdiv, code.OpMod,
			code.OpConcat, code.OpEq, code.OpNeq, code.OpLt, code.OpLte, code.OpGt, code.OpGte, code.OpIs:
			v, err := vm.binOp(co, instr.Op(), co.Stack[bp+int(instr.A())], co.Stack[bp+int(instr.B())])
			if err != nil {
				return nil, err
			}
			co.Stack[bp+int(instr.R())] = v

		case code.OpJmp:
			frame.IP += int(instr.J())

		case code.OpJt:
			if !co.Stack[bp+int(instr.R())].Falsey() {
				frame.IP += int(instr.J())
			}

		case code.OpJf:
			if co.Stack[bp+int(instr.R())].Falsey() {
				frame.IP += int(instr.J())
			}

		case code.OpGetGlobal:
			name := prog.Selectors[instr.C()].String()
			v, ok := vm.Global(name)
			if !ok {
				return nil, vm.runtimeError(co, kerr.KeyError, "undefined global %q", name)
			}
			co.Stack[bp+int(instr.R())] = v

		case code.OpSetGlobal:
			name := prog.Selectors[instr.C()].String()
			vm.SetGlobal(name, co.Stack[bp+int(instr.R())])

		case code.OpGetKey:
			v, err := vm.getKey(co.Stack[bp+int(instr.A())], prog.Selectors[instr.B()])
			if err != nil {
				return nil, vm.attachLocation(co, err)
			}
			co.Stack[bp+int(instr.R())] = v

		case code.OpSetKey:
			obj := co.Stack[bp+int(instr.R())]
			if err := vm.setKey(obj, prog.Selectors[instr.A()], co.Stack[bp+int(instr.B())]); err != nil {
				return nil, vm.attachLocation(co, err)
			}

		case code.OpGetIndex:
			v, err := vm.getIndex(co.Stack[bp+int(instr.A())], co.Stack[bp+int(instr.B())])
			if err != nil {
				return nil, vm.attachLocation(co, err)
			}
			co.Stack[bp+int(instr.R())] = v

		case code.OpSetIndex:
			obj := co.Stack[bp+int(instr.R())]
			if err := vm.setIndex(obj, co.Stack[bp+int(instr.A())], co.Stack[bp+int(instr.B())]); err != nil {
				return nil, vm.attachLocation(co, err)
			}

		case code.OpNewArray:
			arr := object.NewArray()
			vm.GC.Track(arr)
			co.Stack[bp+int(instr.R())] = object.Box(arr)

		case code.OpAppend:
			arrVal := co.Stack[bp+int(instr.R())]
			if !arrVal.IsPointer() || arrVal.Header().Type != object.TypeArray {
				return nil, vm.runtimeError(co, kerr.TypeError, "cannot append to a value of type %s", arrVal.Kind())
			}
			arrVal.AsArray().Append(co.Stack[bp+int(instr.A())])

		case code.OpNewTable:
			tab := object.NewTable()
			vm.GC.Track(tab)
			co.Stack[bp+int(instr.R())] = object.Box(tab)

		case code.OpNewObject:
			proto := co.Stack[bp+int(instr.A())]
			v, err := vm.newObject(proto)
			if err != nil {
				return nil, vm.attachLocation(co, err)
			}
			co.Stack[bp+int(instr.R())] = v

		case code.OpSuper:
			if frame.Function.OMethod == nil {
				return nil, vm.runtimeError(co, kerr.TypeError, "super used outside of a method with a bound enclosing prototype")
			}
			co.Stack[bp+int(instr.R())] = object.Box(frame.Function.OMethod)

		case code.OpThrow:
			return nil, vm.attachLocation(co, kerr.Throw(co.Stack[bp+int(instr.R())], describeThrown(co.Stack[bp+int(instr.R())])))

		case code.OpNewEnv:
			vs := object.NewVSlots(int(instr.C()))
			vm.GC.Track(vs)
			co.Stack[bp+int(instr.R())] = object.FromPointer(vs.Addr())

		case code.OpGetVarenv:
			vs := co.Stack[bp+int(instr.A())].AsVSlots()
			co.Stack[bp+int(instr.R())] = vs.Get(uint32(instr.B()))

		case code.OpSetVarenv:
			vs := co.Stack[bp+int(instr.R())].AsVSlots()
			vs.Set(uint32(instr.A()), co.Stack[bp+int(instr.B())])

		case code.OpGetOutenv:
			co.Stack[bp+int(instr.R())] = frame.Function.Outenvs[instr.A()].Get(0)

		case code.OpSetOutenv:
			frame.Function.Outenvs[instr.R()].Set(0, co.Stack[bp+int(instr.A())])

		case code.OpCall, code.OpCallMethod, code.OpCallr:
			base := int(instr.R())
			total := int(instr.A())
			unpack := instr.B()
			callee := co.Stack[bp+base]
			args := make([]object.Value, total-1)
			copy(args, co.Stack[bp+base+1:bp+base+total])
			results, err := vm.Call(co, callee, args)
			if err != nil {
				return nil, err
			}
			writeResults(co, bp+base, results, unpack)

		case code.OpReturn:
			base := bp + int(instr.R())
			n := int(instr.C())
			if n == 0 && frame.Resume == object.ResumeConstruct {
				return []object.Value{frame.PreservedSelf}, nil
			}
			results := make([]object.Value, n)
			copy(results, co.Stack[base:base+n])
			return results, nil

		case code.OpYcall:
			base := int(instr.R())
			total := int(instr.A())
			unpack := instr.B()
			fnVal := co.Stack[bp+base]
			args := make([]object.Value, total-1)
			copy(args, co.Stack[bp+base+1:bp+base+total])
			if !fnVal.IsPointer() || fnVal.Header().Type != object.TypeFunction {
				return nil, vm.runtimeError(co, kerr.TypeError, "cothread call target must be a function")
			}
			gen := vm.NewGenerator(fnVal.AsFunction(), args)
			writeResults(co, bp+base, []object.Value{object.Box(gen)}, unpack)

		case code.OpYield:
			dst := instr.R()
			base := int(instr.A())
			n := int(instr.B())
			values := make([]object.Value, n)
			copy(values, co.Stack[bp+base:bp+base+n])
			resumeArgs := vm.yieldFromGenerator(co, values)
			if len(resumeArgs) > 0 {
				co.Stack[bp+int(dst)] = resumeArgs[0]
			} else {
				co.Stack[bp+int(dst)] = object.Null
			}

		case code.OpVararg:
			dst := int(instr.R())
			n := frame.Extra
			co.EnsureStack(bp + dst + n)
			for i := 0; i < n; i++ {
				co.Stack[bp+dst+i] = co.Stack[bp-n+i]
			}
			arr := object.NewArray()
			vm.GC.Track(arr)
			arr.Extend(co.Stack[bp+dst : bp+dst+n])
			co.Stack[bp+dst] = object.Box(arr)

		case code.OpUnpack, code.OpExtend:
			src := int(instr.A())
			arrVal := co.Stack[bp+src]
			if !arrVal.IsPointer() || arrVal.Header().Type != object.TypeArray {
				return nil, vm.runtimeError(co, kerr.TypeError, "cannot spread a value of type %s", arrVal.Kind())
			}
			arr := arrVal.AsArray()
			var dst int
			if instr.Op() == code.OpUnpack {
				dst = int(instr.R())
			} else {
				dst = co.XP - bp
			}
			co.EnsureStack(bp + dst + arr.Length())
			for i := 0; i < arr.Length(); i++ {
				co.Stack[bp+dst+i] = arr.Get(i)
			}
			co.XP = bp + dst + arr.Length()

		case code.OpGenerate:
			base := int(instr.R())
			count := int(instr.C())
			if count == 1 {
				// Generic for-loop: base+0 is the staged iterable,
				// base+1 is the hidden cursor OP_FOR_EACH advances from,
				// seeded with the sentinel "nothing consumed yet" index.
				co.Stack[bp+base+1] = object.Number(-1)
			}

		case code.OpForStep:
			dst := int(instr.R())
			base := int(instr.A())
			cur := co.Stack[bp+base].Number()
			limit := co.Stack[bp+base+1].Number()
			step := co.Stack[bp+base+2].Number()
			cont := cur <= limit
			if step < 0 {
				cont = cur >= limit
			}
			if cont {
				co.Stack[bp+dst] = object.Number(cur)
				co.Stack[bp+base] = object.Number(cur + step)
			} else {
				co.Stack[bp+dst] = object.Null
			}

		case code.OpForEach:
			dst := int(instr.R())
			base := int(instr.A())
			n := int(instr.B())
			if err := vm.forEachStep(co, bp, dst, base, n); err != nil {
				return nil, vm.attachLocation(co, err)
			}

		case code.OpFunction:
			nested := prog.Functions[instr.C()]
			fn := object.NewFunction(nested)
			vm.GC.Track(fn)
			co.Stack[bp+int(instr.R())] = object.Box(fn)

		case code.OpFMethod:
			fnVal := co.Stack[bp+int(instr.R())]
			ownerVal := co.Stack[bp+int(instr.A())]
			if fnVal.IsPointer() && fnVal.Header().Type == object.TypeFunction &&
				ownerVal.IsPointer() && ownerVal.Header().Type == object.TypeLookup {
				fnVal.AsFunction().OMethod = ownerVal.AsLookup()
			}

		case code.OpFVarenv:
			fnVal := co.Stack[bp+int(instr.R())]
			envVal := co.Stack[bp+int(instr.B())]
			if fnVal.IsPointer() && fnVal.Header().Type == object.TypeFunction {
				idx := int(instr.A())
				fn := fnVal.AsFunction()
				if idx < len(fn.Outenvs) {
					fn.Outenvs[idx] = envVal.AsVSlots()
				}
			}

		case code.OpFOutenv:
			fnVal := co.Stack[bp+int(instr.R())]
			if fnVal.IsPointer() && fnVal.Header().Type == object.TypeFunction {
				slots := object.NewVSlots(1)
				slots.Set(0, co.Stack[bp+int(instr.B())])
				vm.GC.Track(slots)
				fn := fnVal.AsFunction()
				idx := int(instr.A())
				if idx < len(fn.Outenvs) {
					fn.Outenvs[idx] = slots
				}
			}

		default:
			return nil, vm.runtimeError(co, kerr.RuntimeError, "unimplemented opcode %d", instr.Op())
		}
	}
}

// loadConst resolves an OP_LDV/OP_LDK/OP_LDK_STR word. OP_LDK_STR is
// unreachable once loader.go has rewritten every instance into OP_LDK
// against the combined Numbers+Strings constants table, but it is
// still decoded identically here for completeness.
func (vm *VM) loadConst(instr code.Instruction, prog *object.Program) object.Value {
	switch instr.Op() {
	case code.OpLdv:
		switch instr.C() {
		case code.LdvFalse:
			return object.False
		case code.LdvTrue:
			return object.True
		default:
			return object.Null
		}
	case code.OpLdkStr:
		return prog.Constants[int(instr.C())]
	default:
		return prog.Constants[int(instr.C())]
	}
}

// writeResults splices a call's results back into the caller's window
// starting at base (§4.9's calling convention): unpack == UnpackAll
// forwards every result and advances the cothread's xp so a follow-on
// spread can see them; any other count writes exactly that many
// registers, padding missing results with null and discarding extras.
func writeResults(co *object.Cothread, base int, results []object.Value, unpack uint8) {
	if unpack == code.UnpackAll {
		co.EnsureStack(base + len(results))
		for i, v := range results {
			co.Stack[base+i] = v
		}
		co.XP = base + len(results)
		return
	}
	n := int(unpack)
	co.EnsureStack(base + n)
	for i := 0; i < n; i++ {
		if i < len(results) {
			co.Stack[base+i] = results[i]
		} else {
			co.Stack[base+i] = object.Null
		}
	}
}

// describeThrown renders a thrown value for ScriptError.Message when a
// script raises a non-string value (§7: THROW accepts any value).
func describeThrown(v object.Value) string {
	if v.IsString() {
		return v.AsString().String()
	}
	return "a value of type " + v.Kind().String()
}

func (vm *VM) attachLocation(co *object.Cothread, err error) error {
	se, ok := err.(*kerr.ScriptError)
	if !ok {
		return err
	}
	return vm.locate(co, se)
}
