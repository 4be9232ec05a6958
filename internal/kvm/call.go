package kvm

import (
	kerr "kenaf/internal/errors"
	"kenaf/internal/object"
)

// Call is the host-facing entry point (§4.10, §6.4): it invokes callee
// with args on co, synchronously running it to completion (including
// any further calls it itself makes) and returning its results.
//
// Kenaf's own call stack is modelled by the Go call stack here: a
// nested Kenaf call recurses into Call again rather than trampolining
// through a single flat loop, and object.Frame exists to give the GC
// and error-unwind path something to walk without depending on Go's
// own stack layout (§4.10's call_function/call_return collapse onto
// ordinary Go function call/return at the cost of not being able to
// suspend a plain function mid-call — only a generator cothread, which
// runs on its own goroutine, can do that; see generator.go).
func (vm *VM) Call(co *object.Cothread, callee object.Value, args []object.Value) ([]object.Value, error) {
	if !callee.IsPointer() {
		return nil, kerr.New(kerr.TypeError, "value of type %s is not callable", callee.Kind())
	}
	switch callee.Header().Type {
	case object.TypeFunction:
		return vm.callFunction(co, callee.AsFunction(), args)
	case object.TypeNativeFunction:
		return vm.callNative(co, callee.AsNative(), args)
	case object.TypeLookup:
		return vm.callPrototype(co, callee.AsLookup(), args)
	default:
		return nil, kerr.New(kerr.TypeError, "value of type %s is not callable", callee.Kind())
	}
}

// callFunction implements call_function (§4.10) for an ordinary call:
// it runs fn as a ResumeCall frame with no preserved self.
func (vm *VM) callFunction(co *object.Cothread, fn *object.Function, args []object.Value) ([]object.Value, error) {
	return vm.runFunction(co, fn, args, object.ResumeCall, object.Null)
}

// selfKey names the slot call_prototype looks up on a prototype to
// find its constructor (§4.10's call_prototype, §8 scenario 4).
const selfKey = "self"

// callPrototype implements call_prototype (§4.10): calling a sealed
// prototype lookup object constructs a new instance sharing the
// prototype's cached instance layout, then runs the prototype's own
// "self" constructor bound to that instance. A bytecode constructor
// that returns zero values yields the constructed instance instead
// (OP_RETURN's PreservedSelf fallback in exec.go); a native
// constructor not marked Direct gets the same substitution so natives
// need not thread the instance back out by hand.
func (vm *VM) callPrototype(co *object.Cothread, proto *object.Lookup, args []object.Value) ([]object.Value, error) {
	sel, ok := vm.Layouts.GetSel(proto, object.Box(vm.Keys.Intern(selfKey)))
	if !ok {
		return nil, kerr.New(kerr.TypeError, "prototype has no %q constructor", selfKey)
	}
	var ctor object.Value
	if sel.Slot.Valid() {
		ctor = sel.Slot.Get()
	} else {
		ctor = proto.Slots.Get(sel.SIndex)
	}
	if !ctor.IsPointer() {
		return nil, kerr.New(kerr.TypeError, "prototype %q constructor is not callable", selfKey)
	}

	instance, err := vm.newObject(object.Box(proto))
	if err != nil {
		return nil, err
	}

	switch ctor.Header().Type {
	case object.TypeFunction:
		callArgs := append([]object.Value{instance}, args...)
		return vm.runFunction(co, ctor.AsFunction(), callArgs, object.ResumeConstruct, instance)
	case object.TypeNativeFunction:
		nf := ctor.AsNative()
		if nf.Direct() {
			// The native builds and returns its own self; trust it.
			return vm.callNative(co, nf, args)
		}
		callArgs := append([]object.Value{instance}, args...)
		results, err := vm.callNative(co, nf, callArgs)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return []object.Value{instance}, nil
		}
		return results, nil
	default:
		return nil, kerr.New(kerr.TypeError, "prototype %q constructor is not callable", selfKey)
	}
}

// runFunction implements call_function (§4.10): push a frame whose
// register window starts at the cothread's current stack top, bind
// parameters (extra arguments beyond ParamCount are dropped unless the
// program is varargs, in which case they are kept below FP for
// OpVararg to read), and run the dispatch loop until it returns or
// throws. resume and preservedSelf carry call_prototype's CONSTRUCT
// bookkeeping through to OP_RETURN; an ordinary call passes
// ResumeCall and object.Null.
func (vm *VM) runFunction(co *object.Cothread, fn *object.Function, args []object.Value, resume object.ResumeKind, preservedSelf object.Value) ([]object.Value, error) {
	prog := fn.Program

	extra := 0
	if fn.IsVarargs() && len(args) > prog.ParamCount {
		extra = len(args) - prog.ParamCount
	}

	top := co.XP
	fp := top + extra
	bp := fp
	co.EnsureStack(bp + prog.StackSize + 1)

	for i := 0; i < extra; i++ {
		co.Stack[top+i] = args[prog.ParamCount+i]
	}
	for i := 0; i < prog.ParamCount; i++ {
		if i < len(args) {
			co.Stack[bp+i] = args[i]
		} else {
			co.Stack[bp+i] = object.Null
		}
	}
	for i := prog.ParamCount; i < prog.StackSize; i++ {
		co.Stack[bp+i] = object.Null
	}

	co.PushFrame(object.Frame{Function: fn, BP: bp, FP: fp, IP: 0, Resume: resume, Extra: extra, PreservedSelf: preservedSelf})
	savedXP := co.XP
	co.XP = bp + prog.StackSize

	results, err := vm.execute(co)

	co.PopFrame()
	co.XP = savedXP
	return results, err
}

// callNative implements call_native (§4.10, §6.4): natives run as
// plain Go calls, with their own Frame pushed only so a native that
// calls back into the VM leaves an accurate call stack for error
// reporting.
func (vm *VM) callNative(co *object.Cothread, fn *object.NativeFunction, args []object.Value) ([]object.Value, error) {
	co.PushFrame(object.Frame{Native: fn, Resume: object.ResumeCall})
	defer co.PopFrame()

	results, err := fn.Fn(args)
	if err != nil {
		if _, ok := err.(*kerr.ScriptError); ok {
			return nil, err
		}
		return nil, kerr.Wrap(err, kerr.RuntimeError, "native function %q failed", fn.Name)
	}
	return results, nil
}
