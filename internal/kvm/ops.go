package kvm

import (
	"bytes"

	"kenaf/internal/code"
	kerr "kenaf/internal/errors"
	"kenaf/internal/object"
)

// binOp dispatches the arithmetic/comparison/identity opcodes shared by
// OP_ADD..OP_IS (§4.3, §4.9). Folding already collapses constant
// operands at compile time (ir/fold.go); this is the same arithmetic
// run against register values instead.
func (vm *VM) binOp(co *object.Cothread, op code.Op, a, b object.Value) (object.Value, error) {
	switch op {
	case code.OpAdd, code.OpSub, code.OpMul, code.OpDiv, code.OpIntdiv, code.OpMod:
		if !a.IsNumber() || !b.IsNumber() {
			return object.Null, vm.runtimeError(co, kerr.TypeError, "arithmetic requires two numbers, got %s and %s", a.Kind(), b.Kind())
		}
		x, y := a.Number(), b.Number()
		switch op {
		case code.OpAdd:
			return object.Number(x + y), nil
		case code.OpSub:
			return object.Number(x - y), nil
		case code.OpMul:
			return object.Number(x * y), nil
		case code.OpDiv:
			return object.Number(x / y), nil
		case code.OpIntdiv:
			return object.Number(floorDiv(x, y)), nil
		default: // code.OpMod
			return object.Number(floorMod(x, y)), nil
		}
	case code.OpConcat:
		return vm.concat(co, a, b)
	case code.OpEq:
		return object.Bool(valueEqual(a, b)), nil
	case code.OpNeq:
		return object.Bool(!valueEqual(a, b)), nil
	case code.OpLt, code.OpLte, code.OpGt, code.OpGte:
		return vm.compare(co, op, a, b)
	default: // code.OpIs
		return object.Bool(a.Is(b, protoChainContains)), nil
	}
}

// floorDiv and floorMod mirror ir/fold.go's constant-folding arithmetic
// exactly, so a runtime division produces the same result a compile-time
// fold of the same operands would have.
func floorDiv(a, b float64) float64 {
	q := a / b
	if q != float64(int64(q)) && (a < 0) != (b < 0) {
		return float64(int64(q)) - 1
	}
	return float64(int64(q))
}

func floorMod(a, b float64) float64 {
	return a - floorDiv(a, b)*b
}

func (vm *VM) concat(co *object.Cothread, a, b object.Value) (object.Value, error) {
	if a.IsString() && b.IsString() {
		text := append(append([]byte{}, a.AsString().Text...), b.AsString().Text...)
		s := object.NewStringBytes(text)
		vm.GC.Track(s)
		return object.Box(s), nil
	}
	if isArray(a) && isArray(b) {
		arr := object.NewArray()
		vm.GC.Track(arr)
		arr.Extend(a.AsArray().Slice())
		arr.Extend(b.AsArray().Slice())
		return object.Box(arr), nil
	}
	return object.Null, vm.runtimeError(co, kerr.TypeError, "cannot concatenate values of type %s and %s", a.Kind(), b.Kind())
}

func (vm *VM) compare(co *object.Cothread, op code.Op, a, b object.Value) (object.Value, error) {
	var c int
	switch {
	case a.IsNumber() && b.IsNumber():
		switch x, y := a.Number(), b.Number(); {
		case x < y:
			c = -1
		case x > y:
			c = 1
		default:
			c = 0
		}
	case a.IsString() && b.IsString():
		c = bytes.Compare(a.AsString().Text, b.AsString().Text)
	default:
		return object.Null, vm.runtimeError(co, kerr.TypeError, "cannot compare values of type %s and %s", a.Kind(), b.Kind())
	}
	switch op {
	case code.OpLt:
		return object.Bool(c < 0), nil
	case code.OpLte:
		return object.Bool(c <= 0), nil
	case code.OpGt:
		return object.Bool(c > 0), nil
	default: // code.OpGte
		return object.Bool(c >= 0), nil
	}
}

func valueEqual(a, b object.Value) bool {
	if a.IsNumber() && b.IsNumber() {
		return a.Number() == b.Number()
	}
	if a.IsString() && b.IsString() {
		return a.AsString().Equal(b.AsString())
	}
	return a == b
}

// protoChainContains implements the `is` operator's object-prototype
// case (§3.1): walk v's own layout chain to its root, then follow
// root.Proto's own root recursively, the same ascent GET_KEY takes
// through sealed prototypes (§4.11.1).
func protoChainContains(v object.Value, proto *object.Lookup) bool {
	if proto == nil || !isLookup(v) {
		return false
	}
	layout := v.AsLookup().Layout
	for layout != nil {
		root := layout
		for root.Prev != nil {
			root = root.Prev
		}
		if root.Proto == nil {
			return false
		}
		if root.Proto == proto {
			return true
		}
		layout = root.Proto.Layout
	}
	return false
}

func isArray(v object.Value) bool  { return v.IsPointer() && v.Header().Type == object.TypeArray }
func isTable(v object.Value) bool  { return v.IsPointer() && v.Header().Type == object.TypeTable }
func isLookup(v object.Value) bool { return v.IsPointer() && v.Header().Type == object.TypeLookup }

// getKey implements lookup_getsel's caller side for GET_KEY (§4.11.1):
// a sealed/own-layout walk for lookup objects, falling back to the
// builtin method table for the handful of value kinds that have
// methods but no Layout of their own.
func (vm *VM) getKey(obj object.Value, sel *object.StringObj) (object.Value, error) {
	name := sel.String()
	if isLookup(obj) {
		lookup := obj.AsLookup()
		s, ok := vm.Layouts.GetSel(lookup, object.Box(sel))
		if !ok {
			return object.Null, kerr.New(kerr.KeyError, "key %q not found", name)
		}
		if s.Slot.Valid() {
			return s.Slot.Get(), nil
		}
		return lookup.Slots.Get(s.SIndex), nil
	}
	if nf, ok := vm.builtinMethod(obj, name); ok {
		return object.Box(nf), nil
	}
	return object.Null, kerr.New(kerr.TypeError, "value of type %s has no key %q", obj.Kind(), name)
}

func (vm *VM) setKey(obj object.Value, sel *object.StringObj, value object.Value) error {
	name := sel.String()
	if !isLookup(obj) {
		return kerr.New(kerr.TypeError, "cannot set key %q on a value of type %s", name, obj.Kind())
	}
	lookup := obj.AsLookup()
	s, err := vm.Layouts.SetSel(lookup, object.Box(sel))
	if err != nil {
		return kerr.Wrap(err, kerr.KeyError, "cannot set key %q: %v", name, err)
	}
	if s.Slot.Valid() {
		s.Slot.Set(value)
	} else {
		lookup.Slots.Set(s.SIndex, value)
	}
	return nil
}

func (vm *VM) getIndex(obj, key object.Value) (object.Value, error) {
	switch {
	case isArray(obj):
		if !key.IsNumber() {
			return object.Null, kerr.New(kerr.TypeError, "array index must be a number, got %s", key.Kind())
		}
		arr := obj.AsArray()
		i := int(key.Number())
		if i < 0 || i >= arr.Length() {
			return object.Null, kerr.New(kerr.IndexError, "array index %d out of range (length %d)", i, arr.Length())
		}
		return arr.Get(i), nil
	case isTable(obj):
		v, ok := obj.AsTable().Get(key)
		if !ok {
			return object.Null, kerr.New(kerr.KeyError, "table has no entry for the given key")
		}
		return v, nil
	case obj.IsString():
		if !key.IsNumber() {
			return object.Null, kerr.New(kerr.TypeError, "string index must be a number, got %s", key.Kind())
		}
		s := obj.AsString()
		i := int(key.Number())
		if i < 0 || i >= len(s.Text) {
			return object.Null, kerr.New(kerr.IndexError, "string index %d out of range (length %d)", i, len(s.Text))
		}
		ch := object.NewString(string(s.Text[i : i+1]))
		vm.GC.Track(ch)
		return object.Box(ch), nil
	}
	return object.Null, kerr.New(kerr.TypeError, "value of type %s is not indexable", obj.Kind())
}

func (vm *VM) setIndex(obj, key, value object.Value) error {
	switch {
	case isArray(obj):
		if !key.IsNumber() {
			return kerr.New(kerr.TypeError, "array index must be a number, got %s", key.Kind())
		}
		arr := obj.AsArray()
		i := int(key.Number())
		if !arr.Set(i, value) {
			return kerr.New(kerr.IndexError, "array index %d out of range (length %d)", i, arr.Length())
		}
		return nil
	case isTable(obj):
		obj.AsTable().Set(key, value)
		return nil
	}
	return kerr.New(kerr.TypeError, "value of type %s does not support index assignment", obj.Kind())
}

// newObject implements NEW_OBJECT (§4.11.1 "instance layout"): new
// instances of the same prototype share a cached starting layout so
// their key->slot mapping only diverges from each other at the point
// their own fields actually differ.
func (vm *VM) newObject(protoVal object.Value) (object.Value, error) {
	if !isLookup(protoVal) {
		return object.Null, kerr.New(kerr.TypeError, "cannot construct an object from a prototype of type %s", protoVal.Kind())
	}
	proto := protoVal.AsLookup()
	root, ok := vm.Layouts.InstanceRoot(proto)
	if !ok {
		root = vm.Layouts.NewRoot(proto)
		vm.GC.Track(root)
		vm.Layouts.SetInstanceRoot(proto, root)
	}
	obj := object.NewLookup(root)
	vm.GC.Track(obj)
	return object.Box(obj), nil
}

// forEachStep advances a generic for-loop's hidden cursor register and
// writes up to n loop-variable bindings at co.Stack[bp+dst:] (§4.11.3's
// iteration protocols, simplified to a plain-index cursor for
// array/table/string; a cothread is resumed instead). Writing
// object.Null at dst+0 is the exhaustion signal OP_JT tests.
func (vm *VM) forEachStep(co *object.Cothread, bp, dst, base, n int) error {
	iterable := co.Stack[bp+base]
	cursor := int(co.Stack[bp+base+1].Number())

	switch {
	case isArray(iterable):
		arr := iterable.AsArray()
		cursor++
		if cursor >= arr.Length() {
			co.Stack[bp+dst] = object.Null
			return nil
		}
		co.Stack[bp+base+1] = object.Number(float64(cursor))
		value := arr.Get(cursor)
		if n == 1 {
			co.Stack[bp+dst] = value
		} else {
			co.Stack[bp+dst] = object.Number(float64(cursor))
			co.Stack[bp+dst+1] = value
		}

	case isTable(iterable):
		next, key, value, ok := iterable.AsTable().Next(cursor)
		if !ok {
			co.Stack[bp+dst] = object.Null
			return nil
		}
		co.Stack[bp+base+1] = object.Number(float64(next))
		if n == 1 {
			co.Stack[bp+dst] = key
		} else {
			co.Stack[bp+dst] = key
			co.Stack[bp+dst+1] = value
		}

	case iterable.IsString():
		s := iterable.AsString()
		cursor++
		if cursor >= len(s.Text) {
			co.Stack[bp+dst] = object.Null
			return nil
		}
		co.Stack[bp+base+1] = object.Number(float64(cursor))
		ch := object.NewString(string(s.Text[cursor : cursor+1]))
		vm.GC.Track(ch)
		if n == 1 {
			co.Stack[bp+dst] = object.Box(ch)
		} else {
			co.Stack[bp+dst] = object.Number(float64(cursor))
			co.Stack[bp+dst+1] = object.Box(ch)
		}

	case iterable.IsPointer() && iterable.Header().Type == object.TypeCothread:
		values, done, err := vm.ResumeGenerator(iterable.AsCothread(), nil)
		if err != nil {
			return err
		}
		if done && len(values) == 0 {
			co.Stack[bp+dst] = object.Null
			return nil
		}
		for i := 0; i < n; i++ {
			if i < len(values) {
				co.Stack[bp+dst+i] = values[i]
			} else {
				co.Stack[bp+dst+i] = object.Null
			}
		}

	default:
		return kerr.New(kerr.TypeError, "value of type %s is not iterable", iterable.Kind())
	}
	return nil
}

// runtimeError builds a ScriptError for an implicit failure (as
// opposed to an explicit THROW) and immediately attaches the current
// source location and call stack, since the caller has no separate
// error value to pass through attachLocation.
func (vm *VM) runtimeError(co *object.Cothread, kind kerr.Kind, format string, args ...any) *kerr.ScriptError {
	return vm.locate(co, kerr.New(kind, format, args...))
}

// locate fills in a ScriptError's source location and call stack from
// co's current frames (§4.10 unwind): innermost frame first, mirroring
// a normal stack trace's read order.
func (vm *VM) locate(co *object.Cothread, err *kerr.ScriptError) *kerr.ScriptError {
	var stack []kerr.StackFrame
	for i := len(co.Frames) - 1; i >= 0; i-- {
		f := &co.Frames[i]
		if f.Function != nil {
			prog := f.Function.Program
			file, line, col := "", 0, 0
			if prog.Script != nil {
				file = prog.Script.Name
				if idx := f.IP - 1; idx >= 0 && idx < len(prog.Slocs) {
					line, col = prog.Script.Locate(prog.Slocs[idx])
				}
			}
			stack = append(stack, kerr.StackFrame{Function: prog.Name, File: file, Line: line, Column: col})
		} else if f.Native != nil {
			stack = append(stack, kerr.StackFrame{Function: f.Native.Name})
		}
	}
	if len(stack) > 0 {
		err.At(stack[0].File, stack[0].Line, stack[0].Column)
	}
	return err.WithStack(stack)
}
