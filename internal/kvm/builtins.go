package kvm

import (
	kerr "kenaf/internal/errors"
	"kenaf/internal/object"
)

// installBuiltins registers the handful of globals the bytecode has no
// dedicated opcode for: constructing and driving a generator cothread
// (§4.10 OP_YIELD's counterpart). Everything else a script can do to
// an array/table/string goes through builtinMethod below instead,
// since those are per-receiver-type method lookups, not free
// functions.
func (vm *VM) installBuiltins() {
	vm.SetGlobal("cothread", object.Box(vm.bindNative("cothread", 1, func(args []object.Value) ([]object.Value, error) {
		if len(args) < 1 || !args[0].IsPointer() || args[0].Header().Type != object.TypeFunction {
			return nil, kerr.New(kerr.ArgumentError, "cothread expects a function")
		}
		fn := args[0].AsFunction()
		initial := append([]object.Value(nil), args[1:]...)
		co := vm.NewGenerator(fn, initial)
		return []object.Value{object.Box(co)}, nil
	})))

	vm.SetGlobal("resume", object.Box(vm.bindNative("resume", 1, func(args []object.Value) ([]object.Value, error) {
		if len(args) < 1 || !args[0].IsPointer() || args[0].Header().Type != object.TypeCothread {
			return nil, kerr.New(kerr.ArgumentError, "resume expects a cothread")
		}
		co := args[0].AsCothread()
		values, done, err := vm.ResumeGenerator(co, args[1:])
		if err != nil {
			return nil, err
		}
		result := make([]object.Value, 0, len(values)+1)
		result = append(result, object.Bool(!done))
		result = append(result, values...)
		return result, nil
	})))
}

func (vm *VM) bindNative(name string, paramCount int, fn object.NativeFn) *object.NativeFunction {
	nf := object.NewNativeFunction(name, paramCount, fn)
	vm.GC.Track(nf)
	return nf
}

// builtinMethod resolves name on a non-lookup receiver (array, table,
// string) to a freshly bound native function, mirroring GET_KEY's
// prototype-chain lookup for the handful of value kinds that don't
// carry a Layout of their own (§3.2: arrays/tables/strings are their
// own primitive types, not lookup objects with a sealed prototype).
func (vm *VM) builtinMethod(receiver object.Value, name string) (*object.NativeFunction, bool) {
	switch {
	case receiver.IsPointer() && receiver.Header().Type == object.TypeArray:
		return vm.arrayMethod(receiver.AsArray(), name)
	case receiver.IsPointer() && receiver.Header().Type == object.TypeTable:
		return vm.tableMethod(receiver.AsTable(), name)
	case receiver.IsString():
		return vm.stringMethod(receiver.AsString(), name)
	}
	return nil, false
}

func (vm *VM) arrayMethod(a *object.ArrayObj, name string) (*object.NativeFunction, bool) {
	switch name {
	case "length":
		return vm.bindNative(name, 0, func(args []object.Value) ([]object.Value, error) {
			return []object.Value{object.Number(float64(a.Length()))}, nil
		}), true
	case "append":
		return vm.bindNative(name, 1, func(args []object.Value) ([]object.Value, error) {
			if len(args) < 1 {
				return nil, kerr.New(kerr.ArgumentError, "append expects 1 argument")
			}
			a.Append(args[0])
			return nil, nil
		}), true
	case "extend":
		return vm.bindNative(name, 1, func(args []object.Value) ([]object.Value, error) {
			if len(args) < 1 || !args[0].IsPointer() || args[0].Header().Type != object.TypeArray {
				return nil, kerr.New(kerr.ArgumentError, "extend expects an array")
			}
			a.Extend(args[0].AsArray().Slice())
			return nil, nil
		}), true
	case "insert":
		return vm.bindNative(name, 2, func(args []object.Value) ([]object.Value, error) {
			if len(args) < 2 || !args[0].IsNumber() {
				return nil, kerr.New(kerr.ArgumentError, "insert expects (index, value)")
			}
			a.Insert(int(args[0].Number()), args[1])
			return nil, nil
		}), true
	case "remove":
		return vm.bindNative(name, 1, func(args []object.Value) ([]object.Value, error) {
			if len(args) < 1 || !args[0].IsNumber() {
				return nil, kerr.New(kerr.ArgumentError, "remove expects an index")
			}
			return []object.Value{a.Remove(int(args[0].Number()))}, nil
		}), true
	case "pop":
		return vm.bindNative(name, 0, func(args []object.Value) ([]object.Value, error) {
			v, ok := a.Pop()
			if !ok {
				return nil, kerr.New(kerr.IndexError, "pop from an empty array")
			}
			return []object.Value{v}, nil
		}), true
	case "clear":
		return vm.bindNative(name, 0, func(args []object.Value) ([]object.Value, error) {
			a.Clear()
			return nil, nil
		}), true
	}
	return nil, false
}

func (vm *VM) tableMethod(t *object.TableObj, name string) (*object.NativeFunction, bool) {
	switch name {
	case "length":
		return vm.bindNative(name, 0, func(args []object.Value) ([]object.Value, error) {
			return []object.Value{object.Number(float64(t.Length()))}, nil
		}), true
	case "has":
		return vm.bindNative(name, 1, func(args []object.Value) ([]object.Value, error) {
			if len(args) < 1 {
				return nil, kerr.New(kerr.ArgumentError, "has expects 1 argument")
			}
			return []object.Value{object.Bool(t.Has(args[0]))}, nil
		}), true
	case "delete":
		return vm.bindNative(name, 1, func(args []object.Value) ([]object.Value, error) {
			if len(args) < 1 {
				return nil, kerr.New(kerr.ArgumentError, "delete expects 1 argument")
			}
			return []object.Value{object.Bool(t.Delete(args[0]))}, nil
		}), true
	}
	return nil, false
}

func (vm *VM) stringMethod(s *object.StringObj, name string) (*object.NativeFunction, bool) {
	switch name {
	case "length":
		return vm.bindNative(name, 0, func(args []object.Value) ([]object.Value, error) {
			return []object.Value{object.Number(float64(s.Len()))}, nil
		}), true
	}
	return nil, false
}
