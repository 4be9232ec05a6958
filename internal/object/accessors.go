package object

import "unsafe"

// Accessors mirror the teacher's As*(v) family: a NaN-boxed pointer is
// reinterpreted directly via unsafe.Pointer, with no registry lookup
// needed to dereference (the registry in internal/gc exists only to
// keep Go's own allocator from reclaiming the object underneath us).

func (v Value) AsString() *StringObj    { return (*StringObj)(unsafe.Pointer(v.Pointer())) }
func (v Value) AsArray() *ArrayObj      { return (*ArrayObj)(unsafe.Pointer(v.Pointer())) }
func (v Value) AsTable() *TableObj      { return (*TableObj)(unsafe.Pointer(v.Pointer())) }
func (v Value) AsLookup() *Lookup       { return (*Lookup)(unsafe.Pointer(v.Pointer())) }
func (v Value) AsFunction() *Function   { return (*Function)(unsafe.Pointer(v.Pointer())) }
func (v Value) AsNative() *NativeFunction {
	return (*NativeFunction)(unsafe.Pointer(v.Pointer()))
}
func (v Value) AsCothread() *Cothread { return (*Cothread)(unsafe.Pointer(v.Pointer())) }
func (v Value) AsU64Val() *U64ValObj  { return (*U64ValObj)(unsafe.Pointer(v.Pointer())) }

// AsVSlots reinterprets a pointer Value minted by OP_NEW_ENV as its
// backing slot vector. Only OP_NEW_ENV/OP_GET_VARENV/OP_SET_VARENV
// (§4.9's multi-slot shared varenv, unreachable from this compiler's
// own IR but dispatched for completeness) box a Value this way.
func (v Value) AsVSlots() *VSlots { return (*VSlots)(unsafe.Pointer(v.Pointer())) }

// Header returns the generic object header underlying any pointer-typed
// Value, useful for type-dispatch without committing to a concrete Go
// type (e.g. the GC thread's tracer, §4.12.3).
func (v Value) Header() *Header {
	return (*Header)(unsafe.Pointer(v.Pointer()))
}

// Kind classifies a value for error messages (§7 type_error).
func (v Value) Kind() Kind {
	switch {
	case v.IsNull():
		return KindNull
	case v.IsBool():
		return KindBool
	case v.IsNumber():
		return KindNumber
	case v.IsU64():
		return KindU64
	case v.IsString():
		return KindString
	default:
		switch v.Header().Type {
		case TypeArray:
			return KindArray
		case TypeTable:
			return KindTable
		case TypeLookup:
			return KindLookup
		case TypeFunction:
			return KindFunction
		case TypeNativeFunction:
			return KindNativeFunction
		case TypeCothread:
			return KindCothread
		default:
			return KindLookup
		}
	}
}

// Is implements the `is` operator (§3.1): identical bit pattern, except
// numbers compare by IEEE rule, strings compare by content, and a value
// `is` a lookup object L when L is on the value's prototype chain.
func (v Value) Is(other Value, protoWalk func(v Value, proto *Lookup) bool) bool {
	if v.IsNumber() && other.IsNumber() {
		return v.Number() == other.Number()
	}
	if v.IsString() && other.IsString() {
		return v.AsString().Equal(other.AsString())
	}
	if other.IsPointer() && other.Header().Type == TypeLookup {
		if proto := other.AsLookup(); proto != nil && protoWalk != nil {
			if protoWalk(v, proto) {
				return true
			}
		}
	}
	return v == other
}
