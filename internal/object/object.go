// Package object implements the Kenaf data model: NaN-boxed values, the
// heap object header shared by every allocation, and the prototype-chain
// (layout) object model described in spec §3.
package object

import "sync/atomic"

// Type is the 1-byte type tag every heap object carries in its header.
type Type uint8

const (
	TypeLookup Type = iota // user lookup object
	TypeString
	TypeArray
	TypeTable
	TypeFunction
	TypeNativeFunction
	TypeCothread
	TypeU64Val
	TypeLayout
	TypeVSlots  // value-slot vector
	TypeKVSlots // key-value-slot vector
	TypeProgram
	TypeScript
)

func (t Type) String() string {
	switch t {
	case TypeLookup:
		return "lookup"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeNativeFunction:
		return "native_function"
	case TypeCothread:
		return "cothread"
	case TypeU64Val:
		return "u64val"
	case TypeLayout:
		return "layout"
	case TypeVSlots:
		return "vslots"
	case TypeKVSlots:
		return "kvslots"
	case TypeProgram:
		return "program"
	case TypeScript:
		return "script"
	default:
		return "unknown"
	}
}

// Flags, per spec §3.2.
const (
	FlagKey    uint8 = 1 << 0 // string is interned as a key
	FlagSealed uint8 = 1 << 1 // lookup's layout is frozen
	FlagDirect uint8 = 1 << 2 // native function needs no constructed self
)

// Color is the tri-colour mark used by the concurrent collector (§4.12).
// It is stored atomically: the mutator publishes new objects under
// new_color before any reference to them escapes, and both mutator and
// GC threads read/write it with relaxed-atomic semantics (§4.12.4).
type Color uint32

const (
	ColorPurple Color = iota
	ColorOrange
	ColorMarked // grey: queued for the GC thread to trace
	ColorBlack  // traced and known reachable this epoch
)

// Header is the 4-logical-byte prefix every heap object carries: colour,
// type tag, flags, and an external-root refcount (§3.2, §9 "external
// roots use a multiset refcount table"). Colour is widened to atomic.Uint32
// for atomic access; Go has no atomic byte type and the instruction-level
// overhead of a CAS-capable word is the same either way.
type Header struct {
	color    atomic.Uint32
	Type     Type
	Flags    uint8
	refcount atomic.Uint32
}

func (h *Header) Color() Color      { return Color(h.color.Load()) }
func (h *Header) SetColor(c Color)  { h.color.Store(uint32(c)) }
func (h *Header) CASColor(old, new Color) bool {
	return h.color.CompareAndSwap(uint32(old), uint32(new))
}

func (h *Header) HasFlag(f uint8) bool { return h.Flags&f != 0 }
func (h *Header) SetFlag(f uint8)      { h.Flags |= f }
func (h *Header) ClearFlag(f uint8)    { h.Flags &^= f }

func (h *Header) Retain() { h.refcount.Add(1) }
func (h *Header) Release() uint32 {
	return h.refcount.Add(^uint32(0))
}
func (h *Header) Refcount() uint32 { return h.refcount.Load() }

// Heap is the minimal interface every heap-allocated kenaf object
// satisfies: a way to reach its header (for GC colour), its own stable
// address (Go's allocator never moves live objects, so this address is
// the object's identity for the lifetime of the NaN-boxed Value that
// points at it), and a way to trace its outgoing references (for the GC
// thread's mark phase, §4.12.3).
type Heap interface {
	Hdr() *Header
	Addr() uintptr
	// Trace appends every live reference this object holds directly to
	// out, and returns the result.
	Trace(out []Heap) []Heap
}

// Box wraps a heap object's address as a NaN-boxed Value, per §3.1's
// distinct pointer-vs-string-pointer tag.
func Box(h Heap) Value {
	if h.Hdr().Type == TypeString {
		return FromStringPointer(h.Addr())
	}
	return FromPointer(h.Addr())
}
