package object

import "unsafe"

// Layout is a hidden class (§3.2, §4.11.1): one node per key added to a
// lookup object, each recording the slot index its key occupies. The
// chain is singly linked two ways: Prev walks toward the root (Prev ==
// nil), and Next caches the unique forward successor for the common
// case where the same key is always added next (§3.2). A node's SIndex
// is Prev.SIndex + 1; the root carries no key and its SIndex is
// ^uint32(0), so the first key occupies slot 0.
//
// The C original overlays "parent layout node" and "parent prototype
// object" in a single `parent` field (a root's parent is a *lookup*,
// every other node's parent is the *previous layout*). Go has no
// portable way to alias two pointer types in one field without
// `unsafe`, so this splits that union into Prev (layout chain) and
// Proto (prototype object, meaningful only when Prev == nil).
type Layout struct {
	Header
	Prev   *Layout
	Proto  *Lookup // prototype object; only set on root nodes
	Key    Value   // null on the root node
	Cookie uint32  // unique id minted from LayoutTable.nextCookie
	SIndex uint32
	Next   *Layout // cached unique forward successor (fast path)
}

func (l *Layout) Hdr() *Header  { return &l.Header }
func (l *Layout) Addr() uintptr { return uintptr(unsafe.Pointer(l)) }
func (l *Layout) IsRoot() bool  { return l.Prev == nil }

func (l *Layout) Trace(out []Heap) []Heap {
	if l.Prev != nil {
		out = append(out, l.Prev)
	}
	if l.Proto != nil {
		out = append(out, l.Proto)
	}
	if l.Next != nil {
		out = append(out, l.Next)
	}
	return out
}

// SplitKey identifies an alternate successor layout keyed by the layout
// it branches from plus the key added (§3.2: "Alternate successor
// layouts are stored in the VM's splitkey_layouts table").
type SplitKey struct {
	Parent *Layout
	Key    Value
}

// Lookup is the general user-facing object: a layout (defining its
// key -> slot mapping) plus a value-slot vector holding the slots
// themselves (§3.2).
type Lookup struct {
	Header
	Layout *Layout
	Slots  *VSlots
}

func NewLookup(root *Layout) *Lookup {
	return &Lookup{Header: Header{Type: TypeLookup}, Layout: root, Slots: NewVSlots(0)}
}

func (o *Lookup) Hdr() *Header  { return &o.Header }
func (o *Lookup) Addr() uintptr { return uintptr(unsafe.Pointer(o)) }

func (o *Lookup) Trace(out []Heap) []Heap {
	if o.Layout != nil {
		out = append(out, o.Layout)
	}
	if o.Slots != nil {
		out = append(out, o.Slots)
	}
	return out
}

func (o *Lookup) Sealed() bool { return o.HasFlag(FlagSealed) }
func (o *Lookup) Seal()        { o.SetFlag(FlagSealed) }

// SlotRef is an absolute, atomic-safe reference to one slot of a
// specific VSlots vector (§4.11.1: the absolute slot pointer cached
// when a selector hits on a sealed prototype).
type SlotRef struct {
	V *VSlots
	I uint32
}

func (s SlotRef) Get() Value   { return s.V.Get(s.I) }
func (s SlotRef) Set(v Value)  { s.V.Set(s.I, v) }
func (s SlotRef) Valid() bool  { return s.V != nil }

// Selector is the inline cache attached to a GET_KEY/SET_KEY bytecode
// site (§3.3, §4.11.1). Cookie must match the object's *current*
// layout cookie for SIndex/Slot to be trusted; on mismatch the cache is
// stale and must be rebuilt by a full lookup_getsel/lookup_setsel walk.
type Selector struct {
	Cookie uint32
	SIndex uint32
	Slot   SlotRef // set instead of SIndex when the hit is on a prototype
}

func (s Selector) Valid(cur *Layout) bool {
	return cur != nil && s.Cookie == cur.Cookie
}
