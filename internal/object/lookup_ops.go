package object

import "errors"

var (
	ErrSealed      = errors.New("object: lookup is sealed")
	ErrKeyNotFound = errors.New("object: key not found")
)

// GetSel implements lookup_getsel (§4.11.1): walk obj's own layout
// chain from its current (deepest) node toward the root; on a miss,
// fall through to the prototype chain, where the returned selector
// caches an absolute slot pointer instead of a bare index, because the
// prototype is sealed and its slot addresses never move.
func (lt *LayoutTable) GetSel(obj *Lookup, key Value) (Selector, bool) {
	base := obj.Layout
	for n := base; n.Prev != nil; n = n.Prev {
		if keyEqual(n.Key, key) {
			return Selector{Cookie: base.Cookie, SIndex: n.SIndex}, true
		}
	}
	root := base
	for root.Prev != nil {
		root = root.Prev
	}
	if root.Proto == nil {
		return Selector{}, false
	}
	if psel, ok := lt.GetSel(root.Proto, key); ok {
		var slot SlotRef
		if psel.Slot.Valid() {
			slot = psel.Slot
		} else {
			slot = SlotRef{V: root.Proto.Slots, I: psel.SIndex}
		}
		return Selector{Cookie: base.Cookie, Slot: slot}, true
	}
	return Selector{}, false
}

// SetSel implements lookup_setsel (§4.11.1): same walk restricted to
// obj's own chain; on a miss, if obj is unsealed, advance its layout
// (minting or reusing a successor node) and grow its vslots if needed.
func (lt *LayoutTable) SetSel(obj *Lookup, key Value) (Selector, error) {
	base := obj.Layout
	for n := base; n.Prev != nil; n = n.Prev {
		if keyEqual(n.Key, key) {
			return Selector{Cookie: base.Cookie, SIndex: n.SIndex}, nil
		}
	}
	if obj.Sealed() {
		return Selector{}, ErrSealed
	}
	next := lt.Advance(base, key)
	if int(next.SIndex) >= obj.Slots.Len() {
		obj.Slots = obj.Slots.Grow(int(next.SIndex) + 1)
	}
	obj.Layout = next
	return Selector{Cookie: next.Cookie, SIndex: next.SIndex}, nil
}

// DelKey implements lookup_delkey (§4.11.1): rewind past the deleted
// key and re-append every subsequent key, copying slot values to their
// new positions, rejecting sealed objects.
func (lt *LayoutTable) DelKey(obj *Lookup, key Value) error {
	if obj.Sealed() {
		return ErrSealed
	}
	var chain []*Layout
	for n := obj.Layout; n.Prev != nil; n = n.Prev {
		chain = append(chain, n)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	root := obj.Layout
	for root.Prev != nil {
		root = root.Prev
	}

	cur := root
	newSlots := NewVSlots(obj.Slots.Len())
	found := false
	for _, node := range chain {
		if keyEqual(node.Key, key) {
			found = true
			continue
		}
		oldVal := obj.Slots.Get(node.SIndex)
		cur = lt.Advance(cur, node.Key)
		if int(cur.SIndex) >= newSlots.Len() {
			newSlots = newSlots.Grow(int(cur.SIndex) + 1)
		}
		newSlots.Set(cur.SIndex, oldVal)
	}
	if !found {
		return ErrKeyNotFound
	}
	obj.Layout = cur
	obj.Slots = newSlots
	return nil
}

// Seal seals a prototype lookup, per §4.11.1 "Becoming a prototype...
// SEALs the object", and registers a fresh root layout whose Proto is
// proto as the instance root new instances attach to.
func (lt *LayoutTable) SealPrototype(proto *Lookup) {
	proto.Seal()
	lt.SetInstanceRoot(proto, lt.NewRoot(proto))
}
