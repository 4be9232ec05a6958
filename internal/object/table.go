package object

import (
	"math"
	"unsafe"
)

// TableObj is Kenaf's table: an open-addressed, cuckoo-displacement hash
// array (§3.2, §4.11.2). Keys and values are arbitrary Values; string
// keys hash and compare by content, every other value hashes by its raw
// bit pattern (reference identity for heap pointers).
type TableObj struct {
	Header
	kv     *KVSlots
	length int
}

func NewTable() *TableObj {
	return &TableObj{Header: Header{Type: TypeTable}, kv: NewKVSlots(8)}
}

func (t *TableObj) Hdr() *Header  { return &t.Header }
func (t *TableObj) Addr() uintptr { return uintptr(unsafe.Pointer(t)) }

func (t *TableObj) Trace(out []Heap) []Heap {
	if t.kv != nil {
		out = append(out, t.kv)
	}
	return out
}

func (t *TableObj) Length() int { return t.length }

// hashValue computes the table's internal hash for a key (§4.11.2).
func hashValue(key Value) uint64 {
	switch {
	case key.IsString():
		return key.AsString().Hash()
	case key.IsNumber():
		bits := math.Float64bits(key.Number())
		bits ^= bits >> 33
		bits *= 0xff51afd7ed558ccd
		bits ^= bits >> 33
		return bits
	default:
		x := uint64(key)
		x ^= x >> 30
		x *= 0xbf58476d1ce4e5b9
		x ^= x >> 27
		return x
	}
}

func keyEqual(a, b Value) bool {
	if a.IsString() && b.IsString() {
		return a.AsString().Equal(b.AsString())
	}
	if a.IsNumber() && b.IsNumber() {
		return a.Number() == b.Number()
	}
	return a == b
}

func (t *TableObj) mainPos(key Value) int {
	return int(hashValue(key) % uint64(t.kv.Count))
}

// findFreeNear scans upward then downward from pos (wrapping modulo
// Count) for a free slot, per §4.11.2 step 2/3.
func (t *TableObj) findFreeNear(pos int) (int, bool) {
	n := t.kv.Count
	for d := 1; d < n; d++ {
		up := (pos + d) % n
		if t.kv.Slots[up].Next == NextFree {
			return up, true
		}
		down := ((pos-d)%n + n) % n
		if t.kv.Slots[down].Next == NextFree {
			return down, true
		}
	}
	return 0, false
}

func (t *TableObj) grow() {
	old := t.kv
	t.kv = NewKVSlots(old.Count * 2)
	t.length = 0
	for i := range old.Slots {
		if old.Slots[i].Next != NextFree {
			t.Set(old.Slots[i].K, old.Slots[i].V)
		}
	}
}

// Get returns the value for key and whether it was present.
func (t *TableObj) Get(key Value) (Value, bool) {
	pos := t.mainPos(key)
	slot := &t.kv.Slots[pos]
	if slot.Next == NextFree {
		return Null, false
	}
	for {
		if keyEqual(slot.K, key) {
			return slot.V, true
		}
		if slot.Next == NextEnd {
			return Null, false
		}
		slot = &t.kv.Slots[slot.Next]
	}
}

func (t *TableObj) Has(key Value) bool {
	_, ok := t.Get(key)
	return ok
}

// Set inserts or updates key -> value, implementing the three-case
// cuckoo insertion of §4.11.2.
func (t *TableObj) Set(key, value Value) {
	if float64(t.length+1) > float64(t.kv.Count)*0.75 {
		t.grow()
	}

	pos := t.mainPos(key)
	main := &t.kv.Slots[pos]

	// Update in place if the key already exists anywhere in the chain.
	for cur, idx := main, pos; ; {
		if cur.Next != NextFree && keyEqual(cur.K, key) {
			cur.V = value
			return
		}
		_ = idx
		if cur.Next == NextFree || cur.Next == NextEnd {
			break
		}
		idx = int(cur.Next)
		cur = &t.kv.Slots[idx]
	}

	// Case 1: main position free.
	if main.Next == NextFree {
		main.K, main.V, main.Next = key, value, NextEnd
		t.length++
		return
	}

	occupantPos := t.mainPos(main.K)
	if occupantPos == pos {
		// Case 2: occupant legitimately owns this bucket; splice the
		// new entry in right after it.
		free, ok := t.findFreeNear(pos)
		if !ok {
			t.grow()
			t.Set(key, value)
			return
		}
		t.kv.Slots[free] = KVSlot{K: key, V: value, Next: main.Next}
		main.Next = int32(free)
		t.length++
		return
	}

	// Case 3: occupant is a cuckoo displaced from elsewhere. Find the
	// slot in occupant's chain that points at pos, evict occupant to a
	// free slot, patch that predecessor, then install the new key here.
	predIdx := occupantPos
	pred := &t.kv.Slots[predIdx]
	for int(pred.Next) != pos {
		predIdx = int(pred.Next)
		pred = &t.kv.Slots[predIdx]
	}
	free, ok := t.findFreeNear(pos)
	if !ok {
		t.grow()
		t.Set(key, value)
		return
	}
	t.kv.Slots[free] = *main
	pred.Next = int32(free)
	*main = KVSlot{K: key, V: value, Next: NextEnd}
	t.length++
}

// Delete removes key, unlinking its chain node and, if it was the main
// position entry, promoting the next chain entry into that slot
// (§4.11.2 "Deletion").
func (t *TableObj) Delete(key Value) bool {
	pos := t.mainPos(key)
	main := &t.kv.Slots[pos]
	if main.Next == NextFree {
		return false
	}
	if keyEqual(main.K, key) {
		if main.Next == NextEnd {
			*main = KVSlot{Next: NextFree}
		} else {
			nextIdx := main.Next
			*main = t.kv.Slots[nextIdx]
			t.kv.Slots[nextIdx] = KVSlot{Next: NextFree}
		}
		t.length--
		return true
	}
	predIdx := pos
	for {
		pred := &t.kv.Slots[predIdx]
		if pred.Next == NextEnd {
			return false
		}
		idx := int(pred.Next)
		cand := &t.kv.Slots[idx]
		if keyEqual(cand.K, key) {
			pred.Next = cand.Next
			*cand = KVSlot{Next: NextFree}
			t.length--
			return true
		}
		predIdx = idx
	}
}

// Next advances a table iterator stored as a plain index on the value stack
// (§4.11.2 "Iteration"), returning the next occupied slot index (or -1
// when exhausted) plus its key/value.
func (t *TableObj) Next(i int) (next int, key, value Value, ok bool) {
	for i++; i < t.kv.Count; i++ {
		if t.kv.Slots[i].Next != NextFree {
			return i, t.kv.Slots[i].K, t.kv.Slots[i].V, true
		}
	}
	return -1, Null, Null, false
}
