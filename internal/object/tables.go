package object

import "sync"

// KeyPool interns key strings so that, per §3.3, at most one key string
// per (size, bytes) exists in the VM. It is one of the GC's weak tables
// (§4.12.1/§4.12.4): entries whose string is swept (coloured with the
// old epoch colour at mark->sweep) are dropped here too.
type KeyPool struct {
	mu      sync.Mutex
	entries map[StringKeyOf]*StringObj
}

func NewKeyPool() *KeyPool {
	return &KeyPool{entries: make(map[StringKeyOf]*StringObj)}
}

// Intern returns the unique key StringObj for text, allocating and
// flagging one with FlagKey on first use.
func (p *KeyPool) Intern(text string) *StringObj {
	tmp := NewString(text)
	k := tmp.KeyOf()

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.entries[k]; ok {
		return s
	}
	tmp.SetFlag(FlagKey)
	p.entries[k] = tmp
	return tmp
}

// Prune drops entries whose string has been coloured dead by the
// current sweep, per §4.12.1's MARK->SWEEP transition.
func (p *KeyPool) Prune(isDead func(Heap) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, s := range p.entries {
		if isDead(s) {
			delete(p.entries, k)
		}
	}
}

func (p *KeyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// U64Pool interns u64 values too large to inline (§3.2, §4.11.4).
type U64Pool struct {
	mu      sync.Mutex
	entries map[uint64]*U64ValObj
}

func NewU64Pool() *U64Pool {
	return &U64Pool{entries: make(map[uint64]*U64ValObj)}
}

func (p *U64Pool) Intern(u uint64) *U64ValObj {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.entries[u]; ok {
		return v
	}
	v := NewU64Val(u)
	p.entries[u] = v
	return v
}

func (p *U64Pool) Prune(isDead func(Heap) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range p.entries {
		if isDead(v) {
			delete(p.entries, k)
		}
	}
}

// LayoutTable owns layout-chain construction: cookie minting, the
// per-(parent,key) alternate-successor table, and per-prototype
// instance-layout attachment (§3.2, §4.11.1).
type LayoutTable struct {
	mu         sync.Mutex
	nextCookie uint32
	splitkeys  map[SplitKey]*Layout
	instances  map[*Lookup]*Layout // prototype -> its instances' starting layout
}

func NewLayoutTable() *LayoutTable {
	return &LayoutTable{
		splitkeys: make(map[SplitKey]*Layout),
		instances: make(map[*Lookup]*Layout),
	}
}

func (lt *LayoutTable) mintCookie() uint32 {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.nextCookie++
	return lt.nextCookie
}

// NewRoot allocates a fresh root layout node (Key == Null) for a
// prototype lookup (or nil for the base root object's own root). Its
// SIndex is ^uint32(0), so the first key added after it wraps to slot 0.
func (lt *LayoutTable) NewRoot(proto *Lookup) *Layout {
	return &Layout{Header: Header{Type: TypeLayout}, Proto: proto, Key: Null, Cookie: lt.mintCookie(), SIndex: ^uint32(0)}
}

// Advance returns the layout reached by adding key to cur, reusing
// cur.Next when it already matches, else consulting splitkey_layouts,
// else minting a new node (§4.11.1 lookup_setsel).
func (lt *LayoutTable) Advance(cur *Layout, key Value) *Layout {
	if cur.Next != nil && keyEqual(cur.Next.Key, key) {
		return cur.Next
	}
	sk := SplitKey{Parent: cur, Key: key}

	lt.mu.Lock()
	if alt, ok := lt.splitkeys[sk]; ok {
		lt.mu.Unlock()
		return alt
	}
	lt.mu.Unlock()

	next := &Layout{Header: Header{Type: TypeLayout}, Prev: cur, Key: key, Cookie: lt.mintCookie(), SIndex: cur.SIndex + 1}
	if cur.Next == nil {
		cur.Next = next
	} else {
		lt.mu.Lock()
		lt.splitkeys[sk] = next
		lt.mu.Unlock()
	}
	return next
}

func (lt *LayoutTable) InstanceRoot(proto *Lookup) (*Layout, bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.instances[proto]
	return l, ok
}

func (lt *LayoutTable) SetInstanceRoot(proto *Lookup, root *Layout) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.instances[proto] = root
}

func (lt *LayoutTable) Prune(isDead func(Heap) bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	for k, v := range lt.splitkeys {
		if isDead(v) {
			delete(lt.splitkeys, k)
		}
	}
	for k, v := range lt.instances {
		if isDead(k) || isDead(v) {
			delete(lt.instances, k)
		}
	}
}

// RootSet is the external-root multiset keyed by object address (§9
// "External roots use a multiset refcount table keyed by object
// address"), backing the host retain/release API (§6.4).
type RootSet struct {
	mu   sync.Mutex
	objs map[uintptr]Heap
}

func NewRootSet() *RootSet {
	return &RootSet{objs: make(map[uintptr]Heap)}
}

func (r *RootSet) Retain(h Heap) {
	h.Hdr().Retain()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objs[h.Addr()] = h
}

func (r *RootSet) Release(h Heap) {
	if h.Hdr().Release() == 0 {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.objs, h.Addr())
	}
}

func (r *RootSet) Each(fn func(Heap)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.objs {
		fn(h)
	}
}
