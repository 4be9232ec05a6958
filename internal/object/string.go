package object

import (
	"hash/maphash"
	"unsafe"
)

// StringObj is Kenaf's immutable string object (§3.2).
type StringObj struct {
	Header
	Text []byte
	hash uint64
	hset bool
}

var stringHashSeed = maphash.MakeSeed()

func NewString(text string) *StringObj {
	return &StringObj{Header: Header{Type: TypeString}, Text: []byte(text)}
}

func NewStringBytes(text []byte) *StringObj {
	cp := make([]byte, len(text))
	copy(cp, text)
	return &StringObj{Header: Header{Type: TypeString}, Text: cp}
}

func (s *StringObj) Hdr() *Header  { return &s.Header }
func (s *StringObj) Addr() uintptr { return uintptr(unsafe.Pointer(s)) }
func (s *StringObj) Trace(out []Heap) []Heap { return out }

func (s *StringObj) Len() int      { return len(s.Text) }
func (s *StringObj) String() string { return string(s.Text) }

// Hash returns the string's content hash, used both for table keys and
// for the VM's (hash, size, bytes) string interning key (§3.2, §4.11.4).
func (s *StringObj) Hash() uint64 {
	if !s.hset {
		var h maphash.Hash
		h.SetSeed(stringHashSeed)
		h.Write(s.Text)
		s.hash = h.Sum64()
		s.hset = true
	}
	return s.hash
}

func (s *StringObj) Equal(o *StringObj) bool {
	return string(s.Text) == string(o.Text)
}

// IsKey reports whether this string has been interned as a key (FlagKey,
// §3.3: "A key string always has FLAG_KEY set; at most one key string
// per (size,bytes) exists in the VM").
func (s *StringObj) IsKey() bool { return s.HasFlag(FlagKey) }

// StringKeyOf is the (hash, size, bytes) tuple the VM's key-intern table
// is keyed by (§3.2, §4.11.4). Built from Go-comparable fields so it can
// be used directly as a map key.
type StringKeyOf struct {
	Hash uint64
	Size int
	Text string
}

func (s *StringObj) KeyOf() StringKeyOf {
	return StringKeyOf{Hash: s.Hash(), Size: len(s.Text), Text: string(s.Text)}
}

// U64ValObj boxes a uint64 larger than the inline 48-bit range (§3.2,
// §4.11.4). Values within range are boxed directly by object.U64 and
// never allocate one of these.
type U64ValObj struct {
	Header
	U uint64
}

func NewU64Val(u uint64) *U64ValObj {
	return &U64ValObj{Header: Header{Type: TypeU64Val}, U: u}
}

func (u *U64ValObj) Hdr() *Header  { return &u.Header }
func (u *U64ValObj) Addr() uintptr { return uintptr(unsafe.Pointer(u)) }
func (u *U64ValObj) Trace(out []Heap) []Heap { return out }
