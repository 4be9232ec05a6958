package object

import "unsafe"

// Function is a closure: a compiled Program plus the captured outenv
// vectors and the enclosing lookup used to resolve `super` (§3.2).
type Function struct {
	Header
	Program *Program
	OMethod *Lookup
	Outenvs []*VSlots
}

func NewFunction(p *Program) *Function {
	return &Function{Header: Header{Type: TypeFunction}, Program: p, Outenvs: make([]*VSlots, p.OutenvCount)}
}

func (f *Function) Hdr() *Header  { return &f.Header }
func (f *Function) Addr() uintptr { return uintptr(unsafe.Pointer(f)) }

func (f *Function) Trace(out []Heap) []Heap {
	if f.Program != nil {
		out = append(out, f.Program)
	}
	if f.OMethod != nil {
		out = append(out, f.OMethod)
	}
	for _, e := range f.Outenvs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (f *Function) IsVarargs() bool  { return f.Program.CodeFlags&CodeFlagVarargs != 0 }
func (f *Function) IsGenerator() bool { return f.Program.CodeFlags&CodeFlagGenerator != 0 }

// NativeFn is the host-callable native function signature (§6.4,
// simplified from the C ABI's frame/argcount/result-count protocol into
// an idiomatic Go signature: natives receive their arguments and return
// their results or an error).
type NativeFn func(args []Value) ([]Value, error)

// NativeFunction wraps a host Go function (§3.2).
type NativeFunction struct {
	Header
	Fn         NativeFn
	Cookie     uint32
	ParamCount int
	CodeFlags  uint8
	Name       string
}

func NewNativeFunction(name string, paramCount int, fn NativeFn) *NativeFunction {
	return &NativeFunction{Header: Header{Type: TypeNativeFunction}, Fn: fn, ParamCount: paramCount, Name: name}
}

func (n *NativeFunction) Hdr() *Header  { return &n.Header }
func (n *NativeFunction) Addr() uintptr { return uintptr(unsafe.Pointer(n)) }
func (n *NativeFunction) Trace(out []Heap) []Heap { return out }

func (n *NativeFunction) Direct() bool { return n.HasFlag(FlagDirect) }

const (
	CodeFlagVarargs   uint8 = 1 << 0
	CodeFlagGenerator uint8 = 1 << 1
)
