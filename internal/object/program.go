package object

import "unsafe"

// Program is a compiled function (§3.2). Ops holds raw 32-bit bytecode
// words; internal/code owns the opcode/field encoding so this package
// stays free of a dependency on the encoder. Selectors name the GET_KEY
// / SET_KEY inline-cache sites by their interned key string.
type Program struct {
	Header
	Ops         []uint32
	Constants   []Value
	Selectors   []*StringObj
	Functions   []*Program
	Script      *Script
	Name        string
	ParamCount  int
	StackSize   int
	OutenvCount int
	CodeFlags   uint8

	// Slocs[i] is a raw source offset into Script's text for Ops[i],
	// used by Script.Locate (§3.2 "per-op source-location array").
	Slocs []uint32
}

func (p *Program) Hdr() *Header  { return &p.Header }
func (p *Program) Addr() uintptr { return uintptr(unsafe.Pointer(p)) }

func (p *Program) Trace(out []Heap) []Heap {
	for _, c := range p.Constants {
		// Constants are NUMBER or STRING only (§4.5 foldk); numbers
		// carry no heap reference.
		if c.IsString() {
			out = append(out, c.AsString())
		}
	}
	for _, s := range p.Selectors {
		if s != nil {
			out = append(out, s)
		}
	}
	for _, f := range p.Functions {
		if f != nil {
			out = append(out, f)
		}
	}
	if p.Script != nil {
		out = append(out, p.Script)
	}
	return out
}

func (p *Program) OpCount() int       { return len(p.Ops) }
func (p *Program) ConstantCount() int { return len(p.Constants) }
func (p *Program) SelectorCount() int { return len(p.Selectors) }
func (p *Program) FunctionCount() int { return len(p.Functions) }

// Script carries a loaded unit's source metadata: its name and the
// table of newline offsets used to map a raw source offset to a
// (line, column) pair (§3.2).
type Script struct {
	Header
	Name     string
	Newlines []uint32 // sorted offsets of '\n' bytes in the source
	ID       [16]byte // uuid.UUID, minted by internal/compiler's newScriptID
}

func (s *Script) Hdr() *Header  { return &s.Header }
func (s *Script) Addr() uintptr { return uintptr(unsafe.Pointer(s)) }
func (s *Script) Trace(out []Heap) []Heap { return out }

// Locate maps a raw byte offset into (line, column), both 1-based.
func (s *Script) Locate(offset uint32) (line, column int) {
	line = 1
	lastNewline := -1
	for _, nl := range s.Newlines {
		if nl >= offset {
			break
		}
		line++
		lastNewline = int(nl)
	}
	column = int(offset) - lastNewline
	return
}
