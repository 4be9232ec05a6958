package code

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Magic identifies a packed code_script blob (§6.1).
const Magic uint32 = 0x5D2A2A5B

// FunctionUnit is one function's serializable payload: bytecode words,
// constant/string/selector tables, and the metadata a loader needs to
// build an object.Program (§4.8, §6.1).
type FunctionUnit struct {
	Name        string
	Ops         []Instruction
	Numbers     []float64
	Strings     []string
	Selectors   []string
	ParamCount  int
	StackSize   int
	OutenvCount int
	IsVarargs   bool
	IsGenerator bool
	Slocs       []uint32
	Nested      []*FunctionUnit
}

// Unit is a whole code_script: every top-level function plus the
// source name the script was compiled from.
type Unit struct {
	SourceName string
	Functions  []*FunctionUnit
	ScriptID   [16]byte
}

// Pack serializes u into the code_script binary layout.
func Pack(u *Unit) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, Magic)
	writeString(&buf, u.SourceName)
	buf.Write(u.ScriptID[:])
	writeUint32(&buf, uint32(len(u.Functions)))
	for _, fn := range u.Functions {
		packFunction(&buf, fn)
	}
	return buf.Bytes()
}

func packFunction(buf *bytes.Buffer, fn *FunctionUnit) {
	writeString(buf, fn.Name)
	writeUint32(buf, uint32(fn.ParamCount))
	writeUint32(buf, uint32(fn.StackSize))
	writeUint32(buf, uint32(fn.OutenvCount))
	var flags uint8
	if fn.IsVarargs {
		flags |= 1
	}
	if fn.IsGenerator {
		flags |= 2
	}
	buf.WriteByte(flags)

	writeUint32(buf, uint32(len(fn.Ops)))
	for _, op := range fn.Ops {
		binary.Write(buf, binary.LittleEndian, uint32(op))
	}

	writeUint32(buf, uint32(len(fn.Numbers)))
	for _, n := range fn.Numbers {
		binary.Write(buf, binary.LittleEndian, n)
	}

	writeUint32(buf, uint32(len(fn.Strings)))
	for _, s := range fn.Strings {
		writeString(buf, s)
	}

	writeUint32(buf, uint32(len(fn.Selectors)))
	for _, s := range fn.Selectors {
		writeString(buf, s)
	}

	writeUint32(buf, uint32(len(fn.Slocs)))
	for _, s := range fn.Slocs {
		writeUint32(buf, s)
	}

	writeUint32(buf, uint32(len(fn.Nested)))
	for _, nested := range fn.Nested {
		packFunction(buf, nested)
	}
}

// Unpack parses a code_script blob previously produced by Pack.
func Unpack(data []byte) (*Unit, error) {
	r := bytes.NewReader(data)
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("code: bad magic %#x", magic)
	}
	u := &Unit{}
	var err error
	if u.SourceName, err = readString(r); err != nil {
		return nil, err
	}
	if _, err := r.Read(u.ScriptID[:]); err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	u.Functions = make([]*FunctionUnit, count)
	for i := range u.Functions {
		if u.Functions[i], err = unpackFunction(r); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func unpackFunction(r *bytes.Reader) (*FunctionUnit, error) {
	fn := &FunctionUnit{}
	var err error
	if fn.Name, err = readString(r); err != nil {
		return nil, err
	}
	paramCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.ParamCount = int(paramCount)
	stackSize, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.StackSize = int(stackSize)
	outenvCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.OutenvCount = int(outenvCount)
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	fn.IsVarargs = flags&1 != 0
	fn.IsGenerator = flags&2 != 0

	opCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.Ops = make([]Instruction, opCount)
	for i := range fn.Ops {
		var w uint32
		if err := binary.Read(r, binary.LittleEndian, &w); err != nil {
			return nil, err
		}
		fn.Ops[i] = Instruction(w)
	}

	numCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.Numbers = make([]float64, numCount)
	for i := range fn.Numbers {
		if err := binary.Read(r, binary.LittleEndian, &fn.Numbers[i]); err != nil {
			return nil, err
		}
	}

	strCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.Strings = make([]string, strCount)
	for i := range fn.Strings {
		if fn.Strings[i], err = readString(r); err != nil {
			return nil, err
		}
	}

	selCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.Selectors = make([]string, selCount)
	for i := range fn.Selectors {
		if fn.Selectors[i], err = readString(r); err != nil {
			return nil, err
		}
	}

	slocCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.Slocs = make([]uint32, slocCount)
	for i := range fn.Slocs {
		if fn.Slocs[i], err = readUint32(r); err != nil {
			return nil, err
		}
	}

	nestedCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fn.Nested = make([]*FunctionUnit, nestedCount)
	for i := range fn.Nested {
		if fn.Nested[i], err = unpackFunction(r); err != nil {
			return nil, err
		}
	}
	return fn, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	binary.Write(buf, binary.LittleEndian, v)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}
