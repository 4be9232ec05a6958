package ir

import "kenaf/internal/object"

// FoldK builds fn's constant and selector tables and rewrites literal
// operands to index into them (§4.5): every ConstNumber/ConstString op
// becomes an indexed reference, and every GetKey/SetKey/call-method
// selector name is interned into Selectors exactly once.
func FoldK(fn *Function) {
	numIndex := make(map[float64]int)
	strIndex := make(map[string]int)
	selIndex := make(map[string]int)

	internNumber := func(v float64) int {
		if i, ok := numIndex[v]; ok {
			return i
		}
		i := len(fn.Constants)
		fn.Constants = append(fn.Constants, object.Number(v))
		numIndex[v] = i
		return i
	}
	internString := func(s string) int {
		if i, ok := strIndex[s]; ok {
			return i
		}
		// String constants are recorded as raw text here; interning
		// them into actual StringObj constants happens at load time
		// (internal/kvm), once a KeyPool/heap is available to hold them.
		i := len(fn.ConstStrings)
		fn.ConstStrings = append(fn.ConstStrings, s)
		strIndex[s] = i
		return i
	}
	internSelector := func(s string) int {
		if i, ok := selIndex[s]; ok {
			return i
		}
		i := len(fn.Selectors)
		fn.Selectors = append(fn.Selectors, s)
		selIndex[s] = i
		return i
	}

	for i := range fn.Ops {
		op := &fn.Ops[i]
		if op.Dead {
			continue
		}
		switch op.Opcode {
		case OpConstNumber:
			idx := internNumber(op.Operands[0].Num)
			op.Operands = []Operand{{Kind: OperandConst, Imm: int32(idx)}}
		case OpConstString:
			idx := internString(op.Operands[0].Str)
			op.Operands = []Operand{{Kind: OperandConstStr, Imm: int32(idx)}}
		}
		if op.Selector != "" {
			op.Operands = append(op.Operands, Operand{Kind: OperandSelector, Imm: int32(internSelector(op.Selector))})
		}
	}

	for i := range fn.Nested {
		FoldK(fn.Nested[i])
	}
}
