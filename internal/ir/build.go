package ir

import "kenaf/internal/ast"

// Builder constructs a Function's SSA-ish form on the fly while
// walking a resolved ast.Function once (§4.2.3). defs[block][local]
// is the most recent op defining local in that block; use() walks
// predecessors, inserting a PHI (or REF once it collapses) when a
// block has more than one reaching definition.
type Builder struct {
	fn   *Function
	defs map[int]map[int]int

	breakFixups    [][]int // per nesting level, block indices needing a jump patched to the loop's exit
	continueFixups [][]int
}

func Build(src *ast.Function) *Function {
	b := &Builder{
		fn:   &Function{Name: src.Name, ParamCount: src.ParamCount, LocalCount: src.LocalCount, IsVarargs: src.IsVarargs, IsGenerator: src.IsGenerator},
		defs: make(map[int]map[int]int),
	}
	entry := b.fn.newBlock(BlockBasic)
	b.fn.Blocks[entry].Sealed = true

	for i := 0; i < src.ParamCount; i++ {
		b.def(entry, i, b.fn.emit(Op{Opcode: OpMov, Block: entry, Local: i, Operands: []Operand{{Kind: OperandLocal, Imm: int32(i)}}}))
	}

	cur := entry
	if src.Root >= 0 {
		cur = b.walkStmt(src, src.Root, cur)
	}
	b.fn.emit(Op{Opcode: OpReturn, Block: cur})

	for _, nestedSrc := range src.Nested {
		b.fn.Nested = append(b.fn.Nested, Build(nestedSrc))
	}
	return b.fn
}

func (b *Builder) def(block, local, op int) {
	m, ok := b.defs[block]
	if !ok {
		m = make(map[int]int)
		b.defs[block] = m
	}
	m[local] = op
}

// use resolves the current SSA value of local as observed from block,
// recursing through predecessors and inserting phis at merge points
// (§4.2.3 search_def/close_phi).
func (b *Builder) use(block, local int) int {
	if m, ok := b.defs[block]; ok {
		if op, ok := m[local]; ok {
			return op
		}
	}
	phi := b.fn.emit(Op{Opcode: OpPhi, Block: block, Local: local})
	b.def(block, local, phi)
	if b.fn.Blocks[block].Sealed {
		b.closePhi(block, local, phi)
	}
	return phi
}

// closePhi fills in a phi's operands once its block is sealed,
// collapsing to REF when every predecessor agrees on one distinct
// definition (§4.2.3).
func (b *Builder) closePhi(block, local, phi int) {
	preds := b.fn.Blocks[block].Preds
	operands := make([]Operand, 0, len(preds))
	var distinct []int
	for _, p := range preds {
		d := b.use(p, local)
		if d == phi {
			continue
		}
		operands = append(operands, Operand{Kind: OperandRef, Op: d})
		seen := false
		for _, x := range distinct {
			if x == d {
				seen = true
			}
		}
		if !seen {
			distinct = append(distinct, d)
		}
	}
	if len(distinct) <= 1 {
		b.fn.Ops[phi].Opcode = OpRef
		if len(distinct) == 1 {
			b.fn.Ops[phi].Operands = []Operand{{Kind: OperandRef, Op: distinct[0]}}
		}
		return
	}
	b.fn.Ops[phi].Operands = operands
}

func (b *Builder) sealBlock(block int) {
	b.fn.Blocks[block].Sealed = true
	if m, ok := b.defs[block]; ok {
		for local, op := range m {
			if b.fn.Ops[op].Opcode == OpPhi && len(b.fn.Ops[op].Operands) == 0 {
				b.closePhi(block, local, op)
			}
		}
	}
}

func (b *Builder) addPred(block, pred int) {
	b.fn.Blocks[block].Preds = append(b.fn.Blocks[block].Preds, pred)
}
