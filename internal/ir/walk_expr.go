package ir

import "kenaf/internal/ast"

var binopToOpcode = map[ast.BinOp]Opcode{
	ast.OpAdd: OpAdd, ast.OpSub: OpSub, ast.OpMul: OpMul, ast.OpDiv: OpDiv,
	ast.OpFloorDiv: OpFloorDiv, ast.OpMod: OpMod, ast.OpConcat: OpConcat,
	ast.OpEq: OpEq, ast.OpNeq: OpNeq, ast.OpLt: OpLt, ast.OpLte: OpLte,
	ast.OpGt: OpGt, ast.OpGte: OpGte, ast.OpIs: OpIs,
}

// walkExpr lowers expression node idx, returning the block execution
// continues in (may differ from cur for and/or/ternary forms) and an
// Operand referencing its value.
func (b *Builder) walkExpr(src *ast.Function, idx int, cur int) (int, Operand) {
	n := src.Node(idx)
	switch n.Kind {
	case ast.KindNull:
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpConstNull, Block: cur})}
	case ast.KindTrue:
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpConstTrue, Block: cur})}
	case ast.KindFalse:
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpConstFalse, Block: cur})}
	case ast.KindNumber:
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpConstNumber, Block: cur, Operands: []Operand{{Kind: OperandImmediate, Num: n.Num}}})}
	case ast.KindString:
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpConstString, Block: cur, Operands: []Operand{{Kind: OperandImmediate, Str: n.Str}}})}

	case ast.KindLocalName:
		return cur, Operand{Kind: OperandRef, Op: b.use(cur, n.Local)}
	case ast.KindSuperName, ast.KindObjkeyDecl:
		return cur, Operand{Kind: OperandRef, Op: b.use(cur, n.Local)}
	case ast.KindOutenvName:
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpGetOutenv, Block: cur, Operands: []Operand{{Kind: OperandOutenv, Imm: int32(n.OutenvSlot)}}})}
	case ast.KindGlobalName:
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpGetGlobal, Block: cur, Selector: n.Text})}

	case ast.KindBinop:
		var lhs, rhs Operand
		cur, lhs = b.walkExpr(src, n.Children[0], cur)
		cur, rhs = b.walkExpr(src, n.Children[1], cur)
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: binopToOpcode[n.Op], Block: cur, Operands: []Operand{lhs, rhs}})}

	case ast.KindUnop:
		var v Operand
		cur, v = b.walkExpr(src, n.Children[0], cur)
		op := OpNeg
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: op, Block: cur, Operands: []Operand{v}})}

	case ast.KindNot:
		var v Operand
		cur, v = b.walkExpr(src, n.Children[0], cur)
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpNot, Block: cur, Operands: []Operand{v}})}

	case ast.KindCompareChain:
		return b.walkCompareChain(src, n, cur)

	case ast.KindAnd:
		return b.walkShortcut(src, n.Children[0], n.Children[1], cur, false)
	case ast.KindOr:
		return b.walkShortcut(src, n.Children[0], n.Children[1], cur, true)

	case ast.KindIf:
		return b.walkIfExpr(src, n, cur)

	case ast.KindCall:
		return b.walkCall(src, n, cur, false)
	case ast.KindMethodCall:
		return b.walkCall(src, n, cur, true)

	case ast.KindIndex:
		var recv, index Operand
		cur, recv = b.walkExpr(src, n.Children[0], cur)
		cur, index = b.walkExpr(src, n.Children[1], cur)
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpGetIndex, Block: cur, Operands: []Operand{recv, index}})}

	case ast.KindKey:
		var recv Operand
		cur, recv = b.walkExpr(src, n.Children[0], cur)
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpGetKey, Block: cur, Operands: []Operand{recv}, Selector: n.Text})}

	case ast.KindNewArray:
		ops := make([]Operand, 0, len(n.Children))
		for _, c := range n.Children {
			var v Operand
			cur, v = b.walkExpr(src, c, cur)
			ops = append(ops, v)
		}
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpNewArray, Block: cur, Operands: ops})}

	case ast.KindNewTable:
		ops := make([]Operand, 0, len(n.Children))
		for i := 0; i+1 < len(n.Children); i += 2 {
			var k, v Operand
			keyNode := src.Node(n.Children[i])
			if keyNode.Kind == ast.KindObjkeyDecl {
				k = Operand{Kind: OperandSelector, Str: keyNode.Text}
			} else {
				cur, k = b.walkExpr(src, n.Children[i], cur)
			}
			cur, v = b.walkExpr(src, n.Children[i+1], cur)
			ops = append(ops, k, v)
		}
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpNewTable, Block: cur, Operands: ops})}

	case ast.KindNewObject:
		var proto Operand
		cur, proto = b.walkExpr(src, n.Children[0], cur)
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpNewObject, Block: cur, Operands: []Operand{proto}})}

	case ast.KindSuper:
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpSuper, Block: cur})}

	case ast.KindFunctionLit:
		nested := src.Nested[n.FuncIndex]
		captures := make([]Operand, 0, len(nested.Captures))
		for _, c := range nested.Captures {
			var v Operand
			switch c.Source {
			case ast.CaptureFromOutenv:
				v = Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpGetOutenv, Block: cur, Operands: []Operand{{Kind: OperandOutenv, Imm: int32(c.ParentSlot)}}})}
			default:
				v = Operand{Kind: OperandRef, Op: b.use(cur, c.ParentSlot)}
			}
			captures = append(captures, Operand{Kind: OperandRef, Op: v.Op, Imm: int32(c.ChildSlot)})
		}
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpClosure, Block: cur, FuncIndex: n.FuncIndex, Operands: captures})}

	case ast.KindYield:
		ops := make([]Operand, 0, len(n.Children))
		for _, c := range n.Children {
			var v Operand
			cur, v = b.walkExpr(src, c, cur)
			ops = append(ops, v)
		}
		return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: OpYield, Block: cur, Operands: ops, Unpack: n.Unpack})}

	case ast.KindVarargs:
		return cur, Operand{Kind: OperandLocal, Imm: -1}

	default:
		return cur, Operand{Kind: OperandNone}
	}
}

// walkCompareChain lowers a < b < c to (a < b) and (b < c) without
// re-evaluating b, folding the chain into nested shortcut ANDs.
func (b *Builder) walkCompareChain(src *ast.Function, n *ast.Node, cur int) (int, Operand) {
	var result Operand
	var prevTerm Operand
	cur, prevTerm = b.walkExpr(src, n.Children[0], cur)
	for i, op := range n.Ops {
		var term Operand
		cur, term = b.walkExpr(src, n.Children[i+1], cur)
		cmp := Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: binopToOpcode[op], Block: cur, Operands: []Operand{prevTerm, term}})}
		if i == 0 {
			result = cmp
		} else {
			cur, result = b.combineAnd(cur, result, cmp)
		}
		prevTerm = term
	}
	return cur, result
}

// combineAnd short-circuits lhs && rhs where both are already-computed
// boolean Operands in the current block (used by compare-chain
// folding, which never needs to re-walk an AST subexpression) via the
// same B_AND/B_DEF/B_PHI triple walkShortcut emits, minus the rhs walk.
func (b *Builder) combineAnd(cur int, lhs, rhs Operand) (int, Operand) {
	andIdx := b.fn.emit(Op{Opcode: OpBAnd, Block: cur, Operands: []Operand{lhs, {Kind: OperandOpTarget, Op: -1}}})
	defIdx := b.fn.emit(Op{Opcode: OpBDef, Block: cur, Operands: []Operand{{Kind: OperandRef, Op: andIdx}, rhs, {Kind: OperandOpTarget, Op: -1}}})
	phiIdx := b.fn.emit(Op{Opcode: OpBPhi, Block: cur, Operands: []Operand{{Kind: OperandRef, Op: andIdx}, {Kind: OperandRef, Op: defIdx}}})
	b.fn.Ops[andIdx].Operands[1].Op = phiIdx
	b.fn.Ops[defIdx].Operands[2].Op = phiIdx
	return cur, Operand{Kind: OperandRef, Op: phiIdx}
}

// walkShortcut lowers `lhs and rhs` / `lhs or rhs` through the spec's
// intra-block shortcut mini-CFG (§4.2.4): B_AND (and) / B_CUT (or)
// tests lhs and jumps straight to B_PHI, carrying lhs's own value,
// without ever evaluating rhs; falling through instead walks rhs and
// B_DEF hands its value to the same B_PHI. No new Block is opened —
// the whole expression stays in the block it was walked into.
func (b *Builder) walkShortcut(src *ast.Function, lhsIdx, rhsIdx int, cur int, isOr bool) (int, Operand) {
	var lhs Operand
	cur, lhs = b.walkExpr(src, lhsIdx, cur)

	cutOp := OpBAnd
	if isOr {
		cutOp = OpBCut
	}
	cutIdx := b.fn.emit(Op{Opcode: cutOp, Block: cur, Operands: []Operand{lhs, {Kind: OperandOpTarget, Op: -1}}})

	var rhs Operand
	cur, rhs = b.walkExpr(src, rhsIdx, cur)

	defIdx := b.fn.emit(Op{Opcode: OpBDef, Block: cur, Operands: []Operand{{Kind: OperandRef, Op: cutIdx}, rhs, {Kind: OperandOpTarget, Op: -1}}})
	phiIdx := b.fn.emit(Op{Opcode: OpBPhi, Block: cur, Operands: []Operand{{Kind: OperandRef, Op: cutIdx}, {Kind: OperandRef, Op: defIdx}}})
	b.fn.Ops[cutIdx].Operands[1].Op = phiIdx
	b.fn.Ops[defIdx].Operands[2].Op = phiIdx

	return cur, Operand{Kind: OperandRef, Op: phiIdx}
}

// walkIfExpr lowers a ternary `cond ? then : else` through the same
// shortcut mini-CFG: B_AND on the condition jumps to the first op of
// the else-path when the condition is falsey, otherwise falls
// through into the then-path, whose own B_DEF jumps past the else-path
// to B_PHI. Again, no new Block — everything stays in cur.
func (b *Builder) walkIfExpr(src *ast.Function, n *ast.Node, cur int) (int, Operand) {
	var test Operand
	cur, test = b.walkExpr(src, n.Children[0], cur)

	andIdx := b.fn.emit(Op{Opcode: OpBAnd, Block: cur, Operands: []Operand{test, {Kind: OperandOpTarget, Op: -1}}})

	var thenVal Operand
	cur, thenVal = b.walkExpr(src, n.Children[1], cur)
	thenDefIdx := b.fn.emit(Op{Opcode: OpBDef, Block: cur, Operands: []Operand{{Kind: OperandRef, Op: andIdx}, thenVal, {Kind: OperandOpTarget, Op: -1}}})

	b.fn.Ops[andIdx].Operands[1].Op = len(b.fn.Ops)

	var elseVal Operand
	cur, elseVal = b.walkExpr(src, n.Children[2], cur)
	elseDefIdx := b.fn.emit(Op{Opcode: OpBDef, Block: cur, Operands: []Operand{{Kind: OperandRef, Op: andIdx}, elseVal, {Kind: OperandOpTarget, Op: -1}}})

	phiIdx := b.fn.emit(Op{Opcode: OpBPhi, Block: cur, Operands: []Operand{{Kind: OperandRef, Op: thenDefIdx}, {Kind: OperandRef, Op: elseDefIdx}}})
	b.fn.Ops[thenDefIdx].Operands[2].Op = phiIdx
	b.fn.Ops[elseDefIdx].Operands[2].Op = phiIdx

	return cur, Operand{Kind: OperandRef, Op: phiIdx}
}

func (b *Builder) walkCall(src *ast.Function, n *ast.Node, cur int, isMethod bool) (int, Operand) {
	ops := make([]Operand, 0, len(n.Children))
	for _, c := range n.Children {
		var v Operand
		cur, v = b.walkExpr(src, c, cur)
		ops = append(ops, v)
	}
	opcode := OpCall
	sel := ""
	if isMethod {
		opcode = OpCallMethod
		sel = n.Text
	}
	return cur, Operand{Kind: OperandRef, Op: b.fn.emit(Op{Opcode: opcode, Block: cur, Operands: ops, Unpack: n.Unpack, Selector: sel})}
}
