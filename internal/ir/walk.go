package ir

import "kenaf/internal/ast"

// walkStmt lowers statement node idx starting in block cur, returning
// the block execution continues in afterward.
func (b *Builder) walkStmt(src *ast.Function, idx int, cur int) int {
	n := src.Node(idx)
	switch n.Kind {
	case ast.KindBlock:
		for _, c := range n.Children {
			cur = b.walkStmt(src, c, cur)
		}
		return cur

	case ast.KindExprStmt:
		cur, _ = b.walkExpr(src, n.Children[0], cur)
		return cur

	case ast.KindVarDecl:
		declNode := src.Node(n.Children[0])
		var val Operand
		if len(n.Children) > 1 {
			cur, val = b.walkExpr(src, n.Children[1], cur)
		} else {
			cur, val = cur, Operand{Kind: OperandNone}
		}
		op := b.fn.emit(Op{Opcode: OpMov, Block: cur, Local: declNode.Local, Operands: []Operand{val}})
		b.def(cur, declNode.Local, op)
		return cur

	case ast.KindAssign:
		cur, val := b.walkExpr(src, n.Children[1], cur)
		return b.walkAssignTo(src, n.Children[0], cur, val)

	case ast.KindReturn:
		ops := make([]Operand, 0, len(n.Children))
		for _, c := range n.Children {
			var v Operand
			cur, v = b.walkExpr(src, c, cur)
			ops = append(ops, v)
		}
		b.fn.emit(Op{Opcode: OpReturn, Block: cur, Operands: ops})
		return cur

	case ast.KindThrow:
		cur, v := b.walkExpr(src, n.Children[0], cur)
		b.fn.emit(Op{Opcode: OpThrow, Block: cur, Operands: []Operand{v}})
		return cur

	case ast.KindIfStmt:
		return b.walkIfStmt(src, n, cur)

	case ast.KindWhileStmt:
		return b.walkWhile(src, n, cur)

	case ast.KindRepeatUntil:
		return b.walkRepeatUntil(src, n, cur)

	case ast.KindForNumeric:
		return b.walkForNumeric(src, n, cur)

	case ast.KindForGeneric:
		return b.walkForGeneric(src, n, cur)

	case ast.KindBreak:
		top := len(b.breakFixups) - 1
		idx := b.fn.emit(Op{Opcode: OpJump, Block: cur})
		b.breakFixups[top] = append(b.breakFixups[top], idx)
		return cur

	case ast.KindContinue:
		top := len(b.continueFixups) - 1
		idx := b.fn.emit(Op{Opcode: OpJump, Block: cur})
		b.continueFixups[top] = append(b.continueFixups[top], idx)
		return cur

	default:
		cur, _ = b.walkExpr(src, idx, cur)
		return cur
	}
}

func (b *Builder) walkAssignTo(src *ast.Function, targetIdx int, cur int, val Operand) int {
	t := src.Node(targetIdx)
	switch t.Kind {
	case ast.KindLocalName, ast.KindLocalDecl:
		op := b.fn.emit(Op{Opcode: OpMov, Block: cur, Local: t.Local, Operands: []Operand{val}})
		b.def(cur, t.Local, op)
	case ast.KindOutenvName:
		b.fn.emit(Op{Opcode: OpSetOutenv, Block: cur, Operands: []Operand{{Kind: OperandOutenv, Imm: int32(t.OutenvSlot)}, val}})
	case ast.KindGlobalName:
		b.fn.emit(Op{Opcode: OpSetGlobal, Block: cur, Operands: []Operand{val}, Selector: t.Text})
	case ast.KindKey:
		var recv Operand
		cur, recv = b.walkExpr(src, t.Children[0], cur)
		b.fn.emit(Op{Opcode: OpSetKey, Block: cur, Operands: []Operand{recv, val}, Selector: t.Text})
	case ast.KindIndex:
		var recv, index Operand
		cur, recv = b.walkExpr(src, t.Children[0], cur)
		cur, index = b.walkExpr(src, t.Children[1], cur)
		b.fn.emit(Op{Opcode: OpSetIndex, Block: cur, Operands: []Operand{recv, index, val}})
	}
	return cur
}

// patchJump sets a break/continue's previously target-less JUMP (emitted
// back in walkStmt, before the loop's exit/header block even existed)
// to its real target, then records the edge on the target block.
func (b *Builder) patchJump(opIdx, target int) {
	op := &b.fn.Ops[opIdx]
	op.Operands = []Operand{{Kind: OperandBlock, Block: target}}
	b.addPred(target, op.Block)
}

// walkIfStmt lowers `if cond thenStmt [else elseStmt]`. thenBlock and
// falseBlock are created together, immediately before the test they
// depend on is emitted, so the JUMP_TEST's true-branch and the JUMP
// that covers the false path sit side by side in cur with no reliance
// on which one happens to be emitted next.
func (b *Builder) walkIfStmt(src *ast.Function, n *ast.Node, cur int) int {
	var test Operand
	cur, test = b.walkExpr(src, n.Children[0], cur)

	thenBlock := b.fn.newBlock(BlockBasic)
	b.addPred(thenBlock, cur)
	b.sealBlock(thenBlock)

	falseBlock := b.fn.newBlock(BlockBasic)
	b.addPred(falseBlock, cur)
	b.sealBlock(falseBlock)

	b.fn.emit(Op{Opcode: OpJumpTest, Block: cur, Operands: []Operand{test, {Kind: OperandBlock, Block: thenBlock}}})
	b.fn.emit(Op{Opcode: OpJump, Block: cur, Operands: []Operand{{Kind: OperandBlock, Block: falseBlock}}})

	thenEnd := b.walkStmt(src, n.Children[1], thenBlock)

	var elseEnd int
	if len(n.Children) > 2 {
		elseEnd = b.walkStmt(src, n.Children[2], falseBlock)
	} else {
		elseEnd = falseBlock
	}

	join := b.fn.newBlock(BlockBasic)
	b.fn.emit(Op{Opcode: OpJump, Block: thenEnd, Operands: []Operand{{Kind: OperandBlock, Block: join}}})
	b.addPred(join, thenEnd)
	b.fn.emit(Op{Opcode: OpJump, Block: elseEnd, Operands: []Operand{{Kind: OperandBlock, Block: join}}})
	b.addPred(join, elseEnd)
	b.sealBlock(join)
	return join
}

func (b *Builder) walkWhile(src *ast.Function, n *ast.Node, cur int) int {
	header := b.fn.newBlock(BlockLoop)
	b.fn.emit(Op{Opcode: OpJump, Block: cur, Operands: []Operand{{Kind: OperandBlock, Block: header}}})
	b.addPred(header, cur)

	header2, test := b.walkExpr(src, n.Children[0], header)

	body := b.fn.newBlock(BlockBasic)
	b.addPred(body, header2)
	b.sealBlock(body)

	exit := b.fn.newBlock(BlockBasic)
	b.addPred(exit, header2)

	b.fn.emit(Op{Opcode: OpJumpTest, Block: header2, Operands: []Operand{test, {Kind: OperandBlock, Block: body}}})
	b.fn.emit(Op{Opcode: OpJump, Block: header2, Operands: []Operand{{Kind: OperandBlock, Block: exit}}})

	b.breakFixups = append(b.breakFixups, nil)
	b.continueFixups = append(b.continueFixups, nil)
	bodyEnd := b.walkStmt(src, n.Children[1], body)
	for _, cont := range b.continueFixups[len(b.continueFixups)-1] {
		b.patchJump(cont, header)
	}
	b.fn.emit(Op{Opcode: OpJump, Block: bodyEnd, Operands: []Operand{{Kind: OperandBlock, Block: header}}})
	b.addPred(header, bodyEnd)
	b.sealBlock(header)

	for _, brk := range b.breakFixups[len(b.breakFixups)-1] {
		b.patchJump(brk, exit)
	}
	b.breakFixups = b.breakFixups[:len(b.breakFixups)-1]
	b.continueFixups = b.continueFixups[:len(b.continueFixups)-1]
	b.sealBlock(exit)
	return exit
}

// walkRepeatUntil lowers `repeat body until cond`: body always runs at
// least once, and the loop exits once cond becomes truthy (the
// opposite polarity of while's condition).
func (b *Builder) walkRepeatUntil(src *ast.Function, n *ast.Node, cur int) int {
	body := b.fn.newBlock(BlockLoop)
	b.fn.emit(Op{Opcode: OpJump, Block: cur, Operands: []Operand{{Kind: OperandBlock, Block: body}}})
	b.addPred(body, cur)

	b.breakFixups = append(b.breakFixups, nil)
	b.continueFixups = append(b.continueFixups, nil)
	bodyEnd := b.walkStmt(src, n.Children[0], body)
	// continue re-enters at the top of body, same as a fresh iteration;
	// body isn't sealed yet, so this is an ordinary extra predecessor.
	for _, cont := range b.continueFixups[len(b.continueFixups)-1] {
		b.patchJump(cont, body)
	}

	testEnd, test := b.walkExpr(src, n.Children[1], bodyEnd)

	exit := b.fn.newBlock(BlockBasic)
	b.fn.emit(Op{Opcode: OpJumpTest, Block: testEnd, Operands: []Operand{test, {Kind: OperandBlock, Block: exit}}})
	b.fn.emit(Op{Opcode: OpJump, Block: testEnd, Operands: []Operand{{Kind: OperandBlock, Block: body}}})
	b.addPred(body, testEnd)
	b.sealBlock(body)

	b.addPred(exit, testEnd)
	for _, brk := range b.breakFixups[len(b.breakFixups)-1] {
		b.patchJump(brk, exit)
	}
	b.breakFixups = b.breakFixups[:len(b.breakFixups)-1]
	b.continueFixups = b.continueFixups[:len(b.continueFixups)-1]
	b.sealBlock(exit)
	return exit
}

// walkForNumeric lowers to the hidden $for_step protocol (§4.9): a
// ForPrep op stages start/stop/step into a register window, and each
// iteration ForTest advances that window's hidden counter and either
// produces the next loop value or signals exhaustion with null.
func (b *Builder) walkForNumeric(src *ast.Function, n *ast.Node, cur int) int {
	nameIdx := n.Children[0]
	last := len(n.Children) - 1
	bodyIdx := n.Children[last]
	boundIdx := n.Children[1:last]

	bounds := make([]Operand, 0, 3)
	for _, c := range boundIdx {
		var v Operand
		cur, v = b.walkExpr(src, c, cur)
		bounds = append(bounds, v)
	}
	if len(bounds) < 3 {
		// No step given: default to 1, keeping ForPrep's window a fixed
		// three wide regardless of which form of the loop was written.
		one := b.fn.emit(Op{Opcode: OpConstNumber, Block: cur, Operands: []Operand{{Kind: OperandImmediate, Num: 1}}})
		bounds = append(bounds, Operand{Kind: OperandRef, Op: one})
	}
	prep := b.fn.emit(Op{Opcode: OpForPrep, Block: cur, Operands: bounds})

	header := b.fn.newBlock(BlockLoop)
	b.fn.emit(Op{Opcode: OpJump, Block: cur, Operands: []Operand{{Kind: OperandBlock, Block: header}}})
	b.addPred(header, cur)

	body := b.fn.newBlock(BlockBasic)
	b.addPred(body, header)
	b.sealBlock(body)

	exit := b.fn.newBlock(BlockBasic)
	b.addPred(exit, header)

	iv := b.fn.emit(Op{Opcode: OpForTest, Block: header, Operands: []Operand{{Kind: OperandRef, Op: prep}, {Kind: OperandBlock, Block: body}}})
	b.fn.emit(Op{Opcode: OpJump, Block: header, Operands: []Operand{{Kind: OperandBlock, Block: exit}}})
	nameNode := src.Node(nameIdx)
	b.def(body, nameNode.Local, iv)

	b.breakFixups = append(b.breakFixups, nil)
	b.continueFixups = append(b.continueFixups, nil)
	bodyEnd := b.walkStmt(src, bodyIdx, body)
	for _, cont := range b.continueFixups[len(b.continueFixups)-1] {
		b.patchJump(cont, header)
	}
	b.fn.emit(Op{Opcode: OpJump, Block: bodyEnd, Operands: []Operand{{Kind: OperandBlock, Block: header}}})
	b.addPred(header, bodyEnd)
	b.sealBlock(header)

	for _, brk := range b.breakFixups[len(b.breakFixups)-1] {
		b.patchJump(brk, exit)
	}
	b.breakFixups = b.breakFixups[:len(b.breakFixups)-1]
	b.continueFixups = b.continueFixups[:len(b.continueFixups)-1]
	b.sealBlock(exit)
	return exit
}

// walkForGeneric lowers `for a, b in expr` to the hidden $for_each
// protocol: ForPrep stages the iterable into a register window, and
// each iteration ForEach pulls the next tuple from it or signals
// exhaustion by writing null to its first result.
func (b *Builder) walkForGeneric(src *ast.Function, n *ast.Node, cur int) int {
	last := len(n.Children) - 1
	iterIdx := n.Children[last-1]
	bodyIdx := n.Children[last]
	nameIdxs := n.Children[:last-1]

	var iterVal Operand
	cur, iterVal = b.walkExpr(src, iterIdx, cur)
	prep := b.fn.emit(Op{Opcode: OpForPrep, Block: cur, Operands: []Operand{iterVal}})

	header := b.fn.newBlock(BlockLoop)
	b.fn.emit(Op{Opcode: OpJump, Block: cur, Operands: []Operand{{Kind: OperandBlock, Block: header}}})
	b.addPred(header, cur)

	body := b.fn.newBlock(BlockBasic)
	b.addPred(body, header)
	b.sealBlock(body)

	exit := b.fn.newBlock(BlockBasic)
	b.addPred(exit, header)

	tuple := b.fn.emit(Op{Opcode: OpForEach, Block: header, Unpack: len(nameIdxs), Operands: []Operand{{Kind: OperandRef, Op: prep}, {Kind: OperandBlock, Block: body}}})
	b.fn.emit(Op{Opcode: OpJump, Block: header, Operands: []Operand{{Kind: OperandBlock, Block: exit}}})
	for i, ni := range nameIdxs {
		nameNode := src.Node(ni)
		// Each loop variable selects one result of the multi-value
		// ForEach op by index (Imm), the same convention a real unpack
		// uses downstream of a call (§4.2.5).
		sel := b.fn.emit(Op{Opcode: OpMov, Block: body, Local: nameNode.Local, Operands: []Operand{{Kind: OperandRef, Op: tuple, Imm: int32(i)}}})
		b.def(body, nameNode.Local, sel)
	}

	b.breakFixups = append(b.breakFixups, nil)
	b.continueFixups = append(b.continueFixups, nil)
	bodyEnd := b.walkStmt(src, bodyIdx, body)
	for _, cont := range b.continueFixups[len(b.continueFixups)-1] {
		b.patchJump(cont, header)
	}
	b.fn.emit(Op{Opcode: OpJump, Block: bodyEnd, Operands: []Operand{{Kind: OperandBlock, Block: header}}})
	b.addPred(header, bodyEnd)
	b.sealBlock(header)

	for _, brk := range b.breakFixups[len(b.breakFixups)-1] {
		b.patchJump(brk, exit)
	}
	b.breakFixups = b.breakFixups[:len(b.breakFixups)-1]
	b.continueFixups = b.continueFixups[:len(b.continueFixups)-1]
	b.sealBlock(exit)
	return exit
}
