package ir

import "kenaf/internal/object"

// Fold runs constant folding and reachable-block discovery (§4.3).
// Unreachable blocks and their ops are marked Dead rather than
// physically removed, so later passes can skip over them by index
// without renumbering anything built so far.
func Fold(fn *Function) {
	reachable := make([]bool, len(fn.Blocks))
	worklist := []int{0}
	reachable[0] = true
	for len(worklist) > 0 {
		blk := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		fn.Blocks[blk].Reachable = true
		if fn.Blocks[blk].Lower < 0 {
			// Never actually emitted into (an else-less if's false-branch,
			// a loop's exit reached only by breaks): no ops to fold.
			continue
		}
		for i := fn.Blocks[blk].Lower; i < fn.Blocks[blk].Upper; i++ {
			foldOp(fn, i)
			for _, succ := range jumpTargets(&fn.Ops[i]) {
				if !reachable[succ] {
					reachable[succ] = true
					worklist = append(worklist, succ)
				}
			}
		}
	}
	for i := range fn.Blocks {
		if !reachable[i] && fn.Blocks[i].Lower >= 0 {
			for j := fn.Blocks[i].Lower; j < fn.Blocks[i].Upper; j++ {
				fn.Ops[j].Dead = true
			}
		}
	}
}

func jumpTargets(op *Op) []int {
	switch op.Opcode {
	case OpJump:
		return []int{op.Operands[0].Block}
	case OpJumpTest:
		return []int{op.Operands[1].Block}
	}
	return nil
}

// foldOp constant-folds arithmetic/comparison/concat on literal
// operands and rewrites MOV-of-constant and JUMP_TEST-with-constant
// predicate (§4.3).
func foldOp(fn *Function, i int) {
	op := &fn.Ops[i]
	lhs, lok := constOperand(fn, op, 0)
	rhs, rok := constOperand(fn, op, 1)

	switch op.Opcode {
	case OpAdd, OpSub, OpMul, OpDiv, OpFloorDiv, OpMod:
		if lok && rok && lhs.IsNumber() && rhs.IsNumber() {
			if v, ok := foldArith(op.Opcode, lhs.Number(), rhs.Number()); ok {
				rewriteConstNumber(op, v)
			}
		}
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		if lok && rok && lhs.IsNumber() && rhs.IsNumber() {
			if v, ok := foldCompare(op.Opcode, lhs.Number(), rhs.Number()); ok {
				rewriteConstBool(op, v)
			}
		}
	case OpConcat:
		if len(op.Operands) == 2 && op.Operands[0].Kind == OperandRef && op.Operands[1].Kind == OperandRef {
			a, b := &fn.Ops[op.Operands[0].Op], &fn.Ops[op.Operands[1].Op]
			if a.Opcode == OpConstString && b.Opcode == OpConstString {
				op.Opcode = OpConstString
				op.Operands = []Operand{{Kind: OperandImmediate, Str: a.Operands[0].Str + b.Operands[0].Str}}
			}
		}
	case OpMov:
		if lok {
			switch {
			case lhs.IsNumber():
				rewriteConstNumber(op, lhs.Number())
			case lhs.IsBool():
				rewriteConstBool(op, lhs.IsTrue())
			default:
				op.Opcode = OpConstNull
				op.Operands = nil
			}
		}
	case OpNot:
		if lok {
			rewriteConstBool(op, lhs.Falsey())
		}
	case OpJumpTest:
		if lok {
			if lhs.Falsey() {
				// Never branches: the unconditional JUMP emitted right
				// after this op in the same block covers the false path,
				// so this one just needs to stop being a live jump source.
				op.Opcode = OpConstFalse
				op.Operands = nil
			} else {
				op.Opcode = OpJump
				op.Operands = []Operand{op.Operands[1]}
			}
		}
	}
}

func constOperand(fn *Function, op *Op, index int) (object.Value, bool) {
	if index >= len(op.Operands) {
		return object.Null, false
	}
	ref := op.Operands[index]
	if ref.Kind != OperandRef {
		return object.Null, false
	}
	src := &fn.Ops[ref.Op]
	switch src.Opcode {
	case OpConstNumber:
		return object.Number(src.Operands[0].Num), true
	case OpConstTrue:
		return object.Bool(true), true
	case OpConstFalse:
		return object.Bool(false), true
	case OpConstNull:
		return object.Null, true
	}
	return object.Null, false
}

func rewriteConstNumber(op *Op, v float64) {
	op.Opcode = OpConstNumber
	op.Operands = []Operand{{Kind: OperandImmediate, Num: v}}
}

func rewriteConstBool(op *Op, v bool) {
	if v {
		op.Opcode = OpConstTrue
	} else {
		op.Opcode = OpConstFalse
	}
	op.Operands = nil
}

func foldArith(opc Opcode, a, b float64) (float64, bool) {
	switch opc {
	case OpAdd:
		return a + b, true
	case OpSub:
		return a - b, true
	case OpMul:
		return a * b, true
	case OpDiv:
		return a / b, true
	case OpFloorDiv:
		return floorDiv(a, b), true
	case OpMod:
		return floorMod(a, b), true
	}
	return 0, false
}

func foldCompare(opc Opcode, a, b float64) (bool, bool) {
	switch opc {
	case OpEq:
		return a == b, true
	case OpNeq:
		return a != b, true
	case OpLt:
		return a < b, true
	case OpLte:
		return a <= b, true
	case OpGt:
		return a > b, true
	case OpGte:
		return a >= b, true
	}
	return false, false
}

// floorDiv and floorMod implement the imath helpers §4.3 references:
// floor-division/modulo on doubles, matching Kenaf's integer-leaning
// arithmetic semantics rather than Go's truncating quotient.
func floorDiv(a, b float64) float64 {
	q := a / b
	if q != float64(int64(q)) && (a < 0) != (b < 0) {
		return float64(int64(q)) - 1
	}
	return float64(int64(q))
}

func floorMod(a, b float64) float64 {
	m := a - floorDiv(a, b)*b
	return m
}
