package ir

import (
	"kenaf/internal/code"
	"kenaf/internal/object"
)

// Emit lowers fn (already folded, live-ranged, foldk'd, and allocated)
// into a code.FunctionUnit (§4.7). Forward jumps are recorded as
// fixups keyed by the ir op index they target and patched once every
// op's final bytecode address is known. A block's phi values are
// resolved the moment control leaves one of its predecessors: right
// before that predecessor's closing jump, one MOV per live phi copies
// the predecessor's operand into the phi's register (the move-emit
// scheduling §4.7 describes for the general case collapses to a
// single direct copy per phi here, since every incoming edge in this
// construction is an explicit JUMP rather than a shared fallthrough).
func Emit(fn *Function) *code.FunctionUnit {
	out := &code.FunctionUnit{
		Name:        fn.Name,
		ParamCount:  fn.ParamCount,
		StackSize:   regCount(fn) + 1,
		OutenvCount: countOutenvSlots(fn),
		IsVarargs:   fn.IsVarargs,
		IsGenerator: fn.IsGenerator,
		Numbers:     numbersOf(fn.Constants),
		Strings:     fn.ConstStrings,
		Selectors:   fn.Selectors,
	}

	blockPhis := make(map[int][]int)
	for i := range fn.Ops {
		if fn.Ops[i].Opcode == OpPhi && !fn.Ops[i].Dead {
			blockPhis[fn.Ops[i].Block] = append(blockPhis[fn.Ops[i].Block], i)
		}
	}

	addr := make([]int, len(fn.Ops)) // ir op index -> bytecode address
	type fixup struct {
		addr   int
		target int
	}
	var fixups []fixup

	emitPhiMoves := func(fromBlock, toBlock int) {
		preds := fn.Blocks[toBlock].Preds
		predIndex := -1
		for k, p := range preds {
			if p == fromBlock {
				predIndex = k
				break
			}
		}
		if predIndex < 0 {
			return
		}
		for _, phiIdx := range blockPhis[toBlock] {
			phi := &fn.Ops[phiIdx]
			if predIndex >= len(phi.Operands) {
				continue
			}
			out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, reg(phi), operandReg(fn, phi, predIndex), 0))
		}
	}

	for i := range fn.Ops {
		op := &fn.Ops[i]
		addr[i] = len(out.Ops)
		if op.Dead || op.Opcode == OpPhi || op.Opcode == OpBPhi {
			// A B_PHI emits nothing itself: every path reaching it
			// (B_AND/B_CUT's own jump, B_DEF's fallthrough) has already
			// written the merged value into its register by the time
			// control arrives, exactly like OpPhi's predecessor MOVs.
			continue
		}
		switch op.Opcode {
		case OpConstNull:
			out.Ops = append(out.Ops, code.EncodeC(code.OpLdv, reg(op), code.LdvNull))
		case OpConstTrue:
			out.Ops = append(out.Ops, code.EncodeC(code.OpLdv, reg(op), code.LdvTrue))
		case OpConstFalse:
			out.Ops = append(out.Ops, code.EncodeC(code.OpLdv, reg(op), code.LdvFalse))
		case OpConstNumber:
			out.Ops = append(out.Ops, code.EncodeC(code.OpLdk, reg(op), uint16(op.Operands[0].Imm)))
		case OpConstString:
			out.Ops = append(out.Ops, code.EncodeC(code.OpLdkStr, reg(op), uint16(op.Operands[0].Imm)))
		case OpMov, OpRef:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, reg(op), operandReg(fn, op, 0), 0))
		case OpAdd, OpSub, OpMul, OpDiv, OpFloorDiv, OpMod, OpConcat,
			OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpIs:
			out.Ops = append(out.Ops, code.EncodeAB(binOpcode(op.Opcode), reg(op), operandReg(fn, op, 0), operandReg(fn, op, 1)))
		case OpNeg:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpNeg, reg(op), operandReg(fn, op, 0), 0))
		case OpNot:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpNot, reg(op), operandReg(fn, op, 0), 0))
		case OpGetGlobal:
			out.Ops = append(out.Ops, code.EncodeC(code.OpGetGlobal, reg(op), selectorIndex(op)))
		case OpSetGlobal:
			out.Ops = append(out.Ops, code.EncodeC(code.OpSetGlobal, operandReg(fn, op, 0), selectorIndex(op)))
		case OpGetOutenv:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpGetOutenv, reg(op), uint8(op.Operands[0].Imm), 0))
		case OpSetOutenv:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpSetOutenv, uint8(op.Operands[0].Imm), operandReg(fn, op, 1), 0))
		case OpGetKey:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpGetKey, reg(op), operandReg(fn, op, 0), uint8(selectorIndex(op))))
		case OpSetKey:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpSetKey, operandReg(fn, op, 0), uint8(selectorIndex(op)), operandReg(fn, op, 1)))
		case OpGetIndex:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpGetIndex, reg(op), operandReg(fn, op, 0), operandReg(fn, op, 1)))
		case OpSetIndex:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpSetIndex, operandReg(fn, op, 0), operandReg(fn, op, 1), operandReg(fn, op, 2)))
		case OpNewArray:
			out.Ops = append(out.Ops, code.EncodeC(code.OpNewArray, reg(op), uint16(len(op.Operands))))
			for idx := range op.Operands {
				out.Ops = append(out.Ops, code.EncodeAB(code.OpAppend, reg(op), operandReg(fn, op, idx), 0))
			}
		case OpNewTable:
			out.Ops = append(out.Ops, code.EncodeC(code.OpNewTable, reg(op), uint16(len(op.Operands)/2)))
			for idx := 0; idx+1 < len(op.Operands); idx += 2 {
				// Bareword object-key sugar (OperandSelector) isn't interned
				// into a constant string by FoldK today, so only computed
				// keys (OperandRef) round-trip correctly here.
				out.Ops = append(out.Ops, code.EncodeAB(code.OpSetIndex, reg(op), operandReg(fn, op, idx), operandReg(fn, op, idx+1)))
			}
		case OpNewObject:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpNewObject, reg(op), operandReg(fn, op, 0), 0))
		case OpSuper:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpSuper, reg(op), 0, 0))
		case OpCall:
			// Stage the callee and every argument into the window Alloc
			// reserved for this call (base == reg(op)), since the
			// allocator is free to have put each operand in any register
			// and the VM's call instruction addresses them as one
			// contiguous block starting at r (§4.9).
			base := reg(op)
			for idx := range op.Operands {
				src := operandReg(fn, op, idx)
				dst := base + uint8(idx)
				if src != dst {
					out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, dst, src, 0))
				}
			}
			out.Ops = append(out.Ops, code.EncodeAB(code.OpCall, base, uint8(len(op.Operands)), uint8(op.Unpack)))
		case OpCallMethod:
			// FoldK appended a trailing OperandSelector naming the method
			// onto Operands[0:receiver, 1:args...]; that selector isn't a
			// positional argument, so it's excluded from the MOV loop and
			// consumed only by selectorIndex. There's no callee value to
			// stage yet — unlike OpCall, the function being invoked is
			// resolved dynamically from the receiver — so base+0 is left
			// free for a GET_KEY that binds it immediately before the
			// call, with the receiver (self) and arguments staged one
			// slot up starting at base+1.
			args := op.Operands[:len(op.Operands)-1]
			base := reg(op)
			for idx := range args {
				src := operandReg(fn, op, idx)
				dst := base + 1 + uint8(idx)
				if src != dst {
					out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, dst, src, 0))
				}
			}
			out.Ops = append(out.Ops, code.EncodeAB(code.OpGetKey, base, base+1, uint8(selectorIndex(op))))
			out.Ops = append(out.Ops, code.EncodeAB(code.OpCall, base, uint8(len(args)), uint8(op.Unpack)))
		case OpReturn:
			base := reg(op)
			for idx := range op.Operands {
				src := operandReg(fn, op, idx)
				dst := base + uint8(idx)
				if src != dst {
					out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, dst, src, 0))
				}
			}
			out.Ops = append(out.Ops, code.EncodeC(code.OpReturn, base, uint16(len(op.Operands))))
		case OpThrow:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpThrow, operandReg(fn, op, 0), 0, 0))
		case OpYield:
			base := uint8(op.StackReg)
			for idx := range op.Operands {
				src := operandReg(fn, op, idx)
				dst := base + uint8(idx)
				if src != dst {
					out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, dst, src, 0))
				}
			}
			out.Ops = append(out.Ops, code.EncodeAB(code.OpYield, reg(op), base, uint8(len(op.Operands))))
		case OpJump:
			emitPhiMoves(op.Block, op.Operands[0].Block)
			out.Ops = append(out.Ops, code.EncodeJump(code.OpJmp, 0, 0))
			fixups = append(fixups, fixup{addr: len(out.Ops) - 1, target: blockHead(fn, op.Operands[0].Block)})
		case OpJumpTest:
			out.Ops = append(out.Ops, code.EncodeJump(code.OpJt, operandReg(fn, op, 0), 0))
			fixups = append(fixups, fixup{addr: len(out.Ops) - 1, target: blockHead(fn, op.Operands[1].Block)})
		case OpBAnd, OpBCut:
			// Write the default (short-circuit) result — the test's own
			// value — into B_PHI's register before branching, since the
			// jump skips straight past whatever the rhs/else path would
			// otherwise have written there.
			testReg := operandReg(fn, op, 0)
			phiReg := reg(&fn.Ops[op.Operands[1].Op])
			if phiReg != testReg {
				out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, phiReg, testReg, 0))
			}
			branch := code.OpJf
			if op.Opcode == OpBCut {
				branch = code.OpJt
			}
			out.Ops = append(out.Ops, code.EncodeJump(branch, testReg, 0))
			fixups = append(fixups, fixup{addr: len(out.Ops) - 1, target: op.Operands[1].Op})
		case OpBDef:
			phiReg := reg(&fn.Ops[op.Operands[2].Op])
			valReg := operandReg(fn, op, 1)
			if valReg != phiReg {
				out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, phiReg, valReg, 0))
			}
			out.Ops = append(out.Ops, code.EncodeJump(code.OpJmp, 0, 0))
			fixups = append(fixups, fixup{addr: len(out.Ops) - 1, target: op.Operands[2].Op})
		case OpForPrep:
			// Bounds/iterable are staged into the window Alloc reserved,
			// the same convention a call's argument window uses, since
			// OpForTest/OpForEach address this state by a single base
			// register for the loop's whole lifetime (§4.6).
			base := reg(op)
			for idx := range op.Operands {
				src := operandReg(fn, op, idx)
				dst := base + uint8(idx)
				if src != dst {
					out.Ops = append(out.Ops, code.EncodeAB(code.OpMov, dst, src, 0))
				}
			}
			out.Ops = append(out.Ops, code.EncodeC(code.OpGenerate, base, uint16(len(op.Operands))))
		case OpForTest:
			// Operands[0] references the OpForPrep op whose Reg is the
			// state window's base register; Operands[1] is the body
			// block to branch to when the loop isn't exhausted. OpForStep
			// writes either the next loop value or null into reg(op); the
			// OpJt that follows branches on that value's truthiness, the
			// same two-instruction test+branch pattern OpJumpTest uses.
			out.Ops = append(out.Ops, code.EncodeAB(code.OpForStep, reg(op), operandReg(fn, op, 0), 0))
			out.Ops = append(out.Ops, code.EncodeJump(code.OpJt, reg(op), 0))
			fixups = append(fixups, fixup{addr: len(out.Ops) - 1, target: blockHead(fn, op.Operands[1].Block)})
		case OpForEach:
			out.Ops = append(out.Ops, code.EncodeAB(code.OpForEach, reg(op), operandReg(fn, op, 0), uint8(op.Unpack)))
			out.Ops = append(out.Ops, code.EncodeJump(code.OpJt, reg(op), 0))
			fixups = append(fixups, fixup{addr: len(out.Ops) - 1, target: blockHead(fn, op.Operands[1].Block)})
		case OpClosure:
			out.Ops = append(out.Ops, code.EncodeC(code.OpFunction, reg(op), uint16(op.FuncIndex)))
			for _, capture := range op.Operands {
				out.Ops = append(out.Ops, code.EncodeAB(code.OpFOutenv, reg(op), uint8(capture.Imm), reg(&fn.Ops[capture.Op])))
			}
		}
	}

	for i := range fixups {
		target := addr[fixups[i].target]
		delta := int16(target - (fixups[i].addr + 1))
		op := out.Ops[fixups[i].addr]
		out.Ops[fixups[i].addr] = code.EncodeJump(op.Op(), op.R(), delta)
	}
	out.Slocs = make([]uint32, len(out.Ops))

	for _, nested := range fn.Nested {
		out.Nested = append(out.Nested, Emit(nested))
	}
	return out
}

func reg(op *Op) uint8 {
	if op.Reg < 0 {
		return 0
	}
	return uint8(op.Reg)
}

func operandReg(fn *Function, op *Op, index int) uint8 {
	if index >= len(op.Operands) {
		return 0
	}
	operand := op.Operands[index]
	switch operand.Kind {
	case OperandRef:
		return reg(&fn.Ops[operand.Op]) + uint8(operand.Imm)
	case OperandLocal:
		// A parameter's entry OpMov (build.go) reads from the fixed
		// calling-convention register the VM already placed argument i
		// in (runFunction binds co.Stack[bp+i] before this function's
		// first instruction runs) rather than from another op's result.
		if operand.Imm >= 0 {
			return uint8(operand.Imm)
		}
	}
	return 0
}

func selectorIndex(op *Op) uint16 {
	for _, operand := range op.Operands {
		if operand.Kind == OperandSelector {
			return uint16(operand.Imm)
		}
	}
	return 0
}

// blockHead returns the ir op index a jump into block should target:
// the block's first live op. A block can still have Lower == -1 here
// (an if's false-branch with no else, a loop's exit before the code
// that follows the loop is walked) — in that case its content is
// whatever was emitted into the next block created after it, since
// blocks are always created immediately before the code that will
// fill them, so scan forward by creation order for the first one
// that got any instructions at all.
func blockHead(fn *Function, block int) int {
	for b := block; b < len(fn.Blocks); b++ {
		if fn.Blocks[b].Lower >= 0 {
			return fn.Blocks[b].Lower
		}
	}
	if len(fn.Ops) > 0 {
		return len(fn.Ops) - 1
	}
	return 0
}

func binOpcode(o Opcode) code.Op {
	switch o {
	case OpAdd:
		return code.OpAdd
	case OpSub:
		return code.OpSub
	case OpMul:
		return code.OpMul
	case OpDiv:
		return code.OpDiv
	case OpFloorDiv:
		return code.OpIntdiv
	case OpMod:
		return code.OpMod
	case OpConcat:
		return code.OpConcat
	case OpEq:
		return code.OpEq
	case OpNeq:
		return code.OpNeq
	case OpLt:
		return code.OpLt
	case OpLte:
		return code.OpLte
	case OpGt:
		return code.OpGt
	case OpGte:
		return code.OpGte
	case OpIs:
		return code.OpIs
	}
	return code.OpNop
}

// regSpan returns how many contiguous registers starting at op.Reg
// this op's allocation reserved (§4.6), mirroring the window-sizing
// rules Alloc applies so StackSize always covers the widest window.
func regSpan(op *Op) int {
	switch op.Opcode {
	case OpForEach:
		if op.Unpack > 1 {
			return op.Unpack
		}
	case OpForPrep:
		// Mirrors Alloc's window-sizing: at least 2, even for the
		// generic for-loop's single staged iterable operand.
		if n := len(op.Operands); n > 2 {
			return n
		}
		return 2
	case OpCall, OpCallMethod, OpReturn:
		size := len(op.Operands)
		if op.Unpack > size && op.Unpack != UnpackAll {
			size = op.Unpack
		}
		if size > 1 {
			return size
		}
	}
	return 1
}

func regCount(fn *Function) int {
	max := 0
	for i := range fn.Ops {
		op := &fn.Ops[i]
		if top := op.Reg + regSpan(op) - 1; top > max {
			max = top
		}
		if op.Opcode == OpYield {
			if top := op.StackReg + len(op.Operands) - 1; top > max {
				max = top
			}
		}
	}
	return max
}

func countOutenvSlots(fn *Function) int {
	max := 0
	for i := range fn.Ops {
		op := &fn.Ops[i]
		if op.Opcode != OpGetOutenv && op.Opcode != OpSetOutenv {
			continue
		}
		if int(op.Operands[0].Imm)+1 > max {
			max = int(op.Operands[0].Imm) + 1
		}
	}
	return max
}

func numbersOf(constants []object.Value) []float64 {
	out := make([]float64, len(constants))
	for i, c := range constants {
		if c.IsNumber() {
			out[i] = c.Number()
		}
	}
	return out
}
