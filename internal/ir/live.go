package ir

// Live computes each op's live range (§4.4): the span of instruction
// indices from its definition to its last use, which register
// allocation later uses to decide when a register is free for reuse.
func Live(fn *Function) {
	for i := range fn.Ops {
		fn.Ops[i].LiveStart = i
		fn.Ops[i].LiveEnd = i
	}
	for i := range fn.Ops {
		op := &fn.Ops[i]
		if op.Dead {
			continue
		}
		for _, operand := range op.Operands {
			if operand.Kind != OperandRef {
				continue
			}
			if fn.Ops[operand.Op].LiveEnd < i {
				fn.Ops[operand.Op].LiveEnd = i
			}
		}
	}
	// A phi's operands are live out of their defining block through the
	// full extent of the block that phi joins from, not merely up to
	// the phi's own index, since the predecessor's jump reads them
	// after the rest of that block has executed.
	for i := range fn.Ops {
		op := &fn.Ops[i]
		if op.Opcode != OpPhi || op.Dead {
			continue
		}
		preds := fn.Blocks[op.Block].Preds
		for k, operand := range op.Operands {
			if operand.Kind != OperandRef || k >= len(preds) {
				continue
			}
			predEnd := fn.Blocks[preds[k]].Upper - 1
			if predEnd > fn.Ops[operand.Op].LiveEnd {
				fn.Ops[operand.Op].LiveEnd = predEnd
			}
		}
	}
}
