// Package ir builds, folds, and register-allocates the SSA-ish
// intermediate form §4.2–§4.7 describe, then lowers it to bytecode
// words via internal/code.
//
// This implementation keeps the spec's core shape — ops that define an
// SSA value per non-captured local, built on the fly with phi nodes
// resolved as blocks seal, one block per control-flow join. Logical
// `and`/`or`, chained comparisons, and ternary `if` expressions lower
// through the spec's own intra-block shortcut mini-CFG (§4.2.4:
// B_AND/B_CUT/B_DEF/B_PHI) instead of opening a new Block per branch:
// each of these four ops stays inside the single Block the expression
// was walked into, so short-circuiting costs one conditional jump and
// a couple of MOVs rather than a predecessor/phi-sealing dance (see
// walk_expr.go's walkShortcut/walkIfExpr/combineAnd and DESIGN.md).
package ir

import "kenaf/internal/object"

// Opcode tags what an Op computes. These mirror the VM's dispatch
// categories (§4.9) one level up, before register allocation commits
// to physical slots.
// UnpackAll mirrors ast.UnpackAll: a call/yield Unpack count of this
// value means "produce as many results as the consumer needs" rather
// than a fixed arity.
const UnpackAll = 0xFF

type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpConstNull
	OpConstTrue
	OpConstFalse
	OpConstNumber
	OpConstString
	OpMov
	OpPhi
	OpRef // collapsed phi with exactly one distinct operand
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpConcat
	OpNeg
	OpNot
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIs
	OpGetGlobal
	OpSetGlobal
	OpGetOutenv
	OpSetOutenv
	OpGetKey
	OpSetKey
	OpGetIndex
	OpSetIndex
	OpNewArray
	OpNewTable
	OpNewObject
	OpAppend
	OpCall
	OpCallMethod
	OpSuper
	OpReturn
	OpJump
	OpJumpTest  // conditional jump; Operands[0] is the test, target is Block
	OpThrow
	OpYield
	OpForPrep   // evaluate for-loop bounds into hidden step state
	OpForTest   // test+advance hidden step state, branch
	OpForEach
	OpClosure // builds a Function value from Nested[FuncIndex], capturing Operands (§4.1)
	OpPin // marks a value that must not be rematerialized (stack-top/MOV pinning, §4.6)

	// Shortcut mini-CFG (§4.2.4): lowers and/or/ternary/chained-compare
	// within a single Block, no predecessor edges or phi-sealing
	// involved. B_AND/B_CUT test the left operand and jump straight to
	// B_PHI (carrying the left operand's own value as the result)
	// without evaluating the right operand at all; falling through
	// instead walks the right operand and B_DEF hands its value to
	// B_PHI. Both paths write into B_PHI's register before reaching it,
	// so B_PHI itself emits no instruction (like OpPhi) — it only marks
	// where the merged value becomes readable.
	OpBAnd // B_AND: Operands[0]=test, Operands[1]=OperandOpTarget(B_PHI) — jump when test is falsey
	OpBCut // B_CUT: Operands[0]=test, Operands[1]=OperandOpTarget(B_PHI) — jump when test is truthy
	OpBDef // B_DEF: Operands[0]=link to the B_AND/B_CUT this path answers, Operands[1]=value, Operands[2]=OperandOpTarget(B_PHI)
	OpBPhi // B_PHI: Operands are the B_AND/B_CUT/B_DEF ops whose paths feed this join
)

// Operand is one use: either a reference to another op's result (by
// absolute op index) or an immediate payload baked in at fold time.
type Operand struct {
	Kind OperandKind
	Op   int // valid when Kind == OperandRef or OperandOpTarget
	Num  float64
	Str  string
	Imm  int32
	Val  object.Value // not set by any pass; FoldK puts an OperandConst's pool index in Imm
	Block int
}

type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandRef
	OperandBlock
	OperandJumpTarget
	OperandOpTarget // Op is the ir op index a shortcut op (§4.2.4) jumps to, not a value reference
	OperandImmediate
	OperandLocal
	OperandOutenv
	OperandSelector
	OperandConst
	OperandConstStr
)

// Op is one IR instruction (§4.2.1, flattened from the spec's 16-byte
// packed form into plain Go fields — register allocation fills Reg and
// StackReg once it runs).
type Op struct {
	Opcode   Opcode
	Block    int
	Local    int // local this op defines, or -1
	Operands []Operand
	Selector string // interned key name, for GetKey/SetKey
	Unpack   int    // result-count for calls/unpacks; object.UnpackAll-style 0xFF means "as many as needed"
	FuncIndex int   // index into Function.Nested, for OpClosure

	LiveStart, LiveEnd int // instruction index range this value is live across (§4.4)
	Reg      int         // allocated result register (§4.6), -1 until alloc runs
	StackReg int         // allocated stack-top register for stacked instructions, -1 if none
	Dead     bool        // true once fold marks this op's block unreachable
	Pinned   bool
}

// BlockKind tags how a block was introduced (§4.2.1).
type BlockKind uint8

const (
	BlockNone BlockKind = iota
	BlockBasic
	BlockLoop
	BlockUnsealed
)

// Block is a straight-line run of ops (§4.2.1). Preds holds the
// indices of every predecessor block, in the order phi operands must
// appear.
type Block struct {
	Kind       BlockKind
	Lower, Upper int // [Lower, Upper) indexes Function.Ops
	Preds      []int
	Sealed     bool
	Reachable  bool
}

// Function is one IR function: the flat op list, block list, and the
// constant/selector tables foldk builds (§4.2, §4.5).
type Function struct {
	Name       string
	Ops        []Op
	Blocks     []Block
	ParamCount int
	LocalCount int
	IsVarargs  bool
	IsGenerator bool

	Constants    []object.Value
	ConstStrings []string
	Selectors    []string

	Nested []*Function
}

// newBlock creates a block whose range is not yet known: loops and ifs
// often create a block (a loop's exit, an if's false-branch) before any
// statement is walked into it, sometimes before any of its content ever
// gets emitted at all. Lower stays -1, a "no instructions yet" marker,
// until the first real emit into the block resolves it.
func (f *Function) newBlock(kind BlockKind) int {
	f.Blocks = append(f.Blocks, Block{Kind: kind, Lower: -1, Upper: -1})
	return len(f.Blocks) - 1
}

func (f *Function) emit(op Op) int {
	op.Reg, op.StackReg = -1, -1
	f.Ops = append(f.Ops, op)
	idx := len(f.Ops) - 1
	blk := &f.Blocks[op.Block]
	if blk.Lower < 0 {
		blk.Lower = idx
	}
	blk.Upper = idx + 1
	return idx
}
