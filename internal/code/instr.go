// Package code owns the 32-bit bytecode instruction encoding (§4.7,
// §4.9) and the code_unit serialization format (§4.8, §6.1).
package code

// Op is a bytecode opcode, the concrete dispatch target the VM's
// computed-goto switch keys on (§4.9).
type Op uint8

const (
	OpNop Op = iota
	OpMov
	OpSwp
	OpLdv  // c = 0 null, 1 false, 2 true (LdvNull/LdvFalse/LdvTrue)
	OpLdk  // load constant[c]
	OpLdkStr
	OpNeg
	OpNot
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpIntdiv
	OpMod
	OpConcat
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpIs
	OpJmp
	OpJt
	OpJf
	OpGetGlobal
	OpSetGlobal
	OpGetKey
	OpSetKey
	OpGetIndex
	OpSetIndex
	OpNewArray
	OpNewTable
	OpNewObject
	OpAppend
	OpSuper
	OpThrow
	OpNewEnv
	OpGetVarenv
	OpSetVarenv
	OpGetOutenv
	OpSetOutenv
	OpCall
	OpCallMethod
	OpCallr
	OpYcall
	OpYield
	OpReturn
	OpVararg
	OpUnpack
	OpExtend
	OpGenerate
	OpForEach
	OpForStep
	OpFunction
	OpFMethod
	OpFVarenv
	OpFOutenv
	opCount
)

var opNames = [opCount]string{
	OpNop: "nop", OpMov: "mov", OpSwp: "swp", OpLdv: "ldv", OpLdk: "ldk", OpLdkStr: "ldk_str",
	OpNeg: "neg", OpNot: "not", OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div",
	OpIntdiv: "intdiv", OpMod: "mod", OpConcat: "concat", OpEq: "eq", OpNeq: "neq",
	OpLt: "lt", OpLte: "lte", OpGt: "gt", OpGte: "gte", OpIs: "is",
	OpJmp: "jmp", OpJt: "jt", OpJf: "jf",
	OpGetGlobal: "get_global", OpSetGlobal: "set_global",
	OpGetKey: "get_key", OpSetKey: "set_key", OpGetIndex: "get_index", OpSetIndex: "set_index",
	OpNewArray: "new_array", OpNewTable: "new_table", OpNewObject: "new_object",
	OpAppend: "append", OpSuper: "super", OpThrow: "throw",
	OpNewEnv: "new_env", OpGetVarenv: "get_varenv", OpSetVarenv: "set_varenv",
	OpGetOutenv: "get_outenv", OpSetOutenv: "set_outenv",
	OpCall: "call", OpCallMethod: "call_method", OpCallr: "callr",
	OpYcall: "ycall", OpYield: "yield", OpReturn: "return",
	OpVararg: "vararg", OpUnpack: "unpack", OpExtend: "extend",
	OpGenerate: "generate", OpForEach: "for_each", OpForStep: "for_step",
	OpFunction: "function", OpFMethod: "fmethod", OpFVarenv: "fvarenv", OpFOutenv: "foutenv",
}

// String renders an opcode's mnemonic for disassembly (§6.3 debug_print).
func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return "op?"
}

// LdvKind values for the OpLdv c-field (§4.9).
const (
	LdvNull  = 0
	LdvFalse = 1
	LdvTrue  = 2
)

// StackMark is the r-field sentinel meaning "use the current xp"
// (§4.9's OP_STACK_MARK).
const StackMark = 0xFF

// UnpackAll as a result count means "expand to xp".
const UnpackAll = 0xFF

// Shape tags which fields an Instruction's 32 bits carry (§4.7).
type Shape uint8

const (
	ShapeAB Shape = iota
	ShapeC
	ShapeJump
)

// Instruction is one packed 32-bit bytecode word: { opcode:8, r:8,
// a:8, b:8 } or { opcode:8, r:8, c:16 } or { opcode:8, r:8, j:s16 }.
type Instruction uint32

func EncodeAB(op Op, r, a, b uint8) Instruction {
	return Instruction(uint32(op) | uint32(r)<<8 | uint32(a)<<16 | uint32(b)<<24)
}

func EncodeC(op Op, r uint8, c uint16) Instruction {
	return Instruction(uint32(op) | uint32(r)<<8 | uint32(c)<<16)
}

func EncodeJump(op Op, r uint8, j int16) Instruction {
	return Instruction(uint32(op) | uint32(r)<<8 | uint32(uint16(j))<<16)
}

func (i Instruction) Op() Op   { return Op(i & 0xFF) }
func (i Instruction) R() uint8 { return uint8(i >> 8) }
func (i Instruction) A() uint8 { return uint8(i >> 16) }
func (i Instruction) B() uint8 { return uint8(i >> 24) }
func (i Instruction) C() uint16 {
	return uint16(i >> 16)
}
func (i Instruction) J() int16 {
	return int16(uint16(i >> 16))
}
