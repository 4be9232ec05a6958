// Package ast fixes the shape §4.1 assumes its input has: a forest of
// functions, each a flat array of nodes in post-order (every child
// appears at a lower index than its parent). The lexer and parser that
// would produce this tree are out of scope (§1); this package only
// owns the node contract and a builder for constructing it directly,
// which the resolver, IR builder, and tests all consume.
package ast

// Kind tags what a Node represents. NAME starts as a bare identifier
// reference and is rewritten in place by the resolver (§4.1) into
// exactly one of LocalDecl, LocalName, SuperName, OutenvName,
// GlobalName, or ObjkeyDecl.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Literals and names.
	KindNull
	KindTrue
	KindFalse
	KindNumber
	KindString
	KindName
	KindVarargs

	// Resolved name kinds (NAME rewrites to one of these in place).
	KindLocalDecl
	KindLocalName
	KindSuperName
	KindOutenvName
	KindGlobalName
	KindObjkeyDecl

	// Expressions.
	KindBinop
	KindUnop
	KindAnd
	KindOr
	KindNot
	KindCompareChain
	KindCall
	KindMethodCall
	KindIndex
	KindKey
	KindNewArray
	KindNewTable
	KindNewObject
	KindFunctionLit
	KindSuper
	KindIf // if-expression (ternary form)
	KindUnpack
	KindRvalList

	// Statements.
	KindBlock
	KindVarDecl
	KindAssign
	KindOpAssign
	KindRvalAssign
	KindRvalOpAssign
	KindIfStmt
	KindWhileStmt
	KindForNumeric
	KindForGeneric
	KindRepeatUntil
	KindReturn
	KindBreak
	KindContinue
	KindGoto
	KindLabel
	KindThrow
	KindYield
	KindExprStmt
)

// BinOp is the concrete arithmetic/comparison/concat operator carried
// by a Binop or CompareChain node.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpConcat
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpShl
	OpShr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpIs
)

// UnpackAll marks a call/unpack/varargs node as producing as many
// values as its consumer expects (§4.2.5's IR_UNPACK_ALL).
const UnpackAll = 0xFF

// Node is one entry in a function's flat, post-order node array. Not
// every field applies to every Kind; see the per-kind comments below.
type Node struct {
	Kind Kind
	Sloc uint32 // raw source offset, for Script.Locate

	// Children indexes this function's node array; always indices less
	// than this node's own index, since the array is post-order.
	Children []int

	// Name/declaration payload. Text holds the identifier for
	// Name/LocalDecl/.../ObjkeyDecl and Key nodes. Local is filled in by
	// the resolver once Text resolves to a slot. Outenv/OutenvSlot are
	// set only for OutenvName/captured LocalDecl.
	Text          string
	Local         int
	Outenv        int
	OutenvSlot    int
	AfterContinue bool
	ImplicitSuper bool

	// Literal payload.
	Num float64
	Str string

	// Operator payload (Binop, Unop, OpAssign, CompareChain chains one
	// operator per additional operand beyond the first two children).
	Op  BinOp
	Ops []BinOp

	// Call/unpack/varargs arity; UnpackAll for "as many as needed".
	Unpack int

	// FunctionLit payload: index into Function.Nested.
	FuncIndex int

	// Hidden for-loop state locals (§4.1: "$for_step"/"$for_each"),
	// filled in when building a ForNumeric/ForGeneric node.
	ForStepLocal int
	ForEachLocal int
}

// CaptureSource says where a Capture's value comes from in the
// enclosing function: a plain local register, or an outenv slot the
// enclosing function itself already holds (a passthrough hop, for a
// closure nested more than one function deep from the variable's
// owner).
type CaptureSource uint8

const (
	CaptureFromLocal CaptureSource = iota
	CaptureFromOutenv
)

// Capture is one entry of a function's outenv slot table (§4.1): slot
// ChildSlot of this function's own Outenvs array is populated, at
// closure-construction time, from the enclosing function's local or
// outenv slot ParentSlot.
type Capture struct {
	ChildSlot  int
	Source     CaptureSource
	ParentSlot int
}

// Function is one function in the forest: a flat, post-order node
// array plus the metadata §4.1/§4.2 need to resolve and compile it.
// Nested closures are themselves Functions, referenced from a parent's
// FunctionLit node by index into Nested.
type Function struct {
	Name string
	Nodes []Node
	Root  int // index of the function's top-level block node

	// Params names this function's explicit parameters, in declaration
	// order. ParamCount is the paramCount argument passed to
	// Builder.Finish, or that argument plus one for the self slot when
	// Builder.Method builds the function. The resolver declares these into
	// the function's parameter scope before walking the body (§4.1:
	// "Functions declare parameters into the block scope"), which is
	// what makes a bare reference to a parameter's name resolve to
	// LOCAL_NAME instead of falling through to GLOBAL_NAME.
	Params     []string
	ParamCount int

	// ImplicitSelf marks a prototype method (§8): the resolver declares
	// "self" and "super" as the function's first local, both bound to
	// the same slot, before any explicit parameter. "super" is flagged
	// ImplicitSuper on its Variable and may only be referenced from the
	// function that declares it — referencing it from a nested closure
	// is a compile error, not a capture (ast_resolve.cpp: "'super'
	// cannot be captured by a closure"); "self" itself has no such
	// restriction and captures like any other local.
	ImplicitSelf bool

	IsVarargs   bool
	IsGenerator bool
	Nested      []*Function
	Parent      *Function

	// LocalCount is the number of ast_local slots this function
	// allocates, set once the resolver finishes (§4.1).
	LocalCount int

	// Captures lists this function's own outenv slots and where each
	// one's value is read from in the enclosing function at the point
	// a FunctionLit referencing this Function is evaluated (§4.1).
	Captures []Capture
}

// Node returns the node at index i.
func (f *Function) Node(i int) *Node { return &f.Nodes[i] }

// RootNode returns the function's top-level block.
func (f *Function) RootNode() *Node { return &f.Nodes[f.Root] }
