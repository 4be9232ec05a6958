package ast

// Builder appends nodes to a Function's flat array in post-order,
// returning each new node's index. Callers build children first, then
// pass their indices to the parent-producing method — the natural
// order for a recursive-descent producer, which is exactly what keeps
// the array post-order without any extra bookkeeping.
type Builder struct {
	fn *Function
}

func NewBuilder(name string) *Builder {
	return &Builder{fn: &Function{Name: name, Root: -1}}
}

func (b *Builder) Function() *Function { return b.fn }

func (b *Builder) push(n Node) int {
	b.fn.Nodes = append(b.fn.Nodes, n)
	return len(b.fn.Nodes) - 1
}

func (b *Builder) Null() int  { return b.push(Node{Kind: KindNull}) }
func (b *Builder) True() int  { return b.push(Node{Kind: KindTrue}) }
func (b *Builder) False() int { return b.push(Node{Kind: KindFalse}) }

func (b *Builder) Number(v float64) int {
	return b.push(Node{Kind: KindNumber, Num: v})
}

func (b *Builder) String(s string) int {
	return b.push(Node{Kind: KindString, Str: s})
}

// Name emits a bare NAME reference; the resolver rewrites its Kind in
// place to one of LocalDecl/LocalName/SuperName/OutenvName/GlobalName.
func (b *Builder) Name(text string) int {
	return b.push(Node{Kind: KindName, Text: text})
}

func (b *Builder) Varargs() int { return b.push(Node{Kind: KindVarargs}) }

func (b *Builder) Binop(op BinOp, lhs, rhs int) int {
	return b.push(Node{Kind: KindBinop, Op: op, Children: []int{lhs, rhs}})
}

// CompareChain builds a chained comparison (a < b < c): one operand
// per term, one operator per adjacent pair.
func (b *Builder) CompareChain(ops []BinOp, terms []int) int {
	return b.push(Node{Kind: KindCompareChain, Ops: ops, Children: terms})
}

func (b *Builder) Unop(op BinOp, operand int) int {
	return b.push(Node{Kind: KindUnop, Op: op, Children: []int{operand}})
}

func (b *Builder) And(lhs, rhs int) int {
	return b.push(Node{Kind: KindAnd, Children: []int{lhs, rhs}})
}

func (b *Builder) Or(lhs, rhs int) int {
	return b.push(Node{Kind: KindOr, Children: []int{lhs, rhs}})
}

func (b *Builder) Not(operand int) int {
	return b.push(Node{Kind: KindNot, Children: []int{operand}})
}

func (b *Builder) IfExpr(cond, then, els int) int {
	return b.push(Node{Kind: KindIf, Children: []int{cond, then, els}})
}

func (b *Builder) Call(callee int, args []int, unpack int) int {
	children := append([]int{callee}, args...)
	return b.push(Node{Kind: KindCall, Children: children, Unpack: unpack})
}

func (b *Builder) MethodCall(recv int, method string, args []int, unpack int) int {
	children := append([]int{recv}, args...)
	return b.push(Node{Kind: KindMethodCall, Text: method, Children: children, Unpack: unpack})
}

func (b *Builder) Index(recv, idx int) int {
	return b.push(Node{Kind: KindIndex, Children: []int{recv, idx}})
}

func (b *Builder) Key(recv int, key string) int {
	return b.push(Node{Kind: KindKey, Text: key, Children: []int{recv}})
}

func (b *Builder) NewArray(elems []int) int {
	return b.push(Node{Kind: KindNewArray, Children: elems})
}

// NewTable takes alternating key/value node indices.
func (b *Builder) NewTable(kv []int) int {
	return b.push(Node{Kind: KindNewTable, Children: kv})
}

func (b *Builder) NewObject(proto int) int {
	return b.push(Node{Kind: KindNewObject, Children: []int{proto}})
}

func (b *Builder) Super() int { return b.push(Node{Kind: KindSuper}) }

// FunctionLit embeds a nested Function (built with its own Builder),
// recording it in Nested and linking parent/child for the resolver's
// function-boundary walk (§4.1 step 3).
func (b *Builder) FunctionLit(nested *Function) int {
	nested.Parent = b.fn
	idx := len(b.fn.Nested)
	b.fn.Nested = append(b.fn.Nested, nested)
	return b.push(Node{Kind: KindFunctionLit, FuncIndex: idx})
}

func (b *Builder) Unpack(expr int, count int) int {
	return b.push(Node{Kind: KindUnpack, Children: []int{expr}, Unpack: count})
}

func (b *Builder) RvalList(exprs []int) int {
	return b.push(Node{Kind: KindRvalList, Children: exprs})
}

// Block opens a lexical scope; children are the statements it holds,
// built before Block is called, in the order they were pushed.
func (b *Builder) Block(stmts []int) int {
	return b.push(Node{Kind: KindBlock, Children: stmts})
}

// VarDecl introduces a new local (resolver rewrites Text to LocalDecl
// on the Name it wraps); Init may be -1 for an uninitialized `var`.
func (b *Builder) VarDecl(name string, init int) int {
	nameIdx := b.push(Node{Kind: KindName, Text: name})
	children := []int{nameIdx}
	if init >= 0 {
		children = append(children, init)
	}
	return b.push(Node{Kind: KindVarDecl, Children: children})
}

func (b *Builder) Assign(target, value int) int {
	return b.push(Node{Kind: KindAssign, Children: []int{target, value}})
}

func (b *Builder) OpAssign(op BinOp, target, value int) int {
	return b.push(Node{Kind: KindOpAssign, Op: op, Children: []int{target, value}})
}

func (b *Builder) IfStmt(cond, then int, els int) int {
	children := []int{cond, then}
	if els >= 0 {
		children = append(children, els)
	}
	return b.push(Node{Kind: KindIfStmt, Children: children})
}

func (b *Builder) WhileStmt(cond, body int) int {
	return b.push(Node{Kind: KindWhileStmt, Children: []int{cond, body}})
}

func (b *Builder) RepeatUntil(body, cond int) int {
	return b.push(Node{Kind: KindRepeatUntil, Children: []int{body, cond}})
}

// ForNumeric builds a numeric for-loop; step may be -1 to default to 1.
func (b *Builder) ForNumeric(varName string, start, stop, step, body int) int {
	nameIdx := b.push(Node{Kind: KindName, Text: varName})
	children := []int{nameIdx, start, stop}
	if step >= 0 {
		children = append(children, step)
	}
	children = append(children, body)
	return b.push(Node{Kind: KindForNumeric, Children: children, ForStepLocal: -1})
}

// ForGeneric builds a generic `for a, b in expr` loop over names.
func (b *Builder) ForGeneric(names []string, iter, body int) int {
	var children []int
	for _, n := range names {
		children = append(children, b.push(Node{Kind: KindName, Text: n}))
	}
	children = append(children, iter, body)
	return b.push(Node{Kind: KindForGeneric, Children: children, ForEachLocal: -1})
}

func (b *Builder) Return(vals []int) int {
	return b.push(Node{Kind: KindReturn, Children: vals})
}

func (b *Builder) Break() int    { return b.push(Node{Kind: KindBreak}) }
func (b *Builder) Continue() int { return b.push(Node{Kind: KindContinue}) }

func (b *Builder) Throw(val int) int {
	return b.push(Node{Kind: KindThrow, Children: []int{val}})
}

func (b *Builder) Yield(vals []int, unpack int) int {
	return b.push(Node{Kind: KindYield, Children: vals, Unpack: unpack})
}

func (b *Builder) ExprStmt(expr int) int {
	return b.push(Node{Kind: KindExprStmt, Children: []int{expr}})
}

// Param declares one of the function's explicit parameters, in order;
// the resolver binds it into the function's top scope before walking
// the body (ast.go: "Functions declare parameters into the block
// scope"), so a bare reference to name resolves to LOCAL_NAME rather
// than falling through to GLOBAL_NAME.
func (b *Builder) Param(name string) {
	b.fn.Params = append(b.fn.Params, name)
}

// Finish records the function's top-level block as its root.
func (b *Builder) Finish(root int, paramCount int, varargs, generator bool) *Function {
	b.fn.Root = root
	b.fn.ParamCount = paramCount
	b.fn.IsVarargs = varargs
	b.fn.IsGenerator = generator
	return b.fn
}

// Method is Finish for a prototype method (§8): it reserves local slot
// 0 for the shared self/super binding ImplicitSelf requests, so
// paramCount counts only the explicit parameters declared with Param,
// not self.
func (b *Builder) Method(root int, paramCount int, varargs, generator bool) *Function {
	b.fn.ImplicitSelf = true
	b.fn.Root = root
	b.fn.ParamCount = paramCount + 1
	b.fn.IsVarargs = varargs
	b.fn.IsGenerator = generator
	return b.fn
}
