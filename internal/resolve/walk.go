package resolve

import "kenaf/internal/ast"

// resolveFunction pushes a parameter scope for fn, declares its
// parameters (and self/implicit-super binding if fn is a method), and
// resolves its body. A nested closure is resolved the moment its
// FunctionLit node is reached during that body walk (the KindFunctionLit
// case below), not in a separate pass afterward: §4.1 step 3 relies on
// every ancestor scope the closure might capture from — including
// block scopes opened and closed partway through the body, not just
// fn's own top-level parameter scope — still being on the stack while
// the descendant resolves.
func (r *Resolver) resolveFunction(fn *ast.Function) {
	r.pushScope(fn, nil)
	defer r.popScope()

	if fn.ImplicitSelf {
		r.DeclareSelf()
	}
	for _, p := range fn.Params {
		r.declare(p, false)
	}

	if fn.Root >= 0 {
		r.walk(fn, fn.Root, false)
	}
}

// selfName and superName are the implicit bindings a prototype method
// declares ahead of its explicit parameters (§8, ast.go's
// ImplicitSelf doc).
const (
	selfName  = "self"
	superName = "super"
)

// DeclareSelf introduces the implicit `self`/`super` binding a
// prototype method resolves against: both share local slot 0, "self"
// an ordinary local (captures like any other local, per ast.go), and
// "super" flagged ImplicitSuper so resolveName rewrites a bare
// reference to it as SuperName rather than LocalName (Open Question
// resolution, see SPEC_FULL.md §E: a closure may capture `self`;
// referencing `super` from a closure is a compile error).
func (r *Resolver) DeclareSelf() {
	v := r.declare(selfName, false)
	s := r.scopes[len(r.scopes)-1]
	s.vars[superName] = &Variable{Index: v.Index, AfterContinue: v.AfterContinue, ImplicitSuper: true}
}

func (r *Resolver) walkChildren(fn *ast.Function, n *ast.Node, isAssign bool) {
	for _, c := range n.Children {
		r.walk(fn, c, isAssign)
	}
}

// walk resolves node idx of fn. isAssignTarget is only meaningful for
// Name nodes reached directly as the left side of an assignment.
func (r *Resolver) walk(fn *ast.Function, idx int, isAssignTarget bool) {
	n := fn.Node(idx)
	switch n.Kind {
	case ast.KindName:
		r.resolveName(n, isAssignTarget)

	case ast.KindVarargs:
		if !r.inUnpackContext {
			r.fail("varargs may only appear inside an unpack expression")
		}

	case ast.KindBlock:
		r.pushScope(fn, n)
		r.walkChildren(fn, n, false)
		r.popScope()

	case ast.KindVarDecl:
		// Children[0] is the Name being declared; resolve any
		// initializer first so `var x = x` sees the outer x.
		if len(n.Children) > 1 {
			r.walk(fn, n.Children[1], false)
		}
		nameNode := fn.Node(n.Children[0])
		v := r.declare(nameNode.Text, false)
		nameNode.Kind = ast.KindLocalDecl
		nameNode.Local = v.Index

	case ast.KindAssign:
		r.walk(fn, n.Children[1], false)
		r.walkAssignTarget(fn, n.Children[0])

	case ast.KindOpAssign:
		r.walkAssignTarget(fn, n.Children[0])
		r.walk(fn, n.Children[1], false)

	case ast.KindForNumeric:
		r.walkForNumeric(fn, n)

	case ast.KindForGeneric:
		r.walkForGeneric(fn, n)

	case ast.KindRepeatUntil:
		r.pushScope(fn, n)
		r.scopes[len(r.scopes)-1].repeatUntil = true
		r.walk(fn, n.Children[0], false)
		r.scopes[len(r.scopes)-1].afterContinue = false
		r.walk(fn, n.Children[1], false)
		r.popScope()

	case ast.KindUnpack:
		saved := r.inUnpackContext
		r.inUnpackContext = true
		r.walkChildren(fn, n, false)
		r.inUnpackContext = saved

	case ast.KindFunctionLit:
		// Resolve the nested function right here, while every scope it
		// might capture from (including block scopes this walk has
		// already pushed and hasn't popped yet) is still live on
		// r.scopes — see resolveFunction's doc comment.
		r.resolveFunction(fn.Nested[n.FuncIndex])

	case ast.KindNewTable:
		// Children alternate key, value. A bare identifier key is an
		// object-key literal (§4.1 OBJKEY_DECL), not a name lookup.
		for i := 0; i+1 < len(n.Children); i += 2 {
			keyNode := fn.Node(n.Children[i])
			if keyNode.Kind == ast.KindName {
				keyNode.Kind = ast.KindObjkeyDecl
			} else {
				r.walk(fn, n.Children[i], false)
			}
			r.walk(fn, n.Children[i+1], false)
		}

	case ast.KindBreak, ast.KindContinue:
		if n.Kind == ast.KindContinue {
			r.scopes[len(r.scopes)-1].afterContinue = true
		}

	default:
		r.walkChildren(fn, n, false)
	}
}

// walkAssignTarget resolves an lvalue: a bare Name is looked up as an
// assignment target (§4.1 step 1's undeclared-global failure path);
// anything else (Index/Key) is a plain expression walk.
func (r *Resolver) walkAssignTarget(fn *ast.Function, idx int) {
	n := fn.Node(idx)
	switch n.Kind {
	case ast.KindName:
		r.resolveName(n, true)
	case ast.KindSuper:
		r.fail("cannot assign to super")
	default:
		r.walk(fn, idx, false)
	}
}

// walkForNumeric declares the loop variable and the hidden $for_step
// local (§4.1: "hidden $for_step / $for_each locals used to hold
// generator state").
func (r *Resolver) walkForNumeric(fn *ast.Function, n *ast.Node) {
	nameIdx := n.Children[0]
	bodyIdx := n.Children[len(n.Children)-1]
	for _, c := range n.Children[1 : len(n.Children)-1] {
		r.walk(fn, c, false)
	}

	r.pushScope(fn, n)
	n.ForStepLocal = r.allocLocal(fn)
	nameNode := fn.Node(nameIdx)
	v := r.declare(nameNode.Text, false)
	nameNode.Kind = ast.KindLocalDecl
	nameNode.Local = v.Index

	r.walk(fn, bodyIdx, false)
	r.popScope()
}

// walkForGeneric declares the loop variables and the hidden $for_each
// generator-state local.
func (r *Resolver) walkForGeneric(fn *ast.Function, n *ast.Node) {
	iterIdx := n.Children[len(n.Children)-2]
	bodyIdx := n.Children[len(n.Children)-1]
	nameIdxs := n.Children[:len(n.Children)-2]

	r.walk(fn, iterIdx, false)

	r.pushScope(fn, n)
	n.ForEachLocal = r.allocLocal(fn)
	for _, ni := range nameIdxs {
		nameNode := fn.Node(ni)
		v := r.declare(nameNode.Text, false)
		nameNode.Kind = ast.KindLocalDecl
		nameNode.Local = v.Index
	}

	r.walk(fn, bodyIdx, false)
	r.popScope()
}
