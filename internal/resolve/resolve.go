// Package resolve implements the AST resolver of §4.1: it rewrites
// every NAME node in place to LOCAL_DECL, LOCAL_NAME, SUPER_NAME,
// OUTENV_NAME, GLOBAL_NAME, or OBJKEY_DECL, and records outenv capture
// chains for closures. It assigns no varenv slots: a captured local is
// copied into a per-closure outenv entry rather than kept in a shared
// block-level varenv.
package resolve

import (
	"fmt"

	"kenaf/internal/ast"
)

// Variable is one entry in a scope's name table (§4.1).
type Variable struct {
	Index         int
	AfterContinue bool
	ImplicitSuper bool
	IsOutenv      bool
	OutenvSlot    int
}

// Scope is one lexical scope: a block, a for-loop, or a function's
// top-level parameter scope.
type Scope struct {
	fn            *ast.Function
	node          *ast.Node // nil for the function's parameter scope
	afterContinue bool
	repeatUntil   bool
	vars          map[string]*Variable
}

// Resolver walks a function forest, resolving names against a stack
// of lexical scopes (§4.1).
type Resolver struct {
	scopes          []*Scope
	nextLoc         map[*ast.Function]int
	errs            []error
	inUnpackContext bool
}

func New() *Resolver {
	return &Resolver{nextLoc: make(map[*ast.Function]int)}
}

// Resolve resolves fn and every function nested within it, returning
// every error collected along the way.
func (r *Resolver) Resolve(fn *ast.Function) []error {
	r.resolveFunction(fn)
	return r.errs
}

func (r *Resolver) fail(format string, args ...any) {
	r.errs = append(r.errs, fmt.Errorf(format, args...))
}

func (r *Resolver) curFunc() *ast.Function { return r.scopes[len(r.scopes)-1].fn }

func (r *Resolver) allocLocal(fn *ast.Function) int {
	i := r.nextLoc[fn]
	r.nextLoc[fn] = i + 1
	fn.LocalCount = r.nextLoc[fn]
	return i
}

func (r *Resolver) pushScope(fn *ast.Function, node *ast.Node) *Scope {
	s := &Scope{fn: fn, node: node, vars: make(map[string]*Variable)}
	if n := len(r.scopes); n > 0 {
		s.afterContinue = r.scopes[n-1].afterContinue
		if r.scopes[n-1].fn == fn {
			s.repeatUntil = r.scopes[n-1].repeatUntil
		}
	}
	r.scopes = append(r.scopes, s)
	return s
}

func (r *Resolver) popScope() {
	r.scopes = r.scopes[:len(r.scopes)-1]
}

// declare introduces name as a new local in the innermost scope,
// erroring on same-scope shadowing (§4.1 constraints).
func (r *Resolver) declare(name string, implicitSuper bool) *Variable {
	s := r.scopes[len(r.scopes)-1]
	if _, ok := s.vars[name]; ok {
		r.fail("cannot redeclare %q in the same scope", name)
		return s.vars[name]
	}
	v := &Variable{Index: r.allocLocal(s.fn), AfterContinue: s.afterContinue, ImplicitSuper: implicitSuper}
	s.vars[name] = v
	return v
}

// lookup implements the §4.1 bare-name algorithm, returning the owning
// scope and variable, or nil if the name is unbound in any scope.
func (r *Resolver) lookup(name string) (*Scope, *Variable) {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		if v, ok := r.scopes[i].vars[name]; ok {
			return r.scopes[i], v
		}
	}
	return nil, nil
}

// resolveName runs the §4.1 lookup algorithm for a NAME node, rewriting
// its Kind in place.
func (r *Resolver) resolveName(n *ast.Node, isAssignTarget bool) {
	owner, v := r.lookup(n.Text)
	if v == nil {
		if isAssignTarget {
			r.fail("cannot assign to undeclared identifier %q", n.Text)
		}
		n.Kind = ast.KindGlobalName
		return
	}

	if owner.fn == r.curFunc() {
		switch {
		case v.ImplicitSuper:
			n.Kind = ast.KindSuperName
		case v.IsOutenv:
			n.Kind = ast.KindOutenvName
			n.Outenv = v.Index
			n.OutenvSlot = v.OutenvSlot
		default:
			n.Kind = ast.KindLocalName
			n.Local = v.Index
		}
		if owner.repeatUntil && !v.AfterContinue && r.scopes[len(r.scopes)-1].afterContinue {
			r.fail("cannot use %q, declared after the loop's first continue, in its until-clause", n.Text)
		}
		return
	}

	if v.ImplicitSuper {
		r.fail("'super' cannot be captured by a closure")
		return
	}

	// Cross-function reference: walk outward minting/reusing an outenv
	// entry at each function boundary (§4.1 step 3).
	r.captureAcrossFunctions(owner, v, n)
}

// captureAcrossFunctions links a name defined in an outer function into
// the current function's outenv chain, one hop per function boundary,
// inserting a synthetic variable at each hop so repeated references
// resolve directly next time (§4.1: "subsequent lookups... are fast").
func (r *Resolver) captureAcrossFunctions(owner *Scope, v *Variable, n *ast.Node) {
	// Build the chain of functions from the use site out to (but not
	// including) the definer.
	var chain []*ast.Function
	for f := r.curFunc(); f != owner.fn; f = f.Parent {
		chain = append(chain, f)
	}

	slot := v.Index
	source := ast.CaptureFromLocal
	if !v.IsOutenv {
		v.IsOutenv = true
		v.OutenvSlot = v.Index
		slot = v.OutenvSlot
	} else {
		slot = v.OutenvSlot
		source = ast.CaptureFromOutenv
	}

	// Walk from the definer's immediate child outward to the use site,
	// threading a passthrough outenv entry through every intermediate
	// function, registering a synthetic fast-path variable as we go.
	// Each hop records a Capture on the function it lands in, saying
	// where (local or outenv slot of its own parent) its new outenv
	// slot's value comes from.
	entrySlot := slot
	for i := len(chain) - 1; i >= 0; i-- {
		fnScope := r.functionTopScope(chain[i])
		syntheticName := n.Text
		if existing, ok := fnScope.vars[syntheticName]; ok && existing.IsOutenv {
			entrySlot = existing.OutenvSlot
			source = ast.CaptureFromOutenv
			continue
		}
		idx := r.allocLocal(chain[i])
		fnScope.vars[syntheticName] = &Variable{Index: idx, IsOutenv: true, OutenvSlot: entrySlot}
		chain[i].Captures = append(chain[i].Captures, ast.Capture{ChildSlot: idx, Source: source, ParentSlot: entrySlot})
		entrySlot = idx
		source = ast.CaptureFromOutenv
	}

	n.Kind = ast.KindOutenvName
	n.Outenv = entrySlot
	n.OutenvSlot = entrySlot
}

// functionTopScope returns fn's outermost (parameter) scope, which is
// guaranteed to still be on the scope stack for every ancestor function
// of the one currently being resolved.
func (r *Resolver) functionTopScope(fn *ast.Function) *Scope {
	for _, s := range r.scopes {
		if s.fn == fn && s.node == nil {
			return s
		}
	}
	// Ancestor functions are resolved before their nested closures, so
	// every ancestor's parameter scope stays live on the stack for the
	// whole resolution of its descendants.
	panic("resolve: function scope not found on stack")
}
