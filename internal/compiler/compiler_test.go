package compiler_test

import (
	"testing"

	"kenaf/internal/ast"
	"kenaf/internal/compiler"
	"kenaf/internal/kvm"
	"kenaf/internal/object"
)

// compileAndRun drives the whole pipeline this package wires together:
// resolve -> ir -> code.Pack -> kvm.Load -> kvm.Call, the same round
// trip a host embedding Kenaf would make.
func compileAndRun(t *testing.T, fn *ast.Function, args []object.Value) []object.Value {
	t.Helper()
	return runOn(t, kvm.New(kvm.Options{}), fn, args)
}

// runOn is compileAndRun against an already-built VM, so a test can
// first register globals (a host-defined prototype, say) before
// compiling and calling the script that uses them.
func runOn(t *testing.T, vm *kvm.VM, fn *ast.Function, args []object.Value) []object.Value {
	t.Helper()
	top := compileToFunction(t, vm, fn)
	results, err := vm.Call(vm.Root(), object.Box(top), args)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	return results
}

// compileToFunction compiles fn and loads it into vm without calling
// it, returning the callable value — useful for a method/constructor
// compiled on its own rather than as the script's entry point.
func compileToFunction(t *testing.T, vm *kvm.VM, fn *ast.Function) *object.Function {
	t.Helper()
	blob, diags, err := compiler.New("test.kf").Compile(fn)
	if err != nil {
		t.Fatalf("Compile: %v (%v)", err, diags)
	}
	_, programs, err := vm.Load(blob)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f := object.NewFunction(programs[0])
	vm.GC.Track(f)
	return f
}

func TestArithmeticReturn(t *testing.T) {
	b := ast.NewBuilder("main")
	sum := b.Binop(ast.OpAdd, b.Number(1), b.Number(2))
	prod := b.Binop(ast.OpMul, sum, b.Number(10))
	ret := b.Return([]int{prod})
	fn := b.Finish(b.Block([]int{ret}), 0, false, false)

	results := compileAndRun(t, fn, nil)
	if len(results) != 1 || results[0].Number() != 30 {
		t.Fatalf("got %v, want [30]", results)
	}
}

func TestFloorDivAndMod(t *testing.T) {
	b := ast.NewBuilder("main")
	q := b.Binop(ast.OpFloorDiv, b.Number(-7), b.Number(2))
	m := b.Binop(ast.OpMod, b.Number(-7), b.Number(2))
	fn := b.Finish(b.Block([]int{b.Return([]int{q, m})}), 0, false, false)

	results := compileAndRun(t, fn, nil)
	if len(results) != 2 || results[0].Number() != -4 || results[1].Number() != 1 {
		t.Fatalf("got %v, want [-4, 1]", results)
	}
}

func TestArrayLiteralAndIndex(t *testing.T) {
	b := ast.NewBuilder("main")
	arr := b.NewArray([]int{b.Number(10), b.Number(20), b.Number(30)})
	elem := b.Index(arr, b.Number(1))
	fn := b.Finish(b.Block([]int{b.Return([]int{elem})}), 0, false, false)

	results := compileAndRun(t, fn, nil)
	if len(results) != 1 || results[0].Number() != 20 {
		t.Fatalf("got %v, want [20]", results)
	}
}

func TestArrayAppendMethod(t *testing.T) {
	b := ast.NewBuilder("main")
	arrDecl := b.VarDecl("xs", b.NewArray([]int{b.Number(1)}))
	xs := b.Name("xs")
	appendCall := b.MethodCall(xs, "append", []int{b.Number(2)}, 0)
	xs2 := b.Name("xs")
	length := b.MethodCall(xs2, "length", nil, 1)
	fn := b.Finish(b.Block([]int{arrDecl, b.ExprStmt(appendCall), b.Return([]int{length})}), 0, false, false)

	results := compileAndRun(t, fn, nil)
	if len(results) != 1 || results[0].Number() != 2 {
		t.Fatalf("got %v, want [2]", results)
	}
}

func TestGenericForOverArraySumsElements(t *testing.T) {
	b := ast.NewBuilder("main")
	arr := b.NewArray([]int{b.Number(1), b.Number(2), b.Number(3), b.Number(4)})
	arrDecl := b.VarDecl("xs", arr)
	totalDecl := b.VarDecl("total", b.Number(0))

	totalName := b.Name("total")
	vName := b.Name("v")
	add := b.Binop(ast.OpAdd, totalName, vName)
	assign := b.Assign(b.Name("total"), add)
	body := b.Block([]int{assign})

	loop := b.ForGeneric([]string{"v"}, b.Name("xs"), body)

	ret := b.Return([]int{b.Name("total")})
	fn := b.Finish(b.Block([]int{arrDecl, totalDecl, loop, ret}), 0, false, false)

	results := compileAndRun(t, fn, nil)
	if len(results) != 1 || results[0].Number() != 10 {
		t.Fatalf("got %v, want [10]", results)
	}
}

func TestNumericForSumsRange(t *testing.T) {
	b := ast.NewBuilder("main")
	totalDecl := b.VarDecl("total", b.Number(0))
	add := b.Binop(ast.OpAdd, b.Name("total"), b.Name("i"))
	assign := b.Assign(b.Name("total"), add)
	body := b.Block([]int{assign})
	loop := b.ForNumeric("i", b.Number(1), b.Number(5), -1, body)
	ret := b.Return([]int{b.Name("total")})
	fn := b.Finish(b.Block([]int{totalDecl, loop, ret}), 0, false, false)

	results := compileAndRun(t, fn, nil)
	if len(results) != 1 || results[0].Number() != 15 {
		t.Fatalf("got %v, want [15]", results)
	}
}

func TestFunctionCallAddsParams(t *testing.T) {
	inner := ast.NewBuilder("add")
	inner.Param("a")
	inner.Param("b")
	sum := inner.Binop(ast.OpAdd, inner.Name("a"), inner.Name("b"))
	innerFn := inner.Finish(inner.Block([]int{inner.Return([]int{sum})}), 2, false, false)

	outer := ast.NewBuilder("main")
	lit := outer.FunctionLit(innerFn)
	decl := outer.VarDecl("add", lit)
	call := outer.Call(outer.Name("add"), []int{outer.Number(4), outer.Number(5)}, 1)
	ret := outer.Return([]int{call})
	fn := outer.Finish(outer.Block([]int{decl, ret}), 0, false, false)

	results := compileAndRun(t, fn, nil)
	if len(results) != 1 || results[0].Number() != 9 {
		t.Fatalf("got %v, want [9]", results)
	}
}

func TestThrowProducesScriptError(t *testing.T) {
	b := ast.NewBuilder("main")
	fn := b.Finish(b.Block([]int{b.Throw(b.String("boom"))}), 0, false, false)

	blob, _, err := compiler.New("test.kf").Compile(fn)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	vm := kvm.New(kvm.Options{})
	_, programs, err := vm.Load(blob)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	top := object.NewFunction(programs[0])
	vm.GC.Track(top)

	_, err = vm.Call(vm.Root(), object.Box(top), nil)
	if err == nil {
		t.Fatal("expected a thrown error")
	}
}

func TestRedeclarationIsDiagnostic(t *testing.T) {
	b := ast.NewBuilder("main")
	first := b.VarDecl("x", b.Number(1))
	second := b.VarDecl("x", b.Number(2))
	fn := b.Finish(b.Block([]int{first, second, b.Return(nil)}), 0, false, false)

	_, diags, err := compiler.New("test.kf").Compile(fn)
	if err == nil || len(diags) == 0 {
		t.Fatalf("expected a resolution diagnostic, got err=%v diags=%v", err, diags)
	}
}

func TestGlobalNameReadWithoutPriorDeclIsNotAnError(t *testing.T) {
	b := ast.NewBuilder("main")
	fn := b.Finish(b.Block([]int{b.Return([]int{b.Name("undeclared")})}), 0, false, false)
	_, diags, err := compiler.New("test.kf").Compile(fn)
	if err != nil {
		t.Fatalf("reading an unbound name should resolve to a global, not fail: %v (%v)", err, diags)
	}
}

// TestClosureCapturesAndMutatesOuterLocalAcrossCalls builds a counter
// closure two function-nesting levels deep (main -> makeCounter ->
// inc) and calls it three times, checking that each call sees the
// previous call's write to the captured outer local rather than a
// fresh copy (§4.1's outenv capture chain).
func TestClosureCapturesAndMutatesOuterLocalAcrossCalls(t *testing.T) {
	inc := ast.NewBuilder("inc")
	bumped := inc.Binop(ast.OpAdd, inc.Name("n"), inc.Number(1))
	incFn := inc.Finish(inc.Block([]int{
		inc.Assign(inc.Name("n"), bumped),
		inc.Return([]int{inc.Name("n")}),
	}), 0, false, false)

	maker := ast.NewBuilder("makeCounter")
	nDecl := maker.VarDecl("n", maker.Number(0))
	incLit := maker.FunctionLit(incFn)
	incDecl := maker.VarDecl("inc", incLit)
	makerFn := maker.Finish(maker.Block([]int{
		nDecl, incDecl, maker.Return([]int{maker.Name("inc")}),
	}), 0, false, false)

	top := ast.NewBuilder("main")
	makerLit := top.FunctionLit(makerFn)
	makerDecl := top.VarDecl("makeCounter", makerLit)
	cDecl := top.VarDecl("c", top.Call(top.Name("makeCounter"), nil, 1))
	firstCall := top.ExprStmt(top.Call(top.Name("c"), nil, 0))
	secondCall := top.ExprStmt(top.Call(top.Name("c"), nil, 0))
	thirdCall := top.Call(top.Name("c"), nil, 1)
	topFn := top.Finish(top.Block([]int{
		makerDecl, cDecl, firstCall, secondCall, top.Return([]int{thirdCall}),
	}), 0, false, false)

	results := compileAndRun(t, topFn, nil)
	if len(results) != 1 || results[0].Number() != 3 {
		t.Fatalf("got %v, want [3]", results)
	}
}

// TestGeneratorYieldResumeRoundTrip drives a generator cothread through
// two yields and a final return, summing every value observed across
// resumes (§4.10 OP_YIELD/call_yield). The AST has no destructuring
// form for a multi-result native call (resume returns [more, value]),
// so the driver loop itself runs as plain Go against vm.ResumeGenerator
// — the same entry point the compiled "resume" builtin in
// internal/kvm/builtins.go calls — rather than as compiled Kenaf.
func TestGeneratorYieldResumeRoundTrip(t *testing.T) {
	gen := ast.NewBuilder("gen")
	genFn := gen.Finish(gen.Block([]int{
		gen.Yield([]int{gen.Number(10)}, 1),
		gen.Yield([]int{gen.Number(20)}, 1),
		gen.Return([]int{gen.Number(30)}),
	}), 0, false, true)

	vm := kvm.New(kvm.Options{})
	fn := compileToFunction(t, vm, genFn)
	co := vm.NewGenerator(fn, nil)

	total := 0.0
	for {
		values, done, err := vm.ResumeGenerator(co, nil)
		if err != nil {
			t.Fatalf("ResumeGenerator: %v", err)
		}
		if len(values) != 1 {
			t.Fatalf("got %d values, want 1", len(values))
		}
		total += values[0].Number()
		if done {
			break
		}
	}
	if total != 60 {
		t.Fatalf("got %v, want 60", total)
	}
}

// TestPrototypeConstructionCallsSelfAndInheritsMethods exercises
// call_prototype (§4.10, §8 scenario 4): calling a sealed prototype
// lookup constructs a new instance, runs its "self" constructor bound
// to that instance, and the constructed instance inherits "sum" from
// the prototype via the ordinary GET_KEY fallback walk.
//
// The prototype itself (Point) is built the way a host embedding
// Kenaf would register a native class: as a bare Lookup with no proto
// of its own, populated via the LayoutTable directly, since the
// compiled IR has no literal form for defining a prototype's own
// shape — only for instantiating one (ast.go's NewObject).
func TestPrototypeConstructionCallsSelfAndInheritsMethods(t *testing.T) {
	vm := kvm.New(kvm.Options{})

	ctor := ast.NewBuilder("self")
	ctor.Param("x")
	ctor.Param("y")
	setX := ctor.Assign(ctor.Key(ctor.Name("self"), "x"), ctor.Name("x"))
	setY := ctor.Assign(ctor.Key(ctor.Name("self"), "y"), ctor.Name("y"))
	ctorFn := ctor.Method(ctor.Block([]int{setX, setY}), 2, false, false)

	sum := ast.NewBuilder("sum")
	sumExpr := sum.Binop(ast.OpAdd, sum.Key(sum.Name("self"), "x"), sum.Key(sum.Name("self"), "y"))
	sumFn := sum.Method(sum.Block([]int{sum.Return([]int{sumExpr})}), 0, false, false)

	proto := object.NewLookup(vm.Layouts.NewRoot(nil))
	vm.GC.Track(proto)
	setProtoKey(t, vm, proto, "self", object.Box(compileToFunction(t, vm, ctorFn)))
	setProtoKey(t, vm, proto, "sum", object.Box(compileToFunction(t, vm, sumFn)))
	vm.Layouts.SealPrototype(proto)
	vm.SetGlobal("Point", object.Box(proto))

	top := ast.NewBuilder("main")
	point := top.Call(top.Name("Point"), []int{top.Number(3), top.Number(4)}, 1)
	sumCall := top.MethodCall(point, "sum", nil, 1)
	topFn := top.Finish(top.Block([]int{top.Return([]int{sumCall})}), 0, false, false)

	results := runOn(t, vm, topFn, nil)
	if len(results) != 1 || results[0].Number() != 7 {
		t.Fatalf("got %v, want [7]", results)
	}
}

func setProtoKey(t *testing.T, vm *kvm.VM, proto *object.Lookup, key string, v object.Value) {
	t.Helper()
	sel, err := vm.Layouts.SetSel(proto, object.Box(vm.Keys.Intern(key)))
	if err != nil {
		t.Fatalf("SetSel(%q): %v", key, err)
	}
	if sel.Slot.Valid() {
		sel.Slot.Set(v)
	} else {
		proto.Slots.Set(sel.SIndex, v)
	}
}
