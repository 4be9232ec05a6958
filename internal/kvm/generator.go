package kvm

import (
	"fmt"

	kerr "kenaf/internal/errors"
	"kenaf/internal/object"
)

// generatorState is the goroutine/channel handshake backing one
// generator cothread (§4.10's OP_YIELD, §9 "stackful cothreads").
// Kenaf's own call stack is modelled on Go's call stack (call.go), so
// a cothread that can suspend mid-function needs its own goroutine: a
// plain `return` can't leave a Go stack frame half-built and come back
// to it later, but a parked goroutine can.
type generatorState struct {
	fn   *object.Function
	args []object.Value

	resumeCh chan []object.Value
	yieldCh  chan generatorResult

	started bool
}

type generatorResult struct {
	values []object.Value
	done   bool
	err    error
}

func newGeneratorState(fn *object.Function, args []object.Value) *generatorState {
	return &generatorState{
		fn:       fn,
		args:     args,
		resumeCh: make(chan []object.Value),
		yieldCh:  make(chan generatorResult),
	}
}

// NewGenerator creates a cothread bound to fn (which must have been
// compiled with the generator code flag set), to be driven by
// ResumeGenerator. The function doesn't start running until the first
// resume, matching generator construction in most stackful designs:
// building one is cheap, running its body is not.
func (vm *VM) NewGenerator(fn *object.Function, args []object.Value) *object.Cothread {
	co := vm.NewCothread()
	vm.genMu.Lock()
	vm.gens[co] = newGeneratorState(fn, args)
	vm.genMu.Unlock()
	return co
}

func (vm *VM) generatorStateFor(co *object.Cothread) *generatorState {
	vm.genMu.Lock()
	defer vm.genMu.Unlock()
	return vm.gens[co]
}

// ResumeGenerator implements call_yield's counterpart (§4.10): it hands
// resumeArgs to a suspended generator (becoming that OP_YIELD
// expression's result) and blocks until the generator either yields
// again or returns, reporting done=true in the latter case. Calling it
// on a cothread with no generator state is a cothread_error, the same
// as resuming a plain (non-generator) cothread in the original.
func (vm *VM) ResumeGenerator(co *object.Cothread, resumeArgs []object.Value) ([]object.Value, bool, error) {
	state := vm.generatorStateFor(co)
	if state == nil {
		return nil, true, kerr.New(kerr.CothreadError, "value is not a generator cothread")
	}
	if co.Done() {
		return nil, true, kerr.New(kerr.CothreadError, "cannot resume a finished cothread")
	}

	if !state.started {
		state.started = true
		go vm.runGenerator(co, state)
	} else {
		state.resumeCh <- resumeArgs
	}

	res := <-state.yieldCh
	if res.done {
		co.MarkDone()
	}
	return res.values, res.done, res.err
}

// runGenerator is the generator cothread's own goroutine body: it runs
// the generator function to completion via the ordinary call path,
// relying on OP_YIELD (exec.go) to block on state.resumeCh/yieldCh
// each time the function body yields.
func (vm *VM) runGenerator(co *object.Cothread, state *generatorState) {
	defer func() {
		if r := recover(); r != nil {
			state.yieldCh <- generatorResult{done: true, err: fmt.Errorf("generator panicked: %v", r)}
		}
	}()
	results, err := vm.callFunction(co, state.fn, state.args)
	state.yieldCh <- generatorResult{values: results, done: true, err: err}
}

// yieldFromGenerator is called by exec.go's OP_YIELD case when the
// active cothread is a generator: it publishes values to whoever is
// waiting on ResumeGenerator and blocks for the next resume's
// arguments, returning them as OP_YIELD's own result.
func (vm *VM) yieldFromGenerator(co *object.Cothread, values []object.Value) []object.Value {
	state := vm.generatorStateFor(co)
	state.yieldCh <- generatorResult{values: values}
	return <-state.resumeCh
}
