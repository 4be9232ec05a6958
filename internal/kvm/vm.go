// Package kvm is the Kenaf runtime: the code_unit loader, the
// call-stack manager, and the register-machine dispatch loop (§4.9,
// §4.10, §6.4).
package kvm

import (
	"log"
	"sync"

	"kenaf/internal/gc"
	"kenaf/internal/object"
)

// Options configures a VM the way the teacher's command layer builds
// up a config struct and passes it inward, rather than reaching for
// global state (mirrors cmd/sentra's flag-to-struct wiring).
type Options struct {
	// Logger receives GC phase transitions and safepoint diagnostics;
	// nil means discard (library code stays silent by default).
	Logger *log.Logger

	// InitialHeapHint sizes the GC's initial tracked-object capacity.
	InitialHeapHint int
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(discardWriter{}, "", 0)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// VM is one Kenaf runtime instance: its interned-key/u64/layout
// tables, global namespace, external root set, and the concurrent GC
// tracking every heap object it allocates (§4.12, §5, §6.4).
type VM struct {
	Keys    *object.KeyPool
	U64s    *object.U64Pool
	Layouts *object.LayoutTable
	Roots   *object.RootSet

	Globals map[string]object.Value

	GC  *gc.Collector
	Log *log.Logger

	root *object.Cothread

	genMu sync.Mutex
	gens  map[*object.Cothread]*generatorState
}

func New(opts Options) *VM {
	vm := &VM{
		Keys:    object.NewKeyPool(),
		U64s:    object.NewU64Pool(),
		Layouts: object.NewLayoutTable(),
		Roots:   object.NewRootSet(),
		Globals: make(map[string]object.Value),
		Log:     opts.logger(),
		gens:    make(map[*object.Cothread]*generatorState),
	}
	vm.GC = gc.New(gc.Options{Logger: vm.Log, InitialCapacity: opts.InitialHeapHint})
	vm.GC.RegisterPruner(vm.Keys.Prune)
	vm.GC.RegisterPruner(vm.U64s.Prune)
	vm.GC.RegisterPruner(vm.Layouts.Prune)
	vm.root = object.NewCothread()
	vm.GC.Track(vm.root)
	vm.installBuiltins()
	return vm
}

// SetGlobal and Global implement the GET_GLOBAL/SET_GLOBAL namespace
// (§4.9): a flat string-keyed table the host and compiled scripts
// share.
func (vm *VM) SetGlobal(name string, v object.Value) { vm.Globals[name] = v }
func (vm *VM) Global(name string) (object.Value, bool) {
	v, ok := vm.Globals[name]
	return v, ok
}

// NewCothread allocates a cothread tracked by the VM's collector
// (§3.4: cothreads die once their frame stack empties and no root
// holds them, which for GC purposes just means ceasing to be traced).
func (vm *VM) NewCothread() *object.Cothread {
	c := object.NewCothread()
	vm.GC.Track(c)
	return c
}

// Root returns the VM's default cothread, the one a host program runs
// its top-level script call on.
func (vm *VM) Root() *object.Cothread { return vm.root }

// Close stops the VM's background GC goroutine (§5). A host embedding
// Kenaf should call this once a VM is no longer needed; an unclosed VM
// leaks its collector goroutine for the life of the process.
func (vm *VM) Close() error { return vm.GC.StopCollector() }
