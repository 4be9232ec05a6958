// Package gc implements the concurrent tri-colour mark-sweep collector
// of §4.12: a single GC goroutine running beside the mutator,
// communicating through an atomic colour byte per object plus a
// mutex/semaphore work handshake (§4.12.4). Reclamation itself is left
// to the Go runtime's own collector once an object drops out of every
// tracking structure here — this package owns the *protocol* (when an
// object is considered live, when a weak table entry is pruned), not
// raw memory management, which Go already does correctly and there is
// no idiomatic way to opt out of.
package gc

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"kenaf/internal/object"
)

// Phase mirrors §4.12.1's NONE/MARK/SWEEP state machine.
type Phase uint32

const (
	PhaseNone Phase = iota
	PhaseMark
	PhaseSweep
)

// Pruner is called at the MARK->SWEEP boundary for every weak table
// (KeyPool, U64Pool, LayoutTable) so dead entries are dropped before
// their referents are swept (§4.12.1, §4.12.4).
type Pruner func(isDead func(object.Heap) bool)

// Collector runs the GC thread and holds every object the mutator has
// allocated, for the sole purpose of answering "is this colour dead
// this epoch" during sweep; it never frees anything itself.
type Collector struct {
	logger *log.Logger

	mu      sync.Mutex
	phase   Phase
	oldColor, newColor object.Color
	objects []object.Heap
	markList []object.Heap

	allocated int // allocations since the last cycle started (§4.12.1)
	threshold int // StartCycle fires automatically once allocated reaches this, while idle

	sem *semaphore.Weighted

	pruners []Pruner

	cancel context.CancelFunc
	group  *errgroup.Group
}

type Options struct {
	Logger          *log.Logger
	InitialCapacity int

	// CycleThreshold is how many Track calls accumulate, while the
	// collector is idle (PhaseNone), before Track starts a new mark
	// cycle itself (§4.12.1's "mark roots" is otherwise never reached
	// by anything in this package — something has to decide when a
	// cycle begins). 0 defaults to 4096.
	CycleThreshold int
}

func New(opts Options) *Collector {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	cap := opts.InitialCapacity
	if cap <= 0 {
		cap = 64
	}
	threshold := opts.CycleThreshold
	if threshold <= 0 {
		threshold = 4096
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	c := &Collector{
		logger:    logger,
		newColor:  object.ColorPurple,
		oldColor:  object.ColorOrange,
		objects:   make([]object.Heap, 0, cap),
		sem:       semaphore.NewWeighted(1),
		threshold: threshold,
		cancel:    cancel,
		group:     group,
	}
	group.Go(func() error { return c.run(gctx) })
	return c
}

// StopCollector cancels the GC goroutine and waits for it to exit
// (§5: a host tearing down a VM must not leak the background mark
// goroutine). Safe to call more than once; a collector that never gets
// stopped otherwise runs for the lifetime of the process.
func (c *Collector) StopCollector() error {
	c.cancel()
	return c.group.Wait()
}

// Track registers a freshly allocated object, colouring it with the
// current epoch's live colour before any reference to it is published
// (§4.12.2's allocation ordering). Once CycleThreshold allocations have
// accumulated with no cycle running, Track starts one itself.
func (c *Collector) Track(h object.Heap) {
	h.Hdr().SetColor(c.currentNewColor())
	c.mu.Lock()
	c.objects = append(c.objects, h)
	c.allocated++
	trigger := c.phase == PhaseNone && c.allocated >= c.threshold
	if trigger {
		c.allocated = 0
	}
	c.mu.Unlock()
	if trigger {
		c.StartCycle()
	}
}

func (c *Collector) currentNewColor() object.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newColor
}

// RegisterPruner adds a weak table to be swept at the MARK->SWEEP
// boundary (§4.12.1).
func (c *Collector) RegisterPruner(p Pruner) {
	c.mu.Lock()
	c.pruners = append(c.pruners, p)
	c.mu.Unlock()
}

// WriteBarrier implements §4.12.2: if the value a reference write just
// overwrote pointed at an object coloured with this epoch's dead
// colour, the mutator marks it directly rather than risk the GC never
// observing it again.
func (c *Collector) WriteBarrier(overwritten object.Value) {
	if !overwritten.IsString() && !overwritten.IsPointer() {
		return
	}
	h := object.AsHeap(overwritten)
	c.mu.Lock()
	old := c.oldColor
	c.mu.Unlock()
	if old == 0 {
		return
	}
	if h.Hdr().Color() == old {
		h.Hdr().SetColor(object.ColorMarked)
		c.mu.Lock()
		c.markList = append(c.markList, h)
		c.mu.Unlock()
	}
}

// MarkRoots seeds the mark list from the VM's globals, key pool, and
// the active cothread's stack (§4.12.1 "mark roots").
func (c *Collector) MarkRoots(roots []object.Heap) {
	c.mu.Lock()
	c.markList = append(c.markList, roots...)
	c.mu.Unlock()
}

// Phase reports the collector's current phase (§4.12.1): diagnostic
// for callers (and tests) that need to observe or wait out a cycle.
func (c *Collector) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// StartCycle transitions NONE->MARK, flipping old/new colours and
// waking the GC goroutine (§4.12.1).
func (c *Collector) StartCycle() {
	c.mu.Lock()
	if c.phase != PhaseNone {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseMark
	c.oldColor, c.newColor = c.newColor, flip(c.newColor)
	c.mu.Unlock()
	c.logger.Printf("gc: mark phase started")
	c.sem.Release(1)
}

func flip(c object.Color) object.Color {
	if c == object.ColorPurple {
		return object.ColorOrange
	}
	return object.ColorPurple
}

// Safepoint is called at the top of the dispatch loop (§4.12.2): the
// mutator hands off any locally accumulated mark work and, once both
// mark lists are empty, drives the MARK->SWEEP->NONE transition.
func (c *Collector) Safepoint(localMarks []object.Heap) {
	if !c.mu.TryLock() {
		return
	}
	defer c.mu.Unlock()
	c.markList = append(c.markList, localMarks...)
	if c.phase == PhaseMark && len(c.markList) == 0 {
		c.beginSweepLocked()
	}
}

func (c *Collector) beginSweepLocked() {
	c.phase = PhaseSweep
	old := c.oldColor
	isDead := func(h object.Heap) bool { return h.Hdr().Color() == old }
	for _, p := range c.pruners {
		p(isDead)
	}
	before := len(c.objects)
	kept := c.objects[:0]
	for _, h := range c.objects {
		if h.Hdr().Color() != old {
			kept = append(kept, h)
		}
	}
	c.objects = kept
	c.oldColor = 0
	c.phase = PhaseNone
	c.logger.Printf("gc: sweep complete, %s live (%s reclaimed)",
		humanize.Comma(int64(len(c.objects))), humanize.Comma(int64(before-len(c.objects))))
}

// run is the GC goroutine (§4.12.3): it blocks on the semaphore until
// a cycle starts, then drains the mark list, tracing each object's
// children and blackening it. ctx is cancelled by StopCollector, which
// unblocks an in-progress Acquire and ends the goroutine.
func (c *Collector) run(ctx context.Context) error {
	for {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		c.drainMarkList()
	}
}

func (c *Collector) drainMarkList() {
	for {
		c.mu.Lock()
		if len(c.markList) == 0 {
			c.mu.Unlock()
			return
		}
		h := c.markList[len(c.markList)-1]
		c.markList = c.markList[:len(c.markList)-1]
		c.mu.Unlock()

		children := h.Trace(nil)
		h.Hdr().SetColor(object.ColorBlack)
		if len(children) > 0 {
			c.mu.Lock()
			c.markList = append(c.markList, children...)
			c.mu.Unlock()
		}
	}
}
