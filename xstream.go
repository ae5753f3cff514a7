package streamrt

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// XStreamType distinguishes the one PRIMARY xstream (bound to the goroutine
// that calls Runtime.New / Primary().Start, never migratable, never
// Join/Cancel-able — I3) from every SECONDARY xstream (spawned onto its own
// locked OS thread, §3, §6).
type XStreamType int

const (
	Primary XStreamType = iota
	Secondary
)

func (t XStreamType) String() string {
	if t == Primary {
		return "primary"
	}
	return "secondary"
}

// XStreamState is an execution stream's lifecycle state (§3, §4.5).
type XStreamState uint32

const (
	XSCreated XStreamState = iota
	XSReady
	XSRunning
	XSTerminated
)

func (s XStreamState) String() string {
	switch s {
	case XSCreated:
		return "created"
	case XSReady:
		return "ready"
	case XSRunning:
		return "running"
	case XSTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// XStream is the C5 execution stream: one kernel thread (the PRIMARY
// xstream's calling goroutine, or a locked-OS-thread goroutine for a
// SECONDARY one) driving a stack of schedulers (§3, §4.4, §4.5).
type XStream struct {
	rt   *Runtime
	rank uint64
	typ  XStreamType

	mu   sync.Mutex
	name string

	state   atomic.Uint32
	request Request

	// topSchedMu guards scheds directly: the source contract's design note
	// (ii) flags that the outer loop implicitly acquires/releases
	// top_sched_mutex across nested-scheduler teardown. Here that ownership
	// is explicit and narrow: topSchedMu is held only for the brief
	// append/truncate of scheds in pushScheduler/popScheduler/
	// currentSchedulerContext, never across a Switch call.
	topSchedMu sync.Mutex
	scheds     []*Scheduler

	// rootCtx anchors the xstream's own kernel-thread (or, for PRIMARY, the
	// calling goroutine's) logical position, so switching into the main
	// scheduler's hosting ULT (and, eventually, falling back through it)
	// has somewhere to resume (§4.1 "upon return resumes link").
	rootCtx *Context

	mainSched *Scheduler

	doneCh chan struct{}
}

// XStreamOption configures an XStream at construction time.
type XStreamOption func(*XStream)

// WithXStreamName sets a human-readable label.
func WithXStreamName(name string) XStreamOption {
	return func(es *XStream) { es.name = name }
}

func newXStream(rt *Runtime, rank uint64, typ XStreamType, mainSched *Scheduler, opts ...XStreamOption) *XStream {
	es := &XStream{
		rt:        rt,
		rank:      rank,
		typ:       typ,
		rootCtx:   ContextSelf(),
		mainSched: mainSched,
		doneCh:    make(chan struct{}),
	}
	for _, o := range opts {
		o(es)
	}

	hostOpts := []ULTOption{WithULTName(es.name + "-main")}
	hostULT := NewSchedulerULT(rt, mainSched, hostOpts...)
	hostULT.ctx.ChangeLink(es.rootCtx)
	hostULT.setLastXStream(es)
	es.scheds = append(es.scheds, mainSched)

	return es
}

// Rank returns the xstream's 0-based creation order, used as its CPU
// affinity target when WithCPUAffinity is enabled (§6).
func (es *XStream) Rank() uint64 { return es.rank }

// Type reports whether this is the PRIMARY xstream or a SECONDARY one.
func (es *XStream) Type() XStreamType { return es.typ }

// Name returns the xstream's label.
func (es *XStream) Name() string {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.name
}

// State returns the xstream's current lifecycle state.
func (es *XStream) State() XStreamState {
	return XStreamState(es.state.Load())
}

// MainScheduler returns the xstream's current main scheduler: the one
// materialized at construction time, or the one most recently installed by
// SetMainScheduler. Every xstream has exactly one (§3).
func (es *XStream) MainScheduler() *Scheduler { return es.mainSched }

// Start transitions the xstream from CREATED to RUNNING and begins driving
// its main scheduler (§4.5). The PRIMARY xstream runs inline: Start blocks
// the calling goroutine until the main scheduler stops (Finish/Exit), since
// the source contract has no separate thread to run it on for a process's
// one primary kernel thread. A SECONDARY xstream runs on a freshly spawned,
// OS-thread-locked goroutine (§3 "bound 1:1 to a kernel thread"); Start
// returns as soon as that goroutine has marked the xstream RUNNING.
func (es *XStream) Start() error {
	if !es.state.CompareAndSwap(uint32(XSCreated), uint32(XSReady)) {
		return newError(ErrXStreamState, "Start", "xstream is not CREATED")
	}

	if es.typ == Primary {
		es.runLoop()
		return nil
	}

	running := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		es.state.Store(uint32(XSRunning))
		close(running)
		es.runLoop()
	}()
	<-running
	return nil
}

// runLoop is the body shared by both PRIMARY (inline) and SECONDARY
// (goroutine) start paths: publish TLS, set affinity, switch into the main
// scheduler's host, then tear down.
func (es *XStream) runLoop() {
	es.state.Store(uint32(XSRunning))
	es.rt.setXStream(es)

	if err := es.setAffinity(); err != nil {
		es.rt.logger().Info().Err(err).Str("xstream", es.Name()).Log("failed to set cpu affinity")
	}

	host := es.mainSched.hostULT
	Switch(es.rootCtx, host.ctx)

	if es.mainSched.automatic {
		es.mainSched.Free()
	}

	es.rt.clearXStream()
	es.state.Store(uint32(XSTerminated))
	close(es.doneCh)
}

// Join blocks until the xstream terminates, or ctx is done. The PRIMARY
// xstream can never be joined (I3): Join on it always fails immediately.
//
// If the xstream is still CREATED (Start was never called — §5 "Join"),
// Join CASes it straight to TERMINATED and returns SUCCESS without ever
// spawning a kernel thread (S5, §8).
func (es *XStream) Join(ctx context.Context) error {
	if es.typ == Primary {
		return newError(ErrInvalidXStream, "Join", "primary xstream cannot be joined")
	}
	if es.state.CompareAndSwap(uint32(XSCreated), uint32(XSTerminated)) {
		close(es.doneCh)
		return nil
	}
	select {
	case <-es.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests that the xstream's main scheduler exit immediately,
// without draining (§4.6). The PRIMARY xstream can never be canceled (I3).
func (es *XStream) Cancel() error {
	if es.typ == Primary {
		return newError(ErrInvalidXStream, "Cancel", "primary xstream cannot be canceled")
	}
	es.request.Set(ReqCancel)
	return nil
}

// RequestJoin asks the xstream's main scheduler to drain and stop (§4.6):
// equivalent to calling Finish on the main scheduler, but routed through
// the request-bit protocol so it is observed at the next checkEvents point
// even if the caller has no direct reference to the scheduler.
func (es *XStream) RequestJoin() {
	es.request.Set(ReqJoin)
}

// ExitCurrentXStream asks the calling ULT's own xstream to stop
// immediately, then (since a ULT cannot simply stop running the way a
// goroutine-based caller might expect) yields repeatedly until that
// xstream has actually terminated. Returns ErrInvalidXStream if called from
// a tasklet (a tasklet never suspends, so it cannot wait out its own
// xstream's shutdown) or from a goroutine the Runtime never dispatched.
func (rt *Runtime) ExitCurrentXStream() error {
	if !rt.initialized() {
		return newError(ErrUninitialized, "ExitCurrentXStream", "runtime was never passed through New")
	}
	if rt.CurrentTasklet() != nil {
		return newError(ErrInvalidXStream, "ExitCurrentXStream", "cannot self-exit from a tasklet")
	}
	es := rt.CurrentXStream()
	if es == nil {
		return newError(ErrInvalidXStream, "ExitCurrentXStream", "not running as a dispatched xstream")
	}
	es.request.Set(ReqExit)
	if u := rt.CurrentULT(); u != nil {
		for es.State() != XSTerminated {
			u.Yield()
		}
	}
	return nil
}

// checkEvents honors the xstream-level request bits against sched, the
// scheduler that just ran an iteration (§4.6): ReqJoin asks it to drain and
// stop, ReqExit/ReqCancel ask it to stop immediately.
func (es *XStream) checkEvents(sched *Scheduler) {
	req := es.request.Load()
	if req&ReqJoin != 0 {
		sched.Finish()
	}
	if req&(ReqExit|ReqCancel) != 0 {
		sched.Exit()
	}
}

// SchedulerStackDepth returns the current depth of this xstream's
// scheduler stack (§3 "scheds": index 0 is the main scheduler). Always at
// least 1 while the xstream is running, since the main scheduler never
// pops; exposed mainly so nested-scheduler tests (S2) can observe the
// stack returning to its resting depth.
func (es *XStream) SchedulerStackDepth() int {
	es.topSchedMu.Lock()
	defer es.topSchedMu.Unlock()
	return len(es.scheds)
}

// SetMainScheduler replaces es's main scheduler with sched, provided es is
// still CREATED or READY (§6 set_main_sched). The previous scheduler, if
// marked automatic, is freed; sched becomes the bottom of es's scheduler
// stack, effective the next time es is started (P6).
func (es *XStream) SetMainScheduler(sched *Scheduler) error {
	if sched == nil {
		return newError(ErrInvalidScheduler, "SetMainScheduler", "nil scheduler")
	}
	st := es.State()
	if st != XSCreated && st != XSReady {
		return newError(ErrXStreamState, "SetMainScheduler", "xstream is not CREATED or READY")
	}

	hostULT := NewSchedulerULT(es.rt, sched, WithULTName(es.Name()+"-main"))
	hostULT.ctx.ChangeLink(es.rootCtx)
	hostULT.setLastXStream(es)

	es.topSchedMu.Lock()
	prev := es.mainSched
	es.mainSched = sched
	if len(es.scheds) > 0 {
		es.scheds[0] = sched
	} else {
		es.scheds = append(es.scheds, sched)
	}
	es.topSchedMu.Unlock()

	if prev != nil && prev.automatic {
		prev.Free()
	}
	return nil
}

// pushScheduler makes sched the new top of this xstream's scheduler stack,
// for the duration of dispatching the unit that hosts it (§4.4 nesting).
func (es *XStream) pushScheduler(sched *Scheduler) {
	es.topSchedMu.Lock()
	es.scheds = append(es.scheds, sched)
	es.topSchedMu.Unlock()
}

// popScheduler removes the top of the scheduler stack, once the unit that
// hosts it has returned control (voluntarily suspended or terminated).
func (es *XStream) popScheduler() {
	es.topSchedMu.Lock()
	if n := len(es.scheds); n > 0 {
		es.scheds = es.scheds[:n-1]
	}
	es.topSchedMu.Unlock()
}

// currentSchedulerContext returns the Context that a nested Yield
// underneath this xstream's currently-dispatching unit must switch back
// into: the innermost ULT-hosted scheduler on the stack, or rootCtx if (as
// should not happen, given every main scheduler is ULT-hosted) none is.
// A TaskletHosted frame is skipped: a tasklet runs inline on whatever
// context dispatched it, so it contributes no Context of its own.
func (es *XStream) currentSchedulerContext() *Context {
	es.topSchedMu.Lock()
	defer es.topSchedMu.Unlock()
	for i := len(es.scheds) - 1; i >= 0; i-- {
		s := es.scheds[i]
		if s.Kind() == ULTHosted && s.hostULT != nil {
			return s.hostULT.ctx
		}
	}
	return es.rootCtx
}

// runUnit dispatches one unit to completion-or-suspension (§4.5): for a
// tasklet, that means running its body inline to completion; for a ULT,
// that means switching into its context and waiting for it to either
// terminate or voluntarily Yield back.
func (es *XStream) runUnit(unit Unit, pool Pool) {
	switch u := unit.(type) {
	case *Tasklet:
		es.runTasklet(u)
	case *ULT:
		es.runULT(u, pool)
	}
}

func (es *XStream) runTasklet(t *Tasklet) {
	if t.request.Has(ReqTaskletCancel) {
		t.setState(TaskletTerminated)
		t.terminate()
		return
	}

	prevULT, prevTasklet := es.rt.swapCurrentUnit(nil, t)
	t.setLastXStream(es)
	t.setState(TaskletRunning)

	if t.isSched != nil {
		es.pushScheduler(t.isSched)
		t.fn(t)
		es.popScheduler()
	} else {
		t.fn(t)
	}

	es.rt.swapCurrentUnit(prevULT, prevTasklet)
	t.setState(TaskletTerminated)
	t.terminate()
}

func (es *XStream) runULT(u *ULT, pool Pool) {
	// p_pool (§3): the pool this dispatch popped u from, which migrate
	// treats as the migration's source pool.
	u.mu.Lock()
	u.pool = pool
	u.mu.Unlock()

	if u.request.Has(ReqULTCancel | ReqULTExit) {
		// §4.5 run_unit step 1: a CANCEL/EXIT observed before dispatch
		// terminates the ULT without ever switching into it.
		u.setState(ULTTerminated)
		u.terminate()
		return
	}
	if u.request.TestAndClear(ReqMigrate) {
		// §4.5 run_unit step 2 / §4.7: a MIGRATE already pending when this
		// unit is popped is realized immediately — it never runs on this
		// xstream at all for this dispatch.
		es.rt.migrate(u)
		return
	}

	fromCtx := es.currentSchedulerContext()

	u.setLastXStream(es)
	u.setState(ULTRunning)

	if u.isSched != nil {
		es.pushScheduler(u.isSched)
	}

	// u.ctx falls through to whichever context is dispatching it right now
	// if its body returns without yielding again (§4.1 "upon return resumes
	// link"). That may be a different context on every dispatch — a ULT
	// can be popped from its pool by a different nested scheduler each
	// time — so this must be re-pointed immediately before every Switch.
	u.ctx.ChangeLink(fromCtx)

	Switch(fromCtx, u.ctx)

	if u.isSched != nil {
		es.popScheduler()
	}

	switch {
	case u.request.TestAndClear(ReqTerminate):
		u.setState(ULTTerminated)
		u.terminate()

	case u.request.TestAndClear(ReqMigrate):
		es.rt.migrate(u)

	case u.request.Has(ReqBlock):
		u.setState(ULTBlocked)

	default:
		u.setState(ULTReady)
		if err := pool.Push(u); err != nil {
			es.rt.logger().Info().Err(err).Str("unit", u.Name()).Log("failed to requeue ult")
		}
	}
}
