package streamrt

import (
	"context"
	"sync"
	"sync/atomic"
)

// Kind tags a Unit as a ULT (stackful, yieldable, migratable) or a Tasklet
// (stackless, run-to-completion) — the C2 tagged variant.
type Kind int

const (
	// KindULT identifies a stackful, cooperatively-scheduled lightweight
	// thread.
	KindULT Kind = iota
	// KindTasklet identifies a stackless, run-to-completion work item.
	KindTasklet
)

func (k Kind) String() string {
	if k == KindULT {
		return "ult"
	}
	return "tasklet"
}

// ULTState is a ULT's lifecycle state (§3).
type ULTState uint32

const (
	ULTReady ULTState = iota
	ULTRunning
	ULTBlocked
	ULTTerminated
)

func (s ULTState) String() string {
	switch s {
	case ULTReady:
		return "ready"
	case ULTRunning:
		return "running"
	case ULTBlocked:
		return "blocked"
	case ULTTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TaskletState is a tasklet's lifecycle state (§3). Tasklets never block.
type TaskletState uint32

const (
	TaskletReady TaskletState = iota
	TaskletRunning
	TaskletTerminated
)

func (s TaskletState) String() string {
	switch s {
	case TaskletReady:
		return "ready"
	case TaskletRunning:
		return "running"
	case TaskletTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Unit is the common surface both ULT and *Tasklet satisfy: the pool
// contract (§4.3) is written against this interface so a pluggable pool
// implementation never needs to import the concrete ULT/Tasklet types.
type Unit interface {
	Kind() Kind
	base() *unitBase
}

// unitBase carries the fields common to both work-unit variants: request
// bits, the owning pool/xstream back-references, scheduler-hosting, and
// join/migration bookkeeping.
type unitBase struct {
	rt      *Runtime
	name    string
	request Request

	mu sync.Mutex

	// p_pool / p_last_xstream (§3).
	pool          Pool
	lastXStream   *XStream
	migrateTarget Pool
	migrateFn     func()

	// is_sched (§3): non-nil if this unit hosts a scheduler.
	isSched *Scheduler

	done       chan struct{}
	terminated atomic.Bool
}

func newUnitBase(rt *Runtime, name string) unitBase {
	return unitBase{rt: rt, name: name, done: make(chan struct{})}
}

// setLastXStream records the xstream currently dispatching this unit.
// Called by XStream.runUnit on every dispatch (immediately before every
// Switch into a ULT, or before running a tasklet's body), and when an
// xstream binds its main scheduler's hosting ULT.
func (b *unitBase) setLastXStream(es *XStream) {
	b.mu.Lock()
	b.lastXStream = es
	b.mu.Unlock()
}

func (b *unitBase) getLastXStream() *XStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastXStream
}

// terminate marks the unit TERMINATED exactly once and wakes every Join
// waiter. Idempotent: a second call is a no-op (P3-style idempotence,
// applied to the termination transition rather than a single bit).
func (b *unitBase) terminate() {
	if b.terminated.CompareAndSwap(false, true) {
		close(b.done)
	}
}

func joinBase(ctx context.Context, b *unitBase) error {
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ULT is a stackful, cooperatively-scheduled lightweight thread: it owns a
// Context (C1) and its own request bits, and is migratable between pools.
type ULT struct {
	unitBase
	state             atomic.Uint32
	ctx               *Context
	fn                func(u *ULT)
	stackSizeOverride int
}

// ULTOption configures a ULT at construction time.
type ULTOption func(*ULT)

// WithULTName sets a human-readable label.
func WithULTName(name string) ULTOption {
	return func(u *ULT) { u.name = name }
}

// WithULTStackSize overrides the runtime's default stack-size hint for
// this ULT. See ContextCreate's doc comment: accepted for fidelity, not
// enforced.
func WithULTStackSize(bytes int) ULTOption {
	return func(u *ULT) { u.stackSizeOverride = bytes }
}

// NewULT constructs a ULT whose body is fn. The ULT is READY but not yet
// owned by any pool; the caller is expected to Push it.
func NewULT(rt *Runtime, fn func(u *ULT), opts ...ULTOption) *ULT {
	u := &ULT{unitBase: newUnitBase(rt, "")}
	u.fn = fn
	for _, o := range opts {
		o(u)
	}
	stackSize := rt.config.defaultStackSize
	if u.stackSizeOverride > 0 {
		stackSize = u.stackSizeOverride
	}
	u.ctx = ContextCreate(func(arg any) {
		self := arg.(*ULT)
		self.refreshTLS()
		self.fn(self)
		self.request.Set(ReqTerminate)
	}, u, stackSize, nil)
	return u
}

// NewSchedulerULT constructs a ULT whose body runs sched's Run loop,
// marking it as a scheduler host (§4.4 nesting): dispatching this ULT
// pushes sched onto the dispatching xstream's scheduler stack before the
// context switch.
func NewSchedulerULT(rt *Runtime, sched *Scheduler, opts ...ULTOption) *ULT {
	u := NewULT(rt, func(self *ULT) {
		es := self.rt.CurrentXStream()
		sched.Run(es)
	}, opts...)
	u.isSched = sched
	sched.bindHostULT(u)
	return u
}

func (u *ULT) Kind() Kind       { return KindULT }
func (u *ULT) base() *unitBase  { return &u.unitBase }
func (u *ULT) Name() string     { return u.name }
func (u *ULT) State() ULTState  { return ULTState(u.state.Load()) }
func (u *ULT) setState(s ULTState) { u.state.Store(uint32(s)) }

// Yield suspends the calling ULT, switching control back to whichever
// xstream's scheduler currently hosts it, and resumes only when that
// xstream's dispatcher next switches back in (§4.2). Must be called from
// within the ULT's own goroutine while it is RUNNING.
func (u *ULT) Yield() {
	es := u.lastXStreamSnapshot()
	if es == nil {
		return
	}
	Switch(u.ctx, es.currentSchedulerContext())
	// Switch only returns once some xstream's dispatcher has switched back
	// into u.ctx. That may be a different xstream than the one that
	// suspended us, if a migration (§4.7) moved u in the meantime — refresh
	// this goroutine's TLS slot so CurrentXStream/CurrentULT stay correct.
	u.refreshTLS()
}

func (u *ULT) lastXStreamSnapshot() *XStream {
	return u.getLastXStream()
}

// refreshTLS re-publishes this ULT's current xstream and unit pointers into
// the calling goroutine's TLS slot (C6). Must be called from u's own
// backing goroutine: once, just before its body first runs, and again every
// time Switch returns control to it, since a migration between suspensions
// changes which xstream now owns it.
func (u *ULT) refreshTLS() {
	es := u.getLastXStream()
	u.rt.setXStream(es)
	u.rt.swapCurrentUnit(u, nil)
}

// Join blocks the caller until this ULT's state becomes TERMINATED, or ctx
// is done.
func (u *ULT) Join(ctx context.Context) error {
	return joinBase(ctx, &u.unitBase)
}

// Cancel requests cooperative cancellation; effective no later than the
// ULT's next scheduler hand-off (§4.2).
func (u *ULT) Cancel() {
	u.request.Set(ReqULTCancel)
}

// Canceled reports whether cancellation has been requested. A ULT body is
// expected to check this at its own convenient points (typically right
// after Yield returns) and wind down voluntarily; nothing forces a running
// ULT to stop (§4.2, §5).
func (u *ULT) Canceled() bool {
	return u.request.Has(ReqULTCancel)
}

// Exit requests that this ULT stop at its next hand-off, the unit-level
// counterpart to XStream.RequestJoin. Like a pending Cancel, Exit is
// honored by the dispatcher itself (§4.5 run_unit step 1): the next time
// the ULT is popped it is terminated without being switched back into,
// even if it never checks its own request bits again. Unlike Cancel, Exit
// is not reported by Canceled.
func (u *ULT) Exit() {
	u.request.Set(ReqULTExit)
}

// MigrateTo requests that this ULT migrate to target at its next hand-off
// (§4.2, §4.7): right after it yields, if called while it runs, or when it
// is next popped, if called while it waits in a pool. callback, if
// non-nil, is invoked under the ULT's own mutex immediately before the
// migration is realized.
func (u *ULT) MigrateTo(target Pool, callback func()) error {
	if target == nil {
		return newError(ErrInvalidPool, "MigrateTo", "nil target pool")
	}
	u.mu.Lock()
	u.migrateTarget = target
	u.migrateFn = callback
	u.mu.Unlock()
	u.request.Set(ReqMigrate)
	return nil
}

// Tasklet is a stackless, run-to-completion work item. It never suspends
// and carries no per-ULT TLS dependency.
type Tasklet struct {
	unitBase
	state atomic.Uint32
	fn    func(t *Tasklet)
}

// TaskletOption configures a Tasklet at construction time.
type TaskletOption func(*Tasklet)

// WithTaskletName sets a human-readable label.
func WithTaskletName(name string) TaskletOption {
	return func(t *Tasklet) { t.name = name }
}

// NewTasklet constructs a tasklet whose body is fn.
func NewTasklet(rt *Runtime, fn func(t *Tasklet), opts ...TaskletOption) *Tasklet {
	t := &Tasklet{unitBase: newUnitBase(rt, "")}
	t.fn = fn
	for _, o := range opts {
		o(t)
	}
	return t
}

// NewSchedulerTasklet constructs a tasklet whose body runs sched's Run
// loop inline, marking it as a (tasklet-hosted) scheduler host (§4.4). A
// tasklet never suspends, so the nested scheduler it hosts runs
// synchronously, to completion, inside the single dispatch call that
// invokes it — a scheduler that never calls Yield anywhere in its
// selection loop is the only kind of scheduler safe to host this way.
func NewSchedulerTasklet(rt *Runtime, sched *Scheduler, opts ...TaskletOption) *Tasklet {
	t := NewTasklet(rt, func(self *Tasklet) {
		es := self.rt.CurrentXStream()
		sched.Run(es)
	}, opts...)
	t.isSched = sched
	sched.bindHostTasklet(t)
	return t
}

func (t *Tasklet) Kind() Kind          { return KindTasklet }
func (t *Tasklet) base() *unitBase     { return &t.unitBase }
func (t *Tasklet) Name() string        { return t.name }
func (t *Tasklet) State() TaskletState { return TaskletState(t.state.Load()) }
func (t *Tasklet) setState(s TaskletState) {
	t.state.Store(uint32(s))
}

// Join blocks the caller until this tasklet's state becomes TERMINATED, or
// ctx is done.
func (t *Tasklet) Join(ctx context.Context) error {
	return joinBase(ctx, &t.unitBase)
}

// Cancel requests cooperative cancellation; checked once, at dispatch
// entry, since a tasklet never suspends mid-execution (§4.5).
func (t *Tasklet) Cancel() {
	t.request.Set(ReqTaskletCancel)
}

// AsULT type-asserts u as a *ULT, the Go realization of the pool
// contract's get_thread.
func AsULT(u Unit) (*ULT, bool) {
	ult, ok := u.(*ULT)
	return ult, ok
}

// AsTasklet type-asserts u as a *Tasklet, the Go realization of the pool
// contract's get_task.
func AsTasklet(u Unit) (*Tasklet, bool) {
	t, ok := u.(*Tasklet)
	return t, ok
}
