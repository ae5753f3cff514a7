package streamrt

import (
	"runtime"
	"sync/atomic"
)

// SchedulerState is a scheduler's lifecycle state (§3, §4.4).
type SchedulerState uint32

const (
	SchedReady SchedulerState = iota
	SchedRunning
	SchedStopped
	SchedTerminated
)

func (s SchedulerState) String() string {
	switch s {
	case SchedReady:
		return "ready"
	case SchedRunning:
		return "running"
	case SchedStopped:
		return "stopped"
	case SchedTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SchedulerKind distinguishes a scheduler hosted by a ULT from one hosted
// by a tasklet (§3). The main scheduler of an xstream is always
// ULT-hosted; see Open Question OQ-2 in DESIGN.md for why this module
// uniformly gives every xstream's main scheduler a hosting ULT, rather
// than special-casing the primary xstream's very first scheduler to run
// directly on the kernel stack as the source contract allows.
type SchedulerKind int

const (
	ULTHosted SchedulerKind = iota
	TaskletHosted
)

// SelectFunc picks the next ready unit to dispatch from one of sched's
// pools. It returns ok=false if nothing is currently ready. Pool selection
// policy (round-robin, priority, ...) is pluggable — this is the only
// point at which a Scheduler delegates to user code, matching §4.4's "call
// user selection to obtain a unit".
type SelectFunc func(sched *Scheduler) (Unit, Pool, bool)

// Scheduler owns one or more pools, a run entry point, and a state
// machine (§3, §4.4). It is realized itself as a ULT (or, if nested inside
// a tasklet's dispatch, as a tasklet) so that schedulers nest by
// context-switching; see SchedulerKind.
type Scheduler struct {
	name string
	rt   *Runtime

	pools    []Pool
	selectFn SelectFunc

	state atomic.Uint32
	kind  SchedulerKind

	// hostULT / hostTasklet is the unit that runs this scheduler's Run
	// (the source contract's "thread"). Both are nil until the scheduler
	// is bound to a hosting unit by NewSchedulerULT / NewSchedulerTasklet.
	hostULT     *ULT
	hostTasklet *Tasklet

	automatic bool

	finishReq atomic.Bool
	exitReq   atomic.Bool
}

// SchedulerOption configures a Scheduler at construction time.
type SchedulerOption func(*Scheduler)

// WithSchedulerName sets a human-readable label.
func WithSchedulerName(name string) SchedulerOption {
	return func(s *Scheduler) { s.name = name }
}

// WithSchedulerAutomatic marks the scheduler to be freed automatically on
// xstream teardown (§3 "automatic").
func WithSchedulerAutomatic(automatic bool) SchedulerOption {
	return func(s *Scheduler) { s.automatic = automatic }
}

// NewScheduler constructs a scheduler owning pools, using selectFn to pick
// the next unit to dispatch each iteration of Run.
func NewScheduler(rt *Runtime, selectFn SelectFunc, pools []Pool, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{rt: rt, pools: append([]Pool(nil), pools...), selectFn: selectFn}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewBasicScheduler constructs a scheduler using the default round-robin
// selection policy across pools: create_basic(predef, num_pools, pools,
// config) from §6, realized with Go's usual "pass a policy function, default
// to the obvious one" idiom rather than a predef enum.
func NewBasicScheduler(rt *Runtime, pools []Pool, opts ...SchedulerOption) *Scheduler {
	return NewScheduler(rt, roundRobinSelect(), pools, opts...)
}

// roundRobinSelect returns a SelectFunc that scans pools in order, trying
// Pop on each, advancing a cursor across calls so no single pool starves
// its neighbors.
func roundRobinSelect() SelectFunc {
	var cursor int
	return func(sched *Scheduler) (Unit, Pool, bool) {
		n := len(sched.pools)
		if n == 0 {
			return nil, nil, false
		}
		for i := 0; i < n; i++ {
			idx := (cursor + i) % n
			p := sched.pools[idx]
			if u, ok := p.Pop(); ok {
				cursor = (idx + 1) % n
				return u, p, true
			}
		}
		return nil, nil, false
	}
}

// GetPools returns the scheduler's pools, in priority order.
func (s *Scheduler) GetPools() []Pool {
	return append([]Pool(nil), s.pools...)
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// Kind reports whether this scheduler is hosted by a ULT or a tasklet.
func (s *Scheduler) Kind() SchedulerKind {
	return s.kind
}

// Empty reports whether every owned pool is currently empty.
func (s *Scheduler) Empty() bool {
	for _, p := range s.pools {
		if p.Size() > 0 {
			return false
		}
	}
	return true
}

// Finish requests a graceful stop: Run will drain ready units from its
// pools before returning (§4.4, §4.6 JOIN handling).
func (s *Scheduler) Finish() {
	s.finishReq.Store(true)
}

// Exit requests an immediate stop: Run returns without draining (§4.4,
// §4.6 EXIT/CANCEL handling).
func (s *Scheduler) Exit() {
	s.exitReq.Store(true)
}

// Free releases the scheduler's reference to its pools. A no-op beyond
// that in Go (the garbage collector reclaims the rest), kept for parity
// with the source contract's explicit free operation (§6) and so
// "automatic" schedulers have something concrete to call on xstream
// teardown.
func (s *Scheduler) Free() {
	s.pools = nil
}

// Run is the scheduler's run entry point (§4.4): repeatedly select a
// ready unit and dispatch it via es.runUnit, periodically calling
// es.checkEvents. Run terminates when Exit has been requested (stop
// immediately) or Finish has been requested and every pool has drained
// (stop once empty); state becomes TERMINATED either way.
func (s *Scheduler) Run(es *XStream) {
	s.state.Store(uint32(SchedRunning))
	for {
		if s.exitReq.Load() {
			break
		}
		if s.finishReq.Load() && s.Empty() {
			break
		}

		unit, pool, ok := s.selectFn(s)
		if ok {
			es.runUnit(unit, pool)
		}

		es.checkEvents(s)

		if !ok {
			runtime.Gosched()
		}
	}
	s.state.Store(uint32(SchedTerminated))
}

// bindHostULT assigns the ULT whose dispatch runs this scheduler. Called
// by NewSchedulerULT, whether the user calls it to build a nested
// scheduler host or the xstream calls it to materialize its main
// scheduler host.
func (s *Scheduler) bindHostULT(u *ULT) {
	s.hostULT = u
	s.kind = ULTHosted
}

func (s *Scheduler) bindHostTasklet(t *Tasklet) {
	s.hostTasklet = t
	s.kind = TaskletHosted
}
