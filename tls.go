package streamrt

import (
	"sync"

	"github.com/joeycumines/streamrt/internal/gid"
)

// tls models the per-kernel-thread pointers to "current xstream", "current
// ULT", and "current tasklet" (C6): set on xstream entry, cleared on exit,
// swapped around every dispatch.
type tls struct {
	mu      sync.Mutex
	xstream *XStream
	ult     *ULT
	tasklet *Tasklet
}

// tlsTable is keyed by goroutine id rather than OS thread id: Go exposes no
// portable OS-thread TLS, and because Context (C1) is realized with
// goroutines rather than true stack switches, a ULT's logical "current
// xstream" must be looked up by its own goroutine id, not its xstream's
// locked OS thread id. See SPEC_FULL.md's C6 realization note and
// DESIGN.md Open Question OQ-1.
type tlsTable struct {
	mu   sync.RWMutex
	data map[uint64]*tls
}

func newTLSTable() *tlsTable {
	return &tlsTable{data: make(map[uint64]*tls)}
}

// initialized reports whether rt went through New (and so has a non-nil
// tls table). A Runtime left at its zero value (never passed through New)
// fails this check; every TLS-backed accessor below treats that case as
// "nothing dispatched" rather than dereferencing a nil tls table (§7
// "Uninitialized-runtime ... calls return their error kinds rather than
// aborting").
func (rt *Runtime) initialized() bool {
	return rt != nil && rt.tls != nil
}

func (t *tlsTable) slot() *tls {
	id := gid.Current()

	t.mu.RLock()
	s, ok := t.data[id]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.data[id]; ok {
		return s
	}
	s = &tls{}
	t.data[id] = s
	return s
}

// forget drops the calling goroutine's slot, to avoid unbounded map growth.
// Called (via clearXStream) when an xstream's loop goroutine is permanently
// done using the current-unit pointers; slots of ULT backing goroutines are
// not dropped.
func (t *tlsTable) forget() {
	id := gid.Current()
	t.mu.Lock()
	delete(t.data, id)
	t.mu.Unlock()
}

// setXStream records the current xstream for the calling goroutine. Called
// by an xstream's loop goroutine right after it begins (and, for a
// SECONDARY xstream, right after runtime.LockOSThread), and by a ULT's
// backing goroutine each time it starts or resumes (ULT.refreshTLS).
func (rt *Runtime) setXStream(es *XStream) {
	if !rt.initialized() {
		return
	}
	s := rt.tls.slot()
	s.mu.Lock()
	s.xstream = es
	s.mu.Unlock()
}

// clearXStream drops the calling goroutine's current-xstream pointer and
// forgets its slot entirely; called as the last step before an xstream's
// loop goroutine exits.
func (rt *Runtime) clearXStream() {
	if !rt.initialized() {
		return
	}
	rt.tls.forget()
}

// CurrentXStream returns the xstream the calling goroutine is currently
// running as part of, or nil if none (e.g. called from a goroutine that
// was never dispatched by this Runtime, or from a Runtime that was never
// passed through New).
func (rt *Runtime) CurrentXStream() *XStream {
	if !rt.initialized() {
		return nil
	}
	s := rt.tls.slot()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.xstream
}

// CurrentULT returns the ULT the calling goroutine is currently running
// as, or nil if the calling goroutine is not a dispatched ULT.
func (rt *Runtime) CurrentULT() *ULT {
	if !rt.initialized() {
		return nil
	}
	s := rt.tls.slot()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ult
}

// CurrentTasklet returns the tasklet the calling goroutine is currently
// running as, or nil.
func (rt *Runtime) CurrentTasklet() *Tasklet {
	if !rt.initialized() {
		return nil
	}
	s := rt.tls.slot()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasklet
}

// swapCurrentUnit sets the current (ULT, tasklet) pair for the calling
// goroutine, returning the previous pair, so the dispatcher can restore it
// afterwards (§4.5 run_unit steps "save current (ULT, tasklet)" /
// "restore (ULT, tasklet)").
func (rt *Runtime) swapCurrentUnit(ult *ULT, tasklet *Tasklet) (prevULT *ULT, prevTasklet *Tasklet) {
	if !rt.initialized() {
		return nil, nil
	}
	s := rt.tls.slot()
	s.mu.Lock()
	defer s.mu.Unlock()
	prevULT, prevTasklet = s.ult, s.tasklet
	s.ult, s.tasklet = ult, tasklet
	return
}
