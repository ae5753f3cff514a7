package streamrt

import "sync/atomic"

// Context is the C1 context primitive: save/restore of an execution
// context, and a switch operation between two of them.
//
// Go exposes no portable, public register-context primitive (no
// makecontext/swapcontext equivalent, no public handle to a goroutine's
// stack). A Context is therefore backed by a goroutine paired with a
// single unbuffered rendezvous channel: Switch(from, to) hands exclusive
// logical execution to to and blocks the caller until something switches
// back into from. This preserves the primitive's contract (control
// transfers to to; the caller resumes exactly where it left off, the next
// time anyone switches back into from) without claiming to switch CPU
// register state the way a true stackful-coroutine primitive would; see
// DESIGN.md Open Question OQ-1 for the consequence (a ULT's goroutine is
// not pinned to its xstream's locked OS thread).
type Context struct {
	ch      chan struct{}
	link    *Context
	entry   func(arg any)
	arg     any
	started atomic.Bool
}

// ContextSelf captures the calling goroutine's own context, without
// spawning anything or switching stacks. Used once per xstream, to give
// the xstream's main (kernel-thread) loop a Context it can be switched
// back into.
func ContextSelf() *Context {
	c := &Context{ch: make(chan struct{})}
	c.started.Store(true)
	return c
}

// ContextCreate produces a new suspended context that, when first entered
// via Switch, runs entry(arg); upon entry returning, execution resumes
// link (if non-nil) in the calling-back sense described by Switch. The
// stackSize argument is accepted for API fidelity with the source contract
// (§4.1) but otherwise unused: Go goroutine stacks grow and shrink on
// their own.
func ContextCreate(entry func(arg any), arg any, stackSize int, link *Context) *Context {
	return &Context{entry: entry, arg: arg, link: link}
}

// ChangeLink re-points ctx's fallthrough target, so the same ULT body can
// return to different schedulers across runs (e.g. after a migration
// moves a ULT to a different xstream, its next dispatch must fall through
// to the new xstream's scheduler, not the old one).
//
// Callers must serialize ChangeLink against Switch(_, ctx): per I1, only
// the xstream currently dispatching ctx's owning unit may call this, and
// only before switching into it.
func (ctx *Context) ChangeLink(link *Context) {
	ctx.link = link
}

// Switch saves the caller's logical position as from, and transfers
// control to to. When anyone later switches back into from, this call
// returns.
//
// Precondition: the calling goroutine is the one logically "running as"
// from (either it is from's own backing goroutine, inside to.entry having
// yielded, or it is the goroutine that owns a ContextSelf anchor).
func Switch(from, to *Context) {
	if !to.started.Swap(true) {
		go to.run()
	}
	to.ch <- struct{}{}
	<-from.ch
}

// run is to's backing goroutine body: block for the first resume, run the
// entry function to completion, then hand control to link (if any) and
// exit. A context's backing goroutine never loops on its own; repeated
// invocations happen because entry itself loops and calls Yield (which
// calls Switch out to the scheduler and back) between units of work.
func (to *Context) run() {
	<-to.ch
	to.entry(to.arg)
	if to.link != nil {
		to.link.ch <- struct{}{}
	}
}
