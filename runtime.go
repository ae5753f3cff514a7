package streamrt

import (
	"context"
	"sync"
	"sync/atomic"
)

// Runtime is the C7 registry: the set of live execution streams, the
// rank counter that assigns each a stable creation order, the shared TLS
// table (C6), and resolved configuration (§6). A process is expected to
// host exactly one Runtime in the source contract's design, but nothing
// here prevents constructing several — tests in this package routinely do.
type Runtime struct {
	config *config
	tls    *tlsTable

	rankCounter atomic.Uint64

	mu       sync.RWMutex
	xstreams []*XStream
	primary  *XStream
}

// New constructs a Runtime, its primary xstream (not yet started — see
// Primary), and WithInitialXStreams secondary xstreams (started
// immediately, each on its own locked OS thread).
func New(opts ...Option) (*Runtime, error) {
	rt := &Runtime{config: resolveOptions(opts), tls: newTLSTable()}

	primaryPool := newBasicFIFO()
	primarySched := NewBasicScheduler(rt, []Pool{primaryPool}, WithSchedulerName("primary-main"), WithSchedulerAutomatic(true))
	primary := newXStream(rt, rt.rankCounter.Add(1)-1, Primary, primarySched, WithXStreamName("primary"))
	if err := primaryPool.SetConsumer(primary); err != nil {
		return nil, err
	}

	rt.mu.Lock()
	rt.primary = primary
	rt.xstreams = append(rt.xstreams, primary)
	rt.mu.Unlock()

	for i := 0; i < rt.config.numInitialXStreams; i++ {
		if _, err := rt.CreateXStream(); err != nil {
			return nil, err
		}
	}

	return rt, nil
}

// Primary returns the runtime's one PRIMARY xstream. Call Start on it to
// begin running: for PRIMARY, Start blocks the calling goroutine until the
// xstream's main scheduler stops (§4.5; there is no separate thread to run
// a process's one primary kernel thread on).
func (rt *Runtime) Primary() *XStream {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.primary
}

// XStreams returns every xstream currently registered with the runtime,
// PRIMARY included, in creation order.
func (rt *Runtime) XStreams() []*XStream {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]*XStream(nil), rt.xstreams...)
}

// NewXStream constructs a new SECONDARY xstream with its own default pool
// and basic round-robin scheduler, and registers it with the runtime, but
// does not start it (§6 "create" as a separate operation from "start"):
// the returned xstream sits CREATED until the caller calls Start. This is
// the form S5 (§8) exercises, since join(E) on a never-started xstream has
// its own CAS-based shortcut (§5 "Join").
func (rt *Runtime) NewXStream(opts ...XStreamOption) (*XStream, error) {
	p := newBasicFIFO()
	sched := NewBasicScheduler(rt, []Pool{p}, WithSchedulerName("secondary-main"), WithSchedulerAutomatic(true))
	es := newXStream(rt, rt.rankCounter.Add(1)-1, Secondary, sched, opts...)
	if err := p.SetConsumer(es); err != nil {
		return nil, err
	}

	rt.mu.Lock()
	rt.xstreams = append(rt.xstreams, es)
	rt.mu.Unlock()

	return es, nil
}

// CreateXStream is NewXStream followed immediately by Start: the common
// case of wanting a running worker xstream without touching the
// create/start seam directly.
func (rt *Runtime) CreateXStream(opts ...XStreamOption) (*XStream, error) {
	es, err := rt.NewXStream(opts...)
	if err != nil {
		return nil, err
	}
	if err := es.Start(); err != nil {
		return nil, err
	}
	return es, nil
}

// Free releases a TERMINATED, non-PRIMARY xstream from the registry (§6
// "free"; §7 "deads" bucket): the process-global created/active/deads
// partitioning collapses, in this realization, to "still registered" vs
// "forgotten", since Go's garbage collector reclaims everything else once
// nothing references it. Returns ErrXStreamState if es has not terminated,
// ErrInvalidXStream for the PRIMARY xstream (I3: never freed).
func (rt *Runtime) Free(es *XStream) error {
	if es.Type() == Primary {
		return newError(ErrInvalidXStream, "Free", "primary xstream cannot be freed")
	}
	if es.State() != XSTerminated {
		return newError(ErrXStreamState, "Free", "xstream has not terminated")
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i, x := range rt.xstreams {
		if x == es {
			rt.xstreams = append(rt.xstreams[:i], rt.xstreams[i+1:]...)
			break
		}
	}
	return nil
}

// JoinAll blocks until every non-PRIMARY xstream registered at the time of
// the call has terminated, or ctx is done. Matches the source contract's
// xstream_join_many (§4.1) for the common "wait for every worker" case; the
// PRIMARY xstream is skipped since it can never be joined (I3) and is
// ordinarily waited on by blocking in its own Start call instead.
func (rt *Runtime) JoinAll(ctx context.Context) error {
	for _, es := range rt.XStreams() {
		if es.Type() == Primary {
			continue
		}
		if err := es.Join(ctx); err != nil {
			return err
		}
	}
	return nil
}

// logger returns the runtime's configured structured logger, or the
// package no-op logger if this Runtime was constructed via its zero value
// rather than New.
func (rt *Runtime) logger() *Logger {
	if rt == nil || rt.config == nil || rt.config.logger == nil {
		return newNoOpLogger()
	}
	return rt.config.logger
}
