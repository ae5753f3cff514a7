package streamrt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestScenario_S1_Counter: many ULTs across several xstreams each increment
// a shared counter once, under a mutex, between two yields — a smoke test
// that dispatch, requeueing, and graceful JOIN draining all compose
// correctly at a small multi-xstream scale (§8 S1).
func TestScenario_S1_Counter(t *testing.T) {
	rt, err := New(WithInitialXStreams(3))
	require.NoError(t, err)

	xstreams := rt.XStreams()
	require.Len(t, xstreams, 4)

	var mu sync.Mutex
	counter := 0

	var ults []*ULT
	for _, es := range xstreams {
		p := es.MainScheduler().GetPools()[0]
		for i := 0; i < 4; i++ {
			u := NewULT(rt, func(self *ULT) {
				self.Yield()
				mu.Lock()
				counter++
				mu.Unlock()
				self.Yield()
			})
			ults = append(ults, u)
			require.NoError(t, p.Push(u))
		}
		if es.Type() != Primary {
			es.RequestJoin()
		}
	}

	rt.Primary().RequestJoin()
	require.NoError(t, rt.Primary().Start())

	ctx := contextBackground(t)
	require.NoError(t, rt.JoinAll(ctx))

	mu.Lock()
	require.Equal(t, 16, counter)
	mu.Unlock()

	for _, u := range ults {
		require.Equal(t, ULTTerminated, u.State())
	}
	for _, es := range xstreams {
		require.Equal(t, XSTerminated, es.State())
	}
}

// TestScenario_S2_NestedScheduler: a ULT hosting a second scheduler (nested
// one level deep) drains three tasklets in order before returning control to
// the outer (main) scheduler, and the scheduler stack returns to its resting
// depth of 1 afterwards (§8 S2, §4.4).
func TestScenario_S2_NestedScheduler(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)

	primary := rt.Primary()
	mainPool := primary.MainScheduler().GetPools()[0]

	nestedPool := newBasicFIFO()
	require.NoError(t, nestedPool.SetConsumer(primary))
	nestedSched := NewBasicScheduler(rt, []Pool{nestedPool})
	nestedSched.Finish()

	var mu sync.Mutex
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		tk := NewTasklet(rt, func(self *Tasklet) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		require.NoError(t, nestedPool.Push(tk))
	}

	hostULT := NewSchedulerULT(rt, nestedSched)
	require.NoError(t, mainPool.Push(hostULT))

	primary.RequestJoin()
	require.NoError(t, primary.Start())

	mu.Lock()
	require.Equal(t, []int{1, 2, 3}, order)
	mu.Unlock()

	require.Equal(t, SchedTerminated, nestedSched.State())
	require.Equal(t, ULTTerminated, hostULT.State())
	require.Equal(t, 1, primary.SchedulerStackDepth())
}

// TestScenario_S3_Migration: a ULT migrates itself from one xstream to
// another mid-execution; it is observed running on the source xstream
// before the migration and on the destination xstream after it, never the
// reverse, and the source pool is left empty once migration completes
// (§8 S3, §4.7).
func TestScenario_S3_Migration(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)

	e1, err := rt.CreateXStream(WithXStreamName("e1"))
	require.NoError(t, err)
	e2, err := rt.CreateXStream(WithXStreamName("e2"))
	require.NoError(t, err)

	pool1 := e1.MainScheduler().GetPools()[0]
	pool2 := e2.MainScheduler().GetPools()[0]

	var mu sync.Mutex
	var seen []*XStream

	u := NewULT(rt, func(self *ULT) {
		for i := 0; i < 4; i++ {
			mu.Lock()
			seen = append(seen, self.lastXStreamSnapshot())
			mu.Unlock()
			if i == 1 {
				require.NoError(t, self.MigrateTo(pool2, nil))
			}
			self.Yield()
		}
	})
	require.NoError(t, pool1.Push(u))

	ctx := contextBackground(t)
	require.NoError(t, u.Join(ctx))

	e1.RequestJoin()
	e2.RequestJoin()
	require.NoError(t, e1.Join(ctx))
	require.NoError(t, e2.Join(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []*XStream{e1, e1, e2, e2}, seen)
	require.Zero(t, pool1.Size())
}

// TestScenario_S4_CancelRace: an otherwise-infinite ULT is stopped by
// Cancel, demonstrating that cancellation bounds a scheduler loop that would
// never terminate on its own (§8 S4, §5 "Cancellation").
func TestScenario_S4_CancelRace(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	es, err := rt.CreateXStream()
	require.NoError(t, err)
	pool := es.MainScheduler().GetPools()[0]

	var iterations int
	u := NewULT(rt, func(self *ULT) {
		for !self.Canceled() {
			iterations++
			self.Yield()
		}
	})
	require.NoError(t, pool.Push(u))

	time.Sleep(10 * time.Millisecond)
	u.Cancel()

	ctx := contextBackground(t)
	require.NoError(t, u.Join(ctx))

	require.Greater(t, iterations, 0)
	require.Equal(t, ULTTerminated, u.State())

	es.RequestJoin()
	require.NoError(t, es.Join(ctx))
}

// TestScenario_S5_JoinOnCreated: joining an xstream that was never started
// succeeds immediately, short-circuiting straight to TERMINATED without
// spawning a kernel thread (§8 S5, §5 "Join").
func TestScenario_S5_JoinOnCreated(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)

	es, err := rt.NewXStream()
	require.NoError(t, err)
	require.Equal(t, XSCreated, es.State())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, es.Join(ctx))

	require.Equal(t, XSTerminated, es.State())
}

// TestScenario_S6_TaskletExitSelfForbidden: a tasklet cannot ask its own
// xstream to exit and wait it out the way a ULT can, since it never
// suspends to yield the wait (§8 S6, ExitCurrentXStream).
func TestScenario_S6_TaskletExitSelfForbidden(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)

	primary := rt.Primary()
	mainPool := primary.MainScheduler().GetPools()[0]

	var gotErr error
	var completed bool
	tasklet := NewTasklet(rt, func(self *Tasklet) {
		gotErr = rt.ExitCurrentXStream()
		completed = true
	})
	require.NoError(t, mainPool.Push(tasklet))

	primary.RequestJoin()
	require.NoError(t, primary.Start())

	require.True(t, completed)
	require.Error(t, gotErr)
	require.Equal(t, ErrInvalidXStream, KindOf(gotErr))
}
