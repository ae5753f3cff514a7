package streamrt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestULT_YieldAndJoin(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	es, err := rt.CreateXStream()
	require.NoError(t, err)
	pool := es.MainScheduler().GetPools()[0]

	var yields int
	u := NewULT(rt, func(self *ULT) {
		for i := 0; i < 3; i++ {
			yields++
			self.Yield()
		}
	})
	require.NoError(t, pool.Push(u))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, u.Join(ctx))

	require.Equal(t, 3, yields)
	require.Equal(t, ULTTerminated, u.State())

	es.RequestJoin()
	require.NoError(t, es.Join(ctx))
}

// TestULT_CancelObservedMidDispatch exercises CANCEL's cooperative half
// (§5 "Cancellation"): a ULT that never yields can still notice a
// concurrently-set CANCEL bit mid-dispatch and wind itself down normally,
// rather than being force-terminated between dispatches.
func TestULT_CancelObservedMidDispatch(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	es, err := rt.CreateXStream()
	require.NoError(t, err)
	pool := es.MainScheduler().GetPools()[0]

	var observed bool
	u := NewULT(rt, func(self *ULT) {
		for !self.Canceled() {
		}
		observed = true
	})
	require.NoError(t, pool.Push(u))

	go func() {
		time.Sleep(10 * time.Millisecond)
		u.Cancel()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, u.Join(ctx))
	require.True(t, observed)

	es.RequestJoin()
	require.NoError(t, es.Join(ctx))
}

// TestULT_CancelBeforeFirstDispatchSkipsBody exercises CANCEL's hard half
// (§4.5 run_unit step 1): a CANCEL already pending when the ULT is first
// popped from its pool terminates it without ever switching into its body.
func TestULT_CancelBeforeFirstDispatchSkipsBody(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	es, err := rt.CreateXStream()
	require.NoError(t, err)
	pool := es.MainScheduler().GetPools()[0]

	var ran bool
	u := NewULT(rt, func(self *ULT) {
		ran = true
	})
	u.Cancel()
	require.NoError(t, pool.Push(u))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, u.Join(ctx))

	require.False(t, ran)
	require.Equal(t, ULTTerminated, u.State())

	es.RequestJoin()
	require.NoError(t, es.Join(ctx))
}

func TestULT_ExitSkipsDispatch(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	es, err := rt.CreateXStream()
	require.NoError(t, err)
	pool := es.MainScheduler().GetPools()[0]

	var ran bool
	u := NewULT(rt, func(self *ULT) {
		ran = true
	})
	u.Exit()
	require.NoError(t, pool.Push(u))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, u.Join(ctx))

	require.False(t, ran)
	require.Equal(t, ULTTerminated, u.State())

	es.RequestJoin()
	require.NoError(t, es.Join(ctx))
}

func TestTasklet_RunToCompletion(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	es, err := rt.CreateXStream()
	require.NoError(t, err)
	pool := es.MainScheduler().GetPools()[0]

	var ran bool
	tk := NewTasklet(rt, func(self *Tasklet) {
		ran = true
	})
	require.NoError(t, pool.Push(tk))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tk.Join(ctx))

	require.True(t, ran)
	require.Equal(t, TaskletTerminated, tk.State())

	es.RequestJoin()
	require.NoError(t, es.Join(ctx))
}

func TestTasklet_CancelSkipsDispatch(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)
	es, err := rt.CreateXStream()
	require.NoError(t, err)
	pool := es.MainScheduler().GetPools()[0]

	var ran bool
	tk := NewTasklet(rt, func(self *Tasklet) {
		ran = true
	})
	tk.Cancel()
	require.NoError(t, pool.Push(tk))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tk.Join(ctx))

	require.False(t, ran)
	require.Equal(t, TaskletTerminated, tk.State())

	es.RequestJoin()
	require.NoError(t, es.Join(ctx))
}

func TestAsULTAsTasklet(t *testing.T) {
	rt, err := New()
	require.NoError(t, err)

	u := NewULT(rt, func(self *ULT) {})
	tk := NewTasklet(rt, func(self *Tasklet) {})

	gotULT, ok := AsULT(u)
	require.True(t, ok)
	require.Same(t, u, gotULT)
	_, ok = AsULT(tk)
	require.False(t, ok)

	gotTasklet, ok := AsTasklet(tk)
	require.True(t, ok)
	require.Same(t, tk, gotTasklet)
	_, ok = AsTasklet(u)
	require.False(t, ok)
}
