package pool

import (
	"testing"
	"time"

	"github.com/joeycumines/streamrt"
	"github.com/stretchr/testify/require"
)

type fakeUnit struct {
	streamrt.Unit
	id int
}

func newFakeUnit(rt *streamrt.Runtime, id int) streamrt.Unit {
	return fakeUnit{Unit: streamrt.NewTasklet(rt, func(*streamrt.Tasklet) {}), id: id}
}

func TestFIFO_PushPopOrdering(t *testing.T) {
	rt, err := streamrt.New()
	require.NoError(t, err)

	p := NewFIFO()
	require.Zero(t, p.Size())

	const n = chunkSize + 10 // cross at least one chunk boundary
	for i := 0; i < n; i++ {
		require.NoError(t, p.Push(newFakeUnit(rt, i)))
	}
	require.Equal(t, n, p.Size())

	for i := 0; i < n; i++ {
		u, ok := p.Pop()
		require.True(t, ok)
		require.Equal(t, i, u.(fakeUnit).id)
	}
	require.Zero(t, p.Size())

	_, ok := p.Pop()
	require.False(t, ok)
}

func TestFIFO_PopBatch(t *testing.T) {
	rt, err := streamrt.New()
	require.NoError(t, err)

	p := NewFIFO()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Push(newFakeUnit(rt, i)))
	}

	batch := p.PopBatch(3)
	require.Len(t, batch, 3)
	for i, u := range batch {
		require.Equal(t, i, u.(fakeUnit).id)
	}
	require.Equal(t, 2, p.Size())

	rest := p.PopBatch(10)
	require.Len(t, rest, 2)

	require.Empty(t, p.PopBatch(1))
	require.Nil(t, p.PopBatch(0))
}

func TestFIFO_SetConsumerConflict(t *testing.T) {
	rt, err := streamrt.New()
	require.NoError(t, err)

	es1, err := rt.NewXStream()
	require.NoError(t, err)
	es2, err := rt.NewXStream()
	require.NoError(t, err)

	p := NewFIFO()
	require.NoError(t, p.SetConsumer(es1))
	require.Same(t, es1, p.Consumer())

	err = p.SetConsumer(es2)
	require.Error(t, err)
	require.Equal(t, streamrt.ErrConsumerConflict, streamrt.KindOf(err))

	// rebinding the same consumer is not a conflict.
	require.NoError(t, p.SetConsumer(es1))
}

func TestFIFO_InFlightMigrationCounter(t *testing.T) {
	p := NewFIFO()

	var tracker streamrt.MigrationTracker = p
	require.Zero(t, p.InFlightMigrations())

	tracker.MigrationStarted()
	require.EqualValues(t, 1, p.InFlightMigrations())

	tracker.MigrationFinished()
	require.Zero(t, p.InFlightMigrations())
}

func TestFIFO_NoteIdleRateLimited(t *testing.T) {
	p := NewFIFO(WithIdleLogRate(100*time.Millisecond, 1))

	_, allowed := p.NoteIdle()
	require.True(t, allowed)

	_, allowed = p.NoteIdle()
	require.False(t, allowed)
}
